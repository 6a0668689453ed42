package types

import "fmt"

// AttrType is the declared type of an index attribute. It selects the
// coercion applied to source values before they are written.
type AttrType uint8

const (
	// AttrOther leaves source values untouched.
	AttrOther AttrType = iota
	AttrInteger
	AttrFloat
	AttrMulti
	AttrBoolean
)

func (t AttrType) String() string {
	switch t {
	case AttrInteger:
		return "integer"
	case AttrFloat:
		return "float"
	case AttrMulti:
		return "multi"
	case AttrBoolean:
		return "boolean"
	default:
		return "other"
	}
}

// ParseAttrType maps a declared type name onto an AttrType. Names the
// coercion table does not know (string, timestamp, ...) map to AttrOther.
func ParseAttrType(name string) AttrType {
	switch name {
	case "integer", "int", "uint", "bigint":
		return AttrInteger
	case "float":
		return AttrFloat
	case "multi", "mva":
		return AttrMulti
	case "boolean", "bool":
		return AttrBoolean
	default:
		return AttrOther
	}
}

// UnmarshalText lets attribute maps be declared by name in YAML or JSON.
func (t *AttrType) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		return fmt.Errorf("types: empty attribute type")
	}
	*t = ParseAttrType(string(text))
	return nil
}

// MarshalText renders the type name.
func (t AttrType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
