package types

import (
	"fmt"
	"sort"
)

// MatchKind tags the shape a full-text match condition was given in.
type MatchKind uint8

const (
	// MatchNone means no full-text condition.
	MatchNone MatchKind = iota
	// MatchFields is a list of field to text pairs.
	MatchFields
	// MatchExpression is a single "@field text @field text" expression.
	MatchExpression
)

// FieldText is one field-qualified segment of a match condition.
type FieldText struct {
	Field string
	Text  string
}

// Match is a full-text match condition. The zero value matches everything.
type Match struct {
	kind   MatchKind
	fields []FieldText
	expr   string
}

// FieldMatch builds a match from a field map. Fields are ordered by name
// because Go maps carry no iteration order.
func FieldMatch(m map[string]string) Match {
	if len(m) == 0 {
		return Match{}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]FieldText, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, FieldText{Field: k, Text: m[k]})
	}
	return Match{kind: MatchFields, fields: pairs}
}

// OrderedFieldMatch builds a match from field pairs, keeping their order.
func OrderedFieldMatch(pairs ...FieldText) Match {
	if len(pairs) == 0 {
		return Match{}
	}
	return Match{kind: MatchFields, fields: append([]FieldText(nil), pairs...)}
}

// ExpressionMatch builds a match from an "@field text" expression.
func ExpressionMatch(expr string) Match {
	if expr == "" {
		return Match{}
	}
	return Match{kind: MatchExpression, expr: expr}
}

// MatchFrom decides the variant of a loosely typed match value once, at the
// call boundary. Accepted shapes are nil, string, map[string]string,
// map[string]any with string values, []FieldText and Match. Anything else is
// a caller bug and panics.
func MatchFrom(v any) Match {
	switch m := v.(type) {
	case nil:
		return Match{}
	case Match:
		return m
	case string:
		return ExpressionMatch(m)
	case map[string]string:
		return FieldMatch(m)
	case map[string]any:
		conv := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				panic(fmt.Sprintf("types: match field %q has non-string text %T", k, val))
			}
			conv[k] = s
		}
		return FieldMatch(conv)
	case []FieldText:
		return OrderedFieldMatch(m...)
	default:
		panic(fmt.Sprintf("types: unsupported match value %T", v))
	}
}

// Kind reports the variant.
func (m Match) Kind() MatchKind { return m.kind }

// Fields returns the field pairs of a MatchFields condition.
func (m Match) Fields() []FieldText { return m.fields }

// Expression returns the raw expression of a MatchExpression condition.
func (m Match) Expression() string { return m.expr }

// IsZero reports whether m carries no condition.
func (m Match) IsZero() bool { return m.kind == MatchNone }
