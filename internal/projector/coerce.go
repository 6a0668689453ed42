package projector

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arkilian/rtsync/pkg/types"
)

// Coerce converts a source value to the representation of the declared
// attribute type. AttrOther returns v unchanged.
func Coerce(t types.AttrType, v any) any {
	switch t {
	case types.AttrInteger:
		return toInteger(v)
	case types.AttrFloat:
		return toFloat(v)
	case types.AttrMulti:
		return toMulti(v)
	case types.AttrBoolean:
		return toBoolean(v)
	default:
		return v
	}
}

func toInteger(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case uint64:
		return clampUint(n)
	case uint:
		return clampUint(uint64(n))
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	case uint8:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case time.Time:
		return n.Unix()
	case []byte:
		return parseIntPrefix(string(n))
	case string:
		return parseIntPrefix(n)
	default:
		return 0
	}
}

// clampUint saturates values beyond the signed range instead of wrapping
// them negative.
func clampUint(n uint64) int64 {
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case uint64:
		return float64(n)
	case uint32:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case []byte:
		return parseFloatPrefix(string(n))
	case string:
		return parseFloatPrefix(n)
	default:
		return 0
	}
}

// toMulti normalizes a multi-valued attribute into a list. Strings are the
// comma separated form produced by GROUP_CONCAT style queries.
func toMulti(v any) any {
	switch s := v.(type) {
	case nil:
		return []string{}
	case string:
		return splitMulti(s)
	case []byte:
		return splitMulti(string(s))
	default:
		return v
	}
}

// splitMulti drops trailing empty tokens, so "" and "1,2," split to the
// tokens actually present.
func splitMulti(s string) []string {
	tokens := strings.Split(s, ",")
	end := len(tokens)
	for end > 0 && tokens[end-1] == "" {
		end--
	}
	return tokens[:end]
}

func toBoolean(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b == 1
	case int:
		return b == 1
	case int32:
		return b == 1
	case int16:
		return b == 1
	case int8:
		return b == 1
	case uint64:
		return b == 1
	case uint:
		return b == 1
	case uint32:
		return b == 1
	case uint16:
		return b == 1
	case uint8:
		return b == 1
	case float64:
		return b == 1
	case float32:
		return b == 1
	case []byte:
		return isTrueString(string(b))
	case string:
		return isTrueString(b)
	default:
		return false
	}
}

func isTrueString(s string) bool {
	switch s {
	case "1", "t", "T", "true", "TRUE":
		return true
	default:
		return false
	}
}

// parseIntPrefix reads the leading integer of s, ignoring anything after
// it. Strings without a leading number yield 0; out of range numbers
// saturate.
func parseIntPrefix(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	return n
}

// parseFloatPrefix reads the leading decimal number of s, with an optional
// fraction and exponent.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end < len(s) && s[end] == '.' {
		frac := end + 1
		for frac < len(s) && s[frac] >= '0' && s[frac] <= '9' {
			frac++
		}
		if frac > end+1 {
			end = frac
		}
	}
	if end == start {
		return 0
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '-' || s[exp] == '+') {
			exp++
		}
		expDigits := exp
		for exp < len(s) && s[exp] >= '0' && s[exp] <= '9' {
			exp++
		}
		if exp > expDigits {
			end = exp
		}
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}
