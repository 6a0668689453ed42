package projector

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/arkilian/rtsync/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestCoerce_Table(t *testing.T) {
	tests := []struct {
		name string
		typ  types.AttrType
		in   any
		want any
	}{
		{"integer from string", types.AttrInteger, "42", int64(42)},
		{"integer from prefix", types.AttrInteger, " 12abc", int64(12)},
		{"integer from negative", types.AttrInteger, "-7", int64(-7)},
		{"integer from garbage", types.AttrInteger, "abc", int64(0)},
		{"integer from nil", types.AttrInteger, nil, int64(0)},
		{"integer from bytes", types.AttrInteger, []byte("9"), int64(9)},
		{"integer from float", types.AttrInteger, 3.9, int64(3)},
		{"integer from bool", types.AttrInteger, true, int64(1)},
		{"integer from uint8", types.AttrInteger, uint8(200), int64(200)},
		{"integer from int16", types.AttrInteger, int16(-5), int64(-5)},
		{"integer from huge uint64", types.AttrInteger, uint64(math.MaxUint64), int64(math.MaxInt64)},
		{"integer from huge string", types.AttrInteger, "99999999999999999999", int64(math.MaxInt64)},
		{"integer from huge negative string", types.AttrInteger, "-99999999999999999999", int64(math.MinInt64)},
		{"float from string", types.AttrFloat, "2.5", 2.5},
		{"float from exponent", types.AttrFloat, "1e3x", 1000.0},
		{"float from int", types.AttrFloat, int64(3), 3.0},
		{"float from nil", types.AttrFloat, nil, 0.0},
		{"float from dot only", types.AttrFloat, ".", 0.0},
		{"multi from nil", types.AttrMulti, nil, []string{}},
		{"multi from string", types.AttrMulti, "1,2,3", []string{"1", "2", "3"}},
		{"multi from empty string", types.AttrMulti, "", []string{}},
		{"multi drops trailing empties", types.AttrMulti, "1,2,,", []string{"1", "2"}},
		{"multi from list", types.AttrMulti, []int64{4, 5}, []int64{4, 5}},
		{"boolean false string", types.AttrBoolean, "0", false},
		{"boolean f", types.AttrBoolean, "f", false},
		{"boolean true string", types.AttrBoolean, "t", true},
		{"boolean one", types.AttrBoolean, int64(1), true},
		{"boolean zero", types.AttrBoolean, int64(0), false},
		{"boolean uint8 one", types.AttrBoolean, uint8(1), true},
		{"boolean uint64 one", types.AttrBoolean, uint64(1), true},
		{"boolean int32 one", types.AttrBoolean, int32(1), true},
		{"boolean int8 zero", types.AttrBoolean, int8(0), false},
		{"boolean uint two", types.AttrBoolean, uint(2), false},
		{"boolean float one", types.AttrBoolean, 1.0, true},
		{"boolean nil", types.AttrBoolean, nil, false},
		{"other unchanged", types.AttrOther, "as is", "as is"},
		{"other keeps nil", types.AttrOther, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.typ, tt.in))
		})
	}
}

func TestProperty_MultiSplitsJoinedIDs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("comma joined ids split back into their tokens", prop.ForAll(
		func(ids []uint32) bool {
			tokens := make([]string, len(ids))
			for i, id := range ids {
				tokens[i] = strconv.FormatUint(uint64(id), 10)
			}
			got, ok := Coerce(types.AttrMulti, strings.Join(tokens, ",")).([]string)
			if !ok || len(got) != len(tokens) {
				return false
			}
			for i := range got {
				if got[i] != tokens[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.Property("integers render and parse back", prop.ForAll(
		func(n int64) bool {
			return Coerce(types.AttrInteger, strconv.FormatInt(n, 10)) == n
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
