package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldMatch_SortsFields(t *testing.T) {
	m := FieldMatch(map[string]string{"title": "foo", "body": "bar"})

	assert.Equal(t, MatchFields, m.Kind())
	assert.Equal(t, []FieldText{{"body", "bar"}, {"title", "foo"}}, m.Fields())
}

func TestMatchFrom_Shapes(t *testing.T) {
	assert.True(t, MatchFrom(nil).IsZero())
	assert.True(t, MatchFrom("").IsZero())
	assert.Equal(t, MatchExpression, MatchFrom("@title foo").Kind())
	assert.Equal(t, "@title foo", MatchFrom("@title foo").Expression())
	assert.Equal(t, MatchFields, MatchFrom(map[string]string{"a": "b"}).Kind())
	assert.Equal(t, MatchFields, MatchFrom(map[string]any{"a": "b"}).Kind())

	ordered := MatchFrom([]FieldText{{"z", "1"}, {"a", "2"}})
	assert.Equal(t, "z", ordered.Fields()[0].Field)
}

func TestMatchFrom_UnsupportedShapePanics(t *testing.T) {
	assert.Panics(t, func() { MatchFrom(42) })
	assert.Panics(t, func() { MatchFrom([]string{"@title foo"}) })
	assert.Panics(t, func() { MatchFrom(map[string]any{"title": 1}) })
}
