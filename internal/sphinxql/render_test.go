package sphinxql

import (
	"testing"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, Quote("plain"))
	assert.Equal(t, `'it\'s'`, Quote("it's"))
	assert.Equal(t, `'a\\b'`, Quote(`a\b`))
	assert.Equal(t, `'line\nbreak'`, Quote("line\nbreak"))
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{int64(-3), "-3"},
		{uint64(7), "7"},
		{1.25, "1.25"},
		{true, "1"},
		{false, "0"},
		{nil, "''"},
		{"x", "'x'"},
		{[]string{"1", " 2", "3"}, "(1,2,3)"},
		{[]string{}, "()"},
		{[]int64{4, 5}, "(4,5)"},
		{[]any{int64(1), "2"}, "(1,2)"},
	}
	for _, tt := range tests {
		got, err := Literal(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestLiteral_Rejects(t *testing.T) {
	_, err := Literal([]string{"1", "two"})
	assert.Equal(t, rterrors.CodeInvalidValue, rterrors.GetCode(err))

	_, err = Literal(struct{}{})
	assert.Equal(t, rterrors.CodeUnsupportedType, rterrors.GetCode(err))
}

func TestRenderReplace(t *testing.T) {
	stmt, err := RenderReplace("products_rt0", types.Row{
		"id":    uint64(10),
		"title": "lamp",
		"tags":  []string{"1", "2"},
		"price": int64(12),
	})
	require.NoError(t, err)
	assert.Equal(t, "REPLACE INTO products_rt0 (id, price, tags, title) VALUES (10, 12, (1,2), 'lamp')", stmt)
}

func TestRenderReplace_RequiresDocumentID(t *testing.T) {
	_, err := RenderReplace("products_rt0", types.Row{"title": "lamp"})
	assert.Error(t, err)
}

func TestRenderDeleteAndSoftDelete(t *testing.T) {
	stmt, err := RenderDelete("products_rt1", 42)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM products_rt1 WHERE id = 42", stmt)

	stmt, err = RenderSoftDelete("products_core", 42)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE products_core SET sphinx_deleted = 1 WHERE id = 42", stmt)
}

func TestRenderUpdate(t *testing.T) {
	stmt, err := RenderUpdate("products",
		types.Row{"region_id": int64(5), "flags": []int64{1, 2}},
		types.Where{"company_id": int64(3), "id": []int64{7, 8}},
		"@search_all lamp")
	require.NoError(t, err)
	assert.Equal(t,
		"UPDATE products SET flags = (1,2), region_id = 5 WHERE MATCH('@search_all lamp') AND company_id = 3 AND id IN (7,8)",
		stmt)
}

func TestRenderUpdate_Rejects(t *testing.T) {
	_, err := RenderUpdate("products", types.Row{"a": int64(1)}, nil, "")
	assert.Error(t, err, "update without condition")

	_, err = RenderUpdate("products", nil, types.Where{"id": int64(1)}, "")
	assert.Error(t, err, "update without fields")

	_, err = RenderUpdate("products", types.Row{"a": int64(1)}, types.Where{"id": []int64{}}, "")
	assert.Error(t, err, "empty IN list")

	_, err = RenderUpdate("products; DROP", types.Row{"a": int64(1)}, types.Where{"id": int64(1)}, "")
	assert.Error(t, err, "bad identifier")
}

func TestRenderSelectBatch(t *testing.T) {
	q := BatchQuery{
		Index:     "products_core",
		KeyColumn: "id",
		Columns:   []string{"id", "sphinx_internal_id"},
		Where:     types.Where{"company_id": int64(3)},
		Matching:  "@title lamp",
		BatchSize: 500,
	}
	stmt, err := RenderSelectBatch(q, 99)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, sphinx_internal_id FROM products_core WHERE MATCH('@title lamp') AND company_id = 3 AND id > 99 ORDER BY id ASC LIMIT 500",
		stmt)

	q.BatchSize = 5000
	q.Where = nil
	q.Matching = ""
	stmt, err = RenderSelectBatch(q, 0)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, sphinx_internal_id FROM products_core WHERE id > 0 ORDER BY id ASC LIMIT 5000 OPTION max_matches=5000",
		stmt)
}
