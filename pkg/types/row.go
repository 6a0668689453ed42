// Package types provides the core data types shared by the rtsync packages.
package types

import (
	"sort"
	"strconv"
)

// Reserved column names of every real-time and core index.
const (
	// ColumnID is the document id column, the primary key of every index copy.
	ColumnID = "id"

	// ColumnInternalID holds the source record id a document was built from.
	ColumnInternalID = "sphinx_internal_id"

	// ColumnDeleted is the soft-delete marker of the core index.
	ColumnDeleted = "sphinx_deleted"
)

// Row maps attribute names to values ready to be written into an index.
type Row map[string]any

// DocumentID extracts the document id stored under ColumnID.
func (r Row) DocumentID() (uint64, bool) {
	return r.Uint64(ColumnID)
}

// Uint64 reads a non-negative integer column.
func (r Row) Uint64(col string) (uint64, bool) {
	return toUint64(r[col])
}

// InternalID extracts the source record id stored under ColumnInternalID.
func (r Row) InternalID() (int64, bool) {
	v, ok := toUint64(r[ColumnInternalID])
	return int64(v), ok
}

// Columns returns the row's column names with ColumnID first and the
// remaining names in lexical order, so rendered statements are stable.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	hasID := false
	for k := range r {
		if k == ColumnID {
			hasID = true
			continue
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	if hasID {
		cols = append([]string{ColumnID}, cols...)
	}
	return cols
}

// DocumentID derives the index document id of a source record. Several models
// share one id space, so the source id is interleaved by the model offset.
func DocumentID(sourceID int64, offset, models int) uint64 {
	if models <= 0 {
		models = 1
	}
	return uint64(sourceID)*uint64(models) + uint64(offset)
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case int64:
		return uint64(n), n >= 0
	case int:
		return uint64(n), n >= 0
	case int32:
		return uint64(n), n >= 0
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case float64:
		return uint64(n), n >= 0
	case []byte:
		u, err := strconv.ParseUint(string(n), 10, 64)
		return u, err == nil
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		return u, err == nil
	default:
		return 0, false
	}
}
