// Package source reads records and their index rows from the relational
// database that owns them.
package source

import (
	"context"
	"fmt"
	"strings"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/internal/index"
	"github.com/arkilian/rtsync/internal/sqlutil"
	"github.com/arkilian/rtsync/pkg/types"
)

// Record is a row of a source table addressed by its primary key.
type Record struct {
	id    int64
	docID uint64
	db    sqlutil.Querier
}

// SourceID returns the primary key in the source table.
func (r *Record) SourceID() int64 { return r.id }

// DocumentID returns the id used inside the search indexes.
func (r *Record) DocumentID() uint64 { return r.docID }

// FetchRow executes query against the record's database.
func (r *Record) FetchRow(ctx context.Context, query string) (types.Row, error) {
	return sqlutil.QueryRow(ctx, r.db, query)
}

// TableConfig describes a source table and the indexes fed from it.
type TableConfig struct {
	// Name identifies the model; it doubles as the SQL table name when
	// Table is empty.
	Name string

	// Table is the SQL table holding the records.
	Table string

	// PrimaryKey defaults to "id".
	PrimaryKey string

	// Offset and Models interleave document ids of several models.
	Offset int
	Models int

	Indexes []*index.Index
}

// Table is an index.Model backed by a SQL table.
type Table struct {
	cfg TableConfig
	db  sqlutil.Querier
}

// NewTable creates a model over db.
func NewTable(db sqlutil.Querier, cfg TableConfig) (*Table, error) {
	if cfg.Name == "" {
		return nil, rterrors.NewValidationError(rterrors.CodeInvalidValue, "source: table name is required")
	}
	if cfg.Table == "" {
		cfg.Table = cfg.Name
	}
	if cfg.PrimaryKey == "" {
		cfg.PrimaryKey = "id"
	}
	if cfg.Models <= 0 {
		cfg.Models = 1
	}
	for _, idx := range cfg.Indexes {
		if err := idx.Validate(); err != nil {
			return nil, err
		}
	}
	return &Table{cfg: cfg, db: db}, nil
}

// Name returns the model name.
func (t *Table) Name() string { return t.cfg.Name }

// Indexes returns the indexes fed from the table.
func (t *Table) Indexes() []*index.Index { return t.cfg.Indexes }

// Record returns a handle for the row with the given primary key without
// touching the database.
func (t *Table) Record(id int64) *Record {
	return &Record{
		id:    id,
		docID: types.DocumentID(id, t.cfg.Offset, t.cfg.Models),
		db:    t.db,
	}
}

// Records loads the rows that still exist among ids, in ascending order.
func (t *Table) Records(ctx context.Context, ids []int64) ([]types.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY %s",
		t.cfg.PrimaryKey, t.cfg.Table, t.cfg.PrimaryKey, placeholders, t.cfg.PrimaryKey)

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, rterrors.NewSourceError(rterrors.CodeFetchFailed, "load records from "+t.cfg.Table, err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, rterrors.NewSourceError(rterrors.CodeFetchFailed, "scan record id", err)
		}
		out = append(out, t.Record(id))
	}
	if err := rows.Err(); err != nil {
		return nil, rterrors.NewSourceError(rterrors.CodeFetchFailed, "iterate records", err)
	}
	return out, nil
}
