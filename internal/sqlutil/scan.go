// Package sqlutil holds database/sql helpers shared by the source and
// search-engine clients.
package sqlutil

import (
	"context"
	"database/sql"

	"github.com/arkilian/rtsync/pkg/types"
)

// Querier is the read side of *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is the write side of *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DB combines Querier and Execer.
type DB interface {
	Querier
	Execer
}

// ScanRows reads every remaining row into a types.Row. Text columns that the
// driver hands back as []byte are converted to string. rows is closed.
func ScanRows(rows *sql.Rows) ([]types.Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []types.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(types.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// QueryRow runs query and returns its first row, or nil when there is none.
func QueryRow(ctx context.Context, q Querier, query string, args ...any) (types.Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	all, err := ScanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}
