// Package projector builds the attribute row an index expects for one
// source record.
package projector

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/internal/index"
	"github.com/arkilian/rtsync/pkg/types"
)

// Projector materializes rows from the relational source.
type Projector struct {
	logger *slog.Logger
}

// New creates a projector. A nil logger discards output.
func New(logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Projector{logger: logger}
}

// Project fetches the record's row for idx, merges multi-valued attributes
// and coerces every value by its declared type. A nil row with a nil error
// means the source row is gone and the write must be skipped.
func (p *Projector) Project(ctx context.Context, idx *index.Index, rec types.Record) (types.Row, error) {
	query := idx.RowQuery(rec.SourceID())

	row, err := rec.FetchRow(ctx, query)
	if err != nil {
		return nil, rterrors.NewSourceError(rterrors.CodeFetchFailed,
			fmt.Sprintf("fetch row for %s id=%d", idx.Name, rec.SourceID()), err)
	}
	if row == nil {
		p.logger.DebugContext(ctx, "source row missing, skipping",
			"index", idx.Name,
			"source_id", rec.SourceID(),
		)
		return nil, nil
	}

	for name, produce := range idx.MVA {
		v, err := produce(ctx, rec)
		if err != nil {
			return nil, rterrors.NewSourceError(rterrors.CodeProducerFailed,
				fmt.Sprintf("mva %s for %s id=%d", name, idx.Name, rec.SourceID()), err)
		}
		row[name] = v
	}

	out := make(types.Row, len(row)+1)
	for name, v := range row {
		out[name] = Coerce(idx.AttributeType(name), v)
	}
	if _, ok := out[types.ColumnID]; !ok {
		out[types.ColumnID] = rec.DocumentID()
	}
	return out, nil
}
