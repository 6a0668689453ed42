// Package drain moves documents out of a core index into the real-time
// partitions, one keyset-paginated batch at a time, without locking either
// side.
package drain

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/internal/index"
	"github.com/arkilian/rtsync/internal/observability"
	"github.com/arkilian/rtsync/internal/sphinxql"
	"github.com/arkilian/rtsync/pkg/types"
)

// Scanner yields the rows of a batch query in key order.
type Scanner interface {
	FindWhileExists(ctx context.Context, q sphinxql.BatchQuery) iter.Seq2[[]types.Row, error]
}

// ReplaceFunc re-transmits one source record through the full replace path.
type ReplaceFunc func(ctx context.Context, rec types.Record) error

// Config holds drain pacing settings.
type Config struct {
	// BatchSize is the number of core rows fetched per page.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Delay is the pause between batches.
	Delay time.Duration `json:"delay" yaml:"delay"`

	// RowsPerSecond caps re-transmitted records per second; 0 disables it.
	RowsPerSecond float64 `json:"rows_per_second" yaml:"rows_per_second"`
}

// DefaultConfig returns the default pacing: 1000 rows per batch and one
// second between batches.
func DefaultConfig() Config {
	return Config{
		BatchSize: 1000,
		Delay:     time.Second,
	}
}

// Request describes one drain run.
type Request struct {
	Model    index.Model
	Index    *index.Index
	Where    types.Where
	Matching string
	Replace  ReplaceFunc
}

// Stats summarizes a drain run.
type Stats struct {
	RunID      string
	Batches    int
	Rows       int
	LastCursor uint64
}

// Drainer runs drains against one scanner.
type Drainer struct {
	scanner Scanner
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Drainer.
type Option func(*Drainer)

// WithLogger sets the drainer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Drainer) { d.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Drainer) { d.metrics = m }
}

// New creates a drainer. A non-positive batch size falls back to the
// default; a negative delay is treated as none.
func New(scanner Scanner, cfg Config, opts ...Option) *Drainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}

	d := &Drainer{
		scanner: scanner,
		cfg:     cfg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if cfg.RowsPerSecond > 0 {
		burst := int(cfg.RowsPerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RowsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Drain re-transmits every core document of req.Index that matches
// req.Where and req.Matching. Batches are fetched in ascending document id
// order, each starting after the previous batch's largest id, until one
// comes back empty.
func (d *Drainer) Drain(ctx context.Context, req Request) (Stats, error) {
	stats := Stats{RunID: uuid.NewString()}
	if req.Index == nil || req.Model == nil || req.Replace == nil {
		return stats, rterrors.NewValidationError(rterrors.CodeInvalidValue, "drain: index, model and replace func are required")
	}

	q := sphinxql.BatchQuery{
		Index:     req.Index.CoreName(),
		KeyColumn: types.ColumnID,
		Columns:   []string{types.ColumnID, types.ColumnInternalID},
		Where:     req.Where,
		Matching:  req.Matching,
		BatchSize: d.cfg.BatchSize,
	}
	log := d.logger.With("run_id", stats.RunID, "index", q.Index)
	start := time.Now()

	for batch, err := range d.scanner.FindWhileExists(ctx, q) {
		if err != nil {
			return stats, fmt.Errorf("drain: fetch batch after %d: %w", stats.LastCursor, err)
		}
		if len(batch) == 0 {
			break
		}

		cursor, ids, err := inspect(batch)
		if err != nil {
			return stats, err
		}
		if stats.Batches > 0 && cursor <= stats.LastCursor {
			return stats, rterrors.NewDrainError(rterrors.CodeCursorRegression,
				fmt.Sprintf("drain: %s cursor %d did not advance past %d", q.Index, cursor, stats.LastCursor))
		}

		n, err := d.retransmit(ctx, req, ids)
		stats.Rows += n
		if err != nil {
			return stats, err
		}
		stats.Batches++
		stats.LastCursor = cursor
		d.metrics.DrainBatch(req.Index.Name, n)
		log.DebugContext(ctx, "drained batch", "batch", stats.Batches, "rows", n, "cursor", cursor)

		if err := sleep(ctx, d.cfg.Delay); err != nil {
			return stats, err
		}
	}

	log.InfoContext(ctx, "drain finished",
		"batches", stats.Batches, "rows", stats.Rows, "cursor", stats.LastCursor, "elapsed", time.Since(start))
	return stats, nil
}

// Retransmit loads the records with the given source ids and replaces each
// of them, skipping the core scan entirely.
func (d *Drainer) Retransmit(ctx context.Context, model index.Model, ids []int64, replace ReplaceFunc) (int, error) {
	return d.retransmit(ctx, Request{Model: model, Replace: replace}, ids)
}

func (d *Drainer) retransmit(ctx context.Context, req Request, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	records, err := req.Model.Records(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("drain: load %s records: %w", req.Model.Name(), err)
	}

	n := 0
	for _, rec := range records {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return n, err
			}
		}
		if err := req.Replace(ctx, rec); err != nil {
			return n, fmt.Errorf("drain: replace record %d: %w", rec.SourceID(), err)
		}
		n++
	}
	return n, nil
}

// inspect returns the largest document id of a batch and the source ids
// its documents were built from.
func inspect(batch []types.Row) (uint64, []int64, error) {
	var cursor uint64
	ids := make([]int64, 0, len(batch))
	for _, row := range batch {
		id, ok := row.DocumentID()
		if !ok {
			return 0, nil, rterrors.NewDrainError(rterrors.CodeMissingKey, "drain: core row without id")
		}
		internal, ok := row.InternalID()
		if !ok {
			return 0, nil, rterrors.NewDrainError(rterrors.CodeMissingKey,
				fmt.Sprintf("drain: core row %d without %s", id, types.ColumnInternalID))
		}
		if id > cursor {
			cursor = id
		}
		ids = append(ids, internal)
	}
	return cursor, ids, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
