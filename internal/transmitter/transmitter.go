// Package transmitter keeps the real-time partitions and the core index of
// a model consistent on every write.
//
// Each document lives in exactly one place: a real-time write is always
// paired with a soft-delete of the same document id in the core index, so
// the distributed index never returns both copies.
package transmitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/arkilian/rtsync/internal/drain"
	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/internal/index"
	"github.com/arkilian/rtsync/internal/journal"
	"github.com/arkilian/rtsync/internal/match"
	"github.com/arkilian/rtsync/internal/observability"
	"github.com/arkilian/rtsync/internal/partition"
	"github.com/arkilian/rtsync/internal/projector"
	"github.com/arkilian/rtsync/internal/sphinxql"
	"github.com/arkilian/rtsync/pkg/types"
)

// Client is the search-engine command surface the transmitter needs.
type Client interface {
	Replace(ctx context.Context, index string, row types.Row) error
	Delete(ctx context.Context, index string, id uint64) error
	SoftDelete(ctx context.Context, index string, id uint64) error
	Update(ctx context.Context, index string, fields types.Row, where types.Where, matching string) error
	FindWhileExists(ctx context.Context, q sphinxql.BatchQuery) iter.Seq2[[]types.Row, error]
}

// Journal records core-index commands for replay after rotation.
type Journal interface {
	Append(ctx context.Context, e *journal.Entry) (uint64, error)
}

// WasteRecorder collects document ids written during a full reindex.
type WasteRecorder interface {
	Record(ctx context.Context, idx *index.Index, id uint64) error
}

// UpdateOptions selects the rows an update applies to and how it is
// propagated.
type UpdateOptions struct {
	// Strict makes the update exact during a full reindex: matching core
	// documents are drained into the real-time partitions so none keeps
	// the old value.
	Strict bool

	// Matching is an optional full-text condition.
	Matching types.Match

	// Where holds equality or IN filters on attributes.
	Where types.Where
}

// Transmitter writes one model's records into its real-time indexes.
type Transmitter struct {
	model     index.Model
	indexes   []*index.Index
	client    Client
	flags     partition.Flags
	selector  *partition.Selector
	projector *projector.Projector
	rewriter  *match.Rewriter
	drainer   *drain.Drainer

	guard   Guard
	journal Journal
	waste   WasteRecorder

	table    index.CompositeTable
	drainCfg drain.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures a Transmitter.
type Option func(*Transmitter)

// WithGuard sets the write kill switch.
func WithGuard(g Guard) Option {
	return func(t *Transmitter) { t.guard = g }
}

// WithJournal records core updates and soft-deletes issued during online
// indexing.
func WithJournal(j Journal) Option {
	return func(t *Transmitter) { t.journal = j }
}

// WithWaste records documents written during a full reindex.
func WithWaste(w WasteRecorder) Option {
	return func(t *Transmitter) { t.waste = w }
}

// WithCompositeTable shares a composite table built over every model's
// indexes. By default the table is built from this model's indexes.
func WithCompositeTable(table index.CompositeTable) Option {
	return func(t *Transmitter) { t.table = table }
}

// WithDrainConfig sets the pacing of strict-update drains.
func WithDrainConfig(cfg drain.Config) Option {
	return func(t *Transmitter) { t.drainCfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transmitter) { t.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(t *Transmitter) { t.metrics = m }
}

// New creates a transmitter for model.
func New(model index.Model, client Client, flags partition.Flags, opts ...Option) (*Transmitter, error) {
	if model == nil || client == nil || flags == nil {
		return nil, rterrors.NewValidationError(rterrors.CodeInvalidValue, "transmitter: model, client and flags are required")
	}

	t := &Transmitter{
		model:    model,
		indexes:  index.RTIndexes(model.Indexes()),
		client:   client,
		flags:    flags,
		selector: partition.NewSelector(flags),
		drainCfg: drain.DefaultConfig(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, idx := range t.indexes {
		if err := idx.Validate(); err != nil {
			return nil, err
		}
	}
	if t.table == nil {
		t.table = index.BuildCompositeTable(model.Indexes())
	}

	t.logger = t.logger.With("model", model.Name())
	t.projector = projector.New(t.logger)
	t.rewriter = match.NewRewriter(t.table)
	t.drainer = drain.New(client, t.drainCfg, drain.WithLogger(t.logger), drain.WithMetrics(t.metrics))
	return t, nil
}

// status is the cluster state one index write runs under. It is read
// again for every index and every transmitted record so that a rebuild
// window opened mid-operation is honored by the remaining writes.
type status struct {
	targets []types.Partition
	full    bool
	online  bool
}

func (t *Transmitter) status(ctx context.Context) (status, error) {
	var st status
	var err error
	if st.full, err = t.flags.FullReindex(ctx); err != nil {
		return st, fmt.Errorf("transmitter: read full reindex flag: %w", err)
	}
	if st.online, err = t.flags.OnlineIndexing(ctx); err != nil {
		return st, fmt.Errorf("transmitter: read online indexing flag: %w", err)
	}
	if st.targets, err = t.selector.Targets(ctx); err != nil {
		return st, err
	}
	return st, nil
}

func (t *Transmitter) writeDisabled() bool {
	return t.guard != nil && t.guard.WriteDisabled()
}

// Replace writes the current state of rec into every real-time index of
// the model. Indexes whose row query finds nothing are skipped. It reports
// whether any index was written, and false without touching the search
// engine when writes are disabled.
func (t *Transmitter) Replace(ctx context.Context, rec types.Record) (bool, error) {
	if t.writeDisabled() {
		return false, nil
	}
	processed := false
	for _, idx := range t.indexes {
		ok, err := t.transmit(ctx, idx, rec)
		if err != nil {
			return false, err
		}
		processed = processed || ok
	}
	return processed, nil
}

// transmit replaces rec into every target partition of idx and then
// soft-deletes it in the core index. It reports false when the row query
// found nothing.
func (t *Transmitter) transmit(ctx context.Context, idx *index.Index, rec types.Record) (bool, error) {
	row, err := t.projector.Project(ctx, idx, rec)
	if err != nil {
		return false, err
	}
	if row == nil {
		t.metrics.SkippedProjection(idx.Name)
		t.logger.DebugContext(ctx, "source row missing, skipped", "index", idx.Name, "source_id", rec.SourceID())
		return false, nil
	}

	st, err := t.status(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range st.targets {
		if err := t.client.Replace(ctx, idx.RTName(p), row); err != nil {
			return false, err
		}
	}

	id := rec.DocumentID()
	if err := t.softDelete(ctx, idx, id, st); err != nil {
		return false, err
	}
	if err := t.recordWaste(ctx, idx, id, st); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes rec from every real-time index of the model and marks it
// deleted in the core indexes. A failing command does not stop the rest;
// all failures are returned joined.
func (t *Transmitter) Delete(ctx context.Context, rec types.Record) (bool, error) {
	if t.writeDisabled() {
		return false, nil
	}

	id := rec.DocumentID()
	var errs []error
	for _, idx := range t.indexes {
		st, err := t.status(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, p := range st.targets {
			if err := t.client.Delete(ctx, idx.RTName(p), id); err != nil {
				errs = append(errs, err)
			}
		}
		if err := t.softDelete(ctx, idx, id, st); err != nil {
			errs = append(errs, err)
		}
		if err := t.recordWaste(ctx, idx, id, st); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateRecord sets fields on the documents of one record. A strict update
// during a full reindex also re-transmits the record from the source.
func (t *Transmitter) UpdateRecord(ctx context.Context, rec types.Record, data types.Row, strict bool) (bool, error) {
	if t.writeDisabled() {
		return false, nil
	}
	where := types.Where{types.ColumnID: rec.DocumentID()}

	for _, idx := range t.indexes {
		st, err := t.status(ctx)
		if err != nil {
			return false, err
		}
		if !strict || !st.full {
			if err := t.update(ctx, idx, data, where, "", strict, st); err != nil {
				return false, err
			}
			continue
		}
		if err := t.updatePartitions(ctx, idx, data, where, "", st); err != nil {
			return false, err
		}
		if _, err := t.transmit(ctx, idx, rec); err != nil {
			return false, err
		}
	}
	return true, nil
}

// UpdateFields sets attributes on every document matching opts.
//
// During a full reindex a strict update writes both partitions and then
// re-transmits the matching core documents from the source. During online
// indexing a non-strict update writes the target partitions and the core
// index. Otherwise the update goes to the distributed index once.
func (t *Transmitter) UpdateFields(ctx context.Context, data types.Row, opts UpdateOptions) (bool, error) {
	if t.writeDisabled() {
		return false, nil
	}
	matching := t.rewriter.Rewrite(opts.Matching)

	for _, idx := range t.indexes {
		st, err := t.status(ctx)
		if err != nil {
			return false, err
		}
		if opts.Strict && st.full {
			if err := t.updatePartitions(ctx, idx, data, opts.Where, matching, st); err != nil {
				return false, err
			}
			if err := t.retransmit(ctx, idx, opts.Where, matching); err != nil {
				return false, err
			}
			continue
		}
		if err := t.update(ctx, idx, data, opts.Where, matching, opts.Strict, st); err != nil {
			return false, err
		}
	}
	return true, nil
}

// update applies an update that needs no re-transmission: a non-strict
// update during online indexing goes to the target partitions and the core
// index, anything else to the distributed index.
func (t *Transmitter) update(ctx context.Context, idx *index.Index, data types.Row, where types.Where, matching string, strict bool, st status) error {
	if strict || !st.online {
		return t.client.Update(ctx, idx.Name, data, where, matching)
	}
	if err := t.updatePartitions(ctx, idx, data, where, matching, st); err != nil {
		return err
	}
	return t.updateCore(ctx, idx, data, where, matching)
}

func (t *Transmitter) updatePartitions(ctx context.Context, idx *index.Index, data types.Row, where types.Where, matching string, st status) error {
	for _, p := range st.targets {
		if err := t.client.Update(ctx, idx.RTName(p), data, where, matching); err != nil {
			return err
		}
	}
	return nil
}

// updateCore updates the core index in place. The core index is about to
// be replaced by the rebuild, so the command is journaled for replay once
// the new one rotates in.
func (t *Transmitter) updateCore(ctx context.Context, idx *index.Index, data types.Row, where types.Where, matching string) error {
	core := idx.CoreName()
	if err := t.client.Update(ctx, core, data, where, matching); err != nil {
		return err
	}
	if t.journal == nil {
		return nil
	}
	stmt, err := sphinxql.RenderUpdate(core, data, where, matching)
	if err != nil {
		return err
	}
	return t.appendJournal(ctx, journal.OpUpdate, core, stmt)
}

// retransmit replaces every record a strict update may have missed. When
// the filter names source ids those records are loaded directly; otherwise
// the matching core documents are drained.
func (t *Transmitter) retransmit(ctx context.Context, idx *index.Index, where types.Where, matching string) error {
	replace := func(ctx context.Context, rec types.Record) error {
		_, err := t.transmit(ctx, idx, rec)
		return err
	}

	if raw, ok := where[types.ColumnInternalID]; ok && raw != nil {
		ids, err := sourceIDs(raw)
		if err != nil {
			return err
		}
		n, err := t.drainer.Retransmit(ctx, t.model, ids, replace)
		if err != nil {
			return err
		}
		t.logger.DebugContext(ctx, "records retransmitted", "index", idx.Name, "records", n)
		return nil
	}

	stats, err := t.drainer.Drain(ctx, drain.Request{
		Model:    t.model,
		Index:    idx,
		Where:    where,
		Matching: matching,
		Replace:  replace,
	})
	if err != nil {
		return err
	}
	t.logger.DebugContext(ctx, "core drained", "index", idx.Name, "run_id", stats.RunID, "rows", stats.Rows)
	return nil
}

func (t *Transmitter) softDelete(ctx context.Context, idx *index.Index, id uint64, st status) error {
	core := idx.CoreName()
	if err := t.client.SoftDelete(ctx, core, id); err != nil {
		return err
	}
	if t.journal == nil || !st.online {
		return nil
	}
	stmt, err := sphinxql.RenderSoftDelete(core, id)
	if err != nil {
		return err
	}
	return t.appendJournal(ctx, journal.OpSoftDelete, core, stmt)
}

func (t *Transmitter) recordWaste(ctx context.Context, idx *index.Index, id uint64, st status) error {
	if t.waste == nil || !st.full {
		return nil
	}
	return t.waste.Record(ctx, idx, id)
}

func (t *Transmitter) appendJournal(ctx context.Context, op, index, stmt string) error {
	if _, err := t.journal.Append(ctx, &journal.Entry{Op: op, Index: index, Statement: stmt}); err != nil {
		return fmt.Errorf("transmitter: journal %s on %s: %w", op, index, err)
	}
	return nil
}

// sourceIDs converts a sphinx_internal_id filter value to source ids.
func sourceIDs(v any) ([]int64, error) {
	one := func(x any) (int64, bool) {
		switch n := x.(type) {
		case int64:
			return n, true
		case int:
			return int64(n), true
		case int32:
			return int64(n), true
		case uint64:
			return int64(n), true
		case uint32:
			return int64(n), true
		default:
			return 0, false
		}
	}

	var ids []int64
	switch list := v.(type) {
	case []int64:
		ids = append(ids, list...)
	case []int:
		for _, n := range list {
			ids = append(ids, int64(n))
		}
	case []uint64:
		for _, n := range list {
			ids = append(ids, int64(n))
		}
	case []any:
		for _, x := range list {
			n, ok := one(x)
			if !ok {
				return nil, rterrors.NewValidationError(rterrors.CodeInvalidValue,
					fmt.Sprintf("transmitter: %s filter holds %T", types.ColumnInternalID, x))
			}
			ids = append(ids, n)
		}
	default:
		n, ok := one(v)
		if !ok {
			return nil, rterrors.NewValidationError(rterrors.CodeInvalidValue,
				fmt.Sprintf("transmitter: %s filter holds %T", types.ColumnInternalID, v))
		}
		ids = append(ids, n)
	}
	return ids, nil
}
