package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/rtsync/internal/config"
	"github.com/arkilian/rtsync/internal/index"
	"github.com/arkilian/rtsync/internal/journal"
	"github.com/arkilian/rtsync/internal/observability"
	"github.com/arkilian/rtsync/internal/source"
	"github.com/arkilian/rtsync/internal/sphinxql"
	"github.com/arkilian/rtsync/internal/sqlutil"
	"github.com/arkilian/rtsync/internal/state"
	"github.com/arkilian/rtsync/internal/storage"
	"github.com/arkilian/rtsync/internal/transmitter"
	"github.com/arkilian/rtsync/internal/waste"
	"github.com/arkilian/rtsync/pkg/types"
)

// env holds the handles one command runs against.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	state   *state.Store
	journal *journal.Journal
	client  *sphinxql.Client
	source  sqlutil.Querier
	closers []func() error

	composite index.CompositeTable
}

// openEnv connects to the state database, the journal, searchd and the
// source database. searchd is reached through the privileged listener.
func openEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*env, error) {
	e := &env{cfg: cfg, logger: logger, metrics: metrics}

	st, err := state.Open(cfg.State.Path)
	if err != nil {
		return nil, err
	}
	e.state = st
	e.closers = append(e.closers, st.Close)

	j, err := journal.Open(cfg.ReplayLog.Dir, cfg.ReplayLog.MaxSegmentSize,
		journal.WithLogger(logger), journal.WithMetrics(metrics))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.journal = j
	e.closers = append(e.closers, j.Close)

	hosts, closeHosts, err := sphinxql.Open(cfg.Searchd.Conn(true))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, closeHosts)
	e.client, err = sphinxql.NewClient(hosts, sphinxql.WithLogger(logger), sphinxql.WithMetrics(metrics))
	if err != nil {
		e.Close()
		return nil, err
	}

	if cfg.Source.DSN != "" {
		db, err := sql.Open(cfg.Source.Driver, cfg.Source.DSN)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("open source database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			e.Close()
			return nil, fmt.Errorf("connect source database: %w", err)
		}
		e.source = db
		e.closers = append(e.closers, db.Close)
	}
	return e, nil
}

// Close releases every handle in reverse order of acquisition.
func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// run executes one command.
func run(ctx context.Context, e *env, w io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("no command given")
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "status":
		return e.status(ctx, w)
	case "begin-full":
		if err := e.state.SetFullReindex(ctx, true); err != nil {
			return err
		}
		fmt.Fprintln(w, "full reindex started")
		return nil
	case "end-full":
		return e.endFull(ctx, w)
	case "begin-online":
		if err := e.state.SetOnlineIndexing(ctx, true); err != nil {
			return err
		}
		fmt.Fprintln(w, "online indexing started")
		return nil
	case "end-online":
		return e.endOnline(ctx, w)
	case "replay":
		n, err := e.journal.Replay(ctx, e.client)
		fmt.Fprintf(w, "replayed %d entries\n", n)
		return err
	case "replace", "delete":
		return e.transmit(ctx, w, cmd, rest)
	case "update":
		return e.update(ctx, w, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (e *env) status(ctx context.Context, w io.Writer) error {
	full, err := e.state.FullReindex(ctx)
	if err != nil {
		return err
	}
	online, err := e.state.OnlineIndexing(ctx)
	if err != nil {
		return err
	}
	current, err := e.state.CurrentPartition(ctx)
	if err != nil {
		return err
	}
	segments, err := e.journal.Segments()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "full_reindex: %t\n", full)
	fmt.Fprintf(w, "online_indexing: %t\n", online)
	fmt.Fprintf(w, "current_partition: %d\n", current)
	fmt.Fprintf(w, "journal_lsn: %d\n", e.journal.CurrentLSN())
	fmt.Fprintf(w, "journal_segments: %d\n", len(segments))

	names, err := e.state.WasteIndexes(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		bm, err := e.state.Waste(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "waste %s: %d\n", name, bm.GetCardinality())
	}
	return nil
}

// endFull finishes a full reindex: documents replaced during the rebuild
// are soft-deleted in the new core indexes, then the freshly built
// partition becomes current and the flag is cleared in one step. A failed
// cleanup leaves the flags untouched and a rerun after success changes
// nothing, so the command can always be repeated.
func (e *env) endFull(ctx context.Context, w io.Writer) error {
	n, err := waste.NewCleaner(e.state, e.client, e.logger).Cleanup(ctx, e.cfg.Indexes)
	if err != nil {
		return err
	}
	p, err := e.state.FinishFullReindex(ctx)
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "full reindex finished", "partition", p, "waste", n)
	fmt.Fprintf(w, "current partition %d, %d waste documents removed\n", p, n)
	return nil
}

// endOnline clears the online flag so new updates reach the core indexes
// directly, then replays and archives what was journaled meanwhile.
func (e *env) endOnline(ctx context.Context, w io.Writer) error {
	if err := e.state.SetOnlineIndexing(ctx, false); err != nil {
		return err
	}
	n, err := e.journal.Replay(ctx, e.client)
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, e.cfg.Storage)
	if err != nil {
		return err
	}
	archived, err := e.journal.Archive(ctx, store, e.cfg.Storage.Prefix)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "replayed %d entries, archived %d segments\n", n, archived)
	return nil
}

// compositeTable maps fields to composite fields across every configured
// index. It is built once per env.
func (e *env) compositeTable() index.CompositeTable {
	if e.composite == nil {
		e.composite = index.BuildCompositeTable(e.cfg.Indexes)
	}
	return e.composite
}

// transmitterFor builds a transmitter over the configured model.
func (e *env) transmitterFor(name string) (*source.Table, *transmitter.Transmitter, error) {
	if e.source == nil {
		return nil, nil, errors.New("source.dsn is not configured")
	}
	mc, ok := e.cfg.Model(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown model %q", name)
	}

	indexes := make([]*index.Index, 0, len(mc.Indexes))
	for _, n := range mc.Indexes {
		idx, ok := e.cfg.Index(n)
		if !ok {
			return nil, nil, fmt.Errorf("model %s: unknown index %s", name, n)
		}
		indexes = append(indexes, idx)
	}

	table, err := source.NewTable(e.source, source.TableConfig{
		Name:       mc.Name,
		Table:      mc.Table,
		PrimaryKey: mc.PrimaryKey,
		Offset:     mc.Offset,
		Models:     mc.Models,
		Indexes:    indexes,
	})
	if err != nil {
		return nil, nil, err
	}

	tr, err := transmitter.New(table, e.client, e.state,
		transmitter.WithGuard(transmitter.NewKillSwitch(e.cfg.WriteDisabled)),
		transmitter.WithJournal(e.journal),
		transmitter.WithWaste(waste.NewCollector(e.state, e.metrics)),
		transmitter.WithCompositeTable(e.compositeTable()),
		transmitter.WithDrainConfig(e.cfg.Drain),
		transmitter.WithLogger(e.logger),
		transmitter.WithMetrics(e.metrics),
	)
	if err != nil {
		return nil, nil, err
	}
	return table, tr, nil
}

func (e *env) transmit(ctx context.Context, w io.Writer, cmd string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <model> <id>...", cmd)
	}
	ids, err := parseIDs(args[1:])
	if err != nil {
		return err
	}
	table, tr, err := e.transmitterFor(args[0])
	if err != nil {
		return err
	}

	if cmd == "delete" {
		for _, id := range ids {
			done, err := tr.Delete(ctx, table.Record(id))
			if err != nil {
				return err
			}
			report(w, cmd, id, done)
		}
		return nil
	}

	recs, err := table.Records(ctx, ids)
	if err != nil {
		return err
	}
	found := make(map[int64]bool, len(recs))
	for _, rec := range recs {
		found[rec.SourceID()] = true
		done, err := tr.Replace(ctx, rec)
		if err != nil {
			return err
		}
		report(w, cmd, rec.SourceID(), done)
	}
	for _, id := range ids {
		if !found[id] {
			fmt.Fprintf(w, "%s %d: not found\n", cmd, id)
		}
	}
	return nil
}

func (e *env) update(ctx context.Context, w io.Writer, args []string) error {
	strict := len(args) > 0 && (args[0] == "-strict" || args[0] == "--strict")
	if strict {
		args = args[1:]
	}
	if len(args) < 3 {
		return errors.New("usage: update [-strict] <model> <id> <attr=value>...")
	}
	ids, err := parseIDs(args[1:2])
	if err != nil {
		return err
	}
	data, err := parseFields(args[2:])
	if err != nil {
		return err
	}
	table, tr, err := e.transmitterFor(args[0])
	if err != nil {
		return err
	}
	done, err := tr.UpdateRecord(ctx, table.Record(ids[0]), data, strict)
	if err != nil {
		return err
	}
	report(w, "update", ids[0], done)
	return nil
}

func report(w io.Writer, cmd string, id int64, done bool) {
	if done {
		fmt.Fprintf(w, "%s %d: ok\n", cmd, id)
		return
	}
	fmt.Fprintf(w, "%s %d: writes disabled\n", cmd, id)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid record id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseFields reads attr=value pairs. Integer values are sent as integers,
// everything else as strings.
func parseFields(args []string) (types.Row, error) {
	row := make(types.Row, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid attribute %q, want attr=value", a)
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			row[k] = n
			continue
		}
		row[k] = v
	}
	return row, nil
}
