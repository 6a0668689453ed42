package state

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	_ "github.com/mattn/go-sqlite3"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/pkg/types"
)

// Store is the SQLite-backed cluster state. It implements partition.Flags.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the state database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("state: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("state: failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) flag(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM flags WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, rterrors.NewStateError(rterrors.CodeFlagReadFailed, "state: read flag "+name, err)
	}
	return v, nil
}

func (s *Store) setFlag(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, name string, v int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO flags (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, v, time.Now().UnixMilli())
	if err != nil {
		return rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: write flag "+name, err)
	}
	return nil
}

func boolFlag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// FullReindex reports whether a full reindex is running.
func (s *Store) FullReindex(ctx context.Context) (bool, error) {
	v, err := s.flag(ctx, FlagFullReindex)
	return v != 0, err
}

// OnlineIndexing reports whether an online rebuild is running.
func (s *Store) OnlineIndexing(ctx context.Context) (bool, error) {
	v, err := s.flag(ctx, FlagOnlineIndexing)
	return v != 0, err
}

// CurrentPartition returns the partition that receives writes outside a
// full reindex. It is partition 0 until set.
func (s *Store) CurrentPartition(ctx context.Context) (types.Partition, error) {
	v, err := s.flag(ctx, FlagCurrentPartition)
	if err != nil {
		return 0, err
	}
	p := types.Partition(v)
	if v < 0 || !p.Valid() {
		return 0, fmt.Errorf("%w: stored %d", types.ErrInvalidPartition, v)
	}
	return p, nil
}

// SetFullReindex sets the full reindex flag.
func (s *Store) SetFullReindex(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setFlag(ctx, s.db, FlagFullReindex, boolFlag(on))
}

// SetOnlineIndexing sets the online indexing flag.
func (s *Store) SetOnlineIndexing(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setFlag(ctx, s.db, FlagOnlineIndexing, boolFlag(on))
}

// SetCurrentPartition sets the partition that receives writes.
func (s *Store) SetCurrentPartition(ctx context.Context, p types.Partition) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", types.ErrInvalidPartition, uint8(p))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setFlag(ctx, s.db, FlagCurrentPartition, int64(p))
}

// SwitchPartition flips the current partition and returns the new one.
func (s *Store) SwitchPartition(ctx context.Context) (types.Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: begin switch", err)
	}
	defer tx.Rollback()

	var v int64
	err = tx.QueryRowContext(ctx, `SELECT value FROM flags WHERE name = ?`, FlagCurrentPartition).Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, rterrors.NewStateError(rterrors.CodeFlagReadFailed, "state: read current partition", err)
	}
	next := types.Partition(v).Other()
	if err := s.setFlag(ctx, tx, FlagCurrentPartition, int64(next)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: commit switch", err)
	}
	return next, nil
}

// FinishFullReindex closes a full reindex window: the current partition is
// flipped and the full reindex flag cleared in one transaction. When no full
// reindex is in flight nothing changes and the current partition is
// returned, so a repeated call never flips the partition back.
func (s *Store) FinishFullReindex(ctx context.Context) (types.Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: begin finish", err)
	}
	defer tx.Rollback()

	read := func(name string) (int64, error) {
		var v int64
		err := tx.QueryRowContext(ctx, `SELECT value FROM flags WHERE name = ?`, name).Scan(&v)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, rterrors.NewStateError(rterrors.CodeFlagReadFailed, "state: read flag "+name, err)
		}
		return v, nil
	}

	full, err := read(FlagFullReindex)
	if err != nil {
		return 0, err
	}
	v, err := read(FlagCurrentPartition)
	if err != nil {
		return 0, err
	}
	current := types.Partition(v)
	if full == 0 {
		return current, nil
	}

	next := current.Other()
	if err := s.setFlag(ctx, tx, FlagCurrentPartition, int64(next)); err != nil {
		return 0, err
	}
	if err := s.setFlag(ctx, tx, FlagFullReindex, boolFlag(false)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: commit finish", err)
	}
	return next, nil
}

// AddWaste adds document ids to the waste records of index.
func (s *Store) AddWaste(ctx context.Context, index string, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: begin waste update", err)
	}
	defer tx.Rollback()

	bm, err := loadBitmap(ctx, tx, index)
	if err != nil {
		return err
	}
	bm.AddMany(ids)

	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: encode waste of "+index, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO waste_records (index_name, bitmap, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(index_name) DO UPDATE SET bitmap = excluded.bitmap, updated_at = excluded.updated_at`,
		index, buf.Bytes(), time.Now().UnixMilli())
	if err != nil {
		return rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: write waste of "+index, err)
	}
	if err := tx.Commit(); err != nil {
		return rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: commit waste of "+index, err)
	}
	return nil
}

// Waste returns the waste records of index. The bitmap is empty when none
// were collected.
func (s *Store) Waste(ctx context.Context, index string) (*roaring64.Bitmap, error) {
	return loadBitmap(ctx, s.db, index)
}

// WasteIndexes lists the indexes that have waste records.
func (s *Store) WasteIndexes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT index_name FROM waste_records ORDER BY index_name`)
	if err != nil {
		return nil, rterrors.NewStateError(rterrors.CodeFlagReadFailed, "state: list waste", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, rterrors.NewStateError(rterrors.CodeFlagReadFailed, "state: list waste", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ClearWaste drops the waste records of index.
func (s *Store) ClearWaste(ctx context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM waste_records WHERE index_name = ?`, index); err != nil {
		return rterrors.NewStateError(rterrors.CodeFlagWriteFailed, "state: clear waste of "+index, err)
	}
	return nil
}

func loadBitmap(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, index string) (*roaring64.Bitmap, error) {
	bm := roaring64.New()
	var blob []byte
	err := q.QueryRowContext(ctx, `SELECT bitmap FROM waste_records WHERE index_name = ?`, index).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return bm, nil
	}
	if err != nil {
		return nil, rterrors.NewStateError(rterrors.CodeFlagReadFailed, "state: read waste of "+index, err)
	}
	if _, err := bm.ReadFrom(bytes.NewReader(blob)); err != nil {
		return nil, rterrors.NewStateError(rterrors.CodeFlagReadFailed, "state: decode waste of "+index, err)
	}
	return bm, nil
}
