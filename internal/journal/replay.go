package journal

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/internal/storage"
)

// Execer runs a pre-rendered statement against the search engine.
type Execer interface {
	Exec(ctx context.Context, op, index, stmt string) error
}

// Replay re-applies every journaled entry in LSN order. Replay stops at the
// first failing entry; entries before it have been applied.
func (j *Journal) Replay(ctx context.Context, exec Execer) (int, error) {
	start := time.Now()
	segments, err := j.Segments()
	if err != nil {
		return 0, err
	}

	var lastLSN uint64
	applied := 0
	for _, seg := range segments {
		entries, err := j.readSegment(seg)
		if err != nil {
			return applied, err
		}
		for _, e := range entries {
			if e.LSN <= lastLSN {
				continue
			}
			if err := ctx.Err(); err != nil {
				return applied, err
			}
			if err := exec.Exec(ctx, e.Op, e.Index, e.Statement); err != nil {
				return applied, rterrors.NewJournalError(rterrors.CodeReplayFailed,
					fmt.Sprintf("journal: replay entry %d", e.LSN), err)
			}
			lastLSN = e.LSN
			applied++
		}
	}

	j.logger.InfoContext(ctx, "journal replayed", "entries", applied, "elapsed", time.Since(start))
	return applied, nil
}

// Archive seals the active segment, uploads every sealed segment under
// prefix and removes the local copies. Without storage the sealed segments
// are only removed. It returns the number of segments archived.
func (j *Journal) Archive(ctx context.Context, store storage.ObjectStorage, prefix string) (int, error) {
	if _, err := j.Seal(); err != nil {
		return 0, err
	}
	segments, err := j.Segments()
	if err != nil {
		return 0, err
	}

	j.mu.Lock()
	active := j.segment.Name()
	j.mu.Unlock()

	archived := 0
	for _, seg := range segments {
		if seg == active {
			continue
		}
		if store != nil {
			object := path.Join(prefix, filepath.Base(seg))
			if err := store.Upload(ctx, seg, object); err != nil {
				return archived, rterrors.NewStorageError(rterrors.CodeUploadFailed, "journal: archive "+object, err)
			}
		}
		if err := os.Remove(seg); err != nil {
			return archived, fmt.Errorf("journal: remove archived segment: %w", err)
		}
		archived++
	}

	j.logger.InfoContext(ctx, "journal archived", "segments", archived, "prefix", prefix)
	return archived, nil
}
