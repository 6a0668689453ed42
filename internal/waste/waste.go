// Package waste cleans up documents that a full reindex left stale.
//
// While a full reindex runs, documents written to the real-time partitions
// are recorded as waste. The rebuilt core index still holds the versions
// read when the rebuild started, so once it rotates in those ids must be
// soft-deleted there, leaving the real-time copies authoritative.
package waste

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/arkilian/rtsync/internal/index"
	"github.com/arkilian/rtsync/internal/observability"
)

// Store holds the collected waste records.
type Store interface {
	AddWaste(ctx context.Context, index string, ids ...uint64) error
	Waste(ctx context.Context, index string) (*roaring64.Bitmap, error)
	ClearWaste(ctx context.Context, index string) error
}

// SoftDeleter marks core documents deleted.
type SoftDeleter interface {
	SoftDelete(ctx context.Context, index string, id uint64) error
}

// Collector records written document ids per index.
type Collector struct {
	store   Store
	metrics *observability.Metrics
}

// NewCollector creates a collector over store.
func NewCollector(store Store, metrics *observability.Metrics) *Collector {
	return &Collector{store: store, metrics: metrics}
}

// Record adds a written document id of idx to its waste records.
func (c *Collector) Record(ctx context.Context, idx *index.Index, id uint64) error {
	if err := c.store.AddWaste(ctx, idx.Name, id); err != nil {
		return err
	}
	c.metrics.WasteRecord(idx.Name)
	return nil
}

// Cleaner soft-deletes waste records in rotated core indexes.
type Cleaner struct {
	store  Store
	client SoftDeleter
	logger *slog.Logger
}

// NewCleaner creates a cleaner. A nil logger discards output.
func NewCleaner(store Store, client SoftDeleter, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cleaner{store: store, client: client, logger: logger}
}

// Cleanup soft-deletes every recorded id of each index in its core index,
// then clears the records. Records of an index are kept when any of its
// soft-deletes fails so the cleanup can be rerun. It returns the number of
// documents soft-deleted.
func (c *Cleaner) Cleanup(ctx context.Context, indexes []*index.Index) (int, error) {
	total := 0
	for _, idx := range index.RTIndexes(indexes) {
		bm, err := c.store.Waste(ctx, idx.Name)
		if err != nil {
			return total, err
		}
		if bm.IsEmpty() {
			continue
		}

		core := idx.CoreName()
		it := bm.Iterator()
		for it.HasNext() {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			id := it.Next()
			if err := c.client.SoftDelete(ctx, core, id); err != nil {
				return total, fmt.Errorf("waste: soft-delete %d in %s: %w", id, core, err)
			}
			total++
		}

		if err := c.store.ClearWaste(ctx, idx.Name); err != nil {
			return total, err
		}
		c.logger.InfoContext(ctx, "waste cleaned", "index", core, "documents", bm.GetCardinality())
	}
	return total, nil
}
