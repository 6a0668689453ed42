package partition

import (
	"context"
	"sync"

	"github.com/arkilian/rtsync/pkg/types"
)

// Flags reads the cluster-wide rebuild state. Implementations must return
// the same answer to every writer while a rebuild window is asserted.
type Flags interface {
	FullReindex(ctx context.Context) (bool, error)
	OnlineIndexing(ctx context.Context) (bool, error)
	CurrentPartition(ctx context.Context) (types.Partition, error)
}

// StaticFlags is an in-process Flags implementation for tests and single
// node deployments.
type StaticFlags struct {
	mu             sync.RWMutex
	fullReindex    bool
	onlineIndexing bool
	current        types.Partition
}

// NewStaticFlags creates flags with no rebuild in flight.
func NewStaticFlags(current types.Partition) *StaticFlags {
	return &StaticFlags{current: current}
}

// FullReindex reports whether a full reindex window is asserted.
func (f *StaticFlags) FullReindex(context.Context) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fullReindex, nil
}

// OnlineIndexing reports whether an online indexing window is asserted.
func (f *StaticFlags) OnlineIndexing(context.Context) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.onlineIndexing, nil
}

// CurrentPartition returns the partition that receives writes outside a
// full reindex.
func (f *StaticFlags) CurrentPartition(context.Context) (types.Partition, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current, nil
}

// SetFullReindex asserts or clears the full reindex window.
func (f *StaticFlags) SetFullReindex(v bool) {
	f.mu.Lock()
	f.fullReindex = v
	f.mu.Unlock()
}

// SetOnlineIndexing asserts or clears the online indexing window.
func (f *StaticFlags) SetOnlineIndexing(v bool) {
	f.mu.Lock()
	f.onlineIndexing = v
	f.mu.Unlock()
}

// SetCurrent changes the current partition.
func (f *StaticFlags) SetCurrent(p types.Partition) {
	f.mu.Lock()
	f.current = p
	f.mu.Unlock()
}
