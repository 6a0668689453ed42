// Package partition decides which real-time partitions a write targets.
package partition

import (
	"context"
	"fmt"

	"github.com/arkilian/rtsync/pkg/types"
)

// Selector determines the partitions a write must reach from the cluster
// rebuild state. It never caches: the flags may change between two calls
// of the same logical operation.
type Selector struct {
	flags Flags
}

// NewSelector creates a selector reading the given flags.
func NewSelector(flags Flags) *Selector {
	return &Selector{flags: flags}
}

// Targets returns both partitions while a full reindex is in flight, since
// either may become current when it completes. Otherwise it returns the
// current partition alone.
func (s *Selector) Targets(ctx context.Context) ([]types.Partition, error) {
	full, err := s.flags.FullReindex(ctx)
	if err != nil {
		return nil, fmt.Errorf("partition: read full reindex flag: %w", err)
	}
	if full {
		return append([]types.Partition(nil), types.AllPartitions...), nil
	}

	current, err := s.flags.CurrentPartition(ctx)
	if err != nil {
		return nil, fmt.Errorf("partition: read current partition: %w", err)
	}
	if !current.Valid() {
		return nil, fmt.Errorf("partition: current partition %d: %w", current, types.ErrInvalidPartition)
	}
	return []types.Partition{current}, nil
}
