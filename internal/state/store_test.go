package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/rtsync/internal/partition"
	"github.com/arkilian/rtsync/pkg/types"
)

var _ partition.Flags = (*Store)(nil)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStore_DefaultFlags(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	full, err := s.FullReindex(ctx)
	require.NoError(t, err)
	assert.False(t, full)

	online, err := s.OnlineIndexing(ctx)
	require.NoError(t, err)
	assert.False(t, online)

	p, err := s.CurrentPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Partition0, p)
}

func TestStore_FlagsPersist(t *testing.T) {
	s, path := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetFullReindex(ctx, true))
	require.NoError(t, s.SetOnlineIndexing(ctx, true))
	require.NoError(t, s.SetCurrentPartition(ctx, types.Partition1))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	full, err := reopened.FullReindex(ctx)
	require.NoError(t, err)
	assert.True(t, full)

	online, err := reopened.OnlineIndexing(ctx)
	require.NoError(t, err)
	assert.True(t, online)

	p, err := reopened.CurrentPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Partition1, p)

	require.NoError(t, reopened.SetFullReindex(ctx, false))
	full, err = reopened.FullReindex(ctx)
	require.NoError(t, err)
	assert.False(t, full)
}

func TestStore_SwitchPartition(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	p, err := s.SwitchPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Partition1, p)

	p, err = s.SwitchPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Partition0, p)

	current, err := s.CurrentPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Partition0, current)
}

func TestStore_FinishFullReindexIsIdempotent(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	p, err := s.FinishFullReindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Partition0, p, "no rebuild in flight")

	require.NoError(t, s.SetFullReindex(ctx, true))
	p, err = s.FinishFullReindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Partition1, p)

	full, err := s.FullReindex(ctx)
	require.NoError(t, err)
	assert.False(t, full)

	p, err = s.FinishFullReindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Partition1, p)

	current, err := s.CurrentPartition(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Partition1, current)
}

func TestStore_RejectsInvalidPartition(t *testing.T) {
	s, _ := openStore(t)
	err := s.SetCurrentPartition(context.Background(), types.Partition(2))
	assert.ErrorIs(t, err, types.ErrInvalidPartition)
}

func TestStore_CorruptPartitionFlag(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.setFlag(ctx, s.db, FlagCurrentPartition, 7))

	_, err := s.CurrentPartition(ctx)
	assert.ErrorIs(t, err, types.ErrInvalidPartition)
}

func TestStore_SelectorReadsStore(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	sel := partition.NewSelector(s)

	targets, err := sel.Targets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Partition{types.Partition0}, targets)

	require.NoError(t, s.SetFullReindex(ctx, true))
	targets, err = sel.Targets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Partition{types.Partition0, types.Partition1}, targets)
}

func TestStore_Waste(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	bm, err := s.Waste(ctx, "products")
	require.NoError(t, err)
	assert.True(t, bm.IsEmpty())

	require.NoError(t, s.AddWaste(ctx, "products", 4, 2))
	require.NoError(t, s.AddWaste(ctx, "products", 2, 1<<40))
	require.NoError(t, s.AddWaste(ctx, "articles", 9))
	require.NoError(t, s.AddWaste(ctx, "articles"))

	bm, err = s.Waste(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 4, 1 << 40}, bm.ToArray())

	names, err := s.WasteIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"articles", "products"}, names)

	require.NoError(t, s.ClearWaste(ctx, "products"))
	bm, err = s.Waste(ctx, "products")
	require.NoError(t, err)
	assert.True(t, bm.IsEmpty())

	names, err = s.WasteIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"articles"}, names)
}
