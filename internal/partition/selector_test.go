package partition

import (
	"context"
	"errors"
	"testing"

	"github.com/arkilian/rtsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingFlags struct{ *StaticFlags }

func (failingFlags) FullReindex(context.Context) (bool, error) {
	return false, errors.New("lock service unavailable")
}

func TestSelector_CurrentPartitionOutsideRebuild(t *testing.T) {
	flags := NewStaticFlags(types.Partition1)
	s := NewSelector(flags)

	targets, err := s.Targets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Partition{types.Partition1}, targets)
}

func TestSelector_BothPartitionsDuringFullReindex(t *testing.T) {
	flags := NewStaticFlags(types.Partition1)
	flags.SetFullReindex(true)
	s := NewSelector(flags)

	targets, err := s.Targets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Partition{types.Partition0, types.Partition1}, targets)
}

func TestSelector_ReevaluatesEveryCall(t *testing.T) {
	flags := NewStaticFlags(types.Partition0)
	s := NewSelector(flags)
	ctx := context.Background()

	first, err := s.Targets(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	flags.SetFullReindex(true)
	second, err := s.Targets(ctx)
	require.NoError(t, err)
	assert.Len(t, second, 2)

	flags.SetFullReindex(false)
	flags.SetCurrent(types.Partition1)
	third, err := s.Targets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Partition{types.Partition1}, third)
}

func TestSelector_InvalidCurrentPartition(t *testing.T) {
	s := NewSelector(NewStaticFlags(types.Partition(3)))
	_, err := s.Targets(context.Background())
	assert.ErrorIs(t, err, types.ErrInvalidPartition)
}

func TestSelector_FlagErrorPropagates(t *testing.T) {
	s := NewSelector(failingFlags{NewStaticFlags(types.Partition0)})
	_, err := s.Targets(context.Background())
	assert.Error(t, err)
}
