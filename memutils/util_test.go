package memutils_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/batcher/memutils"
)

func TestGrownCapacity(t *testing.T) {
	require.False(t, memutils.NeedsGrowth(8, 8))
	require.True(t, memutils.NeedsGrowth(9, 8))
	require.Equal(t, 18, memutils.GrownCapacity(9))
	require.Equal(t, uint32(10), memutils.GrownCapacity(uint32(5)))
}

func TestCheckRange(t *testing.T) {
	require.NoError(t, memutils.CheckRange(0, 8, 8))
	require.NoError(t, memutils.CheckRange(8, 0, 8))

	err := memutils.CheckRange(4, 5, 8)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfRange))

	require.Error(t, memutils.CheckRange(-1, 1, 8))
}

func TestDetailedStatistics(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	stats.AddAllocation(4)
	stats.AddAllocation(10)
	stats.AddFreeSpan(3)

	var other memutils.DetailedStatistics
	other.Clear()
	other.AddAllocation(2)
	other.AddFreeSpan(7)
	other.RequestedSlots = 9

	stats.AddDetailedStatistics(&other)

	require.Equal(t, 3, stats.AllocationCount)
	require.Equal(t, 16, stats.AllocationSlots)
	require.Equal(t, 2, stats.AllocationSizeMin)
	require.Equal(t, 10, stats.AllocationSizeMax)
	require.Equal(t, 2, stats.FreeSpanCount)
	require.Equal(t, 10, stats.FreeSlots)
	require.Equal(t, 3, stats.FreeSpanSizeMin)
	require.Equal(t, 7, stats.FreeSpanSizeMax)
	require.Equal(t, 9, stats.RequestedSlots)
}
