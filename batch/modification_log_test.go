package batch

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/batcher/mesh"
)

func TestModificationLogDrainStopsOnError(t *testing.T) {
	var log modificationLog[mesh.Vertex]
	log.Upload(mesh.QuadMesh{}, Handle{id: 1})
	log.Tombstone(Handle{id: 2})
	log.Upload(mesh.LineMesh{}, Handle{id: 3})
	require.Equal(t, 3, log.Len())

	failure := errors.New("failed")
	var applied []uint64
	err := log.Drain(func(entry modification[mesh.Vertex]) error {
		if entry.handle.id == 2 {
			require.True(t, entry.IsTombstone())
			return failure
		}
		applied = append(applied, entry.handle.id)
		return nil
	})
	require.True(t, errors.Is(err, failure))
	require.Equal(t, []uint64{1}, applied)
	require.Equal(t, 2, log.Len())

	applied = nil
	err = log.Drain(func(entry modification[mesh.Vertex]) error {
		applied = append(applied, entry.handle.id)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 3}, applied)
	require.Zero(t, log.Len())
}
