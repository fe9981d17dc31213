package batch

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/batcher/memutils"
	"github.com/vkngwrapper/batcher/mesh"
)

type nopDevice struct{}

func (nopDevice) CreateBuffer(usage BufferUsage, elementSize, capacity int) (Buffer, error) {
	return nil, errors.New("not supported")
}

func (nopDevice) ReleaseBuffer(buffer Buffer) error { return nil }

func TestDropLeavesStateUntouchedWhenSpansAreMissing(t *testing.T) {
	renderer, err := New[mesh.Vertex](nil, nopDevice{}, CreateOptions[mesh.Vertex]{})
	require.NoError(t, err)

	handle := renderer.Push(mesh.QuadMesh{Size: mesh.Vec2{X: 1, Y: 1}})
	require.NoError(t, renderer.indexSpans.Free(handle.index))

	err = renderer.Drop(handle)
	require.True(t, errors.Is(err, memutils.ErrUnknownSpan))

	require.Equal(t, 1, renderer.Len())
	require.Equal(t, 1, renderer.PendingModifications())
	require.True(t, renderer.vertexSpans.IsLive(handle.vertex))
	require.Equal(t, 0, renderer.vertexSpans.FreeSpanCount())
}
