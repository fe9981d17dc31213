package batch_test

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/batcher/batch"
	mock_batch "github.com/vkngwrapper/batcher/batch/mocks"
	"github.com/vkngwrapper/batcher/memdevice"
	"github.com/vkngwrapper/batcher/mesh"
	"go.uber.org/mock/gomock"
)

var vertexSize = int(unsafe.Sizeof(mesh.Vertex{}))

// hostBuffers creates distinguishable buffers for mocks to hand out
func hostBuffers(t *testing.T, usage batch.BufferUsage, elementSize int, capacities ...int) []batch.Buffer {
	source := memdevice.New(nil)

	var buffers []batch.Buffer
	for _, capacity := range capacities {
		buffer, err := source.CreateBuffer(usage, elementSize, capacity)
		require.NoError(t, err)
		buffers = append(buffers, buffer)
	}
	return buffers
}

func TestGenerateGrowthRecordsCopyAndRelease(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := mock_batch.NewMockDevice(ctrl)
	recorder := mock_batch.NewMockRecorder(ctrl)

	vertexBuffers := hostBuffers(t, batch.BufferUsageVertex, vertexSize, 4, 16)
	indexBuffers := hostBuffers(t, batch.BufferUsageIndex, 4, 5, 20)

	device.EXPECT().CreateBuffer(batch.BufferUsageVertex, vertexSize, 4).Return(vertexBuffers[0], nil)
	device.EXPECT().CreateBuffer(batch.BufferUsageIndex, 4, 5).Return(indexBuffers[0], nil)

	renderer, err := batch.New[mesh.Vertex](nil, device, batch.CreateOptions[mesh.Vertex]{
		InitialVertexCapacity: 4,
		InitialIndexCapacity:  5,
	})
	require.NoError(t, err)

	renderer.Push(quad(1))
	renderer.Push(quad(2))

	gomock.InOrder(
		device.EXPECT().CreateBuffer(batch.BufferUsageVertex, vertexSize, 16).Return(vertexBuffers[1], nil),
		recorder.EXPECT().CopyBuffer(vertexBuffers[0], vertexBuffers[1], 4).Return(nil),
		device.EXPECT().ReleaseBuffer(vertexBuffers[0]).Return(nil),

		device.EXPECT().CreateBuffer(batch.BufferUsageIndex, 4, 20).Return(indexBuffers[1], nil),
		recorder.EXPECT().CopyBuffer(indexBuffers[0], indexBuffers[1], 5).Return(nil),
		device.EXPECT().ReleaseBuffer(indexBuffers[0]).Return(nil),

		recorder.EXPECT().WriteBuffer(vertexBuffers[1], 0, gomock.Len(4*vertexSize)).Return(nil),
		recorder.EXPECT().WriteBuffer(indexBuffers[1], 0, gomock.Len(20)).Return(nil),
		recorder.EXPECT().WriteBuffer(vertexBuffers[1], 4, gomock.Len(4*vertexSize)).Return(nil),
		recorder.EXPECT().WriteBuffer(indexBuffers[1], 5, gomock.Len(20)).Return(nil),
	)

	vertexBuf, indexBuf, indexCount, err := renderer.Generate(recorder)
	require.NoError(t, err)
	require.Same(t, vertexBuffers[1], vertexBuf)
	require.Same(t, indexBuffers[1], indexBuf)
	require.Equal(t, uint32(10), indexCount)
}

func TestGenerateCreateBufferFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := mock_batch.NewMockDevice(ctrl)
	recorder := mock_batch.NewMockRecorder(ctrl)

	renderer, err := batch.New[mesh.Vertex](nil, device, batch.CreateOptions[mesh.Vertex]{})
	require.NoError(t, err)
	renderer.Push(quad(1))

	outOfMemory := errors.New("out of device memory")
	device.EXPECT().CreateBuffer(batch.BufferUsageVertex, vertexSize, 8).Return(nil, outOfMemory)

	_, _, _, err = renderer.Generate(recorder)
	require.True(t, errors.Is(err, outOfMemory))
	require.Equal(t, 1, renderer.PendingModifications())
}

func TestGenerateCopyFailureReleasesNewBuffer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := mock_batch.NewMockDevice(ctrl)
	recorder := mock_batch.NewMockRecorder(ctrl)

	vertexBuffers := hostBuffers(t, batch.BufferUsageVertex, vertexSize, 2, 8)

	device.EXPECT().CreateBuffer(batch.BufferUsageVertex, vertexSize, 2).Return(vertexBuffers[0], nil)
	renderer, err := batch.New[mesh.Vertex](nil, device, batch.CreateOptions[mesh.Vertex]{
		InitialVertexCapacity: 2,
	})
	require.NoError(t, err)
	renderer.Push(quad(1))

	copyFailed := errors.New("command buffer is full")
	gomock.InOrder(
		device.EXPECT().CreateBuffer(batch.BufferUsageVertex, vertexSize, 8).Return(vertexBuffers[1], nil),
		recorder.EXPECT().CopyBuffer(vertexBuffers[0], vertexBuffers[1], 2).Return(copyFailed),
		device.EXPECT().ReleaseBuffer(vertexBuffers[1]).Return(nil),
	)

	_, _, _, err = renderer.Generate(recorder)
	require.True(t, errors.Is(err, copyFailed))
	require.Equal(t, 1, renderer.PendingModifications())
	require.Equal(t, 1, renderer.Len())
}

func TestGenerateWriteFailureKeepsRemainingModifications(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := mock_batch.NewMockDevice(ctrl)
	recorder := mock_batch.NewMockRecorder(ctrl)

	vertexBuffer := mock_batch.NewMockBuffer(ctrl)
	vertexBuffer.EXPECT().Capacity().Return(64).AnyTimes()
	indexBuffers := hostBuffers(t, batch.BufferUsageIndex, 4, 64)

	device.EXPECT().CreateBuffer(batch.BufferUsageVertex, vertexSize, 64).Return(vertexBuffer, nil)
	device.EXPECT().CreateBuffer(batch.BufferUsageIndex, 4, 64).Return(indexBuffers[0], nil)

	renderer, err := batch.New[mesh.Vertex](nil, device, batch.CreateOptions[mesh.Vertex]{
		InitialVertexCapacity: 64,
		InitialIndexCapacity:  64,
	})
	require.NoError(t, err)

	renderer.Push(quad(1))
	renderer.Push(quad(2))

	writeFailed := errors.New("device lost")
	gomock.InOrder(
		recorder.EXPECT().WriteBuffer(vertexBuffer, 0, gomock.Any()).Return(nil),
		recorder.EXPECT().WriteBuffer(indexBuffers[0], 0, gomock.Any()).Return(writeFailed),
	)

	_, _, _, err = renderer.Generate(recorder)
	require.True(t, errors.Is(err, writeFailed))
	require.Equal(t, 2, renderer.PendingModifications())

	gomock.InOrder(
		recorder.EXPECT().WriteBuffer(vertexBuffer, 0, gomock.Any()).Return(nil),
		recorder.EXPECT().WriteBuffer(indexBuffers[0], 0, gomock.Any()).Return(nil),
		recorder.EXPECT().WriteBuffer(vertexBuffer, 4, gomock.Any()).Return(nil),
		recorder.EXPECT().WriteBuffer(indexBuffers[0], 5, gomock.Any()).Return(nil),
	)

	_, _, indexCount, err := renderer.Generate(recorder)
	require.NoError(t, err)
	require.Equal(t, uint32(10), indexCount)
	require.Zero(t, renderer.PendingModifications())
}

func TestNewReleasesVertexBufferOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := mock_batch.NewMockDevice(ctrl)
	vertexBuffers := hostBuffers(t, batch.BufferUsageVertex, vertexSize, 8)

	createFailed := errors.New("no memory type")
	gomock.InOrder(
		device.EXPECT().CreateBuffer(batch.BufferUsageVertex, vertexSize, 8).Return(vertexBuffers[0], nil),
		device.EXPECT().CreateBuffer(batch.BufferUsageIndex, 4, 8).Return(nil, createFailed),
		device.EXPECT().ReleaseBuffer(vertexBuffers[0]).Return(nil),
	)

	_, err := batch.New[mesh.Vertex](nil, device, batch.CreateOptions[mesh.Vertex]{
		InitialVertexCapacity: 8,
		InitialIndexCapacity:  8,
	})
	require.True(t, errors.Is(err, createFailed))
}

func TestCreateFlagsString(t *testing.T) {
	flags := batch.RendererCreateCoalesceFreeSpans | batch.RendererCreateValidateAlways
	require.Contains(t, flags.String(), "RendererCreateCoalesceFreeSpans")
	require.Contains(t, flags.String(), "RendererCreateValidateAlways")
	require.Equal(t, "BufferUsageIndex", batch.BufferUsageIndex.String())
	require.Equal(t, "BufferUsageUnknown", batch.BufferUsage(7).String())
}
