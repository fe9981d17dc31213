package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/batcher/batch"
	"github.com/vkngwrapper/batcher/mesh"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

type fakePhysicalDevice struct {
	core1_0.PhysicalDevice
	properties *core1_0.PhysicalDeviceMemoryProperties
}

func (p *fakePhysicalDevice) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return p.properties
}

type fakeMemory struct {
	core1_0.DeviceMemory
	freed bool
}

func (m *fakeMemory) Free(callbacks *driver.AllocationCallbacks) {
	m.freed = true
}

type fakeBuffer struct {
	core1_0.Buffer
	info      core1_0.BufferCreateInfo
	bound     core1_0.DeviceMemory
	destroyed bool
}

func (b *fakeBuffer) MemoryRequirements() *core1_0.MemoryRequirements {
	return &core1_0.MemoryRequirements{
		Size:           b.info.Size,
		Alignment:      16,
		MemoryTypeBits: 0x3,
	}
}

func (b *fakeBuffer) BindBufferMemory(memory core1_0.DeviceMemory, offset int) (common.VkResult, error) {
	b.bound = memory
	return core1_0.VKSuccess, nil
}

func (b *fakeBuffer) Destroy(callbacks *driver.AllocationCallbacks) {
	b.destroyed = true
}

type fakeDevice struct {
	core1_0.Device
	buffers   []*fakeBuffer
	memories  []*fakeMemory
	allocated []core1_0.MemoryAllocateInfo
	allocErr  error
}

func (d *fakeDevice) CreateBuffer(allocationCallbacks *driver.AllocationCallbacks, o core1_0.BufferCreateInfo) (core1_0.Buffer, common.VkResult, error) {
	buffer := &fakeBuffer{info: o}
	d.buffers = append(d.buffers, buffer)
	return buffer, core1_0.VKSuccess, nil
}

func (d *fakeDevice) AllocateMemory(allocationCallbacks *driver.AllocationCallbacks, o core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error) {
	if d.allocErr != nil {
		return nil, core1_0.VKErrorOutOfDeviceMemory, d.allocErr
	}

	memory := &fakeMemory{}
	d.memories = append(d.memories, memory)
	d.allocated = append(d.allocated, o)
	return memory, core1_0.VKSuccess, nil
}

func newTestDevice(t *testing.T, options CreateOptions) (*Device, *fakeDevice) {
	device := &fakeDevice{}
	physicalDevice := &fakePhysicalDevice{
		properties: &core1_0.PhysicalDeviceMemoryProperties{
			MemoryTypes: []core1_0.MemoryType{
				{PropertyFlags: core1_0.MemoryPropertyHostVisible, HeapIndex: 1},
				{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
			},
			MemoryHeaps: []core1_0.MemoryHeap{
				{Size: 1000000, Flags: core1_0.MemoryHeapDeviceLocal},
				{Size: 1000000},
			},
		},
	}

	vulkanDevice, err := New(nil, physicalDevice, device, options)
	require.NoError(t, err)
	return vulkanDevice, device
}

func TestDeviceCreateBuffer(t *testing.T) {
	var allocated, freed int
	var usages []batch.BufferUsage
	vulkanDevice, device := newTestDevice(t, CreateOptions{
		MemoryCallbackOptions: &MemoryCallbackOptions{
			Allocate: func(_ *Device, buffer *Buffer, userData any) {
				allocated += buffer.AllocationSize()
				usages = append(usages, buffer.Usage())
				require.Equal(t, 1, buffer.MemoryTypeIndex())
				require.NotNil(t, buffer.Memory())
				require.Equal(t, "heap", userData)
			},
			Free: func(_ *Device, buffer *Buffer, userData any) {
				freed += buffer.AllocationSize()
				// Called while the buffer can still be inspected
				require.False(t, buffer.VulkanBuffer().(*fakeBuffer).destroyed)
			},
			UserData: "heap",
		},
	})

	buffer, err := vulkanDevice.CreateBuffer(batch.BufferUsageIndex, 4, 10)
	require.NoError(t, err)
	require.Equal(t, 10, buffer.Capacity())
	require.Equal(t, 40, buffer.(*Buffer).Size())

	require.Len(t, device.buffers, 1)
	require.Equal(t, 40, device.buffers[0].info.Size)
	require.Equal(t, core1_0.BufferUsageIndexBuffer|core1_0.BufferUsageTransferSrc|core1_0.BufferUsageTransferDst, device.buffers[0].info.Usage)
	require.Equal(t, []core1_0.MemoryAllocateInfo{{AllocationSize: 40, MemoryTypeIndex: 1}}, device.allocated)
	require.Same(t, device.memories[0], device.buffers[0].bound)
	require.Equal(t, 40, vulkanDevice.HeapUsage(0))
	require.Equal(t, 40, allocated)
	require.Equal(t, []batch.BufferUsage{batch.BufferUsageIndex}, usages)

	require.NoError(t, vulkanDevice.ReleaseBuffer(buffer))
	require.False(t, device.buffers[0].destroyed)

	vulkanDevice.FrameComplete()
	require.True(t, device.buffers[0].destroyed)
	require.True(t, device.memories[0].freed)
	require.Equal(t, 0, vulkanDevice.HeapUsage(0))
	require.Equal(t, 40, freed)
}

func TestDeviceHeapLimit(t *testing.T) {
	vulkanDevice, device := newTestDevice(t, CreateOptions{
		HeapSizeLimits: []int{100, 0},
	})

	_, err := vulkanDevice.CreateBuffer(batch.BufferUsageVertex, 32, 3)
	require.NoError(t, err)

	_, err = vulkanDevice.CreateBuffer(batch.BufferUsageVertex, 32, 1)
	require.Error(t, err)
	require.True(t, device.buffers[1].destroyed)
	require.Len(t, device.memories, 1)
}

func TestDeviceAllocateFailure(t *testing.T) {
	vulkanDevice, device := newTestDevice(t, CreateOptions{})
	device.allocErr = core1_0.VKErrorOutOfDeviceMemory.ToError()

	_, err := vulkanDevice.CreateBuffer(batch.BufferUsageVertex, 32, 3)
	require.Error(t, err)
	require.True(t, device.buffers[0].destroyed)
	require.True(t, errors.Is(err, device.allocErr))
}

func TestDeviceBacksRenderer(t *testing.T) {
	vulkanDevice, device := newTestDevice(t, CreateOptions{})
	commands := &fakeCommands{}

	renderer, err := batch.New[mesh.Vertex](nil, vulkanDevice, batch.CreateOptions[mesh.Vertex]{})
	require.NoError(t, err)

	renderer.Push(mesh.QuadMesh{Size: mesh.Vec2{X: 1, Y: 1}})
	_, _, _, err = renderer.Generate(NewRecorder(commands))
	require.NoError(t, err)
	require.Len(t, commands.updates, 2)

	for i := 0; i < 3; i++ {
		renderer.Push(mesh.QuadMesh{Size: mesh.Vec2{X: 1, Y: 1}})
	}
	vertices, indices, indexCount, err := renderer.Generate(NewRecorder(commands))
	require.NoError(t, err)
	require.Equal(t, uint32(20), indexCount)
	require.Equal(t, 32, vertices.Capacity())
	require.Equal(t, 40, indices.Capacity())
	require.Len(t, commands.copies, 2)

	vulkanDevice.FrameComplete()
	require.True(t, device.buffers[0].destroyed)
	require.True(t, device.buffers[1].destroyed)
	require.False(t, device.buffers[2].destroyed)

	require.NoError(t, renderer.Destroy())
	vulkanDevice.Destroy()
	for _, buffer := range device.buffers {
		require.True(t, buffer.destroyed)
	}
}

func TestNewChecksHeapLimits(t *testing.T) {
	physicalDevice := &fakePhysicalDevice{
		properties: &core1_0.PhysicalDeviceMemoryProperties{
			MemoryHeaps: []core1_0.MemoryHeap{{Size: 1000}},
		},
	}

	_, err := New(nil, physicalDevice, &fakeDevice{}, CreateOptions{HeapSizeLimits: []int{1, 2}})
	require.Error(t, err)
}
