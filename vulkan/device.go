// Package vulkan backs a batch.Renderer with Vulkan buffers. Each renderer buffer is a
// core1_0.Buffer bound to its own DeviceMemory, and transfers are recorded into a command buffer
// supplied by the application each frame.
package vulkan

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/batcher/batch"
	"github.com/vkngwrapper/batcher/memutils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"golang.org/x/exp/slog"
)

// CreateOptions contains optional settings when creating a Device. It is valid to leave every
// field blank.
type CreateOptions struct {
	// VulkanCallbacks is passed to every Vulkan call that creates or destroys an object
	VulkanCallbacks *driver.AllocationCallbacks
	// MemoryCallbackOptions is notified of every DeviceMemory allocation and free
	MemoryCallbackOptions *MemoryCallbackOptions

	// RequiredMemoryFlags must all be present on the memory type buffers are allocated from
	RequiredMemoryFlags core1_0.MemoryPropertyFlags
	// PreferredMemoryFlags are favored when choosing a memory type. When zero,
	// core1_0.MemoryPropertyDeviceLocal is preferred.
	PreferredMemoryFlags core1_0.MemoryPropertyFlags
	// NotPreferredMemoryFlags are avoided when choosing a memory type
	NotPreferredMemoryFlags core1_0.MemoryPropertyFlags

	// HeapSizeLimits, when provided, holds one byte limit per memory heap. Zero means the heap is
	// unlimited. Allocations that would exceed a limit fail with core1_0.VKErrorOutOfDeviceMemory.
	HeapSizeLimits []int
}

// Buffer is a renderer buffer backed by a Vulkan buffer and a dedicated DeviceMemory
type Buffer struct {
	usage       batch.BufferUsage
	elementSize int
	capacity    int

	buffer          core1_0.Buffer
	memory          core1_0.DeviceMemory
	memoryTypeIndex int
	allocationSize  int
}

var _ batch.Buffer = &Buffer{}

func (b *Buffer) Usage() batch.BufferUsage { return b.usage }
func (b *Buffer) ElementSize() int         { return b.elementSize }
func (b *Buffer) Capacity() int            { return b.capacity }

// VulkanBuffer is the buffer to bind when drawing
func (b *Buffer) VulkanBuffer() core1_0.Buffer { return b.buffer }

// Size is the size of the buffer's contents in bytes
func (b *Buffer) Size() int { return b.elementSize * b.capacity }

// Memory is the DeviceMemory bound to the buffer
func (b *Buffer) Memory() core1_0.DeviceMemory { return b.memory }

func (b *Buffer) MemoryTypeIndex() int { return b.memoryTypeIndex }

// AllocationSize is the size of Memory in bytes, which may exceed Size
func (b *Buffer) AllocationSize() int { return b.allocationSize }

// Device implements batch.Device over a core1_0.Device. Released buffers are held until
// FrameComplete is called, since the GPU may still be copying out of them.
//
// Device is not safe for concurrent use.
type Device struct {
	logger          *slog.Logger
	device          core1_0.Device
	callbacks       *driver.AllocationCallbacks
	memoryCallbacks memoryCallbacks

	memoryProperties *core1_0.PhysicalDeviceMemoryProperties
	heapLimits       []int
	heapBytes        [common.MaxMemoryHeaps]int

	requiredFlags     core1_0.MemoryPropertyFlags
	preferredFlags    core1_0.MemoryPropertyFlags
	notPreferredFlags core1_0.MemoryPropertyFlags

	bufferCount int
	released    []*Buffer
}

var _ batch.Device = &Device{}

// New creates a new Device
//
// logger - Receives debug tracing. May be nil.
//
// physicalDevice - The PhysicalDevice that owns the provided Device
//
// device - The Device that buffers will be created on
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, physicalDevice core1_0.PhysicalDevice, device core1_0.Device, options CreateOptions) (*Device, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	d := &Device{
		logger:    logger,
		device:    device,
		callbacks: options.VulkanCallbacks,

		memoryProperties: physicalDevice.MemoryProperties(),

		requiredFlags:     options.RequiredMemoryFlags,
		preferredFlags:    options.PreferredMemoryFlags,
		notPreferredFlags: options.NotPreferredMemoryFlags,
	}
	d.memoryCallbacks = memoryCallbacks{options: options.MemoryCallbackOptions, device: d}

	if d.preferredFlags == 0 {
		d.preferredFlags = core1_0.MemoryPropertyDeviceLocal
	}

	heapCount := len(d.memoryProperties.MemoryHeaps)
	if len(options.HeapSizeLimits) > 0 && len(options.HeapSizeLimits) != heapCount {
		return nil, errors.New("vulkan.CreateOptions.HeapSizeLimits was provided, but the length does not equal the number of PhysicalDevice heap types")
	}

	d.heapLimits = make([]int, heapCount)
	copy(d.heapLimits, options.HeapSizeLimits)

	return d, nil
}

func usageFlags(usage batch.BufferUsage) (core1_0.BufferUsageFlags, error) {
	flags := core1_0.BufferUsageTransferSrc | core1_0.BufferUsageTransferDst

	switch usage {
	case batch.BufferUsageVertex:
		return flags | core1_0.BufferUsageVertexBuffer, nil
	case batch.BufferUsageIndex:
		return flags | core1_0.BufferUsageIndexBuffer, nil
	}

	return 0, errors.Newf("unknown buffer usage %s", usage)
}

// CreateBuffer creates a Vulkan buffer holding capacity elements, and allocates and binds memory
// for it
func (d *Device) CreateBuffer(usage batch.BufferUsage, elementSize, capacity int) (batch.Buffer, error) {
	d.logger.Debug("Device::CreateBuffer")

	if elementSize <= 0 || capacity <= 0 {
		return nil, errors.Newf("cannot create a %s buffer of %d elements of size %d", usage, capacity, elementSize)
	}

	flags, err := usageFlags(usage)
	if err != nil {
		return nil, err
	}

	buffer, _, err := d.device.CreateBuffer(d.callbacks, core1_0.BufferCreateInfo{
		Size:        elementSize * capacity,
		Usage:       flags,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s buffer", usage)
	}

	memReqs := buffer.MemoryRequirements()
	memoryTypeIndex, err := FindMemoryTypeIndex(d.memoryProperties, memReqs.MemoryTypeBits, d.requiredFlags, d.preferredFlags, d.notPreferredFlags)
	if err != nil {
		buffer.Destroy(d.callbacks)
		return nil, err
	}

	heapIndex := d.memoryProperties.MemoryTypes[memoryTypeIndex].HeapIndex
	heapLimit := d.heapLimits[heapIndex]
	if heapLimit > 0 && d.heapBytes[heapIndex]+memReqs.Size > heapLimit {
		buffer.Destroy(d.callbacks)
		return nil, errors.Wrapf(core1_0.VKErrorOutOfDeviceMemory.ToError(),
			"allocating %d bytes would exceed the %d byte limit of heap %d", memReqs.Size, heapLimit, heapIndex)
	}

	memory, _, err := d.device.AllocateMemory(d.callbacks, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		buffer.Destroy(d.callbacks)
		return nil, errors.Wrapf(err, "failed to allocate %d bytes for %s buffer", memReqs.Size, usage)
	}

	_, err = buffer.BindBufferMemory(memory, 0)
	if err != nil {
		buffer.Destroy(d.callbacks)
		memory.Free(d.callbacks)
		return nil, errors.Wrapf(err, "failed to bind memory to %s buffer", usage)
	}

	d.heapBytes[heapIndex] += memReqs.Size
	d.bufferCount++

	d.logger.LogAttrs(context.Background(), slog.LevelDebug, "Device::CreateBuffer created buffer",
		slog.String("usage", usage.String()),
		slog.Int("capacity", capacity),
		slog.Int("bytes", memReqs.Size),
		slog.Int("memoryType", memoryTypeIndex),
	)

	created := &Buffer{
		usage:           usage,
		elementSize:     elementSize,
		capacity:        capacity,
		buffer:          buffer,
		memory:          memory,
		memoryTypeIndex: memoryTypeIndex,
		allocationSize:  memReqs.Size,
	}
	d.memoryCallbacks.allocated(created)

	return created, nil
}

// ReleaseBuffer queues a buffer to be destroyed by the next call to FrameComplete
func (d *Device) ReleaseBuffer(buffer batch.Buffer) error {
	vulkanBuffer, ok := buffer.(*Buffer)
	if !ok || vulkanBuffer == nil || vulkanBuffer.buffer == nil {
		return errors.Wrapf(memutils.ErrInvalidBuffer, "buffer %v", buffer)
	}

	d.released = append(d.released, vulkanBuffer)
	return nil
}

// FrameComplete destroys every buffer released so far. Call it once the GPU has finished
// executing all commands recorded before the buffers were released, for instance after waiting
// on the frame's fence.
func (d *Device) FrameComplete() {
	for _, buffer := range d.released {
		d.destroyBuffer(buffer)
	}

	clear(d.released)
	d.released = d.released[:0]
}

func (d *Device) destroyBuffer(buffer *Buffer) {
	d.memoryCallbacks.freeing(buffer)
	buffer.buffer.Destroy(d.callbacks)
	buffer.memory.Free(d.callbacks)

	heapIndex := d.memoryProperties.MemoryTypes[buffer.memoryTypeIndex].HeapIndex
	d.heapBytes[heapIndex] -= buffer.allocationSize
	d.bufferCount--

	buffer.buffer = nil
	buffer.memory = nil
}

// HeapUsage is the number of bytes currently allocated from a memory heap for renderer buffers
func (d *Device) HeapUsage(heapIndex int) int {
	return d.heapBytes[heapIndex]
}

// Destroy destroys every released buffer and reports buffers that were never released. It must
// only be called once the device is idle.
func (d *Device) Destroy() {
	d.FrameComplete()

	if d.bufferCount > 0 {
		d.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED BUFFER] renderer buffers were not released before the device was destroyed",
			slog.Int("count", d.bufferCount),
		)
	}
}
