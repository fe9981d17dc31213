package vulkan

// BufferMemoryCallback is called with a renderer buffer whose DeviceMemory was just allocated,
// or is about to be freed. buffer.Memory, buffer.MemoryTypeIndex and buffer.AllocationSize
// describe the allocation.
type BufferMemoryCallback func(device *Device, buffer *Buffer, userData any)

// MemoryCallbackOptions lets an application observe the device memory behind every vertex and
// index buffer the Device creates and destroys, for instance to keep its own usage totals
type MemoryCallbackOptions struct {
	Allocate BufferMemoryCallback
	Free     BufferMemoryCallback
	UserData any
}

type memoryCallbacks struct {
	options *MemoryCallbackOptions
	device  *Device
}

func (c memoryCallbacks) allocated(buffer *Buffer) {
	if c.options != nil && c.options.Allocate != nil {
		c.options.Allocate(c.device, buffer, c.options.UserData)
	}
}

func (c memoryCallbacks) freeing(buffer *Buffer) {
	if c.options != nil && c.options.Free != nil {
		c.options.Free(c.device, buffer, c.options.UserData)
	}
}
