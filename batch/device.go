package batch

//go:generate mockgen -source device.go -destination ./mocks/device.go -package mock_batch

// BufferUsage identifies which of the renderer's two address spaces a buffer backs
type BufferUsage uint32

var bufferUsageMapping = map[BufferUsage]string{
	BufferUsageVertex: "BufferUsageVertex",
	BufferUsageIndex:  "BufferUsageIndex",
}

func (u BufferUsage) String() string {
	str, ok := bufferUsageMapping[u]
	if !ok {
		return "BufferUsageUnknown"
	}
	return str
}

const (
	BufferUsageVertex BufferUsage = iota
	BufferUsageIndex
)

// Buffer is a device buffer holding Capacity elements of ElementSize bytes each
type Buffer interface {
	Usage() BufferUsage
	ElementSize() int
	Capacity() int
}

// Device creates and releases the buffers that back a renderer
type Device interface {
	// CreateBuffer creates a buffer able to hold capacity elements of elementSize bytes. It must be
	// usable both as a copy source and a copy destination.
	CreateBuffer(usage BufferUsage, elementSize, capacity int) (Buffer, error)
	// ReleaseBuffer gives up the renderer's ownership of a buffer. The device must not destroy the
	// buffer until every command recorded against it so far has finished executing.
	ReleaseBuffer(buffer Buffer) error
}

// Recorder records transfer commands into the current frame. Commands are executed in the order
// they were recorded. Nothing recorded is executed until the owner of the Recorder submits it.
type Recorder interface {
	// CopyBuffer copies elements [0, count) of src into elements [0, count) of dst
	CopyBuffer(src, dst Buffer, count int) error
	// WriteBuffer writes data into dst starting at element offset. The recorder must copy data
	// before returning, as the caller reuses it.
	WriteBuffer(dst Buffer, offset int, data []byte) error
}
