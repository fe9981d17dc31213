// Package memdevice implements the batch.Device and batch.Recorder collaborators in host memory.
// Commands are recorded into a list and only executed by Submit, which makes it suitable for
// headless use and for checking exactly what a renderer records each frame.
package memdevice

import (
	"context"
	"io"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/batcher/batch"
	"github.com/vkngwrapper/batcher/memutils"
	"golang.org/x/exp/slog"
)

type Buffer struct {
	device      *Device
	id          int
	usage       batch.BufferUsage
	elementSize int
	capacity    int
	data        []byte

	// releasing is set when the buffer has been released but commands recorded before the release
	// have not been submitted yet
	releasing bool
	released  bool
}

var _ batch.Buffer = &Buffer{}

func (b *Buffer) Usage() batch.BufferUsage { return b.usage }
func (b *Buffer) ElementSize() int         { return b.elementSize }
func (b *Buffer) Capacity() int            { return b.capacity }
func (b *Buffer) ID() int                  { return b.id }

// Released reports whether the buffer has been released and every command using it has executed
func (b *Buffer) Released() bool { return b.released }

// Bytes is the buffer's current contents. It is nil once the buffer is released.
func (b *Buffer) Bytes() []byte { return b.data }

type CommandType int

const (
	CommandCopy CommandType = iota
	CommandWrite
)

var commandTypeMapping = map[CommandType]string{
	CommandCopy:  "CommandCopy",
	CommandWrite: "CommandWrite",
}

func (t CommandType) String() string {
	str, ok := commandTypeMapping[t]
	if !ok {
		return "CommandTypeUnknown"
	}
	return str
}

// Command is a recorded transfer. Copies use Src, Dst and Count; writes use Dst, Offset and Data.
type Command struct {
	Type   CommandType
	Src    *Buffer
	Dst    *Buffer
	Count  int
	Offset int
	Data   []byte
}

// Device is a host memory batch.Device that also serves as its own batch.Recorder
//
// Device is not safe for concurrent use.
type Device struct {
	logger *slog.Logger

	nextID         int
	liveBuffers    int
	commands       []Command
	pendingRelease []*Buffer
}

var _ batch.Device = &Device{}
var _ batch.Recorder = &Device{}

func New(logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	return &Device{logger: logger}
}

func (d *Device) CreateBuffer(usage batch.BufferUsage, elementSize, capacity int) (batch.Buffer, error) {
	if elementSize <= 0 || capacity <= 0 {
		return nil, errors.Newf("cannot create a %s buffer of %d elements of size %d", usage, capacity, elementSize)
	}

	d.nextID++
	d.liveBuffers++

	d.logger.LogAttrs(context.Background(), slog.LevelDebug, "Device::CreateBuffer",
		slog.Int("id", d.nextID),
		slog.String("usage", usage.String()),
		slog.Int("capacity", capacity),
	)

	return &Buffer{
		device:      d,
		id:          d.nextID,
		usage:       usage,
		elementSize: elementSize,
		capacity:    capacity,
		data:        make([]byte, elementSize*capacity),
	}, nil
}

func (d *Device) ownedBuffer(buffer batch.Buffer) (*Buffer, error) {
	owned, ok := buffer.(*Buffer)
	if !ok || owned == nil || owned.device != d || owned.released || owned.releasing {
		return nil, errors.Wrapf(memutils.ErrInvalidBuffer, "buffer %v", buffer)
	}

	return owned, nil
}

// ReleaseBuffer queues the buffer to be freed at the end of the next Submit
func (d *Device) ReleaseBuffer(buffer batch.Buffer) error {
	owned, err := d.ownedBuffer(buffer)
	if err != nil {
		return err
	}

	owned.releasing = true
	d.pendingRelease = append(d.pendingRelease, owned)
	return nil
}

func (d *Device) CopyBuffer(src, dst batch.Buffer, count int) error {
	srcBuffer, err := d.ownedBuffer(src)
	if err != nil {
		return err
	}

	dstBuffer, err := d.ownedBuffer(dst)
	if err != nil {
		return err
	}

	if srcBuffer.elementSize != dstBuffer.elementSize {
		return errors.Newf("cannot copy between buffers with element sizes %d and %d", srcBuffer.elementSize, dstBuffer.elementSize)
	}

	err = memutils.CheckRange(0, count, srcBuffer.capacity)
	if err != nil {
		return err
	}

	err = memutils.CheckRange(0, count, dstBuffer.capacity)
	if err != nil {
		return err
	}

	d.commands = append(d.commands, Command{
		Type:  CommandCopy,
		Src:   srcBuffer,
		Dst:   dstBuffer,
		Count: count,
	})
	return nil
}

func (d *Device) WriteBuffer(dst batch.Buffer, offset int, data []byte) error {
	dstBuffer, err := d.ownedBuffer(dst)
	if err != nil {
		return err
	}

	if len(data)%dstBuffer.elementSize != 0 {
		return errors.Newf("write of %d bytes is not a whole number of %d byte elements", len(data), dstBuffer.elementSize)
	}

	err = memutils.CheckRange(offset, len(data)/dstBuffer.elementSize, dstBuffer.capacity)
	if err != nil {
		return err
	}

	d.commands = append(d.commands, Command{
		Type:   CommandWrite,
		Dst:    dstBuffer,
		Offset: offset,
		Data:   append([]byte(nil), data...),
	})
	return nil
}

// Commands returns the commands recorded since the last Submit
func (d *Device) Commands() []Command {
	return d.commands
}

// LiveBuffers is the number of buffers created and not yet freed by Submit
func (d *Device) LiveBuffers() int {
	return d.liveBuffers
}

// Submit executes every recorded command in order, then frees the buffers released before it
func (d *Device) Submit() {
	for _, command := range d.commands {
		switch command.Type {
		case CommandCopy:
			size := command.Count * command.Src.elementSize
			copy(command.Dst.data[:size], command.Src.data[:size])
		case CommandWrite:
			start := command.Offset * command.Dst.elementSize
			copy(command.Dst.data[start:], command.Data)
		}
	}

	d.logger.LogAttrs(context.Background(), slog.LevelDebug, "Device::Submit",
		slog.Int("commands", len(d.commands)),
		slog.Int("released", len(d.pendingRelease)),
	)

	clear(d.commands)
	d.commands = d.commands[:0]

	for _, buffer := range d.pendingRelease {
		buffer.released = true
		buffer.data = nil
		d.liveBuffers--
	}
	clear(d.pendingRelease)
	d.pendingRelease = d.pendingRelease[:0]
}

// ReadIndices returns a copy of the full contents of an index buffer
func ReadIndices(buffer batch.Buffer) ([]uint32, error) {
	return ReadVertices[uint32](buffer)
}

// ReadVertices returns a copy of the full contents of a buffer whose elements are of type V
func ReadVertices[V any](buffer batch.Buffer) ([]V, error) {
	owned, ok := buffer.(*Buffer)
	if !ok || owned == nil || owned.released {
		return nil, errors.Wrapf(memutils.ErrInvalidBuffer, "buffer %v", buffer)
	}

	var zero V
	if int(unsafe.Sizeof(zero)) != owned.elementSize {
		return nil, errors.Newf("buffer holds %d byte elements, not %d", owned.elementSize, unsafe.Sizeof(zero))
	}

	out := make([]V, owned.capacity)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(out))), len(owned.data)), owned.data)
	return out, nil
}
