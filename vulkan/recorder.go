package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/batcher/batch"
	"github.com/vkngwrapper/batcher/memutils"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// maxUpdateSize is the largest payload vkCmdUpdateBuffer accepts in one command
const maxUpdateSize = 65536

// CommandRecorder is the subset of core1_0.CommandBuffer used to record renderer transfers
type CommandRecorder interface {
	CmdCopyBuffer(srcBuffer core1_0.Buffer, dstBuffer core1_0.Buffer, copyRegions []core1_0.BufferCopy) error
	CmdUpdateBuffer(dstBuffer core1_0.Buffer, dstOffset int, dataSize int, data []byte)
	CmdPipelineBarrier(srcStageMask, dstStageMask core1_0.PipelineStageFlags, dependencies core1_0.DependencyFlags, memoryBarriers []core1_0.MemoryBarrier, bufferMemoryBarriers []core1_0.BufferMemoryBarrier, imageMemoryBarriers []core1_0.ImageMemoryBarrier) error
}

// transferRange is a byte range of one buffer touched by a transfer recorded since the last barrier
type transferRange struct {
	offset int
	size   int
	write  bool
}

func (r transferRange) conflicts(other transferRange) bool {
	if !r.write && !other.write {
		return false
	}
	return r.offset < other.offset+other.size && other.offset < r.offset+r.size
}

// Recorder implements batch.Recorder by recording transfer commands into a command buffer. The
// command buffer must be in the recording state and outside of a render pass.
//
// Vulkan does not order transfer commands against each other. The Recorder inserts a transfer
// to transfer barrier ahead of any command that reads or writes a range an earlier command wrote,
// or writes a range an earlier command read, since the last barrier. Once Generate has returned,
// call Finish so the transfers are made visible to vertex input before the batch is drawn.
type Recorder struct {
	commands CommandRecorder

	pending  *swiss.Map[*Buffer, []transferRange]
	recorded bool
}

var _ batch.Recorder = &Recorder{}

func NewRecorder(commandBuffer CommandRecorder) *Recorder {
	return &Recorder{
		commands: commandBuffer,
		pending:  swiss.NewMap[*Buffer, []transferRange](4),
	}
}

func (r *Recorder) hasConflict(buffer *Buffer, access transferRange) bool {
	ranges, ok := r.pending.Get(buffer)
	if !ok {
		return false
	}

	for _, earlier := range ranges {
		if earlier.conflicts(access) {
			return true
		}
	}
	return false
}

func (r *Recorder) track(buffer *Buffer, access transferRange) {
	ranges, _ := r.pending.Get(buffer)
	r.pending.Put(buffer, append(ranges, access))
	r.recorded = true
}

func (r *Recorder) transferBarrier() error {
	err := r.commands.CmdPipelineBarrier(core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer, 0,
		[]core1_0.MemoryBarrier{
			{
				SrcAccessMask: core1_0.AccessTransferWrite,
				DstAccessMask: core1_0.AccessTransferWrite | core1_0.AccessTransferRead,
			},
		}, nil, nil)
	if err != nil {
		return errors.Wrap(err, "failed to record transfer barrier")
	}

	r.pending.Clear()
	return nil
}

// Finish records a barrier that makes every transfer recorded so far visible to vertex and index
// reads. It records nothing if no transfer was recorded since the last call.
func (r *Recorder) Finish() error {
	if !r.recorded {
		return nil
	}

	err := r.commands.CmdPipelineBarrier(core1_0.PipelineStageTransfer, core1_0.PipelineStageVertexInput, 0,
		[]core1_0.MemoryBarrier{
			{
				SrcAccessMask: core1_0.AccessTransferWrite,
				DstAccessMask: core1_0.AccessVertexAttributeRead | core1_0.AccessIndexRead,
			},
		}, nil, nil)
	if err != nil {
		return errors.Wrap(err, "failed to record vertex input barrier")
	}

	r.pending.Clear()
	r.recorded = false
	return nil
}

func liveBuffer(buffer batch.Buffer) (*Buffer, error) {
	vulkanBuffer, ok := buffer.(*Buffer)
	if !ok || vulkanBuffer == nil || vulkanBuffer.buffer == nil {
		return nil, errors.Wrapf(memutils.ErrInvalidBuffer, "buffer %v", buffer)
	}
	return vulkanBuffer, nil
}

func (r *Recorder) CopyBuffer(src, dst batch.Buffer, count int) error {
	srcBuffer, err := liveBuffer(src)
	if err != nil {
		return err
	}

	dstBuffer, err := liveBuffer(dst)
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

	if count == 0 {
		return nil
	}

	size := count * srcBuffer.elementSize
	read := transferRange{offset: 0, size: size}
	write := transferRange{offset: 0, size: size, write: true}
	if r.hasConflict(srcBuffer, read) || r.hasConflict(dstBuffer, write) {
		err = r.transferBarrier()
		if err != nil {
			return err
		}
	}

	err = r.commands.CmdCopyBuffer(srcBuffer.buffer, dstBuffer.buffer, []core1_0.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	})
	if err != nil {
		return err
	}

	r.track(srcBuffer, read)
	r.track(dstBuffer, write)
	return nil
}

// WriteBuffer records one or more vkCmdUpdateBuffer commands. The byte offset and size of the write
// must both be multiples of 4.
func (r *Recorder) WriteBuffer(dst batch.Buffer, offset int, data []byte) error {
	dstBuffer, err := liveBuffer(dst)
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

	byteOffset := offset * dstBuffer.elementSize
	if byteOffset%4 != 0 || len(data)%4 != 0 {
		return errors.Newf("write of %d bytes at byte offset %d is not 4-byte aligned", len(data), byteOffset)
	}

	if len(data) == 0 {
		return nil
	}

	write := transferRange{offset: byteOffset, size: len(data), write: true}
	if r.hasConflict(dstBuffer, write) {
		err = r.transferBarrier()
		if err != nil {
			return err
		}
	}

	for len(data) > 0 {
		chunk := data
		if len(chunk) > maxUpdateSize {
			chunk = chunk[:maxUpdateSize]
		}

		r.commands.CmdUpdateBuffer(dstBuffer.buffer, byteOffset, len(chunk), chunk)
		byteOffset += len(chunk)
		data = data[len(chunk):]
	}

	r.track(dstBuffer, write)
	return nil
}
