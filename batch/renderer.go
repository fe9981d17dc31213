package batch

import (
	"context"
	"io"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/batcher/memutils"
	"github.com/vkngwrapper/batcher/memutils/spans"
	"github.com/vkngwrapper/batcher/mesh"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

const indexSize = 4

type liveGeometry[V any] struct {
	handle Handle
	mesh   mesh.Mesh[V]
}

// Renderer packs many independent meshes into one vertex buffer and one index buffer so that they
// can be drawn together. Push, Modify and Drop only update bookkeeping and queue work; the buffers
// are brought up to date once per frame by Generate.
//
// Every mesh in a Renderer shares one primitive topology, fixed by DefaultMesh when one is
// provided and otherwise by the first mesh pushed.
//
// Renderer is not safe for concurrent use.
type Renderer[V any] struct {
	logger      *slog.Logger
	device      Device
	flags       CreateFlags
	defaultMesh func() mesh.Mesh[V]

	topology    core1_0.PrimitiveTopology
	hasTopology bool

	vertexSpans  *spans.Allocator
	indexSpans   *spans.Allocator
	vertexBuffer Buffer
	indexBuffer  Buffer

	live   *swiss.Map[uint64, liveGeometry[V]]
	nextID uint64
	log    modificationLog[V]

	vertexScratch  []V
	indexScratch   []uint32
	restartScratch []uint32
}

// New creates a new Renderer
//
// logger - Receives debug tracing and warnings. May be nil.
//
// device - Creates and releases the vertex and index buffers
//
// options - Optional parameters: it is valid to leave all the fields blank
func New[V any](logger *slog.Logger, device Device, options CreateOptions[V]) (*Renderer[V], error) {
	if device == nil {
		return nil, errors.New("batch.New: device must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	var allocatorFlags spans.AllocatorFlags
	if options.Flags&RendererCreateCoalesceFreeSpans != 0 {
		allocatorFlags |= spans.AllocatorCoalesceFreeSpans
	}

	renderer := &Renderer[V]{
		logger:      logger,
		device:      device,
		flags:       options.Flags,
		defaultMesh: options.DefaultMesh,

		vertexSpans: spans.NewAllocator(allocatorFlags),
		indexSpans:  spans.NewAllocator(allocatorFlags),

		live: swiss.NewMap[uint64, liveGeometry[V]](64),
	}
	renderer.resetTopology()

	var err error
	if options.InitialVertexCapacity > 0 {
		renderer.vertexBuffer, err = device.CreateBuffer(BufferUsageVertex, elementSize[V](), options.InitialVertexCapacity)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create vertex buffer with %d elements", options.InitialVertexCapacity)
		}
	}

	if options.InitialIndexCapacity > 0 {
		renderer.indexBuffer, err = device.CreateBuffer(BufferUsageIndex, indexSize, options.InitialIndexCapacity)
		if err != nil {
			err = errors.Wrapf(err, "failed to create index buffer with %d elements", options.InitialIndexCapacity)
			if renderer.vertexBuffer != nil {
				err = errors.CombineErrors(err, device.ReleaseBuffer(renderer.vertexBuffer))
			}
			return nil, err
		}
	}

	return renderer, nil
}

func (r *Renderer[V]) resetTopology() {
	r.hasTopology = false
	if r.defaultMesh != nil {
		r.topology = r.defaultMesh().Topology()
		r.hasTopology = true
	}
}

// Topology returns the primitive topology shared by every mesh in the renderer, for building the
// pipeline that draws it. The second return value is false until the topology has been fixed.
func (r *Renderer[V]) Topology() (core1_0.PrimitiveTopology, bool) {
	return r.topology, r.hasTopology
}

// Push reserves space for m and queues its upload. The returned Handle is valid until it is
// passed to Drop. It panics if m's topology differs from the renderer's.
func (r *Renderer[V]) Push(m mesh.Mesh[V]) Handle {
	r.logger.Debug("Renderer::Push")

	topology := m.Topology()
	if !r.hasTopology {
		r.topology = topology
		r.hasTopology = true
	} else if topology != r.topology {
		panic(errors.AssertionFailedf("cannot push a %s mesh into a renderer drawing %s", topology, r.topology))
	}

	r.nextID++
	handle := Handle{
		id:     r.nextID,
		vertex: r.vertexSpans.Allocate(int(m.VertexCount())),
		index:  r.indexSpans.Allocate(int(m.IndexCount())),
	}

	r.live.Put(handle.id, liveGeometry[V]{handle: handle, mesh: m})
	r.log.Upload(m, handle)

	r.validateAfterMutation()
	return handle
}

// PushDefault pushes the mesh produced by CreateOptions.DefaultMesh. It panics if the renderer was
// created without one.
func (r *Renderer[V]) PushDefault() Handle {
	if r.defaultMesh == nil {
		panic(errors.AssertionFailedf("PushDefault called on a renderer created without CreateOptions.DefaultMesh"))
	}
	return r.Push(r.defaultMesh())
}

func (r *Renderer[V]) lookup(handle Handle) (liveGeometry[V], error) {
	geometry, ok := r.live.Get(handle.id)
	if handle.IsNull() || !ok || geometry.handle != handle {
		r.logger.LogAttrs(context.Background(), slog.LevelDebug, "Renderer rejected stale handle", slog.String("handle", handle.String()))
		return liveGeometry[V]{}, errors.Wrapf(memutils.ErrStaleHandle, "%s", handle)
	}

	return geometry, nil
}

// Modify replaces the geometry held by handle with m and queues its upload. m must declare the
// same vertex and index counts as the geometry it replaces.
func (r *Renderer[V]) Modify(m mesh.Mesh[V], handle Handle) error {
	r.logger.Debug("Renderer::Modify")

	geometry, err := r.lookup(handle)
	if err != nil {
		return err
	}

	if m.Topology() != r.topology {
		return errors.Wrapf(memutils.ErrTopologyMismatch, "%s draws %s but the mesh is %s", handle, r.topology, m.Topology())
	}

	if int(m.VertexCount()) != handle.vertex.Length || int(m.IndexCount()) != handle.index.Length {
		return errors.Wrapf(memutils.ErrSizeMismatch, "%s holds %d vertices and %d indices but the mesh declares %d and %d",
			handle, handle.vertex.Length, handle.index.Length, m.VertexCount(), m.IndexCount())
	}

	geometry.mesh = m
	r.live.Put(handle.id, geometry)
	r.log.Upload(m, handle)

	r.validateAfterMutation()
	return nil
}

// Drop queues the removal of the geometry held by handle and immediately makes its spans
// available to later pushes. The handle is invalid afterward.
func (r *Renderer[V]) Drop(handle Handle) error {
	r.logger.Debug("Renderer::Drop")

	_, err := r.lookup(handle)
	if err != nil {
		return err
	}

	if !r.vertexSpans.IsLive(handle.vertex) || !r.indexSpans.IsLive(handle.index) {
		return errors.Wrapf(memutils.ErrUnknownSpan, "%s is live but its spans are not allocated", handle)
	}

	err = r.vertexSpans.Free(handle.vertex)
	if err != nil {
		return errors.Wrap(err, "failed to free vertex span")
	}

	err = r.indexSpans.Free(handle.index)
	if err != nil {
		return errors.Wrap(err, "failed to free index span")
	}

	r.live.Delete(handle.id)
	r.log.Tombstone(handle)

	r.validateAfterMutation()
	return nil
}

// Get returns the mesh most recently pushed or modified for handle
func (r *Renderer[V]) Get(handle Handle) (mesh.Mesh[V], error) {
	geometry, err := r.lookup(handle)
	if err != nil {
		return nil, err
	}

	return geometry.mesh, nil
}

// Len is the number of live geometries
func (r *Renderer[V]) Len() int {
	return r.live.Count()
}

// PendingModifications is the number of queued uploads and removals that the next Generate will
// record
func (r *Renderer[V]) PendingModifications() int {
	return r.log.Len()
}

// Generate brings the vertex and index buffers up to date by recording commands into recorder.
// Buffers that are too small are replaced with buffers twice the size currently required, and
// their old contents are copied across; then every queued modification is written in the order
// it was made.
//
// It returns the buffers to draw from and the number of indices to draw. The buffers are nil if
// nothing has ever been pushed. Calling Generate again with nothing queued records nothing and
// returns the same values.
//
// Indices are 32 bits wide, so the vertex space may not extend past mesh.PrimitiveRestart and the
// index space may not hold more than math.MaxUint32 slots; Generate returns ErrOutOfRange
// without recording anything once either limit is passed.
//
// If an error is returned, modifications that were not recorded remain queued.
func (r *Renderer[V]) Generate(recorder Recorder) (vertices Buffer, indices Buffer, indexCount uint32, err error) {
	r.logger.Debug("Renderer::Generate")

	if uint64(r.vertexSpans.RequestedTotal()) > uint64(mesh.PrimitiveRestart) {
		return nil, nil, 0, errors.Wrapf(memutils.ErrOutOfRange, "%d vertex slots cannot be addressed by 32-bit indices", r.vertexSpans.RequestedTotal())
	}
	if uint64(r.indexSpans.RequestedTotal()) > math.MaxUint32 {
		return nil, nil, 0, errors.Wrapf(memutils.ErrOutOfRange, "%d index slots exceed a 32-bit draw count", r.indexSpans.RequestedTotal())
	}

	r.vertexBuffer, err = r.ensureCapacity(recorder, r.vertexBuffer, BufferUsageVertex, elementSize[V](), r.vertexSpans.RequestedTotal())
	if err != nil {
		return nil, nil, 0, err
	}

	r.indexBuffer, err = r.ensureCapacity(recorder, r.indexBuffer, BufferUsageIndex, indexSize, r.indexSpans.RequestedTotal())
	if err != nil {
		return nil, nil, 0, err
	}

	pending := r.log.Len()
	err = r.log.Drain(func(entry modification[V]) error {
		return r.record(recorder, entry)
	})
	if err != nil {
		return nil, nil, 0, err
	}

	indexCount = uint32(r.indexSpans.RequestedTotal())
	if pending > 0 {
		r.logger.LogAttrs(context.Background(), slog.LevelDebug, "Renderer::Generate recorded modifications",
			slog.Int("modifications", pending),
			slog.Int("vertexSlots", r.vertexSpans.RequestedTotal()),
			slog.Int("indexSlots", int(indexCount)),
		)
	}

	r.validateAfterMutation()
	return r.vertexBuffer, r.indexBuffer, indexCount, nil
}

func (r *Renderer[V]) ensureCapacity(recorder Recorder, current Buffer, usage BufferUsage, elementSize int, requested int) (Buffer, error) {
	var capacity int
	if current != nil {
		capacity = current.Capacity()
	}

	if !memutils.NeedsGrowth(requested, capacity) {
		return current, nil
	}

	newCapacity := memutils.GrownCapacity(requested)
	grown, err := r.device.CreateBuffer(usage, elementSize, newCapacity)
	if err != nil {
		return current, errors.Wrapf(err, "failed to grow %s buffer to %d elements", usage, newCapacity)
	}

	if current != nil {
		err = recorder.CopyBuffer(current, grown, capacity)
		if err != nil {
			err = errors.Wrapf(err, "failed to copy %s buffer contents", usage)
			return current, errors.CombineErrors(err, r.device.ReleaseBuffer(grown))
		}

		err = r.device.ReleaseBuffer(current)
		if err != nil {
			r.logger.LogAttrs(context.Background(), slog.LevelError, "failed to release outgrown buffer",
				slog.String("usage", usage.String()),
				slog.Any("error", err),
			)
		}
	}

	r.logger.LogAttrs(context.Background(), slog.LevelDebug, "Renderer::Generate grew buffer",
		slog.String("usage", usage.String()),
		slog.Int("oldCapacity", capacity),
		slog.Int("newCapacity", newCapacity),
	)

	return grown, nil
}

func (r *Renderer[V]) restartIndices(count int) []uint32 {
	for len(r.restartScratch) < count {
		r.restartScratch = append(r.restartScratch, mesh.PrimitiveRestart)
	}
	return r.restartScratch[:count]
}

func (r *Renderer[V]) record(recorder Recorder, entry modification[V]) error {
	handle := entry.handle

	if entry.IsTombstone() {
		if handle.index.IsEmpty() {
			return nil
		}

		err := recorder.WriteBuffer(r.indexBuffer, handle.index.Offset, sliceBytes(r.restartIndices(handle.index.Length)))
		if err != nil {
			return errors.Wrapf(err, "failed to clear indices of %s", handle)
		}
		return nil
	}

	// Dropped later on; the tombstone further down the log covers its indices
	if _, ok := r.live.Get(handle.id); !ok {
		return nil
	}

	r.vertexScratch = entry.mesh.AppendVertices(r.vertexScratch[:0])
	memutils.DebugCheckCount(len(r.vertexScratch), handle.vertex.Length, "vertices")
	r.indexScratch = entry.mesh.AppendIndices(r.indexScratch[:0], uint32(handle.vertex.Offset))
	memutils.DebugCheckCount(len(r.indexScratch), handle.index.Length, "indices")

	// Never write past the handle's spans, they may border live geometry
	vertices := r.vertexScratch
	if len(vertices) > handle.vertex.Length {
		vertices = vertices[:handle.vertex.Length]
	}
	indices := r.indexScratch
	if len(indices) > handle.index.Length {
		indices = indices[:handle.index.Length]
	}

	if len(vertices) > 0 {
		err := recorder.WriteBuffer(r.vertexBuffer, handle.vertex.Offset, sliceBytes(vertices))
		if err != nil {
			return errors.Wrapf(err, "failed to write vertices of %s", handle)
		}
	}

	if len(indices) > 0 {
		err := recorder.WriteBuffer(r.indexBuffer, handle.index.Offset, sliceBytes(indices))
		if err != nil {
			return errors.Wrapf(err, "failed to write indices of %s", handle)
		}
	}

	return nil
}

func bufferCapacity(buffer Buffer) int {
	if buffer == nil {
		return 0
	}
	return buffer.Capacity()
}

// CalculateStatistics fills stats with the current state of both address spaces
func (r *Renderer[V]) CalculateStatistics(stats *memutils.RendererStatistics) {
	stats.Clear()

	r.vertexSpans.AddDetailedStatistics(&stats.Vertices)
	stats.Vertices.CapacitySlots = bufferCapacity(r.vertexBuffer)

	r.indexSpans.AddDetailedStatistics(&stats.Indices)
	stats.Indices.CapacitySlots = bufferCapacity(r.indexBuffer)

	stats.PendingModifications = r.log.Len()
}

// PrintDetailedMap writes a json object describing every live and free span in both address spaces
func (r *Renderer[V]) PrintDetailedMap(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	obj.Name("Geometries").Int(r.live.Count())
	obj.Name("PendingModifications").Int(r.log.Len())

	vertexObj := obj.Name("Vertices").Object()
	vertexObj.Name("CapacitySlots").Int(bufferCapacity(r.vertexBuffer))
	r.vertexSpans.JSONData(vertexObj)
	vertexObj.End()

	indexObj := obj.Name("Indices").Object()
	indexObj.Name("CapacitySlots").Int(bufferCapacity(r.indexBuffer))
	r.indexSpans.JSONData(indexObj)
	indexObj.End()
}

// Validate checks the renderer's bookkeeping for internal consistency
func (r *Renderer[V]) Validate() error {
	err := r.vertexSpans.Validate()
	if err != nil {
		return errors.Wrap(err, "vertex space")
	}

	err = r.indexSpans.Validate()
	if err != nil {
		return errors.Wrap(err, "index space")
	}

	var vertexAllocations, indexAllocations int
	r.live.Iter(func(id uint64, geometry liveGeometry[V]) bool {
		if geometry.handle.id != id {
			err = errors.AssertionFailedf("geometry %s is stored under id %d", geometry.handle, id)
			return true
		}
		if geometry.mesh.Topology() != r.topology {
			err = errors.AssertionFailedf("geometry %s draws %s in a renderer drawing %s", geometry.handle, geometry.mesh.Topology(), r.topology)
			return true
		}
		if !geometry.handle.vertex.IsEmpty() {
			vertexAllocations++
		}
		if !geometry.handle.index.IsEmpty() {
			indexAllocations++
		}
		return false
	})
	if err != nil {
		return err
	}

	if vertexAllocations != r.vertexSpans.AllocationCount() {
		return errors.AssertionFailedf("%d geometries hold vertex spans but %d are allocated", vertexAllocations, r.vertexSpans.AllocationCount())
	}
	if indexAllocations != r.indexSpans.AllocationCount() {
		return errors.AssertionFailedf("%d geometries hold index spans but %d are allocated", indexAllocations, r.indexSpans.AllocationCount())
	}

	// Growth only happens in Generate, so buffers may be short while work is queued
	if r.log.Len() == 0 {
		if bufferCapacity(r.vertexBuffer) < r.vertexSpans.RequestedTotal() {
			return errors.AssertionFailedf("vertex buffer holds %d elements but %d are in use", bufferCapacity(r.vertexBuffer), r.vertexSpans.RequestedTotal())
		}
		if bufferCapacity(r.indexBuffer) < r.indexSpans.RequestedTotal() {
			return errors.AssertionFailedf("index buffer holds %d elements but %d are in use", bufferCapacity(r.indexBuffer), r.indexSpans.RequestedTotal())
		}
	}

	return nil
}

func (r *Renderer[V]) validateAfterMutation() {
	if r.flags&RendererCreateValidateAlways != 0 {
		memutils.MustValidate(r)
		return
	}

	memutils.DebugValidate(r)
}

// Destroy releases both buffers. Geometry that was never dropped is reported to the logger. The
// renderer is empty afterward and may be reused.
func (r *Renderer[V]) Destroy() error {
	r.logger.Debug("Renderer::Destroy")

	r.live.Iter(func(id uint64, geometry liveGeometry[V]) bool {
		r.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED GEOMETRY] geometry was not dropped before the renderer was destroyed",
			slog.String("handle", geometry.handle.String()),
		)
		return false
	})

	var err error
	if r.vertexBuffer != nil {
		err = errors.CombineErrors(err, r.device.ReleaseBuffer(r.vertexBuffer))
		r.vertexBuffer = nil
	}
	if r.indexBuffer != nil {
		err = errors.CombineErrors(err, r.device.ReleaseBuffer(r.indexBuffer))
		r.indexBuffer = nil
	}

	r.vertexSpans.Clear()
	r.indexSpans.Clear()
	r.live = swiss.NewMap[uint64, liveGeometry[V]](64)
	r.log = modificationLog[V]{}
	r.resetTopology()

	return err
}
