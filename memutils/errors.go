package memutils

import "github.com/cockroachdb/errors"

// ErrStaleHandle is returned when a handle is used after it was dropped, or was never issued by the
// renderer it is being used with
var ErrStaleHandle = errors.New("handle does not refer to live geometry")

// ErrSizeMismatch is returned from Modify when the replacement producer declares a vertex or index
// count that does not match the spans held by the handle
var ErrSizeMismatch = errors.New("producer size does not match the allocated spans")

// ErrTopologyMismatch is returned from Modify when the replacement producer draws a different
// primitive topology than the renderer
var ErrTopologyMismatch = errors.New("producer topology does not match the renderer")

// ErrCountMismatch is the error raised from DebugCheckCount when a producer emits a different number
// of items than it declared
var ErrCountMismatch = errors.New("produced item count does not match declared count")

// ErrInvalidBuffer is returned by devices and recorders that receive a Buffer they did not create,
// or one that has already been released
var ErrInvalidBuffer = errors.New("buffer was not created by this device or has been released")

// ErrOutOfRange is returned when a copy or write would touch elements past a buffer's capacity
var ErrOutOfRange = errors.New("element range exceeds buffer capacity")

// ErrUnknownSpan is returned when a span is freed that the allocator does not hold as live
var ErrUnknownSpan = errors.New("span is not a live allocation")
