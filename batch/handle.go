package batch

import (
	"fmt"

	"github.com/vkngwrapper/batcher/memutils/spans"
)

// Handle identifies one piece of geometry pushed into a Renderer, along with the vertex and index
// spans it occupies. Handles are small values and may be copied and compared freely. A Handle
// stays valid, and its spans stay fixed, until it is dropped.
type Handle struct {
	id     uint64
	vertex spans.Span
	index  spans.Span
}

// NullHandle is never issued by a Renderer
var NullHandle = Handle{}

func (h Handle) IsNull() bool { return h.id == 0 }

// VertexSpan is the range of vertex slots the geometry occupies
func (h Handle) VertexSpan() spans.Span { return h.vertex }

// IndexSpan is the range of index slots the geometry occupies
func (h Handle) IndexSpan() spans.Span { return h.index }

func (h Handle) String() string {
	if h.IsNull() {
		return "Handle(null)"
	}
	return fmt.Sprintf("Handle(%d, vertices %s, indices %s)", h.id, h.vertex, h.index)
}
