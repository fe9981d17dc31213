package mesh

import "github.com/vkngwrapper/core/v2/core1_0"

// LineMesh is a single segment drawn as a line strip
type LineMesh struct {
	From Vec2
	To   Vec2
	Col  Color
}

var _ Mesh[Vertex] = LineMesh{}

func (l LineMesh) VertexCount() uint32 { return 2 }
func (l LineMesh) IndexCount() uint32  { return 3 }

func (l LineMesh) Topology() core1_0.PrimitiveTopology {
	return core1_0.PrimitiveTopologyLineStrip
}

func (l LineMesh) AppendVertices(dst []Vertex) []Vertex {
	return append(dst,
		Vertex{Pos: l.From, Col: l.Col},
		Vertex{Pos: l.To, Col: l.Col},
	)
}

func (l LineMesh) AppendIndices(dst []uint32, base uint32) []uint32 {
	return appendStripIndices(dst, base, 2)
}
