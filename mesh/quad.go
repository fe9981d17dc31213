package mesh

import (
	"github.com/chewxy/math32"
	"github.com/vkngwrapper/core/v2/core1_0"
)

const (
	quadVertexCount = 4
	quadIndexCount  = 5
)

func appendStripIndices(dst []uint32, base uint32, vertexCount uint32) []uint32 {
	for i := uint32(0); i < vertexCount; i++ {
		dst = append(dst, base+i)
	}
	return append(dst, PrimitiveRestart)
}

// QuadMesh is an axis-aligned rectangle centered on Pos, optionally rotated about its center by
// Rotation radians. It draws as a 4-vertex triangle strip.
type QuadMesh struct {
	Pos      Vec2
	Size     Vec2
	Rotation float32
	Col      Color
	Tex      TexturePosition
}

var _ Mesh[Vertex] = QuadMesh{}

func (q QuadMesh) VertexCount() uint32 { return quadVertexCount }
func (q QuadMesh) IndexCount() uint32  { return quadIndexCount }

func (q QuadMesh) Topology() core1_0.PrimitiveTopology {
	return core1_0.PrimitiveTopologyTriangleStrip
}

func (q QuadMesh) AppendVertices(dst []Vertex) []Vertex {
	half := q.Size.Scale(0.5)
	topLeft := Vec2{X: -half.X, Y: -half.Y}
	bottomRight := half

	corners := [quadVertexCount]Vec2{
		{X: topLeft.X, Y: topLeft.Y},
		{X: topLeft.X, Y: bottomRight.Y},
		{X: bottomRight.X, Y: topLeft.Y},
		{X: bottomRight.X, Y: bottomRight.Y},
	}
	tex := [quadVertexCount]Vec2{
		{X: q.Tex.TopLeft.X, Y: q.Tex.BottomRight.Y},
		{X: q.Tex.TopLeft.X, Y: q.Tex.TopLeft.Y},
		{X: q.Tex.BottomRight.X, Y: q.Tex.BottomRight.Y},
		{X: q.Tex.BottomRight.X, Y: q.Tex.TopLeft.Y},
	}

	sin, cos := float32(0), float32(1)
	if q.Rotation != 0 {
		sin, cos = math32.Sin(q.Rotation), math32.Cos(q.Rotation)
	}

	for i, corner := range corners {
		rotated := Vec2{
			X: corner.X*cos - corner.Y*sin,
			Y: corner.X*sin + corner.Y*cos,
		}
		dst = append(dst, Vertex{
			Pos: q.Pos.Add(rotated),
			Tex: tex[i],
			Col: q.Col,
		})
	}

	return dst
}

func (q QuadMesh) AppendIndices(dst []uint32, base uint32) []uint32 {
	return appendStripIndices(dst, base, quadVertexCount)
}

// IsoQuadMesh is a diamond inscribed in the rectangle whose top-left corner is Pos, for isometric
// tiles. It maps the full texture.
type IsoQuadMesh struct {
	Pos  Vec2
	Size Vec2
	Col  Color
}

var _ Mesh[Vertex] = IsoQuadMesh{}

func (q IsoQuadMesh) VertexCount() uint32 { return quadVertexCount }
func (q IsoQuadMesh) IndexCount() uint32  { return quadIndexCount }

func (q IsoQuadMesh) Topology() core1_0.PrimitiveTopology {
	return core1_0.PrimitiveTopologyTriangleStrip
}

func (q IsoQuadMesh) AppendVertices(dst []Vertex) []Vertex {
	corners := [quadVertexCount]Vec2{
		{X: 0, Y: 0.5},
		{X: 0.5, Y: 1},
		{X: 0.5, Y: 0},
		{X: 1, Y: 0.5},
	}
	tex := [quadVertexCount]Vec2{
		{X: 0, Y: 0},
		{X: 0, Y: 1},
		{X: 1, Y: 0},
		{X: 1, Y: 1},
	}

	for i, corner := range corners {
		dst = append(dst, Vertex{
			Pos: q.Pos.Add(q.Size.Mul(corner)),
			Tex: tex[i],
			Col: q.Col,
		})
	}

	return dst
}

func (q IsoQuadMesh) AppendIndices(dst []uint32, base uint32) []uint32 {
	return appendStripIndices(dst, base, quadVertexCount)
}
