package mesh

import (
	"github.com/vkngwrapper/core/v2/core1_0"
)

// PrimitiveRestart is the index value that ends the current strip. Index spans of dropped geometry
// are filled with it so that they draw nothing.
const PrimitiveRestart uint32 = 0xFFFFFFFF

// Mesh produces the vertices and indices for a single piece of geometry. The declared counts must
// not change for the lifetime of a value, and the Append methods must emit exactly that many items
// each time they are called.
type Mesh[V any] interface {
	VertexCount() uint32
	IndexCount() uint32
	// AppendVertices appends VertexCount vertices to dst and returns the extended slice
	AppendVertices(dst []V) []V
	// AppendIndices appends IndexCount indices to dst. Indices are relative to base, which is the
	// vertex slot where this mesh's first vertex will be written.
	AppendIndices(dst []uint32, base uint32) []uint32
	Topology() core1_0.PrimitiveTopology
}

type Vec2 struct {
	X, Y float32
}

func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

func (v Vec2) Mul(other Vec2) Vec2 {
	return Vec2{X: v.X * other.X, Y: v.Y * other.Y}
}

func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

type Color struct {
	R, G, B, A float32
}

var White = Color{R: 1, G: 1, B: 1, A: 1}

// TexturePosition is a rectangle in normalized texture coordinates
type TexturePosition struct {
	TopLeft     Vec2
	BottomRight Vec2
}

// FullTexture maps the entire texture
var FullTexture = TexturePosition{BottomRight: Vec2{X: 1, Y: 1}}

// Vertex is the vertex layout produced by the meshes in this package
type Vertex struct {
	Pos Vec2
	Tex Vec2
	Col Color
}
