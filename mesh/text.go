package mesh

import (
	"github.com/chewxy/math32"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Glyph is one laid-out character. Pos is the top-left corner of the glyph relative to the
// run's origin.
type Glyph struct {
	Pos  Vec2
	Size Vec2
	Tex  TexturePosition
	Col  Color
}

// TextMesh draws a run of already laid-out glyphs as one quad per glyph, each at Origin plus its
// own Pos. Anchor shifts the whole run back by that fraction of its width and height, so (0.5,0.5)
// centers a run laid out from (0,0) on Origin.
type TextMesh struct {
	Glyphs []Glyph
	Origin Vec2
	Anchor Vec2
}

var _ Mesh[Vertex] = TextMesh{}

func (t TextMesh) VertexCount() uint32 { return uint32(len(t.Glyphs)) * quadVertexCount }
func (t TextMesh) IndexCount() uint32  { return uint32(len(t.Glyphs)) * quadIndexCount }

func (t TextMesh) Topology() core1_0.PrimitiveTopology {
	return core1_0.PrimitiveTopologyTriangleStrip
}

// Bounds returns the top-left and bottom-right corners of the glyphs before anchoring
func (t TextMesh) Bounds() (Vec2, Vec2) {
	if len(t.Glyphs) == 0 {
		return Vec2{}, Vec2{}
	}

	topLeft := t.Glyphs[0].Pos
	bottomRight := t.Glyphs[0].Pos.Add(t.Glyphs[0].Size)
	for _, glyph := range t.Glyphs[1:] {
		end := glyph.Pos.Add(glyph.Size)
		topLeft = Vec2{X: math32.Min(topLeft.X, glyph.Pos.X), Y: math32.Min(topLeft.Y, glyph.Pos.Y)}
		bottomRight = Vec2{X: math32.Max(bottomRight.X, end.X), Y: math32.Max(bottomRight.Y, end.Y)}
	}

	return topLeft, bottomRight
}

func (t TextMesh) offset() Vec2 {
	topLeft, bottomRight := t.Bounds()
	return t.Origin.Sub(bottomRight.Sub(topLeft).Mul(t.Anchor))
}

func (t TextMesh) AppendVertices(dst []Vertex) []Vertex {
	offset := t.offset()
	for _, glyph := range t.Glyphs {
		quad := QuadMesh{
			Pos:  glyph.Pos.Add(offset).Add(glyph.Size.Scale(0.5)),
			Size: glyph.Size,
			Col:  glyph.Col,
			Tex:  glyph.Tex,
		}
		dst = quad.AppendVertices(dst)
	}
	return dst
}

func (t TextMesh) AppendIndices(dst []uint32, base uint32) []uint32 {
	for i := range t.Glyphs {
		dst = appendStripIndices(dst, base+uint32(i)*quadVertexCount, quadVertexCount)
	}
	return dst
}
