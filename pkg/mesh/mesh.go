// Package mesh defines the render-level triangle representation consumed
// and produced by the fracture pipeline: vertices carry a full tangent
// frame, four UV channels and a color, and triangles carry the submesh
// and smoothing information needed to rebuild render buffers.
package mesh

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

// UVChannels is the number of texture coordinate sets per vertex.
const UVChannels = 4

// Vertex is a render vertex.
type Vertex struct {
	Position mgl64.Vec3
	Normal   mgl64.Vec3
	Tangent  mgl64.Vec3
	Binormal mgl64.Vec3
	UV       [UVChannels]mgl64.Vec2
	Color    mgl64.Vec4
}

// NoExtraData marks a triangle of the original surface. Triangles created
// by a fracture carry the index of their material frame instead.
const NoExtraData = ^uint32(0)

// RenderTriangle is a triangle of render vertices.
type RenderTriangle struct {
	Vertices       [3]Vertex
	SubmeshIndex   int32
	SmoothingMask  uint32
	ExtraDataIndex uint32
}

// Normal returns the unnormalized geometric normal (edge cross product).
func (t *RenderTriangle) Normal() mgl64.Vec3 {
	v := t.Vertices
	return v[1].Position.Sub(v[0].Position).Cross(v[2].Position.Sub(v[0].Position))
}

// Area returns the triangle's area.
func (t *RenderTriangle) Area() float64 {
	return 0.5 * t.Normal().Len()
}

// Centroid returns the average vertex position.
func (t *RenderTriangle) Centroid() mgl64.Vec3 {
	v := t.Vertices
	return v[0].Position.Add(v[1].Position).Add(v[2].Position).Mul(1.0 / 3.0)
}

// Bounds returns the box around the triangle's vertices.
func (t *RenderTriangle) Bounds() csgmath.Bounds {
	b := csgmath.EmptyBounds()
	for i := range t.Vertices {
		b.Include(t.Vertices[i].Position)
	}
	return b
}

// Transform maps positions through tm and the tangent frame through the
// linear part, renormalizing directions. Winding is reversed when tm
// mirrors space.
func (t *RenderTriangle) Transform(tm mgl64.Mat4) {
	normalTM := csgmath.Inverse34(tm).Transpose()
	for i := range t.Vertices {
		v := &t.Vertices[i]
		v.Position = csgmath.TransformPos(tm, v.Position)
		v.Normal = csgmath.Normalized(csgmath.TransformDir(normalTM, v.Normal))
		v.Tangent = csgmath.Normalized(csgmath.TransformDir(tm, v.Tangent))
		v.Binormal = csgmath.Normalized(csgmath.TransformDir(tm, v.Binormal))
	}
	if csgmath.Det3(tm) < 0 {
		t.Vertices[1], t.Vertices[2] = t.Vertices[2], t.Vertices[1]
	}
}

// ToTriangle converts to the CSG triangle representation, carrying the
// submesh, smoothing and extra-data fields across.
func (t *RenderTriangle) ToTriangle() csgmath.Triangle {
	out := csgmath.Triangle{
		SubmeshIndex:   t.SubmeshIndex,
		SmoothingMask:  t.SmoothingMask,
		ExtraDataIndex: t.ExtraDataIndex,
	}
	for i := range t.Vertices {
		out.Vertices[i] = t.Vertices[i].Position
	}
	out.CalculateQuantities()
	return out
}

// MeshBounds returns the box around every vertex of tris.
func MeshBounds(tris []RenderTriangle) csgmath.Bounds {
	b := csgmath.EmptyBounds()
	for i := range tris {
		for j := range tris[i].Vertices {
			b.Include(tris[i].Vertices[j].Position)
		}
	}
	return b
}

// Positions returns every vertex position of tris in triangle order.
func Positions(tris []RenderTriangle) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, 3*len(tris))
	for i := range tris {
		for j := range tris[i].Vertices {
			out = append(out, tris[i].Vertices[j].Position)
		}
	}
	return out
}

// SignedVolume returns the volume enclosed by a closed, outward-wound
// triangle set (divergence theorem).
func SignedVolume(tris []RenderTriangle) float64 {
	vol := 0.0
	for i := range tris {
		v := tris[i].Vertices
		vol += v[0].Position.Dot(v[1].Position.Cross(v[2].Position))
	}
	return vol / 6
}

// SurfaceArea returns the summed area of tris.
func SurfaceArea(tris []RenderTriangle) float64 {
	a := 0.0
	for i := range tris {
		a += tris[i].Area()
	}
	return a
}
