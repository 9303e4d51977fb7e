package csgmath

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Triangle is the BSP engine's internal triangle. Normal and Area are
// cached and must be refreshed with CalculateQuantities after any vertex
// change. ExtraDataIndex refers to a side table of interpolation frames.
type Triangle struct {
	Vertices       [3]mgl64.Vec3
	Normal         mgl64.Vec3
	Area           Real
	SubmeshIndex   int32
	SmoothingMask  uint32
	ExtraDataIndex uint32
}

// CalculateQuantities recomputes Normal (the normalized sum of the edge
// cross products) and Area.
func (t *Triangle) CalculateQuantities() {
	v := t.Vertices
	n := v[0].Cross(v[1]).Add(v[1].Cross(v[2])).Add(v[2].Cross(v[0]))
	t.Area = 0.5 * NormalizeLen(&n)
	t.Normal = n
}

// Centroid returns the average of the three vertices.
func (t *Triangle) Centroid() mgl64.Vec3 {
	return t.Vertices[0].Add(t.Vertices[1]).Add(t.Vertices[2]).Mul(1.0 / 3.0)
}

// Transform maps the vertices through an affine transform and refreshes
// the cached quantities.
func (t *Triangle) Transform(m mgl64.Mat4) {
	for i := range t.Vertices {
		t.Vertices[i] = TransformPos(m, t.Vertices[i])
	}
	t.CalculateQuantities()
}

// Plane returns the triangle's supporting plane using the cached normal.
func (t *Triangle) Plane() Plane {
	return PlaneThrough(t.Normal, t.Vertices[0])
}
