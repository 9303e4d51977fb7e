// Package hull builds convex collision hulls for fracture chunks: exact
// hulls of point sets, k-DOPs, plane-bounded hulls, and an approximate
// convex decomposition of a closed mesh. Hulls can be clipped by planes,
// reduced to vertex, edge and face budgets, and tested for proximity.
package hull

import (
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

// ConvexHull is a closed convex polytope. Planes face outward: a point p is
// inside when Distance(p) <= 0 for every plane. Edges index Vertices.
type ConvexHull struct {
	Vertices []mgl64.Vec3
	Planes   []csgmath.Plane
	Edges    [][2]int32
	Bounds   csgmath.Bounds
	Volume   float64
}

// New returns an empty hull.
func New() *ConvexHull {
	h := &ConvexHull{}
	h.SetEmpty()
	return h
}

// SetEmpty clears h.
func (h *ConvexHull) SetEmpty() {
	h.Vertices = nil
	h.Planes = nil
	h.Edges = nil
	h.Bounds = csgmath.EmptyBounds()
	h.Volume = 0
}

// IsEmpty reports whether h has no vertices.
func (h *ConvexHull) IsEmpty() bool {
	return len(h.Vertices) == 0
}

// Clone returns a deep copy of h.
func (h *ConvexHull) Clone() *ConvexHull {
	return &ConvexHull{
		Vertices: append([]mgl64.Vec3(nil), h.Vertices...),
		Planes:   append([]csgmath.Plane(nil), h.Planes...),
		Edges:    append([][2]int32(nil), h.Edges...),
		Bounds:   h.Bounds,
		Volume:   h.Volume,
	}
}

// VertexCount, EdgeCount and FaceCount report the hull's topology.
func (h *ConvexHull) VertexCount() int { return len(h.Vertices) }
func (h *ConvexHull) EdgeCount() int   { return len(h.Edges) }
func (h *ConvexHull) FaceCount() int   { return len(h.Planes) }

// Extent returns the range of v·normal over the hull's vertices.
func (h *ConvexHull) Extent(normal mgl64.Vec3) (min, max float64) {
	return extent(h.Vertices, normal)
}

func extent(points []mgl64.Vec3, normal mgl64.Vec3) (min, max float64) {
	min, max = math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		d := p.Dot(normal)
		min = math.Min(min, d)
		max = math.Max(max, d)
	}
	return min, max
}

// Contains reports whether p lies within tol of the hull.
func (h *ConvexHull) Contains(p mgl64.Vec3, tol float64) bool {
	if h.IsEmpty() {
		return false
	}
	for _, pl := range h.Planes {
		if pl.Distance(p) > tol {
			return false
		}
	}
	return true
}

// Transform maps the hull through the affine transform tm. Mirroring
// transforms are handled by rebuilding from the moved vertices.
func (h *ConvexHull) Transform(tm mgl64.Mat4) {
	if h.IsEmpty() {
		return
	}
	if csgmath.Det3(tm) < 0 {
		pts := make([]mgl64.Vec3, len(h.Vertices))
		for i, v := range h.Vertices {
			pts[i] = csgmath.TransformPos(tm, v)
		}
		h.BuildFromPoints(pts)
		return
	}
	cof := csgmath.Cof34(tm)
	det := cof.At(3, 3)
	h.Bounds = csgmath.EmptyBounds()
	for i, v := range h.Vertices {
		h.Vertices[i] = csgmath.TransformPos(tm, v)
		h.Bounds.Include(h.Vertices[i])
	}
	for i := range h.Planes {
		h.Planes[i] = csgmath.TransformPlane(cof, h.Planes[i])
		h.Planes[i].Normalize()
	}
	h.Volume *= math.Abs(det)
}

// Center returns the average of the hull's vertices.
func (h *ConvexHull) Center() mgl64.Vec3 {
	var c mgl64.Vec3
	for _, v := range h.Vertices {
		c = c.Add(v)
	}
	if n := len(h.Vertices); n > 0 {
		c = c.Mul(1 / float64(n))
	}
	return c
}

func (h *ConvexHull) size() float64 {
	if h.IsEmpty() {
		return 0
	}
	return h.Bounds.Dimensions().Len()
}
