package hull

import (
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

// Separation describes the best separating axis found between two hulls.
// Plane faces from hull 0 toward hull 1 and lies midway between them.
// [Min0, Max0] and [Min1, Max1] are the hulls' extents along its normal.
type Separation struct {
	Plane      csgmath.Plane
	Min0, Max0 float64
	Min1, Max1 float64
}

// Distance is the gap between the hulls along the separating axis. It is
// negative when they overlap.
func (s Separation) Distance() float64 {
	return math.Max(s.Min0-s.Max1, s.Min1-s.Max0)
}

// HullsInProximity reports whether h0 placed by tm0 and h1 placed by tm1
// are within maxDistance of each other. The test runs the separating axis
// theorem over face normals, edge pair cross products and the center
// offset, so the gap it measures never exceeds the true distance. The
// returned Separation is in world space.
func HullsInProximity(h0 *ConvexHull, tm0 mgl64.Mat4, h1 *ConvexHull, tm1 mgl64.Mat4, maxDistance float64) (bool, Separation) {
	if h0.IsEmpty() || h1.IsEmpty() {
		return false, Separation{}
	}
	w0, w1 := h0.Clone(), h1.Clone()
	w0.Transform(tm0)
	w1.Transform(tm1)

	var axes []mgl64.Vec3
	for _, p := range w0.Planes {
		axes = append(axes, p.Normal())
	}
	for _, p := range w1.Planes {
		axes = append(axes, p.Normal())
	}
	for _, e0 := range w0.Edges {
		d0 := w0.Vertices[e0[1]].Sub(w0.Vertices[e0[0]])
		for _, e1 := range w1.Edges {
			d1 := w1.Vertices[e1[1]].Sub(w1.Vertices[e1[0]])
			if c := d0.Cross(d1); c.Len() > 1e-9*d0.Len()*d1.Len() {
				axes = append(axes, c.Normalize())
			}
		}
	}
	if c := w1.Center().Sub(w0.Center()); c.Len() > 0 {
		axes = append(axes, c.Normalize())
	}

	best := Separation{}
	bestGap := -math.MaxFloat64
	for _, n := range axes {
		min0, max0 := w0.Extent(n)
		min1, max1 := w1.Extent(n)
		if min0-max1 > min1-max0 {
			n = n.Mul(-1)
			min0, max0 = -max0, -min0
			min1, max1 = -max1, -min1
		}
		if gap := min1 - max0; gap > bestGap {
			bestGap = gap
			best = Separation{
				Plane: csgmath.NewPlane(n, -0.5*(max0+min1)),
				Min0:  min0, Max0: max0,
				Min1: min1, Max1: max1,
			}
		}
	}
	eps := relativeEps * (w0.size() + w1.size())
	return bestGap <= maxDistance+eps, best
}
