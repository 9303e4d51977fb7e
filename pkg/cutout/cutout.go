// Package cutout turns stencil bitmaps into sets of planar cutouts. Bright
// pixels of a stencil are cut lines; each dark region they enclose becomes
// a cutout polygon, decomposed into convex loops so it can be extruded into
// a convex cutting solid.
package cutout

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// PolyVert is a vertex of a convex loop. Index refers to the cutout's
// vertices. SplitEdge in Flags marks the edge starting at this vertex as
// an interior edge created by the convex decomposition.
type PolyVert struct {
	Index uint16
	Flags uint16
}

const SplitEdge uint16 = 1

// ConvexLoop is a counterclockwise convex polygon.
type ConvexLoop struct {
	PolyVerts []PolyVert
}

// Cutout is one region of a set. Vertices lie in the z = 0 plane in
// stencil pixel units, with y growing along image rows.
type Cutout struct {
	Vertices    []mgl64.Vec3
	ConvexLoops []ConvexLoop
}

// Set is a collection of cutouts covering a Dimensions sized rectangle
// with its corner at the origin. A periodic set tiles the plane.
type Set struct {
	Cutouts    []Cutout
	Periodic   bool
	Dimensions mgl64.Vec2
}

// CutoutCount returns the number of cutouts in s.
func (s *Set) CutoutCount() int { return len(s.Cutouts) }

// Area returns the signed area enclosed by c's boundary.
func (c *Cutout) Area() float64 {
	a := 0.0
	n := len(c.Vertices)
	for i := range c.Vertices {
		a += crossZ(c.Vertices[(i+n-1)%n], c.Vertices[i])
	}
	return a / 2
}

// Loop returns the positions of a convex loop.
func (c *Cutout) Loop(i int) []mgl64.Vec3 {
	loop := c.ConvexLoops[i]
	out := make([]mgl64.Vec3, len(loop.PolyVerts))
	for j, v := range loop.PolyVerts {
		out[j] = c.Vertices[v.Index]
	}
	return out
}

// sortByArea orders cutouts smallest first. Regions enclosed by another
// region come before their encloser, so carving cutouts in order leaves
// each enclosed piece to its own cutout.
func (s *Set) sortByArea() {
	sort.SliceStable(s.Cutouts, func(i, j int) bool {
		return abs(s.Cutouts[i].Area()) < abs(s.Cutouts[j].Area())
	})
}

func crossZ(a, b mgl64.Vec3) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
