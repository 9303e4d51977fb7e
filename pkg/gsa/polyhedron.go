package gsa

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

// PlaneSet is a static convex polyhedron given by its bounding planes. An
// empty set describes all of space.
type PlaneSet []csgmath.Plane

var _ HalfspaceSet = PlaneSet(nil)

// FarthestHalfspace implements HalfspaceSet.
func (ps PlaneSet) FarthestHalfspace(point mgl64.Vec4) (csgmath.Plane, float64) {
	best := csgmath.Plane{0, 0, 0, 1}
	greatest := -csgmath.MaxReal
	for _, p := range ps {
		if s := p.Dot(point); s > greatest {
			greatest = s
			best = p
		}
	}
	return best, greatest
}

// PlaneFunc adapts an iterator over planes into a HalfspaceSet. Every
// evaluation visits all planes.
type PlaneFunc func(yield func(csgmath.Plane))

// FarthestHalfspace implements HalfspaceSet.
func (f PlaneFunc) FarthestHalfspace(point mgl64.Vec4) (csgmath.Plane, float64) {
	best := csgmath.Plane{0, 0, 0, 1}
	greatest := -csgmath.MaxReal
	f(func(p csgmath.Plane) {
		if s := p.Dot(point); s > greatest {
			greatest = s
			best = p
		}
	})
	return best, greatest
}

// Intersects reports whether the planes bound a non-empty region.
func Intersects(planes []csgmath.Plane) bool {
	return Test(PlaneSet(planes), nil)
}
