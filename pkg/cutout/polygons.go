package cutout

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// FromPolygons builds a set from explicit polygons in stencil units on a
// dims sized stencil. Polygons may wind either way; degenerate ones are
// dropped.
func FromPolygons(polygons [][]mgl64.Vec2, dims mgl64.Vec2, periodic bool) (*Set, error) {
	if dims[0] <= 0 || dims[1] <= 0 {
		return nil, fmt.Errorf("cutout: stencil dimensions %v", dims)
	}
	s := &Set{Periodic: periodic, Dimensions: dims}
	for i, poly := range polygons {
		if len(poly) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: polygon %d has %d", ErrTooComplex, i, len(poly))
		}
		c := Cutout{Vertices: make([]mgl64.Vec3, len(poly))}
		for j, p := range poly {
			c.Vertices[j] = mgl64.Vec3{p[0], p[1], 0}
		}
		if !c.decompose(0) {
			continue
		}
		s.Cutouts = append(s.Cutouts, c)
	}
	s.sortByArea()
	return s, nil
}

// Rect returns the corners of the axis-aligned rectangle (x0, y0)-(x1, y1)
// in counterclockwise order.
func Rect(x0, y0, x1, y1 float64) []mgl64.Vec2 {
	return []mgl64.Vec2{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}
