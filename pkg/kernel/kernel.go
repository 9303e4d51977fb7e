// Package kernel defines the solid modeling interface recipe shapes are
// built with. Backends (csg, sdfx) turn solids into render triangles that
// the fracture drivers consume.
package kernel

import "github.com/chazu/shatter/pkg/mesh"

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel builds solids and converts them to triangles.
type Kernel interface {
	// Primitives. Boxes have their minimum corner at the origin;
	// cylinders (axis along z) and spheres are centered on it.
	Box(x, y, z float64) Solid
	Cylinder(height, radius float64, segments int) Solid
	Sphere(radius float64, segments int) Solid

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Triangles returns the closed, outward-wound surface of s.
	Triangles(s Solid) ([]mesh.RenderTriangle, error)
	// ToMesh returns the surface of s as render buffers.
	ToMesh(s Solid) (*Mesh, error)
}
