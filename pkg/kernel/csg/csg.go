// Package csg implements kernel.Kernel on the BSP engine. Solids are kept
// as a lazy tree of transformed primitive meshes; booleans are resolved
// when triangles are requested, with every leaf built into a BSP sharing
// one internal transform.
package csg

import (
	"context"
	"fmt"

	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/kernel"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// Compile-time interface check.
var _ kernel.Kernel = (*Kernel)(nil)

type solid struct {
	// leaf
	tris []mesh.RenderTriangle

	// boolean
	op   bsp.Operation
	a, b *solid

	bounds csgmath.Bounds
}

func (s *solid) leaf() bool { return s.a == nil }

// BoundingBox returns a box around the solid. Differences and
// intersections report a conservative box.
func (s *solid) BoundingBox() (min, max [3]float64) {
	return s.bounds.Min, s.bounds.Max
}

// leafBounds returns the box around every primitive of the tree, which is
// the region the shared internal transform must cover.
func (s *solid) leafBounds() csgmath.Bounds {
	if s.leaf() {
		return s.bounds
	}
	b := s.a.leafBounds()
	b.IncludeBounds(s.b.leafBounds())
	return b
}

func (s *solid) transformed(tm mgl64.Mat4) *solid {
	if s.leaf() {
		tris := make([]mesh.RenderTriangle, len(s.tris))
		copy(tris, s.tris)
		for i := range tris {
			tris[i].Transform(tm)
		}
		return newLeaf(tris)
	}
	return newBoolean(s.op, s.a.transformed(tm), s.b.transformed(tm))
}

func newLeaf(tris []mesh.RenderTriangle) *solid {
	return &solid{tris: tris, bounds: mesh.MeshBounds(tris)}
}

func newBoolean(op bsp.Operation, a, b *solid) *solid {
	s := &solid{op: op, a: a, b: b}
	switch op {
	case bsp.OpUnion:
		s.bounds = a.bounds
		s.bounds.IncludeBounds(b.bounds)
	case bsp.OpIntersection:
		s.bounds = a.bounds
		for i := 0; i < 3; i++ {
			s.bounds.Min[i] = max(a.bounds.Min[i], b.bounds.Min[i])
			s.bounds.Max[i] = min(a.bounds.Max[i], b.bounds.Max[i])
		}
	default:
		s.bounds = a.bounds
	}
	return s
}

// Kernel builds solids on the BSP engine.
type Kernel struct {
	// Params are used for every leaf BSP. InternalTransform is replaced.
	Params     bsp.BuildParameters
	Tolerances bsp.Tolerances
	// Logf receives BSP warnings; nil discards them.
	Logf func(format string, args ...any)
}

// New returns a Kernel with default build parameters and tolerances.
func New() *Kernel {
	return &Kernel{
		Params:     bsp.DefaultBuildParameters(),
		Tolerances: bsp.DefaultTolerances(),
	}
}

func unwrap(s kernel.Solid) *solid {
	return s.(*solid)
}

// Box creates a box with its minimum corner at the origin.
func (k *Kernel) Box(x, y, z float64) kernel.Solid {
	return newLeaf(mesh.Box(mgl64.Vec3{}, mgl64.Vec3{x, y, z}))
}

// Cylinder creates a prism of segments sides around the z axis, centered
// on the origin.
func (k *Kernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	return newLeaf(mesh.Cylinder(height, radius, segments))
}

// Sphere creates a UV sphere centered on the origin.
func (k *Kernel) Sphere(radius float64, segments int) kernel.Solid {
	return newLeaf(mesh.Sphere(radius, segments))
}

// Union returns the union of two solids.
func (k *Kernel) Union(a, b kernel.Solid) kernel.Solid {
	return newBoolean(bsp.OpUnion, unwrap(a), unwrap(b))
}

// Difference returns the difference a - b.
func (k *Kernel) Difference(a, b kernel.Solid) kernel.Solid {
	return newBoolean(bsp.OpAMinusB, unwrap(a), unwrap(b))
}

// Intersection returns the intersection of two solids.
func (k *Kernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return newBoolean(bsp.OpIntersection, unwrap(a), unwrap(b))
}

// Translate moves a solid by (x, y, z).
func (k *Kernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	return unwrap(s).transformed(mgl64.Translate3D(x, y, z))
}

// Rotate rotates a solid by Euler angles (degrees) around X, Y, Z axes.
func (k *Kernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	tm := mgl64.HomogRotate3DZ(mgl64.DegToRad(z)).
		Mul4(mgl64.HomogRotate3DY(mgl64.DegToRad(y))).
		Mul4(mgl64.HomogRotate3DX(mgl64.DegToRad(x)))
	return unwrap(s).transformed(tm)
}

// Triangles resolves s and returns its surface.
func (k *Kernel) Triangles(s kernel.Solid) ([]mesh.RenderTriangle, error) {
	return k.TrianglesContext(context.Background(), s)
}

// TrianglesContext is Triangles with cancellation between BSP builds.
func (k *Kernel) TrianglesContext(ctx context.Context, s kernel.Solid) ([]mesh.RenderTriangle, error) {
	root := unwrap(s)
	if root.leaf() {
		out := make([]mesh.RenderTriangle, len(root.tris))
		copy(out, root.tris)
		return out, nil
	}
	it := internalTransform(root.leafBounds())
	b, err := k.build(ctx, root, it)
	if err != nil {
		return nil, err
	}
	tris, err := b.ToMesh()
	if err != nil {
		return nil, fmt.Errorf("csg: %w", err)
	}
	return tris, nil
}

// ToMesh resolves s and returns render buffers.
func (k *Kernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	tris, err := k.Triangles(s)
	if err != nil {
		return nil, err
	}
	return kernel.FromTriangles(tris, mgl64.Vec3{}), nil
}

func (k *Kernel) build(ctx context.Context, s *solid, it mgl64.Mat4) (*bsp.BSP, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.leaf() {
		b := bsp.NewWithTransform(it)
		b.SetTolerances(k.Tolerances)
		b.SetLogger(k.Logf)
		if len(s.tris) == 0 {
			// An empty primitive is the empty set.
			if err := b.Complement(); err != nil {
				return nil, fmt.Errorf("csg: %w", err)
			}
			return b, nil
		}
		params := k.Params
		params.InternalTransform = it
		if err := b.FromMesh(ctx, s.tris, params, nil); err != nil {
			return nil, fmt.Errorf("csg: building primitive: %w", err)
		}
		return b, nil
	}
	a, err := k.build(ctx, s.a, it)
	if err != nil {
		return nil, err
	}
	b, err := k.build(ctx, s.b, it)
	if err != nil {
		return nil, err
	}
	if err := a.Combine(b); err != nil {
		return nil, fmt.Errorf("csg: %w", err)
	}
	if err := a.Op(a, s.op); err != nil {
		return nil, fmt.Errorf("csg: %w", err)
	}
	return a, nil
}

// internalTransform maps bounds into a centered unit box.
func internalTransform(bounds csgmath.Bounds) mgl64.Mat4 {
	tm := mgl64.Ident4()
	center := bounds.Center()
	extents := bounds.Extents()
	for i := 0; i < 3; i++ {
		scale := extents[i]
		if scale <= 0 {
			scale = 1
		}
		tm.Set(i, i, scale)
		tm.Set(i, 3, center[i])
	}
	return csgmath.Inverse34(tm)
}
