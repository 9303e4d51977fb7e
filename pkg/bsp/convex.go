package bsp

import (
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/interp"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// FromConvexPolyhedron replaces b with the intersection of the halfspaces
// below planes (given in mesh space). No planes gives all space and
// planes with an empty intersection give the empty set.
//
// A non-zero internalTransform sets the BSP space. When tris is non-empty
// the triangles are kept as an incidental mesh: they carry no surfaces but
// are clipped to the solid when generating output, which lets a plain
// convex cell carry a noisy face through later boolean operations.
func (b *BSP) FromConvexPolyhedron(planes []csgmath.Plane, internalTransform mgl64.Mat4, tris []mesh.RenderTriangle) {
	b.clear()
	b.meshSize = 1
	b.internalTransform = mgl64.Ident4()
	b.internalTransformInverse = mgl64.Ident4()
	if len(planes) == 0 {
		return
	}

	b.planes = make([]csgmath.Plane, len(planes))
	for i, p := range planes {
		p.Normalize()
		b.planes[i] = p
	}

	n := b.root
	for i := range b.planes {
		c0, c1 := b.makeBranch(n, Surface{PlaneIndex: uint32(i)})
		b.nodes[c0].region.Side = 0
		b.nodes[c1].region.Side = 1
		n = c1
	}

	if !b.regionNonEmpty(n, 0) {
		b.clear()
		b.nodes[b.root].region.Side = 0
		return
	}

	hasTransform := !csgmath.IsZeroMat(internalTransform)
	if hasTransform {
		b.internalTransform = internalTransform
		b.internalTransformInverse = csgmath.Inverse34(internalTransform)
		b.transform(internalTransform, mgl64.Ident4(), false)
		b.meshSize = math.Sqrt(csgmath.MaxRowScale(internalTransform))
	}

	if len(tris) == 0 {
		return
	}
	b.mesh = make([]csgmath.Triangle, len(tris))
	b.frames = make([]interp.Interpolator, len(tris))
	b.meshBounds = csgmath.EmptyBounds()
	for i := range tris {
		b.frames[i] = interp.FromTriangle(&tris[i])
		t := tris[i].ToTriangle()
		if hasTransform {
			t.Transform(internalTransform)
		}
		b.mesh[i] = t
		for _, v := range t.Vertices {
			b.meshBounds.Include(v)
		}
	}
	e := b.meshBounds.Extents()
	if size := math.Max(e[0], math.Max(e[1], e[2])); size > 0 {
		b.meshSize = size
	}
	b.incidentalMesh = true
}
