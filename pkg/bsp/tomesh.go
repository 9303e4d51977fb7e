package bsp

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/interp"
	"github.com/chazu/shatter/pkg/mesh"
)

// ToMesh returns the boundary of the inside leaves as mesh-space render
// triangles with interpolated vertex attributes. Unless the BSP carries
// an incidental mesh, coplanar fragments are re-merged when the cleaning
// tolerance is positive.
func (b *BSP) ToMesh() ([]mesh.RenderTriangle, error) {
	if b.combined {
		return nil, ErrCombined
	}
	clipped, info := b.clipMeshToInsideLeaves()
	if b.tol.Cleaning > 0 && !b.incidentalMesh {
		return b.cleanMesh(clipped, info), nil
	}
	out := make([]mesh.RenderTriangle, 0, len(clipped))
	for _, inf := range info {
		out = append(out, b.fragmentToRender(clipped[inf.clippedIndex], inf))
	}
	return out, nil
}

// fragmentToRender maps a BSP-space fragment to mesh space and
// interpolates its attributes from its original triangle's frame.
func (b *BSP) fragmentToRender(t csgmath.Triangle, inf clippedTriangleInfo) mesh.RenderTriangle {
	t.Transform(b.internalTransformInverse)
	sign := 1.0
	if !inf.ccw {
		sign = -1
	}
	return renderTriangle(&t, &b.frames[inf.originalIndex], sign)
}

// renderTriangle builds a render triangle from t, evaluating frame at each
// vertex and scaling the interpolated normal by normalSign.
func renderTriangle(t *csgmath.Triangle, frame *interp.Interpolator, normalSign float64) mesh.RenderTriangle {
	rt := mesh.RenderTriangle{
		SubmeshIndex:   t.SubmeshIndex,
		SmoothingMask:  t.SmoothingMask,
		ExtraDataIndex: t.ExtraDataIndex,
	}
	for v := range rt.Vertices {
		vert := &rt.Vertices[v]
		vert.Position = t.Vertices[v]
		frame.Interpolate(vert)
		vert.Normal = vert.Normal.Mul(normalSign)
	}
	return rt
}
