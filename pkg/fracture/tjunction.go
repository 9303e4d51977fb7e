package fracture

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
)

// tJunctionTolerance is relative to the part's size.
const tJunctionTolerance = 1e-6

// removeTJunctions splits triangle edges at the vertices of other
// triangles lying on them, in every part of m.
func removeTJunctions(m *ehm.Mesh) {
	for _, part := range m.Parts {
		part.Mesh = RemoveTJunctions(part.Mesh)
	}
}

// RemoveTJunctions returns tris with every edge that passes through a
// mesh vertex split there. Vertex data at the split point is interpolated
// along the edge.
func RemoveTJunctions(tris []mesh.RenderTriangle) []mesh.RenderTriangle {
	if len(tris) == 0 {
		return tris
	}
	size := mesh.MeshBounds(tris).Dimensions()
	tol := tJunctionTolerance * max(size[0], size[1], size[2])
	if tol == 0 {
		return tris
	}

	points := lo.Uniq(mesh.Positions(tris))
	boxes := make([]csgmath.Bounds, len(points))
	for i, p := range points {
		boxes[i] = csgmath.Bounds{Min: p, Max: p}
	}
	index := newBoxIndex(boxes, tol)

	out := make([]mesh.RenderTriangle, 0, len(tris))
	work := append([]mesh.RenderTriangle(nil), tris...)
	for len(work) > 0 {
		t := work[len(work)-1]
		work = work[:len(work)-1]
		e, s, ok := findTJunction(&t, points, index, tol)
		if !ok {
			out = append(out, t)
			continue
		}
		a, b := e, (e+1)%3
		mid := lerpVertex(&t.Vertices[a], &t.Vertices[b], s)
		t0, t1 := t, t
		t0.Vertices[b] = mid
		t1.Vertices[a] = mid
		work = append(work, t0, t1)
	}
	return out
}

// findTJunction finds a mesh point strictly inside an edge of t. It
// returns the edge and the point's parameter along it.
func findTJunction(t *mesh.RenderTriangle, points []mgl64.Vec3, index *boxIndex, tol float64) (int, float64, bool) {
	for e := 0; e < 3; e++ {
		p0 := t.Vertices[e].Position
		p1 := t.Vertices[(e+1)%3].Position
		d := p1.Sub(p0)
		l2 := d.LenSqr()
		if l2 <= tol*tol {
			continue
		}
		b := csgmath.EmptyBounds()
		b.Include(p0)
		b.Include(p1)
		for _, i := range index.query(b, tol) {
			q := points[i]
			s := q.Sub(p0).Dot(d) / l2
			if s*s*l2 <= tol*tol || (1-s)*(1-s)*l2 <= tol*tol {
				continue
			}
			if p0.Add(d.Mul(s)).Sub(q).LenSqr() <= tol*tol {
				return e, s, true
			}
		}
	}
	return 0, 0, false
}

func lerpVertex(a, b *mesh.Vertex, s float64) mesh.Vertex {
	v := mesh.Vertex{
		Position: a.Position.Add(b.Position.Sub(a.Position).Mul(s)),
		Normal:   csgmath.Normalized(a.Normal.Mul(1 - s).Add(b.Normal.Mul(s))),
		Tangent:  csgmath.Normalized(a.Tangent.Mul(1 - s).Add(b.Tangent.Mul(s))),
		Binormal: csgmath.Normalized(a.Binormal.Mul(1 - s).Add(b.Binormal.Mul(s))),
		Color:    a.Color.Mul(1 - s).Add(b.Color.Mul(s)),
	}
	for i := range v.UV {
		v.UV[i] = a.UV[i].Mul(1 - s).Add(b.UV[i].Mul(s))
	}
	return v
}
