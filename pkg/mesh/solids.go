package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

func frameVertex(p, n, tangent mgl64.Vec3, uv mgl64.Vec2) Vertex {
	v := Vertex{
		Position: p,
		Normal:   n,
		Tangent:  tangent,
		Binormal: n.Cross(tangent),
		Color:    mgl64.Vec4{1, 1, 1, 1},
	}
	v.UV[0] = uv
	return v
}

// Cylinder returns a closed prism approximating a cylinder of the given
// height and radius, centered on the origin with its axis along z. Fewer
// than three segments are raised to three.
func Cylinder(height, radius float64, segments int) []RenderTriangle {
	if segments < 3 {
		segments = 3
	}
	z0, z1 := -height/2, height/2
	ring := func(i int) (mgl64.Vec3, float64) {
		a := 2 * math.Pi * float64(i) / float64(segments)
		return mgl64.Vec3{radius * math.Cos(a), radius * math.Sin(a), 0}, a
	}

	tris := make([]RenderTriangle, 0, 4*segments)
	up := mgl64.Vec3{0, 0, 1}
	down := mgl64.Vec3{0, 0, -1}
	x := mgl64.Vec3{1, 0, 0}
	capUV := func(p mgl64.Vec3) mgl64.Vec2 {
		return mgl64.Vec2{0.5 + p[0]/(2*radius), 0.5 + p[1]/(2*radius)}
	}
	for i := 0; i < segments; i++ {
		p, a := ring(i)
		q, b := ring(i + 1)
		mid := (a + b) / 2
		n := mgl64.Vec3{math.Cos(mid), math.Sin(mid), 0}
		tangent := mgl64.Vec3{-math.Sin(mid), math.Cos(mid), 0}
		u0 := float64(i) / float64(segments)
		u1 := float64(i+1) / float64(segments)

		p0 := frameVertex(p.Add(mgl64.Vec3{0, 0, z0}), n, tangent, mgl64.Vec2{u0, 0})
		q0 := frameVertex(q.Add(mgl64.Vec3{0, 0, z0}), n, tangent, mgl64.Vec2{u1, 0})
		q1 := frameVertex(q.Add(mgl64.Vec3{0, 0, z1}), n, tangent, mgl64.Vec2{u1, 1})
		p1 := frameVertex(p.Add(mgl64.Vec3{0, 0, z1}), n, tangent, mgl64.Vec2{u0, 1})
		tris = append(tris,
			RenderTriangle{Vertices: [3]Vertex{p0, q0, q1}, ExtraDataIndex: NoExtraData},
			RenderTriangle{Vertices: [3]Vertex{p0, q1, p1}, ExtraDataIndex: NoExtraData})

		top := mgl64.Vec3{0, 0, z1}
		pt, qt := p.Add(top), q.Add(top)
		tris = append(tris, RenderTriangle{Vertices: [3]Vertex{
			frameVertex(top, up, x, capUV(top)),
			frameVertex(pt, up, x, capUV(pt)),
			frameVertex(qt, up, x, capUV(qt)),
		}, ExtraDataIndex: NoExtraData})

		bottom := mgl64.Vec3{0, 0, z0}
		pb, qb := p.Add(bottom), q.Add(bottom)
		tris = append(tris, RenderTriangle{Vertices: [3]Vertex{
			frameVertex(bottom, down, x, capUV(bottom)),
			frameVertex(qb, down, x, capUV(qb)),
			frameVertex(pb, down, x, capUV(pb)),
		}, ExtraDataIndex: NoExtraData})
	}
	return tris
}

// Sphere returns a closed UV sphere centered on the origin with segments
// meridians and half as many rings. Vertex normals are radial.
func Sphere(radius float64, segments int) []RenderTriangle {
	if segments < 3 {
		segments = 3
	}
	rings := segments / 2
	if rings < 2 {
		rings = 2
	}
	point := func(i, j int) (mgl64.Vec3, mgl64.Vec2) {
		phi := 2 * math.Pi * float64(i) / float64(segments)
		theta := math.Pi * float64(j) / float64(rings)
		n := mgl64.Vec3{math.Sin(theta) * math.Cos(phi), math.Sin(theta) * math.Sin(phi), math.Cos(theta)}
		return n, mgl64.Vec2{float64(i) / float64(segments), float64(j) / float64(rings)}
	}

	tris := make([]RenderTriangle, 0, 2*segments*rings)
	for j := 0; j < rings; j++ {
		for i := 0; i < segments; i++ {
			mid := 2 * math.Pi * (float64(i) + 0.5) / float64(segments)
			tangent := mgl64.Vec3{-math.Sin(mid), math.Cos(mid), 0}
			vert := func(i, j int) Vertex {
				n, uv := point(i, j)
				return frameVertex(n.Mul(radius), n, tangent, uv)
			}
			a, b := vert(i, j), vert(i, j+1)
			c, d := vert(i+1, j+1), vert(i+1, j)
			// The first ring's second triangle and the last ring's first
			// triangle collapse onto a pole.
			if j != rings-1 {
				tris = append(tris, RenderTriangle{Vertices: [3]Vertex{a, b, c}, ExtraDataIndex: NoExtraData})
			}
			if j != 0 {
				tris = append(tris, RenderTriangle{Vertices: [3]Vertex{a, c, d}, ExtraDataIndex: NoExtraData})
			}
		}
	}
	return tris
}
