package mesh

import "github.com/go-gl/mathgl/mgl64"

// Box returns the 12 outward-wound triangles of an axis-aligned box with
// per-face normals, tangents and a unit UV square on each face.
func Box(min, max mgl64.Vec3) []RenderTriangle {
	tris := make([]RenderTriangle, 0, 12)
	for axis := 0; axis < 3; axis++ {
		u := (axis + 1) % 3
		v := (axis + 2) % 3
		for _, sign := range []float64{-1, 1} {
			var n mgl64.Vec3
			n[axis] = sign
			corner := func(a, b float64) Vertex {
				var p mgl64.Vec3
				if sign > 0 {
					p[axis] = max[axis]
				} else {
					p[axis] = min[axis]
				}
				p[u] = min[u] + a*(max[u]-min[u])
				p[v] = min[v] + b*(max[v]-min[v])
				var tangent mgl64.Vec3
				tangent[u] = 1
				vert := Vertex{
					Position: p,
					Normal:   n,
					Tangent:  tangent,
					Binormal: n.Cross(tangent),
					Color:    mgl64.Vec4{1, 1, 1, 1},
				}
				vert.UV[0] = mgl64.Vec2{a, b}
				return vert
			}
			q := [4]Vertex{corner(0, 0), corner(1, 0), corner(1, 1), corner(0, 1)}
			if sign > 0 {
				tris = append(tris,
					RenderTriangle{Vertices: [3]Vertex{q[0], q[1], q[2]}, ExtraDataIndex: NoExtraData},
					RenderTriangle{Vertices: [3]Vertex{q[0], q[2], q[3]}, ExtraDataIndex: NoExtraData})
			} else {
				tris = append(tris,
					RenderTriangle{Vertices: [3]Vertex{q[0], q[2], q[1]}, ExtraDataIndex: NoExtraData},
					RenderTriangle{Vertices: [3]Vertex{q[0], q[3], q[2]}, ExtraDataIndex: NoExtraData})
			}
		}
	}
	return tris
}
