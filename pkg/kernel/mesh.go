package kernel

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, uvs has 2, indices has 3 uint32s per
// triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	UVs      []float32 `json:"uvs,omitempty"`
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"` // which recipe shape this came from
	// Chunk and Depth locate a fractured chunk in its hierarchy. Unfractured
	// meshes have Chunk -1.
	Chunk int `json:"chunk"`
	Depth int `json:"depth"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// FromTriangles flattens tris into render buffers, offsetting every
// position by offset. Vertices are not shared between triangles.
func FromTriangles(tris []mesh.RenderTriangle, offset mgl64.Vec3) *Mesh {
	m := &Mesh{
		Vertices: make([]float32, 0, 9*len(tris)),
		Normals:  make([]float32, 0, 9*len(tris)),
		UVs:      make([]float32, 0, 6*len(tris)),
		Indices:  make([]uint32, 0, 3*len(tris)),
		Chunk:    -1,
	}
	for i := range tris {
		for j := range tris[i].Vertices {
			v := &tris[i].Vertices[j]
			p := v.Position.Add(offset)
			m.Vertices = append(m.Vertices, float32(p[0]), float32(p[1]), float32(p[2]))
			m.Normals = append(m.Normals, float32(v.Normal[0]), float32(v.Normal[1]), float32(v.Normal[2]))
			m.UVs = append(m.UVs, float32(v.UV[0][0]), float32(v.UV[0][1]))
			m.Indices = append(m.Indices, uint32(len(m.Indices)))
		}
	}
	return m
}

// FlatTriangle returns a render triangle with a face normal, a tangent
// along its first edge and UVs projected onto the plane most nearly
// facing it.
func FlatTriangle(p [3]mgl64.Vec3) mesh.RenderTriangle {
	n := csgmath.Normalized(p[1].Sub(p[0]).Cross(p[2].Sub(p[0])))
	tangent := csgmath.Normalized(p[1].Sub(p[0]))
	axis := csgmath.MaxAbsIndex(n)
	u, v := (axis+1)%3, (axis+2)%3
	t := mesh.RenderTriangle{ExtraDataIndex: mesh.NoExtraData}
	for i := range p {
		t.Vertices[i] = mesh.Vertex{
			Position: p[i],
			Normal:   n,
			Tangent:  tangent,
			Binormal: n.Cross(tangent),
			Color:    mgl64.Vec4{1, 1, 1, 1},
		}
		t.Vertices[i].UV[0] = mgl64.Vec2{p[i][u], p[i][v]}
	}
	return t
}
