package mesh

import (
	"github.com/chazu/shatter/pkg/binio"
)

// WriteVertex writes v to w.
func WriteVertex(w *binio.Writer, v *Vertex) {
	w.Vec3(v.Position)
	w.Vec3(v.Normal)
	w.Vec3(v.Tangent)
	w.Vec3(v.Binormal)
	for _, uv := range v.UV {
		w.Vec2(uv)
	}
	w.Vec4(v.Color)
}

// ReadVertex reads a vertex written by WriteVertex.
func ReadVertex(r *binio.Reader) Vertex {
	var v Vertex
	v.Position = r.Vec3()
	v.Normal = r.Vec3()
	v.Tangent = r.Vec3()
	v.Binormal = r.Vec3()
	for i := range v.UV {
		v.UV[i] = r.Vec2()
	}
	v.Color = r.Vec4()
	return v
}

// WriteTriangles writes a length-prefixed triangle list.
func WriteTriangles(w *binio.Writer, tris []RenderTriangle) {
	w.U32(uint32(len(tris)))
	for i := range tris {
		t := &tris[i]
		for j := range t.Vertices {
			WriteVertex(w, &t.Vertices[j])
		}
		w.I32(t.SubmeshIndex)
		w.U32(t.SmoothingMask)
		w.U32(t.ExtraDataIndex)
	}
}

// ReadTriangles reads a list written by WriteTriangles.
func ReadTriangles(r *binio.Reader) []RenderTriangle {
	n := r.Count(binio.MaxCount)
	if n == 0 {
		return nil
	}
	tris := make([]RenderTriangle, n)
	for i := range tris {
		t := &tris[i]
		for j := range t.Vertices {
			t.Vertices[j] = ReadVertex(r)
		}
		t.SubmeshIndex = r.I32()
		t.SmoothingMask = r.U32()
		t.ExtraDataIndex = r.U32()
		if r.Err() != nil {
			return nil
		}
	}
	return tris
}
