package hull

import (
	"fmt"
	"io"

	"github.com/chazu/shatter/pkg/binio"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

const hullVersion uint32 = 1

// Serialize writes h to w.
func (h *ConvexHull) Serialize(w io.Writer) error {
	bw := binio.NewWriter(w)
	h.WriteTo(bw)
	if err := bw.Err(); err != nil {
		return fmt.Errorf("hull: serialize: %w", err)
	}
	return nil
}

// WriteTo writes h into an enclosing stream.
func (h *ConvexHull) WriteTo(w *binio.Writer) {
	w.U32(hullVersion)
	w.U32(uint32(len(h.Vertices)))
	for _, v := range h.Vertices {
		w.Vec3(v)
	}
	w.U32(uint32(len(h.Planes)))
	for _, p := range h.Planes {
		w.F64s(p[:]...)
	}
	w.U32(uint32(len(h.Edges)))
	for _, e := range h.Edges {
		w.U32(uint32(e[0]))
		w.U32(uint32(e[1]))
	}
	w.Vec3(h.Bounds.Min)
	w.Vec3(h.Bounds.Max)
	w.F64(h.Volume)
}

// Deserialize replaces h with a hull read from r. On error h is unchanged.
func (h *ConvexHull) Deserialize(r io.Reader) error {
	br := binio.NewReader(r)
	nh := New()
	nh.ReadFrom(br)
	if err := br.Err(); err != nil {
		return fmt.Errorf("hull: deserialize: %w", err)
	}
	*h = *nh
	return nil
}

// ReadFrom reads h from an enclosing stream.
func (h *ConvexHull) ReadFrom(r *binio.Reader) {
	version := r.U32()
	if r.Err() != nil {
		return
	}
	if version != hullVersion {
		r.SetErr(fmt.Errorf("%w: hull version %d", binio.ErrVersion, version))
		return
	}
	h.Vertices = make([]mgl64.Vec3, r.Count(binio.MaxCount))
	for i := range h.Vertices {
		h.Vertices[i] = r.Vec3()
	}
	h.Planes = make([]csgmath.Plane, r.Count(binio.MaxCount))
	for i := range h.Planes {
		h.Planes[i] = csgmath.Plane(r.Vec4())
	}
	h.Edges = make([][2]int32, r.Count(binio.MaxCount))
	for i := range h.Edges {
		a, b := r.U32(), r.U32()
		if int(a) >= len(h.Vertices) || int(b) >= len(h.Vertices) {
			r.SetErr(fmt.Errorf("hull: edge %d references a missing vertex", i))
			return
		}
		h.Edges[i] = [2]int32{int32(a), int32(b)}
	}
	h.Bounds.Min = r.Vec3()
	h.Bounds.Max = r.Vec3()
	h.Volume = r.F64()
}
