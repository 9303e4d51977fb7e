package hull

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

// Method selects how a collision hull is built from a chunk mesh.
type Method int

const (
	WrapGraphicsMesh Method = iota
	Use6DOP
	Use10DOPX
	Use10DOPY
	Use10DOPZ
	Use14DOPXY
	Use14DOPYZ
	Use14DOPZX
	Use18DOP
	Use26DOP
	ConvexDecomposition
)

var methodNames = map[Method]string{
	WrapGraphicsMesh:    "wrap-graphics-mesh",
	Use6DOP:             "6-dop",
	Use10DOPX:           "10-dop-x",
	Use10DOPY:           "10-dop-y",
	Use10DOPZ:           "10-dop-z",
	Use14DOPXY:          "14-dop-xy",
	Use14DOPYZ:          "14-dop-yz",
	Use14DOPZX:          "14-dop-zx",
	Use18DOP:            "18-dop",
	Use26DOP:            "26-dop",
	ConvexDecomposition: "convex-decomposition",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMethod returns the Method named s.
func ParseMethod(s string) (Method, bool) {
	for m, name := range methodNames {
		if name == s {
			return m, true
		}
	}
	return 0, false
}

// KDOPDirections returns the slab directions of a k-DOP method. Each
// direction yields two opposing planes. It returns nil for methods that are
// not k-DOPs.
func KDOPDirections(m Method) []mgl64.Vec3 {
	var bits int
	switch m {
	case Use6DOP:
		bits = 0
	case Use10DOPX:
		bits = 1
	case Use10DOPY:
		bits = 2
	case Use10DOPZ:
		bits = 4
	case Use14DOPXY:
		bits = 3
	case Use14DOPYZ:
		bits = 6
	case Use14DOPZX:
		bits = 5
	case Use18DOP:
		bits = 7
	case Use26DOP:
		bits = 15
	default:
		return nil
	}
	dirs := []mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if bits&1 != 0 {
		dirs = append(dirs, mgl64.Vec3{0, 1, 1}, mgl64.Vec3{0, -1, 1})
	}
	if bits&2 != 0 {
		dirs = append(dirs, mgl64.Vec3{1, 0, 1}, mgl64.Vec3{1, 0, -1})
	}
	if bits&4 != 0 {
		dirs = append(dirs, mgl64.Vec3{1, 1, 0}, mgl64.Vec3{-1, 1, 0})
	}
	if bits&8 != 0 {
		dirs = append(dirs,
			mgl64.Vec3{1, 1, 1}, mgl64.Vec3{-1, 1, 1},
			mgl64.Vec3{1, -1, 1}, mgl64.Vec3{1, 1, -1})
	}
	for i := range dirs {
		dirs[i] = dirs[i].Normalize()
	}
	return dirs
}

// BuildKDOP replaces h with the tightest hull bounded by slabs along dirs
// that contains points.
func (h *ConvexHull) BuildKDOP(points []mgl64.Vec3, dirs []mgl64.Vec3) {
	h.SetEmpty()
	if len(points) == 0 || len(dirs) < 3 {
		return
	}
	planes := make([]csgmath.Plane, 0, 2*len(dirs))
	for _, d := range dirs {
		lo, hi := extent(points, d)
		planes = append(planes,
			csgmath.NewPlane(d, -hi),
			csgmath.NewPlane(d.Mul(-1), lo))
	}
	h.BuildFromPlanes(planes)
}

// IntersectPlaneSide clips h to the half-space below plane. Clipping away
// everything leaves h empty.
func (h *ConvexHull) IntersectPlaneSide(plane csgmath.Plane) {
	if h.IsEmpty() {
		return
	}
	if plane.Normalize() == 0 {
		return
	}
	eps := relativeEps * h.size()
	dist := make([]float64, len(h.Vertices))
	var kept []mgl64.Vec3
	clipped := false
	for i, v := range h.Vertices {
		dist[i] = plane.Distance(v)
		if dist[i] > eps {
			clipped = true
			continue
		}
		kept = append(kept, v)
	}
	if !clipped {
		return
	}
	for _, e := range h.Edges {
		d0, d1 := dist[e[0]], dist[e[1]]
		if (d0 > eps) == (d1 > eps) {
			continue
		}
		t := d0 / (d0 - d1)
		p0, p1 := h.Vertices[e[0]], h.Vertices[e[1]]
		kept = append(kept, p0.Add(p1.Sub(p0).Mul(t)))
	}
	h.BuildFromPoints(kept)
}

// IntersectHull clips h by every plane of other.
func (h *ConvexHull) IntersectHull(other *ConvexHull) {
	if other.IsEmpty() {
		h.SetEmpty()
		return
	}
	for _, p := range other.Planes {
		if h.IsEmpty() {
			return
		}
		h.IntersectPlaneSide(p)
	}
}
