package hull

import (
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

// relativeEps scales tolerances by the size of the input.
const relativeEps = 1e-9

type face struct {
	v       [3]int
	plane   csgmath.Plane
	alive   bool
	outside []int
}

type incremental struct {
	points []mgl64.Vec3
	faces  []face
	edges  map[[2]int]int
	eps    float64
}

// weld drops points within tol of an earlier point. Points are bucketed on
// a grid of cell tol, so only the neighboring cells need a distance test.
func weld(points []mgl64.Vec3, tol float64) []mgl64.Vec3 {
	if tol <= 0 {
		return points
	}
	type cell [3]int64
	key := func(p mgl64.Vec3) cell {
		return cell{int64(math.Floor(p[0] / tol)), int64(math.Floor(p[1] / tol)), int64(math.Floor(p[2] / tol))}
	}
	grid := make(map[cell][]int)
	out := make([]mgl64.Vec3, 0, len(points))
	for _, p := range points {
		k := key(p)
		dup := false
	search:
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dz := int64(-1); dz <= 1; dz++ {
					for _, i := range grid[cell{k[0] + dx, k[1] + dy, k[2] + dz}] {
						if out[i].Sub(p).LenSqr() <= tol*tol {
							dup = true
							break search
						}
					}
				}
			}
		}
		if !dup {
			grid[k] = append(grid[k], len(out))
			out = append(out, p)
		}
	}
	return out
}

func (q *incremental) addFace(a, b, c int) int {
	pa, pb, pc := q.points[a], q.points[b], q.points[c]
	pl := csgmath.PlaneThrough(pb.Sub(pa).Cross(pc.Sub(pa)), pa)
	pl.Normalize()
	idx := len(q.faces)
	q.faces = append(q.faces, face{v: [3]int{a, b, c}, plane: pl, alive: true})
	q.edges[[2]int{a, b}] = idx
	q.edges[[2]int{b, c}] = idx
	q.edges[[2]int{c, a}] = idx
	return idx
}

func (q *incremental) killFace(i int) {
	f := &q.faces[i]
	f.alive = false
	f.outside = nil
	for k := 0; k < 3; k++ {
		e := [2]int{f.v[k], f.v[(k+1)%3]}
		if q.edges[e] == i {
			delete(q.edges, e)
		}
	}
}

// assign files point pi in the outside set of the first face it lies
// above. Points below every face are interior and dropped.
func (q *incremental) assign(pi int, faces []int) {
	p := q.points[pi]
	for _, fi := range faces {
		if q.faces[fi].plane.Distance(p) > q.eps {
			q.faces[fi].outside = append(q.faces[fi].outside, pi)
			return
		}
	}
}

// initialSimplex picks four well separated points. It returns false when
// the points do not span a volume.
func (q *incremental) initialSimplex() ([4]int, bool) {
	var s [4]int
	pts := q.points

	// Extreme pair among the axis extremes.
	var ext []int
	for axis := 0; axis < 3; axis++ {
		lo, hi := 0, 0
		for i, p := range pts {
			if p[axis] < pts[lo][axis] {
				lo = i
			}
			if p[axis] > pts[hi][axis] {
				hi = i
			}
		}
		ext = append(ext, lo, hi)
	}
	best := -1.0
	for _, i := range ext {
		for _, j := range ext {
			if d := pts[i].Sub(pts[j]).LenSqr(); d > best {
				best, s[0], s[1] = d, i, j
			}
		}
	}
	if math.Sqrt(best) <= q.eps {
		return s, false
	}

	axis := pts[s[1]].Sub(pts[s[0]]).Normalize()
	best = -1
	for i, p := range pts {
		r := p.Sub(pts[s[0]])
		if d := r.Sub(axis.Mul(r.Dot(axis))).Len(); d > best {
			best, s[2] = d, i
		}
	}
	if best <= q.eps {
		return s, false
	}

	pl := csgmath.PlaneThrough(pts[s[1]].Sub(pts[s[0]]).Cross(pts[s[2]].Sub(pts[s[0]])), pts[s[0]])
	pl.Normalize()
	best = -1
	for i, p := range pts {
		if d := math.Abs(pl.Distance(p)); d > best {
			best, s[3] = d, i
		}
	}
	if best <= q.eps {
		return s, false
	}
	if pl.Distance(pts[s[3]]) > 0 {
		s[1], s[2] = s[2], s[1]
	}
	return s, true
}

// build runs the incremental hull and returns the surviving faces, or nil
// when the points are degenerate. Every point waits in the outside set of
// one face; each step takes the farthest point of some face, so a point
// is added at most once and the loop ends after at most len(points) steps.
func (q *incremental) build() []face {
	if len(q.points) < 4 {
		return nil
	}
	s, ok := q.initialSimplex()
	if !ok {
		return nil
	}
	q.edges = make(map[[2]int]int)
	a, b, c, d := s[0], s[1], s[2], s[3]
	// With d below plane (a, b, c), these windings face outward.
	initial := []int{q.addFace(a, b, c), q.addFace(a, d, b), q.addFace(b, d, c), q.addFace(c, d, a)}
	for i := range q.points {
		if i != a && i != b && i != c && i != d {
			q.assign(i, initial)
		}
	}

	pending := append([]int(nil), initial...)
	for len(pending) > 0 {
		fi := pending[len(pending)-1]
		if !q.faces[fi].alive || len(q.faces[fi].outside) == 0 {
			pending = pending[:len(pending)-1]
			continue
		}
		f := &q.faces[fi]
		eye, far := f.outside[0], -1.0
		for _, pi := range f.outside {
			if d := f.plane.Distance(q.points[pi]); d > far {
				eye, far = pi, d
			}
		}
		p := q.points[eye]

		// Visible faces form a connected cap around fi.
		visible := []int{fi}
		isVisible := map[int]bool{fi: true}
		var horizon [][2]int
		for k := 0; k < len(visible); k++ {
			vf := q.faces[visible[k]]
			for e := 0; e < 3; e++ {
				edge := [2]int{vf.v[e], vf.v[(e+1)%3]}
				twin, ok := q.edges[[2]int{edge[1], edge[0]}]
				switch {
				case !ok:
					horizon = append(horizon, edge)
				case isVisible[twin]:
				case q.faces[twin].plane.Distance(p) > q.eps:
					isVisible[twin] = true
					visible = append(visible, twin)
				default:
					horizon = append(horizon, edge)
				}
			}
		}

		var orphans []int
		for _, vi := range visible {
			for _, pi := range q.faces[vi].outside {
				if pi != eye {
					orphans = append(orphans, pi)
				}
			}
			q.killFace(vi)
		}
		created := make([]int, 0, len(horizon))
		for _, e := range horizon {
			created = append(created, q.addFace(e[0], e[1], eye))
		}
		for _, pi := range orphans {
			q.assign(pi, created)
		}
		pending = append(pending, created...)
	}

	var out []face
	for _, f := range q.faces {
		if f.alive {
			out = append(out, f)
		}
	}
	return out
}

// BuildFromPoints replaces h with the convex hull of points. Fewer than four
// points, or points that do not span a volume, give an empty hull.
func (h *ConvexHull) BuildFromPoints(points []mgl64.Vec3) {
	h.SetEmpty()
	if len(points) < 4 {
		return
	}
	bounds := csgmath.EmptyBounds()
	for _, p := range points {
		bounds.Include(p)
	}
	size := bounds.Dimensions().Len()
	eps := relativeEps * size
	points = weld(points, 10*eps)
	q := incremental{points: points, eps: eps}
	tris := q.build()
	if len(tris) == 0 {
		return
	}

	// Volume relative to an interior point.
	var center mgl64.Vec3
	for _, t := range tris {
		center = center.Add(points[t.v[0]])
	}
	center = center.Mul(1 / float64(len(tris)))
	volume := 0.0
	for _, t := range tris {
		a, b, c := points[t.v[0]].Sub(center), points[t.v[1]].Sub(center), points[t.v[2]].Sub(center)
		volume += a.Dot(b.Cross(c))
	}
	volume /= 6
	if volume <= eps*eps*eps {
		return
	}

	// Merge coplanar triangles into faces.
	var planes []csgmath.Plane
	used := make(map[int]bool)
	for _, t := range tris {
		pl := t.plane
		merged := false
		for _, existing := range planes {
			if existing.Normal().Dot(pl.Normal()) > 1-1e-9 && math.Abs(existing.D()-pl.D()) <= 10*eps {
				merged = true
				break
			}
		}
		if !merged {
			planes = append(planes, pl)
		}
		for _, v := range t.v {
			used[v] = true
		}
	}
	candidates := make([]mgl64.Vec3, 0, len(used))
	for i, p := range points {
		if used[i] {
			candidates = append(candidates, p)
		}
	}
	h.finalize(candidates, planes, 10*eps)
	h.Volume = volume
}

// finalize keeps the candidate vertices that are corners of the planes and
// derives edges from adjacent plane pairs.
func (h *ConvexHull) finalize(candidates []mgl64.Vec3, planes []csgmath.Plane, eps float64) {
	h.Planes = planes
	h.Bounds = csgmath.EmptyBounds()
	h.Vertices = h.Vertices[:0]
	incident := make([][]int, 0, len(candidates))
	for _, p := range candidates {
		var on []int
		for pi, pl := range planes {
			if math.Abs(pl.Distance(p)) <= eps {
				on = append(on, pi)
			}
		}
		if !isCorner(planes, on) {
			continue
		}
		dup := false
		for _, v := range h.Vertices {
			if v.Sub(p).Len() <= eps {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		h.Vertices = append(h.Vertices, p)
		h.Bounds.Include(p)
		incident = append(incident, on)
	}

	h.Edges = h.Edges[:0]
	onPlane := make([][]int32, len(planes))
	for vi, on := range incident {
		for _, pi := range on {
			onPlane[pi] = append(onPlane[pi], int32(vi))
		}
	}
	for i := range planes {
		for j := i + 1; j < len(planes); j++ {
			dir := planes[i].Normal().Cross(planes[j].Normal())
			if dir.Len() < 1e-9 {
				continue
			}
			lo, hi := int32(-1), int32(-1)
			loD, hiD := math.MaxFloat64, -math.MaxFloat64
			for _, vi := range onPlane[i] {
				if !containsIndex(onPlane[j], vi) {
					continue
				}
				d := h.Vertices[vi].Dot(dir)
				if d < loD {
					lo, loD = vi, d
				}
				if d > hiD {
					hi, hiD = vi, d
				}
			}
			if lo >= 0 && hi >= 0 && lo != hi {
				h.Edges = append(h.Edges, [2]int32{lo, hi})
			}
		}
	}
}

func containsIndex(s []int32, v int32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// isCorner reports whether the planes indexed by on have normals spanning
// three dimensions.
func isCorner(planes []csgmath.Plane, on []int) bool {
	for a := 0; a < len(on); a++ {
		na := planes[on[a]].Normal()
		for b := a + 1; b < len(on); b++ {
			nab := na.Cross(planes[on[b]].Normal())
			if nab.Len() < 1e-9 {
				continue
			}
			for c := b + 1; c < len(on); c++ {
				if math.Abs(nab.Dot(planes[on[c]].Normal())) > 1e-9 {
					return true
				}
			}
		}
	}
	return false
}

// BuildFromPlanes replaces h with the intersection of the half-spaces below
// planes. Unbounded or empty intersections give an empty hull.
func (h *ConvexHull) BuildFromPlanes(planes []csgmath.Plane) {
	h.SetEmpty()
	if len(planes) < 4 {
		return
	}
	normalized := make([]csgmath.Plane, 0, len(planes))
	for _, p := range planes {
		if p.Normalize() > 0 {
			normalized = append(normalized, p)
		}
	}
	scale := 0.0
	for _, p := range normalized {
		scale = math.Max(scale, math.Abs(p.D()))
	}
	eps := relativeEps * math.Max(scale, 1)

	var points []mgl64.Vec3
	n := len(normalized)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				p, ok := intersect3(normalized[i], normalized[j], normalized[k])
				if !ok {
					continue
				}
				inside := true
				for _, pl := range normalized {
					if pl.Distance(p) > 100*eps {
						inside = false
						break
					}
				}
				if inside {
					points = append(points, p)
				}
			}
		}
	}
	h.BuildFromPoints(points)
}

func intersect3(a, b, c csgmath.Plane) (mgl64.Vec3, bool) {
	na, nb, nc := a.Normal(), b.Normal(), c.Normal()
	bc := nb.Cross(nc)
	det := na.Dot(bc)
	if math.Abs(det) < 1e-9 {
		return mgl64.Vec3{}, false
	}
	p := bc.Mul(-a.D()).Add(nc.Cross(na).Mul(-b.D())).Add(na.Cross(nb).Mul(-c.D()))
	return p.Mul(1 / det), true
}
