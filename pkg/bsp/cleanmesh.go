package bsp

import (
	"math"
	"sort"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// cleanMesh re-merges the fragments of each splitting plane and facing.
// Fragments of original triangles that share a submesh and an equal frame
// are unioned in the plane's 2D frame and re-triangulated; groups that
// fail to merge, or do not shrink, keep their fragments. Fragments facing
// opposite ways on one plane are never merged, so an interior face left
// between two inside leaves still cancels.
func (b *BSP) cleanMesh(clipped []csgmath.Triangle, info []clippedTriangleInfo) []mesh.RenderTriangle {
	sort.Slice(info, func(i, j int) bool {
		a, c := info[i], info[j]
		if a.planeIndex != c.planeIndex {
			return a.planeIndex < c.planeIndex
		}
		if a.ccw != c.ccw {
			return c.ccw
		}
		if a.originalIndex != c.originalIndex {
			return a.originalIndex < c.originalIndex
		}
		return a.clippedIndex < c.clippedIndex
	})

	distanceTol := b.tol.Cleaning * b.meshSize
	out := make([]mesh.RenderTriangle, 0, len(clipped))
	for start := 0; start < len(info); {
		stop := start + 1
		for stop < len(info) && info[stop].planeIndex == info[start].planeIndex && info[stop].ccw == info[start].ccw {
			stop++
		}
		if p := info[start].planeIndex; p == noPlane {
			for _, inf := range info[start:stop] {
				out = append(out, b.fragmentToRender(clipped[inf.clippedIndex], inf))
			}
		} else {
			out = b.mergePlaneGroup(out, clipped, info[start:stop], b.planes[p], distanceTol)
		}
		start = stop
	}
	return out
}

// planeFrame returns orthonormal in-plane axes for a plane with unit
// normal z.
func planeFrame(z mgl64.Vec3) (x, y mgl64.Vec3) {
	maxDir := csgmath.MaxAbsIndex(z)
	x = csgmath.Axis((maxDir + 1) % 3)
	y = csgmath.Normalized(z.Cross(x))
	x = y.Cross(z)
	return x, y
}

type originalGroup struct {
	original uint32
	infos    []clippedTriangleInfo
}

func (b *BSP) mergePlaneGroup(out []mesh.RenderTriangle, clipped []csgmath.Triangle, infos []clippedTriangleInfo, plane csgmath.Plane, distanceTol float64) []mesh.RenderTriangle {
	var groups []originalGroup
	for i := 0; i < len(infos); {
		j := i + 1
		for j < len(infos) && infos[j].originalIndex == infos[i].originalIndex {
			j++
		}
		groups = append(groups, originalGroup{infos[i].originalIndex, infos[i:j]})
		i = j
	}

	z := plane.Normal()
	x, y := planeFrame(z)
	used := make([]bool, len(groups))
	for seed := range groups {
		if used[seed] {
			continue
		}
		used[seed] = true
		seedTri := &b.mesh[groups[seed].original]
		seedFrame := &b.frames[groups[seed].original]

		members := []int{seed}
		for k := seed + 1; k < len(groups); k++ {
			if used[k] {
				continue
			}
			t := &b.mesh[groups[k].original]
			if t.SubmeshIndex != seedTri.SubmeshIndex {
				continue
			}
			if plane.Distance(t.Vertices[0]) > distanceTol ||
				plane.Distance(t.Vertices[1]) > distanceTol ||
				plane.Distance(t.Vertices[2]) > distanceTol {
				continue
			}
			if !b.frames[groups[k].original].Equals(seedFrame, b.tol.Frames) {
				continue
			}
			used[k] = true
			members = append(members, k)
		}

		var tris2D [][3]mgl64.Vec2
		signedArea := 0.0
		for _, m := range members {
			for _, inf := range groups[m].infos {
				t := &clipped[inf.clippedIndex]
				ccw := t.Normal.Dot(z) > 0
				i1, i2 := 1, 2
				if ccw {
					signedArea += math.Abs(t.Area)
				} else {
					signedArea -= math.Abs(t.Area)
					i1, i2 = 2, 1
				}
				project := func(p mgl64.Vec3) mgl64.Vec2 { return mgl64.Vec2{x.Dot(p), y.Dot(p)} }
				tris2D = append(tris2D, [3]mgl64.Vec2{project(t.Vertices[0]), project(t.Vertices[i1]), project(t.Vertices[i2])})
			}
		}

		merged, ok := mergeTriangles2D(tris2D, distanceTol)
		if !ok || len(merged) >= len(tris2D) {
			for _, m := range members {
				for _, inf := range groups[m].infos {
					out = append(out, b.fragmentToRender(clipped[inf.clippedIndex], inf))
				}
			}
			continue
		}

		ccw := signedArea >= 0
		sign := 1.0
		vMap := [3]int{0, 1, 2}
		if !ccw {
			sign = -1
			vMap = [3]int{0, 2, 1}
		}
		origin := z.Mul(-plane.D())
		for _, t2 := range merged {
			var t csgmath.Triangle
			for v := 0; v < 3; v++ {
				p := t2[vMap[v]]
				t.Vertices[v] = origin.Add(x.Mul(p[0])).Add(y.Mul(p[1]))
			}
			t.Transform(b.internalTransformInverse)
			t.SubmeshIndex = seedTri.SubmeshIndex
			t.SmoothingMask = seedTri.SmoothingMask
			t.ExtraDataIndex = seedTri.ExtraDataIndex
			out = append(out, renderTriangle(&t, seedFrame, sign))
		}
	}
	return out
}

// mergeTriangles2D unions counter-clockwise triangles into polygons and
// re-triangulates them. Vertices closer than tol are welded, opposing
// shared edges cancel, and collinear boundary vertices are dropped. It
// fails when the boundary does not form closed loops or a loop cannot be
// triangulated.
func mergeTriangles2D(tris [][3]mgl64.Vec2, tol float64) ([][3]mgl64.Vec2, bool) {
	tol2 := tol * tol
	var verts []mgl64.Vec2
	weld := func(p mgl64.Vec2) int {
		for i, v := range verts {
			if v.Sub(p).LenSqr() <= tol2 {
				return i
			}
		}
		verts = append(verts, p)
		return len(verts) - 1
	}
	var indexed [][3]int
	for _, t := range tris {
		it := [3]int{weld(t[0]), weld(t[1]), weld(t[2])}
		if it[0] == it[1] || it[1] == it[2] || it[2] == it[0] {
			continue
		}
		indexed = append(indexed, it)
	}

	type edge struct{ a, b int }
	counts := make(map[edge]int)
	var order []edge
	addEdge := func(a, b int) {
		if counts[edge{b, a}] > 0 {
			counts[edge{b, a}]--
			return
		}
		if counts[edge{a, b}] == 0 {
			order = append(order, edge{a, b})
		}
		counts[edge{a, b}]++
	}
	for _, t := range indexed {
		for k := 0; k < 3; k++ {
			a, c := t[k], t[(k+1)%3]
			// Split at vertices lying on the edge so T-junctions cancel.
			chain := []int{a}
			chain = append(chain, pointsOnSegment(verts, a, c, tol)...)
			chain = append(chain, c)
			for i := 0; i+1 < len(chain); i++ {
				addEdge(chain[i], chain[i+1])
			}
		}
	}

	outgoing := make(map[int][]int)
	remaining := 0
	for _, e := range order {
		for n := counts[e]; n > 0; n-- {
			outgoing[e.a] = append(outgoing[e.a], e.b)
			remaining++
		}
	}

	var loops [][]int
	for _, e := range order {
		for len(outgoing[e.a]) > 0 {
			start := e.a
			loop := []int{start}
			prev := start
			cur := takeOutgoing(verts, outgoing, -1, start)
			remaining--
			for cur != start {
				if len(outgoing[cur]) == 0 || len(loop) > len(verts)+remaining {
					return nil, false
				}
				loop = append(loop, cur)
				next := takeOutgoing(verts, outgoing, prev, cur)
				remaining--
				prev, cur = cur, next
			}
			if loop = simplifyLoop(verts, loop, tol); len(loop) >= 3 {
				loops = append(loops, loop)
			}
		}
	}

	var outers, holes [][]int
	for _, l := range loops {
		if loopArea(verts, l) > 0 {
			outers = append(outers, l)
		} else {
			holes = append(holes, l)
		}
	}
	owned := make([][][]int, len(outers))
	for _, h := range holes {
		best, bestArea := -1, math.MaxFloat64
		for i, o := range outers {
			if a := loopArea(verts, o); a < bestArea && pointInLoop(verts, o, verts[h[0]]) {
				best, bestArea = i, a
			}
		}
		if best < 0 {
			return nil, false
		}
		owned[best] = append(owned[best], h)
	}

	var result [][3]mgl64.Vec2
	for i, o := range outers {
		poly, ok := bridgeHoles(verts, o, owned[i])
		if !ok {
			return nil, false
		}
		tri, ok := earClip(verts, poly)
		if !ok {
			return nil, false
		}
		result = append(result, tri...)
	}
	return result, true
}

// pointsOnSegment returns the vertices strictly inside segment a-c, within
// tol of it, ordered from a.
func pointsOnSegment(verts []mgl64.Vec2, a, c int, tol float64) []int {
	pa, pc := verts[a], verts[c]
	d := pc.Sub(pa)
	l2 := d.LenSqr()
	if l2 == 0 {
		return nil
	}
	type hit struct {
		i int
		s float64
	}
	var hits []hit
	for i, p := range verts {
		if i == a || i == c {
			continue
		}
		s := p.Sub(pa).Dot(d) / l2
		if s <= 0 || s >= 1 {
			continue
		}
		if pa.Add(d.Mul(s)).Sub(p).LenSqr() <= tol*tol {
			hits = append(hits, hit{i, s})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].s < hits[j].s })
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.i
	}
	return out
}

// takeOutgoing removes and returns an edge leaving cur. With several
// candidates it takes the sharpest right turn from the incoming edge.
func takeOutgoing(verts []mgl64.Vec2, outgoing map[int][]int, prev, cur int) int {
	cands := outgoing[cur]
	best := 0
	if prev >= 0 && len(cands) > 1 {
		in := verts[cur].Sub(verts[prev])
		bestAngle := math.MaxFloat64
		for k, c := range cands {
			o := verts[c].Sub(verts[cur])
			angle := math.Atan2(cross2(in, o), in.Dot(o))
			if angle < bestAngle {
				best, bestAngle = k, angle
			}
		}
	}
	next := cands[best]
	cands[best] = cands[len(cands)-1]
	outgoing[cur] = cands[:len(cands)-1]
	return next
}

func cross2(a, b mgl64.Vec2) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

// simplifyLoop removes spikes and vertices within tol of the line through
// their neighbours.
func simplifyLoop(verts []mgl64.Vec2, loop []int, tol float64) []int {
	for changed := true; changed && len(loop) >= 3; {
		changed = false
		for i := 0; i < len(loop) && len(loop) >= 3; i++ {
			n := len(loop)
			a := verts[loop[(i+n-1)%n]]
			p := verts[loop[i]]
			c := verts[loop[(i+1)%n]]
			ac := c.Sub(a)
			l2 := ac.LenSqr()
			remove := false
			if l2 <= tol*tol || loop[i] == loop[(i+1)%n] {
				remove = true
			} else {
				h := cross2(p.Sub(a), ac)
				remove = h*h < tol*tol*l2 && p.Sub(a).Dot(ac) > 0 && c.Sub(p).Dot(ac) > 0
			}
			if remove {
				loop = append(loop[:i], loop[i+1:]...)
				changed = true
				i--
			}
		}
	}
	return loop
}

func loopArea(verts []mgl64.Vec2, loop []int) float64 {
	a := 0.0
	for i := range loop {
		a += cross2(verts[loop[i]], verts[loop[(i+1)%len(loop)]])
	}
	return 0.5 * a
}

func pointInLoop(verts []mgl64.Vec2, loop []int, p mgl64.Vec2) bool {
	in := false
	for i := range loop {
		a := verts[loop[i]]
		c := verts[loop[(i+1)%len(loop)]]
		if (a[1] > p[1]) != (c[1] > p[1]) {
			x := a[0] + (p[1]-a[1])*(c[0]-a[0])/(c[1]-a[1])
			if p[0] < x {
				in = !in
			}
		}
	}
	return in
}

// segmentsCross reports a proper crossing of p0-p1 and q0-q1. Segments
// that share an endpoint do not cross.
func segmentsCross(p0, p1, q0, q1 mgl64.Vec2) bool {
	if p0 == q0 || p0 == q1 || p1 == q0 || p1 == q1 {
		return false
	}
	d1 := cross2(p1.Sub(p0), q0.Sub(p0))
	d2 := cross2(p1.Sub(p0), q1.Sub(p0))
	d3 := cross2(q1.Sub(q0), p0.Sub(q0))
	d4 := cross2(q1.Sub(q0), p1.Sub(q0))
	return d1*d2 < 0 && d3*d4 < 0
}

// bridgeHoles splices each hole into outer along the shortest diagonal
// that crosses no loop edge.
func bridgeHoles(verts []mgl64.Vec2, outer []int, holes [][]int) ([]int, bool) {
	poly := append([]int(nil), outer...)
	pending := append([][]int(nil), holes...)
	for len(pending) > 0 {
		bestHole, bi, bj := -1, 0, 0
		bestD := math.MaxFloat64
		for h, hole := range pending {
			for j, hv := range hole {
				for i, pv := range poly {
					d := verts[hv].Sub(verts[pv]).LenSqr()
					if d >= bestD || !diagonalIsValid(verts, pv, hv, poly, pending) {
						continue
					}
					bestHole, bi, bj, bestD = h, i, j, d
				}
			}
		}
		if bestHole < 0 {
			return nil, false
		}
		hole := pending[bestHole]
		spliced := make([]int, 0, len(poly)+len(hole)+2)
		spliced = append(spliced, poly[:bi+1]...)
		for k := 0; k <= len(hole); k++ {
			spliced = append(spliced, hole[(bj+k)%len(hole)])
		}
		spliced = append(spliced, poly[bi:]...)
		poly = spliced
		pending = append(pending[:bestHole], pending[bestHole+1:]...)
	}
	return poly, true
}

func diagonalIsValid(verts []mgl64.Vec2, a, b int, poly []int, loops [][]int) bool {
	pa, pb := verts[a], verts[b]
	check := func(loop []int) bool {
		for i := range loop {
			if segmentsCross(pa, pb, verts[loop[i]], verts[loop[(i+1)%len(loop)]]) {
				return false
			}
		}
		return true
	}
	if !check(poly) {
		return false
	}
	for _, l := range loops {
		if !check(l) {
			return false
		}
	}
	return true
}

// earClip triangulates a counter-clockwise, weakly simple polygon.
func earClip(verts []mgl64.Vec2, poly []int) ([][3]mgl64.Vec2, bool) {
	ring := append([]int(nil), poly...)
	var out [][3]mgl64.Vec2
	for len(ring) > 3 {
		n := len(ring)
		found := false
		for i := 0; i < n; i++ {
			a := verts[ring[(i+n-1)%n]]
			p := verts[ring[i]]
			c := verts[ring[(i+1)%n]]
			if cross2(p.Sub(a), c.Sub(p)) <= 0 {
				continue
			}
			ear := true
			for k := 0; k < n && ear; k++ {
				q := verts[ring[k]]
				if q == a || q == p || q == c {
					continue
				}
				ear = !strictlyInTriangle(q, a, p, c)
			}
			if !ear {
				continue
			}
			out = append(out, [3]mgl64.Vec2{a, p, c})
			ring = append(ring[:i], ring[i+1:]...)
			found = true
			break
		}
		if !found {
			return nil, false
		}
	}
	a, p, c := verts[ring[0]], verts[ring[1]], verts[ring[2]]
	if cross2(p.Sub(a), c.Sub(p)) > 0 {
		out = append(out, [3]mgl64.Vec2{a, p, c})
	}
	return out, true
}

func strictlyInTriangle(q, a, b, c mgl64.Vec2) bool {
	return cross2(b.Sub(a), q.Sub(a)) > 0 &&
		cross2(c.Sub(b), q.Sub(b)) > 0 &&
		cross2(a.Sub(c), q.Sub(c)) > 0
}
