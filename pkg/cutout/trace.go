package cutout

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrBufferSize is returned when a pixel buffer does not hold w*h RGB
	// triples.
	ErrBufferSize = errors.New("cutout: pixel buffer size mismatch")

	// ErrTooComplex is returned when a cutout has more vertices than a
	// PolyVert can index.
	ErrTooComplex = errors.New("cutout: cutout has too many vertices")
)

const (
	lineLabel   = -2
	unassigned  = -1
	outsideMark = -1
)

type corner struct{ x, y int }

func (c corner) less(o corner) bool {
	return c.y < o.y || (c.y == o.y && c.x < o.x)
}

func (c corner) vec() mgl64.Vec3 { return mgl64.Vec3{float64(c.x), float64(c.y), 0} }

// isLine reports whether an RGB pixel is bright enough to be a cut line.
func isLine(r, g, b byte) bool {
	pix := 5033165*uint32(r) + 9898557*uint32(g) + 1845494*uint32(b)
	return pix>>28 != 0
}

// FromPixels builds a cutout set from a row-major RGB buffer of w by h
// pixels. Bright pixels are cut lines and every 4-connected region of dark
// pixels becomes a cutout. Regions are grown across the lines until they
// tile the image, so neighboring cutouts share their boundaries exactly.
// Boundaries are simplified to snapThreshold pixels, with junctions of
// three or more regions held in place.
func FromPixels(rgb []byte, w, h int, snapThreshold float64, periodic bool) (*Set, error) {
	s := &Set{Periodic: periodic, Dimensions: mgl64.Vec2{float64(w), float64(h)}}
	if w <= 0 || h <= 0 {
		return s, nil
	}
	if len(rgb) != 3*w*h {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrBufferSize, len(rgb), w, h)
	}

	labels, count := labelRegions(rgb, w, h)
	if count == 0 {
		return s, nil
	}
	growRegions(labels, w, h)

	label := func(x, y int) int {
		if x < 0 || y < 0 || x >= w || y >= h {
			return outsideMark
		}
		return labels[y*w+x]
	}

	loops := outerBoundaries(labels, w, h, count)
	for r, loop := range loops {
		if len(loop) < 3 {
			continue
		}
		verts := simplifyLoop(loop, snapThreshold, func(c corner) bool {
			return isJunction(label, c, w, h)
		})
		if len(verts) < 3 {
			continue
		}
		if len(verts) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: region %d has %d", ErrTooComplex, r, len(verts))
		}
		c := Cutout{Vertices: make([]mgl64.Vec3, len(verts))}
		for i, v := range verts {
			c.Vertices[i] = v.vec()
		}
		if !c.decompose(0) {
			continue
		}
		s.Cutouts = append(s.Cutouts, c)
	}
	s.sortByArea()
	return s, nil
}

// labelRegions flood fills the dark pixels. Line pixels get lineLabel.
func labelRegions(rgb []byte, w, h int) ([]int, int) {
	labels := make([]int, w*h)
	for i := range labels {
		if isLine(rgb[3*i], rgb[3*i+1], rgb[3*i+2]) {
			labels[i] = lineLabel
		} else {
			labels[i] = unassigned
		}
	}
	count := 0
	var stack []int
	for start := range labels {
		if labels[start] != unassigned {
			continue
		}
		labels[start] = count
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			forNeighbors(i, w, h, func(j int) {
				if labels[j] == unassigned {
					labels[j] = count
					stack = append(stack, j)
				}
			})
		}
		count++
	}
	return labels, count
}

// growRegions assigns every line pixel to the nearest region, breadth
// first.
func growRegions(labels []int, w, h int) {
	var queue []int
	for i, l := range labels {
		if l >= 0 {
			queue = append(queue, i)
		}
	}
	for next := 0; next < len(queue); next++ {
		i := queue[next]
		forNeighbors(i, w, h, func(j int) {
			if labels[j] == lineLabel {
				labels[j] = labels[i]
				queue = append(queue, j)
			}
		})
	}
}

func forNeighbors(i, w, h int, f func(j int)) {
	x, y := i%w, i/w
	if x > 0 {
		f(i - 1)
	}
	if x+1 < w {
		f(i + 1)
	}
	if y > 0 {
		f(i - w)
	}
	if y+1 < h {
		f(i + w)
	}
}

// outerBoundaries traces, for each region, its outer boundary on the pixel
// corner lattice. Loops run with the region on the left (counterclockwise
// with y taken as up).
func outerBoundaries(labels []int, w, h, count int) [][]corner {
	type edge struct{ from, to corner }
	edges := make([][]edge, count)
	at := func(x, y int) int {
		if x < 0 || y < 0 || x >= w || y >= h {
			return outsideMark
		}
		return labels[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := labels[y*w+x]
			if r < 0 {
				continue
			}
			if at(x, y-1) != r {
				edges[r] = append(edges[r], edge{corner{x, y}, corner{x + 1, y}})
			}
			if at(x+1, y) != r {
				edges[r] = append(edges[r], edge{corner{x + 1, y}, corner{x + 1, y + 1}})
			}
			if at(x, y+1) != r {
				edges[r] = append(edges[r], edge{corner{x + 1, y + 1}, corner{x, y + 1}})
			}
			if at(x-1, y) != r {
				edges[r] = append(edges[r], edge{corner{x, y + 1}, corner{x, y}})
			}
		}
	}

	out := make([][]corner, count)
	for r, es := range edges {
		outgoing := make(map[corner][]int, len(es))
		for i, e := range es {
			outgoing[e.from] = append(outgoing[e.from], i)
		}
		used := make([]bool, len(es))
		bestArea := 0.0
		for start := range es {
			if used[start] {
				continue
			}
			var loop []corner
			cur := start
			for !used[cur] {
				used[cur] = true
				e := es[cur]
				loop = append(loop, e.from)
				dir := corner{e.to.x - e.from.x, e.to.y - e.from.y}
				next := -1
				bestTurn := -2
				for _, j := range outgoing[e.to] {
					if used[j] {
						continue
					}
					d := corner{es[j].to.x - es[j].from.x, es[j].to.y - es[j].from.y}
					turn := dir.x*d.y - dir.y*d.x
					if turn == 0 && dir.x*d.x+dir.y*d.y < 0 {
						continue
					}
					if turn > bestTurn {
						bestTurn, next = turn, j
					}
				}
				if next < 0 {
					break
				}
				cur = next
			}
			if a := loopArea(loop); a > bestArea {
				bestArea = a
				out[r] = loop
			}
		}
	}
	return out
}

func loopArea(loop []corner) float64 {
	a := 0
	n := len(loop)
	for i := range loop {
		p, q := loop[(i+n-1)%n], loop[i]
		a += p.x*q.y - p.y*q.x
	}
	return float64(a) / 2
}

// isJunction reports whether a lattice corner must survive
// simplification: where three or more regions meet, where two regions
// touch diagonally, or at an image corner.
func isJunction(label func(x, y int) int, c corner, w, h int) bool {
	if (c.x == 0 || c.x == w) && (c.y == 0 || c.y == h) {
		return true
	}
	a, b := label(c.x-1, c.y-1), label(c.x, c.y-1)
	d, e := label(c.x-1, c.y), label(c.x, c.y)
	if a == e && b == d && a != b {
		return true
	}
	distinct := []int{a}
	for _, l := range []int{b, d, e} {
		seen := false
		for _, x := range distinct {
			if x == l {
				seen = true
				break
			}
		}
		if !seen {
			distinct = append(distinct, l)
		}
	}
	return len(distinct) >= 3
}

// simplifyLoop reduces a closed loop with Douglas-Peucker, chain by chain
// between fixed corners. Each chain is simplified in a canonical direction
// so the neighbor sharing it, which walks it reversed, gets the same
// result.
func simplifyLoop(loop []corner, tol float64, fixed func(corner) bool) []corner {
	n := len(loop)
	var anchors []int
	for i, c := range loop {
		if fixed(c) {
			anchors = append(anchors, i)
		}
	}
	if len(anchors) == 0 {
		min := 0
		for i := range loop {
			if loop[i].less(loop[min]) {
				min = i
			}
		}
		anchors = []int{min}
	}

	var out []corner
	for a := range anchors {
		start := anchors[a]
		stop := anchors[(a+1)%len(anchors)]
		length := (stop - start + n) % n
		if length == 0 {
			length = n
		}
		chain := make([]corner, length+1)
		for i := range chain {
			chain[i] = loop[(start+i)%n]
		}
		kept := simplifyChain(chain, tol)
		out = append(out, kept[:len(kept)-1]...)
	}
	return removeCollinear(out)
}

func simplifyChain(chain []corner, tol float64) []corner {
	last := len(chain) - 1
	reversed := chain[last].less(chain[0]) ||
		(chain[last] == chain[0] && last > 1 && chain[last-1].less(chain[1]))
	if reversed {
		chain = reverse(chain)
	}
	keep := make([]bool, len(chain))
	keep[0], keep[last] = true, true
	douglasPeucker(chain, 0, last, tol, keep)
	out := make([]corner, 0, len(chain))
	for i, c := range chain {
		if keep[i] {
			out = append(out, c)
		}
	}
	if reversed {
		out = reverse(out)
	}
	return out
}

func douglasPeucker(chain []corner, i, j int, tol float64, keep []bool) {
	if j-i < 2 {
		return
	}
	a, b := chain[i].vec(), chain[j].vec()
	farthest, maxDist := -1, tol
	for k := i + 1; k < j; k++ {
		if d := segmentDistance(chain[k].vec(), a, b); d > maxDist {
			farthest, maxDist = k, d
		}
	}
	if farthest < 0 {
		return
	}
	keep[farthest] = true
	douglasPeucker(chain, i, farthest, tol, keep)
	douglasPeucker(chain, farthest, j, tol, keep)
}

func segmentDistance(p, a, b mgl64.Vec3) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Sub(a).Len()
	}
	t := math.Max(0, math.Min(1, p.Sub(a).Dot(ab)/l2))
	return p.Sub(a.Add(ab.Mul(t))).Len()
}

// removeCollinear drops corners lying on the line through their
// neighbors.
func removeCollinear(loop []corner) []corner {
	for changed := true; changed && len(loop) > 3; {
		changed = false
		n := len(loop)
		for i := 0; i < n; i++ {
			p, c, q := loop[(i+n-1)%n], loop[i], loop[(i+1)%n]
			if (c.x-p.x)*(q.y-c.y)-(c.y-p.y)*(q.x-c.x) == 0 {
				loop = append(loop[:i], loop[i+1:]...)
				changed = true
				break
			}
		}
	}
	return loop
}

func reverse(cs []corner) []corner {
	out := make([]corner, len(cs))
	for i, c := range cs {
		out[len(cs)-1-i] = c
	}
	return out
}
