package cutout

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const convexEps = 1e-9

// directionsOrderedCCW reports whether d1 lies within the counterclockwise
// sweep from d0 to d2.
func directionsOrderedCCW(d0, d1, d2 mgl64.Vec3) bool {
	ccw02 := crossZ(d0, d2) > 0
	ccw01 := crossZ(d0, d1) > 0
	ccw21 := crossZ(d2, d1) > 0
	if ccw02 {
		return ccw01 && ccw21
	}
	return ccw01 || ccw21
}

// segmentsTouch reports whether segments ab and cd intersect, endpoints
// and collinear overlaps included.
func segmentsTouch(a, b, c, d mgl64.Vec3) bool {
	o1 := orient(a, b, c)
	o2 := orient(a, b, d)
	o3 := orient(c, d, a)
	o4 := orient(c, d, b)
	if o1*o2 < 0 && o3*o4 < 0 {
		return true
	}
	return (o1 == 0 && onSegment(a, b, c)) || (o2 == 0 && onSegment(a, b, d)) ||
		(o3 == 0 && onSegment(c, d, a)) || (o4 == 0 && onSegment(c, d, b))
}

func orient(a, b, c mgl64.Vec3) int {
	v := crossZ(b.Sub(a), c.Sub(a))
	scale := b.Sub(a).Len() * c.Sub(a).Len()
	switch {
	case v > convexEps*scale:
		return 1
	case v < -convexEps*scale:
		return -1
	}
	return 0
}

func onSegment(a, b, p mgl64.Vec3) bool {
	return p[0] >= math.Min(a[0], b[0])-convexEps && p[0] <= math.Max(a[0], b[0])+convexEps &&
		p[1] >= math.Min(a[1], b[1])-convexEps && p[1] <= math.Max(a[1], b[1])+convexEps
}

// perpendicularDistanceSquared is the squared distance from v1 to the line
// through v0 and v2.
func perpendicularDistanceSquared(v0, v1, v2 mgl64.Vec3) float64 {
	base := v2.Sub(v0)
	l2 := base.Dot(base)
	if l2 == 0 {
		d := v1.Sub(v0)
		return d.Dot(d)
	}
	c := crossZ(base, v1.Sub(v0))
	return c * c / l2
}

// decompose splits c into counterclockwise convex loops by repeatedly
// cutting a loop along its shortest valid diagonal at a reflex vertex.
// Diagonals that leave no reflex angle at their ends come first, then those
// whose ends continue an existing edge to within cleanupTolerance.
// Collinear vertices within that tolerance are removed from the loops. It reports false for degenerate
// cutouts.
func (c *Cutout) decompose(cleanupTolerance float64) bool {
	n := len(c.Vertices)
	c.ConvexLoops = nil
	if n < 3 {
		return false
	}
	area := c.Area()
	if math.Abs(area) < convexEps {
		return false
	}
	first := ConvexLoop{PolyVerts: make([]PolyVert, n)}
	for i := range first.PolyVerts {
		idx := i
		if area < 0 {
			idx = n - 1 - i
		}
		first.PolyVerts[i] = PolyVert{Index: uint16(idx)}
	}
	c.ConvexLoops = []ConvexLoop{first}
	tol2 := cleanupTolerance * cleanupTolerance

	for i := 0; i < len(c.ConvexLoops); {
		loop := c.ConvexLoops[i].PolyVerts
		size := len(loop)
		at := func(j int) mgl64.Vec3 { return c.Vertices[loop[(j+size)%size].Index] }
		reflex := make([]bool, size)
		anyReflex := false
		for j := range loop {
			if crossZ(at(j).Sub(at(j-1)), at(j+1).Sub(at(j))) < -convexEps {
				reflex[j] = true
				anyReflex = true
			}
		}
		if size <= 3 || !anyReflex {
			if cleanupTolerance > 0 {
				c.cleanLoop(i, tol2)
			}
			i++
			continue
		}

		k, m, ok := c.bestDiagonal(loop, reflex, tol2)
		if !ok {
			// No valid diagonal; leave the loop as is rather than fail the
			// whole cutout.
			i++
			continue
		}
		split := make([]PolyVert, m-k+1)
		copy(split, loop[k:m+1])
		split[m-k].Flags |= SplitEdge
		loop[k].Flags |= SplitEdge
		rest := append(append([]PolyVert(nil), loop[:k+1]...), loop[m:]...)
		c.ConvexLoops[i].PolyVerts = rest
		c.ConvexLoops = append(c.ConvexLoops, ConvexLoop{PolyVerts: split})
	}
	return true
}

func (c *Cutout) bestDiagonal(loop []PolyVert, reflex []bool, tol2 float64) (int, int, bool) {
	size := len(loop)
	at := func(j int) mgl64.Vec3 { return c.Vertices[loop[(j+size)%size].Index] }
	bestK, bestM := -1, -1
	bestLen2 := math.MaxFloat64
	bestClean, bestResolves := false, false
	for k := 0; k < size; k++ {
		vkPrev, vk, vkNext := at(k-1), at(k), at(k+1)
		mStop := size
		if k == 0 {
			mStop = size - 1
		}
		for m := k + 2; m < mStop; m++ {
			if !reflex[k] && !reflex[m] {
				continue
			}
			vmPrev, vm, vmNext := at(m-1), at(m), at(m+1)
			diag := vm.Sub(vk)
			if !directionsOrderedCCW(vk.Sub(vkPrev), diag, vkNext.Sub(vk)) ||
				!directionsOrderedCCW(vm.Sub(vmPrev), diag.Mul(-1), vmNext.Sub(vm)) {
				continue
			}
			crosses := false
			for l := 0; l < size && !crosses; l++ {
				l1 := (l + 1) % size
				if l == k || l1 == k || l == m || l1 == m {
					continue
				}
				crosses = segmentsTouch(vk, vm, at(l), at(l1))
			}
			if crosses {
				continue
			}
			len2 := diag.Dot(diag)
			clean := tol2 > 0 && (perpendicularDistanceSquared(vkPrev, vk, vm) <= tol2 ||
				perpendicularDistanceSquared(vk, vm, vmNext) <= tol2)
			// A resolving diagonal leaves both of its ends convex in both
			// halves.
			resolves := crossZ(vk.Sub(vkPrev), diag) >= -convexEps &&
				crossZ(diag.Mul(-1), vkNext.Sub(vk)) >= -convexEps &&
				crossZ(vm.Sub(vmPrev), diag.Mul(-1)) >= -convexEps &&
				crossZ(diag, vmNext.Sub(vm)) >= -convexEps
			better := resolves && !bestResolves
			if resolves == bestResolves {
				better = (clean && !bestClean) || (clean == bestClean && len2 < bestLen2)
			}
			if better {
				bestK, bestM, bestLen2, bestClean, bestResolves = k, m, len2, clean, resolves
			}
		}
	}
	return bestK, bestM, bestK >= 0
}

func (c *Cutout) cleanLoop(i int, tol2 float64) {
	loop := c.ConvexLoops[i].PolyVerts
	for changed := true; changed && len(loop) > 3; {
		changed = false
		size := len(loop)
		for j := 0; j < size; j++ {
			v0 := c.Vertices[loop[(j+size-1)%size].Index]
			v1 := c.Vertices[loop[j].Index]
			v2 := c.Vertices[loop[(j+1)%size].Index]
			if perpendicularDistanceSquared(v0, v1, v2) <= tol2 {
				loop = append(loop[:j], loop[j+1:]...)
				changed = true
				break
			}
		}
	}
	c.ConvexLoops[i].PolyVerts = loop
}

// Decompose recomputes the convex loops of every cutout in s.
func (s *Set) Decompose(cleanupTolerance float64) {
	for i := range s.Cutouts {
		s.Cutouts[i].decompose(cleanupTolerance)
	}
}
