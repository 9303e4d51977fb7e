package hull

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// cookedSizes returns the vertex and face counts a physics engine would
// see. Inflated hulls bevel every face corner into its own vertex.
func (h *ConvexHull) cookedSizes(inflated bool) (verts, faces int) {
	faces = len(h.Planes)
	if !inflated {
		return len(h.Vertices), faces
	}
	eps := 10 * relativeEps * h.size()
	for _, pl := range h.Planes {
		for _, v := range h.Vertices {
			if math.Abs(pl.Distance(v)) <= eps {
				verts++
			}
		}
	}
	return verts, faces
}

func withinLimits(verts, faces int, maxV, maxE, maxF int) bool {
	edges := verts + faces - 2
	return (maxV == 0 || verts <= maxV) && (maxE == 0 || edges <= maxE) && (maxF == 0 || faces <= maxF)
}

// ReduceHull shrinks h until its vertex, edge and face counts fit the given
// budgets. A zero budget is unlimited. The reduced hull is the hull of a
// subset of the original vertices, grown greedily from the largest
// tetrahedron by the vertex adding the most volume. It returns false when
// not even a tetrahedron fits, leaving h unchanged.
func (h *ConvexHull) ReduceHull(maxVerts, maxEdges, maxFaces int, inflated bool) bool {
	if h.IsEmpty() {
		return true
	}
	if v, f := h.cookedSizes(inflated); withinLimits(v, f, maxVerts, maxEdges, maxFaces) {
		return true
	}
	verts := append([]mgl64.Vec3(nil), h.Vertices...)
	n := len(verts)
	if n < 4 {
		return false
	}

	var tet [4]int
	best := 0.0
	for i := 0; i < n-3; i++ {
		for j := i + 1; j < n-2; j++ {
			for k := j + 1; k < n-1; k++ {
				for l := k + 1; l < n; l++ {
					a := verts[j].Sub(verts[i])
					b := verts[k].Sub(verts[i])
					c := verts[l].Sub(verts[i])
					if v := math.Abs(a.Dot(b.Cross(c))); v > best {
						best, tet = v, [4]int{i, j, k, l}
					}
				}
			}
		}
	}

	chosen := []mgl64.Vec3{verts[tet[0]], verts[tet[1]], verts[tet[2]], verts[tet[3]]}
	candidate := New()
	candidate.BuildFromPoints(chosen)
	if v, f := candidate.cookedSizes(inflated); candidate.IsEmpty() || !withinLimits(v, f, maxVerts, maxEdges, maxFaces) {
		return false
	}
	remaining := make([]mgl64.Vec3, 0, n-4)
	for i, v := range verts {
		if i != tet[0] && i != tet[1] && i != tet[2] && i != tet[3] {
			remaining = append(remaining, v)
		}
	}

	current := candidate
	for len(remaining) > 0 {
		bestIndex := -1
		var bestHull *ConvexHull
		for i, v := range remaining {
			if current.Contains(v, 0) {
				continue
			}
			trial := New()
			trial.BuildFromPoints(append(append([]mgl64.Vec3(nil), current.Vertices...), v))
			if bestHull == nil || trial.Volume > bestHull.Volume {
				bestIndex, bestHull = i, trial
			}
		}
		if bestHull == nil {
			break
		}
		if v, f := bestHull.cookedSizes(inflated); !withinLimits(v, f, maxVerts, maxEdges, maxFaces) {
			break
		}
		current = bestHull
		remaining = append(remaining[:bestIndex], remaining[bestIndex+1:]...)
	}
	*h = *current
	return true
}
