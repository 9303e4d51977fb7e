// Package gsa implements the void simplex test for 3D halfspace sets: it
// decides whether the intersection of a (possibly implicit) set of
// halfspaces is non-empty and, optionally, finds the point of that
// intersection closest to an objective point.
package gsa

import (
	"log"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

// HalfspaceSet is a convex region described by the halfspaces n·x + d <= 0.
type HalfspaceSet interface {
	// FarthestHalfspace returns the boundary plane whose dot product with
	// the homogeneous point is greatest, along with that dot product.
	// point[3] is non-negative but not necessarily 1. Planes must be
	// normalized.
	FarthestHalfspace(point mgl64.Vec4) (csgmath.Plane, float64)
}

const (
	// epsilon is 8 times the machine epsilon of float64.
	epsilon = 8.0 / (1 << 52)

	maxIterations = 50
)

// Debug enables logging of iteration-cap overruns.
var Debug = false

type hvec struct {
	v mgl64.Vec3
	w float64
}

func (a hvec) dot(b hvec) float64 {
	return a.v.Dot(b.v) + a.w*b.w
}

func perp(a, b mgl64.Vec3) mgl64.Vec3 {
	return csgmath.Cross(a, b)
}

func extIndex(c10, c21, c20 int) int {
	return c10<<c21 | (c21&c20)<<1
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func indexOfMin(x0, x1, x2 float64) int {
	return extIndex(b2i(x1 < x0), b2i(x2 < x1), b2i(x2 < x0))
}

// fracGT returns aNum*sqrt(aRden2) > bNum*sqrt(bRden2) for positive
// denominators.
func fracGT(aNum, aRden2, bNum, bRden2 float64) bool {
	aNeg := aNum < 0
	bNeg := bNum < 0
	if aNeg != bNeg {
		return bNeg
	}
	return (aNum*aNum*aRden2 > bNum*bNum*bRden2) != aNeg
}

func indexOfMaxFrac(x0, r0, x1, r1, x2, r2 float64) int {
	return extIndex(b2i(fracGT(x1, r1, x0, r0)), b2i(fracGT(x2, r2, x1, r1)), b2i(fracGT(x2, r2, x0, r0)))
}

func sgnSqGT(sgnA, a2, sgnB, b2 float64) bool {
	if sgnA*sgnB < 0 {
		return sgnB < 0
	}
	return (a2 > b2) != (sgnA < 0)
}

func indexOfMaxSgnSq(s0, q0, s1, q1, s2, q2 float64) int {
	return extIndex(b2i(sgnSqGT(s1, q1, s0, q0)), b2i(sgnSqGT(s2, q2, s1, q1)), b2i(sgnSqGT(s2, q2, s0, q0)))
}

// project2D projects the homogeneous 2D point r onto the boundary of a 2D
// halfspace (x, y, w).
func project2D(r *mgl64.Vec3, plane mgl64.Vec3, delta, recipN2, eps2 float64) {
	n := mgl64.Vec3{plane[0], plane[1], 0}
	*r = r.Add(n.Mul(-delta * recipN2))
	*r = r.Add(n.Mul(-r.Dot(plane) * recipN2))
	if r.Dot(*r) > eps2 {
		return
	}
	*r = n.Mul(-plane[2] * recipN2)
	r[2] = 1
}

// update folds the newest plane s[planeCount-1] into the simplex, moving p
// to the point closest to q on the new plane subject to the kept planes.
// It returns false when a void simplex is found.
func update(p *hvec, s *[4]hvec, planeCount *int, q hvec, eps2 float64) bool {
	h := s[*planeCount-1]

	if *planeCount == 1 {
		*p = q
		p.v = p.v.Add(h.v.Mul(-p.dot(h)))
		if p.dot(*p) <= eps2 {
			*p = hvec{h.v.Mul(-h.w), 1}
		}
		return true
	}

	minI := indexOfMin(h.v[0]*h.v[0], h.v[1]*h.v[1], h.v[2]*h.v[2])
	y := h.v.Cross(csgmath.Axis(minI))
	x := y.Cross(h.v)

	r := mgl64.Vec3{x.Dot(q.v), y.Dot(q.v), q.w * y.Dot(y)}
	if r.Dot(r) <= eps2 {
		r[2] = 1
	}

	n := 0
	var (
		rs      [3]mgl64.Vec3
		recipN2 [3]float64
		delta   [3]float64
		index   [3]int
	)
	for i := 0; i < *planeCount-1; i++ {
		vi := s[i].v
		cosTheta := h.v.Dot(vi)
		rs[n] = mgl64.Vec3{x.Dot(vi), y.Dot(vi), s[i].w - h.w*cosTheta}
		index[n] = i
		n2 := rs[n][0]*rs[n][0] + rs[n][1]*rs[n][1]
		if n2 >= eps2 {
			linNorm := 1.5 - 0.5*n2
			rs[n] = rs[n].Mul(linNorm)
			recipN2[n] = 1 / (rs[n][0]*rs[n][0] + rs[n][1]*rs[n][1])
			delta[n] = r.Dot(rs[n])
			n++
		} else if cosTheta < 0 {
			return false
		}
	}

	onePlane := func() {
		if delta[0] < 0 {
			n = 0
		} else {
			project2D(&r, rs[0], delta[0], recipN2[0], eps2)
		}
	}

dispatch:
	for {
		switch n {
		case 1:
			onePlane()
		case 2:
			if delta[0] < 0 && delta[1] < 0 {
				n = 0
				break dispatch
			}
			maxD := b2i(fracGT(delta[1], recipN2[1], delta[0], recipN2[0]))
			project2D(&r, rs[maxD], delta[maxD], recipN2[maxD], eps2)
			minD := maxD ^ 1
			if r.Dot(rs[minD]) < 0 {
				index[0] = index[maxD]
				n = 1
				break dispatch
			}
			r = perp(rs[0], rs[1])
			if r[2]*r[2]*recipN2[0]*recipN2[1] < eps2 {
				if rs[0][0]*rs[1][0]+rs[0][1]*rs[1][1] < 0 {
					return false
				}
				onePlane()
				break dispatch
			}
			r = r.Mul(1 / r[2])
		case 3:
			if delta[0] < 0 && delta[1] < 0 && delta[2] < 0 {
				n = 0
				break dispatch
			}
			rowX := mgl64.Vec3{rs[0][0], rs[1][0], rs[2][0]}
			rowY := mgl64.Vec3{rs[0][1], rs[1][1], rs[2][1]}
			rowW := mgl64.Vec3{rs[0][2], rs[1][2], rs[2][2]}
			cofW := perp(rowX, rowY)
			detPos := rowW.Dot(cofW) > 0
			sgn := func(c, ra, rb float64) int {
				if c*c*ra*rb < eps2 {
					return 0
				}
				return (b2i((c > 0) == detPos) << 1) - 1
			}
			s0 := sgn(cofW[0], recipN2[1], recipN2[2])
			s1 := sgn(cofW[1], recipN2[2], recipN2[0])
			s2 := sgn(cofW[2], recipN2[0], recipN2[1])
			if s0|s1|s2 >= 0 {
				return false
			}
			positiveWidths := (s0>>1)&1 + (s1>>1)&1 + (s2>>1)&1
			if positiveWidths == 1 {
				pos := (s1>>1)&1 | (s2 & 2)
				rs[pos] = rs[2]
				recipN2[pos] = recipN2[2]
				delta[pos] = delta[2]
				index[pos] = index[2]
				n = 2
				continue dispatch
			}
			var maxD int
			if r[2] != 0 {
				maxD = indexOfMaxFrac(delta[0], recipN2[0], delta[1], recipN2[1], delta[2], recipN2[2])
			} else {
				wedge := func(i int) float64 {
					return -csgmath.Square(r[0]*rs[i][1]-r[1]*rs[i][0]) * recipN2[i]
				}
				maxD = indexOfMaxSgnSq(delta[0], wedge(0), delta[1], wedge(1), delta[2], wedge(2))
			}
			project2D(&r, rs[maxD], delta[maxD], recipN2[maxD], eps2)
			n = 1
			indexMax := index[maxD]
			finiteWidths := s0&1 + s1&1 + s2&1
			if finiteWidths >= 2 {
				remaining := [2]int{(1 << maxD) & 3, (3 >> maxD) ^ 1}
				sel := b2i(fracGT(delta[remaining[1]], recipN2[remaining[1]], delta[remaining[0]], recipN2[remaining[0]]))
				for i := 0; i < 2; i++ {
					j := remaining[sel^i]
					if r.Dot(rs[j]) >= 0 {
						r = perp(rs[maxD], rs[j])
						r = r.Mul(1 / r[2])
						index[1] = index[j]
						n = 2
						break
					}
				}
			}
			index[0] = indexMax
		}
		break dispatch
	}

	*p = hvec{x.Mul(r[0]).Add(y.Mul(r[1])).Add(h.v.Mul(-r[2] * h.w)), r[2]}

	if n < 2 || index[1] != 0 {
		for i := 0; i < n; i++ {
			s[i] = s[index[i]]
		}
	} else {
		tmp := s[0]
		s[0] = s[index[0]]
		s[1] = tmp
	}
	s[n] = h
	*planeCount = n + 1
	return true
}

// Test reports whether the halfspace set has a non-empty intersection.
// When q is non-nil it is the objective: the search looks for the point of
// the intersection closest to *q, and on return *q holds the final point.
// A search that hits the iteration cap reports true: callers use the
// answer to prune, and keeping a region is always safe.
func Test(set HalfspaceSet, q *mgl64.Vec3) bool {
	objective := hvec{w: 1}
	if q != nil {
		objective.v = *q
	}
	const eps2 = epsilon * epsilon

	var s [4]hvec
	planeCount := 0
	p := objective
	result := -1

	for i := 0; result < 0 && i < maxIterations; i++ {
		plane, delta := set.FarthestHalfspace(mgl64.Vec4{p.v[0], p.v[1], p.v[2], p.w})
		s[planeCount] = hvec{plane.Normal(), plane.D()}
		planeCount++
		if delta <= 0 || delta*delta <= eps2*p.dot(p) {
			result = 1
		} else if !update(&p, &s, &planeCount, objective, eps2) {
			result = 0
		}
	}

	if q != nil {
		if p.w != 0 {
			*q = p.v.Mul(1 / p.w)
		} else {
			*q = p.v
		}
	}
	if result < 0 {
		if Debug {
			log.Printf("[gsa] void simplex test exceeded %d iterations", maxIterations)
		}
		return true
	}
	return result == 1
}
