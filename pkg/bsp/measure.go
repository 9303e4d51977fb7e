package bsp

import (
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/gsa"
	"github.com/go-gl/mathgl/mgl64"
)

// intersectPlanes returns a point on the line shared by two planes and
// the line's unit direction. It fails for parallel planes.
func intersectPlanes(p0, p1 csgmath.Plane) (pos, dir mgl64.Vec3, ok bool) {
	n0 := p0.Normal()
	n1 := p1.Normal()
	dir = n0.Cross(n1)
	dir2 := dir.Dot(dir)
	if dir2 < csgmath.EpsReal*csgmath.EpsReal {
		return pos, dir, false
	}
	recipDir2 := 1 / dir2
	dir = dir.Mul(math.Sqrt(recipDir2))

	n0n0 := n0.Dot(n0) * recipDir2
	n1n1 := n1.Dot(n1) * recipDir2
	n0n1 := n0.Dot(n1) * recipDir2
	pos = n0.Mul(p1.D()*n0n1 - p0.D()*n1n1).Add(n1.Mul(p0.D()*n0n1 - p1.D()*n0n0))

	e0 := p0.Distance(pos)
	e1 := p1.Distance(pos)
	pos = pos.Add(n0.Mul(e1*n0n1 - e0*n1n1)).Add(n1.Mul(e0*n0n1 - e1*n0n0))
	return pos, dir, true
}

// intersectLineWithHalfspace narrows the parameter interval [minS, maxS]
// of the line pos + s*dir to the part on or below plane.
func intersectLineWithHalfspace(minS, maxS *float64, pos, dir mgl64.Vec3, plane csgmath.Plane) bool {
	num := -plane.Distance(pos)
	den := plane.Normal().Dot(dir)
	switch {
	case den < -csgmath.CSGEps:
		if s := num / den; s > *minS {
			*minS = s
		}
	case den > csgmath.CSGEps:
		if s := num / den; s < *maxS {
			*maxS = s
		}
	case num < -csgmath.CSGEps:
		*minS = csgmath.CSGEps
		*maxS = -csgmath.CSGEps
	}
	return *minS < *maxS
}

// leafAreaAndVolume measures the convex region bounded by planes (each
// normalized, region below all of them). Results are mapped into mesh
// space by cof, the cofactor matrix of the BSP-to-mesh transform. An
// unbounded region returns false.
func leafAreaAndVolume(planes []csgmath.Plane, cof mgl64.Mat4) (area, volume float64, ok bool) {
	if len(planes) <= 1 {
		return math.Inf(1), math.Inf(1), false
	}
	originSet := false
	var origin mgl64.Vec3
	for i := range planes {
		p0Set := false
		var p0 mgl64.Vec3
		h, faceArea := 0.0, 0.0
		for j := range planes {
			if j == i {
				continue
			}
			pos, dir, ok := intersectPlanes(planes[i], planes[j])
			if !ok {
				continue
			}
			minS, maxS := -math.MaxFloat64, math.MaxFloat64
			for k := range planes {
				if k == i || k == j {
					continue
				}
				if !intersectLineWithHalfspace(&minS, &maxS, pos, dir, planes[k]) {
					break
				}
			}
			if minS >= maxS {
				continue
			}
			if minS == -math.MaxFloat64 || maxS == math.MaxFloat64 {
				return math.Inf(1), math.Inf(1), false
			}
			p1 := pos.Add(dir.Mul(minS))
			if !originSet {
				origin = p1
				originSet = true
			}
			if !p0Set {
				p0 = p1
				h = p0.Sub(origin).Dot(planes[i].Normal())
				p0Set = true
				continue
			}
			p2 := pos.Add(dir.Mul(maxS))
			faceArea += p1.Sub(p0).Cross(p2.Sub(p0)).Dot(planes[i].Normal())
		}
		area += faceArea * csgmath.TransformDir(cof, planes[i].Normal()).Len()
		volume += faceArea * h
	}
	area *= 0.5
	volume *= cof.At(3, 3) / 6
	return area, volume, true
}

// cullPlanes drops duplicate planes and planes that do not bound the
// region.
func cullPlanes(planes []csgmath.Plane) []csgmath.Plane {
	out := planes[:0:0]
	for _, p := range planes {
		dup := false
		for _, q := range out {
			if p.ApproxEqual(q, 1e-12) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = out[i].Neg()
		necessary := gsa.Intersects(out)
		out[i] = out[i].Neg()
		if !necessary {
			out[i] = out[len(out)-1]
			out = out[:len(out)-1]
		}
	}
	return out
}

func (b *BSP) leafSide(n int32, op Operation) uint32 {
	side := b.nodes[n].region.Side
	if b.combined {
		side = BoolOp(op, side&1, (side>>1)&1)
	}
	return side
}

// SurfaceAreaAndVolume sums the mesh-space surface area and volume of the
// inside leaves (or the outside leaves when inside is false). A combined
// BSP is measured as if op had been applied. bounded is false, with both
// values set to +Inf, when any measured leaf is unbounded.
func (b *BSP) SurfaceAreaAndVolume(inside bool, op Operation) (area, volume float64, bounded bool, err error) {
	if b.combined && op == OpNOP {
		return 0, 0, false, ErrNeedOperation
	}
	cof := csgmath.Cof34(b.internalTransformInverse)
	bounded = true
	b.leaves(func(n int32) {
		if !bounded || (b.leafSide(n, op) != 0) != inside {
			return
		}
		planes := b.leafPlanes(n, 0)
		if len(planes) == 0 {
			bounded = false
			return
		}
		if planes = cullPlanes(planes); len(planes) == 0 {
			return
		}
		a, v, ok := leafAreaAndVolume(planes, cof)
		if !ok {
			bounded = false
			return
		}
		area += a
		volume += v
	})
	if !bounded {
		return math.Inf(1), math.Inf(1), false, nil
	}
	return area, volume, true, nil
}

// PointInside reports whether the mesh-space point p lies in an inside
// leaf. A combined BSP is tested as if op had been applied.
func (b *BSP) PointInside(p mgl64.Vec3, op Operation) (bool, error) {
	if b.combined && op == OpNOP {
		return false, ErrNeedOperation
	}
	q := csgmath.TransformPos(b.internalTransform, p)
	n := b.root
	for !b.isLeaf(n) {
		child := 0
		if b.planes[b.branch(n).PlaneIndex].Distance(q) <= 0 {
			child = 1
		}
		n = b.nodes[n].child[child]
	}
	return b.leafSide(n, op) != 0, nil
}
