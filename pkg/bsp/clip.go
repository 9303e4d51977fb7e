package bsp

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

const noPlane = 0xFFFFFFFF

// cmpPointToPlane returns 0 when p lies within tol of the plane, otherwise
// +1 above and -1 below.
func cmpPointToPlane(p mgl64.Vec3, plane csgmath.Plane, tol float64) int {
	d := plane.Distance(p)
	switch {
	case d < -tol:
		return -1
	case d < tol:
		return 0
	}
	return 1
}

// clipPolygon keeps the part of poly on or below plane. Vertices within
// tol of the plane count as on it. The result is nil when poly has no
// vertex strictly below and at least one strictly above.
func clipPolygon(poly []mgl64.Vec3, plane csgmath.Plane, tol float64) []mgl64.Vec3 {
	sides := make([]int, len(poly))
	outside, inside := false, false
	for i, v := range poly {
		sides[i] = cmpPointToPlane(v, plane, tol)
		outside = outside || sides[i] == 1
		inside = inside || sides[i] == -1
	}
	if !outside {
		return poly
	}
	if !inside {
		return nil
	}
	out := make([]mgl64.Vec3, 0, len(poly)+1)
	for i, v := range poly {
		j := (i + 1) % len(poly)
		if sides[i] <= 0 {
			out = append(out, v)
		}
		if sides[i]*sides[j] < 0 {
			w := poly[j]
			dv := plane.Distance(v)
			dw := plane.Distance(w)
			t := dv / (dv - dw)
			out = append(out, v.Add(w.Sub(v).Mul(t)))
		}
	}
	return out
}

// clipResult is the outcome of clipping one triangle to a leaf.
type clipResult struct {
	triangles []csgmath.Triangle
	area      float64
}

// clipTriangleToLeaf clips tri against the halfspaces of every ancestor of
// leaf except skipPlane. dir 0 reverses the winding of the output. When
// collect is false only the clipped area is computed.
func (b *BSP) clipTriangleToLeaf(tri *csgmath.Triangle, leaf int32, dir uint8, tol float64, skipPlane uint32, collect bool) clipResult {
	var res clipResult
	poly := []mgl64.Vec3{tri.Vertices[0], tri.Vertices[1], tri.Vertices[2]}
	if dir == 0 {
		poly[1], poly[2] = poly[2], poly[1]
	}
	b.ancestors(leaf, func(br int32, side uint8) bool {
		s := b.branch(br)
		if s.PlaneIndex == skipPlane {
			return true
		}
		poly = clipPolygon(poly, b.sidePlane(br, side), tol)
		return poly != nil
	})
	if len(poly) < 3 {
		return res
	}
	for i := 1; i+1 < len(poly); i++ {
		t := csgmath.Triangle{
			Vertices:       [3]mgl64.Vec3{poly[0], poly[i], poly[i+1]},
			SubmeshIndex:   tri.SubmeshIndex,
			SmoothingMask:  tri.SmoothingMask,
			ExtraDataIndex: tri.ExtraDataIndex,
		}
		t.CalculateQuantities()
		res.area += t.Area
		if collect {
			res.triangles = append(res.triangles, t)
		}
	}
	return res
}

// clippedTriangleInfo ties an output fragment (clippedIndex) to the
// original triangle and splitting plane it came from.
type clippedTriangleInfo struct {
	planeIndex    uint32
	originalIndex uint32
	clippedIndex  uint32
	ccw           bool
}

// clipMeshToLeaf appends the fragments of every triangle bounding leaf.
func (b *BSP) clipMeshToLeaf(out []csgmath.Triangle, info []clippedTriangleInfo, leaf int32) ([]csgmath.Triangle, []clippedTriangleInfo) {
	tol := b.tol.Clip * b.meshSize
	b.ancestors(leaf, func(br int32, side uint8) bool {
		s := b.branch(br)
		for i := s.TriangleStart; i < s.TriangleStop; i++ {
			res := b.clipTriangleToLeaf(&b.mesh[i], leaf, side, tol, s.PlaneIndex, true)
			for _, t := range res.triangles {
				info = append(info, clippedTriangleInfo{
					planeIndex:    s.PlaneIndex,
					originalIndex: i,
					clippedIndex:  uint32(len(out)),
					ccw:           side != 0,
				})
				out = append(out, t)
			}
		}
		return true
	})
	if b.incidentalMesh {
		for i := range b.mesh {
			res := b.clipTriangleToLeaf(&b.mesh[i], leaf, 1, tol, noPlane, true)
			for _, t := range res.triangles {
				info = append(info, clippedTriangleInfo{
					planeIndex:    noPlane,
					originalIndex: uint32(i),
					clippedIndex:  uint32(len(out)),
					ccw:           true,
				})
				out = append(out, t)
			}
		}
	}
	return out, info
}

// clipMeshToInsideLeaves clips the mesh to every inside leaf.
func (b *BSP) clipMeshToInsideLeaves() ([]csgmath.Triangle, []clippedTriangleInfo) {
	var out []csgmath.Triangle
	var info []clippedTriangleInfo
	b.leaves(func(n int32) {
		if b.nodes[n].region.Side&1 != 0 {
			out, info = b.clipMeshToLeaf(out, info, n)
		}
	})
	return out, info
}
