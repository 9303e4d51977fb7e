package hull

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrInvalidDesc is returned by descriptor validation.
var ErrInvalidDesc = errors.New("hull: invalid collision descriptor")

// CollisionVolumeDesc controls how the hulls of one chunk are built.
type CollisionVolumeDesc struct {
	HullMethod Method
	// ConcavityPercentError is the amount, in percent of the mesh volume,
	// by which a hull may exceed the mesh before it is split.
	ConcavityPercentError float64
	// MergeThreshold is the growth, in percent, allowed when merging two
	// hulls into one.
	MergeThreshold float64
	RecursionDepth int
	MaxVertexCount int
	MaxEdgeCount   int
	MaxFaceCount   int
}

// DefaultCollisionVolumeDesc returns a descriptor with default values.
func DefaultCollisionVolumeDesc() CollisionVolumeDesc {
	var d CollisionVolumeDesc
	d.SetToDefault()
	return d
}

func (d *CollisionVolumeDesc) SetToDefault() {
	*d = CollisionVolumeDesc{
		HullMethod:            ConvexDecomposition,
		ConcavityPercentError: 4,
		MergeThreshold:        4,
	}
}

func (d CollisionVolumeDesc) Validate() error {
	if _, ok := methodNames[d.HullMethod]; !ok {
		return fmt.Errorf("%w: unknown hull method %d", ErrInvalidDesc, d.HullMethod)
	}
	if d.ConcavityPercentError < 0 || d.MergeThreshold < 0 {
		return fmt.Errorf("%w: negative concavity or merge threshold", ErrInvalidDesc)
	}
	if d.RecursionDepth < 0 || d.MaxVertexCount < 0 || d.MaxEdgeCount < 0 || d.MaxFaceCount < 0 {
		return fmt.Errorf("%w: negative depth or budget", ErrInvalidDesc)
	}
	return nil
}

// CollisionDesc holds one volume descriptor per hierarchy depth. Depths
// beyond the last entry use the last entry.
type CollisionDesc struct {
	VolumeDescs []CollisionVolumeDesc
	// MaximumTrimming is the largest fraction of a hull's width that may be
	// trimmed away where it overlaps a neighbor.
	MaximumTrimming float64
}

// DefaultCollisionDesc returns a descriptor with default values.
func DefaultCollisionDesc() CollisionDesc {
	var d CollisionDesc
	d.SetToDefault()
	return d
}

func (d *CollisionDesc) SetToDefault() {
	*d = CollisionDesc{MaximumTrimming: 0.2}
}

func (d CollisionDesc) Validate() error {
	if d.MaximumTrimming < 0 || d.MaximumTrimming > 1 {
		return fmt.Errorf("%w: maximum trimming %v outside [0, 1]", ErrInvalidDesc, d.MaximumTrimming)
	}
	for i, v := range d.VolumeDescs {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("depth %d: %w", i, err)
		}
	}
	return nil
}

// ForDepth returns the volume descriptor for a hierarchy depth.
func (d CollisionDesc) ForDepth(depth int) CollisionVolumeDesc {
	if len(d.VolumeDescs) == 0 {
		return DefaultCollisionVolumeDesc()
	}
	if depth >= len(d.VolumeDescs) {
		depth = len(d.VolumeDescs) - 1
	}
	if depth < 0 {
		depth = 0
	}
	return d.VolumeDescs[depth]
}

// Build returns the collision hulls of a chunk mesh. A positive inflation
// pads every vertex along the axes before hulling, which lets open meshes
// get a hull with some thickness.
func Build(tris []mesh.RenderTriangle, desc CollisionVolumeDesc, inflation float64) []*ConvexHull {
	points := mesh.Positions(tris)
	if inflation > 0 {
		padded := make([]mgl64.Vec3, 0, 7*len(points))
		for _, p := range points {
			padded = append(padded, p)
			for axis := 0; axis < 3; axis++ {
				off := csgmath.Axis(axis).Mul(inflation)
				padded = append(padded, p.Add(off), p.Sub(off))
			}
		}
		points = padded
	}

	var hulls []*ConvexHull
	switch desc.HullMethod {
	case WrapGraphicsMesh:
		h := New()
		h.BuildFromPoints(points)
		if h.IsEmpty() {
			h.BuildKDOP(points, KDOPDirections(Use26DOP))
		}
		hulls = append(hulls, h)
	case ConvexDecomposition:
		pieces := make([][3]mgl64.Vec3, len(tris))
		for i := range tris {
			for v := 0; v < 3; v++ {
				pieces[i][v] = tris[i].Vertices[v].Position
			}
		}
		hulls = decompose(pieces, math.Abs(mesh.SignedVolume(tris)), desc.RecursionDepth, desc.ConcavityPercentError)
		hulls = mergeHulls(hulls, desc.MergeThreshold)
		if len(hulls) == 0 {
			h := New()
			h.BuildKDOP(points, KDOPDirections(Use26DOP))
			hulls = append(hulls, h)
		}
	default:
		h := New()
		h.BuildKDOP(points, KDOPDirections(desc.HullMethod))
		hulls = append(hulls, h)
	}

	out := hulls[:0]
	for _, h := range hulls {
		if h.IsEmpty() {
			continue
		}
		h.ReduceHull(desc.MaxVertexCount, desc.MaxEdgeCount, desc.MaxFaceCount, false)
		out = append(out, h)
	}
	return out
}

func trianglePoints(tris [][3]mgl64.Vec3) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, 3*len(tris))
	for _, t := range tris {
		out = append(out, t[0], t[1], t[2])
	}
	return out
}

// decompose hulls tris, splitting at the middle of the longest axis while
// the hull is more than concavity percent larger than the enclosed volume.
func decompose(tris [][3]mgl64.Vec3, volume float64, depth int, concavity float64) []*ConvexHull {
	h := New()
	h.BuildFromPoints(trianglePoints(tris))
	if h.IsEmpty() {
		return nil
	}
	if depth <= 0 || h.Volume <= volume*(1+concavity/100) {
		return []*ConvexHull{h}
	}
	axis := csgmath.MaxAbsIndex(h.Bounds.Dimensions())
	n := csgmath.Axis(axis)
	cut := csgmath.PlaneThrough(n, h.Bounds.Center())
	below, belowVol := clipTriangles(tris, cut)
	above, aboveVol := clipTriangles(tris, cut.Neg())
	if len(below) == 0 || len(above) == 0 {
		return []*ConvexHull{h}
	}
	out := decompose(below, belowVol, depth-1, concavity)
	return append(out, decompose(above, aboveVol, depth-1, concavity)...)
}

// clipTriangles keeps the parts of tris below plane. The returned volume is
// measured from a point on the plane, so the open cap contributes nothing.
func clipTriangles(tris [][3]mgl64.Vec3, plane csgmath.Plane) ([][3]mgl64.Vec3, float64) {
	origin := plane.Normal().Mul(-plane.D() / plane.Normal().LenSqr())
	var out [][3]mgl64.Vec3
	volume := 0.0
	emit := func(a, b, c mgl64.Vec3) {
		out = append(out, [3]mgl64.Vec3{a, b, c})
		volume += a.Sub(origin).Dot(b.Sub(origin).Cross(c.Sub(origin))) / 6
	}
	n := plane.Normal()
	eps := relativeEps * math.Max(1, math.Abs(plane.D()))
	for _, t := range tris {
		// A triangle lying in the plane belongs to the side it bounds.
		if math.Abs(plane.Distance(t[0])) <= eps && math.Abs(plane.Distance(t[1])) <= eps && math.Abs(plane.Distance(t[2])) <= eps {
			if t[1].Sub(t[0]).Cross(t[2].Sub(t[0])).Dot(n) > 0 {
				emit(t[0], t[1], t[2])
			}
			continue
		}
		var poly []mgl64.Vec3
		for i := 0; i < 3; i++ {
			p, q := t[i], t[(i+1)%3]
			dp, dq := plane.Distance(p), plane.Distance(q)
			if dp <= 0 {
				poly = append(poly, p)
			}
			if (dp < 0 && dq > 0) || (dp > 0 && dq < 0) {
				poly = append(poly, p.Add(q.Sub(p).Mul(dp/(dp-dq))))
			}
		}
		for i := 2; i < len(poly); i++ {
			emit(poly[0], poly[i-1], poly[i])
		}
	}
	return out, volume
}

// mergeHulls greedily joins pairs of hulls whose combined hull is at most
// threshold percent larger than their summed volumes.
func mergeHulls(hulls []*ConvexHull, threshold float64) []*ConvexHull {
	for merged := true; merged && len(hulls) > 1; {
		merged = false
		for i := 0; i < len(hulls) && !merged; i++ {
			for j := i + 1; j < len(hulls); j++ {
				joined := New()
				joined.BuildFromPoints(append(append([]mgl64.Vec3(nil), hulls[i].Vertices...), hulls[j].Vertices...))
				if joined.IsEmpty() || joined.Volume > (hulls[i].Volume+hulls[j].Volume)*(1+threshold/100) {
					continue
				}
				hulls[i] = joined
				hulls = append(hulls[:j], hulls[j+1:]...)
				merged = true
				break
			}
		}
	}
	return hulls
}
