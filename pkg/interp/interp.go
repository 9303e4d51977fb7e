// Package interp fits and evaluates linear attribute fields over triangles.
// Each vertex attribute component is represented as an affine function of
// position (a plane), so attributes can be evaluated at any point produced
// by clipping or re-triangulation.
package interp

import (
	"math"

	"github.com/chazu/shatter/pkg/binio"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// Field indexes one scalar vertex attribute.
type Field int

const (
	NormalX Field = iota
	NormalY
	NormalZ
	TangentX
	TangentY
	TangentZ
	BinormalX
	BinormalY
	BinormalZ
	UV0U
	UV0V
	UV1U
	UV1V
	UV2U
	UV2V
	UV3U
	UV3V
	ColorR
	ColorG
	ColorB
	ColorA

	FieldCount
)

// fieldRef returns a pointer to field f of v.
func fieldRef(v *mesh.Vertex, f Field) *float64 {
	switch {
	case f <= NormalZ:
		return &v.Normal[f-NormalX]
	case f <= TangentZ:
		return &v.Tangent[f-TangentX]
	case f <= BinormalZ:
		return &v.Binormal[f-BinormalX]
	case f <= UV3V:
		i := int(f - UV0U)
		return &v.UV[i/2][i%2]
	default:
		return &v.Color[f-ColorR]
	}
}

// Interpolator holds one affine plane per vertex field. The value of field
// i at point p is Frames[i].Distance(p).
type Interpolator struct {
	Frames [FieldCount]csgmath.Plane
}

// FromTriangle fits an interpolator to a render triangle.
func FromTriangle(t *mesh.RenderTriangle) Interpolator {
	var in Interpolator
	in.SetFromTriangle(t)
	return in
}

// SetFromTriangle fits each field plane so it reproduces the triangle's
// vertex values at its corners. The field gradients lie in the triangle's
// plane. A degenerate triangle yields all-zero frames.
func (in *Interpolator) SetFromTriangle(t *mesh.RenderTriangle) {
	p0 := t.Vertices[0].Position
	p1 := t.Vertices[1].Position
	p2 := t.Vertices[2].Position
	p1xp2 := csgmath.Cross(p1, p2)
	p2xp0 := csgmath.Cross(p2, p0)
	p0xp1 := csgmath.Cross(p0, p1)
	n := p1xp2.Add(p2xp0).Add(p0xp1)
	n2 := n.Dot(n)
	if n2 < csgmath.EpsReal*csgmath.EpsReal {
		*in = Interpolator{}
		return
	}
	nP := n.Mul(1 / n2)
	q := [3]mgl64.Vec3{
		p1.Sub(p2).Cross(nP),
		p2.Sub(p0).Cross(nP),
		p0.Sub(p1).Cross(nP),
	}
	r := mgl64.Vec3{nP.Dot(p1xp2), nP.Dot(p2xp0), nP.Dot(p0xp1)}

	for f := Field(0); f < FieldCount; f++ {
		vi := mgl64.Vec3{
			*fieldRef(&t.Vertices[0], f),
			*fieldRef(&t.Vertices[1], f),
			*fieldRef(&t.Vertices[2], f),
		}
		g := q[0].Mul(vi[0]).Add(q[1].Mul(vi[1])).Add(q[2].Mul(vi[2]))
		if g.Dot(g) < 100*csgmath.EpsReal*csgmath.EpsReal {
			g = mgl64.Vec3{}
		}
		o := r.Dot(vi)
		if math.Abs(o) < 100*csgmath.EpsReal {
			o = 0
		}
		in.Frames[f] = csgmath.NewPlane(g, o)
	}
}

// SetFlat sets a constant tangent frame (tangents[0] = tangent,
// tangents[1] = binormal, tangents[2] = normal), white color, and planar
// UVs projected along the tangent and binormal and divided by uvScale.
// A zero scale component yields a constant zero coordinate.
func (in *Interpolator) SetFlat(tangents [3]mgl64.Vec3, uvScale mgl64.Vec2) {
	for i := 0; i < 3; i++ {
		in.Frames[NormalX+Field(i)] = csgmath.NewPlane(mgl64.Vec3{}, tangents[2][i])
		in.Frames[TangentX+Field(i)] = csgmath.NewPlane(mgl64.Vec3{}, tangents[0][i])
		in.Frames[BinormalX+Field(i)] = csgmath.NewPlane(mgl64.Vec3{}, tangents[1][i])
	}
	su, sv := 0.0, 0.0
	if uvScale[0] != 0 {
		su = 1 / uvScale[0]
	}
	if uvScale[1] != 0 {
		sv = 1 / uvScale[1]
	}
	for c := 0; c < mesh.UVChannels; c++ {
		in.Frames[UV0U+Field(2*c)] = csgmath.NewPlane(tangents[0].Mul(su), 0)
		in.Frames[UV0V+Field(2*c)] = csgmath.NewPlane(tangents[1].Mul(sv), 0)
	}
	for f := ColorR; f <= ColorA; f++ {
		in.Frames[f] = csgmath.NewPlane(mgl64.Vec3{}, 1)
	}
}

// Interpolate writes every field of v evaluated at v.Position.
func (in *Interpolator) Interpolate(v *mesh.Vertex) {
	for f := Field(0); f < FieldCount; f++ {
		*fieldRef(v, f) = in.Frames[f].Distance(v.Position)
	}
}

// Transform returns the interpolator mapped through the affine transform
// tm. invTranspose must be the transpose of tm's inverse. Normal fields
// transform covariantly, tangents and binormals with tm, and the other
// fields are scalars.
func (in *Interpolator) Transform(tm, invTranspose mgl64.Mat4) Interpolator {
	var out Interpolator
	for f := Field(0); f < FieldCount; f++ {
		out.Frames[f] = csgmath.Plane(invTranspose.Mul4x1(mgl64.Vec4(in.Frames[f])))
	}
	for i := 0; i < 4; i++ {
		mix := func(base Field, m mgl64.Mat4) {
			d := mgl64.Vec3{out.Frames[base][i], out.Frames[base+1][i], out.Frames[base+2][i]}
			d = csgmath.TransformDir(m, d)
			out.Frames[base][i] = d[0]
			out.Frames[base+1][i] = d[1]
			out.Frames[base+2][i] = d[2]
		}
		mix(NormalX, invTranspose)
		mix(TangentX, tm)
		mix(BinormalX, tm)
	}
	return out
}

// CleaningTolerances bounds how different two interpolators may be while
// still being treated as the same surface parameterization.
type CleaningTolerances struct {
	FrameDirection float64 `json:"frame_direction"`
	FrameScale     float64 `json:"frame_scale"`
	Direction      float64 `json:"direction"`
	UV             float64 `json:"uv"`
	Color          float64 `json:"color"`
}

// DefaultCleaningTolerances returns the tolerances used by mesh cleaning.
func DefaultCleaningTolerances() CleaningTolerances {
	return CleaningTolerances{
		FrameDirection: 0.001,
		FrameScale:     0.001,
		Direction:      0.001,
		UV:             0.01,
		Color:          0.001,
	}
}

func framesEqual(f0, f1 csgmath.Plane, twoFrameScaleTol2, sinFrameTol2, tol2 float64) bool {
	n0 := f0.Normal()
	n1 := f1.Normal()
	n02 := n0.Dot(n0)
	n12 := n1.Dot(n1)
	n2Diff := n02 - n12
	if n2Diff*n2Diff > twoFrameScaleTol2*(n02+n12) {
		return false
	}
	if n0.Cross(n1).LenSqr() > n02*n12*sinFrameTol2 {
		return false
	}
	originDiff := f0.D() - f1.D()
	originScale := 0.5 * (math.Abs(f0.D()) + math.Abs(f1.D()))
	return originDiff*originDiff <= tol2*originScale*originScale
}

// Equals reports whether every field plane of in matches other within tol.
func (in *Interpolator) Equals(other *Interpolator, tol CleaningTolerances) bool {
	twoFrameScaleTol2 := 2 * tol.FrameScale * tol.FrameScale
	sinFrameTol2 := tol.FrameDirection * tol.FrameDirection
	fieldTol := func(f Field) float64 {
		switch {
		case f <= BinormalZ:
			return tol.Direction
		case f <= UV3V:
			return tol.UV
		default:
			return tol.Color
		}
	}
	for f := Field(0); f < FieldCount; f++ {
		t := fieldTol(f)
		if !framesEqual(in.Frames[f], other.Frames[f], twoFrameScaleTol2, sinFrameTol2, t*t) {
			return false
		}
	}
	return true
}

// Serialize writes the field planes.
func (in *Interpolator) Serialize(w *binio.Writer) {
	for f := range in.Frames {
		w.Vec4(mgl64.Vec4(in.Frames[f]))
	}
}

// Deserialize reads field planes written by Serialize.
func (in *Interpolator) Deserialize(r *binio.Reader) {
	for f := range in.Frames {
		in.Frames[f] = csgmath.Plane(r.Vec4())
	}
}
