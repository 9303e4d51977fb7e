package csgmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Cross returns a x b with one improvement step applied, which keeps the
// result perpendicular to both inputs to near machine precision.
func Cross(a, b mgl64.Vec3) mgl64.Vec3 {
	c := a.Cross(b)
	c2 := c.Dot(c)
	if c2 == 0 {
		return c
	}
	fix := c.Cross(b).Mul(a.Dot(c)).Add(a.Cross(c).Mul(b.Dot(c)))
	return c.Add(fix.Mul(1 / c2))
}

// NormalizeLen normalizes v in place and returns its original length.
// A zero vector is left untouched and 0 is returned.
func NormalizeLen(v *mgl64.Vec3) Real {
	l2 := v.Dot(*v)
	if l2 == 0 {
		return 0
	}
	recipL := 1 / math.Sqrt(l2)
	*v = v.Mul(recipL)
	return recipL * l2
}

// Normalized returns v scaled to unit length, or v if it is zero.
func Normalized(v mgl64.Vec3) mgl64.Vec3 {
	NormalizeLen(&v)
	return v
}

// MaxAbsIndex returns the index of the component of v with the largest
// absolute value.
func MaxAbsIndex(v mgl64.Vec3) int {
	i := 0
	if math.Abs(v[1]) > math.Abs(v[i]) {
		i = 1
	}
	if math.Abs(v[2]) > math.Abs(v[i]) {
		i = 2
	}
	return i
}

// Axis returns the unit vector along axis n (0, 1 or 2).
func Axis(n int) mgl64.Vec3 {
	var v mgl64.Vec3
	v[n%3] = 1
	return v
}

// Pos extends p to a homogeneous point (w = 1).
func Pos(p mgl64.Vec3) mgl64.Vec4 {
	return mgl64.Vec4{p[0], p[1], p[2], 1}
}

// Dir extends d to a homogeneous direction (w = 0).
func Dir(d mgl64.Vec3) mgl64.Vec4 {
	return mgl64.Vec4{d[0], d[1], d[2], 0}
}
