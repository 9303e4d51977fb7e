package csgmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Plane is (nx, ny, nz, d). A point p lies above the plane when
// n·p + d > 0.
type Plane mgl64.Vec4

// NewPlane builds a plane from a normal and offset.
func NewPlane(n mgl64.Vec3, d Real) Plane {
	return Plane{n[0], n[1], n[2], d}
}

// PlaneThrough builds a plane with normal n passing through p.
func PlaneThrough(n, p mgl64.Vec3) Plane {
	return Plane{n[0], n[1], n[2], -n.Dot(p)}
}

// Normal returns the plane normal (not necessarily unit length).
func (p Plane) Normal() mgl64.Vec3 {
	return mgl64.Vec3{p[0], p[1], p[2]}
}

// D returns the plane offset.
func (p Plane) D() Real {
	return p[3]
}

// Distance returns the signed distance of point x from the plane, scaled by
// the normal's length.
func (p Plane) Distance(x mgl64.Vec3) Real {
	return p[0]*x[0] + p[1]*x[1] + p[2]*x[2] + p[3]
}

// Dot returns the 4D dot product of the plane with a homogeneous vector.
func (p Plane) Dot(v mgl64.Vec4) Real {
	return p[0]*v[0] + p[1]*v[1] + p[2]*v[2] + p[3]*v[3]
}

// Project returns the orthogonal projection of x onto a normalized plane.
func (p Plane) Project(x mgl64.Vec3) mgl64.Vec3 {
	return x.Sub(p.Normal().Mul(p.Distance(x)))
}

// Neg returns the plane facing the other way.
func (p Plane) Neg() Plane {
	return Plane{-p[0], -p[1], -p[2], -p[3]}
}

// Scale multiplies all four components by s.
func (p Plane) Scale(s Real) Plane {
	return Plane{p[0] * s, p[1] * s, p[2] * s, p[3] * s}
}

// Normalize rescales the plane so its normal has unit length and returns
// the normal's original length. Two Newton steps refine the reciprocal
// length. A zero normal leaves the plane untouched and returns 0.
func (p *Plane) Normalize() Real {
	l2 := p[0]*p[0] + p[1]*p[1] + p[2]*p[2]
	if l2 == 0 {
		return 0
	}
	recipL := 1 / math.Sqrt(l2)
	recipL *= 1.5 - 0.5*l2*recipL*recipL
	recipL *= 1.5 - 0.5*l2*recipL*recipL
	for i := range p {
		p[i] *= recipL
	}
	return recipL * l2
}

// ApproxEqual reports whether two planes agree component-wise within tol.
func (p Plane) ApproxEqual(q Plane, tol Real) bool {
	for i := 0; i < 4; i++ {
		if math.Abs(p[i]-q[i]) > tol {
			return false
		}
	}
	return true
}
