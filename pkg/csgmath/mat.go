package csgmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Row returns row i of m.
func Row(m mgl64.Mat4, i int) mgl64.Vec4 {
	return mgl64.Vec4{m.At(i, 0), m.At(i, 1), m.At(i, 2), m.At(i, 3)}
}

// Det3 returns the determinant of the upper-left 3x3 block of m, which is
// the full determinant when the last row is (0,0,0,1).
func Det3(m mgl64.Mat4) Real {
	r0 := Row(m, 0).Vec3()
	r1 := Row(m, 1).Vec3()
	r2 := Row(m, 2).Vec3()
	return r0.Dot(Cross(r1, r2))
}

// Cof34 returns the cofactor matrix of an affine transform (last row
// assumed (0,0,0,1)). Multiplying a plane by the result maps it through m:
// if x lies on plane q then m·x lies on Cof34(m)·q. Element (3,3) holds the
// determinant.
func Cof34(m mgl64.Mat4) mgl64.Mat4 {
	e := func(i, j int) Real { return m.At(i, j) }
	var r [4]mgl64.Vec4
	r[0] = mgl64.Vec4{e(1, 1)*e(2, 2) - e(1, 2)*e(2, 1), e(1, 2)*e(2, 0) - e(1, 0)*e(2, 2), e(1, 0)*e(2, 1) - e(1, 1)*e(2, 0), 0}
	r[1] = mgl64.Vec4{e(2, 1)*e(0, 2) - e(2, 2)*e(0, 1), e(2, 2)*e(0, 0) - e(2, 0)*e(0, 2), e(2, 0)*e(0, 1) - e(2, 1)*e(0, 0), 0}
	r[2] = mgl64.Vec4{e(0, 1)*e(1, 2) - e(0, 2)*e(1, 1), e(0, 2)*e(1, 0) - e(0, 0)*e(1, 2), e(0, 0)*e(1, 1) - e(0, 1)*e(1, 0), 0}
	r[3] = r[0].Mul(-e(0, 3)).Sub(r[1].Mul(e(1, 3))).Sub(r[2].Mul(e(2, 3)))
	r[3][3] = r[0][0]*e(0, 0) + r[0][1]*e(0, 1) + r[0][2]*e(0, 2)
	return mgl64.Mat4FromRows(r[0], r[1], r[2], r[3])
}

// Inverse34 inverts an affine transform. A singular transform yields a
// matrix whose upper 3x4 block is zero.
func Inverse34(m mgl64.Mat4) mgl64.Mat4 {
	cof := Cof34(m)
	det := cof.At(3, 3)
	recipDet := 0.0
	if math.Abs(det) > EpsReal*EpsReal*EpsReal {
		recipDet = 1 / det
	}
	var inv mgl64.Mat4
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			inv.Set(i, j, cof.At(j, i)*recipDet)
		}
	}
	inv.Set(3, 3, 1)
	return inv
}

// TransformPlane maps plane q through the cofactor matrix cof (see Cof34).
// The result is not normalized.
func TransformPlane(cof mgl64.Mat4, q Plane) Plane {
	return Plane(cof.Mul4x1(mgl64.Vec4(q)))
}

// TransformPos applies an affine transform to a point.
func TransformPos(m mgl64.Mat4, p mgl64.Vec3) mgl64.Vec3 {
	return m.Mul4x1(Pos(p)).Vec3()
}

// TransformDir applies the linear part of m to a direction.
func TransformDir(m mgl64.Mat4, d mgl64.Vec3) mgl64.Vec3 {
	return m.Mul4x1(Dir(d)).Vec3()
}

// IsZeroMat reports whether every element of m is zero.
func IsZeroMat(m mgl64.Mat4) bool {
	for _, v := range m {
		if v != 0 {
			return false
		}
	}
	return true
}

// MatApproxEqual reports whether every element of a and b agree within tol.
func MatApproxEqual(a, b mgl64.Mat4, tol Real) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// MaxRowScale returns the largest squared length of the first three rows'
// linear parts.
func MaxRowScale(m mgl64.Mat4) Real {
	s := 0.0
	for i := 0; i < 3; i++ {
		s = math.Max(s, Row(m, i).Vec3().LenSqr())
	}
	return s
}
