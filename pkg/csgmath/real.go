// Package csgmath holds the geometric primitives shared by the BSP engine
// and the fracture drivers: planes, affine matrix helpers, bounds and the
// internal triangle representation. Vectors and matrices are mgl64 types;
// this package adds the operations mgl64 does not provide (refined cross
// products, cofactor transforms of planes, plane normalization).
package csgmath

import "math"

// Real is the scalar type used for all CSG math.
type Real = float64

const (
	// EpsReal is the machine epsilon of Real.
	EpsReal = 2.220446049250313e-16

	// CSGEps is the generic geometric epsilon.
	CSGEps = 1e-9

	// MaxReal is the largest finite Real.
	MaxReal = math.MaxFloat64
)

// Square returns x*x.
func Square(x Real) Real {
	return x * x
}
