package csgmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Bounds is an axis-aligned box. The zero value is not empty; use
// EmptyBounds for an accumulator.
type Bounds struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// EmptyBounds returns an inverted box that any Include will overwrite.
func EmptyBounds() Bounds {
	return Bounds{
		Min: mgl64.Vec3{MaxReal, MaxReal, MaxReal},
		Max: mgl64.Vec3{-MaxReal, -MaxReal, -MaxReal},
	}
}

// IsEmpty reports whether the box contains no points.
func (b Bounds) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Include grows the box to contain p.
func (b *Bounds) Include(p mgl64.Vec3) {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
}

// IncludeBounds grows the box to contain o.
func (b *Bounds) IncludeBounds(o Bounds) {
	if o.IsEmpty() {
		return
	}
	b.Include(o.Min)
	b.Include(o.Max)
}

// Center returns the box center.
func (b Bounds) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the half-widths of the box.
func (b Bounds) Extents() mgl64.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// Dimensions returns the full widths of the box.
func (b Bounds) Dimensions() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

// Volume returns the box volume, 0 for an empty box.
func (b Bounds) Volume() Real {
	if b.IsEmpty() {
		return 0
	}
	d := b.Dimensions()
	return d[0] * d[1] * d[2]
}

// Intersects reports whether two boxes overlap after fattening by padding.
func (b Bounds) Intersects(o Bounds, padding Real) bool {
	for i := 0; i < 3; i++ {
		if b.Min[i]-padding > o.Max[i] || o.Min[i]-padding > b.Max[i] {
			return false
		}
	}
	return true
}

// Contains reports whether p lies inside the box.
func (b Bounds) Contains(p mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Fatten returns the box grown by d on every side.
func (b Bounds) Fatten(d Real) Bounds {
	pad := mgl64.Vec3{d, d, d}
	return Bounds{Min: b.Min.Sub(pad), Max: b.Max.Add(pad)}
}

// Translate returns the box shifted by t.
func (b Bounds) Translate(t mgl64.Vec3) Bounds {
	if b.IsEmpty() {
		return b
	}
	return Bounds{Min: b.Min.Add(t), Max: b.Max.Add(t)}
}
