package csgmath_test

import (
	"math"
	"testing"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

func TestPlaneNormalizeIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		plane csgmath.Plane
	}{
		{"axis", csgmath.Plane{0, 0, 3, -6}},
		{"oblique", csgmath.Plane{1, 2, 3, 4}},
		{"tiny", csgmath.Plane{1e-5, -2e-5, 3e-6, 1e-6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.plane
			x := mgl64.Vec3{0.3, -0.7, 1.1}
			before := p.Distance(x)
			l := p.Normalize()
			if math.Abs(p.Normal().Len()-1) > 1e-14 {
				t.Fatalf("normal length = %v, want 1", p.Normal().Len())
			}
			if math.Abs(p.Distance(x)*l-before) > 1e-12*math.Max(1, math.Abs(before)) {
				t.Errorf("distance scaled wrong: %v * %v != %v", p.Distance(x), l, before)
			}
			q := p
			if l2 := q.Normalize(); math.Abs(l2-1) > 1e-14 {
				t.Errorf("second normalize length = %v, want 1", l2)
			}
			if !q.ApproxEqual(p, 1e-15) {
				t.Errorf("normalize not idempotent: %v vs %v", q, p)
			}
		})
	}
}

func TestPlaneNormalizeZero(t *testing.T) {
	p := csgmath.Plane{0, 0, 0, 5}
	if l := p.Normalize(); l != 0 {
		t.Fatalf("zero normal length = %v", l)
	}
	if p[3] != 5 {
		t.Errorf("zero plane modified: %v", p)
	}
}

func TestCrossRefinedPerpendicular(t *testing.T) {
	a := mgl64.Vec3{1, 1e-8, 0}
	b := mgl64.Vec3{1, 0, 1e-8}
	c := csgmath.Cross(a, b)
	if d := math.Abs(c.Dot(a)) / (c.Len() * a.Len()); d > 1e-12 {
		t.Errorf("cross not perpendicular to a: %v", d)
	}
	if d := math.Abs(c.Dot(b)) / (c.Len() * b.Len()); d > 1e-12 {
		t.Errorf("cross not perpendicular to b: %v", d)
	}
}

func TestInverse34(t *testing.T) {
	m := mgl64.Translate3D(1, -2, 3).Mul4(mgl64.HomogRotate3D(0.7, mgl64.Vec3{1, 2, 3}.Normalize())).Mul4(mgl64.Scale3D(2, 3, 0.5))
	inv := csgmath.Inverse34(m)
	if !csgmath.MatApproxEqual(m.Mul4(inv), mgl64.Ident4(), 1e-12) {
		t.Fatalf("m * inverse34(m) != I:\n%v", m.Mul4(inv))
	}
	if math.Abs(csgmath.Det3(m)-3) > 1e-12 {
		t.Errorf("det3 = %v, want 3", csgmath.Det3(m))
	}
}

func TestInverse34Singular(t *testing.T) {
	m := mgl64.Scale3D(1, 0, 1)
	inv := csgmath.Inverse34(m)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			if inv.At(i, j) != 0 {
				t.Fatalf("singular inverse element (%d,%d) = %v", i, j, inv.At(i, j))
			}
		}
	}
}

func TestCof34TransformsPlanes(t *testing.T) {
	m := mgl64.Translate3D(5, 0, -1).Mul4(mgl64.HomogRotate3D(1.1, mgl64.Vec3{0, 1, 0})).Mul4(mgl64.Scale3D(2, 2, 2))
	plane := csgmath.PlaneThrough(mgl64.Vec3{0, 0, 1}, mgl64.Vec3{0, 0, 0.25})
	tp := csgmath.TransformPlane(csgmath.Cof34(m), plane)
	for _, p := range []mgl64.Vec3{{0, 0, 0.25}, {1, 2, 0.25}, {-3, 0.5, 0.25}} {
		if d := tp.Distance(csgmath.TransformPos(m, p)); math.Abs(d) > 1e-12 {
			t.Errorf("transformed point off transformed plane by %v", d)
		}
	}
	above := csgmath.TransformPos(m, mgl64.Vec3{0, 0, 1})
	if tp.Distance(above) <= 0 {
		t.Errorf("orientation not preserved")
	}
}

func TestTriangleQuantities(t *testing.T) {
	tri := csgmath.Triangle{Vertices: [3]mgl64.Vec3{{0, 0, 0}, {2, 0, 0}, {0, 2, 0}}}
	tri.CalculateQuantities()
	if math.Abs(tri.Area-2) > 1e-15 {
		t.Errorf("area = %v, want 2", tri.Area)
	}
	if tri.Normal.Sub(mgl64.Vec3{0, 0, 1}).Len() > 1e-12 {
		t.Errorf("normal = %v", tri.Normal)
	}
}

func TestBounds(t *testing.T) {
	b := csgmath.EmptyBounds()
	if !b.IsEmpty() {
		t.Fatal("EmptyBounds not empty")
	}
	b.Include(mgl64.Vec3{-1, 0, 2})
	b.Include(mgl64.Vec3{1, 4, 3})
	if b.IsEmpty() {
		t.Fatal("bounds empty after include")
	}
	if got := b.Center(); got.Sub(mgl64.Vec3{0, 2, 2.5}).Len() > 1e-12 {
		t.Errorf("center = %v", got)
	}
	if got := b.Volume(); math.Abs(got-8) > 1e-15 {
		t.Errorf("volume = %v", got)
	}
	o := csgmath.Bounds{Min: mgl64.Vec3{1.5, 0, 2}, Max: mgl64.Vec3{2, 1, 3}}
	if b.Intersects(o, 0) {
		t.Error("disjoint boxes reported intersecting")
	}
	if !b.Intersects(o, 0.6) {
		t.Error("padded boxes should intersect")
	}
}
