package interp_test

import (
	"math"
	"testing"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/interp"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

func sampleTriangle() mesh.RenderTriangle {
	var tri mesh.RenderTriangle
	pos := [3]mgl64.Vec3{{1, 0, 0}, {3, 1, 0}, {1, 2, 1}}
	for i := range tri.Vertices {
		v := &tri.Vertices[i]
		v.Position = pos[i]
		v.Normal = mgl64.Vec3{0, 0, 1}
		v.Tangent = mgl64.Vec3{1, 0, 0}
		v.Binormal = mgl64.Vec3{0, 1, 0}
		v.UV[0] = mgl64.Vec2{float64(i), float64(i * i)}
		v.UV[2] = mgl64.Vec2{0.5, -float64(i)}
		v.Color = mgl64.Vec4{float64(i) / 2, 1, 0, 1}
	}
	return tri
}

func TestSetFromTriangleReproducesCorners(t *testing.T) {
	tri := sampleTriangle()
	in := interp.FromTriangle(&tri)
	for i, want := range tri.Vertices {
		got := mesh.Vertex{Position: want.Position}
		in.Interpolate(&got)
		if got.UV[0].Sub(want.UV[0]).Len() > 1e-12 {
			t.Errorf("corner %d uv0 = %v, want %v", i, got.UV[0], want.UV[0])
		}
		if got.UV[2].Sub(want.UV[2]).Len() > 1e-12 {
			t.Errorf("corner %d uv2 = %v, want %v", i, got.UV[2], want.UV[2])
		}
		if got.Color.Sub(want.Color).Len() > 1e-12 {
			t.Errorf("corner %d color = %v, want %v", i, got.Color, want.Color)
		}
		if got.Normal.Sub(want.Normal).Len() > 1e-12 {
			t.Errorf("corner %d normal = %v", i, got.Normal)
		}
	}
}

func TestSetFromTriangleMidpoint(t *testing.T) {
	tri := sampleTriangle()
	in := interp.FromTriangle(&tri)
	mid := tri.Vertices[0].Position.Add(tri.Vertices[1].Position).Mul(0.5)
	v := mesh.Vertex{Position: mid}
	in.Interpolate(&v)
	want := tri.Vertices[0].UV[0].Add(tri.Vertices[1].UV[0]).Mul(0.5)
	if v.UV[0].Sub(want).Len() > 1e-12 {
		t.Errorf("midpoint uv = %v, want %v", v.UV[0], want)
	}
}

func TestSetFromTriangleDegenerate(t *testing.T) {
	var tri mesh.RenderTriangle
	tri.Vertices[1].Position = mgl64.Vec3{1, 0, 0}
	tri.Vertices[2].Position = mgl64.Vec3{2, 0, 0}
	in := interp.FromTriangle(&tri)
	if in != (interp.Interpolator{}) {
		t.Errorf("degenerate triangle produced nonzero frames")
	}
}

func TestSetFlat(t *testing.T) {
	var in interp.Interpolator
	in.SetFlat([3]mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, mgl64.Vec2{2, 0})
	v := mesh.Vertex{Position: mgl64.Vec3{4, 6, 9}}
	in.Interpolate(&v)
	if v.UV[0] != (mgl64.Vec2{2, 0}) {
		t.Errorf("uv = %v, want (2, 0)", v.UV[0])
	}
	if v.Normal != (mgl64.Vec3{0, 0, 1}) {
		t.Errorf("normal = %v", v.Normal)
	}
	if v.Color != (mgl64.Vec4{1, 1, 1, 1}) {
		t.Errorf("color = %v", v.Color)
	}
}

func TestTransformMatchesTransformedTriangle(t *testing.T) {
	tri := sampleTriangle()
	in := interp.FromTriangle(&tri)
	tm := mgl64.Translate3D(2, -1, 0.5).Mul4(mgl64.HomogRotate3D(0.4, mgl64.Vec3{0, 0, 1}))
	moved := in.Transform(tm, csgmath.Inverse34(tm).Transpose())

	p := tri.Centroid()
	before := mesh.Vertex{Position: p}
	in.Interpolate(&before)
	after := mesh.Vertex{Position: csgmath.TransformPos(tm, p)}
	moved.Interpolate(&after)

	if math.Abs(before.UV[0][0]-after.UV[0][0]) > 1e-12 {
		t.Errorf("uv not invariant: %v vs %v", before.UV[0], after.UV[0])
	}
	wantTangent := csgmath.TransformDir(tm, before.Tangent)
	if after.Tangent.Sub(wantTangent).Len() > 1e-12 {
		t.Errorf("tangent = %v, want %v", after.Tangent, wantTangent)
	}
}

func TestEquals(t *testing.T) {
	tri := sampleTriangle()
	a := interp.FromTriangle(&tri)
	b := a
	tol := interp.DefaultCleaningTolerances()
	if !a.Equals(&b, tol) {
		t.Fatal("identical interpolators not equal")
	}
	tri.Vertices[2].UV[0][0] += 0.5
	c := interp.FromTriangle(&tri)
	if a.Equals(&c, tol) {
		t.Error("interpolators with different uvs reported equal")
	}
}
