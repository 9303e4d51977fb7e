package bsp_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

func buildBox(t *testing.T, min, max mgl64.Vec3) *bsp.BSP {
	t.Helper()
	b := bsp.New()
	params := bsp.DefaultBuildParameters()
	params.Rand = rand.New(rand.NewSource(1))
	if err := b.FromMesh(context.Background(), mesh.Box(min, max), params, nil); err != nil {
		t.Fatalf("FromMesh: %v", err)
	}
	return b
}

func volumeOf(t *testing.T, b *bsp.BSP) (area, volume float64) {
	t.Helper()
	area, volume, bounded, err := b.SurfaceAreaAndVolume(true, bsp.OpNOP)
	if err != nil {
		t.Fatalf("SurfaceAreaAndVolume: %v", err)
	}
	if !bounded {
		t.Fatalf("solid is unbounded")
	}
	return area, volume
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestBoxVolume(t *testing.T) {
	b := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	if b.Type() != bsp.Nontrivial {
		t.Fatalf("Type = %v, want Nontrivial", b.Type())
	}
	area, volume := volumeOf(t, b)
	if !near(volume, 1, 1e-6) {
		t.Errorf("volume = %v, want 1", volume)
	}
	if !near(area, 6, 1e-6) {
		t.Errorf("area = %v, want 6", area)
	}
}

func TestFromMeshNoGeometry(t *testing.T) {
	b := bsp.New()
	err := b.FromMesh(context.Background(), nil, bsp.DefaultBuildParameters(), nil)
	if !errors.Is(err, bsp.ErrNoGeometry) {
		t.Fatalf("err = %v, want ErrNoGeometry", err)
	}
	if b.Type() != bsp.AllSpace {
		t.Errorf("failed build changed the BSP: %v", b)
	}
}

func TestFromMeshCanceled(t *testing.T) {
	b := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.FromMesh(ctx, mesh.Box(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{3, 3, 3}), bsp.DefaultBuildParameters(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, v := volumeOf(t, b); !near(v, 1, 1e-6) {
		t.Errorf("volume after canceled build = %v, want 1", v)
	}
}

func TestBooleanOps(t *testing.T) {
	tests := []struct {
		name   string
		op     bsp.Operation
		volume float64
	}{
		{"union", bsp.OpUnion, 1.5},
		{"intersection", bsp.OpIntersection, 0.5},
		{"a minus b", bsp.OpAMinusB, 0.5},
		{"b minus a", bsp.OpBMinusA, 0.5},
		{"xor", bsp.OpExclusiveOr, 1},
		{"set a", bsp.OpSetA, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
			b := buildBox(t, mgl64.Vec3{0.5, 0, 0}, mgl64.Vec3{1.5, 1, 1})
			if err := a.Combine(b); err != nil {
				t.Fatalf("Combine: %v", err)
			}
			if a.Type() != bsp.Combined {
				t.Fatalf("Type = %v, want Combined", a.Type())
			}
			_, cv, _, err := a.SurfaceAreaAndVolume(true, tt.op)
			if err != nil {
				t.Fatalf("combined volume: %v", err)
			}
			if err := a.Op(a, tt.op); err != nil {
				t.Fatalf("Op: %v", err)
			}
			_, v := volumeOf(t, a)
			if !near(v, tt.volume, 1e-6) {
				t.Errorf("volume = %v, want %v", v, tt.volume)
			}
			if !near(cv, v, 1e-6) {
				t.Errorf("combined volume %v != resolved volume %v", cv, v)
			}
		})
	}
}

func TestCombineRebasesOtherTransform(t *testing.T) {
	a := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	b := buildBox(t, mgl64.Vec3{0.3, 0.3, 0.3}, mgl64.Vec3{0.6, 0.6, 2})
	if a.InternalTransform().ApproxEqual(b.InternalTransform()) {
		t.Fatal("boxes of different extents should get different internal transforms")
	}
	bBefore := b.InternalTransform()
	if err := a.Combine(b); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if err := a.Op(a, bsp.OpAMinusB); err != nil {
		t.Fatalf("Op: %v", err)
	}
	if a.Type() != bsp.Nontrivial {
		t.Fatalf("Type = %v, want Nontrivial", a.Type())
	}
	if _, v := volumeOf(t, a); !near(v, 1-0.3*0.3*0.7, 1e-6) {
		t.Errorf("volume = %v, want %v", v, 1-0.3*0.3*0.7)
	}
	if b.InternalTransform() != bBefore {
		t.Error("Combine changed the other BSP")
	}
	if in, _ := a.PointInside(mgl64.Vec3{0.45, 0.45, 0.9}, bsp.OpNOP); in {
		t.Error("drilled point is still inside")
	}
}

func TestUnionVolumeIdentity(t *testing.T) {
	mk := func() (*bsp.BSP, *bsp.BSP) {
		return buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}),
			buildBox(t, mgl64.Vec3{0.25, 0.25, 0.25}, mgl64.Vec3{2, 1.5, 1.25})
	}
	volume := func(op bsp.Operation) float64 {
		a, b := mk()
		if err := a.Combine(b); err != nil {
			t.Fatalf("Combine: %v", err)
		}
		if err := a.Op(a, op); err != nil {
			t.Fatalf("Op: %v", err)
		}
		_, v := volumeOf(t, a)
		return v
	}
	a, b := mk()
	_, va := volumeOf(t, a)
	_, vb := volumeOf(t, b)
	union := volume(bsp.OpUnion)
	inter := volume(bsp.OpIntersection)
	if !near(union, va+vb-inter, 1e-6) {
		t.Errorf("union %v != %v + %v - %v", union, va, vb, inter)
	}
}

func TestMinusSelfIsEmpty(t *testing.T) {
	a := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	if err := a.Combine(a); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if err := a.Op(a, bsp.OpAMinusB); err != nil {
		t.Fatalf("Op: %v", err)
	}
	if a.Type() != bsp.EmptySet {
		t.Errorf("Type = %v, want EmptySet", a.Type())
	}
	tris, err := a.ToMesh()
	if err != nil {
		t.Fatalf("ToMesh: %v", err)
	}
	if len(tris) != 0 {
		t.Errorf("ToMesh returned %d triangles, want 0", len(tris))
	}
}

func TestUnionWithEmpty(t *testing.T) {
	a := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	empty := bsp.New()
	if err := empty.Complement(); err != nil {
		t.Fatal(err)
	}
	if empty.Type() != bsp.EmptySet {
		t.Fatalf("complement of all space is %v", empty.Type())
	}
	if err := a.Combine(empty); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if err := a.Op(a, bsp.OpUnion); err != nil {
		t.Fatalf("Op: %v", err)
	}
	if _, v := volumeOf(t, a); !near(v, 1, 1e-6) {
		t.Errorf("volume = %v, want 1", v)
	}
}

func TestCombineErrors(t *testing.T) {
	a := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	if err := a.Op(a, bsp.OpUnion); !errors.Is(err, bsp.ErrNotCombined) {
		t.Errorf("Op on uncombined: err = %v", err)
	}
	b := a.Clone()
	if err := a.Combine(b); err != nil {
		t.Fatal(err)
	}
	if err := a.Combine(b); !errors.Is(err, bsp.ErrCombined) {
		t.Errorf("second Combine: err = %v", err)
	}
	if err := a.Op(a, bsp.OpNOP); !errors.Is(err, bsp.ErrNOP) {
		t.Errorf("Op NOP: err = %v", err)
	}
	if _, err := a.ToMesh(); !errors.Is(err, bsp.ErrCombined) {
		t.Errorf("ToMesh on combined: err = %v", err)
	}
	if _, err := a.PointInside(mgl64.Vec3{}, bsp.OpNOP); !errors.Is(err, bsp.ErrNeedOperation) {
		t.Errorf("PointInside without op: err = %v", err)
	}
}

func TestMeshRoundTrip(t *testing.T) {
	for _, clean := range []bool{false, true} {
		name := "raw"
		if clean {
			name = "cleaned"
		}
		t.Run(name, func(t *testing.T) {
			a := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
			b := buildBox(t, mgl64.Vec3{0.5, 0.5, 0}, mgl64.Vec3{1.5, 1.5, 1})
			tol := a.Tolerances()
			if !clean {
				tol.Cleaning = 0
			}
			a.SetTolerances(tol)
			if err := a.Combine(b); err != nil {
				t.Fatal(err)
			}
			if err := a.Op(a, bsp.OpUnion); err != nil {
				t.Fatal(err)
			}
			_, volume := volumeOf(t, a)
			tris, err := a.ToMesh()
			if err != nil {
				t.Fatalf("ToMesh: %v", err)
			}
			if got := mesh.SignedVolume(tris); !near(got, volume, 1e-6) {
				t.Errorf("mesh volume = %v, want %v", got, volume)
			}
			if got := mesh.SurfaceArea(tris); !near(got, 9.5, 1e-6) {
				t.Errorf("mesh area = %v, want 9.5", got)
			}
			if !near(volume, 1.75, 1e-6) {
				t.Errorf("volume = %v, want 1.75", volume)
			}
		})
	}
}

func TestSphereRebuildFromMesh(t *testing.T) {
	params := bsp.DefaultBuildParameters()
	params.Rand = rand.New(rand.NewSource(3))
	first := bsp.New()
	if err := first.FromMesh(context.Background(), mesh.Sphere(1, 24), params, nil); err != nil {
		t.Fatalf("FromMesh: %v", err)
	}
	a1, v1 := volumeOf(t, first)
	tris, err := first.ToMesh()
	if err != nil {
		t.Fatalf("ToMesh: %v", err)
	}
	second := bsp.New()
	if err := second.FromMesh(context.Background(), tris, params, nil); err != nil {
		t.Fatalf("FromMesh of extracted mesh: %v", err)
	}
	a2, v2 := volumeOf(t, second)
	if !near(v1, v2, 1e-3*v1) {
		t.Errorf("volume %v after rebuild, was %v", v2, v1)
	}
	if !near(a1, a2, 1e-3*a1) {
		t.Errorf("area %v after rebuild, was %v", a2, a1)
	}
	if v1 < 3.8 || v1 > 4.19 {
		t.Errorf("sphere volume = %v, want close to 4/3 pi", v1)
	}
}

func TestCleaningReducesTriangles(t *testing.T) {
	a := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	b := buildBox(t, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{2, 1, 1})
	raw := func(cleaning float64) int {
		c := a.Clone()
		tol := c.Tolerances()
		tol.Cleaning = cleaning
		c.SetTolerances(tol)
		if err := c.Combine(b); err != nil {
			t.Fatal(err)
		}
		if err := c.Op(c, bsp.OpUnion); err != nil {
			t.Fatal(err)
		}
		tris, err := c.ToMesh()
		if err != nil {
			t.Fatal(err)
		}
		if v := mesh.SignedVolume(tris); !near(v, 2, 1e-6) {
			t.Errorf("cleaning %v: volume = %v, want 2", cleaning, v)
		}
		return len(tris)
	}
	if cleaned, unclean := raw(1e-6), raw(0); cleaned > unclean {
		t.Errorf("cleaned mesh has %d triangles, raw has %d", cleaned, unclean)
	}
}

func TestPointInside(t *testing.T) {
	b := buildBox(t, mgl64.Vec3{-1, -1, -1}, mgl64.Vec3{1, 1, 1})
	tests := []struct {
		p    mgl64.Vec3
		want bool
	}{
		{mgl64.Vec3{0, 0, 0}, true},
		{mgl64.Vec3{0.9, -0.9, 0.5}, true},
		{mgl64.Vec3{1.5, 0, 0}, false},
		{mgl64.Vec3{0, 0, -3}, false},
	}
	for _, tt := range tests {
		got, err := b.PointInside(tt.p, bsp.OpNOP)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("PointInside(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if err := b.Complement(); err != nil {
		t.Fatal(err)
	}
	if in, _ := b.PointInside(mgl64.Vec3{}, bsp.OpNOP); in {
		t.Errorf("origin inside complement")
	}
	if _, _, bounded, _ := b.SurfaceAreaAndVolume(true, bsp.OpNOP); bounded {
		t.Errorf("complement of a box reported bounded")
	}
}

func TestTransform(t *testing.T) {
	b := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	tm := mgl64.Translate3D(5, 0, 0).Mul4(mgl64.Scale3D(2, 1, 1))
	b.Transform(tm)
	if _, v := volumeOf(t, b); !near(v, 2, 1e-6) {
		t.Errorf("volume = %v, want 2", v)
	}
	if in, _ := b.PointInside(mgl64.Vec3{6.5, 0.5, 0.5}, bsp.OpNOP); !in {
		t.Errorf("moved box does not contain its new center")
	}
	bounds := b.Bounds()
	if !near(bounds.Min[0], 5, 1e-6) || !near(bounds.Max[0], 7, 1e-6) {
		t.Errorf("bounds = %v", bounds)
	}

	mirror := b.Clone()
	mirror.Transform(mgl64.Scale3D(-1, 1, 1))
	if _, v := volumeOf(t, mirror); !near(v, 2, 1e-6) {
		t.Errorf("mirrored volume = %v, want 2", v)
	}
	tris, err := mirror.ToMesh()
	if err != nil {
		t.Fatal(err)
	}
	if v := mesh.SignedVolume(tris); !near(v, 2, 1e-6) {
		t.Errorf("mirrored mesh volume = %v, want 2", v)
	}
}

func TestConvexPolyhedron(t *testing.T) {
	var planes []csgmath.Plane
	for axis := 0; axis < 3; axis++ {
		var n mgl64.Vec3
		n[axis] = 1
		planes = append(planes, csgmath.NewPlane(n, -1), csgmath.NewPlane(n.Mul(-1), -1))
	}
	b := bsp.New()
	b.FromConvexPolyhedron(planes, mgl64.Mat4{}, nil)
	if _, v := volumeOf(t, b); !near(v, 8, 1e-9) {
		t.Errorf("volume = %v, want 8", v)
	}

	empty := bsp.New()
	empty.FromConvexPolyhedron([]csgmath.Plane{
		csgmath.NewPlane(mgl64.Vec3{1, 0, 0}, 1),
		csgmath.NewPlane(mgl64.Vec3{-1, 0, 0}, 1),
	}, mgl64.Mat4{}, nil)
	if empty.Type() != bsp.EmptySet {
		t.Errorf("disjoint halfspaces gave %v", empty.Type())
	}

	all := bsp.New()
	all.FromConvexPolyhedron(nil, mgl64.Mat4{}, nil)
	if all.Type() != bsp.AllSpace {
		t.Errorf("no planes gave %v", all.Type())
	}
}

func TestDecomposeIntoIslands(t *testing.T) {
	a := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	b := buildBox(t, mgl64.Vec3{3, 0, 0}, mgl64.Vec3{4, 1, 1})
	if err := a.Combine(b); err != nil {
		t.Fatal(err)
	}
	if err := a.Op(a, bsp.OpUnion); err != nil {
		t.Fatal(err)
	}
	islands := a.DecomposeIntoIslands()
	if len(islands) != 2 {
		t.Fatalf("got %d islands, want 2", len(islands))
	}
	for i, is := range islands {
		if _, v := volumeOf(t, is); !near(v, 1, 1e-6) {
			t.Errorf("island %d volume = %v, want 1", i, v)
		}
	}

	single := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	if got := single.DecomposeIntoIslands(); len(got) != 1 || got[0] != single {
		t.Errorf("single island did not return the receiver")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	a := buildBox(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	b := buildBox(t, mgl64.Vec3{0.5, 0.5, 0.5}, mgl64.Vec3{1.5, 1.5, 1.5})
	if err := a.Combine(b); err != nil {
		t.Fatal(err)
	}
	if err := a.Op(a, bsp.OpAMinusB); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := a.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	data := buf.Bytes()
	c := bsp.New()
	if err := c.Deserialize(bytes.NewReader(data)); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	_, va := volumeOf(t, a)
	_, vc := volumeOf(t, c)
	if !near(va, vc, 1e-12) || !near(va, 0.875, 1e-6) {
		t.Errorf("volumes %v, %v, want 0.875", va, vc)
	}
	if a.TriangleCount() != c.TriangleCount() || a.PlaneCount() != c.PlaneCount() {
		t.Errorf("counts differ: %v vs %v", a, c)
	}

	var again bytes.Buffer
	if err := c.Serialize(&again); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again.Bytes()) {
		t.Errorf("re-serialized stream differs")
	}

	truncated := bsp.New()
	if err := truncated.Deserialize(bytes.NewReader(data[:len(data)/2])); err == nil {
		t.Errorf("truncated stream decoded without error")
	}
	if truncated.Type() != bsp.AllSpace {
		t.Errorf("failed decode modified the receiver")
	}
}
