package csg_test

import (
	"math"
	"testing"

	"github.com/chazu/shatter/pkg/kernel"
	"github.com/chazu/shatter/pkg/kernel/csg"
	"github.com/chazu/shatter/pkg/mesh"
)

func volume(t *testing.T, k kernel.Kernel, s kernel.Solid) float64 {
	t.Helper()
	tris, err := k.Triangles(s)
	if err != nil {
		t.Fatalf("Triangles: %v", err)
	}
	return mesh.SignedVolume(tris)
}

func TestBooleans(t *testing.T) {
	k := csg.New()
	unit := func() kernel.Solid { return k.Box(1, 1, 1) }
	prism := 0.5 * 16 * 0.25 * math.Sin(2*math.Pi/16)

	tests := []struct {
		name  string
		solid kernel.Solid
		want  float64
	}{
		{"box", k.Box(1, 2, 3), 6},
		{"union", k.Union(unit(), k.Translate(unit(), 0.5, 0, 0)), 1.5},
		{"difference", k.Difference(k.Box(2, 1, 1), k.Translate(k.Box(1, 2, 2), 1, -0.5, -0.5)), 1},
		{"intersection", k.Intersection(unit(), k.Translate(unit(), 0.5, 0.5, 0.5)), 0.125},
		{"drilled", k.Difference(k.Translate(k.Box(2, 2, 1), -1, -1, -0.5), k.Cylinder(2, 0.5, 16)), 4 - prism},
		{"nested", k.Union(k.Difference(k.Box(2, 1, 1), k.Translate(k.Box(2, 2, 2), 1, -0.5, -0.5)), k.Translate(unit(), 0, 0, 0.5)), 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := volume(t, k, tt.solid); math.Abs(got-tt.want) > 1e-4 {
				t.Errorf("volume = %v, want %v", got, tt.want)
			}
		})
	}
}

// A cavity fully inside its container is cut by many primitive planes at
// once; the shell must keep the inner surface.
func TestHollowSphere(t *testing.T) {
	k := csg.New()
	want := mesh.SignedVolume(mesh.Sphere(1, 24)) - mesh.SignedVolume(mesh.Sphere(0.8, 24))
	tests := []struct {
		name  string
		solid kernel.Solid
		extra float64
	}{
		{"centered", k.Difference(k.Sphere(1, 24), k.Sphere(0.8, 24)), 0},
		{"nested union", k.Union(k.Difference(k.Sphere(1, 24), k.Sphere(0.8, 24)), k.Translate(k.Box(0.1, 0.1, 0.1), 3, 0, 0)), 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := volume(t, k, tt.solid); math.Abs(got-want-tt.extra) > 1e-3*want {
				t.Errorf("volume = %v, want %v", got, want+tt.extra)
			}
		})
	}
}

func TestTransforms(t *testing.T) {
	k := csg.New()
	s := k.Translate(k.Box(1, 2, 3), 10, 0, 0)
	min, max := s.BoundingBox()
	if min != [3]float64{10, 0, 0} || max != [3]float64{11, 2, 3} {
		t.Errorf("translated bounds = %v..%v", min, max)
	}

	r := k.Rotate(k.Box(1, 2, 3), 0, 0, 90)
	min, max = r.BoundingBox()
	want := [2][3]float64{{-2, 0, 0}, {0, 1, 3}}
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-want[0][i]) > 1e-9 || math.Abs(max[i]-want[1][i]) > 1e-9 {
			t.Fatalf("rotated bounds = %v..%v, want %v..%v", min, max, want[0], want[1])
		}
	}
	if v := volume(t, k, r); math.Abs(v-6) > 1e-9 {
		t.Errorf("rotated volume = %v, want 6", v)
	}

	// Transforming a boolean moves both operands.
	u := k.Translate(k.Union(k.Box(1, 1, 1), k.Translate(k.Box(1, 1, 1), 1, 0, 0)), 0, 0, 5)
	min, max = u.BoundingBox()
	if min != [3]float64{0, 0, 5} || max != [3]float64{2, 1, 6} {
		t.Errorf("translated union bounds = %v..%v", min, max)
	}
}

func TestToMesh(t *testing.T) {
	k := csg.New()
	m, err := k.ToMesh(k.Sphere(1, 12))
	if err != nil {
		t.Fatalf("ToMesh: %v", err)
	}
	if m.IsEmpty() || m.TriangleCount() == 0 {
		t.Fatal("sphere mesh is empty")
	}
	if len(m.Vertices) != len(m.Normals) || len(m.UVs) != 2*m.VertexCount() {
		t.Errorf("buffer sizes disagree: %d vertices, %d normals, %d uvs", len(m.Vertices), len(m.Normals), len(m.UVs))
	}
	if m.Chunk != -1 {
		t.Errorf("Chunk = %d, want -1", m.Chunk)
	}
}
