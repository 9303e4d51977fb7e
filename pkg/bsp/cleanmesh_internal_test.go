package bsp

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func area2D(tris [][3]mgl64.Vec2) float64 {
	a := 0.0
	for _, t := range tris {
		a += 0.5 * cross2(t[1].Sub(t[0]), t[2].Sub(t[0]))
	}
	return a
}

func TestMergeTriangles2D(t *testing.T) {
	c := mgl64.Vec2{0.5, 0.5}
	p := []mgl64.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	fan := [][3]mgl64.Vec2{
		{p[0], p[1], c}, {p[1], p[2], c}, {p[2], p[3], c}, {p[3], p[0], c},
	}
	// The right half has a vertex in the middle of the shared edge.
	tee := [][3]mgl64.Vec2{
		{{0, 0}, {0.5, 0}, {0.5, 1}},
		{{0, 0}, {0.5, 1}, {0, 1}},
		{{0.5, 0}, {1, 0}, {0.5, 0.5}},
		{{0.5, 0.5}, {1, 0}, {1, 1}},
		{{0.5, 0.5}, {1, 1}, {0.5, 1}},
	}
	// A square ring around a hole.
	var ring [][3]mgl64.Vec2
	outer := []mgl64.Vec2{{0, 0}, {3, 0}, {3, 3}, {0, 3}}
	inner := []mgl64.Vec2{{1, 1}, {2, 1}, {2, 2}, {1, 2}}
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		ring = append(ring,
			[3]mgl64.Vec2{outer[i], outer[j], inner[j]},
			[3]mgl64.Vec2{outer[i], inner[j], inner[i]})
	}

	tests := []struct {
		name    string
		tris    [][3]mgl64.Vec2
		maxTris int
		area    float64
	}{
		{"fan", fan, 2, 1},
		{"t-junction", tee, 2, 1},
		{"hole", ring, 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mergeTriangles2D(tt.tris, 1e-9)
			if !ok {
				t.Fatalf("merge failed")
			}
			if len(got) > tt.maxTris {
				t.Errorf("got %d triangles, want at most %d", len(got), tt.maxTris)
			}
			if a := area2D(got); math.Abs(a-tt.area) > 1e-9 {
				t.Errorf("area = %v, want %v", a, tt.area)
			}
			for i, tri := range got {
				if cross2(tri[1].Sub(tri[0]), tri[2].Sub(tri[0])) <= 0 {
					t.Errorf("triangle %d is not counter-clockwise: %v", i, tri)
				}
			}
		})
	}
}

func TestSimplifyLoop(t *testing.T) {
	verts := []mgl64.Vec2{{0, 0}, {0.5, 0}, {1, 0}, {1, 1}, {0, 1}}
	loop := simplifyLoop(verts, []int{0, 1, 2, 3, 4}, 1e-9)
	if len(loop) != 4 {
		t.Fatalf("loop = %v, want the collinear vertex removed", loop)
	}
	for _, v := range loop {
		if v == 1 {
			t.Errorf("collinear vertex kept: %v", loop)
		}
	}
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(0, 3)
	uf.union(4, 3)
	groups := uf.groups()
	if len(groups) != 3 {
		t.Fatalf("groups = %v", groups)
	}
	if len(groups[0]) != 3 || groups[0][0] != 0 || groups[0][2] != 4 {
		t.Errorf("first group = %v, want [0 3 4]", groups[0])
	}
}
