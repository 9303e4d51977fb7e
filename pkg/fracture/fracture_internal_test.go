package fracture

import (
	"errors"
	"testing"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/cutout"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

func TestEstimateSliceChunks(t *testing.T) {
	d := DefaultFractureSliceDesc()
	sp := DefaultSliceParameters()
	d.MaxDepth = 2
	d.SliceParameters = []SliceParameters{sp, sp}
	// 8 at the first level and 64 below them
	if got := estimateSliceChunks(mgl64.Vec3{1, 1, 1}, &d); got != 72 {
		t.Errorf("estimateSliceChunks = %d, want 72", got)
	}

	d.MaxDepth = 1
	d.UseTargetProportions = true
	// A long chunk gets its pieces along its length.
	if got := slicePartition(mgl64.Vec3{8, 1, 1}, sp, &d); got != [3]int{2, 1, 1} {
		t.Errorf("slicePartition = %v, want [2 1 1]", got)
	}
}

func TestSameDimensions(t *testing.T) {
	tests := []struct {
		a, b mgl64.Vec3
		want bool
	}{
		{mgl64.Vec3{1, 2, 3}, mgl64.Vec3{1, 2, 3}, true},
		{mgl64.Vec3{1, 2, 3}, mgl64.Vec3{1.05, 2, 3}, true},
		{mgl64.Vec3{1, 2, 3}, mgl64.Vec3{1.1, 2, 3}, false},
		{mgl64.Vec3{1, 2, 3}, mgl64.Vec3{2, 1, 3}, false},
	}
	for _, tt := range tests {
		if got := sameDimensions(tt.a, tt.b); got != tt.want {
			t.Errorf("sameDimensions(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAxisFacesAreRightHanded(t *testing.T) {
	m := ehm.New()
	if err := BuildFromTriangles(m, mesh.Box(mgl64.Vec3{}, mgl64.Vec3{2, 3, 4}), []ehm.SubmeshData{{MaterialName: "default"}}, nil, nil); err != nil {
		t.Fatalf("BuildFromTriangles: %v", err)
	}
	d := DefaultFractureCutoutDesc()
	ch := &chipper{
		m:          m,
		desc:       &d,
		set:        &cutout.Set{Dimensions: mgl64.Vec2{1, 1}},
		rootBounds: m.Parts[0].Bounds,
	}
	for i := 0; i < DirectionCount; i++ {
		f := ch.axisFace(i)
		if det := csgmath.Det3(f.tm); det <= 0 {
			t.Errorf("face %d stencil transform has determinant %v", i, det)
		}
		// The face plane touches the box on the chipped side.
		axis, sign := directionAxisAndSign(i)
		want := m.Parts[0].Bounds.Max[axis]
		if sign != 0 {
			want = -m.Parts[0].Bounds.Min[axis]
		}
		if !mgl64.FloatEqualThreshold(f.maxDot, want, 1e-12) {
			t.Errorf("face %d maxDot = %v, want %v", i, f.maxDot, want)
		}
		if !mgl64.FloatEqualThreshold(f.mapSize[0], m.Parts[0].Bounds.Dimensions()[sliceAxes[axis][0]], 1e-3) {
			t.Errorf("face %d stencil width = %v", i, f.mapSize[0])
		}
	}
}

func TestCanonicalNormal(t *testing.T) {
	n := mgl64.Vec3{0.3, -0.4, 0.5}
	if canonicalNormal(n) != canonicalNormal(n.Mul(-1)) {
		t.Errorf("opposite normals have different canonical forms")
	}
}

func TestCalculateCutoutUVMapping(t *testing.T) {
	var tri mesh.RenderTriangle
	pos := [3]mgl64.Vec3{{0, 0, 0}, {2, 0, 0}, {0, 2, 0}}
	uv := [3]mgl64.Vec2{{0, 0}, {1, 0}, {0, 1}}
	for i := range tri.Vertices {
		tri.Vertices[i].Position = pos[i]
		tri.Vertices[i].UV[0] = uv[i]
	}
	tris := []mesh.RenderTriangle{tri}

	m, err := CalculateCutoutUVMapping(tris, mgl64.Vec3{0, 0, 1})
	if err != nil {
		t.Fatalf("CalculateCutoutUVMapping: %v", err)
	}
	if got := m.Mul3x1(mgl64.Vec3{0.5, 0.5, 1}); got.Sub(mgl64.Vec3{1, 1, 0}).Len() > 1e-9 {
		t.Errorf("uv (0.5, 0.5) maps to %v, want (1, 1, 0)", got)
	}

	if _, err := CalculateCutoutUVMapping(tris, mgl64.Vec3{}); !errors.Is(err, ErrNoUVMapping) {
		t.Errorf("zero direction: err = %v", err)
	}
	tris[0].Vertices[2].UV[0] = mgl64.Vec2{2, 0}
	if _, err := CalculateCutoutUVMapping(tris, mgl64.Vec3{0, 0, 1}); !errors.Is(err, ErrNoUVMapping) {
		t.Errorf("degenerate uvs: err = %v", err)
	}
}
