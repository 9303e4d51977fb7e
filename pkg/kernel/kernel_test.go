package kernel

import (
	"math"
	"testing"

	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

func TestMeshCounts(t *testing.T) {
	box := mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 2, 3})
	tests := []struct {
		name      string
		m         *Mesh
		vertices  int
		triangles int
		empty     bool
	}{
		{"zero value", &Mesh{}, 0, 0, true},
		{"no triangles", FromTriangles(nil, mgl64.Vec3{}), 0, 0, true},
		{"one triangle", FromTriangles(box[:1], mgl64.Vec3{}), 3, 1, false},
		{"box", FromTriangles(box, mgl64.Vec3{}), 36, 12, false},
		{"positions only", &Mesh{Vertices: []float32{1, 2, 3}}, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.VertexCount(); got != tt.vertices {
				t.Errorf("VertexCount() = %d, want %d", got, tt.vertices)
			}
			if got := tt.m.TriangleCount(); got != tt.triangles {
				t.Errorf("TriangleCount() = %d, want %d", got, tt.triangles)
			}
			if got := tt.m.IsEmpty(); got != tt.empty {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.empty)
			}
		})
	}
}

func TestFromTriangles(t *testing.T) {
	tris := mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})
	m := FromTriangles(tris, mgl64.Vec3{0, 0, 2})
	if m.TriangleCount() != 12 || m.VertexCount() != 36 {
		t.Fatalf("got %d triangles and %d vertices, want 12 and 36", m.TriangleCount(), m.VertexCount())
	}
	if len(m.UVs) != 72 {
		t.Errorf("len(UVs) = %d, want 72", len(m.UVs))
	}
	for i := 2; i < len(m.Vertices); i += 3 {
		if m.Vertices[i] < 2 || m.Vertices[i] > 3 {
			t.Fatalf("vertex z = %v, want offset into [2, 3]", m.Vertices[i])
		}
	}
	if m.Chunk != -1 || m.Depth != 0 {
		t.Errorf("Chunk, Depth = %d, %d, want -1, 0", m.Chunk, m.Depth)
	}
}

func TestFlatTriangle(t *testing.T) {
	tri := FlatTriangle([3]mgl64.Vec3{{0, 0, 1}, {2, 0, 1}, {0, 3, 1}})
	for i, v := range tri.Vertices {
		if v.Normal.Sub(mgl64.Vec3{0, 0, 1}).Len() > 1e-9 {
			t.Errorf("vertex %d normal = %v", i, v.Normal)
		}
		if math.Abs(v.Tangent.Dot(v.Normal)) > 1e-12 {
			t.Errorf("vertex %d tangent is not in the face", i)
		}
	}
	if uv := tri.Vertices[2].UV[0]; uv.Sub(mgl64.Vec2{0, 3}).Len() > 1e-9 {
		t.Errorf("uv = %v, want (0, 3)", uv)
	}
	if tri.ExtraDataIndex != mesh.NoExtraData {
		t.Errorf("ExtraDataIndex = %d", tri.ExtraDataIndex)
	}
}
