package tessellate_test

import (
	"context"
	"math"
	"testing"

	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/fracture"
	"github.com/chazu/shatter/pkg/graph"
	"github.com/chazu/shatter/pkg/kernel"
	"github.com/chazu/shatter/pkg/kernel/csg"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/chazu/shatter/pkg/tessellate"
	"github.com/go-gl/mathgl/mgl64"
)

// newKernel returns a fresh BSP kernel for testing.
func newKernel() kernel.Kernel {
	return csg.New()
}

// makeBox creates a box primitive node with the given name and dimensions.
func makeBox(name string, x, y, z float64) *graph.Node {
	return &graph.Node{
		ID:   graph.NewNodeID(name),
		Kind: graph.NodePrimitive,
		Name: name,
		Data: graph.PrimitiveData{Shape: graph.PrimBox, Dimensions: mgl64.Vec3{x, y, z}},
	}
}

// makeTranslate creates a transform node with a translation.
func makeTranslate(name string, tx, ty, tz float64, children ...graph.NodeID) *graph.Node {
	t := mgl64.Vec3{tx, ty, tz}
	return &graph.Node{
		ID:       graph.NewNodeID(name),
		Kind:     graph.NodeTransform,
		Name:     name,
		Children: children,
		Data:     graph.TransformData{Translation: &t},
	}
}

// makeGroup creates a group node with children.
func makeGroup(name string, children ...graph.NodeID) *graph.Node {
	return &graph.Node{
		ID:       graph.NewNodeID(name),
		Kind:     graph.NodeGroup,
		Name:     name,
		Children: children,
		Data:     graph.GroupData{Description: name},
	}
}

func makeBoolean(name string, op graph.BooleanOp, children ...graph.NodeID) *graph.Node {
	return &graph.Node{
		ID:       graph.NewNodeID(name),
		Kind:     graph.NodeBoolean,
		Children: children,
		Data:     graph.BooleanData{Op: op},
	}
}

func add(g *graph.ShapeGraph, nodes ...*graph.Node) {
	for _, n := range nodes {
		g.AddNode(n)
	}
}

func solidVolume(t *testing.T, k kernel.Kernel, s kernel.Solid) float64 {
	t.Helper()
	tris, err := k.Triangles(s)
	if err != nil {
		t.Fatalf("Triangles: %v", err)
	}
	return mesh.SignedVolume(tris)
}

func TestSingleBox(t *testing.T) {
	k := newKernel()
	g := graph.New()
	box := makeBox("slab", 6, 3, 0.2)
	g.AddNode(box)
	g.AddRoot(box.ID)

	meshes, err := tessellate.Tessellate(g, k)
	if err != nil {
		t.Fatalf("Tessellate failed: %v", err)
	}
	if len(meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(meshes))
	}
	m := meshes[0]
	if m.PartName != "slab" {
		t.Errorf("expected PartName %q, got %q", "slab", m.PartName)
	}
	if m.TriangleCount() != 12 {
		t.Errorf("box has %d triangles, want 12", m.TriangleCount())
	}
}

func TestNilGraph(t *testing.T) {
	shapes, err := tessellate.Solids(nil, newKernel())
	if err != nil || shapes != nil {
		t.Errorf("Solids(nil) = %v, %v", shapes, err)
	}
}

func TestTransform(t *testing.T) {
	k := newKernel()
	g := graph.New()
	box := makeBox("block", 1, 0.5, 0.25)
	place := makeTranslate("placed", 2, 1, 0.5, box.ID)
	add(g, box, place)
	g.AddRoot(place.ID)

	shapes, err := tessellate.Solids(g, k)
	if err != nil {
		t.Fatalf("Solids failed: %v", err)
	}
	if len(shapes) != 1 || shapes[0].Name != "placed" {
		t.Fatalf("shapes = %+v", shapes)
	}
	min, max := shapes[0].Solid.BoundingBox()
	if min != [3]float64{2, 1, 0.5} || max != [3]float64{3, 1.5, 0.75} {
		t.Errorf("bounds = %v..%v", min, max)
	}
}

func TestBooleanRoot(t *testing.T) {
	k := newKernel()
	g := graph.New()
	slab := makeBox("slab", 2, 1, 1)
	cutter := makeBox("cutter", 1, 2, 2)
	moved := makeTranslate("move-cutter", 1, -0.5, -0.5, cutter.ID)
	diff := makeBoolean("diff", graph.OpDifference, slab.ID, moved.ID)
	add(g, slab, cutter, moved, diff)
	g.AddRoot(diff.ID)

	shapes, err := tessellate.Solids(g, k)
	if err != nil {
		t.Fatalf("Solids failed: %v", err)
	}
	if len(shapes) != 1 {
		t.Fatalf("got %d shapes, want 1", len(shapes))
	}
	if v := solidVolume(t, k, shapes[0].Solid); math.Abs(v-1) > 1e-5 {
		t.Errorf("volume = %v, want 1", v)
	}
}

func TestGroupRootAndOperand(t *testing.T) {
	k := newKernel()
	g := graph.New()
	a := makeBox("a", 1, 1, 1)
	b := makeBox("b", 1, 1, 1)
	movedB := makeTranslate("move-b", 3, 0, 0, b.ID)
	pair := makeGroup("pair", a.ID, movedB.ID)
	add(g, a, b, movedB, pair)
	g.AddRoot(pair.ID)

	shapes, err := tessellate.Solids(g, k)
	if err != nil {
		t.Fatalf("Solids failed: %v", err)
	}
	if len(shapes) != 2 || shapes[0].Name != "pair.0" || shapes[1].Name != "pair.1" {
		t.Fatalf("shapes = %+v, want pair.0 and pair.1", shapes)
	}

	// As a boolean operand the group acts as the union of its members.
	big := makeBox("big", 5, 2, 2)
	movedBig := makeTranslate("move-big", -0.5, -0.5, -0.5, big.ID)
	cut := makeBoolean("cut", graph.OpIntersection, movedBig.ID, pair.ID)
	add(g, big, movedBig, cut)
	g.Roots = []graph.NodeID{cut.ID}
	shapes, err = tessellate.Solids(g, k)
	if err != nil {
		t.Fatalf("Solids failed: %v", err)
	}
	if v := solidVolume(t, k, shapes[0].Solid); math.Abs(v-2) > 1e-5 {
		t.Errorf("volume = %v, want 2", v)
	}
}

func TestUnsupportedData(t *testing.T) {
	g := graph.New()
	n := &graph.Node{ID: graph.NewNodeID("odd"), Kind: graph.NodePrimitive, Data: graph.GroupData{}}
	g.AddNode(n)
	g.AddRoot(n.ID)
	if _, err := tessellate.Solids(g, newKernel()); err == nil {
		t.Error("expected an error for a primitive without primitive data")
	}
}

func TestTriangles(t *testing.T) {
	k := newKernel()
	shapes := []tessellate.Shape{{Name: "s", Solid: k.Sphere(1, 8)}, {Name: "b", Solid: k.Box(1, 1, 1)}}
	tris, err := tessellate.Triangles(shapes, k)
	if err != nil {
		t.Fatalf("Triangles failed: %v", err)
	}
	if len(tris) != 2 || len(tris[1]) != 12 {
		t.Fatalf("got %d surfaces", len(tris))
	}
}

func TestChunks(t *testing.T) {
	m := ehm.New()
	err := fracture.BuildFromTriangles(m, mesh.Box(mgl64.Vec3{}, mgl64.Vec3{2, 1, 1}),
		[]ehm.SubmeshData{{MaterialName: "default"}}, nil, nil)
	if err != nil {
		t.Fatalf("BuildFromTriangles: %v", err)
	}
	desc := fracture.DefaultFractureSliceDesc()
	sp := fracture.DefaultSliceParameters()
	sp.SplitsPerPass = [3]int{1, 0, 0}
	sp.LinearVariation = [3]float64{}
	sp.AngularVariation = [3]float64{}
	desc.MaxDepth = 1
	desc.SliceParameters = []fracture.SliceParameters{sp}
	c := fracture.NewContext(1)
	c.Logger = nil
	if err := fracture.CreateHierarchicallySplitMesh(context.Background(), c, m, desc, fracture.DefaultSplitOptions(), nil); err != nil {
		t.Fatalf("CreateHierarchicallySplitMesh: %v", err)
	}

	tests := []struct {
		depth int
		want  int
	}{
		{0, 1},
		{1, 2},
		{5, 2},
		{-1, 2},
	}
	for _, tt := range tests {
		chunks := tessellate.Chunks(m, "bar", tt.depth)
		if len(chunks) != tt.want {
			t.Errorf("depth %d: got %d meshes, want %d", tt.depth, len(chunks), tt.want)
			continue
		}
		for _, km := range chunks {
			if km.IsEmpty() || km.PartName == "" {
				t.Errorf("depth %d: chunk %d is empty or unnamed", tt.depth, km.Chunk)
			}
			if tt.depth >= 0 && tt.depth <= 1 && km.Depth != tt.depth {
				t.Errorf("depth %d: chunk %d has depth %d", tt.depth, km.Chunk, km.Depth)
			}
		}
	}
}

func TestSolid(t *testing.T) {
	k := newKernel()
	g := graph.New()
	a := makeBox("a", 1, 1, 1)
	b := makeBox("b", 1, 1, 1)
	movedB := makeTranslate("move-b", 0.5, 0, 0, b.ID)
	pair := makeGroup("pair", a.ID, movedB.ID)
	add(g, a, b, movedB, pair)

	s, err := tessellate.Solid(g, k, pair.ID)
	if err != nil {
		t.Fatalf("Solid failed: %v", err)
	}
	if v := solidVolume(t, k, s); math.Abs(v-1.5) > 1e-5 {
		t.Errorf("volume = %v, want 1.5", v)
	}
	if _, err := tessellate.Solid(g, k, graph.NewNodeID("missing")); err == nil {
		t.Error("expected an error for a missing node")
	}
}
