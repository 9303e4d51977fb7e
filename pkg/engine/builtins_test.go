package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/fracture"
	"github.com/chazu/shatter/pkg/graph"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/noise"
	"github.com/go-gl/mathgl/mgl64"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(box :size v)`,
			expect: `(box "__kw_size" v)`,
		},
		{
			name:   "multiple keywords",
			input:  `(cylinder :height 2 :radius 0.5)`,
			expect: `(cylinder "__kw_height" 2 "__kw_radius" 0.5)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(slice-level :noise-mode :perlin-3d)`,
			expect: `(slice_level "__kw_noise-mode" "__kw_perlin-3d")`,
		},
		{
			name:   "slice call renamed",
			input:  "(fracture (slice (slice-level :splits [1 0 0])))\n(slice\n  level)",
			expect: "(fracture (slice_fracture (slice_level \"__kw_splits\" [1 0 0])))\n(slice_fracture\n  level)",
		},
		{
			name:   "slice outside call position kept",
			input:  `(def slice 1) (slices x) "(slice"`,
			expect: `(def slice 1) (slices x) "(slice"`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative number preserved",
			input:  `(vec3 1 -1 0)`,
			expect: `(vec3 1 -1 0)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "kebab-case in string preserved",
			input:  `(hull :method "6-dop")`,
			expect: `(hull "__kw_method" "6-dop")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

func evalRecipe(t *testing.T, source string) *Recipe {
	t.Helper()
	r, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if r == nil {
		t.Fatal("expected non-nil recipe")
	}
	return r
}

// ---------------------------------------------------------------------------
// Shapes
// ---------------------------------------------------------------------------

func TestPrimitives(t *testing.T) {
	r := evalRecipe(t, `
(def thickness 0.25)
(defshape "slab" (box :size (vec3 2 1 thickness)))
(defshape "post" (cylinder :height 2 :radius 0.1 :segments 12))
(defshape "ball" (sphere :radius 0.5))
(defshape "brick" (box :x 0.5 :z 3))
(mesh (shape "slab") (shape "post") (shape "ball") (shape "brick"))
`)
	g := r.Graph
	if g.NodeCount() != 4 || len(g.Roots) != 4 {
		t.Fatalf("got %d nodes and %d roots, want 4 and 4", g.NodeCount(), len(g.Roots))
	}

	tests := []struct {
		name string
		want graph.PrimitiveData
	}{
		{"slab", graph.PrimitiveData{Shape: graph.PrimBox, Dimensions: mgl64.Vec3{2, 1, 0.25}}},
		{"post", graph.PrimitiveData{Shape: graph.PrimCylinder, Height: 2, Radius: 0.1, Segments: 12}},
		{"ball", graph.PrimitiveData{Shape: graph.PrimSphere, Radius: 0.5}},
		{"brick", graph.PrimitiveData{Shape: graph.PrimBox, Dimensions: mgl64.Vec3{0.5, 1, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := g.Lookup(tt.name)
			if n == nil {
				t.Fatalf("missing node %q", tt.name)
			}
			if n.Kind != graph.NodePrimitive {
				t.Errorf("kind = %s, want primitive", n.Kind)
			}
			if got := n.Data.(graph.PrimitiveData); got != tt.want {
				t.Errorf("data = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTransformsAndBooleans(t *testing.T) {
	r := evalRecipe(t, `
(def drill (rotate (cylinder :height 3 :radius 0.2) (vec3 90 0 0)))
(defshape "block"
  (difference (box :size (vec3 2 2 2))
              (place drill :at (vec3 1 1 1))
              (translate (sphere :radius 0.3) (vec3 0 0 2))))
(mesh (shape "block"))
`)
	g := r.Graph
	block := g.Lookup("block")
	if block == nil {
		t.Fatal("missing block")
	}
	if block.Kind != graph.NodeBoolean || block.Data.(graph.BooleanData).Op != graph.OpDifference {
		t.Fatalf("block = %s %+v", block.Kind, block.Data)
	}
	if len(block.Children) != 3 {
		t.Fatalf("block has %d operands, want 3", len(block.Children))
	}

	placed := g.Get(block.Children[1])
	td := placed.Data.(graph.TransformData)
	if td.Translation == nil || *td.Translation != (mgl64.Vec3{1, 1, 1}) || td.Rotation != nil {
		t.Errorf("place data = %+v", td)
	}
	rotated := g.Get(placed.Children[0])
	if rd := rotated.Data.(graph.TransformData); rd.Rotation == nil || *rd.Rotation != (mgl64.Vec3{90, 0, 0}) {
		t.Errorf("rotate data = %+v", rd)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings)
	}
}

func TestGroupAndCore(t *testing.T) {
	r := evalRecipe(t, `
(segments 32)
(def pillar (cylinder :height 4 :radius 0.5))
(group "colonnade" pillar (translate pillar (vec3 2 0 0)) :description "two pillars")
(mesh (shape "colonnade"))
(core (box :size (vec3 0.2 0.2 0.2)) :export true)
`)
	g := r.Graph
	if g.Defaults.Segments != 32 {
		t.Errorf("segments = %d, want 32", g.Defaults.Segments)
	}
	col := g.Lookup("colonnade")
	if col == nil || col.Kind != graph.NodeGroup || len(col.Children) != 2 {
		t.Fatalf("colonnade = %+v", col)
	}
	if col.Data.(graph.GroupData).Description != "two pillars" {
		t.Errorf("description = %q", col.Data.(graph.GroupData).Description)
	}
	if r.Core.IsZero() || g.Get(r.Core) == nil {
		t.Fatal("core not recorded")
	}
	if !r.Options.ExportCore {
		t.Error("core export not recorded")
	}
	// The core is not a mesh and must not be reported as an orphan.
	for _, w := range r.Warnings {
		if w.NodeID == r.Core {
			t.Errorf("core reported: %s", w.Message)
		}
	}
}

func TestOrphanWarning(t *testing.T) {
	r := evalRecipe(t, `
(box)
(mesh (sphere))
`)
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0].Message, "orphan") {
		t.Fatalf("warnings = %v, want one orphan warning", r.Warnings)
	}
}

func TestShapeErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"duplicate defshape", `(defshape "a" (box)) (defshape "a" (box))`, "already defined"},
		{"rename", `(def b (box)) (defshape "a" b) (defshape "c" b)`, "already named"},
		{"unknown shape", `(shape "nope")`, "no shape named"},
		{"bad operand", `(union (box) 3)`, "operand 2"},
		{"place arity", `(place)`, "one shape"},
		{"vec3 arity", `(vec3 1 2)`, "exactly 3"},
		{"few segments", `(segments 2)`, "at least 3"},
		{"float segments", `(cylinder :segments 3.5)`, "expected integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, evalErrs, err := NewEngine().Evaluate(tt.source)
			if err != nil {
				t.Fatalf("fatal error: %v", err)
			}
			if len(evalErrs) == 0 || !strings.Contains(evalErrs[0].Message, tt.want) {
				t.Errorf("errors = %v, want mention of %q", evalErrs, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Fracture descriptors
// ---------------------------------------------------------------------------

func TestSliceRecipe(t *testing.T) {
	r := evalRecipe(t, `
(mesh (box :size (vec3 4 2 1)))
(seed 7)
(fracture
  (slice
    (slice-level :splits [2 1 0] :linear [0 0 0] :angular [10 0 0]
                 :order :zyx :noise (noise :amplitude 0.05 :grid 4))
    (slice-level :splits (list 1 1 1))
    :proportions (vec3 2 1 1)
    :noise-mode :perlin-3d
    :instance true
    :material (material :uv-scale [2 2] :submesh 1)))
`)
	if r.Method != MethodSlice {
		t.Fatalf("method = %s, want slice", r.Method)
	}
	if r.Options.Seed != 7 {
		t.Errorf("seed = %d, want 7", r.Options.Seed)
	}
	d := r.Slice
	if d.MaxDepth != 2 || len(d.SliceParameters) != 2 {
		t.Fatalf("depth %d with %d levels, want 2 and 2", d.MaxDepth, len(d.SliceParameters))
	}
	l0 := d.SliceParameters[0]
	if l0.SplitsPerPass != [3]int{2, 1, 0} || l0.Order != fracture.SliceZYX {
		t.Errorf("level 0 = %+v", l0)
	}
	if math.Abs(l0.AngularVariation[0]-mgl64.DegToRad(10)) > 1e-12 || l0.LinearVariation != [3]float64{} {
		t.Errorf("level 0 variation = %v %v", l0.LinearVariation, l0.AngularVariation)
	}
	if l0.Noise[2].Amplitude != 0.05 || l0.Noise[2].GridSize != 4 {
		t.Errorf("level 0 noise = %+v", l0.Noise[2])
	}
	if d.SliceParameters[1].SplitsPerPass != [3]int{1, 1, 1} {
		t.Errorf("level 1 splits = %v", d.SliceParameters[1].SplitsPerPass)
	}
	if !d.UseTargetProportions || d.TargetProportions != [3]float64{2, 1, 1} {
		t.Errorf("proportions = %v %v", d.UseTargetProportions, d.TargetProportions)
	}
	if d.NoiseMode != noise.Perlin3D || !d.InstanceChunks {
		t.Errorf("noise mode %s, instance %v", d.NoiseMode, d.InstanceChunks)
	}
	if d.MaterialDesc[1].InteriorSubmeshIndex != 1 || d.MaterialDesc[1].UVScale != (mgl64.Vec2{2, 2}) {
		t.Errorf("material = %+v", d.MaterialDesc[1])
	}
}

func TestVoronoiRecipe(t *testing.T) {
	r := evalRecipe(t, `
(mesh (sphere :radius 1))
(fracture (voronoi :sites (list (vec3 0 0 0) [0.5 0 0]) :face-noise (noise :amplitude 0.1)
                   :noise-mode :perlin-2d :min-size 0.05))
`)
	if r.Method != MethodVoronoi {
		t.Fatalf("method = %s", r.Method)
	}
	if len(r.Voronoi.Sites) != 2 || r.Voronoi.Sites[1] != (mgl64.Vec3{0.5, 0, 0}) {
		t.Errorf("sites = %v", r.Voronoi.Sites)
	}
	if r.Voronoi.FaceNoise.Amplitude != 0.1 || r.Voronoi.NoiseMode != noise.Perlin2D || r.Voronoi.MinimumChunkSize != 0.05 {
		t.Errorf("voronoi = %+v", r.Voronoi)
	}

	r = evalRecipe(t, `(mesh (box)) (fracture (voronoi :count 12))`)
	if len(r.Voronoi.Sites) != 0 || r.VoronoiSites != 12 {
		t.Errorf("random sites: %d explicit, count %d", len(r.Voronoi.Sites), r.VoronoiSites)
	}
}

func TestCutoutRecipe(t *testing.T) {
	r := evalRecipe(t, `
(mesh (box :size (vec3 4 4 0.5)))
(fracture
  (cutout :rects (list [0 0 2 2] [2 0 4 2])
          :polygons (list [0 2 4 2 2 4])
          :size [4 4]
          :directions (list :neg-z :pos-x)
          :depth 0.5
          :instancing :congruent
          :tile true
          :chunks (voronoi :count 3)))
`)
	if r.Method != MethodCutout {
		t.Fatalf("method = %s", r.Method)
	}
	if len(r.Stencil.Polygons) != 3 || r.Stencil.Dimensions != (mgl64.Vec2{4, 4}) {
		t.Errorf("stencil = %+v", r.Stencil)
	}
	d := r.Cutout
	if d.Directions != fracture.NegativeZ|fracture.PositiveX {
		t.Errorf("directions = %#x", d.Directions)
	}
	if d.DirectionOrder[0] != fracture.NegativeZ || d.DirectionOrder[1] != fracture.PositiveX {
		t.Errorf("direction order = %v", d.DirectionOrder)
	}
	if d.CutoutParameters[4].Depth != 0.5 || d.InstancingMode != fracture.InstanceCongruentChunks || !d.TileFractureMap {
		t.Errorf("cutout = %+v", d)
	}
	if d.CutoutSizeX != 4 || d.CutoutSizeY != 4 {
		t.Errorf("cutout size = %v x %v", d.CutoutSizeX, d.CutoutSizeY)
	}
	if d.ChunkFracturingMethod != fracture.VoronoiFractureCutoutChunks || len(r.Voronoi.Sites) != 3 {
		t.Errorf("chunk fracturing %d with %d sites", d.ChunkFracturingMethod, len(r.Voronoi.Sites))
	}
	set, err := r.Stencil.Load()
	if err != nil {
		t.Fatalf("Stencil.Load: %v", err)
	}
	if set == nil {
		t.Fatal("nil cutout set")
	}
}

func TestCutoutStencilPath(t *testing.T) {
	r := evalRecipe(t, `
(mesh (box))
(fracture (cutout :stencil "bricks.png" :snap 0.5 :periodic true :directions (list :pos-y)))
`)
	if r.Stencil.Path != "bricks.png" || r.Stencil.SnapThreshold != 0.5 || !r.Stencil.Periodic {
		t.Errorf("stencil = %+v", r.Stencil)
	}

	_, evalErrs, err := NewEngine().Evaluate(`(cutout :stencil "a.png" :rects (list [0 0 1 1]))`)
	if err != nil || len(evalErrs) == 0 || !strings.Contains(evalErrs[0].Message, "not both") {
		t.Errorf("mixed stencil: %v %v", err, evalErrs)
	}
}

func TestProcessingAndCollision(t *testing.T) {
	r := evalRecipe(t, `
(mesh (box))
(processing :islands true :remove-t-junctions true :mode :closed :verbosity 2)
(collision (hull :method :convex-decomposition :concavity 2 :depth 1)
           (hull :method "6-dop")
           :trim 0.1)
`)
	p := r.Options.MeshProcessing
	if !p.IslandGeneration || !p.RemoveTJunctions || p.MeshMode != ehm.MeshModeClosed || p.Verbosity != 2 {
		t.Errorf("processing = %+v", p)
	}
	if p.MicrogridSize != fracture.DefaultMeshProcessingParameters().MicrogridSize {
		t.Errorf("microgrid = %d", p.MicrogridSize)
	}
	c := r.Options.Collision
	if len(c.VolumeDescs) != 2 || c.MaximumTrimming != 0.1 {
		t.Fatalf("collision = %+v", c)
	}
	if c.VolumeDescs[0].HullMethod != hull.ConvexDecomposition || c.VolumeDescs[0].ConcavityPercentError != 2 || c.VolumeDescs[0].RecursionDepth != 1 {
		t.Errorf("depth 0 = %+v", c.VolumeDescs[0])
	}
	if c.VolumeDescs[1].HullMethod != hull.Use6DOP {
		t.Errorf("depth 1 method = %s", c.VolumeDescs[1].HullMethod)
	}
}

func TestDescriptorErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"unknown order", `(slice-level :order :abc)`, "unknown value"},
		{"bad splits", `(slice-level :splits [1 1])`, "3 counts"},
		{"bad level", `(slice 3)`, "expected slice-level"},
		{"unknown hull", `(hull :method :blob)`, "unknown hull method"},
		{"unknown direction", `(cutout :directions (list :up))`, "unknown direction"},
		{"repeated direction", `(cutout :directions (list :neg-z :neg-z))`, "listed twice"},
		{"short polygon", `(cutout :polygons (list [0 0 1 1]))`, "at least 3"},
		{"cutout chunks", `(cutout :chunks (cutout))`, "sliced or split"},
		{"fracture arg", `(fracture (box))`, "expected slice, voronoi or cutout"},
		{"seed type", `(seed 1.5)`, "expected integer"},
		{"bool type", `(processing :islands 1)`, "expected boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, evalErrs, err := NewEngine().Evaluate(tt.source)
			if err != nil {
				t.Fatalf("fatal error: %v", err)
			}
			if len(evalErrs) == 0 || !strings.Contains(evalErrs[0].Message, tt.want) {
				t.Errorf("errors = %v, want mention of %q", evalErrs, tt.want)
			}
		})
	}
}
