package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/shatter/pkg/cutout"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/fracture"
	"github.com/chazu/shatter/pkg/graph"
	"github.com/chazu/shatter/pkg/progress"
	"github.com/go-gl/mathgl/mgl64"
)

// Method selects the fracture driver a recipe runs.
type Method int

const (
	MethodNone Method = iota
	MethodSlice
	MethodVoronoi
	MethodCutout
)

func (m Method) String() string {
	switch m {
	case MethodNone:
		return "none"
	case MethodSlice:
		return "slice"
	case MethodVoronoi:
		return "voronoi"
	case MethodCutout:
		return "cutout"
	default:
		return "unknown"
	}
}

// ErrNoStencil is returned when a cutout recipe names no stencil.
var ErrNoStencil = errors.New("engine: cutout recipe has no stencil")

// Stencil says where a cutout recipe's stencil comes from: an image file
// or inline polygons.
type Stencil struct {
	Path          string         `json:"path,omitempty"`
	Polygons      [][]mgl64.Vec2 `json:"polygons,omitempty"`
	Dimensions    mgl64.Vec2     `json:"dimensions"`
	Periodic      bool           `json:"periodic"`
	SnapThreshold float64        `json:"snap_threshold"`
}

// Load builds the cutout set. Relative paths are resolved by the caller.
func (s Stencil) Load() (*cutout.Set, error) {
	switch {
	case s.Path != "":
		return cutout.Load(s.Path, s.SnapThreshold, s.Periodic)
	case len(s.Polygons) > 0:
		return cutout.FromPolygons(s.Polygons, s.Dimensions, s.Periodic)
	default:
		return nil, ErrNoStencil
	}
}

// Recipe is the result of evaluating a recipe script: the shapes to build
// and how to fracture them.
type Recipe struct {
	Graph  *graph.ShapeGraph `json:"graph"`
	Method Method            `json:"method"`

	Slice   fracture.FractureSliceDesc   `json:"slice"`
	Voronoi fracture.FractureVoronoiDesc `json:"voronoi"`
	// VoronoiSites is the number of random sites scattered inside each
	// mesh when Voronoi has no explicit sites.
	VoronoiSites int                         `json:"voronoi_sites"`
	Cutout       fracture.FractureCutoutDesc `json:"cutout"`
	Stencil      Stencil                     `json:"stencil"`

	Options fracture.SplitOptions `json:"-"`
	// Core names a shape subtracted from every mesh before it is split.
	Core graph.NodeID `json:"core"`

	Warnings []EvalWarning `json:"warnings,omitempty"`
}

// NewRecipe returns an empty recipe with default descriptors.
func NewRecipe() *Recipe {
	return &Recipe{
		Graph:   graph.New(),
		Slice:   fracture.DefaultFractureSliceDesc(),
		Voronoi: fracture.DefaultFractureVoronoiDesc(),
		Cutout:  fracture.DefaultFractureCutoutDesc(),
		Stencil: Stencil{Dimensions: mgl64.Vec2{1, 1}},
		Options: fracture.DefaultSplitOptions(),
	}
}

// Fracture runs the recipe's driver on m. set is the loaded stencil and is
// only used by cutout recipes. The Context's seed is reused for random
// Voronoi sites.
func (r *Recipe) Fracture(ctx context.Context, c *fracture.Context, m *ehm.Mesh, set *cutout.Set, listener progress.Listener) error {
	switch r.Method {
	case MethodNone:
		return nil
	case MethodSlice:
		return fracture.CreateHierarchicallySplitMesh(ctx, c, m, r.Slice, r.Options, listener)
	case MethodVoronoi:
		desc := r.Voronoi
		if len(desc.Sites) == 0 {
			sites, chunks, err := fracture.CreateVoronoiSitesInsideMesh(ctx, c, m, r.VoronoiSites, 0, r.Options.Seed, listener)
			if err != nil {
				return err
			}
			desc.Sites, desc.ChunkIndices = sites, chunks
		}
		return fracture.CreateVoronoiSplitMesh(ctx, c, m, desc, r.Options, listener)
	case MethodCutout:
		if set == nil {
			return ErrNoStencil
		}
		return fracture.CreateChippedMesh(ctx, c, m, r.Cutout, set, r.Slice, r.Voronoi, r.Options, listener)
	default:
		return fmt.Errorf("engine: unknown fracture method %d", r.Method)
	}
}
