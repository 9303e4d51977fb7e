package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/chazu/shatter/pkg/cutout"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/engine"
	"github.com/chazu/shatter/pkg/fracture"
	"github.com/chazu/shatter/pkg/kernel"
	"github.com/chazu/shatter/pkg/kernel/csg"
	"github.com/chazu/shatter/pkg/kernel/sdfx"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/chazu/shatter/pkg/tessellate"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// colorPalette is a default palette used to assign distinct colors to chunks.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// Config holds the run settings. It can be loaded from JSON and is
// overridden by command line flags.
type Config struct {
	Out     string `json:"out"`
	Workers int    `json:"workers"`
	Timeout string `json:"timeout"`
	// Kernel is "csg" or "sdfx".
	Kernel string `json:"kernel"`
	// Cells is the sdfx marching cubes resolution; zero keeps the default.
	Cells int `json:"cells,omitempty"`
	// Seed, when set, replaces the seed of every recipe.
	Seed *int64 `json:"seed,omitempty"`
	// Depth selects the chunks written: those at Depth plus shallower
	// leaves. A negative depth writes every leaf.
	Depth int `json:"depth"`
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		Out:     "-",
		Workers: runtime.NumCPU(),
		Timeout: engine.EvalTimeout.String(),
		Kernel:  "csg",
		Depth:   -1,
	}
}

// LoadConfig reads a JSON config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// App runs recipes through the pipeline: evaluate, build the shapes with
// a kernel, fracture, and flatten the chunks into render meshes.
type App struct {
	config  Config
	timeout time.Duration
	kernel  kernel.Kernel
}

// MeshData is the JSON-serializable mesh format written to the output.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	UVs      []float32 `json:"uvs,omitempty"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
	Chunk    int       `json:"chunk"`
	Depth    int       `json:"depth"`
}

// EvalErrorData is a JSON-serializable error or warning.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// Stats summarizes one recipe run.
type Stats struct {
	Method    string  `json:"method"`
	Shapes    int     `json:"shapes"`
	Chunks    int     `json:"chunks"`
	Leaves    int     `json:"leaves"`
	Hulls     int     `json:"hulls"`
	Triangles int     `json:"triangles"`
	Millis    float64 `json:"millis"`
}

// EvalResult is the full result of one recipe.
type EvalResult struct {
	Recipe   string          `json:"recipe"`
	Meshes   []MeshData      `json:"meshes"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
	Stats    Stats           `json:"stats"`
}

// RecipeSource is a recipe to run. Dir resolves relative stencil paths.
type RecipeSource struct {
	Name   string
	Source string
	Dir    string
}

// NewApp creates an App with the default config.
func NewApp() *App {
	a, err := NewAppWithConfig(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return a
}

// NewAppWithConfig creates an App, rejecting unknown kernels and bad
// timeouts.
func NewAppWithConfig(cfg Config) (*App, error) {
	a := &App{config: cfg, timeout: engine.EvalTimeout}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid timeout %q", cfg.Timeout)
		}
		a.timeout = d
	}
	switch cfg.Kernel {
	case "", "csg":
		a.kernel = csg.New()
	case "sdfx":
		if cfg.Cells > 0 {
			a.kernel = sdfx.NewWithCells(cfg.Cells)
		} else {
			a.kernel = sdfx.New()
		}
	default:
		return nil, fmt.Errorf("unknown kernel %q, want csg or sdfx", cfg.Kernel)
	}
	return a, nil
}

func newResult(name string) EvalResult {
	return EvalResult{
		Recipe:   name,
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}
}

func (r *EvalResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, EvalErrorData{Message: fmt.Sprintf(format, args...)})
}

func (r *EvalResult) addMesh(m *kernel.Mesh) {
	r.Meshes = append(r.Meshes, MeshData{
		Vertices: m.Vertices,
		Normals:  m.Normals,
		UVs:      m.UVs,
		Indices:  m.Indices,
		PartName: m.PartName,
		Color:    colorPalette[len(r.Meshes)%len(colorPalette)],
		Chunk:    m.Chunk,
		Depth:    m.Depth,
	})
	r.Stats.Triangles += m.TriangleCount()
}

// evaluate runs the recipe source. On failure the errors are recorded in
// result and the recipe is nil.
func (a *App) evaluate(source string, result *EvalResult) *engine.Recipe {
	eng := engine.NewEngine()
	eng.Timeout = a.timeout
	r, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		log.Printf("Evaluate fatal error: %v", err)
		result.fail("%s", err.Error())
		return nil
	}
	for _, e := range evalErrs {
		result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
	}
	if len(evalErrs) > 0 {
		return nil
	}
	for _, w := range r.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Line: w.Line, Col: w.Col, Message: w.Message})
	}
	if a.config.Seed != nil {
		r.Options.Seed = *a.config.Seed
	}
	result.Stats.Method = r.Method.String()
	return r
}

// Evaluate runs a recipe without fracturing and returns one mesh per
// shape.
func (a *App) Evaluate(source string) EvalResult {
	result := newResult("")
	r := a.evaluate(source, &result)
	if r == nil {
		return result
	}
	meshes, err := tessellate.Tessellate(r.Graph, a.kernel)
	if err != nil {
		log.Printf("Tessellate error: %v", err)
		result.fail("tessellation failed: %s", err.Error())
		return result
	}
	result.Stats.Shapes = len(meshes)
	for _, m := range meshes {
		result.addMesh(m)
	}
	return result
}

// pending is a recipe ready to fracture: one job per shape.
type pending struct {
	result *EvalResult
	names  []string
	jobs   []fracture.Job
}

// prepare evaluates a recipe and builds its fracture jobs.
func (a *App) prepare(src RecipeSource, result *EvalResult) *pending {
	r := a.evaluate(src.Source, result)
	if r == nil {
		return nil
	}
	shapes, err := tessellate.Solids(r.Graph, a.kernel)
	if err != nil {
		result.fail("tessellation failed: %s", err.Error())
		return nil
	}
	surfaces, err := tessellate.Triangles(shapes, a.kernel)
	if err != nil {
		result.fail("tessellation failed: %s", err.Error())
		return nil
	}
	result.Stats.Shapes = len(shapes)

	submeshes := []ehm.SubmeshData{{MaterialName: "default"}}
	if !r.Core.IsZero() {
		core, err := tessellate.Solid(r.Graph, a.kernel, r.Core)
		if err == nil {
			var tris []mesh.RenderTriangle
			if tris, err = a.kernel.Triangles(core); err == nil {
				r.Options.Core = &fracture.CoreMesh{Triangles: tris, SubmeshData: submeshes}
			}
		}
		if err != nil {
			result.fail("core: %s", err.Error())
			return nil
		}
	}

	var set *cutout.Set
	if r.Method == engine.MethodCutout {
		stencil := r.Stencil
		if stencil.Path != "" && !filepath.IsAbs(stencil.Path) {
			stencil.Path = filepath.Join(src.Dir, stencil.Path)
		}
		if set, err = stencil.Load(); err != nil {
			result.fail("stencil: %s", err.Error())
			return nil
		}
	}

	p := &pending{result: result}
	for i, sh := range shapes {
		m := ehm.New()
		if err := fracture.BuildFromTriangles(m, surfaces[i], submeshes, nil, nil); err != nil {
			result.fail("%s: %s", sh.Name, err.Error())
			return nil
		}
		p.names = append(p.names, sh.Name)
		p.jobs = append(p.jobs, fracture.Job{
			ID:   uuid.NewSHA1(uuid.NameSpaceURL, []byte(src.Name+"#"+sh.Name)),
			Name: sh.Name,
			Mesh: m,
			Seed: r.Options.Seed,
			Run: func(ctx context.Context, c *fracture.Context, m *ehm.Mesh) error {
				return r.Fracture(ctx, c, m, set, nil)
			},
		})
	}
	return p
}

// Fracture runs every recipe and fractures all their shapes in parallel.
// The returned error is only set when ctx ends; recipe failures are
// reported in the results.
func (a *App) Fracture(ctx context.Context, sources []RecipeSource) ([]EvalResult, error) {
	results := make([]EvalResult, len(sources))
	var all []*pending
	var jobs []fracture.Job
	for i, src := range sources {
		results[i] = newResult(src.Name)
		if p := a.prepare(src, &results[i]); p != nil {
			all = append(all, p)
			jobs = append(jobs, p.jobs...)
		}
	}

	start := time.Now()
	jobResults, err := fracture.RunJobs(ctx, jobs, a.config.Workers, nil)
	if err != nil && ctx.Err() != nil {
		return results, err
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	next := 0
	for _, p := range all {
		for i, job := range p.jobs {
			jr := jobResults[next]
			next++
			for _, msg := range jr.Messages {
				if msg.Severity <= fracture.SeverityWarning {
					p.result.Warnings = append(p.result.Warnings, EvalErrorData{Message: fmt.Sprintf("%s: %s", job.Name, msg.Text)})
				}
			}
			if jr.Err != nil {
				log.Printf("%s: fracture failed: %v", job.Name, jr.Err)
				p.result.fail("%s: fracture failed: %s", job.Name, jr.Err.Error())
				continue
			}
			a.collect(p.result, job.Mesh, p.names[i])
		}
		p.result.Stats.Millis = elapsed
	}
	return results, nil
}

// collect adds the chunks of a fractured mesh to result.
func (a *App) collect(result *EvalResult, m *ehm.Mesh, name string) {
	result.Stats.Chunks += m.ChunkCount()
	result.Stats.Leaves += lo.CountBy(lo.Range(m.ChunkCount()), func(i int) bool {
		return len(m.Children(i)) == 0
	})
	result.Stats.Hulls += m.HullCount()
	for _, km := range tessellate.Chunks(m, name, a.config.Depth) {
		result.addMesh(km)
	}
}
