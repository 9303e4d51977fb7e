package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestNewAppWithConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"unknown kernel", func(c *Config) { c.Kernel = "manifold" }, "unknown kernel"},
		{"bad timeout", func(c *Config) { c.Timeout = "soon" }, "invalid timeout"},
		{"zero timeout", func(c *Config) { c.Timeout = "0s" }, "invalid timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)
			_, err := NewAppWithConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shatter.json")
	if err := os.WriteFile(path, []byte(`{"kernel": "sdfx", "seed": 9, "depth": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Kernel != "sdfx" || cfg.Seed == nil || *cfg.Seed != 9 || cfg.Depth != 1 {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset fields keep their defaults.
	if cfg.Out != "-" || cfg.Workers <= 0 || cfg.Timeout == "" {
		t.Errorf("defaults lost: %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(bad, []byte(`{"depth": "deep"}`), 0o644)
	if _, err := LoadConfig(bad); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestE2ESDFXKernel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kernel = "sdfx"
	cfg.Cells = 40
	a, err := NewAppWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	result := a.Evaluate(`(mesh (difference (box :size (vec3 2 2 2)) (translate (sphere :radius 0.8) (vec3 1 1 1))))`)
	if len(result.Errors) > 0 {
		t.Fatalf("errors: %v", result.Errors)
	}
	if len(result.Meshes) != 1 || len(result.Meshes[0].Indices) == 0 {
		t.Fatalf("expected one non-empty mesh, got %d", len(result.Meshes))
	}
}

// ---------------------------------------------------------------------------
// Evaluation edge cases
// ---------------------------------------------------------------------------

func TestE2ENoMeshSources(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"whitespace", "   \n\t\n  "},
		{"comments only", "; just a comment\n; another one\n"},
		{"plain arithmetic", "(def w 10) (def h (* w 2)) (+ w h)"},
		{"shape never meshed", `(defshape "lonely" (box))`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewApp().Evaluate(tt.source)
			if len(result.Errors) > 0 {
				t.Errorf("unexpected errors: %v", result.Errors)
			}
			if len(result.Meshes) != 0 {
				t.Errorf("expected no meshes, got %d", len(result.Meshes))
			}
		})
	}
}

func TestE2EErrorsHaveLines(t *testing.T) {
	result := NewApp().Evaluate("(mesh (box))\n(mesh (box :size (vec3 1 1")
	if len(result.Errors) == 0 {
		t.Fatal("expected eval errors")
	}
	for _, e := range result.Errors {
		if e.Message == "" {
			t.Error("empty error message")
		}
	}
}

func TestE2EValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"zero size", `(mesh (box :size (vec3 1 0 1)))`, "positive"},
		{"negative radius", `(mesh (sphere :radius -1))`, "positive"},
		{"unknown shape", `(mesh (shape "nope"))`, "no shape named"},
		{"fracture without mesh", `(fracture (voronoi :count 3))`, "no mesh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewApp().Evaluate(tt.source)
			if len(result.Errors) == 0 {
				t.Fatal("expected errors")
			}
			found := false
			for _, e := range result.Errors {
				if strings.Contains(e.Message, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %q", result.Errors, tt.want)
			}
		})
	}
}

func TestE2EOrphanWarning(t *testing.T) {
	result := NewApp().Evaluate(`(box) (mesh (sphere))`)
	if len(result.Errors) > 0 {
		t.Fatalf("errors: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning for the unused box")
	}
	if len(result.Meshes) != 1 {
		t.Errorf("expected 1 mesh, got %d", len(result.Meshes))
	}
}

func TestE2ERapidEvaluation(t *testing.T) {
	a := NewApp()
	var wg sync.WaitGroup
	results := make([]EvalResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Evaluate(`(mesh (box :size (vec3 1 2 3)))`)
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if len(r.Errors) > 0 {
			t.Errorf("evaluation %d: %v", i, r.Errors)
			continue
		}
		if len(r.Meshes) != 1 {
			t.Errorf("evaluation %d: %d meshes", i, len(r.Meshes))
		}
	}
}

func TestE2EColorPaletteWrapping(t *testing.T) {
	var b strings.Builder
	b.WriteString("(mesh")
	for i := 0; i < len(colorPalette)+2; i++ {
		fmt.Fprintf(&b, " (translate (box) (vec3 %d 0 0))", 2*i)
	}
	b.WriteString(")")

	result := NewApp().Evaluate(b.String())
	if len(result.Errors) > 0 {
		t.Fatalf("errors: %v", result.Errors)
	}
	if len(result.Meshes) != len(colorPalette)+2 {
		t.Fatalf("expected %d meshes, got %d", len(colorPalette)+2, len(result.Meshes))
	}
	for i, m := range result.Meshes {
		if want := colorPalette[i%len(colorPalette)]; m.Color != want {
			t.Errorf("mesh %d color = %s, want %s", i, m.Color, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

func TestWriteResults(t *testing.T) {
	dir := t.TempDir()
	one := newResult("a.lisp")
	one.Stats.Method = "slice"

	path := filepath.Join(dir, "one.json")
	if err := writeResults(path, []EvalResult{one}); err != nil {
		t.Fatalf("writeResults: %v", err)
	}
	data, _ := os.ReadFile(path)
	var got EvalResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("single result should encode as an object: %v", err)
	}
	if got.Recipe != "a.lisp" || got.Stats.Method != "slice" || got.Meshes == nil {
		t.Errorf("decoded %+v", got)
	}
	if !strings.Contains(string(data), `"meshes":[]`) {
		t.Errorf("empty meshes should encode as []: %s", data)
	}

	path = filepath.Join(dir, "two.json")
	if err := writeResults(path, []EvalResult{one, newResult("b.lisp")}); err != nil {
		t.Fatalf("writeResults: %v", err)
	}
	data, _ = os.ReadFile(path)
	var all []EvalResult
	if err := json.Unmarshal(data, &all); err != nil || len(all) != 2 {
		t.Fatalf("several results should encode as an array: %v, %d", err, len(all))
	}
}

func TestRecipeFlags(t *testing.T) {
	var f recipeFlags
	f.Set("a.lisp")
	f.Set("b.lisp")
	if len(f) != 2 || f.String() != "a.lisp,b.lisp" {
		t.Errorf("recipeFlags = %v", f)
	}
}
