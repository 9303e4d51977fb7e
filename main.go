// Command shatter evaluates fracture recipes and writes the resulting
// chunk meshes as JSON.
//
//	shatter -recipe wall.lisp -out wall.json [-seed N] [-workers N] [-timeout D]
//
// Several -recipe flags run as parallel jobs and write a JSON array.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
)

// recipeFlags collects repeated -recipe flags.
type recipeFlags []string

func (f *recipeFlags) String() string     { return strings.Join(*f, ",") }
func (f *recipeFlags) Set(v string) error { *f = append(*f, v); return nil }

func main() {
	log.SetFlags(0)
	log.SetPrefix("shatter: ")

	var recipes recipeFlags
	flag.Var(&recipes, "recipe", "recipe file to run (repeatable)")
	configPath := flag.String("config", "", "JSON config file")
	out := flag.String("out", "", "output file, - for stdout")
	seed := flag.Int64("seed", 0, "seed replacing the recipes' seeds")
	workers := flag.Int("workers", 0, "fracture jobs run at once")
	timeout := flag.String("timeout", "", "recipe evaluation timeout")
	kernelName := flag.String("kernel", "", "geometry kernel: csg or sdfx")
	depth := flag.Int("depth", 0, "chunk depth to write; negative writes every leaf")
	preview := flag.Bool("preview", false, "build the shapes without fracturing")
	flag.Parse()

	if len(recipes) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = LoadConfig(*configPath); err != nil {
			log.Fatalf("%v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Out = *out
		case "seed":
			cfg.Seed = seed
		case "workers":
			cfg.Workers = *workers
		case "timeout":
			cfg.Timeout = *timeout
		case "kernel":
			cfg.Kernel = *kernelName
		case "depth":
			cfg.Depth = *depth
		}
	})

	app, err := NewAppWithConfig(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	sources := make([]RecipeSource, 0, len(recipes))
	for _, path := range recipes {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("reading recipe: %v", err)
		}
		sources = append(sources, RecipeSource{Name: path, Source: string(data), Dir: filepath.Dir(path)})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var results []EvalResult
	if *preview {
		for _, src := range sources {
			r := app.Evaluate(src.Source)
			r.Recipe = src.Name
			results = append(results, r)
		}
	} else {
		if results, err = app.Fracture(ctx, sources); err != nil {
			log.Fatalf("fracture interrupted: %v", err)
		}
	}

	failed := false
	for _, r := range results {
		for _, e := range r.Errors {
			failed = true
			if e.Line > 0 {
				log.Printf("%s:%d: %s", r.Recipe, e.Line, e.Message)
			} else {
				log.Printf("%s: %s", r.Recipe, e.Message)
			}
		}
		for _, w := range r.Warnings {
			log.Printf("%s: warning: %s", r.Recipe, w.Message)
		}
		log.Printf("%s: %s, %d shapes, %d chunks, %d meshes written", r.Recipe, r.Stats.Method, r.Stats.Shapes, r.Stats.Chunks, len(r.Meshes))
	}

	if err := writeResults(cfg.Out, results); err != nil {
		log.Fatalf("writing output: %v", err)
	}
	if failed {
		os.Exit(1)
	}
}

// writeResults writes one result as an object and several as an array.
func writeResults(path string, results []EvalResult) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	var v any = results
	if len(results) == 1 {
		v = results[0]
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return nil
}
