// Package engine evaluates fracture recipes. A recipe is a small Lisp
// program run in a sandboxed zygomys environment; its builtins describe
// the shapes to fracture and the fracture to run, and evaluation produces
// a Recipe.
package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/shatter/pkg/graph"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/samber/lo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error, a runtime error in recipe code or an invalid
// shape graph.
type EvalError struct {
	Line    int          `json:"line,omitempty"`
	Col     int          `json:"col,omitempty"`
	Message string       `json:"message"`
	NodeID  graph.NodeID `json:"node_id,omitempty"`
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning produced during evaluation.
type EvalWarning struct {
	Line    int          `json:"line,omitempty"`
	Col     int          `json:"col,omitempty"`
	Message string       `json:"message"`
	NodeID  graph.NodeID `json:"node_id,omitempty"`
}

// Engine wraps the zygomys interpreter for recipe evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	// Timeout bounds a single evaluation. Zero uses EvalTimeout.
	Timeout time.Duration

	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{Timeout: EvalTimeout}
}

// Evaluate runs recipe source and returns the recipe it describes.
//
// Return semantics:
//   - On success: returns recipe + nil errors + nil error
//   - On parse/eval/validation failure: returns nil recipe + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Recipe, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		r, evalErrs, err := e.evaluate(source)
		ch <- evalResult{recipe: r, errors: evalErrs, err: err}
	}()

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = EvalTimeout
	}
	return waitWithTimeout(ch, gen, &e.mu, &e.generation, timeout)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Recipe, []EvalError, error) {
	// Empty source is a valid program that produces an empty recipe.
	if strings.TrimSpace(source) == "" {
		return NewRecipe(), nil, nil
	}

	// Sandbox mode keeps recipe code away from the filesystem and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := newBuilder()
	registerBuiltins(env, b)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}

	r := b.recipe
	if errs := validateRecipe(r); len(errs) > 0 {
		return nil, errs, nil
	}
	return r, nil, nil
}

// validateRecipe checks the shape graph and the selected descriptors.
// Graph warnings are stored on the recipe.
func validateRecipe(r *Recipe) []EvalError {
	res := graph.ValidateAll(r.Graph)
	errs := lo.Map(res.Errors, func(v graph.ValidationError, _ int) EvalError {
		return EvalError{Message: v.Message, NodeID: v.NodeID}
	})

	core := subtree(r.Graph, r.Core)
	for _, w := range res.Warnings {
		if core[w.NodeID] {
			continue
		}
		r.Warnings = append(r.Warnings, EvalWarning{Message: w.Message, NodeID: w.NodeID})
	}
	sort.Slice(r.Warnings, func(i, j int) bool { return r.Warnings[i].Message < r.Warnings[j].Message })

	if !r.Core.IsZero() && r.Graph.Get(r.Core) == nil {
		errs = append(errs, EvalError{Message: "core shape does not exist"})
	}
	if len(r.Graph.Roots) == 0 && r.Method != MethodNone {
		errs = append(errs, EvalError{Message: fmt.Sprintf("%s fracture selected but no mesh was declared", r.Method)})
	}

	check := func(err error) {
		if err != nil {
			errs = append(errs, EvalError{Message: err.Error()})
		}
	}
	check(r.Options.MeshProcessing.Validate())
	check(r.Options.Collision.Validate())
	switch r.Method {
	case MethodSlice:
		check(r.Slice.Validate())
	case MethodVoronoi:
		if len(r.Voronoi.Sites) > 0 {
			check(r.Voronoi.Validate())
		} else if r.VoronoiSites < 1 {
			errs = append(errs, EvalError{Message: fmt.Sprintf("voronoi needs at least one site, got %d", r.VoronoiSites)})
		}
	case MethodCutout:
		check(r.Cutout.Validate())
		if r.Stencil.Path == "" && len(r.Stencil.Polygons) == 0 {
			check(ErrNoStencil)
		}
	}
	return errs
}

// subtree returns the nodes reachable from id.
func subtree(g *graph.ShapeGraph, id graph.NodeID) map[graph.NodeID]bool {
	seen := make(map[graph.NodeID]bool)
	if id.IsZero() {
		return seen
	}
	stack := []graph.NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if n := g.Get(cur); n != nil {
			stack = append(stack, n.Children...)
		}
	}
	return seen
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into EvalError values,
// extracting the line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
