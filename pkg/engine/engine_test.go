package engine

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEvaluateEmptySource(t *testing.T) {
	for _, src := range []string{"", "   \n\t  \n  "} {
		r, evalErrs, err := NewEngine().Evaluate(src)
		if err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		if len(evalErrs) > 0 {
			t.Fatalf("unexpected eval errors: %v", evalErrs)
		}
		if r == nil {
			t.Fatal("expected non-nil recipe")
		}
		if r.Graph.NodeCount() != 0 || r.Method != MethodNone {
			t.Errorf("expected empty recipe, got %d nodes and method %s", r.Graph.NodeCount(), r.Method)
		}
	}
}

func TestEvaluatePlainLisp(t *testing.T) {
	source := `
(def x 10)
(def y 20)
(+ x y)
`
	r, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if r == nil || r.Graph.NodeCount() != 0 {
		t.Fatal("expected an empty recipe")
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"syntax error", "(+ 1 2"},
		{"undefined symbol", "(+ 1 undefined-symbol)"},
		{"builtin error", `(box :size "big")`},
		{"unknown shape", `(mesh (shape "missing"))`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, evalErrs, err := NewEngine().Evaluate(tt.source)
			if err != nil {
				t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
			}
			if r != nil {
				t.Fatal("expected nil recipe")
			}
			if len(evalErrs) == 0 || evalErrs[0].Message == "" {
				t.Fatalf("expected a populated eval error, got %v", evalErrs)
			}
		})
	}
}

func TestEvaluateSyntaxErrorHasLineInfo(t *testing.T) {
	_, evalErrs, err := NewEngine().Evaluate("(+ 1 2)\n(+ 3")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error")
	}
	e := evalErrs[0]
	if e.Message == "" {
		t.Error("eval error message should not be empty")
	}
	if e.Line > 0 {
		t.Logf("extracted line info: line=%d, message=%q", e.Line, e.Message)
	} else {
		t.Logf("no line info extracted, message=%q", e.Message)
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	s := e.Error()
	if !strings.Contains(s, "line 5") || !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() = %q", s)
	}
	e2 := EvalError{Message: "no location"}
	if strings.Contains(e2.Error(), "line") {
		t.Errorf("Error() with no line should not contain 'line', got: %s", e2.Error())
	}
}

func TestEvaluateValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"negative box", `(mesh (box :size (vec3 1 -1 1)))`, "must be positive"},
		{"empty union", `(mesh (union))`, "no operands"},
		{"fracture without mesh", `(fracture (slice))`, "no mesh"},
		{"voronoi without sites", `(mesh (box)) (fracture (voronoi :count 0))`, "at least one site"},
		{"cutout without stencil", `(mesh (box)) (fracture (cutout :directions (list :neg-z)))`, "no stencil"},
		{"bad slice depth", `(mesh (box)) (fracture (slice (slice-level) :depth 3))`, "slice parameters"},
		{"bad trimming", `(mesh (box)) (collision :trim 2)`, "maximum trimming"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, evalErrs, err := NewEngine().Evaluate(tt.source)
			if err != nil {
				t.Fatalf("fatal error: %v", err)
			}
			if r != nil {
				t.Fatal("expected nil recipe")
			}
			found := false
			for _, e := range evalErrs {
				if strings.Contains(e.Message, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %q", evalErrs, tt.want)
			}
		})
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	source := `
(mesh (difference (box :size (vec3 2 2 1))
                  (translate (cylinder :height 2 :radius 0.5) (vec3 1 1 0.5))))
`
	eng := NewEngine()
	first, _, err := eng.Evaluate(source)
	if err != nil || first == nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for i := 0; i < 3; i++ {
		r, evalErrs, err := eng.Evaluate(source)
		if err != nil || len(evalErrs) > 0 {
			t.Fatalf("iteration %d: %v %v", i, err, evalErrs)
		}
		if r.Graph.NodeCount() != first.Graph.NodeCount() {
			t.Fatalf("iteration %d: %d nodes, want %d", i, r.Graph.NodeCount(), first.Graph.NodeCount())
		}
		if r.Graph.Roots[0] != first.Graph.Roots[0] {
			t.Errorf("iteration %d: root ID changed", i)
		}
		for id := range first.Graph.Nodes {
			if r.Graph.Get(id) == nil {
				t.Errorf("iteration %d: node %s missing", i, id.Short())
			}
		}
	}
}

func TestEvaluateTimeout(t *testing.T) {
	var mu sync.Mutex
	var gen uint64 = 1
	ch := make(chan evalResult) // never sends

	start := time.Now()
	_, _, err := waitWithTimeout(ch, 1, &mu, &gen, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error message, got: %v", err)
	}
	if time.Since(start) > EvalTimeout {
		t.Errorf("custom timeout was not used")
	}
}

func TestEvaluateGenerationDiscardsStale(t *testing.T) {
	var mu sync.Mutex
	gen := uint64(2)

	ch := make(chan evalResult, 1)
	ch <- evalResult{}

	_, _, err := waitWithTimeout(ch, 1, &mu, &gen, EvalTimeout)
	if err == nil {
		t.Fatal("expected error for stale generation")
	}
	if !strings.Contains(err.Error(), "superseded") {
		t.Errorf("expected superseded error, got: %v", err)
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{"error on line format", "Error on line 5: unexpected token\n", 5, "unexpected token"},
		{"no line info", "some generic error", 0, "some generic error"},
		{"line format lowercase", "error on line 12: missing paren", 12, "missing paren"},
		{"short line format", "line 3: bad", 3, "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errString(tt.msg))
			if len(errs) == 0 {
				t.Fatal("expected at least one error")
			}
			e := errs[0]
			if e.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", e.Line, tt.wantLine)
			}
			if !strings.Contains(e.Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", e.Message, tt.wantMsg)
			}
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }
