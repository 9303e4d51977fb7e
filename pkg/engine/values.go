package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/fracture"
	"github.com/chazu/shatter/pkg/graph"
	"github.com/chazu/shatter/pkg/hull"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/go-gl/mathgl/mgl64"
)

// ---------------------------------------------------------------------------
// Go values carried through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNodeRef refers to a shape node.
type sexpNodeRef struct {
	id   graph.NodeID
	name string
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	if n.name != "" {
		return fmt.Sprintf("(shape %q)", n.name)
	}
	return fmt.Sprintf("(shape %s)", n.id.Short())
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

type sexpVec3 struct {
	vec mgl64.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec[0], v.vec[1], v.vec[2])
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

type sexpNoise struct {
	params fracture.NoiseParameters
}

func (n *sexpNoise) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(noise :amplitude %g :frequency %g :grid %d)", n.params.Amplitude, n.params.Frequency, n.params.GridSize)
}
func (n *sexpNoise) Type() *zygo.RegisteredType { return nil }

type sexpMaterial struct {
	desc ehm.FractureMaterialDesc
}

func (m *sexpMaterial) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(material :submesh %d)", m.desc.InteriorSubmeshIndex)
}
func (m *sexpMaterial) Type() *zygo.RegisteredType { return nil }

// sexpSliceLevel is the slicing of one hierarchy depth.
type sexpSliceLevel struct {
	params fracture.SliceParameters
}

func (l *sexpSliceLevel) SexpString(ps *zygo.PrintState) string {
	s := l.params.SplitsPerPass
	return fmt.Sprintf("(slice-level :splits [%d %d %d])", s[0], s[1], s[2])
}
func (l *sexpSliceLevel) Type() *zygo.RegisteredType { return nil }

type sexpHull struct {
	desc hull.CollisionVolumeDesc
}

func (h *sexpHull) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(hull :method %q)", h.desc.HullMethod)
}
func (h *sexpHull) Type() *zygo.RegisteredType { return nil }

// sexpFracture is a fracture method with its descriptors, as built by
// slice, voronoi and cutout. Selecting it with (fracture ...) copies it
// into the recipe.
type sexpFracture struct {
	method  Method
	slice   fracture.FractureSliceDesc
	voronoi fracture.FractureVoronoiDesc
	sites   int
	cutout  fracture.FractureCutoutDesc
	stencil Stencil
	// sub is the fracture applied to cutout chunks.
	sub *sexpFracture
}

func (f *sexpFracture) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s ...)", f.method)
}
func (f *sexpFracture) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW reports whether s is a preprocessed keyword and returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds a mixed positional and keyword argument list.
type kwArgs struct {
	fn         string
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments. A
// keyword at the end of the list is a flag with a null value.
func parseArgs(fn string, args []zygo.Sexp) kwArgs {
	result := kwArgs{fn: fn, kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// floatArg sets *dst from keyword key when present.
func (a kwArgs) floatArg(key string, dst *float64) error {
	v, ok := a.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", a.fn, key, err)
	}
	*dst = f
	return nil
}

func (a kwArgs) intArg(key string, dst *int) error {
	v, ok := a.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", a.fn, key, err)
	}
	if f != float64(int(f)) {
		return fmt.Errorf("%s: %s: expected integer, got %g", a.fn, key, f)
	}
	*dst = int(f)
	return nil
}

// boolArg sets *dst from keyword key. A bare keyword at the end of the
// argument list means true.
func (a kwArgs) boolArg(key string, dst *bool) error {
	v, ok := a.kw[key]
	if !ok {
		return nil
	}
	if v == zygo.SexpNull {
		*dst = true
		return nil
	}
	b, ok := v.(*zygo.SexpBool)
	if !ok {
		return fmt.Errorf("%s: %s: expected boolean, got %s", a.fn, key, v.SexpString(nil))
	}
	*dst = b.Val
	return nil
}

func (a kwArgs) vec3Arg(key string, dst *mgl64.Vec3) error {
	v, ok := a.kw[key]
	if !ok {
		return nil
	}
	vec, err := toVec3(v)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", a.fn, key, err)
	}
	*dst = vec
	return nil
}

func (a kwArgs) vec2Arg(key string, dst *mgl64.Vec2) error {
	v, ok := a.kw[key]
	if !ok {
		return nil
	}
	xs, err := toFloats(v)
	if err == nil && len(xs) != 2 {
		err = fmt.Errorf("expected 2 numbers, got %d", len(xs))
	}
	if err != nil {
		return fmt.Errorf("%s: %s: %w", a.fn, key, err)
	}
	*dst = mgl64.Vec2{xs[0], xs[1]}
	return nil
}

func (a kwArgs) noiseArg(key string, dst *fracture.NoiseParameters) error {
	v, ok := a.kw[key]
	if !ok {
		return nil
	}
	n, ok := v.(*sexpNoise)
	if !ok {
		return fmt.Errorf("%s: %s: expected noise, got %s", a.fn, key, v.SexpString(nil))
	}
	*dst = n.params
	return nil
}

func (a kwArgs) materialArg(key string, dst *ehm.FractureMaterialDesc) error {
	v, ok := a.kw[key]
	if !ok {
		return nil
	}
	m, ok := v.(*sexpMaterial)
	if !ok {
		return fmt.Errorf("%s: %s: expected material, got %s", a.fn, key, v.SexpString(nil))
	}
	*dst = m.desc
	return nil
}

// choice maps keyword key through names.
func choice[T any](a kwArgs, key string, names map[string]T, dst *T) error {
	v, ok := a.kw[key]
	if !ok {
		return nil
	}
	s, err := toKeywordString(v)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", a.fn, key, err)
	}
	t, ok := names[s]
	if !ok {
		return fmt.Errorf("%s: %s: unknown value %q", a.fn, key, s)
	}
	*dst = t
	return nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString accepts a preprocessed keyword (__kw_z) or a plain
// string ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

func toNodeRef(s zygo.Sexp) (*sexpNodeRef, error) {
	if ref, ok := s.(*sexpNodeRef); ok {
		return ref, nil
	}
	return nil, fmt.Errorf("expected shape, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 accepts a vec3 value or a list of three numbers.
func toVec3(s zygo.Sexp) (mgl64.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	xs, err := toFloats(s)
	if err != nil {
		return mgl64.Vec3{}, fmt.Errorf("expected vec3: %w", err)
	}
	if len(xs) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("expected vec3, got %d numbers", len(xs))
	}
	return mgl64.Vec3{xs[0], xs[1], xs[2]}, nil
}

// toFloats converts a list or array of numbers.
func toFloats(s zygo.Sexp) ([]float64, error) {
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		if out[i], err = toFloat64(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}
