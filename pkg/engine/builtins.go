package engine

import (
	"fmt"

	"github.com/chazu/shatter/pkg/graph"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/go-gl/mathgl/mgl64"
)

// builder accumulates the recipe while builtins run. Anonymous nodes are
// numbered in evaluation order, so the same source always yields the same
// node IDs.
type builder struct {
	recipe  *Recipe
	counter int
}

func newBuilder() *builder {
	return &builder{recipe: NewRecipe()}
}

func (b *builder) graph() *graph.ShapeGraph { return b.recipe.Graph }

// nodeID returns the ID for a node built by fn. Named nodes hash their
// name; others hash their position in the evaluation.
func (b *builder) nodeID(fn, name string) graph.NodeID {
	if name != "" {
		return graph.NewNodeID(fn + "/" + name)
	}
	b.counter++
	return graph.NewNodeID(fmt.Sprintf("%s/#%d", fn, b.counter))
}

func (b *builder) add(n *graph.Node) *sexpNodeRef {
	b.graph().AddNode(n)
	return &sexpNodeRef{id: n.ID, name: n.Name}
}

// nameArg takes a leading string argument as a node name.
func nameArg(pa *kwArgs) string {
	if len(pa.positional) == 0 {
		return ""
	}
	if s, ok := pa.positional[0].(*zygo.SexpStr); ok {
		pa.positional = pa.positional[1:]
		return s.S
	}
	return ""
}

func nodeRefs(fn string, args []zygo.Sexp) ([]graph.NodeID, error) {
	ids := make([]graph.NodeID, 0, len(args))
	for i, a := range args {
		ref, err := toNodeRef(a)
		if err != nil {
			return nil, fmt.Errorf("%s: operand %d: %w", fn, i+1, err)
		}
		ids = append(ids, ref.id)
	}
	return ids, nil
}

// registerBuiltins installs the recipe builtins into env. Source must be
// preprocessed with preprocessSource so keywords are recognizable.
func registerBuiltins(env *zygo.Zlisp, b *builder) {
	registerShapeBuiltins(env, b)
	registerFractureBuiltins(env, b)
}

func registerShapeBuiltins(env *zygo.Zlisp, b *builder) {
	g := b.graph()

	// (vec3 1 2 3)
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var v mgl64.Vec3
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			v[i] = f
		}
		return &sexpVec3{vec: v}, nil
	})

	// (box :size (vec3 2 1 0.25)) or (box :x 2 :y 1 :z 0.25)
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("box", args)
		pd := graph.PrimitiveData{Shape: graph.PrimBox, Dimensions: mgl64.Vec3{1, 1, 1}}
		if err := pa.vec3Arg("size", &pd.Dimensions); err != nil {
			return zygo.SexpNull, err
		}
		for i, axis := range []string{"x", "y", "z"} {
			if err := pa.floatArg(axis, &pd.Dimensions[i]); err != nil {
				return zygo.SexpNull, err
			}
		}
		return b.add(&graph.Node{ID: b.nodeID("box", ""), Kind: graph.NodePrimitive, Data: pd}), nil
	})

	// (cylinder :height 2 :radius 0.5 :segments 16)
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("cylinder", args)
		pd := graph.PrimitiveData{Shape: graph.PrimCylinder, Height: 1, Radius: 0.5}
		if err := pa.floatArg("height", &pd.Height); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.floatArg("radius", &pd.Radius); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.intArg("segments", &pd.Segments); err != nil {
			return zygo.SexpNull, err
		}
		return b.add(&graph.Node{ID: b.nodeID("cylinder", ""), Kind: graph.NodePrimitive, Data: pd}), nil
	})

	// (sphere :radius 1 :segments 24)
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("sphere", args)
		pd := graph.PrimitiveData{Shape: graph.PrimSphere, Radius: 0.5}
		if err := pa.floatArg("radius", &pd.Radius); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.intArg("segments", &pd.Segments); err != nil {
			return zygo.SexpNull, err
		}
		return b.add(&graph.Node{ID: b.nodeID("sphere", ""), Kind: graph.NodePrimitive, Data: pd}), nil
	})

	// (place shape :at (vec3 0 0 1) :rotate (vec3 0 0 90))
	transform := func(fn string, td graph.TransformData, child *sexpNodeRef) *sexpNodeRef {
		return b.add(&graph.Node{
			ID:       b.nodeID(fn, ""),
			Kind:     graph.NodeTransform,
			Children: []graph.NodeID{child.id},
			Data:     td,
		})
	}
	env.AddFunction("place", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("place", args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("place requires one shape")
		}
		child, err := toNodeRef(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("place: %w", err)
		}
		var td graph.TransformData
		for key, dst := range map[string]**mgl64.Vec3{"at": &td.Translation, "rotate": &td.Rotation} {
			if _, ok := pa.kw[key]; !ok {
				continue
			}
			var v mgl64.Vec3
			if err := pa.vec3Arg(key, &v); err != nil {
				return zygo.SexpNull, err
			}
			*dst = &v
		}
		return transform("place", td, child), nil
	})

	// (translate shape (vec3 1 0 0)) and (rotate shape (vec3 0 0 90))
	for _, fn := range []string{"translate", "rotate"} {
		fn := fn
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires a shape and a vector", fn)
			}
			child, err := toNodeRef(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			v, err := toVec3(args[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			td := graph.TransformData{Translation: &v}
			if fn == "rotate" {
				td = graph.TransformData{Rotation: &v}
			}
			return transform(fn, td, child), nil
		})
	}

	// (union a b ...), (difference a b ...), (intersection a b ...)
	for fn, op := range map[string]graph.BooleanOp{
		"union":        graph.OpUnion,
		"difference":   graph.OpDifference,
		"intersection": graph.OpIntersection,
	} {
		fn, op := fn, op
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			children, err := nodeRefs(fn, args)
			if err != nil {
				return zygo.SexpNull, err
			}
			return b.add(&graph.Node{
				ID:       b.nodeID(fn, ""),
				Kind:     graph.NodeBoolean,
				Children: children,
				Data:     graph.BooleanData{Op: op},
			}), nil
		})
	}

	// (group "name" a b ...)
	env.AddFunction("group", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("group", args)
		groupName := nameArg(&pa)
		children, err := nodeRefs("group", pa.positional)
		if err != nil {
			return zygo.SexpNull, err
		}
		gd := graph.GroupData{}
		if v, ok := pa.kw["description"]; ok {
			if gd.Description, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("group: description: %w", err)
			}
		}
		return b.add(&graph.Node{
			ID:       b.nodeID("group", groupName),
			Kind:     graph.NodeGroup,
			Name:     groupName,
			Children: children,
			Data:     gd,
		}), nil
	})

	// (defshape "name" shape) names a shape for later lookup.
	env.AddFunction("defshape", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("defshape requires a name and a shape")
		}
		shapeName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defshape: name: %w", err)
		}
		ref, err := toNodeRef(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defshape: %w", err)
		}
		if g.Lookup(shapeName) != nil {
			return zygo.SexpNull, fmt.Errorf("defshape: %q is already defined", shapeName)
		}
		n := g.Get(ref.id)
		if n.Name != "" {
			return zygo.SexpNull, fmt.Errorf("defshape: shape is already named %q", n.Name)
		}
		n.Name = shapeName
		g.NameIndex[shapeName] = n.ID
		return &sexpNodeRef{id: n.ID, name: shapeName}, nil
	})

	// (shape "name")
	env.AddFunction("shape", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("shape requires a name argument")
		}
		shapeName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("shape: name: %w", err)
		}
		n := g.Lookup(shapeName)
		if n == nil {
			return zygo.SexpNull, fmt.Errorf("shape: no shape named %q", shapeName)
		}
		return &sexpNodeRef{id: n.ID, name: shapeName}, nil
	})

	// (mesh a b ...) marks shapes as meshes to fracture.
	env.AddFunction("mesh", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 {
			return zygo.SexpNull, fmt.Errorf("mesh requires at least one shape")
		}
		ids, err := nodeRefs("mesh", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		for _, id := range ids {
			g.AddRoot(id)
		}
		return args[len(args)-1], nil
	})

	// (core shape :export true) keeps shape whole inside every mesh.
	env.AddFunction("core", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("core", args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("core requires one shape")
		}
		ref, err := toNodeRef(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("core: %w", err)
		}
		if err := pa.boolArg("export", &b.recipe.Options.ExportCore); err != nil {
			return zygo.SexpNull, err
		}
		b.recipe.Core = ref.id
		return ref, nil
	})

	// (segments 32) sets the default facet count of curved primitives.
	env.AddFunction("segments", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("segments requires one argument")
		}
		f, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("segments: %w", err)
		}
		if f < 3 {
			return zygo.SexpNull, fmt.Errorf("segments: need at least 3, got %g", f)
		}
		g.Defaults.Segments = int(f)
		return args[0], nil
	})
}
