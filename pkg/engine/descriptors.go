package engine

import (
	"fmt"

	"github.com/chazu/shatter/pkg/cutout"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/fracture"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/noise"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	noiseModes = map[string]noise.Type{
		"plane-wave": noise.PlaneWave,
		"perlin-2d":  noise.Perlin2D,
		"perlin-3d":  noise.Perlin3D,
	}
	sliceOrders = map[string]fracture.SliceOrder{
		"xyz":     fracture.SliceXYZ,
		"yzx":     fracture.SliceYZX,
		"zxy":     fracture.SliceZXY,
		"zyx":     fracture.SliceZYX,
		"yxz":     fracture.SliceYXZ,
		"xzy":     fracture.SliceXZY,
		"through": fracture.SliceThrough,
	}
	meshModes = map[string]ehm.MeshMode{
		"automatic": ehm.MeshModeAutomatic,
		"closed":    ehm.MeshModeClosed,
		"open":      ehm.MeshModeOpen,
	}
	directions = map[string]fracture.Direction{
		"neg-x": fracture.NegativeX,
		"pos-x": fracture.PositiveX,
		"neg-y": fracture.NegativeY,
		"pos-y": fracture.PositiveY,
		"neg-z": fracture.NegativeZ,
		"pos-z": fracture.PositiveZ,
	}
	instancingModes = map[string]fracture.InstancingMode{
		"none":      fracture.DoNotInstance,
		"congruent": fracture.InstanceCongruentChunks,
		"all":       fracture.InstanceAllChunks,
	}
)

func toFracture(fn string, s zygo.Sexp) (*sexpFracture, error) {
	if f, ok := s.(*sexpFracture); ok {
		return f, nil
	}
	return nil, fmt.Errorf("%s: expected slice, voronoi or cutout, got %s", fn, s.SexpString(nil))
}

func registerFractureBuiltins(env *zygo.Zlisp, b *builder) {
	r := b.recipe

	// (noise :amplitude 0.1 :frequency 0.25 :grid 10)
	env.AddFunction("noise", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("noise", args)
		p := fracture.DefaultNoiseParameters()
		if err := pa.floatArg("amplitude", &p.Amplitude); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.floatArg("frequency", &p.Frequency); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.intArg("grid", &p.GridSize); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpNoise{params: p}, nil
	})

	// (material :uv-scale [1 1] :uv-offset [0 0] :tangent (vec3 1 0 0)
	//           :u-angle 0 :submesh 1)
	env.AddFunction("material", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("material", args)
		d := ehm.DefaultFractureMaterialDesc()
		if err := pa.vec2Arg("uv-scale", &d.UVScale); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.vec2Arg("uv-offset", &d.UVOffset); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.vec3Arg("tangent", &d.Tangent); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.floatArg("u-angle", &d.UAngle); err != nil {
			return zygo.SexpNull, err
		}
		var submesh int
		if err := pa.intArg("submesh", &submesh); err != nil {
			return zygo.SexpNull, err
		}
		if submesh < 0 {
			return zygo.SexpNull, fmt.Errorf("material: negative submesh %d", submesh)
		}
		d.InteriorSubmeshIndex = uint32(submesh)
		return &sexpMaterial{desc: d}, nil
	})

	// (slice-level :splits [1 1 1] :linear [0.1 0.1 0.1] :angular [20 20 20]
	//              :order :xyz :noise n)
	// Angular variation is in degrees.
	env.AddFunction("slice_level", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("slice-level", args)
		p := fracture.DefaultSliceParameters()
		if v, ok := pa.kw["splits"]; ok {
			xs, err := toFloats(v)
			if err == nil && len(xs) != 3 {
				err = fmt.Errorf("expected 3 counts, got %d", len(xs))
			}
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("slice-level: splits: %w", err)
			}
			for i, x := range xs {
				p.SplitsPerPass[i] = int(x)
			}
		}
		linear := mgl64.Vec3(p.LinearVariation)
		if err := pa.vec3Arg("linear", &linear); err != nil {
			return zygo.SexpNull, err
		}
		p.LinearVariation = linear
		angular := mgl64.Vec3{}
		for i, a := range p.AngularVariation {
			angular[i] = mgl64.RadToDeg(a)
		}
		if err := pa.vec3Arg("angular", &angular); err != nil {
			return zygo.SexpNull, err
		}
		for i := range angular {
			p.AngularVariation[i] = mgl64.DegToRad(angular[i])
		}
		if err := choice(pa, "order", sliceOrders, &p.Order); err != nil {
			return zygo.SexpNull, err
		}
		var n fracture.NoiseParameters
		if _, ok := pa.kw["noise"]; ok {
			if err := pa.noiseArg("noise", &n); err != nil {
				return zygo.SexpNull, err
			}
			p.Noise = [3]fracture.NoiseParameters{n, n, n}
		}
		return &sexpSliceLevel{params: p}, nil
	})

	// (slice level ... :proportions [1 1 1] :min-size [0 0 0] :instance true
	//        :noise-mode :perlin-3d :material m :depth 2)
	env.AddFunction("slice_fracture", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("slice", args)
		d := fracture.DefaultFractureSliceDesc()
		for i, a := range pa.positional {
			l, ok := a.(*sexpSliceLevel)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("slice: level %d: expected slice-level, got %s", i+1, a.SexpString(nil))
			}
			d.SliceParameters = append(d.SliceParameters, l.params)
		}
		if len(d.SliceParameters) == 0 {
			d.SliceParameters = []fracture.SliceParameters{fracture.DefaultSliceParameters()}
		}
		d.MaxDepth = len(d.SliceParameters)
		if err := pa.intArg("depth", &d.MaxDepth); err != nil {
			return zygo.SexpNull, err
		}
		if _, ok := pa.kw["proportions"]; ok {
			d.UseTargetProportions = true
			v := mgl64.Vec3(d.TargetProportions)
			if err := pa.vec3Arg("proportions", &v); err != nil {
				return zygo.SexpNull, err
			}
			d.TargetProportions = v
		}
		minSize := mgl64.Vec3(d.MinimumChunkSize)
		if err := pa.vec3Arg("min-size", &minSize); err != nil {
			return zygo.SexpNull, err
		}
		d.MinimumChunkSize = minSize
		if err := pa.boolArg("instance", &d.InstanceChunks); err != nil {
			return zygo.SexpNull, err
		}
		if err := choice(pa, "noise-mode", noiseModes, &d.NoiseMode); err != nil {
			return zygo.SexpNull, err
		}
		if _, ok := pa.kw["material"]; ok {
			var m ehm.FractureMaterialDesc
			if err := pa.materialArg("material", &m); err != nil {
				return zygo.SexpNull, err
			}
			d.MaterialDesc = [3]ehm.FractureMaterialDesc{m, m, m}
		}
		return &sexpFracture{method: MethodSlice, slice: d}, nil
	})

	// (voronoi :sites (list (vec3 0 0 0) ...) | :count 8
	//          :face-noise n :instance true :noise-mode :plane-wave
	//          :min-size 0.05 :material m)
	env.AddFunction("voronoi", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("voronoi", args)
		d := fracture.DefaultFractureVoronoiDesc()
		f := &sexpFracture{method: MethodVoronoi, sites: 8}
		if v, ok := pa.kw["sites"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("voronoi: sites: %w", err)
			}
			for i, item := range items {
				p, err := toVec3(item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("voronoi: site %d: %w", i+1, err)
				}
				d.Sites = append(d.Sites, p)
			}
		}
		if err := pa.intArg("count", &f.sites); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.noiseArg("face-noise", &d.FaceNoise); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.boolArg("instance", &d.InstanceChunks); err != nil {
			return zygo.SexpNull, err
		}
		if err := choice(pa, "noise-mode", noiseModes, &d.NoiseMode); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.floatArg("min-size", &d.MinimumChunkSize); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.materialArg("material", &d.MaterialDesc); err != nil {
			return zygo.SexpNull, err
		}
		f.voronoi = d
		return f, nil
	})

	// (cutout :stencil "map.png" | :rects (list [x0 y0 x1 y1] ...)
	//         | :polygons (list [x0 y0 x1 y1 x2 y2 ...] ...)
	//         :size [w h] :periodic false :snap 0.5
	//         :directions (list :neg-z) :depth 0.5 :edge-noise n
	//         :backface-noise n :material m :tile true :tile-size [1 1]
	//         :instancing :congruent :split-nonconvex true
	//         :trim-hulls true :facet-angle 60 :chunks (slice ...))
	env.AddFunction("cutout", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("cutout", args)
		d := fracture.DefaultFractureCutoutDesc()
		f := &sexpFracture{method: MethodCutout, stencil: Stencil{Dimensions: mgl64.Vec2{1, 1}}}

		if v, ok := pa.kw["stencil"]; ok {
			path, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("cutout: stencil: %w", err)
			}
			f.stencil.Path = path
		}
		if v, ok := pa.kw["rects"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("cutout: rects: %w", err)
			}
			for i, item := range items {
				xs, err := toFloats(item)
				if err == nil && len(xs) != 4 {
					err = fmt.Errorf("expected 4 numbers, got %d", len(xs))
				}
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("cutout: rect %d: %w", i+1, err)
				}
				f.stencil.Polygons = append(f.stencil.Polygons, cutout.Rect(xs[0], xs[1], xs[2], xs[3]))
			}
		}
		if v, ok := pa.kw["polygons"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("cutout: polygons: %w", err)
			}
			for i, item := range items {
				xs, err := toFloats(item)
				if err == nil && (len(xs) < 6 || len(xs)%2 != 0) {
					err = fmt.Errorf("expected at least 3 x y pairs, got %d numbers", len(xs))
				}
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("cutout: polygon %d: %w", i+1, err)
				}
				poly := make([]mgl64.Vec2, 0, len(xs)/2)
				for j := 0; j < len(xs); j += 2 {
					poly = append(poly, mgl64.Vec2{xs[j], xs[j+1]})
				}
				f.stencil.Polygons = append(f.stencil.Polygons, poly)
			}
		}
		if f.stencil.Path != "" && len(f.stencil.Polygons) > 0 {
			return zygo.SexpNull, fmt.Errorf("cutout: use either :stencil or inline shapes, not both")
		}
		if err := pa.vec2Arg("size", &f.stencil.Dimensions); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.boolArg("periodic", &f.stencil.Periodic); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.floatArg("snap", &f.stencil.SnapThreshold); err != nil {
			return zygo.SexpNull, err
		}
		d.CutoutSizeX, d.CutoutSizeY = f.stencil.Dimensions[0], f.stencil.Dimensions[1]

		if v, ok := pa.kw["directions"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("cutout: directions: %w", err)
			}
			d.Directions = fracture.UserDefined
			order := 0
			for _, item := range items {
				s, err := toKeywordString(item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("cutout: directions: %w", err)
				}
				dir, ok := directions[s]
				if !ok {
					return zygo.SexpNull, fmt.Errorf("cutout: directions: unknown direction %q", s)
				}
				if d.Directions&dir != 0 {
					return zygo.SexpNull, fmt.Errorf("cutout: directions: %q listed twice", s)
				}
				d.Directions |= dir
				d.DirectionOrder[order] = dir
				order++
			}
			// Unused order slots keep the remaining directions.
			for i := 0; i < fracture.DirectionCount; i++ {
				dir := fracture.Direction(1 << i)
				if d.Directions&dir == 0 {
					d.DirectionOrder[order] = dir
					order++
				}
			}
		}
		if _, ok := pa.kw["user-direction"]; ok {
			d.Directions = fracture.UserDefined
			if err := pa.vec3Arg("user-direction", &d.UserDefinedDirection); err != nil {
				return zygo.SexpNull, err
			}
		}

		var params fracture.CutoutParameters
		params.SetToDefault()
		if err := pa.floatArg("depth", &params.Depth); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.noiseArg("edge-noise", &params.EdgeNoise); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.noiseArg("backface-noise", &params.BackfaceNoise); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.materialArg("material", &params.MaterialDesc); err != nil {
			return zygo.SexpNull, err
		}
		for i := range d.CutoutParameters {
			d.CutoutParameters[i] = params
		}
		d.UserDefinedCutoutParameters = params

		if err := pa.boolArg("tile", &d.TileFractureMap); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.vec2Arg("tile-size", &d.UVTileSize); err != nil {
			return zygo.SexpNull, err
		}
		if err := choice(pa, "instancing", instancingModes, &d.InstancingMode); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.boolArg("split-nonconvex", &d.SplitNonconvexRegions); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.boolArg("trim-hulls", &d.TrimFaceCollisionHulls); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.floatArg("facet-angle", &d.FacetNormalMergeThresholdAngle); err != nil {
			return zygo.SexpNull, err
		}
		if v, ok := pa.kw["chunks"]; ok {
			sub, err := toFracture("cutout: chunks", v)
			if err != nil {
				return zygo.SexpNull, err
			}
			switch sub.method {
			case MethodSlice:
				d.ChunkFracturingMethod = fracture.SliceFractureCutoutChunks
			case MethodVoronoi:
				d.ChunkFracturingMethod = fracture.VoronoiFractureCutoutChunks
			default:
				return zygo.SexpNull, fmt.Errorf("cutout: chunks: cutout chunks can be sliced or split by voronoi only")
			}
			f.sub = sub
		}
		f.cutout = d
		return f, nil
	})

	// (fracture (slice ...)) selects the fracture the recipe runs.
	env.AddFunction("fracture", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("fracture requires one fracture method")
		}
		f, err := toFracture("fracture", args[0])
		if err != nil {
			return zygo.SexpNull, err
		}
		r.Method = f.method
		switch f.method {
		case MethodSlice:
			r.Slice = f.slice
		case MethodVoronoi:
			r.Voronoi, r.VoronoiSites = f.voronoi, f.sites
		case MethodCutout:
			r.Cutout, r.Stencil = f.cutout, f.stencil
			if f.sub != nil {
				switch f.sub.method {
				case MethodSlice:
					r.Slice = f.sub.slice
				case MethodVoronoi:
					// Cutout chunks draw their own random sites; only the
					// count is used.
					r.Voronoi = f.sub.voronoi
					if len(r.Voronoi.Sites) == 0 {
						r.Voronoi.Sites = make([]mgl64.Vec3, f.sub.sites)
					}
				}
			}
		}
		return f, nil
	})

	// (processing :islands true :remove-t-junctions true :microgrid 65536
	//             :mode :closed :verbosity 1)
	env.AddFunction("processing", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("processing", args)
		p := &r.Options.MeshProcessing
		if err := pa.boolArg("islands", &p.IslandGeneration); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.boolArg("remove-t-junctions", &p.RemoveTJunctions); err != nil {
			return zygo.SexpNull, err
		}
		microgrid := int(p.MicrogridSize)
		if err := pa.intArg("microgrid", &microgrid); err != nil {
			return zygo.SexpNull, err
		}
		if microgrid < 0 {
			return zygo.SexpNull, fmt.Errorf("processing: negative microgrid %d", microgrid)
		}
		p.MicrogridSize = uint32(microgrid)
		if err := choice(pa, "mode", meshModes, &p.MeshMode); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.intArg("verbosity", &p.Verbosity); err != nil {
			return zygo.SexpNull, err
		}
		return zygo.SexpNull, nil
	})

	// (hull :method :convex-decomposition :concavity 4 :merge 4 :depth 0
	//       :max-vertices 0 :max-edges 0 :max-faces 0)
	env.AddFunction("hull", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("hull", args)
		d := hull.DefaultCollisionVolumeDesc()
		if v, ok := pa.kw["method"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("hull: method: %w", err)
			}
			m, ok := hull.ParseMethod(s)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("hull: method: unknown hull method %q", s)
			}
			d.HullMethod = m
		}
		if err := pa.floatArg("concavity", &d.ConcavityPercentError); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.floatArg("merge", &d.MergeThreshold); err != nil {
			return zygo.SexpNull, err
		}
		for key, dst := range map[string]*int{
			"depth":        &d.RecursionDepth,
			"max-vertices": &d.MaxVertexCount,
			"max-edges":    &d.MaxEdgeCount,
			"max-faces":    &d.MaxFaceCount,
		} {
			if err := pa.intArg(key, dst); err != nil {
				return zygo.SexpNull, err
			}
		}
		return &sexpHull{desc: d}, nil
	})

	// (collision (hull ...) (hull ...) :trim 0.2) sets one hull descriptor
	// per hierarchy depth.
	env.AddFunction("collision", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("collision", args)
		c := hull.DefaultCollisionDesc()
		for i, a := range pa.positional {
			h, ok := a.(*sexpHull)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("collision: depth %d: expected hull, got %s", i, a.SexpString(nil))
			}
			c.VolumeDescs = append(c.VolumeDescs, h.desc)
		}
		if err := pa.floatArg("trim", &c.MaximumTrimming); err != nil {
			return zygo.SexpNull, err
		}
		r.Options.Collision = c
		return zygo.SexpNull, nil
	})

	// (seed 42)
	env.AddFunction("seed", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("seed requires one argument")
		}
		i, ok := args[0].(*zygo.SexpInt)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("seed: expected integer, got %s", args[0].SexpString(nil))
		}
		r.Options.Seed = i.Val
		return args[0], nil
	})
}
