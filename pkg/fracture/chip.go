package fracture

import (
	"context"
	"fmt"
	"math"
	"math/bits"

	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/cutout"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/interp"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/chazu/shatter/pkg/noise"
	"github.com/chazu/shatter/pkg/progress"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// meshInstanceTolerance is the relative size, per axis, below which
	// two cutout chunks count as congruent.
	meshInstanceTolerance = 0.025

	// cutoutTileTolerance keeps stencil tiles that barely touch the mesh
	// bounds out of the tiling.
	cutoutTileTolerance = 1e-4

	// cutoutFramePadding grows a non-tiled stencil past the face so its
	// outer cutouts reach the mesh boundary.
	cutoutFramePadding = 1e-4
)

// sliceAxes lists, per face axis, the stencil x axis, the stencil y axis
// and the face axis.
var sliceAxes = [3][3]int{{1, 2, 0}, {0, 2, 1}, {0, 1, 2}}

// cutoutFace places the stencil on one face of a mesh.
type cutoutFace struct {
	fractureIndex int32
	params        CutoutParameters

	// tm maps stencil pixel coordinates to space.
	tm     mgl64.Mat4
	normal mgl64.Vec3
	xDir   mgl64.Vec3
	yDir   mgl64.Vec3
	// toLocal maps space to coordinates along xDir, yDir and normal.
	toLocal mgl64.Mat3

	// mapLow and mapSize give the stencil rectangle in local coordinates.
	mapLow  mgl64.Vec2
	mapSize mgl64.Vec2
	// lowX and highX bound the mesh in local x, lowY and highY in local y.
	lowX, highX float64
	lowY, highY float64
	// minDot and maxDot bound the mesh along normal.
	minDot, maxDot float64
}

func (f *cutoutFace) facePlane() csgmath.Plane {
	return csgmath.NewPlane(f.normal, -f.maxDot)
}

// chipper holds the state of one chipping run.
type chipper struct {
	c           *Context
	m           *ehm.Mesh
	desc        *FractureCutoutDesc
	set         *cutout.Set
	sliceDesc   *FractureSliceDesc
	voronoiDesc *FractureVoronoiDesc
	coll        hull.CollisionDesc
	seed        int64

	rootBounds csgmath.Bounds
	sizeScale  float64

	core      *bsp.BSP
	coreChunk int
	corePart  int
	coreTrim  []csgmath.Plane

	// faceTrim clips the hulls of chunks cut from the current face.
	faceTrim  []csgmath.Plane
	edgeNoise *faceNoise
	sideFrame int
}

// CreateChippedMesh chips the faces of the first root chunk of m with the
// cutouts of set. Each face selected by desc loses a layer, Depth thick,
// that breaks into one chunk per cutout; what remains is the core chunk.
// A face cut all the way through consumes the rest of the mesh. Cutout
// chunks are optionally split further with sliceDesc or voronoiDesc and
// congruent ones share parts. On failure or cancellation m is restored.
func CreateChippedMesh(ctx context.Context, c *Context, m *ehm.Mesh, desc FractureCutoutDesc, set *cutout.Set, sliceDesc FractureSliceDesc, voronoiDesc FractureVoronoiDesc, opts SplitOptions, listener progress.Listener) error {
	const op = "chip mesh"
	if len(m.Parts) == 0 {
		return c.fail(op, ErrNoMesh)
	}
	if set == nil || len(set.Cutouts) == 0 || set.Dimensions[0] <= 0 || set.Dimensions[1] <= 0 {
		return c.fail(op, fmt.Errorf("%w: empty cutout set", ErrInvalidDescriptor))
	}
	if err := desc.Validate(); err != nil {
		return c.fail(op, err)
	}
	if err := opts.MeshProcessing.Validate(); err != nil {
		return c.fail(op, err)
	}
	if err := opts.Collision.Validate(); err != nil {
		return c.fail(op, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err))
	}
	switch desc.ChunkFracturingMethod {
	case SliceFractureCutoutChunks:
		if err := sliceDesc.Validate(); err != nil {
			return c.fail(op, err)
		}
	case VoronoiFractureCutoutChunks:
		if err := voronoiDesc.Validate(); err != nil {
			return c.fail(op, err)
		}
	}
	c.SetMeshProcessingParameters(opts.MeshProcessing)

	snapshot, err := m.Snapshot()
	if err != nil {
		return c.fail(op, err)
	}
	ch := &chipper{
		c:           c,
		m:           m,
		desc:        &desc,
		set:         set,
		sliceDesc:   &sliceDesc,
		voronoiDesc: &voronoiDesc,
		coll:        opts.Collision,
		seed:        opts.Seed,
		coreChunk:   -1,
		corePart:    -1,
	}
	if err := ch.run(ctx, listener); err != nil {
		return c.rollback(ctx, m, snapshot, op, err)
	}
	if err := ctx.Err(); err != nil {
		return c.rollback(ctx, m, snapshot, op, err)
	}
	c.messagef(SeverityInfo, "chipped mesh into %d chunks using %d parts", len(m.Chunks), len(m.Parts))
	return nil
}

func (ch *chipper) run(ctx context.Context, listener progress.Listener) error {
	m, c := ch.m, ch.c
	m.BuildCollisionGeometryForPart(0, ch.coll.ForDepth(0))
	c.Reseed(ch.seed)
	if m.Parts[0].MeshBSP.Type() != bsp.Nontrivial {
		if err := m.CalculatePartBSP(ctx, 0, c.bspSettings(ch.seed), nil); err != nil {
			return err
		}
		c.Reseed(ch.seed)
	}
	m.Clear(true)

	ch.rootBounds = m.Parts[0].Bounds
	if ch.rootBounds.IsEmpty() {
		return nil
	}
	dims := ch.rootBounds.Dimensions()
	ch.sizeScale = max(dims[0], dims[1], dims[2])
	ch.ensureMaterials()

	faces := ch.faces()
	if len(faces) == 0 {
		return nil
	}

	ch.corePart = m.AddPart()
	ch.coreChunk = m.AddChunk()
	m.Chunks[ch.coreChunk].ParentIndex = 0
	m.Chunks[ch.coreChunk].PartIndex = int32(ch.corePart)
	ch.core = m.Parts[0].MeshBSP.Clone()

	h := progress.NewHierarchical(len(faces), listener)
	for i := range faces {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.SetSubtaskWork(1, "cutout face")
		through, err := ch.chipFace(ctx, &faces[i], h)
		if err != nil {
			return err
		}
		h.CompleteSubtask()
		if through {
			break
		}
	}
	if err := ch.finishCore(); err != nil {
		return err
	}

	if ch.desc.InstancingMode == InstanceAllChunks {
		for _, chunk := range m.Chunks {
			if !chunk.IsRoot() {
				chunk.Flags |= ehm.ChunkIsInstanced
			}
		}
	}
	if c.RemoveTJunctions {
		removeTJunctions(m)
	}
	m.SortChunks()
	m.CreatePartSurfaceNormals()
	return nil
}

// ensureMaterials adds the interior submeshes the run will reference.
func (ch *chipper) ensureMaterials() {
	d := ch.desc
	if d.Directions == UserDefined {
		ensureSubmeshes(ch.m, int(d.UserDefinedCutoutParameters.MaterialDesc.InteriorSubmeshIndex)+1)
	}
	for i := 0; i < DirectionCount; i++ {
		if d.Directions&(1<<i) != 0 {
			ensureSubmeshes(ch.m, int(d.CutoutParameters[i].MaterialDesc.InteriorSubmeshIndex)+1)
		}
	}
	switch d.ChunkFracturingMethod {
	case SliceFractureCutoutChunks:
		for _, md := range ch.sliceDesc.MaterialDesc {
			ensureSubmeshes(ch.m, int(md.InteriorSubmeshIndex)+1)
		}
	case VoronoiFractureCutoutChunks:
		ensureSubmeshes(ch.m, int(ch.voronoiDesc.MaterialDesc.InteriorSubmeshIndex)+1)
	}
}

// faces returns the stencil placements in application order.
func (ch *chipper) faces() []cutoutFace {
	d := ch.desc
	if d.Directions == UserDefined {
		f, ok := ch.userFace()
		if !ok {
			return nil
		}
		return []cutoutFace{f}
	}
	var out []cutoutFace
	for _, dir := range d.DirectionOrder {
		if d.Directions&dir == 0 {
			continue
		}
		out = append(out, ch.axisFace(bits.TrailingZeros32(uint32(dir))))
	}
	return out
}

// axisFace places the stencil on the face of the root bounds chipped by
// direction index i.
func (ch *chipper) axisFace(i int) cutoutFace {
	d := ch.desc
	axis, sign := directionAxisAndSign(i)
	axes := sliceAxes[axis]
	center := ch.rootBounds.Center()
	ext := ch.rootBounds.Extents()

	sliceSign := 1.0
	if sign != 0 {
		sliceSign = -1
	}
	// Keeps the stencil x axis running along +x or +y for unmirrored
	// stencils on the positive faces.
	applySign := 1.0
	if axis == 1 {
		applySign = -1
	}
	n := csgmath.Axis(axis).Mul(sliceSign)
	p := csgmath.Axis(axes[1])

	pad := cutoutFramePadding
	if d.TileFractureMap {
		pad = 0
	}
	w := 2 * ext[axes[0]] * (1 + pad) * d.CutoutWidthScale[i]
	if d.CutoutWidthInvert[i] {
		w = -w
	}
	h := 2 * ext[axes[1]] * (1 + pad) * d.CutoutHeightScale[i]
	if d.CutoutHeightInvert[i] {
		h = -h
	}
	col0 := p.Cross(n).Mul(w / d.CutoutSizeX)
	col1 := p.Mul(h / d.CutoutSizeY)

	s := applySign * sliceSign
	var pos mgl64.Vec3
	pos[axes[0]] = center[axes[0]] - s*(0.5*w+d.CutoutWidthOffset[i]*ext[axes[0]])
	pos[axes[1]] = center[axes[1]] - 0.5*h + d.CutoutHeightOffset[i]*ext[axes[1]]
	pos[axes[2]] = center[axes[2]] + sliceSign*ext[axes[2]]

	f := cutoutFace{
		fractureIndex: int32(i),
		params:        d.CutoutParameters[i],
		tm:            mgl64.Mat4FromCols(col0.Vec4(0), col1.Vec4(0), n.Vec4(0), pos.Vec4(1)),
		normal:        n,
		xDir:          csgmath.Axis(axes[0]),
		yDir:          csgmath.Axis(axes[1]),
	}
	ch.measureFace(&f)
	return f
}

// userFace places the stencil with the user UV mapping, cutting along
// the user direction.
func (ch *chipper) userFace() (cutoutFace, bool) {
	d := ch.desc
	n := d.UserDefinedDirection
	if csgmath.NormalizeLen(&n) == 0 {
		ch.c.warnf("user defined cutout direction is zero, nothing to chip")
		return cutoutFace{}, false
	}
	col0 := d.UserUVMapping.Col(0).Mul(1 / d.CutoutSizeX)
	col1 := d.UserUVMapping.Col(1).Mul(1 / d.CutoutSizeY)
	origin := d.UserUVMapping.Col(2)
	xDir, yDir := csgmath.Normalized(col0), csgmath.Normalized(col1)
	if math.Abs(mgl64.Mat3FromCols(xDir, yDir, n).Det()) < csgmath.EpsReal {
		ch.c.warnf("user cutout mapping is degenerate, nothing to chip")
		return cutoutFace{}, false
	}
	f := cutoutFace{
		fractureIndex: DirectionCount,
		params:        d.UserDefinedCutoutParameters,
		tm:            mgl64.Mat4FromCols(col0.Vec4(0), col1.Vec4(0), n.Vec4(0), origin.Vec4(1)),
		normal:        n,
		xDir:          xDir,
		yDir:          yDir,
	}
	ch.measureFace(&f)
	return f, true
}

// measureFace fills in the local frame, the stencil rectangle and the
// mesh extent of f.
func (ch *chipper) measureFace(f *cutoutFace) {
	f.toLocal = mgl64.Mat3FromCols(f.xDir, f.yDir, f.normal).Inv()

	pos := f.toLocal.Mul3x1(f.tm.Col(3).Vec3())
	dims := ch.set.Dimensions
	for k := 0; k < 2; k++ {
		span := f.toLocal.Mul3x1(f.tm.Col(k).Vec3())[k] * dims[k]
		f.mapSize[k] = math.Abs(span)
		f.mapLow[k] = pos[k] + math.Min(0, span)
	}

	f.lowX, f.lowY = math.Inf(1), math.Inf(1)
	f.highX, f.highY = math.Inf(-1), math.Inf(-1)
	f.minDot, f.maxDot = math.Inf(1), math.Inf(-1)
	for _, p := range mesh.Positions(ch.m.Parts[0].Mesh) {
		l := f.toLocal.Mul3x1(p)
		f.lowX, f.highX = math.Min(f.lowX, l[0]), math.Max(f.highX, l[0])
		f.lowY, f.highY = math.Min(f.lowY, l[1]), math.Max(f.highY, l[1])
		dot := f.normal.Dot(p)
		f.minDot, f.maxDot = math.Min(f.minDot, dot), math.Max(f.maxDot, dot)
	}
}

// chipFace cuts the layer under one face off the core and breaks it into
// cutout chunks. It reports whether the face was cut all the way through.
func (ch *chipper) chipFace(ctx context.Context, f *cutoutFace, listener progress.Listener) (bool, error) {
	m, c := ch.m, ch.c
	if ch.core == nil {
		return true, nil
	}
	thickness := f.maxDot - f.minDot
	coreDepth := m.Depth(ch.coreChunk)
	it := ch.core.InternalTransform()
	ch.faceTrim, ch.edgeNoise = nil, nil

	var faceChunk int
	var faceBSP *bsp.BSP
	through := f.params.Depth <= 0 || f.params.Depth >= 1
	if through {
		faceBSP = ch.core
		m.RemoveChunk(ch.coreChunk)
		m.RemovePart(ch.corePart)
		ch.core, ch.coreChunk, ch.corePart = nil, -1, -1
		faceChunk = 0
	} else {
		slicePlane := f.facePlane()
		slicePlane[3] += f.params.Depth * thickness
		fi := addFrame(m, f.params.MaterialDesc, slicePlane, ehm.MethodCutout, f.fractureIndex, coreDepth)
		gp := gridParameters{
			level0:    m.Parts[0].Mesh,
			sizeScale: ch.sizeScale,
			noise:     f.params.BackfaceNoise,
			noiseType: noise.PlaneWave,
			interior:  f.params.MaterialDesc.InteriorSubmeshIndex,
		}
		if ch.desc.TileFractureMap && ch.desc.InstancingMode != DoNotInstance {
			gp.xPeriod, gp.yPeriod = f.mapSize[0], f.mapSize[1]
		}
		var im IntersectMesh
		c.buildIntersectMesh(&im, slicePlane, m, fi, gp)
		below := c.newBSP(it)
		tol := c.Tolerances
		tol.Linear = 1e-9
		tol.Angular = 1e-5
		below.SetTolerances(tol)
		if err := below.FromMesh(ctx, im.Triangles, c.cuttingParams(it), nil); err != nil {
			return false, err
		}

		layer := ch.core.Clone()
		if err := layer.Combine(below); err != nil {
			return false, err
		}
		if err := layer.Op(layer, bsp.OpAMinusB); err != nil {
			return false, err
		}
		if err := ch.core.Combine(below); err != nil {
			return false, err
		}
		if err := ch.core.Op(ch.core, bsp.OpIntersection); err != nil {
			return false, err
		}

		volumeDesc := ch.coll.ForDepth(coreDepth)
		trim := ch.desc.TrimFaceCollisionHulls &&
			(f.params.BackfaceNoise.Amplitude != 0 || volumeDesc.HullMethod != hull.WrapGraphicsMesh)
		if trim {
			ch.coreTrim = append(ch.coreTrim, slicePlane)
			ch.faceTrim = []csgmath.Plane{slicePlane.Neg()}
		}
		chunks, err := ch.addPieces(layer.Clone(), 0, volumeDesc, ch.faceTrim, false)
		if err != nil {
			return false, err
		}
		if len(chunks) == 0 {
			return false, nil
		}
		faceChunk, faceBSP = chunks[0], layer
	}
	return through, ch.cutFace(ctx, f, faceChunk, faceBSP, listener)
}

// cutFace carves the tiled stencil out of faceBSP, adding the pieces as
// children of faceChunk.
func (ch *chipper) cutFace(ctx context.Context, f *cutoutFace, faceChunk int, faceBSP *bsp.BSP, listener progress.Listener) error {
	m, d := ch.m, ch.desc
	ixStart, ixStop, iyStart, iyStop := 0, 1, 0, 1
	if d.TileFractureMap {
		tile := func(low, high float64, k int) (int, int) {
			start := int(math.Floor((low-f.mapLow[k])/f.mapSize[k] + cutoutTileTolerance))
			stop := int(math.Ceil((high-f.mapLow[k])/f.mapSize[k] - cutoutTileTolerance))
			if ch.set.Periodic {
				start--
				stop++
			}
			return start, max(stop, start+1)
		}
		ixStart, ixStop = tile(f.lowX, f.highX, 0)
		iyStart, iyStop = tile(f.lowY, f.highY, 1)
	}

	depth := m.Depth(faceChunk) + 1
	volumeDesc := ch.coll.ForDepth(depth)
	ch.sideFrame = len(m.MaterialFrames)
	if f.params.EdgeNoise.Amplitude > 0 {
		ch.edgeNoise = ch.c.newFaceNoise(f.params.EdgeNoise, f.maxDot-f.minDot)
	}
	uvFrame, hasUV := faceUVFrame(m.Parts[m.Chunks[faceChunk].PartIndex].Mesh, f.normal)
	instancing := d.InstancingMode != DoNotInstance

	tiles := (ixStop - ixStart) * (iyStop - iyStart)
	h := progress.NewHierarchical(len(ch.set.Cutouts)*tiles+1, listener)
	remaining := faceBSP
	var created []int
	for ci := range ch.set.Cutouts {
		cut := &ch.set.Cutouts[ci]
		for iy := iyStart; iy < iyStop; iy++ {
			for ix := ixStart; ix < ixStop; ix++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				h.SetSubtaskWork(1, "cutout")
				offset := f.xDir.Mul(float64(ix) * f.mapSize[0]).Add(f.yDir.Mul(float64(iy) * f.mapSize[1]))
				chunks, err := ch.carve(ctx, f, cut, offset, faceChunk, &remaining, volumeDesc, depth)
				if err != nil {
					return err
				}
				if instancing {
					for _, k := range chunks {
						m.Chunks[k].InstancedPositionOffset = offset
						if hasUV {
							m.Chunks[k].InstancedUVOffset = uvOffset(&uvFrame, offset)
						}
					}
				}
				created = append(created, chunks...)
				h.CompleteSubtask()
			}
		}
	}

	// Whatever no cutout covered stays one more piece.
	rest, err := ch.addPieces(remaining, faceChunk, volumeDesc, ch.faceTrim, ch.c.IslandGeneration)
	if err != nil {
		return err
	}
	created = append(created, rest...)
	h.SetSubtaskWork(1, "instancing")
	err = ch.instance(ctx, created)
	h.CompleteSubtask()
	return err
}

// carve cuts one tile of one cutout out of *remaining and adds the
// resulting chunks. *remaining loses the carved solid.
func (ch *chipper) carve(ctx context.Context, f *cutoutFace, cut *cutout.Cutout, offset mgl64.Vec3, faceChunk int, remaining **bsp.BSP, volumeDesc hull.CollisionVolumeDesc, depth int) ([]int, error) {
	c, d := ch.c, ch.desc
	if (*remaining).Type() == bsp.EmptySet {
		return nil, nil
	}
	tm := f.tm
	tm.SetCol(3, tm.Col(3).Add(offset.Vec4(0)))
	it := (*remaining).InternalTransform()

	type solid struct {
		b      *bsp.BSP
		planes []csgmath.Plane
	}
	var solids []solid
	for li := range cut.ConvexLoops {
		tris, planes := ch.loopSides(f, cut, li, tm, depth)
		if len(tris) == 0 {
			continue
		}
		b := c.newBSP(it)
		if err := b.FromMesh(ctx, tris, c.cuttingParams(it), nil); err != nil {
			return nil, err
		}
		solids = append(solids, solid{b, planes})
	}
	if !d.SplitNonconvexRegions && len(solids) > 1 {
		u := solids[0].b
		for _, s := range solids[1:] {
			if err := u.Combine(s.b); err != nil {
				return nil, err
			}
			if err := u.Op(u, bsp.OpUnion); err != nil {
				return nil, err
			}
		}
		solids = []solid{{b: u}}
	}

	var out []int
	for _, s := range solids {
		next := (*remaining).Clone()
		if err := next.Combine(s.b); err != nil {
			return nil, err
		}
		if err := next.Op(next, bsp.OpAMinusB); err != nil {
			return nil, err
		}
		if err := s.b.Combine(*remaining); err != nil {
			return nil, err
		}
		if err := s.b.Op(s.b, bsp.OpIntersection); err != nil {
			return nil, err
		}
		*remaining = next

		trim := append(append([]csgmath.Plane(nil), ch.faceTrim...), s.planes...)
		chunks, err := ch.addPieces(s.b, faceChunk, volumeDesc, trim, ch.c.IslandGeneration)
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// loopSides builds the side walls of a convex loop extruded through the
// mesh along the face normal. It also returns the outward planes of the
// walls on the cutout's boundary.
func (ch *chipper) loopSides(f *cutoutFace, cut *cutout.Cutout, li int, tm mgl64.Mat4, depth int) ([]mesh.RenderTriangle, []csgmath.Plane) {
	loop := cut.ConvexLoops[li].PolyVerts
	n := len(loop)
	if n < 3 {
		return nil, nil
	}
	pad := 0.01*(f.maxDot-f.minDot) + csgmath.EpsReal
	minPlane := csgmath.NewPlane(f.normal, -(f.minDot - pad))
	maxPlane := csgmath.NewPlane(f.normal, -(f.maxDot + pad))
	ccw := csgmath.Det3(tm) > 0
	cosT := math.Cos(mgl64.DegToRad(ch.desc.FacetNormalMergeThresholdAngle))

	quads := make([][4]mgl64.Vec3, n)
	normals := make([]mgl64.Vec3, n)
	for i := range loop {
		p0 := csgmath.TransformPos(tm, cut.Vertices[loop[i].Index])
		p1 := csgmath.TransformPos(tm, cut.Vertices[loop[(i+1)%n].Index])
		q := [4]mgl64.Vec3{minPlane.Project(p0), minPlane.Project(p1), maxPlane.Project(p1), maxPlane.Project(p0)}
		if !ccw {
			q = [4]mgl64.Vec3{q[1], q[0], q[3], q[2]}
		}
		quads[i] = q
		normals[i] = csgmath.Normalized(q[2].Sub(q[0]).Cross(q[3].Sub(q[1])))
	}

	var tris []mesh.RenderTriangle
	var planes []csgmath.Plane
	for i, q := range quads {
		nrm := normals[i]
		if nrm == (mgl64.Vec3{}) {
			continue
		}
		// Each wall shares its first corner with the previous wall and its
		// second with the next, in quad order.
		prev, next := normals[(i+n-1)%n], normals[(i+1)%n]
		if !ccw {
			prev, next = next, prev
		}
		n0, n1 := nrm, nrm
		if prev.Dot(nrm) >= cosT {
			n0 = csgmath.Normalized(prev.Add(nrm))
		}
		if next.Dot(nrm) >= cosT {
			n1 = csgmath.Normalized(next.Add(nrm))
		}

		centroid := q[0].Add(q[1]).Add(q[2]).Add(q[3]).Mul(0.25)
		plane := csgmath.PlaneThrough(nrm, centroid)
		if loop[i].Flags&cutout.SplitEdge == 0 {
			planes = append(planes, plane)
		}
		fi := addFrame(ch.m, f.params.MaterialDesc, plane, ehm.MethodCutout, f.fractureIndex, depth)
		frame := flatInterpolator(ch.m.MaterialFrames[fi])
		tangent := csgmath.Normalized(q[1].Sub(q[0]))

		var v [4]mesh.Vertex
		for k := range v {
			v[k].Position = q[k]
			frame.Interpolate(&v[k])
			v[k].Normal = n0
			if k == 1 || k == 2 {
				v[k].Normal = n1
			}
			v[k].Tangent = tangent
			v[k].Binormal = v[k].Normal.Cross(tangent)
			v[k].Color = mgl64.Vec4{1, 1, 1, 1}
		}
		for _, idx := range [2][3]int{{0, 1, 2}, {0, 2, 3}} {
			tris = append(tris, mesh.RenderTriangle{
				Vertices:       [3]mesh.Vertex{v[idx[0]], v[idx[1]], v[idx[2]]},
				SubmeshIndex:   int32(f.params.MaterialDesc.InteriorSubmeshIndex),
				ExtraDataIndex: uint32(fi),
			})
		}
	}
	return tris, planes
}

// addPieces adds b, or with splitIslands each island of b, as children
// of parent. Pieces with no geometry or hulls are dropped.
func (ch *chipper) addPieces(b *bsp.BSP, parent int, volumeDesc hull.CollisionVolumeDesc, trim []csgmath.Plane, splitIslands bool) ([]int, error) {
	m := ch.m
	if b.Type() == bsp.EmptySet {
		return nil, nil
	}
	islands := []*bsp.BSP{b}
	if splitIslands {
		islands = b.DecomposeIntoIslands()
	}
	var out []int
	for _, island := range islands {
		tris, err := island.ToMesh()
		if err != nil {
			return nil, err
		}
		if len(tris) == 0 {
			continue
		}
		partIndex := m.AddPart()
		part := m.Parts[partIndex]
		part.Mesh = tris
		part.MeshBSP = island
		m.BuildMeshBounds(partIndex)
		m.BuildCollisionGeometryForPart(partIndex, volumeDesc)
		if len(part.Collision) == 0 || part.Bounds.IsEmpty() {
			m.RemovePart(partIndex)
			continue
		}
		trimHulls(part.Collision, trim...)
		if ch.edgeNoise != nil {
			start := ch.sideFrame
			ch.edgeNoise.apply(part, func(frame uint32) bool {
				return int(frame) >= start && int(frame) < len(m.MaterialFrames) &&
					m.MaterialFrames[frame].FractureMethod == ehm.MethodCutout
			})
			m.BuildMeshBounds(partIndex)
		}
		chunkIndex := m.AddChunk()
		m.Chunks[chunkIndex].ParentIndex = int32(parent)
		m.Chunks[chunkIndex].PartIndex = int32(partIndex)
		out = append(out, chunkIndex)
	}
	return out, nil
}

// instance splits each created chunk further and, when instancing, makes
// every later chunk congruent to it share its part.
func (ch *chipper) instance(ctx context.Context, created []int) error {
	m := ch.m
	if ch.desc.InstancingMode == DoNotInstance {
		for _, k := range created {
			if err := ch.fractureChunk(ctx, k); err != nil {
				return err
			}
		}
		return nil
	}

	unhandled := created
	for len(unhandled) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		k := unhandled[0]
		unhandled = unhandled[1:]
		chunk := m.Chunks[k]
		base, baseUV := chunk.InstancedPositionOffset, chunk.InstancedUVOffset
		chunk.InstancedPositionOffset, chunk.InstancedUVOffset = mgl64.Vec3{}, mgl64.Vec2{}
		if err := ch.fractureChunk(ctx, k); err != nil {
			return err
		}

		part := m.Parts[chunk.PartIndex]
		dims := part.Bounds.Dimensions()
		volumeTol := math.Max(part.Bounds.Volume()*meshInstanceTolerance*meshInstanceTolerance*meshInstanceTolerance, 1e-15)
		var rest []int
		for _, j := range unhandled {
			test := m.Chunks[j]
			testPart := m.Parts[test.PartIndex]
			if !sameDimensions(dims, testPart.Bounds.Dimensions()) {
				rest = append(rest, j)
				continue
			}
			same, err := congruent(part.MeshBSP, testPart.MeshBSP, base.Sub(test.InstancedPositionOffset), volumeTol)
			if err != nil {
				return err
			}
			if !same {
				rest = append(rest, j)
				continue
			}
			m.RemovePart(int(test.PartIndex))
			test.PartIndex = chunk.PartIndex
			test.InstancedPositionOffset = test.InstancedPositionOffset.Sub(base)
			test.InstancedUVOffset = test.InstancedUVOffset.Sub(baseUV)
			test.Flags |= ehm.ChunkIsInstanced
			chunk.Flags |= ehm.ChunkIsInstanced
			ch.instanceChildren(k, j)
		}
		unhandled = rest
	}
	return nil
}

func sameDimensions(a, b mgl64.Vec3) bool {
	scale := max(a[0], a[1], a[2], b[0], b[1], b[2])
	for i := 0; i < 3; i++ {
		if math.Abs(a[i]-b[i]) > meshInstanceTolerance*scale {
			return false
		}
	}
	return true
}

// congruent reports whether b moved by shift and a differ by less than
// tol in volume.
func congruent(a, b *bsp.BSP, shift mgl64.Vec3, tol float64) (bool, error) {
	moved := bsp.New()
	moved.CopyTransformed(b, mgl64.Translate3D(shift[0], shift[1], shift[2]), a.InternalTransform())
	if err := moved.Combine(a); err != nil {
		return false, err
	}
	_, volume, bounded, err := moved.SurfaceAreaAndVolume(true, bsp.OpExclusiveOr)
	if err != nil {
		return false, err
	}
	return bounded && volume < tol, nil
}

// instanceChildren copies the subtree below src under dst, sharing parts
// and placing the copies at dst's offsets.
func (ch *chipper) instanceChildren(src, dst int) {
	m := ch.m
	for _, child := range m.Children(src) {
		k := m.AddChunk()
		c, d := m.Chunks[k], m.Chunks[dst]
		c.ParentIndex = int32(dst)
		c.PartIndex = m.Chunks[child].PartIndex
		c.InstancedPositionOffset = d.InstancedPositionOffset.Add(m.Chunks[child].InstancedPositionOffset)
		c.InstancedUVOffset = d.InstancedUVOffset.Add(m.Chunks[child].InstancedUVOffset)
		c.Flags |= ehm.ChunkIsInstanced
		m.Chunks[child].Flags |= ehm.ChunkIsInstanced
		ch.instanceChildren(child, k)
	}
}

// fractureChunk splits a cutout chunk with the chunk fracturing method.
func (ch *chipper) fractureChunk(ctx context.Context, k int) error {
	m := ch.m
	chunkBSP := m.Parts[m.Chunks[k].PartIndex].MeshBSP
	switch ch.desc.ChunkFracturingMethod {
	case SliceFractureCutoutChunks:
		sl := &slicer{c: ch.c, m: m, desc: ch.sliceDesc, coll: ch.coll}
		return sl.splitChunk(ctx, k, 0, chunkBSP, nil)
	case VoronoiFractureCutoutChunks:
		sites, _, err := CreateVoronoiSitesInsideMesh(ctx, ch.c, m, len(ch.voronoiDesc.Sites), k, ch.seed+int64(k)+1, nil)
		if err != nil {
			return err
		}
		vd := *ch.voronoiDesc
		vd.Sites, vd.ChunkIndices = sites, nil
		return ch.c.voronoiSplitChunk(ctx, m, k, chunkBSP, &vd, ch.coll, nil)
	}
	return nil
}

// finishCore meshes what is left of the core, or drops it when nothing
// is left.
func (ch *chipper) finishCore() error {
	if ch.coreChunk < 0 {
		return nil
	}
	m := ch.m
	tris, err := ch.core.ToMesh()
	if err != nil {
		return err
	}
	part := m.Parts[ch.corePart]
	part.Mesh = tris
	part.MeshBSP = ch.core
	m.BuildMeshBounds(ch.corePart)
	m.BuildCollisionGeometryForPart(ch.corePart, ch.coll.ForDepth(m.Depth(ch.coreChunk)))
	if len(tris) == 0 || len(part.Collision) == 0 {
		m.RemoveChunk(ch.coreChunk)
		m.RemovePart(ch.corePart)
		return nil
	}
	trimHulls(part.Collision, ch.coreTrim...)
	return nil
}

// faceUVFrame fits an interpolator to the triangle of tris facing most
// nearly along normal, preferring larger triangles among near ties.
func faceUVFrame(tris []mesh.RenderTriangle, normal mgl64.Vec3) (interp.Interpolator, bool) {
	best := -1
	bestDot, bestArea := math.Inf(-1), 0.0
	for i := range tris {
		n := tris[i].Normal()
		area := n.Len()
		if area == 0 {
			continue
		}
		dot := n.Dot(normal) / area
		if dot > bestDot+0.001 || (dot > bestDot-0.001 && area > bestArea) {
			best, bestDot, bestArea = i, math.Max(dot, bestDot), area
		}
	}
	if best < 0 {
		return interp.Interpolator{}, false
	}
	return interp.FromTriangle(&tris[best]), true
}

// uvOffset returns the change of the first UV channel over a move by
// offset.
func uvOffset(frame *interp.Interpolator, offset mgl64.Vec3) mgl64.Vec2 {
	return mgl64.Vec2{
		frame.Frames[interp.UV0U].Normal().Dot(offset),
		frame.Frames[interp.UV0V].Normal().Dot(offset),
	}
}
