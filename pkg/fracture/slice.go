package fracture

import (
	"context"
	"fmt"
	"math"

	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/progress"
	"github.com/go-gl/mathgl/mgl64"
)

// slicePartition returns the number of pieces along each axis for a
// chunk with extents ext.
func slicePartition(ext mgl64.Vec3, sp SliceParameters, desc *FractureSliceDesc) [3]int {
	var p [3]int
	for i := range p {
		p[i] = sp.SplitsPerPass[i] + 1
	}
	if !desc.UseTargetProportions {
		return p
	}
	var n mgl64.Vec3
	for i := 0; i < 3; i++ {
		n[i] = ext[i] / desc.TargetProportions[i]
	}
	l2 := n.Dot(n)
	if l2 == 0 {
		return p
	}
	n = n.Mul(mgl64.Vec3{float64(p[0]), float64(p[1]), float64(p[2])}.Dot(n) / l2)
	for i := range p {
		p[i] = max(1, int(n[i]+0.5))
	}
	return p
}

// randomNormal returns a unit vector within rangeAngle of the axis,
// uniformly distributed over the spherical cap.
func (c *Context) randomNormal(axis int, rangeAngle float64) mgl64.Vec3 {
	cosTheta := 1 - (1-math.Cos(rangeAngle))*c.uniform(0, 1)
	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))
	sinPhi, cosPhi := math.Sincos(c.uniform(-math.Pi, math.Pi))
	var r mgl64.Vec3
	r[axis] = cosTheta
	r[(axis+1)%3] = cosPhi * sinTheta
	r[(axis+2)%3] = sinPhi * sinTheta
	return r
}

// sliceCut is a slice plane and the BSP of its cutting surface.
type sliceCut struct {
	plane csgmath.Plane
	bsp   *bsp.BSP
}

// slicer holds the state of one hierarchical slicing run.
type slicer struct {
	c    *Context
	m    *ehm.Mesh
	desc *FractureSliceDesc
	coll hull.CollisionDesc

	// trailing and leading bound the cell being cut along each axis. The
	// inside of both is the cell side.
	trailing [3]csgmath.Plane
	leading  [3]csgmath.Plane
}

// cellState is the slicing state of one chunk.
type cellState struct {
	sp        SliceParameters
	center    mgl64.Vec3
	ext       mgl64.Vec3
	widths    mgl64.Vec3
	depth     int
	minVolume float64
}

func (s *slicer) slicePlane(cs *cellState, axis, num int) csgmath.Plane {
	p := cs.center
	p[axis] = cs.center[axis] + float64(num+1)*cs.widths[axis] - cs.ext[axis]
	n := s.c.randomNormal(axis, cs.sp.AngularVariation[axis])
	d := -n.Dot(p) + cs.widths[axis]*cs.sp.LinearVariation[axis]*s.c.uniform(-0.5, 0.5)
	return csgmath.NewPlane(n, d)
}

// sliceBSP builds the cutting surface BSP of a slice plane, recording a
// material frame for its faces.
func (s *slicer) sliceBSP(ctx context.Context, cs *cellState, axis int, plane csgmath.Plane, it mgl64.Mat4) (*bsp.BSP, error) {
	md := s.desc.MaterialDesc[axis]
	fi := addFrame(s.m, md, plane, ehm.MethodSlice, int32(axis), cs.depth)

	var im IntersectMesh
	s.c.buildIntersectMesh(&im, plane, s.m, fi, gridParameters{
		level0:    s.m.Parts[0].Mesh,
		sizeScale: cs.ext[axis],
		noise:     cs.sp.Noise[axis],
		noiseType: s.desc.NoiseMode,
		interior:  md.InteriorSubmeshIndex,
	})

	b := s.c.newBSP(it)
	tol := s.c.Tolerances
	tol.Linear = 1e-9
	tol.Angular = 1e-5
	b.SetTolerances(tol)
	if err := b.FromMesh(ctx, im.Triangles, s.c.cuttingParams(it), nil); err != nil {
		return nil, err
	}
	return b, nil
}

// cutPiece cuts the piece below the next slice plane off source. source
// keeps the remainder. With a positive minVolume, a cut leaving a piece
// smaller than that is undone and the small piece stays with the larger
// one. A nil piece means nothing was cut off.
func (s *slicer) cutPiece(ctx context.Context, cs *cellState, source *bsp.BSP, axis, num int, minVolume float64, cache *sliceCut) (*bsp.BSP, error) {
	oldLeading := s.leading[axis]
	it := source.InternalTransform()

	var cut *bsp.BSP
	if cache != nil && cache.bsp != nil {
		cut = cache.bsp
		s.leading[axis] = cache.plane
	} else {
		plane := s.slicePlane(cs, axis, num)
		b, err := s.sliceBSP(ctx, cs, axis, plane, it)
		if err != nil {
			return nil, err
		}
		cut = b
		s.leading[axis] = plane
		if cache != nil {
			cache.bsp, cache.plane = b, plane
		}
	}

	if err := source.Combine(cut); err != nil {
		return nil, err
	}
	piece := s.c.newBSP(it)
	if err := piece.Op(source, bsp.OpIntersection); err != nil {
		return nil, err
	}
	if minVolume <= 0 {
		return piece, source.Op(source, bsp.OpAMinusB)
	}

	_, pieceVolume, _, err := source.SurfaceAreaAndVolume(true, bsp.OpIntersection)
	if err != nil {
		return nil, err
	}
	_, restVolume, _, err := source.SurfaceAreaAndVolume(true, bsp.OpAMinusB)
	if err != nil {
		return nil, err
	}
	switch {
	case pieceVolume >= minVolume && restVolume >= minVolume:
		err = source.Op(source, bsp.OpAMinusB)
	case restVolume >= minVolume:
		s.leading[axis] = oldLeading
		piece = nil
		err = source.Op(source, bsp.OpSetA)
	default:
		if err = piece.Op(source, bsp.OpSetA); err == nil {
			err = source.Op(source, bsp.OpEmptySet)
		}
	}
	return piece, err
}

// splitChunk slices a chunk into a grid of children and recurses into
// each accepted child.
func (s *slicer) splitChunk(ctx context.Context, chunk, relDepth int, chunkBSP *bsp.BSP, listener progress.Listener) error {
	if relDepth >= s.desc.MaxDepth {
		return nil
	}
	bounds := s.m.ChunkBounds(chunk)
	if bounds.IsEmpty() {
		return nil
	}
	if relDepth == 0 {
		for i := 0; i < 3; i++ {
			axis := csgmath.Axis(i)
			s.trailing[i] = csgmath.NewPlane(axis.Mul(-1), bounds.Min[i])
			s.leading[i] = csgmath.NewPlane(axis, -bounds.Max[i])
		}
	}

	cs := &cellState{
		sp:     s.desc.SliceParameters[relDepth],
		center: bounds.Center(),
		ext:    bounds.Extents(),
		depth:  s.m.Depth(chunk) + 1,
	}
	relDepth++

	partition := slicePartition(cs.ext, cs.sp, s.desc)
	pieces := partition[0] * partition[1] * partition[2]
	cs.minVolume = 0.1 * bounds.Volume() / float64(pieces)
	order := cs.sp.Order
	through := order == SliceThrough
	if through {
		order = SliceXYZ
	}
	dirs := sliceDirs[order]
	for i := 0; i < 3; i++ {
		cs.widths[i] = 2 * cs.ext[i] / float64(partition[i])
	}

	parentPart := s.m.Parts[s.m.Chunks[chunk].PartIndex]
	open := parentPart.Flags&ehm.MeshOpen != 0
	var source *bsp.BSP
	if open {
		// Open parts are cut from all space and clipped to the part
		// afterwards, which keeps the slice faces out of the mesh.
		source = s.c.newBSP(chunkBSP.InternalTransform())
	} else {
		source = chunkBSP.Clone()
	}

	var caches [2][]sliceCut
	if through {
		caches[0] = make([]sliceCut, partition[dirs[1]])
		caches[1] = make([]sliceCut, partition[dirs[2]])
	}
	cacheAt := func(level, num int) *sliceCut {
		if caches[level] == nil {
			return nil
		}
		return &caches[level][num]
	}

	h := progress.NewHierarchical(max(pieces, 1), listener)
	chunkTrailing, chunkLeading := s.trailing, s.leading

	// level walks one axis of the grid, cutting pieces off src and
	// handing each to next.
	var level func(k int, src *bsp.BSP, minVolume float64, next func(*bsp.BSP) error) error
	level = func(k int, src *bsp.BSP, minVolume float64, next func(*bsp.BSP) error) error {
		d := dirs[k]
		s.trailing[d] = chunkTrailing[d]
		s.leading[d] = s.trailing[d].Neg()
		for num := 0; num < partition[d]; num++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			var piece *bsp.BSP
			if num+1 < partition[d] {
				var cache *sliceCut
				if k > 0 {
					cache = cacheAt(k-1, num)
				}
				p, err := s.cutPiece(ctx, cs, src, d, num, minVolume, cache)
				if err != nil {
					return err
				}
				piece = p
			} else {
				s.leading[d] = chunkLeading[d]
				piece = src
			}
			if piece != nil {
				if err := next(piece); err != nil {
					return err
				}
			}
			s.trailing[d] = s.leading[d].Neg()
		}
		return nil
	}

	leaf := func(piece *bsp.BSP) error {
		h.SetSubtaskWork(1, "slice")
		if open {
			piece.DeleteTriangles()
			if err := piece.Combine(parentPart.MeshBSP); err != nil {
				return err
			}
			if err := piece.Op(piece, bsp.OpIntersection); err != nil {
				return err
			}
		}
		err := s.createChunks(ctx, piece, chunk, relDepth, open, h)
		h.CompleteSubtask()
		return err
	}

	return level(0, source, 0, func(p1 *bsp.BSP) error {
		return level(1, p1, 0, func(p2 *bsp.BSP) error {
			return level(2, p2, cs.minVolume, leaf)
		})
	})
}

// createChunks adds the islands of piece as children of parent, keeping
// those that pass the size checks and splitting them further.
func (s *slicer) createChunks(ctx context.Context, piece *bsp.BSP, parent, relDepth int, open bool, listener progress.Listener) error {
	if piece.Type() == bsp.EmptySet {
		return nil
	}
	islands := []*bsp.BSP{piece}
	if s.c.IslandGeneration {
		islands = piece.DecomposeIntoIslands()
	}

	volumeDesc := s.coll.ForDepth(s.m.Depth(parent) + 1)
	rootExt := s.m.ChunkBounds(0).Extents()
	var minExt mgl64.Vec3
	for i := 0; i < 3; i++ {
		minExt[i] = rootExt[i] * s.desc.MinimumChunkSize[i]
	}
	sp := s.desc.SliceParameters[relDepth-1]

	for _, island := range islands {
		tris, err := island.ToMesh()
		if err != nil {
			return err
		}
		partIndex := s.m.AddPart()
		chunkIndex := s.m.AddChunk()
		part := s.m.Parts[partIndex]
		part.Mesh = tris
		s.m.BuildMeshBounds(partIndex)
		s.m.BuildCollisionGeometryForPart(partIndex, volumeDesc)
		ch := s.m.Chunks[chunkIndex]
		ch.ParentIndex = int32(parent)
		ch.PartIndex = int32(partIndex)
		if open {
			part.Flags |= ehm.MeshOpen
		}

		for i := 0; i < 3; i++ {
			if (sp.Noise[i].Amplitude != 0 || volumeDesc.HullMethod != hull.WrapGraphicsMesh) &&
				volumeDesc.HullMethod != hull.ConvexDecomposition {
				trimHulls(part.Collision, s.trailing[i], s.leading[i])
			}
		}

		ext := part.Bounds.Extents()
		accept := len(tris) > 0 && len(part.Collision) > 0 && !part.Bounds.IsEmpty()
		for i := 0; i < 3 && accept; i++ {
			accept = ext[i] >= minExt[i]
		}
		if !accept {
			s.m.RemoveChunk(chunkIndex)
			s.m.RemovePart(partIndex)
			continue
		}
		part.MeshBSP = island
		if relDepth < s.desc.MaxDepth {
			trailing, leading := s.trailing, s.leading
			err := s.splitChunk(ctx, chunkIndex, relDepth, island, listener)
			s.trailing, s.leading = trailing, leading
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// trimHulls clips hulls to the given planes, removing at most a fifth of
// each hull's extent along a plane normal.
func trimHulls(hulls []*hull.ConvexHull, planes ...csgmath.Plane) {
	for _, h := range hulls {
		for _, plane := range planes {
			n := plane.Normal()
			mn, mx := h.Extent(n)
			if mx <= mn {
				continue
			}
			clip := plane
			clip[3] = math.Min(plane[3], -(0.8*(mx-mn) + mn))
			h.IntersectPlaneSide(clip)
		}
	}
}

// estimateSliceChunks returns the number of chunks a slicing run would
// create below a chunk with extents ext, ignoring rejections.
func estimateSliceChunks(ext mgl64.Vec3, desc *FractureSliceDesc) int {
	total, levelCount := 0, 1
	for depth := 0; depth < desc.MaxDepth; depth++ {
		p := slicePartition(ext, desc.SliceParameters[depth], desc)
		levelCount *= p[0] * p[1] * p[2]
		total += levelCount
		if total > MaxEstimatedChunks {
			return total
		}
		for i := 0; i < 3; i++ {
			ext[i] /= float64(p[i])
		}
	}
	return total
}

// sliceSplitter splits chunks by hierarchical slicing.
type sliceSplitter struct {
	desc FractureSliceDesc
}

// NewSliceSplitter returns a MeshSplitter that slices chunks per desc.
func NewSliceSplitter(desc FractureSliceDesc) MeshSplitter {
	return &sliceSplitter{desc: desc}
}

func (s *sliceSplitter) Validate(m *ehm.Mesh) error {
	if err := s.desc.Validate(); err != nil {
		return err
	}
	total := 0
	for i, c := range m.Chunks {
		if !c.IsRootLeaf() {
			continue
		}
		total += estimateSliceChunks(m.ChunkBounds(i).Extents(), &s.desc)
		if total > MaxEstimatedChunks {
			return fmt.Errorf("%w: slicing would create about %d chunks", ErrTooManyChunks, total)
		}
	}
	return nil
}

func (s *sliceSplitter) Initialize(m *ehm.Mesh) error {
	for _, md := range s.desc.MaterialDesc {
		ensureSubmeshes(m, int(md.InteriorSubmeshIndex)+1)
	}
	return nil
}

func (s *sliceSplitter) Process(ctx context.Context, c *Context, m *ehm.Mesh, chunk int, chunkBSP *bsp.BSP, coll hull.CollisionDesc, listener progress.Listener) error {
	sl := &slicer{c: c, m: m, desc: &s.desc, coll: coll}
	return sl.splitChunk(ctx, chunk, 0, chunkBSP, listener)
}

func (s *sliceSplitter) Finalize(m *ehm.Mesh) error {
	if s.desc.InstanceChunks {
		instanceOwnParts(m)
	}
	return nil
}

// instanceOwnParts flags every chunk that has a part of its own as
// instanced.
func instanceOwnParts(m *ehm.Mesh) {
	for i, c := range m.Chunks {
		if i < len(m.Parts) {
			c.Flags |= ehm.ChunkIsInstanced
		}
	}
}

// ensureSubmeshes grows the submesh table to at least n entries, never
// below the root submesh count.
func ensureSubmeshes(m *ehm.Mesh, n int) {
	n = max(n, m.RootSubmeshCount)
	for len(m.SubmeshData) < n {
		m.AddSubmesh(ehm.SubmeshData{MaterialName: fmt.Sprintf("interior%d", len(m.SubmeshData))})
	}
}
