package fracture

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/chazu/shatter/pkg/progress"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MeshSplitter is a method of splitting chunks into children.
type MeshSplitter interface {
	// Validate checks the splitter's settings against m before anything
	// is modified.
	Validate(m *ehm.Mesh) error
	// Initialize prepares m, for example by adding interior submeshes.
	Initialize(m *ehm.Mesh) error
	// Process splits one chunk whose solid is chunkBSP.
	Process(ctx context.Context, c *Context, m *ehm.Mesh, chunk int, chunkBSP *bsp.BSP, coll hull.CollisionDesc, listener progress.Listener) error
	// Finalize runs once after every chunk has been processed.
	Finalize(m *ehm.Mesh) error
}

var (
	_ MeshSplitter = (*sliceSplitter)(nil)
	_ MeshSplitter = (*voronoiSplitter)(nil)
)

// CoreMesh is a solid kept whole inside a split mesh. Its submeshes are
// matched to the mesh's by material name.
type CoreMesh struct {
	Triangles   []mesh.RenderTriangle
	SubmeshData []ehm.SubmeshData
}

// SplitOptions are the inputs shared by the split drivers.
type SplitOptions struct {
	MeshProcessing MeshProcessingParameters
	Collision      hull.CollisionDesc
	Seed           int64
	// Core is subtracted from the root before splitting. With ExportCore
	// it becomes a chunk of its own; this needs a single root chunk.
	Core       *CoreMesh
	ExportCore bool
}

// DefaultSplitOptions returns options with default mesh processing and
// collision settings.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{
		MeshProcessing: DefaultMeshProcessingParameters(),
		Collision:      hull.DefaultCollisionDesc(),
	}
}

// CreateHierarchicallySplitMesh replaces the non-root chunks of m with a
// hierarchy sliced from its root leaf chunks.
func CreateHierarchicallySplitMesh(ctx context.Context, c *Context, m *ehm.Mesh, desc FractureSliceDesc, opts SplitOptions, listener progress.Listener) error {
	return c.splitMesh(ctx, m, NewSliceSplitter(desc), opts, listener)
}

// HierarchicallySplitChunk replaces the descendants of one chunk with a
// sliced hierarchy.
func HierarchicallySplitChunk(ctx context.Context, c *Context, m *ehm.Mesh, chunk int, desc FractureSliceDesc, opts SplitOptions, listener progress.Listener) error {
	return c.splitChunk(ctx, m, chunk, NewSliceSplitter(desc), opts, listener)
}

// CreateVoronoiSplitMesh replaces the non-root chunks of m with the
// Voronoi cells of its root leaf chunks.
func CreateVoronoiSplitMesh(ctx context.Context, c *Context, m *ehm.Mesh, desc FractureVoronoiDesc, opts SplitOptions, listener progress.Listener) error {
	return c.splitMesh(ctx, m, NewVoronoiSplitter(desc), opts, listener)
}

// VoronoiSplitChunk replaces the descendants of one chunk with its
// Voronoi cells.
func VoronoiSplitChunk(ctx context.Context, c *Context, m *ehm.Mesh, chunk int, desc FractureVoronoiDesc, opts SplitOptions, listener progress.Listener) error {
	return c.splitChunk(ctx, m, chunk, NewVoronoiSplitter(desc), opts, listener)
}

// SplitMesh runs splitter over the root leaf chunks of m.
func SplitMesh(ctx context.Context, c *Context, m *ehm.Mesh, splitter MeshSplitter, opts SplitOptions, listener progress.Listener) error {
	return c.splitMesh(ctx, m, splitter, opts, listener)
}

// fail logs err and returns it wrapped with op.
func (c *Context) fail(op string, err error) error {
	c.messagef(SeverityError, "%s: %v", op, err)
	return fmt.Errorf("fracture: %s: %w", op, err)
}

// rollback restores m from snapshot after err. A cancellation is reported
// as the context's error.
func (c *Context) rollback(ctx context.Context, m *ehm.Mesh, snapshot []byte, op string, err error) error {
	if rerr := m.Restore(snapshot); rerr != nil {
		c.messagef(SeverityError, "%s: restore failed: %v", op, rerr)
		return fmt.Errorf("fracture: %s: %w (restore: %v)", op, err, rerr)
	}
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		err = cerr
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.messagef(SeverityError, "%s: %v", op, err)
	}
	return fmt.Errorf("fracture: %s: %w", op, err)
}

func rootLeaves(m *ehm.Mesh) []int {
	var out []int
	for i, ch := range m.Chunks {
		if ch.IsRootLeaf() && ch.PartIndex >= 0 {
			out = append(out, i)
		}
	}
	return out
}

func (c *Context) splitMesh(ctx context.Context, m *ehm.Mesh, splitter MeshSplitter, opts SplitOptions, listener progress.Listener) error {
	const op = "split mesh"
	if len(m.Parts) == 0 {
		return c.fail(op, ErrNoMesh)
	}
	if err := opts.MeshProcessing.Validate(); err != nil {
		return c.fail(op, err)
	}
	if err := opts.Collision.Validate(); err != nil {
		return c.fail(op, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err))
	}
	c.SetMeshProcessingParameters(opts.MeshProcessing)

	exportCore := opts.ExportCore && opts.Core != nil
	if exportCore && lo.CountBy(m.Chunks, func(ch *ehm.Chunk) bool { return ch.ParentIndex < 0 }) > 1 {
		c.warnf("core export needs a single root chunk, the core will not be exported")
		exportCore = false
	}
	if err := splitter.Validate(m); err != nil {
		return c.fail(op, err)
	}

	snapshot, err := m.Snapshot()
	if err != nil {
		return c.fail(op, err)
	}

	leaves := rootLeaves(m)
	h := progress.NewHierarchical(2*max(len(leaves), 1), listener)

	m.BuildCollisionGeometryForPart(0, opts.Collision.ForDepth(0))
	c.Reseed(opts.Seed)
	if err := splitter.Initialize(m); err != nil {
		return c.rollback(ctx, m, snapshot, op, err)
	}

	for _, i := range leaves {
		h.SetSubtaskWork(1, "mesh bsp")
		part := int(m.Chunks[i].PartIndex)
		if m.Parts[part].MeshBSP.Type() != bsp.Nontrivial {
			if err := m.CalculatePartBSP(ctx, part, c.bspSettings(opts.Seed), h); err != nil {
				return c.rollback(ctx, m, snapshot, op, err)
			}
			c.Reseed(opts.Seed)
		}
		h.CompleteSubtask()
	}

	m.Clear(true)
	leaves = rootLeaves(m)

	var coreBSP *bsp.BSP
	var coreID uuid.UUID
	if opts.Core != nil && len(opts.Core.Triangles) > 0 && len(leaves) > 0 {
		coreBSP, coreID, err = c.addCore(ctx, m, leaves[0], opts, exportCore)
		if err != nil {
			return c.rollback(ctx, m, snapshot, op, err)
		}
	}

	for _, i := range leaves {
		if err := ctx.Err(); err != nil {
			return c.rollback(ctx, m, snapshot, op, err)
		}
		h.SetSubtaskWork(1, "split")
		b := m.Parts[m.Chunks[i].PartIndex].MeshBSP.Clone()
		if coreBSP != nil {
			if err := b.Combine(coreBSP); err != nil {
				return c.rollback(ctx, m, snapshot, op, err)
			}
			if err := b.Op(b, bsp.OpAMinusB); err != nil {
				return c.rollback(ctx, m, snapshot, op, err)
			}
		}
		if err := splitter.Process(ctx, c, m, i, b, opts.Collision, h); err != nil {
			return c.rollback(ctx, m, snapshot, op, err)
		}
		h.CompleteSubtask()
	}
	if err := ctx.Err(); err != nil {
		return c.rollback(ctx, m, snapshot, op, err)
	}

	if c.RemoveTJunctions {
		removeTJunctions(m)
	}
	m.SortChunks()
	m.CreatePartSurfaceNormals()
	if exportCore {
		trimAgainstCore(m, coreID)
	}
	if err := splitter.Finalize(m); err != nil {
		return c.rollback(ctx, m, snapshot, op, err)
	}
	c.messagef(SeverityInfo, "split mesh into %d chunks using %d parts", len(m.Chunks), len(m.Parts))
	return nil
}

// addCore builds the core solid in the BSP space of the root chunk and,
// with export, adds the part of it inside the root as a child chunk.
func (c *Context) addCore(ctx context.Context, m *ehm.Mesh, root int, opts SplitOptions, export bool) (*bsp.BSP, uuid.UUID, error) {
	remap := make([]int32, len(opts.Core.SubmeshData))
	for j, sd := range opts.Core.SubmeshData {
		k := lo.IndexOf(lo.Map(m.SubmeshData, func(s ehm.SubmeshData, _ int) string { return s.MaterialName }), sd.MaterialName)
		if k < 0 {
			k = m.AddSubmesh(sd)
		}
		remap[j] = int32(k)
	}
	tris := append([]mesh.RenderTriangle(nil), opts.Core.Triangles...)
	for i := range tris {
		if s := tris[i].SubmeshIndex; s >= 0 && int(s) < len(remap) {
			tris[i].SubmeshIndex = remap[s]
		}
	}

	rootBSP := m.Parts[m.Chunks[root].PartIndex].MeshBSP
	it := rootBSP.InternalTransform()
	core := c.newBSP(it)
	if err := core.FromMesh(ctx, tris, c.cuttingParams(it), nil); err != nil {
		return nil, uuid.Nil, fmt.Errorf("core mesh: %w", err)
	}
	if !export {
		return core, uuid.Nil, nil
	}

	inside := rootBSP.Clone()
	if err := inside.Combine(core); err != nil {
		return nil, uuid.Nil, err
	}
	if err := inside.Op(inside, bsp.OpIntersection); err != nil {
		return nil, uuid.Nil, err
	}
	coreTris, err := inside.ToMesh()
	if err != nil {
		return nil, uuid.Nil, err
	}
	if len(coreTris) == 0 {
		c.warnf("core mesh lies outside the root chunk")
		return core, uuid.Nil, nil
	}
	partIndex := m.AddPart()
	chunkIndex := m.AddChunk()
	part := m.Parts[partIndex]
	part.Mesh = coreTris
	part.MeshBSP = inside
	m.BuildMeshBounds(partIndex)
	m.BuildCollisionGeometryForPart(partIndex, opts.Collision.ForDepth(m.Depth(root)+1))
	ch := m.Chunks[chunkIndex]
	ch.ParentIndex = int32(root)
	ch.PartIndex = int32(partIndex)
	return core, ch.UniqueID, nil
}

// trimAgainstCore clips the hulls of the core's siblings where they
// overlap the core's hulls slightly.
func trimAgainstCore(m *ehm.Mesh, coreID uuid.UUID) {
	coreIndex := lo.IndexOf(lo.Map(m.Chunks, func(ch *ehm.Chunk, _ int) uuid.UUID { return ch.UniqueID }), coreID)
	if coreIndex < 0 {
		return
	}
	core := m.Chunks[coreIndex]
	coreHulls := m.Parts[core.PartIndex].Collision
	ident := mgl64.Ident4()
	for i, ch := range m.Chunks {
		if i == coreIndex || ch.ParentIndex != core.ParentIndex || ch.PartIndex < 0 {
			continue
		}
		for _, h := range m.Parts[ch.PartIndex].Collision {
			for _, ch0 := range coreHulls {
				near, sep := hull.HullsInProximity(ch0, ident, h, ident, 0)
				if !near {
					continue
				}
				overlap := sep.Max0 - sep.Min1
				if overlap > 0 && overlap < 0.25*(sep.Max1-sep.Min1) {
					n := csgmath.Normalized(sep.Plane.Normal())
					h.IntersectPlaneSide(csgmath.NewPlane(n.Mul(-1), sep.Max0))
				}
			}
		}
	}
}

// descendants returns the indices of every chunk below chunk.
func descendants(m *ehm.Mesh, chunk int) []int {
	var out []int
	queue := []int{chunk}
	for len(queue) > 0 {
		kids := m.Children(queue[0])
		queue = append(queue[1:], kids...)
		out = append(out, kids...)
	}
	return out
}

// removeSubtree deletes the descendants of chunk along with parts no
// other chunk uses. It returns chunk's new index.
func removeSubtree(m *ehm.Mesh, chunk int) int {
	id := m.Chunks[chunk].UniqueID
	doomed := descendants(m, chunk)
	sort.Sort(sort.Reverse(sort.IntSlice(doomed)))
	for _, i := range doomed {
		m.RemoveChunk(i)
	}
	used := make([]bool, len(m.Parts))
	for _, ch := range m.Chunks {
		if ch.PartIndex >= 0 {
			used[ch.PartIndex] = true
		}
	}
	for p := len(m.Parts) - 1; p >= 0; p-- {
		if !used[p] {
			m.RemovePart(p)
		}
	}
	return lo.IndexOf(lo.Map(m.Chunks, func(ch *ehm.Chunk, _ int) uuid.UUID { return ch.UniqueID }), id)
}

func (c *Context) splitChunk(ctx context.Context, m *ehm.Mesh, chunk int, splitter MeshSplitter, opts SplitOptions, listener progress.Listener) error {
	const op = "split chunk"
	if len(m.Parts) == 0 {
		return c.fail(op, ErrNoMesh)
	}
	if chunk < 0 || chunk >= len(m.Chunks) || m.Chunks[chunk].PartIndex < 0 {
		return c.fail(op, fmt.Errorf("chunk %d: %w", chunk, ehm.ErrIndex))
	}
	if err := opts.MeshProcessing.Validate(); err != nil {
		return c.fail(op, err)
	}
	if err := opts.Collision.Validate(); err != nil {
		return c.fail(op, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err))
	}
	c.SetMeshProcessingParameters(opts.MeshProcessing)
	if err := splitter.Validate(m); err != nil {
		return c.fail(op, err)
	}

	snapshot, err := m.Snapshot()
	if err != nil {
		return c.fail(op, err)
	}

	chunk = removeSubtree(m, chunk)
	c.Reseed(opts.Seed)
	if err := splitter.Initialize(m); err != nil {
		return c.rollback(ctx, m, snapshot, op, err)
	}

	part := int(m.Chunks[chunk].PartIndex)
	if m.Parts[part].MeshBSP.Type() != bsp.Nontrivial {
		if err := m.CalculatePartBSP(ctx, part, c.bspSettings(opts.Seed), nil); err != nil {
			return c.rollback(ctx, m, snapshot, op, err)
		}
		c.Reseed(opts.Seed)
	}

	if err := splitter.Process(ctx, c, m, chunk, m.Parts[part].MeshBSP.Clone(), opts.Collision, listener); err != nil {
		return c.rollback(ctx, m, snapshot, op, err)
	}
	if err := ctx.Err(); err != nil {
		return c.rollback(ctx, m, snapshot, op, err)
	}

	if c.RemoveTJunctions {
		removeTJunctions(m)
	}
	m.SortChunks()
	m.CreatePartSurfaceNormals()
	if err := splitter.Finalize(m); err != nil {
		return c.rollback(ctx, m, snapshot, op, err)
	}
	return nil
}
