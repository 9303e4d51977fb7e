package fracture

import (
	"context"
	"fmt"
	"math"

	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/gsa"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/progress"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
)

// VoronoiCellPlaneIterator visits the bisector planes that bound one cell
// of the Voronoi diagram of a set of sites. Bisectors that cannot touch
// the cell are skipped. The inside of each plane faces the cell's site.
type VoronoiCellPlaneIterator struct {
	planes  []csgmath.Plane
	sites   []int
	removed []bool
	current int
}

// NewVoronoiCellPlaneIterator starts iterating the planes of the cell of
// sites[cell]. Sites coincident with it are ignored.
func NewVoronoiCellPlaneIterator(sites []mgl64.Vec3, cell int) *VoronoiCellPlaneIterator {
	it := &VoronoiCellPlaneIterator{current: -1}
	s := sites[cell]
	for j, o := range sites {
		if j == cell {
			continue
		}
		n := o.Sub(s)
		if csgmath.NormalizeLen(&n) == 0 {
			continue
		}
		mid := s.Add(o).Mul(0.5)
		it.planes = append(it.planes, csgmath.PlaneThrough(n, mid))
		it.sites = append(it.sites, j)
	}
	it.removed = make([]bool, len(it.planes))
	it.Next()
	return it
}

// Valid reports whether the iterator is on a plane.
func (it *VoronoiCellPlaneIterator) Valid() bool {
	return it.current < len(it.planes)
}

// Plane returns the current bisector.
func (it *VoronoiCellPlaneIterator) Plane() csgmath.Plane {
	return it.planes[it.current]
}

// SiteIndex returns the index of the site across the current bisector.
func (it *VoronoiCellPlaneIterator) SiteIndex() int {
	return it.sites[it.current]
}

// Next advances to the next bisector that bounds the cell.
func (it *VoronoiCellPlaneIterator) Next() {
	for it.current++; it.current < len(it.planes); it.current++ {
		if it.bounding(it.current) {
			return
		}
		it.removed[it.current] = true
	}
}

// bounding reports whether plane k cuts the region bounded by the other
// remaining planes.
func (it *VoronoiCellPlaneIterator) bounding(k int) bool {
	others := gsa.PlaneFunc(func(yield func(csgmath.Plane)) {
		for i, p := range it.planes {
			if i != k && !it.removed[i] {
				yield(p)
			}
		}
		yield(it.planes[k].Neg())
	})
	return gsa.Test(others, nil)
}

// voronoiSplitter splits chunks into Voronoi cells.
type voronoiSplitter struct {
	desc FractureVoronoiDesc
}

// NewVoronoiSplitter returns a MeshSplitter that cuts chunks along the
// Voronoi cells of desc.Sites.
func NewVoronoiSplitter(desc FractureVoronoiDesc) MeshSplitter {
	return &voronoiSplitter{desc: desc}
}

func (s *voronoiSplitter) Validate(*ehm.Mesh) error {
	return s.desc.Validate()
}

func (s *voronoiSplitter) Initialize(m *ehm.Mesh) error {
	ensureSubmeshes(m, int(s.desc.MaterialDesc.InteriorSubmeshIndex)+1)
	return nil
}

func (s *voronoiSplitter) Process(ctx context.Context, c *Context, m *ehm.Mesh, chunk int, chunkBSP *bsp.BSP, coll hull.CollisionDesc, listener progress.Listener) error {
	return c.voronoiSplitChunk(ctx, m, chunk, chunkBSP, &s.desc, coll, listener)
}

func (s *voronoiSplitter) Finalize(m *ehm.Mesh) error {
	if s.desc.InstanceChunks {
		instanceOwnParts(m)
	}
	return nil
}

// cellSites returns the sites that split chunk.
func cellSites(desc *FractureVoronoiDesc, chunk int) []mgl64.Vec3 {
	if desc.ChunkIndices == nil {
		return desc.Sites
	}
	return lo.Filter(desc.Sites, func(_ mgl64.Vec3, i int) bool {
		return desc.ChunkIndices[i] == chunk
	})
}

// voronoiSplitChunk adds one child per non-empty Voronoi cell of chunk.
func (c *Context) voronoiSplitChunk(ctx context.Context, m *ehm.Mesh, chunk int, chunkBSP *bsp.BSP, desc *FractureVoronoiDesc, coll hull.CollisionDesc, listener progress.Listener) error {
	sites := cellSites(desc, chunk)
	if len(sites) < 2 {
		c.messagef(SeverityInfo, "chunk %d has %d voronoi sites, not splitting", chunk, len(sites))
		return nil
	}

	rootExt := m.ChunkBounds(0).Extents()
	minR2 := rootExt.LenSqr() * desc.MinimumChunkSize * desc.MinimumChunkSize
	depth := m.Depth(chunk)
	it := chunkBSP.InternalTransform()
	parentPart := m.Parts[m.Chunks[chunk].PartIndex]
	open := parentPart.Flags&ehm.MeshOpen != 0
	volumeDesc := coll.ForDepth(depth + 1)
	frameStart := len(m.MaterialFrames)

	var fn *faceNoise
	if desc.FaceNoise.Amplitude > 0 {
		level0 := m.ChunkBounds(0).Dimensions()
		fn = c.newFaceNoise(desc.FaceNoise, math.Max(level0[0], math.Max(level0[1], level0[2])))
	}

	h := progress.NewHierarchical(len(sites), listener)
	for cell := range sites {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.SetSubtaskWork(1, "voronoi cell")

		cellBSP := c.newBSP(it)
		for iter := NewVoronoiCellPlaneIterator(sites, cell); iter.Valid(); iter.Next() {
			plane := iter.Plane()
			fi := addFrame(m, desc.MaterialDesc, plane, ehm.MethodVoronoi, -1, depth+1)
			var im IntersectMesh
			c.buildIntersectMesh(&im, plane, m, fi, gridParameters{
				level0:   m.Parts[0].Mesh,
				interior: desc.MaterialDesc.InteriorSubmeshIndex,
			})
			planeBSP := c.newBSP(it)
			if err := planeBSP.FromMesh(ctx, im.Triangles, c.cuttingParams(it), nil); err != nil {
				return fmt.Errorf("voronoi cell %d: %w", cell, err)
			}
			if err := cellBSP.Combine(planeBSP); err != nil {
				return err
			}
			if err := cellBSP.Op(cellBSP, bsp.OpIntersection); err != nil {
				return err
			}
		}
		if open {
			cellBSP.DeleteTriangles()
		}
		if err := cellBSP.Combine(chunkBSP); err != nil {
			return err
		}
		if err := cellBSP.Op(cellBSP, bsp.OpIntersection); err != nil {
			return err
		}
		if cellBSP.Type() == bsp.EmptySet {
			h.CompleteSubtask()
			continue
		}

		islands := []*bsp.BSP{cellBSP}
		if c.IslandGeneration {
			islands = cellBSP.DecomposeIntoIslands()
		}
		for _, island := range islands {
			tris, err := island.ToMesh()
			if err != nil {
				return err
			}
			partIndex := m.AddPart()
			chunkIndex := m.AddChunk()
			part := m.Parts[partIndex]
			part.Mesh = tris
			part.MeshBSP = island
			m.BuildMeshBounds(partIndex)
			m.BuildCollisionGeometryForPart(partIndex, volumeDesc)
			ch := m.Chunks[chunkIndex]
			ch.ParentIndex = int32(chunk)
			ch.PartIndex = int32(partIndex)
			if open {
				part.Flags |= ehm.MeshOpen
			}

			if len(tris) == 0 || len(part.Collision) == 0 || part.Bounds.IsEmpty() || part.Bounds.Extents().LenSqr() < minR2 {
				m.RemoveChunk(chunkIndex)
				m.RemovePart(partIndex)
				continue
			}
			if fn != nil {
				fn.apply(part, func(frame uint32) bool {
					return int(frame) >= frameStart && int(frame) < len(m.MaterialFrames) &&
						m.MaterialFrames[frame].FractureMethod == ehm.MethodVoronoi
				})
				m.BuildMeshBounds(partIndex)
			}
		}
		h.CompleteSubtask()
	}
	return nil
}

// maxSiteAttempts bounds rejection sampling per site. A site that keeps
// missing the mesh is placed at its last sample.
const maxSiteAttempts = 100000

// CreateVoronoiSitesInsideMesh scatters count sites inside the chunks of
// m, in proportion to their bounds volumes. A negative chunk uses every
// root leaf chunk. It returns the sites and, per site, the chunk it was
// placed in, suitable for FractureVoronoiDesc.
func CreateVoronoiSitesInsideMesh(ctx context.Context, c *Context, m *ehm.Mesh, count, chunk int, seed int64, listener progress.Listener) ([]mgl64.Vec3, []int, error) {
	if len(m.Parts) == 0 {
		return nil, nil, ErrNoMesh
	}
	var chunks []int
	if chunk >= 0 {
		if chunk >= len(m.Chunks) {
			return nil, nil, fmt.Errorf("fracture: voronoi sites: chunk %d: %w", chunk, ehm.ErrIndex)
		}
		chunks = []int{chunk}
	} else {
		for i, ch := range m.Chunks {
			if ch.IsRootLeaf() {
				chunks = append(chunks, i)
			}
		}
	}
	chunks = lo.Filter(chunks, func(i int, _ int) bool {
		return m.Chunks[i].PartIndex >= 0 && !m.ChunkBounds(i).IsEmpty()
	})
	if len(chunks) == 0 || count <= 0 {
		return nil, nil, nil
	}

	c.Reseed(seed)
	for _, i := range chunks {
		part := int(m.Chunks[i].PartIndex)
		if m.Parts[part].MeshBSP.Type() != bsp.Nontrivial {
			if err := m.CalculatePartBSP(ctx, part, c.bspSettings(seed), nil); err != nil {
				return nil, nil, err
			}
		}
	}

	volumes := lo.Map(chunks, func(i int, _ int) float64 { return m.ChunkBounds(i).Volume() })
	total := lo.Sum(volumes)

	h := progress.NewHierarchical(count, listener)
	sites := make([]mgl64.Vec3, 0, count)
	owners := make([]int, 0, count)
	assigned := 0
	for k, i := range chunks {
		n := count - assigned
		if k+1 < len(chunks) && total > 0 {
			n = int(math.Round(float64(count) * volumes[k] / total))
			n = min(n, count-assigned)
		}
		assigned += n

		ch := m.Chunks[i]
		b := m.Parts[ch.PartIndex].MeshBSP
		bounds := m.Parts[ch.PartIndex].Bounds
		for s := 0; s < n; s++ {
			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("fracture: voronoi sites: %w", err)
			}
			h.SetSubtaskWork(1, "voronoi site")
			var p mgl64.Vec3
			for attempt := 0; attempt < maxSiteAttempts; attempt++ {
				for a := 0; a < 3; a++ {
					p[a] = c.uniform(bounds.Min[a], bounds.Max[a])
				}
				inside, err := b.PointInside(p, bsp.OpNOP)
				if err != nil {
					return nil, nil, err
				}
				if inside {
					break
				}
			}
			sites = append(sites, p.Add(ch.InstancedPositionOffset))
			owners = append(owners, i)
			h.CompleteSubtask()
		}
	}
	return sites, owners, nil
}
