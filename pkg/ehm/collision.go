package ehm

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
)

// BuildCollisionGeometryForPart replaces a part's hulls with ones built
// from its mesh.
func (m *Mesh) BuildCollisionGeometryForPart(part int, desc hull.CollisionVolumeDesc) {
	if part < 0 || part >= len(m.Parts) {
		return
	}
	m.Parts[part].Collision = hull.Build(m.Parts[part].Mesh, desc, 0)
}

// BuildCollisionGeometryForRootChunkParts rebuilds the hulls of every root
// chunk's part. With aggregate, root chunks with root children take the
// union of their children's hulls instead of hulling their own mesh.
// Neighboring root hulls are then trimmed and finally reduced.
func (m *Mesh) BuildCollisionGeometryForRootChunkParts(desc hull.CollisionDesc, aggregate bool) {
	rootStop := 0
	for i, c := range m.Chunks {
		if c.IsRoot() {
			rootStop = i + 1
			if c.PartIndex >= 0 && int(c.PartIndex) < len(m.Parts) {
				m.Parts[c.PartIndex].Collision = nil
			}
		}
	}

	for i := 0; i < rootStop; i++ {
		c := m.Chunks[i]
		if !c.IsRootLeaf() && !(c.IsRoot() && !aggregate) {
			continue
		}
		if c.PartIndex < 0 || int(c.PartIndex) >= len(m.Parts) || len(m.Parts[c.PartIndex].Collision) != 0 {
			continue
		}
		volumeDesc := desc.ForDepth(m.Depth(i))
		// Reduction happens once at the end.
		volumeDesc.MaxVertexCount, volumeDesc.MaxEdgeCount, volumeDesc.MaxFaceCount = 0, 0, 0
		m.BuildCollisionGeometryForPart(int(c.PartIndex), volumeDesc)
	}

	if aggregate && len(m.Chunks) > 0 {
		m.aggregateCollisionHullsFromRootChildren(0)
	}

	if desc.MaximumTrimming > 0 {
		for depth := 1; depth <= m.MaxDepth(); depth++ {
			var chunks []int
			for i := 0; i < rootStop; i++ {
				if m.Chunks[i].IsRoot() && m.Depth(i) == depth {
					chunks = append(chunks, i)
				}
			}
			if len(chunks) > 0 {
				m.TrimChunkHulls(chunks, desc.MaximumTrimming)
			}
		}
	}

	m.ReduceHulls(desc, true)
}

func (m *Mesh) aggregateCollisionHullsFromRootChildren(chunk int) {
	var rootChildren []int
	for i, c := range m.Chunks {
		if c.ParentIndex == int32(chunk) && c.IsRoot() {
			rootChildren = append(rootChildren, i)
		}
	}
	if len(rootChildren) == 0 {
		return
	}
	var hulls []*hull.ConvexHull
	for _, child := range rootChildren {
		m.aggregateCollisionHullsFromRootChildren(child)
		for _, h := range m.Parts[m.Chunks[child].PartIndex].Collision {
			hulls = append(hulls, h.Clone())
		}
	}
	m.Parts[m.Chunks[chunk].PartIndex].Collision = hulls
}

// TrimChunkHulls trims the hulls of the given chunks where they overlap
// hulls of the other chunks. Each overlapping pair is cut at the midplane
// of its separating axis, but no hull loses more than maxTrimFraction of
// its width along that axis. Hulls trimmed away entirely are dropped; a
// part left with no hulls gets a hull wrapping its mesh.
func (m *Mesh) TrimChunkHulls(chunks []int, maxTrimFraction float64) {
	type hullRef struct {
		chunk int
		hull  int
	}
	trimPlanes := make(map[hullRef][]csgmath.Plane)

	for n0, c0 := range chunks {
		chunk0 := m.Chunks[c0]
		part0 := m.Parts[chunk0.PartIndex]
		off0 := chunk0.InstancedPositionOffset
		tm0 := mgl64.Translate3D(off0[0], off0[1], off0[2])
		for i0, h0 := range part0.Collision {
			for _, c1 := range chunks[n0+1:] {
				chunk1 := m.Chunks[c1]
				part1 := m.Parts[chunk1.PartIndex]
				off1 := chunk1.InstancedPositionOffset
				tm1 := mgl64.Translate3D(off1[0], off1[1], off1[2])
				for i1, h1 := range part1.Collision {
					near, sep := hull.HullsInProximity(h0, tm0, h1, tm1, 0)
					if !near {
						continue
					}
					n := sep.Plane.Normal()
					d0 := min(sep.Plane.D(), maxTrimFraction*(sep.Max0-sep.Min0)-sep.Max0)
					d0 += n.Dot(off0)
					d1 := min(-sep.Plane.D(), maxTrimFraction*(sep.Max1-sep.Min1)+sep.Min1)
					d1 -= n.Dot(off1)
					trimPlanes[hullRef{c0, i0}] = append(trimPlanes[hullRef{c0, i0}], csgmath.NewPlane(n, d0))
					trimPlanes[hullRef{c1, i1}] = append(trimPlanes[hullRef{c1, i1}], csgmath.NewPlane(n.Mul(-1), d1))
				}
			}
		}
	}

	for _, c := range chunks {
		partIndex := int(m.Chunks[c].PartIndex)
		part := m.Parts[partIndex]
		kept := part.Collision[:0]
		for i, h := range part.Collision {
			for _, p := range trimPlanes[hullRef{c, i}] {
				h.IntersectPlaneSide(p)
				if h.IsEmpty() {
					break
				}
			}
			if !h.IsEmpty() {
				kept = append(kept, h)
			}
		}
		part.Collision = kept
		if len(part.Collision) == 0 {
			wrap := hull.DefaultCollisionVolumeDesc()
			wrap.HullMethod = hull.WrapGraphicsMesh
			m.BuildCollisionGeometryForPart(partIndex, wrap)
		}
	}
}

// ReduceHulls fits every part's hulls to the budgets of the shallowest
// chunk using it. With inflated, a second pass counts sizes as an inflated
// hull would have them.
func (m *Mesh) ReduceHulls(desc hull.CollisionDesc, inflated bool) {
	reduced := make(map[int32]bool)
	for i, c := range m.Chunks {
		if c.PartIndex < 0 || int(c.PartIndex) >= len(m.Parts) || reduced[c.PartIndex] {
			continue
		}
		volumeDesc := desc.ForDepth(m.Depth(i))
		for _, h := range m.Parts[c.PartIndex].Collision {
			h.ReduceHull(volumeDesc.MaxVertexCount, volumeDesc.MaxEdgeCount, volumeDesc.MaxFaceCount, false)
			if inflated {
				h.ReduceHull(volumeDesc.MaxVertexCount, volumeDesc.MaxEdgeCount, volumeDesc.MaxFaceCount, true)
			}
		}
		reduced[c.PartIndex] = true
	}
}

// HullCount returns the number of collision hulls over all parts.
func (m *Mesh) HullCount() int {
	return lo.SumBy(m.Parts, func(p *Part) int { return len(p.Collision) })
}
