// Package ehm holds the explicit hierarchical mesh produced by fracturing:
// a forest of chunks, each referencing a part with a render mesh, a BSP of
// that mesh and convex collision hulls. Parts may be shared between chunks
// that are instances of each other.
package ehm

import (
	"encoding/binary"
	"errors"

	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	// ErrNoParts is returned when an operation needs at least one part.
	ErrNoParts = errors.New("ehm: mesh has no parts")

	// ErrNoRootLeaves is returned when no chunk is a root leaf.
	ErrNoRootLeaves = errors.New("ehm: no root leaf chunks")

	// ErrIndex is returned for part or chunk indices out of range.
	ErrIndex = errors.New("ehm: index out of range")
)

// PartFlags describe a part.
type PartFlags uint32

const (
	// MeshOpen marks a part whose mesh does not enclose a volume. Its BSP
	// is built from a padded hull instead of the mesh.
	MeshOpen PartFlags = 1 << iota
)

// Part is a piece of geometry shared by one or more chunks.
type Part struct {
	Mesh          []mesh.RenderTriangle
	Bounds        csgmath.Bounds
	Collision     []*hull.ConvexHull
	MeshBSP       *bsp.BSP
	SurfaceNormal mgl64.Vec3
	Flags         PartFlags
}

func newPart() *Part {
	return &Part{Bounds: csgmath.EmptyBounds(), MeshBSP: bsp.New()}
}

// BuildBounds recomputes p.Bounds from its mesh.
func (p *Part) BuildBounds() {
	p.Bounds = mesh.MeshBounds(p.Mesh)
}

// ChunkFlags are the public chunk flags.
type ChunkFlags uint32

const (
	// ChunkIsInstanced marks a chunk that shares its part with others and
	// is placed by its instancing offsets.
	ChunkIsInstanced ChunkFlags = 1 << iota
)

// PrivateFlags are chunk flags maintained by the fracture drivers.
type PrivateFlags uint32

const (
	// Root marks chunks that were part of the input hierarchy.
	Root PrivateFlags = 1 << iota
	// RootLeaf marks root chunks with no root children; fracturing starts
	// from these.
	RootLeaf
)

// Chunk is a node of the fracture hierarchy.
type Chunk struct {
	ParentIndex             int32
	PartIndex               int32
	InstancedPositionOffset mgl64.Vec3
	InstancedUVOffset       mgl64.Vec2
	Flags                   ChunkFlags
	PrivateFlags            PrivateFlags
	UniqueID                uuid.UUID
}

func (c *Chunk) IsRoot() bool     { return c.PrivateFlags&Root != 0 }
func (c *Chunk) IsRootLeaf() bool { return c.PrivateFlags&RootLeaf != 0 }

// Mesh is an explicit hierarchical mesh.
type Mesh struct {
	Parts          []*Part
	Chunks         []*Chunk
	SubmeshData    []SubmeshData
	MaterialFrames []MaterialFrame
	// RootSubmeshCount is the number of submeshes of the input mesh;
	// interior submeshes are appended after it.
	RootSubmeshCount int

	chunkSerial uint64
}

// chunkNamespace scopes chunk IDs. IDs are name-based on a per-mesh
// serial number, so rebuilding a mesh the same way reproduces them.
var chunkNamespace = uuid.MustParse("3b0c6f4e-2a7d-5d1e-9c41-7f6a8e2d0b13")

// New returns an empty mesh.
func New() *Mesh {
	return &Mesh{}
}

func (m *Mesh) PartCount() int  { return len(m.Parts) }
func (m *Mesh) ChunkCount() int { return len(m.Chunks) }

// AddPart appends an empty part and returns its index.
func (m *Mesh) AddPart() int {
	m.Parts = append(m.Parts, newPart())
	return len(m.Parts) - 1
}

// RemovePart deletes a part. Chunks referencing it get PartIndex -1 and
// later part indices shift down.
func (m *Mesh) RemovePart(index int) bool {
	if index < 0 || index >= len(m.Parts) {
		return false
	}
	for _, c := range m.Chunks {
		switch {
		case c.PartIndex == int32(index):
			c.PartIndex = -1
		case c.PartIndex > int32(index):
			c.PartIndex--
		}
	}
	m.Parts = append(m.Parts[:index], m.Parts[index+1:]...)
	return true
}

// AddChunk appends a root-level chunk with a fresh unique ID and returns
// its index.
func (m *Mesh) AddChunk() int {
	m.Chunks = append(m.Chunks, &Chunk{ParentIndex: -1, PartIndex: -1, UniqueID: m.newChunkID()})
	return len(m.Chunks) - 1
}

// newChunkID returns the ID for the next serial number not already taken
// by a chunk, which a deserialized mesh may hold.
func (m *Mesh) newChunkID() uuid.UUID {
	for {
		var name [8]byte
		binary.LittleEndian.PutUint64(name[:], m.chunkSerial)
		m.chunkSerial++
		id := uuid.NewSHA1(chunkNamespace, name[:])
		if !lo.ContainsBy(m.Chunks, func(c *Chunk) bool { return c.UniqueID == id }) {
			return id
		}
	}
}

// RemoveChunk deletes a chunk. Its children become roots and later chunk
// indices shift down.
func (m *Mesh) RemoveChunk(index int) bool {
	if index < 0 || index >= len(m.Chunks) {
		return false
	}
	for _, c := range m.Chunks {
		switch {
		case c.ParentIndex == int32(index):
			c.ParentIndex = -1
		case c.ParentIndex > int32(index):
			c.ParentIndex--
		}
	}
	m.Chunks = append(m.Chunks[:index], m.Chunks[index+1:]...)
	return true
}

// Depth returns the number of ancestors of a chunk.
func (m *Mesh) Depth(chunk int) int {
	if chunk < 0 || chunk >= len(m.Chunks) {
		return 0
	}
	depth := 0
	for i := m.Chunks[chunk].ParentIndex; i >= 0; i = m.Chunks[i].ParentIndex {
		depth++
	}
	return depth
}

// MaxDepth returns the largest chunk depth, or -1 for a mesh without
// chunks.
func (m *Mesh) MaxDepth() int {
	max := -1
	for i := range m.Chunks {
		if d := m.Depth(i); d > max {
			max = d
		}
	}
	return max
}

// ChunkBounds returns a chunk's part bounds moved by its instancing offset.
func (m *Mesh) ChunkBounds(chunk int) csgmath.Bounds {
	if chunk < 0 || chunk >= len(m.Chunks) {
		return csgmath.EmptyBounds()
	}
	c := m.Chunks[chunk]
	if c.PartIndex < 0 || int(c.PartIndex) >= len(m.Parts) {
		return csgmath.EmptyBounds()
	}
	return m.Parts[c.PartIndex].Bounds.Translate(c.InstancedPositionOffset)
}

// Children returns the indices of a chunk's children.
func (m *Mesh) Children(chunk int) []int {
	var out []int
	for i, c := range m.Chunks {
		if c.ParentIndex == int32(chunk) {
			out = append(out, i)
		}
	}
	return out
}

// BuildMeshBounds recomputes the bounds of a part.
func (m *Mesh) BuildMeshBounds(part int) {
	if part >= 0 && part < len(m.Parts) {
		m.Parts[part].BuildBounds()
	}
}

// AddSubmesh appends submesh data and returns its index.
func (m *Mesh) AddSubmesh(d SubmeshData) int {
	m.SubmeshData = append(m.SubmeshData, d)
	return len(m.SubmeshData) - 1
}

// AddMaterialFrame appends a default frame and returns its index.
func (m *Mesh) AddMaterialFrame() int {
	m.MaterialFrames = append(m.MaterialFrames, NewMaterialFrame())
	return len(m.MaterialFrames) - 1
}

// Clear removes chunks and the parts they use. With keepRoot, root chunks
// and their parts survive along with the submesh data.
func (m *Mesh) Clear(keepRoot bool) {
	newPartCount := 0
	for i := len(m.Chunks) - 1; i >= 0; i-- {
		if !keepRoot || !m.Chunks[i].IsRoot() {
			m.RemoveChunk(i)
			continue
		}
		if p := int(m.Chunks[i].PartIndex) + 1; p > newPartCount {
			newPartCount = p
		}
	}
	for len(m.Parts) > newPartCount {
		m.RemovePart(len(m.Parts) - 1)
	}
	m.MaterialFrames = nil
	if !keepRoot {
		m.SubmeshData = nil
		m.RootSubmeshCount = 0
	}
}

// SortChunks reorders chunks breadth first, so every parent precedes its
// children and siblings stay in their original relative order. It returns
// remap, where remap[old] is a chunk's new index.
func (m *Mesh) SortChunks() []int {
	n := len(m.Chunks)
	remap := make([]int, n)
	if n <= 1 {
		for i := range remap {
			remap[i] = i
		}
		return remap
	}

	type indexed struct {
		chunk  *Chunk
		index  int
		parent int32
	}
	entries := make([]indexed, n)
	for i, c := range m.Chunks {
		entries[i] = indexed{c, i, c.ParentIndex}
	}
	children := lo.GroupBy(entries, func(x indexed) int32 { return x.parent })

	order := make([]indexed, 0, n)
	order = append(order, children[-1]...)
	for next := 0; next < len(order); next++ {
		order = append(order, children[int32(order[next].index)]...)
	}
	// Chunks on parent cycles are unreachable from the roots; keep them at
	// the end rather than losing them.
	if len(order) < n {
		seen := lo.SliceToMap(order, func(x indexed) (int, bool) { return x.index, true })
		for _, x := range entries {
			if !seen[x.index] {
				order = append(order, x)
			}
		}
	}

	for i, x := range order {
		m.Chunks[i] = x.chunk
		remap[x.index] = i
	}
	for _, c := range m.Chunks {
		if c.ParentIndex >= 0 {
			c.ParentIndex = int32(remap[c.ParentIndex])
		}
	}
	return remap
}

// CreatePartSurfaceNormals sets each part's SurfaceNormal to the area
// weighted normal of its original surface triangles.
func (m *Mesh) CreatePartSurfaceNormals() {
	for _, p := range m.Parts {
		var n mgl64.Vec3
		for i := range p.Mesh {
			if p.Mesh[i].ExtraDataIndex == mesh.NoExtraData {
				n = n.Add(p.Mesh[i].Normal())
			}
		}
		p.SurfaceNormal = csgmath.Normalized(n)
	}
}

// ReplaceInteriorSubmeshes sets the submesh of every triangle of a part
// created with one of the given material frames.
func (m *Mesh) ReplaceInteriorSubmeshes(part int, frames []uint32, submesh int32) {
	if part < 0 || part >= len(m.Parts) {
		return
	}
	p := m.Parts[part]
	for i := range p.Mesh {
		if lo.Contains(frames, p.Mesh[i].ExtraDataIndex) {
			p.Mesh[i].SubmeshIndex = submesh
		}
	}
	p.MeshBSP.ReplaceInteriorSubmeshes(frames, submesh)
}

// Clone returns a deep copy of m.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		SubmeshData:      append([]SubmeshData(nil), m.SubmeshData...),
		MaterialFrames:   append([]MaterialFrame(nil), m.MaterialFrames...),
		RootSubmeshCount: m.RootSubmeshCount,
	}
	for _, p := range m.Parts {
		np := &Part{
			Mesh:          append([]mesh.RenderTriangle(nil), p.Mesh...),
			Bounds:        p.Bounds,
			MeshBSP:       p.MeshBSP.Clone(),
			SurfaceNormal: p.SurfaceNormal,
			Flags:         p.Flags,
		}
		np.Collision = lo.Map(p.Collision, func(h *hull.ConvexHull, _ int) *hull.ConvexHull { return h.Clone() })
		out.Parts = append(out.Parts, np)
	}
	for _, c := range m.Chunks {
		nc := *c
		out.Chunks = append(out.Chunks, &nc)
	}
	return out
}

// Set replaces m with a deep copy of other.
func (m *Mesh) Set(other *Mesh) {
	*m = *other.Clone()
}
