package ehm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/chazu/shatter/pkg/binio"
	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

const ehmVersion uint32 = 1

// Serialize writes m to w.
func (m *Mesh) Serialize(w io.Writer) error {
	bw := binio.NewWriter(w)
	m.WriteTo(bw)
	if err := bw.Err(); err != nil {
		return fmt.Errorf("ehm: serialize: %w", err)
	}
	return nil
}

// Snapshot returns the serialized form of m.
func (m *Mesh) Snapshot() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore replaces m with a mesh serialized by Snapshot.
func (m *Mesh) Restore(snapshot []byte) error {
	return m.Deserialize(bytes.NewReader(snapshot))
}

// WriteTo writes m into an enclosing stream.
func (m *Mesh) WriteTo(w *binio.Writer) {
	w.U32(ehmVersion)

	w.U32(uint32(len(m.Parts)))
	for _, p := range m.Parts {
		mesh.WriteTriangles(w, p.Mesh)
		w.Vec3(p.Bounds.Min)
		w.Vec3(p.Bounds.Max)
		w.U32(uint32(len(p.Collision)))
		for _, h := range p.Collision {
			h.WriteTo(w)
		}
		w.Bool(p.MeshBSP != nil)
		if p.MeshBSP != nil {
			p.MeshBSP.WriteTo(w)
		}
		w.Vec3(p.SurfaceNormal)
		w.U32(uint32(p.Flags))
	}

	w.U32(uint32(len(m.Chunks)))
	for _, c := range m.Chunks {
		w.I32(c.ParentIndex)
		w.I32(c.PartIndex)
		w.Vec3(c.InstancedPositionOffset)
		w.Vec2(c.InstancedUVOffset)
		w.U32(uint32(c.Flags))
		w.U32(uint32(c.PrivateFlags))
		w.Bytes(c.UniqueID[:])
	}

	w.U32(uint32(len(m.SubmeshData)))
	for i := range m.SubmeshData {
		d := &m.SubmeshData[i]
		w.String(d.MaterialName)
		w.U32(d.VertexFormat.Winding)
		for _, f := range d.VertexFormat.flags() {
			w.Bool(*f)
		}
		w.U32(d.VertexFormat.UVCount)
		w.U32(d.VertexFormat.BonesPerVertex)
	}

	w.U32(uint32(len(m.MaterialFrames)))
	for _, f := range m.MaterialFrames {
		w.Mat4(f.CoordinateSystem)
		w.Vec4(mgl64.Vec4(f.UVPlane))
		w.Vec2(f.UVScale)
		w.Vec2(f.UVOffset)
		w.U32(uint32(f.FractureMethod))
		w.I32(f.FractureIndex)
		w.U32(f.SliceDepth)
	}

	w.U32(uint32(m.RootSubmeshCount))
}

// Deserialize replaces m with a mesh read from r. On error m is unchanged.
func (m *Mesh) Deserialize(r io.Reader) error {
	br := binio.NewReader(r)
	nm := New()
	nm.ReadFrom(br)
	if err := br.Err(); err != nil {
		return fmt.Errorf("ehm: deserialize: %w", err)
	}
	*m = *nm
	return nil
}

// ReadFrom reads a mesh written by WriteTo. Errors are left on r.
func (m *Mesh) ReadFrom(r *binio.Reader) {
	version := r.U32()
	if r.Err() != nil {
		return
	}
	if version != ehmVersion {
		r.SetErr(fmt.Errorf("%w: ehm version %d", binio.ErrVersion, version))
		return
	}

	nParts := r.Count(binio.MaxCount)
	m.Parts = make([]*Part, 0, min(nParts, 1024))
	for i := 0; i < nParts && r.Err() == nil; i++ {
		p := newPart()
		p.Mesh = mesh.ReadTriangles(r)
		p.Bounds.Min = r.Vec3()
		p.Bounds.Max = r.Vec3()
		nHulls := r.Count(binio.MaxCount)
		for j := 0; j < nHulls && r.Err() == nil; j++ {
			h := hull.New()
			h.ReadFrom(r)
			p.Collision = append(p.Collision, h)
		}
		if r.Bool() {
			p.MeshBSP.ReadFrom(r)
		} else {
			p.MeshBSP = bsp.New()
		}
		p.SurfaceNormal = r.Vec3()
		p.Flags = PartFlags(r.U32())
		m.Parts = append(m.Parts, p)
	}

	nChunks := r.Count(binio.MaxCount)
	m.Chunks = make([]*Chunk, 0, min(nChunks, 1024))
	for i := 0; i < nChunks && r.Err() == nil; i++ {
		c := &Chunk{}
		c.ParentIndex = r.I32()
		c.PartIndex = r.I32()
		c.InstancedPositionOffset = r.Vec3()
		c.InstancedUVOffset = r.Vec2()
		c.Flags = ChunkFlags(r.U32())
		c.PrivateFlags = PrivateFlags(r.U32())
		id, err := uuid.FromBytes(r.Bytes())
		if err != nil && r.Err() == nil {
			r.SetErr(fmt.Errorf("ehm: chunk %d id: %w", i, err))
		}
		c.UniqueID = id
		m.Chunks = append(m.Chunks, c)
	}

	nSubmeshes := r.Count(binio.MaxCount)
	m.SubmeshData = make([]SubmeshData, 0, min(nSubmeshes, 1024))
	for i := 0; i < nSubmeshes && r.Err() == nil; i++ {
		var d SubmeshData
		d.MaterialName = r.String()
		d.VertexFormat.Winding = r.U32()
		for _, f := range d.VertexFormat.flags() {
			*f = r.Bool()
		}
		d.VertexFormat.UVCount = r.U32()
		d.VertexFormat.BonesPerVertex = r.U32()
		m.SubmeshData = append(m.SubmeshData, d)
	}

	nFrames := r.Count(binio.MaxCount)
	m.MaterialFrames = make([]MaterialFrame, 0, min(nFrames, 1024))
	for i := 0; i < nFrames && r.Err() == nil; i++ {
		var f MaterialFrame
		f.CoordinateSystem = r.Mat4()
		f.UVPlane = csgmath.Plane(r.Vec4())
		f.UVScale = r.Vec2()
		f.UVOffset = r.Vec2()
		f.FractureMethod = FractureMethod(r.U32())
		f.FractureIndex = r.I32()
		f.SliceDepth = r.U32()
		m.MaterialFrames = append(m.MaterialFrames, f)
	}

	m.RootSubmeshCount = int(r.U32())
	if r.Err() != nil {
		return
	}
	m.validateIndices(r)
}

func (m *Mesh) validateIndices(r *binio.Reader) {
	for i, c := range m.Chunks {
		if c.ParentIndex < -1 || int(c.ParentIndex) >= len(m.Chunks) || int(c.ParentIndex) == i {
			r.SetErr(fmt.Errorf("ehm: chunk %d parent %d: %w", i, c.ParentIndex, ErrIndex))
			return
		}
		if c.PartIndex < -1 || int(c.PartIndex) >= len(m.Parts) {
			r.SetErr(fmt.Errorf("ehm: chunk %d part %d: %w", i, c.PartIndex, ErrIndex))
			return
		}
	}
}
