package ehm_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chazu/shatter/pkg/binio"
	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// addBoxChunk adds a chunk whose part is the given box.
func addBoxChunk(m *ehm.Mesh, parent int, min, max mgl64.Vec3, flags ehm.PrivateFlags) int {
	part := m.AddPart()
	m.Parts[part].Mesh = mesh.Box(min, max)
	m.BuildMeshBounds(part)
	c := m.AddChunk()
	m.Chunks[c].ParentIndex = int32(parent)
	m.Chunks[c].PartIndex = int32(part)
	m.Chunks[c].PrivateFlags = flags
	return c
}

func totalVolume(hulls []*hull.ConvexHull) float64 {
	v := 0.0
	for _, h := range hulls {
		v += h.Volume
	}
	return v
}

func TestChunkBookkeeping(t *testing.T) {
	m := ehm.New()
	root := addBoxChunk(m, -1, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, ehm.Root)
	a := addBoxChunk(m, root, mgl64.Vec3{}, mgl64.Vec3{0.5, 1, 1}, 0)
	addBoxChunk(m, a, mgl64.Vec3{}, mgl64.Vec3{0.5, 0.5, 1}, 0)

	if got := m.MaxDepth(); got != 2 {
		t.Fatalf("MaxDepth = %d, want 2", got)
	}
	if got := m.Children(root); len(got) != 1 || got[0] != a {
		t.Fatalf("Children(root) = %v", got)
	}
	if m.Chunks[0].UniqueID == m.Chunks[1].UniqueID {
		t.Errorf("chunks share a unique id")
	}

	m.RemoveChunk(a)
	if m.ChunkCount() != 2 {
		t.Fatalf("ChunkCount = %d, want 2", m.ChunkCount())
	}
	if got := m.Chunks[1].ParentIndex; got != -1 {
		t.Errorf("orphan parent = %d, want -1", got)
	}

	m.RemovePart(0)
	if got := m.Chunks[0].PartIndex; got != -1 {
		t.Errorf("removed part index = %d, want -1", got)
	}
	if got := m.Chunks[1].PartIndex; got != 1 {
		t.Errorf("shifted part index = %d, want 1", got)
	}

	if got := ehm.New().MaxDepth(); got != -1 {
		t.Errorf("empty MaxDepth = %d, want -1", got)
	}
}

func TestChunkIDs(t *testing.T) {
	build := func() *ehm.Mesh {
		m := ehm.New()
		for i := 0; i < 4; i++ {
			m.AddChunk()
		}
		return m
	}
	a, b := build(), build()
	seen := map[string]bool{}
	for i := range a.Chunks {
		if a.Chunks[i].UniqueID != b.Chunks[i].UniqueID {
			t.Errorf("chunk %d: %v and %v from the same construction", i, a.Chunks[i].UniqueID, b.Chunks[i].UniqueID)
		}
		seen[a.Chunks[i].UniqueID.String()] = true
	}
	if len(seen) != 4 {
		t.Fatalf("%d distinct ids for 4 chunks", len(seen))
	}

	// A restored mesh restarts its serial numbers but must not reuse the
	// ids it already holds.
	snap, err := a.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	got := ehm.New()
	if err := got.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	c := got.AddChunk()
	if seen[got.Chunks[c].UniqueID.String()] {
		t.Errorf("restored mesh reused id %v", got.Chunks[c].UniqueID)
	}
}

func TestSortChunks(t *testing.T) {
	m := ehm.New()
	for i := 0; i < 6; i++ {
		m.AddChunk()
	}
	// 5 -> 3 -> 0, 4 -> 0, 1 -> 5, 2 root
	parents := []int32{-1, 5, -1, 0, 0, 3}
	for i, p := range parents {
		m.Chunks[i].ParentIndex = p
	}
	ids := make([]string, len(m.Chunks))
	for i, c := range m.Chunks {
		ids[i] = c.UniqueID.String()
	}

	remap := m.SortChunks()

	for i, c := range m.Chunks {
		if c.ParentIndex >= int32(i) {
			t.Errorf("chunk %d has parent %d", i, c.ParentIndex)
		}
	}
	for old, now := range remap {
		if got := m.Chunks[now].UniqueID.String(); got != ids[old] {
			t.Errorf("remap[%d] = %d points at the wrong chunk", old, now)
		}
	}
	want := []int32{-1, -1, 0, 0, 2, 4}
	for i, c := range m.Chunks {
		if c.ParentIndex != want[i] {
			t.Errorf("sorted parent[%d] = %d, want %d", i, c.ParentIndex, want[i])
		}
	}
}

func TestClear(t *testing.T) {
	m := ehm.New()
	root := addBoxChunk(m, -1, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, ehm.Root|ehm.RootLeaf)
	addBoxChunk(m, root, mgl64.Vec3{}, mgl64.Vec3{0.5, 1, 1}, 0)
	m.AddSubmesh(ehm.SubmeshData{MaterialName: "stone"})
	m.AddMaterialFrame()

	m.Clear(true)
	if m.ChunkCount() != 1 || m.PartCount() != 1 {
		t.Fatalf("Clear(true): %d chunks, %d parts", m.ChunkCount(), m.PartCount())
	}
	if len(m.SubmeshData) != 1 || len(m.MaterialFrames) != 0 {
		t.Errorf("Clear(true): %d submeshes, %d frames", len(m.SubmeshData), len(m.MaterialFrames))
	}

	m.Clear(false)
	if m.ChunkCount() != 0 || m.PartCount() != 0 || len(m.SubmeshData) != 0 {
		t.Errorf("Clear(false) left %d chunks, %d parts", m.ChunkCount(), m.PartCount())
	}
}

func TestCreatePartSurfaceNormals(t *testing.T) {
	m := ehm.New()
	p := m.AddPart()
	tris := mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})
	// Only the top face is original surface.
	for i := range tris {
		if tris[i].Normal()[2] < 0.5 {
			tris[i].ExtraDataIndex = 0
		}
	}
	m.Parts[p].Mesh = tris
	m.CreatePartSurfaceNormals()
	if got := m.Parts[p].SurfaceNormal; got.Sub(mgl64.Vec3{0, 0, 1}).Len() > 1e-12 {
		t.Errorf("SurfaceNormal = %v, want +z", got)
	}
}

func TestMaterialFrame(t *testing.T) {
	tests := []struct {
		name    string
		plane   csgmath.Plane
		tangent mgl64.Vec3
		angle   float64
		wantU   mgl64.Vec3
	}{
		{"tangent", csgmath.NewPlane(mgl64.Vec3{0, 0, 1}, -2), mgl64.Vec3{1, 0, 0}, 0, mgl64.Vec3{1, 0, 0}},
		{"rotated", csgmath.NewPlane(mgl64.Vec3{0, 0, 1}, -2), mgl64.Vec3{1, 0, 0}, 90, mgl64.Vec3{0, 1, 0}},
		{"parallel tangent", csgmath.NewPlane(mgl64.Vec3{0, 0, 2}, -4), mgl64.Vec3{0, 0, 1}, 0, mgl64.Vec3{1, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := ehm.DefaultFractureMaterialDesc()
			desc.Tangent = tt.tangent
			desc.UAngle = tt.angle
			f := ehm.NewMaterialFrame()
			f.BuildCoordinateSystemFromMaterialDesc(desc, tt.plane)

			cs := f.CoordinateSystem
			u := cs.Col(0).Vec3()
			z := cs.Col(2).Vec3()
			origin := cs.Col(3).Vec3()
			if u.Sub(tt.wantU).Len() > 1e-9 {
				t.Errorf("u = %v, want %v", u, tt.wantU)
			}
			if z.Sub(mgl64.Vec3{0, 0, 1}).Len() > 1e-9 {
				t.Errorf("z = %v", z)
			}
			if origin.Sub(mgl64.Vec3{0, 0, 2}).Len() > 1e-9 {
				t.Errorf("origin = %v, want (0,0,2)", origin)
			}
			if d := csgmath.Det3(cs); !near(d, 1, 1e-9) {
				t.Errorf("det = %v, want 1", d)
			}
		})
	}
}

func TestCalculatePartBSP(t *testing.T) {
	ctx := context.Background()
	openBox := mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})[:10]

	tests := []struct {
		name     string
		tris     []mesh.RenderTriangle
		mode     ehm.MeshMode
		wantOpen bool
		minVol   float64
		maxVol   float64
	}{
		{"closed", mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}), ehm.MeshModeAutomatic, false, 1 - 1e-6, 1 + 1e-6},
		{"forced open", mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}), ehm.MeshModeOpen, true, 1, 1.1},
		{"open mesh", openBox, ehm.MeshModeOpen, true, 1, 1.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ehm.New()
			p := m.AddPart()
			m.Parts[p].Mesh = tt.tris
			s := ehm.DefaultBSPSettings()
			s.Mode = tt.mode
			if err := m.CalculatePartBSP(ctx, p, s, nil); err != nil {
				t.Fatalf("CalculatePartBSP: %v", err)
			}
			part := m.Parts[p]
			if got := part.Flags&ehm.MeshOpen != 0; got != tt.wantOpen {
				t.Errorf("MeshOpen = %v, want %v", got, tt.wantOpen)
			}
			_, vol, bounded, err := part.MeshBSP.SurfaceAreaAndVolume(true, bsp.OpNOP)
			if err != nil || !bounded {
				t.Fatalf("SurfaceAreaAndVolume: bounded %v, err %v", bounded, err)
			}
			if vol < tt.minVol || vol > tt.maxVol {
				t.Errorf("volume = %v, want in [%v, %v]", vol, tt.minVol, tt.maxVol)
			}
			inside, err := part.MeshBSP.PointInside(mgl64.Vec3{0.5, 0.5, 0.5}, bsp.OpNOP)
			if err != nil || !inside {
				t.Errorf("center inside = %v, err %v", inside, err)
			}
		})
	}

	m := ehm.New()
	if err := m.CalculatePartBSP(ctx, 3, ehm.DefaultBSPSettings(), nil); !errors.Is(err, ehm.ErrIndex) {
		t.Errorf("bad part: err = %v, want ErrIndex", err)
	}
}

func TestCalculateMeshBSPCanceled(t *testing.T) {
	m := ehm.New()
	addBoxChunk(m, -1, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, ehm.Root|ehm.RootLeaf)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.CalculateMeshBSP(ctx, ehm.DefaultBSPSettings(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func overlappingPair(t *testing.T) *ehm.Mesh {
	t.Helper()
	m := ehm.New()
	root := addBoxChunk(m, -1, mgl64.Vec3{}, mgl64.Vec3{1.9, 1, 1}, ehm.Root)
	addBoxChunk(m, root, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, ehm.Root|ehm.RootLeaf)
	addBoxChunk(m, root, mgl64.Vec3{0.9, 0, 0}, mgl64.Vec3{1.9, 1, 1}, ehm.Root|ehm.RootLeaf)
	return m
}

func TestBuildCollisionGeometryForRootChunkParts(t *testing.T) {
	desc := hull.DefaultCollisionDesc()

	t.Run("trimmed", func(t *testing.T) {
		m := overlappingPair(t)
		m.BuildCollisionGeometryForRootChunkParts(desc, false)
		for _, part := range []int{1, 2} {
			hulls := m.Parts[part].Collision
			if len(hulls) != 1 {
				t.Fatalf("part %d: %d hulls, want 1", part, len(hulls))
			}
			if !near(hulls[0].Volume, 0.95, 1e-6) {
				t.Errorf("part %d: volume %v, want 0.95", part, hulls[0].Volume)
			}
		}
		if got := m.Parts[1].Collision[0].Bounds.Max[0]; !near(got, 0.95, 1e-6) {
			t.Errorf("part 1 trimmed to x = %v, want 0.95", got)
		}
		if len(m.Parts[0].Collision) != 1 || !near(m.Parts[0].Collision[0].Volume, 1.9, 1e-6) {
			t.Errorf("root part hulls: %d", len(m.Parts[0].Collision))
		}
	})

	t.Run("untrimmed", func(t *testing.T) {
		m := overlappingPair(t)
		d := desc
		d.MaximumTrimming = 0
		m.BuildCollisionGeometryForRootChunkParts(d, false)
		if v := totalVolume(m.Parts[1].Collision); !near(v, 1, 1e-6) {
			t.Errorf("part 1 volume %v, want 1", v)
		}
	})

	t.Run("aggregated", func(t *testing.T) {
		m := overlappingPair(t)
		m.BuildCollisionGeometryForRootChunkParts(desc, true)
		if got := len(m.Parts[0].Collision); got != 2 {
			t.Fatalf("root part: %d hulls, want 2", got)
		}
		if got := m.HullCount(); got != 4 {
			t.Errorf("HullCount = %d, want 4", got)
		}
	})
}

func TestTrimChunkHullsLimit(t *testing.T) {
	m := overlappingPair(t)
	for _, part := range []int{1, 2} {
		m.BuildCollisionGeometryForPart(part, hull.DefaultCollisionVolumeDesc())
	}
	// Deep overlap: the midplane would cut at 0.95 but each hull may only
	// lose 10% of its width.
	m.Chunks[2].InstancedPositionOffset = mgl64.Vec3{-0.6, 0, 0}
	m.TrimChunkHulls([]int{1, 2}, 0.1)
	if got := m.Parts[1].Collision[0].Bounds.Max[0]; !near(got, 0.9, 1e-6) {
		t.Errorf("part 1 trimmed to x = %v, want 0.9", got)
	}
	if got := m.Parts[2].Collision[0].Bounds.Min[0]; !near(got, 1.0, 1e-6) {
		t.Errorf("part 2 trimmed to x = %v, want 1.0", got)
	}
}

func TestReduceHulls(t *testing.T) {
	m := ehm.New()
	c := m.AddChunk()
	p := m.AddPart()
	m.Chunks[c].PartIndex = int32(p)
	h := hull.New()
	var pts []mgl64.Vec3
	for i := 0; i < 8; i++ {
		a := float64(i) * math.Pi / 4
		pts = append(pts, mgl64.Vec3{math.Cos(a), math.Sin(a), 0}, mgl64.Vec3{math.Cos(a), math.Sin(a), 1})
	}
	h.BuildFromPoints(pts)
	m.Parts[p].Collision = []*hull.ConvexHull{h}

	desc := hull.DefaultCollisionDesc()
	desc.VolumeDescs = []hull.CollisionVolumeDesc{hull.DefaultCollisionVolumeDesc()}
	desc.VolumeDescs[0].MaxVertexCount = 8
	m.ReduceHulls(desc, false)
	if got := m.Parts[p].Collision[0].VertexCount(); got > 8 {
		t.Errorf("reduced hull has %d vertices", got)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := overlappingPair(t)
	m.AddSubmesh(ehm.SubmeshData{MaterialName: "stone", VertexFormat: ehm.VertexFormat{HasStaticPositions: true, UVCount: 1}})
	m.RootSubmeshCount = 1
	f := m.AddMaterialFrame()
	m.MaterialFrames[f].FractureMethod = ehm.MethodVoronoi
	m.MaterialFrames[f].SliceDepth = 2
	m.Chunks[2].Flags = ehm.ChunkIsInstanced
	m.Chunks[2].InstancedUVOffset = mgl64.Vec2{0.25, 0.5}
	if err := m.CalculateMeshBSP(ctx, ehm.DefaultBSPSettings(), nil); err != nil {
		t.Fatalf("CalculateMeshBSP: %v", err)
	}
	m.BuildCollisionGeometryForRootChunkParts(hull.DefaultCollisionDesc(), false)

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	got := ehm.New()
	if err := got.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got.ChunkCount() != 3 || got.PartCount() != 3 {
		t.Fatalf("restored %d chunks, %d parts", got.ChunkCount(), got.PartCount())
	}
	for i := range m.Chunks {
		if *got.Chunks[i] != *m.Chunks[i] {
			t.Errorf("chunk %d = %+v, want %+v", i, *got.Chunks[i], *m.Chunks[i])
		}
	}
	if got.SubmeshData[0] != m.SubmeshData[0] || got.RootSubmeshCount != 1 {
		t.Errorf("submesh data = %+v", got.SubmeshData)
	}
	if got.MaterialFrames[0] != m.MaterialFrames[0] {
		t.Errorf("frame = %+v", got.MaterialFrames[0])
	}
	_, vol, _, err := got.Parts[1].MeshBSP.SurfaceAreaAndVolume(true, bsp.OpNOP)
	if err != nil || !near(vol, 1, 1e-6) {
		t.Errorf("restored bsp volume = %v, err %v", vol, err)
	}
	if !near(totalVolume(got.Parts[1].Collision), totalVolume(m.Parts[1].Collision), 1e-12) {
		t.Errorf("restored hull volume differs")
	}

	again, err := got.Snapshot()
	if err != nil || !bytes.Equal(again, snap) {
		t.Errorf("second snapshot differs from the first")
	}
}

func TestDeserializeErrors(t *testing.T) {
	m := ehm.New()
	addBoxChunk(m, -1, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, ehm.Root)
	var buf bytes.Buffer
	if err := m.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	data := buf.Bytes()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"truncated", data[:len(data)/2], nil},
		{"version", append([]byte{9, 0, 0, 0}, data[4:]...), binio.ErrVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ehm.New()
			addBoxChunk(got, -1, mgl64.Vec3{}, mgl64.Vec3{2, 2, 2}, 0)
			err := got.Deserialize(bytes.NewReader(tt.data))
			if err == nil {
				t.Fatalf("Deserialize succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if got.ChunkCount() != 1 || got.Chunks[0].PrivateFlags != 0 {
				t.Errorf("receiver changed on error")
			}
		})
	}
}
