package fracture

import (
	"fmt"
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/chazu/shatter/pkg/noise"
)

// BuildFromTriangles replaces m with an unfractured hierarchy. partitions
// holds the end index, in tris, of each part's triangles; nil makes one
// part of everything. parents holds each part's parent part, or -1, and
// must list parents before their children; nil makes every part a root.
// Each part gets one root chunk. The BSPs are built later, by the first
// fracture.
func BuildFromTriangles(m *ehm.Mesh, tris []mesh.RenderTriangle, submeshData []ehm.SubmeshData, partitions, parents []int) error {
	if len(tris) == 0 {
		return ErrNoMesh
	}
	if partitions == nil {
		partitions = []int{len(tris)}
	}
	if parents != nil && len(parents) != len(partitions) {
		return fmt.Errorf("%w: %d parent indices for %d partitions", ErrInvalidDescriptor, len(parents), len(partitions))
	}
	start := 0
	for i, end := range partitions {
		if end <= start || end > len(tris) {
			return fmt.Errorf("%w: partition %d ends at %d", ErrInvalidDescriptor, i, end)
		}
		start = end
		if parents != nil && (parents[i] >= i || parents[i] < -1) {
			return fmt.Errorf("%w: part %d has parent %d", ErrInvalidDescriptor, i, parents[i])
		}
	}
	if start != len(tris) {
		return fmt.Errorf("%w: partitions cover %d of %d triangles", ErrInvalidDescriptor, start, len(tris))
	}
	for i := range tris {
		if s := tris[i].SubmeshIndex; s < 0 || int(s) >= len(submeshData) {
			return fmt.Errorf("%w: triangle %d uses submesh %d of %d", ErrInvalidDescriptor, i, s, len(submeshData))
		}
	}

	*m = ehm.Mesh{}
	m.SubmeshData = append(m.SubmeshData, submeshData...)
	m.RootSubmeshCount = len(submeshData)

	start = 0
	for i, end := range partitions {
		p := m.AddPart()
		part := m.Parts[p]
		part.Mesh = make([]mesh.RenderTriangle, end-start)
		copy(part.Mesh, tris[start:end])
		for j := range part.Mesh {
			part.Mesh[j].ExtraDataIndex = mesh.NoExtraData
		}
		m.BuildMeshBounds(p)
		start = end

		k := m.AddChunk()
		ch := m.Chunks[k]
		ch.PartIndex = int32(p)
		ch.PrivateFlags = ehm.Root
		if parents != nil {
			ch.ParentIndex = int32(parents[i])
		}
	}
	for i, ch := range m.Chunks {
		if len(m.Children(i)) == 0 {
			ch.PrivateFlags |= ehm.RootLeaf
		}
	}
	m.CreatePartSurfaceNormals()
	m.BuildCollisionGeometryForRootChunkParts(hull.DefaultCollisionDesc(), true)
	return nil
}

// BuildSliceMesh builds the surface that slicing along plane would cut
// with, sized to reference, for previews. The surface is always meshed as
// a grid so its noise is visible.
func (c *Context) BuildSliceMesh(reference []mesh.RenderTriangle, plane csgmath.Plane, p NoiseParameters, noiseType noise.Type, seed int64) (*IntersectMesh, error) {
	if len(reference) == 0 {
		return nil, ErrNoMesh
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if n := plane.Normal(); csgmath.NormalizeLen(&n) == 0 {
		return nil, fmt.Errorf("%w: zero slice plane normal", ErrInvalidDescriptor)
	}
	c.Reseed(seed)

	dims := mesh.MeshBounds(reference).Dimensions()
	em := ehm.New()
	fi := addFrame(em, ehm.DefaultFractureMaterialDesc(), plane, ehm.MethodSlice, int32(csgmath.MaxAbsIndex(plane.Normal())), 1)
	var im IntersectMesh
	c.buildIntersectMesh(&im, plane, em, fi, gridParameters{
		level0:    reference,
		sizeScale: math.Max(dims[0], math.Max(dims[1], dims[2])),
		noise:     p,
		noiseType: noiseType,
		forceGrid: true,
	})
	return &im, nil
}
