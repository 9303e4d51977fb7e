package ehm

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/hull"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/chazu/shatter/pkg/progress"
	"github.com/go-gl/mathgl/mgl64"
)

// MeshMode selects how part BSPs treat meshes that may be open.
type MeshMode int

const (
	// MeshModeAutomatic builds from the mesh and falls back to a hull when the
	// result does not enclose a finite volume.
	MeshModeAutomatic MeshMode = iota
	// MeshModeClosed always builds from the mesh.
	MeshModeClosed
	// MeshOpen always builds from a hull of the mesh.
	MeshModeOpen
)

func (m MeshMode) String() string {
	switch m {
	case MeshModeAutomatic:
		return "automatic"
	case MeshModeClosed:
		return "closed"
	case MeshModeOpen:
		return "open"
	}
	return fmt.Sprintf("MeshMode(%d)", int(m))
}

// BSPSettings are the inputs of part BSP construction.
type BSPSettings struct {
	Seed          int64
	MicrogridSize uint32
	Mode          MeshMode
	Tolerances    bsp.Tolerances
	Params        bsp.BuildParameters
	Logf          func(format string, args ...any)
}

// DefaultBSPSettings returns settings with default tolerances and build
// parameters.
func DefaultBSPSettings() BSPSettings {
	return BSPSettings{
		MicrogridSize: 65536,
		Tolerances:    bsp.DefaultTolerances(),
		Params:        bsp.DefaultBuildParameters(),
	}
}

// CalculatePartBSP rebuilds the BSP of a part from its mesh. An open mesh
// gets the BSP of a slightly padded wrapping hull instead, with the mesh
// kept as incidental triangles, and the part is flagged MeshOpen.
func (m *Mesh) CalculatePartBSP(ctx context.Context, part int, s BSPSettings, listener progress.Listener) error {
	if part < 0 || part >= len(m.Parts) {
		return fmt.Errorf("ehm: part bsp %d: %w", part, ErrIndex)
	}
	p := m.Parts[part]
	p.Flags &^= MeshOpen

	b := bsp.New()
	if s.Logf != nil {
		b.SetLogger(s.Logf)
	}
	b.SetTolerances(s.Tolerances)

	params := s.Params
	params.Rand = rand.New(rand.NewSource(s.Seed))
	params.SnapGridSize = s.MicrogridSize

	open := s.Mode == MeshModeOpen
	if !open {
		if err := b.FromMesh(ctx, p.Mesh, params, listener); err != nil {
			return fmt.Errorf("ehm: part bsp %d: %w", part, err)
		}
		if s.Mode == MeshModeAutomatic {
			_, _, bounded, err := b.SurfaceAreaAndVolume(true, bsp.OpNOP)
			if err != nil {
				return fmt.Errorf("ehm: part bsp %d: %w", part, err)
			}
			open = !bounded
		}
	}

	if open {
		p.Flags |= MeshOpen
		bounds := mesh.MeshBounds(p.Mesh)
		extents := bounds.Extents()
		size := extents.Len()

		wrap := hull.DefaultCollisionVolumeDesc()
		wrap.HullMethod = hull.WrapGraphicsMesh
		hulls := hull.Build(p.Mesh, wrap, 0.01*size)
		var planes []csgmath.Plane
		for _, h := range hulls {
			for _, pl := range h.Planes {
				pl[3] -= 0.001 * size
				planes = append(planes, pl)
			}
		}

		var it mgl64.Mat4
		if size > 0 {
			scale := mgl64.Vec3{1 / nonZero(extents[0]), 1 / nonZero(extents[1]), 1 / nonZero(extents[2])}
			center := bounds.Center()
			it = mgl64.Scale3D(scale[0], scale[1], scale[2])
			it.SetCol(3, mgl64.Vec4{-scale[0] * center[0], -scale[1] * center[1], -scale[2] * center[2], 1})
		}
		b.FromConvexPolyhedron(planes, it, p.Mesh)
	}

	p.MeshBSP = b
	return nil
}

func nonZero(x float64) float64 {
	if x < csgmath.EpsReal {
		return 1
	}
	return x
}

// CalculateMeshBSP rebuilds the BSP of every part, checking ctx between
// parts.
func (m *Mesh) CalculateMeshBSP(ctx context.Context, s BSPSettings, listener progress.Listener) error {
	h := progress.NewHierarchical(len(m.Parts), listener)
	for i := range m.Parts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ehm: mesh bsp: %w", err)
		}
		h.SetSubtaskWork(1, "part bsp")
		if err := m.CalculatePartBSP(ctx, i, s, h); err != nil {
			return err
		}
		h.CompleteSubtask()
	}
	return nil
}
