package bsp

import (
	"fmt"
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/interp"
	"github.com/go-gl/mathgl/mgl64"
)

const float32Eps = 1.1920929e-07

// BSP is a solid described by a binary space partition tree, together
// with the triangles that lie on its splitting planes. Geometry is held in
// an internal "BSP space" reached from mesh space by an internal
// transform; every public method takes and returns mesh-space values.
//
// A BSP is not safe for concurrent use.
type BSP struct {
	tol Tolerances

	nodes []node
	free  []int32
	root  int32

	mesh   []csgmath.Triangle
	frames []interp.Interpolator
	planes []csgmath.Plane

	meshSize   float64
	meshBounds csgmath.Bounds

	internalTransform        mgl64.Mat4
	internalTransformInverse mgl64.Mat4

	incidentalMesh bool

	combined                bool
	combiningMeshSize       float64
	combiningIncidentalMesh bool

	logf func(format string, args ...any)
}

// New returns an all-space BSP with default tolerances and identity
// internal transform.
func New() *BSP {
	b := &BSP{
		tol:                      DefaultTolerances(),
		internalTransform:        mgl64.Ident4(),
		internalTransformInverse: mgl64.Ident4(),
		meshSize:                 1,
		combiningMeshSize:        1,
	}
	b.clear()
	return b
}

// NewWithTransform returns an all-space BSP whose internal transform is
// it. Cutting solids start from one of these so they combine with a
// source BSP sharing the same transform.
func NewWithTransform(it mgl64.Mat4) *BSP {
	b := New()
	if !csgmath.IsZeroMat(it) {
		b.internalTransform = it
		b.internalTransformInverse = csgmath.Inverse34(it)
	}
	return b
}

// SetLogger routes warnings to logf. A nil logf silences them.
func (b *BSP) SetLogger(logf func(format string, args ...any)) {
	b.logf = logf
}

func (b *BSP) warnf(format string, args ...any) {
	if b.logf != nil {
		b.logf(format, args...)
	}
}

func (b *BSP) clear() {
	b.nodes = b.nodes[:0]
	b.free = b.free[:0]
	b.root = b.newNode()
	b.mesh = nil
	b.frames = nil
	b.planes = nil
	b.meshBounds = csgmath.EmptyBounds()
	b.incidentalMesh = false
	b.combined = false
	b.combiningMeshSize = 1
	b.combiningIncidentalMesh = false
}

// Tolerances returns the tolerances in use.
func (b *BSP) Tolerances() Tolerances { return b.tol }

// SetTolerances replaces the tolerances used by later operations.
func (b *BSP) SetTolerances(t Tolerances) { b.tol = t }

// InternalTransform returns the mesh-to-BSP-space transform.
func (b *BSP) InternalTransform() mgl64.Mat4 { return b.internalTransform }

// MeshSize returns the characteristic size of the mesh in BSP space.
func (b *BSP) MeshSize() float64 { return b.meshSize }

// TriangleCount returns the number of stored mesh triangles.
func (b *BSP) TriangleCount() int { return len(b.mesh) }

// PlaneCount returns the number of stored planes.
func (b *BSP) PlaneCount() int { return len(b.planes) }

// LeafCount returns the number of inside leaves and of all leaves.
func (b *BSP) LeafCount() (inside, total int) { return b.countLeaves() }

// IsCombined reports whether b awaits an Op.
func (b *BSP) IsCombined() bool { return b.combined }

// Bounds returns the mesh-space bounds of the stored triangles.
func (b *BSP) Bounds() csgmath.Bounds {
	out := csgmath.EmptyBounds()
	if b.meshBounds.IsEmpty() {
		return out
	}
	for i := 0; i < 8; i++ {
		c := mgl64.Vec3{b.meshBounds.Min[0], b.meshBounds.Min[1], b.meshBounds.Min[2]}
		for k := 0; k < 3; k++ {
			if i&(1<<k) != 0 {
				c[k] = b.meshBounds.Max[k]
			}
		}
		out.Include(csgmath.TransformPos(b.internalTransformInverse, c))
	}
	return out
}

// Type classifies b.
func (b *BSP) Type() Type {
	if b.combined {
		return Combined
	}
	if !b.isLeaf(b.root) {
		return Nontrivial
	}
	if b.nodes[b.root].region.Side == 1 {
		return AllSpace
	}
	return EmptySet
}

// String summarizes the tree for debugging.
func (b *BSP) String() string {
	inside, total := b.countLeaves()
	return fmt.Sprintf("BSP{%s leaves=%d/%d planes=%d triangles=%d size=%.4g}",
		b.Type(), inside, total, len(b.planes), len(b.mesh), b.meshSize)
}

// Clone returns a deep copy of b.
func (b *BSP) Clone() *BSP {
	c := &BSP{}
	c.copyFrom(b)
	return c
}

func (b *BSP) copyFrom(o *BSP) {
	if b == o {
		return
	}
	b.tol = o.tol
	b.nodes = append(b.nodes[:0], o.nodes...)
	b.free = append(b.free[:0], o.free...)
	b.root = o.root
	b.mesh = append([]csgmath.Triangle(nil), o.mesh...)
	b.frames = append([]interp.Interpolator(nil), o.frames...)
	b.planes = append([]csgmath.Plane(nil), o.planes...)
	b.meshSize = o.meshSize
	b.meshBounds = o.meshBounds
	b.internalTransform = o.internalTransform
	b.internalTransformInverse = o.internalTransformInverse
	b.incidentalMesh = o.incidentalMesh
	b.combined = o.combined
	b.combiningMeshSize = o.combiningMeshSize
	b.combiningIncidentalMesh = o.combiningIncidentalMesh
	if b.logf == nil {
		b.logf = o.logf
	}
}

// Copy makes b a copy of src.
func (b *BSP) Copy(src *BSP) {
	b.CopyTransformed(src, mgl64.Ident4(), mgl64.Mat4{})
}

// CopyTransformed makes b a copy of src with its solid moved by the
// mesh-space transform tm. A non-zero internalTransform replaces the
// internal transform; the zero matrix keeps src's.
func (b *BSP) CopyTransformed(src *BSP, tm, internalTransform mgl64.Mat4) {
	b.copyFrom(src)
	if !csgmath.IsZeroMat(internalTransform) {
		b.internalTransform = internalTransform
	}
	netTM := b.internalTransform.Mul4(tm).Mul4(b.internalTransformInverse)
	if !csgmath.MatApproxEqual(netTM, mgl64.Ident4(), 10*float32Eps) {
		b.transform(netTM, tm, true)
	}
	b.internalTransformInverse = csgmath.Inverse34(b.internalTransform)
}

// Transform moves the solid by the mesh-space transform tm.
func (b *BSP) Transform(tm mgl64.Mat4) {
	b.CopyTransformed(b, tm, mgl64.Mat4{})
}

// transform maps BSP-space data through tm. Frames live in mesh space and
// are mapped through frameTM when transformFrames is set.
func (b *BSP) transform(tm, frameTM mgl64.Mat4, transformFrames bool) {
	cof := csgmath.Cof34(tm)
	det := cof.At(3, 3)
	mirror := det < 0
	var frameInvT mgl64.Mat4
	if transformFrames {
		frameInvT = csgmath.Inverse34(frameTM).Transpose()
	}
	for i := range b.mesh {
		t := &b.mesh[i]
		for v := range t.Vertices {
			t.Vertices[v] = csgmath.TransformPos(tm, t.Vertices[v])
		}
		if mirror {
			t.Vertices[1], t.Vertices[2] = t.Vertices[2], t.Vertices[1]
		}
		t.CalculateQuantities()
		if transformFrames {
			b.frames[i] = b.frames[i].Transform(frameTM, frameInvT)
		}
	}
	for i := range b.planes {
		b.planes[i] = csgmath.TransformPlane(cof, b.planes[i])
		if mirror {
			b.planes[i] = b.planes[i].Neg()
		}
	}
	b.walk(b.root, func(n int32) {
		if !b.isLeaf(n) {
			s := b.branch(n)
			s.TotalTriangleArea *= b.planes[s.PlaneIndex].Normal().Len()
		}
	})
	for i := range b.planes {
		b.planes[i].Normalize()
	}
	b.meshBounds = csgmath.EmptyBounds()
	for i := range b.mesh {
		for _, v := range b.mesh[i].Vertices {
			b.meshBounds.Include(v)
		}
	}
	scale := math.Cbrt(math.Abs(det))
	b.meshSize *= scale
	b.combiningMeshSize *= scale
}

// Complement swaps inside and outside.
func (b *BSP) Complement() error {
	if b.combined {
		return ErrCombined
	}
	b.leaves(func(n int32) {
		r := b.leaf(n)
		r.Side ^= 1
	})
	return nil
}

// DeleteTriangles drops the stored mesh. The tree still answers point and
// volume queries but can no longer produce a mesh.
func (b *BSP) DeleteTriangles() {
	b.mesh = nil
	b.frames = nil
	b.walk(b.root, func(n int32) {
		if !b.isLeaf(n) {
			s := b.branch(n)
			s.TriangleStart, s.TriangleStop = 0, 0
			s.TotalTriangleArea = 0
		}
	})
}

// ReplaceInteriorSubmeshes sets the submesh of every triangle whose
// extra-data index appears in frameIndices.
func (b *BSP) ReplaceInteriorSubmeshes(frameIndices []uint32, submesh int32) {
	for i := range b.mesh {
		t := &b.mesh[i]
		for _, f := range frameIndices {
			if t.ExtraDataIndex == f {
				t.SubmeshIndex = submesh
			}
		}
	}
}

// Clean drops planes and triangles not referenced by any branch, then
// recomputes the bounds and mesh size.
func (b *BSP) Clean() {
	planeUsed := make([]bool, len(b.planes))
	triUsed := make([]bool, len(b.mesh))
	b.walk(b.root, func(n int32) {
		if b.isLeaf(n) {
			return
		}
		s := b.branch(n)
		planeUsed[s.PlaneIndex] = true
		for i := s.TriangleStart; i < s.TriangleStop; i++ {
			triUsed[i] = true
		}
	})
	if b.incidentalMesh || (b.combined && b.combiningIncidentalMesh) {
		for i := range triUsed {
			triUsed[i] = true
		}
	}

	planeMap := make([]uint32, len(b.planes))
	np := uint32(0)
	for i, used := range planeUsed {
		planeMap[i] = np
		if used {
			b.planes[np] = b.planes[i]
			np++
		}
	}
	b.planes = b.planes[:np]

	triMap := make([]uint32, len(b.mesh)+1)
	nt := uint32(0)
	b.meshBounds = csgmath.EmptyBounds()
	for i, used := range triUsed {
		triMap[i] = nt
		if used {
			b.mesh[nt] = b.mesh[i]
			b.frames[nt] = b.frames[i]
			for _, v := range b.mesh[nt].Vertices {
				b.meshBounds.Include(v)
			}
			nt++
		}
	}
	triMap[len(b.mesh)] = nt
	b.mesh = b.mesh[:nt]
	b.frames = b.frames[:nt]

	if nt > 0 {
		e := b.meshBounds.Extents()
		b.meshSize = math.Max(e[0], math.Max(e[1], e[2]))
	}

	b.walk(b.root, func(n int32) {
		if b.isLeaf(n) {
			return
		}
		s := b.branch(n)
		s.PlaneIndex = planeMap[s.PlaneIndex]
		count := s.TriangleStop - s.TriangleStart
		s.TriangleStart = triMap[s.TriangleStart]
		s.TriangleStop = s.TriangleStart + count
	})
}
