package bsp

import (
	"fmt"
	"io"

	"github.com/chazu/shatter/pkg/binio"
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/interp"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	bspVersionInitial        uint32 = 1
	bspVersionIncidentalMesh uint32 = 2

	bspVersionCurrent = bspVersionIncidentalMesh
)

// Serialize writes b to w.
func (b *BSP) Serialize(w io.Writer) error {
	bw := binio.NewWriter(w)
	b.WriteTo(bw)
	if err := bw.Err(); err != nil {
		return fmt.Errorf("bsp: serialize: %w", err)
	}
	return nil
}

// WriteTo writes b into an enclosing stream.
func (b *BSP) WriteTo(w *binio.Writer) {
	w.U32(bspVersionCurrent)

	b.walk(b.root, func(n int32) {
		if b.isLeaf(n) {
			w.U32(uint32(leafNode))
			w.U32(b.nodes[n].region.Side)
			return
		}
		s := b.branch(n)
		w.U32(uint32(branchNode))
		w.U32(s.PlaneIndex)
		w.U32(s.TriangleStart)
		w.U32(s.TriangleStop)
		w.F64(s.TotalTriangleArea)
	})

	w.F64s(b.tol.Linear, b.tol.Angular, b.tol.Base, b.tol.Clip, b.tol.Cleaning)

	w.U32(uint32(len(b.mesh)))
	for i := range b.mesh {
		t := &b.mesh[i]
		for _, v := range t.Vertices {
			w.Vec3(v)
		}
		w.I32(t.SubmeshIndex)
		w.U32(t.SmoothingMask)
		w.U32(t.ExtraDataIndex)
		b.frames[i].Serialize(w)
	}

	w.F64(b.meshSize)
	w.Bool(b.incidentalMesh)
	w.Vec3(b.meshBounds.Min)
	w.Vec3(b.meshBounds.Max)
	w.Mat4(b.internalTransform)
	w.Mat4(b.internalTransformInverse)

	w.U32(uint32(len(b.planes)))
	for _, p := range b.planes {
		w.Vec4(mgl64.Vec4(p))
	}

	w.Bool(b.combined)
	w.F64(b.combiningMeshSize)
	w.Bool(b.combiningIncidentalMesh)
}

// Deserialize replaces b with a BSP read from r. On error b is unchanged.
func (b *BSP) Deserialize(r io.Reader) error {
	br := binio.NewReader(r)
	nb := New()
	nb.logf = b.logf
	nb.ReadFrom(br)
	if err := br.Err(); err != nil {
		return fmt.Errorf("bsp: deserialize: %w", err)
	}
	*b = *nb
	return nil
}

// ReadFrom reads a BSP written by WriteTo. Errors are left on r.
func (b *BSP) ReadFrom(r *binio.Reader) {
	version := r.U32()
	if r.Err() != nil {
		return
	}
	if version < bspVersionInitial || version > bspVersionCurrent {
		r.SetErr(fmt.Errorf("%w: bsp version %d", binio.ErrVersion, version))
		return
	}

	b.clear()
	b.readTree(r)

	b.tol.Linear = r.F64()
	b.tol.Angular = r.F64()
	b.tol.Base = r.F64()
	b.tol.Clip = r.F64()
	b.tol.Cleaning = r.F64()

	n := r.Count(binio.MaxCount)
	b.mesh = make([]csgmath.Triangle, n)
	b.frames = make([]interp.Interpolator, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		t := &b.mesh[i]
		for v := range t.Vertices {
			t.Vertices[v] = r.Vec3()
		}
		t.SubmeshIndex = r.I32()
		t.SmoothingMask = r.U32()
		t.ExtraDataIndex = r.U32()
		t.CalculateQuantities()
		b.frames[i].Deserialize(r)
	}

	b.meshSize = r.F64()
	if version >= bspVersionIncidentalMesh {
		b.incidentalMesh = r.Bool()
	}
	b.meshBounds.Min = r.Vec3()
	b.meshBounds.Max = r.Vec3()
	b.internalTransform = r.Mat4()
	b.internalTransformInverse = r.Mat4()

	np := r.Count(binio.MaxCount)
	b.planes = make([]csgmath.Plane, np)
	for i := 0; i < np && r.Err() == nil; i++ {
		b.planes[i] = csgmath.Plane(r.Vec4())
	}

	b.combined = r.Bool()
	b.combiningMeshSize = r.F64()
	b.combiningIncidentalMesh = r.Bool()
	if r.Err() != nil {
		return
	}
	b.validateIndices(r)
}

// readTree rebuilds the pre-order node stream into the arena.
func (b *BSP) readTree(r *binio.Reader) {
	type pending struct {
		parent int32
		index  int
	}
	stack := []pending{{parent: nilNode}}
	first := true
	for len(stack) > 0 && r.Err() == nil {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var n int32
		if first {
			n = b.root
			first = false
		} else {
			n = b.newNode()
			b.setChild(p.parent, p.index, n)
		}

		switch nodeKind(r.U32()) {
		case leafNode:
			b.nodes[n].region = Region{Side: r.U32()}
		case branchNode:
			s := Surface{
				PlaneIndex:    r.U32(),
				TriangleStart: r.U32(),
				TriangleStop:  r.U32(),
			}
			s.TotalTriangleArea = r.F64()
			b.nodes[n].kind = branchNode
			b.nodes[n].surf = s
			stack = append(stack, pending{n, 1}, pending{n, 0})
		default:
			r.SetErr(fmt.Errorf("bsp: invalid node kind"))
		}
		if len(b.nodes) > binio.MaxCount {
			r.SetErr(binio.ErrTooLarge)
		}
	}
}

func (b *BSP) validateIndices(r *binio.Reader) {
	b.walk(b.root, func(n int32) {
		if b.isLeaf(n) || r.Err() != nil {
			return
		}
		s := b.branch(n)
		if int(s.PlaneIndex) >= len(b.planes) || s.TriangleStart > s.TriangleStop || int(s.TriangleStop) > len(b.mesh) {
			r.SetErr(fmt.Errorf("bsp: node references out of range"))
		}
	})
}
