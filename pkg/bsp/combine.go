package bsp

import (
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

// Combine merges other into b so that every leaf of b records membership
// in both solids: bit 0 of a leaf side is b's, bit 1 is other's. The
// result must be resolved with Op before most other use.
func (b *BSP) Combine(other *BSP) error {
	if b.combined || other.combined {
		return ErrCombined
	}
	if other == b {
		other = b.Clone()
	}
	if !csgmath.MatApproxEqual(b.internalTransform, other.internalTransform, 0.001) {
		// Planes and triangles must be in b's internal space before
		// they are grafted.
		o := New()
		o.CopyTransformed(other, mgl64.Ident4(), b.internalTransform)
		other = o
	}

	triOffset := uint32(len(b.mesh))
	planeOffset := uint32(len(b.planes))
	b.mesh = append(b.mesh, other.mesh...)
	b.frames = append(b.frames, other.frames...)
	b.planes = append(b.planes, other.planes...)

	b.combineTrees(other, triOffset, planeOffset)

	b.combiningMeshSize = other.meshSize
	b.combiningIncidentalMesh = other.incidentalMesh
	b.meshBounds.IncludeBounds(other.meshBounds)
	b.combined = true
	b.Clean()
	return nil
}

type combineFrame struct {
	node, other int32
}

// combineTrees grafts other's tree onto every leaf of b. A branch of other
// is only kept under a leaf when it cuts the leaf's region into two
// non-empty pieces; otherwise the walk follows the one side that remains.
// Regions are shrunk by a skin for the test, so a plane coinciding with a
// leaf face does not split off a zero-width sliver.
func (b *BSP) combineTrees(other *BSP, triOffset, planeOffset uint32) {
	skin := -0.0001 * b.meshSize
	var stack []combineFrame
	f := combineFrame{node: b.root, other: other.root}
	for {
		pop := true
		switch {
		case !b.isLeaf(f.node):
			stack = append(stack, combineFrame{b.nodes[f.node].child[1], f.other})
			f.node = b.nodes[f.node].child[0]
			pop = false

		case !other.isLeaf(f.other):
			os := other.branch(f.other)
			s := Surface{
				PlaneIndex:        os.PlaneIndex + planeOffset,
				TriangleStart:     os.TriangleStart + triOffset,
				TriangleStop:      os.TriangleStop + triOffset,
				TotalTriangleArea: os.TotalTriangleArea,
			}
			old := b.nodes[f.node].region
			c0, c1 := b.makeBranch(f.node, s)
			in0 := b.regionNonEmpty(c0, skin)
			in1 := b.regionNonEmpty(c1, skin)
			oc := other.nodes[f.other].child
			if in0 && in1 {
				stack = append(stack, combineFrame{c1, oc[1]})
				f = combineFrame{c0, oc[0]}
				pop = false
				break
			}
			b.makeLeaf(f.node, old)
			if in0 {
				f.other = oc[0]
				pop = false
			} else if in1 {
				f.other = oc[1]
				pop = false
			}

		default:
			r := b.leaf(f.node)
			r.Side |= other.nodes[f.other].region.Side << 1
		}
		if !pop {
			continue
		}
		if len(stack) == 0 {
			return
		}
		f = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
	}
}

// Op resolves the combined BSP src with op and stores the result in b. b
// may be src itself.
func (b *BSP) Op(src *BSP, op Operation) error {
	if !src.combined {
		return ErrNotCombined
	}
	if op == OpNOP {
		return ErrNOP
	}
	b.copyFrom(src)

	switch op >> 1 {
	case 1, 5:
	case 2, 6:
		b.meshSize = b.combiningMeshSize
	case 0:
		b.meshSize = 1
	case 3, 4, 7:
		b.meshSize = math.Min(b.meshSize, b.combiningMeshSize)
	}

	b.mergeLeaves(op, b.root)
	b.incidentalMesh = b.incidentalMesh || b.combiningIncidentalMesh
	b.combined = false
	return nil
}

// mergeLeaves maps every leaf side under n through op, collapsing
// branches whose children end up as leaves on the same side. The walk
// follows parent links rather than keeping a stack.
func (b *BSP) mergeLeaves(op Operation, n int32) {
	stop := b.nodes[n].parent
	up := false
	for {
		if up {
			up = b.nodes[n].index == 1
			n = b.nodes[n].parent
			if n == stop {
				return
			}
			if !up {
				n = b.nodes[n].child[1]
				continue
			}
			c0, c1 := b.nodes[n].child[0], b.nodes[n].child[1]
			if b.isLeaf(c0) && b.isLeaf(c1) && b.nodes[c0].region.Side == b.nodes[c1].region.Side {
				b.makeLeaf(n, b.nodes[c0].region)
			}
			continue
		}
		if !b.isLeaf(n) {
			n = b.nodes[n].child[0]
			continue
		}
		up = true
		r := b.leaf(n)
		r.Side = BoolOp(op, r.Side&1, (r.Side>>1)&1)
	}
}
