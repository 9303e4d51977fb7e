package bsp

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/gsa"
)

const nilNode int32 = -1

type nodeKind uint8

const (
	leafNode nodeKind = iota
	branchNode
)

// Region is the data carried by a leaf. Side is 1 inside, 0 outside; while
// a BSP is combined it holds two bits, bit 0 from this tree and bit 1 from
// the other.
type Region struct {
	Side uint32

	tempIndex int32
}

// Surface is the data carried by a branch: its splitting plane and the
// contiguous run of mesh triangles lying on that plane.
type Surface struct {
	PlaneIndex        uint32
	TriangleStart     uint32
	TriangleStop      uint32
	TotalTriangleArea float64
}

type node struct {
	kind   nodeKind
	parent int32
	child  [2]int32
	// index is this node's child slot in its parent.
	index  uint8
	region Region
	surf   Surface
}

func (b *BSP) newNode() int32 {
	n := node{
		kind:   leafNode,
		parent: nilNode,
		child:  [2]int32{nilNode, nilNode},
		region: Region{Side: 1},
	}
	if k := len(b.free); k > 0 {
		i := b.free[k-1]
		b.free = b.free[:k-1]
		b.nodes[i] = n
		return i
	}
	b.nodes = append(b.nodes, n)
	return int32(len(b.nodes) - 1)
}

func (b *BSP) leaf(n int32) *Region {
	if b.nodes[n].kind != leafNode {
		panic("bsp: region requested from a branch node")
	}
	return &b.nodes[n].region
}

func (b *BSP) branch(n int32) *Surface {
	if b.nodes[n].kind != branchNode {
		panic("bsp: surface requested from a leaf node")
	}
	return &b.nodes[n].surf
}

func (b *BSP) isLeaf(n int32) bool {
	return b.nodes[n].kind == leafNode
}

func (b *BSP) setChild(parent int32, i int, child int32) {
	b.nodes[parent].child[i] = child
	if child != nilNode {
		b.nodes[child].parent = parent
		b.nodes[child].index = uint8(i)
	}
}

// makeBranch turns leaf n into a branch with two fresh leaf children whose
// regions copy n's, and returns the children.
func (b *BSP) makeBranch(n int32, s Surface) (c0, c1 int32) {
	r := b.nodes[n].region
	c0 = b.newNode()
	c1 = b.newNode()
	b.nodes[c0].region = r
	b.nodes[c1].region = r
	b.nodes[n].kind = branchNode
	b.nodes[n].surf = s
	b.setChild(n, 0, c0)
	b.setChild(n, 1, c1)
	return c0, c1
}

// makeLeaf releases n's subtree and turns n into a leaf with region r.
func (b *BSP) makeLeaf(n int32, r Region) {
	for i := 0; i < 2; i++ {
		if c := b.nodes[n].child[i]; c != nilNode {
			b.releaseSubtree(c)
			b.nodes[n].child[i] = nilNode
		}
	}
	b.nodes[n].kind = leafNode
	b.nodes[n].region = r
	b.nodes[n].surf = Surface{}
}

func (b *BSP) releaseSubtree(n int32) {
	stack := []int32{n}
	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range b.nodes[m].child {
			if c != nilNode {
				stack = append(stack, c)
			}
		}
		b.nodes[m] = node{parent: nilNode, child: [2]int32{nilNode, nilNode}}
		b.free = append(b.free, m)
	}
}

// walk visits the subtree at n in preorder, child 0 before child 1.
func (b *BSP) walk(n int32, visit func(n int32)) {
	stack := []int32{n}
	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(m)
		if b.nodes[m].kind == branchNode {
			stack = append(stack, b.nodes[m].child[1], b.nodes[m].child[0])
		}
	}
}

// leaves visits every leaf in preorder.
func (b *BSP) leaves(visit func(n int32)) {
	b.walk(b.root, func(n int32) {
		if b.isLeaf(n) {
			visit(n)
		}
	})
}

// ancestors visits the branches above n, nearest first, with the child
// slot through which the walk arrived.
func (b *BSP) ancestors(n int32, visit func(branch int32, side uint8) bool) {
	for n != b.root {
		p := b.nodes[n].parent
		if !visit(p, b.nodes[n].index) {
			return
		}
		n = p
	}
}

// sidePlane returns the plane of branch n oriented so that child slot side
// lies on its negative side.
func (b *BSP) sidePlane(n int32, side uint8) csgmath.Plane {
	p := b.planes[b.branch(n).PlaneIndex]
	if side == 0 {
		return p.Neg()
	}
	return p
}

// leafPlanes returns the halfspaces bounding leaf n, each pushed outward
// by skin.
func (b *BSP) leafPlanes(n int32, skin float64) []csgmath.Plane {
	var planes []csgmath.Plane
	b.ancestors(n, func(br int32, side uint8) bool {
		p := b.sidePlane(br, side)
		p[3] -= skin
		planes = append(planes, p)
		return true
	})
	return planes
}

// regionNonEmpty reports whether leaf n, expanded by skin, bounds a
// non-empty region.
func (b *BSP) regionNonEmpty(n int32, skin float64) bool {
	return gsa.Intersects(b.leafPlanes(n, skin))
}

// Leaf counts.
func (b *BSP) countLeaves() (inside, total int) {
	b.leaves(func(n int32) {
		total++
		if b.nodes[n].region.Side&1 != 0 {
			inside++
		}
	})
	return inside, total
}
