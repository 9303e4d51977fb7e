package bsp

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/gsa"
)

// DecomposeIntoIslands splits the solid into its connected components.
// Inside leaves are connected when their regions, grown by a small skin,
// intersect. A solid with one component returns []*BSP{b}; a combined BSP
// or one with no inside leaves returns nil.
func (b *BSP) DecomposeIntoIslands() []*BSP {
	if b.combined {
		return nil
	}
	count := int32(0)
	b.leaves(func(n int32) {
		r := b.leaf(n)
		r.tempIndex = -1
		if r.Side == 1 {
			r.tempIndex = count
			count++
		}
	})
	if count == 0 {
		return nil
	}

	uf := newUnionFind(int(count))
	for _, p := range b.insideLeafNeighbors() {
		uf.union(int(p[0]), int(p[1]))
	}
	islands := uf.groups()
	if len(islands) == 1 {
		return []*BSP{b}
	}

	out := make([]*BSP, 0, len(islands))
	for _, island := range islands {
		member := make(map[int32]bool, len(island))
		for _, i := range island {
			member[int32(i)] = true
		}
		c := b.Clone()
		c.leaves(func(n int32) {
			r := c.leaf(n)
			if r.Side == 1 && !member[r.tempIndex] {
				r.Side = 0
			}
		})
		c.mergeLeaves(OpSetA, c.root)
		out = append(out, c)
	}
	return out
}

// insideLeafNeighbors returns pairs of inside-leaf indices (see
// DecomposeIntoIslands) whose skinned regions touch. Each pair is found
// once: from every inside leaf the walk only explores the child-1 siblings
// of its ancestors.
func (b *BSP) insideLeafNeighbors() [][2]int32 {
	tol := 0.0001 * b.meshSize
	var pairs [][2]int32
	push := func(planes []csgmath.Plane, p csgmath.Plane) []csgmath.Plane {
		p[3] -= tol
		return append(planes, p)
	}

	b.leaves(func(leaf int32) {
		if b.nodes[leaf].region.Side != 1 {
			return
		}
		planes := cullPlanes(b.leafPlanes(leaf, tol))
		if len(planes) == 0 {
			return
		}
		i0 := b.nodes[leaf].region.tempIndex
		base := len(planes)

		n := leaf
		up := true
		for n != b.root {
			if up {
				up = b.nodes[n].index == 1
				n = b.nodes[n].parent
				if len(planes) > base {
					planes = planes[:len(planes)-1]
				}
				if !up {
					planes = push(planes, b.planes[b.branch(n).PlaneIndex])
					up = !gsa.Intersects(planes)
					n = b.nodes[n].child[1]
				}
				continue
			}
			if !b.isLeaf(n) {
				planes = push(planes, b.planes[b.branch(n).PlaneIndex].Neg())
				up = !gsa.Intersects(planes)
				n = b.nodes[n].child[0]
				continue
			}
			up = true
			if r := b.nodes[n].region; r.Side == 1 {
				pairs = append(pairs, [2]int32{i0, r.tempIndex})
			}
		}
	})
	return pairs
}

type unionFind struct {
	parent []int
	rank   []uint8
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]uint8, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

// groups lists the members of each set, ordered by smallest member.
func (uf *unionFind) groups() [][]int {
	index := make(map[int]int)
	var out [][]int
	for i := range uf.parent {
		r := uf.find(i)
		g, ok := index[r]
		if !ok {
			g = len(out)
			index[r] = g
			out = append(out, nil)
		}
		out[g] = append(out[g], i)
	}
	return out
}
