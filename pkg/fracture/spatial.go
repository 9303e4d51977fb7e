package fracture

import (
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/dhconnelly/rtreego"
)

// boxItem is an index into a caller's slice, stored in an R-tree under
// its bounds.
type boxItem struct {
	rect  rtreego.Rect
	index int
}

func (b *boxItem) Bounds() rtreego.Rect { return b.rect }

// minBoxLength keeps rectangles of flat boxes non-degenerate.
const minBoxLength = 1e-12

func boundsRect(b csgmath.Bounds, pad float64) rtreego.Rect {
	p := rtreego.Point{b.Min[0] - pad, b.Min[1] - pad, b.Min[2] - pad}
	lengths := make([]float64, 3)
	for i := range lengths {
		lengths[i] = math.Max(b.Max[i]-b.Min[i]+2*pad, minBoxLength)
	}
	r, err := rtreego.NewRect(p, lengths)
	if err != nil {
		// lengths are positive
		panic(err)
	}
	return r
}

// boxIndex answers overlap queries over a fixed set of boxes.
type boxIndex struct {
	tree *rtreego.Rtree
}

func newBoxIndex(boxes []csgmath.Bounds, pad float64) *boxIndex {
	objs := make([]rtreego.Spatial, 0, len(boxes))
	for i, b := range boxes {
		if b.IsEmpty() {
			continue
		}
		objs = append(objs, &boxItem{rect: boundsRect(b, pad), index: i})
	}
	return &boxIndex{tree: rtreego.NewTree(3, 8, 32, objs...)}
}

// query returns the indices of the boxes overlapping b grown by pad.
func (x *boxIndex) query(b csgmath.Bounds, pad float64) []int {
	if b.IsEmpty() {
		return nil
	}
	hits := x.tree.SearchIntersect(boundsRect(b, pad))
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.(*boxItem).index
	}
	return out
}
