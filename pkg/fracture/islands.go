package fracture

import (
	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/mesh"
)

// PartitionMeshByIslands reorders tris so that each group of touching
// triangles is contiguous. Two triangles touch when their bounds, grown
// by padding, overlap. It returns the reordered triangles and the end
// index of each group, the form BuildFromTriangles takes partitions in.
func PartitionMeshByIslands(tris []mesh.RenderTriangle, padding float64) ([]mesh.RenderTriangle, []int) {
	if len(tris) == 0 {
		return nil, nil
	}
	boxes := make([]csgmath.Bounds, len(tris))
	for i := range tris {
		boxes[i] = tris[i].Bounds()
	}
	index := newBoxIndex(boxes, padding)

	seen := make([]bool, len(tris))
	out := make([]mesh.RenderTriangle, 0, len(tris))
	var partition []int
	for seed := range tris {
		if seen[seed] {
			continue
		}
		seen[seed] = true
		queue := []int{seed}
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			out = append(out, tris[i])
			for _, j := range index.query(boxes[i], padding) {
				if !seen[j] {
					seen[j] = true
					queue = append(queue, j)
				}
			}
		}
		partition = append(partition, len(out))
	}
	return out, partition
}
