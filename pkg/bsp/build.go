package bsp

import (
	"context"
	"fmt"
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/interp"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/chazu/shatter/pkg/progress"
	"github.com/go-gl/mathgl/mgl64"
)

type buildConstants struct {
	params       BuildParameters
	recipMaxArea float64
}

// FromMesh replaces b with a tree built from tris. The mesh should be
// closed and outward facing for the inside/outside classification to be
// meaningful. Cancellation is polled once per tree node; on error b keeps
// its previous contents.
func (b *BSP) FromMesh(ctx context.Context, tris []mesh.RenderTriangle, params BuildParameters, listener progress.Listener) error {
	if len(tris) == 0 {
		return ErrNoGeometry
	}

	nb := &BSP{tol: b.tol, logf: b.logf}
	nb.clear()

	order := make([]int, len(tris))
	for i := range order {
		order[i] = i
	}
	if params.Rand != nil {
		for i := range order {
			j := i + params.Rand.Intn(len(order)-i)
			order[i], order[j] = order[j], order[i]
		}
	}

	meshBounds := csgmath.EmptyBounds()
	nb.mesh = make([]csgmath.Triangle, 0, len(tris))
	nb.frames = make([]interp.Interpolator, 0, len(tris))
	for _, k := range order {
		t := &tris[k]
		nb.mesh = append(nb.mesh, t.ToTriangle())
		nb.frames = append(nb.frames, interp.FromTriangle(t))
		for _, v := range t.Vertices {
			meshBounds.Include(v.Position)
		}
	}

	extents := meshBounds.Extents()
	meshSize := math.Max(extents[0], math.Max(extents[1], extents[2]))
	var recipScale, scale mgl64.Vec3
	for i := 0; i < 3; i++ {
		recipScale[i] = 1
		if extents[i] > nb.tol.Linear {
			recipScale[i] = extents[i]
		}
		scale[i] = 1 / recipScale[i]
	}
	center := meshBounds.Center()

	grid := float64(params.SnapGridSize)
	kept := nb.mesh[:0]
	keptFrames := nb.frames[:0]
	for i := range nb.mesh {
		t := nb.mesh[i]
		for j := range t.Vertices {
			p := t.Vertices[j].Sub(center)
			p = mgl64.Vec3{p[0] * scale[0], p[1] * scale[1], p[2] * scale[2]}
			if params.SnapGridSize > 0 {
				for e := 0; e < 3; e++ {
					p[e] = math.Floor(grid*p[e]+0.5) / grid
				}
			}
			t.Vertices[j] = p
		}
		t.CalculateQuantities()
		if t.Area == 0 {
			continue
		}
		kept = append(kept, t)
		keptFrames = append(keptFrames, nb.frames[i])
	}
	nb.mesh = kept
	nb.frames = keptFrames
	if dropped := len(tris) - len(kept); dropped > 0 {
		nb.warnf("bsp: dropped %d degenerate triangles", dropped)
	}
	if len(nb.mesh) == 0 {
		return ErrNoGeometry
	}

	surfaces, maxArea, totalArea := nb.groupSurfaces()
	bc := buildConstants{params: params}
	if maxArea > 0 {
		bc.recipMaxArea = 1 / maxArea
	}

	for _, t := range nb.mesh {
		for _, v := range t.Vertices {
			nb.meshBounds.Include(v)
		}
	}

	q := progress.NewQuantity(totalArea, listener)
	if err := nb.buildTree(ctx, nb.root, surfaces, &bc, q); err != nil {
		return fmt.Errorf("bsp: build canceled: %w", err)
	}

	tm := mgl64.Ident4()
	for i := 0; i < 3; i++ {
		tm.Set(i, i, recipScale[i])
		tm.Set(i, 3, center[i])
	}
	if !csgmath.IsZeroMat(params.InternalTransform) {
		it := params.InternalTransform
		nb.internalTransform = it
		nb.internalTransformInverse = csgmath.Inverse34(it)
		nb.transform(it.Mul4(tm), mgl64.Ident4(), false)
		nb.meshSize = meshSize * math.Sqrt(csgmath.MaxRowScale(it))
	} else {
		nb.internalTransformInverse = tm
		nb.internalTransform = csgmath.Inverse34(tm)
		nb.meshSize = 1
	}

	if !params.KeepTriangles {
		nb.DeleteTriangles()
	}

	*b = *nb
	return nil
}

// groupSurfaces gathers coplanar, like-facing triangles into surfaces,
// reordering the mesh so each surface's triangles are contiguous. Each
// surface plane is pushed out until every triangle lies on or below it.
func (b *BSP) groupSurfaces() (surfaces []Surface, maxArea, totalArea float64) {
	angular2 := b.tol.Angular * b.tol.Angular
	ti := 0
	for ti < len(b.mesh) {
		tri := b.mesh[ti]
		s := Surface{PlaneIndex: uint32(len(b.planes)), TriangleStart: uint32(ti)}
		ti++
		area := tri.Area
		plane := csgmath.PlaneThrough(tri.Normal, tri.Centroid())
		plane.Normalize()

		for k := ti; k < len(b.mesh); k++ {
			test := &b.mesh[k]
			n := plane.Normal()
			if test.Normal.Cross(n).LenSqr() >= angular2 || test.Normal.Dot(n) <= 0 {
				continue
			}
			fits := true
			for _, v := range test.Vertices {
				if cmpPointToPlane(v, plane, b.tol.Linear) != 0 {
					fits = false
					break
				}
			}
			if !fits {
				continue
			}
			if k != ti {
				b.mesh[ti], b.mesh[k] = b.mesh[k], b.mesh[ti]
				b.frames[ti], b.frames[k] = b.frames[k], b.frames[ti]
			}
			avg := n.Mul(area).Add(b.mesh[ti].Normal.Mul(b.mesh[ti].Area))
			csgmath.NormalizeLen(&avg)
			area += b.mesh[ti].Area
			ti++
			proj := 0.0
			for i := s.TriangleStart; i < uint32(ti); i++ {
				for _, v := range b.mesh[i].Vertices {
					proj += avg.Dot(v)
				}
			}
			proj /= float64(3 * (uint32(ti) - s.TriangleStart))
			plane = csgmath.NewPlane(avg, -proj)
		}

		s.TriangleStop = uint32(ti)
		s.TotalTriangleArea = area
		maxArea = math.Max(maxArea, area)
		totalArea += area

		maxProj := -math.MaxFloat64
		n := plane.Normal()
		for i := s.TriangleStart; i < s.TriangleStop; i++ {
			for _, v := range b.mesh[i].Vertices {
				maxProj = math.Max(maxProj, n.Dot(v))
			}
		}
		plane[3] = -maxProj
		b.planes = append(b.planes, plane)
		surfaces = append(surfaces, s)
	}
	return surfaces, maxArea, totalArea
}

// buildTree grows the subtree at leaf n from the candidate surfaces.
func (b *BSP) buildTree(ctx context.Context, n int32, surfaces []Surface, bc *buildConstants, q *progress.Quantity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	surfaces = b.removeRedundantSurfaces(surfaces, n)
	if len(surfaces) == 0 {
		b.assignLeafSide(n, q)
		return nil
	}

	branch, above, below := b.splitSurfaces(surfaces, bc)
	b.nodes[n].kind = branchNode
	b.nodes[n].surf = branch

	c1 := b.newNode()
	b.nodes[c1].region.Side = 1
	b.setChild(n, 1, c1)
	c0 := b.newNode()
	b.nodes[c0].region.Side = 0
	b.setChild(n, 0, c0)

	if err := b.buildTree(ctx, c0, above, bc, q); err != nil {
		return err
	}
	return b.buildTree(ctx, c1, below, bc, q)
}

// removeRedundantSurfaces keeps only surfaces with a triangle that has
// positive area inside leaf.
func (b *BSP) removeRedundantSurfaces(surfaces []Surface, leaf int32) []Surface {
	out := surfaces[:0]
	for _, s := range surfaces {
		for i := s.TriangleStart; i < s.TriangleStop; i++ {
			if b.clipTriangleToLeaf(&b.mesh[i], leaf, 1, b.tol.Base, noPlane, false).area > 0 {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// assignLeafSide classifies leaf by the signed area of the bounding
// surface triangles facing into it. A zero sum keeps the default side.
func (b *BSP) assignLeafSide(leaf int32, q *progress.Quantity) {
	sum := 0.0
	b.ancestors(leaf, func(br int32, side uint8) bool {
		s := b.branch(br)
		sign := -1.0
		if side != 0 {
			sign = 1
		}
		for i := s.TriangleStart; i < s.TriangleStop; i++ {
			sum += sign * b.clipTriangleToLeaf(&b.mesh[i], leaf, side, b.tol.Base, s.PlaneIndex, false).area
		}
		return true
	})
	if sum != 0 {
		r := b.leaf(leaf)
		r.Side = 0
		if sum > 0 {
			r.Side = 1
		}
		q.Add(0.5 * math.Abs(sum))
	}
}

const (
	flagAbove uint8 = 1
	flagBelow uint8 = 2
	flagOn    uint8 = 4
)

// classify returns the above/below flags of s's triangles against plane.
// A surface lying entirely in the plane also gets flagOn.
func (b *BSP) classify(s Surface, plane csgmath.Plane, counts *[4]int) uint8 {
	var flags uint8
	allOn := s.TriangleStop > s.TriangleStart
	for k := s.TriangleStart; k < s.TriangleStop; k++ {
		var triFlags uint8
		for _, v := range b.mesh[k].Vertices {
			side := cmpPointToPlane(v, plane, b.tol.Base)
			if side <= 0 {
				triFlags |= flagBelow
			}
			if side >= 0 {
				triFlags |= flagAbove
			}
			if side != 0 {
				allOn = false
			}
		}
		if counts != nil {
			counts[triFlags]++
		}
		flags |= triFlags
	}
	if allOn {
		flags |= flagOn
	}
	return flags
}

// splitSurfaces picks the branch surface and distributes the others to
// the children: above for child 0, below for child 1.
func (b *BSP) splitSurfaces(surfaces []Surface, bc *buildConstants) (branch Surface, above, below []Surface) {
	n := len(surfaces)
	chosen := 0
	var flags []uint8

	if n > 1 {
		maxLog, meanLog, sigma2 := -math.MaxFloat64, 0.0, 0.0
		if bc.params.LogAreaSigmaThreshold > 0 {
			count := 0
			for i, s := range surfaces {
				if s.TotalTriangleArea <= 0 {
					continue
				}
				count++
				l := math.Log(s.TotalTriangleArea)
				if l > maxLog {
					maxLog = l
					chosen = i
				}
				meanLog += l
			}
			if count > 1 {
				meanLog /= float64(count)
				for _, s := range surfaces {
					if s.TotalTriangleArea <= 0 {
						continue
					}
					sigma2 += csgmath.Square(math.Log(s.TotalTriangleArea) - meanLog)
				}
				sigma2 /= float64(count - 1)
			}
		}
		thr := bc.params.LogAreaSigmaThreshold
		if maxLog > meanLog && csgmath.Square(maxLog-meanLog) < thr*thr*sigma2 {
			testSetSize := n
			if ts := int(bc.params.TestSetSize); ts > 0 && ts < n {
				testSetSize = ts
			}
			minScore := math.MaxFloat64
			testFlags := make([]uint8, n)
			for i := 0; i < testSetSize; i++ {
				plane := b.planes[surfaces[i].PlaneIndex]
				var counts [4]int
				triCount := 0
				for j, s := range surfaces {
					testFlags[j] = 0
					if j == i {
						continue
					}
					testFlags[j] = b.classify(s, plane, &counts)
					triCount += int(s.TriangleStop - s.TriangleStart)
				}
				score := surfaces[i].TotalTriangleArea * bc.recipMaxArea
				if triCount > 0 {
					score += (bc.params.SplitWeight*float64(counts[3]) +
						bc.params.ImbalanceWeight*math.Abs(float64(counts[1]-counts[2]))) / float64(triCount)
				}
				if score < minScore {
					chosen = i
					minScore = score
					flags = append(flags[:0], testFlags...)
				}
			}
		}
	}

	branch = surfaces[chosen]
	if flags == nil {
		flags = make([]uint8, n)
		plane := b.planes[branch.PlaneIndex]
		for j, s := range surfaces {
			if j != chosen {
				flags[j] = b.classify(s, plane, nil)
			}
		}
	}

	bn := b.planes[branch.PlaneIndex].Normal()
	for j, s := range surfaces {
		if j == chosen {
			continue
		}
		f := flags[j]
		if f&flagOn != 0 {
			// Coplanar surfaces go to the side their own normal faces away from.
			if b.planes[s.PlaneIndex].Normal().Dot(bn) > 0 {
				f = flagBelow
			} else {
				f = flagAbove
			}
		}
		if f&flagAbove != 0 {
			above = append(above, s)
		}
		if f&flagBelow != 0 {
			below = append(below, s)
		}
	}
	return branch, above, below
}
