package fracture

import (
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	faceNoiseModes     = 10
	maxFaceSubdivision = 4
)

type noiseMode struct {
	k         mgl64.Vec3
	phase     float64
	amplitude float64
}

// faceNoise displaces interior faces by a sum of sinusoids of position.
// Displacement depends on position only, so the two sides of a shared
// face move together.
type faceNoise struct {
	modes      []noiseMode
	edgeLength float64
}

func (c *Context) newFaceNoise(p NoiseParameters, level0Size float64) *faceNoise {
	gridSize := float64(max(1, p.GridSize))
	spacing := level0Size / gridSize
	fn := &faceNoise{edgeLength: spacing}
	if spacing <= 0 {
		return fn
	}
	amplitude := p.Amplitude * level0Size / math.Sqrt(faceNoiseModes)
	k := 2 * math.Pi * p.Frequency / spacing
	for i := 0; i < faceNoiseModes; i++ {
		fn.modes = append(fn.modes, noiseMode{
			k:         c.randomNormal(0, math.Pi).Mul(k),
			phase:     c.uniform(-math.Pi, math.Pi),
			amplitude: amplitude,
		})
	}
	return fn
}

func (fn *faceNoise) sample(p mgl64.Vec3) (float64, mgl64.Vec3) {
	var f float64
	var g mgl64.Vec3
	for _, m := range fn.modes {
		s, c := math.Sincos(m.k.Dot(p) + m.phase)
		f += m.amplitude * s
		g = g.Add(m.k.Mul(m.amplitude * c))
	}
	return f, g
}

// canonicalNormal flips n so its largest component is positive.
func canonicalNormal(n mgl64.Vec3) mgl64.Vec3 {
	if n[csgmath.MaxAbsIndex(n)] < 0 {
		return n.Mul(-1)
	}
	return n
}

type edgeKey [2]mgl64.Vec3

func makeEdgeKey(a, b mgl64.Vec3) edgeKey {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				a, b = b, a
			}
			break
		}
	}
	return edgeKey{a, b}
}

// noisyTriangle is a triangle being subdivided; border[i] marks the edge
// from vertex i to vertex i+1 as lying on the face boundary.
type noisyTriangle struct {
	tri    mesh.RenderTriangle
	border [3]bool
}

// apply subdivides and displaces the triangles of part whose material
// frame passes active. Face boundaries stay in place.
func (fn *faceNoise) apply(part *ehm.Part, active func(frame uint32) bool) {
	if len(fn.modes) == 0 {
		return
	}
	groups := map[uint32][]mesh.RenderTriangle{}
	var order []uint32
	out := make([]mesh.RenderTriangle, 0, len(part.Mesh))
	for _, t := range part.Mesh {
		if t.ExtraDataIndex == mesh.NoExtraData || !active(t.ExtraDataIndex) {
			out = append(out, t)
			continue
		}
		if _, ok := groups[t.ExtraDataIndex]; !ok {
			order = append(order, t.ExtraDataIndex)
		}
		groups[t.ExtraDataIndex] = append(groups[t.ExtraDataIndex], t)
	}
	for _, frame := range order {
		out = append(out, fn.displaceFace(groups[frame])...)
	}
	part.Mesh = out
}

func (fn *faceNoise) displaceFace(tris []mesh.RenderTriangle) []mesh.RenderTriangle {
	edges := map[edgeKey]int{}
	var normal mgl64.Vec3
	longest := 0.0
	for i := range tris {
		normal = normal.Add(tris[i].Normal())
		for e := 0; e < 3; e++ {
			a, b := tris[i].Vertices[e].Position, tris[i].Vertices[(e+1)%3].Position
			edges[makeEdgeKey(a, b)]++
			longest = math.Max(longest, b.Sub(a).Len())
		}
	}
	if csgmath.NormalizeLen(&normal) == 0 {
		return tris
	}
	nc := canonicalNormal(normal)
	side := math.Copysign(1, normal.Dot(nc))

	work := make([]noisyTriangle, len(tris))
	for i := range tris {
		work[i].tri = tris[i]
		for e := 0; e < 3; e++ {
			a, b := tris[i].Vertices[e].Position, tris[i].Vertices[(e+1)%3].Position
			work[i].border[e] = edges[makeEdgeKey(a, b)] < 2
		}
	}

	levels := 0
	for l := longest; l > fn.edgeLength && levels < maxFaceSubdivision; l /= 2 {
		levels++
	}
	for ; levels > 0; levels-- {
		work = subdivide(work)
	}

	locked := map[mgl64.Vec3]bool{}
	for _, w := range work {
		for e := 0; e < 3; e++ {
			if w.border[e] {
				locked[w.tri.Vertices[e].Position] = true
				locked[w.tri.Vertices[(e+1)%3].Position] = true
			}
		}
	}

	out := make([]mesh.RenderTriangle, len(work))
	for i, w := range work {
		t := w.tri
		for v := range t.Vertices {
			vert := &t.Vertices[v]
			if locked[vert.Position] {
				continue
			}
			f, g := fn.sample(vert.Position)
			gt := g.Sub(nc.Mul(nc.Dot(g)))
			vert.Position = vert.Position.Add(nc.Mul(f))
			n := csgmath.Normalized(nc.Sub(gt).Mul(side))
			handed := vert.Binormal.Dot(vert.Normal.Cross(vert.Tangent)) >= 0
			vert.Normal = n
			tangent := vert.Tangent.Sub(n.Mul(n.Dot(vert.Tangent)))
			if csgmath.NormalizeLen(&tangent) != 0 {
				vert.Tangent = tangent
				vert.Binormal = n.Cross(tangent)
				if !handed {
					vert.Binormal = vert.Binormal.Mul(-1)
				}
			}
		}
		out[i] = t
	}
	return out
}

func midVertex(a, b *mesh.Vertex) mesh.Vertex {
	return lerpVertex(a, b, 0.5)
}

// subdivide splits every triangle into four at its edge midpoints.
func subdivide(in []noisyTriangle) []noisyTriangle {
	out := make([]noisyTriangle, 0, 4*len(in))
	for _, w := range in {
		v := w.tri.Vertices
		m01 := midVertex(&v[0], &v[1])
		m12 := midVertex(&v[1], &v[2])
		m20 := midVertex(&v[2], &v[0])
		child := func(a, b, c mesh.Vertex, border [3]bool) noisyTriangle {
			t := w.tri
			t.Vertices = [3]mesh.Vertex{a, b, c}
			return noisyTriangle{tri: t, border: border}
		}
		out = append(out,
			child(v[0], m01, m20, [3]bool{w.border[0], false, w.border[2]}),
			child(m01, v[1], m12, [3]bool{w.border[0], w.border[1], false}),
			child(m20, m12, v[2], [3]bool{false, w.border[1], w.border[2]}),
			child(m01, m12, m20, [3]bool{}),
		)
	}
	return out
}
