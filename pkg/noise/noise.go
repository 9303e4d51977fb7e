// Package noise builds displacement fields for the cutting surfaces of a
// fracture. A field is the sum of several randomly oriented, phased and
// scaled copies of a base kernel sampled on a planar grid.
package noise

import (
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"
	"github.com/go-gl/mathgl/mgl64"
)

// Type selects the base kernel.
type Type int

const (
	PlaneWave Type = iota
	Perlin2D
	Perlin3D
)

func (t Type) String() string {
	switch t {
	case PlaneWave:
		return "plane-wave"
	case Perlin2D:
		return "perlin-2d"
	case Perlin3D:
		return "perlin-3d"
	}
	return "unknown"
}

// Kernel evaluates a noise function and its gradient.
type Kernel func(x, y, z float64) (value float64, grad mgl64.Vec3)

// planeWave is sin(x+y). Its gradient only reports the x term; callers
// scale each component by the matching wavenumber.
func planeWave(x, y, _ float64) (float64, mgl64.Vec3) {
	s, c := math.Sincos(x + y)
	return s, mgl64.Vec3{c, 0, 0}
}

const (
	perlinAlpha   = 2
	perlinBeta    = 2
	perlinOctaves = 2

	gradientStep = 1e-3
)

// Generator owns the random state used for noise. It is seeded from the
// caller's generator so a fracture is reproducible from its seed.
type Generator struct {
	rnd *rand.Rand
	p2  *perlin.Perlin
	p3  *perlin.Perlin
}

// NewGenerator returns a Generator drawing from rnd.
func NewGenerator(rnd *rand.Rand) *Generator {
	return &Generator{
		rnd: rnd,
		p2:  perlin.NewPerlinRandSource(perlinAlpha, perlinBeta, perlinOctaves, rand.NewSource(rnd.Int63())),
		p3:  perlin.NewPerlinRandSource(perlinAlpha, perlinBeta, perlinOctaves, rand.NewSource(rnd.Int63())),
	}
}

// Rand returns the generator's random source.
func (g *Generator) Rand() *rand.Rand { return g.rnd }

// Kernel returns the kernel for t. Unknown types clamp to the nearest
// known one.
func (g *Generator) Kernel(t Type) Kernel {
	switch {
	case t <= PlaneWave:
		return planeWave
	case t == Perlin2D:
		return g.perlin2D
	default:
		return g.perlin3D
	}
}

func (g *Generator) perlin2D(x, y, _ float64) (float64, mgl64.Vec3) {
	s := g.p2.Noise2D(x, y)
	h := gradientStep
	gx := (g.p2.Noise2D(x+h, y) - g.p2.Noise2D(x-h, y)) / (2 * h)
	gy := (g.p2.Noise2D(x, y+h) - g.p2.Noise2D(x, y-h)) / (2 * h)
	return s, mgl64.Vec3{gx, gy, 0}
}

// perlin3D reports a zero gradient, so grids displaced with it keep flat
// vertex normals.
func (g *Generator) perlin3D(x, y, z float64) (float64, mgl64.Vec3) {
	return g.p3.Noise3D(x, y, z), mgl64.Vec3{}
}

// Sample3D evaluates the 3D Perlin noise used for displacement volumes.
func (g *Generator) Sample3D(p mgl64.Vec3) float64 {
	return g.p3.Noise3D(p[0], p[1], p[2])
}

// Uniform returns a value uniformly distributed in [lo, hi).
func (g *Generator) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.rnd.Float64()
}
