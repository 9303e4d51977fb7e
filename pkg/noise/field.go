package noise

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Pattern is the vertex layout of a grid.
type Pattern int

const (
	// Rectangular places vertices on a regular lattice.
	Rectangular Pattern = iota
	// Equilateral shifts alternate rows by half a cell.
	Equilateral
)

// Grid is a planar lattice of (NumX+1)×(NumY+1) vertices in plane
// coordinates.
type Grid struct {
	Pattern  Pattern
	CornerX  float64
	CornerY  float64
	XSpacing float64
	YSpacing float64
	NumX     int
	NumY     int
}

// VertexCount returns the number of grid vertices.
func (g Grid) VertexCount() int {
	return (g.NumX + 1) * (g.NumY + 1)
}

// Point returns the plane coordinates of vertex (ix, iy).
func (g Grid) Point(ix, iy int) mgl64.Vec2 {
	x := g.CornerX + float64(ix)*g.XSpacing
	y := g.CornerY + float64(iy)*g.YSpacing
	if g.Pattern == Equilateral && ((iy&1 == 0 && ix == g.NumX) || (iy&1 != 0 && ix >= 1)) {
		x -= 0.5 * g.XSpacing
	}
	return mgl64.Vec2{x, y}
}

// Direction restricts the wave vectors of a field.
type Direction int

const (
	// AnyDirection draws a random orientation for each mode.
	AnyDirection Direction = -1
	// AlongX keeps wave vectors on the x axis.
	AlongX Direction = 0
	// AlongY keeps wave vectors on the y axis.
	AlongY Direction = 1
)

// FieldParams configures BuildField. A non-zero period makes the field
// periodic along that axis by rounding wavenumbers to multiples of
// 2π/period.
type FieldParams struct {
	Amplitude         float64
	RelativeFrequency float64
	XPeriod           float64
	YPeriod           float64
	Type              Type
	Direction         Direction
}

// Mode counts per kernel type.
const (
	planeWaveModes = 20
	perlinModes    = 4
)

// BuildField returns the displacement f and the normal perturbation n at
// every grid vertex, in row-major order. Modes are scaled by
// 1/sqrt(modes) so the RMS displacement tracks Amplitude independent of
// the mode count.
func (g *Generator) BuildField(grid Grid, p FieldParams) (f []float64, n []mgl64.Vec3) {
	count := grid.VertexCount()
	f = make([]float64, count)
	n = make([]mgl64.Vec3, count)

	kernel := g.Kernel(p.Type)
	modes := perlinModes
	if p.Type <= PlaneWave {
		modes = planeWaveModes
	}
	amplitude := p.Amplitude / math.Sqrt(float64(modes))

	for m := 0; m < modes; m++ {
		phase := g.Uniform(-math.Pi, math.Pi)
		scale := math.Pow(2, g.Uniform(0, 3)) * p.RelativeFrequency
		var kx, ky float64
		switch p.Direction {
		case AlongX:
			kx = scale / grid.XSpacing
		case AlongY:
			ky = scale / grid.YSpacing
		default:
			theta := g.Uniform(-math.Pi, math.Pi)
			s, c := math.Sincos(theta)
			kx = c * scale / grid.XSpacing
			ky = s * scale / grid.YSpacing
		}
		kx = periodicWavenumber(kx, p.XPeriod)
		ky = periodicWavenumber(ky, p.YPeriod)

		i := 0
		for iy := 0; iy <= grid.NumY; iy++ {
			for ix := 0; ix <= grid.NumX; ix++ {
				pt := grid.Point(ix, iy)
				v, grad := kernel(pt[0]*kx-phase, pt[1]*ky-phase, 0)
				f[i] += amplitude * v
				n[i] = n[i].Add(mgl64.Vec3{-grad[0] * kx * amplitude, -grad[1] * ky * amplitude, 0})
				i++
			}
		}
	}
	return f, n
}

func periodicWavenumber(k, period float64) float64 {
	if period == 0 {
		return k
	}
	c := 2 * math.Pi / period
	steps := math.Floor(math.Abs(k)/c + 0.5)
	if k < 0 {
		steps = -steps
	}
	return steps * c
}
