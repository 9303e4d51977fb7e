package noise_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/chazu/shatter/pkg/noise"
)

func TestBuildFieldDeterministic(t *testing.T) {
	grid := noise.Grid{XSpacing: 0.1, YSpacing: 0.1, NumX: 10, NumY: 8}
	params := noise.FieldParams{Amplitude: 0.2, RelativeFrequency: 0.5, Direction: noise.AnyDirection}
	for _, typ := range []noise.Type{noise.PlaneWave, noise.Perlin2D, noise.Perlin3D} {
		t.Run(typ.String(), func(t *testing.T) {
			params.Type = typ
			f0, n0 := noise.NewGenerator(rand.New(rand.NewSource(7))).BuildField(grid, params)
			f1, n1 := noise.NewGenerator(rand.New(rand.NewSource(7))).BuildField(grid, params)
			if len(f0) != grid.VertexCount() || len(n0) != grid.VertexCount() {
				t.Fatalf("field sizes %d, %d, want %d", len(f0), len(n0), grid.VertexCount())
			}
			for i := range f0 {
				if f0[i] != f1[i] || n0[i] != n1[i] {
					t.Fatalf("vertex %d differs between runs with the same seed", i)
				}
			}
		})
	}
}

func TestPlaneWaveAmplitude(t *testing.T) {
	grid := noise.Grid{XSpacing: 0.05, YSpacing: 0.05, NumX: 40, NumY: 40}
	params := noise.FieldParams{Amplitude: 1, RelativeFrequency: 1, Direction: noise.AnyDirection}
	f, _ := noise.NewGenerator(rand.New(rand.NewSource(3))).BuildField(grid, params)
	peak := 0.0
	for _, v := range f {
		peak = math.Max(peak, math.Abs(v))
	}
	// Twenty modes of amplitude 1/sqrt(20) cannot exceed sqrt(20).
	if peak == 0 || peak > math.Sqrt(20)+1e-9 {
		t.Errorf("peak displacement = %v", peak)
	}
}

func TestPerlin3DHasZeroGradient(t *testing.T) {
	g := noise.NewGenerator(rand.New(rand.NewSource(1)))
	k := g.Kernel(noise.Perlin3D)
	for _, x := range []float64{0.1, 1.7, -3.2} {
		if _, grad := k(x, 2*x, 0.5); grad.Len() != 0 {
			t.Errorf("gradient at %v = %v, want zero", x, grad)
		}
	}
}

func TestPeriodicField(t *testing.T) {
	const period = 1.0
	grid := noise.Grid{XSpacing: 0.1, YSpacing: 0.1, NumX: 10, NumY: 10}
	params := noise.FieldParams{
		Amplitude:         0.3,
		RelativeFrequency: 0.7,
		XPeriod:           period,
		YPeriod:           period,
		Direction:         noise.AnyDirection,
	}
	f, _ := noise.NewGenerator(rand.New(rand.NewSource(11))).BuildField(grid, params)
	row := grid.NumX + 1
	for iy := 0; iy <= grid.NumY; iy++ {
		left, right := f[iy*row], f[iy*row+grid.NumX]
		if math.Abs(left-right) > 1e-9 {
			t.Errorf("row %d: edges %v and %v differ", iy, left, right)
		}
	}
}
