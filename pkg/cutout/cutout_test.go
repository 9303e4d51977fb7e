package cutout_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/shatter/pkg/binio"
	"github.com/chazu/shatter/pkg/cutout"
	"github.com/ftrvxmtrx/tga"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// stencil returns an RGB buffer with the listed pixels bright.
func stencil(w, h int, bright ...[2]int) []byte {
	rgb := make([]byte, 3*w*h)
	for _, p := range bright {
		i := 3 * (p[1]*w + p[0])
		rgb[i], rgb[i+1], rgb[i+2] = 255, 255, 255
	}
	return rgb
}

func loopArea(pts []mgl64.Vec3) float64 {
	a := 0.0
	for i := range pts {
		p, q := pts[(i+len(pts)-1)%len(pts)], pts[i]
		a += p[0]*q[1] - p[1]*q[0]
	}
	return a / 2
}

// checkConvexLoops verifies that each loop of c is convex and
// counterclockwise and that the loops tile the cutout.
func checkConvexLoops(t *testing.T, c *cutout.Cutout) {
	t.Helper()
	if len(c.ConvexLoops) == 0 {
		t.Fatalf("cutout has no convex loops")
	}
	total := 0.0
	for i := range c.ConvexLoops {
		pts := c.Loop(i)
		for j := range pts {
			p, q, r := pts[(j+len(pts)-1)%len(pts)], pts[j], pts[(j+1)%len(pts)]
			e0, e1 := q.Sub(p), r.Sub(q)
			if e0[0]*e1[1]-e0[1]*e1[0] < -1e-9 {
				t.Errorf("loop %d is not convex at %v", i, q)
			}
		}
		a := loopArea(pts)
		if a <= 0 {
			t.Errorf("loop %d has area %v", i, a)
		}
		total += a
	}
	if want := math.Abs(c.Area()); math.Abs(total-want) > 1e-9 {
		t.Errorf("loop areas sum to %v, want %v", total, want)
	}
}

func TestFromPixels(t *testing.T) {
	vertical := make([][2]int, 0, 9)
	for y := 0; y < 9; y++ {
		vertical = append(vertical, [2]int{4, y})
	}

	tests := []struct {
		name      string
		w, h      int
		bright    [][2]int
		wantAreas []float64
		wantVerts []int
		wantLoops []int
	}{
		{"blank", 4, 4, nil, []float64{16}, []int{4}, []int{1}},
		{"split", 9, 9, vertical, []float64{36, 45}, []int{4, 4}, []int{1, 1}},
		{"notch", 6, 6, [][2]int{{3, 0}, {3, 1}, {3, 2}, {3, 3}, {4, 3}, {5, 3}}, []float64{8, 28}, []int{4, 6}, []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := cutout.FromPixels(stencil(tt.w, tt.h, tt.bright...), tt.w, tt.h, 0.5, false)
			if err != nil {
				t.Fatalf("FromPixels: %v", err)
			}
			if s.CutoutCount() != len(tt.wantAreas) {
				t.Fatalf("%d cutouts, want %d", s.CutoutCount(), len(tt.wantAreas))
			}
			if s.Dimensions != (mgl64.Vec2{float64(tt.w), float64(tt.h)}) {
				t.Errorf("Dimensions = %v", s.Dimensions)
			}
			for i := range s.Cutouts {
				c := &s.Cutouts[i]
				if got := math.Abs(c.Area()); got != tt.wantAreas[i] {
					t.Errorf("cutout %d area = %v, want %v", i, got, tt.wantAreas[i])
				}
				if got := len(c.Vertices); got != tt.wantVerts[i] {
					t.Errorf("cutout %d has %d vertices, want %d", i, got, tt.wantVerts[i])
				}
				if got := len(c.ConvexLoops); got != tt.wantLoops[i] {
					t.Errorf("cutout %d has %d loops, want %d", i, got, tt.wantLoops[i])
				}
				checkConvexLoops(t, c)
			}
		})
	}
}

func TestFromPixelsEdgeCases(t *testing.T) {
	all := make([][2]int, 0, 9)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			all = append(all, [2]int{x, y})
		}
	}
	s, err := cutout.FromPixels(stencil(3, 3, all...), 3, 3, 1, true)
	if err != nil {
		t.Fatalf("FromPixels: %v", err)
	}
	if s.CutoutCount() != 0 || !s.Periodic {
		t.Errorf("all lines: %d cutouts, periodic %v", s.CutoutCount(), s.Periodic)
	}

	if _, err := cutout.FromPixels(make([]byte, 5), 3, 3, 1, false); !errors.Is(err, cutout.ErrBufferSize) {
		t.Errorf("short buffer: err = %v, want ErrBufferSize", err)
	}
}

func TestSharedBoundaries(t *testing.T) {
	// A diagonal line splits the image; both sides must simplify the
	// shared staircase the same way.
	var diag [][2]int
	for i := 0; i < 16; i++ {
		diag = append(diag, [2]int{i, i})
	}
	s, err := cutout.FromPixels(stencil(16, 16, diag...), 16, 16, 1.5, false)
	if err != nil {
		t.Fatalf("FromPixels: %v", err)
	}
	if s.CutoutCount() != 2 {
		t.Fatalf("%d cutouts, want 2", s.CutoutCount())
	}
	total := 0.0
	for i := range s.Cutouts {
		total += math.Abs(s.Cutouts[i].Area())
		checkConvexLoops(t, &s.Cutouts[i])
	}
	if total != 256 {
		t.Errorf("cutouts cover %v, want 256", total)
	}
}

func TestDecompose(t *testing.T) {
	// A clockwise U shape.
	u := []mgl64.Vec3{{0, 0, 0}, {0, 3, 0}, {1, 3, 0}, {1, 1, 0}, {2, 1, 0}, {2, 3, 0}, {3, 3, 0}, {3, 0, 0}}
	s := &cutout.Set{Cutouts: []cutout.Cutout{{Vertices: u}}}
	s.Decompose(0)
	c := &s.Cutouts[0]
	if len(c.ConvexLoops) != 3 {
		t.Errorf("%d loops, want 3", len(c.ConvexLoops))
	}
	checkConvexLoops(t, c)

	split := 0
	for _, l := range c.ConvexLoops {
		for _, pv := range l.PolyVerts {
			if pv.Flags&cutout.SplitEdge != 0 {
				split++
			}
		}
	}
	if split != 4 {
		t.Errorf("%d split edges, want 4", split)
	}
}

func writeImage(t *testing.T, name string, encode func(*os.File, image.Image) error) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		img.SetGray(4, y, color.Gray{Y: 255})
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		encode func(*os.File, image.Image) error
	}{
		{"png", "stencil.png", func(f *os.File, m image.Image) error { return png.Encode(f, m) }},
		{"bmp", "stencil.bmp", func(f *os.File, m image.Image) error { return bmp.Encode(f, m) }},
		{"tga", "stencil.tga", func(f *os.File, m image.Image) error {
			rgba := image.NewNRGBA(m.Bounds())
			draw.Draw(rgba, rgba.Bounds(), m, image.Point{}, draw.Src)
			return tga.Encode(f, rgba)
		}},
		{"upper case extension", "STENCIL.PNG", func(f *os.File, m image.Image) error { return png.Encode(f, m) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := cutout.Load(writeImage(t, tt.file, tt.encode), 0.5, false)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if s.CutoutCount() != 2 {
				t.Errorf("%d cutouts, want 2", s.CutoutCount())
			}
		})
	}

	if _, err := cutout.Load(filepath.Join(t.TempDir(), "missing.png"), 1, false); err == nil {
		t.Errorf("missing file loaded")
	}
	gif := writeImage(t, "stencil.gif", func(f *os.File, m image.Image) error { return png.Encode(f, m) })
	if _, err := cutout.Load(gif, 0.5, false); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("unknown extension: err = %v", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	notch := [][2]int{{3, 0}, {3, 1}, {3, 2}, {3, 3}, {4, 3}, {5, 3}}
	s, err := cutout.FromPixels(stencil(6, 6, notch...), 6, 6, 0.5, true)
	if err != nil {
		t.Fatalf("FromPixels: %v", err)
	}
	var buf bytes.Buffer
	if err := s.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	data := buf.Bytes()

	var got cutout.Set
	if err := got.Deserialize(bytes.NewReader(data)); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.CutoutCount() != s.CutoutCount() || got.Periodic != s.Periodic || got.Dimensions != s.Dimensions {
		t.Fatalf("round trip: %+v", got)
	}
	for i := range s.Cutouts {
		if len(got.Cutouts[i].ConvexLoops) != len(s.Cutouts[i].ConvexLoops) {
			t.Errorf("cutout %d loop count differs", i)
		}
		if got.Cutouts[i].Area() != s.Cutouts[i].Area() {
			t.Errorf("cutout %d area differs", i)
		}
	}

	bad := append([]byte{7, 0, 0, 0}, data[4:]...)
	if err := got.Deserialize(bytes.NewReader(bad)); !errors.Is(err, binio.ErrVersion) {
		t.Errorf("bad version: err = %v", err)
	}
	if err := got.Deserialize(bytes.NewReader(data[:len(data)-3])); err == nil {
		t.Errorf("truncated stream accepted")
	}
	if got.CutoutCount() != s.CutoutCount() {
		t.Errorf("receiver changed on error")
	}
}

func TestFromPolygons(t *testing.T) {
	lshape := []mgl64.Vec2{{0, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 2}, {0, 2}}
	clockwise := []mgl64.Vec2{{3, 3}, {3, 4}, {4, 4}, {4, 3}}
	s, err := cutout.FromPolygons([][]mgl64.Vec2{lshape, clockwise, {{0, 0}, {1, 1}}}, mgl64.Vec2{4, 4}, true)
	if err != nil {
		t.Fatalf("FromPolygons: %v", err)
	}
	if !s.Periodic || s.Dimensions != (mgl64.Vec2{4, 4}) {
		t.Errorf("set = periodic %v, dims %v", s.Periodic, s.Dimensions)
	}
	if s.CutoutCount() != 2 {
		t.Fatalf("CutoutCount = %d, want 2", s.CutoutCount())
	}
	// smallest first
	if a := math.Abs(s.Cutouts[0].Area()); math.Abs(a-1) > 1e-12 {
		t.Errorf("first cutout area = %v, want 1", a)
	}
	if n := len(s.Cutouts[1].ConvexLoops); n < 2 {
		t.Errorf("L shape has %d convex loops, want at least 2", n)
	}
	if got := cutout.Rect(0, 0, 1, 2); len(got) != 4 || got[2] != (mgl64.Vec2{1, 2}) {
		t.Errorf("Rect = %v", got)
	}

	if _, err := cutout.FromPolygons(nil, mgl64.Vec2{0, 1}, false); err == nil {
		t.Error("zero dimensions accepted")
	}
}
