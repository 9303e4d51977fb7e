package cutout

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// decoders picks the stencil decoder by file extension. The tga package
// registers itself with an empty magic string, so format sniffing through
// image.Decode would hand every file to it.
var decoders = map[string]func(io.Reader) (image.Image, error){
	".png": png.Decode,
	".bmp": bmp.Decode,
	".tga": tga.Decode,
}

// FromImage builds a cutout set from any decoded image. Alpha is ignored.
func FromImage(img image.Image, snapThreshold float64, periodic bool) (*Set, error) {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	rgb := make([]byte, 0, 3*w*h)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			rgb = append(rgb, row[4*x], row[4*x+1], row[4*x+2])
		}
	}
	return FromPixels(rgb, w, h, snapThreshold, periodic)
}

// Load decodes a .png, .bmp or .tga stencil from path and builds its
// cutout set.
func Load(path string, snapThreshold float64, periodic bool) (*Set, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("cutout: %s: unsupported stencil format %q", path, ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cutout: open %s: %w", path, err)
	}
	defer f.Close()

	img, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("cutout: decode %s: %w", path, err)
	}
	s, err := FromImage(img, snapThreshold, periodic)
	if err != nil {
		return nil, fmt.Errorf("cutout: %s stencil %s: %w", strings.TrimPrefix(ext, "."), path, err)
	}
	return s, nil
}
