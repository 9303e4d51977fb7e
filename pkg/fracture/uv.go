package fracture

import (
	"errors"
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrNoUVMapping is returned when no triangle yields a usable mapping.
var ErrNoUVMapping = errors.New("fracture: no triangle with a usable uv mapping")

// CalculateCutoutUVMapping returns a mapping for
// FractureCutoutDesc.UserUVMapping that lays the stencil out the way the
// first UV channel is laid out on the triangle of tris facing most nearly
// along direction. The first two columns map u and v to space and the
// third is the position of uv (0, 0).
func CalculateCutoutUVMapping(tris []mesh.RenderTriangle, direction mgl64.Vec3) (mgl64.Mat3, error) {
	if csgmath.NormalizeLen(&direction) == 0 {
		return mgl64.Mat3{}, ErrNoUVMapping
	}
	best := -1
	bestDot := math.Inf(-1)
	for i := range tris {
		n := tris[i].Normal()
		if csgmath.NormalizeLen(&n) == 0 {
			continue
		}
		if d := n.Dot(direction); d > bestDot && math.Abs(uvMatrix(&tris[i]).Det()) > csgmath.EpsReal {
			best, bestDot = i, d
		}
	}
	if best < 0 {
		return mgl64.Mat3{}, ErrNoUVMapping
	}
	t := &tris[best]
	positions := mgl64.Mat3FromCols(t.Vertices[0].Position, t.Vertices[1].Position, t.Vertices[2].Position)
	return positions.Mul3(uvMatrix(t).Inv()), nil
}

// uvMatrix has one column (u, v, 1) per vertex.
func uvMatrix(t *mesh.RenderTriangle) mgl64.Mat3 {
	var m mgl64.Mat3
	for i, v := range t.Vertices {
		m.SetCol(i, mgl64.Vec3{v.UV[0][0], v.UV[0][1], 1})
	}
	return m
}
