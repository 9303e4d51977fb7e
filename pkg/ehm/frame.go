package ehm

import (
	"fmt"
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/go-gl/mathgl/mgl64"
)

// FractureMethod records how a material frame was created.
type FractureMethod uint32

const (
	MethodUnknown FractureMethod = iota
	MethodSlice
	MethodCutout
	MethodVoronoi
)

func (m FractureMethod) String() string {
	switch m {
	case MethodSlice:
		return "slice"
	case MethodCutout:
		return "cutout"
	case MethodVoronoi:
		return "voronoi"
	}
	return "unknown"
}

// FractureMaterialDesc describes the material of interior faces.
type FractureMaterialDesc struct {
	// UVScale is the geometric distance per unit of texture distance.
	UVScale  mgl64.Vec2
	UVOffset mgl64.Vec2
	// Tangent is the surface tangent direction. A zero tangent picks an
	// axis.
	Tangent mgl64.Vec3
	// UAngle rotates the u axis away from Tangent, in degrees.
	UAngle               float64
	InteriorSubmeshIndex uint32
}

// DefaultFractureMaterialDesc returns a descriptor with default values.
func DefaultFractureMaterialDesc() FractureMaterialDesc {
	var d FractureMaterialDesc
	d.SetToDefault()
	return d
}

func (d *FractureMaterialDesc) SetToDefault() {
	*d = FractureMaterialDesc{UVScale: mgl64.Vec2{1, 1}}
}

func (d FractureMaterialDesc) Validate() error {
	if d.UVScale[0] == 0 || d.UVScale[1] == 0 {
		return fmt.Errorf("ehm: material: zero uv scale %v", d.UVScale)
	}
	return nil
}

// MaterialFrame is the UV mapping frame of a set of interior faces, along
// with how and when they were created.
type MaterialFrame struct {
	CoordinateSystem mgl64.Mat4
	UVPlane          csgmath.Plane
	UVScale          mgl64.Vec2
	UVOffset         mgl64.Vec2
	FractureMethod   FractureMethod
	FractureIndex    int32
	// SliceDepth is the depth being created by the split; zero is unknown.
	SliceDepth uint32
}

// NewMaterialFrame returns an identity frame on the z = 0 plane.
func NewMaterialFrame() MaterialFrame {
	return MaterialFrame{
		CoordinateSystem: mgl64.Ident4(),
		UVPlane:          csgmath.NewPlane(mgl64.Vec3{0, 0, 1}, 0),
		UVScale:          mgl64.Vec2{1, 1},
		FractureIndex:    -1,
	}
}

// BuildCoordinateSystemFromMaterialDesc sets the frame's axes from plane
// and desc: z is the plane normal and x follows the descriptor tangent,
// falling back to an axis when the tangent is parallel to z. The frame is
// rotated about z by desc.UAngle and placed at the projection of the
// origin onto the plane.
func (f *MaterialFrame) BuildCoordinateSystemFromMaterialDesc(desc FractureMaterialDesc, plane csgmath.Plane) {
	z := csgmath.Normalized(plane.Normal())
	x := desc.Tangent
	y := z.Cross(x)
	if l2 := y.LenSqr(); l2 > csgmath.EpsReal*csgmath.EpsReal {
		y = y.Mul(1 / math.Sqrt(l2))
	} else {
		x = csgmath.Axis(csgmath.MaxAbsIndex(plane.Normal()) + 1)
		y = csgmath.Normalized(z.Cross(x))
	}
	x = y.Cross(z)

	s, c := math.Sincos(mgl64.DegToRad(desc.UAngle))
	u := x.Mul(c).Add(y.Mul(s))
	v := y.Mul(c).Sub(x.Mul(s))

	unit := plane
	unit.Normalize()
	origin := unit.Project(mgl64.Vec3{})
	f.CoordinateSystem = mgl64.Mat4FromCols(
		u.Vec4(0), v.Vec4(0), z.Vec4(0), origin.Vec4(1))
	f.UVPlane = plane
	f.UVScale = desc.UVScale
	f.UVOffset = desc.UVOffset
}

// VertexFormat describes the vertex buffers of a submesh.
type VertexFormat struct {
	Winding uint32

	HasStaticPositions          bool
	HasStaticNormals            bool
	HasStaticTangents           bool
	HasStaticBinormals          bool
	HasStaticColors             bool
	HasStaticSeparateBoneBuffer bool
	HasStaticDisplacements      bool

	HasDynamicPositions          bool
	HasDynamicNormals            bool
	HasDynamicTangents           bool
	HasDynamicBinormals          bool
	HasDynamicColors             bool
	HasDynamicSeparateBoneBuffer bool
	HasDynamicDisplacements      bool

	UVCount        uint32
	BonesPerVertex uint32
}

func (f *VertexFormat) flags() []*bool {
	return []*bool{
		&f.HasStaticPositions, &f.HasStaticNormals, &f.HasStaticTangents, &f.HasStaticBinormals,
		&f.HasStaticColors, &f.HasStaticSeparateBoneBuffer, &f.HasStaticDisplacements,
		&f.HasDynamicPositions, &f.HasDynamicNormals, &f.HasDynamicTangents, &f.HasDynamicBinormals,
		&f.HasDynamicColors, &f.HasDynamicSeparateBoneBuffer, &f.HasDynamicDisplacements,
	}
}

// SubmeshData names a submesh's material and vertex format.
type SubmeshData struct {
	MaterialName string
	VertexFormat VertexFormat
}
