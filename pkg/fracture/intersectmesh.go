package fracture

import (
	"math"

	"github.com/chazu/shatter/pkg/csgmath"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/interp"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/chazu/shatter/pkg/noise"
	"github.com/go-gl/mathgl/mgl64"
)

// Surface describes a cutting surface for IntersectMesh.Build. The grid
// lies in the xy plane of TM, whose z axis is the plane normal; Noise
// displaces grid vertices along that axis.
type Surface struct {
	Plane        csgmath.Plane
	TM           mgl64.Mat4
	Grid         noise.Grid
	Noise        noise.FieldParams
	SubmeshIndex int32
	FrameIndex   uint32
	Frame        interp.Interpolator
	// ForceGrid builds a grid even when there is no displacement.
	ForceGrid bool
}

// IntersectMesh is a cutting surface: a flat plane, a single triangle
// standing in for one, or a noise-displaced grid.
type IntersectMesh struct {
	Plane     csgmath.Plane
	TM        mgl64.Mat4
	Grid      noise.Grid
	Vertices  []mesh.Vertex
	Triangles []mesh.RenderTriangle

	flat bool
}

// BuildPlane makes m an unmeshed plane. GetSide then measures distance
// from it.
func (m *IntersectMesh) BuildPlane(plane csgmath.Plane) {
	*m = IntersectMesh{Plane: plane, TM: mgl64.Ident4(), flat: true}
}

// IsFlat reports whether GetSide measures plane distance.
func (m *IntersectMesh) IsFlat() bool { return m.flat }

// Build meshes s. A zero RelativeFrequency turns the amplitude into a
// random offset of the whole plane. Without displacement a single large
// triangle covering the grid is built.
func (m *IntersectMesh) Build(gen *noise.Generator, s Surface) {
	*m = IntersectMesh{Plane: s.Plane, TM: s.TM, Grid: s.Grid}

	amp := s.Noise.Amplitude
	shift := 0.0
	if s.Noise.RelativeFrequency == 0 && amp != 0 {
		shift = gen.Uniform(-amp, amp)
		m.Plane[3] += shift
		amp = 0
	}

	n := csgmath.Normalized(m.Plane.Normal())
	lift := n.Mul(-shift * m.Plane.Normal().Len())
	col0 := s.TM.Col(0).Vec3()
	col1 := s.TM.Col(1).Vec3()

	if !s.ForceGrid && amp == 0 {
		m.flat = true
		g := s.Grid
		rx := 0.5 * g.XSpacing * float64(g.NumX)
		ry := 0.5 * g.YSpacing * float64(g.NumY)
		cx, cy := g.CornerX+rx, g.CornerY+ry
		r := math.Sqrt(rx*rx + ry*ry)
		x := math.Sqrt(3) * r
		local := [3]mgl64.Vec3{{cx, cy + 2*r, 0}, {cx - x, cy - r, 0}, {cx + x, cy - r, 0}}
		var t mesh.RenderTriangle
		for i := range local {
			t.Vertices[i].Position = csgmath.TransformPos(s.TM, local[i]).Add(lift)
		}
		for i := range t.Vertices {
			v := &t.Vertices[i]
			s.Frame.Interpolate(v)
			v.Normal, v.Tangent, v.Binormal = n, col0, col1
			v.Color = mgl64.Vec4{1, 1, 1, 1}
		}
		t.SubmeshIndex = s.SubmeshIndex
		t.ExtraDataIndex = s.FrameIndex
		m.Vertices = t.Vertices[:]
		m.Triangles = []mesh.RenderTriangle{t}
		return
	}

	p := s.Noise
	p.Amplitude = amp
	f, dn := gen.BuildField(s.Grid, p)

	col2 := s.TM.Col(2).Vec3()
	m.Vertices = make([]mesh.Vertex, s.Grid.VertexCount())
	i := 0
	for iy := 0; iy <= s.Grid.NumY; iy++ {
		for ix := 0; ix <= s.Grid.NumX; ix++ {
			pt := s.Grid.Point(ix, iy)
			v := &m.Vertices[i]
			v.Position = csgmath.TransformPos(s.TM, mgl64.Vec3{pt[0], pt[1], 0}).Add(col2.Mul(f[i])).Add(lift)
			s.Frame.Interpolate(v)
			normal := csgmath.Normalized(mgl64.Vec3{dn[i][0], dn[i][1], 1})
			v.Normal = csgmath.Normalized(csgmath.TransformDir(s.TM, normal))
			v.Tangent = csgmath.Normalized(col1.Cross(v.Normal))
			v.Binormal = v.Normal.Cross(v.Tangent)
			v.Color = mgl64.Vec4{1, 1, 1, 1}
			i++
		}
	}

	nx := s.Grid.NumX
	pattern := [2][6]int{
		{0, nx + 2, nx + 1, 0, 1, nx + 2},
		{0, 1, nx + 1, 1, nx + 2, nx + 1},
	}
	m.Triangles = make([]mesh.RenderTriangle, 0, 2*s.Grid.NumX*s.Grid.NumY)
	base := 0
	for iy := 0; iy < s.Grid.NumY; iy++ {
		tp := pattern[0]
		if s.Grid.Pattern == noise.Equilateral && iy&1 != 0 {
			tp = pattern[1]
		}
		for ix := 0; ix < nx; ix++ {
			for k := 0; k < 2; k++ {
				var t mesh.RenderTriangle
				for j := 0; j < 3; j++ {
					t.Vertices[j] = m.Vertices[base+tp[3*k+j]]
				}
				t.SubmeshIndex = s.SubmeshIndex
				t.ExtraDataIndex = s.FrameIndex
				m.Triangles = append(m.Triangles, t)
			}
			base++
		}
		base++
	}
}

// GetSide returns a signed measure of where p lies relative to the
// surface: positive above, negative below. Points outside a grid's
// footprint report zero.
func (m *IntersectMesh) GetSide(p mgl64.Vec3) float64 {
	if m.flat || len(m.Vertices) == 0 {
		return m.Plane.Distance(p)
	}
	local := csgmath.TransformPos(csgmath.Inverse34(m.TM), p)
	g := m.Grid
	if g.XSpacing == 0 || g.YSpacing == 0 {
		return m.Plane.Distance(p)
	}
	fy := (local[1] - g.CornerY) / g.YSpacing
	iy := int(math.Floor(fy))
	if iy < 0 || iy >= g.NumY {
		return 0
	}
	fx := (local[0] - g.CornerX) / g.XSpacing
	if g.Pattern == noise.Equilateral && iy&1 != 0 {
		fx += 0.5
	}
	ix := int(math.Floor(fx))
	if ix < 0 || ix >= g.NumX {
		return 0
	}
	sx, sy := fx-float64(ix), fy-float64(iy)

	row := g.NumX + 1
	c00 := iy*row + ix
	c10, c01, c11 := c00+1, c00+row, c00+row+1
	var tri [3]int
	if g.Pattern == noise.Equilateral && iy&1 != 0 {
		if sx+sy < 1 {
			tri = [3]int{c00, c10, c01}
		} else {
			tri = [3]int{c10, c11, c01}
		}
	} else if sx < sy {
		tri = [3]int{c00, c11, c01}
	} else {
		tri = [3]int{c00, c10, c11}
	}
	v0 := m.Vertices[tri[0]].Position
	e1 := m.Vertices[tri[1]].Position.Sub(v0)
	e2 := m.Vertices[tri[2]].Position.Sub(v0)
	return e1.Cross(e2).Dot(p.Sub(v0))
}

// flatInterpolator returns the flat interior-face interpolator of a
// material frame.
func flatInterpolator(f ehm.MaterialFrame) interp.Interpolator {
	cs := f.CoordinateSystem
	var in interp.Interpolator
	in.SetFlat([3]mgl64.Vec3{cs.Col(0).Vec3(), cs.Col(1).Vec3(), cs.Col(2).Vec3()}, f.UVScale)
	for c := 0; c < mesh.UVChannels; c++ {
		in.Frames[interp.UV0U+interp.Field(2*c)][3] = f.UVOffset[0]
		in.Frames[interp.UV0V+interp.Field(2*c)][3] = f.UVOffset[1]
	}
	return in
}

// addFrame appends a material frame built on plane and returns its index.
func addFrame(m *ehm.Mesh, desc ehm.FractureMaterialDesc, plane csgmath.Plane, method ehm.FractureMethod, index int32, sliceDepth int) int {
	i := m.AddMaterialFrame()
	f := &m.MaterialFrames[i]
	f.BuildCoordinateSystemFromMaterialDesc(desc, plane)
	f.FractureMethod = method
	f.FractureIndex = index
	f.SliceDepth = uint32(sliceDepth)
	return i
}

// gridParameters sizes a cutting surface to a reference mesh.
type gridParameters struct {
	level0    []mesh.RenderTriangle
	sizeScale float64
	noise     NoiseParameters
	noiseType noise.Type
	xPeriod   float64
	yPeriod   float64
	interior  uint32
	forceGrid bool
}

// buildIntersectMesh builds the cutting surface on plane using the
// coordinate system of frame frameIndex. The grid covers the reference
// mesh's footprint in that frame.
func (c *Context) buildIntersectMesh(m *IntersectMesh, plane csgmath.Plane, em *ehm.Mesh, frameIndex int, gp gridParameters) {
	frame := em.MaterialFrames[frameIndex]
	tm := frame.CoordinateSystem
	inv := csgmath.Inverse34(tm)

	local := csgmath.EmptyBounds()
	for _, p := range mesh.Positions(gp.level0) {
		local.Include(csgmath.TransformPos(inv, p))
	}
	if local.IsEmpty() {
		local.Include(mgl64.Vec3{})
	}
	dims := local.Dimensions()
	ext := local.Extents()
	center := local.Center()

	gridSize := gp.noise.GridSize
	if gridSize < 1 {
		gridSize = 1
	}
	planeDiameter := math.Max(dims[0], dims[1])
	spacing := planeDiameter / float64(gridSize)

	count := func(period, extent float64) int {
		if period != 0 {
			return gridSize
		}
		if spacing <= 0 {
			return 1
		}
		return max(1, int(math.Ceil(2*extent/spacing)))
	}
	numX, numY := count(gp.xPeriod, ext[0]), count(gp.yPeriod, ext[1])
	grid := noise.Grid{
		Pattern:  noise.Rectangular,
		CornerX:  center[0] - ext[0],
		CornerY:  center[1] - ext[1],
		XSpacing: 2 * ext[0] / float64(numX),
		YSpacing: 2 * ext[1] / float64(numY),
		NumX:     numX,
		NumY:     numY,
	}
	if grid.XSpacing == 0 {
		grid.XSpacing = 1
	}
	if grid.YSpacing == 0 {
		grid.YSpacing = 1
	}

	m.Build(noise.NewGenerator(c.Rand), Surface{
		Plane: plane,
		TM:    tm,
		Grid:  grid,
		Noise: noise.FieldParams{
			Amplitude:         gp.sizeScale * gp.noise.Amplitude,
			RelativeFrequency: gp.noise.Frequency,
			XPeriod:           gp.xPeriod,
			YPeriod:           gp.yPeriod,
			Type:              gp.noiseType,
			Direction:         noise.AnyDirection,
		},
		SubmeshIndex: int32(gp.interior),
		FrameIndex:   uint32(frameIndex),
		Frame:        flatInterpolator(frame),
		ForceGrid:    gp.forceGrid,
	})
}
