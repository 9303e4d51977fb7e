package fracture

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/noise"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrInvalidDescriptor is returned when a descriptor fails validation.
	ErrInvalidDescriptor = errors.New("fracture: invalid descriptor")

	// ErrTooManyChunks is returned when a slice schedule would create more
	// chunks than MaxEstimatedChunks.
	ErrTooManyChunks = errors.New("fracture: too many chunks")

	// ErrNoMesh is returned when the mesh to fracture has no parts.
	ErrNoMesh = errors.New("fracture: mesh has no parts")
)

// MaxEstimatedChunks bounds the chunk count a slice schedule may produce.
const MaxEstimatedChunks = 10000

// MeshProcessingParameters control how input meshes are prepared.
type MeshProcessingParameters struct {
	// IslandGeneration splits disconnected pieces of a fragment into
	// separate chunks.
	IslandGeneration bool `json:"island_generation"`
	// RemoveTJunctions welds vertices lying on neighboring edges of the
	// output meshes.
	RemoveTJunctions bool         `json:"remove_t_junctions"`
	MicrogridSize    uint32       `json:"microgrid_size"`
	MeshMode         ehm.MeshMode `json:"mesh_mode"`
	Verbosity        int          `json:"verbosity"`
}

// DefaultMeshProcessingParameters returns parameters with default values.
func DefaultMeshProcessingParameters() MeshProcessingParameters {
	var p MeshProcessingParameters
	p.SetToDefault()
	return p
}

func (p *MeshProcessingParameters) SetToDefault() {
	*p = MeshProcessingParameters{MicrogridSize: 65536, MeshMode: ehm.MeshModeAutomatic}
}

func (p MeshProcessingParameters) Validate() error {
	if p.MeshMode < ehm.MeshModeAutomatic || p.MeshMode > ehm.MeshModeOpen {
		return fmt.Errorf("%w: mesh mode %d", ErrInvalidDescriptor, p.MeshMode)
	}
	if p.Verbosity < 0 {
		return fmt.Errorf("%w: negative verbosity", ErrInvalidDescriptor)
	}
	return nil
}

// NoiseParameters describe the roughness of a cutting surface.
type NoiseParameters struct {
	// Amplitude is relative to the size of the chunk being split.
	Amplitude float64 `json:"amplitude"`
	// Frequency is relative to the grid spacing.
	Frequency float64 `json:"frequency"`
	// GridSize is the number of grid cells across the surface.
	GridSize int `json:"grid_size"`
}

// DefaultNoiseParameters returns flat noise parameters.
func DefaultNoiseParameters() NoiseParameters {
	var p NoiseParameters
	p.SetToDefault()
	return p
}

func (p *NoiseParameters) SetToDefault() {
	*p = NoiseParameters{Frequency: 0.25, GridSize: 10}
}

func (p NoiseParameters) Validate() error {
	if p.Amplitude < 0 || p.Frequency < 0 {
		return fmt.Errorf("%w: negative noise amplitude or frequency", ErrInvalidDescriptor)
	}
	if p.GridSize < 1 {
		return fmt.Errorf("%w: noise grid size %d", ErrInvalidDescriptor, p.GridSize)
	}
	return nil
}

// SliceOrder is the order in which the axes of a chunk are sliced.
type SliceOrder int

const (
	SliceXYZ SliceOrder = iota
	SliceYZX
	SliceZXY
	SliceZYX
	SliceYXZ
	SliceXZY
	// SliceThrough cuts every chunk with the same planes along the second
	// and third axes, so slices line up across the first axis.
	SliceThrough
)

// sliceDirs are the axis orders of the SliceOrder values below
// SliceThrough.
var sliceDirs = [6][3]int{
	{0, 1, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}, {1, 0, 2}, {0, 2, 1},
}

// SliceParameters describe one level of slicing.
type SliceParameters struct {
	Order SliceOrder `json:"order"`
	// SplitsPerPass is the number of cuts along each axis. A chunk is
	// split into SplitsPerPass[i]+1 pieces along axis i.
	SplitsPerPass [3]int `json:"splits_per_pass"`
	// LinearVariation moves each cut by up to half this fraction of the
	// slice width.
	LinearVariation [3]float64 `json:"linear_variation"`
	// AngularVariation tilts each cut by up to this angle, in radians.
	AngularVariation [3]float64        `json:"angular_variation"`
	Noise            [3]NoiseParameters `json:"noise"`
}

// DefaultSliceParameters returns one split per axis with mild variation.
func DefaultSliceParameters() SliceParameters {
	var p SliceParameters
	p.SetToDefault()
	return p
}

func (p *SliceParameters) SetToDefault() {
	*p = SliceParameters{Order: SliceXYZ}
	for i := 0; i < 3; i++ {
		p.SplitsPerPass[i] = 1
		p.LinearVariation[i] = 0.1
		p.AngularVariation[i] = mgl64.DegToRad(20)
		p.Noise[i].SetToDefault()
	}
}

func (p SliceParameters) Validate() error {
	if p.Order < SliceXYZ || p.Order > SliceThrough {
		return fmt.Errorf("%w: slice order %d", ErrInvalidDescriptor, p.Order)
	}
	for i := 0; i < 3; i++ {
		if p.SplitsPerPass[i] < 0 {
			return fmt.Errorf("%w: negative splits per pass", ErrInvalidDescriptor)
		}
		if p.LinearVariation[i] < 0 || p.AngularVariation[i] < 0 {
			return fmt.Errorf("%w: negative slice variation", ErrInvalidDescriptor)
		}
		if err := p.Noise[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FractureSliceDesc describes hierarchical slicing.
type FractureSliceDesc struct {
	MaxDepth int `json:"max_depth"`
	// SliceParameters holds one entry per depth, at least MaxDepth.
	SliceParameters []SliceParameters `json:"slice_parameters"`
	// UseTargetProportions distributes the total split count over the
	// axes so the pieces approach TargetProportions.
	UseTargetProportions bool       `json:"use_target_proportions"`
	TargetProportions    [3]float64 `json:"target_proportions"`
	// MinimumChunkSize is the smallest accepted chunk extent along each
	// axis, as a fraction of the root chunk's extent.
	MinimumChunkSize [3]float64                 `json:"minimum_chunk_size"`
	MaterialDesc     [3]ehm.FractureMaterialDesc `json:"material_desc"`
	InstanceChunks   bool                       `json:"instance_chunks"`
	NoiseMode        noise.Type                 `json:"noise_mode"`
}

// DefaultFractureSliceDesc returns a descriptor with default values.
func DefaultFractureSliceDesc() FractureSliceDesc {
	var d FractureSliceDesc
	d.SetToDefault()
	return d
}

func (d *FractureSliceDesc) SetToDefault() {
	*d = FractureSliceDesc{TargetProportions: [3]float64{1, 1, 1}, NoiseMode: noise.PlaneWave}
	for i := range d.MaterialDesc {
		d.MaterialDesc[i].SetToDefault()
	}
}

func (d FractureSliceDesc) Validate() error {
	if d.MaxDepth < 0 {
		return fmt.Errorf("%w: negative max depth", ErrInvalidDescriptor)
	}
	if len(d.SliceParameters) < d.MaxDepth {
		return fmt.Errorf("%w: %d slice parameters for depth %d", ErrInvalidDescriptor, len(d.SliceParameters), d.MaxDepth)
	}
	for i := 0; i < d.MaxDepth; i++ {
		if err := d.SliceParameters[i].Validate(); err != nil {
			return fmt.Errorf("depth %d: %w", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		if d.UseTargetProportions && d.TargetProportions[i] <= 0 {
			return fmt.Errorf("%w: target proportion %v", ErrInvalidDescriptor, d.TargetProportions[i])
		}
		if d.MinimumChunkSize[i] < 0 {
			return fmt.Errorf("%w: negative minimum chunk size", ErrInvalidDescriptor)
		}
		if err := d.MaterialDesc[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
		}
	}
	return validNoiseMode(d.NoiseMode)
}

func validNoiseMode(t noise.Type) error {
	if t < noise.PlaneWave || t > noise.Perlin3D {
		return fmt.Errorf("%w: noise mode %d", ErrInvalidDescriptor, t)
	}
	return nil
}

// FractureVoronoiDesc describes Voronoi splitting.
type FractureVoronoiDesc struct {
	Sites []mgl64.Vec3 `json:"sites"`
	// ChunkIndices, when set, restricts site i to chunk ChunkIndices[i].
	// Otherwise every site splits every chunk.
	ChunkIndices []int `json:"chunk_indices,omitempty"`
	// FaceNoise roughens the graphics of the cell faces. Collision hulls
	// and child chunks keep the flat cells.
	FaceNoise      NoiseParameters `json:"face_noise"`
	InstanceChunks bool            `json:"instance_chunks"`
	NoiseMode      noise.Type      `json:"noise_mode"`
	// MinimumChunkSize is a fraction of the root chunk's bounding sphere
	// diameter.
	MinimumChunkSize float64                  `json:"minimum_chunk_size"`
	MaterialDesc     ehm.FractureMaterialDesc `json:"material_desc"`
}

// DefaultFractureVoronoiDesc returns a descriptor with default values and
// no sites.
func DefaultFractureVoronoiDesc() FractureVoronoiDesc {
	var d FractureVoronoiDesc
	d.SetToDefault()
	return d
}

func (d *FractureVoronoiDesc) SetToDefault() {
	*d = FractureVoronoiDesc{NoiseMode: noise.PlaneWave}
	d.FaceNoise.SetToDefault()
	d.MaterialDesc.SetToDefault()
}

func (d FractureVoronoiDesc) Validate() error {
	if len(d.Sites) == 0 {
		return fmt.Errorf("%w: no voronoi sites", ErrInvalidDescriptor)
	}
	if d.ChunkIndices != nil && len(d.ChunkIndices) != len(d.Sites) {
		return fmt.Errorf("%w: %d chunk indices for %d sites", ErrInvalidDescriptor, len(d.ChunkIndices), len(d.Sites))
	}
	if d.MinimumChunkSize < 0 {
		return fmt.Errorf("%w: negative minimum chunk size", ErrInvalidDescriptor)
	}
	if err := d.FaceNoise.Validate(); err != nil {
		return err
	}
	if err := d.MaterialDesc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return validNoiseMode(d.NoiseMode)
}

// CutoutParameters describe the cutouts of one face.
type CutoutParameters struct {
	// Depth of the cutouts as a fraction of the mesh thickness along the
	// cutout direction. Zero, or one and above, cuts all the way through.
	Depth         float64                  `json:"depth"`
	MaterialDesc  ehm.FractureMaterialDesc `json:"material_desc"`
	BackfaceNoise NoiseParameters          `json:"backface_noise"`
	EdgeNoise     NoiseParameters          `json:"edge_noise"`
}

func (p *CutoutParameters) SetToDefault() {
	*p = CutoutParameters{}
	p.MaterialDesc.SetToDefault()
	p.BackfaceNoise.SetToDefault()
	p.EdgeNoise.SetToDefault()
}

func (p CutoutParameters) Validate() error {
	if p.Depth < 0 {
		return fmt.Errorf("%w: negative cutout depth", ErrInvalidDescriptor)
	}
	if err := p.MaterialDesc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if err := p.BackfaceNoise.Validate(); err != nil {
		return err
	}
	return p.EdgeNoise.Validate()
}

// Direction flags select the faces of a mesh's bounds to chip. A
// direction names the way the cutouts are cut: NegativeX chips the +x face
// toward -x.
type Direction uint32

const (
	// UserDefined is the empty set of directions. It selects cutting along
	// FractureCutoutDesc.UserDefinedDirection instead.
	UserDefined Direction = 0
	NegativeX   Direction = 1 << (iota - 1)
	PositiveX
	NegativeY
	PositiveY
	NegativeZ
	PositiveZ

	DirectionCount = 6
)

// directionAxisAndSign splits a direction index into its axis and sign.
// Sign 0 chips the face on the positive side of the axis.
func directionAxisAndSign(index int) (axis, sign int) {
	return index >> 1, index & 1
}

// InstancingMode selects which cutout chunks share parts.
type InstancingMode int

const (
	DoNotInstance InstancingMode = iota
	// InstanceCongruentChunks shares parts between chunks of the same
	// shape.
	InstanceCongruentChunks
	// InstanceAllChunks also flags every chunk as instanced.
	InstanceAllChunks
)

// ChunkFracturingMethod selects how cutout chunks are split further.
type ChunkFracturingMethod int

const (
	DoNotFractureCutoutChunks ChunkFracturingMethod = iota
	SliceFractureCutoutChunks
	VoronoiFractureCutoutChunks
)

// FractureCutoutDesc describes chipping.
type FractureCutoutDesc struct {
	Directions Direction `json:"directions"`
	// DirectionOrder lists the directions in the order they are applied.
	DirectionOrder   [DirectionCount]Direction        `json:"direction_order"`
	CutoutParameters [DirectionCount]CutoutParameters `json:"cutout_parameters"`

	// UserDefinedDirection is the cutout direction when Directions is
	// UserDefined. UserUVMapping's first two columns map stencil u and v
	// to space and its third column is the stencil origin.
	UserDefinedDirection        mgl64.Vec3       `json:"user_defined_direction"`
	UserUVMapping               mgl64.Mat3       `json:"user_uv_mapping"`
	UserDefinedCutoutParameters CutoutParameters `json:"user_defined_cutout_parameters"`

	InstancingMode InstancingMode `json:"instancing_mode"`
	// TileFractureMap repeats the stencil across each face.
	TileFractureMap       bool                  `json:"tile_fracture_map"`
	UVTileSize            mgl64.Vec2            `json:"uv_tile_size"`
	SplitNonconvexRegions bool                  `json:"split_nonconvex_regions"`
	ChunkFracturingMethod ChunkFracturingMethod `json:"chunk_fracturing_method"`
	// TrimFaceCollisionHulls trims the hulls of the backface and cutout
	// chunks at the face plane when their surfaces are noisy or their hulls
	// are not wrapped meshes.
	TrimFaceCollisionHulls bool `json:"trim_face_collision_hulls"`

	CutoutWidthScale   [DirectionCount]float64 `json:"cutout_width_scale"`
	CutoutHeightScale  [DirectionCount]float64 `json:"cutout_height_scale"`
	CutoutWidthOffset  [DirectionCount]float64 `json:"cutout_width_offset"`
	CutoutHeightOffset [DirectionCount]float64 `json:"cutout_height_offset"`
	CutoutWidthInvert  [DirectionCount]bool    `json:"cutout_width_invert"`
	CutoutHeightInvert [DirectionCount]bool    `json:"cutout_height_invert"`
	// CutoutSizeX and CutoutSizeY are the stencil dimensions in pixels.
	CutoutSizeX float64 `json:"cutout_size_x"`
	CutoutSizeY float64 `json:"cutout_size_y"`
	// FacetNormalMergeThresholdAngle is the largest exterior angle, in
	// degrees, across which cutout side normals are smoothed.
	FacetNormalMergeThresholdAngle float64 `json:"facet_normal_merge_threshold_angle"`
}

// DefaultFractureCutoutDesc returns a descriptor with default values.
func DefaultFractureCutoutDesc() FractureCutoutDesc {
	var d FractureCutoutDesc
	d.SetToDefault()
	return d
}

func (d *FractureCutoutDesc) SetToDefault() {
	*d = FractureCutoutDesc{
		UserUVMapping:                  mgl64.Ident3(),
		TrimFaceCollisionHulls:         true,
		CutoutSizeX:                    1,
		CutoutSizeY:                    1,
		FacetNormalMergeThresholdAngle: 60,
	}
	d.UserDefinedCutoutParameters.SetToDefault()
	for i := 0; i < DirectionCount; i++ {
		d.DirectionOrder[i] = 1 << i
		d.CutoutParameters[i].SetToDefault()
		d.CutoutWidthScale[i] = 1
		d.CutoutHeightScale[i] = 1
	}
}

func (d FractureCutoutDesc) Validate() error {
	if d.Directions >= 1<<DirectionCount {
		return fmt.Errorf("%w: directions %#x", ErrInvalidDescriptor, d.Directions)
	}
	used := 0
	for _, o := range d.DirectionOrder {
		if d.Directions&o == 0 {
			continue
		}
		if o&(o-1) != 0 || used&int(o) != 0 {
			return fmt.Errorf("%w: each direction may appear once in the direction order", ErrInvalidDescriptor)
		}
		used |= int(o)
	}
	if used != int(d.Directions) {
		return fmt.Errorf("%w: direction order misses directions %#x", ErrInvalidDescriptor, int(d.Directions)&^used)
	}
	for i := 0; i < DirectionCount; i++ {
		if d.Directions&(1<<i) == 0 {
			continue
		}
		if err := d.CutoutParameters[i].Validate(); err != nil {
			return err
		}
		if d.CutoutWidthScale[i] == 0 || d.CutoutHeightScale[i] == 0 {
			return fmt.Errorf("%w: zero cutout scale", ErrInvalidDescriptor)
		}
	}
	if d.Directions == UserDefined {
		if err := d.UserDefinedCutoutParameters.Validate(); err != nil {
			return err
		}
	}
	if d.InstancingMode < DoNotInstance || d.InstancingMode > InstanceAllChunks {
		return fmt.Errorf("%w: instancing mode %d", ErrInvalidDescriptor, d.InstancingMode)
	}
	if d.ChunkFracturingMethod < DoNotFractureCutoutChunks || d.ChunkFracturingMethod > VoronoiFractureCutoutChunks {
		return fmt.Errorf("%w: chunk fracturing method %d", ErrInvalidDescriptor, d.ChunkFracturingMethod)
	}
	if d.CutoutSizeX <= 0 || d.CutoutSizeY <= 0 {
		return fmt.Errorf("%w: cutout size %v x %v", ErrInvalidDescriptor, d.CutoutSizeX, d.CutoutSizeY)
	}
	if d.FacetNormalMergeThresholdAngle < 0 || d.FacetNormalMergeThresholdAngle > 180 || math.IsNaN(d.FacetNormalMergeThresholdAngle) {
		return fmt.Errorf("%w: facet merge angle %v", ErrInvalidDescriptor, d.FacetNormalMergeThresholdAngle)
	}
	return nil
}
