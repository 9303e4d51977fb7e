// Package bsp builds binary space partition trees from triangle meshes and
// performs boolean set operations on the solids they describe. Leaves of a
// tree are convex regions marked inside or outside; branches carry a
// splitting plane and the mesh triangles lying on it, so a mesh can be
// regenerated from any tree by clipping those triangles to the inside
// leaves.
package bsp

import (
	"errors"
	"math/rand"

	"github.com/chazu/shatter/pkg/interp"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrNoGeometry is returned when a build has no usable triangles.
	ErrNoGeometry = errors.New("bsp: no geometry")

	// ErrCombined is returned by operations that require an uncombined BSP.
	ErrCombined = errors.New("bsp: BSP is combined")

	// ErrNotCombined is returned by Op when its argument is not combined.
	ErrNotCombined = errors.New("bsp: BSP is not combined")

	// ErrNOP is returned by Op when asked to perform OpNOP.
	ErrNOP = errors.New("bsp: NOP operation requested")

	// ErrNeedOperation is returned when a combined BSP is queried without
	// an operation.
	ErrNeedOperation = errors.New("bsp: operation required for combined BSP")
)

// Operation is a boolean set operation encoded as a truth table: bit 3 is
// the coefficient of a&b, bit 2 of b, bit 1 of a and bit 0 the constant,
// combined with xor.
type Operation uint32

const (
	OpEmptySet               Operation = 0x0
	OpAllSpace               Operation = 0x1
	OpSetA                   Operation = 0x2
	OpSetAComplement         Operation = 0x3
	OpSetB                   Operation = 0x4
	OpSetBComplement         Operation = 0x5
	OpExclusiveOr            Operation = 0x6
	OpEquivalent             Operation = 0x7
	OpIntersection           Operation = 0x8
	OpIntersectionComplement Operation = 0x9
	OpAMinusB                Operation = 0xA
	OpAImpliesB              Operation = 0xB
	OpBMinusA                Operation = 0xC
	OpBImpliesA              Operation = 0xD
	OpUnion                  Operation = 0xE
	OpUnionComplement        Operation = 0xF
	OpNOP                    Operation = 0x80000000
)

// BoolOp evaluates op for membership bits a and b (each 0 or 1).
func BoolOp(op Operation, a, b uint32) uint32 {
	cba := (uint32(op) >> 3) & 1
	cb := (uint32(op) >> 2) & 1
	ca := (uint32(op) >> 1) & 1
	ck := uint32(op) & 1
	return (cba & a & b) ^ (cb & b) ^ (ca & a) ^ ck
}

// Type classifies a BSP.
type Type int

const (
	// EmptySet is a single outside leaf.
	EmptySet Type = iota
	// AllSpace is a single inside leaf.
	AllSpace
	// Nontrivial has at least one branch.
	Nontrivial
	// Combined is awaiting an Op.
	Combined
)

func (t Type) String() string {
	switch t {
	case EmptySet:
		return "EmptySet"
	case AllSpace:
		return "AllSpace"
	case Nontrivial:
		return "Nontrivial"
	case Combined:
		return "Combined"
	}
	return "Unknown"
}

// BuildParameters controls FromMesh.
type BuildParameters struct {
	// Rand shuffles triangle order before building. Nil keeps input order.
	Rand *rand.Rand

	// SnapGridSize snaps unit-scaled vertices to a 1/SnapGridSize grid.
	// Zero disables snapping.
	SnapGridSize uint32

	// LogAreaSigmaThreshold selects the largest surface as the splitter
	// when its log-area lies more than this many standard deviations above
	// the mean. Otherwise a scored test set is used.
	LogAreaSigmaThreshold float64

	// TestSetSize is the number of candidate surfaces scored per split.
	// Zero scores every surface.
	TestSetSize uint32

	SplitWeight     float64
	ImbalanceWeight float64

	// InternalTransform maps mesh space into BSP space. The zero matrix
	// derives a transform that puts the mesh in a centered unit box.
	InternalTransform mgl64.Mat4

	// KeepTriangles retains mesh triangles after building.
	KeepTriangles bool
}

// SetToDefault resets p to the default build parameters.
func (p *BuildParameters) SetToDefault() {
	*p = BuildParameters{
		SnapGridSize:          65536,
		LogAreaSigmaThreshold: 2.0,
		TestSetSize:           10,
		SplitWeight:           0.5,
		ImbalanceWeight:       0,
		KeepTriangles:         true,
	}
}

// DefaultBuildParameters returns the default build parameters.
func DefaultBuildParameters() BuildParameters {
	var p BuildParameters
	p.SetToDefault()
	return p
}

// Tolerances are unitless, relative to the mesh size.
type Tolerances struct {
	// Linear is the coplanarity distance used when grouping triangles.
	Linear float64 `json:"linear"`
	// Angular is the coplanarity angle (radians) used when grouping.
	Angular float64 `json:"angular"`
	// Base classifies vertices against splitting planes during builds.
	Base float64 `json:"base"`
	// Clip is the skin width used when clipping mesh triangles to leaves.
	Clip float64 `json:"clip"`
	// Cleaning is the merge distance for output mesh cleaning. Zero
	// disables cleaning.
	Cleaning float64 `json:"cleaning"`
	// Frames decides which coplanar triangles share a parameterization
	// and may be merged by cleaning.
	Frames interp.CleaningTolerances `json:"frames"`
}

// SetToDefault resets t to the default tolerances.
func (t *Tolerances) SetToDefault() {
	*t = Tolerances{
		Linear:   1e-6,
		Angular:  1e-5,
		Base:     1e-9,
		Clip:     1e-13,
		Cleaning: 1e-6,
		Frames:   interp.DefaultCleaningTolerances(),
	}
}

// DefaultTolerances returns the default tolerances.
func DefaultTolerances() Tolerances {
	var t Tolerances
	t.SetToDefault()
	return t
}
