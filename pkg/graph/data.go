package graph

import "github.com/go-gl/mathgl/mgl64"

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// PrimitiveKind distinguishes between primitive shapes.
type PrimitiveKind int

const (
	PrimBox      PrimitiveKind = iota // rectangular solid, minimum corner at the origin
	PrimCylinder                      // z-axis cylinder centered on the origin
	PrimSphere                        // sphere centered on the origin
)

func (k PrimitiveKind) String() string {
	switch k {
	case PrimBox:
		return "box"
	case PrimCylinder:
		return "cylinder"
	case PrimSphere:
		return "sphere"
	default:
		return "unknown"
	}
}

// PrimitiveData describes a primitive solid. Only the fields its kind
// uses are meaningful.
type PrimitiveData struct {
	Shape      PrimitiveKind `json:"shape"`
	Dimensions mgl64.Vec3    `json:"dimensions,omitempty"` // box
	Radius     float64       `json:"radius,omitempty"`     // cylinder, sphere
	Height     float64       `json:"height,omitempty"`     // cylinder
	Segments   int           `json:"segments,omitempty"`   // zero uses the graph default
}

func (PrimitiveData) nodeData() {}

// ---------------------------------------------------------------------------
// Transform
// ---------------------------------------------------------------------------

// TransformData moves its single child. Rotation is applied first.
type TransformData struct {
	Translation *mgl64.Vec3 `json:"translation,omitempty"`
	Rotation    *mgl64.Vec3 `json:"rotation,omitempty"` // Euler angles in degrees
}

func (TransformData) nodeData() {}

// ---------------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------------

// BooleanOp enumerates the boolean operations.
type BooleanOp int

const (
	OpUnion BooleanOp = iota
	OpDifference
	OpIntersection
)

func (o BooleanOp) String() string {
	switch o {
	case OpUnion:
		return "union"
	case OpDifference:
		return "difference"
	case OpIntersection:
		return "intersection"
	default:
		return "unknown"
	}
}

// BooleanData folds Op over the node's children left to right: a
// difference subtracts every later child from the first.
type BooleanData struct {
	Op BooleanOp `json:"op"`
}

func (BooleanData) nodeData() {}

// ---------------------------------------------------------------------------
// Group
// ---------------------------------------------------------------------------

// GroupData collects solids that stay separate.
type GroupData struct {
	Description string `json:"description,omitempty"`
}

func (GroupData) nodeData() {}
