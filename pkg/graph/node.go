package graph

import (
	"encoding/json"

	"github.com/google/uuid"
)

// nodeNamespace seeds deterministic node IDs.
var nodeNamespace = uuid.MustParse("6f1f0a52-8c4e-4d61-9d0e-3b7a51f1c2d8")

// NodeID identifies a node. IDs are derived from the path of the form that
// created the node, so evaluating the same recipe twice gives the same IDs.
type NodeID uuid.UUID

// NewNodeID returns the ID for the given creation path.
func NewNodeID(path string) NodeID {
	return NodeID(uuid.NewSHA1(nodeNamespace, []byte(path)))
}

// IsZero reports whether id is unset.
func (id NodeID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

func (id NodeID) String() string { return uuid.UUID(id).String() }

// Short returns the first eight hex digits, for messages.
func (id NodeID) Short() string { return id.String()[:8] }

func (id NodeID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *NodeID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// NodeKind enumerates the types of nodes in the shape graph.
type NodeKind int

const (
	NodePrimitive NodeKind = iota // box, cylinder or sphere
	NodeTransform                 // translation and rotation of one child
	NodeBoolean                   // union, difference or intersection of ordered children
	NodeGroup                     // named collection of independent solids
)

func (k NodeKind) String() string {
	switch k {
	case NodePrimitive:
		return "primitive"
	case NodeTransform:
		return "transform"
	case NodeBoolean:
		return "boolean"
	case NodeGroup:
		return "group"
	default:
		return "unknown"
	}
}

func (k NodeKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

// SourceRef locates the recipe form that created a node.
type SourceRef struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Node is the fundamental element of the shape graph.
type Node struct {
	ID       NodeID    `json:"id"`
	Kind     NodeKind  `json:"kind"`
	Name     string    `json:"name,omitempty"`
	Source   SourceRef `json:"source"`
	Children []NodeID  `json:"children,omitempty"`
	Data     NodeData  `json:"data"`
}

// NodeData is the interface for kind-specific node payloads.
type NodeData interface {
	nodeData() // marker method restricting implementations to this package
}
