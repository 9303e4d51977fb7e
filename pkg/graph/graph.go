package graph

import (
	"fmt"
	"sort"
)

// DefaultSegments is the default facet count for curved primitives.
const DefaultSegments = 24

// GlobalDefaults contains graph-wide default settings.
type GlobalDefaults struct {
	Segments int    `json:"segments"` // facets around curved primitives
	Units    string `json:"units"`    // label only; geometry is unitless
}

// ShapeGraph is the immutable data structure produced by recipe
// evaluation. It is never mutated in place; each evaluation produces a
// new graph.
type ShapeGraph struct {
	Nodes     map[NodeID]*Node  `json:"nodes"`
	Roots     []NodeID          `json:"roots"`
	NameIndex map[string]NodeID `json:"name_index"`
	Defaults  GlobalDefaults    `json:"defaults"`
	Version   uint64            `json:"version"`
}

// New creates an empty ShapeGraph with default settings.
func New() *ShapeGraph {
	return &ShapeGraph{
		Nodes:     make(map[NodeID]*Node),
		NameIndex: make(map[string]NodeID),
		Defaults: GlobalDefaults{
			Segments: DefaultSegments,
			Units:    "m",
		},
	}
}

// AddNode adds a node to the graph. It does not check for duplicates.
func (g *ShapeGraph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
	if n.Name != "" {
		g.NameIndex[n.Name] = n.ID
	}
}

// AddRoot registers a node ID as a root of the graph.
func (g *ShapeGraph) AddRoot(id NodeID) {
	g.Roots = append(g.Roots, id)
}

// Lookup returns the node with the given user-assigned name, or nil.
func (g *ShapeGraph) Lookup(name string) *Node {
	id, ok := g.NameIndex[name]
	if !ok {
		return nil
	}
	return g.Nodes[id]
}

// MustLookup returns the node with the given name, or panics.
func (g *ShapeGraph) MustLookup(name string) *Node {
	n := g.Lookup(name)
	if n == nil {
		panic(fmt.Sprintf("graph: no node named %q", name))
	}
	return n
}

// Get returns the node with the given ID, or nil.
func (g *ShapeGraph) Get(id NodeID) *Node {
	return g.Nodes[id]
}

// Primitives returns all primitive nodes ordered by ID.
func (g *ShapeGraph) Primitives() []*Node {
	var prims []*Node
	for _, n := range g.Nodes {
		if n.Kind == NodePrimitive {
			prims = append(prims, n)
		}
	}
	sort.Slice(prims, func(i, j int) bool { return prims[i].ID.String() < prims[j].ID.String() })
	return prims
}

// Children returns the child nodes of the given node.
func (g *ShapeGraph) Children(n *Node) []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		if c := g.Nodes[cid]; c != nil {
			children = append(children, c)
		}
	}
	return children
}

// NodeCount returns the total number of nodes.
func (g *ShapeGraph) NodeCount() int {
	return len(g.Nodes)
}

// RootName returns a display name for a root: its own name, or its kind
// and position among the roots.
func (g *ShapeGraph) RootName(i int) string {
	n := g.Nodes[g.Roots[i]]
	if n == nil {
		return fmt.Sprintf("root%d", i)
	}
	if n.Name != "" {
		return n.Name
	}
	if d, ok := n.Data.(PrimitiveData); ok {
		return fmt.Sprintf("%s%d", d.Shape, i)
	}
	return fmt.Sprintf("%s%d", n.Kind, i)
}
