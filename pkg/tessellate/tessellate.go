// Package tessellate walks a shape graph and produces geometry with a
// kernel: one solid per root, ready to fracture or to render as is. It
// also flattens fractured meshes back into render buffers.
package tessellate

import (
	"fmt"

	"github.com/chazu/shatter/pkg/ehm"
	"github.com/chazu/shatter/pkg/graph"
	"github.com/chazu/shatter/pkg/kernel"
	"github.com/chazu/shatter/pkg/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// Shape is one solid produced from the graph. Groups at the root give one
// Shape per member.
type Shape struct {
	Name  string
	Node  graph.NodeID
	Solid kernel.Solid
}

// Solids walks the shape graph and builds one kernel solid per root, or
// per member of a root group. The walk is read-only and never mutates the
// graph.
func Solids(g *graph.ShapeGraph, k kernel.Kernel) ([]Shape, error) {
	if g == nil {
		return nil, nil
	}

	var shapes []Shape
	for i, rootID := range g.Roots {
		root := g.Get(rootID)
		if root == nil {
			continue
		}
		solids, err := walkNode(g, k, root)
		if err != nil {
			return nil, fmt.Errorf("tessellate: error walking root %s: %w", rootID.Short(), err)
		}
		name := g.RootName(i)
		for j, s := range solids {
			sh := Shape{Name: name, Node: rootID, Solid: s}
			if len(solids) > 1 {
				sh.Name = fmt.Sprintf("%s.%d", name, j)
			}
			shapes = append(shapes, sh)
		}
	}
	return shapes, nil
}

// Solid builds the node id as one solid. A group yields the union of its
// members.
func Solid(g *graph.ShapeGraph, k kernel.Kernel, id graph.NodeID) (kernel.Solid, error) {
	n := g.Get(id)
	if n == nil {
		return nil, fmt.Errorf("tessellate: node %s does not exist", id.Short())
	}
	solids, err := walkNode(g, k, n)
	if err != nil {
		return nil, fmt.Errorf("tessellate: error walking %s: %w", id.Short(), err)
	}
	if len(solids) == 0 {
		return nil, fmt.Errorf("tessellate: node %s has no geometry", id.Short())
	}
	s := solids[0]
	for _, other := range solids[1:] {
		s = k.Union(s, other)
	}
	return s, nil
}

// Tessellate builds every root and returns one render mesh per shape.
func Tessellate(g *graph.ShapeGraph, k kernel.Kernel) ([]*kernel.Mesh, error) {
	shapes, err := Solids(g, k)
	if err != nil {
		return nil, err
	}
	meshes := make([]*kernel.Mesh, 0, len(shapes))
	for _, sh := range shapes {
		m, err := k.ToMesh(sh.Solid)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for %s: %w", sh.Name, err)
		}
		m.PartName = sh.Name
		meshes = append(meshes, m)
	}
	return meshes, nil
}

// walkNode recursively builds a node. Groups return their members
// separately; every other kind returns a single solid.
func walkNode(g *graph.ShapeGraph, k kernel.Kernel, n *graph.Node) ([]kernel.Solid, error) {
	switch n.Kind {
	case graph.NodePrimitive:
		s, err := handlePrimitive(g, k, n)
		if err != nil {
			return nil, err
		}
		return []kernel.Solid{s}, nil

	case graph.NodeTransform:
		return handleTransform(g, k, n)

	case graph.NodeBoolean:
		s, err := handleBoolean(g, k, n)
		if err != nil {
			return nil, err
		}
		return []kernel.Solid{s}, nil

	case graph.NodeGroup:
		var solids []kernel.Solid
		for _, child := range g.Children(n) {
			collected, err := walkNode(g, k, child)
			if err != nil {
				return nil, err
			}
			solids = append(solids, collected...)
		}
		return solids, nil

	default:
		return nil, fmt.Errorf("unknown node kind: %v", n.Kind)
	}
}

// handlePrimitive creates geometry for a primitive node.
func handlePrimitive(g *graph.ShapeGraph, k kernel.Kernel, n *graph.Node) (kernel.Solid, error) {
	data, ok := n.Data.(graph.PrimitiveData)
	if !ok {
		return nil, fmt.Errorf("primitive node %s has unsupported data type %T", n.ID.Short(), n.Data)
	}
	segments := data.Segments
	if segments == 0 {
		segments = g.Defaults.Segments
	}
	switch data.Shape {
	case graph.PrimBox:
		return k.Box(data.Dimensions[0], data.Dimensions[1], data.Dimensions[2]), nil
	case graph.PrimCylinder:
		return k.Cylinder(data.Height, data.Radius, segments), nil
	case graph.PrimSphere:
		return k.Sphere(data.Radius, segments), nil
	default:
		return nil, fmt.Errorf("primitive node %s has unknown shape %d", n.ID.Short(), int(data.Shape))
	}
}

// handleTransform builds the children and moves each one: rotation first,
// then translation.
func handleTransform(g *graph.ShapeGraph, k kernel.Kernel, n *graph.Node) ([]kernel.Solid, error) {
	td, ok := n.Data.(graph.TransformData)
	if !ok {
		return nil, fmt.Errorf("transform node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}

	var solids []kernel.Solid
	for _, child := range g.Children(n) {
		collected, err := walkNode(g, k, child)
		if err != nil {
			return nil, err
		}
		solids = append(solids, collected...)
	}
	for i, s := range solids {
		if r := td.Rotation; r != nil && *r != (mgl64.Vec3{}) {
			s = k.Rotate(s, r[0], r[1], r[2])
		}
		if t := td.Translation; t != nil && *t != (mgl64.Vec3{}) {
			s = k.Translate(s, t[0], t[1], t[2])
		}
		solids[i] = s
	}
	return solids, nil
}

// handleBoolean folds the operation over the children in order. A group
// operand counts as the union of its members.
func handleBoolean(g *graph.ShapeGraph, k kernel.Kernel, n *graph.Node) (kernel.Solid, error) {
	bd, ok := n.Data.(graph.BooleanData)
	if !ok {
		return nil, fmt.Errorf("boolean node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}

	var acc kernel.Solid
	for _, child := range g.Children(n) {
		collected, err := walkNode(g, k, child)
		if err != nil {
			return nil, err
		}
		if len(collected) == 0 {
			continue
		}
		operand := collected[0]
		for _, s := range collected[1:] {
			operand = k.Union(operand, s)
		}
		if acc == nil {
			acc = operand
			continue
		}
		switch bd.Op {
		case graph.OpUnion:
			acc = k.Union(acc, operand)
		case graph.OpDifference:
			acc = k.Difference(acc, operand)
		case graph.OpIntersection:
			acc = k.Intersection(acc, operand)
		default:
			return nil, fmt.Errorf("boolean node %s has unknown operation %d", n.ID.Short(), int(bd.Op))
		}
	}
	if acc == nil {
		return nil, fmt.Errorf("boolean node %s has no operands", n.ID.Short())
	}
	return acc, nil
}

// Chunks flattens the chunks of a fractured mesh seen at depth into render
// meshes: every chunk at that depth, plus leaves above it. A negative
// depth selects every leaf. Instanced chunks are moved by their offset.
func Chunks(m *ehm.Mesh, name string, depth int) []*kernel.Mesh {
	var out []*kernel.Mesh
	for i, ch := range m.Chunks {
		d := m.Depth(i)
		leaf := len(m.Children(i)) == 0
		switch {
		case depth < 0 && !leaf:
			continue
		case depth >= 0 && d != depth && !(leaf && d < depth):
			continue
		}
		var offset mgl64.Vec3
		if ch.Flags&ehm.ChunkIsInstanced != 0 {
			offset = ch.InstancedPositionOffset
		}
		km := kernel.FromTriangles(m.Parts[ch.PartIndex].Mesh, offset)
		km.PartName = fmt.Sprintf("%s/%d", name, i)
		km.Chunk = i
		km.Depth = d
		out = append(out, km)
	}
	return out
}

// Triangles returns the surface of every shape, in Solids order.
func Triangles(shapes []Shape, k kernel.Kernel) ([][]mesh.RenderTriangle, error) {
	out := make([][]mesh.RenderTriangle, len(shapes))
	for i, sh := range shapes {
		tris, err := k.Triangles(sh.Solid)
		if err != nil {
			return nil, fmt.Errorf("tessellate: %s: %w", sh.Name, err)
		}
		out[i] = tris
	}
	return out, nil
}
