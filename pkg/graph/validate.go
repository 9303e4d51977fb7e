package graph

import (
	"fmt"
	"sort"
)

// ValidationSeverity indicates whether a validation finding blocks evaluation
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks evaluation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   NodeID             // which node has the problem (zero if graph-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID.Short(), e.Message)
}

// ValidationWarning describes a non-blocking advisory finding.
type ValidationWarning struct {
	NodeID  NodeID
	Message string
}

// ValidationResult bundles errors (blocking) and warnings (advisory)
// from all validation tiers.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// Validate runs the structural checks on the shape graph and returns
// every finding. An empty slice means the graph is valid. This function is
// read-only and never mutates the graph.
func Validate(g *ShapeGraph) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateDAG(g)...)
	errs = append(errs, validateReferences(g)...)
	errs = append(errs, validateNames(g)...)
	errs = append(errs, validateRoots(g)...)
	errs = append(errs, validateShapes(g)...)
	return errs
}

// ValidateAll runs Validate and separates errors from warnings.
func ValidateAll(g *ShapeGraph) ValidationResult {
	var result ValidationResult
	for _, e := range Validate(g) {
		if e.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, ValidationWarning{
				NodeID:  e.NodeID,
				Message: e.Message,
			})
		} else {
			result.Errors = append(result.Errors, e)
		}
	}
	return result
}

// sortedIDs returns the node IDs in a stable order so findings come out
// the same on every run.
func sortedIDs(g *ShapeGraph) []NodeID {
	ids := make([]NodeID, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// validateDAG reports the first cycle found through Children edges. A shape
// can be shared by several parents, so only a node on the current path
// closes a cycle.
func validateDAG(g *ShapeGraph) []ValidationError {
	onPath := make(map[NodeID]bool)
	done := make(map[NodeID]bool)

	var cyclic NodeID
	var walk func(id NodeID) bool
	walk = func(id NodeID) bool {
		if done[id] {
			return false
		}
		if onPath[id] {
			cyclic = id
			return true
		}
		n, ok := g.Nodes[id]
		if !ok {
			return false
		}
		onPath[id] = true
		for _, c := range n.Children {
			if walk(c) {
				return true
			}
		}
		delete(onPath, id)
		done[id] = true
		return false
	}

	for _, id := range sortedIDs(g) {
		if walk(id) {
			return []ValidationError{{
				NodeID:   cyclic,
				Message:  fmt.Sprintf("cycle detected: shape %s contains itself", cyclic.Short()),
				Severity: SeverityError,
			}}
		}
	}
	return nil
}

// validateReferences checks that every child of every node exists.
func validateReferences(g *ShapeGraph) []ValidationError {
	var errs []ValidationError
	for _, id := range sortedIDs(g) {
		for _, c := range g.Nodes[id].Children {
			if g.Nodes[c] == nil {
				errs = append(errs, ValidationError{
					NodeID:   id,
					Message:  fmt.Sprintf("child reference %s does not exist", c.Short()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateNames checks that defshape names are unique and that the name
// index only points at live nodes.
func validateNames(g *ShapeGraph) []ValidationError {
	var errs []ValidationError

	names := make([]string, 0, len(g.NameIndex))
	for name := range g.NameIndex {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if id := g.NameIndex[name]; g.Nodes[id] == nil {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("name index entry %q references non-existent node %s", name, id.Short()),
				Severity: SeverityError,
			})
		}
	}

	count := make(map[string]int)
	for _, id := range sortedIDs(g) {
		name := g.Nodes[id].Name
		if name == "" {
			continue
		}
		count[name]++
		if count[name] == 2 {
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("duplicate name %q", name),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateRoots checks the mesh roots and warns about shapes that no root
// uses. Such shapes are built by the recipe but never fractured.
func validateRoots(g *ShapeGraph) []ValidationError {
	var errs []ValidationError
	used := make(map[NodeID]bool)

	var mark func(id NodeID)
	mark = func(id NodeID) {
		n := g.Nodes[id]
		if n == nil || used[id] {
			return
		}
		used[id] = true
		for _, c := range n.Children {
			mark(c)
		}
	}
	for _, r := range g.Roots {
		if g.Nodes[r] == nil {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("root reference %s does not exist", r.Short()),
				Severity: SeverityError,
			})
			continue
		}
		mark(r)
	}

	for _, id := range sortedIDs(g) {
		if used[id] {
			continue
		}
		n := g.Nodes[id]
		label := n.Name
		if label == "" {
			label = n.Kind.String() + " " + id.Short()
		}
		errs = append(errs, ValidationError{
			NodeID:   id,
			Message:  fmt.Sprintf("%s is never meshed (orphan)", label),
			Severity: SeverityWarning,
		})
	}
	return errs
}

// validateShapes checks primitive dimensions and that every node has the
// number of children its kind needs.
func validateShapes(g *ShapeGraph) []ValidationError {
	var errs []ValidationError
	bad := func(n *Node, format string, args ...any) {
		errs = append(errs, ValidationError{
			NodeID:   n.ID,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityError,
		})
	}

	for _, node := range g.Nodes {
		switch d := node.Data.(type) {
		case PrimitiveData:
			if len(node.Children) != 0 {
				bad(node, "%s has children", d.Shape)
			}
			switch d.Shape {
			case PrimBox:
				if d.Dimensions[0] <= 0 || d.Dimensions[1] <= 0 || d.Dimensions[2] <= 0 {
					bad(node, "box dimensions %v must be positive", d.Dimensions)
				}
			case PrimCylinder:
				if d.Radius <= 0 || d.Height <= 0 {
					bad(node, "cylinder radius %g and height %g must be positive", d.Radius, d.Height)
				}
			case PrimSphere:
				if d.Radius <= 0 {
					bad(node, "sphere radius %g must be positive", d.Radius)
				}
			default:
				bad(node, "unknown primitive shape %d", int(d.Shape))
			}
			if d.Segments < 0 || (d.Segments > 0 && d.Segments < 3) {
				bad(node, "%s needs at least 3 segments, got %d", d.Shape, d.Segments)
			}

		case TransformData:
			if len(node.Children) != 1 {
				bad(node, "transform has %d children, want 1", len(node.Children))
			}

		case BooleanData:
			if d.Op < OpUnion || d.Op > OpIntersection {
				bad(node, "unknown boolean operation %d", int(d.Op))
			}
			switch len(node.Children) {
			case 0:
				bad(node, "%s has no operands", d.Op)
			case 1:
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  fmt.Sprintf("%s has one operand and passes it through", d.Op),
					Severity: SeverityWarning,
				})
			}

		case GroupData:

		default:
			bad(node, "%s node has no data", node.Kind)
		}
	}

	return errs
}
