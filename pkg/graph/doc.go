// Package graph defines the shape graph produced by evaluating a recipe.
// The graph is an immutable DAG of primitives, transforms, booleans and
// groups; its roots are the solids handed to the fracture drivers.
package graph
