package rectmap

import (
	"slices"

	"github.com/jzrake/gridflow/internal/indexspace"
)

// Edge is an unordered pair of adjacent keys, stored with A before B in
// row-major order.
type Edge struct {
	A, B indexspace.Rect
}

// Adjacency is the symmetric, self-edge-free neighbor relation of a
// partition. It is immutable after construction.
type Adjacency struct {
	radius    int64
	keys      []indexspace.Rect
	neighbors map[indexspace.Rect][]indexspace.Rect
}

// Radius returns the halo radius the graph was built with.
func (a *Adjacency) Radius() int64 {
	return a.radius
}

// Keys returns every vertex in row-major order, including isolated ones.
func (a *Adjacency) Keys() []indexspace.Rect {
	return slices.Clone(a.keys)
}

// Len returns the number of vertices.
func (a *Adjacency) Len() int {
	return len(a.keys)
}

// Neighbors returns the keys adjacent to key in row-major order. Unknown keys
// have no neighbors.
func (a *Adjacency) Neighbors(key indexspace.Rect) []indexspace.Rect {
	return slices.Clone(a.neighbors[key])
}

// Contains reports whether x and y are adjacent.
func (a *Adjacency) Contains(x, y indexspace.Rect) bool {
	_, found := slices.BinarySearchFunc(a.neighbors[x], y, indexspace.Compare)
	return found
}

// Edges returns every edge once, ordered by A then B.
func (a *Adjacency) Edges() []Edge {
	var edges []Edge
	for _, k := range a.keys {
		for _, n := range a.neighbors[k] {
			if indexspace.Compare(k, n) < 0 {
				edges = append(edges, Edge{A: k, B: n})
			}
		}
	}
	return edges
}

// Equal reports whether two graphs have the same vertices and edges.
func (a *Adjacency) Equal(b *Adjacency) bool {
	if !slices.Equal(a.keys, b.keys) {
		return false
	}
	for _, k := range a.keys {
		if !slices.Equal(a.neighbors[k], b.neighbors[k]) {
			return false
		}
	}
	return true
}
