package rectmap

import (
	"fmt"
	"iter"
	"slices"

	"github.com/jzrake/gridflow/internal/indexspace"
)

// Map associates an opaque value with each rectangle of a partition.
// It is not safe for concurrent mutation; build it, then share it read-only.
type Map[V any] struct {
	entries map[indexspace.Rect]V
}

// New returns an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{entries: make(map[indexspace.Rect]V)}
}

// Collect builds a Map from a sequence of (key, value) pairs. Later pairs
// with the same key replace earlier ones.
func Collect[V any](seq iter.Seq2[indexspace.Rect, V]) *Map[V] {
	m := New[V]()
	for k, v := range seq {
		m.entries[k] = v
	}
	return m
}

// Insert stores value under key, replacing any previous value for the same
// key. Overlap with other keys is not checked here; see Validate.
func (m *Map[V]) Insert(key indexspace.Rect, value V) {
	m.entries[key] = value
}

// Get returns the value stored under key.
func (m *Map[V]) Get(key indexspace.Rect) (V, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Len returns the number of keys.
func (m *Map[V]) Len() int {
	return len(m.entries)
}

// Keys returns every key in row-major order.
func (m *Map[V]) Keys() []indexspace.Rect {
	keys := make([]indexspace.Rect, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, indexspace.Compare)
	return keys
}

// All yields (key, value) pairs in row-major key order.
func (m *Map[V]) All() iter.Seq2[indexspace.Rect, V] {
	return func(yield func(indexspace.Rect, V) bool) {
		for _, k := range m.Keys() {
			if !yield(k, m.entries[k]) {
				return
			}
		}
	}
}

// Values returns the values in row-major key order.
func (m *Map[V]) Values() []V {
	out := make([]V, 0, len(m.entries))
	for _, v := range m.All() {
		out = append(out, v)
	}
	return out
}

// Validate checks that every key is a well-formed, non-empty rectangle and
// that no two keys overlap.
func (m *Map[V]) Validate() error {
	keys := m.Keys()
	for _, k := range keys {
		if !k.Valid() || k.Empty() {
			return fmt.Errorf("rectmap: key %v is empty or malformed", k)
		}
	}
	for a := range keys {
		for b := a + 1; b < len(keys); b++ {
			if keys[a].Overlaps(keys[b]) {
				return fmt.Errorf("rectmap: keys %v and %v overlap", keys[a], keys[b])
			}
		}
	}
	return nil
}

// Adjacency derives the neighbor graph at the given halo radius. A radius
// below 1 yields a graph with no edges for a valid partition.
func (m *Map[V]) Adjacency(radius int64) *Adjacency {
	keys := m.Keys()
	adj := &Adjacency{
		radius:    radius,
		keys:      keys,
		neighbors: make(map[indexspace.Rect][]indexspace.Rect, len(keys)),
	}
	for _, k := range keys {
		adj.neighbors[k] = nil
	}

	for a := range keys {
		halo := keys[a].ExtendAll(radius)
		for b := a + 1; b < len(keys); b++ {
			if !halo.Overlaps(keys[b]) {
				continue
			}
			adj.neighbors[keys[a]] = append(adj.neighbors[keys[a]], keys[b])
			adj.neighbors[keys[b]] = append(adj.neighbors[keys[b]], keys[a])
		}
	}
	for k, ns := range adj.neighbors {
		slices.SortFunc(ns, indexspace.Compare)
		adj.neighbors[k] = ns
	}
	return adj
}
