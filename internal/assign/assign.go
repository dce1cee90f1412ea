// Package assign maps each patch key to the rank that owns it.
//
// The only policy is contiguous block slicing: keys in row-major order are cut
// into equal consecutive groups, one per rank. On a uniform grid this keeps
// most neighbors on the same or an adjacent rank without a general graph
// partitioner. The assignment is computed once and never changes.
package assign

import (
	"fmt"
	"slices"

	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/indexspace"
	"github.com/jzrake/gridflow/internal/rectmap"
)

// Assignment is an immutable key -> rank mapping. It is safe for concurrent
// read-only use.
type Assignment struct {
	ranks  int
	owner  map[indexspace.Rect]int
	byRank [][]indexspace.Rect
}

// Contiguous assigns keys to ranks [0, ranks) in contiguous groups of
// len(keys)/ranks, after sorting the keys into row-major order. The number
// of keys must be a positive multiple of ranks; anything else is a
// configuration error rather than a load-balancing decision.
func Contiguous(keys []indexspace.Rect, ranks int) (*Assignment, error) {
	if ranks <= 0 {
		return nil, errors.NewConfigError("cluster.ranks", ranks, errors.ErrInvalidRankCount)
	}
	if len(keys) == 0 || len(keys)%ranks != 0 {
		return nil, errors.NewConfigError("cluster.ranks", ranks,
			fmt.Errorf("%w: %d blocks over %d ranks", errors.ErrIndivisibleRanks, len(keys), ranks))
	}

	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, indexspace.Compare)
	if i := duplicateIndex(sorted); i >= 0 {
		return nil, fmt.Errorf("assign: key %v appears more than once: %w", sorted[i], errors.ErrInvalidInput)
	}

	per := len(sorted) / ranks
	a := &Assignment{
		ranks:  ranks,
		owner:  make(map[indexspace.Rect]int, len(sorted)),
		byRank: make([][]indexspace.Rect, ranks),
	}
	for n, k := range sorted {
		r := n / per
		a.owner[k] = r
		a.byRank[r] = append(a.byRank[r], k)
	}
	return a, nil
}

// FromMap is Contiguous over the keys of a partition index.
func FromMap[V any](m *rectmap.Map[V], ranks int) (*Assignment, error) {
	return Contiguous(m.Keys(), ranks)
}

func duplicateIndex(sorted []indexspace.Rect) int {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return i
		}
	}
	return -1
}

// Ranks returns the number of ranks.
func (a *Assignment) Ranks() int {
	return a.ranks
}

// Len returns the number of assigned keys.
func (a *Assignment) Len() int {
	return len(a.owner)
}

// Rank returns the owner of key.
func (a *Assignment) Rank(key indexspace.Rect) (int, bool) {
	r, ok := a.owner[key]
	return r, ok
}

// Keys returns the keys owned by rank, in row-major order.
func (a *Assignment) Keys(rank int) []indexspace.Rect {
	if rank < 0 || rank >= a.ranks {
		return nil
	}
	return slices.Clone(a.byRank[rank])
}

// Peers returns the ranks, other than rank itself, that own at least one
// neighbor of a key owned by rank. Because adjacency is symmetric, these are
// exactly the ranks rank must both send to and receive from each round.
func (a *Assignment) Peers(rank int, adj *rectmap.Adjacency) []int {
	seen := make(map[int]bool)
	for _, k := range a.Keys(rank) {
		for _, n := range adj.Neighbors(k) {
			if r, ok := a.owner[n]; ok && r != rank {
				seen[r] = true
			}
		}
	}
	peers := make([]int, 0, len(seen))
	for r := range seen {
		peers = append(peers, r)
	}
	slices.Sort(peers)
	return peers
}
