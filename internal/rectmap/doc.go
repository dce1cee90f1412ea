// Package rectmap stores one value per non-overlapping rectangle and derives
// the neighbor graph of those rectangles from their geometry.
//
// A [Map] is built once from the patches of a uniform block decomposition.
// [Map.Adjacency] then computes which keys must exchange boundary data: two
// keys are adjacent when one of them, padded by the halo radius, overlaps the
// other. The resulting [Adjacency] is immutable and safe to share across
// goroutines.
//
// The test is the naive pairwise one. The number of patches is orders of
// magnitude below the number of cells, so it runs once at startup and is not
// on the round path.
package rectmap
