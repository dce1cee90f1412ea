// Package indexspace describes rectangular, axis-aligned 2-D integer index
// ranges.
//
// A [Rect] is a plain comparable value: it is used directly as a map key for
// patches, adjacency lists, and work assignments. Every operation returns a
// new value; nothing here mutates in place.
//
// Ranges are half-open, [Start, End). Iteration is row-major: the first axis
// is the outer loop.
//
//	r := indexspace.Range2D(indexspace.R(0, 4), indexspace.R(0, 2))
//	for i, j := range r.All() {
//	    fmt.Println(i, j) // (0,0) (0,1) (1,0) ...
//	}
//
// Halo regions are built with [Rect.ExtendAll]; block-index to cell-index
// conversion uses [Rect.Scale].
package indexspace
