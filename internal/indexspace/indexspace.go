package indexspace

import (
	"cmp"
	"fmt"
	"iter"
)

// Range is a half-open integer interval [Start, End).
type Range struct {
	Start int64 `cbor:"0,keyasint"`
	End   int64 `cbor:"1,keyasint"`
}

// R is shorthand for Range{start, end}.
func R(start, end int64) Range {
	return Range{Start: start, End: end}
}

// Len returns the number of indexes in the range.
func (r Range) Len() int {
	return int(r.End - r.Start)
}

// Contains reports whether i lies in [Start, End).
func (r Range) Contains(i int64) bool {
	return r.Start <= i && i < r.End
}

// Valid reports whether Start <= End.
func (r Range) Valid() bool {
	return r.Start <= r.End
}

// Rect is a 2-D index space made of two independent ranges.
//
// The zero value is the empty space at the origin. Rect is comparable and
// may be used as a map key.
type Rect struct {
	I Range `cbor:"0,keyasint"`
	J Range `cbor:"1,keyasint"`
}

// New constructs a Rect, rejecting malformed ranges.
func New(di, dj Range) (Rect, error) {
	if !di.Valid() {
		return Rect{}, fmt.Errorf("indexspace: malformed first-axis range [%d, %d)", di.Start, di.End)
	}
	if !dj.Valid() {
		return Rect{}, fmt.Errorf("indexspace: malformed second-axis range [%d, %d)", dj.Start, dj.End)
	}
	return Rect{I: di, J: dj}, nil
}

// Range2D is like New but panics on malformed input. It is intended for
// literal construction where the ranges are known to be valid.
func Range2D(di, dj Range) Rect {
	r, err := New(di, dj)
	if err != nil {
		panic(err)
	}
	return r
}

// Dim returns the number of indexes on each axis.
func (r Rect) Dim() (int, int) {
	return r.I.Len(), r.J.Len()
}

// Area returns the total number of indexes.
func (r Rect) Area() int {
	ni, nj := r.Dim()
	return ni * nj
}

// Empty reports whether the space contains no indexes.
func (r Rect) Empty() bool {
	return r.I.Len() <= 0 || r.J.Len() <= 0
}

// Start returns the lower corner.
func (r Rect) Start() (int64, int64) {
	return r.I.Start, r.J.Start
}

// End returns the (exclusive) upper corner.
func (r Rect) End() (int64, int64) {
	return r.I.End, r.J.End
}

// Valid reports whether both ranges are well-formed.
func (r Rect) Valid() bool {
	return r.I.Valid() && r.J.Valid()
}

// Contains reports whether (i, j) lies inside the space.
func (r Rect) Contains(i, j int64) bool {
	return r.I.Contains(i) && r.J.Contains(j)
}

// ContainsRect reports whether o lies entirely inside r. An empty o is
// contained in everything.
func (r Rect) ContainsRect(o Rect) bool {
	if o.Empty() {
		return true
	}
	return r.I.Start <= o.I.Start && o.I.End <= r.I.End &&
		r.J.Start <= o.J.Start && o.J.End <= r.J.End
}

// ExtendAll pads both axes by delta on each side. A negative delta shrinks
// the space; shrinking past zero width collapses that axis to empty.
func (r Rect) ExtendAll(delta int64) Rect {
	return Rect{I: extend(r.I, delta), J: extend(r.J, delta)}
}

func extend(r Range, delta int64) Range {
	out := Range{Start: r.Start - delta, End: r.End + delta}
	if out.End < out.Start {
		mid := r.Start + int64(r.Len())/2
		return Range{Start: mid, End: mid}
	}
	return out
}

// Scale multiplies every bound by factor. It maps block-index space to
// cell-index space when factor is the block size. factor must be positive.
func (r Rect) Scale(factor int64) Rect {
	if factor <= 0 {
		panic(fmt.Sprintf("indexspace: scale factor must be positive, got %d", factor))
	}
	return Rect{
		I: Range{Start: r.I.Start * factor, End: r.I.End * factor},
		J: Range{Start: r.J.Start * factor, End: r.J.End * factor},
	}
}

// Intersect returns the overlap of r and o and whether it is non-empty.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	out := Rect{
		I: Range{Start: max(r.I.Start, o.I.Start), End: min(r.I.End, o.I.End)},
		J: Range{Start: max(r.J.Start, o.J.Start), End: min(r.J.End, o.J.End)},
	}
	if out.Empty() {
		return Rect{}, false
	}
	return out, true
}

// Overlaps reports whether r and o share at least one index.
func (r Rect) Overlaps(o Rect) bool {
	_, ok := r.Intersect(o)
	return ok
}

// All yields every (i, j) pair in row-major order. The sequence is finite
// and may be ranged over any number of times.
func (r Rect) All() iter.Seq2[int64, int64] {
	return func(yield func(int64, int64) bool) {
		for i := r.I.Start; i < r.I.End; i++ {
			for j := r.J.Start; j < r.J.End; j++ {
				if !yield(i, j) {
					return
				}
			}
		}
	}
}

// String renders the space as [i0,i1)x[j0,j1).
func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)", r.I.Start, r.I.End, r.J.Start, r.J.End)
}

// Compare orders rectangles in row-major order of their lower corner, then
// by their upper corner. It is suitable for slices.SortFunc.
func Compare(a, b Rect) int {
	if c := cmp.Compare(a.I.Start, b.I.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.J.Start, b.J.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.I.End, b.I.End); c != 0 {
		return c
	}
	return cmp.Compare(a.J.End, b.J.End)
}
