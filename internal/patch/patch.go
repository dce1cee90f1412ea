// Package patch stores a scalar field over a rectangle of mesh cells.
package patch

import (
	"fmt"

	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/indexspace"
)

// Patch is a dense, row-major array of values over Rect. Data has exactly
// Rect.Area() elements; (i, j) lives at (i-I.Start)*Nj + (j-J.Start).
type Patch struct {
	Rect indexspace.Rect `cbor:"0,keyasint"`
	Data []float64       `cbor:"1,keyasint"`
}

// New returns a zero-filled patch over rect.
func New(rect indexspace.Rect) Patch {
	return Patch{Rect: rect, Data: make([]float64, rect.Area())}
}

// FromFunc returns a patch whose value at (i, j) is f(i, j).
func FromFunc(rect indexspace.Rect, f func(i, j int64) float64) Patch {
	p := New(rect)
	n := 0
	for i, j := range rect.All() {
		p.Data[n] = f(i, j)
		n++
	}
	return p
}

// Validate checks that Data matches the rectangle.
func (p Patch) Validate() error {
	if !p.Rect.Valid() {
		return fmt.Errorf("patch: malformed rect %v: %w", p.Rect, errors.ErrInvalidInput)
	}
	if len(p.Data) != p.Rect.Area() {
		return fmt.Errorf("patch: %d values for %v (%d cells): %w", len(p.Data), p.Rect, p.Rect.Area(), errors.ErrInvalidInput)
	}
	return nil
}

func (p Patch) offset(i, j int64) int {
	_, nj := p.Rect.Dim()
	return int(i-p.Rect.I.Start)*nj + int(j-p.Rect.J.Start)
}

// At returns the value at (i, j), which must lie inside Rect.
func (p Patch) At(i, j int64) float64 {
	return p.Data[p.offset(i, j)]
}

// Set stores v at (i, j), which must lie inside Rect.
func (p Patch) Set(i, j int64, v float64) {
	p.Data[p.offset(i, j)] = v
}

// Extract copies the values over sub, which must lie inside Rect.
func (p Patch) Extract(sub indexspace.Rect) (Patch, error) {
	if !p.Rect.ContainsRect(sub) {
		return Patch{}, fmt.Errorf("patch: %v is not inside %v: %w", sub, p.Rect, errors.ErrInvalidInput)
	}
	out := New(sub)
	n := 0
	for i, j := range sub.All() {
		out.Data[n] = p.At(i, j)
		n++
	}
	return out, nil
}

// CopyFrom overwrites the cells p shares with src and returns how many were
// copied.
func (p Patch) CopyFrom(src Patch) int {
	overlap, ok := p.Rect.Intersect(src.Rect)
	if !ok {
		return 0
	}
	for i, j := range overlap.All() {
		p.Set(i, j, src.At(i, j))
	}
	return overlap.Area()
}

// Sum returns the sum of all values.
func (p Patch) Sum() float64 {
	s := 0.0
	for _, v := range p.Data {
		s += v
	}
	return s
}
