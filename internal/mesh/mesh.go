// Package mesh describes the uniform Cartesian mesh the driver runs on and
// its decomposition into equal square blocks.
package mesh

import (
	"fmt"

	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/indexspace"
)

// Interval is a closed coordinate interval [Lo, Hi].
type Interval struct {
	Lo float64 `cbor:"0,keyasint"`
	Hi float64 `cbor:"1,keyasint"`
}

// Width returns Hi - Lo.
func (i Interval) Width() float64 {
	return i.Hi - i.Lo
}

// Mesh is a uniform grid of Ni x Nj cells covering X x Y.
type Mesh struct {
	X  Interval `cbor:"0,keyasint"`
	Y  Interval `cbor:"1,keyasint"`
	Ni int64    `cbor:"2,keyasint"`
	Nj int64    `cbor:"3,keyasint"`
}

// Square returns an n x n mesh over [-1, 1] x [-1, 1].
func Square(n int64) Mesh {
	return Mesh{
		X:  Interval{Lo: -1, Hi: 1},
		Y:  Interval{Lo: -1, Hi: 1},
		Ni: n,
		Nj: n,
	}
}

// Validate rejects meshes with no cells or an inverted area.
func (m Mesh) Validate() error {
	if m.Ni <= 0 || m.Nj <= 0 {
		return errors.NewConfigError("grid.resolution", fmt.Sprintf("%dx%d", m.Ni, m.Nj), errors.ErrInvalidInput)
	}
	if m.X.Width() <= 0 || m.Y.Width() <= 0 {
		return errors.NewConfigError("grid.area", fmt.Sprintf("%v x %v", m.X, m.Y), errors.ErrInvalidInput)
	}
	return nil
}

// Index returns the cell index space [0, Ni) x [0, Nj).
func (m Mesh) Index() indexspace.Rect {
	return indexspace.Range2D(indexspace.R(0, m.Ni), indexspace.R(0, m.Nj))
}

// TotalZones returns the number of cells.
func (m Mesh) TotalZones() int64 {
	return m.Ni * m.Nj
}

// CellSpacing returns the cell width on each axis.
func (m Mesh) CellSpacing() (dx, dy float64) {
	return m.X.Width() / float64(m.Ni), m.Y.Width() / float64(m.Nj)
}

// MinSpacing returns the smaller of the two cell widths.
func (m Mesh) MinSpacing() float64 {
	dx, dy := m.CellSpacing()
	return min(dx, dy)
}

// CellCenter returns the coordinates of the center of cell (i, j). Indexes
// outside the mesh extrapolate linearly.
func (m Mesh) CellCenter(i, j int64) (x, y float64) {
	dx, dy := m.CellSpacing()
	return m.X.Lo + (float64(i)+0.5)*dx, m.Y.Lo + (float64(j)+0.5)*dy
}

// Blocks returns the keys of the bs x bs blocks tiling the mesh, in
// row-major order. The block size must divide both mesh dimensions.
func (m Mesh) Blocks(bs int64) ([]indexspace.Rect, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if bs <= 0 {
		return nil, errors.NewConfigError("grid.block_size", bs, errors.ErrInvalidInput)
	}
	if m.Ni%bs != 0 || m.Nj%bs != 0 {
		return nil, errors.NewConfigError("grid.block_size", bs,
			fmt.Errorf("%w: %dx%d cells in blocks of %d", errors.ErrIndivisibleGrid, m.Ni, m.Nj, bs))
	}

	ni, nj := m.Ni/bs, m.Nj/bs
	keys := make([]indexspace.Rect, 0, ni*nj)
	for i, j := range indexspace.Range2D(indexspace.R(0, ni), indexspace.R(0, nj)).All() {
		keys = append(keys, indexspace.Range2D(indexspace.R(i, i+1), indexspace.R(j, j+1)).Scale(bs))
	}
	return keys, nil
}
