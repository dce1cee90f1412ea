package mesh

import (
	"math"
	"testing"

	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/indexspace"
)

func TestSquareGeometry(t *testing.T) {
	m := Square(200)
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	dx, dy := m.CellSpacing()
	if dx != 0.01 || dy != 0.01 {
		t.Errorf("CellSpacing() = (%v, %v), want (0.01, 0.01)", dx, dy)
	}
	if got := m.TotalZones(); got != 40000 {
		t.Errorf("TotalZones() = %d, want 40000", got)
	}

	x, y := m.CellCenter(0, 199)
	if math.Abs(x+0.995) > 1e-12 || math.Abs(y-0.995) > 1e-12 {
		t.Errorf("CellCenter(0, 199) = (%v, %v), want (-0.995, 0.995)", x, y)
	}
}

func TestMinSpacing(t *testing.T) {
	m := Mesh{X: Interval{0, 4}, Y: Interval{0, 1}, Ni: 4, Nj: 4}
	if got := m.MinSpacing(); got != 0.25 {
		t.Errorf("MinSpacing() = %v, want 0.25", got)
	}
}

func TestBlocks(t *testing.T) {
	tests := []struct {
		name    string
		n, bs   int64
		want    int
		wantErr error
	}{
		{name: "even split", n: 200, bs: 50, want: 16},
		{name: "single block", n: 64, bs: 64, want: 1},
		{name: "indivisible", n: 100, bs: 30, wantErr: errors.ErrIndivisibleGrid},
		{name: "zero block", n: 100, bs: 0, wantErr: errors.ErrInvalidInput},
		{name: "empty mesh", n: 0, bs: 10, wantErr: errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := Square(tt.n).Blocks(tt.bs)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Blocks() error = %v, want %v", err, tt.wantErr)
				}
				var cfg *errors.ConfigError
				if !errors.As(err, &cfg) {
					t.Errorf("error %T is not a ConfigError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Blocks() = %v", err)
			}
			if len(keys) != tt.want {
				t.Fatalf("got %d blocks, want %d", len(keys), tt.want)
			}
			area := 0
			for n, k := range keys {
				area += k.Area()
				if n > 0 && indexspace.Compare(keys[n-1], k) >= 0 {
					t.Errorf("blocks not in row-major order at %d", n)
				}
			}
			if int64(area) != tt.n*tt.n {
				t.Errorf("blocks cover %d cells, want %d", area, tt.n*tt.n)
			}
		})
	}
}
