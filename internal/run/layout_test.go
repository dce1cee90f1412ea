package run

import (
	"slices"
	"testing"

	"github.com/jzrake/gridflow/internal/config"
	"github.com/jzrake/gridflow/internal/errors"
)

func testConfig(resolution, blockSize, ranks int) *config.Config {
	cfg := config.Default()
	cfg.Grid.Resolution = resolution
	cfg.Grid.BlockSize = blockSize
	cfg.Cluster.Ranks = ranks
	if ranks > 1 {
		cfg.Cluster.Transport = config.TransportLocal
	}
	return cfg
}

func TestNewLayoutPreflight(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		want   error
		field  string
	}{
		{
			name:   "halo radius",
			modify: func(c *config.Config) { c.Grid.HaloRadius = 2 },
			want:   errors.ErrUnsupportedRadius,
			field:  "grid.halo_radius",
		},
		{
			name:   "indivisible grid",
			modify: func(c *config.Config) { c.Grid.BlockSize = 30 },
			want:   errors.ErrIndivisibleGrid,
			field:  "grid.block_size",
		},
		{
			name:   "indivisible ranks",
			modify: func(c *config.Config) { c.Cluster.Ranks = 3 },
			want:   errors.ErrIndivisibleRanks,
			field:  "cluster.ranks",
		},
		{
			name:   "no ranks",
			modify: func(c *config.Config) { c.Cluster.Ranks = 0 },
			want:   errors.ErrInvalidRankCount,
			field:  "cluster.ranks",
		},
		{
			name:   "unstable time step",
			modify: func(c *config.Config) { c.Run.CFL = 1 },
			want:   errors.ErrInvalidInput,
			field:  "run.cfl",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(200, 50, 1)
			tt.modify(cfg)
			_, err := NewLayout(cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("NewLayout() = %v, want %v", err, tt.want)
			}
			var cfgErr *errors.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("NewLayout() = %v, want ConfigError on %s", err, tt.field)
			}
			if !errors.IsUserFacing(err) {
				t.Error("pre-flight errors should be user-facing")
			}
		})
	}
}

func TestLayout(t *testing.T) {
	l, err := NewLayout(testConfig(200, 50, 4))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Blocks) != 16 || l.Partition.Len() != 16 || l.Ranks() != 4 {
		t.Fatalf("layout has %d blocks over %d ranks", len(l.Blocks), l.Ranks())
	}
	// Radius-1 adjacency on a 4x4 block grid includes diagonals.
	if got := len(l.Adjacency.Edges()); got != 42 {
		t.Errorf("edges = %d, want 42", got)
	}

	plans := l.Plan()
	want := []RankPlan{
		{Rank: 0, Blocks: 4, Peers: []int{1}, RemoteEdges: 10},
		{Rank: 1, Blocks: 4, Peers: []int{0, 2}, RemoteEdges: 20},
		{Rank: 2, Blocks: 4, Peers: []int{1, 3}, RemoteEdges: 20},
		{Rank: 3, Blocks: 4, Peers: []int{2}, RemoteEdges: 10},
	}
	for r, p := range plans {
		w := want[r]
		if p.Rank != w.Rank || p.Blocks != w.Blocks || !slices.Equal(p.Peers, w.Peers) || p.RemoteEdges != w.RemoteEdges {
			t.Errorf("Plan()[%d] = %+v, want %+v", r, p, w)
		}
	}

	tasks := l.Tasks(2)
	if len(tasks) != 4 {
		t.Fatalf("Tasks(2) = %d tasks", len(tasks))
	}
	for _, task := range tasks {
		if owner, _ := l.Assignment.Rank(task.Key()); owner != 2 {
			t.Errorf("task %v is owned by rank %d", task.Key(), owner)
		}
		if task.Value().Rect != task.Key() {
			t.Errorf("task %v holds a patch over %v", task.Key(), task.Value().Rect)
		}
	}
}
