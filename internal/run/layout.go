package run

import (
	"fmt"

	"github.com/jzrake/gridflow/internal/assign"
	"github.com/jzrake/gridflow/internal/config"
	"github.com/jzrake/gridflow/internal/diffusion"
	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/indexspace"
	"github.com/jzrake/gridflow/internal/mesh"
	"github.com/jzrake/gridflow/internal/rectmap"
)

// Layout is the decomposition every rank derives identically from the
// configuration.
type Layout struct {
	Mesh       mesh.Mesh
	Params     *diffusion.Params
	BlockSize  int64
	Blocks     []indexspace.Rect
	Partition  *rectmap.Map[int]
	Adjacency  *rectmap.Adjacency
	Assignment *assign.Assignment
}

// NewLayout validates the grid against the rank count and builds the
// layout. Every failure is a ConfigError raised before any round runs.
func NewLayout(cfg *config.Config) (*Layout, error) {
	if cfg.Grid.HaloRadius != diffusion.HaloRadius {
		return nil, errors.NewConfigError("grid.halo_radius", cfg.Grid.HaloRadius,
			fmt.Errorf("%w: only %d is supported", errors.ErrUnsupportedRadius, diffusion.HaloRadius))
	}
	if cfg.Cluster.Ranks < 1 {
		return nil, errors.NewConfigError("cluster.ranks", cfg.Cluster.Ranks, errors.ErrInvalidRankCount)
	}

	m := mesh.Square(int64(cfg.Grid.Resolution))
	bs := int64(cfg.Grid.BlockSize)
	blocks, err := m.Blocks(bs)
	if err != nil {
		return nil, err
	}

	params := &diffusion.Params{Mesh: m, Diffusivity: cfg.Run.Diffusivity, CFL: cfg.Run.CFL}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	partition := rectmap.New[int]()
	for n, b := range blocks {
		partition.Insert(b, n)
	}
	if err := partition.Validate(); err != nil {
		return nil, fmt.Errorf("build partition: %w", err)
	}

	a, err := assign.Contiguous(blocks, cfg.Cluster.Ranks)
	if err != nil {
		return nil, err
	}

	return &Layout{
		Mesh:       m,
		Params:     params,
		BlockSize:  bs,
		Blocks:     blocks,
		Partition:  partition,
		Adjacency:  partition.Adjacency(diffusion.HaloRadius),
		Assignment: a,
	}, nil
}

// Ranks returns the number of ranks the layout was built for.
func (l *Layout) Ranks() int {
	return l.Assignment.Ranks()
}

// Tasks returns the initial tasks for the blocks rank owns.
func (l *Layout) Tasks(rank int) []diffusion.Block {
	return diffusion.NewTasks(l.Params, l.Assignment.Keys(rank), l.Adjacency, diffusion.Initial(l.Mesh))
}

// Peers returns the ranks rank exchanges frames with each round.
func (l *Layout) Peers(rank int) []int {
	return l.Assignment.Peers(rank, l.Adjacency)
}

// RankPlan summarizes one rank's share of the layout.
type RankPlan struct {
	Rank        int
	Blocks      int
	Peers       []int
	RemoteEdges int // neighbor pairs that cross to another rank
}

// Plan summarizes every rank.
func (l *Layout) Plan() []RankPlan {
	plans := make([]RankPlan, l.Ranks())
	for r := range plans {
		keys := l.Assignment.Keys(r)
		remote := 0
		for _, k := range keys {
			for _, n := range l.Adjacency.Neighbors(k) {
				if owner, _ := l.Assignment.Rank(n); owner != r {
					remote++
				}
			}
		}
		plans[r] = RankPlan{Rank: r, Blocks: len(keys), Peers: l.Peers(r), RemoteEdges: remote}
	}
	return plans
}
