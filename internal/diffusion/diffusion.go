package diffusion

import (
	"fmt"
	"math"

	"github.com/jzrake/gridflow/internal/automaton"
	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/indexspace"
	"github.com/jzrake/gridflow/internal/mesh"
	"github.com/jzrake/gridflow/internal/patch"
	"github.com/jzrake/gridflow/internal/rectmap"
)

// HaloRadius is the stencil reach in cells.
const HaloRadius = 1

// Defaults for Params.
const (
	DefaultDiffusivity = 1.0
	DefaultCFL         = 0.2
)

// Block is the automaton type a Task implements.
type Block = automaton.Automaton[indexspace.Rect, patch.Patch, patch.Patch]

// Params are shared by every task of a run.
type Params struct {
	Mesh        mesh.Mesh
	Diffusivity float64
	CFL         float64
}

// Validate rejects parameters the explicit scheme cannot run with.
func (p Params) Validate() error {
	if err := p.Mesh.Validate(); err != nil {
		return err
	}
	if p.Diffusivity <= 0 || math.IsInf(p.Diffusivity, 0) || math.IsNaN(p.Diffusivity) {
		return errors.NewConfigError("run.diffusivity", p.Diffusivity, errors.ErrInvalidInput)
	}
	// The scheme is stable for dt*D*(1/dx^2 + 1/dy^2) <= 1/2.
	if p.CFL <= 0 || p.CFL > 0.25 {
		return errors.NewConfigError("run.cfl", p.CFL, fmt.Errorf("%w: must lie in (0, 0.25]", errors.ErrInvalidInput))
	}
	return nil
}

// TimeStep returns cfl * min(dx, dy)^2 / D.
func (p Params) TimeStep() float64 {
	h := p.Mesh.MinSpacing()
	return p.CFL * h * h / p.Diffusivity
}

// Initial is the starting field: 1.0 inside radius 0.24 of the origin and
// 0.1 elsewhere.
func Initial(m mesh.Mesh) func(i, j int64) float64 {
	return func(i, j int64) float64 {
		x, y := m.CellCenter(i, j)
		if math.Hypot(x, y) < 0.24 {
			return 1.0
		}
		return 0.1
	}
}

// Task advances one block.
type Task struct {
	params    *Params
	dt        float64
	value     patch.Patch
	neighbors []indexspace.Rect
}

// NewTask returns a task for value whose neighbors are the given keys.
func NewTask(params *Params, value patch.Patch, neighbors []indexspace.Rect) *Task {
	return &Task{
		params:    params,
		dt:        params.TimeStep(),
		value:     value,
		neighbors: neighbors,
	}
}

// NewTasks builds one task per key of blocks, seeded from init, with
// neighbors from adj.
func NewTasks(params *Params, blocks []indexspace.Rect, adj *rectmap.Adjacency, init func(i, j int64) float64) []Block {
	tasks := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		tasks = append(tasks, NewTask(params, patch.FromFunc(b, init), adj.Neighbors(b)))
	}
	return tasks
}

func (t *Task) Key() indexspace.Rect         { return t.value.Rect }
func (t *Task) Neighbors() []indexspace.Rect { return t.neighbors }
func (t *Task) Value() patch.Patch           { return t.value }

// Prime sends the initial fragments so round 0 sees a filled halo.
func (t *Task) Prime() map[indexspace.Rect]patch.Patch {
	return t.emit(t.value)
}

// Step implements automaton.Automaton.
func (t *Task) Step(incoming map[indexspace.Rect]patch.Patch) (Block, map[indexspace.Rect]patch.Patch) {
	ext := t.extended(incoming)
	next := patch.New(t.value.Rect)

	dx, dy := t.params.Mesh.CellSpacing()
	cx := t.dt * t.params.Diffusivity / (dx * dx)
	cy := t.dt * t.params.Diffusivity / (dy * dy)
	n := 0
	for i, j := range next.Rect.All() {
		u := ext.At(i, j)
		lap := cx*(ext.At(i-1, j)+ext.At(i+1, j)-2*u) + cy*(ext.At(i, j-1)+ext.At(i, j+1)-2*u)
		next.Data[n] = u + lap
		n++
	}

	stepped := &Task{params: t.params, dt: t.dt, value: next, neighbors: t.neighbors}
	return stepped, stepped.emit(next)
}

// extended returns the block with its halo filled.
func (t *Task) extended(incoming map[indexspace.Rect]patch.Patch) patch.Patch {
	ext := patch.New(t.value.Rect.ExtendAll(HaloRadius))
	ext.CopyFrom(t.value)
	for _, frag := range incoming {
		ext.CopyFrom(frag)
	}

	whole := t.params.Mesh.Index()
	for i, j := range ext.Rect.All() {
		if whole.Contains(i, j) {
			continue
		}
		ci := min(max(i, whole.I.Start), whole.I.End-1)
		cj := min(max(j, whole.J.Start), whole.J.End-1)
		ext.Set(i, j, ext.At(ci, cj))
	}
	return ext
}

func (t *Task) emit(p patch.Patch) map[indexspace.Rect]patch.Patch {
	out := make(map[indexspace.Rect]patch.Patch, len(t.neighbors))
	for _, n := range t.neighbors {
		overlap, ok := p.Rect.Intersect(n.ExtendAll(HaloRadius))
		if !ok {
			continue
		}
		// overlap lies inside p.Rect by construction.
		frag, _ := p.Extract(overlap)
		out[n] = frag
	}
	return out
}
