// Package testutil provides fixtures shared by gridflow tests: uniform block
// grids and a small deterministic task type that exercises the automaton
// contract without any numerics.
package testutil

import (
	"testing"

	"github.com/jzrake/gridflow/internal/automaton"
	"github.com/jzrake/gridflow/internal/indexspace"
	"github.com/jzrake/gridflow/internal/rectmap"
)

// BlockKeys returns the keys of an ni x nj grid of bs x bs cell blocks in
// row-major order.
func BlockKeys(ni, nj, bs int64) []indexspace.Rect {
	keys := make([]indexspace.Rect, 0, ni*nj)
	for i, j := range indexspace.Range2D(indexspace.R(0, ni), indexspace.R(0, nj)).All() {
		keys = append(keys, indexspace.Range2D(indexspace.R(i, i+1), indexspace.R(j, j+1)).Scale(bs))
	}
	return keys
}

// BlockMap returns a partition index over BlockKeys whose values are the
// row-major block numbers.
func BlockMap(ni, nj, bs int64) *rectmap.Map[int] {
	m := rectmap.New[int]()
	for n, k := range BlockKeys(ni, nj, bs) {
		m.Insert(k, n)
	}
	return m
}

// MixerTask is a task whose value after each round is a fixed, order-insensitive
// function of its previous value and its neighbors' messages. Any delivery
// mistake (wrong round, wrong recipient, lost or duplicated message) changes
// the result.
type MixerTask struct {
	key       indexspace.Rect
	neighbors []indexspace.Rect
	value     int64
}

// Mixer is the automaton type MixerTask implements.
type Mixer = automaton.Automaton[indexspace.Rect, int64, int64]

// NewMixers builds one MixerTask per key of m, seeded with the block number
// stored in m, with neighbors taken from adj.
func NewMixers(m *rectmap.Map[int], adj *rectmap.Adjacency) []Mixer {
	tasks := make([]Mixer, 0, m.Len())
	for k, n := range m.All() {
		tasks = append(tasks, NewMixerTask(k, adj.Neighbors(k), int64(n)+1))
	}
	return tasks
}

// NewMixerTask returns a single task.
func NewMixerTask(key indexspace.Rect, neighbors []indexspace.Rect, value int64) *MixerTask {
	return &MixerTask{key: key, neighbors: neighbors, value: value}
}

func (t *MixerTask) Key() indexspace.Rect             { return t.key }
func (t *MixerTask) Neighbors() []indexspace.Rect     { return t.neighbors }
func (t *MixerTask) Value() int64                     { return t.value }
func (t *MixerTask) Prime() map[indexspace.Rect]int64 { return t.emit(t.value) }

// Step implements automaton.Automaton.
func (t *MixerTask) Step(incoming map[indexspace.Rect]int64) (Mixer, map[indexspace.Rect]int64) {
	next := MixValue(t.value, incoming)
	return &MixerTask{key: t.key, neighbors: t.neighbors, value: next}, t.emit(next)
}

func (t *MixerTask) emit(v int64) map[indexspace.Rect]int64 {
	out := make(map[indexspace.Rect]int64, len(t.neighbors))
	for _, n := range t.neighbors {
		out[n] = MixMessage(v, n)
	}
	return out
}

// MixValue is the MixerTask update rule.
func MixValue(v int64, incoming map[indexspace.Rect]int64) int64 {
	sum := int64(0)
	for _, m := range incoming {
		sum += m
	}
	return (3*v + sum) % 1_000_003
}

// MixMessage is the message a MixerTask with value v sends to dest.
func MixMessage(v int64, dest indexspace.Rect) int64 {
	return v*31 + dest.I.Start*7 + dest.J.Start
}

// Values collects Value() per key.
func Values[K comparable, M any, V any](tasks []automaton.Automaton[K, M, V]) map[K]V {
	out := make(map[K]V, len(tasks))
	for _, t := range tasks {
		out[t.Key()] = t.Value()
	}
	return out
}

// MustLocal runs tasks for rounds rounds on the reference executor.
func MustLocal(t *testing.T, tasks []Mixer, rounds int) []Mixer {
	t.Helper()
	out, err := automaton.NewLocal[indexspace.Rect, int64, int64]().Run(tasks, rounds)
	if err != nil {
		t.Fatalf("local reference run failed: %v", err)
	}
	return out
}
