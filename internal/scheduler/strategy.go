package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
)

// Strategy runs n independent jobs and returns the first error.
type Strategy interface {
	Name() string
	Run(ctx context.Context, n int, job func(i int) error) error
}

// Serial runs jobs one after another on the calling goroutine.
type Serial struct{}

// Name implements Strategy.
func (Serial) Name() string { return "serial" }

// Run implements Strategy.
func (Serial) Run(ctx context.Context, n int, job func(int) error) error {
	for i := range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := job(i); err != nil {
			return err
		}
	}
	return nil
}

// ErrGroup runs jobs on at most Limit goroutines using an errgroup. A
// non-positive Limit means GOMAXPROCS.
type ErrGroup struct {
	Limit int
}

// Name implements Strategy.
func (ErrGroup) Name() string { return "errgroup" }

// Run implements Strategy.
func (s ErrGroup) Run(ctx context.Context, n int, job func(int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(s.Limit))
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return job(i) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Pool runs jobs on a bounded conc pool that cancels on the first error.
// A non-positive Workers means GOMAXPROCS.
type Pool struct {
	Workers int
}

// Name implements Strategy.
func (Pool) Name() string { return "pool" }

// Run implements Strategy.
func (s Pool) Run(ctx context.Context, n int, job func(int) error) error {
	p := pool.New().
		WithMaxGoroutines(workers(s.Workers)).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i := range n {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return job(i)
		})
	}
	return p.Wait()
}

func workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Strategies lists the names accepted by ParseStrategy.
func Strategies() []string {
	return []string{"serial", "errgroup", "pool"}
}

// ParseStrategy returns the strategy with the given name using threads
// workers.
func ParseStrategy(name string, threads int) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "serial":
		return Serial{}, nil
	case "errgroup":
		return ErrGroup{Limit: threads}, nil
	case "pool":
		return Pool{Workers: threads}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (valid: %s)", name, strings.Join(Strategies(), ", "))
	}
}
