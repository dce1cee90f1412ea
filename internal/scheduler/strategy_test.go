package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func strategies() []Strategy {
	return []Strategy{Serial{}, ErrGroup{Limit: 3}, Pool{Workers: 3}, ErrGroup{}, Pool{}}
}

func TestStrategiesRunEveryJob(t *testing.T) {
	for _, s := range strategies() {
		t.Run(s.Name(), func(t *testing.T) {
			const n = 100
			seen := make([]atomic.Int32, n)
			err := s.Run(context.Background(), n, func(i int) error {
				seen[i].Add(1)
				return nil
			})
			if err != nil {
				t.Fatalf("Run() = %v", err)
			}
			for i := range seen {
				if c := seen[i].Load(); c != 1 {
					t.Fatalf("job %d ran %d times", i, c)
				}
			}
		})
	}
}

func TestStrategiesReturnJobError(t *testing.T) {
	boom := errors.New("boom")
	for _, s := range strategies() {
		t.Run(s.Name(), func(t *testing.T) {
			err := s.Run(context.Background(), 50, func(i int) error {
				if i == 7 {
					return boom
				}
				return nil
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Run() = %v, want boom", err)
			}
		})
	}
}

func TestStrategiesHonorCanceledContext(t *testing.T) {
	for _, s := range strategies() {
		t.Run(s.Name(), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			var ran atomic.Int32
			err := s.Run(ctx, 10, func(int) error {
				ran.Add(1)
				return nil
			})
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("Run() = %v, want context.Canceled", err)
			}
		})
	}
}

func TestStrategiesZeroJobs(t *testing.T) {
	for _, s := range strategies() {
		if err := s.Run(context.Background(), 0, func(int) error { return errors.New("never") }); err != nil {
			t.Errorf("%s: Run(0) = %v", s.Name(), err)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		threads int
		want    Strategy
	}{
		{"", 4, Serial{}},
		{"serial", 4, Serial{}},
		{"ErrGroup", 4, ErrGroup{Limit: 4}},
		{"pool", 2, Pool{Workers: 2}},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.name, tt.threads)
		if err != nil {
			t.Fatalf("ParseStrategy(%q) = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %#v, want %#v", tt.name, got, tt.want)
		}
	}
	if _, err := ParseStrategy("rayon", 1); err == nil {
		t.Error("unknown strategy should fail")
	}
}
