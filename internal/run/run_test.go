package run

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/jzrake/gridflow/internal/comm/grpccomm"
	"github.com/jzrake/gridflow/internal/config"
	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/event"
	"github.com/jzrake/gridflow/internal/indexspace"
	"github.com/jzrake/gridflow/internal/logging"
	"github.com/jzrake/gridflow/internal/patch"
	"github.com/jzrake/gridflow/internal/snapshot"
)

// smallRun is a 32x32 mesh in 8x8 blocks that runs three folds of two
// rounds.
func smallRun(ranks int, transport string) *config.Config {
	cfg := testConfig(32, 8, ranks)
	cfg.Cluster.Transport = transport
	cfg.Run.Fold = 2
	dt := 0.2 * (2.0 / 32) * (2.0 / 32)
	cfg.Run.TFinal = 5.5 * dt
	cfg.Snapshot.Dir = "out"
	return cfg
}

func values(results []Result) map[indexspace.Rect]patch.Patch {
	out := make(map[indexspace.Rect]patch.Patch)
	for _, r := range results {
		for _, p := range r.Patches {
			out[p.Rect] = p
		}
	}
	return out
}

func assertSameField(t *testing.T, got, want map[indexspace.Rect]patch.Patch) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d patches, want %d", len(got), len(want))
	}
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			t.Fatalf("missing patch %v", k)
		}
		for n := range w.Data {
			if g.Data[n] != w.Data[n] {
				t.Fatalf("patch %v cell %d = %v, want %v", k, n, g.Data[n], w.Data[n])
			}
		}
	}
}

func TestExecuteNull(t *testing.T) {
	fs := afero.NewMemMapFs()
	bus := event.NewBus(nil)
	var out bytes.Buffer
	bus.Subscribe(event.TypeFoldCompleted, Reporter(&out, 0))
	var finished []event.RunFinishedEvent
	bus.Subscribe(event.TypeRunFinished, func(e event.Event) {
		finished = append(finished, e.(event.RunFinishedEvent))
	})

	results, err := Execute(context.Background(), smallRun(1, config.TransportNull), Options{Fs: fs, Bus: bus})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	res := results[0]
	if res.Iteration != 6 {
		t.Errorf("Iteration = %d, want 6 (three folds of two)", res.Iteration)
	}
	if len(res.Patches) != 16 {
		t.Errorf("got %d patches, want 16", len(res.Patches))
	}
	if res.Snapshot != "out/state.0000.cbor" {
		t.Errorf("Snapshot = %q", res.Snapshot)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "[2] t=0.002 Mzps=") || !strings.HasSuffix(lines[0], "-thread)") {
		t.Errorf("report = %q", out.String())
	}
	if len(finished) != 1 || !finished[0].Succeeded() {
		t.Errorf("finished events = %+v", finished)
	}
}

func TestExecuteLocalMatchesNull(t *testing.T) {
	want, err := Execute(context.Background(), smallRun(1, config.TransportNull), Options{Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		ranks    int
		strategy string
	}{
		{2, "serial"},
		{4, "errgroup"},
		{8, "pool"},
		{16, "serial"},
	} {
		t.Run(fmt.Sprintf("%d ranks %s", tc.ranks, tc.strategy), func(t *testing.T) {
			cfg := smallRun(tc.ranks, config.TransportLocal)
			cfg.Run.Strategy = tc.strategy
			cfg.Run.Threads = 2
			fs := afero.NewMemMapFs()

			got, err := Execute(context.Background(), cfg, Options{Fs: fs})
			if err != nil {
				t.Fatalf("Execute() = %v", err)
			}
			if len(got) != tc.ranks {
				t.Fatalf("got %d results", len(got))
			}
			for _, r := range got {
				if r.Iteration != want[0].Iteration || r.Time != want[0].Time {
					t.Errorf("rank %d ended at (%d, %v), want (%d, %v)", r.Rank, r.Iteration, r.Time, want[0].Iteration, want[0].Time)
				}
			}
			assertSameField(t, values(got), values(want))

			store, _ := snapshot.NewStore(fs, "out")
			_, whole, err := store.Merge()
			if err != nil {
				t.Fatalf("Merge() = %v", err)
			}
			for _, p := range want[0].Patches {
				for i, j := range p.Rect.All() {
					if whole.At(i, j) != p.At(i, j) {
						t.Fatalf("snapshot cell (%d, %d) = %v, want %v", i, j, whole.At(i, j), p.At(i, j))
					}
				}
			}
		})
	}
}

func TestExecuteLocalCountsFrames(t *testing.T) {
	dir := t.TempDir()
	logger, err := logging.NewLogger(dir, "info")
	if err != nil {
		t.Fatal(err)
	}
	results, err := Execute(context.Background(), smallRun(2, config.TransportLocal), Options{Fs: afero.NewMemMapFs(), Logger: logger})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := logging.Collect(dir)
	if err != nil {
		t.Fatal(err)
	}
	matched := logging.FilterEntries(entries, logging.Filter{Contains: "local exchange finished"})
	if len(matched) != 1 {
		t.Fatalf("got %d frame count entries, want 1", len(matched))
	}

	// Each of the two ranks sends one frame to the other for priming and
	// for every round.
	want := float64(2 * (results[0].Iteration + 1))
	attrs := matched[0].Attrs
	if attrs["frames_sent"] != want || attrs["frames_received"] != want {
		t.Errorf("frames sent/received = %v/%v, want %v", attrs["frames_sent"], attrs["frames_received"], want)
	}
}

func TestExecuteWithoutSnapshot(t *testing.T) {
	cfg := smallRun(1, config.TransportNull)
	cfg.Snapshot.Enabled = false
	fs := afero.NewMemMapFs()

	results, err := Execute(context.Background(), cfg, Options{Fs: fs})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Snapshot != "" {
		t.Errorf("Snapshot = %q, want none", results[0].Snapshot)
	}
	if ok, _ := afero.Exists(fs, "out/state.0000.cbor"); ok {
		t.Error("snapshot written while disabled")
	}
}

func TestExecuteSnapshotFailureIsNotFatal(t *testing.T) {
	cfg := smallRun(1, config.TransportNull)
	results, err := Execute(context.Background(), cfg, Options{Fs: afero.NewReadOnlyFs(afero.NewMemMapFs())})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if results[0].Snapshot != "" || results[0].Iteration != 6 {
		t.Errorf("result = %+v", results[0])
	}
}

func TestExecuteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := smallRun(4, config.TransportLocal)
	_, err := Execute(ctx, cfg, Options{Fs: afero.NewMemMapFs()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() = %v, want context.Canceled", err)
	}
}

func TestExecutePreflightFailure(t *testing.T) {
	cfg := smallRun(1, config.TransportNull)
	cfg.Grid.BlockSize = 7
	_, err := Execute(context.Background(), cfg, Options{Fs: afero.NewMemMapFs()})
	if !errors.Is(err, errors.ErrIndivisibleGrid) {
		t.Errorf("Execute() = %v, want ErrIndivisibleGrid", err)
	}
}

func TestExecuteGRPC(t *testing.T) {
	const size = 2
	listeners := make(map[string]*bufconn.Listener, size)
	peers := make([]string, size)
	for r := range size {
		name := fmt.Sprintf("rank%d", r)
		peers[r] = "passthrough:///" + name
		listeners[name] = bufconn.Listen(1 << 20)
	}
	dialer := grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		lis, ok := listeners[addr]
		if !ok {
			return nil, fmt.Errorf("no listener for %q", addr)
		}
		return lis.DialContext(ctx)
	})

	want, err := Execute(context.Background(), smallRun(1, config.TransportNull), Options{Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []Result
	g, gctx := errgroup.WithContext(ctx)
	for r := range size {
		cfg := smallRun(1, config.TransportGRPC)
		cfg.Cluster.Rank = r
		cfg.Cluster.Peers = peers
		cfg.Cluster.DialTimeout = 5 * time.Second
		opts := Options{
			Fs: afero.NewMemMapFs(),
			GRPC: []grpccomm.Option{
				grpccomm.WithListener(listeners[fmt.Sprintf("rank%d", r)]),
				grpccomm.WithDialOptions(dialer),
			},
		}
		g.Go(func() error {
			res, err := Execute(gctx, cfg, opts)
			if err != nil {
				return fmt.Errorf("rank %d: %w", r, err)
			}
			mu.Lock()
			defer mu.Unlock()
			got = append(got, res...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	assertSameField(t, values(got), values(want))
}

func TestResolveCluster(t *testing.T) {
	t.Run("null with many ranks", func(t *testing.T) {
		cfg := smallRun(4, config.TransportNull)
		if _, err := ResolveCluster(cfg); !errors.Is(err, errors.ErrInvalidRankCount) {
			t.Errorf("ResolveCluster() = %v, want ErrInvalidRankCount", err)
		}
	})

	t.Run("grpc identity from the environment", func(t *testing.T) {
		t.Setenv("GRIDFLOW_RANK", "1")
		t.Setenv("GRIDFLOW_PEERS", "10.0.0.1:7000,10.0.0.2:7000")
		cfg := smallRun(1, config.TransportGRPC)
		cfg.Cluster.Peers = []string{"localhost:1"}

		got, err := ResolveCluster(cfg)
		if err != nil {
			t.Fatalf("ResolveCluster() = %v", err)
		}
		if got.Cluster.Rank != 1 || got.Cluster.Ranks != 2 || got.Cluster.Peers[1] != "10.0.0.2:7000" {
			t.Errorf("ResolveCluster() = %+v", got.Cluster)
		}
		if len(cfg.Cluster.Peers) != 1 {
			t.Error("ResolveCluster() modified its input")
		}
	})

	t.Run("grpc rank outside the peer list", func(t *testing.T) {
		t.Setenv("GRIDFLOW_RANK", "5")
		cfg := smallRun(1, config.TransportGRPC)
		cfg.Cluster.Peers = []string{"a:1", "b:1"}
		if _, err := ResolveCluster(cfg); !errors.Is(err, errors.ErrPeerOutOfRange) {
			t.Errorf("ResolveCluster() = %v, want ErrPeerOutOfRange", err)
		}
	})
}

func TestMzps(t *testing.T) {
	if got := Mzps(1_000_000, 2*time.Second, 4); got != 2 {
		t.Errorf("Mzps() = %v, want 2", got)
	}
	if got := Mzps(100, 0, 1); got != 0 {
		t.Errorf("Mzps() with no elapsed time = %v, want 0", got)
	}
}

func TestReporterFiltersRank(t *testing.T) {
	var out bytes.Buffer
	h := Reporter(&out, 1)
	h(event.NewFoldCompletedEvent(0, 10, 0.5, 10, time.Second, 3, 1.5))
	h(event.NewFoldCompletedEvent(1, 10, 0.5, 10, time.Second, 3, 1.5))
	h(event.NewRunFinishedEvent(1, 10, 0.5, time.Second, nil))

	if got := out.String(); got != "[10] t=0.500 Mzps=3.00 (1.50-thread)\n" {
		t.Errorf("report = %q", got)
	}
}
