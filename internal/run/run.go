package run

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/jzrake/gridflow/internal/coder"
	"github.com/jzrake/gridflow/internal/comm"
	"github.com/jzrake/gridflow/internal/comm/grpccomm"
	"github.com/jzrake/gridflow/internal/config"
	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/event"
	"github.com/jzrake/gridflow/internal/indexspace"
	"github.com/jzrake/gridflow/internal/logging"
	"github.com/jzrake/gridflow/internal/patch"
	"github.com/jzrake/gridflow/internal/scheduler"
	"github.com/jzrake/gridflow/internal/snapshot"
	"github.com/jzrake/gridflow/internal/telemetry"
)

// Options carries the collaborators of a run. Zero values are usable.
type Options struct {
	Logger *logging.Logger
	Bus    *event.Bus
	// Fs is where snapshots are written. Defaults to the OS filesystem.
	Fs afero.Fs
	// Version is reported as the trace service version.
	Version string
	// GRPC is passed to the gRPC communicator.
	GRPC []grpccomm.Option
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.NopLogger()
	}
	if o.Bus == nil {
		o.Bus = event.NewBus(o.Logger)
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	return o
}

// Result is one rank's final state.
type Result struct {
	Rank      int
	Iteration uint64
	Time      float64
	Patches   []patch.Patch
	// Snapshot is the written file, or empty when none was written.
	Snapshot string
}

// Execute runs every rank this process hosts under the configured transport
// and returns their results in rank order.
func Execute(ctx context.Context, cfg *config.Config, opts Options) ([]Result, error) {
	opts = opts.withDefaults()

	resolved, err := ResolveCluster(cfg)
	if err != nil {
		return nil, err
	}
	layout, err := NewLayout(resolved)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint: resolved.Telemetry.Endpoint,
		Rank:     resolved.Cluster.Rank,
		Version:  opts.Version,
	})
	if err != nil {
		opts.Logger.Warn("tracing disabled", "error", err.Error())
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			opts.Logger.Warn("trace flush failed", "error", err.Error())
		}
	}()

	store, err := snapshot.NewStore(opts.Fs, resolved.Snapshot.Dir,
		snapshot.WithBus(opts.Bus), snapshot.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}

	switch resolved.Cluster.Transport {
	case config.TransportNull:
		res, err := Rank(ctx, resolved, layout, comm.NewNull(), store, opts)
		return []Result{res}, err
	case config.TransportLocal:
		return executeLocal(ctx, resolved, layout, store, opts)
	case config.TransportGRPC:
		return executeGRPC(ctx, resolved, layout, store, opts)
	default:
		return nil, errors.NewConfigError("cluster.transport", resolved.Cluster.Transport, errors.ErrInvalidInput)
	}
}

// ResolveCluster returns a copy of cfg with the launch identity applied.
// Under the gRPC transport, GRIDFLOW_RANK and GRIDFLOW_PEERS override the
// configured rank and peers, and the rank count follows the peer list.
func ResolveCluster(cfg *config.Config) (*config.Config, error) {
	out := *cfg
	switch out.Cluster.Transport {
	case config.TransportNull:
		if out.Cluster.Ranks != 1 {
			return nil, errors.NewConfigError("cluster.ranks", out.Cluster.Ranks,
				fmt.Errorf("%w: the null transport runs exactly one rank", errors.ErrInvalidRankCount))
		}
		out.Cluster.Rank = 0
	case config.TransportLocal:
		out.Cluster.Rank = 0
	case config.TransportGRPC:
		env, err := grpccomm.ParseEnv()
		if err != nil {
			return nil, errors.NewConfigError("cluster", "environment", err)
		}
		if env.Present() {
			out.Cluster.Rank = env.Rank
		}
		if len(env.Peers) > 0 {
			out.Cluster.Peers = env.Peers
		}
		grpcCfg := grpccomm.Config{Rank: out.Cluster.Rank, Peers: out.Cluster.Peers}
		if err := grpcCfg.Validate(); err != nil {
			return nil, err
		}
		out.Cluster.Ranks = len(out.Cluster.Peers)
	}
	return &out, nil
}

func executeLocal(ctx context.Context, cfg *config.Config, layout *Layout, store *snapshot.Store, opts Options) ([]Result, error) {
	hub, err := comm.NewHub(layout.Ranks(), comm.DefaultBuffer)
	if err != nil {
		return nil, err
	}
	defer hub.Close()

	results := make([]Result, layout.Ranks())
	g, gctx := errgroup.WithContext(ctx)
	for r := range layout.Ranks() {
		g.Go(func() error {
			res, err := Rank(gctx, cfg, layout, hub.Comm(r), store, opts)
			results[r] = res
			return err
		})
	}
	err = g.Wait()
	// Every frame sent through the hub must have been consumed by its peer.
	sent, received := hub.Frames()
	opts.Logger.Info("local exchange finished", "frames_sent", sent, "frames_received", received)
	if err == nil && sent != received {
		err = errors.NewTransportError(fmt.Sprintf("%d frames sent but %d received", sent, received), errors.ErrTransport).
			WithRetryable(false)
	}
	return results, err
}

func executeGRPC(ctx context.Context, cfg *config.Config, layout *Layout, store *snapshot.Store, opts Options) ([]Result, error) {
	grpcOpts := append([]grpccomm.Option{grpccomm.WithLogger(opts.Logger)}, opts.GRPC...)
	c, err := grpccomm.New(grpccomm.Config{
		Rank:        cfg.Cluster.Rank,
		Peers:       cfg.Cluster.Peers,
		DialTimeout: cfg.Cluster.DialTimeout,
	}, grpcOpts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	res, err := Rank(ctx, cfg, layout, c, store, opts)
	return []Result{res}, err
}

// Rank runs the fold loop for the rank c represents.
func Rank(ctx context.Context, cfg *config.Config, layout *Layout, c comm.Communicator, store *snapshot.Store, opts Options) (Result, error) {
	opts = opts.withDefaults()
	rank := c.Rank()
	logger := opts.Logger.WithRank(rank)
	res := Result{Rank: rank}
	if cfg.Run.Fold < 1 {
		return res, errors.NewConfigError("run.fold", cfg.Run.Fold, errors.ErrInvalidInput)
	}

	strategy, err := scheduler.ParseStrategy(cfg.Run.Strategy, cfg.Run.Threads)
	if err != nil {
		return res, errors.NewConfigError("run.strategy", cfg.Run.Strategy, err)
	}
	cd, err := coder.NewCBOR[indexspace.Rect, patch.Patch]()
	if err != nil {
		return res, err
	}
	s, err := scheduler.New[indexspace.Rect, patch.Patch, patch.Patch](c, cd, layout.Assignment,
		scheduler.WithStrategy(strategy),
		scheduler.WithLogger(opts.Logger),
		scheduler.WithBus(opts.Bus))
	if err != nil {
		return res, err
	}

	tasks := layout.Tasks(rank)
	peers := layout.Peers(rank)
	opts.Bus.Publish(event.NewRunStartedEvent(rank, c.Size(), len(layout.Blocks), len(tasks), peers))
	logger.Info("run started",
		"ranks", c.Size(),
		"blocks", len(layout.Blocks),
		"local_blocks", len(tasks),
		"peers", peers,
		"strategy", strategy.Name(),
		"threads", cfg.Run.Threads)

	start := time.Now()
	dt := layout.Params.TimeStep()
	finish := func(err error) (Result, error) {
		opts.Bus.Publish(event.NewRunFinishedEvent(rank, res.Iteration, res.Time, time.Since(start), err))
		if err != nil {
			logger.Error("run aborted",
				"iteration", res.Iteration,
				"error", err.Error(),
				"retryable", errors.IsRetryable(err))
			return res, err
		}
		logger.Info("run finished", "iteration", res.Iteration, "time", res.Time, "elapsed", time.Since(start).String())
		return res, nil
	}

	if err := s.Prime(ctx, tasks); err != nil {
		return finish(err)
	}

	for res.Time < cfg.Run.TFinal {
		foldStart := time.Now()
		for range cfg.Run.Fold {
			if tasks, err = s.ExecuteRound(ctx, tasks); err != nil {
				return finish(err)
			}
			res.Iteration++
			res.Time += dt
		}
		elapsed := time.Since(foldStart)
		mzps := Mzps(layout.Mesh.TotalZones(), elapsed, cfg.Run.Fold)
		perThread := mzps / float64(max(cfg.Run.Threads, 1))

		opts.Bus.Publish(event.NewFoldCompletedEvent(rank, res.Iteration, res.Time, cfg.Run.Fold, elapsed, mzps, perThread))
		logger.Info("fold completed",
			"iteration", res.Iteration,
			"time", res.Time,
			"mzps", mzps,
			"elapsed_ms", elapsed.Milliseconds())
	}

	res.Patches = make([]patch.Patch, len(tasks))
	for i, task := range tasks {
		res.Patches[i] = task.Value()
	}

	if cfg.Snapshot.Enabled {
		path, err := store.Write(snapshot.State{
			Time:      res.Time,
			Iteration: res.Iteration,
			Rank:      rank,
			Mesh:      layout.Mesh,
			Patches:   res.Patches,
		})
		if err != nil {
			logger.Warn("snapshot not written", "error", err.Error())
		} else {
			res.Snapshot = path
		}
	}
	return finish(nil)
}

// Mzps is million zone updates per second for zones cells advanced rounds
// times in elapsed.
func Mzps(zones int64, elapsed time.Duration, rounds int) float64 {
	if elapsed <= 0 || rounds <= 0 {
		return 0
	}
	perRound := elapsed.Seconds() / float64(rounds)
	return float64(zones) / 1e6 / perRound
}

// Reporter returns a handler that prints one line per fold completed by
// rank, or by any rank when rank is negative.
func Reporter(w io.Writer, rank int) event.Handler {
	var mu sync.Mutex
	return func(e event.Event) {
		fold, ok := e.(event.FoldCompletedEvent)
		if !ok || (rank >= 0 && fold.Rank != rank) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[%d] t=%.3f Mzps=%.2f (%.2f-thread)\n", fold.Iteration, fold.Time, fold.Mzps, fold.MzpsPerThread)
	}
}
