package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jzrake/gridflow/internal/config"
	"github.com/jzrake/gridflow/internal/event"
	"github.com/jzrake/gridflow/internal/run"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a diffusion problem",
	Long: `Run the reference diffusion problem on a square grid until run.tfinal,
printing a throughput line after every fold of rounds and writing one
state.NNNN.cbor snapshot per rank at the end.

Examples:
  # One rank, 400x400 cells in 100x100 blocks
  gridflow run -n 400 -b 100

  # Four goroutine ranks stepping blocks on a pool of 4 workers
  gridflow run --transport local --ranks 4 -s pool -t 4

  # Rank 1 of a two-process gRPC run
  GRIDFLOW_RANK=1 GRIDFLOW_PEERS=host0:7000,host1:7000 gridflow run --transport grpc`,
	PreRunE: bindFlags,
	RunE:    runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	addLayoutFlags(flags)
	flags.IntP("threads", "t", 1, "worker count for a rank's steps")
	flags.StringP("strategy", "s", "serial", "step strategy (serial/errgroup/pool)")
	flags.IntP("fold", "f", 10, "rounds between throughput reports")
	flags.Float64("tfinal", 0.01, "simulation time to stop at")
	flags.String("snapshot-dir", ".", "directory for state snapshots")
	flags.Bool("no-snapshot", false, "skip writing snapshots")
}

// flagKeys maps command-line flags to the config keys they override.
var flagKeys = map[string]string{
	"grid-resolution": "grid.resolution",
	"block-size":      "grid.block_size",
	"ranks":           "cluster.ranks",
	"transport":       "cluster.transport",
	"rank":            "cluster.rank",
	"peers":           "cluster.peers",
	"threads":         "run.threads",
	"strategy":        "run.strategy",
	"fold":            "run.fold",
	"tfinal":          "run.tfinal",
	"snapshot-dir":    "snapshot.dir",
}

// addLayoutFlags registers the flags that decide how the grid is decomposed
// and spread over ranks.
func addLayoutFlags(flags *pflag.FlagSet) {
	flags.IntP("grid-resolution", "n", 200, "cells along each axis")
	flags.IntP("block-size", "b", 50, "block edge length in cells")
	flags.Int("ranks", 1, "number of ranks")
	flags.String("transport", config.TransportNull, "rank transport (null/local/grpc)")
	flags.Int("rank", 0, "this process's rank under the grpc transport")
	flags.StringSlice("peers", nil, "gRPC addresses of every rank, in rank order")
}

// bindFlags points viper at the running command's flags. Binding happens at
// run time because run and plan share flag names and viper keeps one flag
// per key.
func bindFlags(cmd *cobra.Command, args []string) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && err == nil {
			err = viper.BindPFlag(key, f)
		}
	})
	return err
}

// printHeader writes the run summary for a resolved configuration.
func printHeader(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "num blocks .... %d\n", cfg.Grid.Blocks())
	fmt.Fprintf(w, "num ranks ..... %d\n", cfg.Cluster.Ranks)
	fmt.Fprintf(w, "num threads ... %d\n", cfg.Run.Threads)
	fmt.Fprintln(w)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if noSnapshot, _ := cmd.Flags().GetBool("no-snapshot"); noSnapshot {
		cfg.Snapshot.Enabled = false
	}

	resolved, err := run.ResolveCluster(cfg)
	if err != nil {
		return err
	}
	// A gRPC process hosts one rank and logs to that rank's file.
	logRank, reportRank := -1, 0
	if resolved.Cluster.Transport == config.TransportGRPC {
		logRank, reportRank = resolved.Cluster.Rank, -1
	}
	logger, err := newLogger(cfg, logRank)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer logger.Close()

	out := cmd.OutOrStdout()
	printHeader(out, resolved)

	bus := event.NewBus(logger)
	bus.Subscribe(event.TypeFoldCompleted, run.Reporter(out, reportRank))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := run.Execute(ctx, cfg, run.Options{
		Logger:  logger,
		Bus:     bus,
		Version: Version,
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Snapshot != "" {
			fmt.Fprintf(out, "wrote %s\n", r.Snapshot)
		}
	}
	return nil
}
