package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jzrake/gridflow/internal/config"
	"github.com/jzrake/gridflow/internal/logging"
	"github.com/jzrake/gridflow/internal/run"
	"github.com/jzrake/gridflow/internal/snapshot"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// resetFlags returns every flag to its default once the test ends, since the
// command tree is shared across tests.
func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		var walk func(c *cobra.Command)
		walk = func(c *cobra.Command) {
			reset := func(f *pflag.Flag) {
				if sv, ok := f.Value.(pflag.SliceValue); ok {
					_ = sv.Replace(nil)
				} else {
					_ = f.Value.Set(f.DefValue)
				}
				f.Changed = false
			}
			c.Flags().VisitAll(reset)
			c.PersistentFlags().VisitAll(reset)
			for _, sub := range c.Commands() {
				walk(sub)
			}
		}
		walk(rootCmd)
	})
}

func isolateConfig(t *testing.T) string {
	t.Helper()
	resetFlags(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "gridflow", "gridflow.yaml")
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "gridflow" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "gridflow")
	}

	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range []string{"run", "plan", "merge", "config", "logs", "version"} {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	isolateConfig(t)

	out, err := executeCommand(rootCmd, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "gridflow "+Version+" (") {
		t.Errorf("version output = %q", out)
	}
}

func TestPlanCommand(t *testing.T) {
	isolateConfig(t)
	t.Setenv("GRIDFLOW_CLUSTER_TRANSPORT", config.TransportLocal)
	t.Setenv("GRIDFLOW_CLUSTER_RANKS", "4")

	out, err := executeCommand(rootCmd, "plan")
	if err != nil {
		t.Fatalf("plan failed: %v\n%s", err, out)
	}
	for _, want := range []string{"200x200 cells", "Assignment (local, 4 ranks)", "rank 3", "blocks=4"} {
		if !strings.Contains(out, want) {
			t.Errorf("plan output missing %q:\n%s", want, out)
		}
	}

	// A 4x4 block grid has 24 face and 18 corner neighbor pairs.
	var edges []string
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) == 2 && f[0] == "edges" {
			edges = f
		}
	}
	if len(edges) != 2 || edges[1] != "42" {
		t.Errorf("edges row = %v, want [edges 42]:\n%s", edges, out)
	}
}

func TestPlanCommand_LayoutFlags(t *testing.T) {
	isolateConfig(t)

	out, err := executeCommand(rootCmd, "plan", "-n", "400", "-b", "50", "--transport", "local", "--ranks", "8")
	if err != nil {
		t.Fatalf("plan failed: %v\n%s", err, out)
	}
	for _, want := range []string{"400x400 cells", "Assignment (local, 8 ranks)", "rank 7", "blocks=8"} {
		if !strings.Contains(out, want) {
			t.Errorf("plan output missing %q:\n%s", want, out)
		}
	}
}

func TestPlanCommand_GRPCRanksFollowPeers(t *testing.T) {
	isolateConfig(t)
	t.Setenv("GRIDFLOW_RANK", "")
	t.Setenv("GRIDFLOW_PEERS", "")
	t.Setenv("GRIDFLOW_CLUSTER_TRANSPORT", config.TransportGRPC)
	t.Setenv("GRIDFLOW_CLUSTER_PEERS", "127.0.0.1:7001,127.0.0.1:7002")

	out, err := executeCommand(rootCmd, "plan")
	if err != nil {
		t.Fatalf("plan failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Assignment (grpc, 2 ranks)", "rank 1", "blocks=8"} {
		if !strings.Contains(out, want) {
			t.Errorf("plan output missing %q:\n%s", want, out)
		}
	}
}

func TestPlanCommand_InvalidRankCount(t *testing.T) {
	isolateConfig(t)
	t.Setenv("GRIDFLOW_CLUSTER_TRANSPORT", config.TransportLocal)
	t.Setenv("GRIDFLOW_CLUSTER_RANKS", "3")

	if _, err := executeCommand(rootCmd, "plan"); err == nil {
		t.Fatal("plan with 3 ranks over 16 blocks should fail")
	}
}

func TestRunCommand(t *testing.T) {
	isolateConfig(t)
	snapDir := t.TempDir()

	out, err := executeCommand(rootCmd, "run",
		"-n", "32", "-b", "8", "-f", "2", "--tfinal", "0.005",
		"--transport", "local", "--ranks", "2", "-s", "errgroup", "-t", "2",
		"--snapshot-dir", snapDir)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	for _, want := range []string{"num blocks .... 16", "num ranks ..... 2", "[2] t=0.002 Mzps=", "[8] t=0.006 Mzps="} {
		if !strings.Contains(out, want) {
			t.Errorf("run output missing %q:\n%s", want, out)
		}
	}

	store, err := snapshot.NewOsStore(snapDir)
	if err != nil {
		t.Fatalf("NewOsStore() error = %v", err)
	}
	_, merged, err := store.Merge()
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got := len(merged.Data); got != 32*32 {
		t.Errorf("merged cells = %d, want %d", got, 32*32)
	}
}

func TestPrintHeader_ResolvedRanks(t *testing.T) {
	t.Setenv("GRIDFLOW_RANK", "1")
	t.Setenv("GRIDFLOW_PEERS", "127.0.0.1:7001,127.0.0.1:7002")

	cfg := config.Default()
	cfg.Cluster.Transport = config.TransportGRPC
	resolved, err := run.ResolveCluster(cfg)
	if err != nil {
		t.Fatalf("ResolveCluster() error = %v", err)
	}

	var buf bytes.Buffer
	printHeader(&buf, resolved)
	for _, want := range []string{"num blocks .... 16", "num ranks ..... 2"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("header missing %q:\n%s", want, buf.String())
		}
	}
}

func TestMergeCommand(t *testing.T) {
	isolateConfig(t)
	snapDir := t.TempDir()

	if out, err := executeCommand(rootCmd, "run",
		"-n", "32", "-b", "8", "-f", "2", "--tfinal", "0.005",
		"--transport", "local", "--ranks", "2", "--snapshot-dir", snapDir); err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	out, err := executeCommand(rootCmd, "merge", "--dir", snapDir)
	if err != nil {
		t.Fatalf("merge failed: %v\n%s", err, out)
	}
	for _, want := range []string{"ranks ......... 2 [0 1]", "mesh .......... 32x32", "patches ....... 16", "cells ......... 1024"} {
		if !strings.Contains(out, want) {
			t.Errorf("merge output missing %q:\n%s", want, out)
		}
	}
}

func TestMergeCommand_Empty(t *testing.T) {
	isolateConfig(t)

	if _, err := executeCommand(rootCmd, "merge", "--dir", t.TempDir()); err == nil {
		t.Error("merge over a directory without snapshots should fail")
	}
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	isolateConfig(t)

	_, err := executeCommand(rootCmd, "run", "-n", "30", "-b", "8")
	if err == nil {
		t.Fatal("run with an indivisible grid should fail")
	}
	if !strings.Contains(err.Error(), "grid.block_size") {
		t.Errorf("error = %v, want it to name grid.block_size", err)
	}
}

func TestConfigInitAndPath(t *testing.T) {
	configFile := isolateConfig(t)

	out, err := executeCommand(rootCmd, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, configFile) {
		t.Errorf("init output = %q, want it to mention %s", out, configFile)
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "block_size: 50") {
		t.Errorf("config file missing defaults:\n%s", data)
	}

	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should fail")
	}

	out, err = executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if !strings.Contains(out, configFile) {
		t.Errorf("path output = %q, want it to mention %s", out, configFile)
	}
}

func TestConfigShow(t *testing.T) {
	isolateConfig(t)

	out, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"# Config file:", "resolution: 200", "strategy: serial"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigSet(t *testing.T) {
	configFile := isolateConfig(t)
	t.Cleanup(func() { viper.Set("run.fold", config.Default().Run.Fold) })

	out, err := executeCommand(rootCmd, "config", "set", "run.fold", "7")
	if err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if !strings.Contains(out, "Set run.fold = 7") {
		t.Errorf("set output = %q", out)
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "fold: 7") {
		t.Errorf("config file missing run.fold:\n%s", data)
	}
}

func TestConfigSet_Rejected(t *testing.T) {
	isolateConfig(t)

	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown key", key: "run.speed", val: "1"},
		{name: "not an integer", key: "run.fold", val: "many"},
		{name: "fails validation", key: "run.strategy", val: "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(rootCmd, "config", "set", tt.key, tt.val); err == nil {
				t.Errorf("config set %s %s should fail", tt.key, tt.val)
			}
		})
	}

	if got := viper.GetString("run.strategy"); got != config.Default().Run.Strategy {
		t.Errorf("run.strategy = %q after rejected set, want %q", got, config.Default().Run.Strategy)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		kind  string
		value string
		want  any
	}{
		{"int", "12", 12},
		{"float", "0.25", 0.25},
		{"bool", "true", true},
		{"string", "pool", "pool"},
	}
	for _, tt := range tests {
		got, err := coerce(tt.kind, tt.value)
		if err != nil {
			t.Errorf("coerce(%s, %q) error = %v", tt.kind, tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("coerce(%s, %q) = %v, want %v", tt.kind, tt.value, got, tt.want)
		}
	}

	peers, err := coerce("list", "a:1,b:2")
	if err != nil {
		t.Fatalf("coerce(list) error = %v", err)
	}
	if got := peers.([]string); len(got) != 2 || got[1] != "b:2" {
		t.Errorf("coerce(list) = %v", got)
	}
	if d, err := coerce("duration", "3s"); err != nil || d.(interface{ Seconds() float64 }).Seconds() != 3 {
		t.Errorf("coerce(duration) = %v, %v", d, err)
	}
}

func TestLogsCommand(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()

	for rank := range 2 {
		logger, err := logging.NewFileLogger(dir, logging.FileName(rank), "debug", logging.DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewFileLogger() error = %v", err)
		}
		rl := logger.WithRank(rank)
		rl.WithRound(1).Debug("round completed")
		rl.Warn("snapshot not written")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	out, err := executeCommand(rootCmd, "logs", "--dir", dir, "--rank", "1", "--format", "csv")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if got := strings.Count(out, "round completed") + strings.Count(out, "snapshot not written"); got != 2 {
		t.Errorf("rank 1 entries = %d, want 2:\n%s", got, out)
	}

	out, err = executeCommand(rootCmd, "logs", "--dir", dir, "--level", "warn", "--format", "json")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if strings.Contains(out, "round completed") || strings.Count(out, "snapshot not written") != 2 {
		t.Errorf("warn filter output:\n%s", out)
	}
}

func TestLogsCommand_NoDir(t *testing.T) {
	isolateConfig(t)

	if _, err := executeCommand(rootCmd, "logs"); err == nil {
		t.Error("logs without a directory should fail")
	}
}
