package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jzrake/gridflow/internal/config"
	"github.com/jzrake/gridflow/internal/run"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show how the grid would be decomposed and assigned",
	Long: `Validate the configuration and print the block decomposition and the
contiguous assignment of blocks to ranks without running anything.

Reads the same config file and environment as "gridflow run" and accepts its
layout flags (--grid-resolution, --block-size, --ranks, --transport, --rank,
--peers).

Examples:
  gridflow plan -n 400 -b 50 --transport local --ranks 8`,
	PreRunE: bindFlags,
	RunE:    runPlan,
}

var (
	planTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	planLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	planRank  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

func init() {
	rootCmd.AddCommand(planCmd)
	addLayoutFlags(planCmd.Flags())
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg, err = run.ResolveCluster(cfg)
	if err != nil {
		return err
	}
	layout, err := run.NewLayout(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	row := func(label string, value any) {
		fmt.Fprintln(out, planLabel.Render(label)+fmt.Sprint(value))
	}

	fmt.Fprintln(out, planTitle.Render("Decomposition"))
	row("mesh", fmt.Sprintf("%dx%d cells", layout.Mesh.Ni, layout.Mesh.Nj))
	row("block size", layout.BlockSize)
	row("blocks", len(layout.Blocks))
	row("edges", len(layout.Adjacency.Edges()))
	row("time step", fmt.Sprintf("%.3g", layout.Params.TimeStep()))
	fmt.Fprintln(out)

	fmt.Fprintln(out, planTitle.Render(fmt.Sprintf("Assignment (%s, %d ranks)", cfg.Cluster.Transport, layout.Ranks())))
	for _, p := range layout.Plan() {
		peers := make([]string, len(p.Peers))
		for i, q := range p.Peers {
			peers[i] = fmt.Sprint(q)
		}
		fmt.Fprintf(out, "%s blocks=%d remote_edges=%d peers=[%s]\n",
			planRank.Render(fmt.Sprintf("rank %d", p.Rank)), p.Blocks, p.RemoteEdges, strings.Join(peers, " "))
	}
	return nil
}
