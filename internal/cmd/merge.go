package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jzrake/gridflow/internal/config"
	"github.com/jzrake/gridflow/internal/snapshot"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Reassemble per-rank snapshots into the global field",
	Long: `Load every state.NNNN.cbor in a directory, check that the ranks agree on
time, iteration and mesh and that their patches cover every cell exactly
once, and print a summary of the assembled field.

Examples:
  gridflow merge --dir out`,
	RunE: runMerge,
}

var mergeDir string

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVar(&mergeDir, "dir", "", "Snapshot directory (default: snapshot.dir)")
}

func runMerge(cmd *cobra.Command, args []string) error {
	dir := mergeDir
	if dir == "" {
		dir = config.Get().Snapshot.Dir
	}

	store, err := snapshot.NewOsStore(dir)
	if err != nil {
		return err
	}
	ranks, err := store.Ranks()
	if err != nil {
		return err
	}
	state, field, err := store.Merge()
	if err != nil {
		return err
	}

	names := make([]string, len(ranks))
	for i, r := range ranks {
		names[i] = fmt.Sprint(r)
	}
	cells := field.Rect.Area()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ranks ......... %d [%s]\n", len(ranks), strings.Join(names, " "))
	fmt.Fprintf(out, "iteration ..... %d\n", state.Iteration)
	fmt.Fprintf(out, "time .......... %.6g\n", state.Time)
	fmt.Fprintf(out, "mesh .......... %dx%d\n", state.Mesh.Ni, state.Mesh.Nj)
	fmt.Fprintf(out, "patches ....... %d\n", len(state.Patches))
	fmt.Fprintf(out, "cells ......... %d\n", cells)
	fmt.Fprintf(out, "total ......... %.10g\n", field.Sum())
	fmt.Fprintf(out, "min/max ....... %.6g / %.6g\n", slices.Min(field.Data), slices.Max(field.Data))
	return nil
}
