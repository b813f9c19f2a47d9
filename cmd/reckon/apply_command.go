package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"reckon/internal/executor"
	"reckon/internal/pipeline"
)

func newApplyCommand(ctx *commandContext) *cobra.Command {
	var batchID string
	var dryRun bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute ready staged operations",
		Long: "Applies every operation in ready state to the knowledge store, merges\n" +
			"first, then updates, then creates. Use --batch to restrict to one batch\n" +
			"and --dry-run to preview without writing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				summary, err := orch.Apply(cmd.Context(), batchID, dryRun)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, summary)
				}
				printBatchSummary(cmd.OutOrStdout(), summary, dryRun)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Apply only this batch (default: all ready operations)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate operations without writing")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the summary as JSON")
	return cmd
}

func printBatchSummary(out io.Writer, summary *executor.BatchSummary, dryRun bool) {
	if summary.Total == 0 {
		fmt.Fprintln(out, "No ready operations")
		return
	}
	if dryRun {
		fmt.Fprintln(out, "Dry run; nothing was written")
	}

	rows := [][]string{
		{"Total", strconv.Itoa(summary.Total)},
		{"Successful", strconv.Itoa(summary.Successful)},
		{"Failed", strconv.Itoa(summary.Failed)},
		{"Skipped", strconv.Itoa(summary.Skipped)},
		{"Merges", strconv.Itoa(summary.Merges)},
		{"Updates", strconv.Itoa(summary.Updates)},
		{"Creates", strconv.Itoa(summary.Creates)},
	}
	fmt.Fprintln(out, renderTable(out, []string{"Outcome", "Count"}, rows, 2))

	for _, msg := range summary.Errors {
		fmt.Fprintf(out, "error: %s\n", msg)
	}
}
