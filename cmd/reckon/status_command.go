package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reckon/internal/pipeline"
	"reckon/internal/staging"
)

// operationStatusOrder fixes the display order; map iteration would
// shuffle it between runs.
var operationStatusOrder = []staging.Status{
	staging.StatusStaged,
	staging.StatusPendingReview,
	staging.StatusReady,
	staging.StatusApplied,
	staging.StatusFailed,
	staging.StatusRejected,
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var batchLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show staged operation, question, and index totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				status, err := orch.CurrentStatus(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}

				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(operationStatusOrder))
				for _, s := range operationStatusOrder {
					if count := status.Operations[s]; count > 0 {
						rows = append(rows, []string{string(s), strconv.Itoa(count)})
					}
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "No staged operations")
				} else {
					fmt.Fprintln(out, renderTable(out, []string{"Operation Status", "Count"}, rows, 2))
				}
				fmt.Fprintf(out, "Pending questions: %d\n", status.Questions)
				fmt.Fprintf(out, "Indexed entities:  %d\n", status.IndexSize)

				batches, err := orch.Staging().RecentBatches(cmd.Context(), batchLimit)
				if err != nil {
					return err
				}
				if len(batches) == 0 {
					return nil
				}
				batchRows := make([][]string, 0, len(batches))
				for _, b := range batches {
					batchRows = append(batchRows, []string{
						b.BatchID,
						strconv.Itoa(b.Total),
						strconv.Itoa(b.Applied),
						strconv.Itoa(b.Failed),
						strconv.Itoa(b.Pending),
						b.StartedAt,
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Batch", "Total", "Applied", "Failed", "Pending", "Started"},
					batchRows, 2, 3, 4, 5))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit status as JSON")
	cmd.Flags().IntVar(&batchLimit, "batches", 5, "Recent batches to show")
	return cmd
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var resumableOnly bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent pipeline sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				store := orch.Sessions()
				sessions, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if resumableOnly {
					sessions, err = store.Resumable(cmd.Context())
					if err != nil {
						return err
					}
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, sess := range sessions {
					rows = append(rows, []string{
						sess.ID,
						string(sess.State),
						strconv.Itoa(sess.OperationsStaged),
						strconv.Itoa(sess.OperationsApplied),
						strconv.Itoa(sess.QuestionsPending),
						sess.CreatedAt.Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Session", "State", "Staged", "Applied", "Questions", "Created"},
					rows, 3, 4, 5))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to show")
	cmd.Flags().BoolVar(&resumableOnly, "resumable", false, "Show only sessions that can be resumed")
	return cmd
}
