package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reckon/internal/audit"
	"reckon/internal/pipeline"
)

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove resolved operations, stale checkpoints, and old audit events",
		Long: "Deletes applied and rejected operations older than --max-age together\n" +
			"with their answered questions, drops checkpoints of completed sessions,\n" +
			"and rewrites the audit log without events past the retention window.\n" +
			"In-flight work is never touched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// Audit pruning rewrites the file, so it runs before the
			// orchestrator opens an appending handle on it.
			auditRemoved, err := audit.Prune(cfg.AuditLogPath(), maxAge)
			if err != nil {
				return err
			}

			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				result, err := orch.Staging().PruneResolved(cmd.Context(), maxAge)
				if err != nil {
					return err
				}
				checkpoints, err := orch.Sessions().PruneCompleted(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Pruned %d operations, %d questions, %d checkpoints, %d audit events\n",
					result.Operations, result.Questions, checkpoints, auditRemoved)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "Age beyond which resolved work is removed")
	return cmd
}
