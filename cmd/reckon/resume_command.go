package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reckon/internal/pipeline"
)

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var noApply bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "resume [sessionID]",
		Short: "Resume an interrupted session from its last checkpoint",
		Long: "Re-enters a session at the phase its newest checkpoint recorded. With no\n" +
			"argument the most recent resumable session is picked. Sessions waiting on\n" +
			"unanswered review questions stay in reviewing until the queue drains.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				sessionID := ""
				if len(args) > 0 {
					sessionID = args[0]
				}
				if sessionID == "" {
					sessions, err := orch.Sessions().Resumable(cmd.Context())
					if err != nil {
						return err
					}
					if len(sessions) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No resumable sessions")
						return nil
					}
					sessionID = sessions[0].ID
				}

				result, err := orch.Resume(cmd.Context(), sessionID, !noApply)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}
				printProcessResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&noApply, "no-apply", false, "Stop after staging; do not execute ready operations")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the result as JSON")
	return cmd
}
