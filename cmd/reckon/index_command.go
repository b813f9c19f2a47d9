package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reckon/internal/pipeline"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Entity index maintenance",
	}

	indexCmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the entity index from the knowledge store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				count, err := orch.RebuildIndex(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d entities\n", count)
				return nil
			})
		},
	})

	return indexCmd
}
