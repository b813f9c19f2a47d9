package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reckon/internal/entity"
	"reckon/internal/pipeline"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var source string
	var autoApply bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "process <candidates.json>",
		Short: "Reconcile a batch of extracted candidates",
		Long: "Reads entity candidates from a JSON file (or stdin with -), matches them\n" +
			"against the knowledge store, and stages merge/update/create operations.\n" +
			"Ambiguous candidates are parked as review questions.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates, err := loadCandidates(args[0])
			if err != nil {
				return err
			}
			if source == "" {
				source = args[0]
			}

			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				result, err := orch.Process(cmd.Context(), candidates, pipeline.ProcessOptions{
					Source:    source,
					AutoApply: autoApply,
				})
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

	cmd.Flags().StringVar(&source, "source", "", "Label for where the candidates came from (defaults to the file name)")
	cmd.Flags().BoolVar(&autoApply, "apply", false, "Apply ready operations immediately after staging")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the result as JSON")
	return cmd
}

// loadCandidates accepts either a bare JSON array of candidates or an
// object with a "candidates" key, so extractor output can be piped in
// unmodified.
func loadCandidates(path string) ([]entity.Candidate, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open candidates file: %w", err)
		}
		defer file.Close()
		reader = file
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("candidates input is empty")
	}

	if strings.HasPrefix(trimmed, "[") {
		var candidates []entity.Candidate
		if err := json.Unmarshal([]byte(trimmed), &candidates); err != nil {
			return nil, fmt.Errorf("parse candidates: %w", err)
		}
		return candidates, nil
	}

	var wrapper struct {
		Candidates []entity.Candidate `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil {
		return nil, fmt.Errorf("parse candidates: %w", err)
	}
	if len(wrapper.Candidates) == 0 {
		return nil, errors.New("no candidates found in input")
	}
	return wrapper.Candidates, nil
}

func printProcessResult(out io.Writer, result *pipeline.ProcessResult) {
	fmt.Fprintf(out, "Session: %s\n", result.SessionID)
	fmt.Fprintf(out, "Batch:   %s\n", result.BatchID)

	rows := [][]string{
		{"Processed", strconv.Itoa(result.ItemsProcessed)},
		{"Staged", strconv.Itoa(result.OperationsStaged)},
		{"Applied", strconv.Itoa(result.OperationsApplied)},
		{"Failed", strconv.Itoa(result.OperationsFailed)},
		{"Skipped", strconv.Itoa(result.OperationsSkipped)},
		{"Questions", strconv.Itoa(result.QuestionsCreated)},
	}
	fmt.Fprintln(out, renderTable(out, []string{"Stage", "Count"}, rows, 2))

	if result.QuestionsCreated > 0 {
		fmt.Fprintf(out, "%d candidates need review; run `reckon review next` to answer them.\n", result.QuestionsCreated)
	}
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "error: %s\n", msg)
	}
}
