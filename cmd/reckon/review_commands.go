package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reckon/internal/pipeline"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and answer pending review questions",
	}

	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewNextCommand(ctx))
	reviewCmd.AddCommand(newReviewAnswerCommand(ctx))
	reviewCmd.AddCommand(newReviewSkipCommand(ctx))

	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	var batchID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending questions in urgency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				questions, err := orch.PendingReviews(cmd.Context(), batchID, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(questions) == 0 {
					fmt.Fprintln(out, "No pending questions")
					return nil
				}
				rows := make([][]string, 0, len(questions))
				for _, q := range questions {
					rows = append(rows, []string{
						strconv.FormatInt(q.ID, 10),
						q.BatchID,
						q.SuggestedAction,
						fmt.Sprintf("%.2f", q.Confidence),
						truncate(firstLine(q.QuestionText), 72),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Batch", "Suggested", "Confidence", "Question"},
					rows, 1, 4))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Limit to one batch")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum questions to show")
	return cmd
}

func newReviewNextCommand(ctx *commandContext) *cobra.Command {
	var batchID string

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the most urgent pending question in full",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				item, err := orch.NextReview(cmd.Context(), batchID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if item == nil {
					fmt.Fprintln(out, "No pending questions")
					return nil
				}
				printReviewItem(out, item)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Limit to one batch")
	return cmd
}

func newReviewAnswerCommand(ctx *commandContext) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "answer <questionID> <answer>",
		Short: "Answer a pending question",
		Long: "Records an answer and transitions the gated operation in the same\n" +
			"transaction. \"approve\" (or \"yes\") readies the staged operation,\n" +
			"\"merge:N\" redirects it to match candidate N, \"create\" forces a new\n" +
			"entity, and anything else rejects the operation.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			questionID, err := parseQuestionID(args[0])
			if err != nil {
				return err
			}
			answer := strings.TrimSpace(args[1])
			if answer == "" {
				return fmt.Errorf("answer must not be empty")
			}

			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				owner, err := resolveSessionForQuestion(cmd, orch, sessionID, questionID)
				if err != nil {
					return err
				}
				if err := orch.AnswerReview(cmd.Context(), owner, questionID, answer); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Question %d answered: %s\n", questionID, answer)
				if owner != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Run `reckon resume %s` to apply readied operations.\n", owner)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session to credit the answer to (resolved from the batch when omitted)")
	return cmd
}

func newReviewSkipCommand(ctx *commandContext) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "skip <questionID>",
		Short: "Defer a question, leaving its operation pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			questionID, err := parseQuestionID(args[0])
			if err != nil {
				return err
			}

			return ctx.withOrchestrator(func(orch *pipeline.Orchestrator) error {
				owner, err := resolveSessionForQuestion(cmd, orch, sessionID, questionID)
				if err != nil {
					return err
				}
				if err := orch.SkipReview(cmd.Context(), owner, questionID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Question %d skipped\n", questionID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session to update counters for (resolved from the batch when omitted)")
	return cmd
}

func parseQuestionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid question id %q", arg)
	}
	return id, nil
}

// resolveSessionForQuestion finds the session whose current batch owns the
// question, so its counters stay accurate. Answers to orphaned questions
// still land; only the counters go unrefreshed.
func resolveSessionForQuestion(cmd *cobra.Command, orch *pipeline.Orchestrator, sessionID string, questionID int64) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	question, err := orch.Staging().GetQuestion(cmd.Context(), questionID)
	if err != nil {
		return "", err
	}
	sessions, err := orch.Sessions().Resumable(cmd.Context())
	if err != nil {
		return "", err
	}
	for _, sess := range sessions {
		if sess.CurrentBatchID == question.BatchID {
			return sess.ID, nil
		}
	}
	return "", nil
}

func printReviewItem(out io.Writer, item *pipeline.ReviewItem) {
	q := item.Question
	fmt.Fprintf(out, "Question %d (batch %s)\n", q.ID, q.BatchID)
	fmt.Fprintf(out, "  %s\n", q.QuestionText)
	fmt.Fprintf(out, "  Suggested: %s (confidence %.2f)\n", q.SuggestedAction, q.Confidence)

	op := item.Operation
	if op != nil {
		fmt.Fprintf(out, "  Operation %d: %s %q", op.ID, op.Action, op.EntityName)
		if op.TargetPath != "" {
			fmt.Fprintf(out, " -> %s", op.TargetPath)
		}
		fmt.Fprintln(out)
		if op.Reasoning != "" {
			fmt.Fprintf(out, "  Reasoning: %s\n", op.Reasoning)
		}
		if candidates, err := op.MatchCandidates(); err == nil && len(candidates) > 0 {
			fmt.Fprintln(out, "  Candidates:")
			for i, c := range candidates {
				fmt.Fprintf(out, "    %d. %s (%s, score %.2f)\n", i+1, c.Name, c.MatchType, c.Score)
			}
		}
	}
	fmt.Fprintln(out, "Answer with `reckon review answer <id> approve|merge:N|create|reject`")
}

func firstLine(value string) string {
	if idx := strings.IndexByte(value, '\n'); idx >= 0 {
		return value[:idx]
	}
	return value
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max-1] + "…"
}
