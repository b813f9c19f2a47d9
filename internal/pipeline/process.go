package pipeline

import (
	"context"
	"fmt"
	"time"

	"reckon/internal/audit"
	"reckon/internal/entity"
	"reckon/internal/logging"
	"reckon/internal/session"
	"reckon/internal/staging"
)

// Phase names recorded in checkpoints and the audit trail.
const (
	PhaseResearch  = "research"
	PhaseReconcile = "reconcile"
	PhaseStage     = "stage"
	PhaseApply     = "apply"
)

// ProcessOptions controls a pipeline run.
type ProcessOptions struct {
	// Source labels where the candidates came from.
	Source string
	// AutoApply executes ready operations immediately after staging.
	AutoApply bool
}

// ProcessResult summarizes one pipeline run.
type ProcessResult struct {
	SessionID string
	BatchID   string

	ItemsProcessed    int
	OperationsStaged  int
	OperationsApplied int
	OperationsFailed  int
	OperationsSkipped int
	QuestionsCreated  int

	Errors []string
}

// Process runs candidates through research, reconcile, stage, and
// optionally apply. Per-item failures are contained and reported in the
// result; only storage-level failures abort the run.
func (o *Orchestrator) Process(ctx context.Context, candidates []entity.Candidate, opts ProcessOptions) (*ProcessResult, error) {
	sess, err := o.sessions.Create(ctx, "", o.cfg.Paths.GraphDir)
	if err != nil {
		return nil, err
	}
	batchID, err := o.sessions.StartBatch(ctx, sess.ID, opts.Source, len(candidates))
	if err != nil {
		return nil, err
	}

	trail, err := o.openAudit(sess.ID)
	if err != nil {
		return nil, err
	}
	defer trail.Close()

	trail.Log(audit.CategorySession, "start", map[string]any{
		"source": opts.Source,
		"items":  len(candidates),
	})
	trail.Log(audit.CategoryBatch, "start", map[string]any{
		"batch_id": batchID,
		"items":    len(candidates),
	})

	result := &ProcessResult{SessionID: sess.ID, BatchID: batchID}
	run := &runState{orchestrator: o, sessionID: sess.ID, batchID: batchID, trail: trail, result: result}

	if err := run.execute(ctx, candidates, opts); err != nil {
		result.Errors = append(result.Errors, err.Error())
		trail.LogError(err, map[string]any{"batch_id": batchID})
		if failErr := o.sessions.Fail(ctx, sess.ID, err.Error()); failErr != nil {
			o.logger.Error("record session failure",
				logging.String(logging.FieldSessionID, sess.ID),
				logging.Error(failErr))
		}
		return result, err
	}
	return result, nil
}

// runState is the explicit per-run context threaded through the phases.
type runState struct {
	orchestrator *Orchestrator
	sessionID    string
	batchID      string
	trail        *audit.Logger
	result       *ProcessResult
}

func (r *runState) execute(ctx context.Context, candidates []entity.Candidate, opts ProcessOptions) error {
	o := r.orchestrator

	matches, err := r.researchPhase(ctx, candidates)
	if err != nil {
		return err
	}
	r.result.ItemsProcessed = len(candidates)
	if err := o.sessions.UpdateBatch(ctx, r.sessionID, r.batchID, len(candidates), len(candidates)); err != nil {
		return err
	}
	if len(candidates) == 0 {
		return r.finish(ctx)
	}

	decisions, err := r.reconcilePhase(ctx, candidates, matches)
	if err != nil {
		return err
	}
	if err := r.stagePhase(ctx, decisions); err != nil {
		return err
	}
	if opts.AutoApply {
		if err := r.applyPhase(ctx); err != nil {
			return err
		}
	}
	return r.finish(ctx)
}

// researchPhase rebuilds the index and finds match candidates for every
// candidate entity. The rebuild makes a stale index harmless: research
// always runs against the store as it is now.
func (r *runState) researchPhase(ctx context.Context, candidates []entity.Candidate) ([][]entity.MatchCandidate, error) {
	o := r.orchestrator
	if err := o.sessions.SetState(ctx, r.sessionID, session.StateResearching); err != nil {
		return nil, err
	}
	count, err := o.index.Rebuild(ctx, o.store)
	if err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}
	o.logger.Info("index rebuilt", logging.Int("entities", count))

	matches := make([][]entity.MatchCandidate, len(candidates))
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := o.matcher.FindMatches(ctx, o.index, candidate)
		if err != nil {
			return nil, fmt.Errorf("research %q: %w", candidate.Name, err)
		}
		matches[i] = found

		details := map[string]any{
			"batch_id":   r.batchID,
			"entity":     candidate.Name,
			"candidates": len(found),
		}
		if len(found) > 0 {
			details["top_score"] = found[0].Score
			details["top_match"] = found[0].Path
		}
		r.trail.Log(audit.CategoryResearch, "entity_researched", details)
	}

	return matches, r.checkpoint(ctx, PhaseResearch, session.StateResearching, len(candidates))
}

func (r *runState) reconcilePhase(ctx context.Context, candidates []entity.Candidate, matches [][]entity.MatchCandidate) ([]entity.Decision, error) {
	o := r.orchestrator
	if err := o.sessions.SetState(ctx, r.sessionID, session.StateReconciling); err != nil {
		return nil, err
	}

	decisions := make([]entity.Decision, len(candidates))
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		decision := o.engine.Decide(ctx, candidate, matches[i])
		decisions[i] = decision

		r.trail.Log(audit.CategoryReconciliation, "decide", map[string]any{
			"batch_id":     r.batchID,
			"entity":       decision.EntityName,
			"action":       string(decision.Action),
			"confidence":   decision.Confidence,
			"needs_review": decision.NeedsReview,
		})
	}
	return decisions, r.checkpoint(ctx, PhaseReconcile, session.StateReconciling, len(candidates))
}

func (r *runState) stagePhase(ctx context.Context, decisions []entity.Decision) error {
	o := r.orchestrator
	if err := o.sessions.SetState(ctx, r.sessionID, session.StateStaging); err != nil {
		return err
	}

	for _, decision := range decisions {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Skip decisions are logged only, never staged.
		if decision.Action == entity.ActionSkip {
			r.result.OperationsSkipped++
			r.trail.Log(audit.CategoryStaging, "skip", map[string]any{
				"batch_id": r.batchID,
				"entity":   decision.EntityName,
				"reason":   decision.Reasoning,
			})
			continue
		}
		opID, err := o.staging.Stage(ctx, r.batchID, decision)
		if err != nil {
			return fmt.Errorf("stage %q: %w", decision.EntityName, err)
		}
		r.result.OperationsStaged++
		if decision.NeedsReview {
			r.result.QuestionsCreated++
		}
		r.trail.Log(audit.CategoryStaging, "stage", map[string]any{
			"batch_id":     r.batchID,
			"operation_id": opID,
			"entity":       decision.EntityName,
			"action":       string(decision.Action),
			"confidence":   decision.Confidence,
			"needs_review": decision.NeedsReview,
		})
	}

	err := o.sessions.UpdateStats(ctx, r.sessionID, session.Stats{
		OperationsStaged: r.result.OperationsStaged,
		QuestionsPending: intPtr(r.result.QuestionsCreated),
	})
	if err != nil {
		return err
	}
	return r.checkpoint(ctx, PhaseStage, session.StateStaging, r.result.ItemsProcessed)
}

func (r *runState) applyPhase(ctx context.Context) error {
	o := r.orchestrator
	if err := o.sessions.SetState(ctx, r.sessionID, session.StateApplying); err != nil {
		return err
	}

	started := time.Now()
	summary, err := o.exec.ExecuteBatch(ctx, r.batchID)
	if err != nil {
		return err
	}
	r.result.OperationsApplied = summary.Successful
	r.result.OperationsFailed = summary.Failed
	r.result.Errors = append(r.result.Errors, summary.Errors...)

	r.auditApplied(ctx)
	r.trail.LogDuration(audit.CategoryApply, "batch_complete", time.Since(started), map[string]any{
		"batch_id":   r.batchID,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
	})

	err = o.sessions.UpdateStats(ctx, r.sessionID, session.Stats{
		OperationsApplied: summary.Successful,
		OperationsFailed:  summary.Failed,
	})
	if err != nil {
		return err
	}
	return r.checkpoint(ctx, PhaseApply, session.StateApplying, r.result.ItemsProcessed)
}

// auditApplied records one apply event per operation that reached a
// terminal status in this batch.
func (r *runState) auditApplied(ctx context.Context) {
	for _, status := range []staging.Status{staging.StatusApplied, staging.StatusFailed} {
		ops, err := r.orchestrator.staging.BatchOperations(ctx, r.batchID, status)
		if err != nil {
			r.orchestrator.logger.Warn("audit applied operations",
				logging.String(logging.FieldBatchID, r.batchID),
				logging.Error(err))
			return
		}
		for _, op := range ops {
			details := map[string]any{
				"batch_id":     r.batchID,
				"operation_id": op.ID,
				"entity":       op.EntityName,
				"action":       string(op.Action),
				"confidence":   op.Confidence,
				"outcome":      string(op.Status),
			}
			if op.ErrorMessage != "" {
				details["error"] = op.ErrorMessage
			}
			r.trail.Log(audit.CategoryApply, string(op.Action), details)
		}
	}
}

// finish routes the session to reviewing when questions remain, and to
// completed otherwise.
func (r *runState) finish(ctx context.Context) error {
	o := r.orchestrator
	pending, err := o.staging.CountPendingQuestions(ctx, r.batchID)
	if err != nil {
		return err
	}
	if pending > 0 {
		r.trail.Log(audit.CategorySession, "reviewing", map[string]any{
			"batch_id":          r.batchID,
			"questions_pending": pending,
		})
		return o.sessions.SetState(ctx, r.sessionID, session.StateReviewing)
	}

	if err := o.sessions.CompleteBatch(ctx, r.sessionID, r.batchID); err != nil {
		return err
	}
	if err := o.sessions.Complete(ctx, r.sessionID); err != nil {
		return err
	}
	r.trail.Log(audit.CategoryBatch, "complete", map[string]any{
		"batch_id": r.batchID,
		"staged":   r.result.OperationsStaged,
		"applied":  r.result.OperationsApplied,
		"failed":   r.result.OperationsFailed,
	})
	r.trail.Log(audit.CategorySession, "complete", nil)
	return nil
}

func (r *runState) checkpoint(ctx context.Context, phase string, state session.State, processed int) error {
	_, err := r.orchestrator.sessions.Checkpoint(ctx, session.Checkpoint{
		SessionID: r.sessionID,
		BatchID:   r.batchID,
		Phase:     phase,
		State:     state,
		Counters: session.Counters{
			ItemsProcessed:    processed,
			EntitiesExtracted: processed,
			OperationsStaged:  r.result.OperationsStaged,
		},
	})
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", phase, err)
	}
	r.trail.Log(audit.CategoryCheckpoint, "created", map[string]any{
		"batch_id": r.batchID,
		"phase":    phase,
	})
	return nil
}

func intPtr(v int) *int { return &v }
