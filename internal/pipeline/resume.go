package pipeline

import (
	"context"

	"reckon/internal/audit"
	"reckon/internal/logging"
	"reckon/internal/session"
)

// Resume picks an interrupted session back up. The research and
// reconcile phases re-derive nothing: candidates are not persisted, so
// resume covers the staged-and-later phases, where every transition is
// idempotent. Already-applied operations are skipped by the executor.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, autoApply bool) (*ProcessResult, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Corrupt checkpoints are fatal for resume.
	cp, err := o.sessions.Resume(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	batchID := sess.CurrentBatchID
	if batchID == "" && cp != nil {
		batchID = cp.BatchID
	}

	result := &ProcessResult{SessionID: sessionID, BatchID: batchID}
	if cp != nil {
		result.ItemsProcessed = cp.Counters.ItemsProcessed
		result.OperationsStaged = cp.Counters.OperationsStaged
	}

	trail, err := o.openAudit(sessionID)
	if err != nil {
		return nil, err
	}
	defer trail.Close()
	trail.Log(audit.CategorySession, "resume", map[string]any{
		"batch_id": batchID,
		"state":    string(sess.State),
	})

	state := sess.State
	if state == session.StateReviewing {
		pending, err := o.staging.CountPendingQuestions(ctx, batchID)
		if err != nil {
			return result, err
		}
		if pending > 0 {
			// Still waiting on a human; nothing to replay.
			return result, nil
		}
		state = session.StateStaging
	}

	switch state {
	case session.StateStaging, session.StateApplying:
		if !autoApply {
			return result, nil
		}
		run := &runState{orchestrator: o, sessionID: sessionID, batchID: batchID, trail: trail, result: result}
		if err := run.applyPhase(ctx); err != nil {
			result.Errors = append(result.Errors, err.Error())
			trail.LogError(err, map[string]any{"batch_id": batchID})
			if failErr := o.sessions.Fail(ctx, sessionID, err.Error()); failErr != nil {
				o.logger.Error("record session failure",
					logging.String(logging.FieldSessionID, sessionID),
					logging.Error(failErr))
			}
			return result, err
		}
		if err := run.finish(ctx); err != nil {
			return result, err
		}
	case session.StateCompleted, session.StateFailed:
		// Nothing to resume.
	default:
		// Interrupted before anything durable was staged. The batch
		// must be re-submitted from its source.
	}
	return result, nil
}
