package staging

import (
	"context"
	"fmt"
	"time"
)

// PruneResult reports what a retention pass removed.
type PruneResult struct {
	Operations int64
	Questions  int64
}

// PruneResolved deletes applied and rejected operations older than maxAge,
// along with the answered questions that gated them. Operations still in
// flight (staged, ready, pending review) are never touched. FK references
// run from questions to operations, so questions go first.
func (s *Store) PruneResolved(ctx context.Context, maxAge time.Duration) (PruneResult, error) {
	var result PruneResult

	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	questions, err := tx.ExecContext(ctx, `
		DELETE FROM question_queue
		WHERE status IN (?, ?)
		  AND staged_op_id IN (
			SELECT id FROM staged_operations
			WHERE status IN (?, ?) AND created_at < ?
		  )`,
		string(QuestionAnswered), string(QuestionSkipped),
		string(StatusApplied), string(StatusRejected), cutoff,
	)
	if err != nil {
		return result, fmt.Errorf("prune resolved questions: %w", err)
	}
	result.Questions, _ = questions.RowsAffected()

	operations, err := tx.ExecContext(ctx, `
		DELETE FROM staged_operations
		WHERE status IN (?, ?) AND created_at < ?
		  AND id NOT IN (SELECT staged_op_id FROM question_queue WHERE staged_op_id IS NOT NULL)`,
		string(StatusApplied), string(StatusRejected), cutoff,
	)
	if err != nil {
		return result, fmt.Errorf("prune resolved operations: %w", err)
	}
	result.Operations, _ = operations.RowsAffected()

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit prune: %w", err)
	}
	return result, nil
}
