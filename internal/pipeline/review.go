package pipeline

import (
	"context"

	"reckon/internal/executor"
	"reckon/internal/session"
	"reckon/internal/staging"
)

// ReviewItem pairs a question with the staged operation it gates.
type ReviewItem struct {
	Question  *staging.Question
	Operation *staging.Operation
}

// NextReview returns the most urgent pending question for a batch, or
// nil when the queue is empty. An empty batch id spans all batches.
func (o *Orchestrator) NextReview(ctx context.Context, batchID string) (*ReviewItem, error) {
	question, err := o.staging.NextQuestion(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if question == nil {
		return nil, nil
	}
	item := &ReviewItem{Question: question}
	if question.OperationID != 0 {
		op, err := o.staging.GetOperation(ctx, question.OperationID)
		if err != nil {
			return nil, err
		}
		item.Operation = op
	}
	return item, nil
}

// PendingReviews lists pending questions in urgency order.
func (o *Orchestrator) PendingReviews(ctx context.Context, batchID string, limit int) ([]*staging.Question, error) {
	return o.staging.PendingQuestions(ctx, batchID, limit)
}

// AnswerReview records a human answer and refreshes the owning
// session's question counters.
func (o *Orchestrator) AnswerReview(ctx context.Context, sessionID string, questionID int64, answer string) error {
	if err := o.staging.Answer(ctx, questionID, answer); err != nil {
		return err
	}
	return o.refreshQuestionStats(ctx, sessionID, 1)
}

// SkipReview defers a question, leaving its operation pending.
func (o *Orchestrator) SkipReview(ctx context.Context, sessionID string, questionID int64) error {
	if err := o.staging.Skip(ctx, questionID); err != nil {
		return err
	}
	return o.refreshQuestionStats(ctx, sessionID, 0)
}

func (o *Orchestrator) refreshQuestionStats(ctx context.Context, sessionID string, answered int) error {
	if sessionID == "" {
		return nil
	}
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	pending, err := o.staging.CountPendingQuestions(ctx, "")
	if err != nil {
		return err
	}
	total := sess.QuestionsAnswered + answered
	return o.sessions.UpdateStats(ctx, sessionID, session.Stats{
		QuestionsPending:  &pending,
		QuestionsAnswered: &total,
	})
}

// Status summarizes pipeline state for operators.
type Status struct {
	Operations map[staging.Status]int
	Questions  int
	IndexSize  int
}

// CurrentStatus reports staging and question counts plus index size.
func (o *Orchestrator) CurrentStatus(ctx context.Context) (*Status, error) {
	operations, err := o.staging.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	questions, err := o.staging.CountPendingQuestions(ctx, "")
	if err != nil {
		return nil, err
	}
	size, err := o.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{Operations: operations, Questions: questions, IndexSize: size}, nil
}

// RebuildIndex rebuilds the entity index from the knowledge store.
func (o *Orchestrator) RebuildIndex(ctx context.Context) (int, error) {
	return o.index.Rebuild(ctx, o.store)
}

// Apply executes the ready operations of a batch outside a session run.
// An empty batch id applies everything ready. Session counters are not
// touched; Resume is the stats-aware path after a review.
func (o *Orchestrator) Apply(ctx context.Context, batchID string, dryRun bool) (*executor.BatchSummary, error) {
	if dryRun {
		return o.exec.DryRun(ctx, batchID)
	}
	return o.exec.ExecuteBatch(ctx, batchID)
}
