package staging_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"reckon/internal/entity"
	"reckon/internal/staging"
)

func stageForReview(t *testing.T, store *staging.Store, batchID, name string) (int64, *staging.Question) {
	t.Helper()
	ctx := context.Background()
	opID, err := store.Stage(ctx, batchID, decisionFixture(name, entity.ActionMerge, true))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	questions, err := store.QuestionsForOperation(ctx, opID)
	if err != nil || len(questions) != 1 {
		t.Fatalf("QuestionsForOperation: %v (%d questions)", err, len(questions))
	}
	return opID, questions[0]
}

func TestAnswerApproveMarksOperationReady(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	opID, question := stageForReview(t, store, "batch-1", "Acme Corp")

	if err := store.Answer(ctx, question.ID, "approve"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	op, err := store.GetOperation(ctx, opID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusReady {
		t.Fatalf("expected ready, got %s", op.Status)
	}
	answered, err := store.GetQuestion(ctx, question.ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if answered.Status != staging.QuestionAnswered || answered.UserAnswer != "approve" {
		t.Fatalf("unexpected question: %#v", answered)
	}
}

func TestAnswerRejectMarksOperationRejected(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	opID, question := stageForReview(t, store, "batch-1", "Acme Corp")

	if err := store.Answer(ctx, question.ID, "no"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	op, err := store.GetOperation(ctx, opID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusRejected {
		t.Fatalf("expected rejected, got %s", op.Status)
	}
}

func TestAnswerMergeNRedirectsOperation(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	opID, question := stageForReview(t, store, "batch-1", "Acme Corp")

	if err := store.Answer(ctx, question.ID, "merge:2"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	op, err := store.GetOperation(ctx, opID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusReady || op.Action != entity.ActionMerge {
		t.Fatalf("unexpected operation: %#v", op)
	}
	if op.TargetPath != "suppliers/globex" {
		t.Fatalf("expected redirect to candidate 2, got %q", op.TargetPath)
	}
	if op.Priority != 1 {
		t.Fatalf("merge priority must be 1, got %d", op.Priority)
	}
}

func TestAnswerMergeOutOfRangeFails(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	opID, question := stageForReview(t, store, "batch-1", "Acme Corp")

	if err := store.Answer(ctx, question.ID, "merge:9"); err == nil {
		t.Fatal("expected error for out-of-range candidate")
	}
	// The failed answer must not have consumed the question or moved the op.
	op, err := store.GetOperation(ctx, opID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusPendingReview {
		t.Fatalf("expected pending_review, got %s", op.Status)
	}
	pending, err := store.CountPendingQuestions(ctx, "batch-1")
	if err != nil || pending != 1 {
		t.Fatalf("expected question still pending, got %d, %v", pending, err)
	}
}

func TestAnswerCreateRedirectsOperation(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	opID, question := stageForReview(t, store, "batch-1", "Acme Corp")

	if err := store.Answer(ctx, question.ID, "create"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	op, err := store.GetOperation(ctx, opID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusReady || op.Action != entity.ActionCreate || op.TargetPath != "" {
		t.Fatalf("unexpected operation: %#v", op)
	}
}

func TestAnswerMissingQuestion(t *testing.T) {
	store := openStore(t)
	if err := store.Answer(context.Background(), 41, "approve"); !errors.Is(err, staging.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSkipLeavesOperationPending(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	opID, question := stageForReview(t, store, "batch-1", "Acme Corp")

	if err := store.Skip(ctx, question.ID); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	op, err := store.GetOperation(ctx, opID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusPendingReview {
		t.Fatalf("skip must leave the operation pending_review, got %s", op.Status)
	}
	skipped, err := store.GetQuestion(ctx, question.ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if skipped.Status != staging.QuestionSkipped {
		t.Fatalf("expected skipped, got %s", skipped.Status)
	}
	// A skipped question cannot be answered later without re-queueing.
	if err := store.Answer(ctx, question.ID, "approve"); !errors.Is(err, staging.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingQuestionsOrderedByUrgency(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	confident := decisionFixture("High Conf", entity.ActionMerge, true)
	confident.Confidence = 0.8
	uncertain := decisionFixture("Low Conf", entity.ActionMerge, true)
	uncertain.Confidence = 0.55

	if _, err := store.Stage(ctx, "batch-1", confident); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := store.Stage(ctx, "batch-1", uncertain); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	next, err := store.NextQuestion(ctx, "batch-1")
	if err != nil {
		t.Fatalf("NextQuestion: %v", err)
	}
	if next == nil || !strings.Contains(next.QuestionText, "Low Conf") {
		t.Fatalf("least confident decision must surface first: %#v", next)
	}
}

func TestPendingQuestionsFIFOWithinPriority(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, _ := stageForReview(t, store, "batch-1", "First Co")
	second, _ := stageForReview(t, store, "batch-1", "Second Co")

	questions, err := store.PendingQuestions(ctx, "batch-1", 10)
	if err != nil {
		t.Fatalf("PendingQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].OperationID != first || questions[1].OperationID != second {
		t.Fatalf("expected FIFO within equal priority: %#v", questions)
	}
}

func TestExpireQuestions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	stageForReview(t, store, "batch-1", "Acme Corp")

	// A negative cutoff places the threshold in the future, expiring
	// everything currently pending.
	expired, err := store.ExpireQuestions(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("ExpireQuestions: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired question, got %d", expired)
	}
	pending, err := store.CountPendingQuestions(ctx, "")
	if err != nil || pending != 0 {
		t.Fatalf("expected no pending questions, got %d, %v", pending, err)
	}
}

func TestNewReconcileQuestionFormatting(t *testing.T) {
	decision := decisionFixture("Acme Corp", entity.ActionMerge, true)
	question := staging.NewReconcileQuestion("batch-1", 7, decision)

	if question.SuggestedAction != "merge:1" {
		t.Fatalf("unexpected suggestion: %q", question.SuggestedAction)
	}
	if !strings.Contains(question.QuestionText, "Acme Corporation") {
		t.Fatalf("question text must list candidates: %q", question.QuestionText)
	}
	if question.OperationID != 7 || question.BatchID != "batch-1" {
		t.Fatalf("unexpected question: %#v", question)
	}

	noCandidates := decisionFixture("Solo Co", entity.ActionCreate, true)
	question = staging.NewReconcileQuestion("batch-1", 8, noCandidates)
	if question.SuggestedAction != "create" {
		t.Fatalf("unexpected suggestion: %q", question.SuggestedAction)
	}
	if !strings.Contains(question.QuestionText, "(no candidates)") {
		t.Fatalf("question text must note missing candidates: %q", question.QuestionText)
	}
}
