package staging_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"reckon/internal/entity"
	"reckon/internal/staging"
)

func openStore(t *testing.T) *staging.Store {
	t.Helper()
	store, err := staging.OpenPath(filepath.Join(t.TempDir(), "staging.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func decisionFixture(name string, action entity.Action, needsReview bool) entity.Decision {
	decision := entity.Decision{
		EntityName:  name,
		Action:      action,
		Confidence:  0.7,
		Reasoning:   "test decision",
		NeedsReview: needsReview,
		Source:      entity.Candidate{Name: name, Type: "customers"},
		DecidedAt:   time.Now().UTC(),
	}
	if action == entity.ActionMerge || action == entity.ActionUpdate {
		decision.TargetPath = "customers/strategic/acme_corporation"
		decision.Candidates = []entity.MatchCandidate{
			{Path: "customers/strategic/acme_corporation", Name: "Acme Corporation", MatchType: "fuzzy_name", Score: 0.9},
			{Path: "suppliers/globex", Name: "Globex", MatchType: "fuzzy_name", Score: 0.6},
		}
	}
	return decision
}

func TestStageWithoutReviewIsReady(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.Stage(ctx, "batch-1", decisionFixture("Acme Corp", entity.ActionMerge, false))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	op, err := store.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusReady {
		t.Fatalf("expected ready, got %s", op.Status)
	}
	if op.Priority != 1 {
		t.Fatalf("merge priority must be 1, got %d", op.Priority)
	}

	count, err := store.CountPendingQuestions(ctx, "batch-1")
	if err != nil || count != 0 {
		t.Fatalf("expected no questions, got %d, %v", count, err)
	}
}

func TestStageWithReviewCreatesQuestionAtomically(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.Stage(ctx, "batch-1", decisionFixture("Acme Corp", entity.ActionMerge, true))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	op, err := store.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusPendingReview {
		t.Fatalf("expected pending_review, got %s", op.Status)
	}

	questions, err := store.QuestionsForOperation(ctx, id)
	if err != nil {
		t.Fatalf("QuestionsForOperation: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("expected one linked question, got %d", len(questions))
	}
	question := questions[0]
	if question.Status != staging.QuestionPending || question.QuestionType != "reconcile" {
		t.Fatalf("unexpected question: %#v", question)
	}
	// Confidence 0.7 scales to priority 70.
	if question.Priority != 70 {
		t.Fatalf("unexpected priority %d", question.Priority)
	}
}

func TestOperationPayloadRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	decision := decisionFixture("Acme Corp", entity.ActionMerge, false)
	decision.Source.Contacts = []entity.Contact{{Name: "John Doe", Email: "john@acme.com"}}

	id, err := store.Stage(ctx, "batch-1", decision)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	op, err := store.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}

	candidate, err := op.Candidate()
	if err != nil {
		t.Fatalf("Candidate: %v", err)
	}
	if candidate.Name != "Acme Corp" || len(candidate.Contacts) != 1 {
		t.Fatalf("unexpected candidate: %#v", candidate)
	}
	matches, err := op.MatchCandidates()
	if err != nil {
		t.Fatalf("MatchCandidates: %v", err)
	}
	if len(matches) != 2 || matches[0].Path != "customers/strategic/acme_corporation" {
		t.Fatalf("unexpected matches: %#v", matches)
	}
}

func TestGetReadyOrdersByPriorityThenID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	// Stage in reverse priority order to prove the sort.
	createID, err := store.Stage(ctx, "batch-1", decisionFixture("New Co", entity.ActionCreate, false))
	if err != nil {
		t.Fatalf("Stage create: %v", err)
	}
	updateID, err := store.Stage(ctx, "batch-1", decisionFixture("Acme West", entity.ActionUpdate, false))
	if err != nil {
		t.Fatalf("Stage update: %v", err)
	}
	mergeID, err := store.Stage(ctx, "batch-1", decisionFixture("Acme Corp", entity.ActionMerge, false))
	if err != nil {
		t.Fatalf("Stage merge: %v", err)
	}

	ready, err := store.GetReady(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetReady: %v", err)
	}
	if len(ready) != 3 {
		t.Fatalf("expected 3 ready operations, got %d", len(ready))
	}
	if ready[0].ID != mergeID || ready[1].ID != updateID || ready[2].ID != createID {
		t.Fatalf("unexpected order: %d, %d, %d", ready[0].ID, ready[1].ID, ready[2].ID)
	}
}

func TestUpdateStatusIsIdempotent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.Stage(ctx, "batch-1", decisionFixture("Acme Corp", entity.ActionMerge, false))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	if err := store.UpdateStatus(ctx, id, staging.StatusApplied, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	// Re-issuing the transition already in effect is a no-op.
	if err := store.UpdateStatus(ctx, id, staging.StatusApplied, ""); err != nil {
		t.Fatalf("repeated UpdateStatus: %v", err)
	}

	op, err := store.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusApplied || op.AppliedAt == "" {
		t.Fatalf("unexpected operation: %#v", op)
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.Stage(ctx, "batch-1", decisionFixture("Acme Corp", entity.ActionMerge, false))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := store.UpdateStatus(ctx, id, staging.StatusApplied, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	err = store.UpdateStatus(ctx, id, staging.StatusReady, "")
	if !errors.Is(err, staging.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateStatusRecordsFailure(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.Stage(ctx, "batch-1", decisionFixture("Acme Corp", entity.ActionMerge, false))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := store.UpdateStatus(ctx, id, staging.StatusFailed, "target missing"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	op, err := store.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusFailed || op.ErrorMessage != "target missing" {
		t.Fatalf("unexpected operation: %#v", op)
	}
}

func TestCountByBatch(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Stage(ctx, "batch-1", decisionFixture("A", entity.ActionMerge, false)); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := store.Stage(ctx, "batch-1", decisionFixture("B", entity.ActionCreate, true)); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := store.Stage(ctx, "batch-2", decisionFixture("C", entity.ActionCreate, false)); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	counts, err := store.CountByBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("CountByBatch: %v", err)
	}
	if counts[staging.StatusReady] != 1 || counts[staging.StatusPendingReview] != 1 {
		t.Fatalf("unexpected counts: %#v", counts)
	}
}

func TestRecentBatches(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Stage(ctx, "batch-1", decisionFixture("A", entity.ActionMerge, false)); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := store.Stage(ctx, "batch-1", decisionFixture("B", entity.ActionCreate, true)); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	batches, err := store.RecentBatches(ctx, 5)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(batches))
	}
	if batches[0].BatchID != "batch-1" || batches[0].Total != 2 || batches[0].Pending != 1 {
		t.Fatalf("unexpected summary: %#v", batches[0])
	}
}
