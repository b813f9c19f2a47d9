package executor_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"reckon/internal/config"
	"reckon/internal/entity"
	"reckon/internal/executor"
	"reckon/internal/index"
	"reckon/internal/kgstore"
	"reckon/internal/staging"
)

type fixture struct {
	store   *kgstore.FSStore
	staging *staging.Store
	index   *index.Index
	exec    *executor.Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := kgstore.Open(filepath.Join(dir, "graph"))
	if err != nil {
		t.Fatalf("kgstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	stagingStore, err := staging.OpenPath(filepath.Join(dir, "staging.db"))
	if err != nil {
		t.Fatalf("staging.OpenPath: %v", err)
	}
	t.Cleanup(func() { stagingStore.Close() })

	ix, err := index.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })

	return &fixture{
		store:   store,
		staging: stagingStore,
		index:   ix,
		exec:    executor.New(store, stagingStore, ix, config.Default().Graph, nil),
	}
}

func (f *fixture) seedAcme(t *testing.T) {
	t.Helper()
	err := f.store.WriteEntity(context.Background(), "customers/strategic/acme_corporation", kgstore.Fields{
		Name:    "Acme Corporation",
		Type:    "customers",
		Tier:    "strategic",
		Aliases: []string{"ACME"},
		Contacts: []entity.Contact{
			{Name: "Jane Roe", Email: "jane@acme.com"},
		},
		Sources: []string{"crm-export"},
		Created: "2026-01-05",
		Updated: "2026-01-05",
	})
	if err != nil {
		t.Fatalf("seed entity: %v", err)
	}
}

func (f *fixture) stage(t *testing.T, batchID string, decision entity.Decision) int64 {
	t.Helper()
	id, err := f.staging.Stage(context.Background(), batchID, decision)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	return id
}

func mergeDecision(name, target string) entity.Decision {
	return entity.Decision{
		EntityName: name,
		Action:     entity.ActionMerge,
		TargetPath: target,
		Confidence: 0.97,
		Source: entity.Candidate{
			Name:     name,
			Contacts: []entity.Contact{{Name: "John Doe", Email: "john@acme.com"}},
			SourceID: "email-2026-02",
		},
		DecidedAt: time.Now().UTC(),
	}
}

func createDecision(name string) entity.Decision {
	return entity.Decision{
		EntityName: name,
		Action:     entity.ActionCreate,
		Confidence: 0.9,
		Source:     entity.Candidate{Name: name, Type: "customers", Confidence: 0.9},
		DecidedAt:  time.Now().UTC(),
	}
}

func TestMergeUnionsAliasesAndContacts(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	ctx := context.Background()

	decision := mergeDecision("Acme Corp", "customers/strategic/acme_corporation")
	decision.Source.Aliases = []string{"acme", "Acme Inc"}
	f.stage(t, "batch-1", decision)

	summary, err := f.exec.ExecuteBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if summary.Successful != 1 || summary.Merges != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	merged, err := f.store.ReadEntity(ctx, "customers/strategic/acme_corporation")
	if err != nil {
		t.Fatalf("ReadEntity: %v", err)
	}
	// Existing ACME alias dedupes against incoming "acme"; the candidate name
	// and new alias join the set.
	wantAliases := map[string]bool{"ACME": true, "Acme Corp": true, "Acme Inc": true}
	if len(merged.Aliases) != len(wantAliases) {
		t.Fatalf("unexpected aliases: %#v", merged.Aliases)
	}
	for _, alias := range merged.Aliases {
		if !wantAliases[alias] {
			t.Fatalf("unexpected alias %q in %#v", alias, merged.Aliases)
		}
	}
	if len(merged.Contacts) != 2 {
		t.Fatalf("expected contact union, got %#v", merged.Contacts)
	}
	if len(merged.Sources) != 2 {
		t.Fatalf("expected source union, got %#v", merged.Sources)
	}
	if merged.Updated == "2026-01-05" {
		t.Fatal("updated stamp must move forward")
	}
}

func TestMergeDeduplicatesContactsByEmail(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	ctx := context.Background()

	decision := mergeDecision("Acme Corp", "customers/strategic/acme_corporation")
	decision.Source.Contacts = []entity.Contact{{Name: "Jane R.", Email: "JANE@ACME.COM"}}
	f.stage(t, "batch-1", decision)

	if _, err := f.exec.ExecuteBatch(ctx, "batch-1"); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	merged, err := f.store.ReadEntity(ctx, "customers/strategic/acme_corporation")
	if err != nil {
		t.Fatalf("ReadEntity: %v", err)
	}
	if len(merged.Contacts) != 1 || merged.Contacts[0].Name != "Jane Roe" {
		t.Fatalf("contact dedupe by email failed: %#v", merged.Contacts)
	}
}

func TestUpdateOverwritesOnlyNonEmptyFields(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	ctx := context.Background()

	decision := entity.Decision{
		EntityName: "Acme Corporation",
		Action:     entity.ActionUpdate,
		TargetPath: "customers/strategic/acme_corporation",
		Confidence: 0.92,
		Source: entity.Candidate{
			Name:     "Acme Corporation",
			Industry: "manufacturing",
			Contacts: []entity.Contact{{Name: "New Contact", Email: "new@acme.com"}},
		},
	}
	f.stage(t, "batch-1", decision)

	summary, err := f.exec.ExecuteBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if summary.Updates != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	updated, err := f.store.ReadEntity(ctx, "customers/strategic/acme_corporation")
	if err != nil {
		t.Fatalf("ReadEntity: %v", err)
	}
	if updated.Industry != "manufacturing" {
		t.Fatalf("industry not updated: %#v", updated)
	}
	if updated.Name != "Acme Corporation" || updated.Tier != "strategic" {
		t.Fatalf("empty incoming fields must not clobber: %#v", updated)
	}
	if len(updated.Contacts) != 2 {
		t.Fatalf("expected appended contact, got %#v", updated.Contacts)
	}
}

func TestCreateWritesNewEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stage(t, "batch-1", createDecision("Zephyr Dynamics"))
	summary, err := f.exec.ExecuteBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if summary.Creates != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	created, err := f.store.ReadEntity(ctx, "customers/standard/zephyr_dynamics")
	if err != nil {
		t.Fatalf("ReadEntity: %v", err)
	}
	if created.Name != "Zephyr Dynamics" || created.Created == "" {
		t.Fatalf("unexpected entity: %#v", created)
	}

	// The index must already know the new entity.
	entry, err := f.index.FindByAlias(ctx, "zephyr dynamics")
	if err != nil || entry == nil {
		t.Fatalf("index did not learn created entity: %#v, %v", entry, err)
	}
}

func TestCreateLowConfidenceLandsInProspects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	decision := createDecision("Maybe Co")
	decision.Source.Confidence = 0.55
	f.stage(t, "batch-1", decision)

	if _, err := f.exec.ExecuteBatch(ctx, "batch-1"); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if _, err := f.store.ReadEntity(ctx, "customers/prospects/maybe_co"); err != nil {
		t.Fatalf("expected prospects placement: %v", err)
	}
}

func TestCreateFailsWhenEntityExists(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	ctx := context.Background()

	decision := createDecision("Acme Corporation")
	decision.Source.Tier = "strategic"
	opID := f.stage(t, "batch-1", decision)

	summary, err := f.exec.ExecuteBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if summary.Failed != 1 || summary.Successful != 0 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	op, err := f.staging.GetOperation(ctx, opID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusFailed || op.ErrorMessage == "" {
		t.Fatalf("unexpected operation: %#v", op)
	}
}

func TestPriorityOrderingAcrossActions(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	ctx := context.Background()

	// Stage the create first so insertion order opposes priority order.
	f.stage(t, "batch-1", createDecision("Zephyr Dynamics"))
	f.stage(t, "batch-1", mergeDecision("Acme Corp", "customers/strategic/acme_corporation"))

	summary, err := f.exec.ExecuteBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if summary.Successful != 2 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	ops, err := f.staging.BatchOperations(ctx, "batch-1", staging.StatusApplied)
	if err != nil {
		t.Fatalf("BatchOperations: %v", err)
	}
	if len(ops) != 2 || ops[0].Action != entity.ActionMerge || ops[1].Action != entity.ActionCreate {
		t.Fatalf("merge must apply before create: %#v", ops)
	}
}

func TestExecuteBatchIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stage(t, "batch-1", createDecision("Zephyr Dynamics"))
	if _, err := f.exec.ExecuteBatch(ctx, "batch-1"); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}

	// Re-running over an already-applied batch touches nothing.
	summary, err := f.exec.ExecuteBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("second ExecuteBatch: %v", err)
	}
	if summary.Total != 0 || summary.Successful != 0 || summary.Failed != 0 {
		t.Fatalf("expected no-op re-run, got %#v", summary)
	}
}

func TestExecuteOneSkipsNonReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	decision := createDecision("Review Co")
	decision.NeedsReview = true
	opID := f.stage(t, "batch-1", decision)

	result, err := f.exec.ExecuteOne(ctx, opID)
	if err != nil {
		t.Fatalf("ExecuteOne: %v", err)
	}
	if !result.Skipped {
		t.Fatalf("pending_review operation must be skipped: %#v", result)
	}
	if _, readErr := f.store.ReadEntity(ctx, "customers/standard/review_co"); readErr == nil {
		t.Fatal("skipped operation must not write")
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	opID := f.stage(t, "batch-1", createDecision("Zephyr Dynamics"))
	summary, err := f.exec.DryRun(ctx, "batch-1")
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if summary.Successful != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if _, readErr := f.store.ReadEntity(ctx, "customers/standard/zephyr_dynamics"); readErr == nil {
		t.Fatal("dry run must not write entities")
	}
	op, err := f.staging.GetOperation(ctx, opID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != staging.StatusReady {
		t.Fatalf("dry run must not transition status, got %s", op.Status)
	}
}

func TestInterruptedBatchResumesToSameState(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	ctx := context.Background()

	f.stage(t, "batch-1", mergeDecision("Acme Corp", "customers/strategic/acme_corporation"))
	for _, name := range []string{"Alpha One", "Beta Two", "Gamma Three", "Delta Four"} {
		f.stage(t, "batch-1", createDecision(name))
	}

	// Simulate an interruption: apply only the first two ready operations.
	ready, err := f.staging.GetReady(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetReady: %v", err)
	}
	for _, op := range ready[:2] {
		if _, err := f.exec.ExecuteOne(ctx, op.ID); err != nil {
			t.Fatalf("ExecuteOne: %v", err)
		}
	}

	// Resume by re-running the whole batch.
	summary, err := f.exec.ExecuteBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if summary.Successful != 3 {
		t.Fatalf("expected remaining 3 operations, got %#v", summary)
	}

	counts, err := f.staging.CountByBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("CountByBatch: %v", err)
	}
	if counts[staging.StatusApplied] != 5 {
		t.Fatalf("expected all 5 applied, got %#v", counts)
	}
	paths, err := f.store.ListEntities(ctx, "")
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(paths) != 5 {
		t.Fatalf("expected 5 entities (1 seeded + 4 created), got %#v", paths)
	}
}
