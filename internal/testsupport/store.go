package testsupport

import (
	"context"
	"testing"

	"reckon/internal/entity"
	"reckon/internal/kgstore"
)

// SeedEntity writes an entity into the knowledge store for tests.
func SeedEntity(t testing.TB, store *kgstore.FSStore, path string, fields kgstore.Fields) {
	t.Helper()

	if fields.Created == "" {
		fields.Created = kgstore.Now()
	}
	if fields.Updated == "" {
		fields.Updated = fields.Created
	}
	if err := store.WriteEntity(context.Background(), path, fields); err != nil {
		t.Fatalf("seed entity %s: %v", path, err)
	}
}

// Candidate builds a candidate entity with sensible defaults for tests.
func Candidate(name string, contacts ...entity.Contact) entity.Candidate {
	return entity.Candidate{
		Name:       name,
		Type:       "customers",
		Contacts:   contacts,
		Confidence: 0.9,
		SourceID:   "test-fixture",
	}
}
