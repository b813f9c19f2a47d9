package index_test

import (
	"context"
	"path/filepath"
	"testing"

	"reckon/internal/entity"
	"reckon/internal/index"
	"reckon/internal/kgstore"
)

func openFixtures(t *testing.T) (*index.Index, *kgstore.FSStore) {
	t.Helper()
	dir := t.TempDir()
	store, err := kgstore.Open(filepath.Join(dir, "graph"))
	if err != nil {
		t.Fatalf("kgstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ix, err := index.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix, store
}

func seedAcme(t *testing.T, store *kgstore.FSStore) {
	t.Helper()
	ctx := context.Background()
	err := store.WriteEntity(ctx, "customers/strategic/acme_corporation", kgstore.Fields{
		Name:    "Acme Corporation",
		Type:    "customers",
		Tier:    "strategic",
		Aliases: []string{"ACME"},
		Contacts: []entity.Contact{
			{Name: "John Doe", Email: "john@acme.com"},
		},
	})
	if err != nil {
		t.Fatalf("seed entity: %v", err)
	}
}

func TestRebuildIsTotal(t *testing.T) {
	ix, store := openFixtures(t)
	ctx := context.Background()
	seedAcme(t, store)

	count, err := ix.Rebuild(ctx, store)
	if err != nil || count != 1 {
		t.Fatalf("Rebuild = %d, %v", count, err)
	}

	// A second rebuild after the store shrinks must not retain stale entries.
	if err := store.WriteEntity(ctx, "suppliers/globex", kgstore.Fields{Name: "Globex"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	count, err = ix.Rebuild(ctx, store)
	if err != nil || count != 2 {
		t.Fatalf("Rebuild = %d, %v", count, err)
	}
	total, err := ix.Count(ctx)
	if err != nil || total != 2 {
		t.Fatalf("Count = %d, %v", total, err)
	}
}

func TestFindByAliasIsCaseInsensitive(t *testing.T) {
	ix, store := openFixtures(t)
	ctx := context.Background()
	seedAcme(t, store)
	if _, err := ix.Rebuild(ctx, store); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	for _, key := range []string{"acme", "ACME", "Acme Corporation", "john@acme.com"} {
		entry, err := ix.FindByAlias(ctx, key)
		if err != nil {
			t.Fatalf("FindByAlias(%q): %v", key, err)
		}
		if entry == nil || entry.Path != "customers/strategic/acme_corporation" {
			t.Fatalf("FindByAlias(%q) = %#v", key, entry)
		}
	}

	entry, err := ix.FindByAlias(ctx, "unknown name")
	if err != nil || entry != nil {
		t.Fatalf("expected no match, got %#v, %v", entry, err)
	}
}

func TestFindByEmailDomain(t *testing.T) {
	ix, store := openFixtures(t)
	ctx := context.Background()
	seedAcme(t, store)
	if _, err := ix.Rebuild(ctx, store); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	entries, err := ix.FindByEmailDomain(ctx, "ACME.com")
	if err != nil {
		t.Fatalf("FindByEmailDomain: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Acme Corporation" {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}

func TestSearchMatchesAliases(t *testing.T) {
	ix, store := openFixtures(t)
	ctx := context.Background()
	seedAcme(t, store)
	if _, err := ix.Rebuild(ctx, store); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	entries, err := ix.Search(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Aliases) == 0 {
		t.Fatalf("unexpected search result: %#v", entries)
	}
}

func TestUpsertAndRemove(t *testing.T) {
	ix, _ := openFixtures(t)
	ctx := context.Background()

	fields := kgstore.Fields{Name: "Initech", Type: "customers", Tier: "standard"}
	if err := ix.Upsert(ctx, "customers/standard/initech", fields); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	entry, err := ix.Get(ctx, "customers/standard/initech")
	if err != nil || entry == nil {
		t.Fatalf("Get after upsert: %#v, %v", entry, err)
	}

	fields.Aliases = []string{"Initech LLC"}
	if err := ix.Upsert(ctx, "customers/standard/initech", fields); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	entry, err = ix.FindByAlias(ctx, "initech llc")
	if err != nil || entry == nil {
		t.Fatalf("FindByAlias after upsert: %#v, %v", entry, err)
	}

	if err := ix.Remove(ctx, "customers/standard/initech"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	entry, err = ix.Get(ctx, "customers/standard/initech")
	if err != nil || entry != nil {
		t.Fatalf("expected entry removed, got %#v, %v", entry, err)
	}
}
