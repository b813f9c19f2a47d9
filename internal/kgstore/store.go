package kgstore

import (
	"context"
	"time"

	"reckon/internal/entity"
)

// Fields is the document persisted for one entity. The reconciliation core
// never assumes more structure than this; renderers and adapters layer their
// own views on top.
type Fields struct {
	Name     string           `json:"name"`
	Type     string           `json:"type,omitempty"`
	Tier     string           `json:"tier,omitempty"`
	Industry string           `json:"industry,omitempty"`
	Aliases  []string         `json:"aliases,omitempty"`
	Contacts []entity.Contact `json:"contacts,omitempty"`
	Sources  []string         `json:"sources,omitempty"`
	Notes    string           `json:"notes,omitempty"`
	Created  string           `json:"created,omitempty"`
	Updated  string           `json:"updated,omitempty"`
}

// EmailDomains returns the distinct lowercased contact email domains.
func (f Fields) EmailDomains() []string {
	seen := make(map[string]struct{}, len(f.Contacts))
	domains := make([]string, 0, len(f.Contacts))
	for _, contact := range f.Contacts {
		domain := entity.EmailDomain(contact.Email)
		if domain == "" {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		domains = append(domains, domain)
	}
	return domains
}

// AliasSet returns name, aliases, and contact emails as one case-normalized
// lookup set. This is the alias universe the index and strategies match on.
func (f Fields) AliasSet() []string {
	seen := make(map[string]struct{}, len(f.Aliases)+len(f.Contacts)+1)
	out := make([]string, 0, len(f.Aliases)+len(f.Contacts)+1)
	add := func(value string) {
		key := entity.NormalizeAlias(value)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	add(f.Name)
	for _, alias := range f.Aliases {
		add(alias)
	}
	for _, contact := range f.Contacts {
		add(contact.Email)
	}
	return out
}

// DateStamp is the date layout used for created/updated fields.
const DateStamp = "2006-01-02"

// Now returns the current date stamp.
func Now() string {
	return time.Now().UTC().Format(DateStamp)
}

// Store is the knowledge store contract the reconciliation core consumes.
// Implementations guarantee per-operation atomicity only; batch-level
// consistency is the executor's responsibility.
type Store interface {
	ReadEntity(ctx context.Context, path string) (Fields, error)
	WriteEntity(ctx context.Context, path string, fields Fields) error
	ListEntities(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
