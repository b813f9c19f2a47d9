package match_test

import (
	"context"
	"testing"

	"reckon/internal/config"
	"reckon/internal/entity"
	"reckon/internal/index"
	"reckon/internal/match"
)

type staticLister []index.Entry

func (l staticLister) ListAll(ctx context.Context) ([]index.Entry, error) {
	return []index.Entry(l), nil
}

func fixtureEntries() staticLister {
	return staticLister{
		{
			Path:         "customers/strategic/acme_corporation",
			Name:         "Acme Corporation",
			Aliases:      []string{"acme", "acme corp", "jane@acme.com"},
			EmailDomains: []string{"acme.com"},
		},
		{
			Path:         "suppliers/globex",
			Name:         "Globex",
			EmailDomains: []string{"globex.io", "gmail.com"},
		},
		{
			Path: "customers/standard/zephyr_dynamics",
			Name: "Zephyr Dynamics",
		},
	}
}

func newMatcher(t *testing.T, strategies ...string) *match.Matcher {
	t.Helper()
	cfg := config.Default().Matching
	if len(strategies) > 0 {
		cfg.Strategies = strategies
	}
	matcher, err := match.NewMatcher(cfg, nil)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	return matcher
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	cfg := config.Default().Matching
	cfg.Strategies = []string{"alias", "soundex"}
	if _, err := match.Load(cfg); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestAliasMatchIsExactAndCaseInsensitive(t *testing.T) {
	matcher := newMatcher(t, "alias")
	ctx := context.Background()

	matches, err := matcher.FindMatches(ctx, fixtureEntries(), entity.Candidate{Name: "ACME Corp"})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	got := matches[0]
	if got.Path != "customers/strategic/acme_corporation" || got.Score != 1.0 || got.MatchType != "alias" {
		t.Fatalf("unexpected match: %#v", got)
	}

	matches, err = matcher.FindMatches(ctx, fixtureEntries(), entity.Candidate{Name: "Acme Company"})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("alias matching must be exact, got %#v", matches)
	}
}

func TestAliasMatchUsesCandidateAliases(t *testing.T) {
	matcher := newMatcher(t, "alias")

	candidate := entity.Candidate{
		Name:    "Widget Works",
		Aliases: []string{"ACME"},
	}
	matches, err := matcher.FindMatches(context.Background(), fixtureEntries(), candidate)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "customers/strategic/acme_corporation" {
		t.Fatalf("expected match via candidate alias, got %#v", matches)
	}
	if matches[0].Score != 1.0 {
		t.Fatalf("alias matches must score 1.0, got %v", matches[0].Score)
	}
}

func TestAliasMatchUsesContactEmails(t *testing.T) {
	matcher := newMatcher(t, "alias")

	candidate := entity.Candidate{
		Name: "Unknown Sender",
		Contacts: []entity.Contact{
			{Name: "Jane", Email: "Jane@Acme.com"},
		},
	}
	matches, err := matcher.FindMatches(context.Background(), fixtureEntries(), candidate)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "customers/strategic/acme_corporation" {
		t.Fatalf("expected match via contact email, got %#v", matches)
	}
	if matches[0].Details["source"] != "entity_aliases" {
		t.Fatalf("unexpected match details: %#v", matches[0].Details)
	}
}

func TestFuzzyMatchScoresBelowOne(t *testing.T) {
	matcher := newMatcher(t, "fuzzy_name")
	ctx := context.Background()

	matches, err := matcher.FindMatches(ctx, fixtureEntries(), entity.Candidate{Name: "Zephyr Dynamic"})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %#v", matches)
	}
	got := matches[0]
	if got.MatchType != "fuzzy_name" || got.Path != "customers/standard/zephyr_dynamics" {
		t.Fatalf("unexpected match: %#v", got)
	}
	if got.Score < 0.85 || got.Score >= 0.99 {
		t.Fatalf("score %v outside fuzzy near-miss range", got.Score)
	}
}

func TestFuzzyStripsSuffixesBeforeComparing(t *testing.T) {
	matcher := newMatcher(t, "fuzzy_name")
	ctx := context.Background()

	matches, err := matcher.FindMatches(ctx, fixtureEntries(), entity.Candidate{Name: "Acme Corp"})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected suffix variants to collapse to the same name")
	}
	got := matches[0]
	if got.Path != "customers/strategic/acme_corporation" || got.Score != 0.99 {
		t.Fatalf("expected capped match against the stored entity, got %#v", got)
	}
}

func TestFuzzyExactNormalizedNameIsCapped(t *testing.T) {
	matcher := newMatcher(t, "fuzzy_name")
	ctx := context.Background()

	matches, err := matcher.FindMatches(ctx, fixtureEntries(), entity.Candidate{Name: "acme_corporation"})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected a match for the normalized-identical name")
	}
	if matches[0].Score != 0.99 {
		t.Fatalf("expected capped score 0.99, got %v", matches[0].Score)
	}
}

func TestEmailDomainIgnoresGenericProviders(t *testing.T) {
	matcher := newMatcher(t, "email_domain")
	ctx := context.Background()

	candidate := entity.Candidate{
		Name: "Some Freelancer",
		Contacts: []entity.Contact{
			{Name: "Jane", Email: "jane@gmail.com"},
		},
	}
	matches, err := matcher.FindMatches(ctx, fixtureEntries(), candidate)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("gmail.com must not match, got %#v", matches)
	}

	candidate.Contacts = []entity.Contact{{Name: "Jane", Email: "jane@globex.io"}}
	matches, err = matcher.FindMatches(ctx, fixtureEntries(), candidate)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "suppliers/globex" {
		t.Fatalf("expected globex match, got %#v", matches)
	}
	if matches[0].Score < 0.85 || matches[0].Score > 0.95 {
		t.Fatalf("score %v outside domain range", matches[0].Score)
	}
}

func TestEmailDomainWeightsLocalPartOverlap(t *testing.T) {
	matcher := newMatcher(t, "email_domain")
	ctx := context.Background()

	known := entity.Candidate{
		Name: "Acme West",
		Contacts: []entity.Contact{
			{Name: "Jane", Email: "jane@acme.com"},
		},
	}
	matches, err := matcher.FindMatches(ctx, fixtureEntries(), known)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %#v", matches)
	}
	if matches[0].Score != 0.95 {
		t.Fatalf("shared mailbox should score 0.95, got %v", matches[0].Score)
	}
	if matches[0].Details["local_part_match"] != "true" {
		t.Fatalf("unexpected details: %#v", matches[0].Details)
	}

	stranger := entity.Candidate{
		Name: "Acme West",
		Contacts: []entity.Contact{
			{Name: "Bob", Email: "bob@acme.com"},
		},
	}
	matches, err = matcher.FindMatches(ctx, fixtureEntries(), stranger)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %#v", matches)
	}
	if matches[0].Score != 0.85 {
		t.Fatalf("domain-only overlap should score the base, got %v", matches[0].Score)
	}
}

func TestAggregationKeepsBestScorePerPath(t *testing.T) {
	matcher := newMatcher(t, "alias", "fuzzy_name")
	ctx := context.Background()

	matches, err := matcher.FindMatches(ctx, fixtureEntries(), entity.Candidate{Name: "Acme Corporation"})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected a single aggregated match, got %#v", matches)
	}
	got := matches[0]
	if got.Score != 1.0 || got.MatchType != "alias" {
		t.Fatalf("aggregation should keep the alias score, got %#v", got)
	}
}

func TestMatchesSortedByScoreDescending(t *testing.T) {
	entries := staticLister{
		{Path: "customers/a/acme_corp", Name: "Acme Corp"},
		{Path: "customers/b/acme_corporation", Name: "Acme Corporation", Aliases: []string{"acme west"}},
	}
	matcher := newMatcher(t, "alias", "fuzzy_name")
	ctx := context.Background()

	matches, err := matcher.FindMatches(ctx, entries, entity.Candidate{Name: "Acme Corporation"})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) < 2 {
		t.Fatalf("expected both entries to match, got %#v", matches)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("matches not sorted by score: %#v", matches)
		}
	}
	if matches[0].Path != "customers/b/acme_corporation" {
		t.Fatalf("exact match should rank first, got %#v", matches[0])
	}
}
