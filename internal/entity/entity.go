package entity

import (
	"strings"
	"time"
)

// Contact is a person attached to a candidate or stored entity.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Candidate is a newly observed entity awaiting reconciliation. Candidates
// are produced by an upstream extractor and discarded once a decision is
// staged; they are never persisted themselves.
type Candidate struct {
	Name       string    `json:"name"`
	Type       string    `json:"type,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	Industry   string    `json:"industry,omitempty"`
	Contacts   []Contact `json:"contacts,omitempty"`
	Aliases    []string  `json:"aliases,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	SourceID   string    `json:"source_id,omitempty"`
	Raw        string    `json:"raw,omitempty"`
}

// EmailDomains returns the distinct lowercased domains of the candidate's
// contact emails, in first-seen order.
func (c Candidate) EmailDomains() []string {
	seen := make(map[string]struct{}, len(c.Contacts))
	domains := make([]string, 0, len(c.Contacts))
	for _, contact := range c.Contacts {
		domain := EmailDomain(contact.Email)
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

// MatchCandidate is a possible existing counterpart for a Candidate,
// produced by a single match strategy.
type MatchCandidate struct {
	Path      string            `json:"path"`
	Name      string            `json:"name"`
	MatchType string            `json:"match_type"`
	Score     float64           `json:"score"`
	Details   map[string]string `json:"details,omitempty"`
}

// Action is the disposition chosen for a candidate.
type Action string

const (
	ActionMerge  Action = "merge"
	ActionUpdate Action = "update"
	ActionCreate Action = "create"
	ActionSkip   Action = "skip"
)

// ParseAction converts a string into a known Action.
func ParseAction(value string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(value))) {
	case ActionMerge:
		return ActionMerge, true
	case ActionUpdate:
		return ActionUpdate, true
	case ActionCreate:
		return ActionCreate, true
	case ActionSkip:
		return ActionSkip, true
	}
	return "", false
}

// Priority returns the fixed application priority for the action.
// Merges apply before updates, updates before creates.
func (a Action) Priority() int {
	switch a {
	case ActionMerge:
		return 1
	case ActionUpdate:
		return 2
	default:
		return 3
	}
}

// Decision is the reconcile engine's immutable disposition for a candidate.
type Decision struct {
	EntityName  string
	Action      Action
	TargetPath  string
	Confidence  float64
	Reasoning   string
	NeedsReview bool
	Source      Candidate
	Candidates  []MatchCandidate
	DecidedAt   time.Time
}
