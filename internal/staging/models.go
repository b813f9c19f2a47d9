package staging

import (
	"encoding/json"
	"fmt"

	"reckon/internal/entity"
)

// Status describes the lifecycle state of a staged operation.
type Status string

const (
	StatusStaged        Status = "staged"
	StatusReady         Status = "ready"
	StatusPendingReview Status = "pending_review"
	StatusApplied       Status = "applied"
	StatusFailed        Status = "failed"
	StatusRejected      Status = "rejected"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApplied, StatusFailed, StatusRejected:
		return true
	}
	return false
}

var validTransitions = map[Status][]Status{
	StatusStaged:        {StatusReady, StatusPendingReview, StatusRejected},
	StatusReady:         {StatusApplied, StatusFailed, StatusRejected},
	StatusPendingReview: {StatusReady, StatusRejected},
}

func transitionAllowed(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Operation is one durable staged mutation of the knowledge store. Retained
// as an audit record after application or rejection.
type Operation struct {
	ID             int64
	BatchID        string
	EntityName     string
	Action         entity.Action
	TargetPath     string
	Confidence     float64
	Reasoning      string
	EntityData     string
	CandidatesData string
	Status         Status
	Priority       int
	CreatedAt      string
	AppliedAt      string
	ErrorMessage   string
}

// Candidate deserializes the staged entity payload.
func (o *Operation) Candidate() (entity.Candidate, error) {
	var candidate entity.Candidate
	if o.EntityData == "" {
		return candidate, fmt.Errorf("operation %d: empty entity payload", o.ID)
	}
	if err := json.Unmarshal([]byte(o.EntityData), &candidate); err != nil {
		return candidate, fmt.Errorf("operation %d: decode entity payload: %w", o.ID, err)
	}
	return candidate, nil
}

// MatchCandidates deserializes the staged candidate payload.
func (o *Operation) MatchCandidates() ([]entity.MatchCandidate, error) {
	if o.CandidatesData == "" {
		return nil, nil
	}
	var candidates []entity.MatchCandidate
	if err := json.Unmarshal([]byte(o.CandidatesData), &candidates); err != nil {
		return nil, fmt.Errorf("operation %d: decode candidates payload: %w", o.ID, err)
	}
	return candidates, nil
}

// QuestionStatus describes the lifecycle state of a review question.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
	QuestionSkipped  QuestionStatus = "skipped"
	QuestionExpired  QuestionStatus = "expired"
)

// Question is a human-review item tied to a staged operation. Lower priority
// numbers surface first; ties break by creation order.
type Question struct {
	ID              int64
	BatchID         string
	OperationID     int64
	QuestionType    string
	QuestionText    string
	ContextData     string
	SuggestedAction string
	Confidence      float64
	Priority        int
	Status          QuestionStatus
	UserAnswer      string
	AnsweredAt      string
	CreatedAt       string
}

// BatchSummary aggregates one batch's operations for status displays.
type BatchSummary struct {
	BatchID     string
	Total       int
	Applied     int
	Failed      int
	Pending     int
	StartedAt   string
	CompletedAt string
}

// questionPriority maps confidence to an integer urgency. Lower confidence
// yields a lower number, surfacing the least certain decisions first.
func questionPriority(confidence float64) int {
	priority := int(confidence * 100)
	if priority < 1 {
		priority = 1
	}
	if priority > 100 {
		priority = 100
	}
	return priority
}
