package session

import (
	"encoding/json"
	"time"
)

// State tracks where a session is in its lifecycle.
type State string

const (
	StateCreated     State = "created"
	StateExtracting  State = "extracting"
	StateResearching State = "researching"
	StateReconciling State = "reconciling"
	StateStaging     State = "staging"
	StateReviewing   State = "reviewing"
	StateApplying    State = "applying"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StatePaused      State = "paused"
)

// IsTerminal reports whether the session can make no further progress.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Resumable reports whether a session in this state can be picked back up.
func (s State) Resumable() bool {
	switch s {
	case StateExtracting, StateResearching, StateReconciling, StateStaging, StateReviewing, StatePaused:
		return true
	}
	return false
}

// Session is one processing run from ingestion through application.
type Session struct {
	ID             string
	State          State
	ConfigPath     string
	GraphPath      string
	CurrentBatchID string

	EntitiesExtracted int
	OperationsStaged  int
	OperationsApplied int
	OperationsFailed  int
	QuestionsPending  int
	QuestionsAnswered int

	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Batch records progress for one input batch within a session.
type Batch struct {
	SessionID         string
	BatchID           string
	SourceFile        string
	ItemsTotal        int
	ItemsProcessed    int
	EntitiesExtracted int
	StartedAt         time.Time
	CompletedAt       time.Time
	ErrorMessage      string
}

// Counters carries the progress numbers a checkpoint preserves.
type Counters struct {
	ItemsProcessed    int `json:"items_processed"`
	EntitiesExtracted int `json:"entities_extracted"`
	OperationsStaged  int `json:"operations_staged"`
}

// Checkpoint is a durable progress marker. Later checkpoints supersede
// earlier ones but never overwrite them; resume reads the newest.
type Checkpoint struct {
	ID        int64
	SessionID string
	BatchID   string
	Phase     string
	State     State
	Counters  Counters
	Context   map[string]string
	CreatedAt time.Time
}

func (c *Checkpoint) contextJSON() (string, error) {
	if len(c.Context) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(c.Context)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
