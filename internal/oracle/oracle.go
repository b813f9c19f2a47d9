package oracle

import (
	"context"
	"errors"

	"reckon/internal/entity"
)

// Sentinel errors callers use to classify oracle failures. Both degrade a
// reconcile decision to create with review rather than aborting the batch.
var (
	ErrTimeout     = errors.New("oracle: request timed out")
	ErrUnavailable = errors.New("oracle: unavailable")
)

// Outcome is the oracle's judgment for one ambiguous candidate.
type Outcome struct {
	Action     entity.Action
	TargetPath string
	Confidence float64
	Reasoning  string
}

// Oracle resolves candidates whose best match score falls inside the
// ambiguity band. Implementations must honor the context deadline.
type Oracle interface {
	Decide(ctx context.Context, candidate entity.Candidate, candidates []entity.MatchCandidate) (Outcome, error)
}
