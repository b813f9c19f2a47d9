package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reckon/internal/entity"
	"reckon/internal/logging"
	"reckon/internal/oracle"
)

const degradedConfidence = 0.5

// Engine turns match candidates into reconcile decisions. The rule table is
// evaluated top to bottom and the first matching rule wins; only scores
// inside the oracle band ever leave the deterministic path.
type Engine struct {
	policy ConfidencePolicy
	oracle oracle.Oracle
	logger *slog.Logger
}

// NewEngine constructs an engine. A nil oracle disables the deferred path:
// ambiguous candidates degrade to create with review.
func NewEngine(policy ConfidencePolicy, decider oracle.Oracle, logger *slog.Logger) (*Engine, error) {
	policy = policy.normalized()
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{policy: policy, oracle: decider, logger: logger}, nil
}

// Policy returns the active confidence policy.
func (e *Engine) Policy() ConfidencePolicy { return e.policy }

// Decide produces the disposition for one candidate. Matches must be sorted
// by score descending; the best match drives the rule table.
func (e *Engine) Decide(ctx context.Context, candidate entity.Candidate, matches []entity.MatchCandidate) entity.Decision {
	if decision, ok := e.autoDecide(candidate, matches); ok {
		e.logDecision(decision, "auto")
		return decision
	}
	decision := e.consultOracle(ctx, candidate, matches)
	e.logDecision(decision, "oracle")
	return decision
}

func (e *Engine) autoDecide(candidate entity.Candidate, matches []entity.MatchCandidate) (entity.Decision, bool) {
	base := entity.Decision{
		EntityName: candidate.Name,
		Source:     candidate,
		Candidates: matches,
		DecidedAt:  time.Now().UTC(),
	}

	if len(matches) == 0 {
		base.Action = entity.ActionCreate
		base.Confidence = candidate.Confidence
		if base.Confidence <= 0 {
			base.Confidence = 0.9
		}
		base.Reasoning = "No matching entities found"
		return base, true
	}

	top := matches[0]
	switch {
	case top.MatchType == "alias" && top.Score == 1.0:
		base.Action = entity.ActionMerge
		base.TargetPath = top.Path
		base.Confidence = 1.0
		matched := top.Name
		if alias := top.Details["matched_alias"]; alias != "" {
			matched = alias
		}
		base.Reasoning = fmt.Sprintf("Exact alias match: %s", matched)
		return base, true

	case top.Score >= e.policy.AutoMerge:
		base.Action = entity.ActionMerge
		base.TargetPath = top.Path
		base.Confidence = top.Score
		base.Reasoning = fmt.Sprintf("High similarity match: %s (score: %.2f)", top.Name, top.Score)
		return base, true

	case top.MatchType == "email_domain" && top.Score >= e.policy.AutoUpdate:
		base.Action = entity.ActionUpdate
		base.TargetPath = top.Path
		base.Confidence = top.Score
		base.Reasoning = fmt.Sprintf("Shared email domain with %s: %s", top.Name, top.Details["matching_domains"])
		return base, true

	case top.Score < e.policy.AutoCreate:
		base.Action = entity.ActionCreate
		base.Confidence = 0.8
		base.Reasoning = fmt.Sprintf("No strong matches found (best: %.2f)", top.Score)
		return base, true
	}

	return entity.Decision{}, false
}

func (e *Engine) consultOracle(ctx context.Context, candidate entity.Candidate, matches []entity.MatchCandidate) entity.Decision {
	decision := entity.Decision{
		EntityName: candidate.Name,
		Source:     candidate,
		Candidates: matches,
		DecidedAt:  time.Now().UTC(),
	}

	if e.oracle == nil {
		decision.Action = entity.ActionCreate
		decision.Confidence = degradedConfidence
		decision.Reasoning = "Ambiguous case, oracle disabled"
		decision.NeedsReview = true
		return decision
	}

	outcome, err := e.oracle.Decide(ctx, candidate, matches)
	if err != nil {
		e.logger.Warn("oracle consultation failed",
			logging.String(logging.FieldEntity, candidate.Name),
			logging.Error(err))
		decision.Action = entity.ActionCreate
		decision.Confidence = degradedConfidence
		decision.Reasoning = fmt.Sprintf("Oracle unavailable (%v), defaulting to create with review", err)
		decision.NeedsReview = true
		return decision
	}

	decision.Action = outcome.Action
	decision.TargetPath = outcome.TargetPath
	decision.Confidence = outcome.Confidence
	decision.Reasoning = outcome.Reasoning
	if decision.Reasoning == "" {
		decision.Reasoning = "Oracle decision"
	}
	decision.NeedsReview = outcome.Confidence < e.policy.AutoMerge
	return decision
}

func (e *Engine) logDecision(decision entity.Decision, source string) {
	e.logger.Debug("reconcile decision",
		logging.String(logging.FieldEntity, decision.EntityName),
		logging.String(logging.FieldAction, string(decision.Action)),
		logging.Float64(logging.FieldConfidence, decision.Confidence),
		logging.String("source", source),
		logging.Bool("needs_review", decision.NeedsReview))
}
