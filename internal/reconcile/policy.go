package reconcile

import (
	"fmt"

	"reckon/internal/config"
)

// ConfidencePolicy holds the thresholds driving automatic decisions. Scores
// at or above AutoMerge merge without review, scores below AutoCreate create
// without review, and the [OracleMin, OracleMax] band defers to the oracle.
type ConfidencePolicy struct {
	AutoMerge  float64
	AutoUpdate float64
	AutoCreate float64
	OracleMin  float64
	OracleMax  float64
}

// PolicyFromConfig builds a policy from the confidence configuration,
// filling unset thresholds with defaults.
func PolicyFromConfig(cfg config.Confidence) ConfidencePolicy {
	policy := ConfidencePolicy{
		AutoMerge:  cfg.AutoMerge,
		AutoUpdate: cfg.AutoUpdate,
		AutoCreate: cfg.AutoCreate,
		OracleMin:  cfg.OracleMin,
		OracleMax:  cfg.OracleMax,
	}
	return policy.normalized()
}

func (p ConfidencePolicy) normalized() ConfidencePolicy {
	if p.AutoMerge <= 0 {
		p.AutoMerge = 0.95
	}
	if p.AutoUpdate <= 0 {
		p.AutoUpdate = 0.90
	}
	if p.AutoCreate <= 0 {
		p.AutoCreate = 0.50
	}
	if p.OracleMin <= 0 {
		p.OracleMin = p.AutoCreate
	}
	if p.OracleMax <= 0 {
		p.OracleMax = p.AutoMerge
	}
	return p
}

// Validate enforces the threshold ordering
// auto_create <= oracle_min <= oracle_max <= auto_merge.
func (p ConfidencePolicy) Validate() error {
	for _, threshold := range []struct {
		name  string
		value float64
	}{
		{"auto_merge", p.AutoMerge},
		{"auto_update", p.AutoUpdate},
		{"auto_create", p.AutoCreate},
		{"oracle_min", p.OracleMin},
		{"oracle_max", p.OracleMax},
	} {
		if threshold.value < 0 || threshold.value > 1 {
			return fmt.Errorf("confidence threshold %s must be within [0, 1], got %v", threshold.name, threshold.value)
		}
	}
	if p.AutoCreate > p.OracleMin || p.OracleMin > p.OracleMax || p.OracleMax > p.AutoMerge {
		return fmt.Errorf(
			"confidence thresholds must satisfy auto_create <= oracle_min <= oracle_max <= auto_merge, got %v <= %v <= %v <= %v",
			p.AutoCreate, p.OracleMin, p.OracleMax, p.AutoMerge)
	}
	return nil
}
