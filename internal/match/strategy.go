package match

import (
	"fmt"
	"sort"
	"strings"

	"reckon/internal/config"
	"reckon/internal/entity"
	"reckon/internal/index"
)

// Strategy finds possible existing counterparts for a candidate within a
// snapshot of index entries. Strategies are pure over their inputs; a
// failure in one strategy never affects the others.
type Strategy interface {
	// Name identifies the strategy in match attributions and config.
	Name() string
	// ScoreRange reports the closed interval of scores the strategy emits.
	ScoreRange() (min, max float64)
	// FindMatches returns candidates at or above the strategy's threshold,
	// sorted by score descending.
	FindMatches(candidate entity.Candidate, entries []index.Entry) ([]entity.MatchCandidate, error)
}

type strategyFactory func(cfg config.Matching) Strategy

// The strategy set is closed. Config selects from these by name.
var strategyFactories = map[string]strategyFactory{
	"alias": func(config.Matching) Strategy {
		return &AliasStrategy{}
	},
	"fuzzy_name": func(cfg config.Matching) Strategy {
		return &FuzzyNameStrategy{Threshold: cfg.FuzzyThreshold}
	},
	"email_domain": func(cfg config.Matching) Strategy {
		return &EmailDomainStrategy{GenericDomains: cfg.GenericDomains}
	},
}

// StrategyNames lists every known strategy name, sorted.
func StrategyNames() []string {
	names := make([]string, 0, len(strategyFactories))
	for name := range strategyFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load instantiates the configured strategies in config order.
func Load(cfg config.Matching) ([]Strategy, error) {
	strategies := make([]Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		factory, ok := strategyFactories[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown match strategy %q (available: %s)",
				name, strings.Join(StrategyNames(), ", "))
		}
		strategies = append(strategies, factory(cfg))
	}
	return strategies, nil
}
