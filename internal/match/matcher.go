package match

import (
	"context"
	"log/slog"
	"sort"

	"reckon/internal/config"
	"reckon/internal/entity"
	"reckon/internal/index"
	"reckon/internal/logging"
)

// Lister supplies the entry snapshot the strategies run against.
type Lister interface {
	ListAll(ctx context.Context) ([]index.Entry, error)
}

// Matcher runs the configured strategies against the entity index and
// aggregates their results per entity path.
type Matcher struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewMatcher builds a matcher from the matching configuration.
func NewMatcher(cfg config.Matching, logger *slog.Logger) (*Matcher, error) {
	strategies, err := Load(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Matcher{strategies: strategies, logger: logger}, nil
}

// Strategies returns the active strategy names in execution order.
func (m *Matcher) Strategies() []string {
	names := make([]string, len(m.strategies))
	for i, strategy := range m.strategies {
		names[i] = strategy.Name()
	}
	return names
}

// FindMatches runs every strategy over the index snapshot and merges the
// results: one candidate per path carrying the highest score any strategy
// produced, ordered by score descending then path. A strategy failure is
// logged and skipped so the remaining strategies still contribute.
func (m *Matcher) FindMatches(ctx context.Context, source Lister, candidate entity.Candidate) ([]entity.MatchCandidate, error) {
	entries, err := source.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	best := make(map[string]entity.MatchCandidate)
	for _, strategy := range m.strategies {
		found, err := strategy.FindMatches(candidate, entries)
		if err != nil {
			m.logger.Warn("match strategy failed",
				logging.String(logging.FieldStrategy, strategy.Name()),
				logging.String(logging.FieldEntity, candidate.Name),
				logging.Error(err))
			continue
		}
		for _, match := range found {
			current, seen := best[match.Path]
			if !seen || match.Score > current.Score {
				best[match.Path] = match
			}
		}
	}

	merged := make([]entity.MatchCandidate, 0, len(best))
	for _, match := range best {
		merged = append(merged, match)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Path < merged[j].Path
	})
	return merged, nil
}
