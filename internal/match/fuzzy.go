package match

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"reckon/internal/entity"
	"reckon/internal/index"
)

// FuzzyNameStrategy matches candidates by string similarity on normalized
// names and aliases. Similarity is a Levenshtein ratio; the score is capped
// below 1.0 so exact matches remain the alias strategy's territory.
type FuzzyNameStrategy struct {
	// Threshold is the minimum similarity to report a match.
	Threshold float64
}

const fuzzyScoreCap = 0.99

func (s *FuzzyNameStrategy) Name() string { return "fuzzy_name" }

func (s *FuzzyNameStrategy) ScoreRange() (float64, float64) { return s.Threshold, fuzzyScoreCap }

func (s *FuzzyNameStrategy) FindMatches(candidate entity.Candidate, entries []index.Entry) ([]entity.MatchCandidate, error) {
	query := entity.NormalizeName(candidate.Name)
	if query == "" {
		return nil, nil
	}

	var matches []entity.MatchCandidate
	for _, entry := range entries {
		best := 0.0
		matchedAgainst := entry.Name
		if score := similarity(query, entity.NormalizeName(entry.Name)); score > best {
			best = score
		}
		for _, alias := range entry.Aliases {
			if score := similarity(query, entity.NormalizeName(alias)); score > best {
				best = score
				matchedAgainst = alias
			}
		}
		if best < s.Threshold {
			continue
		}
		if best > fuzzyScoreCap {
			best = fuzzyScoreCap
		}
		matches = append(matches, entity.MatchCandidate{
			Path:      entry.Path,
			Name:      entry.Name,
			MatchType: s.Name(),
			Score:     best,
			Details: map[string]string{
				"matched_against":  matchedAgainst,
				"query_name":       candidate.Name,
				"normalized_query": query,
				"similarity":       fmt.Sprintf("%.3f", best),
			},
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// similarity maps the Levenshtein distance between two normalized names into
// a 0..1 ratio relative to the longer of the two.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0.0
	}
	distance := fuzzy.LevenshteinDistance(a, b)
	ratio := 1.0 - float64(distance)/float64(longest)
	if ratio < 0 {
		return 0.0
	}
	return ratio
}
