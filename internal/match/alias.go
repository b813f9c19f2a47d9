package match

import (
	"reckon/internal/entity"
	"reckon/internal/index"
)

// AliasStrategy matches a candidate against the stored names and aliases of
// existing entities. The candidate side contributes its name, its declared
// aliases, and its contact email addresses, since stored alias sets carry
// contact emails too. Matches are exact after case folding and always
// score 1.0.
type AliasStrategy struct{}

func (s *AliasStrategy) Name() string { return "alias" }

func (s *AliasStrategy) ScoreRange() (float64, float64) { return 1.0, 1.0 }

func (s *AliasStrategy) FindMatches(candidate entity.Candidate, entries []index.Entry) ([]entity.MatchCandidate, error) {
	keys := candidateKeys(candidate)
	if len(keys) == 0 {
		return nil, nil
	}

	var matches []entity.MatchCandidate
	for _, entry := range entries {
		if _, ok := keys[entity.NormalizeAlias(entry.Name)]; ok {
			matches = append(matches, entity.MatchCandidate{
				Path:      entry.Path,
				Name:      entry.Name,
				MatchType: s.Name(),
				Score:     1.0,
				Details: map[string]string{
					"matched_alias": entry.Name,
					"source":        "exact_name",
				},
			})
			continue
		}
		for _, alias := range entry.Aliases {
			if _, ok := keys[entity.NormalizeAlias(alias)]; ok {
				matches = append(matches, entity.MatchCandidate{
					Path:      entry.Path,
					Name:      entry.Name,
					MatchType: s.Name(),
					Score:     1.0,
					Details: map[string]string{
						"matched_alias": alias,
						"source":        "entity_aliases",
					},
				})
				break
			}
		}
	}
	return matches, nil
}

func candidateKeys(candidate entity.Candidate) map[string]struct{} {
	keys := make(map[string]struct{}, 1+len(candidate.Aliases)+len(candidate.Contacts))
	add := func(value string) {
		if key := entity.NormalizeAlias(value); key != "" {
			keys[key] = struct{}{}
		}
	}
	add(candidate.Name)
	for _, alias := range candidate.Aliases {
		add(alias)
	}
	for _, contact := range candidate.Contacts {
		add(contact.Email)
	}
	return keys
}
