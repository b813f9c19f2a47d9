package match

import (
	"sort"
	"strconv"
	"strings"

	"reckon/internal/entity"
	"reckon/internal/index"
)

// EmailDomainStrategy matches candidates by shared contact email domains.
// Generic mailbox providers never count as evidence of a shared organization.
// A shared domain alone scores the base; when a candidate contact's local
// part also overlaps a stored contact's local part the score is boosted,
// since the same mailbox on the same domain is much stronger evidence than
// two unrelated people at one company.
type EmailDomainStrategy struct {
	GenericDomains []string
}

const (
	domainScoreBase  = 0.85
	domainScoreMax   = 0.95
	localMatchWeight = 0.10
)

func (s *EmailDomainStrategy) Name() string { return "email_domain" }

func (s *EmailDomainStrategy) ScoreRange() (float64, float64) { return domainScoreBase, domainScoreMax }

func (s *EmailDomainStrategy) FindMatches(candidate entity.Candidate, entries []index.Entry) ([]entity.MatchCandidate, error) {
	generic := make(map[string]struct{}, len(s.GenericDomains))
	for _, domain := range s.GenericDomains {
		generic[strings.ToLower(strings.TrimSpace(domain))] = struct{}{}
	}

	candidateDomains := make(map[string]struct{})
	for _, domain := range candidate.EmailDomains() {
		if _, skip := generic[domain]; !skip {
			candidateDomains[domain] = struct{}{}
		}
	}
	if len(candidateDomains) == 0 {
		return nil, nil
	}

	var matches []entity.MatchCandidate
	for _, entry := range entries {
		entryDomains := make(map[string]struct{}, len(entry.EmailDomains))
		for _, domain := range entry.EmailDomains {
			if _, skip := generic[domain]; !skip {
				entryDomains[domain] = struct{}{}
			}
		}
		if len(entryDomains) == 0 {
			continue
		}

		var overlap []string
		for domain := range candidateDomains {
			if _, ok := entryDomains[domain]; ok {
				overlap = append(overlap, domain)
			}
		}
		if len(overlap) == 0 {
			continue
		}
		sort.Strings(overlap)

		score := domainScoreBase
		localMatch := localPartsOverlap(candidate, entry)
		if localMatch {
			score += localMatchWeight
		}
		if score > domainScoreMax {
			score = domainScoreMax
		}

		matches = append(matches, entity.MatchCandidate{
			Path:      entry.Path,
			Name:      entry.Name,
			MatchType: s.Name(),
			Score:     score,
			Details: map[string]string{
				"matching_domains": strings.Join(overlap, ","),
				"local_part_match": strconv.FormatBool(localMatch),
			},
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// localPartsOverlap reports whether any candidate contact's local part
// partially matches a local part from the entry's stored email aliases.
// Partial means substring containment in either direction, so "j.smith"
// still lines up with "smith".
func localPartsOverlap(candidate entity.Candidate, entry index.Entry) bool {
	var stored []string
	for _, alias := range entry.Aliases {
		if local := entity.EmailLocal(alias); local != "" {
			stored = append(stored, local)
		}
	}
	if len(stored) == 0 {
		return false
	}
	for _, contact := range candidate.Contacts {
		local := entity.EmailLocal(contact.Email)
		if local == "" {
			continue
		}
		for _, other := range stored {
			if strings.Contains(local, other) || strings.Contains(other, local) {
				return true
			}
		}
	}
	return false
}
