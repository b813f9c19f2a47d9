package entity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var legalSuffixes = []string{
	" inc", " inc.", " corp", " corp.", " llc", " ltd", " ltd.",
	" gmbh", " a/s", " co", " co.", " company", " corporation",
	" sa", " s.a.", " sas", " s.a.s.",
}

var foldCaser = cases.Fold()

// NormalizeID converts an entity name into a filesystem-safe identifier:
// lower-cased, runs of non-alphanumerics collapsed to single underscores,
// leading and trailing underscores stripped.
func NormalizeID(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	prevUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// NormalizeName prepares an entity name for fuzzy comparison: case-folded,
// underscores treated as spaces, legal suffixes and punctuation removed,
// whitespace collapsed. Normalization is symmetric so "Port Group USA" and
// "port_group_usa" normalize identically.
func NormalizeName(name string) string {
	name = foldCaser.String(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", " ")
	// Suffixes are only stripped from the end of the name, repeatedly so
	// stacked forms like "Acme Holding Co Ltd" reduce fully. A suffix word
	// in the middle of a name ("Corporation Road") is part of the name.
	for changed := true; changed; {
		changed = false
		for _, suffix := range legalSuffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSpace(strings.TrimSuffix(name, suffix))
				changed = true
			}
		}
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeAlias case-folds and trims an alias for exact comparison.
func NormalizeAlias(alias string) string {
	return foldCaser.String(strings.TrimSpace(alias))
}

// EmailDomain returns the lowercased domain part of an email address, or ""
// when the value is not an address.
func EmailDomain(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// EmailLocal returns the lowercased local part of an email address, or ""
// when the value is not an address.
func EmailLocal(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return strings.ToLower(email[:at])
}
