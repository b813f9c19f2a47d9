// Package match finds existing counterparts for incoming candidates. It runs
// a configurable set of strategies (exact alias, fuzzy name similarity,
// shared email domain) over the entity index and aggregates their results,
// keeping the best score per entity path.
package match
