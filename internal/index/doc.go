// Package index maintains a queryable SQLite projection of the knowledge
// store: path, display name, category/tier, aliases, and email domains.
//
// The index is a read cache for match strategies, never authoritative.
// Rebuild replaces the whole projection from a store scan; Upsert keeps it
// warm after individual writes during a session. Staleness between rebuilds
// is tolerated: callers rebuild after a batch of writes before the next
// research phase.
package index
