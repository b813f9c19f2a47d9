// Package staging is the durable boundary between "decided" and "applied".
// Reconcile decisions become staged operations in SQLite, moving through
// staged -> {ready|pending_review} -> {applied|failed|rejected}; ambiguous
// decisions get a human-review question inserted in the same transaction.
// Status transitions are idempotent so interrupted batches resume safely.
package staging
