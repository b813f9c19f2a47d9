// Package session tracks processing runs and their resume points.
//
// A session covers one run from ingestion through application. Progress
// is checkpointed after each phase; checkpoints are append-only, and
// resume re-enters at the phase recorded by the newest one. Because
// staging transitions are idempotent, replaying a phase after an
// interruption is safe.
package session
