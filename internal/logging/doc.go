// Package logging builds the slog loggers used across the pipeline and
// defines the standardized attribute keys (batch_id, phase, entity, action,
// confidence) that keep reconciliation logs queryable.
//
// Console output is a compact single-line format for interactive use; the
// json format emits one object per record for ingestion. NewFromConfig tees
// output to the configured log directory in addition to stdout.
package logging
