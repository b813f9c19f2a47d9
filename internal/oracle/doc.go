// Package oracle resolves ambiguous reconcile decisions through an
// OpenRouter-compatible chat completion API. The reconcile engine only sees
// the Oracle interface; failures surface as ErrTimeout or ErrUnavailable so
// callers can degrade instead of stalling a batch.
package oracle
