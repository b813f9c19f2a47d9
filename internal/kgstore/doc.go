// Package kgstore defines the knowledge store contract consumed by the
// reconciliation pipeline and provides the filesystem implementation.
//
// The contract is deliberately small: read, write, list, exists. Writes are
// atomic per entity (temp file + rename) but there is no cross-entity
// transaction; the operation executor provides batch-level ordering and the
// staging store provides durability. A flock at the store root enforces the
// single-writer assumption.
package kgstore
