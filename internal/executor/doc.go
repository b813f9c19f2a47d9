// Package executor applies ready staged operations to the knowledge store.
// Operations run sequentially in priority order (merge, then update, then
// create) so duplicate entities shrink before anything is added. One failed
// operation is marked failed and the batch continues.
package executor
