// Package reconcile decides what happens to each incoming candidate: merge
// into an existing entity, update one, or create a new one. High and low
// match scores are decided deterministically from the confidence policy;
// scores inside the oracle band defer to the decision oracle and degrade to
// create-with-review when it fails.
package reconcile
