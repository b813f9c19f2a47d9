// Package main hosts the reckon CLI entrypoint and command graph.
//
// The Cobra-based command tree feeds extracted entity candidates into the
// reconciliation pipeline, executes staged operations, answers review
// questions, and surfaces session and index state. It centralizes
// configuration resolution and logging setup so subcommands can focus on
// user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
