// Package pipeline composes the reconciliation pipeline: research,
// reconcile, stage, and apply phases driven one batch at a time.
package pipeline

import (
	"fmt"
	"log/slog"

	"reckon/internal/audit"
	"reckon/internal/config"
	"reckon/internal/executor"
	"reckon/internal/index"
	"reckon/internal/kgstore"
	"reckon/internal/logging"
	"reckon/internal/match"
	"reckon/internal/oracle"
	"reckon/internal/reconcile"
	"reckon/internal/session"
	"reckon/internal/staging"
)

// Orchestrator wires the pipeline components together. Only the
// orchestrator and the executor write to the knowledge store.
type Orchestrator struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *kgstore.FSStore
	index    *index.Index
	matcher  *match.Matcher
	engine   *reconcile.Engine
	staging  *staging.Store
	sessions *session.Store
	exec     *executor.Executor
}

// Option adjusts orchestrator construction.
type Option func(*options)

type options struct {
	decider oracle.Oracle
}

// WithOracle overrides the decision oracle. Used by tests to inject a
// deterministic decider.
func WithOracle(decider oracle.Oracle) Option {
	return func(o *options) { o.decider = decider }
}

// New builds an orchestrator from configuration, opening the knowledge
// store, entity index, staging database, and session database.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var settings options
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.decider == nil && cfg.Oracle.Enabled {
		settings.decider = oracle.NewClient(cfg.Oracle)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := kgstore.Open(cfg.Paths.GraphDir)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	ix, err := index.Open(cfg.IndexDBPath())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open entity index: %w", err)
	}
	stagingStore, err := staging.Open(cfg)
	if err != nil {
		ix.Close()
		store.Close()
		return nil, err
	}
	sessions, err := session.Open(cfg)
	if err != nil {
		stagingStore.Close()
		ix.Close()
		store.Close()
		return nil, err
	}

	matcher, err := match.NewMatcher(cfg.Matching, logger)
	if err != nil {
		sessions.Close()
		stagingStore.Close()
		ix.Close()
		store.Close()
		return nil, err
	}
	engine, err := reconcile.NewEngine(reconcile.PolicyFromConfig(cfg.Confidence), settings.decider, logger)
	if err != nil {
		sessions.Close()
		stagingStore.Close()
		ix.Close()
		store.Close()
		return nil, err
	}

	return &Orchestrator{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		store:    store,
		index:    ix,
		matcher:  matcher,
		engine:   engine,
		staging:  stagingStore,
		sessions: sessions,
		exec:     executor.New(store, stagingStore, ix, cfg.Graph, logger),
	}, nil
}

// Close releases every store the orchestrator holds open.
func (o *Orchestrator) Close() error {
	var firstErr error
	for _, closer := range []interface{ Close() error }{
		o.sessions, o.staging, o.index, o.store,
	} {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Staging exposes the staging store for review tooling.
func (o *Orchestrator) Staging() *staging.Store { return o.staging }

// Sessions exposes the session store.
func (o *Orchestrator) Sessions() *session.Store { return o.sessions }

// Index exposes the entity index.
func (o *Orchestrator) Index() *index.Index { return o.index }

// Store exposes the knowledge store handle. The orchestrator holds the
// store lock for its lifetime, so callers inspect entities through this
// handle instead of opening a second one.
func (o *Orchestrator) Store() *kgstore.FSStore { return o.store }

func (o *Orchestrator) openAudit(sessionID string) (*audit.Logger, error) {
	return audit.Open(o.cfg.AuditLogPath(), sessionID, o.logger)
}
