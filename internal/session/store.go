package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"reckon/internal/config"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

var (
	// ErrNotFound indicates the session does not exist.
	ErrNotFound = errors.New("session: not found")
	// ErrSchemaMismatch indicates the database was created by an incompatible version.
	ErrSchemaMismatch = errors.New("session: schema version mismatch")
	// ErrCorruptCheckpoint indicates a checkpoint record that cannot be
	// trusted for resume. Fatal: the operator restarts from scratch or
	// from an earlier valid checkpoint.
	ErrCorruptCheckpoint = errors.New("session: corrupt checkpoint")
)

// Store persists sessions, batch progress, and checkpoints in SQLite.
// It lives in its own database, separate from staging, so review tooling
// can archive or reset staged work without losing run history.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.SessionDBPath())
}

// OpenPath opens a session database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// NewSessionID returns a fresh session identifier carrying a timestamp
// for human-readable sorting plus a random suffix for uniqueness.
func NewSessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session_%s_%s", time.Now().UTC().Format("20060102_150405"), suffix)
}

// NewBatchID returns a fresh batch identifier.
func NewBatchID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("batch_%s_%s", time.Now().UTC().Format("20060102_150405"), suffix)
}

// Create records a new session in the created state.
func (s *Store) Create(ctx context.Context, configPath, graphPath string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:         NewSessionID(),
		State:      StateCreated,
		ConfigPath: configPath,
		GraphPath:  graphPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, state, config_path, graph_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.State),
		nullableString(configPath), nullableString(graphPath),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

const selectSession = `
	SELECT id, state, config_path, graph_path, current_batch_id,
	       entities_extracted, operations_staged, operations_applied,
	       operations_failed, questions_pending, questions_answered,
	       error_message, created_at, updated_at
	FROM sessions`

// Get returns a session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, selectSession+" WHERE id = ?", sessionID)
	return scanSession(row)
}

// SetState transitions the session to a new lifecycle state.
func (s *Store) SetState(ctx context.Context, sessionID string, state State) error {
	return s.touchSession(ctx, sessionID, "state = ?", string(state))
}

// Fail marks the session failed and records the error.
func (s *Store) Fail(ctx context.Context, sessionID, message string) error {
	return s.touchSession(ctx, sessionID, "state = ?, error_message = ?", string(StateFailed), message)
}

// Complete marks the session completed.
func (s *Store) Complete(ctx context.Context, sessionID string) error {
	return s.touchSession(ctx, sessionID, "state = ?, error_message = NULL", string(StateCompleted))
}

func (s *Store) touchSession(ctx context.Context, sessionID, setClause string, args ...any) error {
	query := "UPDATE sessions SET " + setClause + ", updated_at = ? WHERE id = ?"
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return nil
}

// StartBatch registers a new batch and makes it the session's current batch.
func (s *Store) StartBatch(ctx context.Context, sessionID, sourceFile string, itemsTotal int) (string, error) {
	batchID := NewBatchID()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_batches (session_id, batch_id, source_file, items_total, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, batchID, nullableString(sourceFile), itemsTotal, now)
	if err != nil {
		return "", fmt.Errorf("insert batch: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		"UPDATE sessions SET current_batch_id = ?, updated_at = ? WHERE id = ?",
		batchID, now, sessionID)
	if err != nil {
		return "", fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return "", fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit batch: %w", err)
	}
	return batchID, nil
}

// UpdateBatch records batch progress. Extracted entities also roll up
// into the session total.
func (s *Store) UpdateBatch(ctx context.Context, sessionID, batchID string, itemsProcessed, entitiesExtracted int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE session_batches
		SET items_processed = ?, entities_extracted = entities_extracted + ?
		WHERE session_id = ? AND batch_id = ?`,
		itemsProcessed, entitiesExtracted, sessionID, batchID)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: batch %s in session %s", ErrNotFound, batchID, sessionID)
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE sessions SET entities_extracted = entities_extracted + ?, updated_at = ? WHERE id = ?",
		entitiesExtracted, now, sessionID)
	if err != nil {
		return fmt.Errorf("update session totals: %w", err)
	}
	return tx.Commit()
}

// CompleteBatch stamps the batch complete and clears it as the session's
// current batch when it still is.
func (s *Store) CompleteBatch(ctx context.Context, sessionID, batchID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE session_batches SET completed_at = ?
		WHERE session_id = ? AND batch_id = ?`,
		now, sessionID, batchID)
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: batch %s in session %s", ErrNotFound, batchID, sessionID)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET current_batch_id = NULL, updated_at = ?
		WHERE id = ? AND current_batch_id = ?`,
		now, sessionID, batchID)
	if err != nil {
		return fmt.Errorf("clear current batch: %w", err)
	}
	return tx.Commit()
}

// FailBatch records a batch-level error message.
func (s *Store) FailBatch(ctx context.Context, sessionID, batchID, message string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE session_batches SET error_message = ?
		WHERE session_id = ? AND batch_id = ?`,
		message, sessionID, batchID)
	if err != nil {
		return fmt.Errorf("fail batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail batch: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: batch %s in session %s", ErrNotFound, batchID, sessionID)
	}
	return nil
}

// Stats carries statistic deltas and absolute question counts for a
// session update. Operation counts accumulate; question counts replace.
type Stats struct {
	OperationsStaged  int
	OperationsApplied int
	OperationsFailed  int
	QuestionsPending  *int
	QuestionsAnswered *int
}

// UpdateStats applies a statistics update to the session.
func (s *Store) UpdateStats(ctx context.Context, sessionID string, stats Stats) error {
	set := []string{
		"operations_staged = operations_staged + ?",
		"operations_applied = operations_applied + ?",
		"operations_failed = operations_failed + ?",
	}
	args := []any{stats.OperationsStaged, stats.OperationsApplied, stats.OperationsFailed}
	if stats.QuestionsPending != nil {
		set = append(set, "questions_pending = ?")
		args = append(args, *stats.QuestionsPending)
	}
	if stats.QuestionsAnswered != nil {
		set = append(set, "questions_answered = ?")
		args = append(args, *stats.QuestionsAnswered)
	}
	return s.touchSession(ctx, sessionID, strings.Join(set, ", "), args...)
}

// List returns recent sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectSession+" ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// Resumable returns sessions that were interrupted mid-run, newest first.
func (s *Store) Resumable(ctx context.Context) ([]*Session, error) {
	sessions, err := s.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	resumable := sessions[:0]
	for _, sess := range sessions {
		if sess.State.Resumable() {
			resumable = append(resumable, sess)
		}
	}
	return resumable, nil
}

// Batches returns the batches recorded for a session in start order.
func (s *Store) Batches(ctx context.Context, sessionID string) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, batch_id, source_file, items_total, items_processed,
		       entities_extracted, started_at, completed_at, error_message
		FROM session_batches
		WHERE session_id = ?
		ORDER BY started_at ASC, batch_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		var (
			batch                             Batch
			sourceFile, completedAt, errorMsg sql.NullString
			startedAt                         string
		)
		err := rows.Scan(&batch.SessionID, &batch.BatchID, &sourceFile,
			&batch.ItemsTotal, &batch.ItemsProcessed, &batch.EntitiesExtracted,
			&startedAt, &completedAt, &errorMsg)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batch.SourceFile = sourceFile.String
		batch.ErrorMessage = errorMsg.String
		batch.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid {
			batch.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt.String)
		}
		batches = append(batches, &batch)
	}
	return batches, rows.Err()
}

func scanSession(row *sql.Row) (*Session, error) {
	sess, err := scanSessionColumns(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

func collectSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		sess, err := scanSessionColumns(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSessionColumns(scan func(...any) error) (*Session, error) {
	var (
		sess                                          Session
		state                                         string
		configPath, graphPath, currentBatch, errorMsg sql.NullString
		createdAt, updatedAt                          string
	)
	err := scan(&sess.ID, &state, &configPath, &graphPath, &currentBatch,
		&sess.EntitiesExtracted, &sess.OperationsStaged, &sess.OperationsApplied,
		&sess.OperationsFailed, &sess.QuestionsPending, &sess.QuestionsAnswered,
		&errorMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.State = State(state)
	sess.ConfigPath = configPath.String
	sess.GraphPath = graphPath.String
	sess.CurrentBatchID = currentBatch.String
	sess.ErrorMessage = errorMsg.String
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sess, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
