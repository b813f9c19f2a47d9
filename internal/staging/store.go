package staging

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"reckon/internal/config"
	"reckon/internal/entity"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current staging schema version. The schema is part of
// the durable contract for resumability; bump only with a migration plan.
const schemaVersion = 1

var (
	// ErrNotFound indicates the operation or question does not exist.
	ErrNotFound = errors.New("staging: not found")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("staging: invalid status transition")
	// ErrSchemaMismatch indicates the database was created by an incompatible version.
	ErrSchemaMismatch = errors.New("staging: schema version mismatch")
)

// Store persists staged operations and review questions in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the staging database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.StagingDBPath())
}

// OpenPath opens a staging database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
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

// Stage records one decision as a durable operation. Decisions needing
// review land in pending_review with their question inserted in the same
// transaction; everything else is immediately ready. Skip decisions are the
// caller's responsibility to filter out.
func (s *Store) Stage(ctx context.Context, batchID string, decision entity.Decision) (int64, error) {
	entityData, err := json.Marshal(decision.Source)
	if err != nil {
		return 0, fmt.Errorf("encode entity payload: %w", err)
	}
	candidatesData, err := json.Marshal(decision.Candidates)
	if err != nil {
		return 0, fmt.Errorf("encode candidates payload: %w", err)
	}

	status := StatusReady
	if decision.NeedsReview {
		status = StatusPendingReview
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin stage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO staged_operations (
            batch_id, entity_name, action, target_path,
            confidence, reasoning, entity_data, candidates_data,
            status, priority, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID,
		decision.EntityName,
		string(decision.Action),
		nullableString(decision.TargetPath),
		decision.Confidence,
		decision.Reasoning,
		string(entityData),
		string(candidatesData),
		string(status),
		decision.Action.Priority(),
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert staged operation: %w", err)
	}
	opID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if decision.NeedsReview {
		question := NewReconcileQuestion(batchID, opID, decision)
		if _, err := insertQuestion(ctx, tx, question); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit stage: %w", err)
	}
	return opID, nil
}

// GetOperation fetches one operation by id.
func (s *Store) GetOperation(ctx context.Context, id int64) (*Operation, error) {
	row := s.db.QueryRowContext(ctx, selectOperation+" WHERE id = ?", id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: operation %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

// GetReady returns the batch's ready operations ordered by priority then id,
// so merges apply before updates and updates before creates.
func (s *Store) GetReady(ctx context.Context, batchID string) ([]*Operation, error) {
	query := selectOperation + " WHERE status = ?"
	args := []any{string(StatusReady)}
	if batchID != "" {
		query += " AND batch_id = ?"
		args = append(args, batchID)
	}
	query += " ORDER BY priority ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ready operations: %w", err)
	}
	defer rows.Close()
	return collectOperations(rows)
}

// BatchOperations returns every operation in a batch, optionally filtered by
// status, in application order.
func (s *Store) BatchOperations(ctx context.Context, batchID string, status Status) ([]*Operation, error) {
	query := selectOperation + " WHERE batch_id = ?"
	args := []any{batchID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY priority ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batch operations: %w", err)
	}
	defer rows.Close()
	return collectOperations(rows)
}

// MarkReady approves an operation for execution.
func (s *Store) MarkReady(ctx context.Context, id int64) error {
	return s.UpdateStatus(ctx, id, StatusReady, "")
}

// UpdateStatus transitions an operation. Re-issuing a transition already in
// effect is a no-op; transitions the state machine forbids are errors.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status Status, errorMessage string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM staged_operations WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: operation %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read operation status: %w", err)
	}

	if Status(current) == status {
		return nil
	}
	if !transitionAllowed(Status(current), status) {
		return fmt.Errorf("%w: operation %d cannot go %s -> %s", ErrInvalidTransition, id, current, status)
	}

	if err := applyStatusUpdate(ctx, tx, id, status, errorMessage); err != nil {
		return err
	}
	return tx.Commit()
}

func applyStatusUpdate(ctx context.Context, tx *sql.Tx, id int64, status Status, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var err error
	switch {
	case status == StatusApplied:
		_, err = tx.ExecContext(ctx,
			"UPDATE staged_operations SET status = ?, applied_at = ?, error_message = NULL WHERE id = ?",
			string(status), now, id)
	case errorMessage != "":
		_, err = tx.ExecContext(ctx,
			"UPDATE staged_operations SET status = ?, error_message = ? WHERE id = ?",
			string(status), errorMessage, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE staged_operations SET status = ? WHERE id = ?",
			string(status), id)
	}
	if err != nil {
		return fmt.Errorf("update operation status: %w", err)
	}
	return nil
}

// CountByStatus returns the status histogram across all batches.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.countStatuses(ctx, "")
}

// CountByBatch returns the status histogram for one batch.
func (s *Store) CountByBatch(ctx context.Context, batchID string) (map[Status]int, error) {
	return s.countStatuses(ctx, batchID)
}

func (s *Store) countStatuses(ctx context.Context, batchID string) (map[Status]int, error) {
	query := "SELECT status, COUNT(*) FROM staged_operations"
	var args []any
	if batchID != "" {
		query += " WHERE batch_id = ?"
		args = append(args, batchID)
	}
	query += " GROUP BY status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count operations: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// RecentBatches summarizes the most recent batches, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT
            batch_id,
            COUNT(*) AS total,
            SUM(CASE WHEN status = 'applied' THEN 1 ELSE 0 END) AS applied,
            SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
            SUM(CASE WHEN status = 'pending_review' THEN 1 ELSE 0 END) AS pending,
            MIN(created_at) AS started_at,
            COALESCE(MAX(applied_at), '') AS completed_at
        FROM staged_operations
        GROUP BY batch_id
        ORDER BY started_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent batches: %w", err)
	}
	defer rows.Close()

	var summaries []BatchSummary
	for rows.Next() {
		var summary BatchSummary
		if err := rows.Scan(
			&summary.BatchID, &summary.Total, &summary.Applied,
			&summary.Failed, &summary.Pending, &summary.StartedAt, &summary.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan batch summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

const selectOperation = `
    SELECT id, batch_id, entity_name, action, target_path,
           confidence, reasoning, entity_data, candidates_data,
           status, priority, created_at, applied_at, error_message
    FROM staged_operations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*Operation, error) {
	var (
		op           Operation
		action       string
		status       string
		targetPath   sql.NullString
		appliedAt    sql.NullString
		errorMessage sql.NullString
	)
	if err := row.Scan(
		&op.ID, &op.BatchID, &op.EntityName, &action, &targetPath,
		&op.Confidence, &op.Reasoning, &op.EntityData, &op.CandidatesData,
		&status, &op.Priority, &op.CreatedAt, &appliedAt, &errorMessage,
	); err != nil {
		return nil, err
	}
	op.Action = entity.Action(action)
	op.Status = Status(status)
	op.TargetPath = targetPath.String
	op.AppliedAt = appliedAt.String
	op.ErrorMessage = errorMessage.String
	return &op, nil
}

func collectOperations(rows *sql.Rows) ([]*Operation, error) {
	var operations []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		operations = append(operations, op)
	}
	return operations, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
