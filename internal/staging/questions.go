package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reckon/internal/entity"
)

// NewReconcileQuestion formats a human-review question for an ambiguous
// decision, listing the top candidates and the accepted answers.
func NewReconcileQuestion(batchID string, opID int64, decision entity.Decision) Question {
	top := decision.Candidates
	if len(top) > 5 {
		top = top[:5]
	}

	var lines []string
	for i, candidate := range top {
		lines = append(lines, fmt.Sprintf("  %d. %s (%s, score: %.2f)",
			i+1, candidate.Name, candidate.MatchType, candidate.Score))
	}
	candidatesText := "  (no candidates)"
	if len(lines) > 0 {
		candidatesText = strings.Join(lines, "\n")
	}

	suggested := "create"
	if len(top) > 0 {
		suggested = "merge:1"
	}

	text := fmt.Sprintf(`Should %q be merged with an existing entity?

Top candidates:
%s

Options:
- "merge:N" - Merge with candidate N (e.g., "merge:1")
- "approve" - Accept the suggested action (%s)
- "reject" - Reject this operation
- "create" - Create as new entity
`, decision.EntityName, candidatesText, decision.Action)

	contextData, _ := json.Marshal(map[string]any{
		"entity_name": decision.EntityName,
		"candidates":  top,
	})

	return Question{
		BatchID:         batchID,
		OperationID:     opID,
		QuestionType:    "reconcile",
		QuestionText:    text,
		ContextData:     string(contextData),
		SuggestedAction: suggested,
		Confidence:      decision.Confidence,
		Priority:        questionPriority(decision.Confidence),
		Status:          QuestionPending,
	}
}

// AddQuestion inserts a standalone question outside the staging transaction.
func (s *Store) AddQuestion(ctx context.Context, question Question) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin question tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := insertQuestion(ctx, tx, question)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit question: %w", err)
	}
	return id, nil
}

func insertQuestion(ctx context.Context, tx *sql.Tx, question Question) (int64, error) {
	if question.Priority == 0 {
		question.Priority = questionPriority(question.Confidence)
	}
	if question.Status == "" {
		question.Status = QuestionPending
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO question_queue (
            batch_id, staged_op_id, question_type, question_text,
            context_data, suggested_action, confidence, priority,
            status, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		question.BatchID,
		nullableInt64(question.OperationID),
		question.QuestionType,
		question.QuestionText,
		question.ContextData,
		nullableString(question.SuggestedAction),
		question.Confidence,
		question.Priority,
		string(question.Status),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("question insert id: %w", err)
	}
	return id, nil
}

// GetQuestion fetches one question by id.
func (s *Store) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	row := s.db.QueryRowContext(ctx, selectQuestion+" WHERE id = ?", id)
	question, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: question %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return question, nil
}

// PendingQuestions returns pending questions most urgent first, FIFO within
// equal priority.
func (s *Store) PendingQuestions(ctx context.Context, batchID string, limit int) ([]*Question, error) {
	if limit <= 0 {
		limit = 100
	}
	query := selectQuestion + " WHERE status = ?"
	args := []any{string(QuestionPending)}
	if batchID != "" {
		query += " AND batch_id = ?"
		args = append(args, batchID)
	}
	query += " ORDER BY priority ASC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, question)
	}
	return questions, rows.Err()
}

// NextQuestion returns the most urgent pending question, or nil when the
// queue is empty.
func (s *Store) NextQuestion(ctx context.Context, batchID string) (*Question, error) {
	questions, err := s.PendingQuestions(ctx, batchID, 1)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, nil
	}
	return questions[0], nil
}

// CountPendingQuestions counts pending questions, optionally per batch.
func (s *Store) CountPendingQuestions(ctx context.Context, batchID string) (int, error) {
	query := "SELECT COUNT(1) FROM question_queue WHERE status = ?"
	args := []any{string(QuestionPending)}
	if batchID != "" {
		query += " AND batch_id = ?"
		args = append(args, batchID)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending questions: %w", err)
	}
	return count, nil
}

// Answer resolves a pending question and transitions the linked operation in
// the same transaction. "approve", "yes", or "merge:N" flip the operation to
// ready ("merge:N" also redirects it at candidate N); any other answer
// rejects it.
func (s *Store) Answer(ctx context.Context, id int64, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return errors.New("staging: answer required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin answer tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var opID sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT staged_op_id FROM question_queue WHERE id = ? AND status = ?",
		id, string(QuestionPending),
	).Scan(&opID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: pending question %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read question: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		"UPDATE question_queue SET status = ?, user_answer = ?, answered_at = ? WHERE id = ?",
		string(QuestionAnswered), answer, now, id,
	); err != nil {
		return fmt.Errorf("update question: %w", err)
	}

	if opID.Valid {
		if err := s.resolveOperation(ctx, tx, opID.Int64, answer); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) resolveOperation(ctx context.Context, tx *sql.Tx, opID int64, answer string) error {
	normalized := strings.ToLower(strings.TrimSpace(answer))

	if index, ok := parseMergeAnswer(normalized); ok {
		return redirectToMerge(ctx, tx, opID, index)
	}
	if normalized == "create" {
		return redirectToCreate(ctx, tx, opID)
	}

	status := StatusRejected
	switch normalized {
	case "approve", "approved", "yes":
		status = StatusReady
	}
	return applyStatusUpdate(ctx, tx, opID, status, "")
}

// parseMergeAnswer extracts N from a "merge:N" answer.
func parseMergeAnswer(answer string) (int, bool) {
	rest, found := strings.CutPrefix(answer, "merge:")
	if !found {
		return 0, false
	}
	index, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || index < 1 {
		return 0, false
	}
	return index, true
}

// redirectToMerge rewrites the operation to merge into the chosen candidate
// and marks it ready.
func redirectToMerge(ctx context.Context, tx *sql.Tx, opID int64, index int) error {
	row := tx.QueryRowContext(ctx, selectOperation+" WHERE id = ?", opID)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: operation %d", ErrNotFound, opID)
	}
	if err != nil {
		return fmt.Errorf("read operation: %w", err)
	}

	candidates, err := op.MatchCandidates()
	if err != nil {
		return err
	}
	if index > len(candidates) {
		return fmt.Errorf("staging: operation %d has no candidate %d", opID, index)
	}
	target := candidates[index-1]

	if _, err := tx.ExecContext(ctx,
		`UPDATE staged_operations
         SET action = ?, target_path = ?, priority = ?, status = ?
         WHERE id = ?`,
		string(entity.ActionMerge),
		target.Path,
		entity.ActionMerge.Priority(),
		string(StatusReady),
		opID,
	); err != nil {
		return fmt.Errorf("redirect operation to merge: %w", err)
	}
	return nil
}

// redirectToCreate rewrites the operation as a plain create and marks it ready.
func redirectToCreate(ctx context.Context, tx *sql.Tx, opID int64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE staged_operations
         SET action = ?, target_path = NULL, priority = ?, status = ?
         WHERE id = ?`,
		string(entity.ActionCreate),
		entity.ActionCreate.Priority(),
		string(StatusReady),
		opID,
	); err != nil {
		return fmt.Errorf("redirect operation to create: %w", err)
	}
	return nil
}

// Skip defers a question. The linked operation stays pending_review so a
// later pass can re-surface it.
func (s *Store) Skip(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE question_queue SET status = ? WHERE id = ? AND status = ?",
		string(QuestionSkipped), id, string(QuestionPending))
	if err != nil {
		return fmt.Errorf("skip question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("skip question rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: pending question %d", ErrNotFound, id)
	}
	return nil
}

// ExpireQuestions marks pending questions older than the cutoff as expired
// and returns how many were affected.
func (s *Store) ExpireQuestions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		"UPDATE question_queue SET status = ? WHERE status = ? AND created_at < ?",
		string(QuestionExpired), string(QuestionPending), cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire questions: %w", err)
	}
	return res.RowsAffected()
}

// QuestionsForOperation returns every question tied to a staged operation,
// oldest first.
func (s *Store) QuestionsForOperation(ctx context.Context, opID int64) ([]*Question, error) {
	rows, err := s.db.QueryContext(ctx, selectQuestion+" WHERE staged_op_id = ? ORDER BY id ASC", opID)
	if err != nil {
		return nil, fmt.Errorf("query operation questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, question)
	}
	return questions, rows.Err()
}

const selectQuestion = `
    SELECT id, batch_id, staged_op_id, question_type, question_text,
           context_data, suggested_action, confidence, priority,
           status, user_answer, answered_at, created_at
    FROM question_queue`

func scanQuestion(row rowScanner) (*Question, error) {
	var (
		question        Question
		opID            sql.NullInt64
		contextData     sql.NullString
		suggestedAction sql.NullString
		confidence      sql.NullFloat64
		status          string
		userAnswer      sql.NullString
		answeredAt      sql.NullString
	)
	if err := row.Scan(
		&question.ID, &question.BatchID, &opID, &question.QuestionType, &question.QuestionText,
		&contextData, &suggestedAction, &confidence, &question.Priority,
		&status, &userAnswer, &answeredAt, &question.CreatedAt,
	); err != nil {
		return nil, err
	}
	question.OperationID = opID.Int64
	question.ContextData = contextData.String
	question.SuggestedAction = suggestedAction.String
	question.Confidence = confidence.Float64
	question.Status = QuestionStatus(status)
	question.UserAnswer = userAnswer.String
	question.AnsweredAt = answeredAt.String
	return &question, nil
}

func nullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
