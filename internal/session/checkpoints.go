package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Checkpoint appends a progress marker for the session. Earlier
// checkpoints are left in place; resume always reads the newest one,
// so an interrupted write can never clobber the last good marker.
func (s *Store) Checkpoint(ctx context.Context, cp Checkpoint) (int64, error) {
	if cp.SessionID == "" || cp.Phase == "" {
		return 0, fmt.Errorf("session: checkpoint requires session id and phase")
	}
	contextData, err := cp.contextJSON()
	if err != nil {
		return 0, fmt.Errorf("encode checkpoint context: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, batch_id, phase, state,
			items_processed, entities_extracted, operations_staged,
			context_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.SessionID, nullableString(cp.BatchID), cp.Phase, string(cp.State),
		cp.Counters.ItemsProcessed, cp.Counters.EntitiesExtracted,
		cp.Counters.OperationsStaged,
		contextData, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert checkpoint: %w", err)
	}
	return result.LastInsertId()
}

const selectCheckpoint = `
	SELECT id, session_id, batch_id, phase, state,
	       items_processed, entities_extracted, operations_staged,
	       context_data, created_at
	FROM checkpoints`

// Resume returns the latest checkpoint for the session, or nil when the
// session never checkpointed. An unreadable record is fatal for resume
// and reported as ErrCorruptCheckpoint.
func (s *Store) Resume(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		selectCheckpoint+" WHERE session_id = ? ORDER BY id DESC LIMIT 1", sessionID)
	cp, err := scanCheckpoint(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

// LatestForPhase returns the newest checkpoint recorded for a phase.
func (s *Store) LatestForPhase(ctx context.Context, sessionID, phase string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		selectCheckpoint+" WHERE session_id = ? AND phase = ? ORDER BY id DESC LIMIT 1",
		sessionID, phase)
	cp, err := scanCheckpoint(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

// Checkpoints returns all checkpoints for a session, oldest first.
func (s *Store) Checkpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCheckpoint+" WHERE session_id = ? ORDER BY id ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows.Scan)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// PruneCheckpoints removes all but the newest keep checkpoints for a
// session. Returns the number removed.
func (s *Store) PruneCheckpoints(ctx context.Context, sessionID string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE session_id = ?
		AND id NOT IN (
			SELECT id FROM checkpoints WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		)`, sessionID, sessionID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	return int(affected), nil
}

// PruneCompleted removes every checkpoint belonging to completed
// sessions. Returns the number removed.
func (s *Store) PruneCompleted(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE session_id IN (SELECT id FROM sessions WHERE state = ?)`,
		string(StateCompleted))
	if err != nil {
		return 0, fmt.Errorf("prune completed checkpoints: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune completed checkpoints: %w", err)
	}
	return int(affected), nil
}

func scanCheckpoint(scan func(...any) error) (*Checkpoint, error) {
	var (
		cp          Checkpoint
		batchID     sql.NullString
		state       string
		contextData string
		createdAt   string
	)
	err := scan(&cp.ID, &cp.SessionID, &batchID, &cp.Phase, &state,
		&cp.Counters.ItemsProcessed, &cp.Counters.EntitiesExtracted,
		&cp.Counters.OperationsStaged, &contextData, &createdAt)
	if err != nil {
		return nil, err
	}
	cp.BatchID = batchID.String
	cp.State = State(state)

	if cp.Phase == "" {
		return nil, fmt.Errorf("%w: checkpoint %d has no phase", ErrCorruptCheckpoint, cp.ID)
	}
	if err := json.Unmarshal([]byte(contextData), &cp.Context); err != nil {
		return nil, fmt.Errorf("%w: checkpoint %d context unreadable: %v", ErrCorruptCheckpoint, cp.ID, err)
	}
	cp.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint %d timestamp unreadable: %v", ErrCorruptCheckpoint, cp.ID, err)
	}
	return &cp, nil
}
