package session

import "context"

// CorruptLatestCheckpointForTests overwrites the newest checkpoint's
// context payload with invalid JSON so corruption handling can be tested.
func (s *Store) CorruptLatestCheckpointForTests(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE checkpoints SET context_data = '{not json'
		WHERE id = (SELECT id FROM checkpoints WHERE session_id = ? ORDER BY id DESC LIMIT 1)`,
		sessionID)
	return err
}
