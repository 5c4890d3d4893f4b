package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
)

// CreateSession inserts a session row. Normally sessions are created inside
// ConsumeLoginToken's transaction; this exists for tests and tooling.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if sess.LastSeenAt.IsZero() {
		sess.LastSeenAt = sess.CreatedAt
	}
	q := `INSERT INTO sessions (id_hash, user_id, csrf_secret, created_at, last_seen_at, expires_at)
	      VALUES (:id_hash, :user_id, :csrf_secret, :created_at, :last_seen_at, :expires_at)`
	if _, err := s.db.NamedExecContext(ctx, q, sess); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByHash returns the session with the given ID hash.
func (s *Store) GetSessionByHash(ctx context.Context, idHash string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.GetContext(ctx, &sess, "SELECT * FROM sessions WHERE id_hash = ?", idHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// TouchSession updates the session's last-seen timestamp.
func (s *Store) TouchSession(ctx context.Context, idHash string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE sessions SET last_seen_at = ? WHERE id_hash = ?", now, idHash)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteSession removes the session with the given ID hash. Deleting an
// unknown hash is not an error; logout is idempotent.
func (s *Store) DeleteSession(ctx context.Context, idHash string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id_hash = ?", idHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions removes all sessions for a user. Used when an admin
// revokes access.
func (s *Store) DeleteUserSessions(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpiredSessions removes sessions past their lifetime.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
