package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
)

// CreateLoginToken inserts a new login token. The caller supplies the hash;
// the raw secret never reaches the store. The ID field is populated after
// insert.
func (s *Store) CreateLoginToken(ctx context.Context, t *model.LoginToken) error {
	q := `INSERT INTO login_tokens (token_hash, owner_email, issuance_kind, issuing_admin_id, created_at, expires_at)
	      VALUES (:token_hash, :owner_email, :issuance_kind, :issuing_admin_id, :created_at, :expires_at)`
	t.OwnerEmail = normalizeEmail(t.OwnerEmail)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.NamedExecContext(ctx, q, t)
	if err != nil {
		return fmt.Errorf("insert login token: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get login token id: %w", err)
	}
	t.ID = id
	return nil
}

// GetLoginTokenByHash returns the token with the given hash.
func (s *Store) GetLoginTokenByHash(ctx context.Context, hash string) (*model.LoginToken, error) {
	var t model.LoginToken
	if err := s.db.GetContext(ctx, &t, "SELECT * FROM login_tokens WHERE token_hash = ?", hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get login token: %w", err)
	}
	return &t, nil
}

// ConsumeLoginToken atomically redeems the token with the given hash and
// opens a session for its owner, all in one transaction. The caller supplies
// the session record with IDHash, CSRFSecret, and ExpiresAt prefilled; the
// store fills in UserID and timestamps.
//
// Outcomes: ErrNotFound (no such hash), ErrTokenExpired (past TTL, checked
// before consumption state so expiry always wins), ErrTokenConsumed (lost the
// compare-and-swap to a concurrent redeemer). Exactly one of N concurrent
// calls with the same token succeeds; the UPDATE's consumed_at IS NULL guard
// is the arbiter.
func (s *Store) ConsumeLoginToken(ctx context.Context, tokenHash string, now time.Time, sess *model.Session) (*model.User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume tx: %w", err)
	}
	defer tx.Rollback()

	var t model.LoginToken
	if err := tx.GetContext(ctx, &t, "SELECT * FROM login_tokens WHERE token_hash = ?", tokenHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load login token: %w", err)
	}

	if t.Expired(now) {
		return nil, ErrTokenExpired
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE login_tokens SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL", now, t.ID)
	if err != nil {
		return nil, fmt.Errorf("mark login token consumed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark login token consumed: %w", err)
	}
	if n == 0 {
		return nil, ErrTokenConsumed
	}

	// Upsert the owner: consumption may be the first time we see this email.
	var u model.User
	err = tx.GetContext(ctx, &u, "SELECT * FROM users WHERE email = ?", t.OwnerEmail)
	if err == sql.ErrNoRows {
		u = model.User{Email: t.OwnerEmail, CreatedAt: now}
		res, err := tx.NamedExecContext(ctx,
			`INSERT INTO users (email, name, team, is_admin, created_at)
			 VALUES (:email, :name, :team, :is_admin, :created_at)`, &u)
		if err != nil {
			return nil, fmt.Errorf("create user on login: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("get user id: %w", err)
		}
		u.ID = id
	} else if err != nil {
		return nil, fmt.Errorf("load user on login: %w", err)
	}

	sess.UserID = u.ID
	sess.CreatedAt = now
	sess.LastSeenAt = now
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO sessions (id_hash, user_id, csrf_secret, created_at, last_seen_at, expires_at)
		 VALUES (:id_hash, :user_id, :csrf_secret, :created_at, :last_seen_at, :expires_at)`, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume tx: %w", err)
	}
	return &u, nil
}

// DeleteExpiredLoginTokens removes tokens past their TTL. Consumed tokens are
// kept for their audit value until they expire.
func (s *Store) DeleteExpiredLoginTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM login_tokens WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired login tokens: %w", err)
	}
	return result.RowsAffected()
}
