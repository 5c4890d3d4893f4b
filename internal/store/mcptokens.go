package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
)

// CreateMCPToken inserts a new MCP token. The caller supplies the hash and
// prefix; the raw secret is shown to the administrator exactly once and never
// stored. The ID field is populated after insert.
func (s *Store) CreateMCPToken(ctx context.Context, t *model.MCPToken) error {
	q := `INSERT INTO mcp_tokens (user_id, name, token_hash, token_prefix, permissions, scopes, is_active, expires_at, created_at)
	      VALUES (:user_id, :name, :token_hash, :token_prefix, :permissions, :scopes, :is_active, :expires_at, :created_at)`
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.NamedExecContext(ctx, q, t)
	if err != nil {
		return fmt.Errorf("insert mcp token: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get mcp token id: %w", err)
	}
	t.ID = id
	return nil
}

// GetMCPTokenByHash returns the token with the given hash.
func (s *Store) GetMCPTokenByHash(ctx context.Context, hash string) (*model.MCPToken, error) {
	var t model.MCPToken
	if err := s.db.GetContext(ctx, &t, "SELECT * FROM mcp_tokens WHERE token_hash = ?", hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get mcp token: %w", err)
	}
	return &t, nil
}

// GetMCPTokenByID returns the token with the given ID.
func (s *Store) GetMCPTokenByID(ctx context.Context, id int64) (*model.MCPToken, error) {
	var t model.MCPToken
	if err := s.db.GetContext(ctx, &t, "SELECT * FROM mcp_tokens WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get mcp token: %w", err)
	}
	return &t, nil
}

// ListMCPTokens returns all MCP tokens, newest first.
func (s *Store) ListMCPTokens(ctx context.Context) ([]model.MCPToken, error) {
	var tokens []model.MCPToken
	if err := s.db.SelectContext(ctx, &tokens, "SELECT * FROM mcp_tokens ORDER BY created_at DESC, id DESC"); err != nil {
		return nil, fmt.Errorf("list mcp tokens: %w", err)
	}
	return tokens, nil
}

// SetMCPTokenActive enables or disables a token without deleting it.
func (s *Store) SetMCPTokenActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx, "UPDATE mcp_tokens SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("set mcp token active: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set mcp token active: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMCPToken removes the token with the given ID.
func (s *Store) DeleteMCPToken(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM mcp_tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete mcp token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete mcp token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchMCPToken updates the token's last-used timestamp.
func (s *Store) TouchMCPToken(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE mcp_tokens SET last_used_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("touch mcp token: %w", err)
	}
	return nil
}
