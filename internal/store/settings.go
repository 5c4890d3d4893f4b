package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetSetting returns the value for an instance setting key. Returns
// ErrNotFound if the key has never been set.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts an instance setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	q := `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
	      ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
