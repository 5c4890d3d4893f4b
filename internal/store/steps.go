package store

import (
	"context"
	"fmt"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
)

// UpsertStep records a step count for one (user, day), replacing any earlier
// count for that day.
func (s *Store) UpsertStep(ctx context.Context, entry *model.StepEntry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	q := `INSERT INTO steps (user_id, day, count, created_at, updated_at)
	      VALUES (:user_id, :day, :count, :created_at, :updated_at)
	      ON CONFLICT(user_id, day) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`
	if _, err := s.db.NamedExecContext(ctx, q, entry); err != nil {
		return fmt.Errorf("upsert step entry: %w", err)
	}
	return nil
}

// ListStepsByUser returns a user's entries ordered by day, newest first.
func (s *Store) ListStepsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.StepEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []model.StepEntry
	if err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM steps WHERE user_id = ? ORDER BY day DESC LIMIT ? OFFSET ?",
		userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list step entries: %w", err)
	}
	return entries, nil
}

// StepSummary aggregates a user's entries.
type StepSummary struct {
	Total   int64 `db:"total"`
	Days    int64 `db:"days"`
	BestDay int64 `db:"best_day"`
}

// SummarizeSteps returns a user's total, day count, and best single day.
func (s *Store) SummarizeSteps(ctx context.Context, userID int64) (*StepSummary, error) {
	var sum StepSummary
	q := `SELECT COALESCE(SUM(count), 0) AS total,
	             COUNT(*) AS days,
	             COALESCE(MAX(count), 0) AS best_day
	      FROM steps WHERE user_id = ?`
	if err := s.db.GetContext(ctx, &sum, q, userID); err != nil {
		return nil, fmt.Errorf("summarize steps: %w", err)
	}
	return &sum, nil
}
