package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
)

// auditRow is a flat struct that maps 1:1 to the audit_events table columns.
// Metadata is serialized to JSON for storage.
type auditRow struct {
	ID           string    `db:"id"`
	ActorID      *int64    `db:"actor_id"`
	Action       string    `db:"action"`
	TargetUserID *int64    `db:"target_user_id"`
	IP           string    `db:"ip"`
	UserAgent    string    `db:"user_agent"`
	MetadataJSON string    `db:"metadata_json"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r auditRow) toModel() (model.AuditEvent, error) {
	ev := model.AuditEvent{
		ID:           r.ID,
		ActorID:      r.ActorID,
		Action:       model.AuditAction(r.Action),
		TargetUserID: r.TargetUserID,
		IP:           r.IP,
		UserAgent:    r.UserAgent,
		CreatedAt:    r.CreatedAt,
	}
	if r.MetadataJSON != "" && r.MetadataJSON != "{}" {
		if err := json.Unmarshal([]byte(r.MetadataJSON), &ev.Metadata); err != nil {
			return ev, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return ev, nil
}

// AppendAuditEvent appends one event to the audit log. The log is
// append-only; there is no update or delete path.
func (s *Store) AppendAuditEvent(ctx context.Context, ev *model.AuditEvent) error {
	meta := "{}"
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		meta = string(b)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	row := auditRow{
		ID:           ev.ID,
		ActorID:      ev.ActorID,
		Action:       string(ev.Action),
		TargetUserID: ev.TargetUserID,
		IP:           ev.IP,
		UserAgent:    ev.UserAgent,
		MetadataJSON: meta,
		CreatedAt:    ev.CreatedAt,
	}
	q := `INSERT INTO audit_events (id, actor_id, action, target_user_id, ip, user_agent, metadata_json, created_at)
	      VALUES (:id, :actor_id, :action, :target_user_id, :ip, :user_agent, :metadata_json, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// AuditFilter narrows ListAuditEvents. Zero values mean "no filter".
type AuditFilter struct {
	Action  model.AuditAction
	ActorID int64
	Limit   int
	Offset  int
}

// ListAuditEvents returns events newest first, with optional filtering.
func (s *Store) ListAuditEvents(ctx context.Context, f AuditFilter) ([]model.AuditEvent, error) {
	q := "SELECT * FROM audit_events WHERE 1=1"
	var args []interface{}
	if f.Action != "" {
		q += " AND action = ?"
		args = append(args, string(f.Action))
	}
	if f.ActorID != 0 {
		q += " AND actor_id = ?"
		args = append(args, f.ActorID)
	}
	q += " ORDER BY created_at DESC, id DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	events := make([]model.AuditEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toModel()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// CountAuditEvents returns the total number of events matching the filter.
func (s *Store) CountAuditEvents(ctx context.Context, f AuditFilter) (int64, error) {
	q := "SELECT COUNT(*) FROM audit_events WHERE 1=1"
	var args []interface{}
	if f.Action != "" {
		q += " AND action = ?"
		args = append(args, string(f.Action))
	}
	if f.ActorID != 0 {
		q += " AND actor_id = ?"
		args = append(args, f.ActorID)
	}
	var count int64
	if err := s.db.GetContext(ctx, &count, q, args...); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}
