package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/store"
)

// RequestMeta carries the client attribution recorded with every audit event.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuditLogger appends security events to the store. Recording is best effort:
// a failed append is logged but never fails the operation that triggered it,
// and audit writes never join the consumption transaction.
type AuditLogger struct {
	store  *store.Store
	logger *slog.Logger
}

// NewAuditLogger creates an audit logger. A nil slog logger gets
// slog.Default.
func NewAuditLogger(st *store.Store, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{store: st, logger: logger}
}

// Record appends one event, assigning a time-sortable UUIDv7 ID.
func (a *AuditLogger) Record(ctx context.Context, ev model.AuditEvent) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	ev.ID = id.String()
	if err := a.store.AppendAuditEvent(ctx, &ev); err != nil {
		a.logger.Warn("audit append failed", "action", ev.Action, "error", err)
	}
}
