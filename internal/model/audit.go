package model

import "time"

// AuditAction enumerates the security-relevant events this subsystem records.
type AuditAction string

const (
	AuditLinkIssuedSelf        AuditAction = "link_issued_self"
	AuditLinkIssuedAdmin       AuditAction = "link_issued_admin"
	AuditLinkConsumed          AuditAction = "link_consumed"
	AuditLinkConsumptionFailed AuditAction = "link_consumption_failed"
	AuditCSRFRejected          AuditAction = "csrf_rejected"
	AuditRateLimited           AuditAction = "rate_limited"
)

// AuditEvent is an immutable, append-only log record. ActorID is nil for
// self-service flows where the actor is the subject. Events answer "who
// issued a link for whom, from where, and was it consumed".
type AuditEvent struct {
	ID           string            `json:"id" db:"id"` // UUIDv7, sortable by time
	ActorID      *int64            `json:"actor_id,omitempty" db:"actor_id"`
	Action       AuditAction       `json:"action" db:"action"`
	TargetUserID *int64            `json:"target_user_id,omitempty" db:"target_user_id"`
	IP           string            `json:"ip" db:"ip"`
	UserAgent    string            `json:"user_agent" db:"user_agent"`
	Metadata     map[string]string `json:"metadata,omitempty" db:"-"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}
