package model

import "time"

// TokenKind distinguishes who requested a login token.
type TokenKind string

const (
	// TokenSelfService is a token requested by the subject themselves.
	TokenSelfService TokenKind = "self_service"
	// TokenAdminIssued is a token generated by an administrator on the
	// subject's behalf. Functionally equivalent to impersonation, which is
	// why issuance is audited with actor, target, IP, and user agent.
	TokenAdminIssued TokenKind = "admin_issued"
)

// LoginToken is a single-use magic-link credential. The raw secret is never
// persisted; only a SHA-256 hash is stored. ConsumedAt transitions nil to a
// timestamp exactly once, arbitrated by a compare-and-swap in the store.
type LoginToken struct {
	ID             int64      `json:"id" db:"id"`
	TokenHash      string     `json:"-" db:"token_hash"` // SHA-256 hash, never expose
	OwnerEmail     string     `json:"owner_email" db:"owner_email"`
	Kind           TokenKind  `json:"issuance_kind" db:"issuance_kind"`
	IssuingAdminID *int64     `json:"issuing_admin_id,omitempty" db:"issuing_admin_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at" db:"expires_at"`
	ConsumedAt     *time.Time `json:"consumed_at,omitempty" db:"consumed_at"`
}

// Expired reports whether the token is past its TTL at the given instant.
// Expiry dominates consumption state: an expired token is invalid even if it
// was never consumed.
func (t *LoginToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
