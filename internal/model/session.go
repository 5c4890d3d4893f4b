package model

import "time"

// Session is the server-side record proving a consumed login token. The raw
// session ID lives only in the client's HTTP-only cookie; the store keeps a
// SHA-256 hash. The CSRF secret is generated once at session creation and is
// stable for the session's lifetime.
type Session struct {
	IDHash     string    `json:"-" db:"id_hash"`
	UserID     int64     `json:"user_id" db:"user_id"`
	CSRFSecret string    `json:"-" db:"csrf_secret"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the session is past its lifetime at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
