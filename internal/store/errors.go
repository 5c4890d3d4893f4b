package store

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Login token consumption outcomes. Consumption distinguishes these
// internally for auditing; the HTTP layer collapses them into one generic
// failure so callers cannot probe token state.
var (
	// ErrTokenExpired means the token exists but is past its TTL. Expiry
	// wins over consumption state.
	ErrTokenExpired = errors.New("login token expired")
	// ErrTokenConsumed means the token was already redeemed.
	ErrTokenConsumed = errors.New("login token already consumed")
)
