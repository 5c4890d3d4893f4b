package service

import "errors"

var (
	// ErrRateLimited means the caller exceeded the per-identity budget for an
	// operation category.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidSession means the session cookie is missing, unknown, or past
	// its lifetime.
	ErrInvalidSession = errors.New("invalid session")
	// ErrInvalidCSRF means a state-changing request arrived without a token
	// matching the session's CSRF secret.
	ErrInvalidCSRF = errors.New("csrf token mismatch")
	// ErrNotAdmin means the session's user does not hold the admin flag right
	// now. The flag is re-read on every admin request, never cached.
	ErrNotAdmin = errors.New("admin privileges required")
	// ErrInvalidMCPToken means the bearer token is unknown, revoked, or
	// expired.
	ErrInvalidMCPToken = errors.New("invalid mcp token")
)
