package model

import (
	"strings"
	"time"
)

// MCP token permission levels.
const (
	MCPPermissionReadWrite = "read_write"
	MCPPermissionReadOnly  = "read_only"
)

// MCP token scopes.
const (
	ScopeStepsRead   = "steps:read"
	ScopeStepsWrite  = "steps:write"
	ScopeProfileRead = "profile:read"
)

// MCPToken is a long-lived bearer credential that lets an MCP client act on
// behalf of a specific user. Tokens are created by administrators, scoped,
// and hashed at rest; only a short prefix is retained for identification.
type MCPToken struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	Name        string     `json:"name" db:"name"`
	TokenHash   string     `json:"-" db:"token_hash"` // SHA-256 hash, never expose
	TokenPrefix string     `json:"token_prefix" db:"token_prefix"`
	Permissions string     `json:"permissions" db:"permissions"`
	Scopes      string     `json:"scopes" db:"scopes"` // comma-separated
	IsActive    bool       `json:"is_active" db:"is_active"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// HasScope reports whether the token carries the given scope.
func (t *MCPToken) HasScope(scope string) bool {
	for _, s := range strings.Split(t.Scopes, ",") {
		if strings.TrimSpace(s) == scope {
			return true
		}
	}
	return false
}

// CanWrite reports whether the token's permission level allows mutations.
func (t *MCPToken) CanWrite() bool {
	return t.Permissions == MCPPermissionReadWrite
}
