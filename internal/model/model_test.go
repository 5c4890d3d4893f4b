package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLoginTokenExpired(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tok := LoginToken{ExpiresAt: now.Add(30 * time.Minute)}

	if tok.Expired(now) {
		t.Error("token should not be expired at issuance")
	}
	if tok.Expired(now.Add(30 * time.Minute)) {
		t.Error("token should still be valid exactly at the deadline")
	}
	if !tok.Expired(now.Add(30*time.Minute + time.Second)) {
		t.Error("token should be expired past the deadline")
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	sess := Session{ExpiresAt: now.Add(7 * 24 * time.Hour)}

	if sess.Expired(now) {
		t.Error("fresh session should not be expired")
	}
	if !sess.Expired(now.Add(8 * 24 * time.Hour)) {
		t.Error("week-old session should be expired")
	}
}

func TestMCPTokenScopes(t *testing.T) {
	tok := MCPToken{Scopes: "steps:read, steps:write"}

	if !tok.HasScope(ScopeStepsRead) {
		t.Error("expected steps:read scope")
	}
	if !tok.HasScope(ScopeStepsWrite) {
		t.Error("expected steps:write scope despite surrounding whitespace")
	}
	if tok.HasScope(ScopeProfileRead) {
		t.Error("profile:read was never granted")
	}

	empty := MCPToken{}
	if empty.HasScope(ScopeStepsRead) {
		t.Error("token with no scopes should grant nothing")
	}
}

func TestMCPTokenCanWrite(t *testing.T) {
	rw := MCPToken{Permissions: MCPPermissionReadWrite}
	ro := MCPToken{Permissions: MCPPermissionReadOnly}

	if !rw.CanWrite() {
		t.Error("read_write token should allow mutations")
	}
	if ro.CanWrite() {
		t.Error("read_only token must not allow mutations")
	}
}

// Secrets must never survive JSON marshaling, whatever serialization path a
// future handler takes.
func TestSecretFieldsNotMarshaled(t *testing.T) {
	tok := LoginToken{TokenHash: "deadbeef", OwnerEmail: "a@example.com"}
	b, err := json.Marshal(tok)
	if err != nil {
		t.Fatalf("marshal login token: %v", err)
	}
	if strings.Contains(string(b), "deadbeef") {
		t.Errorf("token hash leaked into JSON: %s", b)
	}

	sess := Session{IDHash: "cafef00d", CSRFSecret: "secret123"}
	b, err = json.Marshal(sess)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	if strings.Contains(string(b), "cafef00d") || strings.Contains(string(b), "secret123") {
		t.Errorf("session secrets leaked into JSON: %s", b)
	}

	mcp := MCPToken{TokenHash: "beefbeef", TokenPrefix: "mcp_12345678"}
	b, err = json.Marshal(mcp)
	if err != nil {
		t.Fatalf("marshal mcp token: %v", err)
	}
	if strings.Contains(string(b), "beefbeef") {
		t.Errorf("mcp token hash leaked into JSON: %s", b)
	}
	if !strings.Contains(string(b), "mcp_12345678") {
		t.Error("token prefix should be visible for identification")
	}
}
