package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/store"
)

func newTestMCPTokens(t *testing.T) (*MCPTokenService, *store.Store, *testClock) {
	t.Helper()
	st, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	clock := &testClock{t: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
	return NewMCPTokenService(st, clock.now), st, clock
}

func TestMCPTokenCreateAndValidate(t *testing.T) {
	svc, st, _ := newTestMCPTokens(t)
	ctx := context.Background()

	user, err := st.UpsertUserByEmail(ctx, "bot@example.com")
	if err != nil {
		t.Fatalf("UpsertUserByEmail: %v", err)
	}

	raw, tok, err := svc.Create(ctx, user.ID, "reporting", model.MCPPermissionReadOnly,
		[]string{model.ScopeStepsRead, model.ScopeProfileRead}, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(raw, MCPTokenPrefix) {
		t.Errorf("raw token %q missing %q prefix", raw, MCPTokenPrefix)
	}
	if tok.TokenPrefix != raw[:len(tok.TokenPrefix)] {
		t.Errorf("stored prefix %q does not match raw token", tok.TokenPrefix)
	}

	got, err := svc.Validate(ctx, raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.UserID != user.ID {
		t.Errorf("got user %d, want %d", got.UserID, user.ID)
	}
	if !got.HasScope(model.ScopeStepsRead) || got.HasScope(model.ScopeStepsWrite) {
		t.Errorf("unexpected scopes: %q", got.Scopes)
	}
	if got.CanWrite() {
		t.Error("read-only token reports writable")
	}

	if _, err := svc.Validate(ctx, "mcp_bogus"); !errors.Is(err, ErrInvalidMCPToken) {
		t.Errorf("got %v, want ErrInvalidMCPToken", err)
	}
}

func TestMCPTokenRevokedAndExpired(t *testing.T) {
	svc, st, clock := newTestMCPTokens(t)
	ctx := context.Background()

	user, err := st.UpsertUserByEmail(ctx, "bot2@example.com")
	if err != nil {
		t.Fatalf("UpsertUserByEmail: %v", err)
	}

	raw, tok, err := svc.Create(ctx, user.ID, "ci", model.MCPPermissionReadWrite,
		[]string{model.ScopeStepsRead, model.ScopeStepsWrite}, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := st.SetMCPTokenActive(ctx, tok.ID, false); err != nil {
		t.Fatalf("SetMCPTokenActive: %v", err)
	}
	if _, err := svc.Validate(ctx, raw); !errors.Is(err, ErrInvalidMCPToken) {
		t.Errorf("got %v, want ErrInvalidMCPToken for revoked token", err)
	}

	if err := st.SetMCPTokenActive(ctx, tok.ID, true); err != nil {
		t.Fatalf("SetMCPTokenActive: %v", err)
	}
	clock.advance(DefaultMCPTokenTTL + time.Hour)
	if _, err := svc.Validate(ctx, raw); !errors.Is(err, ErrInvalidMCPToken) {
		t.Errorf("got %v, want ErrInvalidMCPToken for expired token", err)
	}
}

func TestMCPTokenRejectsUnknownPermission(t *testing.T) {
	svc, _, _ := newTestMCPTokens(t)

	if _, _, err := svc.Create(context.Background(), 1, "x", "root", nil, 0); err == nil {
		t.Error("expected error for unknown permission level")
	}
}
