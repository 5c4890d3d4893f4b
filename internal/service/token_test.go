package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/store"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTokens(t *testing.T, limiterOn bool) (*TokenService, *store.Store, *testClock) {
	t.Helper()
	st, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clock := &testClock{t: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
	audit := NewAuditLogger(st, slog.New(slog.DiscardHandler))
	limiter := NewLimiter(limiterOn, nil, clock.now)
	sessions := NewSessionService(st, 0, clock.now)
	tokens := NewTokenService(st, sessions, audit, limiter, 0, clock.now)
	return tokens, st, clock
}

var testMeta = RequestMeta{IP: "192.0.2.1", UserAgent: "test-agent"}

func TestIssueAndConsume(t *testing.T) {
	tokens, st, _ := newTestTokens(t, false)
	ctx := context.Background()

	raw, tok, err := tokens.Issue(ctx, "walker@example.com", testMeta)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(raw, LoginTokenPrefix) {
		t.Errorf("raw token %q missing %q prefix", raw, LoginTokenPrefix)
	}
	if tok.Kind != model.TokenSelfService {
		t.Errorf("got kind %q, want self_service", tok.Kind)
	}
	if strings.Contains(tok.TokenHash, raw) {
		t.Error("raw secret leaked into stored hash")
	}

	// Issuance already created the user.
	if _, err := st.GetUserByEmail(ctx, "walker@example.com"); err != nil {
		t.Fatalf("user not created at issuance: %v", err)
	}

	user, rawSession, sess, err := tokens.Consume(ctx, raw, testMeta)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if user.Email != "walker@example.com" {
		t.Errorf("got email %q, want walker@example.com", user.Email)
	}
	if rawSession == "" || sess.CSRFSecret == "" {
		t.Error("expected session ID and CSRF secret")
	}

	// Single use.
	if _, _, _, err := tokens.Consume(ctx, raw, testMeta); !errors.Is(err, store.ErrTokenConsumed) {
		t.Errorf("got %v, want ErrTokenConsumed", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	tokens, _, clock := newTestTokens(t, false)
	ctx := context.Background()

	raw, _, err := tokens.Issue(ctx, "late@example.com", testMeta)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.advance(DefaultLoginTokenTTL + time.Second)
	if _, _, _, err := tokens.Consume(ctx, raw, testMeta); !errors.Is(err, store.ErrTokenExpired) {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}
}

func TestConsumeUnknown(t *testing.T) {
	tokens, _, _ := newTestTokens(t, false)

	_, _, _, err := tokens.Consume(context.Background(), "link_bogus", testMeta)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestIssueAdminAudited(t *testing.T) {
	tokens, st, _ := newTestTokens(t, false)
	ctx := context.Background()

	admin, err := st.UpsertUserByEmail(ctx, "boss@example.com")
	if err != nil {
		t.Fatalf("UpsertUserByEmail: %v", err)
	}
	if err := st.SetUserAdmin(ctx, admin.Email, true); err != nil {
		t.Fatalf("SetUserAdmin: %v", err)
	}
	admin.IsAdmin = true

	raw, tok, err := tokens.IssueAdmin(ctx, admin, "newhire@example.com", testMeta)
	if err != nil {
		t.Fatalf("IssueAdmin: %v", err)
	}
	if tok.Kind != model.TokenAdminIssued {
		t.Errorf("got kind %q, want admin_issued", tok.Kind)
	}
	if tok.IssuingAdminID == nil || *tok.IssuingAdminID != admin.ID {
		t.Errorf("got issuing admin %v, want %d", tok.IssuingAdminID, admin.ID)
	}

	// The token works like any self-service link.
	if _, _, _, err := tokens.Consume(ctx, raw, testMeta); err != nil {
		t.Fatalf("Consume admin-issued: %v", err)
	}

	events, err := st.ListAuditEvents(ctx, store.AuditFilter{Action: model.AuditLinkIssuedAdmin})
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d admin-issued events, want 1", len(events))
	}
	ev := events[0]
	if ev.ActorID == nil || *ev.ActorID != admin.ID {
		t.Errorf("got actor %v, want %d", ev.ActorID, admin.ID)
	}
	if ev.IP != testMeta.IP || ev.UserAgent != testMeta.UserAgent {
		t.Errorf("got attribution %s/%s, want %s/%s", ev.IP, ev.UserAgent, testMeta.IP, testMeta.UserAgent)
	}
}

func TestConsumptionFailureAudited(t *testing.T) {
	tokens, st, clock := newTestTokens(t, false)
	ctx := context.Background()

	raw, _, err := tokens.Issue(ctx, "audit@example.com", testMeta)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.advance(DefaultLoginTokenTTL + time.Minute)
	if _, _, _, err := tokens.Consume(ctx, raw, testMeta); !errors.Is(err, store.ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}

	events, err := st.ListAuditEvents(ctx, store.AuditFilter{Action: model.AuditLinkConsumptionFailed})
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d failure events, want 1", len(events))
	}
	if events[0].Metadata["reason"] != "expired" {
		t.Errorf("got reason %q, want expired", events[0].Metadata["reason"])
	}
}

func TestIssuanceRateLimited(t *testing.T) {
	tokens, st, _ := newTestTokens(t, true)
	ctx := context.Background()

	limit := DefaultRateLimits()[RateIssuance].Limit
	for i := 0; i < limit; i++ {
		if _, _, err := tokens.Issue(ctx, "burst@example.com", testMeta); err != nil {
			t.Fatalf("Issue %d: %v", i, err)
		}
	}
	if _, _, err := tokens.Issue(ctx, "burst@example.com", testMeta); !errors.Is(err, ErrRateLimited) {
		t.Errorf("got %v, want ErrRateLimited", err)
	}

	// A different identity still has budget.
	if _, _, err := tokens.Issue(ctx, "other@example.com", testMeta); err != nil {
		t.Errorf("Issue for other email: %v", err)
	}

	events, err := st.ListAuditEvents(ctx, store.AuditFilter{Action: model.AuditRateLimited})
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d rate-limit events, want 1", len(events))
	}
}

func TestRateWindowResets(t *testing.T) {
	tokens, _, clock := newTestTokens(t, true)
	ctx := context.Background()

	limit := DefaultRateLimits()[RateIssuance]
	for i := 0; i < limit.Limit; i++ {
		if _, _, err := tokens.Issue(ctx, "reset@example.com", testMeta); err != nil {
			t.Fatalf("Issue %d: %v", i, err)
		}
	}
	if _, _, err := tokens.Issue(ctx, "reset@example.com", testMeta); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}

	clock.advance(limit.Window + time.Second)
	if _, _, err := tokens.Issue(ctx, "reset@example.com", testMeta); err != nil {
		t.Errorf("Issue after window reset: %v", err)
	}
}
