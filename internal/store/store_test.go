package store

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stepchallenge/stepd/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{Email: "Alice@Example.COM", Name: "Alice"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("expected non-zero ID after create")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("got email %q, want normalized lowercase", u.Email)
	}

	got, err := s.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("got ID %d, want %d", got.ID, u.ID)
	}

	if _, err := s.GetUserByID(ctx, 9999); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	team := "Red"
	u.Team = &team
	u.Name = "Alice A."
	if err := s.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got2, _ := s.GetUserByID(ctx, u.ID)
	if got2.Team == nil || *got2.Team != "Red" {
		t.Errorf("got team %v, want Red", got2.Team)
	}

	if err := s.SetUserAdmin(ctx, "alice@example.com", true); err != nil {
		t.Fatalf("SetUserAdmin: %v", err)
	}
	admins, err := s.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(admins) != 1 || !admins[0].IsAdmin {
		t.Errorf("got %d admins, want 1 with flag set", len(admins))
	}

	if err := s.SetUserAdmin(ctx, "nobody@example.com", true); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestUpsertUserByEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u1, err := s.UpsertUserByEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("UpsertUserByEmail: %v", err)
	}
	u2, err := s.UpsertUserByEmail(ctx, "Bob@Example.com")
	if err != nil {
		t.Fatalf("UpsertUserByEmail repeat: %v", err)
	}
	if u1.ID != u2.ID {
		t.Errorf("upsert created duplicate: %d vs %d", u1.ID, u2.ID)
	}
}

func seedToken(t *testing.T, s *Store, raw string, expiresAt time.Time) *model.LoginToken {
	t.Helper()
	tok := &model.LoginToken{
		TokenHash:  HashSecret(raw),
		OwnerEmail: "carol@example.com",
		Kind:       model.TokenSelfService,
		ExpiresAt:  expiresAt,
	}
	if err := s.CreateLoginToken(context.Background(), tok); err != nil {
		t.Fatalf("CreateLoginToken: %v", err)
	}
	return tok
}

func testSession(raw string) *model.Session {
	return &model.Session{
		IDHash:     HashSecret(raw),
		CSRFSecret: "csrf-secret",
		ExpiresAt:  time.Now().UTC().Add(24 * time.Hour),
	}
}

func TestConsumeLoginToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedToken(t, s, "link_raw", now.Add(30*time.Minute))

	u, err := s.ConsumeLoginToken(ctx, HashSecret("link_raw"), now, testSession("sess1"))
	if err != nil {
		t.Fatalf("ConsumeLoginToken: %v", err)
	}
	if u.Email != "carol@example.com" {
		t.Errorf("got email %q, want carol@example.com", u.Email)
	}

	// Consumption created the user and the session in the same transaction.
	sess, err := s.GetSessionByHash(ctx, HashSecret("sess1"))
	if err != nil {
		t.Fatalf("GetSessionByHash: %v", err)
	}
	if sess.UserID != u.ID {
		t.Errorf("session user %d, want %d", sess.UserID, u.ID)
	}

	// Second redemption loses the compare-and-swap.
	if _, err := s.ConsumeLoginToken(ctx, HashSecret("link_raw"), now, testSession("sess2")); err != ErrTokenConsumed {
		t.Errorf("got %v, want ErrTokenConsumed", err)
	}

	// Unknown hash.
	if _, err := s.ConsumeLoginToken(ctx, HashSecret("nope"), now, testSession("sess3")); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestConsumeExpiryDominates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedToken(t, s, "stale", now.Add(-time.Minute))

	// Expired and never consumed: expiry wins.
	if _, err := s.ConsumeLoginToken(ctx, HashSecret("stale"), now, testSession("s1")); err != ErrTokenExpired {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}

	// Consumed then expired: still reported expired, not consumed.
	seedToken(t, s, "used", now.Add(30*time.Minute))
	if _, err := s.ConsumeLoginToken(ctx, HashSecret("used"), now, testSession("s2")); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	later := now.Add(time.Hour)
	if _, err := s.ConsumeLoginToken(ctx, HashSecret("used"), later, testSession("s3")); err != ErrTokenExpired {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}
}

func TestConsumeLoginTokenConcurrent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	seedToken(t, s, "contested", now.Add(30*time.Minute))

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := testSession(uuid.NewString())
			_, errs[i] = s.ConsumeLoginToken(context.Background(), HashSecret("contested"), now, sess)
		}(i)
	}
	wg.Wait()

	var ok, consumed int
	for _, err := range errs {
		switch err {
		case nil:
			ok++
		case ErrTokenConsumed:
			consumed++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("got %d successful redemptions, want exactly 1", ok)
	}
	if consumed != n-1 {
		t.Errorf("got %d consumed rejections, want %d", consumed, n-1)
	}
}

func TestHashOnlyStorage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw := "link_super_secret_value"
	seedToken(t, s, raw, time.Now().UTC().Add(30*time.Minute))

	// The raw secret must not appear anywhere in the token row.
	tok, err := s.GetLoginTokenByHash(ctx, HashSecret(raw))
	if err != nil {
		t.Fatalf("GetLoginTokenByHash: %v", err)
	}
	if strings.Contains(tok.TokenHash, raw) {
		t.Error("raw secret leaked into stored hash")
	}
	if len(tok.TokenHash) != 64 {
		t.Errorf("got hash length %d, want 64 hex chars", len(tok.TokenHash))
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := &model.User{Email: "dave@example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	sess := &model.Session{
		IDHash:     HashSecret("sid"),
		UserID:     u.ID,
		CSRFSecret: "csrf",
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := s.TouchSession(ctx, sess.IDHash, now.Add(time.Minute)); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}

	if err := s.DeleteSession(ctx, sess.IDHash); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSessionByHash(ctx, sess.IDHash); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound after delete", err)
	}

	// Idempotent: deleting again is not an error.
	if err := s.DeleteSession(ctx, sess.IDHash); err != nil {
		t.Errorf("repeat DeleteSession: %v", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := &model.User{Email: "erin@example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	for i, exp := range []time.Time{now.Add(-time.Hour), now.Add(time.Hour)} {
		sess := &model.Session{
			IDHash:     HashSecret(uuid.NewString()),
			UserID:     u.ID,
			CSRFSecret: "csrf",
			ExpiresAt:  exp,
		}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession %d: %v", i, err)
		}
	}

	n, err := s.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d deleted, want 1", n)
	}
}

func TestAuditAppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	actor := int64(7)
	for i := 0; i < 3; i++ {
		ev := &model.AuditEvent{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Action:    model.AuditLinkIssuedSelf,
			IP:        "192.0.2.1",
			UserAgent: "test-agent",
			Metadata:  map[string]string{"owner_email": "f@example.com"},
		}
		if i == 2 {
			ev.Action = model.AuditLinkIssuedAdmin
			ev.ActorID = &actor
		}
		if err := s.AppendAuditEvent(ctx, ev); err != nil {
			t.Fatalf("AppendAuditEvent: %v", err)
		}
	}

	all, err := s.ListAuditEvents(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	if all[0].Metadata["owner_email"] != "f@example.com" {
		t.Errorf("metadata round-trip failed: %v", all[0].Metadata)
	}

	byAction, err := s.ListAuditEvents(ctx, AuditFilter{Action: model.AuditLinkIssuedAdmin})
	if err != nil {
		t.Fatalf("ListAuditEvents filtered: %v", err)
	}
	if len(byAction) != 1 {
		t.Errorf("got %d admin-issued events, want 1", len(byAction))
	}
	if byAction[0].ActorID == nil || *byAction[0].ActorID != actor {
		t.Errorf("got actor %v, want %d", byAction[0].ActorID, actor)
	}

	count, err := s.CountAuditEvents(ctx, AuditFilter{ActorID: actor})
	if err != nil {
		t.Fatalf("CountAuditEvents: %v", err)
	}
	if count != 1 {
		t.Errorf("got count %d, want 1", count)
	}
}

func TestMCPTokenCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{Email: "frank@example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	tok := &model.MCPToken{
		UserID:      u.ID,
		Name:        "ci-bot",
		TokenHash:   HashSecret("mcp_raw"),
		TokenPrefix: "mcp_raw",
		Permissions: model.MCPPermissionReadOnly,
		Scopes:      model.ScopeStepsRead,
		IsActive:    true,
		ExpiresAt:   time.Now().UTC().Add(30 * 24 * time.Hour),
	}
	if err := s.CreateMCPToken(ctx, tok); err != nil {
		t.Fatalf("CreateMCPToken: %v", err)
	}
	if tok.ID == 0 {
		t.Fatal("expected non-zero ID after create")
	}

	got, err := s.GetMCPTokenByHash(ctx, HashSecret("mcp_raw"))
	if err != nil {
		t.Fatalf("GetMCPTokenByHash: %v", err)
	}
	if got.Name != "ci-bot" {
		t.Errorf("got name %q, want ci-bot", got.Name)
	}

	if err := s.SetMCPTokenActive(ctx, tok.ID, false); err != nil {
		t.Fatalf("SetMCPTokenActive: %v", err)
	}
	got2, _ := s.GetMCPTokenByID(ctx, tok.ID)
	if got2.IsActive {
		t.Error("token still active after revoke")
	}

	if err := s.DeleteMCPToken(ctx, tok.ID); err != nil {
		t.Fatalf("DeleteMCPToken: %v", err)
	}
	if err := s.DeleteMCPToken(ctx, tok.ID); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestStepUpsertAndSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{Email: "grace@example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	entries := []struct {
		day   string
		count int64
	}{
		{"2026-08-25", 8000},
		{"2026-08-26", 12000},
		{"2026-08-26", 12500}, // re-record replaces
		{"2026-08-27", 6000},
	}
	for _, e := range entries {
		if err := s.UpsertStep(ctx, &model.StepEntry{UserID: u.ID, Day: e.day, Count: e.count}); err != nil {
			t.Fatalf("UpsertStep %s: %v", e.day, err)
		}
	}

	list, err := s.ListStepsByUser(ctx, u.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListStepsByUser: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d entries, want 3", len(list))
	}
	if list[1].Day != "2026-08-26" || list[1].Count != 12500 {
		t.Errorf("got %s=%d, want 2026-08-26=12500", list[1].Day, list[1].Count)
	}

	sum, err := s.SummarizeSteps(ctx, u.ID)
	if err != nil {
		t.Fatalf("SummarizeSteps: %v", err)
	}
	if sum.Total != 26500 || sum.Days != 3 || sum.BestDay != 12500 {
		t.Errorf("got total=%d days=%d best=%d, want 26500/3/12500", sum.Total, sum.Days, sum.BestDay)
	}
}
