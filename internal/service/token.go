package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/store"
)

// DefaultLoginTokenTTL is how long a magic link stays redeemable.
const DefaultLoginTokenTTL = 30 * time.Minute

// TokenService implements the magic-link lifecycle: issue, deliver (via the
// caller), consume-once, audit.
type TokenService struct {
	store    *store.Store
	sessions *SessionService
	audit    *AuditLogger
	limiter  *Limiter
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenService creates a token service. Zero ttl gets
// DefaultLoginTokenTTL; nil now gets time.Now.
func NewTokenService(st *store.Store, sessions *SessionService, audit *AuditLogger, limiter *Limiter, ttl time.Duration, now func() time.Time) *TokenService {
	if ttl <= 0 {
		ttl = DefaultLoginTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		store:    st,
		sessions: sessions,
		audit:    audit,
		limiter:  limiter,
		ttl:      ttl,
		now:      now,
	}
}

// Issue creates a self-service login token for the given email, creating the
// user if this is the first time the email appears. The raw secret is
// returned once for delivery and never stored.
func (s *TokenService) Issue(ctx context.Context, email string, meta RequestMeta) (string, *model.LoginToken, error) {
	user, err := s.store.UpsertUserByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("resolve token owner: %w", err)
	}

	if !s.limiter.Allow(RateIssuance, user.Email) {
		s.audit.Record(ctx, model.AuditEvent{
			Action:       model.AuditRateLimited,
			TargetUserID: &user.ID,
			IP:           meta.IP,
			UserAgent:    meta.UserAgent,
			Metadata:     map[string]string{"category": string(RateIssuance)},
		})
		return "", nil, ErrRateLimited
	}

	raw, tok, err := s.mint(ctx, user.Email, model.TokenSelfService, nil)
	if err != nil {
		return "", nil, err
	}

	s.audit.Record(ctx, model.AuditEvent{
		Action:       model.AuditLinkIssuedSelf,
		TargetUserID: &user.ID,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		Metadata:     map[string]string{"owner_email": user.Email},
	})
	return raw, tok, nil
}

// IssueAdmin creates a login token for targetEmail on behalf of an
// administrator. Equivalent to impersonation, so the event records the acting
// admin alongside the target.
func (s *TokenService) IssueAdmin(ctx context.Context, admin *model.User, targetEmail string, meta RequestMeta) (string, *model.LoginToken, error) {
	if !s.limiter.Allow(RateAdmin, admin.Email) {
		s.audit.Record(ctx, model.AuditEvent{
			Action:    model.AuditRateLimited,
			ActorID:   &admin.ID,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Metadata:  map[string]string{"category": string(RateAdmin)},
		})
		return "", nil, ErrRateLimited
	}

	target, err := s.store.UpsertUserByEmail(ctx, targetEmail)
	if err != nil {
		return "", nil, fmt.Errorf("resolve token owner: %w", err)
	}

	raw, tok, err := s.mint(ctx, target.Email, model.TokenAdminIssued, &admin.ID)
	if err != nil {
		return "", nil, err
	}

	s.audit.Record(ctx, model.AuditEvent{
		Action:       model.AuditLinkIssuedAdmin,
		ActorID:      &admin.ID,
		TargetUserID: &target.ID,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		Metadata:     map[string]string{"owner_email": target.Email},
	})
	return raw, tok, nil
}

func (s *TokenService) mint(ctx context.Context, ownerEmail string, kind model.TokenKind, adminID *int64) (string, *model.LoginToken, error) {
	raw, err := generateSecret(LoginTokenPrefix)
	if err != nil {
		return "", nil, err
	}
	now := s.now().UTC()
	tok := &model.LoginToken{
		TokenHash:      store.HashSecret(raw),
		OwnerEmail:     ownerEmail,
		Kind:           kind,
		IssuingAdminID: adminID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.store.CreateLoginToken(ctx, tok); err != nil {
		return "", nil, err
	}
	return raw, tok, nil
}

// Consume redeems a raw magic-link token and opens a session. Exactly one of
// any number of concurrent calls with the same token succeeds. Failures are
// audited with the precise reason; callers must collapse them into one
// generic message so token state cannot be probed from outside.
func (s *TokenService) Consume(ctx context.Context, rawToken string, meta RequestMeta) (*model.User, string, *model.Session, error) {
	if !s.limiter.Allow(RateConsume, meta.IP) {
		s.audit.Record(ctx, model.AuditEvent{
			Action:    model.AuditRateLimited,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Metadata:  map[string]string{"category": string(RateConsume)},
		})
		return nil, "", nil, ErrRateLimited
	}

	rawSessionID, sess, err := s.sessions.Mint()
	if err != nil {
		return nil, "", nil, err
	}

	now := s.now().UTC()
	user, err := s.store.ConsumeLoginToken(ctx, store.HashSecret(rawToken), now, sess)
	if err != nil {
		reason := "not_found"
		switch {
		case errors.Is(err, store.ErrTokenExpired):
			reason = "expired"
		case errors.Is(err, store.ErrTokenConsumed):
			reason = "consumed"
		case !errors.Is(err, store.ErrNotFound):
			return nil, "", nil, err
		}
		// The audit write happens outside the consumption transaction so a
		// rolled-back redemption still leaves its trace.
		s.audit.Record(ctx, model.AuditEvent{
			Action:    model.AuditLinkConsumptionFailed,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Metadata:  map[string]string{"reason": reason},
		})
		return nil, "", nil, err
	}

	s.audit.Record(ctx, model.AuditEvent{
		Action:       model.AuditLinkConsumed,
		ActorID:      &user.ID,
		TargetUserID: &user.ID,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
	})
	return user, rawSessionID, sess, nil
}
