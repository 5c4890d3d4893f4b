package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/store"
)

// DefaultSessionTTL bounds how long a login lasts before the user needs a
// fresh magic link.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionService mints and validates browser sessions. Raw session IDs live
// only in the client's cookie; the store sees hashes.
type SessionService struct {
	store *store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionService creates a session service. Zero ttl gets
// DefaultSessionTTL; nil now gets time.Now.
func NewSessionService(st *store.Store, ttl time.Duration, now func() time.Time) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{store: st, ttl: ttl, now: now}
}

// Mint generates a raw session ID plus the record to persist. The record
// carries the hash and a fresh CSRF secret; the raw ID goes to the cookie and
// nowhere else.
func (s *SessionService) Mint() (string, *model.Session, error) {
	rawID, err := generateSecret("")
	if err != nil {
		return "", nil, err
	}
	csrf, err := generateSecret("")
	if err != nil {
		return "", nil, err
	}
	sess := &model.Session{
		IDHash:     store.HashSecret(rawID),
		CSRFSecret: csrf,
		ExpiresAt:  s.now().UTC().Add(s.ttl),
	}
	return rawID, sess, nil
}

// Authenticate resolves a raw cookie value to a live session and its user.
// Expired sessions are deleted on sight and reported invalid.
func (s *SessionService) Authenticate(ctx context.Context, rawID string) (*model.Session, *model.User, error) {
	if rawID == "" {
		return nil, nil, ErrInvalidSession
	}
	hash := store.HashSecret(rawID)
	sess, err := s.store.GetSessionByHash(ctx, hash)
	if err != nil {
		return nil, nil, ErrInvalidSession
	}
	now := s.now().UTC()
	if sess.Expired(now) {
		_ = s.store.DeleteSession(ctx, hash)
		return nil, nil, ErrInvalidSession
	}

	// The user row is read fresh on every request so admin-flag changes take
	// effect immediately; nothing about privileges is cached in the session.
	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, ErrInvalidSession
	}

	// Update last seen timestamp (fire and forget)
	go s.store.TouchSession(context.Background(), hash, now)

	return sess, user, nil
}

// VerifyCSRF checks a request's CSRF token against the session secret using a
// constant-time compare.
func (s *SessionService) VerifyCSRF(sess *model.Session, token string) error {
	if token == "" {
		return ErrInvalidCSRF
	}
	if subtle.ConstantTimeCompare([]byte(sess.CSRFSecret), []byte(token)) != 1 {
		return ErrInvalidCSRF
	}
	return nil
}

// End destroys the session for the given raw cookie value. Ending an unknown
// or already-ended session succeeds; logout is idempotent.
func (s *SessionService) End(ctx context.Context, rawID string) error {
	if rawID == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, store.HashSecret(rawID))
}
