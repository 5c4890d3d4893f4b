package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/store"
)

// DefaultMCPTokenTTL is the default lifetime for MCP bearer tokens.
const DefaultMCPTokenTTL = 30 * 24 * time.Hour

const mcpPrefixLen = 12

// MCPTokenService mints and validates the long-lived bearer tokens MCP
// clients authenticate with.
type MCPTokenService struct {
	store *store.Store
	now   func() time.Time
}

// NewMCPTokenService creates an MCP token service. A nil now gets time.Now.
func NewMCPTokenService(st *store.Store, now func() time.Time) *MCPTokenService {
	if now == nil {
		now = time.Now
	}
	return &MCPTokenService{store: st, now: now}
}

// Create mints a token for the given user. The raw secret is returned exactly
// once; only its hash and a short identifying prefix persist.
func (s *MCPTokenService) Create(ctx context.Context, userID int64, name, permissions string, scopes []string, ttl time.Duration) (string, *model.MCPToken, error) {
	if permissions != model.MCPPermissionReadWrite && permissions != model.MCPPermissionReadOnly {
		return "", nil, fmt.Errorf("unknown permission level %q", permissions)
	}
	if ttl <= 0 {
		ttl = DefaultMCPTokenTTL
	}

	raw, err := generateSecret(MCPTokenPrefix)
	if err != nil {
		return "", nil, err
	}
	tok := &model.MCPToken{
		UserID:      userID,
		Name:        name,
		TokenHash:   store.HashSecret(raw),
		TokenPrefix: raw[:mcpPrefixLen],
		Permissions: permissions,
		Scopes:      strings.Join(scopes, ","),
		IsActive:    true,
		ExpiresAt:   s.now().UTC().Add(ttl),
	}
	if err := s.store.CreateMCPToken(ctx, tok); err != nil {
		return "", nil, err
	}
	return raw, tok, nil
}

// Validate resolves a raw bearer token to its record, rejecting revoked and
// expired tokens with one indistinct error.
func (s *MCPTokenService) Validate(ctx context.Context, raw string) (*model.MCPToken, error) {
	tok, err := s.store.GetMCPTokenByHash(ctx, store.HashSecret(raw))
	if err != nil {
		return nil, ErrInvalidMCPToken
	}
	if !tok.IsActive {
		return nil, ErrInvalidMCPToken
	}
	if s.now().UTC().After(tok.ExpiresAt) {
		return nil, ErrInvalidMCPToken
	}

	// Update last used timestamp (fire and forget)
	go s.store.TouchMCPToken(context.Background(), tok.ID, s.now().UTC())

	return tok, nil
}
