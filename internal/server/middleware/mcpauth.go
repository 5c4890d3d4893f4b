package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/service"
	"github.com/stepchallenge/stepd/internal/store"
)

// MCPPrincipalKey is the context key for the authenticated MCP principal.
const MCPPrincipalKey contextKeyAuth = "mcp_principal"

// MCPPrincipal is the identity behind an MCP bearer token: the token record
// (carrying permissions and scopes) plus the user it acts for.
type MCPPrincipal struct {
	Token *model.MCPToken
	User  *model.User
}

// RequireMCPToken returns an HTTP middleware that validates the Authorization
// bearer token against stored MCP token hashes. Revoked, expired, and unknown
// tokens all produce the same 401.
func RequireMCPToken(tokens *service.MCPTokenService, st *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Bearer token required")
				return
			}
			tok, err := tokens.Validate(r.Context(), strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			user, err := st.GetUserByID(r.Context(), tok.UserID)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), MCPPrincipalKey, &MCPPrincipal{Token: tok, User: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetMCPPrincipal extracts the MCP principal from the context. Returns nil if
// the request did not pass RequireMCPToken.
func GetMCPPrincipal(ctx context.Context) *MCPPrincipal {
	if p, ok := ctx.Value(MCPPrincipalKey).(*MCPPrincipal); ok {
		return p
	}
	return nil
}
