package middleware

import (
	"context"
	"net/http"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/service"
)

// SessionCookieName is the cookie carrying the raw session ID.
const SessionCookieName = "stepd_session"

// CSRFHeaderName is the request header carrying the synchronizer token for
// state-changing requests.
const CSRFHeaderName = "X-CSRF-Token"

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// Principal represents the authenticated identity making the request. User is
// read fresh from the store on every request, so IsAdmin reflects the current
// flag, not the flag at login time.
type Principal struct {
	User    *model.User
	Session *model.Session
}

// Authenticate returns an HTTP middleware that resolves the session cookie to
// a live session. On success a Principal is attached to the request context;
// on failure a 401 JSON error response is returned.
func Authenticate(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			sess, user, err := sessions.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			principal := &Principal{User: user, Session: sess}
			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns an HTTP middleware that enforces admin-level access.
// It must be used after Authenticate. The admin flag it sees is the one
// Authenticate just read from the store, so revocation takes effect on the
// next request.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || !principal.User.IsAdmin {
				writeAuthError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// VerifyCSRF returns an HTTP middleware enforcing the synchronizer token
// pattern on state-changing methods. Safe methods pass through. Must be used
// after Authenticate. Rejections are audited.
func VerifyCSRF(sessions *service.SessionService, audit *service.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if err := sessions.VerifyCSRF(principal.Session, r.Header.Get(CSRFHeaderName)); err != nil {
				audit.Record(r.Context(), model.AuditEvent{
					Action:    model.AuditCSRFRejected,
					ActorID:   &principal.User.ID,
					IP:        r.RemoteAddr,
					UserAgent: r.UserAgent(),
					Metadata:  map[string]string{"path": r.URL.Path},
				})
				writeAuthError(w, http.StatusForbidden, "CSRF token missing or invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid import cycle with handler package
	w.Write([]byte(`{"error":{"code":` + httpStatusString(status) + `,"message":"` + message + `"}}`))
}

func httpStatusString(code int) string {
	switch code {
	case 401:
		return "401"
	case 403:
		return "403"
	default:
		return "500"
	}
}
