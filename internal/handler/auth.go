package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/stepchallenge/stepd/internal/server/middleware"
	"github.com/stepchallenge/stepd/internal/service"
)

// loginFailedMessage is the single message returned for every failed login,
// whatever the actual reason. Distinguishing unknown, expired, and
// already-used tokens externally would let an attacker probe token state; the
// precise reason lives in the audit log only.
const loginFailedMessage = "Login link is invalid or has expired"

// AuthHandler implements the magic-link authentication endpoints.
type AuthHandler struct {
	tokens   *service.TokenService
	sessions *service.SessionService
	logger   *slog.Logger
	baseURL  string
	dev      bool
}

// NewAuthHandler creates an auth handler. dev enables the link-retrieval
// endpoint used by local development and tests; it must never be set in
// production.
func NewAuthHandler(tokens *service.TokenService, sessions *service.SessionService, logger *slog.Logger, baseURL string, dev bool) *AuthHandler {
	return &AuthHandler{
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
		dev:      dev,
	}
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}

func (h *AuthHandler) magicLink(rawToken string) string {
	return h.baseURL + "/auth/login?token=" + rawToken
}

// SendLink handles POST /auth/send-link. Issues a single-use login token for
// the given email and hands it to the delivery channel. The token itself is
// never in the response.
func (h *AuthHandler) SendLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}

	raw, _, err := h.tokens.Issue(r.Context(), req.Email, requestMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "Too many link requests, try again later")
			return
		}
		h.logger.Error("issue login token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to send login link")
		return
	}

	// Stand-in for an email integration: the link goes to the server log,
	// where a self-hosting operator can relay it.
	h.logger.Info("magic link issued", "email", req.Email, "link", h.magicLink(raw))

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// DevGetMagicLink handles POST /dev/get-magic-link. Dev-mode only: issues a
// token and returns the full link so tests and local clients can log in
// without an email channel. The route is not mounted outside dev mode.
func (h *AuthHandler) DevGetMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}

	raw, tok, err := h.tokens.Issue(r.Context(), req.Email, requestMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "Too many link requests, try again later")
			return
		}
		h.logger.Error("issue login token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create login link")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"magic_link": h.magicLink(raw),
		"token":      raw,
		"expires_at": tok.ExpiresAt,
	})
}

// Login handles GET /auth/login?token=. Redeems the single-use token, sets
// the session cookie, and redirects to the app root. All failures share one
// generic 401.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	rawToken := r.URL.Query().Get("token")
	if rawToken == "" {
		writeError(w, http.StatusUnauthorized, loginFailedMessage)
		return
	}

	user, rawSession, sess, err := h.tokens.Consume(r.Context(), rawToken, requestMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
			return
		}
		writeError(w, http.StatusUnauthorized, loginFailedMessage)
		return
	}

	h.setSessionCookie(w, rawSession, sess.ExpiresAt)
	h.logger.Info("login", "user_id", user.ID, "email", user.Email)
	http.Redirect(w, r, "/", http.StatusFound)
}

// CSRFToken handles GET /api/csrf-token. Returns the session's synchronizer
// token for clients to echo in the X-CSRF-Token header.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": principal.Session.CSRFSecret})
}

// Logout handles POST /auth/logout. Ends the session and clears the cookie.
// Idempotent: logging out twice succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		if err := h.sessions.End(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("end session", "error", err)
		}
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me handles GET /api/me. Returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, userToMap(principal.User))
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, rawSession string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    rawSession,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   !h.dev,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.dev,
		SameSite: http.SameSiteLaxMode,
	})
}

func validEmail(s string) bool {
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	// Reject the "Name <addr>" form; we want a bare address.
	return addr.Address == s
}
