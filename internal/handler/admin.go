package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/server/middleware"
	"github.com/stepchallenge/stepd/internal/service"
	"github.com/stepchallenge/stepd/internal/store"
)

// AdminHandler implements the /api/admin surface: user management,
// admin-issued magic links, MCP tokens, and the audit log. Every route is
// behind Authenticate + RequireAdmin + VerifyCSRF.
type AdminHandler struct {
	store     *store.Store
	tokens    *service.TokenService
	mcpTokens *service.MCPTokenService
	logger    *slog.Logger
	baseURL   string
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(st *store.Store, tokens *service.TokenService, mcpTokens *service.MCPTokenService, logger *slog.Logger, baseURL string) *AdminHandler {
	return &AdminHandler{
		store:     st,
		tokens:    tokens,
		mcpTokens: mcpTokens,
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	resource := make([]map[string]interface{}, len(users))
	for i := range users {
		resource[i] = userToMap(&users[i])
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resource,
		Meta:     &model.ResponseMeta{Count: len(resource)},
	})
}

// UpdateUser handles PUT /api/admin/users/{userID}. Updates profile fields
// and the admin flag; the flag takes effect on the target's next request.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req struct {
		Name    *string `json:"name"`
		Team    *string `json:"team"`
		IsAdmin *bool   `json:"is_admin"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Team != nil {
		user.Team = req.Team
	}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		h.logger.Error("update user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, userToMap(user))
}

// CreateMagicLink handles POST /api/admin/create-magic-link. Issues a login
// link for any email on the admin's behalf and returns it for out-of-band
// delivery. Audited with the acting admin, target, IP, and user agent.
func (h *AdminHandler) CreateMagicLink(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

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

	meta := service.RequestMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
	raw, tok, err := h.tokens.IssueAdmin(r.Context(), principal.User, req.Email, meta)
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "Too many links issued, try again later")
			return
		}
		h.logger.Error("issue admin magic link", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create login link")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"magic_link": h.baseURL + "/auth/login?token=" + raw,
		"expires_at": tok.ExpiresAt,
	})
}

// ListMCPTokens handles GET /api/admin/mcp-tokens.
func (h *AdminHandler) ListMCPTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.store.ListMCPTokens(r.Context())
	if err != nil {
		h.logger.Error("list mcp tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list tokens")
		return
	}
	resource := make([]map[string]interface{}, len(tokens))
	for i := range tokens {
		resource[i] = mcpTokenToMap(&tokens[i])
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resource,
		Meta:     &model.ResponseMeta{Count: len(resource)},
	})
}

// CreateMCPToken handles POST /api/admin/mcp-tokens. The raw token appears in
// this response and nowhere else, ever.
func (h *AdminHandler) CreateMCPToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string   `json:"email"`
		Name        string   `json:"name"`
		Permissions string   `json:"permissions"`
		Scopes      []string `json:"scopes"`
		ExpiresDays int      `json:"expires_days"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}
	if req.Permissions == "" {
		req.Permissions = model.MCPPermissionReadWrite
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{model.ScopeStepsRead, model.ScopeStepsWrite, model.ScopeProfileRead}
	}

	user, err := h.store.UpsertUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("resolve token user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}

	ttl := time.Duration(req.ExpiresDays) * 24 * time.Hour
	raw, tok, err := h.mcpTokens.Create(r.Context(), user.ID, req.Name, req.Permissions, req.Scopes, ttl)
	if err != nil {
		h.logger.Error("create mcp token", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to create token: "+err.Error())
		return
	}

	resp := mcpTokenToMap(tok)
	resp["token"] = raw // shown once, only the hash persists
	writeJSON(w, http.StatusCreated, resp)
}

// UpdateMCPToken handles PUT /api/admin/mcp-tokens/{tokenID}. Activates or
// revokes a token without destroying it.
func (h *AdminHandler) UpdateMCPToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := strconv.ParseInt(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid token ID")
		return
	}
	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.store.SetMCPTokenActive(r.Context(), tokenID, req.IsActive); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Token not found")
			return
		}
		h.logger.Error("update mcp token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update token")
		return
	}
	tok, err := h.store.GetMCPTokenByID(r.Context(), tokenID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load token")
		return
	}
	writeJSON(w, http.StatusOK, mcpTokenToMap(tok))
}

// DeleteMCPToken handles DELETE /api/admin/mcp-tokens/{tokenID}.
func (h *AdminHandler) DeleteMCPToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := strconv.ParseInt(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid token ID")
		return
	}
	if err := h.store.DeleteMCPToken(r.Context(), tokenID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Token not found")
			return
		}
		h.logger.Error("delete mcp token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AuditLog handles GET /api/admin/audit-log with optional action, actor_id,
// limit, and offset query parameters. Events come back newest first.
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	filter := store.AuditFilter{
		Action: model.AuditAction(r.URL.Query().Get("action")),
		Limit:  clampInt(queryInt(r, "limit", 100), 1, 1000),
		Offset: queryInt(r, "offset", 0),
	}
	if actor := r.URL.Query().Get("actor_id"); actor != "" {
		id, err := strconv.ParseInt(actor, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid actor_id")
			return
		}
		filter.ActorID = id
	}

	events, err := h.store.ListAuditEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("list audit events", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list audit events")
		return
	}
	total, err := h.store.CountAuditEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("count audit events", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list audit events")
		return
	}

	resource := make([]map[string]interface{}, len(events))
	for i := range events {
		resource[i] = auditEventToMap(&events[i])
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resource,
		Meta: &model.ResponseMeta{
			Count:  len(resource),
			Total:  &total,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		},
	})
}
