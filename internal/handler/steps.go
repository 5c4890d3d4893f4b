package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/server/middleware"
	"github.com/stepchallenge/stepd/internal/store"
)

const maxDailySteps = 200_000

// StepsHandler implements the participant-facing step tracking endpoints.
// All routes require a session; mutations additionally pass the CSRF guard.
type StepsHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewStepsHandler creates a steps handler.
func NewStepsHandler(st *store.Store, logger *slog.Logger) *StepsHandler {
	return &StepsHandler{store: st, logger: logger}
}

// List handles GET /api/steps. Returns the caller's own entries, newest day
// first.
func (h *StepsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	limit := clampInt(queryInt(r, "limit", 100), 1, 1000)
	offset := queryInt(r, "offset", 0)

	entries, err := h.store.ListStepsByUser(r.Context(), principal.User.ID, limit, offset)
	if err != nil {
		h.logger.Error("list steps", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list steps")
		return
	}
	resource := make([]map[string]interface{}, len(entries))
	for i := range entries {
		resource[i] = stepToMap(&entries[i])
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resource,
		Meta:     &model.ResponseMeta{Count: len(resource), Limit: limit, Offset: offset},
	})
}

// Record handles POST /api/steps. Upserts the caller's count for one day;
// re-recording a day replaces the earlier count.
func (h *StepsHandler) Record(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req struct {
		Day   string `json:"day"`
		Count int64  `json:"count"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if _, err := time.Parse("2006-01-02", req.Day); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	if req.Count < 0 || req.Count > maxDailySteps {
		writeError(w, http.StatusBadRequest, "count out of range")
		return
	}

	entry := &model.StepEntry{UserID: principal.User.ID, Day: req.Day, Count: req.Count}
	if err := h.store.UpsertStep(r.Context(), entry); err != nil {
		h.logger.Error("record steps", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to record steps")
		return
	}
	writeJSON(w, http.StatusOK, stepToMap(entry))
}

// Summary handles GET /api/steps/summary. Returns the caller's total, day
// count, and best single day.
func (h *StepsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	sum, err := h.store.SummarizeSteps(r.Context(), principal.User.ID)
	if err != nil {
		h.logger.Error("summarize steps", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to summarize steps")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    sum.Total,
		"days":     sum.Days,
		"best_day": sum.BestDay,
	})
}
