package handler

import "github.com/stepchallenge/stepd/internal/model"

// The xToMap serializers shape API responses explicitly so sensitive columns
// (token hashes, CSRF secrets) can never leak through struct marshaling.

func userToMap(u *model.User) map[string]interface{} {
	return map[string]interface{}{
		"id":         u.ID,
		"email":      u.Email,
		"name":       u.Name,
		"team":       u.Team,
		"is_admin":   u.IsAdmin,
		"created_at": u.CreatedAt,
	}
}

func mcpTokenToMap(t *model.MCPToken) map[string]interface{} {
	return map[string]interface{}{
		"id":           t.ID,
		"user_id":      t.UserID,
		"name":         t.Name,
		"token_prefix": t.TokenPrefix,
		"permissions":  t.Permissions,
		"scopes":       t.Scopes,
		"is_active":    t.IsActive,
		"expires_at":   t.ExpiresAt,
		"created_at":   t.CreatedAt,
		"last_used_at": t.LastUsedAt,
	}
}

func auditEventToMap(ev *model.AuditEvent) map[string]interface{} {
	return map[string]interface{}{
		"id":             ev.ID,
		"actor_id":       ev.ActorID,
		"action":         ev.Action,
		"target_user_id": ev.TargetUserID,
		"ip":             ev.IP,
		"user_agent":     ev.UserAgent,
		"metadata":       ev.Metadata,
		"created_at":     ev.CreatedAt,
	}
}

func stepToMap(e *model.StepEntry) map[string]interface{} {
	return map[string]interface{}{
		"id":         e.ID,
		"user_id":    e.UserID,
		"day":        e.Day,
		"count":      e.Count,
		"updated_at": e.UpdatedAt,
	}
}
