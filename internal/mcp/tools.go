package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/server/middleware"
)

const maxDailySteps = 200_000

// registerTools registers all step-challenge MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	srv.AddTool(
		mcp.NewTool("steps_record",
			mcp.WithDescription(
				"Record a step count for one day on behalf of the token's user. "+
					"Recording the same day again replaces the earlier count. "+
					"Requires a read-write token with the steps:write scope.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("day",
				mcp.Required(),
				mcp.Description("Day to record, formatted YYYY-MM-DD"),
			),
			mcp.WithNumber("count",
				mcp.Required(),
				mcp.Description("Step count for the day (0 to 200000)"),
			),
		),
		s.handleStepsRecord,
	)

	srv.AddTool(
		mcp.NewTool("steps_list",
			mcp.WithDescription(
				"List the token user's recorded step entries, newest day first. "+
					"Requires the steps:read scope.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of entries to return (default 30, max 365)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of entries to skip for pagination"),
			),
		),
		s.handleStepsList,
	)

	srv.AddTool(
		mcp.NewTool("steps_summary",
			mcp.WithDescription(
				"Summarize the token user's participation: total steps, days recorded, "+
					"and best single day. Requires the steps:read scope.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleStepsSummary,
	)

	srv.AddTool(
		mcp.NewTool("profile_get",
			mcp.WithDescription(
				"Get the token user's profile: email, display name, and team. "+
					"Requires the profile:read scope.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleProfileGet,
	)
}

// principalFromContext resolves the authenticated MCP principal, or a
// tool-level error if the context carries none.
func principalFromContext(ctx context.Context) (*middleware.MCPPrincipal, *mcp.CallToolResult) {
	p := middleware.GetMCPPrincipal(ctx)
	if p == nil {
		res, _ := toolError("not authenticated")
		return nil, res
	}
	return p, nil
}

func (s *MCPServer) handleStepsRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, errRes := principalFromContext(ctx)
	if errRes != nil {
		return errRes, nil
	}
	if !p.Token.CanWrite() || !p.Token.HasScope(model.ScopeStepsWrite) {
		return toolError("token lacks the steps:write scope")
	}

	day, err := requireString(request, "day")
	if err != nil {
		return toolError("%v", err)
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return toolError("day must be formatted YYYY-MM-DD")
	}
	count := optionalInt(request, "count", -1)
	if count < 0 || count > maxDailySteps {
		return toolError("count must be between 0 and %d", maxDailySteps)
	}

	entry := &model.StepEntry{UserID: p.User.ID, Day: day, Count: int64(count)}
	if err := s.store.UpsertStep(ctx, entry); err != nil {
		s.logger.Error("mcp record steps", "error", err)
		return toolError("failed to record steps")
	}
	return successJSON(map[string]interface{}{
		"day":   entry.Day,
		"count": entry.Count,
	})
}

func (s *MCPServer) handleStepsList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, errRes := principalFromContext(ctx)
	if errRes != nil {
		return errRes, nil
	}
	if !p.Token.HasScope(model.ScopeStepsRead) {
		return toolError("token lacks the steps:read scope")
	}

	limit := clamp(optionalInt(request, "limit", 30), 1, 365)
	offset := optionalInt(request, "offset", 0)

	entries, err := s.store.ListStepsByUser(ctx, p.User.ID, limit, offset)
	if err != nil {
		s.logger.Error("mcp list steps", "error", err)
		return toolError("failed to list steps")
	}
	out := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		out[i] = map[string]interface{}{"day": e.Day, "count": e.Count}
	}
	return successJSON(out)
}

func (s *MCPServer) handleStepsSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, errRes := principalFromContext(ctx)
	if errRes != nil {
		return errRes, nil
	}
	if !p.Token.HasScope(model.ScopeStepsRead) {
		return toolError("token lacks the steps:read scope")
	}

	sum, err := s.store.SummarizeSteps(ctx, p.User.ID)
	if err != nil {
		s.logger.Error("mcp summarize steps", "error", err)
		return toolError("failed to summarize steps")
	}
	return successJSON(map[string]interface{}{
		"total":    sum.Total,
		"days":     sum.Days,
		"best_day": sum.BestDay,
	})
}

func (s *MCPServer) handleProfileGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, errRes := principalFromContext(ctx)
	if errRes != nil {
		return errRes, nil
	}
	if !p.Token.HasScope(model.ScopeProfileRead) {
		return toolError("token lacks the profile:read scope")
	}

	return successJSON(map[string]interface{}{
		"email": p.User.Email,
		"name":  p.User.Name,
		"team":  p.User.Team,
	})
}
