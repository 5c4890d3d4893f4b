package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stepchallenge/stepd/internal/model"
	"github.com/stepchallenge/stepd/internal/server/middleware"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	srv.AddResource(
		mcp.NewResource(
			"stepd://scopes",
			"Token Scopes",
			mcp.WithResourceDescription(
				"The scopes and permission level carried by the bearer token "+
					"this connection authenticated with. Tools outside these "+
					"scopes will refuse to run.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleScopesResource,
	)
}

// handleScopesResource returns the authenticated token's grants.
func (s *MCPServer) handleScopesResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	p := middleware.GetMCPPrincipal(ctx)
	if p == nil {
		return nil, fmt.Errorf("not authenticated")
	}

	info := map[string]interface{}{
		"user":        p.User.Email,
		"permissions": p.Token.Permissions,
		"scopes":      p.Token.Scopes,
		"known_scopes": []string{
			model.ScopeStepsRead,
			model.ScopeStepsWrite,
			model.ScopeProfileRead,
		},
		"expires_at": p.Token.ExpiresAt,
	}

	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scopes: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "stepd://scopes",
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
