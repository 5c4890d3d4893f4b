package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stepchallenge/stepd/internal/server/middleware"
	"github.com/stepchallenge/stepd/internal/service"
	"github.com/stepchallenge/stepd/internal/store"
)

// MCPServer wraps the mcp-go server with the step-challenge tools. Every tool
// acts as the user behind the bearer token that authenticated the connection,
// gated by that token's permission level and scopes.
type MCPServer struct {
	store     *store.Store
	mcpTokens *service.MCPTokenService
	logger    *slog.Logger
	server    *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all tools and resources.
// The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(st *store.Store, mcpTokens *service.MCPTokenService, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		store:     st,
		mcpTokens: mcpTokens,
		logger:    logger,
	}

	mcpServer := server.NewMCPServer(
		"Step Challenge",
		"0.1.0",
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance. Useful for
// advanced configuration or testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode for clients that launch the
// server as a subprocess. The raw bearer token is validated up front and its
// principal is attached to every tool call's context.
func (s *MCPServer) ServeStdio(ctx context.Context, rawToken string) error {
	tok, err := s.mcpTokens.Validate(ctx, rawToken)
	if err != nil {
		return err
	}
	user, err := s.store.GetUserByID(ctx, tok.UserID)
	if err != nil {
		return err
	}
	principal := &middleware.MCPPrincipal{Token: tok, User: user}

	s.logger.Info("starting MCP server in stdio mode", "user", user.Email, "token_prefix", tok.TokenPrefix)
	return server.ServeStdio(s.server, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return context.WithValue(ctx, middleware.MCPPrincipalKey, principal)
	}))
}

// HTTPHandler returns the Streamable HTTP handler for mounting under /mcp.
// Authentication happens in front of it (middleware.RequireMCPToken); the
// principal rides in on the request context.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.server,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if p := middleware.GetMCPPrincipal(r.Context()); p != nil {
				return context.WithValue(ctx, middleware.MCPPrincipalKey, p)
			}
			return ctx
		}),
	)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
