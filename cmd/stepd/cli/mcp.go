package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	smcp "github.com/stepchallenge/stepd/internal/mcp"
	"github.com/stepchallenge/stepd/internal/service"
)

func newMCPCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server over stdio",
		Long: `Start a Model Context Protocol (MCP) server that exposes step tracking
as tools for AI agents. The server communicates over stdin/stdout using
JSON-RPC, suitable for direct integration with Claude Desktop or other MCP
clients.

A bearer token minted by an administrator is required; pass it with --token,
set STEPD_MCP_TOKEN, or enter it at the hidden prompt. The HTTP transport is
served by 'stepd serve' at /mcp and does not need this command.`,
		Example: `  stepd mcp                      # prompts for the token
  stepd mcp --token mcp_...      # token on the command line
  STEPD_MCP_TOKEN=mcp_... stepd mcp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd, token)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "MCP bearer token (prompted if omitted)")

	return cmd
}

func runMCP(cmd *cobra.Command, token string) error {
	// MCP stdio owns stdout; everything else goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if token == "" {
		token = os.Getenv("STEPD_MCP_TOKEN")
	}
	if token == "" {
		fmt.Fprint(os.Stderr, "MCP token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return fmt.Errorf("an MCP token is required; an admin can mint one with POST /api/admin/mcp-tokens")
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	mcpTokens := service.NewMCPTokenService(st, nil)
	srv := smcp.NewMCPServer(st, mcpTokens, logger)

	if err := srv.ServeStdio(cmd.Context(), token); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
