package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stepchallenge/stepd/internal/service"
	"github.com/stepchallenge/stepd/internal/store"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage challenge administrators",
		Long:  "Grant and revoke the admin flag, list admins, and issue login links from the command line.",
	}

	cmd.AddCommand(newAdminGrantCmd())
	cmd.AddCommand(newAdminRevokeCmd())
	cmd.AddCommand(newAdminListCmd())
	cmd.AddCommand(newAdminLinkCmd())

	return cmd
}

// ---------- admin grant ----------

func newAdminGrantCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:     "grant",
		Short:   "Grant admin access to a user",
		Example: `  stepd admin grant --email you@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminSetFlag(cmd.Context(), email, true)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email address (required)")
	cmd.MarkFlagRequired("email")

	return cmd
}

// ---------- admin revoke ----------

func newAdminRevokeCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke admin access from a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminSetFlag(cmd.Context(), email, false)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email address (required)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminSetFlag(ctx context.Context, email string, isAdmin bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if isAdmin {
		// The user may not exist yet; grant creates the record.
		if _, err := st.UpsertUserByEmail(ctx, email); err != nil {
			return fmt.Errorf("resolve user: %w", err)
		}
	}
	if err := st.SetUserAdmin(ctx, email, isAdmin); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no user with email %q", email)
		}
		return err
	}

	if isAdmin {
		fmt.Printf("Granted admin access to %q\n", email)
		fmt.Println("The flag takes effect on the user's next request; no re-login needed.")
	} else {
		fmt.Printf("Revoked admin access from %q\n", email)
	}
	return nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all administrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(ctx context.Context, jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	admins, err := st.ListAdmins(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		type adminRow struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		rows := make([]adminRow, len(admins))
		for i, a := range admins {
			rows[i] = adminRow{Email: a.Email, Name: a.Name}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(admins) == 0 {
		fmt.Println("No administrators configured. Use 'stepd admin grant' to add one.")
		return nil
	}

	fmt.Printf("%-30s %-24s\n", "EMAIL", "NAME")
	fmt.Printf("%-30s %-24s\n", "-----", "----")
	for _, a := range admins {
		fmt.Printf("%-30s %-24s\n", a.Email, a.Name)
	}

	return nil
}

// ---------- admin link ----------

func newAdminLinkCmd() *cobra.Command {
	var (
		email   string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Issue a magic login link for a user",
		Long: `Issue a single-use login link for any email address. The user record is
created on first use. The link is printed once and expires after the login
token TTL; deliver it out of band.`,
		Example: `  stepd admin link --email walker@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminLink(cmd.Context(), email, baseURL)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email address (required)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for the link (default: from config)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminLink(ctx context.Context, email, baseURL string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cfg := loadConfig()
	if baseURL == "" {
		baseURL = cfg.Server.BaseURL
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := service.NewAuditLogger(st, logger)
	sessions := service.NewSessionService(st, 0, nil)
	// Local operator access; the per-identity budget guards the HTTP surface.
	limiter := service.NewLimiter(false, nil, nil)
	tokens := service.NewTokenService(st, sessions, audit, limiter, 0, nil)

	raw, tok, err := tokens.Issue(ctx, email, service.RequestMeta{IP: "cli"})
	if err != nil {
		return fmt.Errorf("issue login link: %w", err)
	}

	fmt.Printf("Magic link for %q (expires %s):\n\n", email, tok.ExpiresAt.Format("2006-01-02 15:04 MST"))
	fmt.Printf("  %s/auth/login?token=%s\n\n", baseURL, raw)
	fmt.Println("The link is single use and was not stored; issue a new one if it is lost.")
	return nil
}
