package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stepchallenge/stepd/internal/config"
	"github.com/stepchallenge/stepd/internal/server"
	"github.com/stepchallenge/stepd/internal/service"
	"github.com/stepchallenge/stepd/internal/telemetry"
)

const banner = `
 ___ _____ ___ ___ ___
/ __|_   _| __| _ \   \
\__ \ | | | _||  _/ |) |
|___/ |_| |___|_| |___/
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
		noUI bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the step challenge server",
		Long:  "Start the HTTP server that serves the participant API, admin API, and MCP endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, host, port, dev, noUI)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, /dev/get-magic-link, insecure cookies)")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "Disable the embedded participant page")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(cmd *cobra.Command, host string, port int, dev, noUI bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg := loadConfig()
	if cmd.Flags().Changed("host") || cfg.Server.Host == "" {
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") || cfg.Server.Port == 0 {
		cfg.Server.Port = port
	}

	logger := newLogger(cfg.Logging, dev)

	// 1. Open the SQLite store
	if cfg.Server.DataDir != "" && dataDir == "" {
		dataDir = cfg.Server.DataDir
	}
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	logger.Info("store opened", "path", resolveDataDir())

	// 2. Wire the auth services
	limits := service.DefaultRateLimits()
	if cfg.RateLimit.IssuancePerWindow > 0 {
		limits[service.RateIssuance] = service.RateLimit{Limit: cfg.RateLimit.IssuancePerWindow, Window: limits[service.RateIssuance].Window}
	}
	if cfg.RateLimit.ConsumePerWindow > 0 {
		limits[service.RateConsume] = service.RateLimit{Limit: cfg.RateLimit.ConsumePerWindow, Window: limits[service.RateConsume].Window}
	}
	if cfg.RateLimit.AdminPerWindow > 0 {
		limits[service.RateAdmin] = service.RateLimit{Limit: cfg.RateLimit.AdminPerWindow, Window: limits[service.RateAdmin].Window}
	}

	audit := service.NewAuditLogger(st, logger)
	limiter := service.NewLimiter(cfg.RateLimit.Enabled, limits, nil)
	sessions := service.NewSessionService(st, config.ParseDuration(cfg.Auth.SessionTTL, 0), nil)
	tokens := service.NewTokenService(st, sessions, audit, limiter,
		config.ParseDuration(cfg.Auth.LoginTokenTTL, 0), nil)
	mcpTokens := service.NewMCPTokenService(st, nil)

	if !cfg.RateLimit.Enabled {
		logger.Warn("rate limiting is disabled - do not run like this in production")
	}

	// 3. Check for first-run (no admin exists)
	admins, err := st.ListAdmins(cmd.Context())
	if err != nil {
		logger.Warn("failed to check for admins", "error", err)
	}
	if len(admins) == 0 {
		logger.Warn("no admin account found - run: stepd admin grant --email you@example.com")
	}

	// 4. Build and start the HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	if cfg.Server.BaseURL != "" {
		srvCfg.BaseURL = cfg.Server.BaseURL
	}
	srvCfg.ShutdownTimeout = config.ParseDuration(cfg.Server.ShutdownTimeout, srvCfg.ShutdownTimeout)
	if len(cfg.Server.CORS.Origins) > 0 {
		srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	}
	srvCfg.Dev = dev
	srvCfg.EnableUI = !noUI
	srvCfg.MCPEnabled = cfg.MCP.Enabled
	srvCfg.GlobalRatePerMinute = cfg.RateLimit.GlobalPerIPMinute

	srv := server.New(srvCfg, st, sessions, tokens, mcpTokens, audit, logger)

	// 5. Anonymous usage telemetry (disabled via STEPD_TELEMETRY=0 or setting)
	tracker := telemetry.New(cmd.Context(), st, func() telemetry.Properties {
		ctx := context.Background()
		users, _ := st.ListUsers(ctx)
		adminUsers, _ := st.ListAdmins(ctx)
		mcpToks, _ := st.ListMCPTokens(ctx)
		return telemetry.Properties{
			Version:   versionString(),
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			Users:     len(users),
			Admins:    len(adminUsers),
			MCPTokens: len(mcpToks),
		}
	})
	if tracker != nil {
		telemetry.PrintNotice()
		tracker.Start()
		defer tracker.Shutdown()
	}

	fmt.Printf("→ Stepd %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ OpenAPI:  http://%s:%d/openapi.json\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Health:   http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	if srvCfg.MCPEnabled {
		fmt.Printf("→ MCP:      http://%s:%d/mcp\n", srvCfg.Host, srvCfg.Port)
	}
	if dev {
		fmt.Println("→ Dev mode: magic links retrievable via POST /dev/get-magic-link")
	}
	fmt.Println()

	return srv.ListenAndServe()
}

func newLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
