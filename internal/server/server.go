package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stepchallenge/stepd/internal/handler"
	"github.com/stepchallenge/stepd/internal/mcp"
	"github.com/stepchallenge/stepd/internal/openapi"
	"github.com/stepchallenge/stepd/internal/server/middleware"
	"github.com/stepchallenge/stepd/internal/service"
	"github.com/stepchallenge/stepd/internal/store"
	"github.com/stepchallenge/stepd/internal/ui"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	BaseURL         string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// Dev mounts /dev/get-magic-link and relaxes cookie security. Never
	// enable outside local development and tests.
	Dev bool
	// EnableUI serves the embedded participant page at /.
	EnableUI bool
	// MCPEnabled mounts the Streamable HTTP MCP endpoint at /mcp.
	MCPEnabled bool
	// GlobalRatePerMinute is the per-IP transport throttle on the auth
	// endpoints, in front of the per-identity budgets. Zero disables it.
	GlobalRatePerMinute int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                8080,
		BaseURL:             "http://localhost:8080",
		ShutdownTimeout:     30 * time.Second,
		CORSOrigins:         []string{"*"},
		EnableUI:            true,
		MCPEnabled:          true,
		GlobalRatePerMinute: 120,
	}
}

// Server is the top-level HTTP server for the step challenge. It owns the Chi
// router and wires the auth, steps, admin, and MCP surfaces together.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	sessions   *service.SessionService
	tokens     *service.TokenService
	mcpTokens  *service.MCPTokenService
	audit      *service.AuditLogger
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, sessions *service.SessionService, tokens *service.TokenService, mcpTokens *service.MCPTokenService, audit *service.AuditLogger, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		sessions:  sessions,
		tokens:    tokens,
		mcpTokens: mcpTokens,
		audit:     audit,
		logger:    logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.CSRFHeaderName, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", s.handleOpenAPI)

	authHandler := handler.NewAuthHandler(s.tokens, s.sessions, s.logger, s.cfg.BaseURL, s.cfg.Dev)
	stepsHandler := handler.NewStepsHandler(s.store, s.logger)
	adminHandler := handler.NewAdminHandler(s.store, s.tokens, s.mcpTokens, s.logger, s.cfg.BaseURL)

	// --- Auth endpoints ---
	// Unauthenticated by nature; a coarse per-IP throttle sits in front of
	// the per-identity budgets enforced inside the token service.
	r.Group(func(r chi.Router) {
		if s.cfg.GlobalRatePerMinute > 0 {
			r.Use(middleware.RateLimit(s.cfg.GlobalRatePerMinute))
		}
		r.Post("/auth/send-link", authHandler.SendLink)
		r.Get("/auth/login", authHandler.Login)
		if s.cfg.Dev {
			r.Post("/dev/get-magic-link", authHandler.DevGetMagicLink)
		}
	})

	// Logout stays outside the session guard so an expired session can still
	// clear its cookie.
	r.Post("/auth/logout", authHandler.Logout)

	// --- Session-guarded API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Authenticate(s.sessions))
		r.Use(middleware.VerifyCSRF(s.sessions, s.audit))

		r.Get("/csrf-token", authHandler.CSRFToken)
		r.Get("/me", authHandler.Me)

		r.Get("/steps", stepsHandler.List)
		r.Post("/steps", stepsHandler.Record)
		r.Get("/steps/summary", stepsHandler.Summary)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			r.Get("/users", adminHandler.ListUsers)
			r.Put("/users/{userID}", adminHandler.UpdateUser)
			r.Post("/create-magic-link", adminHandler.CreateMagicLink)
			r.Get("/mcp-tokens", adminHandler.ListMCPTokens)
			r.Post("/mcp-tokens", adminHandler.CreateMCPToken)
			r.Put("/mcp-tokens/{tokenID}", adminHandler.UpdateMCPToken)
			r.Delete("/mcp-tokens/{tokenID}", adminHandler.DeleteMCPToken)
			r.Get("/audit-log", adminHandler.AuditLog)
		})
	})

	// --- Embedded participant UI ---
	if s.cfg.EnableUI {
		distFS, err := fs.Sub(ui.Dist, "dist")
		if err != nil {
			s.logger.Error("failed to create sub filesystem for UI", "error", err)
		} else {
			fileServer := http.FileServer(http.FS(distFS))
			r.Handle("/assets/*", fileServer)
			indexHandler := func(w http.ResponseWriter, r *http.Request) {
				f, err := distFS.Open("index.html")
				if err != nil {
					http.Error(w, "UI not available", http.StatusNotFound)
					return
				}
				defer f.Close()
				stat, _ := f.Stat()
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				http.ServeContent(w, r, "index.html", stat.ModTime(), f.(io.ReadSeeker))
			}
			r.Get("/", indexHandler)
		}
	}

	// --- MCP endpoint (bearer token auth) ---
	if s.cfg.MCPEnabled {
		mcpServer := mcp.NewMCPServer(s.store, s.mcpTokens, s.logger)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByHeader("Authorization", 240))
			r.Use(middleware.RequireMCPToken(s.mcpTokens, s.store))
			r.Mount("/mcp", mcpServer.HTTPHandler())
		})
	}

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the database is
// reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded: " + err.Error()
		httpStatus = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// handleOpenAPI serves the generated OpenAPI 3.1 document.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc := openapi.GenerateSpec(s.cfg.BaseURL)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(doc)
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
