// Package server exposes the harness over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/profitharness/internal/crypto"
	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/server/handler"
	"github.com/alanyoungcy/profitharness/internal/server/middleware"
	"github.com/alanyoungcy/profitharness/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey and Signer are alternative credentials; with neither set
	// authentication is disabled.
	APIKey string
	Signer *crypto.RequestAuth
	// RateLimit applies per client IP when Limiter is set.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
	// IdempotencyTTL is how long an Idempotency-Key on POST /api/executions
	// is remembered. Zero uses ten minutes.
	IdempotencyTTL time.Duration
}

// Handlers aggregates every HTTP handler the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Registry   *handler.RegistryHandler
	Harness    *handler.HarnessHandler
	Executions *handler.ExecutionHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, wsHub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/status", handlers.Harness.Status)
	mux.HandleFunc("GET /api/balances", handlers.Harness.Balances)
	mux.HandleFunc("GET /api/tracked", handlers.Harness.ListTracked)
	mux.HandleFunc("POST /api/tracked", handlers.Harness.AddTracked)
	mux.HandleFunc("PUT /api/base", handlers.Harness.SetBase)
	mux.HandleFunc("POST /api/withdraw", handlers.Harness.Withdraw)

	mux.HandleFunc("GET /api/venues", handlers.Registry.ListVenues)
	mux.HandleFunc("POST /api/venues", handlers.Registry.AddVenue)
	mux.HandleFunc("POST /api/venues/{index}/active", handlers.Registry.SetVenueActive)
	mux.HandleFunc("GET /api/venues/{index}/reserves", handlers.Registry.Reserves)
	mux.HandleFunc("GET /api/intermediates", handlers.Registry.ListIntermediates)
	mux.HandleFunc("POST /api/intermediates", handlers.Registry.AddIntermediate)
	mux.HandleFunc("PUT /api/intermediates", handlers.Registry.ReplaceIntermediates)
	mux.HandleFunc("GET /api/quote", handlers.Registry.Quote)

	mux.HandleFunc("GET /api/strategies", handlers.Executions.ListStrategies)
	mux.HandleFunc("GET /api/strategies/{name}/latest", handlers.Executions.Latest)
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	mux.Handle("POST /api/executions", middleware.Idempotent(middleware.NewDedup(ttl))(http.HandlerFunc(handlers.Executions.Execute)))
	mux.HandleFunc("GET /api/executions", handlers.Executions.ListExecutions)
	mux.HandleFunc("GET /api/executions/stats", handlers.Executions.Stats)
	mux.HandleFunc("GET /api/executions/{id}", handlers.Executions.GetExecution)
	mux.HandleFunc("GET /api/reports/{path...}", handlers.Executions.Report)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, cfg.Signer, "/api/health")(h)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
