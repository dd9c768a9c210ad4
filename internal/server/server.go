// Package server exposes the ledger over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/server/handler"
	"github.com/alanyoungcy/parimarket/internal/server/middleware"
	"github.com/alanyoungcy/parimarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards the admin routes; if empty they are disabled.
	APIKey string
	// IdentityMode is middleware.IdentityToken or middleware.IdentityHeader.
	IdentityMode string
	// RateLimit is the number of requests allowed per caller per RateWindow.
	// Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Markets    *handler.MarketHandler
	Operations *handler.OperationHandler
	Stats      *handler.StatsHandler
	Admin      *handler.AdminHandler
}

// Security carries the collaborators used by the request middleware.
type Security struct {
	// Tokens verifies bearer tokens in token identity mode.
	Tokens middleware.TokenVerifier
	// Limiter is optional.
	Limiter domain.RateLimiter
}

// Server is the HTTP + WebSocket API server for the ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on a ServeMux.
// Public routes run behind identity resolution and rate limiting; admin
// routes require the API key instead.
func NewServer(cfg Config, handlers Handlers, sec Security, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	identify := middleware.Identity(cfg.IdentityMode, sec.Tokens)
	limit := middleware.RateLimit(sec.Limiter, cfg.RateLimit, cfg.RateWindow, logger)
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, identify(limit(fn)))
	}

	// Health and status (no identity required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Market reads.
	public("GET /api/markets", handlers.Markets.ListMarkets)
	public("GET /api/markets/{id}", handlers.Markets.GetMarket)
	public("GET /api/markets/{id}/bets/{principal}", handlers.Markets.GetBet)

	// Ledger operations.
	public("POST /api/markets", handlers.Markets.CreateMarket)
	public("POST /api/markets/{id}/bets", handlers.Markets.PlaceBet)
	public("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)
	public("POST /api/markets/{id}/claim", handlers.Markets.ClaimWinnings)
	public("POST /api/operations", handlers.Operations.Submit)

	// Derived views.
	public("GET /api/users/{principal}/stats", handlers.Stats.UserStats)
	public("GET /api/leaderboard", handlers.Stats.Leaderboard)
	public("GET /api/journal", handlers.Stats.Journal)

	// Admin.
	mux.Handle("POST /api/admin/snapshot", middleware.Auth(cfg.APIKey)(http.HandlerFunc(handlers.Admin.Snapshot)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.RequestID(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
