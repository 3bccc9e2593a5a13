package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/server/handler"
	"github.com/starstake/stakeboard/internal/server/middleware"
	"github.com/starstake/stakeboard/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per client IP per window; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Packages  *handler.PackagesHandler
	Positions *handler.PositionHandler
	Rewards   *handler.RewardsHandler
	Referrals *handler.ReferralsHandler
	Stars     *handler.StarsHandler
	Profile   *handler.ProfileHandler
	Actions   *handler.ActionsHandler
}

// Server is the headless HTTP + WebSocket API server for the staking
// dashboard.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket hub. limiter may be nil to disable HTTP rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Operator status.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Package catalog.
	mux.HandleFunc("GET /api/packages", handlers.Packages.ListPackages)

	// Position endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("POST /api/positions/refresh", handlers.Positions.RefreshPositions)

	// Earnings views.
	mux.HandleFunc("GET /api/rewards", handlers.Rewards.GetRewards)
	mux.HandleFunc("GET /api/referrals", handlers.Referrals.GetReferrals)
	mux.HandleFunc("GET /api/stars", handlers.Stars.GetStars)

	// Profile endpoints.
	mux.HandleFunc("GET /api/profile/{wallet}", handlers.Profile.GetProfile)
	mux.HandleFunc("PUT /api/profile/{wallet}", handlers.Profile.UpdateProfile)

	// Write actions and the journal.
	mux.HandleFunc("POST /api/actions/stake", handlers.Actions.Stake)
	mux.HandleFunc("POST /api/actions/claim", handlers.Actions.Claim)
	mux.HandleFunc("POST /api/actions/unstake", handlers.Actions.Unstake)
	mux.HandleFunc("GET /api/actions", handlers.Actions.ListActions)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-IP rate limiting when a limiter is available.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware. Outermost so preflights never hit the
	// rate limiter or auth.
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
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
