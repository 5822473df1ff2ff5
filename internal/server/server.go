package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/server/handler"
	"github.com/alanyoungcy/paperdesk/internal/server/middleware"
	"github.com/alanyoungcy/paperdesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// AdminKeyHash is a bcrypt hash of the admin key. Empty disables admin auth.
	AdminKeyHash   string
	RateLimit      int
	RateWindow     time.Duration
	IdempotencyTTL time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Instruments *handler.InstrumentHandler
	Accounts    *handler.AccountHandler
	Positions   *handler.PositionHandler
	Bots        *handler.BotHandler
	Risk        *handler.RiskHandler
	Payments    *handler.PaymentHandler
}

// Guards are the shared stores the trading middleware needs. A nil field
// disables the corresponding middleware.
type Guards struct {
	Limiter domain.RateLimiter
	Locks   domain.LockManager
}

// Server is the HTTP + WebSocket API server for the desk.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
func NewServer(cfg Config, handlers Handlers, guards Guards, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	admin := middleware.AdminAuth(cfg.AdminKeyHash)

	trading := func(h http.HandlerFunc) http.Handler {
		var out http.Handler = h
		if guards.Locks != nil && cfg.IdempotencyTTL > 0 {
			out = middleware.Idempotency(guards.Locks, cfg.IdempotencyTTL, logger)(out)
		}
		if guards.Limiter != nil && cfg.RateLimit > 0 {
			out = middleware.RateLimit(guards.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(out)
		}
		return out
	}

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/instruments", handlers.Instruments.List)

	// Accounts.
	mux.Handle("POST /api/accounts", admin(http.HandlerFunc(handlers.Accounts.Create)))
	mux.HandleFunc("GET /api/accounts/{id}", handlers.Accounts.Get)
	mux.Handle("GET /api/admin/accounts", admin(http.HandlerFunc(handlers.Accounts.List)))
	mux.Handle("PUT /api/admin/accounts/{id}/balance", admin(http.HandlerFunc(handlers.Accounts.SetBalance)))

	// Positions.
	mux.Handle("POST /api/positions", trading(handlers.Positions.Open))
	mux.Handle("POST /api/positions/{id}/close", trading(handlers.Positions.Close))
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListOpen)
	mux.HandleFunc("GET /api/positions/history", handlers.Positions.History)

	// Bot control.
	mux.HandleFunc("GET /api/bot/{user_id}", handlers.Bots.Get)
	mux.HandleFunc("POST /api/bot/{user_id}/start", handlers.Bots.Start)
	mux.HandleFunc("POST /api/bot/{user_id}/stop", handlers.Bots.Stop)
	mux.HandleFunc("PUT /api/bot/{user_id}/settings", handlers.Bots.UpdateSettings)
	mux.HandleFunc("PUT /api/bot/{user_id}/risk-level", handlers.Bots.SetRiskLevel)

	mux.HandleFunc("POST /api/risk/evaluate", handlers.Risk.Evaluate)

	// Payments.
	mux.HandleFunc("POST /api/payments", handlers.Payments.Submit)
	mux.Handle("GET /api/admin/payments", admin(http.HandlerFunc(handlers.Payments.List)))
	mux.Handle("POST /api/admin/payments/{id}/approve", admin(http.HandlerFunc(handlers.Payments.Approve)))
	mux.Handle("POST /api/admin/payments/{id}/reject", admin(http.HandlerFunc(handlers.Payments.Reject)))

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
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

// Handler exposes the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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
