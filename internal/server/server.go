// Package server exposes the launchpad over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/server/handler"
	"github.com/alanyoungcy/launchpad/internal/server/middleware"
	"github.com/alanyoungcy/launchpad/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminAPIKey string // if empty, the admin routes answer 403
	RateLimit   int
	RateWindow  time.Duration
	MaxSkew     time.Duration
	Relayers    []middleware.Relayer
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Relay   *handler.RelayHandler
	Admin   *handler.AdminHandler
	Status  *handler.StatusHandler // optional
}

// Deps are the optional collaborators of the server. A nil Hub disables
// /ws and a nil MetricsHandler disables /metrics.
type Deps struct {
	Hub            *ws.Hub
	Limiter        domain.RateLimiter
	Metrics        middleware.HTTPMetrics
	MetricsHandler http.Handler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with every route registered.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	mux.HandleFunc("GET /api/nonces/{address}", handlers.Markets.GetNonce)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{address}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{address}/price", handlers.Markets.GetPrice)
	mux.HandleFunc("GET /api/markets/{address}/quote/buy", handlers.Markets.QuoteBuy)
	mux.HandleFunc("GET /api/markets/{address}/quote/sell", handlers.Markets.QuoteSell)
	mux.HandleFunc("GET /api/markets/{address}/progress", handlers.Markets.GetProgress)
	mux.HandleFunc("GET /api/markets/{address}/events", handlers.Markets.ListEvents)
	mux.HandleFunc("GET /api/balances/{address}", handlers.Markets.GetBalances)

	relayed := func(h http.HandlerFunc) http.Handler {
		var out http.Handler = h
		if deps.Limiter != nil && cfg.RateLimit > 0 {
			out = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(out)
		}
		return middleware.RelayerAuth(cfg.Relayers, cfg.MaxSkew, logger)(out)
	}
	mux.Handle("POST /api/relay/create", relayed(handlers.Relay.Create))
	mux.Handle("POST /api/relay/buy", relayed(handlers.Relay.Buy))
	mux.Handle("POST /api/relay/sell", relayed(handlers.Relay.Sell))
	mux.Handle("POST /api/relay/verify/{kind}", relayed(handlers.Relay.Verify))

	admin := middleware.AdminAuth(cfg.AdminAPIKey)
	mux.Handle("POST /api/admin/deposits", admin(http.HandlerFunc(handlers.Admin.Deposit)))
	mux.Handle("POST /api/admin/allowances", admin(http.HandlerFunc(handlers.Admin.Approve)))
	mux.Handle("POST /api/admin/markets/{address}/migrate", admin(http.HandlerFunc(handlers.Admin.Migrate)))
	mux.Handle("GET /api/admin/archives", admin(http.HandlerFunc(handlers.Admin.ListArchives)))
	mux.Handle("GET /api/admin/audit", admin(http.HandlerFunc(handlers.Admin.ListAudit)))

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}

	var h http.Handler = mux
	h = chimw.Recoverer(h)
	h = middleware.Logging(logger, deps.Metrics)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = chimw.RequestID(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
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
