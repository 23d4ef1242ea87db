// Package server assembles the HTTP API for the marketplace daemon.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/server/handler"
	"github.com/inkworklabs/caboz/internal/server/middleware"
	"github.com/inkworklabs/caboz/internal/server/ws"
)

// apiRateLimit caps requests per client IP per minute.
const apiRateLimit = 120

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// AdminAPIKey protects the payment-mint registry mutations. If empty,
	// those routes are open (intended for local development only).
	AdminAPIKey string
	// Limiter, when set, applies per-client-IP rate limiting to the whole
	// API surface.
	Limiter domain.RateLimiter
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Orders   *handler.OrderHandler
	Mints    *handler.MintHandler
	Wallets  *handler.WalletHandler
	ItemSets *handler.ItemSetHandler
	Metadata *handler.MetadataHandler
}

// Server is the HTTP + WebSocket API server for the marketplace daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS) and attaches the WebSocket hub.
// Registry mutations additionally go through the admin auth middleware.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	admin := middleware.Auth(cfg.AdminAPIKey)

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Order lifecycle.
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", handlers.Orders.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/settle", handlers.Orders.SettleOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CloseOrder)

	// Payment-mint registry. Reads are public, mutations are admin-only.
	mux.HandleFunc("GET /api/payment-mints", handlers.Mints.ListPaymentMints)
	mux.Handle("POST /api/payment-mints", admin(http.HandlerFunc(handlers.Mints.AllowPaymentMint)))
	mux.Handle("DELETE /api/payment-mints/{mint}", admin(http.HandlerFunc(handlers.Mints.DisallowPaymentMint)))

	// Escrow wallet balances.
	mux.HandleFunc("GET /api/wallets/{owner}/balance", handlers.Wallets.Balance)

	// Item-set manifests and inclusion proofs.
	mux.HandleFunc("POST /api/item-sets", handlers.ItemSets.PublishItemSet)
	mux.HandleFunc("GET /api/item-sets/{root}/proof", handlers.ItemSets.ItemSetProof)

	// Item metadata feed, admin-only.
	mux.Handle("POST /api/metadata", admin(http.HandlerFunc(handlers.Metadata.RegisterMetadata)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	if cfg.Limiter != nil {
		h = middleware.RateLimit(cfg.Limiter, apiRateLimit, time.Minute)(h)
	}
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
