// Package server exposes the settlement engine over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/settled/internal/crypto"
	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/server/handler"
	"github.com/alanyoungcy/settled/internal/server/middleware"
	"github.com/alanyoungcy/settled/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Verifier    crypto.RequestVerifier
	TrustHeader bool
	// Admin guards /api/admin; admin routes are only mounted when
	// AllowMint is set.
	Admin     crypto.AdminAuth
	AllowMint bool

	// RateLimiter is optional; RateLimit requests per RateWindow.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Orders     *handler.OrderHandler
	Resolution *handler.ResolutionHandler
	Accounts   *handler.AccountHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with every route and middleware registered.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	mux.HandleFunc("POST /api/markets", h.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", h.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/summary", h.Markets.GetSummary)
	mux.HandleFunc("GET /api/markets/{id}/report", h.Markets.GetReport)
	mux.HandleFunc("GET /api/markets/{id}/prices", h.Markets.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/outcomes/{outcome}/book", h.Markets.GetBook)
	mux.HandleFunc("GET /api/markets/{id}/outcomes/{outcome}/depth", h.Markets.GetDepth)
	mux.HandleFunc("GET /api/markets/{id}/outcomes/{outcome}/liquidity", h.Markets.GetLiquidity)
	mux.HandleFunc("GET /api/markets/{id}/outcomes/{outcome}/sell-depth", h.Markets.GetSellDepth)

	mux.HandleFunc("POST /api/markets/{id}/orders", h.Orders.PlaceOrder)
	mux.HandleFunc("DELETE /api/markets/{id}/outcomes/{outcome}/orders/{orderID}", h.Orders.CancelOrder)
	mux.HandleFunc("POST /api/markets/{id}/sell", h.Orders.SellShares)

	mux.HandleFunc("POST /api/markets/{id}/resolute", h.Resolution.Resolute)
	mux.HandleFunc("POST /api/markets/{id}/dispute", h.Resolution.Dispute)
	mux.HandleFunc("POST /api/markets/{id}/withdraw", h.Resolution.Withdraw)
	mux.HandleFunc("POST /api/markets/{id}/finalize", h.Resolution.Finalize)

	mux.HandleFunc("GET /api/markets/{id}/accounts/{account}", h.Accounts.GetPositions)
	mux.HandleFunc("GET /api/markets/{id}/claimable/{account}", h.Accounts.GetClaimable)
	mux.HandleFunc("POST /api/markets/{id}/claim/{account}", h.Accounts.Claim)
	mux.HandleFunc("GET /api/balances/{account}", h.Accounts.GetBalance)

	if cfg.AllowMint {
		mux.Handle("POST /api/admin/mint", middleware.Admin(cfg.Admin, nil)(http.HandlerFunc(h.Accounts.Mint)))
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var root http.Handler = mux
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		root = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow, logger)(root)
	}
	root = middleware.Logging(logger)(root)
	root = middleware.Identity(cfg.Verifier, cfg.TrustHeader)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	readTimeout, writeTimeout := cfg.ReadTimeout, cfg.WriteTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
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
