package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/alanyoungcy/settled/internal/crypto"
	"github.com/alanyoungcy/settled/internal/rpc"
	"github.com/alanyoungcy/settled/internal/server"
	"github.com/alanyoungcy/settled/internal/server/handler"
	"github.com/alanyoungcy/settled/internal/server/ws"
	"github.com/alanyoungcy/settled/internal/service"
)

const shutdownTimeout = 5 * time.Second

func (a *App) verifier() (crypto.RequestVerifier, bool) {
	return crypto.RequestVerifier{MaxSkew: a.cfg.Identity.MaxSkew.Duration}, a.cfg.Identity.Mode == "header"
}

// startHTTPServer adds the REST/websocket server and its shutdown watcher
// to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.Settlement, hub *ws.Hub) {
	amounts := handler.NewAmounts(a.cfg.Engine.TokenDecimals)
	verifier, trustHeader := a.verifier()

	cfg := server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
		Verifier:     verifier,
		TrustHeader:  trustHeader,
		Admin:        crypto.AdminAuth{Secret: a.cfg.Identity.AdminSecret, MaxSkew: a.cfg.Identity.MaxSkew.Duration},
		AllowMint:    a.cfg.Engine.AllowMint,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
	}
	if deps.RateLimiter != nil && a.cfg.Server.RateLimit > 0 {
		cfg.RateLimiter = deps.RateLimiter
	}
	if deps.Metrics != nil {
		cfg.Metrics = deps.Metrics.Handler()
	}

	srv := server.NewServer(cfg, server.Handlers{
		Health:     handler.NewHealthHandler(deps.Pingers, a.logger),
		Markets:    handler.NewMarketHandler(svc, a.logger),
		Orders:     handler.NewOrderHandler(svc, amounts, a.logger),
		Resolution: handler.NewResolutionHandler(svc, a.logger),
		Accounts:   handler.NewAccountHandler(svc, amounts, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}

// startGRPCServer adds the gRPC server and its shutdown watcher to g.
func (a *App) startGRPCServer(ctx context.Context, g *errgroup.Group, svc *service.Settlement) {
	verifier, trustHeader := a.verifier()
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		rpc.Logging(a.logger),
		rpc.Identity(verifier, trustHeader),
	))
	rpc.Register(gs, rpc.NewServer(svc))

	addr := fmt.Sprintf(":%d", a.cfg.GRPC.Port)
	g.Go(func() error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("grpc: listen: %w", err)
		}
		a.logger.Info("gRPC server listening", slog.String("addr", addr))
		if err := gs.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		stopped := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			gs.Stop()
		}
		a.logger.Info("gRPC server stopped")
		return nil
	})
}
