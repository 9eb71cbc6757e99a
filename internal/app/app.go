// Package app wires the settlement engine together and runs its servers
// and background jobs until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/settled/internal/broker"
	"github.com/alanyoungcy/settled/internal/config"
	"github.com/alanyoungcy/settled/internal/pipeline"
	"github.com/alanyoungcy/settled/internal/server/ws"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, restores engine state and serves until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting settlement engine",
		slog.Bool("postgres", a.cfg.Postgres.Enabled),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("journal", a.cfg.Journal.Enabled),
		slog.Bool("broker", a.cfg.Broker.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	svc, err := a.buildSettlement(ctx, deps)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{StartedAt: deps.Clock.Now()})
		g.Go(func() error { return hub.Run(ctx) })
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc, hub)
	}
	if a.cfg.GRPC.Enabled {
		a.startGRPCServer(ctx, g, svc)
	}

	if deps.Outbox != nil && deps.Publisher != nil {
		relay := broker.NewRelay(deps.Outbox, deps.Publisher, a.cfg.Broker.Interval.Duration,
			a.cfg.Broker.MaxRetries, deps.Metrics, a.logger)
		g.Go(func() error { return relay.Run(ctx) })
	}

	if deps.Archiver != nil && deps.AuditStore != nil && a.cfg.S3.AuditCron != "" {
		sched, err := pipeline.ParseSchedule(a.cfg.S3.AuditCron)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		exporter, ok := deps.Archiver.(pipeline.AuditExporter)
		if ok {
			job := pipeline.NewAuditJob(exporter, a.cfg.S3.AuditRetention.Duration, deps.Clock, a.logger)
			g.Go(func() error { return job.Run(ctx, sched) })
		}
	}

	err = g.Wait()
	if err == nil {
		a.logger.Info("settlement engine stopped")
	}
	return err
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
