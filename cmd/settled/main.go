// Command settled runs the prediction-market settlement engine. It loads
// and validates configuration, wires the configured backends and serves
// the HTTP, websocket and gRPC APIs until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/settled/internal/app"
	"github.com/alanyoungcy/settled/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "TOML configuration file; empty uses defaults plus SETTLED_* env")
	flag.Parse()
	os.Exit(run(*configPath))
}

func run(configPath string) int {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("load config", slog.String("path", configPath), slog.String("error", err.Error()))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}
	// Validate has already rejected unknown level names.
	_ = level.UnmarshalText([]byte(cfg.Log.Level))

	logger.Info("settled starting",
		slog.String("config", configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, logger)
	defer a.Close()
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("settled exited", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("settled stopped")
	return 0
}
