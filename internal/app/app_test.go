package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/settled/internal/config"
	"github.com/alanyoungcy/settled/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// localConfig runs with the journal only: no network backends.
func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Engine.Judge = "judge"
	cfg.Server.Port = 0
	cfg.GRPC.Port = 0
	cfg.Metrics.Enabled = false
	cfg.Journal.Dir = t.TempDir()
	return &cfg
}

func TestRestartReplaysJournal(t *testing.T) {
	ctx := context.Background()
	cfg := localConfig(t)
	a := New(cfg, quietLogger())

	deps, cleanup, err := Wire(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	svc, err := a.buildSettlement(ctx, deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Mint(domain.WithCaller(ctx, "admin"), "alice", 5_000); err != nil {
		t.Fatal(err)
	}
	info, err := svc.CreateMarket(domain.WithCaller(ctx, "creator"), domain.MarketSpec{
		Description: "Will the bridge open by June?",
		Outcomes:    3,
		EndTime:     time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	cleanup()

	deps, cleanup, err = Wire(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	restarted, err := a.buildSettlement(ctx, deps)
	if err != nil {
		t.Fatal(err)
	}

	bal, err := restarted.Balance(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if bal != 5_000 {
		t.Fatalf("alice balance after restart = %d, want 5000", bal)
	}
	got, err := restarted.Market(ctx, info.ID)
	if err != nil {
		t.Fatalf("market %d lost on restart: %v", info.ID, err)
	}
	if got.Spec.Outcomes != info.Spec.Outcomes {
		t.Fatalf("restored outcomes = %d, want %d", got.Spec.Outcomes, info.Spec.Outcomes)
	}
	if since := time.Since(deps.Clock.Now()); since < 0 || since > time.Minute {
		t.Fatalf("clock not handed back to wall time: %v", deps.Clock.Now())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := localConfig(t)
	cfg.GRPC.Enabled = true
	a := New(cfg, quietLogger())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
