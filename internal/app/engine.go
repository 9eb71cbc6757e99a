package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/settled/internal/journal"
	"github.com/alanyoungcy/settled/internal/service"
)

// buildSettlement constructs the service, restores its markets, then
// attaches the side-effect backends so restoration emits nothing.
//
// State comes from Postgres when it is enabled. Without it the journal is
// replayed into the in-memory ledger on the handoff clock's manual half.
func (a *App) buildSettlement(ctx context.Context, deps *Dependencies) (*service.Settlement, error) {
	svc := service.NewSettlement(a.cfg.Engine.Market(), deps.Ledger, deps.Clock, a.logger).
		WithMetrics(deps.Metrics)

	switch {
	case deps.MarketStore != nil:
		svc.WithStore(deps.MarketStore)
		if _, err := svc.Load(ctx); err != nil {
			return nil, err
		}
	case deps.Journal != nil && a.cfg.Journal.Replay:
		cmds, err := journal.Commands(a.cfg.Journal.Dir)
		if err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}
		if err := svc.Replay(ctx, deps.Clock.Manual(), cmds); err != nil {
			return nil, err
		}
	}
	deps.Clock.Release()

	if deps.AuditStore != nil {
		svc.WithAudit(deps.AuditStore)
	}
	if deps.Journal != nil {
		svc.WithJournal(deps.Journal)
	}
	if deps.LockManager != nil {
		svc.WithLocks(deps.LockManager, a.cfg.Engine.LockTTL.Duration)
	}
	if deps.MarketCache != nil {
		svc.WithCache(deps.MarketCache)
	}
	if deps.SignalBus != nil {
		svc.WithBus(deps.SignalBus)
	}
	if deps.Outbox != nil {
		svc.WithEventSink(deps.Outbox)
	}
	if deps.Archiver != nil {
		svc.WithArchiver(deps.Archiver)
	}
	if deps.Notifier != nil {
		svc.WithNotifier(deps.Notifier)
	}
	if deps.Signer != nil {
		svc.WithSigner(deps.Signer)
		a.logger.InfoContext(ctx, "claim receipts enabled", slog.String("operator", deps.Signer.Address()))
	}
	return svc, nil
}
