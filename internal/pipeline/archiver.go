// Package pipeline runs background maintenance jobs for the settlement
// engine.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
)

// AuditExporter copies old audit entries to cold storage.
type AuditExporter interface {
	ArchiveAudit(ctx context.Context, before time.Time) (int, error)
}

// AuditJob exports audit entries older than a retention window on a cron
// schedule.
type AuditJob struct {
	exporter  AuditExporter
	retention time.Duration
	clock     domain.Clock
	logger    *slog.Logger
}

// NewAuditJob creates an AuditJob.
func NewAuditJob(exporter AuditExporter, retention time.Duration, clock domain.Clock, logger *slog.Logger) *AuditJob {
	return &AuditJob{
		exporter:  exporter,
		retention: retention,
		clock:     clock,
		logger:    logger.With(slog.String("component", "audit_job")),
	}
}

// RunOnce exports everything older than now minus the retention window.
func (j *AuditJob) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.clock.Now().Add(-j.retention)
	n, err := j.exporter.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pipeline: audit export before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.logger.InfoContext(ctx, "audit export complete",
		slog.Time("cutoff", cutoff),
		slog.Int("entries", n),
	)
	return n, nil
}

// Run fires RunOnce on every tick of sched until ctx is done. Failed runs
// are logged and retried at the next tick.
func (j *AuditJob) Run(ctx context.Context, sched Schedule) error {
	j.logger.InfoContext(ctx, "audit job started", slog.String("cron", sched.String()))
	for {
		next, err := sched.Next(j.clock.Now())
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.ErrorContext(ctx, "audit export failed", slog.String("error", err.Error()))
			}
		}
	}
}
