package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/metrics"
	"github.com/alanyoungcy/settled/internal/outbox"
)

// Relay moves outbox entries to a publisher. Entries are marked SENT
// before publishing and deleted once the broker acknowledges them, so a
// crash in between redelivers rather than loses an event.
type Relay struct {
	outbox     *outbox.Outbox
	publisher  domain.EventPublisher
	interval   time.Duration
	maxRetries uint32
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewRelay creates a Relay polling every interval.
func NewRelay(ob *outbox.Outbox, pub domain.EventPublisher, interval time.Duration, maxRetries uint32, m *metrics.Metrics, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Relay{
		outbox:     ob,
		publisher:  pub,
		interval:   interval,
		maxRetries: maxRetries,
		metrics:    m,
		logger:     logger.With(slog.String("component", "relay")),
	}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "relay: started", slog.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.logger.WarnContext(ctx, "relay: flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Flush publishes every pending entry once and returns how many were
// delivered. SENT entries left by a crash are retried too.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var delivered int
	err := r.outbox.Scan(func(e outbox.Entry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.State == outbox.StateFailed && r.maxRetries > 0 && e.Retries >= r.maxRetries {
			return nil
		}
		if err := r.outbox.Mark(e.Seq, outbox.StateSent); err != nil {
			return err
		}
		err := r.publisher.Publish(ctx, e.Key, e.Payload)
		r.metrics.ObservePublish(err)
		if err != nil {
			r.logger.WarnContext(ctx, "relay: publish failed",
				slog.Uint64("seq", e.Seq),
				slog.Uint64("retries", uint64(e.Retries)),
				slog.String("error", err.Error()),
			)
			return r.outbox.Mark(e.Seq, outbox.StateFailed)
		}
		delivered++
		return r.outbox.Delete(e.Seq)
	}, outbox.StateNew, outbox.StateSent, outbox.StateFailed)
	return delivered, err
}
