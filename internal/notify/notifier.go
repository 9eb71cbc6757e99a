// Package notify sends operator alerts about market resolution to chat
// channels. Alerts can be filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// sendTimeout bounds one delivery attempt per channel.
const sendTimeout = 15 * time.Second

// Sender delivers one alert to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans alerts out to every Sender concurrently.
type Notifier struct {
	senders []Sender
	filter  map[string]struct{}
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that forwards only the listed event
// types, or every type when events is empty.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			if n.filter == nil {
				n.filter = make(map[string]struct{})
			}
			n.filter[e] = struct{}{}
		}
	}
	return n
}

// Wants reports whether alerts for event pass the filter.
func (n *Notifier) Wants(event string) bool {
	if n.filter == nil {
		return true
	}
	_, ok := n.filter[event]
	return ok
}

// Notify sends an alert for event unless the filter excludes it.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Wants(event) {
		return nil
	}
	return n.broadcast(ctx, title, message)
}

// NotifyAll sends an alert regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.broadcast(ctx, title, message)
}

// broadcast waits for every sender; one failing channel does not stop the
// others and every failure is reported.
func (n *Notifier) broadcast(ctx context.Context, title, message string) error {
	failures := make([]error, len(n.senders))
	var g errgroup.Group
	for i, s := range n.senders {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := s.Send(sctx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "alert delivery failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
				failures[i] = fmt.Errorf("%s: %w", s.Name(), err)
				return nil
			}
			n.logger.DebugContext(ctx, "alert delivered",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(failures...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
