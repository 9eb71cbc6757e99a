package domain

import (
	"context"
	"time"
)

// ListOpts pages through time-ordered records. Since is inclusive and
// Until exclusive; nil leaves that side open.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore keeps the latest snapshot of every market for restarts.
type MarketStore interface {
	Save(ctx context.Context, rec MarketRecord) error
	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, marketID uint64) (MarketRecord, error)
	List(ctx context.Context, opts ListOpts) ([]MarketRecord, error)
}

// AuditEntry records one committed command.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore is the append-only command log exported by the audit job.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns entries oldest first.
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
