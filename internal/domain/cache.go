package domain

import (
	"context"
	"time"
)

// MarketCache holds the last committed summary of each market so reads
// can skip the engine lock. Entries are overwritten after every commit.
type MarketCache interface {
	Set(ctx context.Context, summary MarketSummary) error
	// Get returns ErrNotFound on a miss.
	Get(ctx context.Context, marketID uint64) (MarketSummary, error)
	Invalidate(ctx context.Context, marketID uint64) error
}

// RateLimiter counts requests per caller key in a sliding window shared
// by every replica.
type RateLimiter interface {
	Allow(ctx context.Context, caller string, limit int, window time.Duration) (bool, error)
}

// LockManager serializes operations on one market across replicas.
// Acquire returns ErrLockHeld when the wait budget runs out.
type LockManager interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// StreamMessage is one entry of the durable event stream. ID is the
// position a reconnecting reader resumes after.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries committed events: Publish/Subscribe for live
// listeners, StreamAppend/StreamRead for backfill.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream, afterID string, count int) ([]StreamMessage, error)
}
