package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/settled/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindow = redis.NewScript(slidingWindowLua)

// Decision is the full outcome of one limiter check.
type Decision struct {
	Allowed    bool
	InWindow   int64
	RetryAfter time.Duration
}

// RateLimiter implements domain.RateLimiter as a sliding window over a
// sorted set per caller, trimmed and counted atomically in Lua.
type RateLimiter struct {
	rdb  *redis.Client
	keys keyspace
	now  func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb, keys: c.keys, now: time.Now}
}

// Check counts one request by caller against limit per window.
func (rl *RateLimiter) Check(ctx context.Context, caller string, limit int, window time.Duration) (Decision, error) {
	res, err := slidingWindow.Run(ctx, rl.rdb,
		[]string{rl.keys.rate(caller)},
		rl.now().UnixMicro(), window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis: rate limit %s: %w", caller, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis: rate limit %s: script returned %d values", caller, len(res))
	}
	return Decision{
		Allowed:    res[0] == 1,
		InWindow:   res[1],
		RetryAfter: time.Duration(res[2]) * time.Microsecond,
	}, nil
}

// Allow reports whether caller may make one more request.
func (rl *RateLimiter) Allow(ctx context.Context, caller string, limit int, window time.Duration) (bool, error) {
	d, err := rl.Check(ctx, caller, limit, window)
	return d.Allowed, err
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
