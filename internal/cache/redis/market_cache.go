package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/settled/internal/domain"
)

// MarketCache implements domain.MarketCache with one JSON string per
// market summary.
//
// Key schema:
//
//	{ns}:market:{id} - JSON-encoded MarketSummary
type MarketCache struct {
	rdb  *redis.Client
	keys keyspace
	ttl  time.Duration
}

// NewMarketCache creates a MarketCache whose entries expire after ttl.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MarketCache{rdb: c.rdb, keys: c.keys, ttl: ttl}
}

// Set stores a summary.
func (mc *MarketCache) Set(ctx context.Context, summary domain.MarketSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", summary.ID, err)
	}
	if err := mc.rdb.Set(ctx, mc.keys.market(summary.ID), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %d: %w", summary.ID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound when the summary is not cached.
func (mc *MarketCache) Get(ctx context.Context, id uint64) (domain.MarketSummary, error) {
	data, err := mc.rdb.Get(ctx, mc.keys.market(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketSummary{}, domain.ErrNotFound
		}
		return domain.MarketSummary{}, fmt.Errorf("redis: get market %d: %w", id, err)
	}
	var s domain.MarketSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.MarketSummary{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	return s, nil
}

// Invalidate drops a cached summary.
func (mc *MarketCache) Invalidate(ctx context.Context, id uint64) error {
	if err := mc.rdb.Del(ctx, mc.keys.market(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
