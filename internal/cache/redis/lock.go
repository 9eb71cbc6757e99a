package redis

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/settled/internal/domain"
)

//go:embed scripts/release_lock.lua
var releaseLockLua string

var releaseLock = redis.NewScript(releaseLockLua)

const (
	lockPollMin = 10 * time.Millisecond
	lockPollMax = 200 * time.Millisecond
)

// LockManager implements domain.LockManager with SET NX plus a TTL. A
// market lock is held for the duration of one operation, so Acquire polls
// for up to the configured budget while another holder finishes.
type LockManager struct {
	rdb  *redis.Client
	keys keyspace
	wait time.Duration
}

// NewLockManager creates a LockManager that waits up to wait for a held
// lock before giving up with domain.ErrLockHeld.
func NewLockManager(c *Client, wait time.Duration) *LockManager {
	return &LockManager{rdb: c.rdb, keys: c.keys, wait: wait}
}

// Acquire obtains the lock for name. The returned release function is
// idempotent and deletes the key only if this holder still owns it.
func (lm *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := lm.keys.lock(name)
	token := uuid.NewString()
	if err := lm.poll(ctx, key, token, ttl); err != nil {
		return nil, fmt.Errorf("redis: lock %s: %w", name, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Released after the operation; its ctx may be done by now.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseLock.Run(rctx, lm.rdb, []string{key}, token).Err()
		})
	}, nil
}

// poll retries SET NX with doubling sleeps until it wins or the wait
// budget runs out.
func (lm *LockManager) poll(ctx context.Context, key, token string, ttl time.Duration) error {
	giveUp := time.Now().Add(lm.wait)
	sleep := lockPollMin
	for {
		won, err := lm.rdb.SetNX(ctx, key, token, ttl).Result()
		switch {
		case err != nil:
			return err
		case won:
			return nil
		case time.Now().After(giveUp):
			return domain.ErrLockHeld
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		sleep = min(sleep*2, lockPollMax)
	}
}

var _ domain.LockManager = (*LockManager)(nil)
