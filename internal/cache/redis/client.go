// Package redis backs the engine's cache, locks, rate limits and event bus
// with go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace prefixes every key; "settled" when empty.
	Namespace string
}

// Client owns the connection pool and the key namespace shared by the
// cache, lock, limiter and bus built on it.
type Client struct {
	rdb  *redis.Client
	keys keyspace
}

// New connects and pings. A client that cannot reach Redis is closed
// before the error is returned.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			host = cfg.Addr
		}
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	c := Wrap(redis.NewClient(opts), cfg.Namespace)
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Wrap adopts an existing go-redis client.
func Wrap(rdb *redis.Client, namespace string) *Client {
	if namespace == "" {
		namespace = "settled"
	}
	return &Client{rdb: rdb, keys: keyspace(namespace)}
}

// Ping checks the connection; it backs the redis health probe.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() error { return c.rdb.Close() }

// keyspace builds namespaced keys: {ns}:{kind}:{id}.
type keyspace string

func (k keyspace) key(kind, id string) string { return string(k) + ":" + kind + ":" + id }

func (k keyspace) market(id uint64) string   { return k.key("market", strconv.FormatUint(id, 10)) }
func (k keyspace) lock(name string) string   { return k.key("lock", name) }
func (k keyspace) rate(caller string) string { return k.key("ratelimit", caller) }
