// Package redisstore is the Redis client behind the shared legend tier.
// Every call is counted in cache_op_total and timed per op.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/enermaps/enermaps-wms/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

// New connects to addr and pings it once.
func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, o := range opts {
		o(ro)
	}

	c := &Client{rdb: redis.NewClient(ro)}
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	observe("ping", start, err)
	if err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}

func observe(op string, start time.Time, err error) {
	observability.ObserveCacheOp(op, err, time.Since(start).Seconds())
}

func lookups(hits, total int) {
	if hits > 0 {
		observability.AddCacheHits(hits)
	}
	if total > hits {
		observability.AddCacheMisses(total - hits)
	}
}

// Get returns the value of key; found is false when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (val []byte, found bool, err error) {
	start := time.Now()
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	observe("get", start, err)
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	found = b != nil
	if found {
		lookups(1, 1)
	} else {
		lookups(0, 1)
	}
	return b, found, nil
}

// MGet returns the present keys with their values.
func (c *Client) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	start := time.Now()
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	observe("mget", start, err)
	if err != nil {
		return nil, fmt.Errorf("redis MGET %d keys: %w", len(keys), err)
	}
	for i, v := range vals {
		switch t := v.(type) {
		case nil:
		case string:
			out[keys[i]] = []byte(t)
		case []byte:
			out[keys[i]] = t
		default:
			out[keys[i]] = fmt.Append(nil, t)
		}
	}
	lookups(len(out), len(keys))
	return out, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, val, ttl).Err()
	observe("set", start, err)
	if err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

// MSetWithTTL writes every pair in one pipeline with the same expiry.
func (c *Client) MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl time.Duration) error {
	if len(kv) == 0 {
		return nil
	}
	start := time.Now()
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range kv {
			p.Set(ctx, k, v, ttl)
		}
		return nil
	})
	observe("mset", start, err)
	if err != nil {
		return fmt.Errorf("redis pipelined SET of %d keys: %w", len(kv), err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	observe("del", start, err)
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

// TTL returns the remaining lifetime of key. ok is false when the key is
// absent or never expires.
func (c *Client) TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error) {
	start := time.Now()
	d, err := c.rdb.PTTL(ctx, key).Result()
	observe("pttl", start, err)
	if err != nil {
		return 0, false, fmt.Errorf("redis PTTL %s: %w", key, err)
	}
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

// Scan returns every key matching the glob pattern.
func (c *Client) Scan(ctx context.Context, match string) ([]string, error) {
	start := time.Now()
	var out []string
	it := c.rdb.Scan(ctx, 0, match, 256).Iterator()
	for it.Next(ctx) {
		out = append(out, it.Val())
	}
	err := it.Err()
	observe("scan", start, err)
	if err != nil {
		return nil, fmt.Errorf("redis SCAN %s: %w", match, err)
	}
	return out, nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
