// Package legendcache is the time boxed legend cache: an in-process LRU in
// front of an optional shared Redis tier in front of the dataset API.
package legendcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/enermaps/enermaps-wms/internal/cache/keys"
	"github.com/enermaps/enermaps-wms/internal/core/observability"
	"github.com/enermaps/enermaps-wms/internal/legend"
)

// Origin produces legends on a cache miss, nil when the layer has none.
type Origin interface {
	FetchLegend(ctx context.Context, layerName string) (*legend.Legend, error)
}

// Shared is the Redis tier.
type Shared interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Entry is the cached form of a legend, also written by the legend feed.
// A nil Legend records that the origin has none.
type Entry struct {
	Legend    *legend.Legend `json:"legend"`
	FetchedAt time.Time      `json:"ts"`
}

func (e Entry) fresh(now time.Time, freshness time.Duration) bool {
	return now.Sub(e.FetchedAt) <= freshness
}

type Options struct {
	Size      int
	OpTimeout time.Duration
	Logger    *slog.Logger
}

type Cache struct {
	local     *lru.Cache[string, Entry]
	shared    Shared
	origin    Origin
	opTimeout time.Duration
	logger    *slog.Logger
	now       func() time.Time // for tests
}

var _ legend.Cache = (*Cache)(nil)

// New builds the cache. shared may be nil to run without the Redis tier.
func New(origin Origin, shared Shared, opts Options) (*Cache, error) {
	if opts.Size <= 0 {
		opts.Size = 1024
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	local, err := lru.New[string, Entry](opts.Size)
	if err != nil {
		return nil, fmt.Errorf("legend lru: %w", err)
	}
	return &Cache{
		local:     local,
		shared:    shared,
		origin:    origin,
		opTimeout: opts.OpTimeout,
		logger:    opts.Logger,
		now:       time.Now,
	}, nil
}

// GetLegend returns a legend fetched at most freshness ago.
func (c *Cache) GetLegend(ctx context.Context, layerName string, freshness time.Duration) (*legend.Legend, error) {
	now := c.now()
	if e, ok := c.local.Get(layerName); ok && e.fresh(now, freshness) {
		observability.ObserveLegendLookup("lru", "hit")
		return e.Legend, nil
	}
	observability.ObserveLegendLookup("lru", "miss")

	key := keys.Legend(layerName)
	if e, ok := c.readShared(ctx, key); ok && e.fresh(now, freshness) {
		c.local.Add(layerName, e)
		return e.Legend, nil
	}

	if c.origin == nil {
		return nil, nil
	}
	lg, err := c.origin.FetchLegend(ctx, layerName)
	if err != nil {
		observability.ObserveLegendLookup("origin", "error")
		return nil, fmt.Errorf("fetch legend %s: %w", layerName, err)
	}
	outcome := "hit"
	if lg.Empty() {
		outcome = "miss"
	}
	observability.ObserveLegendLookup("origin", outcome)

	e := Entry{Legend: lg, FetchedAt: now}
	c.local.Add(layerName, e)
	c.writeShared(ctx, key, e, freshness)
	return lg, nil
}

// Put stores a legend in both tiers, used by the legend feed.
func (c *Cache) Put(ctx context.Context, layerName string, e Entry, ttl time.Duration) error {
	c.local.Add(layerName, e)
	if c.shared == nil {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode legend entry: %w", err)
	}
	return c.shared.Set(ctx, keys.Legend(layerName), b, ttl)
}

func (c *Cache) readShared(ctx context.Context, key string) (Entry, bool) {
	if c.shared == nil {
		return Entry{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	b, found, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "legend redis read failed", "key", key, "err", err)
		return Entry{}, false
	}
	if !found {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		c.logger.WarnContext(ctx, "legend redis entry unreadable", "key", key, "err", err)
		return Entry{}, false
	}
	return e, true
}

func (c *Cache) writeShared(ctx context.Context, key string, e Entry, ttl time.Duration) {
	if c.shared == nil {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		c.logger.WarnContext(ctx, "encode legend entry", "key", key, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.shared.Set(ctx, key, b, ttl); err != nil {
		c.logger.WarnContext(ctx, "legend redis write failed", "key", key, "err", err)
	}
}
