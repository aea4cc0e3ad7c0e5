// Package kafkaconsumer warms the legend cache from the legend feed topic.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/enermaps/enermaps-wms/internal/cache/legendcache"
	obs "github.com/enermaps/enermaps-wms/internal/core/observability"
	"github.com/enermaps/enermaps-wms/internal/legendfeed"
	mylog "github.com/enermaps/enermaps-wms/internal/logger"
)

// Sink stores a legend for ttl.
type Sink interface {
	Put(ctx context.Context, layerName string, e legendcache.Entry, ttl time.Duration) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	sink   Sink
	ttl    time.Duration
	now    func() time.Time

	mu         sync.RWMutex
	inSession  bool
	partitions []int32
}

// New builds a consumer writing every valid legend to sink. Legends older
// than ttl are dropped.
func New(cfg Config, logger *slog.Logger, sink Sink, ttl time.Duration) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Start consumes the feed until ctx is done. A failed group session is
// retried with exponential backoff.
func (c *Consumer) Start(ctx context.Context) error {
	if c.sink == nil {
		return errors.New("kafkaconsumer: missing legend sink")
	}
	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, c.cfg.sarama())
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "legend_feed")
	handler := &groupHandler{process: c.ProcessOne, joined: c.sessionStarted, left: c.sessionEnded}
	c.logger.InfoContext(ctx, "legend feed consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	backoff := time.Second
	for ctx.Err() == nil {
		err := group.Consume(ctx, []string{c.cfg.Topic}, handler)
		if err == nil || ctx.Err() != nil {
			backoff = time.Second
			continue
		}
		c.logger.ErrorContext(ctx, "legend feed session failed",
			"err", err, "topic", c.cfg.Topic, "retry_in", backoff.String())
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
	}
	c.logger.InfoContext(ctx, "legend feed consumer shutting down")
	return nil
}

func nextBackoff(d, limit time.Duration) time.Duration {
	if limit <= 0 {
		limit = 30 * time.Second
	}
	return min(2*d, limit)
}

// ProcessOne stores the legend carried by msg. Malformed and stale
// messages are skipped; only a failing sink is an error so the message
// is consumed again.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var m legendfeed.Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		c.reject(ctx, msg, "decode", err)
		return nil
	}
	if err := m.Validate(); err != nil {
		c.reject(ctx, msg, "invalid", err)
		return nil
	}

	layerName := m.CanonicalLayer()
	now := c.now()
	fetched := m.TS
	// producer clocks running ahead count as fetched now
	if fetched.After(now) {
		fetched = now
	}
	age := now.Sub(fetched)
	if age > c.ttl {
		obs.IncFeedMessage("stale")
		c.logger.Debug("stale legend skipped", "layer", layerName, "age", age.String())
		return nil
	}

	entry := legendcache.Entry{Legend: m.Legend, FetchedAt: fetched}
	if err := c.sink.Put(ctx, layerName, entry, c.ttl-age); err != nil {
		obs.IncFeedMessage("error")
		c.logger.ErrorContext(ctx, "legend store failed",
			"layer", layerName, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return fmt.Errorf("store legend %s: %w", layerName, err)
	}

	obs.IncFeedMessage("stored")
	obs.ObserveUpstreamLatency("legend_feed", time.Since(start).Seconds())
	c.logger.Debug("legend stored", "layer", layerName, "entries", len(m.Legend.Symbology))
	return nil
}

func (c *Consumer) reject(ctx context.Context, msg *sarama.ConsumerMessage, kind string, err error) {
	obs.IncFeedMessage(kind)
	c.logger.WarnContext(ctx, "legend message skipped",
		"kind", kind, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
}

func (c *Consumer) sessionStarted(parts []int32) {
	c.mu.Lock()
	c.inSession = true
	c.partitions = parts
	c.mu.Unlock()
}

func (c *Consumer) sessionEnded() {
	c.mu.Lock()
	c.inSession = false
	c.partitions = nil
	c.mu.Unlock()
}

// Readiness reports whether the consumer is part of a live group session
// and which partitions it owns. A member without partitions is ready: the
// feed only warms the cache.
func (c *Consumer) Readiness() (bool, []int32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.inSession {
		return false, nil
	}
	return true, slices.Clone(c.partitions)
}
