package legendcache

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/enermaps/enermaps-wms/internal/cache/keys"
	"github.com/enermaps/enermaps-wms/internal/legend"
)

// AdminStore is the slice of the Redis client the operator commands use.
type AdminStore interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Del(ctx context.Context, keys ...string) error
	MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	Scan(ctx context.Context, match string) ([]string, error)
}

// Status describes the shared tier entry of one layer.
type Status struct {
	Layer     string
	Cached    bool
	FetchedAt time.Time
	Entries   int
	// ExpiresIn is zero when the entry is absent or has no expiry
	ExpiresIn time.Duration
}

// Admin inspects and edits the shared legend tier.
type Admin struct {
	Store AdminStore
}

func (a Admin) Status(ctx context.Context, layers []string) ([]Status, error) {
	ks := make([]string, len(layers))
	for i, l := range layers {
		ks[i] = keys.Legend(l)
	}
	found, err := a.Store.MGet(ctx, ks)
	if err != nil {
		return nil, err
	}
	out := make([]Status, len(layers))
	for i, l := range layers {
		out[i] = Status{Layer: l}
		b, ok := found[ks[i]]
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("decode entry of %s: %w", l, err)
		}
		out[i].Cached = true
		out[i].FetchedAt = e.FetchedAt
		if e.Legend != nil {
			out[i].Entries = len(e.Legend.Symbology)
		}
		ttl, ok, err := a.Store.TTL(ctx, ks[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out[i].ExpiresIn = ttl
		}
	}
	return out, nil
}

// Keys lists every legend key in the shared tier.
func (a Admin) Keys(ctx context.Context) ([]string, error) {
	ks, err := a.Store.Scan(ctx, keys.LegendPattern())
	if err != nil {
		return nil, err
	}
	slices.Sort(ks)
	return ks, nil
}

func (a Admin) Evict(ctx context.Context, layers []string) error {
	if len(layers) == 0 {
		return nil
	}
	ks := make([]string, len(layers))
	for i, l := range layers {
		ks[i] = keys.Legend(l)
	}
	return a.Store.Del(ctx, ks...)
}

// Import writes legends fetched at now, keyed by layer name.
func (a Admin) Import(ctx context.Context, legends map[string]*legend.Legend, now time.Time, ttl time.Duration) error {
	kv := make(map[string][]byte, len(legends))
	for name, lg := range legends {
		b, err := json.Marshal(Entry{Legend: lg, FetchedAt: now})
		if err != nil {
			return fmt.Errorf("encode legend of %s: %w", name, err)
		}
		kv[keys.Legend(name)] = b
	}
	return a.Store.MSetWithTTL(ctx, kv, ttl)
}
