package legend

import (
	"context"
	"log/slog"
	"time"

	"github.com/enermaps/enermaps-wms/internal/core/model"
)

// DefaultFreshness bounds how stale a cached legend may be.
const DefaultFreshness = 30 * time.Second

// Cache returns previously computed legends, nil when none exists.
type Cache interface {
	GetLegend(ctx context.Context, layerName string, freshness time.Duration) (*Legend, error)
}

// MetadataSource reads the legend stored alongside a cm layer.
type MetadataSource interface {
	CMLegend(ctx context.Context, layerName string) (*Legend, error)
}

type Resolver struct {
	Cache     Cache
	Metadata  MetadataSource
	Freshness time.Duration
	Logger    *slog.Logger
}

// Resolve always returns a non-empty legend sorted by threshold. Lookup
// failures are logged and fall back to the default legend.
func (r *Resolver) Resolve(ctx context.Context, layerName string, kind model.LayerKind) Legend {
	var (
		lg  *Legend
		err error
	)
	switch kind {
	case model.KindVector, model.KindRaster:
		if r.Cache != nil {
			lg, err = r.Cache.GetLegend(ctx, layerName, r.freshness())
		}
	case model.KindCM:
		if r.Metadata != nil {
			lg, err = r.Metadata.CMLegend(ctx, layerName)
		}
	}
	if err != nil && r.Logger != nil {
		r.Logger.WarnContext(ctx, "legend lookup failed; using default",
			"layer", layerName, "kind", kind.String(), "err", err)
	}
	if lg.Empty() {
		return Default(kind)
	}
	return lg.Sorted()
}

func (r *Resolver) freshness() time.Duration {
	if r.Freshness <= 0 {
		return DefaultFreshness
	}
	return r.Freshness
}
