package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)
)

// registered on the registry handed to Init
var (
	renderBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wms_render_batches_total",
			Help: "Render batches drawn, by layer kind.",
		},
		[]string{"kind"},
	)

	renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wms_render_duration_seconds",
			Help:    "Time spent rendering one layer, all batches included.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"kind"},
	)

	layersSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wms_layers_skipped_total",
			Help: "Requested layers that contributed nothing, by reason.",
		},
		[]string{"reason"},
	)

	legendLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legend_lookups_total",
			Help: "Legend cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of Redis operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	feedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legend_feed_messages_total",
			Help: "Legend feed messages by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers the service metrics on reg. The HTTP metrics are also
// registered there so a single registry serves everything.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		renderBatches, renderDuration, layersSkipped,
		legendLookups, cacheOps, redisOpDuration, feedMessages,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// ObserveRender records the batches drawn for one layer and how long they took.
func ObserveRender(kind string, batches int, durationSeconds float64) {
	renderBatches.WithLabelValues(kind).Add(float64(batches))
	renderDuration.WithLabelValues(kind).Observe(durationSeconds)
}

func IncLayerSkipped(reason string) {
	layersSkipped.WithLabelValues(reason).Inc()
}

// ObserveLegendLookup counts one lookup; outcome is hit, miss or error.
func ObserveLegendLookup(tier, outcome string) {
	legendLookups.WithLabelValues(tier, outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOps.WithLabelValues(op, result).Inc()
	redisOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	legendLookups.WithLabelValues("redis", "hit").Add(float64(n))
}

func AddCacheMisses(n int) {
	legendLookups.WithLabelValues("redis", "miss").Add(float64(n))
}

func IncFeedMessage(outcome string) {
	feedMessages.WithLabelValues(outcome).Inc()
}
