// Package metrics owns the Prometheus registry served on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enermaps/enermaps-wms/internal/core/observability"
)

// BuildInfo is stamped into the binary with -ldflags.
type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

type Config struct {
	// Enabled registers the WMS, legend cache and feed collectors next to
	// the runtime ones.
	Enabled bool
	Path    string
	Build   BuildInfo
}

// Provider is the registry of one server process.
type Provider struct {
	path string
	reg  *prometheus.Registry
}

func Init(cfg Config) *Provider {
	p := &Provider{path: cfg.Path, reg: prometheus.NewRegistry()}
	if p.path == "" {
		p.path = "/metrics"
	}
	p.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo(cfg.Build),
	)
	observability.Init(p.reg, cfg.Enabled)
	return p
}

// app_build_info is a constant 1 labelled with the build metadata.
func buildInfo(b BuildInfo) prometheus.Collector {
	if b.Version == "" {
		b.Version = "dev"
	}
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "app_build_info",
		Help: "Build info for this binary (value is always 1).",
		ConstLabels: prometheus.Labels{
			"version":    b.Version,
			"revision":   b.Revision,
			"build_date": b.BuildDate,
		},
	}, func() float64 { return 1 })
}

// Path is where Handler should be mounted.
func (p *Provider) Path() string { return p.path }

// Handler serves the registry and counts its own scrapes.
func (p *Provider) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(p.reg,
		promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}))
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
