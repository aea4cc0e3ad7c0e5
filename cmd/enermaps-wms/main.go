package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/enermaps/enermaps-wms/internal/cache/legendcache"
	"github.com/enermaps/enermaps-wms/internal/cache/redisstore"
	"github.com/enermaps/enermaps-wms/internal/composer"
	"github.com/enermaps/enermaps-wms/internal/core/config"
	"github.com/enermaps/enermaps-wms/internal/core/httpclient"
	"github.com/enermaps/enermaps-wms/internal/core/server"
	"github.com/enermaps/enermaps-wms/internal/datasetapi"
	"github.com/enermaps/enermaps-wms/internal/layer/fsstore"
	"github.com/enermaps/enermaps-wms/internal/legend"
	"github.com/enermaps/enermaps-wms/internal/legendfeed/kafkaconsumer"
	"github.com/enermaps/enermaps-wms/internal/logger"
	"github.com/enermaps/enermaps-wms/internal/metrics"
	"github.com/enermaps/enermaps-wms/internal/render/canvas"
)

// set with -ldflags "-X main.Version=..."
var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
)

func main() {
	root := &cobra.Command{
		Use:           "enermaps-wms",
		Short:         "WMS server for the EnerMaps energy datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the WMS endpoint (default)",
			RunE:  runServe,
		},
		layersCmd(),
		legendCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "enermaps-wms %s %s %s\n", Version, Revision, BuildDate)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config, component string) *slog.Logger {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "enermaps-wms",
		Component: component,
	}, os.Stdout)
	return logger.NewSlog(&zl)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg, "wms")
	log.Info("starting enermaps-wms",
		"addr", cfg.Addr,
		"version", Version,
		"data_dir", cfg.DataDir,
		"redis", cfg.RedisAddr != "",
		"legend_feed", cfg.LegendFeed.Enabled)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := fsstore.New(cfg.DataDir, fsstore.Options{
		H3Res:     cfg.H3Res,
		CacheSize: cfg.LayerCacheSize,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	api, err := datasetapi.New(log, httpclient.NewOutbound(httpclient.Options{
		Timeout:   cfg.DatasetAPITimeout,
		UserAgent: "enermaps-wms/" + Version,
	}), cfg.DatasetAPIURL)
	if err != nil {
		return fmt.Errorf("dataset api: %w", err)
	}

	// nil interface when Redis is not configured
	var shared legendcache.Shared
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr, redisOptions(cfg)...)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		shared = rc
	}
	legends, err := legendcache.New(api, shared, legendcache.Options{
		Size:      cfg.LegendLRUSize,
		OpTimeout: cfg.CacheOpTimeout,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	resolver := &legend.Resolver{
		Cache:     legends,
		Metadata:  store,
		Freshness: cfg.LegendFreshness,
		Logger:    log,
	}
	comp := composer.New(store, resolver, canvas.New(log), log)

	deps := server.Deps{
		WMS: comp,
		Metrics: metrics.Init(metrics.Config{
			Enabled: cfg.MetricsEnabled,
			Build:   metrics.BuildInfo{Version: Version, Revision: Revision, BuildDate: BuildDate},
		}),
	}

	if cfg.LegendFeed.Enabled {
		kc := kafkaconsumer.NewConfig(splitCSV(cfg.LegendFeed.Brokers), cfg.LegendFeed.Topic, cfg.LegendFeed.GroupID)
		feed := kafkaconsumer.New(kc, newLogger(cfg, "legend_feed"), legends, cfg.LegendFreshness)
		deps.Ready = feed
		go func() {
			if err := feed.Start(ctx); err != nil {
				log.Error("legend feed stopped", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg, log, deps); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func redisOptions(cfg config.Config) []redisstore.Option {
	opts := []redisstore.Option{
		redisstore.WithReadTimeout(cfg.CacheOpTimeout),
		redisstore.WithWriteTimeout(cfg.CacheOpTimeout),
	}
	if cfg.RedisPoolSize > 0 {
		opts = append(opts, redisstore.WithPoolSize(cfg.RedisPoolSize))
	}
	return opts
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
