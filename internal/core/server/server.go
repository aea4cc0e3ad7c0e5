package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/enermaps/enermaps-wms/internal/core/config"
	"github.com/enermaps/enermaps-wms/internal/core/health"
	middleware "github.com/enermaps/enermaps-wms/internal/core/middleware"
	"github.com/enermaps/enermaps-wms/internal/core/router"
	"github.com/enermaps/enermaps-wms/internal/metrics"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	WMS     router.Service
	Metrics *metrics.Provider
	// Ready backs /readyz; nil means always ready.
	Ready health.ReadinessReporter
}

// Handler builds the routes served by Run.
func Handler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Ready))
	if d.Metrics != nil {
		r.Get(d.Metrics.Path(), d.Metrics.Handler().ServeHTTP)
	}

	wms := router.HandleWMS(logger, cfg.WMS, d.WMS)
	r.Get("/wms", wms)
	r.Get("/api/wms", wms)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
