// Package router dispatches WMS requests and maps their failures onto
// HTTP status codes.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/enermaps/enermaps-wms/internal/core/config"
	"github.com/enermaps/enermaps-wms/internal/core/model"
	"github.com/enermaps/enermaps-wms/internal/core/observability"
	"github.com/enermaps/enermaps-wms/internal/core/ogc"
	"github.com/enermaps/enermaps-wms/internal/layer"
	"github.com/enermaps/enermaps-wms/internal/logger"
	"github.com/enermaps/enermaps-wms/internal/render"
)

const route = "/wms"

// Service builds the maps behind the WMS operations.
type Service interface {
	BuildImage(ctx context.Context, req model.MapRequest) (*image.NRGBA, error)
	BuildQueryMap(ctx context.Context, req model.MapRequest) (*render.Map, error)
	QueryPoint(ctx context.Context, m *render.Map, layerIndex int, x, y float64) ([]*geojson.Feature, error)
	Load(ctx context.Context, name string) (*layer.Layer, error)
	ListLayers(ctx context.Context) ([]layer.Summary, error)
}

// HandleWMS serves GetCapabilities, GetMap and GetFeatureInfo.
func HandleWMS(log *slog.Logger, cfg config.WMS, svc Service) http.HandlerFunc {
	h := &wmsHandler{log: log, cfg: cfg, svc: svc}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		p := ogc.NormalizeParams(r.URL.Query())
		op := p.Request()
		ctx := logger.WithOperation(r.Context(), op)

		var err error
		switch op {
		case ogc.RequestGetCapabilities:
			err = h.getCapabilities(ctx, sw, r)
		case ogc.RequestGetMap:
			err = h.getMap(ctx, sw, p)
		case ogc.RequestGetFeatureInfo:
			err = h.getFeatureInfo(ctx, sw, p)
		default:
			err = &ogc.RequestError{
				Field: "request",
				Msg:   fmt.Sprintf("Couldn't find the requested method %s, request parameter needs to be set", op),
			}
		}
		if err != nil {
			h.writeError(ctx, sw, err)
		}
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type wmsHandler struct {
	log *slog.Logger
	cfg config.WMS
	svc Service
}

func (h *wmsHandler) getCapabilities(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	summaries, err := h.svc.ListLayers(ctx)
	if err != nil {
		return fmt.Errorf("list layers: %w", err)
	}
	layers := make([]ogc.CapabilityLayer, 0, len(summaries))
	for _, s := range summaries {
		layers = append(layers, ogc.CapabilityLayer{Name: s.Name, Queryable: s.Queryable})
	}
	doc, err := ogc.Capabilities(ogc.BaseURL(r), h.cfg, layers)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(doc)
	return nil
}

func (h *wmsHandler) getMap(ctx context.Context, w http.ResponseWriter, p ogc.Params) error {
	req, err := ogc.ParseGetMap(p, h.cfg)
	if err != nil {
		return err
	}
	ctx = logger.WithLayers(ctx, strings.Join(req.Layers, ","))

	img, err := h.svc.BuildImage(ctx, req)
	if err != nil {
		return err
	}
	if img == nil {
		h.log.DebugContext(ctx, "no layer contributed content")
		w.WriteHeader(http.StatusNoContent)
		return nil
	}

	var buf bytes.Buffer
	if err := render.Encode(&buf, img, req.Format.Tag); err != nil {
		return err
	}
	w.Header().Set("Content-Type", req.Format.MIME)
	_, _ = w.Write(buf.Bytes())
	return nil
}

type featureInfo struct {
	Features []*geojson.Feature `json:"features"`
}

func (h *wmsHandler) getFeatureInfo(ctx context.Context, w http.ResponseWriter, p ogc.Params) error {
	req, err := ogc.ParseGetFeatureInfo(p, h.cfg)
	if err != nil {
		return err
	}
	ctx = logger.WithLayers(ctx, strings.Join(req.Layers, ","))

	for _, name := range req.Layers {
		l, err := h.svc.Load(ctx, name)
		if err != nil {
			return err
		}
		if !l.Queryable {
			return &ogc.RequestError{
				Field: "query_layers",
				Msg:   fmt.Sprintf("Requested query layer %s is not queryable.", name),
			}
		}
	}

	m, err := h.svc.BuildQueryMap(ctx, req.MapRequest)
	if err != nil {
		return err
	}
	if m == nil {
		return &ogc.RequestError{Field: "layers", Msg: "no queryable data for the requested layers"}
	}

	out := featureInfo{Features: make([]*geojson.Feature, 0)}
	for i := range m.Layers {
		fs, err := h.svc.QueryPoint(ctx, m, i, req.Position.X, req.Position.Y)
		if err != nil {
			return fmt.Errorf("query layer %s: %w", m.Layers[i].Name, err)
		}
		out.Features = append(out.Features, fs...)
	}

	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	w.Header().Set("Content-Type", ogc.InfoFormatJSON)
	_, _ = w.Write(b)
	return nil
}

func (h *wmsHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var re *ogc.RequestError
	switch {
	case errors.As(err, &re):
		h.log.InfoContext(ctx, "bad wms request", "field", re.Field, "err", re.Msg)
		http.Error(w, re.Msg, http.StatusBadRequest)
	case errors.Is(err, layer.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.log.ErrorContext(ctx, "wms request failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
