package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/enermaps/enermaps-wms/internal/composer"
	"github.com/enermaps/enermaps-wms/internal/core/config"
	"github.com/enermaps/enermaps-wms/internal/core/model"
	"github.com/enermaps/enermaps-wms/internal/layer"
	"github.com/enermaps/enermaps-wms/internal/layer/fsstore"
	"github.com/enermaps/enermaps-wms/internal/layer/fsstore/fsstoretest"
	"github.com/enermaps/enermaps-wms/internal/legend"
	"github.com/enermaps/enermaps-wms/internal/render"
	"github.com/enermaps/enermaps-wms/internal/render/canvas"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testWMS() config.WMS {
	return config.WMS{
		MaxSize:            1024 * 1024,
		AllowedProjections: []string{"epsg:3857", "epsg:4326"},
		AllowedOutputs: []model.OutputFormat{
			{MIME: "image/png", Tag: "png"},
			{MIME: "image/jpg", Tag: "jpg"},
		},
	}
}

func mount(svc Service) http.Handler {
	r := chi.NewRouter()
	h := HandleWMS(discard(), testWMS(), svc)
	r.Get("/wms", h)
	r.Get("/api/wms", h)
	return r
}

// newServer serves a data dir holding one area layer, one raster layer
// and one layer whose data was never written.
func newServer(t *testing.T) http.Handler {
	t.Helper()
	root := t.TempDir()
	fc := geojson.NewFeatureCollection()
	fc.Append(fsstoretest.Feature(orb.Polygon{fsstoretest.Square(0, 0, 5)}, map[string]any{"__variable__heat": 12.0}))
	fsstoretest.VectorLayer(t, root, "area/example", fc)
	fsstoretest.RasterLayer(t, root, "raster/42/heat", fsstoretest.RasterTile{
		File: "FID.tif", Footprint: fsstoretest.Square(0, 0, 10), Width: 4, Height: 4, Value: 7,
	})
	fsstoretest.EmptyLayer(t, root, "vector/7")

	store, err := fsstore.New(root, fsstore.Options{Logger: discard()})
	if err != nil {
		t.Fatalf("fsstore.New: %v", err)
	}
	c := composer.New(store, &legend.Resolver{Metadata: store, Logger: discard()}, canvas.New(discard()), discard())
	return mount(c)
}

func mapQuery(layers string) url.Values {
	return url.Values{
		"service": {"WMS"},
		"request": {"GetMap"},
		"layers":  {layers},
		"styles":  {""},
		"format":  {"image/png"},
		"version": {"1.1.1"},
		"width":   {"256"},
		"height":  {"256"},
		"srs":     {"EPSG:4326"},
		"bbox":    {"0,0,10,10"},
	}
}

func get(t *testing.T, h http.Handler, path string, q url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path+"?"+q.Encode(), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestWMS_MissingRequestIs400(t *testing.T) {
	rr := get(t, newServer(t), "/api/wms", url.Values{"service": {"WMS"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "request parameter needs to be set") {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestGetCapabilities_UppercaseParamsSameDocument(t *testing.T) {
	h := newServer(t)
	lower := get(t, h, "/api/wms", url.Values{"service": {"WMS"}, "request": {"GetCapabilities"}})
	upper := get(t, h, "/api/wms", url.Values{"SERVICE": {"WMS"}, "REQUEST": {"GetCapabilities"}})
	if lower.Code != http.StatusOK || upper.Code != http.StatusOK {
		t.Fatalf("status lower=%d upper=%d", lower.Code, upper.Code)
	}
	if !bytes.Equal(lower.Body.Bytes(), upper.Body.Bytes()) {
		t.Fatal("documents differ")
	}
	if ct := lower.Header().Get("Content-Type"); ct != "text/xml" {
		t.Fatalf("content-type=%q", ct)
	}
	body := lower.Body.String()
	for _, want := range []string{"<Name>area/example</Name>", "<Name>raster/42/heat</Name>", "<CRS>EPSG:3857</CRS>", "http://example.com/api/wms"} {
		if !strings.Contains(body, want) {
			t.Fatalf("capabilities missing %q", want)
		}
	}
}

func TestGetMap_ReturnsPNGOfRequestedSize(t *testing.T) {
	h := newServer(t)
	for _, name := range []string{"area/example", "raster/42/heat"} {
		t.Run(name, func(t *testing.T) {
			rr := get(t, h, "/wms", mapQuery(name))
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
				t.Fatalf("content-type=%q", ct)
			}
			img, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
			if err != nil {
				t.Fatalf("decode png: %v", err)
			}
			if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 256 {
				t.Fatalf("size=%v", img.Bounds())
			}
		})
	}
}

func TestGetMap_Errors(t *testing.T) {
	h := newServer(t)

	rr := get(t, h, "/wms", mapQuery("raster/42/unknown"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d want 404", rr.Code)
	}

	q := mapQuery("area/example")
	q.Set("width", "4096")
	q.Set("height", "4096")
	if rr := get(t, h, "/wms", q); rr.Code != http.StatusBadRequest {
		t.Fatalf("oversized status=%d want 400", rr.Code)
	}

	q = mapQuery("area/example")
	q.Set("bbox", "0,0,10")
	rr = get(t, h, "/wms", q)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "bounding box need four extremas") {
		t.Fatalf("bbox status=%d body=%q", rr.Code, rr.Body.String())
	}

	for _, bbox := range []string{"0,0,0,10", "1,1,1,1", "NaN,0,10,10", "0,0,Inf,10"} {
		q = mapQuery("area/example")
		q.Set("bbox", bbox)
		if rr := get(t, h, "/wms", q); rr.Code != http.StatusBadRequest {
			t.Fatalf("bbox %s status=%d want 400", bbox, rr.Code)
		}
	}
}

func TestGetMap_NothingDrawnIs204(t *testing.T) {
	rr := get(t, newServer(t), "/wms", mapQuery("vector/7"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d want 204", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("body of %d bytes", rr.Body.Len())
	}
}

func infoQuery(layers, queryLayers string) url.Values {
	q := mapQuery(layers)
	q.Del("format")
	q.Set("request", "GetFeatureInfo")
	q.Set("query_layers", queryLayers)
	q.Set("info_format", "application/json")
	q.Set("x", "64")
	q.Set("y", "192")
	return q
}

func TestGetFeatureInfo_ReturnsFeaturesAsJSON(t *testing.T) {
	rr := get(t, newServer(t), "/wms", infoQuery("area/example", "area/example"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	var out struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Features) != 1 || out.Features[0].Properties["__variable__heat"] != 12.0 {
		t.Fatalf("features=%+v", out.Features)
	}
}

func TestGetFeatureInfo_MissReturnsEmptyList(t *testing.T) {
	q := infoQuery("area/example", "area/example")
	q.Set("x", "250")
	q.Set("y", "5")
	rr := get(t, newServer(t), "/wms", q)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"features":[]}` {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestGetFeatureInfo_Rejections(t *testing.T) {
	h := newServer(t)

	rr := get(t, h, "/wms", infoQuery("area/example", "raster/42/heat"))
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "didnt match the query_layers") {
		t.Fatalf("mismatch status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = get(t, h, "/wms", infoQuery("raster/42/heat", "raster/42/heat"))
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "is not queryable") {
		t.Fatalf("raster status=%d body=%q", rr.Code, rr.Body.String())
	}

	q := infoQuery("area/example", "area/example")
	q.Set("info_format", "text/html")
	if rr := get(t, h, "/wms", q); rr.Code != http.StatusBadRequest {
		t.Fatalf("info_format status=%d want 400", rr.Code)
	}

	if rr := get(t, h, "/wms", infoQuery("area/missing", "area/missing")); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d want 404", rr.Code)
	}
}

type failingService struct{}

func (failingService) BuildImage(context.Context, model.MapRequest) (*image.NRGBA, error) {
	return nil, errors.New("disk on fire")
}

func (failingService) BuildQueryMap(context.Context, model.MapRequest) (*render.Map, error) {
	return nil, nil
}

func (failingService) QueryPoint(context.Context, *render.Map, int, float64, float64) ([]*geojson.Feature, error) {
	return nil, nil
}

func (failingService) Load(_ context.Context, name string) (*layer.Layer, error) {
	return &layer.Layer{Queryable: true}, nil
}

func (failingService) ListLayers(context.Context) ([]layer.Summary, error) {
	return nil, errors.New("listing failed")
}

func TestWMS_InternalErrorsAre500(t *testing.T) {
	h := mount(failingService{})
	rr := get(t, h, "/wms", mapQuery("area/example"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "disk on fire") {
		t.Fatal("internal error leaked to the client")
	}
	if rr := get(t, h, "/wms", url.Values{"request": {"GetCapabilities"}}); rr.Code != http.StatusInternalServerError {
		t.Fatalf("capabilities status=%d want 500", rr.Code)
	}
	// a nil query map means no queryable data
	if rr := get(t, h, "/wms", infoQuery("area/example", "area/example")); rr.Code != http.StatusBadRequest {
		t.Fatalf("feature info status=%d want 400", rr.Code)
	}
}
