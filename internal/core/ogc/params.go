// Package ogc parses OGC WMS request parameters and renders the
// capabilities document.
package ogc

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/enermaps/enermaps-wms/internal/core/config"
	"github.com/enermaps/enermaps-wms/internal/core/model"
)

const (
	RequestGetMap          = "GetMap"
	RequestGetCapabilities = "GetCapabilities"
	RequestGetFeatureInfo  = "GetFeatureInfo"

	InfoFormatJSON = "application/json"
)

// RequestError is a client error answered with 400.
type RequestError struct {
	Field string
	Msg   string
}

func (e *RequestError) Error() string { return e.Msg }

func badRequest(field, format string, args ...any) *RequestError {
	return &RequestError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Params holds query parameters keyed by lower-cased name.
type Params map[string]string

// NormalizeParams lower-cases parameter names; the first value wins. The
// service parameter is always WMS.
func NormalizeParams(v url.Values) Params {
	p := make(Params, len(v)+1)
	for k, vals := range v {
		key := strings.ToLower(k)
		if _, seen := p[key]; seen || len(vals) == 0 {
			continue
		}
		p[key] = vals[0]
	}
	p["service"] = "WMS"
	return p
}

func (p Params) Get(key string) string { return strings.TrimSpace(p[key]) }

// Request is the requested operation name.
func (p Params) Request() string { return p.Get("request") }

// ParseGetMap validates a GetMap request. Checks run in order: format,
// size, bbox, projection, layers.
func ParseGetMap(p Params, cfg config.WMS) (model.MapRequest, error) {
	mime := p.Get("format")
	out, ok := cfg.Output(mime)
	if !ok {
		return model.MapRequest{}, badRequest("format", "format %s is not allowed", mime)
	}
	req, err := parseMap(p, cfg)
	if err != nil {
		return model.MapRequest{}, err
	}
	req.Format = out
	return req, nil
}

// ParseGetFeatureInfo validates a GetFeatureInfo request. Only JSON output
// is supported. The query layers must name exactly the requested layers.
func ParseGetFeatureInfo(p Params, cfg config.WMS) (model.FeatureInfoRequest, error) {
	if f := p.Get("info_format"); f != InfoFormatJSON {
		return model.FeatureInfoRequest{}, badRequest("info_format", "this endpoint doesn't support non json return value")
	}
	m, err := parseMap(p, cfg)
	if err != nil {
		return model.FeatureInfoRequest{}, err
	}
	query := splitList(p.Get("query_layers"))
	if !sameSet(query, m.Layers) {
		return model.FeatureInfoRequest{}, badRequest("query_layers", "Requested layer didnt match the query_layers parameter")
	}
	pos, err := parsePosition(p)
	if err != nil {
		return model.FeatureInfoRequest{}, err
	}
	return model.FeatureInfoRequest{
		MapRequest:  m,
		QueryLayers: query,
		Position:    pos,
		InfoFormat:  InfoFormatJSON,
	}, nil
}

func parseMap(p Params, cfg config.WMS) (model.MapRequest, error) {
	size, err := parseSize(p, cfg.MaxSize)
	if err != nil {
		return model.MapRequest{}, err
	}
	bb, err := parseBBox(p.Get("bbox"))
	if err != nil {
		return model.MapRequest{}, err
	}
	proj, err := parseProjection(p, cfg)
	if err != nil {
		return model.MapRequest{}, err
	}
	bb.SRID = proj
	layers := splitList(p.Get("layers"))
	if len(layers) == 0 {
		return model.MapRequest{}, badRequest("layers", "at least one layer is required")
	}
	return model.MapRequest{Size: size, BBox: bb, Projection: proj, Layers: layers}, nil
}

func parseSize(p Params, maxSize int) (model.Size, error) {
	w, err := positiveInt(p, "width")
	if err != nil {
		return model.Size{}, err
	}
	h, err := positiveInt(p, "height")
	if err != nil {
		return model.Size{}, err
	}
	s := model.Size{Width: w, Height: h}
	// compare per dimension first so the product cannot overflow
	if maxSize > 0 && (w > maxSize || h > maxSize || s.Pixels() > maxSize) {
		return model.Size{}, badRequest("size", "requested size %dx%d exceeds the maximum of %d pixels", w, h, maxSize)
	}
	return s, nil
}

func positiveInt(p Params, key string) (int, error) {
	raw := p.Get(key)
	if raw == "" {
		return 0, badRequest(key, "missing required parameter: %s", key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest(key, "%s must be a positive integer (got %q)", key, raw)
	}
	return n, nil
}

// parseBBox reads minx,miny,maxx,maxy and reorders reversed extrema. The
// result always has a positive width and height.
func parseBBox(raw string) (model.BBox, error) {
	parts := strings.Split(raw, ",")
	if raw == "" || len(parts) != 4 {
		return model.BBox{}, badRequest("bbox", "bounding box need four extremas")
	}
	var v [4]float64
	for i, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return model.BBox{}, badRequest("bbox", "bounding box extrema %q is not a number", s)
		}
		v[i] = f
	}
	b := model.BBox{
		X1: min(v[0], v[2]), Y1: min(v[1], v[3]),
		X2: max(v[0], v[2]), Y2: max(v[1], v[3]),
	}
	if b.X1 == b.X2 || b.Y1 == b.Y2 {
		return model.BBox{}, badRequest("bbox", "bounding box %s is empty", raw)
	}
	return b, nil
}

// srs (1.1.1) or crs (1.3.0), lower-cased
func parseProjection(p Params, cfg config.WMS) (string, error) {
	raw := p.Get("srs")
	if raw == "" {
		raw = p.Get("crs")
	}
	if raw == "" {
		return "", badRequest("srs", "missing required parameter: srs")
	}
	proj := strings.ToLower(raw)
	if !cfg.ProjectionAllowed(proj) {
		return "", badRequest("srs", "projection %s is not allowed", proj)
	}
	return proj, nil
}

// x/y with the 1.3.0 i/j names accepted as aliases
func parsePosition(p Params) (model.Position, error) {
	x, err := coordinate(p, "x", "i")
	if err != nil {
		return model.Position{}, err
	}
	y, err := coordinate(p, "y", "j")
	if err != nil {
		return model.Position{}, err
	}
	return model.Position{X: x, Y: y}, nil
}

func coordinate(p Params, key, alias string) (float64, error) {
	raw := p.Get(key)
	if raw == "" {
		raw = p.Get(alias)
	}
	if raw == "" {
		return 0, badRequest(key, "missing required parameter: %s", key)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, badRequest(key, "%s must be a number (got %q)", key, raw)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, s := range a {
		as[s] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, ok := as[s]; !ok {
			return false
		}
		bs[s] = struct{}{}
	}
	return len(as) == len(bs)
}
