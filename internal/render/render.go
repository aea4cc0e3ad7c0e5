// Package render defines the map object handed to a rendering backend.
package render

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/enermaps/enermaps-wms/internal/layer"
	"github.com/enermaps/enermaps-wms/internal/style"
)

type Source int

const (
	SourceVector Source = iota
	SourceRaster
)

// Layer is a data source with the names of the styles drawing it.
type Layer struct {
	Name      string
	Source    Source
	Features  []*geojson.Feature
	Rasters   []layer.RasterTile
	Styles    []string
	Queryable bool
}

// Fields returns the sorted property names present on the features.
func (l *Layer) Fields() []string {
	seen := map[string]struct{}{}
	for _, f := range l.Features {
		for k := range f.Properties {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// VariableField returns the first variable column name without its
// prefix, or "" when the features carry none.
func (l *Layer) VariableField() string {
	for _, f := range l.Fields() {
		if strings.HasPrefix(f, style.VariablePrefix) {
			return strings.TrimPrefix(f, style.VariablePrefix)
		}
	}
	return ""
}

// GeometryType classifies the layer by its first feature.
func (l *Layer) GeometryType() style.Geometry {
	for _, f := range l.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
			return style.GeometryPolygon
		case orb.LineString, orb.MultiLineString:
			return style.GeometryLine
		case nil:
			continue
		default:
			return style.GeometryPoint
		}
	}
	return style.GeometryPoint
}

// Map is an un-rendered map: canvas size, projection, registered styles,
// ordered layers and the box the canvas covers.
type Map struct {
	Width      int
	Height     int
	Projection string
	Styles     map[string]style.Style
	Layers     []*Layer
	Extent     orb.Bound
}

func NewMap(width, height int, projection string) *Map {
	return &Map{
		Width:      width,
		Height:     height,
		Projection: projection,
		Styles:     map[string]style.Style{},
	}
}

func (m *Map) AppendStyle(name string, s style.Style) {
	m.Styles[name] = s.Renamed(name)
}

func (m *Map) AddLayer(l *Layer) { m.Layers = append(m.Layers, l) }

func (m *Map) ZoomToBox(b orb.Bound) { m.Extent = b }

// Renderer draws maps. Render composites onto img, keeping what earlier
// calls drew.
type Renderer interface {
	Render(ctx context.Context, m *Map, img *image.NRGBA) error
	QueryPoint(ctx context.Context, m *Map, layerIndex int, x, y float64) ([]*geojson.Feature, error)
}

// Encode writes img in the format named by an output format tag.
func Encode(w io.Writer, img image.Image, tag string) error {
	switch strings.ToLower(tag) {
	case "png":
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		return nil
	case "jpg", "jpeg":
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: 90}); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported image format %q", tag)
	}
}
