// Package canvas is a pure Go rendering backend drawing vector features
// with an anti-aliased rasterizer and warping colorized raster tiles.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/image/vector"

	"github.com/enermaps/enermaps-wms/internal/render"
	"github.com/enermaps/enermaps-wms/internal/style"
)

// QueryTolerance is the pixel distance within which points and lines
// answer a point query.
const QueryTolerance = 3.0

var errNoExtent = errors.New("map has no extent")

type Renderer struct {
	logger *slog.Logger
}

var _ render.Renderer = (*Renderer)(nil)

func New(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger}
}

// viewport maps projected coordinates to canvas pixels.
type viewport struct {
	ext  orb.Bound
	w, h float64
}

func newViewport(m *render.Map) (viewport, error) {
	if m.Extent.Max[0] <= m.Extent.Min[0] || m.Extent.Max[1] <= m.Extent.Min[1] {
		return viewport{}, errNoExtent
	}
	return viewport{ext: m.Extent, w: float64(m.Width), h: float64(m.Height)}, nil
}

func (v viewport) px(p orb.Point) (float32, float32) {
	x := (p[0] - v.ext.Min[0]) * v.w / (v.ext.Max[0] - v.ext.Min[0])
	y := (v.ext.Max[1] - p[1]) * v.h / (v.ext.Max[1] - v.ext.Min[1])
	return float32(x), float32(y)
}

func (v viewport) point(x, y float64) orb.Point {
	return orb.Point{
		v.ext.Min[0] + x*(v.ext.Max[0]-v.ext.Min[0])/v.w,
		v.ext.Max[1] - y*(v.ext.Max[1]-v.ext.Min[1])/v.h,
	}
}

// unitsPerPixel is the horizontal map distance covered by one pixel.
func (v viewport) unitsPerPixel() float64 {
	return (v.ext.Max[0] - v.ext.Min[0]) / v.w
}

func (r *Renderer) Render(ctx context.Context, m *render.Map, img *image.NRGBA) error {
	if img.Bounds().Dx() != m.Width || img.Bounds().Dy() != m.Height {
		return fmt.Errorf("canvas is %dx%d, map is %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), m.Width, m.Height)
	}
	vp, err := newViewport(m)
	if err != nil {
		return err
	}
	icons := iconCache{}
	for _, l := range m.Layers {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("render %s: %w", l.Name, err)
		}
		for _, name := range l.Styles {
			st, ok := m.Styles[name]
			if !ok {
				return fmt.Errorf("layer %s: style %q is not registered", l.Name, name)
			}
			switch l.Source {
			case render.SourceRaster:
				if err := r.drawRasters(img, vp, l, st); err != nil {
					return err
				}
			default:
				if err := drawFeatures(img, vp, l, st, icons); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func drawFeatures(img *image.NRGBA, vp viewport, l *render.Layer, st style.Style, icons iconCache) error {
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		for _, rule := range st.Rules {
			if !rule.Filter.Match(f.Properties) {
				continue
			}
			switch sym := rule.Symbolizer.(type) {
			case style.PolygonSymbolizer:
				fillPolygons(img, vp, f.Geometry, withOpacity(sym.Fill, sym.Opacity))
			case style.LineSymbolizer:
				strokeGeometry(img, vp, f.Geometry, sym.Stroke, sym.Width)
			case style.PointSymbolizer:
				icon, err := icons.get(sym.IconPath)
				if err != nil {
					return fmt.Errorf("layer %s: %w", l.Name, err)
				}
				drawIcons(img, vp, f.Geometry, icon)
			}
		}
	}
	return nil
}

func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	c.A = uint8(math.Round(float64(c.A) * math.Max(0, math.Min(1, opacity))))
	return c
}

func fillPolygons(img *image.NRGBA, vp viewport, g orb.Geometry, c color.NRGBA) {
	var polys []orb.Polygon
	switch t := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{t}
	case orb.MultiPolygon:
		polys = t
	case orb.Ring:
		polys = []orb.Polygon{{t}}
	case orb.Bound:
		polys = []orb.Polygon{t.ToPolygon()}
	default:
		return
	}
	if c.A == 0 {
		return
	}
	b := img.Bounds()
	ras := vector.NewRasterizer(b.Dx(), b.Dy())
	for _, p := range polys {
		for _, ring := range p {
			if len(ring) < 3 {
				continue
			}
			x, y := vp.px(ring[0])
			ras.MoveTo(x, y)
			for _, pt := range ring[1:] {
				x, y := vp.px(pt)
				ras.LineTo(x, y)
			}
			ras.ClosePath()
		}
	}
	ras.Draw(img, b, image.NewUniform(c), image.Point{})
}

func strokeGeometry(img *image.NRGBA, vp viewport, g orb.Geometry, c color.NRGBA, width float64) {
	var lines []orb.LineString
	switch t := g.(type) {
	case orb.LineString:
		lines = []orb.LineString{t}
	case orb.MultiLineString:
		lines = t
	case orb.Ring:
		lines = []orb.LineString{orb.LineString(t)}
	case orb.Polygon:
		for _, r := range t {
			lines = append(lines, orb.LineString(r))
		}
	case orb.MultiPolygon:
		for _, p := range t {
			for _, r := range p {
				lines = append(lines, orb.LineString(r))
			}
		}
	case orb.Bound:
		lines = []orb.LineString{orb.LineString(t.ToRing())}
	default:
		return
	}
	if width <= 0 || c.A == 0 {
		return
	}
	b := img.Bounds()
	ras := vector.NewRasterizer(b.Dx(), b.Dy())
	half := float32(width / 2)
	for _, ls := range lines {
		for i := 0; i+1 < len(ls); i++ {
			x0, y0 := vp.px(ls[i])
			x1, y1 := vp.px(ls[i+1])
			segment(ras, x0, y0, x1, y1, half)
		}
	}
	ras.Draw(img, b, image.NewUniform(c), image.Point{})
}

// segment adds a quad of the given half width around p0-p1. Every quad
// winds the same way so overlaps never cancel out.
func segment(ras *vector.Rasterizer, x0, y0, x1, y1, half float32) {
	dx, dy := x1-x0, y1-y0
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*half, dx/l*half
	ras.MoveTo(x0+nx, y0+ny)
	ras.LineTo(x1+nx, y1+ny)
	ras.LineTo(x1-nx, y1-ny)
	ras.LineTo(x0-nx, y0-ny)
	ras.ClosePath()
}

func drawIcons(img *image.NRGBA, vp viewport, g orb.Geometry, icon image.Image) {
	var pts []orb.Point
	switch t := g.(type) {
	case orb.Point:
		pts = []orb.Point{t}
	case orb.MultiPoint:
		pts = t
	default:
		pts = []orb.Point{g.Bound().Center()}
	}
	ib := icon.Bounds()
	for _, p := range pts {
		x, y := vp.px(p)
		at := image.Point{
			X: int(math.Round(float64(x) - float64(ib.Dx())/2)),
			Y: int(math.Round(float64(y) - float64(ib.Dy())/2)),
		}
		dst := image.Rectangle{Min: at, Max: at.Add(ib.Size())}
		draw.Draw(img, dst, icon, ib.Min, draw.Over)
	}
}

// QueryPoint returns the features of the indexed layer under pixel (x, y),
// with geometries in lon/lat.
func (r *Renderer) QueryPoint(ctx context.Context, m *render.Map, layerIndex int, x, y float64) ([]*geojson.Feature, error) {
	if layerIndex < 0 || layerIndex >= len(m.Layers) {
		return nil, fmt.Errorf("layer index %d out of range", layerIndex)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query point: %w", err)
	}
	vp, err := newViewport(m)
	if err != nil {
		return nil, err
	}
	return queryFeatures(m, m.Layers[layerIndex], vp.point(x, y), QueryTolerance*vp.unitsPerPixel())
}
