// Package composer assembles WMS maps: it resolves the requested layers,
// styles them from their legends and renders them batch by batch onto a
// single image.
package composer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/enermaps/enermaps-wms/internal/core/model"
	"github.com/enermaps/enermaps-wms/internal/core/observability"
	"github.com/enermaps/enermaps-wms/internal/layer"
	"github.com/enermaps/enermaps-wms/internal/legend"
	"github.com/enermaps/enermaps-wms/internal/render"
	"github.com/enermaps/enermaps-wms/internal/style"
)

// BatchSize caps the elements drawn by one render call.
const BatchSize = 9

type Composer struct {
	Store    layer.Store
	Legends  *legend.Resolver
	Renderer render.Renderer
	Logger   *slog.Logger
}

func New(store layer.Store, legends *legend.Resolver, renderer render.Renderer, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{Store: store, Legends: legends, Renderer: renderer, Logger: logger}
}

// Batches splits n elements into [start, end) ranges of at most size.
func Batches(n, size int) [][2]int {
	if n <= 0 || size <= 0 {
		return nil
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for i := 0; i < n; i += size {
		out = append(out, [2]int{i, min(i+size, n)})
	}
	return out
}

// BuildImage renders every requested layer onto one canvas. It returns nil
// when no layer could be drawn. A layer without data in the bbox still
// counts as drawn.
func (c *Composer) BuildImage(ctx context.Context, req model.MapRequest) (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, req.Size.Width, req.Size.Height))

	var iconDirs []string
	defer func() {
		for _, dir := range iconDirs {
			if err := os.RemoveAll(dir); err != nil {
				c.Logger.WarnContext(ctx, "remove legend icons", "dir", dir, "err", err)
			}
		}
	}()

	drawn := false
	for i, name := range req.Layers {
		ok, err := c.addLayer(ctx, req, i, name, img, &iconDirs)
		if err != nil {
			return nil, err
		}
		drawn = drawn || ok
	}
	if !drawn {
		return nil, nil
	}
	return img, nil
}

func (c *Composer) addLayer(ctx context.Context, req model.MapRequest, index int, name string, img *image.NRGBA, iconDirs *[]string) (bool, error) {
	l, err := c.Store.Load(ctx, name)
	if err != nil {
		return false, err
	}
	if !c.Store.Exists(l) {
		c.Logger.DebugContext(ctx, "layer storage missing; skipped", "layer", name)
		observability.IncLayerSkipped("no_storage")
		return false, nil
	}

	data, err := c.Store.Data(ctx, l, req.BBox, req.Projection)
	if err != nil {
		return false, fmt.Errorf("layer %s data: %w", name, err)
	}
	if data.Len() == 0 {
		observability.IncLayerSkipped("empty")
		return true, nil
	}

	var (
		line     *style.Style
		lineName string
	)
	switch l.Kind {
	case layer.KindVector:
		s := style.LineStyle(l.Name.Variable)
		line = &s
	case layer.KindArea:
		s := style.LineStyle("")
		line = &s
	}
	if line != nil {
		lineName = suffixed(line.Name, index)
	}

	var (
		legendStyle     *style.Style
		legendStyleName string
	)
	start := time.Now()
	batches := Batches(data.Len(), BatchSize)
	for bi, b := range batches {
		m := render.NewMap(req.Size.Width, req.Size.Height, req.Projection)
		rl := renderLayer(l, data.Slice(b[0], b[1]))

		if bi == 0 {
			legendStyle, err = c.legendStyle(ctx, l, rl, iconDirs)
			if err != nil {
				return false, fmt.Errorf("layer %s style: %w", name, err)
			}
			if legendStyle != nil {
				legendStyleName = suffixed(legendStyle.Name, index)
			}
		}

		if line != nil {
			m.AppendStyle(lineName, *line)
			rl.Styles = append(rl.Styles, lineName)
		}
		if legendStyle != nil {
			m.AppendStyle(legendStyleName, *legendStyle)
			rl.Styles = append(rl.Styles, legendStyleName)
		}
		m.AddLayer(rl)
		m.ZoomToBox(bound(req.BBox))

		if err := c.Renderer.Render(ctx, m, img); err != nil {
			return false, fmt.Errorf("render %s batch %d: %w", name, bi, err)
		}
	}
	observability.ObserveRender(l.Kind.String(), len(batches), time.Since(start).Seconds())
	c.Logger.DebugContext(ctx, "layer rendered",
		"layer", name, "elements", data.Len(), "batches", len(batches))
	return true, nil
}

// legendStyle derives the data driven style from the first render layer
// of a layer. Area layers have none.
func (c *Composer) legendStyle(ctx context.Context, l *layer.Layer, rl *render.Layer, iconDirs *[]string) (*style.Style, error) {
	switch l.Kind {
	case layer.KindVector, layer.KindRaster, layer.KindCM:
	default:
		return nil, nil
	}
	lg := c.Legends.Resolve(ctx, l.ID(), l.Kind)

	variable := l.Name.Variable
	if variable == "" {
		variable = rl.VariableField()
	}
	geom := rl.GeometryType()

	var icons []string
	if l.Kind == layer.KindVector && geom != style.GeometryPolygon {
		paths, dir, err := c.Store.LegendImages(l, lg)
		if err != nil {
			return nil, fmt.Errorf("legend images: %w", err)
		}
		*iconDirs = append(*iconDirs, dir)
		icons = paths
	}
	return style.Compile(l.Kind, geom, variable, lg, icons)
}

// BuildQueryMap builds the un-rendered map answering feature info
// requests. It returns nil when a layer is neither vector nor area or
// when no layer has stored data.
func (c *Composer) BuildQueryMap(ctx context.Context, req model.MapRequest) (*render.Map, error) {
	m := render.NewMap(req.Size.Width, req.Size.Height, req.Projection)
	for _, name := range req.Layers {
		n, err := layer.ParseName(name)
		if err != nil || (n.Kind != layer.KindVector && n.Kind != layer.KindArea) {
			return nil, nil
		}
		l, err := c.Store.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		if !c.Store.Exists(l) {
			return nil, nil
		}
		data, err := c.Store.Data(ctx, l, req.BBox, req.Projection)
		if err != nil {
			return nil, fmt.Errorf("layer %s data: %w", name, err)
		}
		m.AddLayer(renderLayer(l, data))
	}
	if len(m.Layers) == 0 {
		return nil, nil
	}
	m.ZoomToBox(bound(req.BBox))
	return m, nil
}

func renderLayer(l *layer.Layer, d layer.Data) *render.Layer {
	rl := &render.Layer{
		Name:      l.ID(),
		Features:  d.Features,
		Rasters:   d.Rasters,
		Queryable: l.Queryable,
	}
	if len(d.Rasters) > 0 {
		rl.Source = render.SourceRaster
	}
	return rl
}

func suffixed(name string, index int) string {
	return name + "_" + strconv.Itoa(index)
}

func bound(bb model.BBox) orb.Bound {
	return orb.Bound{Min: orb.Point{bb.X1, bb.Y1}, Max: orb.Point{bb.X2, bb.Y2}}
}

// QueryPoint answers a feature info query on a map built by BuildQueryMap.
func (c *Composer) QueryPoint(ctx context.Context, m *render.Map, layerIndex int, x, y float64) ([]*geojson.Feature, error) {
	return c.Renderer.QueryPoint(ctx, m, layerIndex, x, y)
}

func (c *Composer) Load(ctx context.Context, name string) (*layer.Layer, error) {
	return c.Store.Load(ctx, name)
}

func (c *Composer) ListLayers(ctx context.Context) ([]layer.Summary, error) {
	return c.Store.ListLayers(ctx)
}
