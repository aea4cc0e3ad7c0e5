package style

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/enermaps/enermaps-wms/internal/core/model"
	"github.com/enermaps/enermaps-wms/internal/legend"
)

// Geometry is the dominant geometry class of a vector data source.
type Geometry int

const (
	GeometryPolygon Geometry = iota
	GeometryPoint
	GeometryLine
)

var (
	ErrEmptyLegend   = errors.New("legend has no entries")
	ErrIconsMismatch = errors.New("one legend icon per entry is required")
)

var black = color.NRGBA{A: 255}

// Compile builds the legend driven style of a layer. Area layers have no
// legend style and yield nil.
func Compile(kind model.LayerKind, geom Geometry, variable string, lg legend.Legend, icons []string) (*Style, error) {
	switch kind {
	case model.KindRaster, model.KindCM:
		s, err := RasterStyle(lg)
		if err != nil {
			return nil, err
		}
		return &s, nil
	case model.KindVector:
		var (
			s   Style
			err error
		)
		if geom == GeometryPolygon {
			s, err = PolygonStyle(variable, lg)
		} else {
			s, err = PointStyle(variable, lg, icons)
		}
		if err != nil {
			return nil, err
		}
		return &s, nil
	default:
		return nil, nil
	}
}

// RasterStyle builds a color ramp over the legend thresholds. Categorical
// legends step between integer class values, numeric legends interpolate.
func RasterStyle(lg legend.Legend) (Style, error) {
	if lg.Empty() {
		return Style{}, ErrEmptyLegend
	}
	lg = lg.Sorted()
	categorical := lg.Categorical()

	cz := Colorizer{Default: Transparent, Stops: make([]Stop, 0, len(lg.Symbology)+1)}
	for _, e := range lg.Symbology {
		stop := Stop{Value: e.Value, Color: entryColor(e), Mode: Linear}
		if categorical {
			stop.Value = math.Trunc(e.Value)
			stop.Mode = Discrete
		}
		cz.Stops = append(cz.Stops, stop)
	}
	cz.Stops = append(cz.Stops, Stop{Value: NoDataValue, Color: Transparent, Mode: Discrete})

	return Style{
		Name: RasterStyleName,
		Rules: []Rule{{
			Name:       RasterStyleName,
			Symbolizer: RasterSymbolizer{Colorizer: cz},
		}},
	}, nil
}

// PolygonStyle fills each feature with the color of the legend interval
// holding its variable value.
func PolygonStyle(variable string, lg legend.Legend) (Style, error) {
	if lg.Empty() {
		return Style{}, ErrEmptyLegend
	}
	lg = lg.Sorted()
	filters := partition(variable, lg)
	out := Style{Name: PolygonStyleName, Rules: make([]Rule, 0, len(filters))}
	for i, f := range filters {
		e := lg.Symbology[i]
		fill := entryColor(e)
		fill.A = 255
		out.Rules = append(out.Rules, Rule{
			Name:       ruleName(PolygonStyleName, i),
			Filter:     f,
			Symbolizer: PolygonSymbolizer{Fill: fill, Opacity: clampUnit(e.Opacity)},
		})
	}
	return out, nil
}

// PointStyle draws the pre-rendered icon of the matching legend step.
func PointStyle(variable string, lg legend.Legend, icons []string) (Style, error) {
	if lg.Empty() {
		return Style{}, ErrEmptyLegend
	}
	if len(icons) != len(lg.Symbology) {
		return Style{}, fmt.Errorf("%w: %d icons for %d entries", ErrIconsMismatch, len(icons), len(lg.Symbology))
	}
	lg = lg.Sorted()
	filters := partition(variable, lg)
	out := Style{Name: PointStyleName, Rules: make([]Rule, 0, len(filters))}
	for i, f := range filters {
		out.Rules = append(out.Rules, Rule{
			Name:       ruleName(PointStyleName, i),
			Filter:     f,
			Symbolizer: PointSymbolizer{IconPath: icons[i]},
		})
	}
	return out, nil
}

// LineStyle outlines features in black. With a variable only features
// carrying a value for it are outlined.
func LineStyle(variable string) Style {
	f := Filter{}
	if variable != "" {
		f = Filter{Variable: variable, NotNull: true}
	}
	return Style{
		Name: LineStyleName,
		Rules: []Rule{{
			Name:       LineStyleName,
			Filter:     f,
			Symbolizer: LineSymbolizer{Stroke: black, Width: 1},
		}},
	}
}

// partition splits the value line into [t0,t1) ... [tn-2,tn-1) [tn-1,+inf).
func partition(variable string, lg legend.Legend) []Filter {
	n := len(lg.Symbology)
	out := make([]Filter, 0, n)
	for i := 0; i < n-1; i++ {
		out = append(out, Filter{
			Variable: variable,
			Min:      ptr(lg.Symbology[i].Value),
			Max:      ptr(lg.Symbology[i+1].Value),
		})
	}
	out = append(out, Filter{Variable: variable, Min: ptr(lg.Symbology[n-1].Value)})
	return out
}

func entryColor(e legend.Entry) color.NRGBA {
	return color.NRGBA{R: e.Red, G: e.Green, B: e.Blue, A: uint8(math.Round(clampUnit(e.Opacity) * 255))}
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func ruleName(style string, i int) string {
	return fmt.Sprintf("%s_%d", style, i)
}
