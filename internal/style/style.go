// Package style compiles legends into renderer style rules.
package style

import (
	"image/color"
)

const (
	RasterStyleName  = "raster_style"
	PolygonStyleName = "vector_polygon_style"
	PointStyleName   = "vector_point_style"
	LineStyleName    = "line_style"
)

// Transparent is the colorizer default and the no-data color.
var Transparent = color.NRGBA{}

// Style is an ordered set of rules registered on a map under Name.
type Style struct {
	Name  string
	Rules []Rule
}

type Rule struct {
	Name       string
	Filter     Filter
	Symbolizer Symbolizer
}

// Symbolizer is one of PolygonSymbolizer, PointSymbolizer, LineSymbolizer
// or RasterSymbolizer.
type Symbolizer interface {
	symbolizer()
}

type PolygonSymbolizer struct {
	Fill    color.NRGBA
	Opacity float64
}

type PointSymbolizer struct {
	IconPath string
}

type LineSymbolizer struct {
	Stroke color.NRGBA
	Width  float64
}

type RasterSymbolizer struct {
	Colorizer Colorizer
}

func (PolygonSymbolizer) symbolizer() {}
func (PointSymbolizer) symbolizer()   {}
func (LineSymbolizer) symbolizer()    {}
func (RasterSymbolizer) symbolizer()  {}

// Match returns the first rule whose filter accepts props.
func (s Style) Match(props map[string]any) (Rule, bool) {
	for _, r := range s.Rules {
		if r.Filter.Match(props) {
			return r, true
		}
	}
	return Rule{}, false
}

// Renamed returns a copy registered under name.
func (s Style) Renamed(name string) Style {
	s.Name = name
	return s
}
