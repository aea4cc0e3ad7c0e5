// Package model defines core domain types shared across the service.
package model

import "fmt"

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation matching wms bbox format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

func (b BBox) Width() float64  { return b.X2 - b.X1 }
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

type Size struct {
	Width  int
	Height int
}

func (s Size) Pixels() int { return s.Width * s.Height }

type Position struct {
	X, Y float64
}

// LayerKind is the kind encoded in a unique layer name.
type LayerKind int

const (
	KindVector LayerKind = iota
	KindRaster
	KindArea
	KindCM
)

func (k LayerKind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindRaster:
		return "raster"
	case KindArea:
		return "area"
	case KindCM:
		return "cm"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// OutputFormat pairs a WMS mime type with the encoder tag used to write it.
type OutputFormat struct {
	MIME string `validate:"required"`
	Tag  string `validate:"required"`
}

type MapRequest struct {
	Size       Size
	BBox       BBox
	Projection string
	Layers     []string
	Format     OutputFormat
}

type FeatureInfoRequest struct {
	MapRequest
	QueryLayers []string
	Position    Position
	InfoFormat  string
}
