// Package layer resolves unique layer names into stored geodata.
package layer

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/enermaps/enermaps-wms/internal/core/model"
	"github.com/enermaps/enermaps-wms/internal/legend"
)

var ErrNotFound = errors.New("layer not found")

type Layer struct {
	Name      Name
	Kind      Kind
	Queryable bool
	Dir       string
	Title     string
}

// ID is the unique layer name as it appears in requests.
func (l *Layer) ID() string { return l.Name.String() }

type Summary struct {
	Name      string
	Title     string
	Queryable bool
}

// Queryable reports whether feature info can be requested on a kind.
func Queryable(k Kind) bool {
	return k == KindVector || k == KindArea
}

// RasterTile is one raster file of a layer with its footprint in the
// request projection.
type RasterTile struct {
	Path      string
	Footprint orb.Polygon
	Bound     orb.Bound
}

// Data holds the elements of a layer intersecting a bbox, in the request
// projection. A layer carries either features or raster tiles.
type Data struct {
	Features []*geojson.Feature
	Rasters  []RasterTile
}

func (d Data) Len() int { return len(d.Features) + len(d.Rasters) }

// Slice returns elements [i, j) of whichever element list is populated.
func (d Data) Slice(i, j int) Data {
	if len(d.Features) > 0 {
		return Data{Features: d.Features[i:j]}
	}
	return Data{Rasters: d.Rasters[i:j]}
}

type Store interface {
	Load(ctx context.Context, name string) (*Layer, error)
	ListLayers(ctx context.Context) ([]Summary, error)
	// Exists reports whether the layer data has been written yet.
	Exists(l *Layer) bool
	Data(ctx context.Context, l *Layer, bb model.BBox, projection string) (Data, error)
	CMLegend(ctx context.Context, name string) (*legend.Legend, error)
	// LegendImages renders one icon per legend entry into a fresh
	// directory the caller removes.
	LegendImages(l *Layer, lg legend.Legend) (paths []string, dir string, err error)
}
