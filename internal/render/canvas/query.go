package canvas

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/enermaps/enermaps-wms/internal/geo"
	"github.com/enermaps/enermaps-wms/internal/render"
)

func queryFeatures(m *render.Map, l *render.Layer, p orb.Point, tolerance float64) ([]*geojson.Feature, error) {
	toWGS84, err := geo.ToWGS84(m.Projection)
	if err != nil {
		return nil, err
	}
	out := make([]*geojson.Feature, 0)
	for _, f := range l.Features {
		if f.Geometry == nil || !hit(f.Geometry, p, tolerance) {
			continue
		}
		out = append(out, &geojson.Feature{
			ID:         f.ID,
			Type:       f.Type,
			Geometry:   geo.Geometry(f.Geometry, toWGS84),
			Properties: f.Properties.Clone(),
		})
	}
	return out, nil
}

func hit(g orb.Geometry, p orb.Point, tolerance float64) bool {
	switch t := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(t, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(t, p)
	case orb.Ring:
		return planar.RingContains(t, p)
	case orb.Bound:
		return t.Contains(p)
	default:
		return planar.DistanceFrom(g, p) <= tolerance
	}
}
