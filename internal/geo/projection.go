// Package geo converts geometries between the projections the WMS accepts.
package geo

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	EPSG4326 = "epsg:4326"
	EPSG3857 = "epsg:3857"
)

// mercator latitude limit, beyond it the projection diverges
const maxMercatorLat = 85.05112878

var aliases = map[string]string{
	"epsg:4326":   EPSG4326,
	"crs:84":      EPSG4326,
	"epsg:3857":   EPSG3857,
	"epsg:900913": EPSG3857,
	"epsg:102100": EPSG3857,
}

// Normalize lower-cases a projection identifier and resolves known aliases.
func Normalize(srs string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(srs))
	key = strings.TrimPrefix(key, "+init=")
	if p, ok := aliases[key]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unsupported projection %q", srs)
}

// FromWGS84 returns the projection from lon/lat into srs.
func FromWGS84(srs string) (orb.Projection, error) {
	p, err := Normalize(srs)
	if err != nil {
		return nil, err
	}
	if p == EPSG3857 {
		return func(pt orb.Point) orb.Point {
			pt[1] = clampLat(pt[1])
			return project.WGS84.ToMercator(pt)
		}, nil
	}
	return identity, nil
}

// ToWGS84 returns the projection from srs back into lon/lat.
func ToWGS84(srs string) (orb.Projection, error) {
	p, err := Normalize(srs)
	if err != nil {
		return nil, err
	}
	if p == EPSG3857 {
		return project.Mercator.ToWGS84, nil
	}
	return identity, nil
}

// Geometry projects a copy of g, the input is left untouched.
func Geometry(g orb.Geometry, proj orb.Projection) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), proj)
}

// Bound projects the four corners of b and returns their envelope.
func Bound(b orb.Bound, proj orb.Projection) orb.Bound {
	corners := []orb.Point{
		proj(orb.Point{b.Min[0], b.Min[1]}),
		proj(orb.Point{b.Max[0], b.Min[1]}),
		proj(orb.Point{b.Max[0], b.Max[1]}),
		proj(orb.Point{b.Min[0], b.Max[1]}),
	}
	out := orb.Bound{Min: corners[0], Max: corners[0]}
	for _, c := range corners[1:] {
		out = out.Extend(c)
	}
	return out
}

func identity(p orb.Point) orb.Point { return p }

func clampLat(lat float64) float64 {
	switch {
	case lat > maxMercatorLat:
		return maxMercatorLat
	case lat < -maxMercatorLat:
		return -maxMercatorLat
	default:
		return lat
	}
}
