// Package h3mapper covers lon/lat bounds with H3 cells and indexes layer
// features by the cells they touch.
package h3mapper

import (
	"fmt"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

// cellsForBound returns the cells whose centers fall inside the lon/lat
// bound.
func cellsForBound(b orb.Bound, res int) ([]h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	outer := h3.GeoLoop{
		{Lat: b.Min[1], Lng: b.Min[0]},
		{Lat: b.Min[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Min[0]},
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	return cells, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
