package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/enermaps/enermaps-wms/internal/core/model"
	"github.com/enermaps/enermaps-wms/internal/geo"
	"github.com/enermaps/enermaps-wms/internal/layer"
	h3mapper "github.com/enermaps/enermaps-wms/internal/mapper/h3"
)

// parsedLayer is the lon/lat content of one layer with its spatial index.
type parsedLayer struct {
	features []*geojson.Feature
	index    *h3mapper.Index
	rasters  *rasterIndex
}

func (s *Store) Data(ctx context.Context, l *layer.Layer, bb model.BBox, projection string) (layer.Data, error) {
	fwd, err := geo.FromWGS84(projection)
	if err != nil {
		return layer.Data{}, err
	}
	inv, err := geo.ToWGS84(projection)
	if err != nil {
		return layer.Data{}, err
	}
	query := geo.Bound(orb.Bound{Min: orb.Point{bb.X1, bb.Y1}, Max: orb.Point{bb.X2, bb.Y2}}, inv)

	p, err := s.parse(l)
	if err != nil {
		return layer.Data{}, err
	}
	if err := ctx.Err(); err != nil {
		return layer.Data{}, fmt.Errorf("layer data %s: %w", l.ID(), err)
	}

	if p.rasters != nil {
		return layer.Data{Rasters: p.rasters.search(query, fwd)}, nil
	}

	ids, err := p.index.Query(query)
	if err != nil {
		return layer.Data{}, fmt.Errorf("query index of %s: %w", l.ID(), err)
	}
	out := make([]*geojson.Feature, 0, len(ids))
	for _, id := range ids {
		f := p.features[id]
		out = append(out, &geojson.Feature{
			ID:         f.ID,
			Type:       f.Type,
			Geometry:   geo.Geometry(f.Geometry, fwd),
			Properties: f.Properties.Clone(),
		})
	}
	return layer.Data{Features: out}, nil
}

// parse returns the cached content of l, re-reading it when the data file
// changed since it was cached.
func (s *Store) parse(l *layer.Layer) (*parsedLayer, error) {
	vectorPath := filepath.Join(l.Dir, dataFile)
	rasterPath := filepath.Join(l.Dir, geometriesFile)

	src := vectorPath
	if l.Kind == layer.KindRaster || (l.Kind == layer.KindCM && !fileExists(vectorPath)) {
		src = rasterPath
	}
	st, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s has no %s", layer.ErrNotFound, l.ID(), filepath.Base(src))
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", src, err)
	}

	key := fmt.Sprintf("%s@%d", l.ID(), st.ModTime().UnixNano())
	if p, ok := s.parsed.Get(key); ok {
		return p, nil
	}

	var p *parsedLayer
	if src == rasterPath {
		p, err = s.parseRasters(l.Dir)
	} else {
		p, err = s.parseFeatures(l.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("load layer %s: %w", l.ID(), err)
	}
	s.parsed.Add(key, p)
	s.logger.Debug("layer parsed", "layer", l.ID(), "features", len(p.features))
	return p, nil
}

func (s *Store) parseFeatures(dir string) (*parsedLayer, error) {
	b, err := os.ReadFile(filepath.Join(dir, dataFile))
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	toWGS84, err := storedProjection(dir)
	if err != nil {
		return nil, err
	}
	idx, err := h3mapper.NewIndex(s.res)
	if err != nil {
		return nil, err
	}

	features := make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if toWGS84 != nil {
			f.Geometry = geo.Geometry(f.Geometry, toWGS84)
		}
		if err := idx.Insert(len(features), f.Geometry.Bound()); err != nil {
			return nil, fmt.Errorf("index feature %d: %w", len(features), err)
		}
		features = append(features, f)
	}
	return &parsedLayer{features: features, index: idx}, nil
}

func (s *Store) parseRasters(dir string) (*parsedLayer, error) {
	b, err := os.ReadFile(filepath.Join(dir, geometriesFile))
	if err != nil {
		return nil, fmt.Errorf("read raster footprints: %w", err)
	}
	var rings map[string][][]float64
	if err := json.Unmarshal(b, &rings); err != nil {
		return nil, fmt.Errorf("decode raster footprints: %w", err)
	}
	ri := newRasterIndex()
	for file, coords := range rings {
		ring := make(orb.Ring, 0, len(coords))
		for _, c := range coords {
			if len(c) < 2 {
				return nil, fmt.Errorf("footprint of %s: coordinate needs lon,lat", file)
			}
			ring = append(ring, orb.Point{c[0], c[1]})
		}
		if len(ring) < 3 {
			return nil, fmt.Errorf("footprint of %s: ring has %d points", file, len(ring))
		}
		ri.insert(filepath.Join(dir, rastersDir, filepath.Base(file)), orb.Polygon{ring})
	}
	return &parsedLayer{rasters: ri}, nil
}

// storedProjection returns the conversion of stored coordinates to
// lon/lat, nil when the data is already lon/lat.
func storedProjection(dir string) (orb.Projection, error) {
	b, err := os.ReadFile(filepath.Join(dir, projectionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read projection: %w", err)
	}
	p, err := geo.Normalize(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, err
	}
	if p == geo.EPSG4326 {
		return nil, nil
	}
	return geo.ToWGS84(p)
}
