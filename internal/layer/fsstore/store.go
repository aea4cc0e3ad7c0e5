// Package fsstore serves layers from a directory tree written by the
// data integration jobs.
//
// Each layer lives in <root>/<path escaped layer name>/ and holds either
// data.geojson (vector, area and cm vector outputs) or rasters/*.tif with
// a geometries.json footprint file (raster and cm raster outputs). An
// optional projection file names the CRS of the stored data, legend.json
// carries the legend of cm layers and title the human readable title.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/enermaps/enermaps-wms/internal/layer"
	"github.com/enermaps/enermaps-wms/internal/legend"
)

const (
	dataFile       = "data.geojson"
	geometriesFile = "geometries.json"
	rastersDir     = "rasters"
	legendFile     = "legend.json"
	titleFile      = "title"
	projectionFile = "projection"
)

type Options struct {
	H3Res     int
	CacheSize int
	Logger    *slog.Logger
}

type Store struct {
	root   string
	res    int
	logger *slog.Logger
	parsed *lru.Cache[string, *parsedLayer]
}

var _ layer.Store = (*Store)(nil)

func New(root string, opts Options) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("fsstore: data directory is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.H3Res == 0 {
		opts.H3Res = 6
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c, err := lru.New[string, *parsedLayer](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("fsstore: layer cache: %w", err)
	}
	return &Store{root: root, res: opts.H3Res, logger: opts.Logger, parsed: c}, nil
}

// Dir is where the layer with the given canonical name is stored.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, url.PathEscape(name))
}

func (s *Store) Load(_ context.Context, name string) (*layer.Layer, error) {
	n, err := layer.ParseName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", layer.ErrNotFound, name, err)
	}
	id := n.String()
	dir := s.Dir(id)
	st, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !st.IsDir()) {
		return nil, fmt.Errorf("%w: %s", layer.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("stat layer %s: %w", id, err)
	}
	return &layer.Layer{
		Name:      n,
		Kind:      n.Kind,
		Queryable: layer.Queryable(n.Kind),
		Dir:       dir,
		Title:     readTitle(dir),
	}, nil
}

func (s *Store) ListLayers(_ context.Context) ([]layer.Summary, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	out := make([]layer.Summary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		raw, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		n, err := layer.ParseName(raw)
		if err != nil {
			s.logger.Debug("skipping directory with invalid layer name", "dir", e.Name(), "err", err)
			continue
		}
		out = append(out, layer.Summary{
			Name:      n.String(),
			Title:     readTitle(filepath.Join(s.root, e.Name())),
			Queryable: layer.Queryable(n.Kind),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Exists(l *layer.Layer) bool {
	switch l.Kind {
	case layer.KindVector, layer.KindArea:
		return fileExists(filepath.Join(l.Dir, dataFile))
	case layer.KindRaster:
		return fileExists(filepath.Join(l.Dir, geometriesFile))
	case layer.KindCM:
		return fileExists(filepath.Join(l.Dir, dataFile)) || fileExists(filepath.Join(l.Dir, geometriesFile))
	default:
		return false
	}
}

// CMLegend reads the legend stored with a cm layer, nil when it has none.
func (s *Store) CMLegend(ctx context.Context, name string) (*legend.Legend, error) {
	l, err := s.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(l.Dir, legendFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cm legend %s: %w", l.ID(), err)
	}
	lg, err := legend.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("cm legend %s: %w", l.ID(), err)
	}
	return lg, nil
}

func readTitle(dir string) string {
	b, err := os.ReadFile(filepath.Join(dir, titleFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
