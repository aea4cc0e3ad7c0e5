// Package fsstoretest writes layer directories for tests.
package fsstoretest

import (
	"encoding/json"
	"image"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/image/tiff"
)

func layerDir(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, url.PathEscape(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir layer: %v", err)
	}
	return dir
}

// EmptyLayer creates the layer directory without any data.
func EmptyLayer(t *testing.T, root, name string) string {
	t.Helper()
	return layerDir(t, root, name)
}

// VectorLayer writes fc as the data of the named layer.
func VectorLayer(t *testing.T, root, name string, fc *geojson.FeatureCollection) string {
	t.Helper()
	dir := layerDir(t, root, name)
	b, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal features: %v", err)
	}
	WriteFile(t, filepath.Join(dir, "data.geojson"), b)
	return dir
}

// RasterTile is a gray raster covering a lon/lat footprint.
type RasterTile struct {
	File      string
	Footprint orb.Ring
	Width     int
	Height    int
	Value     uint8
}

// RasterLayer writes the tiles as TIFF files plus their footprints.
func RasterLayer(t *testing.T, root, name string, tiles ...RasterTile) string {
	t.Helper()
	dir := layerDir(t, root, name)
	if err := os.MkdirAll(filepath.Join(dir, "rasters"), 0o755); err != nil {
		t.Fatalf("mkdir rasters: %v", err)
	}
	geoms := map[string][][]float64{}
	for _, tl := range tiles {
		img := image.NewGray(image.Rect(0, 0, tl.Width, tl.Height))
		for i := range img.Pix {
			img.Pix[i] = tl.Value
		}
		f, err := os.Create(filepath.Join(dir, "rasters", tl.File))
		if err != nil {
			t.Fatalf("create tiff: %v", err)
		}
		if err := tiff.Encode(f, img, nil); err != nil {
			t.Fatalf("encode tiff: %v", err)
		}
		_ = f.Close()
		ring := make([][]float64, 0, len(tl.Footprint))
		for _, p := range tl.Footprint {
			ring = append(ring, []float64{p[0], p[1]})
		}
		geoms[tl.File] = ring
	}
	b, _ := json.Marshal(geoms)
	WriteFile(t, filepath.Join(dir, "geometries.json"), b)
	return dir
}

func WriteFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Square returns a closed lon/lat square ring.
func Square(x, y, side float64) orb.Ring {
	return orb.Ring{{x, y}, {x + side, y}, {x + side, y + side}, {x, y + side}, {x, y}}
}

// Feature builds a feature with the given properties.
func Feature(g orb.Geometry, props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(g)
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}
