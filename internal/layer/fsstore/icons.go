package fsstore

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/vector"

	"github.com/enermaps/enermaps-wms/internal/layer"
	"github.com/enermaps/enermaps-wms/internal/legend"
)

// IconSize is the side in pixels of the generated point legend icons.
const IconSize = 12

// LegendImages writes one filled circle icon per legend entry into a new
// temporary directory. On error nothing is left behind.
func (s *Store) LegendImages(l *layer.Layer, lg legend.Legend) ([]string, string, error) {
	dir, err := os.MkdirTemp("", "enermaps-legend-*")
	if err != nil {
		return nil, "", fmt.Errorf("legend images for %s: %w", l.ID(), err)
	}
	paths := make([]string, 0, len(lg.Symbology))
	for i, e := range lg.Symbology {
		p := filepath.Join(dir, fmt.Sprintf("%d.png", i))
		c := color.NRGBA{R: e.Red, G: e.Green, B: e.Blue, A: uint8(math.Round(unit(e.Opacity) * 255))}
		if err := writeIcon(p, c); err != nil {
			_ = os.RemoveAll(dir)
			return nil, "", fmt.Errorf("legend images for %s: %w", l.ID(), err)
		}
		paths = append(paths, p)
	}
	return paths, dir, nil
}

func writeIcon(path string, c color.NRGBA) error {
	img := image.NewNRGBA(image.Rect(0, 0, IconSize, IconSize))
	ras := vector.NewRasterizer(IconSize, IconSize)
	circle(ras, IconSize/2, IconSize/2, IconSize/2-0.5)
	ras.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode icon: %w", err)
	}
	return f.Close()
}

func circle(ras *vector.Rasterizer, cx, cy, r float32) {
	const segments = 32
	ras.MoveTo(cx+r, cy)
	for i := 1; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / segments
		ras.LineTo(cx+r*float32(math.Cos(a)), cy+r*float32(math.Sin(a)))
	}
	ras.ClosePath()
}

func unit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
