package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/tiff"

	"github.com/enermaps/enermaps-wms/internal/layer"
	"github.com/enermaps/enermaps-wms/internal/render"
	"github.com/enermaps/enermaps-wms/internal/style"
)

func (r *Renderer) drawRasters(img *image.NRGBA, vp viewport, l *render.Layer, st style.Style) error {
	for _, rule := range st.Rules {
		sym, ok := rule.Symbolizer.(style.RasterSymbolizer)
		if !ok {
			continue
		}
		for _, t := range l.Rasters {
			src, err := readTile(t.Path)
			if errors.Is(err, fs.ErrNotExist) {
				r.logger.Warn("raster tile missing", "layer", l.Name, "path", t.Path)
				continue
			}
			if err != nil {
				return fmt.Errorf("layer %s: %w", l.Name, err)
			}
			warp(img, vp, t, colorize(src, sym.Colorizer))
		}
	}
	return nil
}

func readTile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode raster %s: %w", path, err)
	}
	return img, nil
}

// colorize maps every sample of src through the colorizer.
func colorize(src image.Image, cz style.Colorizer) *image.NRGBA {
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, cz.Color(sample(src, x, y)))
		}
	}
	return out
}

func sample(src image.Image, x, y int) float64 {
	switch t := src.(type) {
	case *image.Gray:
		return float64(t.GrayAt(x, y).Y)
	case *image.Gray16:
		return float64(t.Gray16At(x, y).Y)
	default:
		return float64(color.GrayModel.Convert(src.At(x, y)).(color.Gray).Y)
	}
}

// warp draws the tile over its bound in the viewport.
func warp(dst *image.NRGBA, vp viewport, t layer.RasterTile, src *image.NRGBA) {
	sb := src.Bounds()
	if sb.Empty() {
		return
	}
	ew := vp.ext.Max[0] - vp.ext.Min[0]
	eh := vp.ext.Max[1] - vp.ext.Min[1]
	tw := t.Bound.Max[0] - t.Bound.Min[0]
	th := t.Bound.Max[1] - t.Bound.Min[1]
	s2d := f64.Aff3{
		tw / float64(sb.Dx()) * vp.w / ew, 0, (t.Bound.Min[0] - vp.ext.Min[0]) * vp.w / ew,
		0, th / float64(sb.Dy()) * vp.h / eh, (vp.ext.Max[1] - t.Bound.Max[1]) * vp.h / eh,
	}
	draw.NearestNeighbor.Transform(dst, s2d, src, sb, draw.Over, nil)
}
