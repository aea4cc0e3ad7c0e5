package legend

import (
	"math"

	"github.com/enermaps/enermaps-wms/internal/core/model"
)

const (
	DefaultSteps    = 8
	defaultMaxValue = 255
)

// dark end of the default palette, a red tinted gray
var (
	darkRGB = [3]float64{44, 33, 33}
	redRGB  = [3]float64{255, 0, 0}
)

// DomainStart is the first threshold of the default legend for a layer kind.
// Raster and cm values start at 1 so that 0 stays uncolored.
func DomainStart(kind model.LayerKind) float64 {
	switch kind {
	case model.KindRaster, model.KindCM:
		return 1
	default:
		return 0
	}
}

// Default builds the 8 step monochrome red legend used when a layer has none.
func Default(kind model.LayerKind) Legend {
	minValue := DomainStart(kind)
	step := (defaultMaxValue - minValue) / DefaultSteps

	out := Legend{Symbology: make([]Entry, 0, DefaultSteps)}
	for n := range DefaultSteps {
		t := float64(n) / float64(DefaultSteps-1)
		out.Symbology = append(out.Symbology, Entry{
			Value:   round2(minValue + float64(n)*step),
			Red:     blend(darkRGB[0], redRGB[0], t),
			Green:   blend(darkRGB[1], redRGB[1], t),
			Blue:    blend(darkRGB[2], redRGB[2], t),
			Opacity: 1,
		})
	}
	return out
}

func blend(from, to, t float64) uint8 {
	return uint8(from + (to-from)*t)
}

func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
