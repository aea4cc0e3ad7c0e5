package style

import (
	"image/color"
	"math"
	"sort"
)

type Mode int

const (
	Linear Mode = iota
	Discrete
)

// NoDataValue masks float32 rasters filled with the largest finite value.
const NoDataValue = 3.4e38

type Stop struct {
	Value float64
	Color color.NRGBA
	Mode  Mode
}

// Colorizer maps raster values to colors. Values below the first stop take
// Default; a Linear stop blends toward the next stop, a Discrete one holds
// its color until the next stop; values past the last stop take its color.
type Colorizer struct {
	Default color.NRGBA
	Stops   []Stop
}

func (c Colorizer) Color(v float64) color.NRGBA {
	if math.IsNaN(v) || len(c.Stops) == 0 || v < c.Stops[0].Value {
		return c.Default
	}
	i := sort.Search(len(c.Stops), func(i int) bool { return c.Stops[i].Value > v }) - 1
	cur := c.Stops[i]
	if i == len(c.Stops)-1 || cur.Mode == Discrete {
		return cur.Color
	}
	next := c.Stops[i+1]
	span := next.Value - cur.Value
	if span <= 0 {
		return cur.Color
	}
	return lerp(cur.Color, next.Color, (v-cur.Value)/span)
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}
