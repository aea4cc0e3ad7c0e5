package h3mapper

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

// average hexagon edge length in km, by resolution
var avgEdgeKm = [16]float64{
	1281.256011, 483.0568391, 182.5129565, 68.97922179,
	26.07175968, 9.854090990, 3.724532667, 1.406475763,
	0.531414010, 0.200786148, 0.075863783, 0.028663897,
	0.010830188, 0.004092010, 0.001546100, 0.000584169,
}

const (
	kmPerDegree = 111.32
	// bounds covering more cells than this are scanned linearly
	maxIndexedCells = 4096
	maxLat          = 85.0
)

// Index finds lon/lat bounds intersecting a query bound. Each bound is
// registered under every cell whose center lies within two edge lengths
// of it, so any shared point of an entry and a query falls in a cell both
// were registered under. Build with Insert, then Query concurrently.
type Index struct {
	res    int
	margin float64
	cells  map[h3.Cell][]int
	bounds map[int]orb.Bound
	large  []int
}

func NewIndex(res int) (*Index, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	return &Index{
		res:    res,
		margin: 2 * avgEdgeKm[res] / kmPerDegree,
		cells:  make(map[h3.Cell][]int),
		bounds: make(map[int]orb.Bound),
	}, nil
}

func (ix *Index) Len() int { return len(ix.bounds) }

func (ix *Index) Insert(id int, b orb.Bound) error {
	if _, dup := ix.bounds[id]; dup {
		return fmt.Errorf("id %d already indexed", id)
	}
	ix.bounds[id] = b
	if ix.oversized(b) {
		ix.large = append(ix.large, id)
		return nil
	}
	cells, err := cellsForBound(ix.expand(b), ix.res)
	if err != nil {
		delete(ix.bounds, id)
		return err
	}
	if len(cells) == 0 {
		ix.large = append(ix.large, id)
		return nil
	}
	for _, c := range cells {
		ix.cells[c] = append(ix.cells[c], id)
	}
	return nil
}

// Query returns the ascending ids whose bound intersects b.
func (ix *Index) Query(b orb.Bound) ([]int, error) {
	seen := make(map[int]struct{})
	out := make([]int, 0)
	add := func(id int) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		if ix.bounds[id].Intersects(b) {
			out = append(out, id)
		}
	}

	if ix.oversized(b) {
		for id := range ix.bounds {
			add(id)
		}
	} else {
		cells, err := cellsForBound(ix.expand(b), ix.res)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			for _, id := range ix.cells[c] {
				add(id)
			}
		}
		for _, id := range ix.large {
			add(id)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (ix *Index) expand(b orb.Bound) orb.Bound {
	lat := math.Min(math.Max(math.Abs(b.Min[1]), math.Abs(b.Max[1])), maxLat)
	dy := ix.margin
	dx := ix.margin / math.Cos(lat*math.Pi/180)
	return orb.Bound{
		Min: orb.Point{math.Max(b.Min[0]-dx, -180), math.Max(b.Min[1]-dy, -90)},
		Max: orb.Point{math.Min(b.Max[0]+dx, 180), math.Min(b.Max[1]+dy, 90)},
	}
}

func (ix *Index) oversized(b orb.Bound) bool {
	e := ix.expand(b)
	w, h := e.Max[0]-e.Min[0], e.Max[1]-e.Min[1]
	// polyfill treats arcs wider than a hemisphere as wrapping
	if w >= 180 || h >= 90 {
		return true
	}
	mid := math.Min(math.Abs((e.Min[1]+e.Max[1])/2), maxLat)
	areaKm2 := w * kmPerDegree * math.Cos(mid*math.Pi/180) * h * kmPerDegree
	edge := avgEdgeKm[ix.res]
	hexKm2 := 3 * math.Sqrt(3) / 2 * edge * edge
	return areaKm2/hexKm2 > maxIndexedCells
}
