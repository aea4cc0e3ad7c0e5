package fsstore

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/enermaps/enermaps-wms/internal/geo"
	"github.com/enermaps/enermaps-wms/internal/layer"
)

// minimum rect side, rtreego rejects zero lengths
const rectEpsilon = 1e-9

type rasterEntry struct {
	path      string
	footprint orb.Polygon
}

func (e *rasterEntry) Bounds() rtreego.Rect {
	return boundRect(e.footprint.Bound())
}

var _ rtreego.Spatial = (*rasterEntry)(nil)

// rasterIndex holds the lon/lat footprints of the raster files of a layer.
type rasterIndex struct {
	tree *rtreego.Rtree
	size int
}

func newRasterIndex() *rasterIndex {
	return &rasterIndex{tree: rtreego.NewTree(2, 25, 50)}
}

func (ri *rasterIndex) insert(path string, footprint orb.Polygon) {
	ri.tree.Insert(&rasterEntry{path: path, footprint: footprint})
	ri.size++
}

// search returns the tiles intersecting the lon/lat bound q, sorted by
// path, with footprints projected by fwd.
func (ri *rasterIndex) search(q orb.Bound, fwd orb.Projection) []layer.RasterTile {
	hits := ri.tree.SearchIntersect(boundRect(q))
	out := make([]layer.RasterTile, 0, len(hits))
	for _, h := range hits {
		e := h.(*rasterEntry)
		fp, ok := geo.Geometry(e.footprint, fwd).(orb.Polygon)
		if !ok {
			continue
		}
		out = append(out, layer.RasterTile{Path: e.path, Footprint: fp, Bound: fp.Bound()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func boundRect(b orb.Bound) rtreego.Rect {
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	if w < rectEpsilon {
		w = rectEpsilon
	}
	if h < rectEpsilon {
		h = rectEpsilon
	}
	r, _ := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
	return r
}
