// Package legendfeed defines the messages announcing freshly computed
// layer legends.
package legendfeed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/enermaps/enermaps-wms/internal/layer"
	"github.com/enermaps/enermaps-wms/internal/legend"
)

type Message struct {
	Version int            `json:"version"`
	Layer   string         `json:"layer"`
	TS      time.Time      `json:"ts"`
	Legend  *legend.Legend `json:"legend"`
}

func (m Message) Validate() error {
	if m.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if strings.TrimSpace(m.Layer) == "" {
		return fmt.Errorf("layer is required")
	}
	n, err := layer.ParseName(m.Layer)
	if err != nil {
		return fmt.Errorf("layer: %w", err)
	}
	// only vector and raster legends go through the cache
	if n.Kind != layer.KindVector && n.Kind != layer.KindRaster {
		return fmt.Errorf("layer kind %s has no cached legend", n.Kind)
	}
	if m.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if m.Legend.Empty() {
		return errors.New("legend needs at least one symbology entry")
	}
	return nil
}

// CanonicalLayer returns the layer name in the form requests resolve it.
func (m Message) CanonicalLayer() string {
	n, err := layer.ParseName(m.Layer)
	if err != nil {
		return m.Layer
	}
	return n.String()
}
