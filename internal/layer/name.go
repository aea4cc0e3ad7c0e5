package layer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/enermaps/enermaps-wms/internal/core/model"
)

type Kind = model.LayerKind

const (
	KindVector = model.KindVector
	KindRaster = model.KindRaster
	KindArea   = model.KindArea
	KindCM     = model.KindCM
)

var ErrInvalidName = errors.New("invalid layer name")

var kindByName = map[string]Kind{
	"vector": KindVector,
	"raster": KindRaster,
	"area":   KindArea,
	"cm":     KindCM,
}

// Name is a decoded unique layer name,
// <kind>/<dataset_id>/<variable>/<time_period>/<qualifier>.
type Name struct {
	Kind       Kind
	DatasetID  string
	Variable   string
	TimePeriod string
	Qualifier  string
}

func ParseKind(s string) (Kind, error) {
	k, ok := kindByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidName, s)
	}
	return k, nil
}

func ParseName(s string) (Name, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 2 || len(parts) > 5 {
		return Name{}, fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	kind, err := ParseKind(parts[0])
	if err != nil {
		return Name{}, err
	}
	seg := make([]string, 4)
	for i, p := range parts[1:] {
		v, err := url.PathUnescape(p)
		if err != nil {
			return Name{}, fmt.Errorf("%w: segment %d of %q: %v", ErrInvalidName, i+1, s, err)
		}
		seg[i] = v
	}
	if seg[0] == "" {
		return Name{}, fmt.Errorf("%w: empty dataset id in %q", ErrInvalidName, s)
	}
	return Name{
		Kind:       kind,
		DatasetID:  seg[0],
		Variable:   seg[1],
		TimePeriod: seg[2],
		Qualifier:  seg[3],
	}, nil
}

// String encodes the name, omitting trailing empty segments.
func (n Name) String() string {
	seg := []string{n.Kind.String(), n.DatasetID, n.Variable, n.TimePeriod, n.Qualifier}
	end := len(seg)
	for end > 2 && seg[end-1] == "" {
		end--
	}
	for i := 1; i < end; i++ {
		seg[i] = url.PathEscape(seg[i])
	}
	return strings.Join(seg[:end], "/")
}
