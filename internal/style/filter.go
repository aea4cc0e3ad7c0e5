package style

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// VariablePrefix marks the data columns a legend can classify.
const VariablePrefix = "__variable__"

// Filter selects features by the value of one variable column. Min is
// inclusive, Max exclusive. The zero Filter matches everything.
type Filter struct {
	Variable string
	Min      *float64
	Max      *float64
	NotNull  bool
}

// Field is the data column the filter reads.
func (f Filter) Field() string { return VariablePrefix + f.Variable }

func (f Filter) unbounded() bool {
	return f.Min == nil && f.Max == nil && !f.NotNull
}

func (f Filter) Match(props map[string]any) bool {
	if f.unbounded() {
		return true
	}
	raw, ok := props[f.Field()]
	if !ok || raw == nil {
		return false
	}
	if f.Min == nil && f.Max == nil {
		return true
	}
	v, ok := numeric(raw)
	if !ok {
		return false
	}
	if f.Min != nil && v < *f.Min {
		return false
	}
	if f.Max != nil && v >= *f.Max {
		return false
	}
	return true
}

// MatchValue applies the bounds to a value already extracted from the data.
func (f Filter) MatchValue(v float64) bool {
	if math.IsNaN(v) {
		return f.unbounded()
	}
	if f.Min != nil && v < *f.Min {
		return false
	}
	if f.Max != nil && v >= *f.Max {
		return false
	}
	return true
}

// String renders the filter in the classic bracketed expression syntax.
func (f Filter) String() string {
	field := "[" + f.Field() + "]"
	var parts []string
	if f.Max != nil {
		parts = append(parts, field+" < "+formatNumber(*f.Max))
	}
	if f.Min != nil {
		parts = append(parts, field+" >= "+formatNumber(*f.Min))
	}
	if len(parts) == 0 && f.NotNull {
		return field + " != null"
	}
	return strings.Join(parts, " and ")
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ptr(v float64) *float64 { return &v }
