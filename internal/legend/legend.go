// Package legend holds threshold legends and the rules for deriving them.
package legend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Entry is one symbology step. Categorical is set when the value was
// published as a string (class identifier rather than a measurement).
type Entry struct {
	Value       float64
	Categorical bool
	Red         uint8
	Green       uint8
	Blue        uint8
	Opacity     float64
	Label       string
}

type Legend struct {
	Symbology []Entry `json:"symbology"`
}

func (l *Legend) Empty() bool { return l == nil || len(l.Symbology) == 0 }

// Categorical reports whether any entry carries a class value.
func (l Legend) Categorical() bool {
	for _, e := range l.Symbology {
		if e.Categorical {
			return true
		}
	}
	return false
}

// Sorted returns a copy with entries ascending by threshold.
func (l Legend) Sorted() Legend {
	out := Legend{Symbology: append([]Entry(nil), l.Symbology...)}
	sort.SliceStable(out.Symbology, func(i, j int) bool {
		return out.Symbology[i].Value < out.Symbology[j].Value
	})
	return out
}

type entryJSON struct {
	Value   json.RawMessage `json:"value"`
	Red     float64         `json:"red"`
	Green   float64         `json:"green"`
	Blue    float64         `json:"blue"`
	Opacity *float64        `json:"opacity,omitempty"`
	Label   string          `json:"label,omitempty"`
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode legend entry: %w", err)
	}
	v := bytes.TrimSpace(raw.Value)
	switch {
	case len(v) == 0 || bytes.Equal(v, []byte("null")):
		return fmt.Errorf("legend entry without value")
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("decode legend value: %w", err)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("categorical legend value %q: %w", s, err)
		}
		e.Value = f
		e.Categorical = true
	default:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return fmt.Errorf("legend value %s: %w", v, err)
		}
		e.Value = f
		e.Categorical = false
	}
	e.Red = channel(raw.Red)
	e.Green = channel(raw.Green)
	e.Blue = channel(raw.Blue)
	e.Opacity = 1
	if raw.Opacity != nil {
		e.Opacity = *raw.Opacity
	}
	e.Label = raw.Label
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	var value any = e.Value
	if e.Categorical {
		value = strconv.FormatFloat(e.Value, 'f', -1, 64)
	}
	op := e.Opacity
	return json.Marshal(struct {
		Value   any      `json:"value"`
		Red     uint8    `json:"red"`
		Green   uint8    `json:"green"`
		Blue    uint8    `json:"blue"`
		Opacity *float64 `json:"opacity"`
		Label   string   `json:"label,omitempty"`
	}{value, e.Red, e.Green, e.Blue, &op, e.Label})
}

func channel(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

// Decode parses the dataset API legend document.
func Decode(b []byte) (*Legend, error) {
	var l Legend
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("decode legend: %w", err)
	}
	return &l, nil
}
