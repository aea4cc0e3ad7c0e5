package legend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/enermaps/enermaps-wms/internal/core/model"
)

func TestDefault_VectorThresholds(t *testing.T) {
	lg := Default(model.KindVector)
	want := []float64{0, 31.88, 63.75, 95.62, 127.5, 159.38, 191.25, 223.12}
	if len(lg.Symbology) != len(want) {
		t.Fatalf("entries=%d want %d", len(lg.Symbology), len(want))
	}
	for i, e := range lg.Symbology {
		if e.Value != want[i] {
			t.Fatalf("threshold[%d]=%v want %v", i, e.Value, want[i])
		}
		if e.Opacity != 1 {
			t.Fatalf("opacity[%d]=%v want 1", i, e.Opacity)
		}
	}
}

func TestDefault_RasterStartsAtOne(t *testing.T) {
	for _, kind := range []model.LayerKind{model.KindRaster, model.KindCM} {
		lg := Default(kind)
		want := []float64{1, 32.75, 64.5, 96.25, 128, 159.75, 191.5, 223.25}
		for i, e := range lg.Symbology {
			if e.Value != want[i] {
				t.Fatalf("%s threshold[%d]=%v want %v", kind, i, e.Value, want[i])
			}
		}
	}
}

func TestDefault_StrictlyIncreasingWithinDomain(t *testing.T) {
	for _, kind := range []model.LayerKind{model.KindVector, model.KindRaster, model.KindArea, model.KindCM} {
		lg := Default(kind)
		if len(lg.Symbology) != DefaultSteps {
			t.Fatalf("%s: entries=%d", kind, len(lg.Symbology))
		}
		start := DomainStart(kind)
		if lg.Symbology[0].Value != start {
			t.Fatalf("%s: first=%v want %v", kind, lg.Symbology[0].Value, start)
		}
		for i := 1; i < len(lg.Symbology); i++ {
			if lg.Symbology[i].Value <= lg.Symbology[i-1].Value {
				t.Fatalf("%s: not increasing at %d", kind, i)
			}
			if lg.Symbology[i].Value >= 255 {
				t.Fatalf("%s: threshold %v escapes [min,255)", kind, lg.Symbology[i].Value)
			}
		}
	}
}

func TestDefault_GradientEndsRed(t *testing.T) {
	lg := Default(model.KindVector)
	last := lg.Symbology[len(lg.Symbology)-1]
	if last.Red != 255 || last.Green != 0 || last.Blue != 0 {
		t.Fatalf("last color=%d,%d,%d want pure red", last.Red, last.Green, last.Blue)
	}
	first := lg.Symbology[0]
	if first.Red <= first.Green || first.Red >= 255 {
		t.Fatalf("first color should be a dark red tint, got %d,%d,%d", first.Red, first.Green, first.Blue)
	}
}

func TestDecode_NumericAndCategorical(t *testing.T) {
	raw := `{"symbology":[
		{"value":"3","red":10,"green":20,"blue":30,"opacity":0.5,"label":"class 3"},
		{"value":1.5,"red":255,"green":0,"blue":0}
	]}`
	lg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !lg.Symbology[0].Categorical || lg.Symbology[0].Value != 3 {
		t.Fatalf("first entry: %+v", lg.Symbology[0])
	}
	if lg.Symbology[1].Categorical || lg.Symbology[1].Value != 1.5 {
		t.Fatalf("second entry: %+v", lg.Symbology[1])
	}
	if lg.Symbology[1].Opacity != 1 {
		t.Fatalf("opacity default=%v want 1", lg.Symbology[1].Opacity)
	}
	if !lg.Categorical() {
		t.Fatal("legend with a string value must be categorical")
	}
	sorted := lg.Sorted()
	if sorted.Symbology[0].Value != 1.5 || lg.Symbology[0].Value != 3 {
		t.Fatal("Sorted must order a copy and leave the receiver untouched")
	}
}

func TestDecode_RejectsMissingValue(t *testing.T) {
	if _, err := Decode([]byte(`{"symbology":[{"red":1}]}`)); err == nil {
		t.Fatal("expected error for entry without value")
	}
}

func TestEntry_MarshalKeepsCategoricalAsString(t *testing.T) {
	b, err := json.Marshal(Entry{Value: 4, Categorical: true, Opacity: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Entry
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Categorical || back.Value != 4 {
		t.Fatalf("round trip lost categorical flag: %s", b)
	}
}

type fakeCache struct {
	lg    *Legend
	err   error
	calls int
}

func (f *fakeCache) GetLegend(_ context.Context, _ string, _ time.Duration) (*Legend, error) {
	f.calls++
	return f.lg, f.err
}

type fakeMeta struct{ lg *Legend }

func (f fakeMeta) CMLegend(context.Context, string) (*Legend, error) { return f.lg, nil }

func TestResolver_Dispatch(t *testing.T) {
	cached := &Legend{Symbology: []Entry{{Value: 5, Opacity: 1}, {Value: 2, Opacity: 1}}}
	cm := &Legend{Symbology: []Entry{{Value: 7, Opacity: 1}}}
	fc := &fakeCache{lg: cached}
	r := &Resolver{Cache: fc, Metadata: fakeMeta{lg: cm}}

	got := r.Resolve(context.Background(), "vector/1/heat", model.KindVector)
	if len(got.Symbology) != 2 || got.Symbology[0].Value != 2 {
		t.Fatalf("vector legend not sorted from cache: %+v", got)
	}
	got = r.Resolve(context.Background(), "cm/1", model.KindCM)
	if len(got.Symbology) != 1 || got.Symbology[0].Value != 7 {
		t.Fatalf("cm legend: %+v", got)
	}
	if fc.calls != 1 {
		t.Fatalf("cache calls=%d want 1 (cm layers read metadata)", fc.calls)
	}
}

func TestResolver_FallsBackToDefault(t *testing.T) {
	r := &Resolver{Cache: &fakeCache{err: errors.New("down")}}
	got := r.Resolve(context.Background(), "raster/42/heat", model.KindRaster)
	if len(got.Symbology) != DefaultSteps || got.Symbology[0].Value != 1 {
		t.Fatalf("expected raster default legend, got %+v", got)
	}

	r = &Resolver{Cache: &fakeCache{lg: &Legend{}}}
	got = r.Resolve(context.Background(), "vector/1", model.KindVector)
	if len(got.Symbology) != DefaultSteps || got.Symbology[0].Value != 0 {
		t.Fatalf("expected vector default legend for empty symbology, got %+v", got)
	}
}
