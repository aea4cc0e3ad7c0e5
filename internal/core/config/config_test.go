package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/enermaps/enermaps-wms/internal/core/model"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "WMS_MAX_SIZE", "WMS_ALLOWED_PROJECTIONS", "WMS_ALLOWED_OUTPUTS", "LEGEND_FRESHNESS", "H3_RES"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8000" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.WMS.MaxSize != 2048*2048 {
		t.Fatalf("MaxSize=%d", cfg.WMS.MaxSize)
	}
	if len(cfg.WMS.AllowedProjections) != 2 || cfg.WMS.AllowedProjections[0] != "epsg:3857" {
		t.Fatalf("projections=%v", cfg.WMS.AllowedProjections)
	}
	if len(cfg.WMS.AllowedOutputs) != 2 || cfg.WMS.AllowedOutputs[0].MIME != "image/png" || cfg.WMS.AllowedOutputs[1].Tag != "jpg" {
		t.Fatalf("outputs=%v", cfg.WMS.AllowedOutputs)
	}
	if cfg.LegendFreshness != 30*time.Second || cfg.H3Res != 6 {
		t.Fatalf("freshness=%v res=%d", cfg.LegendFreshness, cfg.H3Res)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("WMS_ALLOWED_PROJECTIONS", " EPSG:4326 ,,")
	t.Setenv("WMS_ALLOWED_OUTPUTS", "image/jpg=jpg,broken,image/png=png")
	t.Setenv("H3_RES", "42")
	cfg := FromEnv()
	if len(cfg.WMS.AllowedProjections) != 1 || cfg.WMS.AllowedProjections[0] != "epsg:4326" {
		t.Fatalf("projections=%v", cfg.WMS.AllowedProjections)
	}
	if len(cfg.WMS.AllowedOutputs) != 2 || cfg.WMS.AllowedOutputs[0].MIME != "image/jpg" {
		t.Fatalf("outputs=%v", cfg.WMS.AllowedOutputs)
	}
	if cfg.H3Res != 15 {
		t.Fatalf("H3Res=%d want clamped 15", cfg.H3Res)
	}
}

func TestApplyYAML_KeepsOrderAndUnsetKeys(t *testing.T) {
	cfg := FromEnv()
	doc := []byte(`
wms:
  allowed_projections: [EPSG:900913]
  allowed_outputs:
    image/jpg: jpg
    image/png: png
`)
	if err := cfg.ApplyYAML(doc); err != nil {
		t.Fatalf("ApplyYAML: %v", err)
	}
	if cfg.WMS.MaxSize != 2048*2048 {
		t.Fatalf("unset max_size changed: %d", cfg.WMS.MaxSize)
	}
	if cfg.WMS.AllowedProjections[0] != "epsg:900913" {
		t.Fatalf("projections=%v", cfg.WMS.AllowedProjections)
	}
	if cfg.WMS.AllowedOutputs[0].MIME != "image/jpg" || cfg.WMS.AllowedOutputs[1].MIME != "image/png" {
		t.Fatalf("outputs=%v", cfg.WMS.AllowedOutputs)
	}

	if err := cfg.ApplyYAML([]byte("wms:\n  allowed_outputs: [png]\n")); err == nil {
		t.Fatal("a sequence for allowed_outputs must fail")
	}
}

func TestLoad_ReadsFileAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wms.yaml")
	if err := os.WriteFile(path, []byte("wms:\n  max_size: 65536\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WMS_CONFIG_FILE", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WMS.MaxSize != 65536 {
		t.Fatalf("MaxSize=%d", cfg.WMS.MaxSize)
	}

	if err := os.WriteFile(path, []byte("wms:\n  max_size: -1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("negative max_size must fail validation")
	}
}

func TestWMS_Lookups(t *testing.T) {
	w := FromEnv().WMS
	if o, ok := w.Output("image/png"); !ok || o.Tag != "png" {
		t.Fatalf("Output(image/png)=%v,%v", o, ok)
	}
	if _, ok := w.Output("image/gif"); ok {
		t.Fatal("gif is not allowed")
	}
	if !w.ProjectionAllowed("EPSG:3857") || w.ProjectionAllowed("epsg:2056") {
		t.Fatal("projection lookup")
	}
}

func TestValidate_EmptyOutputs(t *testing.T) {
	cfg := FromEnv()
	cfg.WMS.AllowedOutputs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("no outputs must fail")
	}
}

func TestValidate_RejectsUnknownProjectionAndEncoder(t *testing.T) {
	cfg := FromEnv()
	cfg.WMS.AllowedProjections = []string{"epsg:3857", "epsg:2056"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "srs") {
		t.Fatalf("unknown projection err=%v", err)
	}

	cfg = FromEnv()
	cfg.WMS.AllowedProjections = []string{"epsg:900913", "crs:84"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("aliases rejected: %v", err)
	}

	cfg = FromEnv()
	cfg.WMS.AllowedOutputs = append(cfg.WMS.AllowedOutputs, model.OutputFormat{MIME: "image/gif", Tag: "gif"})
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "imagetag") {
		t.Fatalf("unknown encoder err=%v", err)
	}
}
