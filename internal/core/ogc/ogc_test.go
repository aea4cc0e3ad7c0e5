package ogc

import (
	"encoding/xml"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/enermaps/enermaps-wms/internal/core/config"
	"github.com/enermaps/enermaps-wms/internal/core/model"
)

func testWMS() config.WMS {
	return config.WMS{
		MaxSize:            1024 * 1024,
		AllowedProjections: []string{"epsg:3857", "epsg:4326"},
		AllowedOutputs: []model.OutputFormat{
			{MIME: "image/png", Tag: "png"},
			{MIME: "image/jpg", Tag: "jpg"},
		},
	}
}

func getMapParams() url.Values {
	return url.Values{
		"SERVICE": {"WMS"},
		"REQUEST": {"GetMap"},
		"LAYERS":  {"area/example,raster/42/heat"},
		"FORMAT":  {"image/png"},
		"WIDTH":   {"256"},
		"HEIGHT":  {"256"},
		"SRS":     {"EPSG:3857"},
		"BBOX":    {"19567.87924100512,6809621.975869781,39135.75848201024,6829189.85511079"},
	}
}

func requireField(t *testing.T, err error, field string) {
	t.Helper()
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("err=%v want *RequestError", err)
	}
	if re.Field != field {
		t.Fatalf("field=%q want %q (msg %q)", re.Field, field, re.Msg)
	}
}

func TestNormalizeParams(t *testing.T) {
	p := NormalizeParams(url.Values{"Request": {"GetMap", "ignored"}, "SERVICE": {"WFS"}})
	if p.Request() != "GetMap" {
		t.Fatalf("request=%q", p.Request())
	}
	if p.Get("service") != "WMS" {
		t.Fatalf("service=%q want forced WMS", p.Get("service"))
	}
}

func TestParseGetMap_OK(t *testing.T) {
	req, err := ParseGetMap(NormalizeParams(getMapParams()), testWMS())
	if err != nil {
		t.Fatalf("ParseGetMap: %v", err)
	}
	if req.Size != (model.Size{Width: 256, Height: 256}) {
		t.Fatalf("size=%v", req.Size)
	}
	if req.Projection != "epsg:3857" || req.BBox.SRID != "epsg:3857" {
		t.Fatalf("projection=%q srid=%q", req.Projection, req.BBox.SRID)
	}
	if req.Format.Tag != "png" {
		t.Fatalf("format=%v", req.Format)
	}
	if len(req.Layers) != 2 || req.Layers[1] != "raster/42/heat" {
		t.Fatalf("layers=%v", req.Layers)
	}
	if req.BBox.X1 >= req.BBox.X2 || req.BBox.Y1 >= req.BBox.Y2 {
		t.Fatalf("bbox not ordered: %v", req.BBox)
	}
}

func TestParseGetMap_ReordersReversedBBox(t *testing.T) {
	v := getMapParams()
	v.Set("BBOX", "10,20,0,5")
	req, err := ParseGetMap(NormalizeParams(v), testWMS())
	if err != nil {
		t.Fatalf("ParseGetMap: %v", err)
	}
	want := model.BBox{X1: 0, Y1: 5, X2: 10, Y2: 20, SRID: "epsg:3857"}
	if req.BBox != want {
		t.Fatalf("bbox=%v want %v", req.BBox, want)
	}
}

func TestParseGetMap_CRSAlias(t *testing.T) {
	v := getMapParams()
	v.Del("SRS")
	v.Set("CRS", "EPSG:4326")
	req, err := ParseGetMap(NormalizeParams(v), testWMS())
	if err != nil {
		t.Fatalf("ParseGetMap: %v", err)
	}
	if req.Projection != "epsg:4326" {
		t.Fatalf("projection=%q", req.Projection)
	}
}

func TestParseGetMap_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{"format not allowed", "FORMAT", "image/gif", "format"},
		{"width missing", "WIDTH", "", "width"},
		{"width not integer", "WIDTH", "abc", "width"},
		{"height zero", "HEIGHT", "0", "height"},
		{"oversized", "WIDTH", "100000", "size"},
		{"bbox three values", "BBOX", "1,2,3", "bbox"},
		{"bbox not numeric", "BBOX", "a,2,3,4", "bbox"},
		{"bbox zero width", "BBOX", "0,0,0,10", "bbox"},
		{"bbox single point", "BBOX", "1,1,1,1", "bbox"},
		{"bbox nan", "BBOX", "NaN,0,10,10", "bbox"},
		{"bbox infinite", "BBOX", "0,0,Inf,10", "bbox"},
		{"projection not allowed", "SRS", "EPSG:2056", "srs"},
		{"no layers", "LAYERS", " , ", "layers"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := getMapParams()
			if tc.value == "" {
				v.Del(tc.key)
			} else {
				v.Set(tc.key, tc.value)
			}
			_, err := ParseGetMap(NormalizeParams(v), testWMS())
			requireField(t, err, tc.field)
		})
	}
}

func TestParseGetMap_SizeLimitMessage(t *testing.T) {
	v := getMapParams()
	v.Set("WIDTH", "2048")
	v.Set("HEIGHT", "1024")
	_, err := ParseGetMap(NormalizeParams(v), testWMS())
	if err == nil || err.Error() != "requested size 2048x1024 exceeds the maximum of 1048576 pixels" {
		t.Fatalf("err=%v", err)
	}
}

func featureInfoParams() url.Values {
	v := getMapParams()
	v.Del("FORMAT")
	v.Set("REQUEST", "GetFeatureInfo")
	v.Set("LAYERS", "area/example")
	v.Set("QUERY_LAYERS", "area/example")
	v.Set("INFO_FORMAT", "application/json")
	v.Set("X", "128")
	v.Set("Y", "64")
	return v
}

func TestParseGetFeatureInfo_OK(t *testing.T) {
	req, err := ParseGetFeatureInfo(NormalizeParams(featureInfoParams()), testWMS())
	if err != nil {
		t.Fatalf("ParseGetFeatureInfo: %v", err)
	}
	if req.Position != (model.Position{X: 128, Y: 64}) {
		t.Fatalf("position=%v", req.Position)
	}
	if len(req.QueryLayers) != 1 || req.InfoFormat != InfoFormatJSON {
		t.Fatalf("req=%+v", req)
	}
}

func TestParseGetFeatureInfo_IJAliases(t *testing.T) {
	v := featureInfoParams()
	v.Del("X")
	v.Del("Y")
	v.Set("I", "3")
	v.Set("J", "4.5")
	req, err := ParseGetFeatureInfo(NormalizeParams(v), testWMS())
	if err != nil {
		t.Fatalf("ParseGetFeatureInfo: %v", err)
	}
	if req.Position != (model.Position{X: 3, Y: 4.5}) {
		t.Fatalf("position=%v", req.Position)
	}
}

func TestParseGetFeatureInfo_Rejections(t *testing.T) {
	v := featureInfoParams()
	v.Set("INFO_FORMAT", "text/html")
	_, err := ParseGetFeatureInfo(NormalizeParams(v), testWMS())
	requireField(t, err, "info_format")

	v = featureInfoParams()
	v.Set("QUERY_LAYERS", "area/example,vector/1")
	_, err = ParseGetFeatureInfo(NormalizeParams(v), testWMS())
	requireField(t, err, "query_layers")
	if err.Error() != "Requested layer didnt match the query_layers parameter" {
		t.Fatalf("msg=%q", err.Error())
	}

	v = featureInfoParams()
	v.Del("Y")
	_, err = ParseGetFeatureInfo(NormalizeParams(v), testWMS())
	requireField(t, err, "y")
}

type capabilitiesDoc struct {
	XMLName    xml.Name `xml:"WMS_Capabilities"`
	Version    string   `xml:"version,attr"`
	Capability struct {
		Request struct {
			GetMap struct {
				Formats []string `xml:"Format"`
				Online  struct {
					Href string `xml:"http://www.w3.org/1999/xlink href,attr"`
				} `xml:"DCPType>HTTP>Get>OnlineResource"`
			} `xml:"GetMap"`
		} `xml:"Request"`
		Layer struct {
			CRS    []string `xml:"CRS"`
			Layers []struct {
				Queryable string `xml:"queryable,attr"`
				Opaque    string `xml:"opaque,attr"`
				Name      string `xml:"Name"`
				Title     string `xml:"Title"`
			} `xml:"Layer"`
		} `xml:"Layer"`
	} `xml:"Capability"`
}

func TestCapabilities(t *testing.T) {
	layers := []CapabilityLayer{
		{Name: "area/example", Queryable: true},
		{Name: "raster/42/heat&co", Queryable: false},
	}
	out, err := Capabilities("http://wms.example/api/wms", testWMS(), layers)
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	var doc capabilitiesDoc
	if err := xml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("document is not valid xml: %v\n%s", err, out)
	}
	if doc.Version != "1.3.0" {
		t.Fatalf("version=%q", doc.Version)
	}
	if got := strings.Join(doc.Capability.Layer.CRS, ","); got != "EPSG:3857,EPSG:4326" {
		t.Fatalf("crs=%q", got)
	}
	if got := strings.Join(doc.Capability.Request.GetMap.Formats, ","); got != "image/png,image/jpg" {
		t.Fatalf("formats=%q", got)
	}
	ls := doc.Capability.Layer.Layers
	if len(ls) != 2 {
		t.Fatalf("layers=%d want 2", len(ls))
	}
	if ls[0].Queryable != "1" || ls[1].Queryable != "0" || ls[0].Opaque != "0" {
		t.Fatalf("flags=%+v", ls)
	}
	if ls[1].Name != "raster/42/heat&co" || ls[0].Title != "This is layer area/example" {
		t.Fatalf("names=%+v", ls)
	}
	if href := doc.Capability.Request.GetMap.Online.Href; href != "http://wms.example/api/wms" {
		t.Fatalf("href=%q", href)
	}
}

func TestCapabilities_NoLayers(t *testing.T) {
	out, err := Capabilities("http://wms.example/wms", testWMS(), nil)
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	var doc capabilitiesDoc
	if err := xml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("xml: %v", err)
	}
	if len(doc.Capability.Layer.Layers) != 0 {
		t.Fatalf("layers=%d want 0", len(doc.Capability.Layer.Layers))
	}
}

func TestBaseURL_DropsQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "http://wms.example/api/wms?request=GetCapabilities", nil)
	if got := BaseURL(r); got != "http://wms.example/api/wms" {
		t.Fatalf("BaseURL=%q", got)
	}
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := BaseURL(r); got != "https://wms.example/api/wms" {
		t.Fatalf("BaseURL=%q", got)
	}
}
