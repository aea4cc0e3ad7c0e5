package ogc

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"github.com/enermaps/enermaps-wms/internal/core/config"
)

//go:embed capabilities.xml
var capabilitiesXML string

var capabilitiesTmpl = template.Must(template.New("capabilities").
	Funcs(template.FuncMap{"xml": escapeXML}).
	Parse(capabilitiesXML))

// CapabilityLayer is one named layer advertised by GetCapabilities.
type CapabilityLayer struct {
	Name      string
	Queryable bool
}

type capabilitiesView struct {
	BaseURL string
	CRS     []string
	Formats []string
	Layers  []CapabilityLayer
}

// Capabilities renders the WMS 1.3.0 capabilities document. Every online
// resource points at baseURL.
func Capabilities(baseURL string, cfg config.WMS, layers []CapabilityLayer) ([]byte, error) {
	v := capabilitiesView{BaseURL: baseURL, Layers: layers}
	for _, p := range cfg.AllowedProjections {
		v.CRS = append(v.CRS, strings.ToUpper(p))
	}
	for _, o := range cfg.AllowedOutputs {
		v.Formats = append(v.Formats, o.MIME)
	}
	var buf bytes.Buffer
	if err := capabilitiesTmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render capabilities: %w", err)
	}
	return buf.Bytes(), nil
}

// BaseURL is the request URL without its query string.
func BaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func escapeXML(s string) (string, error) {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}
