// Package datasetapi fetches layer legends from the dataset API.
package datasetapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/enermaps/enermaps-wms/internal/core/observability"
	"github.com/enermaps/enermaps-wms/internal/legend"
)

const upstream = "dataset_api"

type Client struct {
	logger   *slog.Logger
	client   *http.Client
	baseURL  *url.URL
	now      func() time.Time
}

func New(logger *slog.Logger, client *http.Client, base string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse dataset api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("dataset api url %q must be absolute", base)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{logger: logger, client: client, baseURL: u, now: time.Now}, nil
}

// FetchLegend returns the published legend of a layer, nil when the API
// has none.
func (c *Client) FetchLegend(ctx context.Context, layerName string) (*legend.Legend, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/legend/" + layerName
	u.RawPath = c.baseURL.EscapedPath() + "/legend/" + url.PathEscape(layerName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := c.now().Sub(start)
	observability.ObserveUpstreamLatency(upstream, dur.Seconds())
	c.logger.DebugContext(ctx, "legend fetched",
		"layer", layerName, "status", resp.StatusCode, "duration", dur.String())

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	lg, err := legend.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("legend of %s: %w", layerName, err)
	}
	return lg, nil
}
