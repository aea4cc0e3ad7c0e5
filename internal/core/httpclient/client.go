// Package httpclient configures the HTTP client used to call the dataset API.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Options tune the outbound client. Zero values take the defaults.
type Options struct {
	// Timeout bounds a whole legend fetch; default 10s
	Timeout time.Duration
	// UserAgent is sent on every request; default "enermaps-wms"
	UserAgent string
}

// NewOutbound creates the client for legend fetches. Legend lookups hit a
// single host, so the idle pool is kept per host.
func NewOutbound(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "enermaps-wms"
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
	}
	return &http.Client{
		Transport: userAgent{next: transport, value: opts.UserAgent},
		Timeout:   opts.Timeout,
	}
}

type userAgent struct {
	next  http.RoundTripper
	value string
}

func (u userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", u.value)
	return u.next.RoundTrip(r)
}
