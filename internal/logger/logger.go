// Package logger builds the zerolog logger of the service and carries
// per-request fields through the context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	// SampleN keeps one in N events; zero or less keeps all
	SampleN   int
	Service   string
	Component string
}

type ctxKey int

const (
	keyRequestID ctxKey = iota
	keyOperation
	keyComponent
	keyLayers
)

// context fields in the order they are written on every event
var fields = []struct {
	key  ctxKey
	name string
}{
	{keyRequestID, "request_id"},
	{keyOperation, "operation"},
	{keyComponent, "component"},
	{keyLayers, "layers"},
}

// WithRequestID stores reqID, generating one when empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, keyRequestID, reqID)
}

// WithOperation tags the context with the WMS request being served.
func WithOperation(ctx context.Context, op string) context.Context {
	return with(ctx, keyOperation, op)
}

// WithLayers tags the context with the requested layer names.
func WithLayers(ctx context.Context, layers string) context.Context {
	return with(ctx, keyLayers, layers)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return with(ctx, keyComponent, component)
}

func with(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// NewID returns 16 hex characters.
func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Build returns a JSON logger on out (stdout when nil), or a console
// logger when cfg.Console is set.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(out).Level(parseLevel(cfg.Level))
	if cfg.SampleN > 1 {
		base = base.Sample(&zerolog.BasicSampler{N: uint32(min(cfg.SampleN, 1<<31))})
	}

	zc := base.With().Timestamp()
	if cfg.Service != "" {
		zc = zc.Str("service", cfg.Service)
	}
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	return zc.Logger()
}

// FromContext returns a child of parent carrying the context fields. A nil
// parent logs nowhere.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.Nop()
	if parent != nil {
		base = *parent
	}
	zc := base.With()
	for _, f := range fields {
		if s, ok := ctx.Value(f.key).(string); ok && s != "" {
			zc = zc.Str(f.name, s)
		}
	}
	l := zc.Logger()
	return &l
}
