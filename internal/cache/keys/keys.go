// Package keys builds the Redis keys of cached legends.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const legendPrefix = "legend"

// Legend returns the cache key of a layer legend. The readable part is
// lossy, the hash of the exact layer name keeps keys distinct.
func Legend(layer string) string {
	layer = strings.TrimSpace(layer)
	readable := sanitizeLayer(layer)

	const maxReadableLen = 160
	if len(readable) > maxReadableLen {
		readable = readable[:maxReadableLen]
	}
	return fmt.Sprintf("%s:%s:%016x", legendPrefix, readable, xxhash.Sum64String(layer))
}

// LegendPattern matches every legend key.
func LegendPattern() string { return legendPrefix + ":*" }

// sanitizeLayer keeps the layer name readable in redis-cli: path
// separators become dots and every other run of unsafe runes one dash.
func sanitizeLayer(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '_':
			b.WriteRune(r)
			dash = false
		case r == '/':
			b.WriteByte('.')
			dash = false
		case !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return b.String()
}
