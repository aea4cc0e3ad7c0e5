// Package health serves the liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessReporter is implemented by the legend feed consumer. It is
// ready while it takes part in a group session, with or without
// partitions.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

type readiness struct {
	Status     string  `json:"status"`
	LegendFeed string  `json:"legend_feed"`
	Partitions []int32 `json:"partitions,omitempty"`
}

// Readiness answers 503 until the legend feed has joined its consumer
// group. A nil feed means the server only reads legends on demand and is
// always ready.
func Readiness(feed ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := readiness{Status: "ready", LegendFeed: "disabled"}
		if feed != nil {
			ready, parts := feed.Readiness()
			out.LegendFeed = "joined"
			if len(parts) > 0 {
				out.LegendFeed = "assigned"
				out.Partitions = parts
			}
			if !ready {
				out.Status = "not_ready"
				out.LegendFeed = "waiting"
				out.Partitions = nil
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
