package main

import (
	"net/http"

	"github.com/rickgao/eventlink/internal/archive"
	"github.com/rickgao/eventlink/internal/connection"
	"github.com/rickgao/eventlink/internal/metrics"
)

type healthResponse struct {
	Status     string         `json:"status"`
	Connection string         `json:"connection"`
	LastEvent  string         `json:"last_event,omitempty"`
	Archive    *archive.Stats `json:"archive,omitempty"`
}

// newHTTPHandler serves Prometheus metrics at metricsPath and a health
// document at /healthz. Health is degraded while the stream is not
// connected.
func newHTTPHandler(metricsPath string, m *metrics.Metrics, mgr connection.Manager, writer *archive.Writer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, m.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := mgr.Status()
		health := healthResponse{
			Status:     "healthy",
			Connection: string(status),
		}
		if status != connection.StatusConnected {
			health.Status = "degraded"
		}
		if ev, ok := mgr.LastEvent(); ok {
			health.LastEvent = ev.Event
		}
		if writer != nil {
			stats := writer.Stats()
			health.Archive = &stats
		}

		w.Header().Set("Content-Type", "application/json")
		if status == connection.StatusError {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
