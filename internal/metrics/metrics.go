package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventlink"

// Statuses lists every status label exported by the status gauge.
var Statuses = []string{"connecting", "connected", "disconnected", "error"}

// Metrics holds every collector exported by the process. All methods are
// safe to call on a nil *Metrics, so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	status              *prometheus.GaugeVec
	connects            prometheus.Counter
	reconnectsScheduled prometheus.Counter
	reconnectAttempt    prometheus.Gauge
	eventsReceived      *prometheus.CounterVec
	framesDiscarded     *prometheus.CounterVec
	pingsSent           prometheus.Counter
	sendsDropped        prometheus.Counter

	archiveRows    prometheus.Counter
	archiveFlushes prometheus.Counter
	archiveErrors  prometheus.Counter
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "status",
			Help:      "1 for the current connection status, 0 otherwise",
		}, []string{"status"}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "opens_total",
			Help:      "Transports opened successfully",
		}),
		reconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_scheduled_total",
			Help:      "Automatic reconnect attempts scheduled after an unexpected close",
		}),
		reconnectAttempt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_attempt",
			Help:      "Consecutive reconnect attempts since the last successful open",
		}),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "events_received_total",
			Help:      "Application events received, by event name",
		}, []string{"event"}),
		framesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "frames_discarded_total",
			Help:      "Inbound frames not delivered to consumers, by reason",
		}, []string{"reason"}),
		pingsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "pings_sent_total",
			Help:      "Keepalive ping frames written",
		}),
		sendsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "sends_dropped_total",
			Help:      "Outbound payloads dropped because the transport was not open",
		}),
		archiveRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_inserted_total",
			Help:      "Event rows inserted by the archive writer",
		}),
		archiveFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flushes_total",
			Help:      "Archive batches flushed",
		}),
		archiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "errors_total",
			Help:      "Archive batches that failed to insert",
		}),
	}

	m.registry.MustRegister(
		m.status,
		m.connects,
		m.reconnectsScheduled,
		m.reconnectAttempt,
		m.eventsReceived,
		m.framesDiscarded,
		m.pingsSent,
		m.sendsDropped,
		m.archiveRows,
		m.archiveFlushes,
		m.archiveErrors,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetStatus marks status as the single active status label.
func (m *Metrics) SetStatus(status string) {
	if m == nil {
		return
	}
	for _, s := range Statuses {
		if s == status {
			m.status.WithLabelValues(s).Set(1)
		} else {
			m.status.WithLabelValues(s).Set(0)
		}
	}
}

// ConnectionOpened records a successful open.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connects.Inc()
	m.reconnectAttempt.Set(0)
}

// ReconnectScheduled records a scheduled retry and the current attempt.
func (m *Metrics) ReconnectScheduled(attempt int) {
	if m == nil {
		return
	}
	m.reconnectsScheduled.Inc()
	m.reconnectAttempt.Set(float64(attempt))
}

// EventReceived records one application event.
func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	if event == "" {
		event = "unnamed"
	}
	m.eventsReceived.WithLabelValues(event).Inc()
}

// FrameDiscarded records a frame that never reached consumers.
func (m *Metrics) FrameDiscarded(reason string) {
	if m == nil {
		return
	}
	m.framesDiscarded.WithLabelValues(reason).Inc()
}

// PingSent records a keepalive ping.
func (m *Metrics) PingSent() {
	if m == nil {
		return
	}
	m.pingsSent.Inc()
}

// SendDropped records an outbound payload dropped while not connected.
func (m *Metrics) SendDropped() {
	if m == nil {
		return
	}
	m.sendsDropped.Inc()
}

// ArchiveFlushed records a successful archive batch.
func (m *Metrics) ArchiveFlushed(rows int) {
	if m == nil {
		return
	}
	m.archiveFlushes.Inc()
	m.archiveRows.Add(float64(rows))
}

// ArchiveFailed records a failed archive batch.
func (m *Metrics) ArchiveFailed() {
	if m == nil {
		return
	}
	m.archiveErrors.Inc()
}
