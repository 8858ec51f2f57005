// Package metric holds the Prometheus collectors of the chat backend.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ai_chat"

// Metrics contains every collector. All Record methods are safe on a nil
// receiver so components can run without metrics in tests and CLIs.
type Metrics struct {
	registry *prometheus.Registry

	Classifications     *prometheus.CounterVec
	EventsSent          *prometheus.CounterVec
	ActiveConnections   *prometheus.GaugeVec
	HandshakeRejections prometheus.Counter
	SessionSaveFailures prometheus.Counter
	RelayFailures       prometheus.Counter
	PipelineDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "intent",
				Name:      "classifications_total",
				Help:      "Classified messages by outcome (accepted, uncertain, unclassified)",
			},
			[]string{"status"},
		),

		EventsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "events_total",
				Help:      "Events written to clients by transport and event type",
			},
			[]string{"transport", "type"},
		),

		ActiveConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "active_connections",
				Help:      "Open persistent connections by transport",
			},
			[]string{"transport"},
		),

		HandshakeRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "handshake_rejections_total",
				Help:      "Rejected upgrade handshakes",
			},
		),

		SessionSaveFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "save_failures_total",
				Help:      "Session documents that could not be persisted",
			},
		),

		RelayFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "publish_failures_total",
				Help:      "Unclassified records dropped because the event bus rejected them",
			},
		),

		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "Wall time of one pipeline run including pacing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"intent"},
		),
	}

	m.registry.MustRegister(
		m.Classifications,
		m.EventsSent,
		m.ActiveConnections,
		m.HandshakeRejections,
		m.SessionSaveFailures,
		m.RelayFailures,
		m.PipelineDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordClassification(status string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordEvent(transport, eventType string) {
	if m == nil {
		return
	}
	m.EventsSent.WithLabelValues(transport, eventType).Inc()
}

func (m *Metrics) ConnectionOpened(transport string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(transport).Inc()
}

func (m *Metrics) ConnectionClosed(transport string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(transport).Dec()
}

func (m *Metrics) RecordHandshakeRejection() {
	if m == nil {
		return
	}
	m.HandshakeRejections.Inc()
}

func (m *Metrics) RecordSessionSaveFailure() {
	if m == nil {
		return
	}
	m.SessionSaveFailures.Inc()
}

func (m *Metrics) RecordRelayFailure() {
	if m == nil {
		return
	}
	m.RelayFailures.Inc()
}

func (m *Metrics) ObservePipeline(intent string, seconds float64) {
	if m == nil {
		return
	}
	m.PipelineDuration.WithLabelValues(intent).Observe(seconds)
}
