package api

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects server metrics. Counters are kept twice: as atomics for
// the JSON /metricz snapshot and in a Prometheus registry for /metrics.
type Metrics struct {
	startTime      time.Time
	requests       atomic.Int64
	serverErrors   atomic.Int64
	clientErrors   atomic.Int64
	documentWrites atomic.Int64
	documentReads  atomic.Int64
	listeners      atomic.Int64
	droppedChanges atomic.Int64

	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	docWrites    *prometheus.CounterVec
	docReads     prometheus.Counter
	listenGauge  prometheus.Gauge
	dropped      prometheus.Counter
	webhookSent  *prometheus.CounterVec
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Requests       int64   `json:"requests"`
	ServerErrors   int64   `json:"server_errors"`
	ClientErrors   int64   `json:"client_errors"`
	DocumentWrites int64   `json:"document_writes"`
	DocumentReads  int64   `json:"document_reads"`
	Listeners      int64   `json:"listeners"`
	DroppedChanges int64   `json:"dropped_changes"`
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sz_cloud",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sz_cloud",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		docWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sz_cloud",
			Name:      "document_writes_total",
			Help:      "Document writes by operation.",
		}, []string{"op"}),
		docReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sz_cloud",
			Name:      "document_reads_total",
			Help:      "Document read requests (get, list, where).",
		}),
		listenGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sz_cloud",
			Name:      "listeners",
			Help:      "Open websocket change listeners.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sz_cloud",
			Name:      "dropped_changes_total",
			Help:      "Listeners disconnected for falling behind.",
		}),
		webhookSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sz_cloud",
			Name:      "webhook_events_total",
			Help:      "Change events posted to the webhook by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.docWrites, m.docReads, m.listenGauge, m.dropped, m.webhookSent,
	)
	return m
}

// RecordRequest counts a finished request and categorizes its status code.
func (m *Metrics) RecordRequest(method string, code int, dur time.Duration) {
	m.requests.Add(1)
	switch {
	case code >= 500:
		m.serverErrors.Add(1)
	case code >= 400:
		m.clientErrors.Add(1)
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(dur.Seconds())
}

// RecordWrite counts a document add, set or delete.
func (m *Metrics) RecordWrite(op string) {
	m.documentWrites.Add(1)
	m.docWrites.WithLabelValues(op).Inc()
}

// RecordRead counts a document read request.
func (m *Metrics) RecordRead() {
	m.documentReads.Add(1)
	m.docReads.Inc()
}

// ListenerOpened and ListenerClosed track open websocket listeners.
func (m *Metrics) ListenerOpened() {
	m.listeners.Add(1)
	m.listenGauge.Inc()
}

func (m *Metrics) ListenerClosed() {
	m.listeners.Add(-1)
	m.listenGauge.Dec()
}

// RecordDropped counts a listener cut off for being too slow.
func (m *Metrics) RecordDropped() {
	m.droppedChanges.Add(1)
	m.dropped.Inc()
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:  time.Since(m.startTime).Seconds(),
		Requests:       m.requests.Load(),
		ServerErrors:   m.serverErrors.Load(),
		ClientErrors:   m.clientErrors.Load(),
		DocumentWrites: m.documentWrites.Load(),
		DocumentReads:  m.documentReads.Load(),
		Listeners:      m.listeners.Load(),
		DroppedChanges: m.droppedChanges.Load(),
	}
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWebhook counts one webhook POST of n events.
func (m *Metrics) RecordWebhook(n int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.webhookSent.WithLabelValues(result).Add(float64(n))
}
