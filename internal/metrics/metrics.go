// Package metrics holds the Prometheus collectors for scans, quarantine
// operations and the realtime watcher. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wib"

// Skip reasons for files_skipped_total.
const (
	SkipTooLarge   = "too_large"
	SkipUnreadable = "unreadable"
	SkipNotRegular = "not_regular"
)

type Metrics struct {
	registry *prometheus.Registry

	filesScanned  prometheus.Counter
	filesSkipped  *prometheus.CounterVec
	detections    *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	quarantineOps *prometheus.CounterVec
	watcherEvents *prometheus.CounterVec
}

// New registers every collector on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		filesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_scanned_total",
			Help:      "Files read and run through the detection pipeline.",
		}),
		filesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Candidate files excluded from a scan, by reason.",
		}, []string{"reason"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detections produced, by kind.",
		}, []string{"kind"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of one scan invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		quarantineOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quarantine_operations_total",
			Help:      "Quarantine store operations, by operation and result.",
		}, []string{"op", "result"}),
		watcherEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_events_total",
			Help:      "File-system events seen by the realtime watcher, by operation.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.filesScanned,
		m.filesSkipped,
		m.detections,
		m.scanDuration,
		m.quarantineOps,
		m.watcherEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FileScanned() {
	if m == nil {
		return
	}
	m.filesScanned.Inc()
}

func (m *Metrics) FileSkipped(reason string) {
	if m == nil {
		return
	}
	m.filesSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Detection(kind string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveScan(d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
}

// QuarantineOp records one store operation; err decides the result label.
func (m *Metrics) QuarantineOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.quarantineOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) WatcherEvent(op string) {
	if m == nil {
		return
	}
	m.watcherEvents.WithLabelValues(op).Inc()
}
