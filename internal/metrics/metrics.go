// Package metrics exposes pipeline counters over Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline counters. Counters are plain atomics so hot
// paths never touch Prometheus directly; the registry reads them lazily
// on scrape.
type Metrics struct {
	FramesProcessed     atomic.Uint64
	FramesDropped       atomic.Uint64
	GPSSamples          atomic.Uint64
	DetectionsSeen      atomic.Uint64
	DetectionsConfirmed atomic.Uint64
	NewPotholes         atomic.Uint64
	ReportsAccepted     atomic.Uint64
	ReportsSuppressed   atomic.Uint64
	PublishErrors       atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"pothole_frames_processed_total", "Total detection frames processed", m.FramesProcessed.Load},
		{"pothole_frames_dropped_total", "Total frames dropped by the event loop", m.FramesDropped.Load},
		{"pothole_gps_samples_total", "Total GPS samples ingested", m.GPSSamples.Load},
		{"pothole_detections_seen_total", "Total raw detections received", m.DetectionsSeen.Load},
		{"pothole_detections_confirmed_total", "Total detections confirmed by the smoother", m.DetectionsConfirmed.Load},
		{"pothole_new_total", "Total potholes counted as new this session", m.NewPotholes.Load},
		{"pothole_reports_accepted_total", "Total reports accepted by the deduplicator", m.ReportsAccepted.Load},
		{"pothole_reports_suppressed_total", "Total reports suppressed as spatial duplicates", m.ReportsSuppressed.Load},
		{"pothole_publish_errors_total", "Total sink publish errors", m.PublishErrors.Load},
	}
	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
