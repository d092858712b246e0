// Package metrics defines the Prometheus metric collectors used across the
// ingestion platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	JobsTriggeredTotal   prometheus.Counter
	JobsRetriedTotal     prometheus.Counter
	JobsFinishedTotal    *prometheus.CounterVec
	JobDuration          prometheus.Histogram
	ActiveJobs           prometheus.Gauge
	WebhookUpdatesTotal  *prometheus.CounterVec
	WorkerDispatchTotal  *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates all Prometheus collectors. Call MustRegister to attach them
// to the default registry before serving scrapes.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		JobsTriggeredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_jobs_triggered_total",
				Help: "Total ingestion jobs created.",
			},
		),
		JobsRetriedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_jobs_retried_total",
				Help: "Total manual job retries.",
			},
		),
		JobsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_jobs_finished_total",
				Help: "Total jobs reaching a terminal status, by outcome (completed, failed, cancelled).",
			},
			[]string{"outcome"},
		),
		JobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingestion_job_duration_seconds",
				Help:    "Wall-clock time from job creation to terminal status.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		ActiveJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingestion_jobs_active",
				Help: "Number of jobs currently queued or processing.",
			},
		),
		WebhookUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_webhook_updates_total",
				Help: "Total webhook status updates by reported status.",
			},
			[]string{"status"},
		),
		WorkerDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_dispatch_total",
				Help: "Total worker dispatch attempts by result (ok, error).",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "status_cache_hits_total",
				Help: "Total job status reads served from the cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "status_cache_misses_total",
				Help: "Total job status reads that missed the cache.",
			},
		),
	}

	return m
}

// MustRegister registers every collector with the default Prometheus
// registry. It panics if called twice for the same Metrics.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.JobsTriggeredTotal,
		m.JobsRetriedTotal,
		m.JobsFinishedTotal,
		m.JobDuration,
		m.ActiveJobs,
		m.WebhookUpdatesTotal,
		m.WorkerDispatchTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
