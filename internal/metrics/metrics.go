package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for pageinsights.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimitHits   *prometheus.CounterVec

	// Analysis metrics
	RowsParsed  prometheus.Counter
	RowsSkipped *prometheus.CounterVec
	Articles    prometheus.Histogram

	// Generation metrics
	Generations       *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec
}

// New creates the metrics on a fresh registry, so several instances can
// coexist in one process.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),

		RowsParsed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_parsed_total",
				Help:      "CSV data rows parsed",
			},
		),
		RowsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_skipped_total",
				Help:      "CSV rows excluded from aggregation",
			},
			[]string{"reason"},
		),
		Articles: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dataset_articles",
				Help:      "Deduplicated articles per dataset",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		Generations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Insight generations by provider, mode and status",
			},
			[]string{"provider", "mode", "status"},
		),
		GenerationLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_latency_seconds",
				Help:      "Insight generation latency in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider", "mode"},
		),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records a served HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, latency time.Duration) {
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(latency.Seconds())
}

// RecordRateLimitHit records a rejected request.
func (m *Metrics) RecordRateLimitHit(route string) {
	m.RateLimitHits.WithLabelValues(route).Inc()
}

// RecordDataset records the shape of one parsed and aggregated dataset.
func (m *Metrics) RecordDataset(rows, noise, missingTitle, articles int) {
	m.RowsParsed.Add(float64(rows))
	if noise > 0 {
		m.RowsSkipped.WithLabelValues("low_views").Add(float64(noise))
	}
	if missingTitle > 0 {
		m.RowsSkipped.WithLabelValues("missing_title").Add(float64(missingTitle))
	}
	m.Articles.Observe(float64(articles))
}

// RecordGeneration records one insight generation.
func (m *Metrics) RecordGeneration(provider, mode string, ok bool, latency time.Duration) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.Generations.WithLabelValues(provider, mode, status).Inc()
	m.GenerationLatency.WithLabelValues(provider, mode).Observe(latency.Seconds())
}
