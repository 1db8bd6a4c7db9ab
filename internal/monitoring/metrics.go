package monitoring

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/stat"
)

// recentWindow bounds how many lookup durations feed percentile estimates.
const recentWindow = 512

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Lookup metrics
	LookupsTotal   *prometheus.CounterVec
	LookupDuration prometheus.Histogram

	// Browser pool metrics
	BrowserTabsInUse prometheus.Gauge
	BrowserFailures  prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	registry  *prometheus.Registry
	startTime time.Time

	mu        sync.Mutex
	recent    []float64 // lookup durations in seconds, newest appended
	lookups   int64
	errors    int64
	totalSecs float64
}

// NewMetrics creates the metric collectors on a private registry so that
// multiple instances can coexist in one process.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry:  registry,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composition_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "composition_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),

		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composition_lookups_total",
				Help: "Composition lookups by outcome (hit, empty, cached, error)",
			},
			[]string{"outcome"},
		),
		LookupDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "composition_lookup_duration_seconds",
				Help:    "End-to-end lookup duration in seconds",
				Buckets: []float64{.01, .1, .5, 1, 2.5, 5, 10, 20, 30},
			},
		),

		BrowserTabsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "composition_browser_tabs_in_use",
				Help: "Browser tabs currently serving lookups",
			},
		),
		BrowserFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "composition_browser_failures_total",
				Help: "Navigations that failed or timed out",
			},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "composition_cache_hits_total",
				Help: "Lookups served from the result cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "composition_cache_misses_total",
				Help: "Lookups that missed the result cache",
			},
		),
	}
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLookup records a completed lookup with its outcome label.
func (m *Metrics) RecordLookup(outcome string, duration time.Duration) {
	m.LookupsTotal.WithLabelValues(outcome).Inc()
	secs := duration.Seconds()
	m.LookupDuration.Observe(secs)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	m.totalSecs += secs
	if outcome == "error" {
		m.errors++
	}
	m.recent = append(m.recent, secs)
	if len(m.recent) > recentWindow {
		m.recent = m.recent[len(m.recent)-recentWindow:]
	}
}

// Snapshot is the JSON view of service metrics.
type Snapshot struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	Lookups       int64   `json:"lookups"`
	Errors        int64   `json:"errors"`
	ErrorRate     float64 `json:"error_rate"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
}

// GetSnapshot computes a point-in-time summary. Percentiles come from a
// sliding window of recent lookups, not the full process history.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(m.startTime).Seconds(),
		Lookups:       m.lookups,
		Errors:        m.errors,
	}
	if m.lookups > 0 {
		snap.ErrorRate = float64(m.errors) / float64(m.lookups)
		snap.AvgLatencyMs = m.totalSecs / float64(m.lookups) * 1000
	}
	if len(m.recent) > 0 {
		sorted := make([]float64, len(m.recent))
		copy(sorted, m.recent)
		sort.Float64s(sorted)
		snap.P50LatencyMs = stat.Quantile(0.50, stat.Empirical, sorted, nil) * 1000
		snap.P95LatencyMs = stat.Quantile(0.95, stat.Empirical, sorted, nil) * 1000
		snap.P99LatencyMs = stat.Quantile(0.99, stat.Empirical, sorted, nil) * 1000
	}
	return snap
}

// Handler returns the Prometheus text exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Uptime returns how long the process has been running.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
