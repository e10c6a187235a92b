// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline and the read API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Analysis pipeline metrics
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	StreamPoints     prometheus.Histogram
	MomentsDetected  *prometheus.CounterVec

	// Provider metrics
	ProviderFetches *prometheus.CounterVec

	// Narration metrics
	NarrationsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
)

// Init initializes all metrics and registers them with Prometheus.
// Safe to call multiple times.
func Init() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		AnalysesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runsight_analyses_total",
				Help: "Total number of analysis attempts by confidence tier and outcome",
			},
			[]string{"tier", "status"},
		)

		AnalysisDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runsight_analysis_duration_seconds",
				Help:    "Time taken to interpret one activity stream",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // from 1ms to ~4s
			},
			[]string{"tier"},
		)

		StreamPoints = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "runsight_stream_points",
				Help:    "Number of samples in analyzed activity streams",
				Buckets: prometheus.ExponentialBuckets(60, 2, 10), // from 1min to ~8.5h at 1Hz
			},
		)

		MomentsDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runsight_moments_detected_total",
				Help: "Total number of notable moments detected by type",
			},
			[]string{"type"},
		)

		ProviderFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runsight_provider_fetches_total",
				Help: "Total number of telemetry provider fetches by outcome",
			},
			[]string{"outcome"},
		)

		NarrationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runsight_narrations_total",
				Help: "Total number of narration attempts by outcome",
			},
			[]string{"status"},
		)

		APIRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runsight_api_requests_total",
				Help: "Total number of API requests by route and response code",
			},
			[]string{"method", "route", "code"},
		)

		APIRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runsight_api_request_duration_seconds",
				Help:    "API request latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
			},
			[]string{"method", "route"},
		)

		registry.MustRegister(
			AnalysesTotal,
			AnalysisDuration,
			StreamPoints,
			MomentsDetected,
			ProviderFetches,
			NarrationsTotal,
			APIRequestsTotal,
			APIRequestDuration,
		)
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// Handler returns the metrics HTTP handler for mounting on a router.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
}

// RegisterHandler registers the metrics HTTP handler on a ServeMux
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled {
		mux.Handle(defaultMetricsPath, Handler())
	}
}

func RecordAnalysis(tier, status string) {
	if metricsEnabled && AnalysesTotal != nil {
		AnalysesTotal.WithLabelValues(tier, status).Inc()
	}
}

// ObserveAnalysis returns a closure that records the elapsed time when
// called. The tier is resolved late because it is only known afterwards.
func ObserveAnalysis() func(tier string) {
	if !metricsEnabled || AnalysisDuration == nil {
		return func(string) {}
	}

	start := time.Now()
	return func(tier string) {
		AnalysisDuration.WithLabelValues(tier).Observe(time.Since(start).Seconds())
	}
}

func RecordStreamPoints(n int) {
	if metricsEnabled && StreamPoints != nil {
		StreamPoints.Observe(float64(n))
	}
}

func RecordMoment(momentType string) {
	if metricsEnabled && MomentsDetected != nil {
		MomentsDetected.WithLabelValues(momentType).Inc()
	}
}

func RecordProviderFetch(outcome string) {
	if metricsEnabled && ProviderFetches != nil {
		ProviderFetches.WithLabelValues(outcome).Inc()
	}
}

func RecordNarration(status string) {
	if metricsEnabled && NarrationsTotal != nil {
		NarrationsTotal.WithLabelValues(status).Inc()
	}
}

func RecordAPIRequest(method, route string, code int, duration time.Duration) {
	if metricsEnabled && APIRequestsTotal != nil {
		APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
		APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}
