// Package metrics exposes Prometheus collectors for the report service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reportsSubmittedTotal         *prometheus.CounterVec
	reportTransitionsTotal        *prometheus.CounterVec
	watchPollsTotal               prometheus.Counter
	quotaDecrementFailuresTotal   prometheus.Counter
	generatorActiveWorkers        prometheus.Gauge
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	generatorRateLimitWaitSeconds *prometheus.HistogramVec
	robotsFallbackTotal           prometheus.Counter

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		reportsSubmittedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditsnap_reports_submitted_total",
				Help: "Submissions partitioned by result.",
			},
			[]string{"result"},
		)

		reportTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditsnap_report_transitions_total",
				Help: "Applied lifecycle transitions partitioned by target status.",
			},
			[]string{"to"},
		)

		watchPollsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "auditsnap_watch_polls_total",
				Help: "Store reads performed while watching reports.",
			},
		)

		quotaDecrementFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "auditsnap_quota_decrement_failures_total",
				Help: "Quota decrements that failed after the report was recorded.",
			},
		)

		generatorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "auditsnap_generator_active_workers",
				Help: "Workers currently generating a report.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
			},
			[]string{"method", "route"},
		)

		generatorRateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditsnap_generator_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the per-domain limiter before fetching.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"domain"},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "auditsnap_generator_robots_fallback_total",
				Help: "robots.txt fetches that timed out and fell back to allow-all.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSubmission counts a submission outcome.
func ObserveSubmission(result string) {
	if reportsSubmittedTotal == nil {
		return
	}
	reportsSubmittedTotal.WithLabelValues(result).Inc()
}

// ObserveTransition counts an applied transition.
func ObserveTransition(to string) {
	if reportTransitionsTotal == nil {
		return
	}
	reportTransitionsTotal.WithLabelValues(to).Inc()
}

// ObserveWatchPoll counts one store read made by a watcher.
func ObserveWatchPoll() {
	if watchPollsTotal == nil {
		return
	}
	watchPollsTotal.Inc()
}

// ObserveQuotaDecrementFailure counts a decrement that errored after insert.
func ObserveQuotaDecrementFailure() {
	if quotaDecrementFailuresTotal == nil {
		return
	}
	quotaDecrementFailuresTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if generatorActiveWorkers != nil {
		generatorActiveWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if generatorActiveWorkers != nil {
		generatorActiveWorkers.Dec()
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	if generatorRateLimitWaitSeconds == nil {
		return
	}
	generatorRateLimitWaitSeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// ObserveRobotsFallback counts a robots.txt fetch that fell back to allow-all.
func ObserveRobotsFallback() {
	if robotsFallbackTotal != nil {
		robotsFallbackTotal.Inc()
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// Middleware records request counts and latency keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer when it supports streaming.
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
