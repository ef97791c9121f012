// Package metrics exposes Prometheus collectors for the calendar collector.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal            *prometheus.CounterVec
	fetchBytesTotal         *prometheus.CounterVec
	retriesTotal            *prometheus.CounterVec
	throttleDelaySeconds    *prometheus.HistogramVec
	hostsBlockedTotal       *prometheus.CounterVec
	rendersTotal            *prometheus.CounterVec
	sourceEventsTotal       *prometheus.CounterVec
	sourceDegraded          *prometheus.GaugeVec
	lkgMergesTotal          *prometheus.CounterVec
	schemaBreaksTotal       *prometheus.CounterVec
	fallbacksTotal          *prometheus.CounterVec
	quorumAlertsTotal       prometheus.Counter
	runsTotal               *prometheus.CounterVec
	runDurationSeconds      prometheus.Histogram
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_fetches_total",
				Help: "Total outbound fetches, labeled by host, status class, and cache outcome.",
			},
			[]string{"host", "status", "cache"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_fetch_bytes_total",
				Help: "Total bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_retries_total",
				Help: "Total fetch retries, labeled by host.",
			},
			[]string{"host"},
		)

		throttleDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calendar_throttle_delay_seconds",
				Help:    "Histogram of politeness throttle wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		hostsBlockedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_hosts_blocked_total",
				Help: "Hosts blocked for the rest of a run after repeated 403 responses.",
			},
			[]string{"host"},
		)

		rendersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_renders_total",
				Help: "Headless renders performed, labeled by host and status class.",
			},
			[]string{"host", "status"},
		)

		sourceEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_source_events_total",
				Help: "Events collected per source, labeled by discovery path.",
			},
			[]string{"source", "path"},
		)

		sourceDegraded = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "calendar_source_degraded",
				Help: "1 when the source finished its last run under its floor, else 0.",
			},
			[]string{"source"},
		)

		lkgMergesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_lkg_merges_total",
				Help: "Runs where a source was served from its last-known-good snapshot.",
			},
			[]string{"source"},
		)

		schemaBreaksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_schema_breaks_total",
				Help: "Schema drift detections (zero parse with a changed container hash).",
			},
			[]string{"source"},
		)

		fallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_fallbacks_total",
				Help: "Fallback handler activations per source.",
			},
			[]string{"source"},
		)

		quorumAlertsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "calendar_quorum_alerts_total",
				Help: "Rate-limit quorum alerts raised (two or more big feeders under threshold).",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_runs_total",
				Help: "Collection runs, labeled by overall status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "calendar_run_duration_seconds",
				Help:    "Histogram of end-to-end collection run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "error"
	}
}

// ObserveFetch records one completed fetch.
func ObserveFetch(host string, statusCode int, fromCache bool, bytesFetched int) {
	cache := "miss"
	if fromCache {
		cache = "hit"
	}
	fetchesTotal.WithLabelValues(host, statusClass(statusCode), cache).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveRetry counts a retry attempt against a host.
func ObserveRetry(host string) {
	retriesTotal.WithLabelValues(host).Inc()
}

// ObserveThrottleDelay records the duration of a politeness wait.
func ObserveThrottleDelay(host string, duration time.Duration) {
	throttleDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHostBlocked counts a host being cut off after repeated 403s.
func ObserveHostBlocked(host string) {
	hostsBlockedTotal.WithLabelValues(host).Inc()
}

// ObserveRender records one headless render.
func ObserveRender(host string, statusCode int) {
	rendersTotal.WithLabelValues(host, statusClass(statusCode)).Inc()
}

// ObserveSourceEvents counts events a source contributed via a discovery path.
func ObserveSourceEvents(source, path string, count int) {
	if count > 0 {
		sourceEventsTotal.WithLabelValues(source, path).Add(float64(count))
	}
}

// SetSourceDegraded flips the per-source degradation gauge.
func SetSourceDegraded(source string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1.0
	}
	sourceDegraded.WithLabelValues(source).Set(v)
}

// ObserveLKGMerge counts a last-known-good merge for a source.
func ObserveLKGMerge(source string) {
	lkgMergesTotal.WithLabelValues(source).Inc()
}

// ObserveSchemaBreak counts a schema drift detection for a source.
func ObserveSchemaBreak(source string) {
	schemaBreaksTotal.WithLabelValues(source).Inc()
}

// ObserveFallback counts a fallback activation for a source.
func ObserveFallback(source string) {
	fallbacksTotal.WithLabelValues(source).Inc()
}

// ObserveQuorumAlert counts a rate-limit quorum alert.
func ObserveQuorumAlert() {
	quorumAlertsTotal.Inc()
}

// ObserveRun records a finished collection run.
func ObserveRun(status string, duration time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
