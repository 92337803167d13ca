// Package metrics exposes Prometheus collectors for the daily puzzle service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheErrorHit = "error_hit"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdle_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewdle_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)

	clueFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdle_clue_fetch_total",
			Help: "Total number of clue acquisitions, labeled by site and outcome.",
		},
		[]string{"site", "status"},
	)

	clueFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewdle_clue_fetch_duration_seconds",
			Help:    "Histogram of clue fetch latencies, labeled by site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"site"},
	)

	dailyCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdle_daily_cache_total",
			Help: "Daily cache lookups, labeled by result.",
		},
		[]string{"result"},
	)

	selectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdle_selection_total",
			Help: "Daily selections, labeled by the rotation rule that produced them.",
		},
		[]string{"rule"},
	)

	selectionPersistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewdle_selection_persist_failures_total",
			Help: "Selections that could not be recorded in the catalog.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewdle_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveClue records the outcome and latency of one clue acquisition.
func ObserveClue(rawURL, status string, duration time.Duration) {
	site := SanitizeSite(rawURL)
	clueFetchTotal.WithLabelValues(site, status).Inc()
	clueFetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveCache records a daily cache lookup result.
func ObserveCache(result string) {
	dailyCacheTotal.WithLabelValues(result).Inc()
}

// ObserveSelection records which rotation rule picked the day's entry.
func ObserveSelection(rule string) {
	selectionTotal.WithLabelValues(rule).Inc()
}

// ObserveSelectionPersistFailure increments the persistence failure counter.
func ObserveSelectionPersistFailure() {
	selectionPersistFailuresTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
