package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Backend client metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge
	BackendRetriesTotal        prometheus.Counter
	BackendTokenRefreshesTotal prometheus.Counter

	// List-query cache metrics
	QueryCacheHitsTotal   *prometheus.CounterVec
	QueryCacheMissesTotal *prometheus.CounterVec
	StaleResultsServed    *prometheus.CounterVec
	StalePageRejections   *prometheus.CounterVec

	// Common-data metrics
	CommonDataFetchesTotal *prometheus.CounterVec
	CommonDataRefreshTotal *prometheus.CounterVec
	RealtimeEventsTotal    *prometheus.CounterVec

	// Permission metrics
	GrantCacheHitsTotal   prometheus.Counter
	GrantCacheMissesTotal prometheus.Counter

	// System metrics
	ScreenReloadTotal *prometheus.CounterVec
	ScreensLoaded     prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffdeck_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffdeck_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffdeck_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_backend_requests_total",
			Help: "Total number of backend API requests.",
		}, []string{"method", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffdeck_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"method"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "staffdeck_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BackendRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffdeck_backend_retries_total",
			Help: "Total number of backend request retries.",
		}),
		BackendTokenRefreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffdeck_backend_token_refreshes_total",
			Help: "Total number of bearer token refreshes after a 401.",
		}),

		// Query cache
		QueryCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_query_cache_hits_total",
			Help: "Total list-query cache hits.",
		}, []string{"resource"}),
		QueryCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_query_cache_misses_total",
			Help: "Total list-query cache misses.",
		}, []string{"resource"}),
		StaleResultsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_stale_results_served_total",
			Help: "Total list results served from an expired entry after a fetch failure.",
		}, []string{"resource"}),
		StalePageRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_stale_page_rejections_total",
			Help: "Total list requests rejected by the pagination guard.",
		}, []string{"resource"}),

		// Common data
		CommonDataFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_common_data_fetches_total",
			Help: "Total common-data slice fetches.",
		}, []string{"status"}),
		CommonDataRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_common_data_refreshes_total",
			Help: "Total partial common-data refreshes triggered by change events.",
		}, []string{"key"}),
		RealtimeEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_realtime_events_total",
			Help: "Total events received on the common-data channel.",
		}, []string{"outcome"}),

		// Permissions
		GrantCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffdeck_grant_cache_hits_total",
			Help: "Total grant cache hits.",
		}),
		GrantCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffdeck_grant_cache_misses_total",
			Help: "Total grant cache misses.",
		}),

		// System
		ScreenReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffdeck_screen_reload_total",
			Help: "Total screen definition reloads.",
		}, []string{"status"}),
		ScreensLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "staffdeck_screens_loaded",
			Help: "Number of loaded screen definitions.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		m.BackendTokenRefreshesTotal,
		m.QueryCacheHitsTotal,
		m.QueryCacheMissesTotal,
		m.StaleResultsServed,
		m.StalePageRejections,
		m.CommonDataFetchesTotal,
		m.CommonDataRefreshTotal,
		m.RealtimeEventsTotal,
		m.GrantCacheHitsTotal,
		m.GrantCacheMissesTotal,
		m.ScreenReloadTotal,
		m.ScreensLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordBackendRequest records a backend API request.
func (m *Metrics) RecordBackendRequest(method string, status int, duration time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the breaker gauge. 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetCircuitBreakerState(state float64) {
	m.BackendCircuitBreakerState.Set(state)
}

// RecordQueryCacheHit records a list-query cache hit.
func (m *Metrics) RecordQueryCacheHit(resource string) {
	m.QueryCacheHitsTotal.WithLabelValues(resource).Inc()
}

// RecordQueryCacheMiss records a list-query cache miss.
func (m *Metrics) RecordQueryCacheMiss(resource string) {
	m.QueryCacheMissesTotal.WithLabelValues(resource).Inc()
}

// RecordStaleResult records a stale envelope served after a fetch failure.
func (m *Metrics) RecordStaleResult(resource string) {
	m.StaleResultsServed.WithLabelValues(resource).Inc()
}

// RecordStalePageRejection records a pagination-guard rejection.
func (m *Metrics) RecordStalePageRejection(resource string) {
	m.StalePageRejections.WithLabelValues(resource).Inc()
}

// RecordCommonDataFetch records one slice fetch outcome ("ok" or "error").
func (m *Metrics) RecordCommonDataFetch(status string) {
	m.CommonDataFetchesTotal.WithLabelValues(status).Inc()
}

// RecordCommonDataRefresh records a push-triggered partial refresh.
func (m *Metrics) RecordCommonDataRefresh(key string) {
	m.CommonDataRefreshTotal.WithLabelValues(key).Inc()
}

// RecordRealtimeEvent records one channel event ("dispatched", "ignored",
// "malformed").
func (m *Metrics) RecordRealtimeEvent(outcome string) {
	m.RealtimeEventsTotal.WithLabelValues(outcome).Inc()
}

// RecordGrantCacheHit records a grant cache hit.
func (m *Metrics) RecordGrantCacheHit() {
	m.GrantCacheHitsTotal.Inc()
}

// RecordGrantCacheMiss records a grant cache miss.
func (m *Metrics) RecordGrantCacheMiss() {
	m.GrantCacheMissesTotal.Inc()
}

// RecordScreenReload records a screen definition reload.
func (m *Metrics) RecordScreenReload(status string) {
	m.ScreenReloadTotal.WithLabelValues(status).Inc()
}

// SetScreensLoaded sets the number of loaded screen definitions.
func (m *Metrics) SetScreensLoaded(count float64) {
	m.ScreensLoaded.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics
// using chi's route pattern (not the actual URL path) to avoid label
// cardinality explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
