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

// Metrics holds all Prometheus metric instruments for the BFF.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Submission metrics
	SubmissionsTotal         *prometheus.CounterVec
	SubmissionDuration       *prometheus.HistogramVec
	ValidationFailuresTotal  *prometheus.CounterVec
	SubmissionReplaysTotal   *prometheus.CounterVec
	SubmissionConflictsTotal *prometheus.CounterVec

	// Backend request metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec

	// Lookup cache metrics
	LookupCacheHitsTotal   *prometheus.CounterVec
	LookupCacheMissesTotal *prometheus.CounterVec

	// Draft metrics
	DraftSavesTotal   *prometheus.CounterVec
	DraftsPurgedTotal prometheus.Counter

	// System metrics
	DefinitionReloadTotal *prometheus.CounterVec
	DefinitionsLoaded     prometheus.Gauge
	ViewRecordsReturned   *prometheus.HistogramVec
	ExportsTotal          *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbridge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbridge_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbridge_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Submissions
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_submissions_total",
			Help: "Total number of entity submissions.",
		}, []string{"entity", "status"}),
		SubmissionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbridge_submission_duration_seconds",
			Help:    "Submission handling duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"entity"}),
		ValidationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_validation_failures_total",
			Help: "Total number of submissions rejected by local validation.",
		}, []string{"entity"}),
		SubmissionReplaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_submission_replays_total",
			Help: "Total number of submissions answered from the idempotency store.",
		}, []string{"entity"}),
		SubmissionConflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_submission_conflicts_total",
			Help: "Total number of idempotency key conflicts.",
		}, []string{"entity"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_backend_requests_total",
			Help: "Total number of backend service requests.",
		}, []string{"service_id", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbridge_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"service_id"}),

		// Lookup cache
		LookupCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_lookup_cache_hits_total",
			Help: "Total lookup cache hits.",
		}, []string{"lookup_id"}),
		LookupCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_lookup_cache_misses_total",
			Help: "Total lookup cache misses.",
		}, []string{"lookup_id"}),

		// Drafts
		DraftSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_draft_saves_total",
			Help: "Total number of draft saves.",
		}, []string{"entity"}),
		DraftsPurgedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formbridge_drafts_purged_total",
			Help: "Total number of expired drafts purged.",
		}),

		// System
		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "formbridge_definitions_loaded",
			Help: "Number of loaded entity definitions.",
		}),
		ViewRecordsReturned: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbridge_view_records_returned",
			Help:    "Number of records returned per view projection.",
			Buckets: []float64{1, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"entity"}),
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_exports_total",
			Help: "Total number of CSV exports served.",
		}, []string{"entity"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Submissions
		m.SubmissionsTotal,
		m.SubmissionDuration,
		m.ValidationFailuresTotal,
		m.SubmissionReplaysTotal,
		m.SubmissionConflictsTotal,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		// Lookup cache
		m.LookupCacheHitsTotal,
		m.LookupCacheMissesTotal,
		// Drafts
		m.DraftSavesTotal,
		m.DraftsPurgedTotal,
		// System
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
		m.ViewRecordsReturned,
		m.ExportsTotal,
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

// RecordSubmission records a completed submission attempt.
func (m *Metrics) RecordSubmission(entity, status string, duration time.Duration) {
	m.SubmissionsTotal.WithLabelValues(entity, status).Inc()
	m.SubmissionDuration.WithLabelValues(entity).Observe(duration.Seconds())
}

// RecordValidationFailure records a submission rejected by local validation.
func (m *Metrics) RecordValidationFailure(entity string) {
	m.ValidationFailuresTotal.WithLabelValues(entity).Inc()
}

// RecordSubmissionReplay records a submission answered from the idempotency store.
func (m *Metrics) RecordSubmissionReplay(entity string) {
	m.SubmissionReplaysTotal.WithLabelValues(entity).Inc()
}

// RecordSubmissionConflict records an idempotency key conflict.
func (m *Metrics) RecordSubmissionConflict(entity string) {
	m.SubmissionConflictsTotal.WithLabelValues(entity).Inc()
}

// RecordBackendRequest records a backend service request.
func (m *Metrics) RecordBackendRequest(serviceID string, status int, duration time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(serviceID, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(serviceID).Observe(duration.Seconds())
}

// RecordLookupCacheHit records a lookup cache hit.
func (m *Metrics) RecordLookupCacheHit(lookupID string) {
	m.LookupCacheHitsTotal.WithLabelValues(lookupID).Inc()
}

// RecordLookupCacheMiss records a lookup cache miss.
func (m *Metrics) RecordLookupCacheMiss(lookupID string) {
	m.LookupCacheMissesTotal.WithLabelValues(lookupID).Inc()
}

// RecordDraftSave records a draft save.
func (m *Metrics) RecordDraftSave(entity string) {
	m.DraftSavesTotal.WithLabelValues(entity).Inc()
}

// RecordDraftsPurged records a batch of purged drafts.
func (m *Metrics) RecordDraftsPurged(count int) {
	m.DraftsPurgedTotal.Add(float64(count))
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	m.DefinitionsLoaded.Set(count)
}

// RecordViewProjection records the size of a view projection result.
func (m *Metrics) RecordViewProjection(entity string, records int) {
	m.ViewRecordsReturned.WithLabelValues(entity).Observe(float64(records))
}

// RecordExport records a CSV export.
func (m *Metrics) RecordExport(entity string) {
	m.ExportsTotal.WithLabelValues(entity).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
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
