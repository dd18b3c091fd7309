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
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	traceDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}
	bodySizeBuckets      = []float64{100, 1024, 10240, 102400, 1048576}
	flushBatchBuckets    = []float64{1, 2, 5, 10, 20, 50, 100}
)

// Metrics holds all Prometheus metric instruments.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Recorder metrics
	TracesStartedTotal    *prometheus.CounterVec
	TracesFinishedTotal   *prometheus.CounterVec
	TraceDuration         *prometheus.HistogramVec
	ActiveTraces          prometheus.Gauge
	RecorderDroppedTotal  *prometheus.CounterVec
	DetailFlushTotal      *prometheus.CounterVec
	DetailFlushBatchSize  prometheus.Histogram
	DanglingTracesClosed  prometheus.Counter

	// Ingest metrics
	WebhookDuplicatesTotal *prometheus.CounterVec

	// Template metrics
	TemplateReloadTotal *prometheus.CounterVec
	TemplatesLoaded     prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightrec_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightrec_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightrec_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightrec_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Recorder
		TracesStartedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightrec_traces_started_total",
			Help: "Total number of traces started.",
		}, []string{"trigger_type"}),
		TracesFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightrec_traces_finished_total",
			Help: "Total number of traces that reached a terminal status.",
		}, []string{"status"}),
		TraceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightrec_trace_duration_seconds",
			Help:    "Trace duration from start to terminal transition.",
			Buckets: traceDurationBuckets,
		}, []string{"status"}),
		ActiveTraces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flightrec_active_traces",
			Help: "Number of in-flight trace contexts.",
		}),
		RecorderDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightrec_recorder_writes_dropped_total",
			Help: "Total number of recorder store writes that failed and were dropped.",
		}, []string{"op"}),
		DetailFlushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightrec_detail_flushes_total",
			Help: "Total number of detail buffer flushes.",
		}, []string{"status"}),
		DetailFlushBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightrec_detail_flush_batch_size",
			Help:    "Number of detail rows per buffer flush.",
			Buckets: flushBatchBuckets,
		}),
		DanglingTracesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightrec_dangling_traces_closed_total",
			Help: "Total number of dangling traces closed by the reconciler.",
		}),

		// Ingest
		WebhookDuplicatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightrec_webhook_duplicates_total",
			Help: "Total number of duplicate webhook deliveries suppressed.",
		}, []string{"system"}),

		// Templates
		TemplateReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightrec_template_reload_total",
			Help: "Total number of workflow template reloads.",
		}, []string{"status"}),
		TemplatesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flightrec_templates_loaded",
			Help: "Number of loaded workflow templates.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.TracesStartedTotal,
		m.TracesFinishedTotal,
		m.TraceDuration,
		m.ActiveTraces,
		m.RecorderDroppedTotal,
		m.DetailFlushTotal,
		m.DetailFlushBatchSize,
		m.DanglingTracesClosed,
		m.WebhookDuplicatesTotal,
		m.TemplateReloadTotal,
		m.TemplatesLoaded,
	)

	return m
}

// RecordHTTPRequest records metrics for one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	if reqSize > 0 {
		m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	}
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordWebhookDuplicate records a suppressed duplicate delivery.
func (m *Metrics) RecordWebhookDuplicate(system string) {
	m.WebhookDuplicatesTotal.WithLabelValues(system).Inc()
}

// RecordTemplateReload records a template reload attempt.
func (m *Metrics) RecordTemplateReload(status string) {
	m.TemplateReloadTotal.WithLabelValues(status).Inc()
}

// SetTemplatesLoaded sets the number of loaded templates.
func (m *Metrics) SetTemplatesLoaded(count float64) {
	m.TemplatesLoaded.Set(count)
}

// RecordDanglingTraceClosed records one reconciler-closed trace.
func (m *Metrics) RecordDanglingTraceClosed() {
	m.DanglingTracesClosed.Inc()
}

// --- Recorder observer ---

// RecorderObserver adapts Metrics to the recorder's lifecycle events.
type RecorderObserver struct {
	Metrics *Metrics
}

func (o *RecorderObserver) OnTraceStarted(triggerType string) {
	o.Metrics.TracesStartedTotal.WithLabelValues(triggerType).Inc()
}

func (o *RecorderObserver) OnTraceFinished(status string, elapsed time.Duration) {
	o.Metrics.TracesFinishedTotal.WithLabelValues(status).Inc()
	o.Metrics.TraceDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (o *RecorderObserver) OnDetailFlush(count int, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	o.Metrics.DetailFlushTotal.WithLabelValues(status).Inc()
	o.Metrics.DetailFlushBatchSize.Observe(float64(count))
}

func (o *RecorderObserver) OnWriteDropped(op string) {
	o.Metrics.RecorderDroppedTotal.WithLabelValues(op).Inc()
}

func (o *RecorderObserver) OnActiveTraces(count int) {
	o.Metrics.ActiveTraces.Set(float64(count))
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
