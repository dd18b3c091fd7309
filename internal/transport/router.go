package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shelfline/flightrec/internal/config"
	"github.com/shelfline/flightrec/internal/ingest"
	"github.com/shelfline/flightrec/internal/observability"
	"github.com/shelfline/flightrec/internal/query"
	"github.com/shelfline/flightrec/internal/recorder"
	"github.com/shelfline/flightrec/internal/workflow"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config        *config.Config
	Recorder      *recorder.Recorder
	Query         *query.Service
	Templates     *workflow.Registry
	DedupeStore   ingest.DedupeStore
	Metrics       *observability.Metrics
	WebhookSecret string

	// Authenticate guards the dashboard API. Nil leaves it open.
	Authenticate func(http.Handler) http.Handler

	HealthHandler  http.HandlerFunc
	ReadyHandler   http.HandlerFunc
	MetricsHandler http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass
// authentication and tracing.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Get("/health", deps.HealthHandler)
	r.Get("/ready", deps.ReadyHandler)
	r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, deps.MetricsHandler)

	// Webhook ingest: shared secret, dedupe, then the trace boundary.
	boundary := NewBoundary(deps.Recorder, deps.Config.Ingest.SkipPaths)
	dedupeTTL := deps.Config.Ingest.Dedupe.TTL
	if dedupeTTL <= 0 {
		dedupeTTL = 10 * time.Minute
	}

	r.Route("/hooks", func(r chi.Router) {
		r.Use(WebhookAuthenticator(deps.WebhookSecret))
		if deps.Config.Ingest.Dedupe.Enabled {
			r.Use(Dedupe(deps.DedupeStore, dedupeTTL, deps.Metrics))
		}
		r.Use(boundary.Middleware)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)

		r.Post("/{system}/{endpoint}", handleWebhookSink())
	})

	// Dashboard read API.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)

		r.Get("/traces", handleTraceList(deps.Query))
		r.Get("/traces/search", handleTraceSearch(deps.Query))
		r.Get("/traces/stats", handleTraceStats(deps.Query))
		r.Get("/traces/{traceId}", handleTraceGet(deps.Query))
		r.Get("/traces/{traceId}/workflow", handleWorkflowMatch(deps.Query, deps.Templates))
		r.Get("/templates", handleTemplateList(deps.Templates))
	})

	return r
}
