package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shelfline/flightrec/internal/config"
	"github.com/shelfline/flightrec/internal/ingest"
	"github.com/shelfline/flightrec/internal/query"
	"github.com/shelfline/flightrec/internal/recorder"
	"github.com/shelfline/flightrec/internal/store"
	"github.com/shelfline/flightrec/internal/workflow"
	"github.com/shelfline/flightrec/model"
)

// testDeps wires a full router over an in-memory store. The metrics
// endpoint is stubbed to keep tests off the global Prometheus registry.
func testDeps(t *testing.T) (Dependencies, *store.MemoryStore) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = 5 * time.Second

	ms := store.NewMemoryStore()
	rec := recorder.New(ms, zap.NewNop(),
		recorder.WithSystem("clio"),
		recorder.WithBuffer(100, time.Hour),
	)
	t.Cleanup(func() { rec.Flush(context.Background()) })

	deps := Dependencies{
		Config:    cfg,
		Recorder:  rec,
		Query:     query.NewService(ms, zap.NewNop()),
		Templates: workflow.NewRegistry(nil),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
		ReadyHandler: func(w http.ResponseWriter, _ *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	}
	return deps, ms
}

func TestNewRouter_health(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_metrics(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_webhook_startsTrace(t *testing.T) {
	deps, ms := testDeps(t)
	r := NewRouter(deps)

	req := httptest.NewRequest("POST", "/hooks/clio/matter-created",
		strings.NewReader(`{"matter_id": "m-42"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	traceID, _ := body["trace_id"].(string)
	if !strings.HasPrefix(traceID, "trc_") {
		t.Fatalf("trace_id = %q, want trc_ prefix", traceID)
	}

	trace, err := ms.GetTrace(context.Background(), traceID)
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if trace.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", trace.Status)
	}
	if trace.Correlation.MatterID != "m-42" {
		t.Errorf("correlation matter_id = %q, want m-42", trace.Correlation.MatterID)
	}
}

func TestNewRouter_webhook_secretRequired(t *testing.T) {
	deps, _ := testDeps(t)
	deps.WebhookSecret = "s3cret"
	r := NewRouter(deps)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/hooks/clio/matter-created", strings.NewReader(`{}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without secret = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("POST", "/hooks/clio/matter-created", strings.NewReader(`{}`))
	req.Header.Set(WebhookSecretHeader, "s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status with secret = %d, want 202", w.Code)
	}
}

func TestNewRouter_webhook_duplicateSuppressed(t *testing.T) {
	deps, ms := testDeps(t)
	deps.Config.Ingest.Dedupe.Enabled = true
	deps.DedupeStore = ingest.NewMemoryDedupeStore()
	r := NewRouter(deps)

	payload := `{"matter_id": "m-7"}`
	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest("POST", "/hooks/clio/matter-created", strings.NewReader(payload)))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest("POST", "/hooks/clio/matter-created", strings.NewReader(payload)))

	if first.Code != http.StatusAccepted {
		t.Fatalf("first delivery status = %d, want 202", first.Code)
	}
	if second.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d, want 200", second.Code)
	}
	var body map[string]any
	json.NewDecoder(second.Body).Decode(&body)
	if body["duplicate"] != true {
		t.Errorf("redelivery body = %#v, want duplicate flag", body)
	}

	list, _ := ms.ListTraces(context.Background(), model.TraceFilters{})
	if len(list.Items) != 1 {
		t.Errorf("trace count = %d, want 1 (no trace for the duplicate)", len(list.Items))
	}
}

func TestNewRouter_authenticatedRoutes_areRegistered(t *testing.T) {
	// With auth rejecting all requests, every dashboard route should
	// return 401, confirming registration rather than 404/405.
	rejectAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, model.NewUnauthorizedError("rejected"))
		})
	}

	deps, _ := testDeps(t)
	deps.Authenticate = rejectAuth
	r := NewRouter(deps)

	routes := []string{
		"/api/traces",
		"/api/traces/search",
		"/api/traces/stats",
		"/api/traces/trc_x",
		"/api/traces/trc_x/workflow",
		"/api/templates",
	}
	for _, path := range routes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", path, w.Code)
		}
	}
}

func TestNewRouter_unknownRoute(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestNewRouter_correlationIDHeader(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/traces", nil))

	if w.Header().Get("X-Correlation-Id") == "" {
		t.Error("X-Correlation-Id not set on response")
	}
}
