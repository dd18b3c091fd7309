package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shelfline/flightrec/internal/query"
	"github.com/shelfline/flightrec/internal/store"
	"github.com/shelfline/flightrec/internal/workflow"
	"github.com/shelfline/flightrec/model"
)

// --- test helpers ---

func seedTrace(t *testing.T, ms *store.MemoryStore, traceID, status string) {
	t.Helper()
	ctx := context.Background()
	err := ms.CreateTrace(ctx, model.Trace{
		TraceID:     traceID,
		System:      "clio",
		TriggerType: model.TriggerWebhook,
		Endpoint:    "/hooks/clio/matter-created",
		HTTPMethod:  "POST",
		Correlation: model.CorrelationIDs{MatterID: "m-1"},
		Status:      model.StatusStarted,
		DateStarted: time.Now().UTC().Add(-1 * time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateTrace: %v", err)
	}
	if status == model.StatusStarted {
		return
	}
	err = ms.FinishTrace(ctx, traceID, store.TraceTerminal{
		Status:         status,
		ResponseStatus: http.StatusOK,
		FinishedAt:     time.Now().UTC(),
		DurationMs:     60000,
	})
	if err != nil {
		t.Fatalf("FinishTrace: %v", err)
	}
}

func apiRouter(svc *query.Service, registry *workflow.Registry) chi.Router {
	r := chi.NewRouter()
	r.Get("/api/traces", handleTraceList(svc))
	r.Get("/api/traces/search", handleTraceSearch(svc))
	r.Get("/api/traces/stats", handleTraceStats(svc))
	r.Get("/api/traces/{traceId}", handleTraceGet(svc))
	r.Get("/api/traces/{traceId}/workflow", handleWorkflowMatch(svc, registry))
	r.Get("/api/templates", handleTemplateList(registry))
	return r
}

func newAPIFixture(t *testing.T) (chi.Router, *store.MemoryStore, *workflow.Registry) {
	t.Helper()
	ms := store.NewMemoryStore()
	registry := workflow.NewRegistry(nil)
	return apiRouter(query.NewService(ms, zap.NewNop()), registry), ms, registry
}

func getJSON(t *testing.T, r chi.Router, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	var body map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return w, body
}

// --- trace handler tests ---

func TestHandleTraceList(t *testing.T) {
	r, ms, _ := newAPIFixture(t)
	seedTrace(t, ms, "trc_a_1", model.StatusCompleted)
	seedTrace(t, ms, "trc_b_2", model.StatusFailed)

	w, body := getJSON(t, r, "/api/traces")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	items, _ := body["items"].([]any)
	if len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}
}

func TestHandleTraceList_statusFilter(t *testing.T) {
	r, ms, _ := newAPIFixture(t)
	seedTrace(t, ms, "trc_a_1", model.StatusCompleted)
	seedTrace(t, ms, "trc_b_2", model.StatusFailed)

	w, body := getJSON(t, r, "/api/traces?status=failed")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	first, _ := items[0].(map[string]any)
	if first["trace_id"] != "trc_b_2" {
		t.Errorf("trace_id = %v, want trc_b_2", first["trace_id"])
	}
}

func TestHandleTraceList_badInput(t *testing.T) {
	r, _, _ := newAPIFixture(t)

	for _, path := range []string{
		"/api/traces?limit=0",
		"/api/traces?limit=abc",
		"/api/traces?status=bogus",
	} {
		w, _ := getJSON(t, r, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, w.Code)
		}
	}
}

func TestHandleTraceGet(t *testing.T) {
	r, ms, _ := newAPIFixture(t)
	seedTrace(t, ms, "trc_a_1", model.StatusCompleted)

	w, body := getJSON(t, r, "/api/traces/trc_a_1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	trace, _ := body["trace"].(map[string]any)
	if trace["trace_id"] != "trc_a_1" {
		t.Errorf("trace = %#v", trace)
	}
}

func TestHandleTraceGet_notFound(t *testing.T) {
	r, _, _ := newAPIFixture(t)

	w, body := getJSON(t, r, "/api/traces/trc_missing_0")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	errBody, _ := body["error"].(map[string]any)
	if errBody["code"] != model.ErrNotFound {
		t.Errorf("error code = %v, want %s", errBody["code"], model.ErrNotFound)
	}
}

func TestHandleTraceSearch(t *testing.T) {
	r, ms, _ := newAPIFixture(t)
	seedTrace(t, ms, "trc_a_1", model.StatusCompleted)

	w, body := getJSON(t, r, "/api/traces/search?field=matter_id&value=m-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}
}

func TestHandleTraceSearch_badInput(t *testing.T) {
	r, _, _ := newAPIFixture(t)

	w, _ := getJSON(t, r, "/api/traces/search?field=matter_id")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing value = %d, want 400", w.Code)
	}

	w, _ = getJSON(t, r, "/api/traces/search?field=drop_table&value=x")
	if w.Code == http.StatusOK {
		t.Errorf("unknown field = %d, want error", w.Code)
	}
}

func TestHandleTraceStats(t *testing.T) {
	r, ms, _ := newAPIFixture(t)
	seedTrace(t, ms, "trc_a_1", model.StatusCompleted)
	seedTrace(t, ms, "trc_b_2", model.StatusFailed)
	seedTrace(t, ms, "trc_c_3", model.StatusStarted)

	w, body := getJSON(t, r, "/api/traces/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["total"] != float64(3) || body["failed"] != float64(1) {
		t.Errorf("stats = %#v", body)
	}
}

// --- workflow handler tests ---

func matchTemplate() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		ID:       "matter-intake",
		Name:     "Matter intake",
		Trigger:  "/hooks/clio/matter-created",
		Checksum: "abc123",
		Root: &model.TemplateNode{
			ID:    "webhook",
			Kind:  "webhook",
			Label: "Matter created",
			Next: &model.TemplateNode{
				ID:           "sync",
				Kind:         "step",
				Label:        "Sync matter",
				ServiceName:  "matters",
				FunctionName: "syncMatter",
			},
		},
	}
}

func TestHandleTemplateList(t *testing.T) {
	ms := store.NewMemoryStore()
	registry := workflow.NewRegistry([]model.WorkflowTemplate{matchTemplate()})
	r := apiRouter(query.NewService(ms, zap.NewNop()), registry)

	w, body := getJSON(t, r, "/api/templates")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}
	if body["checksum"] == "" {
		t.Error("checksum missing")
	}
}

func TestHandleWorkflowMatch(t *testing.T) {
	ms := store.NewMemoryStore()
	registry := workflow.NewRegistry([]model.WorkflowTemplate{matchTemplate()})
	r := apiRouter(query.NewService(ms, zap.NewNop()), registry)
	seedTrace(t, ms, "trc_a_1", model.StatusCompleted)

	w, body := getJSON(t, r, "/api/traces/trc_a_1/workflow")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["template"] != "matter-intake" {
		t.Errorf("template = %v, want matter-intake", body["template"])
	}
	if _, ok := body["match"].(map[string]any); !ok {
		t.Errorf("match = %#v, want overlay object", body["match"])
	}
}

func TestHandleWorkflowMatch_noTemplate(t *testing.T) {
	r, ms, _ := newAPIFixture(t)
	seedTrace(t, ms, "trc_a_1", model.StatusCompleted)

	w, body := getJSON(t, r, "/api/traces/trc_a_1/workflow")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["template"] != nil {
		t.Errorf("template = %v, want null", body["template"])
	}
}

func TestHandleWorkflowMatch_traceNotFound(t *testing.T) {
	r, _, _ := newAPIFixture(t)

	w, _ := getJSON(t, r, "/api/traces/trc_missing_0/workflow")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// --- webhook sink test ---

func TestHandleWebhookSink(t *testing.T) {
	h := handleWebhookSink()

	req := httptest.NewRequest("POST", "/hooks/clio/matter-created", nil)
	req = req.WithContext(model.WithTraceID(req.Context(), "trc_abc_1"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["received"] != true || body["trace_id"] != "trc_abc_1" {
		t.Errorf("body = %#v", body)
	}
}
