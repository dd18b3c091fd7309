package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shelfline/flightrec/internal/config"
	"github.com/shelfline/flightrec/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID_generated(t *testing.T) {
	var fromCtx string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = CorrelationIDFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/traces", nil))

	if fromCtx == "" {
		t.Fatal("no correlation ID in context")
	}
	if got := w.Header().Get("X-Correlation-Id"); got != fromCtx {
		t.Errorf("response header = %q, context = %q, want equal", got, fromCtx)
	}
}

func TestRequestID_preserved(t *testing.T) {
	var fromCtx string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = CorrelationIDFrom(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("X-Correlation-Id", "caller-supplied-id")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if fromCtx != "caller-supplied-id" {
		t.Errorf("correlation ID = %q, want caller-supplied-id", fromCtx)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/traces", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Code != model.ErrInternalError {
		t.Errorf("error = %#v, want internal error envelope", body.Error)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestCORS_allowedOrigin(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://dashboard.example.com"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Authorization"},
		MaxAge:         600,
	}
	h := CORS(cfg)(okHandler())

	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestCORS_disallowedOrigin(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"https://dashboard.example.com"}}
	h := CORS(cfg)(okHandler())

	req := httptest.NewRequest("GET", "/api/traces", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want unset", got)
	}
}

func TestCORS_preflight(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"https://dashboard.example.com"}}
	h := CORS(cfg)(okHandler())

	req := httptest.NewRequest("OPTIONS", "/api/traces", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
}

func TestHandlerTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	h := HandlerTimeout(5 * time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, hasDeadline = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !hasDeadline {
		t.Fatal("no deadline on request context")
	}
	if until := time.Until(deadline); until > 5*time.Second || until <= 0 {
		t.Errorf("deadline in %v, want within 5s", until)
	}
}

func TestHandlerTimeout_disabled(t *testing.T) {
	var hasDeadline bool
	h := HandlerTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if hasDeadline {
		t.Error("deadline set with timeout disabled")
	}
}

func TestClaimsRoundtrip(t *testing.T) {
	claims := map[string]any{"sub": "user-1"}
	ctx := WithClaims(context.Background(), claims)
	got := ClaimsFrom(ctx)
	if got["sub"] != "user-1" {
		t.Errorf("claims = %#v", got)
	}
	if ClaimsFrom(context.Background()) != nil {
		t.Error("ClaimsFrom(empty) != nil")
	}
}
