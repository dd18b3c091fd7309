// Package integration provides a reusable test harness for end-to-end
// testing of the flightrec server. It starts a full HTTP server over an
// in-memory tracking store, with optional webhook dedupe and a test JWT
// issuer for the dashboard API.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shelfline/flightrec/internal/config"
	"github.com/shelfline/flightrec/internal/ingest"
	"github.com/shelfline/flightrec/internal/observability"
	"github.com/shelfline/flightrec/internal/query"
	"github.com/shelfline/flightrec/internal/recorder"
	"github.com/shelfline/flightrec/internal/store"
	"github.com/shelfline/flightrec/internal/transport"
	"github.com/shelfline/flightrec/internal/workflow"
	"github.com/shelfline/flightrec/model"
)

// TestHarness encapsulates a fully wired flightrec instance.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Store    *store.MemoryStore
	Recorder *recorder.Recorder
	Registry *workflow.Registry
	Dedupe   *ingest.MemoryDedupeStore

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	templates     []model.WorkflowTemplate
	webhookSecret string
	dedupeEnabled bool
	identity      bool
}

// WithTemplates registers workflow templates with the harness.
func WithTemplates(tpls ...model.WorkflowTemplate) HarnessOption {
	return func(c *harnessConfig) { c.templates = append(c.templates, tpls...) }
}

// WithWebhookSecret guards the webhook routes with a shared secret.
func WithWebhookSecret(secret string) HarnessOption {
	return func(c *harnessConfig) { c.webhookSecret = secret }
}

// WithDedupe enables in-memory webhook delivery deduplication.
func WithDedupe() HarnessOption {
	return func(c *harnessConfig) { c.dedupeEnabled = true }
}

// WithIdentity guards the dashboard API with JWT auth backed by a test
// JWKS endpoint.
func WithIdentity() HarnessOption {
	return func(c *harnessConfig) { c.identity = true }
}

// NewTestHarness creates and starts a flightrec server for testing. The
// server and all background state are torn down via t.Cleanup.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{}
	for _, opt := range opts {
		opt(hc)
	}

	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = 10 * time.Second
	cfg.Ingest.Dedupe.Enabled = hc.dedupeEnabled

	ms := store.NewMemoryStore()
	rec := recorder.New(ms, zap.NewNop(),
		recorder.WithSystem("clio"),
		recorder.WithEnvironment("integration"),
		recorder.WithBuffer(100, time.Hour),
	)
	t.Cleanup(func() { rec.Flush(context.Background()) })

	registry := workflow.NewRegistry(hc.templates)

	h := &TestHarness{
		t:        t,
		Store:    ms,
		Recorder: rec,
		Registry: registry,
		cfg:      cfg,
	}

	deps := transport.Dependencies{
		Config:        cfg,
		Recorder:      rec,
		Query:         query.NewService(ms, zap.NewNop()),
		Templates:     registry,
		WebhookSecret: hc.webhookSecret,
		HealthHandler: observability.HandleHealth(),
		ReadyHandler: observability.HandleReady(observability.ReadinessChecks{
			TemplatesLoaded: func() bool { return true },
			TrackingStore:   ms,
		}),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	}

	if hc.dedupeEnabled {
		h.Dedupe = ingest.NewMemoryDedupeStore()
		deps.DedupeStore = h.Dedupe
	}

	if hc.identity {
		h.issuer = newTokenIssuer(t)
		idCfg := config.IdentityConfig{
			Enabled:    true,
			Issuer:     h.issuer.issuer,
			Audience:   h.issuer.audience,
			Algorithms: []string{"RS256"},
		}
		jwks := transport.NewJWKSClient(h.issuer.jwksURL(), 1*time.Hour)
		deps.Authenticate = transport.JWTAuthenticator(idCfg, jwks)
	}

	h.server = httptest.NewServer(transport.NewRouter(deps))
	t.Cleanup(h.server.Close)
	return h
}

// URL returns the base URL of the test server.
func (h *TestHarness) URL() string { return h.server.URL }

// GenerateToken issues a signed JWT for the dashboard API. Requires
// WithIdentity.
func (h *TestHarness) GenerateToken() string {
	h.t.Helper()
	if h.issuer == nil {
		h.t.Fatal("harness was created without WithIdentity")
	}
	return h.issuer.token(h.t)
}

// POST sends a JSON POST request with optional extra headers.
func (h *TestHarness) POST(path string, body any, headers map[string]string) *http.Response {
	h.t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		h.t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, h.server.URL+path, bytes.NewReader(raw))
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// GET sends a GET request, attaching the bearer token when non-empty.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()

	req, err := http.NewRequest(http.MethodGet, h.server.URL+path, nil)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// AssertJSON checks the response status and decodes the body into out.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, wantStatus int, out any) {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, wantStatus, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode body: %v: %s", err, raw)
		}
	}
}
