package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/shelfline/flightrec/internal/recorder"
	"github.com/shelfline/flightrec/internal/sanitize"
	"github.com/shelfline/flightrec/model"
)

// TraceIDHeader exposes the started trace's ID on the response so upstream
// systems can reference it in support requests.
const TraceIDHeader = "X-Trace-Id"

const (
	// maxCapturedBody bounds how much request or response body the boundary
	// keeps for the trace row.
	maxCapturedBody = 1 << 20
)

// Boundary wraps inbound webhook requests with trace lifecycle bookkeeping:
// it starts a trace before the handler runs, threads the trace ID through
// the request context, captures the eventual response, and completes or
// fails the trace from the response status. Handlers stay oblivious to all
// of it.
type Boundary struct {
	recorder *recorder.Recorder
	skip     map[string]bool
}

// NewBoundary builds the boundary middleware around a recorder. Paths in
// skipPaths are never traced.
func NewBoundary(rec *recorder.Recorder, skipPaths []string) *Boundary {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &Boundary{recorder: rec, skip: skip}
}

// Middleware is the http middleware form of the boundary.
func (b *Boundary) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.skip[r.URL.Path] || !b.recorder.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		parsed := readBody(r)

		traceID, _ := b.recorder.StartTrace(r.Context(), recorder.TraceStart{
			Endpoint:    r.URL.Path,
			HTTPMethod:  r.Method,
			Headers:     flattenHeader(r.Header),
			Body:        parsed,
			Query:       flattenQuery(r),
			IP:          clientIP(r),
			TriggerType: model.TriggerWebhook,
		})

		ctx := model.WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceIDHeader, traceID)

		cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}

		// An unhandled panic fails the trace before the outer recovery
		// middleware produces the 500.
		defer func() {
			if rec := recover(); rec != nil {
				info := sanitize.FormatPanic(rec, debug.Stack())
				b.recorder.FailTrace(ctx, traceID, &panicError{info: info},
					http.StatusInternalServerError, nil)
				panic(rec)
			}
		}()

		next.ServeHTTP(cw, r.WithContext(ctx))

		respBody := parseJSON(cw.body.Bytes())
		if cw.status < 400 {
			b.recorder.CompleteTrace(ctx, traceID, cw.status, respBody)
			return
		}
		// No explicit error reached us, so synthesize one from the status.
		cause := &sanitize.HTTPError{
			Message: fmt.Sprintf("request failed with status %d %s", cw.status, http.StatusText(cw.status)),
			Status:  cw.status,
			Body:    respBody,
		}
		b.recorder.FailTrace(ctx, traceID, cause, cw.status, respBody)
	})
}

// panicError adapts a formatted panic to the error interface so it can flow
// through FailTrace like any other cause.
type panicError struct {
	info model.ErrorInfo
}

func (e *panicError) Error() string { return e.info.Message }

// readBody drains and restores the request body, returning a best-effort
// JSON parse. Non-JSON bodies are kept as a string.
func readBody(r *http.Request) any {
	if r.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return nil
	}
	if parsed := parseJSON(raw); parsed != nil {
		return parsed
	}
	return string(raw)
}

func parseJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

func flattenQuery(r *http.Request) map[string]string {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// clientIP prefers the leftmost X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// captureWriter records the response status and a bounded copy of the body
// while passing everything through unchanged.
type captureWriter struct {
	http.ResponseWriter
	status  int
	written bool
	body    bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	if w.body.Len() < maxCapturedBody {
		remain := maxCapturedBody - w.body.Len()
		if len(b) <= remain {
			w.body.Write(b)
		} else {
			w.body.Write(b[:remain])
		}
	}
	return w.ResponseWriter.Write(b)
}
