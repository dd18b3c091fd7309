package transport

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shelfline/flightrec/internal/ingest"
	"github.com/shelfline/flightrec/internal/observability"
)

// Dedupe returns middleware that suppresses duplicate webhook deliveries.
// Upstream systems redeliver on timeout; a replayed payload is acknowledged
// with 200 but never reaches the handler, so no second trace is started.
// Sits in front of the boundary middleware.
func Dedupe(store ingest.DedupeStore, ttl time.Duration, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(raw))

			system := chi.URLParam(r, "system")
			key := ingest.DeliveryKey(system, append([]byte(r.URL.Path), raw...))

			seen, err := store.Seen(r.Context(), key, ttl)
			if err != nil {
				// A broken dedupe store must not block ingestion.
				slog.Warn("dedupe check failed", "error", err, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				slog.Info("duplicate delivery suppressed", "path", r.URL.Path, "system", system)
				if metrics != nil {
					metrics.RecordWebhookDuplicate(system)
				}
				WriteJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
