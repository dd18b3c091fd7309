package transport

import (
	"net/http"

	"github.com/shelfline/flightrec/model"
)

// handleWebhookSink acknowledges an inbound delivery. By the time it runs,
// the boundary middleware has already started a trace for the request; the
// automations consuming these deliveries run in their own processes and
// record their steps against the trace ID echoed back here.
func handleWebhookSink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusAccepted, map[string]any{
			"received": true,
			"trace_id": model.TraceIDFrom(r.Context()),
		})
	}
}
