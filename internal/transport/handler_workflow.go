package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shelfline/flightrec/internal/query"
	"github.com/shelfline/flightrec/internal/workflow"
)

func handleTemplateList(registry *workflow.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"items":    registry.All(),
			"checksum": registry.Checksum(),
		})
	}
}

// handleWorkflowMatch overlays one trace's execution tree on the template
// registered for its trigger endpoint. A trace with no matching template
// returns an explicit no-template response rather than an error.
func handleWorkflowMatch(svc *query.Service, registry *workflow.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "traceId")

		tree, err := svc.GetTraceTree(r.Context(), traceID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if tree == nil {
			WriteNotFound(w, "trace "+strconv.Quote(traceID)+" not found")
			return
		}

		tpl, ok := registry.ByTrigger(tree.Trace.Endpoint)
		if !ok {
			WriteJSON(w, http.StatusOK, map[string]any{
				"trace_id": traceID,
				"template": nil,
			})
			return
		}

		result := workflow.Match(tpl, tree)
		WriteJSON(w, http.StatusOK, map[string]any{
			"trace_id": traceID,
			"template": tpl.ID,
			"match":    result,
		})
	}
}
