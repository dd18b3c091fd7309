package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shelfline/flightrec/internal/query"
	"github.com/shelfline/flightrec/model"
)

func handleTraceList(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters := model.TraceFilters{
			System: q.Get("system"),
			Status: q.Get("status"),
			Cursor: q.Get("cursor"),
		}
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 {
				WriteError(w, model.NewBadRequestError("limit must be a positive integer"))
				return
			}
			filters.Limit = limit
		}
		switch filters.Status {
		case "", model.StatusStarted, model.StatusCompleted, model.StatusFailed, model.StatusSkipped:
		default:
			WriteError(w, model.NewBadRequestError("unknown status "+strconv.Quote(filters.Status)))
			return
		}

		list, err := svc.ListTraces(r.Context(), filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, list)
	}
}

func handleTraceGet(svc *query.Service) http.HandlerFunc {
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
		WriteJSON(w, http.StatusOK, tree)
	}
}

func handleTraceSearch(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		field := q.Get("field")
		value := q.Get("value")
		if field == "" || value == "" {
			WriteError(w, model.NewBadRequestError("field and value query parameters are required"))
			return
		}

		traces, err := svc.SearchTraces(r.Context(), field, value)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": traces})
	}
}

func handleTraceStats(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context(), r.URL.Query().Get("system"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, stats)
	}
}
