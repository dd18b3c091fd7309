package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shelfline/flightrec/model"
)

// MemoryStore is an in-memory Store for testing and DSN-less development.
type MemoryStore struct {
	mu      sync.RWMutex
	traces  map[string]model.Trace
	steps   map[string][]model.Step   // key: trace ID
	details map[string][]model.Detail // key: trace ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		traces:  make(map[string]model.Trace),
		steps:   make(map[string][]model.Step),
		details: make(map[string][]model.Detail),
	}
}

// CreateTrace inserts a new trace row.
func (s *MemoryStore) CreateTrace(_ context.Context, trace model.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.traces[trace.TraceID]; exists {
		return model.NewConflictError(fmt.Sprintf("trace %q already exists", trace.TraceID))
	}
	s.traces[trace.TraceID] = trace
	return nil
}

// FinishTrace applies the terminal transition. Already-terminal traces are
// left untouched so terminal fields are written exactly once.
func (s *MemoryStore) FinishTrace(_ context.Context, traceID string, terminal TraceTerminal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trace, exists := s.traces[traceID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("trace %q not found", traceID))
	}
	if trace.Status != model.StatusStarted {
		return nil
	}

	trace.Status = terminal.Status
	trace.ResponseStatus = terminal.ResponseStatus
	trace.ResponseBody = terminal.ResponseBody
	trace.Error = terminal.Error
	trace.StepCount = terminal.StepCount
	trace.DetailCount = terminal.DetailCount
	trace.ErrorCount = terminal.ErrorCount
	finished := terminal.FinishedAt
	trace.DateFinished = &finished
	trace.DurationMs = terminal.DurationMs
	s.traces[traceID] = trace
	return nil
}

// UpdateTraceCorrelation merges non-empty correlation IDs into the trace.
func (s *MemoryStore) UpdateTraceCorrelation(_ context.Context, traceID string, ids model.CorrelationIDs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trace, exists := s.traces[traceID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("trace %q not found", traceID))
	}
	trace.Correlation = trace.Correlation.Merge(ids)
	s.traces[traceID] = trace
	return nil
}

// CreateStep appends a step row.
func (s *MemoryStore) CreateStep(_ context.Context, step model.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.steps[step.TraceID] = append(s.steps[step.TraceID], step)
	return nil
}

// FinishStep applies the terminal transition to a step.
func (s *MemoryStore) FinishStep(_ context.Context, stepID string, terminal StepTerminal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for traceID, steps := range s.steps {
		for i, step := range steps {
			if step.StepID != stepID {
				continue
			}
			if step.Status != model.StatusStarted {
				return nil
			}
			step.Status = terminal.Status
			step.Output = terminal.Output
			step.Error = terminal.Error
			finished := terminal.FinishedAt
			step.DateFinished = &finished
			step.DurationMs = terminal.DurationMs
			s.steps[traceID][i] = step
			return nil
		}
	}
	return model.NewNotFoundError(fmt.Sprintf("step %q not found", stepID))
}

// CreateDetails batch-appends detail rows.
func (s *MemoryStore) CreateDetails(_ context.Context, details []model.Detail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range details {
		s.details[d.TraceID] = append(s.details[d.TraceID], d)
	}
	return nil
}

// FinishDetail applies the terminal transition to a detail.
func (s *MemoryStore) FinishDetail(_ context.Context, detailID string, terminal DetailTerminal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for traceID, details := range s.details {
		for i, d := range details {
			if d.DetailID != detailID {
				continue
			}
			if d.Status != model.StatusStarted {
				return nil
			}
			d.Status = terminal.Status
			d.ResponseStatus = terminal.ResponseStatus
			d.ResponseBody = terminal.ResponseBody
			d.ResponseHeaders = terminal.ResponseHeaders
			d.OperationOutput = terminal.OperationOutput
			d.Error = terminal.Error
			finished := terminal.FinishedAt
			d.DateFinished = &finished
			d.DurationMs = terminal.DurationMs
			s.details[traceID][i] = d
			return nil
		}
	}
	return model.NewNotFoundError(fmt.Sprintf("detail %q not found", detailID))
}

// ListTraces returns one page of traces, most recent first.
func (s *MemoryStore) ListTraces(_ context.Context, filters model.TraceFilters) (model.TraceList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []model.Trace
	for _, trace := range s.traces {
		if filters.System != "" && trace.System != filters.System {
			continue
		}
		if filters.Status != "" && trace.Status != filters.Status {
			continue
		}
		all = append(all, trace)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].DateStarted.Equal(all[j].DateStarted) {
			return all[i].DateStarted.After(all[j].DateStarted)
		}
		return all[i].TraceID > all[j].TraceID
	})

	if filters.Cursor != "" {
		cursorAt, cursorID, err := decodeCursor(filters.Cursor)
		if err != nil {
			return model.TraceList{}, model.NewBadRequestError("invalid cursor")
		}
		idx := sort.Search(len(all), func(i int) bool {
			if !all[i].DateStarted.Equal(cursorAt) {
				return all[i].DateStarted.Before(cursorAt)
			}
			return all[i].TraceID < cursorID
		})
		all = all[idx:]
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	list := model.TraceList{Items: all}
	if len(all) > limit {
		list.Items = all[:limit]
		list.HasMore = true
		list.NextCursor = encodeCursor(all[limit-1].DateStarted, all[limit-1].TraceID)
	}
	if list.Items == nil {
		list.Items = []model.Trace{}
	}
	return list, nil
}

// GetTrace retrieves a trace by ID.
func (s *MemoryStore) GetTrace(_ context.Context, traceID string) (model.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trace, exists := s.traces[traceID]
	if !exists {
		return model.Trace{}, model.NewNotFoundError(fmt.Sprintf("trace %q not found", traceID))
	}
	return trace, nil
}

// GetSteps returns all steps for a trace ordered by sequence.
func (s *MemoryStore) GetSteps(_ context.Context, traceID string) ([]model.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.steps[traceID]
	result := make([]model.Step, len(steps))
	copy(result, steps)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})
	return result, nil
}

// GetDetails returns all details for a trace ordered by step and sequence.
func (s *MemoryStore) GetDetails(_ context.Context, traceID string) ([]model.Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details := s.details[traceID]
	result := make([]model.Detail, len(details))
	copy(result, details)
	sort.Slice(result, func(i, j int) bool {
		if result[i].StepID != result[j].StepID {
			return result[i].StepID < result[j].StepID
		}
		return result[i].Sequence < result[j].Sequence
	})
	return result, nil
}

// SearchByCorrelation returns traces matching one correlation field.
func (s *MemoryStore) SearchByCorrelation(_ context.Context, field, value string) ([]model.Trace, error) {
	if !ValidCorrelationField(field) {
		return nil, model.NewBadRequestError(fmt.Sprintf("unknown correlation field %q", field))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.Trace{}
	for _, trace := range s.traces {
		if correlationValue(trace.Correlation, field) == value {
			result = append(result, trace)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DateStarted.After(result[j].DateStarted)
	})
	return result, nil
}

// Stats aggregates trace counts by status.
func (s *MemoryStore) Stats(_ context.Context, system string) (model.TraceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats model.TraceStats
	for _, trace := range s.traces {
		if system != "" && trace.System != system {
			continue
		}
		stats.Total++
		switch trace.Status {
		case model.StatusStarted:
			stats.Started++
		case model.StatusCompleted:
			stats.Completed++
		case model.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// FindDangling returns traces stuck in started status since before cutoff.
func (s *MemoryStore) FindDangling(_ context.Context, cutoff time.Time) ([]model.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trace
	for _, trace := range s.traces {
		if trace.Status == model.StatusStarted && trace.DateStarted.Before(cutoff) {
			result = append(result, trace)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DateStarted.Before(result[j].DateStarted)
	})
	return result, nil
}

// HealthCheck always succeeds for the memory store.
func (s *MemoryStore) HealthCheck(_ context.Context) error { return nil }

// Len returns the total number of traces. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traces)
}

func correlationValue(ids model.CorrelationIDs, field string) string {
	switch field {
	case FieldContactID:
		return ids.ContactID
	case FieldOpportunityID:
		return ids.OpportunityID
	case FieldMatterID:
		return ids.MatterID
	case FieldInvoiceID:
		return ids.InvoiceID
	case FieldAppointmentID:
		return ids.AppointmentID
	}
	return ""
}
