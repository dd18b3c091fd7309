// Package query is the read path: paginated trace listing, execution-tree
// reconstruction, correlation-ID search, and status aggregates for the
// dashboard.
package query

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/shelfline/flightrec/internal/store"
	"github.com/shelfline/flightrec/model"
)

// Service reassembles persisted traces into the shapes the dashboard renders.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// NewService builds a query service over the given store.
func NewService(s store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, logger: logger.Named("query")}
}

// disabled reports whether the service runs without a tracking store. The
// recorder degrades to local-only mode in that configuration; the read path
// degrades to empty results.
func (s *Service) disabled() bool { return s.store == nil }

// ListTraces returns one page of traces, most recent first, honoring the
// system and status filters.
func (s *Service) ListTraces(ctx context.Context, filters model.TraceFilters) (model.TraceList, error) {
	if s.disabled() {
		return model.TraceList{Items: []model.Trace{}}, nil
	}
	return s.store.ListTraces(ctx, filters)
}

// GetTraceTree fetches a trace with its steps and details reassembled into
// an execution tree: steps in start order, each carrying its own details in
// sequence order. An unknown trace ID returns (nil, nil), not an error.
func (s *Service) GetTraceTree(ctx context.Context, traceID string) (*model.TraceTree, error) {
	if s.disabled() {
		return nil, nil
	}
	trace, err := s.store.GetTrace(ctx, traceID)
	if err != nil {
		var envelope *model.ErrorEnvelope
		if errors.As(err, &envelope) && envelope.Code == model.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	steps, err := s.store.GetSteps(ctx, traceID)
	if err != nil {
		return nil, err
	}
	details, err := s.store.GetDetails(ctx, traceID)
	if err != nil {
		return nil, err
	}

	return assembleTree(trace, steps, details), nil
}

// SearchTraces looks up traces by one business correlation ID. No matches is
// an empty slice, not an error.
func (s *Service) SearchTraces(ctx context.Context, field, value string) ([]model.Trace, error) {
	if !store.ValidCorrelationField(field) {
		return nil, model.NewBadRequestError("unknown correlation field: " + field)
	}
	if s.disabled() {
		return []model.Trace{}, nil
	}
	traces, err := s.store.SearchByCorrelation(ctx, field, value)
	if err != nil {
		return nil, err
	}
	if traces == nil {
		traces = []model.Trace{}
	}
	return traces, nil
}

// Stats aggregates trace counts by status, optionally scoped to one system
// partition.
func (s *Service) Stats(ctx context.Context, system string) (model.TraceStats, error) {
	if s.disabled() {
		return model.TraceStats{}, nil
	}
	return s.store.Stats(ctx, system)
}

// assembleTree groups details by owning step and nests everything under the
// trace. Steps sort by stored sequence; each step's details by their own
// sequence. Details whose step row never made it to the store are dropped
// rather than invented a parent.
func assembleTree(trace model.Trace, steps []model.Step, details []model.Detail) *model.TraceTree {
	byStep := make(map[string][]model.Detail, len(steps))
	for _, d := range details {
		byStep[d.StepID] = append(byStep[d.StepID], d)
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Sequence < steps[j].Sequence })

	tree := &model.TraceTree{
		Trace: trace,
		Steps: make([]model.StepWithDetails, 0, len(steps)),
	}
	for _, step := range steps {
		owned := byStep[step.StepID]
		sort.Slice(owned, func(i, j int) bool { return owned[i].Sequence < owned[j].Sequence })
		if owned == nil {
			owned = []model.Detail{}
		}
		tree.Steps = append(tree.Steps, model.StepWithDetails{Step: step, Details: owned})
	}
	return tree
}
