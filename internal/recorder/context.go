package recorder

import (
	"sync"
	"time"

	"github.com/shelfline/flightrec/model"
)

// TraceContext is the ephemeral, process-local state for one in-flight
// trace: monotonic sequence counters, the step list in start order, and the
// accumulated error list. It is created at StartTrace, torn down at
// CompleteTrace/FailTrace, and never persisted.
//
// All mutation goes through the mutex so overlapping steps recorded from
// concurrent goroutines still observe a consistent start-order total order.
type TraceContext struct {
	traceID   string
	startedAt time.Time

	mu          sync.Mutex
	stepSeq     int
	detailSeqs  map[string]int // per-step detail counters
	stepIDs     []string
	detailIDs   []string
	detailCount int
	errors      []model.ErrorInfo
}

// ContextStats is a point-in-time snapshot of a trace context's counters.
type ContextStats struct {
	StepCount   int
	DetailCount int
	ErrorCount  int
}

func newTraceContext(traceID string, startedAt time.Time) *TraceContext {
	return &TraceContext{
		traceID:    traceID,
		startedAt:  startedAt,
		detailSeqs: make(map[string]int),
	}
}

// TraceID returns the owning trace's ID.
func (tc *TraceContext) TraceID() string { return tc.traceID }

// nextStepSequence assigns the next step sequence, starting at 1.
func (tc *TraceContext) nextStepSequence() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.stepSeq++
	return tc.stepSeq
}

// nextDetailSequence assigns the next detail sequence for the given step,
// starting at 1. Counters are tracked independently per step.
func (tc *TraceContext) nextDetailSequence(stepID string) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.detailSeqs[stepID]++
	tc.detailCount++
	return tc.detailSeqs[stepID]
}

// recordStep appends a step ID to the start-ordered step list.
func (tc *TraceContext) recordStep(stepID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.stepIDs = append(tc.stepIDs, stepID)
}

// recordDetail appends a detail ID for teardown bookkeeping.
func (tc *TraceContext) recordDetail(detailID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.detailIDs = append(tc.detailIDs, detailID)
}

// recordError appends to the accumulated error list.
func (tc *TraceContext) recordError(info model.ErrorInfo) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.errors = append(tc.errors, info)
}

// Stats returns the current counter snapshot.
func (tc *TraceContext) Stats() ContextStats {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return ContextStats{
		StepCount:   len(tc.stepIDs),
		DetailCount: tc.detailCount,
		ErrorCount:  len(tc.errors),
	}
}

// snapshotIDs returns copies of the step and detail ID lists for teardown.
func (tc *TraceContext) snapshotIDs() (steps, details []string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	steps = append([]string(nil), tc.stepIDs...)
	details = append([]string(nil), tc.detailIDs...)
	return steps, details
}

// stepRecord tracks a started step for completion lookups.
type stepRecord struct {
	traceID   string
	startedAt time.Time
}

// detailRecord tracks a started detail for completion lookups.
type detailRecord struct {
	traceID   string
	stepID    string
	startedAt time.Time
}

// contextRegistry is the live-trace registry owned by a Recorder instance.
// Keeping it on the Recorder rather than at module level lets multiple
// Recorders coexist in tests without cross-contamination.
type contextRegistry struct {
	mu       sync.RWMutex
	contexts map[string]*TraceContext
	steps    map[string]stepRecord
	details  map[string]detailRecord
}

func newContextRegistry() *contextRegistry {
	return &contextRegistry{
		contexts: make(map[string]*TraceContext),
		steps:    make(map[string]stepRecord),
		details:  make(map[string]detailRecord),
	}
}

func (r *contextRegistry) register(tc *TraceContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[tc.traceID] = tc
}

func (r *contextRegistry) lookup(traceID string) *TraceContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[traceID]
}

func (r *contextRegistry) indexStep(stepID, traceID string, startedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[stepID] = stepRecord{traceID: traceID, startedAt: startedAt}
}

func (r *contextRegistry) step(stepID string) (stepRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.steps[stepID]
	return rec, ok
}

func (r *contextRegistry) indexDetail(detailID, stepID, traceID string, startedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.details[detailID] = detailRecord{traceID: traceID, stepID: stepID, startedAt: startedAt}
}

func (r *contextRegistry) detail(detailID string) (detailRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.details[detailID]
	return rec, ok
}

// teardown removes a trace context and every step/detail index entry it
// owns. Step and detail calls arriving after teardown find nothing and
// degrade to no-ops.
func (r *contextRegistry) teardown(traceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tc, ok := r.contexts[traceID]
	if !ok {
		return
	}
	delete(r.contexts, traceID)

	steps, details := tc.snapshotIDs()
	for _, id := range steps {
		delete(r.steps, id)
	}
	for _, id := range details {
		delete(r.details, id)
	}
}

// active returns the number of live trace contexts.
func (r *contextRegistry) active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
