// Package recorder is the write-side core of the tracing subsystem. It
// orchestrates the trace -> step -> detail lifecycle on top of the store,
// buffers detail writes, and guarantees that no failure inside the recorder
// ever propagates to the instrumented automation.
package recorder

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/shelfline/flightrec/internal/ident"
	"github.com/shelfline/flightrec/internal/sanitize"
	"github.com/shelfline/flightrec/internal/store"
	"github.com/shelfline/flightrec/model"
)

// maxPayloadBytes bounds every persisted payload after sanitization.
const maxPayloadBytes = 64 << 10

// Observer receives lifecycle events from the recorder. Implementations may
// record metrics or other telemetry; they must not block.
type Observer interface {
	OnTraceStarted(triggerType string)
	OnTraceFinished(status string, elapsed time.Duration)
	OnDetailFlush(count int, failed bool)
	OnWriteDropped(op string)
	OnActiveTraces(count int)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEnvironment sets the environment stamped onto every trace.
func WithEnvironment(env string) Option {
	return func(r *Recorder) { r.environment = env }
}

// WithSystem sets the logical system partition stamped onto every trace.
func WithSystem(system string) Option {
	return func(r *Recorder) { r.system = system }
}

// WithBuffer overrides the detail buffer's flush size and idle interval.
func WithBuffer(flushSize int, interval time.Duration) Option {
	return func(r *Recorder) {
		r.flushSize = flushSize
		r.flushInterval = interval
	}
}

// WithScheduler overrides the buffer's flush timer. For testing.
func WithScheduler(schedule func(d time.Duration, fn func()) *time.Timer) Option {
	return func(r *Recorder) { r.schedule = schedule }
}

// WithObserver adds a lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(r *Recorder) { r.observers = append(r.observers, obs) }
}

// Recorder is the public tracing API handed to instrumented automations.
// Every method is fire-and-forget: store failures and internal panics are
// logged and swallowed, and a missing trace context degrades the call to a
// no-op returning an inert identifier.
//
// A nil store puts the Recorder in local-only mode: contexts and counters
// still work so callers are unaffected, but nothing is persisted.
type Recorder struct {
	store       store.Store
	logger      *zap.Logger
	registry    *contextRegistry
	buffer      *detailBuffer
	environment string
	system      string
	observers   []Observer

	flushSize     int
	flushInterval time.Duration
	schedule      func(d time.Duration, fn func()) *time.Timer
}

// New builds a Recorder. Pass a nil store to run in local-only mode.
func New(s store.Store, logger *zap.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:    s,
		logger:   logger.Named("recorder"),
		registry: newContextRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.buffer = newDetailBuffer(s, r.logger, r.flushSize, r.flushInterval)
	if r.schedule != nil {
		r.buffer.schedule = r.schedule
	}
	r.buffer.notify = r.notifyFlush
	return r
}

// Enabled reports whether the recorder persists anything. False means a
// store was never configured and every operation is local-only.
func (r *Recorder) Enabled() bool { return r.store != nil }

// TraceStart carries everything captured at the inbound boundary.
type TraceStart struct {
	Endpoint    string
	HTTPMethod  string
	Headers     map[string]string
	Body        any
	Query       map[string]string
	IP          string
	TriggerType string
	Correlation model.CorrelationIDs
}

// StepStart describes a named unit of work within a trace.
type StepStart struct {
	ServiceName  string
	FunctionName string
	Input        any
	ContextData  any
}

// DetailStart describes one external call or internal decision inside a step.
type DetailStart struct {
	TraceID        string
	StepID         string
	DetailType     string
	APIProvider    string
	APIEndpoint    string
	APIMethod      string
	RequestHeaders map[string]string
	RequestBody    any
	RequestQuery   map[string]string
	OperationName  string
	OperationInput any
}

// StartTrace creates a trace in started status and registers its context.
// Correlation IDs are extracted from the body by the known alias table and
// merged under any explicitly supplied ones. The returned ID and context are
// valid even when persistence fails or is disabled.
func (r *Recorder) StartTrace(ctx context.Context, start TraceStart) (string, *TraceContext) {
	now := time.Now().UTC()
	traceID := ident.NewTraceID()
	tc := newTraceContext(traceID, now)
	r.registry.register(tc)

	correlation := ExtractCorrelation(start.Body).Merge(start.Correlation)

	if r.Enabled() {
		trace := model.Trace{
			TraceID:        traceID,
			System:         r.system,
			Environment:    r.environment,
			TriggerType:    start.TriggerType,
			Endpoint:       start.Endpoint,
			HTTPMethod:     start.HTTPMethod,
			RequestHeaders: sanitize.SanitizeHeaders(start.Headers),
			RequestBody:    sanitizePayload(start.Body),
			RequestQuery:   start.Query,
			RequestIP:      start.IP,
			Correlation:    correlation,
			Status:         model.StatusStarted,
			DateStarted:    now,
		}
		r.guard(ctx, "create trace", traceID, func(ctx context.Context) error {
			return r.store.CreateTrace(ctx, trace)
		})
	}

	for _, obs := range r.observers {
		obs.OnTraceStarted(start.TriggerType)
		obs.OnActiveTraces(r.registry.active())
	}
	return traceID, tc
}

// CompleteTrace flushes the detail buffer, applies the completed terminal
// transition, and tears down the context. Unknown trace IDs are no-ops.
func (r *Recorder) CompleteTrace(ctx context.Context, traceID string, responseStatus int, responseBody any) {
	r.finishTrace(ctx, traceID, model.StatusCompleted, responseStatus, responseBody, nil)
}

// FailTrace is CompleteTrace's failed counterpart. The error is formatted
// and attached to the trace row.
func (r *Recorder) FailTrace(ctx context.Context, traceID string, cause error, responseStatus int, responseBody any) {
	info := sanitize.FormatError(cause)
	r.finishTrace(ctx, traceID, model.StatusFailed, responseStatus, responseBody, &info)
}

func (r *Recorder) finishTrace(ctx context.Context, traceID, status string, responseStatus int, responseBody any, errInfo *model.ErrorInfo) {
	tc := r.registry.lookup(traceID)
	if tc == nil {
		return
	}
	if errInfo != nil {
		tc.recordError(*errInfo)
	}

	// Flush before the terminal write, unconditionally. Details must never
	// be durably recorded after their trace is marked terminal.
	r.buffer.flush(ctx)

	now := time.Now().UTC()
	elapsed := now.Sub(tc.startedAt)
	if r.Enabled() {
		stats := tc.Stats()
		terminal := store.TraceTerminal{
			Status:         status,
			ResponseStatus: responseStatus,
			ResponseBody:   sanitizePayload(responseBody),
			Error:          errInfo,
			StepCount:      stats.StepCount,
			DetailCount:    stats.DetailCount,
			ErrorCount:     stats.ErrorCount,
			FinishedAt:     now,
			DurationMs:     elapsed.Milliseconds(),
		}
		r.guard(ctx, "finish trace", traceID, func(ctx context.Context) error {
			return r.store.FinishTrace(ctx, traceID, terminal)
		})
	}

	r.registry.teardown(traceID)
	for _, obs := range r.observers {
		obs.OnTraceFinished(status, elapsed)
		obs.OnActiveTraces(r.registry.active())
	}
}

// UpdateTraceIDs late-binds correlation IDs discovered mid-processing. Only
// non-empty fields are applied; status and timestamps are untouched.
func (r *Recorder) UpdateTraceIDs(ctx context.Context, traceID string, ids model.CorrelationIDs) {
	if !r.Enabled() || ids.Empty() {
		return
	}
	r.guard(ctx, "update trace correlation", traceID, func(ctx context.Context) error {
		return r.store.UpdateTraceCorrelation(ctx, traceID, ids)
	})
}

// StartStep records a new step in started status and returns its ID. A
// missing or torn-down trace context yields an inert ID and no persistence.
func (r *Recorder) StartStep(ctx context.Context, traceID string, start StepStart) string {
	tc := r.registry.lookup(traceID)
	if tc == nil {
		return ident.StepID(traceID, 0)
	}
	now := time.Now().UTC()
	seq := tc.nextStepSequence()
	stepID := ident.StepID(traceID, seq)
	tc.recordStep(stepID)
	r.registry.indexStep(stepID, traceID, now)

	if r.Enabled() {
		step := model.Step{
			StepID:       stepID,
			TraceID:      traceID,
			ServiceName:  start.ServiceName,
			FunctionName: start.FunctionName,
			Sequence:     seq,
			Input:        sanitizePayload(start.Input),
			ContextData:  sanitizePayload(start.ContextData),
			Status:       model.StatusStarted,
			DateStarted:  now,
		}
		r.guard(ctx, "create step", traceID, func(ctx context.Context) error {
			return r.store.CreateStep(ctx, step)
		})
	}
	return stepID
}

// CompleteStep applies the completed terminal transition to a step.
func (r *Recorder) CompleteStep(ctx context.Context, stepID string, output any) {
	r.finishStep(ctx, stepID, model.StatusCompleted, sanitizePayload(output), nil)
}

// FailStep applies the failed terminal transition and appends the error to
// the owning trace's error list.
func (r *Recorder) FailStep(ctx context.Context, stepID string, cause error) {
	info := sanitize.FormatError(cause)
	r.finishStep(ctx, stepID, model.StatusFailed, nil, &info)
}

// SkipStep marks a step skipped with a human-readable reason.
func (r *Recorder) SkipStep(ctx context.Context, stepID, reason string) {
	r.finishStep(ctx, stepID, model.StatusSkipped, map[string]any{"reason": reason}, nil)
}

func (r *Recorder) finishStep(ctx context.Context, stepID, status string, output any, errInfo *model.ErrorInfo) {
	rec, ok := r.registry.step(stepID)
	if !ok {
		return
	}
	if errInfo != nil {
		if tc := r.registry.lookup(rec.traceID); tc != nil {
			tc.recordError(*errInfo)
		}
	}
	if !r.Enabled() {
		return
	}
	now := time.Now().UTC()
	terminal := store.StepTerminal{
		Status:     status,
		Output:     output,
		Error:      errInfo,
		FinishedAt: now,
		DurationMs: now.Sub(rec.startedAt).Milliseconds(),
	}
	r.guard(ctx, "finish step", rec.traceID, func(ctx context.Context) error {
		return r.store.FinishStep(ctx, stepID, terminal)
	})
}

// StartDetail records the start of the finest-grained unit and returns its
// ID. Started details go through the write buffer rather than straight to
// the store. A missing trace context yields an inert random ID.
func (r *Recorder) StartDetail(ctx context.Context, start DetailStart) string {
	tc := r.registry.lookup(start.TraceID)
	if tc == nil {
		return ident.RandomDetailID()
	}
	now := time.Now().UTC()
	seq := tc.nextDetailSequence(start.StepID)
	detailID := ident.DetailID(start.StepID, seq)
	tc.recordDetail(detailID)
	r.registry.indexDetail(detailID, start.StepID, start.TraceID, now)

	if r.Enabled() {
		r.buffer.add(model.Detail{
			DetailID:       detailID,
			StepID:         start.StepID,
			TraceID:        start.TraceID,
			DetailType:     start.DetailType,
			Sequence:       seq,
			APIProvider:    start.APIProvider,
			APIEndpoint:    start.APIEndpoint,
			APIMethod:      start.APIMethod,
			RequestHeaders: sanitize.SanitizeHeaders(start.RequestHeaders),
			RequestBody:    sanitizePayload(start.RequestBody),
			RequestQuery:   start.RequestQuery,
			OperationName:  start.OperationName,
			OperationInput: sanitizePayload(start.OperationInput),
			Status:         model.StatusStarted,
			DateStarted:    now,
		})
	}
	return detailID
}

// CompleteDetail applies the completed terminal transition. A detail still
// sitting in the buffer is completed in place; a flushed one gets a store
// update.
func (r *Recorder) CompleteDetail(ctx context.Context, detailID string, responseStatus int, responseBody any, responseHeaders map[string]string, operationOutput any) {
	terminal := store.DetailTerminal{
		Status:          model.StatusCompleted,
		ResponseStatus:  responseStatus,
		ResponseBody:    sanitizePayload(responseBody),
		ResponseHeaders: sanitize.SanitizeHeaders(responseHeaders),
		OperationOutput: sanitizePayload(operationOutput),
	}
	r.finishDetail(ctx, detailID, terminal, nil)
}

// FailDetail applies the failed terminal transition and appends the error to
// the owning trace's error list.
func (r *Recorder) FailDetail(ctx context.Context, detailID string, cause error) {
	info := sanitize.FormatError(cause)
	terminal := store.DetailTerminal{
		Status: model.StatusFailed,
		Error:  &info,
	}
	r.finishDetail(ctx, detailID, terminal, &info)
}

func (r *Recorder) finishDetail(ctx context.Context, detailID string, terminal store.DetailTerminal, errInfo *model.ErrorInfo) {
	rec, ok := r.registry.detail(detailID)
	if !ok {
		return
	}
	if errInfo != nil {
		if tc := r.registry.lookup(rec.traceID); tc != nil {
			tc.recordError(*errInfo)
		}
	}
	if !r.Enabled() {
		return
	}
	now := time.Now().UTC()
	terminal.FinishedAt = now
	terminal.DurationMs = now.Sub(rec.startedAt).Milliseconds()

	if r.buffer.complete(detailID, terminal) {
		return
	}
	r.guard(ctx, "finish detail", rec.traceID, func(ctx context.Context) error {
		return r.store.FinishDetail(ctx, detailID, terminal)
	})
}

// Flush drains the detail buffer immediately. Exposed for shutdown paths.
func (r *Recorder) Flush(ctx context.Context) {
	r.buffer.flush(ctx)
}

// ActiveTraces returns the number of live trace contexts.
func (r *Recorder) ActiveTraces() int {
	return r.registry.active()
}

// guard runs a persistence call with the swallow-everything discipline:
// errors are logged and dropped, panics are recovered. Nothing escapes to
// the instrumented caller.
func (r *Recorder) guard(ctx context.Context, op, traceID string, fn func(context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("recorder panic recovered",
				zap.String("op", op),
				zap.String("trace_id", traceID),
				zap.Any("panic", rec),
				zap.String("stack", sanitize.FilterStack(string(debug.Stack()))),
			)
		}
	}()
	if err := fn(ctx); err != nil {
		r.logger.Warn("recorder write dropped",
			zap.String("op", op),
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		for _, obs := range r.observers {
			obs.OnWriteDropped(op)
		}
	}
}

func (r *Recorder) notifyFlush(count int, failed bool) {
	for _, obs := range r.observers {
		obs.OnDetailFlush(count, failed)
	}
}

// sanitizePayload applies the full sanitization pipeline to one payload.
func sanitizePayload(v any) any {
	if v == nil {
		return nil
	}
	return sanitize.TruncatePayload(sanitize.Sanitize(v, sanitize.DefaultMaxDepth), maxPayloadBytes)
}
