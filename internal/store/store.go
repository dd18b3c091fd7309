// Package store persists traces, steps, and details. It exposes a narrow
// mutation surface for the recorder's write path and the queries the
// dashboard read path is built on.
package store

import (
	"context"
	"time"

	"github.com/shelfline/flightrec/model"
)

// TraceTerminal carries everything written at a trace's terminal transition.
// Terminal fields are set exactly once; a second terminal write is a no-op.
type TraceTerminal struct {
	Status         string
	ResponseStatus int
	ResponseBody   any
	Error          *model.ErrorInfo
	StepCount      int
	DetailCount    int
	ErrorCount     int
	FinishedAt     time.Time
	DurationMs     int64
}

// StepTerminal carries everything written at a step's terminal transition.
type StepTerminal struct {
	Status     string
	Output     any
	Error      *model.ErrorInfo
	FinishedAt time.Time
	DurationMs int64
}

// DetailTerminal carries everything written at a detail's terminal transition.
type DetailTerminal struct {
	Status          string
	ResponseStatus  int
	ResponseBody    any
	ResponseHeaders map[string]string
	OperationOutput any
	Error           *model.ErrorInfo
	FinishedAt      time.Time
	DurationMs      int64
}

// Store is the persistence facade over the tracking database.
type Store interface {
	// CreateTrace inserts a new trace row in started status.
	CreateTrace(ctx context.Context, trace model.Trace) error

	// FinishTrace applies the terminal transition to a trace. Traces already
	// in a terminal status are left untouched.
	FinishTrace(ctx context.Context, traceID string, terminal TraceTerminal) error

	// UpdateTraceCorrelation late-binds correlation IDs discovered
	// mid-processing. Only non-empty fields are applied; status is untouched.
	UpdateTraceCorrelation(ctx context.Context, traceID string, ids model.CorrelationIDs) error

	// CreateStep inserts a new step row in started status.
	CreateStep(ctx context.Context, step model.Step) error

	// FinishStep applies the terminal transition to a step.
	FinishStep(ctx context.Context, stepID string, terminal StepTerminal) error

	// CreateDetails batch-inserts detail rows flushed from the write buffer.
	CreateDetails(ctx context.Context, details []model.Detail) error

	// FinishDetail applies the terminal transition to a detail.
	FinishDetail(ctx context.Context, detailID string, terminal DetailTerminal) error

	// ListTraces returns one page of traces, most recent first.
	ListTraces(ctx context.Context, filters model.TraceFilters) (model.TraceList, error)

	// GetTrace retrieves a trace by ID. Returns NOT_FOUND if unknown.
	GetTrace(ctx context.Context, traceID string) (model.Trace, error)

	// GetSteps returns all steps for a trace ordered by sequence.
	GetSteps(ctx context.Context, traceID string) ([]model.Step, error)

	// GetDetails returns all details for a trace ordered by step and
	// sequence.
	GetDetails(ctx context.Context, traceID string) ([]model.Detail, error)

	// SearchByCorrelation returns traces whose given correlation field
	// matches value, most recent first. An empty result is not an error.
	SearchByCorrelation(ctx context.Context, field, value string) ([]model.Trace, error)

	// Stats aggregates trace counts by status, optionally scoped to one
	// system partition.
	Stats(ctx context.Context, system string) (model.TraceStats, error)

	// FindDangling returns traces stuck in started status since before the
	// cutoff, for out-of-band reconciliation.
	FindDangling(ctx context.Context, cutoff time.Time) ([]model.Trace, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

// Correlation field names accepted by SearchByCorrelation.
const (
	FieldContactID     = "contact_id"
	FieldOpportunityID = "opportunity_id"
	FieldMatterID      = "matter_id"
	FieldInvoiceID     = "invoice_id"
	FieldAppointmentID = "appointment_id"
)

// ValidCorrelationField reports whether field names a searchable correlation
// column.
func ValidCorrelationField(field string) bool {
	switch field {
	case FieldContactID, FieldOpportunityID, FieldMatterID, FieldInvoiceID, FieldAppointmentID:
		return true
	}
	return false
}
