// Package model defines the persisted and wire-level types shared by the
// recorder write path, the query read path, and the HTTP transport.
package model

import "time"

// Execution status constants, shared by traces, steps, and details.
// Transitions only ever move forward: started -> {completed|failed|skipped}.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Trigger type constants for traces.
const (
	TriggerWebhook = "webhook"
	TriggerCron    = "cron"
)

// Detail type constants classifying the finest-grained records.
const (
	DetailAPICall     = "api_call"
	DetailDBQuery     = "db_query"
	DetailDBMutation  = "db_mutation"
	DetailWebhookOut  = "webhook_out"
	DetailAICall      = "ai_call"
	DetailValidation  = "validation"
	DetailCalculation = "calculation"
	DetailDecision    = "decision"
)

// ErrorInfo is the structured error snapshot attached to failed traces,
// steps, and details. Produced by the sanitize package; never contains
// secrets or unbounded stacks.
type ErrorInfo struct {
	Message    string `json:"message"`
	Stack      string `json:"stack,omitempty"`
	Code       string `json:"code,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Raw        any    `json:"raw,omitempty"`
}

// CorrelationIDs are the business identifiers extracted from trigger
// payloads. All fields are optional; they may be populated at trace start or
// late-bound as lookups resolve mid-run.
type CorrelationIDs struct {
	ContactID     string `json:"contact_id,omitempty"`
	OpportunityID string `json:"opportunity_id,omitempty"`
	MatterID      string `json:"matter_id,omitempty"`
	InvoiceID     string `json:"invoice_id,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// Empty reports whether no correlation ID is set.
func (c CorrelationIDs) Empty() bool {
	return c == CorrelationIDs{}
}

// Merge returns a copy of c with any non-empty fields of other applied on
// top. Existing values are only overwritten by non-empty ones.
func (c CorrelationIDs) Merge(other CorrelationIDs) CorrelationIDs {
	out := c
	if other.ContactID != "" {
		out.ContactID = other.ContactID
	}
	if other.OpportunityID != "" {
		out.OpportunityID = other.OpportunityID
	}
	if other.MatterID != "" {
		out.MatterID = other.MatterID
	}
	if other.InvoiceID != "" {
		out.InvoiceID = other.InvoiceID
	}
	if other.AppointmentID != "" {
		out.AppointmentID = other.AppointmentID
	}
	return out
}

// Trace is one record per inbound webhook or cron invocation. Payload-valued
// fields (headers, bodies, error raw) hold sanitized, size-bounded JSON
// values produced at the recorder boundary.
type Trace struct {
	TraceID        string            `json:"trace_id"`
	System         string            `json:"system"`
	Environment    string            `json:"environment,omitempty"`
	TriggerType    string            `json:"trigger_type"`
	Endpoint       string            `json:"endpoint"`
	HTTPMethod     string            `json:"http_method,omitempty"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	RequestBody    any               `json:"request_body,omitempty"`
	RequestQuery   map[string]string `json:"request_query,omitempty"`
	RequestIP      string            `json:"request_ip,omitempty"`
	Correlation    CorrelationIDs    `json:"correlation"`
	Status         string            `json:"status"`
	ResponseStatus int               `json:"response_status,omitempty"`
	ResponseBody   any               `json:"response_body,omitempty"`
	Error          *ErrorInfo        `json:"error,omitempty"`
	StepCount      int               `json:"step_count"`
	DetailCount    int               `json:"detail_count"`
	ErrorCount     int               `json:"error_count"`
	DateStarted    time.Time         `json:"date_started"`
	DateFinished   *time.Time        `json:"date_finished,omitempty"`
	DurationMs     int64             `json:"duration_ms,omitempty"`
}

// Step is a named unit of work belonging to exactly one trace. Sequence
// reflects start order within the trace and is never reused or reassigned.
type Step struct {
	StepID       string     `json:"step_id"`
	TraceID      string     `json:"trace_id"`
	ServiceName  string     `json:"service_name"`
	FunctionName string     `json:"function_name"`
	Sequence     int        `json:"sequence"`
	Input        any        `json:"input,omitempty"`
	ContextData  any        `json:"context_data,omitempty"`
	Output       any        `json:"output,omitempty"`
	Status       string     `json:"status"`
	Error        *ErrorInfo `json:"error,omitempty"`
	DateStarted  time.Time  `json:"date_started"`
	DateFinished *time.Time `json:"date_finished,omitempty"`
	DurationMs   int64      `json:"duration_ms,omitempty"`
}

// Detail is the finest-grained record: one external call or internal
// decision inside a step. Sequence is scoped per owning step.
type Detail struct {
	DetailID        string            `json:"detail_id"`
	StepID          string            `json:"step_id"`
	TraceID         string            `json:"trace_id"`
	DetailType      string            `json:"detail_type"`
	Sequence        int               `json:"sequence"`
	APIProvider     string            `json:"api_provider,omitempty"`
	APIEndpoint     string            `json:"api_endpoint,omitempty"`
	APIMethod       string            `json:"api_method,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     any               `json:"request_body,omitempty"`
	RequestQuery    map[string]string `json:"request_query,omitempty"`
	ResponseStatus  int               `json:"response_status,omitempty"`
	ResponseBody    any               `json:"response_body,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	OperationName   string            `json:"operation_name,omitempty"`
	OperationInput  any               `json:"operation_input,omitempty"`
	OperationOutput any               `json:"operation_output,omitempty"`
	Status          string            `json:"status"`
	Error           *ErrorInfo        `json:"error,omitempty"`
	DateStarted     time.Time         `json:"date_started"`
	DateFinished    *time.Time        `json:"date_finished,omitempty"`
	DurationMs      int64             `json:"duration_ms,omitempty"`
}

// TraceFilters narrow the trace list read path.
type TraceFilters struct {
	System string
	Status string
	Limit  int
	Cursor string
}

// TraceList is one page of the most-recent-first trace listing.
type TraceList struct {
	Items      []Trace `json:"items"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// StepWithDetails is a step with its details nested in sequence order.
type StepWithDetails struct {
	Step
	Details []Detail `json:"details"`
}

// TraceTree is a fully reconstructed execution tree for one trace: the trace
// row plus its steps in start order, each carrying its own details.
type TraceTree struct {
	Trace Trace             `json:"trace"`
	Steps []StepWithDetails `json:"steps"`
}

// TraceStats aggregates trace counts by status for the dashboard list header.
type TraceStats struct {
	Total     int `json:"total"`
	Started   int `json:"started"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
