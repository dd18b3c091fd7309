package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shelfline/flightrec/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. In production the pool
// points at the Supabase-hosted tracking database.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Migrate creates the tracking tables and indexes if they do not exist.
// Statements are idempotent so repeated startups are safe.
func (s *PgStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			trace_id VARCHAR(64) PRIMARY KEY,
			system VARCHAR(255) NOT NULL,
			environment VARCHAR(64) NOT NULL,
			trigger_type VARCHAR(64) NOT NULL,
			endpoint VARCHAR(512) NOT NULL,
			http_method VARCHAR(16) NOT NULL,
			request_headers JSONB,
			request_body JSONB,
			request_query JSONB,
			request_ip VARCHAR(64),
			contact_id VARCHAR(128),
			opportunity_id VARCHAR(128),
			matter_id VARCHAR(128),
			invoice_id VARCHAR(128),
			appointment_id VARCHAR(128),
			status VARCHAR(32) NOT NULL DEFAULT 'started',
			response_status INTEGER,
			response_body JSONB,
			error JSONB,
			step_count INTEGER NOT NULL DEFAULT 0,
			detail_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			date_started TIMESTAMPTZ NOT NULL,
			date_finished TIMESTAMPTZ,
			duration_ms BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_status ON traces(status)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_system ON traces(system)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_date_started ON traces(date_started DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_contact ON traces(contact_id) WHERE contact_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_traces_opportunity ON traces(opportunity_id) WHERE opportunity_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_traces_matter ON traces(matter_id) WHERE matter_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_traces_invoice ON traces(invoice_id) WHERE invoice_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_traces_appointment ON traces(appointment_id) WHERE appointment_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS steps (
			step_id VARCHAR(128) PRIMARY KEY,
			trace_id VARCHAR(64) NOT NULL,
			service_name VARCHAR(255) NOT NULL,
			function_name VARCHAR(255) NOT NULL,
			sequence INTEGER NOT NULL,
			input JSONB,
			context_data JSONB,
			output JSONB,
			status VARCHAR(32) NOT NULL DEFAULT 'started',
			error JSONB,
			date_started TIMESTAMPTZ NOT NULL,
			date_finished TIMESTAMPTZ,
			duration_ms BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_trace ON steps(trace_id, sequence)`,
		`CREATE TABLE IF NOT EXISTS details (
			detail_id VARCHAR(128) PRIMARY KEY,
			step_id VARCHAR(128) NOT NULL,
			trace_id VARCHAR(64) NOT NULL,
			detail_type VARCHAR(64) NOT NULL,
			sequence INTEGER NOT NULL,
			api_provider VARCHAR(255),
			api_endpoint VARCHAR(512),
			api_method VARCHAR(16),
			request_headers JSONB,
			request_body JSONB,
			request_query JSONB,
			response_status INTEGER,
			response_body JSONB,
			response_headers JSONB,
			operation_name VARCHAR(255),
			operation_input JSONB,
			operation_output JSONB,
			status VARCHAR(32) NOT NULL DEFAULT 'started',
			error JSONB,
			date_started TIMESTAMPTZ NOT NULL,
			date_finished TIMESTAMPTZ,
			duration_ms BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_details_trace ON details(trace_id, step_id, sequence)`,
	}

	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const traceColumns = `trace_id, system, environment, trigger_type, endpoint, http_method,
       request_headers, request_body, request_query, request_ip,
       contact_id, opportunity_id, matter_id, invoice_id, appointment_id,
       status, response_status, response_body, error,
       step_count, detail_count, error_count,
       date_started, date_finished, duration_ms`

// CreateTrace inserts a new trace row.
func (s *PgStore) CreateTrace(ctx context.Context, t model.Trace) error {
	headers, err := marshalJSON(t.RequestHeaders)
	if err != nil {
		return fmt.Errorf("marshal request headers: %w", err)
	}
	body, err := marshalJSON(t.RequestBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	query, err := marshalJSON(t.RequestQuery)
	if err != nil {
		return fmt.Errorf("marshal request query: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO traces (
			trace_id, system, environment, trigger_type, endpoint, http_method,
			request_headers, request_body, request_query, request_ip,
			contact_id, opportunity_id, matter_id, invoice_id, appointment_id,
			status, step_count, detail_count, error_count, date_started
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, 0, 0, 0, $17
		)`,
		t.TraceID, t.System, t.Environment, t.TriggerType, t.Endpoint, t.HTTPMethod,
		headers, body, query, t.RequestIP,
		nullable(t.Correlation.ContactID), nullable(t.Correlation.OpportunityID),
		nullable(t.Correlation.MatterID), nullable(t.Correlation.InvoiceID),
		nullable(t.Correlation.AppointmentID),
		t.Status, t.DateStarted,
	)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}

// FinishTrace applies the terminal transition. The status guard makes the
// write idempotent: a trace already terminal is never rewritten.
func (s *PgStore) FinishTrace(ctx context.Context, traceID string, terminal TraceTerminal) error {
	respBody, err := marshalJSON(terminal.ResponseBody)
	if err != nil {
		return fmt.Errorf("marshal response body: %w", err)
	}
	errInfo, err := marshalJSON(terminal.Error)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE traces SET
			status = $1,
			response_status = $2,
			response_body = $3,
			error = $4,
			step_count = $5,
			detail_count = $6,
			error_count = $7,
			date_finished = $8,
			duration_ms = $9
		WHERE trace_id = $10 AND status = 'started'`,
		terminal.Status, terminal.ResponseStatus, respBody, errInfo,
		terminal.StepCount, terminal.DetailCount, terminal.ErrorCount,
		terminal.FinishedAt, terminal.DurationMs, traceID,
	)
	if err != nil {
		return fmt.Errorf("finish trace: %w", err)
	}
	return nil
}

// UpdateTraceCorrelation merges non-empty correlation IDs into the trace row.
// COALESCE with NULLIF keeps existing values when the update omits a field.
func (s *PgStore) UpdateTraceCorrelation(ctx context.Context, traceID string, ids model.CorrelationIDs) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE traces SET
			contact_id     = COALESCE(NULLIF($1, ''), contact_id),
			opportunity_id = COALESCE(NULLIF($2, ''), opportunity_id),
			matter_id      = COALESCE(NULLIF($3, ''), matter_id),
			invoice_id     = COALESCE(NULLIF($4, ''), invoice_id),
			appointment_id = COALESCE(NULLIF($5, ''), appointment_id)
		WHERE trace_id = $6`,
		ids.ContactID, ids.OpportunityID, ids.MatterID, ids.InvoiceID, ids.AppointmentID,
		traceID,
	)
	if err != nil {
		return fmt.Errorf("update trace correlation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("trace %q not found", traceID))
	}
	return nil
}

// CreateStep inserts a new step row.
func (s *PgStore) CreateStep(ctx context.Context, step model.Step) error {
	input, err := marshalJSON(step.Input)
	if err != nil {
		return fmt.Errorf("marshal step input: %w", err)
	}
	contextData, err := marshalJSON(step.ContextData)
	if err != nil {
		return fmt.Errorf("marshal step context: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO steps (
			step_id, trace_id, service_name, function_name, sequence,
			input, context_data, status, date_started
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		step.StepID, step.TraceID, step.ServiceName, step.FunctionName, step.Sequence,
		input, contextData, step.Status, step.DateStarted,
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// FinishStep applies the terminal transition to a step.
func (s *PgStore) FinishStep(ctx context.Context, stepID string, terminal StepTerminal) error {
	output, err := marshalJSON(terminal.Output)
	if err != nil {
		return fmt.Errorf("marshal step output: %w", err)
	}
	errInfo, err := marshalJSON(terminal.Error)
	if err != nil {
		return fmt.Errorf("marshal step error: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE steps SET
			status = $1,
			output = $2,
			error = $3,
			date_finished = $4,
			duration_ms = $5
		WHERE step_id = $6 AND status = 'started'`,
		terminal.Status, output, errInfo, terminal.FinishedAt, terminal.DurationMs, stepID,
	)
	if err != nil {
		return fmt.Errorf("finish step: %w", err)
	}
	return nil
}

// CreateDetails batch-inserts buffered detail rows in one round trip.
func (s *PgStore) CreateDetails(ctx context.Context, details []model.Detail) error {
	if len(details) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range details {
		reqHeaders, err := marshalJSON(d.RequestHeaders)
		if err != nil {
			return fmt.Errorf("marshal detail request headers: %w", err)
		}
		reqBody, err := marshalJSON(d.RequestBody)
		if err != nil {
			return fmt.Errorf("marshal detail request body: %w", err)
		}
		reqQuery, err := marshalJSON(d.RequestQuery)
		if err != nil {
			return fmt.Errorf("marshal detail request query: %w", err)
		}
		respBody, err := marshalJSON(d.ResponseBody)
		if err != nil {
			return fmt.Errorf("marshal detail response body: %w", err)
		}
		respHeaders, err := marshalJSON(d.ResponseHeaders)
		if err != nil {
			return fmt.Errorf("marshal detail response headers: %w", err)
		}
		opInput, err := marshalJSON(d.OperationInput)
		if err != nil {
			return fmt.Errorf("marshal detail operation input: %w", err)
		}
		opOutput, err := marshalJSON(d.OperationOutput)
		if err != nil {
			return fmt.Errorf("marshal detail operation output: %w", err)
		}
		errInfo, err := marshalJSON(d.Error)
		if err != nil {
			return fmt.Errorf("marshal detail error: %w", err)
		}

		batch.Queue(`
			INSERT INTO details (
				detail_id, step_id, trace_id, detail_type, sequence,
				api_provider, api_endpoint, api_method,
				request_headers, request_body, request_query,
				response_status, response_body, response_headers,
				operation_name, operation_input, operation_output,
				status, error, date_started, date_finished, duration_ms
			) VALUES (
				$1, $2, $3, $4, $5,
				$6, $7, $8,
				$9, $10, $11,
				$12, $13, $14,
				$15, $16, $17,
				$18, $19, $20, $21, $22
			)`,
			d.DetailID, d.StepID, d.TraceID, d.DetailType, d.Sequence,
			d.APIProvider, d.APIEndpoint, d.APIMethod,
			reqHeaders, reqBody, reqQuery,
			d.ResponseStatus, respBody, respHeaders,
			d.OperationName, opInput, opOutput,
			d.Status, errInfo, d.DateStarted, d.DateFinished, d.DurationMs,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range details {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert details batch: %w", err)
		}
	}
	return nil
}

// FinishDetail applies the terminal transition to a detail.
func (s *PgStore) FinishDetail(ctx context.Context, detailID string, terminal DetailTerminal) error {
	respBody, err := marshalJSON(terminal.ResponseBody)
	if err != nil {
		return fmt.Errorf("marshal detail response body: %w", err)
	}
	respHeaders, err := marshalJSON(terminal.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("marshal detail response headers: %w", err)
	}
	opOutput, err := marshalJSON(terminal.OperationOutput)
	if err != nil {
		return fmt.Errorf("marshal detail operation output: %w", err)
	}
	errInfo, err := marshalJSON(terminal.Error)
	if err != nil {
		return fmt.Errorf("marshal detail error: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE details SET
			status = $1,
			response_status = $2,
			response_body = $3,
			response_headers = $4,
			operation_output = $5,
			error = $6,
			date_finished = $7,
			duration_ms = $8
		WHERE detail_id = $9 AND status = 'started'`,
		terminal.Status, terminal.ResponseStatus, respBody, respHeaders, opOutput,
		errInfo, terminal.FinishedAt, terminal.DurationMs, detailID,
	)
	if err != nil {
		return fmt.Errorf("finish detail: %w", err)
	}
	return nil
}

// ListTraces returns one page of traces, most recent first.
func (s *PgStore) ListTraces(ctx context.Context, filters model.TraceFilters) (model.TraceList, error) {
	query := `SELECT ` + traceColumns + ` FROM traces WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filters.System != "" {
		query += fmt.Sprintf(" AND system = $%d", argIdx)
		args = append(args, filters.System)
		argIdx++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.Cursor != "" {
		cursorAt, cursorID, err := decodeCursor(filters.Cursor)
		if err != nil {
			return model.TraceList{}, model.NewBadRequestError("invalid cursor")
		}
		query += fmt.Sprintf(" AND (date_started, trace_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, cursorAt, cursorID)
		argIdx += 2
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	// Fetch one extra row to detect whether another page exists.
	query += fmt.Sprintf(" ORDER BY date_started DESC, trace_id DESC LIMIT $%d", argIdx)
	args = append(args, limit+1)

	traces, err := s.queryTraces(ctx, query, args...)
	if err != nil {
		return model.TraceList{}, err
	}

	list := model.TraceList{Items: traces}
	if len(traces) > limit {
		list.Items = traces[:limit]
		list.HasMore = true
		list.NextCursor = encodeCursor(traces[limit-1].DateStarted, traces[limit-1].TraceID)
	}
	if list.Items == nil {
		list.Items = []model.Trace{}
	}
	return list, nil
}

// GetTrace retrieves a trace by ID.
func (s *PgStore) GetTrace(ctx context.Context, traceID string) (model.Trace, error) {
	traces, err := s.queryTraces(ctx,
		`SELECT `+traceColumns+` FROM traces WHERE trace_id = $1`, traceID)
	if err != nil {
		return model.Trace{}, err
	}
	if len(traces) == 0 {
		return model.Trace{}, model.NewNotFoundError(fmt.Sprintf("trace %q not found", traceID))
	}
	return traces[0], nil
}

// GetSteps returns all steps for a trace ordered by sequence.
func (s *PgStore) GetSteps(ctx context.Context, traceID string) ([]model.Step, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT step_id, trace_id, service_name, function_name, sequence,
		       input, context_data, output, status, error,
		       date_started, date_finished, duration_ms
		FROM steps
		WHERE trace_id = $1
		ORDER BY sequence ASC`,
		traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []model.Step
	for rows.Next() {
		var step model.Step
		var input, contextData, output, errInfo []byte
		var finished *time.Time
		var durationMs *int64
		if err := rows.Scan(
			&step.StepID, &step.TraceID, &step.ServiceName, &step.FunctionName, &step.Sequence,
			&input, &contextData, &output, &step.Status, &errInfo,
			&step.DateStarted, &finished, &durationMs,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Input = unmarshalJSON(input)
		step.ContextData = unmarshalJSON(contextData)
		step.Output = unmarshalJSON(output)
		step.Error = unmarshalError(errInfo)
		step.DateFinished = finished
		if durationMs != nil {
			step.DurationMs = *durationMs
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// GetDetails returns all details for a trace ordered by step and sequence.
func (s *PgStore) GetDetails(ctx context.Context, traceID string) ([]model.Detail, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT detail_id, step_id, trace_id, detail_type, sequence,
		       api_provider, api_endpoint, api_method,
		       request_headers, request_body, request_query,
		       response_status, response_body, response_headers,
		       operation_name, operation_input, operation_output,
		       status, error, date_started, date_finished, duration_ms
		FROM details
		WHERE trace_id = $1
		ORDER BY step_id ASC, sequence ASC`,
		traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query details: %w", err)
	}
	defer rows.Close()

	var details []model.Detail
	for rows.Next() {
		var d model.Detail
		var reqHeaders, reqBody, reqQuery, respBody, respHeaders, opInput, opOutput, errInfo []byte
		var respStatus, durationMs *int64
		var finished *time.Time
		if err := rows.Scan(
			&d.DetailID, &d.StepID, &d.TraceID, &d.DetailType, &d.Sequence,
			&d.APIProvider, &d.APIEndpoint, &d.APIMethod,
			&reqHeaders, &reqBody, &reqQuery,
			&respStatus, &respBody, &respHeaders,
			&d.OperationName, &opInput, &opOutput,
			&d.Status, &errInfo, &d.DateStarted, &finished, &durationMs,
		); err != nil {
			return nil, fmt.Errorf("scan detail: %w", err)
		}
		d.RequestHeaders = unmarshalStringMap(reqHeaders)
		d.RequestBody = unmarshalJSON(reqBody)
		d.RequestQuery = unmarshalStringMap(reqQuery)
		d.ResponseBody = unmarshalJSON(respBody)
		d.ResponseHeaders = unmarshalStringMap(respHeaders)
		d.OperationInput = unmarshalJSON(opInput)
		d.OperationOutput = unmarshalJSON(opOutput)
		d.Error = unmarshalError(errInfo)
		d.DateFinished = finished
		if respStatus != nil {
			d.ResponseStatus = int(*respStatus)
		}
		if durationMs != nil {
			d.DurationMs = *durationMs
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// SearchByCorrelation returns traces matching one correlation field. The
// field name is validated against a fixed set before being interpolated.
func (s *PgStore) SearchByCorrelation(ctx context.Context, field, value string) ([]model.Trace, error) {
	if !ValidCorrelationField(field) {
		return nil, model.NewBadRequestError(fmt.Sprintf("unknown correlation field %q", field))
	}
	traces, err := s.queryTraces(ctx,
		`SELECT `+traceColumns+` FROM traces WHERE `+field+` = $1 ORDER BY date_started DESC`,
		value)
	if err != nil {
		return nil, err
	}
	if traces == nil {
		traces = []model.Trace{}
	}
	return traces, nil
}

// Stats aggregates trace counts by status.
func (s *PgStore) Stats(ctx context.Context, system string) (model.TraceStats, error) {
	query := `SELECT status, COUNT(*) FROM traces`
	args := []any{}
	if system != "" {
		query += ` WHERE system = $1`
		args = append(args, system)
	}
	query += ` GROUP BY status`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return model.TraceStats{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats model.TraceStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return model.TraceStats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.Total += count
		switch status {
		case model.StatusStarted:
			stats.Started = count
		case model.StatusCompleted:
			stats.Completed = count
		case model.StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// FindDangling returns traces stuck in started status since before cutoff.
func (s *PgStore) FindDangling(ctx context.Context, cutoff time.Time) ([]model.Trace, error) {
	return s.queryTraces(ctx,
		`SELECT `+traceColumns+` FROM traces
		 WHERE status = 'started' AND date_started < $1
		 ORDER BY date_started ASC`,
		cutoff)
}

// HealthCheck verifies the pool is reachable.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// queryTraces executes a query over the traces table and scans full rows.
func (s *PgStore) queryTraces(ctx context.Context, query string, args ...any) ([]model.Trace, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var traces []model.Trace
	for rows.Next() {
		var t model.Trace
		var headers, body, query, respBody, errInfo []byte
		var contactID, opportunityID, matterID, invoiceID, appointmentID *string
		var respStatus, durationMs *int64
		var finished *time.Time
		if err := rows.Scan(
			&t.TraceID, &t.System, &t.Environment, &t.TriggerType, &t.Endpoint, &t.HTTPMethod,
			&headers, &body, &query, &t.RequestIP,
			&contactID, &opportunityID, &matterID, &invoiceID, &appointmentID,
			&t.Status, &respStatus, &respBody, &errInfo,
			&t.StepCount, &t.DetailCount, &t.ErrorCount,
			&t.DateStarted, &finished, &durationMs,
		); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		t.RequestHeaders = unmarshalStringMap(headers)
		t.RequestBody = unmarshalJSON(body)
		t.RequestQuery = unmarshalStringMap(query)
		t.ResponseBody = unmarshalJSON(respBody)
		t.Error = unmarshalError(errInfo)
		t.Correlation = model.CorrelationIDs{
			ContactID:     deref(contactID),
			OpportunityID: deref(opportunityID),
			MatterID:      deref(matterID),
			InvoiceID:     deref(invoiceID),
			AppointmentID: deref(appointmentID),
		}
		t.DateFinished = finished
		if respStatus != nil {
			t.ResponseStatus = int(*respStatus)
		}
		if durationMs != nil {
			t.DurationMs = *durationMs
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

// --- helpers ---

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}

func unmarshalStringMap(data []byte) map[string]string {
	if len(data) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func unmarshalError(data []byte) *model.ErrorInfo {
	if len(data) == 0 {
		return nil
	}
	var e model.ErrorInfo
	if err := json.Unmarshal(data, &e); err != nil {
		return nil
	}
	return &e
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
