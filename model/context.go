package model

import "context"

type traceIDKey struct{}

// WithTraceID stores the active trace ID in the context. The boundary
// middleware sets it; instrumented automations read it to thread the ID
// through their call chain.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFrom returns the trace ID stored in the context, or "".
func TraceIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}
