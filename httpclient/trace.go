package httpclient

import (
	"context"

	"github.com/google/uuid"
)

// HeaderXRequestID is the default header carrying the per-call trace ID.
const HeaderXRequestID = "X-Request-ID"

type traceIDKey struct{}

// WithTraceID stores a trace ID that the client sends instead of
// generating one.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID stored by WithTraceID.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDKey{}).(string)
	return id, ok && id != ""
}

// EnsureTraceID returns the context trace ID or a new random one.
func EnsureTraceID(ctx context.Context) string {
	if id, ok := TraceIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}
