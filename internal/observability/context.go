package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}

// correlation holds the identifiers that tie log lines and events to the
// HTTP request or reconciliation job that produced them.
type correlation struct {
	requestID string
	jobID     string
}

func correlationFrom(ctx context.Context) correlation {
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c
}

// WithRequestID stores the HTTP correlation ID in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	c := correlationFrom(ctx)
	c.requestID = requestID
	return context.WithValue(ctx, correlationKey{}, c)
}

// RequestIDFromContext returns the HTTP correlation ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return correlationFrom(ctx).requestID
}

// WithJobID stores the reconciliation job ID in ctx.
func WithJobID(ctx context.Context, jobID string) context.Context {
	c := correlationFrom(ctx)
	c.jobID = jobID
	return context.WithValue(ctx, correlationKey{}, c)
}

// JobIDFromContext returns the reconciliation job ID, or "".
func JobIDFromContext(ctx context.Context) string {
	return correlationFrom(ctx).jobID
}

// TraceSpanFromContext returns the hex trace and span IDs of the active
// span, or empty strings when there is none.
func TraceSpanFromContext(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
