package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the ringwatch tracer.
const tracerName = "github.com/MrWong99/ringwatch"

// Tracer returns the package-level [trace.Tracer]. It uses the globally
// registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartDetectionSpan starts a span for work done on behalf of one detection
// event, tagged with its ID and detector mode.
func StartDetectionSpan(ctx context.Context, name, id, mode string) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(
		attribute.String("event.id", id),
		attribute.String("event.mode", mode),
	))
}

// FailSpan records err on span and marks it failed. A nil err is ignored.
func FailSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID extracts the trace ID from the span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
// Detection dispatch and unlock requests share it in their log lines.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns base (or the default logger when base is nil) enriched with
// trace_id and span_id from the span context in ctx.
func Logger(ctx context.Context, base ...*slog.Logger) *slog.Logger {
	l := slog.Default()
	if len(base) > 0 && base[0] != nil {
		l = base[0]
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
