package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the application tracer.
const tracerName = "github.com/canning1295/RealTimeTranslate"

// Tracer returns the application [trace.Tracer] from the globally registered
// provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on the application tracer. The caller owns the
// returned span and must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// UtteranceSpan starts the span covering one utterance's trip through the
// pipeline, tagged with its sequence number so stage logs and the trace can
// be lined up.
func UtteranceSpan(ctx context.Context, seq uint64) (context.Context, trace.Span) {
	return StartSpan(ctx, "pipeline.utterance",
		trace.WithAttributes(attribute.Int64("utterance.seq", int64(seq))))
}

// CorrelationID returns the active trace ID from ctx, or the empty string
// when ctx carries no span with a valid trace.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default slog logger annotated with trace_id and span_id
// when ctx carries an active span, and the plain default logger otherwise.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
