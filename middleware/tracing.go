package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/docket/job"
)

// tracerName is the instrumentation scope name for docket tracing.
const tracerName = "github.com/xraph/docket"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: docket.job.id, docket.job.name, docket.queue and
// docket.job.age (seconds between enqueue and start).
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.Int64("docket.job.id", j.ID),
			attribute.String("docket.job.name", j.Name),
			attribute.String("docket.queue", j.Queue),
		}
		if j.Started != nil && !j.CreatedAt.IsZero() {
			attrs = append(attrs, attribute.Float64("docket.job.age", j.Started.Sub(j.CreatedAt).Seconds()))
		}

		ctx, span := tracer.Start(ctx, "docket.job.process",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
