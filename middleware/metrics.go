package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/docket/job"
)

// meterName is the instrumentation scope name for docket metrics.
const meterName = "github.com/xraph/docket"

// Metrics returns middleware that records processor metrics with the
// global OTel MeterProvider. Without a configured provider the instruments
// are noops.
//
// Instruments:
//   - docket.job.duration (Float64Histogram, s): processor run time,
//     by job_name, queue and status ("ok" or "error")
//   - docket.job.executions (Int64Counter): processor runs, same attributes
//   - docket.job.wait (Float64Histogram, s): time from enqueue to start,
//     by job_name and queue; only recorded when the start time is known
//   - docket.job.active (Int64UpDownCounter): processors currently running,
//     by queue
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The metric API hands back a working noop instrument alongside any
	// error, so the errors are ignored.
	duration, _ := meter.Float64Histogram("docket.job.duration",
		metric.WithDescription("Processor run time"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter("docket.job.executions",
		metric.WithDescription("Processor runs"),
		metric.WithUnit("{execution}"),
	)
	wait, _ := meter.Float64Histogram("docket.job.wait",
		metric.WithDescription("Time a job spent pending before it started"),
		metric.WithUnit("s"),
	)
	active, _ := meter.Int64UpDownCounter("docket.job.active",
		metric.WithDescription("Processors currently running"),
		metric.WithUnit("{job}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		name := attribute.String("job_name", j.Name)
		queue := attribute.String("queue", j.Queue)

		if j.Started != nil {
			wait.Record(ctx, j.Started.Sub(j.CreatedAt).Seconds(), metric.WithAttributes(name, queue))
		}
		active.Add(ctx, 1, metric.WithAttributes(queue))
		defer active.Add(ctx, -1, metric.WithAttributes(queue))

		start := time.Now()
		err := next(ctx)

		status := attribute.String("status", "ok")
		if err != nil {
			status = attribute.String("status", "error")
		}
		attrs := metric.WithAttributes(name, queue, status)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		executions.Add(ctx, 1, attrs)
		return err
	}
}
