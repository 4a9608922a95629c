package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/docket"
	"github.com/xraph/docket/job"
)

// Recover returns middleware that recovers from panics in the handler chain.
// A panic becomes a *docket.ProcessorError and is logged with a stack trace,
// so the job is recorded as failed instead of crashing the worker.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job processor panicked",
					slog.String("job_name", j.Name),
					slog.Int64("job_id", j.ID),
					slog.String("queue", j.Queue),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = &docket.ProcessorError{
					JobID: j.ID,
					Err:   fmt.Errorf("panic in job %s: %v", j.Name, r),
				}
			}
		}()
		return next(ctx)
	}
}
