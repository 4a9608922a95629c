package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/docket/job"
)

// Logging returns middleware that logs each run of a processor. The start
// line is logged at debug level; the outcome at info (finished) or warn
// (failed). Every line carries the job id, name and queue.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		l := logger.With(
			slog.Int64("job_id", j.ID),
			slog.String("job_name", j.Name),
			slog.String("queue", j.Queue),
		)
		if j.Started != nil {
			l.DebugContext(ctx, "processing job", slog.Duration("waited", j.Started.Sub(j.CreatedAt)))
		} else {
			l.DebugContext(ctx, "processing job")
		}

		start := time.Now()
		err := next(ctx)
		took := slog.Duration("elapsed", time.Since(start))

		if err != nil {
			l.WarnContext(ctx, "processor returned error", took, slog.String("error", err.Error()))
			return err
		}
		l.InfoContext(ctx, "processor done", took)
		return nil
	}
}
