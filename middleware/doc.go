// Package middleware provides composable middleware for job execution.
//
// A [Middleware] is a function that wraps a job handler. Middleware are
// composed into a chain using [Chain] and applied before each job executes.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → timeout → processor
//	w, _ := worker.New("emails", s, process,
//	    worker.WithMiddleware(middleware.Logging(logger), middleware.Timeout(time.Minute)))
//
// # Built-in Middleware
//
//   - [Logging]: logs job name, queue, duration and outcome
//   - [Recover]: turns a processor panic into a *docket.ProcessorError
//   - [Timeout]: cancels the processor context after a fixed duration
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-job duration and outcome counters
//
// The worker always runs its chain inside Recover, so a panicking processor
// marks its job failed instead of taking down the process.
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting. Returning without calling next marks the job failed
// only if the returned error is non-nil.
package middleware
