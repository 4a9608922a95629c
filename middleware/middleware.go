package middleware

import (
	"context"

	"github.com/xraph/docket/job"
)

// Handler is the terminal function that runs the processor for one job.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, a snapshot of the job being processed,
// and the next handler to call. Middleware MUST call next to continue the
// chain (unless short-circuiting on error).
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}

// Wrap binds a processor to its job and progress callback and runs it
// through mw. A nil mw runs the processor directly.
func Wrap(mw Middleware, p job.Processor, j *job.Job, progress job.Progress) Handler {
	terminal := func(ctx context.Context) error {
		return p(ctx, j, progress)
	}
	if mw == nil {
		return terminal
	}
	return func(ctx context.Context) error {
		return mw(ctx, j, terminal)
	}
}
