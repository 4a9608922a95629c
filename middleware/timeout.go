package middleware

import (
	"context"
	"time"

	"github.com/xraph/docket/job"
)

// Timeout returns middleware that enforces an execution deadline on every
// job. When the deadline passes the processor's context is cancelled; the
// processor should observe ctx.Done() and return. A non-positive d makes
// this a pass-through.
//
// The deadline only bounds the processor. The lease is still renewed until
// the processor actually returns.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
