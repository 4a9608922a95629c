package worker

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/docket"
	"github.com/xraph/docket/backoff"
	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/id"
	"github.com/xraph/docket/middleware"
)

// Option configures a Worker.
type Option func(*Worker)

// WithConfig replaces the worker configuration. Apply it before options
// that adjust single fields, such as WithConcurrency.
func WithConfig(cfg docket.Config) Option {
	return func(w *Worker) { w.config = cfg }
}

// WithConcurrency sets the maximum number of outstanding fetch or process
// operations.
func WithConcurrency(n int) Option {
	return func(w *Worker) { w.config.Concurrency = n }
}

// WithLogger sets the logger for the worker.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithExtensions sets the registry notified of lifecycle events.
func WithExtensions(r *ext.Registry) Option {
	return func(w *Worker) { w.extensions = r }
}

// WithMiddleware appends processor middleware. The chain always runs
// inside middleware.Recover.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Worker) { w.mws = append(w.mws, mws...) }
}

// WithDrainBackoff sets the strategy for the wait between fetches of a
// drained queue. The default is a constant Config.DrainDelay.
func WithDrainBackoff(s backoff.Strategy) Option {
	return func(w *Worker) { w.drain = s }
}

// WithRateLimit caps how often the worker fetches from the store, in
// fetches per second, with the given burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(w *Worker) {
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithWorkerID sets the id the worker logs under.
func WithWorkerID(wid id.WorkerID) Option {
	return func(w *Worker) { w.workerID = wid }
}

// WithClock overrides the time source for lock expiries and job
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithoutStoreClose keeps the store open when the worker stops. Use it
// when the store is shared with producers or other workers.
func WithoutStoreClose() Option {
	return func(w *Worker) { w.closeStore = false }
}
