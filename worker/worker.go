package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/docket"
	"github.com/xraph/docket/backoff"
	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/id"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/middleware"
	"github.com/xraph/docket/timer"
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Worker consumes one queue. It keeps at most Config.Concurrency fetch or
// process operations outstanding and runs each claimed job under a
// renewed lease.
type Worker struct {
	queue      string
	store      job.Store
	processor  job.Processor
	config     docket.Config
	extensions *ext.Registry
	mws        []middleware.Middleware
	chain      middleware.Middleware
	drain      backoff.Strategy
	limiter    *rate.Limiter
	workerID   id.WorkerID
	logger     *slog.Logger
	now        func() time.Time
	closeStore bool

	// timers holds the drain waits and the stalled scan and is closed as
	// soon as stopping begins. leases holds lock renewals, which must keep
	// running until every in-flight processor has returned.
	timers *timer.Registry
	leases *timer.Registry

	mu         sync.Mutex
	state      state
	stopCtx    context.Context
	stopCancel context.CancelFunc
	stopOnce   sync.Once
	done       chan struct{}
	err        error

	scanMu sync.Mutex
	closed bool
}

// New creates a worker for queue. It validates the configuration and
// returns an error wrapping docket.ErrInvalidConfig on mistakes.
func New(queue string, s job.Store, p job.Processor, opts ...Option) (*Worker, error) {
	if s == nil {
		return nil, docket.ErrNoStore
	}
	if p == nil {
		return nil, fmt.Errorf("%w: nil processor", docket.ErrInvalidConfig)
	}

	w := &Worker{
		queue:      queue,
		store:      s,
		processor:  p,
		config:     docket.DefaultConfig(),
		workerID:   id.NewWorkerID(),
		logger:     slog.Default(),
		now:        defaultNow,
		closeStore: true,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.config.Validate(); err != nil {
		return nil, err
	}

	w.logger = w.logger.With(
		slog.String("queue", queue),
		slog.String("worker_id", w.workerID.String()),
	)
	if w.extensions == nil {
		w.extensions = ext.NewRegistry(w.logger)
	}
	if w.drain == nil {
		w.drain = backoff.NewConstant(w.config.DrainDelay)
	}
	w.chain = middleware.Chain(append([]middleware.Middleware{middleware.Recover(w.logger)}, w.mws...)...)
	w.timers = timer.New(timer.WithLogger(w.logger))
	w.leases = timer.New(timer.WithLogger(w.logger))
	w.stopCtx, w.stopCancel = context.WithCancel(context.Background())
	return w, nil
}

func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ID returns the worker's id.
func (w *Worker) ID() id.WorkerID { return w.workerID }

// Queue returns the name of the queue the worker consumes.
func (w *Worker) Queue() string { return w.queue }

// Run consumes the queue until Stop is called, ctx is cancelled, or a
// fetch fails. It returns nil after a cooperative stop and a
// *docket.LoopError after a failed fetch. Cancelling ctx begins a stop;
// processors already running see a context that is not cancelled with it.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.begin(); err != nil {
		return err
	}
	return w.run(ctx)
}

// Start runs the worker in a new goroutine and returns immediately. Use
// Done and Err to observe the end of the run.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.begin(); err != nil {
		return err
	}
	go func() { _ = w.run(ctx) }()
	return nil
}

// Stop begins a cooperative stop: no new fetch is started, pending drain
// waits and the stalled scan are cancelled, and a job claimed after this
// point is returned to the head of pending. Stop then waits for every
// in-flight operation to settle and closes the store. If ctx ends first,
// Stop returns ctx.Err() and the worker keeps settling in the background.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.state == stateIdle {
		w.state = stateStopping
		w.mu.Unlock()
		w.shutdown(ctx, nil)
		return nil
	}
	w.mu.Unlock()

	w.beginStop(ctx)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("worker stop timed out, operations still settling")
		return ctx.Err()
	}
}

// Done is closed once the worker has stopped and released its store.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Err returns the error that ended the run, if any. It is only meaningful
// after Done is closed.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateRunning:
		return docket.ErrWorkerRunning
	case stateStopping, stateStopped:
		return docket.ErrWorkerStopping
	}
	w.state = stateRunning
	return nil
}

func (w *Worker) run(ctx context.Context) error {
	w.logger.Info("worker starting",
		slog.Int("concurrency", w.config.Concurrency),
		slog.Duration("lock_lifetime", w.config.LockLifetime),
	)

	base := context.WithoutCancel(ctx)
	err := w.loop(ctx, base)
	w.shutdown(base, err)
	return err
}

// beginStop flips the worker into stopping exactly once.
func (w *Worker) beginStop(ctx context.Context) {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if w.state == stateRunning {
			w.state = stateStopping
		}
		w.mu.Unlock()

		w.logger.Info("worker stopping")
		w.stopCancel()
		w.timers.Close()
		w.extensions.EmitShutdown(ctx)
	})
}

func (w *Worker) shutdown(ctx context.Context, loopErr error) {
	w.beginStop(ctx)
	w.leases.Close()

	w.scanMu.Lock()
	w.closed = true
	w.scanMu.Unlock()

	if c, ok := w.store.(io.Closer); ok && w.closeStore {
		if err := c.Close(); err != nil {
			w.logger.Error("close store failed", slog.String("error", err.Error()))
		}
	}

	w.mu.Lock()
	w.state = stateStopped
	w.err = loopErr
	w.mu.Unlock()

	if loopErr != nil {
		w.logger.Error("worker stopped", slog.String("error", loopErr.Error()))
	} else {
		w.logger.Info("worker stopped")
	}
	close(w.done)
}
