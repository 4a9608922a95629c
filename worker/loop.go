package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/job"
)

type opKind int

const (
	opFetch opKind = iota
	opProcess
)

// result is what every outstanding operation reports when it settles.
type result struct {
	kind    opKind
	delayed bool
	job     *job.Job
	empty   bool
	err     error
}

// loopState is owned by the loop goroutine.
type loopState struct {
	outstanding int
	processing  int
	stopping    bool

	// Drained state: set by an empty fetch, cleared by a fetch that finds
	// a job. While drained only one delayed fetch is outstanding.
	drained      bool
	delayedFetch bool
	emptyFetches int
	delay        time.Duration
	notified     bool
}

// loop is the scheduler. Operations run in goroutines and report on
// results; whichever settles first is handled first.
func (w *Worker) loop(ctx, base context.Context) error {
	results := make(chan result, w.config.Concurrency)
	stopCh := w.stopCtx.Done()
	ctxDone := ctx.Done()

	var (
		st      loopState
		loopErr error
	)

	w.scheduleStalledCheck(base, 0)

	for {
		if !st.stopping {
			w.fill(base, &st, results)
		}
		if st.outstanding == 0 {
			return loopErr
		}

		select {
		case r := <-results:
			st.outstanding--
			if err := w.handle(base, &st, r, results); err != nil && loopErr == nil {
				loopErr = &docket.LoopError{Err: err}
				st.stopping = true
				w.beginStop(base)
			}
		case <-stopCh:
			stopCh = nil
			st.stopping = true
		case <-ctxDone:
			ctxDone = nil
			st.stopping = true
			w.beginStop(base)
		}
	}
}

// fill starts fetches until the worker is at capacity. A drained worker
// starts at most one fetch, which waits out the drain delay first.
func (w *Worker) fill(ctx context.Context, st *loopState, results chan<- result) {
	for st.outstanding < w.config.Concurrency {
		if st.drained {
			if st.delayedFetch {
				return
			}
			st.delayedFetch = true
			st.outstanding++
			go w.fetch(ctx, true, st.delay, results)
			return
		}
		st.outstanding++
		go w.fetch(ctx, false, 0, results)
	}
}

func (w *Worker) handle(ctx context.Context, st *loopState, r result, results chan<- result) error {
	if r.kind == opProcess {
		st.processing--
		w.notifyDrained(ctx, st)
		return nil
	}

	if r.delayed {
		st.delayedFetch = false
	}
	if r.err != nil {
		return r.err
	}
	if r.job == nil {
		if r.empty {
			st.drained = true
			st.emptyFetches++
			st.delay = w.drain.Delay(st.emptyFetches)
			w.notifyDrained(ctx, st)
		}
		return nil
	}

	st.drained = false
	st.notified = false
	st.emptyFetches = 0

	if st.stopping {
		w.returnJob(ctx, r.job)
		return nil
	}

	st.outstanding++
	st.processing++
	go func(j *job.Job) {
		w.process(ctx, j)
		results <- result{kind: opProcess, job: j}
	}(r.job)
	return nil
}

// notifyDrained emits QueueDrained once per drained period, the first
// time the worker is drained with nothing left processing.
func (w *Worker) notifyDrained(ctx context.Context, st *loopState) {
	if !st.drained || st.notified || st.processing > 0 {
		return
	}
	st.notified = true
	w.logger.Debug("queue drained", slog.Duration("delay", st.delay))
	w.extensions.EmitQueueDrained(ctx, w.queue, st.delay)
}

// fetch runs one findNextJob, optionally after a drain delay, and always
// reports exactly one result.
func (w *Worker) fetch(ctx context.Context, delayed bool, delay time.Duration, results chan<- result) {
	r := result{kind: opFetch, delayed: delayed}
	defer func() { results <- r }()

	if delayed && !w.sleep(delay) {
		return
	}
	if w.stopCtx.Err() != nil {
		return
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(w.stopCtx); err != nil {
			return
		}
	}
	r.job, r.empty, r.err = w.findNextJob(ctx)
}

// sleep waits d on the timer registry. It reports false when the worker
// began stopping first.
func (w *Worker) sleep(d time.Duration) bool {
	wake := make(chan struct{})
	h := w.timers.Set("drain-delay", d, func() error {
		close(wake)
		return nil
	})
	if h.IsNil() {
		return false
	}

	select {
	case <-wake:
		return true
	case <-w.stopCtx.Done():
		w.timers.Delete(h)
		return false
	}
}

// findNextJob pops the head of pending and claims it. It reports empty
// when pending had nothing, and a nil job without error when the claim
// matched nothing or the pop lost to other writers.
func (w *Worker) findNextJob(ctx context.Context) (*job.Job, bool, error) {
	jobID, ok, err := w.store.PopPending(ctx, w.queue)
	if errors.Is(err, docket.ErrContention) {
		w.logger.Warn("queue document contended, fetching again",
			slog.String("error", err.Error()),
		)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, true, nil
	}

	j, err := w.store.ClaimJob(ctx, w.queue, jobID, w.now())
	if err != nil {
		return nil, false, err
	}
	if j == nil {
		w.logger.Debug("claim matched nothing", slog.Int64("job_id", jobID))
		return nil, false, nil
	}
	return j, false, nil
}

// returnJob puts a job claimed during stop back at the head of pending.
func (w *Worker) returnJob(ctx context.Context, j *job.Job) {
	ok, err := w.store.ReturnJob(ctx, w.queue, j.ID)
	if err != nil {
		w.logger.Error("return job failed, leaving it to stalled recovery",
			slog.Int64("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if ok {
		w.logger.Debug("returned job claimed during stop", slog.Int64("job_id", j.ID))
	}
}
