package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/id"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/middleware"
)

// process locks j, runs the processor under a renewed lease and records
// the outcome. The lock is always released before process returns.
func (w *Worker) process(ctx context.Context, j *job.Job) {
	now := w.now()
	locked, err := w.store.AcquireLock(ctx, w.queue, j.ID, now.Add(w.config.LockLifetime))
	if err != nil {
		w.logger.Error("lock job failed, leaving it to stalled recovery",
			slog.Int64("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !locked {
		w.logger.Debug("job already locked", slog.Int64("job_id", j.ID))
		return
	}
	defer w.unlock(ctx, j.ID)

	if err := w.store.UpdateJob(ctx, w.queue, j.ID, job.Update{Started: &now, UpdatedAt: now}); err != nil {
		w.logger.Error("record job start failed",
			slog.Int64("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	j.Started = &now
	j.UpdatedAt = now
	w.extensions.EmitJobStarted(ctx, j.Clone())

	l := w.renewLock(ctx, j)
	start := time.Now()
	procErr := w.execute(ctx, j)
	elapsed := time.Since(start)
	l.stop()

	w.complete(ctx, j, elapsed, procErr)
}

// execute runs the middleware chain and processor. Any error comes back
// as a *docket.ProcessorError.
func (w *Worker) execute(ctx context.Context, j *job.Job) error {
	h := middleware.Wrap(w.chain, w.processor, j.Clone(), w.progress(j.Clone()))
	err := h(ctx)
	if err == nil {
		return nil
	}
	var pe *docket.ProcessorError
	if errors.As(err, &pe) {
		return pe
	}
	return &docket.ProcessorError{JobID: j.ID, Err: err}
}

// progress returns the callback handed to the processor. snap is private
// to the callback.
func (w *Worker) progress(snap *job.Job) job.Progress {
	var mu sync.Mutex
	return func(ctx context.Context, value ...float64) error {
		now := w.now()
		u := job.Update{UpdatedAt: now}
		if len(value) > 0 {
			v := value[0]
			u.Progress = &v
		}
		if err := w.store.UpdateJob(ctx, w.queue, snap.ID, u); err != nil {
			return err
		}
		if u.Progress == nil {
			return nil
		}

		mu.Lock()
		snap.Progress = u.Progress
		snap.UpdatedAt = now
		ev := snap.Clone()
		mu.Unlock()

		w.extensions.EmitJobProgress(ctx, ev, *u.Progress)
		return nil
	}
}

// complete writes the terminal state and notifies extensions.
func (w *Worker) complete(ctx context.Context, j *job.Job, elapsed time.Duration, procErr error) {
	now := w.now()
	c := job.Completion{Outcome: job.StatusFinished, At: now, Retain: !w.config.RemoveOnFinished}
	if procErr != nil {
		c = job.Completion{Outcome: job.StatusFailed, At: now, Error: procErr.Error(), Retain: !w.config.RemoveOnFailed}
	}

	if err := w.store.CompleteJob(ctx, w.queue, j.ID, c); err != nil {
		w.logger.Error("record job outcome failed",
			slog.Int64("job_id", j.ID),
			slog.String("outcome", string(c.Outcome)),
			slog.String("error", err.Error()),
		)
		return
	}

	j.UpdatedAt = now
	if procErr == nil {
		j.Finished = &now
		w.logger.Debug("job finished",
			slog.Int64("job_id", j.ID),
			slog.String("job_name", j.Name),
			slog.Duration("elapsed", elapsed),
		)
		w.extensions.EmitJobFinished(ctx, j, elapsed)
		return
	}

	j.Failed = &now
	j.Error = c.Error
	w.logger.Warn("job failed",
		slog.Int64("job_id", j.ID),
		slog.String("job_name", j.Name),
		slog.String("error", c.Error),
	)
	w.extensions.EmitJobFailed(ctx, j, procErr)
}

func (w *Worker) unlock(ctx context.Context, jobID int64) {
	if err := w.store.ReleaseLock(ctx, w.queue, jobID); err != nil {
		w.logger.Error("release lock failed",
			slog.Int64("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// ──────────────────────────────────────────────────
// Lease renewal
// ──────────────────────────────────────────────────

// lease renews one job's lock every LockRenewal until stopped or lost.
type lease struct {
	w    *Worker
	ctx  context.Context
	snap *job.Job

	mu       sync.Mutex
	handle   id.TimerID
	stopped  bool
	inflight sync.WaitGroup
}

func (w *Worker) renewLock(ctx context.Context, j *job.Job) *lease {
	l := &lease{w: w, ctx: ctx, snap: j.Clone()}
	l.mu.Lock()
	l.schedule()
	l.mu.Unlock()
	return l
}

// schedule must be called with l.mu held.
func (l *lease) schedule() {
	l.handle = l.w.leases.Set("renew-lock", l.w.config.LockRenewal, l.renew)
}

func (l *lease) renew() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.inflight.Add(1)
	l.mu.Unlock()
	defer l.inflight.Done()

	expires := l.w.now().Add(l.w.config.LockLifetime)
	err := l.w.store.RenewLock(l.ctx, l.w.queue, l.snap.ID, expires)

	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	// The job finished while this renewal was out.
	if stopped {
		return nil
	}

	if err != nil {
		rerr := &docket.RenewalError{JobID: l.snap.ID, Err: err}
		if errors.Is(err, docket.ErrLockLost) {
			l.w.logger.Warn("lock lost, job may run again elsewhere",
				slog.Int64("job_id", l.snap.ID),
				slog.String("job_name", l.snap.Name),
			)
			l.w.extensions.EmitLockLost(l.ctx, l.snap.Clone(), rerr)
		}
		return rerr
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.schedule()
	}
	return nil
}

// stop cancels the next renewal and waits for one already in flight, so
// no renewal reaches the store after the lock is released.
func (l *lease) stop() {
	l.mu.Lock()
	l.stopped = true
	l.w.leases.Delete(l.handle)
	l.mu.Unlock()
	l.inflight.Wait()
}
