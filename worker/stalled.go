package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/docket"
)

// CheckStalledJobs runs one stalled-job scan. It drops every lock that
// expired before now, then moves each started job that has no lock and
// was last updated more than LockLifetime ago back to the tail of pending.
// The grace period spares jobs claimed but not yet locked. It returns the
// ids that were requeued.
//
// CheckStalledJobs may be called without running the worker.
func (w *Worker) CheckStalledJobs(ctx context.Context) ([]int64, error) {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	if w.closed {
		return nil, docket.ErrWorkerStopping
	}

	now := w.now()
	d, err := w.store.ExpireLocks(ctx, w.queue, now)
	if err != nil {
		return nil, err
	}

	var requeued []int64
	for _, jobID := range d.StalledJobs(now.Add(-w.config.LockLifetime)) {
		ok, err := w.store.RequeueStalled(ctx, w.queue, jobID)
		if err != nil {
			return requeued, err
		}
		if ok {
			requeued = append(requeued, jobID)
		}
	}

	if len(requeued) > 0 {
		w.logger.Warn("requeued stalled jobs", slog.Any("job_ids", requeued))
		w.extensions.EmitJobsStalled(ctx, w.queue, requeued)
	}
	return requeued, nil
}

// scheduleStalledCheck runs the scan after delay and then every
// StalledInterval until the timer registry is closed.
func (w *Worker) scheduleStalledCheck(ctx context.Context, delay time.Duration) {
	w.timers.Set("stalled-check", delay, func() error {
		defer w.scheduleStalledCheck(ctx, w.config.StalledInterval)
		if _, err := w.CheckStalledJobs(ctx); err != nil && !errors.Is(err, docket.ErrWorkerStopping) {
			return err
		}
		return nil
	})
}
