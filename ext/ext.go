// Package ext defines the extension system for docket.
// Extensions are notified of lifecycle events (job added, finished,
// failed, queue drained, etc.) and can react to them: logging, metrics,
// tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/docket/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobAdded is called after a producer pushed a job onto pending.
type JobAdded interface {
	OnJobAdded(ctx context.Context, j *job.Job) error
}

// JobStarted is called after a worker locked a job and recorded its start.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobProgress is called after a processor persisted an explicit progress
// value.
type JobProgress interface {
	OnJobProgress(ctx context.Context, j *job.Job, progress float64) error
}

// JobFinished is called after a job was recorded as finished.
type JobFinished interface {
	OnJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called after a job was recorded as failed.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// LockLost is called when a lease renewal found no lock: another worker
// may now run the same job.
type LockLost interface {
	OnLockLost(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Queue hooks
// ──────────────────────────────────────────────────

// QueueDrained is called once per drained period, when a worker found
// pending empty and has no job in flight. delay is the wait before its
// next fetch.
type QueueDrained interface {
	OnQueueDrained(ctx context.Context, queue string, delay time.Duration) error
}

// JobsStalled is called after a stalled-job scan moved jobs back to
// pending.
type JobsStalled interface {
	OnJobsStalled(ctx context.Context, queue string, jobIDs []int64) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// CronFired is called when a cron entry fires and enqueues a job.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, jobID int64) error
}

// Shutdown is called when a worker begins stopping.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
