package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/docket/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobAddedEntry struct {
	name string
	hook JobAdded
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobProgressEntry struct {
	name string
	hook JobProgress
}

type jobFinishedEntry struct {
	name string
	hook JobFinished
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type lockLostEntry struct {
	name string
	hook LockLost
}

type queueDrainedEntry struct {
	name string
	hook QueueDrained
}

type jobsStalledEntry struct {
	name string
	hook JobsStalled
}

type cronFiredEntry struct {
	name string
	hook CronFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register all extensions before the registry is shared; emit methods
// may then be called from many goroutines.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobAdded     []jobAddedEntry
	jobStarted   []jobStartedEntry
	jobProgress  []jobProgressEntry
	jobFinished  []jobFinishedEntry
	jobFailed    []jobFailedEntry
	lockLost     []lockLostEntry
	queueDrained []queueDrainedEntry
	jobsStalled  []jobsStalledEntry
	cronFired    []cronFiredEntry
	shutdown     []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobAdded); ok {
		r.jobAdded = append(r.jobAdded, jobAddedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobProgress); ok {
		r.jobProgress = append(r.jobProgress, jobProgressEntry{name, h})
	}
	if h, ok := e.(JobFinished); ok {
		r.jobFinished = append(r.jobFinished, jobFinishedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(LockLost); ok {
		r.lockLost = append(r.lockLost, lockLostEntry{name, h})
	}
	if h, ok := e.(QueueDrained); ok {
		r.queueDrained = append(r.queueDrained, queueDrainedEntry{name, h})
	}
	if h, ok := e.(JobsStalled); ok {
		r.jobsStalled = append(r.jobsStalled, jobsStalledEntry{name, h})
	}
	if h, ok := e.(CronFired); ok {
		r.cronFired = append(r.cronFired, cronFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobAdded notifies all extensions that implement JobAdded.
func (r *Registry) EmitJobAdded(ctx context.Context, j *job.Job) {
	for _, e := range r.jobAdded {
		if err := e.hook.OnJobAdded(ctx, j); err != nil {
			r.logHookError("OnJobAdded", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobProgress notifies all extensions that implement JobProgress.
func (r *Registry) EmitJobProgress(ctx context.Context, j *job.Job, progress float64) {
	for _, e := range r.jobProgress {
		if err := e.hook.OnJobProgress(ctx, j, progress); err != nil {
			r.logHookError("OnJobProgress", e.name, err)
		}
	}
}

// EmitJobFinished notifies all extensions that implement JobFinished.
func (r *Registry) EmitJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobFinished {
		if err := e.hook.OnJobFinished(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobFinished", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitLockLost notifies all extensions that implement LockLost.
func (r *Registry) EmitLockLost(ctx context.Context, j *job.Job, lockErr error) {
	for _, e := range r.lockLost {
		if err := e.hook.OnLockLost(ctx, j, lockErr); err != nil {
			r.logHookError("OnLockLost", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Queue event emitters
// ──────────────────────────────────────────────────

// EmitQueueDrained notifies all extensions that implement QueueDrained.
func (r *Registry) EmitQueueDrained(ctx context.Context, queue string, delay time.Duration) {
	for _, e := range r.queueDrained {
		if err := e.hook.OnQueueDrained(ctx, queue, delay); err != nil {
			r.logHookError("OnQueueDrained", e.name, err)
		}
	}
}

// EmitJobsStalled notifies all extensions that implement JobsStalled.
func (r *Registry) EmitJobsStalled(ctx context.Context, queue string, jobIDs []int64) {
	for _, e := range r.jobsStalled {
		if err := e.hook.OnJobsStalled(ctx, queue, jobIDs); err != nil {
			r.logHookError("OnJobsStalled", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitCronFired notifies all extensions that implement CronFired.
func (r *Registry) EmitCronFired(ctx context.Context, entryName string, jobID int64) {
	for _, e := range r.cronFired {
		if err := e.hook.OnCronFired(ctx, entryName, jobID); err != nil {
			r.logHookError("OnCronFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the worker.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
