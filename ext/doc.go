// Package ext defines the extension system for docket.
//
// Extensions are notified of lifecycle events and can react to them:
// recording metrics, writing audit logs, alerting on lost leases, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %d finished in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobAdded] — a producer pushed a job onto pending
//   - [JobStarted] — a worker locked the job and recorded its start
//   - [JobProgress] — the processor reported an explicit progress value
//   - [JobFinished] — the job was recorded as finished
//   - [JobFailed] — the job was recorded as failed
//   - [LockLost] — lease renewal found no lock
//
// # Queue Hooks
//
//   - [QueueDrained] — the worker found pending empty with nothing in flight
//   - [JobsStalled] — a stalled-job scan handed jobs back to pending
//
// # Other Hooks
//
//   - [CronFired] — a cron entry was triggered and a job was enqueued
//   - [Shutdown] — a worker is stopping
//
// Hooks run synchronously, after the store write they describe. The
// [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never propagated.
package ext
