package docket

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore       = errors.New("docket: no store configured")
	ErrQueueNotFound = errors.New("docket: queue not found")
	ErrJobNotFound   = errors.New("docket: job not found")

	// ErrNoHandler is returned by a registry processor for a job name with
	// no registered definition.
	ErrNoHandler = errors.New("docket: no handler registered for job")

	// ErrLockLost reports that a conditional lock update matched nothing:
	// another worker reclaimed the lease.
	ErrLockLost = errors.New("docket: lock lost")

	// ErrContention reports that a store gave up on an update after losing
	// too many optimistic races on the queue document.
	ErrContention = errors.New("docket: too much contention on queue document")

	// State errors.
	ErrInvalidStatus = errors.New("docket: invalid job status")
	ErrInvalidConfig = errors.New("docket: invalid configuration")

	// Worker lifecycle errors.
	ErrWorkerRunning  = errors.New("docket: worker is already running")
	ErrWorkerStopping = errors.New("docket: worker is stopping")
)

// ProcessorError wraps an error returned (or a panic raised) by a user
// processor. Its message is what gets stored in the job's error field.
type ProcessorError struct {
	JobID int64
	Err   error
}

func (e *ProcessorError) Error() string { return e.Err.Error() }

func (e *ProcessorError) Unwrap() error { return e.Err }

// RenewalError reports a failed lease renewal. It halts renewal for that
// job only and never stops the worker.
type RenewalError struct {
	JobID int64
	Err   error
}

func (e *RenewalError) Error() string {
	return fmt.Sprintf("docket: renew lock for job %d: %v", e.JobID, e.Err)
}

func (e *RenewalError) Unwrap() error { return e.Err }

// LoopError is returned by a worker whose scheduling loop failed. The
// worker is no longer running and is not restarted automatically.
type LoopError struct {
	Err error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("docket: worker loop stopped: %v", e.Err)
}

func (e *LoopError) Unwrap() error { return e.Err }
