package job

import (
	"context"
	"time"
)

// Store is the set of conditional, single-document operations the queue
// engine is built on. Every method acts atomically on one queue document;
// there are no cross-queue operations.
//
// Conditional operations report a lost race as a false result, never as
// an error. Errors are reserved for missing queues (docket.ErrQueueNotFound),
// missing records and backend failures.
type Store interface {
	// CreateQueue ensures a document exists for queue. It is idempotent.
	CreateQueue(ctx context.Context, queue string) error

	// GetQueue returns a snapshot of the queue document.
	GetQueue(ctx context.Context, queue string) (*Document, error)

	// DeleteQueue drops the queue document and every job in it.
	DeleteQueue(ctx context.Context, queue string) error

	// IncrementCounter atomically bumps the id counter and returns the new
	// value.
	IncrementCounter(ctx context.Context, queue string) (int64, error)

	// PushJob appends j.ID to pending and embeds j in one update.
	PushJob(ctx context.Context, queue string, j *Job) error

	// PopPending removes the head of pending. ok is false when pending is
	// empty.
	PopPending(ctx context.Context, queue string) (jobID int64, ok bool, err error)

	// ClaimJob adds jobID to started, conditioned on the record existing,
	// refreshes the record's updated time to now and returns the record.
	// It returns (nil, nil) when nothing matched and docket.ErrJobNotFound
	// when the id was claimed but the record cannot be read back.
	ClaimJob(ctx context.Context, queue string, jobID int64, now time.Time) (*Job, error)

	// ReturnJob moves a claimed id from started back to the head of pending.
	ReturnJob(ctx context.Context, queue string, jobID int64) (bool, error)

	// AcquireLock adds a lease for jobID conditioned on none existing.
	AcquireLock(ctx context.Context, queue string, jobID int64, expires time.Time) (bool, error)

	// RenewLock moves the expiry of an existing lease. It returns
	// docket.ErrLockLost when no lease exists.
	RenewLock(ctx context.Context, queue string, jobID int64, expires time.Time) error

	// ReleaseLock drops the lease for jobID, if any.
	ReleaseLock(ctx context.Context, queue string, jobID int64) error

	// ExpireLocks drops every lease whose expiry is before now and returns
	// the document as it stands after the update.
	ExpireLocks(ctx context.Context, queue string, now time.Time) (*Document, error)

	// RequeueStalled moves jobID from started to the tail of pending,
	// conditioned on it still being started and unlocked.
	RequeueStalled(ctx context.Context, queue string, jobID int64) (bool, error)

	// UpdateJob applies a partial write to one job record.
	UpdateJob(ctx context.Context, queue string, jobID int64, u Update) error

	// CompleteJob writes the terminal state for jobID and pulls it from
	// started.
	CompleteJob(ctx context.Context, queue string, jobID int64, c Completion) error

	// RemoveJob deletes a pending job. It returns docket.ErrJobNotFound when
	// the id is not pending.
	RemoveJob(ctx context.Context, queue string, jobID int64) error

	// RemoveJobs deletes every job with the given status and returns how
	// many were removed. StatusStarted is rejected with
	// docket.ErrInvalidStatus.
	RemoveJobs(ctx context.Context, queue string, status Status) (int, error)
}
