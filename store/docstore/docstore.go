// Package docstore implements job.Store on top of any backend that can
// load, change and write back a whole queue document atomically.
//
// The redis, postgres and memory backends only provide a [Backend]; every
// queue operation is one [Backend.Mutate] call that applies a job.Document
// mutation method inside the backend's atomic section.
package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/job"
)

// Backend stores whole queue documents. View and Mutate return
// docket.ErrQueueNotFound for a queue that was never created.
type Backend interface {
	// Create inserts an empty document for queue unless one exists.
	Create(ctx context.Context, queue string) error

	// View calls fn with the current document. fn must not retain it.
	View(ctx context.Context, queue string, fn func(d *job.Document) error) error

	// Mutate calls fn with the current document inside an atomic section.
	// The document is written back only when fn returns (true, nil).
	// Backends using optimistic concurrency may call fn more than once.
	Mutate(ctx context.Context, queue string, fn func(d *job.Document) (bool, error)) error

	// Delete removes the document for queue.
	Delete(ctx context.Context, queue string) error
}

// Compile-time check.
var _ job.Store = (*Store)(nil)

// Store adapts a Backend to job.Store.
type Store struct {
	b    Backend
	name string
}

// New returns a Store over b. name prefixes wrapped errors, e.g. "redis".
func New(name string, b Backend) *Store {
	return &Store{b: b, name: name}
}

func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("docket/%s: %s: %w", s.name, op, err)
}

// mutate runs fn and reports whether it changed the document.
func (s *Store) mutate(ctx context.Context, queue, op string, fn func(d *job.Document) (bool, error)) (bool, error) {
	var changed bool
	err := s.b.Mutate(ctx, queue, func(d *job.Document) (bool, error) {
		ok, err := fn(d)
		changed = ok && err == nil
		return ok, err
	})
	if err != nil {
		return false, s.wrap(op, err)
	}
	return changed, nil
}

// CreateQueue ensures a document exists for queue.
func (s *Store) CreateQueue(ctx context.Context, queue string) error {
	return s.wrap("create queue", s.b.Create(ctx, queue))
}

// GetQueue returns a snapshot of the queue document.
func (s *Store) GetQueue(ctx context.Context, queue string) (*job.Document, error) {
	var out *job.Document
	err := s.b.View(ctx, queue, func(d *job.Document) error {
		out = d.Clone()
		return nil
	})
	if err != nil {
		return nil, s.wrap("get queue", err)
	}
	return out, nil
}

// DeleteQueue drops the queue document.
func (s *Store) DeleteQueue(ctx context.Context, queue string) error {
	return s.wrap("delete queue", s.b.Delete(ctx, queue))
}

// IncrementCounter bumps the id counter.
func (s *Store) IncrementCounter(ctx context.Context, queue string) (int64, error) {
	var n int64
	_, err := s.mutate(ctx, queue, "increment counter", func(d *job.Document) (bool, error) {
		n = d.IncrementCounter()
		return true, nil
	})
	return n, err
}

// PushJob appends j to pending.
func (s *Store) PushJob(ctx context.Context, queue string, j *job.Job) error {
	_, err := s.mutate(ctx, queue, "push job", func(d *job.Document) (bool, error) {
		d.AddJob(j)
		return true, nil
	})
	return err
}

// PopPending removes the head of pending.
func (s *Store) PopPending(ctx context.Context, queue string) (int64, bool, error) {
	var jobID int64
	ok, err := s.mutate(ctx, queue, "pop pending", func(d *job.Document) (bool, error) {
		var found bool
		jobID, found = d.PopPending()
		return found, nil
	})
	if err != nil || !ok {
		return 0, false, err
	}
	return jobID, true, nil
}

// ClaimJob adds jobID to started.
func (s *Store) ClaimJob(ctx context.Context, queue string, jobID int64, now time.Time) (*job.Job, error) {
	var claimed *job.Job
	ok, err := s.mutate(ctx, queue, "claim job", func(d *job.Document) (bool, error) {
		if !d.Claim(jobID, now) {
			return false, nil
		}
		claimed = d.Job(jobID)
		return true, nil
	})
	if err != nil || !ok {
		return nil, err
	}
	return claimed, nil
}

// ReturnJob moves a claimed id back to the head of pending.
func (s *Store) ReturnJob(ctx context.Context, queue string, jobID int64) (bool, error) {
	return s.mutate(ctx, queue, "return job", func(d *job.Document) (bool, error) {
		return d.Return(jobID), nil
	})
}

// AcquireLock adds a lease for jobID unless one exists.
func (s *Store) AcquireLock(ctx context.Context, queue string, jobID int64, expires time.Time) (bool, error) {
	return s.mutate(ctx, queue, "acquire lock", func(d *job.Document) (bool, error) {
		return d.Lock(jobID, expires), nil
	})
}

// RenewLock extends an existing lease.
func (s *Store) RenewLock(ctx context.Context, queue string, jobID int64, expires time.Time) error {
	ok, err := s.mutate(ctx, queue, "renew lock", func(d *job.Document) (bool, error) {
		return d.RenewLock(jobID, expires), nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return docket.ErrLockLost
	}
	return nil
}

// ReleaseLock drops the lease for jobID.
func (s *Store) ReleaseLock(ctx context.Context, queue string, jobID int64) error {
	_, err := s.mutate(ctx, queue, "release lock", func(d *job.Document) (bool, error) {
		return d.Unlock(jobID), nil
	})
	return err
}

// ExpireLocks drops leases that expired before now.
func (s *Store) ExpireLocks(ctx context.Context, queue string, now time.Time) (*job.Document, error) {
	var out *job.Document
	_, err := s.mutate(ctx, queue, "expire locks", func(d *job.Document) (bool, error) {
		expired := d.ExpireLocks(now)
		out = d.Clone()
		return len(expired) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RequeueStalled moves a started, unlocked job to the tail of pending.
func (s *Store) RequeueStalled(ctx context.Context, queue string, jobID int64) (bool, error) {
	return s.mutate(ctx, queue, "requeue stalled", func(d *job.Document) (bool, error) {
		return d.Requeue(jobID), nil
	})
}

// UpdateJob applies a partial write to one job record.
func (s *Store) UpdateJob(ctx context.Context, queue string, jobID int64, u job.Update) error {
	ok, err := s.mutate(ctx, queue, "update job", func(d *job.Document) (bool, error) {
		return d.UpdateJob(jobID, u), nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return s.wrap("update job", docket.ErrJobNotFound)
	}
	return nil
}

// CompleteJob writes the terminal state for jobID.
func (s *Store) CompleteJob(ctx context.Context, queue string, jobID int64, c job.Completion) error {
	ok, err := s.mutate(ctx, queue, "complete job", func(d *job.Document) (bool, error) {
		return d.Complete(jobID, c)
	})
	if err != nil {
		return err
	}
	if !ok {
		return s.wrap("complete job", docket.ErrJobNotFound)
	}
	return nil
}

// RemoveJob deletes a pending job.
func (s *Store) RemoveJob(ctx context.Context, queue string, jobID int64) error {
	ok, err := s.mutate(ctx, queue, "remove job", func(d *job.Document) (bool, error) {
		return d.RemovePending(jobID), nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return s.wrap("remove job", docket.ErrJobNotFound)
	}
	return nil
}

// RemoveJobs deletes every job with status.
func (s *Store) RemoveJobs(ctx context.Context, queue string, status job.Status) (int, error) {
	var n int
	_, err := s.mutate(ctx, queue, "remove jobs", func(d *job.Document) (bool, error) {
		var err error
		n, err = d.RemoveByStatus(status)
		return n > 0, err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
