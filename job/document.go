package job

import (
	"fmt"
	"slices"
	"time"

	"github.com/xraph/docket"
)

// Document is the single shared record of one queue. Backends that store
// the whole document as one value (memory, redis, postgres) load it, apply
// one of the mutation methods below inside their atomic section, and write
// it back. None of the methods are safe for concurrent use on their own.
type Document struct {
	Name     string         `json:"name"     msgpack:"name"`
	Counter  int64          `json:"counter"  msgpack:"counter"`
	Pending  []int64        `json:"pending"  msgpack:"pending"`
	Started  []int64        `json:"started"  msgpack:"started"`
	Finished []int64        `json:"finished" msgpack:"finished"`
	Failed   []int64        `json:"failed"   msgpack:"failed"`
	Locks    []Lock         `json:"locks"    msgpack:"locks"`
	Jobs     map[int64]*Job `json:"jobs"     msgpack:"jobs"`
}

// NewDocument returns an empty queue document.
func NewDocument(name string) *Document {
	return &Document{
		Name:     name,
		Pending:  []int64{},
		Started:  []int64{},
		Finished: []int64{},
		Failed:   []int64{},
		Locks:    []Lock{},
		Jobs:     make(map[int64]*Job),
	}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := &Document{
		Name:     d.Name,
		Counter:  d.Counter,
		Pending:  slices.Clone(d.Pending),
		Started:  slices.Clone(d.Started),
		Finished: slices.Clone(d.Finished),
		Failed:   slices.Clone(d.Failed),
		Locks:    slices.Clone(d.Locks),
		Jobs:     make(map[int64]*Job, len(d.Jobs)),
	}
	for k, j := range d.Jobs {
		c.Jobs[k] = j.Clone()
	}
	return c
}

// Job returns a copy of the embedded record with the queue name filled in,
// or nil if the document has no record for jobID.
func (d *Document) Job(jobID int64) *Job {
	j, ok := d.Jobs[jobID]
	if !ok {
		return nil
	}
	c := j.Clone()
	c.Queue = d.Name
	return c
}

// ──────────────────────────────────────────────────
// Producer mutations
// ──────────────────────────────────────────────────

// IncrementCounter bumps the id counter and returns the new value.
func (d *Document) IncrementCounter() int64 {
	d.Counter++
	return d.Counter
}

// AddJob appends j's id to pending and embeds the record.
func (d *Document) AddJob(j *Job) {
	if d.Jobs == nil {
		d.Jobs = make(map[int64]*Job)
	}
	rec := j.Clone()
	rec.Queue = ""
	d.Jobs[j.ID] = rec
	d.Pending = append(d.Pending, j.ID)
}

// ──────────────────────────────────────────────────
// Fetch mutations
// ──────────────────────────────────────────────────

// PopPending removes and returns the head of pending.
func (d *Document) PopPending() (int64, bool) {
	if len(d.Pending) == 0 {
		return 0, false
	}
	head := d.Pending[0]
	d.Pending = d.Pending[1:]
	return head, true
}

// Claim adds jobID to the started set, provided the record exists, and
// refreshes the record's updated timestamp.
func (d *Document) Claim(jobID int64, now time.Time) bool {
	j, ok := d.Jobs[jobID]
	if !ok {
		return false
	}
	d.Started = addToSet(d.Started, jobID)
	j.UpdatedAt = now
	return true
}

// Return takes a claimed job back out of started and puts it at the head
// of pending.
func (d *Document) Return(jobID int64) bool {
	if !slices.Contains(d.Started, jobID) {
		return false
	}
	d.Started = pull(d.Started, jobID)
	if _, ok := d.Jobs[jobID]; ok && !slices.Contains(d.Pending, jobID) {
		d.Pending = slices.Insert(d.Pending, 0, jobID)
	}
	return true
}

// ──────────────────────────────────────────────────
// Lock mutations
// ──────────────────────────────────────────────────

// HasLock reports whether a lease exists for jobID.
func (d *Document) HasLock(jobID int64) bool {
	return d.lockIndex(jobID) >= 0
}

func (d *Document) lockIndex(jobID int64) int {
	return slices.IndexFunc(d.Locks, func(l Lock) bool { return l.ID == jobID })
}

// Lock adds a lease for jobID unless one already exists.
func (d *Document) Lock(jobID int64, expires time.Time) bool {
	if d.HasLock(jobID) {
		return false
	}
	d.Locks = append(d.Locks, Lock{ID: jobID, Expires: expires})
	return true
}

// RenewLock moves the expiry of an existing lease.
func (d *Document) RenewLock(jobID int64, expires time.Time) bool {
	i := d.lockIndex(jobID)
	if i < 0 {
		return false
	}
	d.Locks[i].Expires = expires
	return true
}

// Unlock drops the lease for jobID.
func (d *Document) Unlock(jobID int64) bool {
	i := d.lockIndex(jobID)
	if i < 0 {
		return false
	}
	d.Locks = slices.Delete(d.Locks, i, i+1)
	return true
}

// ExpireLocks drops every lease whose expiry is before now and returns the
// affected job ids.
func (d *Document) ExpireLocks(now time.Time) []int64 {
	var expired []int64
	d.Locks = slices.DeleteFunc(d.Locks, func(l Lock) bool {
		if l.Expires.Before(now) {
			expired = append(expired, l.ID)
			return true
		}
		return false
	})
	return expired
}

// StalledJobs lists started jobs that hold no lease and whose record has
// not been written since cutoff. Jobs claimed moments ago have a fresh
// updated timestamp and are left alone until they had time to lock.
func (d *Document) StalledJobs(cutoff time.Time) []int64 {
	var stalled []int64
	for _, jobID := range d.Started {
		if d.HasLock(jobID) {
			continue
		}
		if j, ok := d.Jobs[jobID]; ok && !j.UpdatedAt.Before(cutoff) {
			continue
		}
		stalled = append(stalled, jobID)
	}
	return stalled
}

// Requeue moves a started, unlocked job back to the tail of pending.
func (d *Document) Requeue(jobID int64) bool {
	if !slices.Contains(d.Started, jobID) || d.HasLock(jobID) {
		return false
	}
	d.Started = pull(d.Started, jobID)
	d.Pending = append(d.Pending, jobID)
	return true
}

// ──────────────────────────────────────────────────
// Job record mutations
// ──────────────────────────────────────────────────

// Update is a partial write to one embedded job record. Nil fields are
// left untouched; UpdatedAt is always written.
type Update struct {
	Started   *time.Time
	Progress  *float64
	UpdatedAt time.Time
}

// UpdateJob applies u to the record for jobID.
func (d *Document) UpdateJob(jobID int64, u Update) bool {
	j, ok := d.Jobs[jobID]
	if !ok {
		return false
	}
	if u.Started != nil {
		j.Started = clonePtr(u.Started)
	}
	if u.Progress != nil {
		j.Progress = clonePtr(u.Progress)
	}
	j.UpdatedAt = u.UpdatedAt
	return true
}

// Completion describes the terminal write for a job.
type Completion struct {
	// Outcome is StatusFinished or StatusFailed.
	Outcome Status
	// At is the terminal timestamp.
	At time.Time
	// Error is the failure message; ignored for finished jobs.
	Error string
	// Retain keeps the record and adds its id to the terminal set. When
	// false the record and every reference to its id are dropped.
	Retain bool
}

// Complete applies c to jobID.
func (d *Document) Complete(jobID int64, c Completion) (bool, error) {
	if c.Outcome != StatusFinished && c.Outcome != StatusFailed {
		return false, fmt.Errorf("%w: cannot complete as %q", docket.ErrInvalidStatus, c.Outcome)
	}
	j, ok := d.Jobs[jobID]
	if !ok {
		return false, nil
	}
	d.Started = pull(d.Started, jobID)
	if !c.Retain {
		delete(d.Jobs, jobID)
		d.Pending = pull(d.Pending, jobID)
		return true, nil
	}
	at := c.At
	j.UpdatedAt = at
	if c.Outcome == StatusFinished {
		j.Finished = &at
		j.Error = ""
		d.Finished = addToSet(d.Finished, jobID)
	} else {
		j.Failed = &at
		j.Error = c.Error
		d.Failed = addToSet(d.Failed, jobID)
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Queries and bulk removal
// ──────────────────────────────────────────────────

// IDs returns the id set that backs status.
func (d *Document) IDs(status Status) ([]int64, error) {
	switch status {
	case StatusPending:
		return d.Pending, nil
	case StatusStarted:
		return d.Started, nil
	case StatusFinished:
		return d.Finished, nil
	case StatusFailed:
		return d.Failed, nil
	default:
		return nil, fmt.Errorf("%w: %q", docket.ErrInvalidStatus, status)
	}
}

// StatusOf reports which set currently holds jobID.
func (d *Document) StatusOf(jobID int64) (Status, bool) {
	for _, st := range []Status{StatusStarted, StatusPending, StatusFinished, StatusFailed} {
		ids, _ := d.IDs(st)
		if slices.Contains(ids, jobID) {
			return st, true
		}
	}
	return "", false
}

// JobsByStatus returns copies of the records in the set for status, in set
// order. Ids without a record are skipped.
func (d *Document) JobsByStatus(status Status) ([]*Job, error) {
	ids, err := d.IDs(status)
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(ids))
	for _, jobID := range ids {
		if j := d.Job(jobID); j != nil {
			out = append(out, j)
		}
	}
	return out, nil
}

// RemovePending deletes a job that has not been claimed yet.
func (d *Document) RemovePending(jobID int64) bool {
	if !slices.Contains(d.Pending, jobID) {
		return false
	}
	d.Pending = pull(d.Pending, jobID)
	delete(d.Jobs, jobID)
	return true
}

// RemoveByStatus deletes every job in the pending, finished or failed set
// and returns how many ids were dropped. Started jobs belong to a worker
// and cannot be removed this way.
func (d *Document) RemoveByStatus(status Status) (int, error) {
	var ids *[]int64
	switch status {
	case StatusPending:
		ids = &d.Pending
	case StatusFinished:
		ids = &d.Finished
	case StatusFailed:
		ids = &d.Failed
	default:
		return 0, fmt.Errorf("%w: cannot remove %q jobs", docket.ErrInvalidStatus, status)
	}
	n := len(*ids)
	for _, jobID := range *ids {
		delete(d.Jobs, jobID)
	}
	*ids = []int64{}
	return n, nil
}

func addToSet(s []int64, v int64) []int64 {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}

func pull(s []int64, v int64) []int64 {
	return slices.DeleteFunc(s, func(x int64) bool { return x == v })
}
