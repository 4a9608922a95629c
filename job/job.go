package job

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/docket"
)

// Status is the lifecycle position of a job, derived from which id set of
// the queue document holds it.
type Status string

const (
	// StatusPending means the job id is in the pending sequence.
	StatusPending Status = "pending"
	// StatusStarted means a worker has claimed the job.
	StatusStarted Status = "started"
	// StatusFinished means the processor returned without error.
	StatusFinished Status = "finished"
	// StatusFailed means the processor returned an error.
	StatusFailed Status = "failed"
)

// ParseStatus converts a status name into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusStarted, StatusFinished, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", docket.ErrInvalidStatus, s)
	}
}

// Job is one unit of work embedded in a queue document.
type Job struct {
	docket.Entity

	ID       int64      `json:"id"                 msgpack:"id"`
	Queue    string     `json:"queue,omitempty"    msgpack:"-"`
	Name     string     `json:"name"               msgpack:"name"`
	Data     []byte     `json:"data,omitempty"     msgpack:"data"`
	Progress *float64   `json:"progress,omitempty" msgpack:"progress"`
	Started  *time.Time `json:"started,omitempty"  msgpack:"started"`
	Finished *time.Time `json:"finished,omitempty" msgpack:"finished"`
	Failed   *time.Time `json:"failed,omitempty"   msgpack:"failed"`
	Error    string     `json:"error,omitempty"    msgpack:"error"`
}

// New builds a fresh job record with both timestamps set to now and every
// lifecycle field empty.
func New(jobID int64, queue, name string, data []byte, now time.Time) *Job {
	return &Job{
		Entity: docket.Entity{CreatedAt: now, UpdatedAt: now},
		ID:     jobID,
		Queue:  queue,
		Name:   name,
		Data:   data,
	}
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Data != nil {
		c.Data = append([]byte(nil), j.Data...)
	}
	c.Progress = clonePtr(j.Progress)
	c.Started = clonePtr(j.Started)
	c.Finished = clonePtr(j.Finished)
	c.Failed = clonePtr(j.Failed)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Lock is an execution lease on one job id.
type Lock struct {
	ID      int64     `json:"id"      msgpack:"id"`
	Expires time.Time `json:"expires" msgpack:"expires"`
}

// Progress persists progress for the running job. Called with no value it
// only refreshes the job's updated timestamp; called with a value it also
// stores that value and notifies JobProgress subscribers. Extra values
// beyond the first are ignored.
type Progress func(ctx context.Context, value ...float64) error

// Processor runs one job. Returning nil marks the job finished; returning
// an error marks it failed with the error's message. The *Job is a snapshot:
// mutating it does not persist anything.
type Processor func(ctx context.Context, j *Job, progress Progress) error
