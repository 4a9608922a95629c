package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/job"
)

// Queue is the producer side of one named queue document.
// It is safe for concurrent use.
type Queue struct {
	name       string
	store      job.Store
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger for the queue.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithExtensions sets the registry notified of JobAdded events. Share one
// registry between a queue and its workers to observe the full lifecycle.
func WithExtensions(r *ext.Registry) Option {
	return func(q *Queue) { q.extensions = r }
}

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New returns the producer for the queue called name.
func New(name string, s job.Store, opts ...Option) *Queue {
	q := &Queue{
		name:   name,
		store:  s,
		logger: slog.Default(),
		now:    Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.extensions == nil {
		q.extensions = ext.NewRegistry(q.logger)
	}
	return q
}

// Now returns the current UTC time truncated to millisecond precision, the
// resolution every backend stores timestamps at.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Create ensures the queue document exists. It is idempotent.
func (q *Queue) Create(ctx context.Context) error {
	if q.store == nil {
		return docket.ErrNoStore
	}
	return q.store.CreateQueue(ctx, q.name)
}

// AddJob enqueues a job and returns its id. The id comes from an atomic
// increment of the queue counter, so concurrent producers never share one.
// The job becomes visible to workers only once it is on pending.
func (q *Queue) AddJob(ctx context.Context, name string, data []byte) (int64, error) {
	if q.store == nil {
		return 0, docket.ErrNoStore
	}

	jobID, err := q.store.IncrementCounter(ctx, q.name)
	if err != nil {
		return 0, fmt.Errorf("add job %q: %w", name, err)
	}

	j := job.New(jobID, q.name, name, data, q.now())
	if err := q.store.PushJob(ctx, q.name, j); err != nil {
		return 0, fmt.Errorf("add job %q: %w", name, err)
	}

	q.logger.Debug("job added",
		slog.String("queue", q.name),
		slog.String("job_name", name),
		slog.Int64("job_id", jobID),
	)
	q.extensions.EmitJobAdded(ctx, j)
	return jobID, nil
}

// AddJobs enqueues one job per element of data, all named name, and
// returns their ids in order. It stops at the first failure and returns
// the ids enqueued so far.
func (q *Queue) AddJobs(ctx context.Context, name string, data ...[]byte) ([]int64, error) {
	ids := make([]int64, 0, len(data))
	for _, d := range data {
		jobID, err := q.AddJob(ctx, name, d)
		if err != nil {
			return ids, err
		}
		ids = append(ids, jobID)
	}
	return ids, nil
}

// Enqueue JSON-encodes payload and adds it as a job called name.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Enqueue[T any](ctx context.Context, q *Queue, name string, payload T) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}
	return q.AddJob(ctx, name, data)
}

// EnqueueDefinition adds a job for a typed definition.
func EnqueueDefinition[T any](ctx context.Context, q *Queue, def *job.Definition[T], payload T) (int64, error) {
	return Enqueue(ctx, q, def.Name, payload)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// FindJob returns a snapshot of one job record.
func (q *Queue) FindJob(ctx context.Context, jobID int64) (*job.Job, error) {
	d, err := q.document(ctx)
	if err != nil {
		return nil, err
	}
	j := d.Job(jobID)
	if j == nil {
		return nil, fmt.Errorf("find job %d: %w", jobID, docket.ErrJobNotFound)
	}
	return j, nil
}

// JobStatus returns the status of one job.
func (q *Queue) JobStatus(ctx context.Context, jobID int64) (job.Status, error) {
	d, err := q.document(ctx)
	if err != nil {
		return "", err
	}
	st, ok := d.StatusOf(jobID)
	if !ok {
		return "", fmt.Errorf("job status %d: %w", jobID, docket.ErrJobNotFound)
	}
	return st, nil
}

// FindJobsByStatus returns the jobs with status, ordered as the document
// holds their ids (pending in FIFO order).
func (q *Queue) FindJobsByStatus(ctx context.Context, status job.Status) ([]*job.Job, error) {
	d, err := q.document(ctx)
	if err != nil {
		return nil, err
	}
	return d.JobsByStatus(status)
}

// CountJobsByStatus returns how many jobs have status.
func (q *Queue) CountJobsByStatus(ctx context.Context, status job.Status) (int, error) {
	d, err := q.document(ctx)
	if err != nil {
		return 0, err
	}
	ids, err := d.IDs(status)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Stats returns the number of jobs in each status.
func (q *Queue) Stats(ctx context.Context) (map[job.Status]int, error) {
	d, err := q.document(ctx)
	if err != nil {
		return nil, err
	}
	return map[job.Status]int{
		job.StatusPending:  len(d.Pending),
		job.StatusStarted:  len(d.Started),
		job.StatusFinished: len(d.Finished),
		job.StatusFailed:   len(d.Failed),
	}, nil
}

// ──────────────────────────────────────────────────
// Removal
// ──────────────────────────────────────────────────

// RemoveJob deletes a pending job. Jobs in any other status return
// docket.ErrJobNotFound.
func (q *Queue) RemoveJob(ctx context.Context, jobID int64) error {
	if q.store == nil {
		return docket.ErrNoStore
	}
	return q.store.RemoveJob(ctx, q.name, jobID)
}

// RemoveJobsByStatus deletes every pending, finished or failed job and
// returns how many were removed. Started jobs cannot be removed this way
// and return docket.ErrInvalidStatus.
func (q *Queue) RemoveJobsByStatus(ctx context.Context, status job.Status) (int, error) {
	if q.store == nil {
		return 0, docket.ErrNoStore
	}
	if status == job.StatusStarted {
		return 0, fmt.Errorf("%w: started jobs cannot be removed", docket.ErrInvalidStatus)
	}
	return q.store.RemoveJobs(ctx, q.name, status)
}

// Delete drops the whole queue document.
func (q *Queue) Delete(ctx context.Context) error {
	if q.store == nil {
		return docket.ErrNoStore
	}
	return q.store.DeleteQueue(ctx, q.name)
}

func (q *Queue) document(ctx context.Context) (*job.Document, error) {
	if q.store == nil {
		return nil, docket.ErrNoStore
	}
	return q.store.GetQueue(ctx, q.name)
}
