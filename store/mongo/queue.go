package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/docket"
	"github.com/xraph/docket/job"
)

// byName filters the queue document, plus any extra conditions.
func byName(queue string, extra ...bson.E) bson.D {
	return append(bson.D{{Key: "name", Value: queue}}, extra...)
}

// exists reports whether a document for queue exists. It is used to tell a
// missing queue apart from a condition that matched nothing.
func (s *Store) exists(ctx context.Context, queue string) (bool, error) {
	n, err := s.col.CountDocuments(ctx, byName(queue), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// notFound returns docket.ErrQueueNotFound when the queue is missing, or
// miss otherwise.
func (s *Store) notFound(ctx context.Context, queue, op string, miss error) error {
	ok, err := s.exists(ctx, queue)
	if err != nil {
		return fmt.Errorf("docket/mongo: %s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("docket/mongo: %s: %w", op, docket.ErrQueueNotFound)
	}
	if miss != nil {
		return fmt.Errorf("docket/mongo: %s: %w", op, miss)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Queue document
// ──────────────────────────────────────────────────

// CreateQueue upserts an empty queue document.
func (s *Store) CreateQueue(ctx context.Context, queue string) error {
	m := newQueueModel(queue)
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "counter", Value: int64(0)},
		{Key: "pending", Value: m.Pending},
		{Key: "started", Value: m.Started},
		{Key: "finished", Value: m.Finished},
		{Key: "failed", Value: m.Failed},
		{Key: "locks", Value: m.Locks},
		{Key: "jobs", Value: m.Jobs},
	}}}

	_, err := s.col.UpdateOne(ctx, byName(queue), update, options.UpdateOne().SetUpsert(true))
	if err != nil && !isDuplicateKey(err) {
		return fmt.Errorf("docket/mongo: create queue: %w", err)
	}
	return nil
}

// GetQueue returns a snapshot of the queue document.
func (s *Store) GetQueue(ctx context.Context, queue string) (*job.Document, error) {
	var m queueModel
	if err := s.col.FindOne(ctx, byName(queue)).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("docket/mongo: get queue: %w", docket.ErrQueueNotFound)
		}
		return nil, fmt.Errorf("docket/mongo: get queue: %w", err)
	}
	return fromQueueModel(&m), nil
}

// DeleteQueue drops the queue document.
func (s *Store) DeleteQueue(ctx context.Context, queue string) error {
	if _, err := s.col.DeleteOne(ctx, byName(queue)); err != nil {
		return fmt.Errorf("docket/mongo: delete queue: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Producer
// ──────────────────────────────────────────────────

// IncrementCounter runs $inc on the counter and returns the new value.
func (s *Store) IncrementCounter(ctx context.Context, queue string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "counter", Value: 1}})

	var m struct {
		Counter int64 `bson:"counter"`
	}
	err := s.col.FindOneAndUpdate(ctx, byName(queue),
		bson.D{{Key: "$inc", Value: bson.D{{Key: "counter", Value: int64(1)}}}},
		opts,
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, fmt.Errorf("docket/mongo: increment counter: %w", docket.ErrQueueNotFound)
		}
		return 0, fmt.Errorf("docket/mongo: increment counter: %w", err)
	}
	return m.Counter, nil
}

// PushJob appends the id to pending and the record to jobs in one update.
func (s *Store) PushJob(ctx context.Context, queue string, j *job.Job) error {
	update := bson.D{{Key: "$push", Value: bson.D{
		{Key: "pending", Value: j.ID},
		{Key: "jobs", Value: toJobModel(j)},
	}}}
	res, err := s.col.UpdateOne(ctx, byName(queue), update)
	if err != nil {
		return fmt.Errorf("docket/mongo: push job: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("docket/mongo: push job: %w", docket.ErrQueueNotFound)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Fetch
// ──────────────────────────────────────────────────

// PopPending runs $pop on the head of pending and returns the popped id
// from the pre-update document.
func (s *Store) PopPending(ctx context.Context, queue string) (int64, bool, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.D{{Key: "pending", Value: bson.D{{Key: "$slice", Value: 1}}}})

	filter := byName(queue, bson.E{Key: "pending.0", Value: bson.D{{Key: "$exists", Value: true}}})
	update := bson.D{{Key: "$pop", Value: bson.D{{Key: "pending", Value: -1}}}}

	var m struct {
		Pending []int64 `bson:"pending"`
	}
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, false, s.notFound(ctx, queue, "pop pending", nil)
		}
		return 0, false, fmt.Errorf("docket/mongo: pop pending: %w", err)
	}
	if len(m.Pending) == 0 {
		return 0, false, nil
	}
	return m.Pending[0], true, nil
}

// ClaimJob adds jobID to started when its record exists and refreshes the
// record's updated time.
func (s *Store) ClaimJob(ctx context.Context, queue string, jobID int64, now time.Time) (*job.Job, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "jobs.$", Value: 1}})

	filter := byName(queue, bson.E{Key: "jobs.id", Value: jobID})
	update := bson.D{
		{Key: "$addToSet", Value: bson.D{{Key: "started", Value: jobID}}},
		{Key: "$set", Value: bson.D{{Key: "jobs.$.updated", Value: now}}},
	}

	var m struct {
		Jobs []jobModel `bson:"jobs"`
	}
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("docket/mongo: claim job: %w", err)
	}
	if len(m.Jobs) == 0 || m.Jobs[0].ID != jobID {
		return nil, fmt.Errorf("docket/mongo: claim job %d: %w", jobID, docket.ErrJobNotFound)
	}
	return fromJobModel(queue, &m.Jobs[0]), nil
}

// ReturnJob pulls jobID from started and pushes it at position 0 of
// pending.
func (s *Store) ReturnJob(ctx context.Context, queue string, jobID int64) (bool, error) {
	filter := byName(queue, bson.E{Key: "started", Value: jobID})
	update := bson.D{
		{Key: "$pull", Value: bson.D{{Key: "started", Value: jobID}}},
		{Key: "$push", Value: bson.D{{Key: "pending", Value: bson.D{
			{Key: "$each", Value: bson.A{jobID}},
			{Key: "$position", Value: 0},
		}}}},
	}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("docket/mongo: return job: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// ──────────────────────────────────────────────────
// Locks
// ──────────────────────────────────────────────────

// AcquireLock pushes a lease conditioned on locks holding no entry for
// jobID. Exactly one concurrent caller matches.
func (s *Store) AcquireLock(ctx context.Context, queue string, jobID int64, expires time.Time) (bool, error) {
	filter := byName(queue, bson.E{Key: "locks.id", Value: bson.D{{Key: "$ne", Value: jobID}}})
	update := bson.D{{Key: "$push", Value: bson.D{
		{Key: "locks", Value: lockModel{ID: jobID, Expires: expires}},
	}}}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("docket/mongo: acquire lock: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// RenewLock sets a new expiry on the lease positionally.
func (s *Store) RenewLock(ctx context.Context, queue string, jobID int64, expires time.Time) error {
	filter := byName(queue, bson.E{Key: "locks.id", Value: jobID})
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "locks.$.expires", Value: expires}}}}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("docket/mongo: renew lock: %w", err)
	}
	if res.MatchedCount == 0 {
		return docket.ErrLockLost
	}
	return nil
}

// ReleaseLock pulls the lease for jobID.
func (s *Store) ReleaseLock(ctx context.Context, queue string, jobID int64) error {
	update := bson.D{{Key: "$pull", Value: bson.D{
		{Key: "locks", Value: bson.D{{Key: "id", Value: jobID}}},
	}}}
	if _, err := s.col.UpdateOne(ctx, byName(queue), update); err != nil {
		return fmt.Errorf("docket/mongo: release lock: %w", err)
	}
	return nil
}

// ExpireLocks pulls every lease that expired before now and returns the
// post-update document.
func (s *Store) ExpireLocks(ctx context.Context, queue string, now time.Time) (*job.Document, error) {
	update := bson.D{{Key: "$pull", Value: bson.D{
		{Key: "locks", Value: bson.D{{Key: "expires", Value: bson.D{{Key: "$lt", Value: now}}}}},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m queueModel
	if err := s.col.FindOneAndUpdate(ctx, byName(queue), update, opts).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("docket/mongo: expire locks: %w", docket.ErrQueueNotFound)
		}
		return nil, fmt.Errorf("docket/mongo: expire locks: %w", err)
	}
	return fromQueueModel(&m), nil
}

// RequeueStalled moves jobID from started to the tail of pending when it
// is still started and holds no lease.
func (s *Store) RequeueStalled(ctx context.Context, queue string, jobID int64) (bool, error) {
	filter := byName(queue,
		bson.E{Key: "started", Value: jobID},
		bson.E{Key: "locks.id", Value: bson.D{{Key: "$ne", Value: jobID}}},
	)
	update := bson.D{
		{Key: "$pull", Value: bson.D{{Key: "started", Value: jobID}}},
		{Key: "$push", Value: bson.D{{Key: "pending", Value: jobID}}},
	}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("docket/mongo: requeue stalled: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// ──────────────────────────────────────────────────
// Job records
// ──────────────────────────────────────────────────

// UpdateJob sets fields on one embedded job positionally.
func (s *Store) UpdateJob(ctx context.Context, queue string, jobID int64, u job.Update) error {
	set := bson.D{{Key: "jobs.$.updated", Value: u.UpdatedAt}}
	if u.Started != nil {
		set = append(set, bson.E{Key: "jobs.$.started", Value: *u.Started})
	}
	if u.Progress != nil {
		set = append(set, bson.E{Key: "jobs.$.progress", Value: *u.Progress})
	}

	filter := byName(queue, bson.E{Key: "jobs.id", Value: jobID})
	res, err := s.col.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("docket/mongo: update job: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.notFound(ctx, queue, "update job", docket.ErrJobNotFound)
	}
	return nil
}

// CompleteJob writes the terminal fields and moves the id out of started.
// Without retention the record is pulled from jobs instead.
func (s *Store) CompleteJob(ctx context.Context, queue string, jobID int64, c job.Completion) error {
	var set, addTo string
	switch c.Outcome {
	case job.StatusFinished:
		set, addTo = "jobs.$.finished", "finished"
	case job.StatusFailed:
		set, addTo = "jobs.$.failed", "failed"
	default:
		return fmt.Errorf("docket/mongo: complete job: %w: %q", docket.ErrInvalidStatus, c.Outcome)
	}

	var update bson.D
	if c.Retain {
		var errField any
		if c.Outcome == job.StatusFailed {
			errField = c.Error
		}
		update = bson.D{
			{Key: "$set", Value: bson.D{
				{Key: set, Value: c.At},
				{Key: "jobs.$.error", Value: errField},
				{Key: "jobs.$.updated", Value: c.At},
			}},
			{Key: "$pull", Value: bson.D{{Key: "started", Value: jobID}}},
			{Key: "$addToSet", Value: bson.D{{Key: addTo, Value: jobID}}},
		}
	} else {
		update = bson.D{{Key: "$pull", Value: bson.D{
			{Key: "started", Value: jobID},
			{Key: "pending", Value: jobID},
			{Key: "jobs", Value: bson.D{{Key: "id", Value: jobID}}},
		}}}
	}

	filter := byName(queue, bson.E{Key: "jobs.id", Value: jobID})
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("docket/mongo: complete job: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.notFound(ctx, queue, "complete job", docket.ErrJobNotFound)
	}
	return nil
}

// RemoveJob pulls a pending job and its record.
func (s *Store) RemoveJob(ctx context.Context, queue string, jobID int64) error {
	filter := byName(queue, bson.E{Key: "pending", Value: jobID})
	update := bson.D{{Key: "$pull", Value: bson.D{
		{Key: "pending", Value: jobID},
		{Key: "jobs", Value: bson.D{{Key: "id", Value: jobID}}},
	}}}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("docket/mongo: remove job: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.notFound(ctx, queue, "remove job", docket.ErrJobNotFound)
	}
	return nil
}

// RemoveJobs empties the id set for status and drops the matching records
// in one pipeline update.
func (s *Store) RemoveJobs(ctx context.Context, queue string, status job.Status) (int, error) {
	switch status {
	case job.StatusPending, job.StatusFinished, job.StatusFailed:
	default:
		return 0, fmt.Errorf("docket/mongo: remove jobs: %w: cannot remove %q jobs", docket.ErrInvalidStatus, status)
	}
	field := string(status)

	// Stage expressions read the pre-update document, so $jobs is filtered
	// against the old id set while the set itself is cleared.
	pipeline := mongod.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "jobs", Value: bson.D{{Key: "$filter", Value: bson.D{
			{Key: "input", Value: "$jobs"},
			{Key: "cond", Value: bson.D{{Key: "$not", Value: bson.A{
				bson.D{{Key: "$in", Value: bson.A{"$$this.id", "$" + field}}},
			}}}},
		}}}},
		{Key: field, Value: bson.D{{Key: "$literal", Value: bson.A{}}}},
	}}}}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.D{{Key: field, Value: 1}})

	var m bson.M
	if err := s.col.FindOneAndUpdate(ctx, byName(queue), pipeline, opts).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return 0, fmt.Errorf("docket/mongo: remove jobs: %w", docket.ErrQueueNotFound)
		}
		return 0, fmt.Errorf("docket/mongo: remove jobs: %w", err)
	}
	ids, _ := m[field].(bson.A)
	return len(ids), nil
}
