// Package storetest is the conformance suite every store.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/store"
)

// Run exercises s against the store contract. Each subtest uses its own
// queue name, so s may be shared with other tests.
func Run(t *testing.T, s store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store, queue string)
	}{
		{"Lifecycle", testLifecycle},
		{"MissingQueue", testMissingQueue},
		{"CreateIsIdempotent", testCreateIsIdempotent},
		{"CounterIsUnique", testCounterIsUnique},
		{"FIFO", testFIFO},
		{"Claim", testClaim},
		{"ReturnJob", testReturnJob},
		{"LockIsExclusive", testLockIsExclusive},
		{"RenewAndRelease", testRenewAndRelease},
		{"ExpireAndRequeue", testExpireAndRequeue},
		{"UpdateJob", testUpdateJob},
		{"CompleteRetained", testCompleteRetained},
		{"CompleteRemoved", testCompleteRemoved},
		{"RemoveJob", testRemoveJob},
		{"RemoveJobs", testRemoveJobs},
		{"DeleteQueue", testDeleteQueue},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := fmt.Sprintf("storetest-%d-%d", time.Now().UnixNano(), i)
			tt.fn(t, s, queue)
		})
	}
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func mustCreate(t *testing.T, s store.Store, queue string) {
	t.Helper()
	if err := s.CreateQueue(context.Background(), queue); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
}

func mustAdd(t *testing.T, s store.Store, queue, name string) int64 {
	t.Helper()
	ctx := context.Background()
	jobID, err := s.IncrementCounter(ctx, queue)
	if err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if err := s.PushJob(ctx, queue, job.New(jobID, queue, name, []byte(`{"n":1}`), now())); err != nil {
		t.Fatalf("PushJob: %v", err)
	}
	return jobID
}

func mustStart(t *testing.T, s store.Store, queue string) int64 {
	t.Helper()
	ctx := context.Background()
	jobID, ok, err := s.PopPending(ctx, queue)
	if err != nil || !ok {
		t.Fatalf("PopPending = (%d, %v, %v)", jobID, ok, err)
	}
	j, err := s.ClaimJob(ctx, queue, jobID, now())
	if err != nil || j == nil {
		t.Fatalf("ClaimJob = (%v, %v)", j, err)
	}
	return jobID
}

func mustGet(t *testing.T, s store.Store, queue string) *job.Document {
	t.Helper()
	d, err := s.GetQueue(context.Background(), queue)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	return d
}

func testLifecycle(t *testing.T, s store.Store, _ string) {
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func testMissingQueue(t *testing.T, s store.Store, queue string) {
	ctx := context.Background()
	if _, err := s.IncrementCounter(ctx, queue); !errors.Is(err, docket.ErrQueueNotFound) {
		t.Errorf("IncrementCounter: expected ErrQueueNotFound, got %v", err)
	}
	if _, err := s.GetQueue(ctx, queue); !errors.Is(err, docket.ErrQueueNotFound) {
		t.Errorf("GetQueue: expected ErrQueueNotFound, got %v", err)
	}
}

func testCreateIsIdempotent(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	mustAdd(t, s, queue, "a")
	mustCreate(t, s, queue)

	d := mustGet(t, s, queue)
	if d.Counter != 1 || len(d.Pending) != 1 {
		t.Fatalf("second CreateQueue reset the document: counter=%d pending=%v", d.Counter, d.Pending)
	}
}

func testCounterIsUnique(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)

	const n = 20
	var (
		mu  sync.Mutex
		ids []int64
		wg  sync.WaitGroup
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobID, err := s.IncrementCounter(context.Background(), queue)
			if err != nil {
				t.Errorf("IncrementCounter: %v", err)
				return
			}
			mu.Lock()
			ids = append(ids, jobID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	slices.Sort(ids)
	for i, got := range ids {
		if got != int64(i+1) {
			t.Fatalf("ids = %v, want 1..%d without gaps or duplicates", ids, n)
		}
	}
}

func testFIFO(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	ctx := context.Background()

	if _, ok, err := s.PopPending(ctx, queue); err != nil || ok {
		t.Fatalf("PopPending on empty queue = (%v, %v)", ok, err)
	}
	for range 3 {
		mustAdd(t, s, queue, "a")
	}
	for want := int64(1); want <= 3; want++ {
		got, ok, err := s.PopPending(ctx, queue)
		if err != nil || !ok || got != want {
			t.Fatalf("PopPending = (%d, %v, %v), want %d", got, ok, err, want)
		}
	}
}

func testClaim(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	ctx := context.Background()
	jobID := mustAdd(t, s, queue, "claimed")
	if _, _, err := s.PopPending(ctx, queue); err != nil {
		t.Fatalf("PopPending: %v", err)
	}

	at := now().Add(time.Second)
	j, err := s.ClaimJob(ctx, queue, jobID, at)
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if j == nil || j.ID != jobID || j.Name != "claimed" || j.Queue != queue {
		t.Fatalf("ClaimJob returned %+v", j)
	}
	if !j.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", j.UpdatedAt, at)
	}
	if string(j.Data) != `{"n":1}` {
		t.Errorf("Data = %s", j.Data)
	}

	missing, err := s.ClaimJob(ctx, queue, 999, at)
	if err != nil || missing != nil {
		t.Fatalf("ClaimJob(missing) = (%v, %v), want (nil, nil)", missing, err)
	}

	d := mustGet(t, s, queue)
	if st, _ := d.StatusOf(jobID); st != job.StatusStarted {
		t.Errorf("status = %q, want started", st)
	}
}

func testReturnJob(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	mustAdd(t, s, queue, "a")
	mustAdd(t, s, queue, "b")
	first := mustStart(t, s, queue)

	ok, err := s.ReturnJob(context.Background(), queue, first)
	if err != nil || !ok {
		t.Fatalf("ReturnJob = (%v, %v)", ok, err)
	}
	d := mustGet(t, s, queue)
	if !slices.Equal(d.Pending, []int64{1, 2}) || len(d.Started) != 0 {
		t.Errorf("pending=%v started=%v, want [1 2] and none", d.Pending, d.Started)
	}
}

func testLockIsExclusive(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	mustAdd(t, s, queue, "a")
	jobID := mustStart(t, s, queue)

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	expires := now().Add(time.Minute)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AcquireLock(context.Background(), queue, jobID, expires)
			if err != nil {
				t.Errorf("AcquireLock: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("%d concurrent AcquireLock calls won, want exactly 1", got)
	}
	if d := mustGet(t, s, queue); len(d.Locks) != 1 {
		t.Errorf("locks = %v, want one", d.Locks)
	}
}

func testRenewAndRelease(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	ctx := context.Background()
	mustAdd(t, s, queue, "a")
	jobID := mustStart(t, s, queue)

	if err := s.RenewLock(ctx, queue, jobID, now()); !errors.Is(err, docket.ErrLockLost) {
		t.Fatalf("RenewLock without a lock: expected ErrLockLost, got %v", err)
	}
	if ok, err := s.AcquireLock(ctx, queue, jobID, now()); err != nil || !ok {
		t.Fatalf("AcquireLock = (%v, %v)", ok, err)
	}
	later := now().Add(time.Hour)
	if err := s.RenewLock(ctx, queue, jobID, later); err != nil {
		t.Fatalf("RenewLock: %v", err)
	}
	d := mustGet(t, s, queue)
	if len(d.Locks) != 1 || !d.Locks[0].Expires.Equal(later) {
		t.Fatalf("locks = %v, want expiry %v", d.Locks, later)
	}
	if err := s.ReleaseLock(ctx, queue, jobID); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if err := s.ReleaseLock(ctx, queue, jobID); err != nil {
		t.Fatalf("second ReleaseLock: %v", err)
	}
	if d := mustGet(t, s, queue); len(d.Locks) != 0 {
		t.Errorf("locks = %v, want none", d.Locks)
	}
}

func testExpireAndRequeue(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	ctx := context.Background()
	mustAdd(t, s, queue, "a")
	jobID := mustStart(t, s, queue)

	if ok, err := s.AcquireLock(ctx, queue, jobID, now().Add(-time.Second)); err != nil || !ok {
		t.Fatalf("AcquireLock = (%v, %v)", ok, err)
	}
	if ok, err := s.RequeueStalled(ctx, queue, jobID); err != nil || ok {
		t.Fatalf("RequeueStalled while locked = (%v, %v), want false", ok, err)
	}

	d, err := s.ExpireLocks(ctx, queue, now())
	if err != nil {
		t.Fatalf("ExpireLocks: %v", err)
	}
	if len(d.Locks) != 0 {
		t.Fatalf("locks after expiry = %v", d.Locks)
	}
	stalled := d.StalledJobs(now().Add(time.Second))
	if !slices.Equal(stalled, []int64{jobID}) {
		t.Fatalf("stalled = %v, want [%d]", stalled, jobID)
	}

	if ok, err := s.RequeueStalled(ctx, queue, jobID); err != nil || !ok {
		t.Fatalf("RequeueStalled = (%v, %v)", ok, err)
	}
	if ok, err := s.RequeueStalled(ctx, queue, jobID); err != nil || ok {
		t.Fatalf("second RequeueStalled = (%v, %v), want false", ok, err)
	}

	// The job can be claimed again.
	if got := mustStart(t, s, queue); got != jobID {
		t.Fatalf("reclaimed %d, want %d", got, jobID)
	}
}

func testUpdateJob(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	ctx := context.Background()
	mustAdd(t, s, queue, "a")
	jobID := mustStart(t, s, queue)

	started := now()
	progress := 42.5
	if err := s.UpdateJob(ctx, queue, jobID, job.Update{Started: &started, Progress: &progress, UpdatedAt: started}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	j := mustGet(t, s, queue).Job(jobID)
	if j.Started == nil || !j.Started.Equal(started) {
		t.Errorf("Started = %v, want %v", j.Started, started)
	}
	if j.Progress == nil || *j.Progress != progress {
		t.Errorf("Progress = %v, want %v", j.Progress, progress)
	}

	if err := s.UpdateJob(ctx, queue, 999, job.Update{UpdatedAt: started}); !errors.Is(err, docket.ErrJobNotFound) {
		t.Errorf("UpdateJob(missing): expected ErrJobNotFound, got %v", err)
	}
}

func testCompleteRetained(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	ctx := context.Background()
	mustAdd(t, s, queue, "ok")
	mustAdd(t, s, queue, "bad")
	okID := mustStart(t, s, queue)
	badID := mustStart(t, s, queue)

	at := now()
	if err := s.CompleteJob(ctx, queue, okID, job.Completion{Outcome: job.StatusFinished, At: at, Retain: true}); err != nil {
		t.Fatalf("CompleteJob(finished): %v", err)
	}
	if err := s.CompleteJob(ctx, queue, badID, job.Completion{Outcome: job.StatusFailed, At: at, Error: "boom", Retain: true}); err != nil {
		t.Fatalf("CompleteJob(failed): %v", err)
	}

	d := mustGet(t, s, queue)
	if len(d.Started) != 0 {
		t.Errorf("started = %v, want empty", d.Started)
	}
	if !slices.Equal(d.Finished, []int64{okID}) || !slices.Equal(d.Failed, []int64{badID}) {
		t.Errorf("finished=%v failed=%v", d.Finished, d.Failed)
	}
	if j := d.Job(okID); j.Finished == nil || !j.Finished.Equal(at) || j.Error != "" {
		t.Errorf("finished record = %+v", j)
	}
	if j := d.Job(badID); j.Failed == nil || j.Error != "boom" {
		t.Errorf("failed record = %+v", j)
	}
}

func testCompleteRemoved(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	ctx := context.Background()
	mustAdd(t, s, queue, "a")
	jobID := mustStart(t, s, queue)

	if err := s.CompleteJob(ctx, queue, jobID, job.Completion{Outcome: job.StatusFailed, At: now(), Error: "x"}); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	d := mustGet(t, s, queue)
	if d.Job(jobID) != nil {
		t.Error("record should be deleted")
	}
	if _, ok := d.StatusOf(jobID); ok {
		t.Error("id should be in no set")
	}
}

func testRemoveJob(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	ctx := context.Background()
	mustAdd(t, s, queue, "a")
	pendingID := mustAdd(t, s, queue, "b")
	startedID := mustStart(t, s, queue)

	if err := s.RemoveJob(ctx, queue, startedID); !errors.Is(err, docket.ErrJobNotFound) {
		t.Errorf("RemoveJob(started): expected ErrJobNotFound, got %v", err)
	}
	if err := s.RemoveJob(ctx, queue, pendingID); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if d := mustGet(t, s, queue); d.Job(pendingID) != nil || len(d.Pending) != 0 {
		t.Errorf("pending job still present: %v", d.Pending)
	}
}

func testRemoveJobs(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	ctx := context.Background()
	for range 3 {
		mustAdd(t, s, queue, "a")
	}
	jobID := mustStart(t, s, queue)
	if err := s.CompleteJob(ctx, queue, jobID, job.Completion{Outcome: job.StatusFinished, At: now(), Retain: true}); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	if _, err := s.RemoveJobs(ctx, queue, job.StatusStarted); !errors.Is(err, docket.ErrInvalidStatus) {
		t.Errorf("RemoveJobs(started): expected ErrInvalidStatus, got %v", err)
	}
	n, err := s.RemoveJobs(ctx, queue, job.StatusPending)
	if err != nil || n != 2 {
		t.Fatalf("RemoveJobs(pending) = (%d, %v), want 2", n, err)
	}
	n, err = s.RemoveJobs(ctx, queue, job.StatusFinished)
	if err != nil || n != 1 {
		t.Fatalf("RemoveJobs(finished) = (%d, %v), want 1", n, err)
	}
	if d := mustGet(t, s, queue); len(d.Jobs) != 0 {
		t.Errorf("jobs left: %d", len(d.Jobs))
	}
}

func testDeleteQueue(t *testing.T, s store.Store, queue string) {
	mustCreate(t, s, queue)
	mustAdd(t, s, queue, "a")
	if err := s.DeleteQueue(context.Background(), queue); err != nil {
		t.Fatalf("DeleteQueue: %v", err)
	}
	if _, err := s.GetQueue(context.Background(), queue); !errors.Is(err, docket.ErrQueueNotFound) {
		t.Errorf("GetQueue after delete: expected ErrQueueNotFound, got %v", err)
	}
}
