package worker_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/queue"
	"github.com/xraph/docket/store/memory"
	"github.com/xraph/docket/worker"
)

const testQueue = "jobs"

// recorder captures worker events.
type recorder struct {
	mu        sync.Mutex
	started   []int64
	startedAt []time.Time
	finished  []int64
	failed    map[int64]error
	progress  []float64
	lost      []int64
	stalled   [][]int64
	drained   []time.Duration

	drainedCh chan struct{}
	lostCh    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		failed:    make(map[int64]error),
		drainedCh: make(chan struct{}, 16),
		lostCh:    make(chan struct{}, 16),
	}
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnJobStarted(_ context.Context, j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, j.ID)
	r.startedAt = append(r.startedAt, time.Now())
	return nil
}

func (r *recorder) OnJobProgress(_ context.Context, _ *job.Job, p float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
	return nil
}

func (r *recorder) OnJobFinished(_ context.Context, j *job.Job, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, j.ID)
	return nil
}

func (r *recorder) OnJobFailed(_ context.Context, j *job.Job, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[j.ID] = err
	return nil
}

func (r *recorder) OnLockLost(_ context.Context, j *job.Job, _ error) error {
	r.mu.Lock()
	r.lost = append(r.lost, j.ID)
	r.mu.Unlock()
	r.lostCh <- struct{}{}
	return nil
}

func (r *recorder) OnQueueDrained(_ context.Context, _ string, delay time.Duration) error {
	r.mu.Lock()
	r.drained = append(r.drained, delay)
	r.mu.Unlock()
	r.drainedCh <- struct{}{}
	return nil
}

func (r *recorder) OnJobsStalled(_ context.Context, _ string, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stalled = append(r.stalled, ids)
	return nil
}

func (r *recorder) drainedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drained)
}

func testConfig() docket.Config {
	cfg := docket.DefaultConfig()
	cfg.DrainDelay = 10 * time.Millisecond
	cfg.StalledInterval = time.Hour
	return cfg
}

type fixture struct {
	store *memory.Store
	queue *queue.Queue
	rec   *recorder
	exts  *ext.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	rec := newRecorder()
	exts := ext.NewRegistry(nil)
	exts.Register(rec)

	q := queue.New(testQueue, s, queue.WithExtensions(exts))
	if err := q.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return &fixture{store: s, queue: q, rec: rec, exts: exts}
}

func (f *fixture) worker(t *testing.T, p job.Processor, opts ...worker.Option) *worker.Worker {
	t.Helper()
	opts = append([]worker.Option{
		worker.WithConfig(testConfig()),
		worker.WithExtensions(f.exts),
	}, opts...)
	w, err := worker.New(testQueue, f.store, p, opts...)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return w
}

func (f *fixture) doc(t *testing.T) *job.Document {
	t.Helper()
	d, err := f.store.GetQueue(context.Background(), testQueue)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	return d
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestNew_Validation(t *testing.T) {
	p := func(context.Context, *job.Job, job.Progress) error { return nil }

	if _, err := worker.New(testQueue, nil, p); !errors.Is(err, docket.ErrNoStore) {
		t.Errorf("nil store: expected ErrNoStore, got %v", err)
	}
	if _, err := worker.New(testQueue, memory.New(), nil); !errors.Is(err, docket.ErrInvalidConfig) {
		t.Errorf("nil processor: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := worker.New(testQueue, memory.New(), p, worker.WithConcurrency(0)); !errors.Is(err, docket.ErrInvalidConfig) {
		t.Errorf("zero concurrency: expected ErrInvalidConfig, got %v", err)
	}
}

func TestWorker_ProcessesAllJobsWithBoundedConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.queue.AddJobs(ctx, "sleep", nil, nil, nil); err != nil {
		t.Fatalf("AddJobs: %v", err)
	}

	var running, peak atomic.Int32
	p := func(context.Context, *job.Job, job.Progress) error {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(80 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	w := f.worker(t, p, worker.WithConcurrency(2))
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, f.rec.drainedCh, "queue drained")

	if got := peak.Load(); got != 2 {
		t.Errorf("peak concurrency = %d, want 2", got)
	}

	f.rec.mu.Lock()
	finished := len(f.rec.finished)
	startedAt := append([]time.Time(nil), f.rec.startedAt...)
	f.rec.mu.Unlock()
	if finished != 3 {
		t.Fatalf("finished events = %d, want 3", finished)
	}
	if len(startedAt) != 3 {
		t.Fatalf("started events = %d, want 3", len(startedAt))
	}
	// Two jobs start together; the third waits for a free slot.
	if gap := startedAt[1].Sub(startedAt[0]); gap > 30*time.Millisecond {
		t.Errorf("second job started %s after the first, want them concurrent", gap)
	}
	if gap := startedAt[2].Sub(startedAt[0]); gap < 50*time.Millisecond {
		t.Errorf("third job started %s after the first, want it to wait for a slot", gap)
	}

	d := f.doc(t)
	if len(d.Finished) != 3 || len(d.Started) != 0 || len(d.Pending) != 0 || len(d.Locks) != 0 {
		t.Fatalf("document: pending=%v started=%v finished=%v locks=%v", d.Pending, d.Started, d.Finished, d.Locks)
	}
	for _, jobID := range d.Finished {
		j := d.Job(jobID)
		if j.Started == nil || j.Finished == nil || j.Failed != nil || j.Error != "" {
			t.Errorf("job %d: unexpected terminal shape %+v", jobID, j)
		}
	}

	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n := f.rec.drainedCount(); n != 1 {
		t.Fatalf("drained events = %d, want exactly 1", n)
	}
	if delay := f.rec.drained[0]; delay != 10*time.Millisecond {
		t.Errorf("drained delay = %s, want 10ms", delay)
	}
}

func TestWorker_FailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJob(ctx, "fail", nil)

	w := f.worker(t, func(context.Context, *job.Job, job.Progress) error {
		return errors.New("smtp unavailable")
	})
	_ = w.Start(ctx)
	waitFor(t, f.rec.drainedCh, "queue drained")

	d := f.doc(t)
	if len(d.Failed) != 1 || len(d.Started) != 0 || len(d.Locks) != 0 {
		t.Fatalf("document: started=%v failed=%v locks=%v", d.Started, d.Failed, d.Locks)
	}
	j := d.Job(1)
	if j.Failed == nil || j.Finished != nil || j.Error != "smtp unavailable" {
		t.Errorf("unexpected failed record: %+v", j)
	}

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	var pe *docket.ProcessorError
	if err := f.rec.failed[1]; !errors.As(err, &pe) || pe.JobID != 1 {
		t.Errorf("JobFailed error = %v, want *ProcessorError for job 1", err)
	}
}

func TestWorker_PanicFailsJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJob(ctx, "explode", nil)

	w := f.worker(t, func(context.Context, *job.Job, job.Progress) error {
		panic("kaboom")
	})
	_ = w.Start(ctx)
	waitFor(t, f.rec.drainedCh, "queue drained")

	j := f.doc(t).Job(1)
	if j == nil || j.Failed == nil || !strings.Contains(j.Error, "kaboom") {
		t.Fatalf("unexpected record after panic: %+v", j)
	}
}

func TestWorker_RemoveOnCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJobs(ctx, "x", []byte("ok"), []byte("bad"))

	cfg := testConfig()
	cfg.RemoveOnFinished = true
	cfg.RemoveOnFailed = true

	w := f.worker(t, func(_ context.Context, j *job.Job, _ job.Progress) error {
		if string(j.Data) == "bad" {
			return errors.New("bad")
		}
		return nil
	}, worker.WithConfig(cfg))
	_ = w.Start(ctx)
	waitFor(t, f.rec.drainedCh, "queue drained")

	d := f.doc(t)
	if len(d.Jobs) != 0 || len(d.Finished) != 0 || len(d.Failed) != 0 || len(d.Started) != 0 {
		t.Fatalf("expected empty document, got jobs=%d finished=%v failed=%v", len(d.Jobs), d.Finished, d.Failed)
	}
	if d.Counter != 2 {
		t.Errorf("Counter = %d, want 2", d.Counter)
	}
}

func TestWorker_ProgressIsPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJob(ctx, "report", nil)

	w := f.worker(t, func(ctx context.Context, _ *job.Job, progress job.Progress) error {
		if err := progress(ctx); err != nil {
			return err
		}
		return progress(ctx, 0.75)
	})
	_ = w.Start(ctx)
	waitFor(t, f.rec.drainedCh, "queue drained")

	j := f.doc(t).Job(1)
	if j.Progress == nil || *j.Progress != 0.75 {
		t.Fatalf("Progress = %v, want 0.75", j.Progress)
	}

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.progress) != 1 || f.rec.progress[0] != 0.75 {
		t.Errorf("progress events = %v, want [0.75]", f.rec.progress)
	}
}

func TestWorker_StopWaitsForInFlightJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJobs(ctx, "block", nil, nil, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	w := f.worker(t, func(ctx context.Context, _ *job.Job, _ job.Progress) error {
		calls.Add(1)
		close(entered)
		<-release
		return ctx.Err()
	}, worker.WithConcurrency(1))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	_ = w.Start(runCtx)
	waitFor(t, entered, "processor to start")

	shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := w.Stop(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop with in-flight job = %v, want DeadlineExceeded", err)
	}
	select {
	case <-w.Done():
		t.Fatal("worker stopped while a processor was still running")
	default:
	}

	// Cancelling Run's context must not reach the running processor.
	cancelRun()
	close(release)
	waitFor(t, w.Done(), "worker to stop")

	if err := w.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("processor calls = %d, want 1", calls.Load())
	}

	d := f.doc(t)
	if len(d.Finished) != 1 || len(d.Pending) != 2 || len(d.Started) != 0 || len(d.Locks) != 0 {
		t.Fatalf("document: pending=%v started=%v finished=%v locks=%v", d.Pending, d.Started, d.Finished, d.Locks)
	}
}

func TestWorker_RunStateErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, func(context.Context, *job.Job, job.Progress) error { return nil })

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Run(ctx); !errors.Is(err, docket.ErrWorkerRunning) {
		t.Fatalf("second Run = %v, want ErrWorkerRunning", err)
	}
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := w.Start(ctx); !errors.Is(err, docket.ErrWorkerStopping) {
		t.Fatalf("Start after Stop = %v, want ErrWorkerStopping", err)
	}
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestWorker_StopBeforeRun(t *testing.T) {
	f := newFixture(t)
	w := f.worker(t, func(context.Context, *job.Job, job.Progress) error { return nil })

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitFor(t, w.Done(), "done")
	if err := w.Run(context.Background()); !errors.Is(err, docket.ErrWorkerStopping) {
		t.Fatalf("Run after Stop = %v, want ErrWorkerStopping", err)
	}
}

func TestWorker_RunReturnsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	w := f.worker(t, func(context.Context, *job.Job, job.Progress) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil after cancellation", err)
	}
}

// failingStore fails every pop.
type failingStore struct {
	*memory.Store
	err error
}

func (s *failingStore) PopPending(context.Context, string) (int64, bool, error) {
	return 0, false, s.err
}

func TestWorker_FetchErrorIsFatal(t *testing.T) {
	cause := errors.New("connection reset")
	s := &failingStore{Store: memory.New(), err: cause}

	w, err := worker.New(testQueue, s, func(context.Context, *job.Job, job.Progress) error { return nil },
		worker.WithConfig(testConfig()))
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}

	err = w.Run(context.Background())
	var le *docket.LoopError
	if !errors.As(err, &le) || !errors.Is(err, cause) {
		t.Fatalf("Run = %v, want *LoopError wrapping the cause", err)
	}
	if !errors.Is(w.Err(), cause) {
		t.Errorf("Err = %v", w.Err())
	}
}

// contendedStore loses the first pops to other writers.
type contendedStore struct {
	*memory.Store
	losses atomic.Int32
}

func (s *contendedStore) PopPending(ctx context.Context, queue string) (int64, bool, error) {
	if s.losses.Add(-1) >= 0 {
		return 0, false, fmt.Errorf("docket/redis: pop pending: %w", docket.ErrContention)
	}
	return s.Store.PopPending(ctx, queue)
}

func TestWorker_ContentionIsNotFatal(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s := &contendedStore{Store: mem}
	s.losses.Store(3)

	rec := newRecorder()
	exts := ext.NewRegistry(nil)
	exts.Register(rec)
	q := queue.New(testQueue, mem)
	_ = q.Create(ctx)
	_, _ = q.AddJob(ctx, "x", nil)

	w, err := worker.New(testQueue, s, func(context.Context, *job.Job, job.Progress) error { return nil },
		worker.WithConfig(testConfig()), worker.WithConcurrency(1), worker.WithExtensions(exts))
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, rec.drainedCh, "queue drained")

	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("Err = %v, want nil after contended fetches", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.finished) != 1 {
		t.Errorf("finished = %v, want the one job", rec.finished)
	}
}

// gatedStore blocks the first pop until released.
type gatedStore struct {
	*memory.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) PopPending(ctx context.Context, queue string) (int64, bool, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.Store.PopPending(ctx, queue)
}

func TestWorker_JobClaimedDuringStopIsReturned(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	q := queue.New(testQueue, mem)
	_ = q.Create(ctx)
	_, _ = q.AddJobs(ctx, "x", nil, nil)

	var calls atomic.Int32
	w, err := worker.New(testQueue, s, func(context.Context, *job.Job, job.Progress) error {
		calls.Add(1)
		return nil
	}, worker.WithConfig(testConfig()), worker.WithConcurrency(1))
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}

	_ = w.Start(ctx)
	waitFor(t, s.entered, "first fetch")

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop(ctx) }()

	// Give Stop time to flip the worker into stopping before the fetch lands.
	time.Sleep(20 * time.Millisecond)
	close(s.release)

	if err := <-stopped; err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("processor ran %d times after stop", calls.Load())
	}

	d, _ := mem.GetQueue(ctx, testQueue)
	if len(d.Pending) != 2 || d.Pending[0] != 1 || len(d.Started) != 0 {
		t.Fatalf("pending = %v started = %v, want job 1 back at the head", d.Pending, d.Started)
	}
}

func TestCheckStalledJobs_RequeuesExpiredLeases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJobs(ctx, "x", nil, nil)

	t0 := queue.Now()
	for range 2 {
		jobID, _, _ := f.store.PopPending(ctx, testQueue)
		if _, err := f.store.ClaimJob(ctx, testQueue, jobID, t0); err != nil {
			t.Fatalf("ClaimJob: %v", err)
		}
	}
	// Job 1's lease expired; job 2 holds a valid one.
	_, _ = f.store.AcquireLock(ctx, testQueue, 1, t0.Add(time.Second))
	_, _ = f.store.AcquireLock(ctx, testQueue, 2, t0.Add(time.Hour))

	cfg := testConfig()
	later := t0.Add(cfg.LockLifetime + 2*time.Second)
	w := f.worker(t, func(context.Context, *job.Job, job.Progress) error { return nil },
		worker.WithClock(func() time.Time { return later }))

	ids, err := w.CheckStalledJobs(ctx)
	if err != nil {
		t.Fatalf("CheckStalledJobs: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("requeued = %v, want [1]", ids)
	}

	d := f.doc(t)
	if len(d.Pending) != 1 || d.Pending[0] != 1 || len(d.Started) != 1 || d.Started[0] != 2 {
		t.Fatalf("pending = %v started = %v", d.Pending, d.Started)
	}
	if len(d.Locks) != 1 || d.Locks[0].ID != 2 {
		t.Fatalf("locks = %v, want only job 2", d.Locks)
	}

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.stalled) != 1 || len(f.rec.stalled[0]) != 1 {
		t.Errorf("stalled events = %v", f.rec.stalled)
	}
}

func TestCheckStalledJobs_GraceForFreshClaims(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJob(ctx, "x", nil)

	t0 := queue.Now()
	jobID, _, _ := f.store.PopPending(ctx, testQueue)
	_, _ = f.store.ClaimJob(ctx, testQueue, jobID, t0)

	w := f.worker(t, func(context.Context, *job.Job, job.Progress) error { return nil },
		worker.WithClock(func() time.Time { return t0.Add(time.Second) }))

	ids, err := w.CheckStalledJobs(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("CheckStalledJobs = (%v, %v), want nothing requeued", ids, err)
	}
}

func TestWorker_RenewalKeepsLeaseAlive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJob(ctx, "long", nil)

	cfg := testConfig()
	cfg.LockLifetime = 150 * time.Millisecond
	cfg.LockRenewal = 30 * time.Millisecond

	entered := make(chan struct{})
	release := make(chan struct{})
	w := f.worker(t, func(context.Context, *job.Job, job.Progress) error {
		close(entered)
		<-release
		return nil
	}, worker.WithConfig(cfg))
	_ = w.Start(ctx)
	waitFor(t, entered, "processor to start")

	// Well past the original expiry, a scan from another worker must
	// still see a live lease.
	time.Sleep(400 * time.Millisecond)
	scanner := f.worker(t, func(context.Context, *job.Job, job.Progress) error { return nil },
		worker.WithConfig(cfg), worker.WithoutStoreClose())
	ids, err := scanner.CheckStalledJobs(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("CheckStalledJobs = (%v, %v), want nothing requeued", ids, err)
	}

	close(release)
	waitFor(t, f.rec.drainedCh, "queue drained")
	if d := f.doc(t); len(d.Finished) != 1 {
		t.Fatalf("finished = %v", d.Finished)
	}
}

func TestWorker_LockLostIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJob(ctx, "long", nil)

	cfg := testConfig()
	cfg.LockLifetime = time.Second
	cfg.LockRenewal = 20 * time.Millisecond

	entered := make(chan struct{})
	release := make(chan struct{})
	w := f.worker(t, func(context.Context, *job.Job, job.Progress) error {
		close(entered)
		<-release
		return nil
	}, worker.WithConfig(cfg))
	_ = w.Start(ctx)
	waitFor(t, entered, "processor to start")

	// Steal the lease.
	if err := f.store.ReleaseLock(ctx, testQueue, 1); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	waitFor(t, f.rec.lostCh, "lock lost")
	close(release)
	waitFor(t, f.rec.drainedCh, "queue drained")

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.lost) != 1 || f.rec.lost[0] != 1 {
		t.Errorf("lost = %v, want [1]", f.rec.lost)
	}
	// The processor is not aborted; the job still completes.
	if len(f.rec.finished) != 1 {
		t.Errorf("finished = %v, want [1]", f.rec.finished)
	}
}

// slowRenewStore holds the first renewal until released, then reports the
// lock lost. ReleaseLock notes whether that renewal was still out.
type slowRenewStore struct {
	*memory.Store
	once     sync.Once
	entered  chan struct{}
	release  chan struct{}
	renewing atomic.Bool
	overlap  atomic.Bool
}

func (s *slowRenewStore) RenewLock(ctx context.Context, queue string, jobID int64, expires time.Time) error {
	first := false
	s.once.Do(func() { first = true })
	if !first {
		return s.Store.RenewLock(ctx, queue, jobID, expires)
	}
	s.renewing.Store(true)
	defer s.renewing.Store(false)
	close(s.entered)
	<-s.release
	return docket.ErrLockLost
}

func (s *slowRenewStore) ReleaseLock(ctx context.Context, queue string, jobID int64) error {
	if s.renewing.Load() {
		s.overlap.Store(true)
	}
	return s.Store.ReleaseLock(ctx, queue, jobID)
}

func TestWorker_CompletionWaitsForInflightRenewal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.queue.AddJob(ctx, "long", nil)
	s := &slowRenewStore{Store: f.store, entered: make(chan struct{}), release: make(chan struct{})}

	cfg := testConfig()
	cfg.LockLifetime = time.Second
	cfg.LockRenewal = 20 * time.Millisecond

	w, err := worker.New(testQueue, s, func(context.Context, *job.Job, job.Progress) error {
		<-s.entered
		return nil
	}, worker.WithConfig(cfg), worker.WithExtensions(f.exts))
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop(ctx) })
	_ = w.Start(ctx)
	waitFor(t, s.entered, "renewal to start")

	// The processor has returned; completion must hold for the renewal.
	time.Sleep(50 * time.Millisecond)
	f.rec.mu.Lock()
	early := len(f.rec.finished)
	f.rec.mu.Unlock()
	if early != 0 {
		t.Fatalf("job completed while its renewal was still in flight")
	}

	close(s.release)
	waitFor(t, f.rec.drainedCh, "queue drained")

	if s.overlap.Load() {
		t.Error("lock released while a renewal was in flight")
	}
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.lost) != 0 {
		t.Errorf("lost = %v, want no lock lost after completion", f.rec.lost)
	}
	if len(f.rec.finished) != 1 {
		t.Errorf("finished = %v, want [1]", f.rec.finished)
	}
}
