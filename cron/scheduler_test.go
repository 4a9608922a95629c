package cron_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/docket/cron"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/queue"
	"github.com/xraph/docket/store/memory"
)

// stubEmitter records EmitCronFired calls.
type stubEmitter struct {
	mu    sync.Mutex
	calls map[string][]int64
}

func (e *stubEmitter) EmitCronFired(_ context.Context, entryName string, jobID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls == nil {
		e.calls = make(map[string][]int64)
	}
	e.calls[entryName] = append(e.calls[entryName], jobID)
}

// failingEnqueuer rejects every job.
type failingEnqueuer struct{}

func (failingEnqueuer) AddJob(context.Context, string, []byte) (int64, error) {
	return 0, errors.New("store down")
}

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T) (*cron.Scheduler, *queue.Queue, *stubEmitter) {
	t.Helper()
	q := queue.New("cron", memory.New())
	if err := q.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	em := &stubEmitter{}
	s := cron.NewScheduler(q, cron.WithEmitter(em), cron.WithClock(func() time.Time { return t0 }))
	return s, q, em
}

func TestScheduler_FiresDueEntries(t *testing.T) {
	ctx := context.Background()
	s, q, em := newScheduler(t)

	e, err := s.Add("heartbeat", "@every 1m", "ping", []byte(`{}`))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if want := t0.Add(time.Minute); !e.NextRunAt.Equal(want) {
		t.Fatalf("NextRunAt = %v, want %v", e.NextRunAt, want)
	}

	if n := s.RunDue(ctx, t0.Add(30*time.Second)); n != 0 {
		t.Fatalf("fired %d entries before they were due", n)
	}
	if n := s.RunDue(ctx, t0.Add(time.Minute)); n != 1 {
		t.Fatalf("fired %d entries, want 1", n)
	}
	// Several missed runs still fire once.
	if n := s.RunDue(ctx, t0.Add(10*time.Minute)); n != 1 {
		t.Fatalf("fired %d entries, want 1", n)
	}

	jobs, err := q.FindJobsByStatus(ctx, job.StatusPending)
	if err != nil {
		t.Fatalf("FindJobsByStatus: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Name != "ping" {
		t.Fatalf("pending jobs = %d", len(jobs))
	}

	entries := s.Entries()
	if len(entries) != 1 || entries[0].LastJobID != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if want := t0.Add(11 * time.Minute); !entries[0].NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", entries[0].NextRunAt, want)
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if got := em.calls["heartbeat"]; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("CronFired calls = %v, want [1 2]", got)
	}
}

func TestScheduler_AddOnceFiresOnce(t *testing.T) {
	ctx := context.Background()
	s, q, _ := newScheduler(t)

	if _, err := s.AddOnce("reminder", t0.Add(time.Hour), "remind", nil); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}
	if n := s.RunDue(ctx, t0.Add(2*time.Hour)); n != 1 {
		t.Fatalf("fired %d, want 1", n)
	}
	if n := s.RunDue(ctx, t0.Add(3*time.Hour)); n != 0 {
		t.Fatalf("one-shot entry fired again")
	}
	if e := s.Entries()[0]; e.Enabled || e.NextRunAt != nil {
		t.Errorf("one-shot entry should be disabled after firing: %+v", e)
	}
	if n, _ := q.CountJobsByStatus(ctx, job.StatusPending); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
}

func TestScheduler_DisabledEntriesDoNotFire(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newScheduler(t)
	_, _ = s.Add("hourly", "@hourly", "x", nil)

	if err := s.SetEnabled("hourly", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if n := s.RunDue(ctx, t0.Add(2*time.Hour)); n != 0 {
		t.Fatalf("disabled entry fired")
	}
	if err := s.SetEnabled("missing", true); !errors.Is(err, cron.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestScheduler_Validation(t *testing.T) {
	s, _, _ := newScheduler(t)

	if _, err := s.Add("bad", "not a schedule", "x", nil); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := s.Add("dup", "@daily", "x", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("dup", "@daily", "x", nil); !errors.Is(err, cron.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	if err := s.Remove("dup"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("dup"); !errors.Is(err, cron.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestScheduler_EnqueueFailureKeepsSchedule(t *testing.T) {
	s := cron.NewScheduler(failingEnqueuer{}, cron.WithClock(func() time.Time { return t0 }))
	_, _ = s.Add("retry", "@every 1m", "x", nil)

	if n := s.RunDue(context.Background(), t0.Add(time.Minute)); n != 0 {
		t.Fatalf("fired = %d, want 0", n)
	}
	e := s.Entries()[0]
	if e.LastRunAt != nil || !e.NextRunAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("failed fire should not advance the entry: %+v", e)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	ctx := context.Background()
	q := queue.New("cron", memory.New())
	_ = q.Create(ctx)

	s := cron.NewScheduler(q, cron.WithTickInterval(10*time.Millisecond))
	if _, err := s.AddOnce("now", time.Now().UTC(), "x", nil); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := q.CountJobsByStatus(ctx, job.StatusPending); n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tick loop never fired the entry")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
