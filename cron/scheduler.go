package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/docket/id"
)

// Enqueuer adds a job to a queue. *queue.Queue satisfies it.
type Enqueuer interface {
	AddJob(ctx context.Context, name string, data []byte) (int64, error)
}

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, jobID int64)
}

// ErrDuplicateEntry is returned when an entry name is already registered.
var ErrDuplicateEntry = errors.New("docket/cron: duplicate entry name")

// ErrEntryNotFound is returned for an unknown entry name.
var ErrEntryNotFound = errors.New("docket/cron: entry not found")

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLogger sets the logger for the scheduler.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithEmitter sets the CronFired event sink.
func WithEmitter(e Emitter) SchedulerOption {
	return func(s *Scheduler) { s.emitter = e }
}

// WithClock overrides the scheduler's time source.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

type scheduled struct {
	entry    *Entry
	schedule cronlib.Schedule
}

// Scheduler enqueues jobs on cron schedules from a single process. It
// keeps its entries in memory; two processes running the same entries
// will both fire them.
type Scheduler struct {
	enqueue      Enqueuer
	emitter      Emitter
	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*scheduled

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler that enqueues through q.
func NewScheduler(q Enqueuer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		enqueue:      q,
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		tickInterval: time.Second,
		entries:      make(map[string]*scheduled),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a recurring entry. expr is a 5-field cron expression or a
// descriptor such as "@hourly" or "@every 30s".
func (s *Scheduler) Add(name, expr, jobName string, data []byte) (*Entry, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("docket/cron: parse schedule %q: %w", expr, err)
	}
	return s.add(&Entry{Name: name, Schedule: expr, JobName: jobName, Data: data}, sched)
}

// AddOnce registers an entry that enqueues a single job at or after at.
func (s *Scheduler) AddOnce(name string, at time.Time, jobName string, data []byte) (*Entry, error) {
	e := &Entry{Name: name, JobName: jobName, Data: data, once: true}
	e.NextRunAt = &at
	return s.add(e, nil)
}

func (s *Scheduler) add(e *Entry, sched cronlib.Schedule) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.Name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateEntry, e.Name)
	}

	now := s.now()
	e.ID = id.NewCronID()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Enabled = true
	if sched != nil {
		next := sched.Next(now)
		e.NextRunAt = &next
	}
	s.entries[e.Name] = &scheduled{entry: e, schedule: sched}
	return e.copy(), nil
}

// Remove unregisters an entry.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	delete(s.entries, name)
	return nil
}

// SetEnabled pauses or resumes an entry. Resuming a recurring entry
// recomputes its next run from now, so missed runs are skipped.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	now := s.now()
	sc.entry.Enabled = enabled
	sc.entry.UpdatedAt = now
	if enabled && sc.schedule != nil {
		next := sc.schedule.Next(now)
		sc.entry.NextRunAt = &next
	}
	return nil
}

// Entries returns copies of all entries ordered by name.
func (s *Scheduler) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, sc := range s.entries {
		out = append(out, sc.entry.copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches the tick loop.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop signals the tick loop to stop and waits for it. An enqueue in
// progress completes first.
func (s *Scheduler) Stop(_ context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunDue(context.Background(), s.now())
		}
	}
}

// RunDue fires every enabled entry whose next run is at or before now and
// returns how many jobs were enqueued. A recurring entry fires at most
// once per call even if several runs were missed.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var due []*scheduled
	for _, sc := range s.entries {
		e := sc.entry
		if e.Enabled && e.NextRunAt != nil && !e.NextRunAt.After(now) {
			due = append(due, sc)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].entry.NextRunAt.Before(*due[j].entry.NextRunAt) })

	fired := 0
	for _, sc := range due {
		if s.fire(ctx, sc, now) {
			fired++
		}
	}
	return fired
}

func (s *Scheduler) fire(ctx context.Context, sc *scheduled, now time.Time) bool {
	s.mu.Lock()
	e := sc.entry
	name, jobName, data := e.Name, e.JobName, e.Data
	s.mu.Unlock()

	jobID, err := s.enqueue.AddJob(ctx, jobName, data)
	if err != nil {
		s.logger.Error("cron enqueue error",
			slog.String("cron_name", name),
			slog.String("job_name", jobName),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.mu.Lock()
	e.LastRunAt = &now
	e.LastJobID = jobID
	e.UpdatedAt = now
	if sc.schedule != nil {
		next := sc.schedule.Next(now)
		e.NextRunAt = &next
	} else {
		e.NextRunAt = nil
		e.Enabled = false
	}
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, name, jobID)
	}

	s.logger.Info("cron fired",
		slog.String("cron_name", name),
		slog.String("job_name", jobName),
		slog.Int64("job_id", jobID),
	)
	return true
}

func (e *Entry) copy() *Entry {
	c := *e
	if e.Data != nil {
		c.Data = append([]byte(nil), e.Data...)
	}
	if e.LastRunAt != nil {
		t := *e.LastRunAt
		c.LastRunAt = &t
	}
	if e.NextRunAt != nil {
		t := *e.NextRunAt
		c.NextRunAt = &t
	}
	return &c
}
