package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/observability"
)

func newTestExtension() *observability.MetricsExtension {
	return observability.NewMetricsExtensionWithFactory(gu.NewMetricsCollector("test"))
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:    1,
		Name:  "send-email",
		Queue: "default",
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	e := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_JobAdded(t *testing.T) {
	e := newTestExtension()
	if err := e.OnJobAdded(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.JobAdded.Value() != 1 {
		t.Errorf("JobAdded: want 1, got %v", e.JobAdded.Value())
	}
}

func TestMetricsExtension_JobFinished(t *testing.T) {
	e := newTestExtension()
	if err := e.OnJobFinished(context.Background(), newTestJob(), 100*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.JobFinished.Value() != 1 {
		t.Errorf("JobFinished: want 1, got %v", e.JobFinished.Value())
	}
}

func TestMetricsExtension_JobFailed(t *testing.T) {
	e := newTestExtension()
	if err := e.OnJobFailed(context.Background(), newTestJob(), errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.JobFailed.Value() != 1 {
		t.Errorf("JobFailed: want 1, got %v", e.JobFailed.Value())
	}
}

func TestMetricsExtension_JobsStalledCountsEachJob(t *testing.T) {
	e := newTestExtension()
	if err := e.OnJobsStalled(context.Background(), "default", []int64{3, 4, 9}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.JobsStalled.Value() != 3 {
		t.Errorf("JobsStalled: want 3, got %v", e.JobsStalled.Value())
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e := newTestExtension()

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	j := newTestJob()

	reg.EmitJobAdded(ctx, j)
	reg.EmitJobStarted(ctx, j)
	reg.EmitJobFinished(ctx, j, 50*time.Millisecond)
	reg.EmitJobFailed(ctx, j, errors.New("fail"))
	reg.EmitLockLost(ctx, j, errors.New("lost"))
	reg.EmitQueueDrained(ctx, "default", time.Second)
	reg.EmitJobsStalled(ctx, "default", []int64{1})
	reg.EmitCronFired(ctx, "hourly", 2)

	checks := []struct {
		name  string
		value float64
	}{
		{"JobAdded", e.JobAdded.Value()},
		{"JobStarted", e.JobStarted.Value()},
		{"JobFinished", e.JobFinished.Value()},
		{"JobFailed", e.JobFailed.Value()},
		{"LockLost", e.LockLost.Value()},
		{"QueueDrained", e.QueueDrained.Value()},
		{"JobsStalled", e.JobsStalled.Value()},
		{"CronFired", e.CronFired.Value()},
	}

	for _, c := range checks {
		if c.value != 1 {
			t.Errorf("%s: want 1, got %v", c.name, c.value)
		}
	}
}
