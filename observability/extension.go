package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobAdded     = (*MetricsExtension)(nil)
	_ ext.JobStarted   = (*MetricsExtension)(nil)
	_ ext.JobFinished  = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.LockLost     = (*MetricsExtension)(nil)
	_ ext.QueueDrained = (*MetricsExtension)(nil)
	_ ext.JobsStalled  = (*MetricsExtension)(nil)
	_ ext.CronFired    = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via go-utils MetricFactory.
// Register it as a docket extension to track add rates, start, finish and
// failure counts, lost leases, drained periods, requeued stalled jobs and
// cron fires.
type MetricsExtension struct {
	JobAdded     gu.Counter
	JobStarted   gu.Counter
	JobFinished  gu.Counter
	JobFailed    gu.Counter
	LockLost     gu.Counter
	QueueDrained gu.Counter
	JobsStalled  gu.Counter
	CronFired    gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("docket/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		JobAdded:     factory.Counter("docket.job.added"),
		JobStarted:   factory.Counter("docket.job.started"),
		JobFinished:  factory.Counter("docket.job.finished"),
		JobFailed:    factory.Counter("docket.job.failed"),
		LockLost:     factory.Counter("docket.lock.lost"),
		QueueDrained: factory.Counter("docket.queue.drained"),
		JobsStalled:  factory.Counter("docket.job.stalled"),
		CronFired:    factory.Counter("docket.cron.fired"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobAdded implements ext.JobAdded.
func (m *MetricsExtension) OnJobAdded(_ context.Context, _ *job.Job) error {
	m.JobAdded.Inc()
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(_ context.Context, _ *job.Job) error {
	m.JobStarted.Inc()
	return nil
}

// OnJobFinished implements ext.JobFinished.
func (m *MetricsExtension) OnJobFinished(_ context.Context, _ *job.Job, _ time.Duration) error {
	m.JobFinished.Inc()
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	m.JobFailed.Inc()
	return nil
}

// OnLockLost implements ext.LockLost.
func (m *MetricsExtension) OnLockLost(_ context.Context, _ *job.Job, _ error) error {
	m.LockLost.Inc()
	return nil
}

// ── Queue hooks ─────────────────────────────────────

// OnQueueDrained implements ext.QueueDrained.
func (m *MetricsExtension) OnQueueDrained(_ context.Context, _ string, _ time.Duration) error {
	m.QueueDrained.Inc()
	return nil
}

// OnJobsStalled implements ext.JobsStalled. The counter grows by the
// number of requeued jobs.
func (m *MetricsExtension) OnJobsStalled(_ context.Context, _ string, jobIDs []int64) error {
	for range jobIDs {
		m.JobsStalled.Inc()
	}
	return nil
}

// ── Cron hooks ──────────────────────────────────────

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(_ context.Context, _ string, _ int64) error {
	m.CronFired.Inc()
	return nil
}
