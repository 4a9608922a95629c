// Package observability provides a metrics extension for docket. The
// MetricsExtension implements lifecycle hooks to record counters for jobs
// added, started, finished and failed, lost leases, drained periods,
// requeued stalled jobs and cron fires.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
