// Package cron enqueues jobs on a schedule.
//
// A [Scheduler] holds named entries in memory and, on every tick, adds a
// job through its [Enqueuer] (usually a *queue.Queue) for each entry that
// is due. Schedules are parsed by github.com/robfig/cron/v3: standard
// 5-field expressions and descriptors such as "@hourly" or "@every 30s".
// AddOnce registers an entry that fires a single time.
//
//	s := cron.NewScheduler(q, cron.WithEmitter(exts))
//	_, _ = s.Add("nightly-report", "0 2 * * *", "report", nil)
//	_ = s.Start(ctx)
//	defer s.Stop(ctx)
//
// The scheduler has no cross-process coordination. Run it in one process
// per queue, or accept that each process enqueues its own copy.
package cron
