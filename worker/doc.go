// Package worker is the consumer side of docket: the concurrency engine
// that pulls jobs from one queue document, runs them and records the
// outcome.
//
// # Scheduling
//
// A Worker keeps at most Concurrency operations outstanding. Each is
// either a fetch (pop the head of pending, claim it into started) or the
// processing of one claimed job. Operations run in their own goroutines
// and report on a shared channel; the loop handles whichever settles
// first, so completion order is not submission order.
//
// A fetch that finds pending empty puts the worker in the drained state.
// While drained only one fetch is outstanding and it first waits the
// drain delay (see [WithDrainBackoff]). QueueDrained is emitted once per
// drained period, when the worker is drained and nothing is processing.
//
// # Leases
//
// Before running a job the worker adds a lock {id, expires} conditioned on
// no lock existing for that id, so exactly one worker wins. The lock is
// renewed every LockRenewal and always released when processing ends.
// Every StalledInterval the worker drops expired locks and returns started
// jobs without a lock to the tail of pending.
//
// Delivery is at-least-once. If renewals stall for longer than
// LockLifetime, another worker may requeue and run the same job while the
// first run is still going. The first worker only notices at its next
// renewal (LockLost is emitted) and does not abort its processor.
// Processors must be idempotent.
//
// # Stopping
//
// Stop starts no new fetch, cancels drain waits and the stalled scan, and
// returns any job claimed after the stop began to the head of pending.
// Running processors are not cancelled: they get a context detached from
// Run's context and keep their lease renewed until they return.
package worker
