// Package docket provides a persistent job queue backed by a shared
// document store. Producers append jobs to a named queue document; workers
// pull them, run them under bounded concurrency, and record the outcome in
// the same document.
//
// Docket is a library, not a service. Import it, pick a store backend, and
// hand the worker an ordinary Go function.
//
// # Quick Start
//
//	s := memory.New()
//	q := queue.New("emails", s)
//	_ = q.Create(ctx)
//	jobID, _ := q.AddJob(ctx, "send", []byte(`{"to":"a@example.com"}`))
//
//	w, _ := worker.New("emails", s, func(ctx context.Context, j *job.Job, progress job.Progress) error {
//	    return send(ctx, j.Data)
//	}, worker.WithConcurrency(4))
//	_ = w.Start(ctx)
//	defer w.Stop(ctx)
//
// # Queue Document
//
// Each queue is a single document holding an id counter, the ordered
// pending list, the started/finished/failed id sets, the active locks and
// the embedded job records. Every mutation is one atomic conditional update
// against that document; there is no other shared state between workers.
//
// # Delivery Guarantee
//
// Docket is at-least-once. A worker holds a time-bounded lease on each job
// it runs and renews it while the processor is busy. If a renewal is late
// by more than the lock lifetime, another worker's stalled scan returns the
// job to pending and it may run again while the first run is still in
// progress. The first worker only learns this at its next renewal tick and
// does not abort its processor. Processors must therefore be idempotent.
package docket
