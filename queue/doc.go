// Package queue is the producer side of docket.
//
// A [Queue] appends jobs to one named queue document. Every AddJob is two
// atomic store writes: an increment of the queue counter that yields the
// job id, then a single update that appends the id to pending and the job
// record to the document. A job is visible to workers only after the
// second write.
//
//	q := queue.New("emails", s, queue.WithExtensions(exts))
//	if err := q.Create(ctx); err != nil { ... }
//	jobID, err := queue.Enqueue(ctx, q, "send", Email{To: "a@example.com"})
//
// The query helpers (FindJob, FindJobsByStatus, CountJobsByStatus, Stats)
// read a snapshot of the document; the values can be stale by the time
// they are returned.
package queue
