// Package job defines the job record, the queue document it lives in, the
// store contract, and typed job definitions.
//
// # Queue Document
//
// Each queue is one [Document]. Job ids come from the document's counter
// and are never reused. A job's status is whichever id set holds it:
//
//	pending → started → finished
//	pending → started → failed
//	pending → started → pending   (stalled, requeued at the tail)
//
// Locks are leases with an expiry. A started job with no live lease whose
// record has gone quiet is stalled and is handed back to pending.
//
// # Store
//
// [Store] lists the conditional single-document operations the worker and
// producer are built on. Backends that hold the document as one value
// apply the [Document] mutation methods inside their own atomic section;
// the mongo backend maps each operation onto native update operators.
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload is JSON-encoded at
// enqueue time and decoded before the handler runs:
//
//	var SendEmail = job.NewDefinition("send_email",
//	    func(ctx context.Context, in EmailInput, progress job.Progress) error {
//	        return mailer.Send(in.To, in.Subject, in.Body)
//	    },
//	)
//
// Register definitions in a [Registry] and hand [Registry.Processor] to a
// worker:
//
//	reg := job.NewRegistry()
//	job.RegisterDefinition(reg, SendEmail)
//	w := worker.New("mail", st, reg.Processor())
package job
