// Package timer keeps a registry of named, cancellable deferred callbacks.
//
// A worker keeps one Registry for drain waits and the stalled-job scan,
// closed as soon as it begins stopping, and a second one for lock
// renewals, closed only after in-flight jobs settle.
package timer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/docket/id"
)

// Func is a deferred callback. A returned error is logged.
type Func func() error

type entry struct {
	name string
	t    *time.Timer
}

// Registry tracks pending timers by handle. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	timers map[id.TimerID]*entry
	closed bool
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for callback errors and panics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		timers: make(map[id.TimerID]*entry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Set schedules fn to run once after delay and returns its handle. The
// handle is removed from the registry before fn runs. After Close, Set
// schedules nothing and returns id.Nil.
func (r *Registry) Set(name string, delay time.Duration, fn Func) id.TimerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return id.Nil
	}

	h := id.NewTimerID()
	e := &entry{name: name}
	e.t = time.AfterFunc(delay, func() { r.fire(h, e, fn) })
	r.timers[h] = e
	return h
}

func (r *Registry) fire(h id.TimerID, e *entry, fn Func) {
	r.mu.Lock()
	cur, ok := r.timers[h]
	if !ok || cur != e {
		// Deleted after the runtime had already started this callback.
		r.mu.Unlock()
		return
	}
	delete(r.timers, h)
	r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("timer callback panicked",
				slog.String("timer", e.name),
				slog.String("handle", h.String()),
				slog.String("panic", fmt.Sprint(p)),
			)
		}
	}()

	if err := fn(); err != nil {
		r.logger.Error("timer callback failed",
			slog.String("timer", e.name),
			slog.String("handle", h.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Delete cancels the timer for h. It is a no-op for unknown, fired or
// already deleted handles.
func (r *Registry) Delete(h id.TimerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.timers[h]; ok {
		e.t.Stop()
		delete(r.timers, h)
	}
}

// Clear cancels every pending timer.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

func (r *Registry) clearLocked() {
	for h, e := range r.timers {
		e.t.Stop()
		delete(r.timers, h)
	}
}

// Close cancels every pending timer and makes later Set calls no-ops.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.clearLocked()
}

// Len reports the number of pending timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
