// Package memory provides an in-memory store.Store for development and
// testing. Queue documents live in a map guarded by one mutex.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/docket"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/store"
	"github.com/xraph/docket/store/docstore"
)

// Compile-time check.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access.
type Store struct {
	*docstore.Store
}

// New returns a new empty Store.
func New() *Store {
	b := &backend{docs: make(map[string]*job.Document)}
	return &Store{Store: docstore.New("memory", b)}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Document backend
// ──────────────────────────────────────────────────

type backend struct {
	mu   sync.RWMutex
	docs map[string]*job.Document
}

func (b *backend) Create(_ context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.docs[queue]; !ok {
		b.docs[queue] = job.NewDocument(queue)
	}
	return nil
}

func (b *backend) View(_ context.Context, queue string, fn func(d *job.Document) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.docs[queue]
	if !ok {
		return docket.ErrQueueNotFound
	}
	return fn(d)
}

// Mutate works on a copy so a failing fn leaves the stored document as it
// was.
func (b *backend) Mutate(_ context.Context, queue string, fn func(d *job.Document) (bool, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.docs[queue]
	if !ok {
		return docket.ErrQueueNotFound
	}
	next := d.Clone()
	changed, err := fn(next)
	if err != nil {
		return err
	}
	if changed {
		b.docs[queue] = next
	}
	return nil
}

func (b *backend) Delete(_ context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.docs, queue)
	return nil
}
