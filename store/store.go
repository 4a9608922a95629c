// Package store defines the persistence interface a docket backend
// implements: the queue document operations of job.Store plus lifecycle.
package store

import (
	"context"

	"github.com/xraph/docket/job"
)

// Store is the full backend contract.
// A single backend (mongo, redis, postgres, memory) implements all of it.
type Store interface {
	job.Store

	// Migrate provisions indexes or tables. It is safe to call repeatedly.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
