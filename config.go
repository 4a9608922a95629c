package docket

import (
	"fmt"
	"time"
)

// Config holds worker configuration.
type Config struct {
	// Concurrency is the maximum number of in-flight fetch or process
	// operations a worker keeps outstanding.
	Concurrency int

	// DrainDelay is how long a worker waits before re-querying a queue it
	// found empty.
	DrainDelay time.Duration

	// LockLifetime is how long a lease stays valid without renewal.
	LockLifetime time.Duration

	// LockRenewal is how often a running job's lease is renewed. It must be
	// well below LockLifetime.
	LockRenewal time.Duration

	// StalledInterval is how often the worker scans for expired leases.
	StalledInterval time.Duration

	// RemoveOnFinished drops finished jobs from the queue document instead
	// of retaining them in the finished set.
	RemoveOnFinished bool

	// RemoveOnFailed drops failed jobs from the queue document instead of
	// retaining them in the failed set.
	RemoveOnFailed bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     5,
		DrainDelay:      1 * time.Second,
		LockLifetime:    30 * time.Second,
		LockRenewal:     10 * time.Second,
		StalledInterval: 15 * time.Second,
	}
}

// Validate reports the first inconsistent setting, wrapped in
// ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, c.Concurrency)
	case c.DrainDelay < 0:
		return fmt.Errorf("%w: drain delay must not be negative", ErrInvalidConfig)
	case c.LockLifetime <= 0:
		return fmt.Errorf("%w: lock lifetime must be positive", ErrInvalidConfig)
	case c.LockRenewal <= 0:
		return fmt.Errorf("%w: lock renewal must be positive", ErrInvalidConfig)
	case c.LockRenewal >= c.LockLifetime:
		return fmt.Errorf("%w: lock renewal (%s) must be shorter than lock lifetime (%s)",
			ErrInvalidConfig, c.LockRenewal, c.LockLifetime)
	case c.StalledInterval <= 0:
		return fmt.Errorf("%w: stalled interval must be positive", ErrInvalidConfig)
	}
	return nil
}
