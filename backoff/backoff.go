// Package backoff provides delay strategies for polling a drained queue.
//
// A worker that finds its queue empty waits before asking again. The wait
// for the n-th consecutive empty fetch (1-indexed) comes from a Strategy.
// The default is a constant delay equal to Config.DrainDelay; growing
// strategies trade pickup latency for fewer reads against an idle queue
// document. The redis store also uses a Strategy to pause between lost
// WATCH retries. All strategies are safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before the next fetch of a drained queue.
type Strategy interface {
	// Delay returns how long to wait before fetch n, where n counts the
	// consecutive empty fetches of the current drained period (1-indexed).
	Delay(n int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant waits the same interval after every empty fetch.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear grows the delay by Initial per empty fetch, up to Max.
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * n, capped at Max.
func (l *Linear) Delay(n int) time.Duration {
	d := l.Initial * time.Duration(max(n, 1))
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay on every empty fetch, up to Max. With
// Jitter set, the delay is drawn uniformly from [0, that value] so that
// many idle workers do not poll the same document in lockstep.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

// Delay returns Initial * 2^(n-1), capped at Max, optionally jittered.
func (e *Exponential) Delay(n int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(max(n, 1)-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	if e.Jitter {
		return time.Duration(rand.Float64() * base) //nolint:gosec // jitter does not need crypto rand
	}
	return time.Duration(base)
}
