package channel

import (
	"sync"
	"time"
)

// BreakerState is the state of a per-host circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker stops deliveries to a host after repeated failures and lets a
// trial delivery through once ResetTimeout has passed.
type Breaker struct {
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker. A threshold below one is treated as one.
func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{threshold: threshold, resetTimeout: resetTimeout, now: time.Now, state: BreakerClosed}
}

// Allow reports whether a delivery may be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return true
	}
	if b.now().Sub(b.lastFailure) > b.resetTimeout {
		b.state = BreakerHalfOpen
		return true
	}
	return false
}

// Success closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = BreakerClosed
}

// Failure counts a failed delivery. A failed trial reopens immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
