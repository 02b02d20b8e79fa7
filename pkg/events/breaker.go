package events

import (
	"sync"
	"time"
)

// BreakerState is the position of a CircuitBreaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// CircuitBreaker keeps the relay off a failing broker. threshold
// consecutive failures open it; after cooldown one probe is let through and
// its outcome closes or reopens the breaker.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	openedAt  time.Time
	cooldown  time.Duration
	clock     func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:     BreakerClosed,
		threshold: max(threshold, 1),
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// WithClock overrides clock for testing.
func (cb *CircuitBreaker) WithClock(clock func() time.Time) *CircuitBreaker {
	cb.clock = clock
	return cb
}

// Allow reports whether an attempt may proceed. An open breaker whose
// cooldown has elapsed moves to half-open and admits the caller.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != BreakerOpen {
		return true
	}
	if cb.clock().Sub(cb.openedAt) < cb.cooldown {
		return false
	}
	cb.state = BreakerHalfOpen
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	cb.state, cb.failures = BreakerClosed, 0
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == BreakerHalfOpen || cb.failures >= cb.threshold {
		cb.state = BreakerOpen
		cb.openedAt = cb.clock()
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
