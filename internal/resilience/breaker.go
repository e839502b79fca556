// Package resilience provides reliability patterns for calls that leave the
// process, such as the mesh control plane.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker tracks consecutive failures against a named dependency and opens
// the circuit when a threshold is reached. While open all calls are rejected
// with ErrCircuitOpen; after the timeout a single probe call is let through.
type Breaker struct {
	name        string
	maxFailures int
	timeout     time.Duration

	mu       sync.Mutex
	state    state
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time // for testing
}

// NewBreaker creates a circuit breaker that opens after maxFailures
// consecutive failures and stays open for the given timeout before letting a
// probe through.
func NewBreaker(name string, maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Do runs fn if the circuit allows it. It returns ErrCircuitOpen without
// invoking fn when the circuit is open, and the context error without
// invoking fn when ctx is already done.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.transition(stateHalfOpen)
			b.probing = true
			return true
		}
		return false
	case stateHalfOpen:
		// Only one probe in flight at a time while half-open.
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err != nil {
		b.failures++
		if b.state == stateHalfOpen || b.failures >= b.maxFailures {
			b.transition(stateOpen)
			b.openedAt = b.now()
		}
		return
	}

	b.failures = 0
	if b.state != stateClosed {
		b.transition(stateClosed)
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to state) {
	if b.state == to {
		return
	}
	slog.Warn("circuit breaker state change",
		"breaker", b.name,
		"from", b.state.String(),
		"to", to.String(),
	)
	b.state = to
}
