// Package resilience wraps calls to remote collaborators with a circuit breaker and jittered retry.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State represents circuit breaker state.
type State uint32

const (
	Closed   State = iota // calls flow
	Open                  // calls fail fast
	HalfOpen              // one trial at a time
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned while the breaker is open, or half-open with a trial already in flight.
var ErrOpen = errors.New("circuit breaker open")

// Breaker guards one remote provider. Each admitted call must report its outcome exactly
// once through the func returned by Allow. A cancelled call says nothing about the provider
// and is not counted.
type Breaker struct {
	cfg  Config
	now  func() time.Time
	hook func(from, to State)

	mu        sync.Mutex
	state     State
	failures  int // consecutive, while closed
	successes int // trial successes, while half-open
	openedAt  time.Time
	trialing  bool
}

// New creates a breaker with config.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: time.Now}
}

// WithHook sets a state change callback. It runs with the breaker locked and must not call back into it.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.hook = fn
	return b
}

// Allow admits a call or returns ErrOpen. On admission the returned func records the
// call's result.
func (b *Breaker) Allow() (func(error), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.setState(HalfOpen)
	}
	switch b.state {
	case Open:
		return nil, ErrOpen
	case HalfOpen:
		if b.trialing {
			return nil, ErrOpen
		}
		b.trialing = true
	}
	return b.record, nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trial := b.state == HalfOpen && b.trialing
	if trial {
		b.trialing = false
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	switch {
	case err == nil && b.state == Closed:
		b.failures = 0
	case err == nil && trial:
		b.successes++
		if b.successes >= b.cfg.HalfOpenSuccesses {
			b.setState(Closed)
		}
	case err != nil && b.state == Closed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.setState(Open)
		}
	case err != nil && trial:
		b.setState(Open)
	}
}

// State returns the current state. An open breaker past its reset timeout still reports
// Open until the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(Closed)
}

// setState must be called with mu held.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.successes = 0
	b.trialing = false

	switch to {
	case Closed:
		b.failures = 0
		slog.Info("circuit breaker closed", "breaker", b.cfg.Name)
	case Open:
		b.openedAt = b.now()
		slog.Warn("circuit breaker opened", "breaker", b.cfg.Name, "failures", b.failures)
	case HalfOpen:
		slog.Info("circuit breaker half-open", "breaker", b.cfg.Name)
	}
	if b.hook != nil {
		b.hook(from, to)
	}
}

// Run passes fn through b and returns its value.
func Run[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	done, err := b.Allow()
	if err != nil {
		return zero, err
	}
	v, err := fn()
	done(err)
	if err != nil {
		return zero, err
	}
	return v, nil
}
