// Package syncx holds small synchronization helpers shared by the pipeline worker and the HTTP surface.
package syncx

import "sync"

// Guard protects a value behind an RWMutex.
// Readers receive a copy; T should be a value type or treated as immutable once stored.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Get returns the current value.
func (g *Guard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set replaces the value.
func (g *Guard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Update mutates the value under the write lock.
func (g *Guard[T]) Update(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// Signal is a coalescing, non-blocking notification.
// Any number of Notify calls between two receives collapse into one.
type Signal struct {
	ch chan struct{}
}

// NewSignal creates a Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify marks the signal pending. Never blocks.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the receive side.
func (s *Signal) C() <-chan struct{} { return s.ch }

// Take consumes a pending notification, reporting whether one was pending.
func (s *Signal) Take() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
