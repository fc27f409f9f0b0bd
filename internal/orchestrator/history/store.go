// Package history keeps the most recent translations shown on screen
package history

import (
	"sync"
	"time"

	"github.com/fntranslate/livetranslate/internal/geom"
)

// Entry is one translation as it was first displayed.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Translation string    `json:"translation"`
	Origin      string    `json:"origin"`
	Rect        geom.Rect `json:"rect"`
}

// Store is a bounded, concurrency-safe ring of entries with a non-blocking event stream.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	maxSize  int
	eventsCh chan Entry
}

// NewStore creates a store.
func NewStore(maxEntries, eventBuffer int) *Store {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Store{
		entries:  make([]Entry, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Entry, eventBuffer),
	}
}

// Add records e and emits it. A zero timestamp is set to now.
func (s *Store) Add(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
	s.mu.Unlock()
	s.emit(e)
}

// Recent returns up to n newest entries, newest last. n <= 0 returns everything held.
func (s *Store) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && n < len(s.entries) {
		start = len(s.entries) - n
	}
	out := make([]Entry, len(s.entries)-start)
	copy(out, s.entries[start:])
	return out
}

// Since returns entries recorded after t.
func (s *Store) Since(t time.Time) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Timestamp.After(t) {
			out = append(out, e)
		}
	}
	return out
}

// Len is the number of entries held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Events returns the channel of newly added entries.
func (s *Store) Events() <-chan Entry {
	return s.eventsCh
}

func (s *Store) emit(e Entry) {
	select {
	case s.eventsCh <- e:
	default:
	}
}
