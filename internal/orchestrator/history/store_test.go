package history

import (
	"testing"
	"time"

	"github.com/fntranslate/livetranslate/internal/geom"
)

func TestStoreAdd(t *testing.T) {
	s := NewStore(30, 10)
	s.Add(Entry{ID: "a", Source: "Hello", Translation: "你好", Rect: geom.R(1, 2, 3, 4)})

	entries := s.Recent(0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Source != "Hello" || entries[0].Translation != "你好" || entries[0].Timestamp.IsZero() {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestStoreMaxSize(t *testing.T) {
	s := NewStore(5, 10)
	for i := 0; i < 10; i++ {
		s.Add(Entry{Source: string(rune('a' + i))})
	}
	entries := s.Recent(0)
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[0].Source != "f" || entries[4].Source != "j" {
		t.Errorf("wrong entries kept: first %q last %q", entries[0].Source, entries[4].Source)
	}
}

func TestRecentLimit(t *testing.T) {
	s := NewStore(10, 10)
	for i := 0; i < 4; i++ {
		s.Add(Entry{Source: string(rune('a' + i))})
	}
	got := s.Recent(2)
	if len(got) != 2 || got[0].Source != "c" || got[1].Source != "d" {
		t.Errorf("Recent(2) = %+v", got)
	}
}

func TestSince(t *testing.T) {
	s := NewStore(10, 10)
	old := time.Now().Add(-time.Hour)
	s.Add(Entry{Source: "old", Timestamp: old})
	s.Add(Entry{Source: "new"})

	got := s.Since(time.Now().Add(-time.Minute))
	if len(got) != 1 || got[0].Source != "new" {
		t.Errorf("Since = %+v", got)
	}
}

func TestEvents(t *testing.T) {
	s := NewStore(30, 10)
	go s.Add(Entry{Source: "test"})

	select {
	case e := <-s.Events():
		if e.Source != "test" {
			t.Errorf("expected 'test', got %q", e.Source)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestEmitNonBlocking(t *testing.T) {
	s := NewStore(30, 1)
	s.Add(Entry{Source: "1"})

	done := make(chan struct{})
	go func() {
		s.Add(Entry{Source: "2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Add blocked on a full event buffer")
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}
