package stabilize

import (
	"testing"

	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/orchestrator/block"
)

func blk(text string, x, y, w, h float64) block.Block {
	return block.Block{Text: text, Rect: geom.R(x, y, w, h)}
}

func TestFirstCycleNeverStable(t *testing.T) {
	s := New(5, 2, 0.6)
	if got := s.Push([]block.Block{blk("Hello World", 10, 10, 100, 20)}); len(got) != 0 {
		t.Errorf("first cycle stable = %+v, want none", got)
	}
}

func TestStableAfterRecurring(t *testing.T) {
	s := New(5, 2, 0.6)
	s.Push([]block.Block{blk("Hello World", 10, 10, 100, 20)})
	got := s.Push([]block.Block{blk("Hello W0rld", 12, 11, 100, 20)})
	if len(got) != 1 {
		t.Fatalf("stable = %d, want 1", len(got))
	}
	if got[0].Text != "Hello W0rld" || got[0].Rect != geom.R(12, 11, 100, 20) {
		t.Errorf("stable block should be the current candidate, got %+v", got[0])
	}
}

func TestOneOffBlockRejected(t *testing.T) {
	s := New(5, 2, 0.6)
	s.Push([]block.Block{blk("menu", 10, 10, 50, 20)})
	got := s.Push([]block.Block{blk("menu", 10, 10, 50, 20), blk("flicker", 300, 300, 40, 10)})
	if len(got) != 1 || got[0].Text != "menu" {
		t.Errorf("stable = %+v, want only menu", got)
	}
}

func TestOverlapThreshold(t *testing.T) {
	s := New(5, 2, 0.6)
	s.Push([]block.Block{blk("a", 0, 0, 100, 20)})
	// Half overlap is below 60%.
	if got := s.Push([]block.Block{blk("a", 50, 0, 100, 20)}); len(got) != 0 {
		t.Errorf("50%% overlap accepted: %+v", got)
	}
}

func TestHigherThresholdNeedsMoreFrames(t *testing.T) {
	s := New(5, 3, 0.6)
	b := blk("x", 0, 0, 100, 20)
	s.Push([]block.Block{b})
	if got := s.Push([]block.Block{b}); len(got) != 0 {
		t.Error("threshold 3 should not be met after two cycles")
	}
	if got := s.Push([]block.Block{b}); len(got) != 1 {
		t.Error("threshold 3 should be met after three cycles")
	}
}

func TestMultipleMatchesInOneFrameCountOnce(t *testing.T) {
	s := New(5, 3, 0.6)
	s.Push([]block.Block{blk("a", 0, 0, 100, 20), blk("a", 1, 0, 100, 20)})
	if got := s.Push([]block.Block{blk("a", 0, 0, 100, 20)}); len(got) != 0 {
		t.Errorf("duplicates within one cycle should count once, got %+v", got)
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	s := New(3, 2, 0.6)
	s.Push([]block.Block{blk("old", 0, 0, 100, 20)})
	s.Push(nil)
	s.Push(nil)
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	// The cycle holding "old" is evicted by this push.
	if got := s.Push([]block.Block{blk("old", 0, 0, 100, 20)}); len(got) != 0 {
		t.Errorf("evicted cycle still counted: %+v", got)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestReset(t *testing.T) {
	s := New(5, 2, 0.6)
	b := blk("x", 0, 0, 100, 20)
	s.Push([]block.Block{b})
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("Len after Reset = %d", s.Len())
	}
	if got := s.Push([]block.Block{b}); len(got) != 0 {
		t.Error("history should be empty after Reset")
	}
}

func TestCloneIsolated(t *testing.T) {
	s := New(5, 2, 0.6)
	b := blk("x", 0, 0, 100, 20)
	s.Push([]block.Block{b})

	c := s.Clone()
	c.Push([]block.Block{b})
	c.Reset()

	if s.Len() != 1 {
		t.Errorf("original Len = %d, want 1", s.Len())
	}
	if got := s.Push([]block.Block{b}); len(got) != 1 {
		t.Error("original should still hold its first cycle")
	}
}

func TestThresholdOneAcceptsEverything(t *testing.T) {
	s := New(5, 1, 0.6)
	if got := s.Push([]block.Block{blk("now", 0, 0, 10, 10)}); len(got) != 1 {
		t.Errorf("threshold 1 stable = %d, want 1", len(got))
	}
}
