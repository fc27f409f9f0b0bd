package track

import (
	"math"
	"testing"

	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/orchestrator/block"
)

func blk(text string, x, y, w, h float64) block.Block {
	return block.Block{Text: text, Rect: geom.R(x, y, w, h)}
}

func TestCreateThenSmooth(t *testing.T) {
	tr := New(Options{})
	first := tr.Update([]block.Block{blk("Hello World", 10, 10, 100, 20)})
	if len(first) != 1 || first[0].StableFrames != 0 || first[0].Misses != 0 {
		t.Fatalf("first = %+v", first)
	}
	id := first[0].ID

	second := tr.Update([]block.Block{blk("Hello World", 15, 10, 100, 20)})
	if len(second) != 1 {
		t.Fatalf("second = %+v", second)
	}
	if second[0].ID != id {
		t.Error("matched block should keep its identity")
	}
	if math.Abs(second[0].Rect.X-12) > 1e-9 {
		t.Errorf("smoothed X = %v, want 12 (10*0.6 + 15*0.4)", second[0].Rect.X)
	}
	if second[0].StableFrames != 1 {
		t.Errorf("StableFrames = %d, want 1", second[0].StableFrames)
	}
}

func TestLockStopsJitter(t *testing.T) {
	tr := New(Options{LockFrames: 5})
	jitter := []float64{0, 3, -2, 4, -3, 2, -4, 3, -1, 4, -3}

	var rects []geom.Rect
	for _, j := range jitter {
		got := tr.Update([]block.Block{blk("Status: ready", 100+j, 50+j/2, 120, 18)})
		if len(got) != 1 {
			t.Fatalf("tracked = %d, want 1", len(got))
		}
		rects = append(rects, got[0].Rect)
	}
	// Cycle 0 creates; cycles 1..5 smooth; from cycle 6 stable frames exceed 5 and the rect freezes.
	for i := 7; i < len(rects); i++ {
		if rects[i] != rects[6] {
			t.Errorf("cycle %d rect %+v moved from locked %+v", i, rects[i], rects[6])
		}
	}
	if rects[1] == rects[0] {
		t.Error("rect should still move before the lock")
	}
}

func TestLockReleasedByLargeMove(t *testing.T) {
	tr := New(Options{LockFrames: 2})
	for i := 0; i < 5; i++ {
		tr.Update([]block.Block{blk("x", 100, 100, 80, 20)})
	}
	got := tr.Update([]block.Block{blk("x", 120, 100, 80, 20)})
	if got[0].Rect.X == 100 {
		t.Error("a move beyond the lock tolerance should update the rect")
	}
}

func TestNewRectCreatesNewBlock(t *testing.T) {
	tr := New(Options{})
	first := tr.Update([]block.Block{blk("Title", 10, 10, 100, 20)})
	got := tr.Update([]block.Block{blk("Footer", 500, 700, 100, 20)})

	if len(got) != 2 {
		t.Fatalf("tracked = %d, want 2", len(got))
	}
	var title, footer Tracked
	for _, g := range got {
		switch g.Text {
		case "Title":
			title = g
		case "Footer":
			footer = g
		}
	}
	if title.ID != first[0].ID || title.Rect != first[0].Rect {
		t.Errorf("existing block mutated: %+v", title)
	}
	if title.Misses != 1 {
		t.Errorf("unmatched block misses = %d, want 1", title.Misses)
	}
	if footer.ID == "" || footer.ID == title.ID || footer.StableFrames != 0 {
		t.Errorf("footer = %+v", footer)
	}
}

func TestEvictionAfterMissCeiling(t *testing.T) {
	tr := New(Options{MaxMisses: 8})
	tr.Update([]block.Block{blk("gone", 0, 0, 50, 20)})

	for i := 1; i <= 8; i++ {
		if got := tr.Update(nil); len(got) != 1 || got[0].Misses != i {
			t.Fatalf("miss %d: tracked = %+v", i, got)
		}
	}
	if got := tr.Update(nil); len(got) != 0 {
		t.Errorf("block should be evicted after exceeding the miss ceiling, got %+v", got)
	}
}

func TestMissDecrementsStableFrames(t *testing.T) {
	tr := New(Options{})
	b := blk("x", 0, 0, 50, 20)
	tr.Update([]block.Block{b})
	tr.Update([]block.Block{b})
	tr.Update([]block.Block{b})
	got := tr.Update(nil)
	if got[0].StableFrames != 1 {
		t.Errorf("StableFrames = %d, want 1", got[0].StableFrames)
	}
	tr.Update(nil)
	got = tr.Update(nil)
	if got[0].StableFrames != 0 {
		t.Errorf("StableFrames floor = %d, want 0", got[0].StableFrames)
	}
}

func TestDedupeContainedCandidates(t *testing.T) {
	tr := New(Options{})
	got := tr.Update([]block.Block{
		blk("Hello", 12, 12, 40, 16),
		blk("Hello World", 10, 10, 100, 20),
	})
	if len(got) != 1 || got[0].Text != "Hello World" {
		t.Errorf("tracked = %+v, want the enclosing block only", got)
	}
}

func TestNoDoubleClaim(t *testing.T) {
	tr := New(Options{})
	tr.Update([]block.Block{blk("line", 0, 0, 100, 20)})
	got := tr.Update([]block.Block{
		blk("line", 2, 0, 100, 20),
		blk("line", 0, 25, 100, 20),
	})
	if len(got) != 2 {
		t.Fatalf("tracked = %d, want 2", len(got))
	}
	matched := 0
	for _, g := range got {
		if g.StableFrames == 1 {
			matched++
		}
	}
	if matched != 1 {
		t.Errorf("matched = %d, want exactly one claim", matched)
	}
}

func TestCoveredMissDropped(t *testing.T) {
	tr := New(Options{})
	tr.Update([]block.Block{blk("left", 0, 0, 100, 20), blk("right", 150, 0, 100, 20)})
	got := tr.Update([]block.Block{blk("left right", 0, 0, 250, 20)})
	if len(got) != 1 {
		t.Errorf("tracked = %+v, want the merged block only", got)
	}
}

func TestInvalidCandidatesIgnored(t *testing.T) {
	tr := New(Options{})
	if got := tr.Update([]block.Block{blk("bad", 0, 0, 0, 10), blk("neg", 0, 0, -5, 10)}); len(got) != 0 {
		t.Errorf("tracked = %+v, want none", got)
	}
}

func TestCloneAndReset(t *testing.T) {
	tr := New(Options{})
	tr.Update([]block.Block{blk("keep", 0, 0, 50, 20)})

	c := tr.Clone()
	c.Update([]block.Block{blk("other", 300, 300, 50, 20)})
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("clone Len after Reset = %d", c.Len())
	}
	if tr.Len() != 1 || tr.PlainBlocks()[0].Text != "keep" {
		t.Errorf("original changed: %+v", tr.Blocks())
	}
}

func TestCarriedCopyStillAges(t *testing.T) {
	tr := New(Options{MaxMisses: 8})
	tr.Update([]block.Block{blk("masked", 10, 10, 100, 20)})
	tr.Update([]block.Block{blk("masked", 10, 10, 100, 20)})

	for i := 1; i <= 50; i++ {
		got := tr.Update(tr.Active())
		if i <= 8 {
			if len(got) != 1 || got[0].Misses != i || got[0].StableFrames != 1 {
				t.Fatalf("cycle %d: tracked = %+v", i, got)
			}
			continue
		}
		if len(got) != 0 {
			t.Fatalf("cycle %d: block fed only its own copy should be evicted, got %+v", i, got)
		}
	}
}

func TestActiveSkipsBlocksAtCeiling(t *testing.T) {
	tr := New(Options{MaxMisses: 2})
	tr.Update([]block.Block{blk("a", 0, 0, 50, 20)})
	tr.Update(nil)
	if got := tr.Active(); len(got) != 1 || !got[0].Carried {
		t.Fatalf("active = %+v", got)
	}
	tr.Update(nil)
	if got := tr.Active(); len(got) != 0 {
		t.Errorf("block at the miss ceiling should not be carried, got %+v", got)
	}
}

func TestFreshDetectionBeatsCarriedCopy(t *testing.T) {
	tr := New(Options{})
	first := tr.Update([]block.Block{blk("old", 10, 10, 100, 20)})
	tr.Update(nil)

	// The carried copy is larger, but the fresh detection inside it must win dedupe.
	carried := tr.Active()
	carried[0].Rect = geom.R(5, 5, 110, 30)
	got := tr.Update(append(carried, blk("new", 10, 10, 100, 20)))
	if len(got) != 1 {
		t.Fatalf("tracked = %+v", got)
	}
	if got[0].ID != first[0].ID || got[0].Text != "new" || got[0].Misses != 0 {
		t.Errorf("fresh detection should refresh the track, got %+v", got[0])
	}
}

func TestCarriedCopyDoesNotCreate(t *testing.T) {
	tr := New(Options{})
	got := tr.Update([]block.Block{{Text: "ghost", Rect: geom.R(0, 0, 50, 20), Carried: true}})
	if len(got) != 0 {
		t.Errorf("carried candidate created a track: %+v", got)
	}
}
