// Package track gives stable blocks a persistent identity across cycles.
//
// Each cycle's candidates are deduplicated, greedily matched to existing tracks by a
// blend of IoU and center distance, smoothed toward the new position, and aged out
// after too many consecutive misses. Carried candidates (see Active) hold a block in
// place but never count as a detection: its misses keep rising until eviction.
package track

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/orchestrator/block"
)

// Defaults.
const (
	DefaultAlpha      = 0.4
	DefaultLockFrames = 5
	DefaultLockMove   = 5.0
	DefaultMaxMisses  = 8
	DefaultDedupe     = 0.85
	DefaultCover      = 0.7
	DefaultMaxDist    = 50.0

	iouWeight  = 1.0
	distWeight = 0.5
)

var idSpace = uuid.MustParse("6f1c8a52-3b8e-4c4e-9a57-0d7c2f1b9e10")

// Options tunes the tracker.
type Options struct {
	Alpha      float64 // smoothing factor toward the new rectangle
	LockFrames int     // stable frames after which small moves are ignored
	LockMove   float64 // pixels; moves below this do not nudge a locked block
	MaxMisses  int     // a block missing for more cycles than this is evicted
	Dedupe     float64 // containment at which a candidate duplicates an accepted one
	Cover      float64 // containment at which a missed block is considered replaced
	MaxDist    float64 // center distance beyond which distance adds nothing to the score
}

func (o Options) withDefaults() Options {
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = DefaultAlpha
	}
	if o.LockFrames <= 0 {
		o.LockFrames = DefaultLockFrames
	}
	if o.LockMove <= 0 {
		o.LockMove = DefaultLockMove
	}
	if o.MaxMisses <= 0 {
		o.MaxMisses = DefaultMaxMisses
	}
	if o.Dedupe <= 0 {
		o.Dedupe = DefaultDedupe
	}
	if o.Cover <= 0 {
		o.Cover = DefaultCover
	}
	if o.MaxDist <= 0 {
		o.MaxDist = DefaultMaxDist
	}
	return o
}

// Tracked is a block with cross-cycle identity.
type Tracked struct {
	ID           string
	Text         string
	Rect         geom.Rect
	Misses       int // consecutive cycles without a match
	StableFrames int // consecutive cycles matched
}

// Block returns the plain block view.
func (t Tracked) Block() block.Block { return block.Block{Text: t.Text, Rect: t.Rect} }

// Tracker owns the tracked list. Not safe for concurrent use; it belongs to the pipeline worker.
type Tracker struct {
	opts   Options
	blocks []Tracked
	seq    uint64
}

// New creates a tracker.
func New(opts Options) *Tracker {
	return &Tracker{opts: opts.withDefaults()}
}

type pair struct {
	cand, track int
	score       float64
}

// Update folds one cycle's candidates in and returns the full tracked list.
func (t *Tracker) Update(candidates []block.Block) []Tracked {
	accepted := t.dedupe(candidates)

	// Score every candidate against every track, then assign greedily, best first.
	var pairs []pair
	for ci, c := range accepted {
		for ti, tb := range t.blocks {
			if s := t.score(c.Rect, tb.Rect); s > 0 {
				pairs = append(pairs, pair{ci, ti, s})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	candTaken := make([]bool, len(accepted))
	trackTaken := make([]bool, len(t.blocks))
	next := make([]Tracked, 0, len(accepted)+len(t.blocks))
	for _, p := range pairs {
		if candTaken[p.cand] || trackTaken[p.track] {
			continue
		}
		candTaken[p.cand], trackTaken[p.track] = true, true
		c := accepted[p.cand]
		if c.Carried {
			if tb, ok := t.hold(t.blocks[p.track]); ok {
				next = append(next, tb)
			}
			continue
		}
		next = append(next, t.follow(t.blocks[p.track], c))
	}

	for ci, c := range accepted {
		if !candTaken[ci] && !c.Carried {
			next = append(next, t.create(c))
		}
	}

	for ti, tb := range t.blocks {
		if trackTaken[ti] {
			continue
		}
		tb.Misses++
		if tb.Misses > t.opts.MaxMisses || t.covered(tb.Rect, accepted) {
			continue
		}
		tb.StableFrames = max(tb.StableFrames-1, 0)
		next = append(next, tb)
	}

	sort.SliceStable(next, func(i, j int) bool {
		if next[i].Rect.Y != next[j].Rect.Y {
			return next[i].Rect.Y < next[j].Rect.Y
		}
		return next[i].Rect.X < next[j].Rect.X
	})
	t.blocks = next
	return t.Blocks()
}

// dedupe drops invalid candidates and those mostly inside an already accepted one.
// Fresh detections are considered before carried ones, larger before smaller; ties keep input order.
func (t *Tracker) dedupe(candidates []block.Block) []block.Block {
	order := make([]block.Block, 0, len(candidates))
	for _, c := range candidates {
		if c.Rect.Valid() {
			order = append(order, c)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Carried != order[j].Carried {
			return !order[i].Carried
		}
		return order[i].Rect.Area() > order[j].Rect.Area()
	})

	accepted := make([]block.Block, 0, len(order))
	for _, c := range order {
		dup := false
		for _, a := range accepted {
			if c.Rect.ContainedIn(a.Rect) >= t.opts.Dedupe {
				dup = true
				break
			}
		}
		if !dup {
			accepted = append(accepted, c)
		}
	}
	return accepted
}

func (t *Tracker) score(c, tr geom.Rect) float64 {
	s := iouWeight * c.IoU(tr)
	if d := c.CenterDistance(tr); d < t.opts.MaxDist {
		s += distWeight * (1 - d/t.opts.MaxDist)
	}
	return s
}

func (t *Tracker) follow(tb Tracked, c block.Block) Tracked {
	tb.StableFrames++
	tb.Misses = 0
	tb.Text = c.Text
	locked := tb.StableFrames > t.opts.LockFrames && c.Rect.MaxEdgeShift(tb.Rect) < t.opts.LockMove
	if !locked {
		tb.Rect = tb.Rect.Lerp(c.Rect, t.opts.Alpha)
	}
	return tb
}

// hold keeps a block matched only by its own carried copy: position and stable frames stay,
// misses still count. The second result is false once the block passes the miss ceiling.
func (t *Tracker) hold(tb Tracked) (Tracked, bool) {
	tb.Misses++
	return tb, tb.Misses <= t.opts.MaxMisses
}

func (t *Tracker) create(c block.Block) Tracked {
	t.seq++
	key := fmt.Sprintf("%d|%s|%.0f,%.0f", t.seq, c.Text, c.Rect.X, c.Rect.Y)
	return Tracked{
		ID:   uuid.NewSHA1(idSpace, []byte(key)).String(),
		Text: c.Text,
		Rect: c.Rect,
	}
}

// covered reports whether a fresh detection has replaced r. Carried copies never do.
func (t *Tracker) covered(r geom.Rect, accepted []block.Block) bool {
	for _, a := range accepted {
		if !a.Carried && r.ContainedIn(a.Rect) >= t.opts.Cover {
			return true
		}
	}
	return false
}

// Blocks returns a copy of the tracked list.
func (t *Tracker) Blocks() []Tracked {
	return append([]Tracked(nil), t.blocks...)
}

// PlainBlocks returns the tracked list as plain blocks.
func (t *Tracker) PlainBlocks() []block.Block {
	out := make([]block.Block, len(t.blocks))
	for i, tb := range t.blocks {
		out[i] = tb.Block()
	}
	return out
}

// Active returns the blocks still below the miss ceiling, marked as carried, for feeding
// back as candidates while their text is masked out of the OCR input.
func (t *Tracker) Active() []block.Block {
	out := make([]block.Block, 0, len(t.blocks))
	for _, tb := range t.blocks {
		if tb.Misses < t.opts.MaxMisses {
			b := tb.Block()
			b.Carried = true
			out = append(out, b)
		}
	}
	return out
}

// Len is the number of tracked blocks.
func (t *Tracker) Len() int { return len(t.blocks) }

// Reset forgets every tracked block.
func (t *Tracker) Reset() { t.blocks = nil }

// Clone returns an independent copy.
func (t *Tracker) Clone() *Tracker {
	c := *t
	c.blocks = t.Blocks()
	return &c
}
