// Package stabilize filters out OCR blocks that do not recur across recent cycles.
package stabilize

import "github.com/fntranslate/livetranslate/internal/orchestrator/block"

// Defaults.
const (
	DefaultHistory   = 5
	DefaultThreshold = 2
	DefaultOverlap   = 0.6
)

// Stabilizer keeps a fixed-size FIFO of the last N cycles' blocks. Not safe for concurrent use;
// it belongs to the pipeline worker.
type Stabilizer struct {
	threshold int
	overlap   float64

	ring  [][]block.Block
	head  int // index of the oldest entry
	count int
}

// New creates a stabilizer over a window of size cycles. A block is stable once it overlaps,
// by more than overlap of the smaller area, with blocks in at least threshold-1 other cycles.
func New(size, threshold int, overlap float64) *Stabilizer {
	if size <= 0 {
		size = DefaultHistory
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	return &Stabilizer{threshold: threshold, overlap: overlap, ring: make([][]block.Block, size)}
}

// Push appends a cycle's blocks, evicting the oldest cycle when the window is full, and
// returns the stable subset of blocks as given (no averaging).
func (s *Stabilizer) Push(blocks []block.Block) []block.Block {
	s.push(blocks)
	return s.Stable()
}

func (s *Stabilizer) push(blocks []block.Block) {
	cp := append([]block.Block(nil), blocks...)
	if s.count < len(s.ring) {
		s.ring[(s.head+s.count)%len(s.ring)] = cp
		s.count++
		return
	}
	s.ring[s.head] = cp
	s.head = (s.head + 1) % len(s.ring)
}

// Stable evaluates the most recent cycle against the rest of the window.
func (s *Stabilizer) Stable() []block.Block {
	if s.count == 0 {
		return nil
	}
	latest := s.at(s.count - 1)
	need := s.threshold - 1

	var out []block.Block
	for _, cand := range latest {
		if s.seenIn(cand, need) {
			out = append(out, cand)
		}
	}
	return out
}

// seenIn reports whether cand overlaps a block in at least need of the older cycles.
func (s *Stabilizer) seenIn(cand block.Block, need int) bool {
	if need <= 0 {
		return true
	}
	hits := 0
	for i := 0; i < s.count-1; i++ {
		for _, b := range s.at(i) {
			if cand.Rect.IntersectionArea(b.Rect) > s.overlap*minArea(cand, b) {
				hits++
				break
			}
		}
		if hits >= need {
			return true
		}
	}
	return false
}

func minArea(a, b block.Block) float64 {
	return min(a.Rect.Area(), b.Rect.Area())
}

// at returns the i-th cycle, 0 being the oldest retained.
func (s *Stabilizer) at(i int) []block.Block {
	return s.ring[(s.head+i)%len(s.ring)]
}

// Len is the number of cycles currently held.
func (s *Stabilizer) Len() int { return s.count }

// Reset drops the whole window.
func (s *Stabilizer) Reset() {
	for i := range s.ring {
		s.ring[i] = nil
	}
	s.head, s.count = 0, 0
}

// Clone returns an independent copy. Block slices are shared since they are never mutated.
func (s *Stabilizer) Clone() *Stabilizer {
	c := *s
	c.ring = append([][]block.Block(nil), s.ring...)
	return &c
}
