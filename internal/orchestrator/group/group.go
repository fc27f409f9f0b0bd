// Package group merges word detections into lines and lines into paragraphs.
package group

import (
	"math"
	"sort"
	"strings"

	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/ocr"
	"github.com/fntranslate/livetranslate/internal/orchestrator/block"
)

// Defaults. Every threshold is a multiple of line height so small and large text behave alike.
const (
	DefaultCenterFrac   = 0.5 // max vertical center offset between words of a line
	DefaultWordGap      = 2.5 // max horizontal gap between neighbouring words
	DefaultParagraphGap = 1.0 // max vertical gap between consecutive lines of a paragraph
	DefaultOverlapFrac  = 0.3 // min horizontal overlap, as a fraction of the narrower line
	DefaultAlignFrac    = 1.0 // max left-edge difference for lines to count as one column
	maxLineOverlapFrac  = 0.5 // lines overlapping vertically more than this are not stacked
)

// Options tunes the grouper.
type Options struct {
	CenterFrac   float64
	WordGap      float64
	ParagraphGap float64
	OverlapFrac  float64
	AlignFrac    float64
}

func (o Options) withDefaults() Options {
	if o.CenterFrac <= 0 {
		o.CenterFrac = DefaultCenterFrac
	}
	if o.WordGap <= 0 {
		o.WordGap = DefaultWordGap
	}
	if o.ParagraphGap <= 0 {
		o.ParagraphGap = DefaultParagraphGap
	}
	if o.OverlapFrac <= 0 {
		o.OverlapFrac = DefaultOverlapFrac
	}
	if o.AlignFrac <= 0 {
		o.AlignFrac = DefaultAlignFrac
	}
	return o
}

// Grouper is stateless; one value can serve every cycle.
type Grouper struct {
	opts Options
}

// New creates a grouper.
func New(opts Options) *Grouper {
	return &Grouper{opts: opts.withDefaults()}
}

// Group runs both phases: words into lines, then lines into paragraphs.
func (g *Grouper) Group(words []ocr.Word) []block.Block {
	return g.Paragraphs(g.Lines(words))
}

type line struct {
	words []ocr.Word
	rect  geom.Rect
}

func (l *line) add(w ocr.Word) {
	l.words = append(l.words, w)
	l.rect = l.rect.Union(w.Rect)
}

func (l *line) block() block.Block {
	sort.SliceStable(l.words, func(i, j int) bool { return l.words[i].Rect.X < l.words[j].Rect.X })
	parts := make([]string, len(l.words))
	for i, w := range l.words {
		parts[i] = w.Text
	}
	return block.Block{Text: strings.Join(parts, " "), Rect: l.rect}
}

// Lines groups words into one block per line. Words carrying the engine's line id are grouped
// by that id; the rest are grouped geometrically.
func (g *Grouper) Lines(words []ocr.Word) []block.Block {
	if len(words) == 0 {
		return nil
	}

	var lines []*line
	native := make(map[ocr.LineID]*line)
	var loose []ocr.Word
	for _, w := range words {
		if !w.HasLine {
			loose = append(loose, w)
			continue
		}
		l, ok := native[w.Line]
		if !ok {
			l = &line{}
			native[w.Line] = l
			lines = append(lines, l)
		}
		l.add(w)
	}
	lines = append(lines, g.geometricLines(loose)...)

	out := make([]block.Block, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.block())
	}
	sortBlocks(out)
	return out
}

// geometricLines bands words by vertical center, then splits each band where the
// horizontal gap between neighbours grows too large.
func (g *Grouper) geometricLines(words []ocr.Word) []*line {
	if len(words) == 0 {
		return nil
	}
	sort.SliceStable(words, func(i, j int) bool {
		_, yi := words[i].Rect.Center()
		_, yj := words[j].Rect.Center()
		if yi != yj {
			return yi < yj
		}
		return words[i].Rect.X < words[j].Rect.X
	})

	var bands [][]ocr.Word
	var bandY, bandH float64
	for _, w := range words {
		_, cy := w.Rect.Center()
		n := len(bands)
		if n > 0 && math.Abs(cy-bandY) < g.opts.CenterFrac*(bandH+w.Rect.H)/2 {
			k := float64(len(bands[n-1]))
			bandY = (bandY*k + cy) / (k + 1)
			bandH = (bandH*k + w.Rect.H) / (k + 1)
			bands[n-1] = append(bands[n-1], w)
			continue
		}
		bands = append(bands, []ocr.Word{w})
		bandY, bandH = cy, w.Rect.H
	}

	var lines []*line
	for _, band := range bands {
		sort.SliceStable(band, func(i, j int) bool { return band[i].Rect.X < band[j].Rect.X })
		cur := &line{}
		for _, w := range band {
			if len(cur.words) > 0 {
				prev := cur.words[len(cur.words)-1]
				h := (prev.Rect.H + w.Rect.H) / 2
				if w.Rect.X-cur.rect.Right() > g.opts.WordGap*h {
					lines = append(lines, cur)
					cur = &line{}
				}
			}
			cur.add(w)
		}
		lines = append(lines, cur)
	}
	return lines
}

type paragraph struct {
	lines []block.Block
	rect  geom.Rect
}

// Paragraphs merges vertically consecutive lines of the same column. Text is newline-joined.
func (g *Grouper) Paragraphs(lines []block.Block) []block.Block {
	if len(lines) == 0 {
		return nil
	}
	sorted := append([]block.Block(nil), lines...)
	sortBlocks(sorted)

	var paras []*paragraph
	for _, ln := range sorted {
		if p := g.paragraphFor(paras, ln); p != nil {
			p.lines = append(p.lines, ln)
			p.rect = p.rect.Union(ln.Rect)
			continue
		}
		paras = append(paras, &paragraph{lines: []block.Block{ln}, rect: ln.Rect})
	}

	out := make([]block.Block, 0, len(paras))
	for _, p := range paras {
		texts := make([]string, len(p.lines))
		for i, l := range p.lines {
			texts[i] = l.Text
		}
		out = append(out, block.Block{Text: strings.Join(texts, "\n"), Rect: p.rect})
	}
	sortBlocks(out)
	return out
}

// paragraphFor returns the paragraph whose last line ln directly continues, or nil.
func (g *Grouper) paragraphFor(paras []*paragraph, ln block.Block) *paragraph {
	var best *paragraph
	bestGap := math.Inf(1)
	for _, p := range paras {
		last := p.lines[len(p.lines)-1].Rect
		h := math.Max(last.H, ln.Rect.H)
		gap := ln.Rect.Y - last.Bottom()
		if gap > g.opts.ParagraphGap*h || gap < -maxLineOverlapFrac*h {
			continue
		}
		if !g.sameColumn(last, ln.Rect, h) {
			continue
		}
		if gap < bestGap {
			best, bestGap = p, gap
		}
	}
	return best
}

func (g *Grouper) sameColumn(a, b geom.Rect, h float64) bool {
	narrow := math.Min(a.W, b.W)
	if narrow > 0 && a.HorizontalOverlap(b) >= g.opts.OverlapFrac*narrow {
		return true
	}
	return math.Abs(a.X-b.X) <= g.opts.AlignFrac*h
}

func sortBlocks(bs []block.Block) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Rect.Y != bs[j].Rect.Y {
			return bs[i].Rect.Y < bs[j].Rect.Y
		}
		return bs[i].Rect.X < bs[j].Rect.X
	})
}
