package orchestrator

import (
	"context"
	"time"

	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/ocr"
	"github.com/fntranslate/livetranslate/internal/orchestrator/block"
	"github.com/fntranslate/livetranslate/internal/orchestrator/change"
	"github.com/fntranslate/livetranslate/internal/orchestrator/history"
	"github.com/fntranslate/livetranslate/internal/screen"
	"github.com/fntranslate/livetranslate/internal/trace"
	"github.com/fntranslate/livetranslate/internal/translate"
)

// Cycle runs one capture-to-emit iteration. It returns capture errors and ctx cancellation;
// everything downstream of capture degrades per block instead of failing the cycle.
// Tracker and stabilizer changes are committed only when the cycle completes.
func (m *Manager) Cycle(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := trace.StartSpan(ctx, "pipeline.cycle")
	defer span.End()

	if m.resetReq.Take() {
		m.resetLocked(ctx, "requested")
	}

	st := &m.state
	frame, err := m.deps.Capturer.Capture(ctx, m.region)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		span.SetAttr("error", err.Error())
		m.status.Update(func(s *Status) { s.LastError = err.Error() })
		return err
	}
	now := m.now()

	tracked := st.tracker.PlainBlocks()
	rects := block.Rects(tracked)

	// The unmasked frame is kept for the next diff; Diff masks both sides itself.
	prev := st.prev
	st.prev = frame
	diff := change.Diff(prev, frame, rects, m.cfg.MaskPad)
	span.SetAttr("diff", diff)

	if prev != nil || st.classifier.State() == change.Moving {
		state, entered := st.classifier.Observe(diff, now)
		if state == change.Static && m.drifted(frame) {
			st.classifier.ForceMoving()
			state, entered = change.Moving, true
			span.SetAttr("drift", true)
		}
		span.SetAttr("state", state.String())
		m.status.Update(func(s *Status) {
			s.State = state.String()
			s.Diff = diff
		})
		if entered {
			m.resetLocked(ctx, "moving")
			return nil
		}
		if state == change.Moving || !st.classifier.Settled(now) {
			return nil
		}
	}

	masked := screen.Mask(frame, rects, m.cfg.MaskPad)
	words, err := m.deps.OCR.Recognize(ctx, m.regions(ctx, masked))
	if err != nil {
		return err
	}
	candidates := m.grouper.Group(words)

	stab := st.stabilizer.Clone()
	trk := st.tracker.Clone()
	stable := stab.Push(candidates)
	if m.cfg.TrackCarry {
		stable = append(stable, st.tracker.Active()...)
	}
	blocks := trk.Update(stable)

	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
	}
	results, err := m.dispatcher.Translate(ctx, texts)
	if err != nil {
		return err
	}

	overlays := make([]Overlay, len(blocks))
	translated := 0
	for i, b := range blocks {
		overlays[i] = Overlay{
			ID:     b.ID,
			Text:   results[i].Translation,
			Source: b.Text,
			Rect:   b.Rect,
			Origin: results[i].Origin,
		}
		if results[i].Origin != translate.OriginFallback {
			translated++
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st.stabilizer, st.tracker = stab, trk
	if st.anchor.fp.Empty() && len(overlays) > 0 {
		st.anchor = m.newAnchor(frame, overlays)
	}
	span.SetAttr("words", len(words))
	span.SetAttr("blocks", len(blocks))
	span.SetAttr("translated", translated)

	m.record(now, overlays)
	m.emit(ctx, overlays)
	m.status.Update(func(s *Status) {
		s.Cycles++
		s.Tracked = len(blocks)
		s.LastCycle = now
		s.LastError = ""
	})
	return nil
}

// regions turns the masked frame into OCR inputs. Extractor failures yield no regions.
func (m *Manager) regions(ctx context.Context, f *screen.Frame) []ocr.Region {
	if m.cfg.OCRMode == "frame" || m.deps.Extractor == nil {
		return []ocr.Region{{Image: f.Image, Origin: f.Origin}}
	}
	found, err := m.deps.Extractor.Extract(f)
	if err != nil {
		trace.Logger(ctx).Warn("region extraction failed", "error", err)
		return nil
	}
	out := make([]ocr.Region, len(found))
	for i, r := range found {
		out[i] = ocr.Region{Image: r.Crop, Origin: f.Origin.Add(r.Padded.Min)}
	}
	return out
}

// drifted reports whether the screen has moved away from the anchor by more than the drift
// distance, which catches slow scrolling that never crosses the per-cycle threshold.
func (m *Manager) drifted(f *screen.Frame) bool {
	a := m.state.anchor
	if a.fp.Empty() {
		return false
	}
	fp, err := change.NewFingerprint(screen.Mask(f, a.rects, m.cfg.MaskPad))
	if err != nil {
		return false
	}
	return a.fp.Distance(fp) > m.cfg.DriftDistance
}

func (m *Manager) newAnchor(f *screen.Frame, overlays []Overlay) anchor {
	rects := make([]geom.Rect, len(overlays))
	for i, o := range overlays {
		rects[i] = o.Rect
	}
	fp, err := change.NewFingerprint(screen.Mask(f, rects, m.cfg.MaskPad))
	if err != nil {
		return anchor{}
	}
	return anchor{fp: fp, rects: rects}
}

// record adds a history entry whenever a block shows a translation it has not shown before.
func (m *Manager) record(now time.Time, overlays []Overlay) {
	seen := make(map[string]bool, len(overlays))
	for _, o := range overlays {
		seen[o.ID] = true
		if m.state.emitted[o.ID] == o.Text {
			continue
		}
		m.state.emitted[o.ID] = o.Text
		m.history.Add(history.Entry{
			Timestamp:   now,
			ID:          o.ID,
			Source:      o.Source,
			Translation: o.Text,
			Origin:      string(o.Origin),
			Rect:        o.Rect,
		})
	}
	for id := range m.state.emitted {
		if !seen[id] {
			delete(m.state.emitted, id)
		}
	}
}

func (m *Manager) emit(ctx context.Context, overlays []Overlay) {
	m.overlays.Set(overlays)
	if err := m.deps.Renderer.Render(ctx, overlays); err != nil {
		trace.Logger(ctx).Warn("render failed", "error", err, "overlays", len(overlays))
	}
}

func (m *Manager) applyReset(ctx context.Context, reason string) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	m.resetLocked(ctx, reason)
}

// resetLocked drops all tracked state and clears the overlay. A requested reset also waits
// for the screen to settle again, since the user is about to move it.
func (m *Manager) resetLocked(ctx context.Context, reason string) {
	st := &m.state
	st.stabilizer.Reset()
	st.tracker.Reset()
	st.anchor = anchor{}
	clear(st.emitted)
	if reason == "requested" {
		st.classifier.ForceMoving()
	}
	m.status.Update(func(s *Status) {
		s.Resets++
		s.Tracked = 0
		s.State = st.classifier.State().String()
	})
	trace.Logger(ctx).Info("pipeline reset", "reason", reason)
	m.emit(ctx, []Overlay{})
}
