// Package ocr turns images into validated, screen-space word detections.
// The engine behind it is a black box; this package only enforces the
// confidence floor, drops malformed geometry, remaps coordinates and fans
// regions out over a bounded worker pool.
package ocr

import (
	"context"
	"image"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/trace"
)

// Defaults.
const (
	DefaultMinConfidence = 60.0
	DefaultWorkers       = 4
	DefaultTimeout       = 5 * time.Second
)

// LineID is the engine's native grouping of a word, scoped to the region it came from.
type LineID struct {
	Region, Block, Paragraph, Line int
}

// Word is one recognized word.
type Word struct {
	Text       string
	Rect       geom.Rect // engine output: image-relative; after Recognize: screen coordinates
	Confidence float64   // 0..100
	Line       LineID
	HasLine    bool // engine supplied Block/Paragraph/Line numbers
}

// Engine is the external OCR collaborator. Rectangles it returns are relative to img's top-left corner.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, lang string) ([]Word, error)
}

// Region is an image to recognize plus the screen position of its top-left pixel.
type Region struct {
	Image  image.Image
	Origin image.Point
}

// Options tunes the adapter.
type Options struct {
	Language      string
	MinConfidence float64
	Workers       int
	Timeout       time.Duration
}

// Adapter wraps an Engine.
type Adapter struct {
	engine Engine
	opts   Options
}

// NewAdapter creates an adapter.
func NewAdapter(engine Engine, opts Options) *Adapter {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	return &Adapter{engine: engine, opts: opts}
}

// Recognize runs the engine over every region in parallel and returns the surviving words in
// region order. A failing region is logged and contributes nothing; only cancellation of ctx
// is returned as an error.
func (a *Adapter) Recognize(ctx context.Context, regions []Region) ([]Word, error) {
	ctx, span := trace.StartSpan(ctx, "ocr.recognize")
	defer span.End()
	span.SetAttr("regions", len(regions))

	results := make([][]Word, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, r := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.recognizeRegion(gctx, i, r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var words []Word
	for _, rs := range results {
		words = append(words, rs...)
	}
	span.SetAttr("words", len(words))
	return words, nil
}

func (a *Adapter) recognizeRegion(ctx context.Context, idx int, r Region) []Word {
	cctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	raw, err := a.engine.Recognize(cctx, r.Image, a.opts.Language)
	if err != nil {
		if ctx.Err() == nil {
			err = apperrors.Wrapf(err, apperrors.OCRFailed, "region %d", idx)
			trace.Logger(ctx).Warn("ocr region failed", "region", idx, "origin", r.Origin, "error", err)
		}
		return nil
	}
	return a.filter(raw, idx, r.Origin)
}

// filter applies the confidence floor and geometry checks and moves survivors to screen space.
func (a *Adapter) filter(raw []Word, idx int, origin image.Point) []Word {
	out := make([]Word, 0, len(raw))
	for _, w := range raw {
		w.Text = strings.TrimSpace(w.Text)
		if w.Text == "" || w.Confidence < a.opts.MinConfidence || !w.Rect.Valid() {
			continue
		}
		w.Rect = w.Rect.Translate(float64(origin.X), float64(origin.Y))
		w.Line.Region = idx
		out = append(out, w)
	}
	return out
}
