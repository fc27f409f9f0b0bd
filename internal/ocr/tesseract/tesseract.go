// Package tesseract is the Tesseract-backed OCR engine.
package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/ocr"
)

// Engine recognizes words with Tesseract. A fresh client is created per call since
// gosseract clients are not safe for concurrent use.
type Engine struct {
	psm gosseract.PageSegMode
}

// New creates an engine that treats each image as a single uniform block of text.
func New() *Engine {
	return &Engine{psm: gosseract.PSM_SINGLE_BLOCK}
}

// Recognize implements ocr.Engine. Tesseract cannot be interrupted, so on cancellation the
// call returns early and the worker finishes in the background.
func (e *Engine) Recognize(ctx context.Context, img image.Image, lang string) ([]ocr.Word, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.InvalidArgument, "encode region")
	}

	type result struct {
		words []ocr.Word
		err   error
	}
	done := make(chan result, 1)
	go func() {
		words, err := e.recognize(buf.Bytes(), lang)
		done <- result{words, err}
	}()

	select {
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), apperrors.Timeout, "tesseract")
	case r := <-done:
		return r.words, r.err
	}
}

func (e *Engine) recognize(data []byte, lang string) ([]ocr.Word, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(lang); err != nil {
		return nil, apperrors.Wrap(err, apperrors.OCRFailed, "set language")
	}
	if err := client.SetPageSegMode(e.psm); err != nil {
		return nil, apperrors.Wrap(err, apperrors.OCRFailed, "set page seg mode")
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, apperrors.Wrap(err, apperrors.OCRFailed, "set image")
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.OCRFailed, "bounding boxes")
	}
	return toWords(boxes), nil
}

func toWords(boxes []gosseract.BoundingBox) []ocr.Word {
	words := make([]ocr.Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, ocr.Word{
			Text:       b.Word,
			Rect:       geom.FromImage(b.Box),
			Confidence: b.Confidence,
			Line:       ocr.LineID{Block: b.BlockNum, Paragraph: b.ParNum, Line: b.LineNum},
			HasLine:    true,
		})
	}
	return words
}
