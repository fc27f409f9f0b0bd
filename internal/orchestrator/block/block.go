// Package block defines the unit of text that flows between the grouping, stabilizing and tracking stages.
package block

import "github.com/fntranslate/livetranslate/internal/geom"

// Block is a grouped, bounded piece of recognized text for one cycle.
// Text may hold newlines when lines were merged into a paragraph.
type Block struct {
	Text string    `json:"text"`
	Rect geom.Rect `json:"rect"`
	// Carried marks a tracked block fed back as a candidate rather than a fresh detection.
	Carried bool `json:"-"`
}

// Rects returns the rectangles of bs.
func Rects(bs []Block) []geom.Rect {
	out := make([]geom.Rect, len(bs))
	for i, b := range bs {
		out[i] = b.Rect
	}
	return out
}
