// Package cache persists translations keyed by normalized text and language pair.
package cache

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key identifies a translation. Text is normalized so trivial case and
// whitespace differences between OCR passes hit the same entry.
type Key struct {
	Text   string
	Source string
	Target string
}

// NewKey normalizes text and builds a key.
func NewKey(text, source, target string) Key {
	return Key{Text: Normalize(text), Source: source, Target: target}
}

// Normalize trims, lowercases and collapses all whitespace runs (including newlines) to one space.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Hash is a stable 64-bit digest of the key, hex encoded.
func (k Key) Hash() string {
	d := xxhash.New()
	_, _ = d.WriteString(k.Source)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(k.Target)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(k.Text)
	return strconv.FormatUint(d.Sum64(), 16)
}

// Entry is one cached translation. SourceText keeps the text as first seen, for display.
type Entry struct {
	Key
	SourceText  string
	Translation string
	CreatedAt   time.Time
}
