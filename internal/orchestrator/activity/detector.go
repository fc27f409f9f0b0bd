// Package activity turns user input events into pipeline reset requests
package activity

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultWindow collapses bursts of key repeats or scroll ticks into one reset.
const DefaultWindow = 200 * time.Millisecond

// Event kinds.
const (
	KindKey    = "key"
	KindScroll = "scroll"
)

// Event is one input signal from the overlay client.
type Event struct {
	Kind string `json:"kind"`
	Key  string `json:"key,omitempty"`
}

var navigationKeys = map[string]bool{
	"up":       true,
	"down":     true,
	"pageup":   true,
	"pagedown": true,
	"home":     true,
	"end":      true,
	"space":    true,
}

// Detector debounces activity events
type Detector struct {
	mu      sync.Mutex
	enabled bool
	window  time.Duration
	last    time.Time
	now     func() time.Time
}

// NewDetector creates a detector
func NewDetector(window time.Duration, enabled bool) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Detector{enabled: enabled, window: window, now: time.Now}
}

// Check reports whether ev should reset the pipeline.
// Scrolls always qualify; keys only when they navigate the page.
func (d *Detector) Check(ev Event) bool {
	switch ev.Kind {
	case KindScroll:
	case KindKey:
		if !navigationKeys[NormalizeKey(ev.Key)] {
			return false
		}
	default:
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return false
	}
	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.window {
		return false
	}
	d.last = now
	return true
}

// NormalizeKey maps browser and OS key names onto one vocabulary: "ArrowUp", "Key.up",
// "page_down" and " " become "up", "up", "pagedown" and "space".
func NormalizeKey(k string) string {
	if k == " " {
		return "space"
	}
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.TrimPrefix(k, "key.")
	k = strings.TrimPrefix(k, "arrow")
	k = strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
	return k
}

// SetEnabled enables/disables activity resets
func (d *Detector) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
	slog.Info("activity reset state changed", "enabled", enabled)
}

// IsEnabled returns current enabled state
func (d *Detector) IsEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}
