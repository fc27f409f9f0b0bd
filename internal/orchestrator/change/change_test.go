package change

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/screen"
)

// stripes draws vertical bars of the given width so frames have structure for hashing.
func stripes(w, h, bar int, offset int) *screen.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if ((x+offset)/bar)%2 == 0 {
				v = 255
			}
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return &screen.Frame{Image: img}
}

func TestDiffIdentical(t *testing.T) {
	f := stripes(256, 128, 16, 0)
	if got := Diff(f, f.Clone(), nil, 0); got != 0 {
		t.Errorf("Diff identical = %v, want 0", got)
	}
}

func TestDiffNoPrevious(t *testing.T) {
	if got := Diff(nil, stripes(64, 64, 8, 0), nil, 0); got != MaxDiff {
		t.Errorf("Diff(nil, f) = %v, want MaxDiff", got)
	}
}

func TestDiffSizeMismatch(t *testing.T) {
	if got := Diff(stripes(64, 64, 8, 0), stripes(128, 64, 8, 0), nil, 0); got != MaxDiff {
		t.Errorf("Diff size mismatch = %v, want MaxDiff", got)
	}
}

func TestDiffDetectsChange(t *testing.T) {
	a := stripes(256, 256, 32, 0)
	b := stripes(256, 256, 32, 32)
	if got := Diff(a, b, nil, 0); got < DefaultHigh {
		t.Errorf("Diff inverted stripes = %v, want > %v", got, DefaultHigh)
	}
}

func TestDiffIgnoresMaskedRegion(t *testing.T) {
	a := stripes(256, 256, 32, 0)
	b := a.Clone()
	// Overlay text appears in the top-left quadrant only.
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			b.Image.SetRGBA(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	if got := Diff(a, b, nil, 0); got == 0 {
		t.Fatal("unmasked diff should see the change")
	}
	if got := Diff(a, b, []geom.Rect{geom.R(0, 0, 128, 128)}, 2); got != 0 {
		t.Errorf("masked diff = %v, want 0", got)
	}
}

func TestFingerprintDistance(t *testing.T) {
	a, err := NewFingerprint(stripes(256, 256, 32, 0))
	if err != nil {
		t.Fatal(err)
	}
	same, _ := NewFingerprint(stripes(256, 256, 32, 0))
	shifted, _ := NewFingerprint(stripes(256, 256, 32, 32))

	if d := a.Distance(same); d != 0 {
		t.Errorf("distance to identical = %d, want 0", d)
	}
	if d := a.Distance(shifted); d <= 0 {
		t.Errorf("distance to shifted = %d, want > 0", d)
	}
	if d := a.Distance(Fingerprint{}); d != -1 {
		t.Errorf("distance to empty = %d, want -1", d)
	}
}

func TestClassifierHysteresis(t *testing.T) {
	c := NewClassifier(5, 15, 0)
	now := time.Now()

	steps := []struct {
		diff    float64
		want    State
		entered bool
	}{
		{0, Static, false},
		{10, Static, false}, // between thresholds: hold
		{20, Moving, true},
		{30, Moving, false},
		{10, Moving, false}, // between thresholds: hold
		{2, Static, false},
	}
	for i, s := range steps {
		got, entered := c.Observe(s.diff, now)
		if got != s.want || entered != s.entered {
			t.Errorf("step %d diff %v: (%v, %v), want (%v, %v)", i, s.diff, got, entered, s.want, s.entered)
		}
	}
}

func TestClassifierSettle(t *testing.T) {
	c := NewClassifier(5, 15, time.Second)
	t0 := time.Now()

	if !c.Settled(t0) {
		t.Error("fresh classifier should be settled")
	}
	c.Observe(50, t0)
	if c.Settled(t0) {
		t.Error("moving screen is never settled")
	}
	c.Observe(0, t0.Add(100*time.Millisecond))
	if c.Settled(t0.Add(500 * time.Millisecond)) {
		t.Error("should wait out the settle delay")
	}
	if !c.Settled(t0.Add(1200 * time.Millisecond)) {
		t.Error("should be settled after the delay")
	}
}

func TestStateString(t *testing.T) {
	if Static.String() != "static" || Moving.String() != "moving" {
		t.Errorf("State strings = %q, %q", Static, Moving)
	}
}
