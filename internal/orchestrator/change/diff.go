// Package change decides whether the screen is static or moving between capture cycles.
package change

import (
	"image"
	"image/color"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"

	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/screen"
)

// Diff returns the mean squared difference of the two frames' grayscale thumbnails.
// Known text rectangles are blacked out on both sides first so the overlay drawn over
// them cannot register as motion. A nil prev, or frames of different size, yield MaxDiff.
func Diff(prev, cur *screen.Frame, ignore []geom.Rect, pad int) float64 {
	if prev == nil || cur == nil {
		return MaxDiff
	}
	if prev.Width() != cur.Width() || prev.Height() != cur.Height() || prev.Origin != cur.Origin {
		return MaxDiff
	}
	a := thumbnail(screen.Mask(prev, ignore, pad).Image)
	b := thumbnail(screen.Mask(cur, ignore, pad).Image)

	var sum float64
	for i := range a.Pix {
		d := float64(a.Pix[i]) - float64(b.Pix[i])
		sum += d * d
	}
	return sum / float64(len(a.Pix))
}

// thumbnail downsamples with nearest neighbour, then converts to 8-bit gray.
func thumbnail(img image.Image) *image.Gray {
	small := resize.Resize(ThumbSize, ThumbSize, img, resize.NearestNeighbor)
	gray := image.NewGray(image.Rect(0, 0, ThumbSize, ThumbSize))
	b := small.Bounds()
	for y := 0; y < ThumbSize; y++ {
		for x := 0; x < ThumbSize; x++ {
			gray.SetGray(x, y, color.GrayModel.Convert(small.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return gray
}

// Fingerprint is a perceptual hash of a frame, used to notice slow drift (e.g. smooth scrolling)
// that never crosses the per-cycle threshold.
type Fingerprint struct {
	hash *goimagehash.ImageHash
}

// NewFingerprint hashes f. The error is non-nil only for degenerate images.
func NewFingerprint(f *screen.Frame) (Fingerprint, error) {
	h, err := goimagehash.PerceptionHash(f.Image)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{hash: h}, nil
}

// Empty reports whether no hash has been recorded.
func (fp Fingerprint) Empty() bool { return fp.hash == nil }

// Distance is the Hamming distance between two fingerprints; -1 when either is empty.
func (fp Fingerprint) Distance(o Fingerprint) int {
	if fp.hash == nil || o.hash == nil {
		return -1
	}
	d, err := fp.hash.Distance(o.hash)
	if err != nil {
		return -1
	}
	return d
}
