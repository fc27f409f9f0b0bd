package screen

import (
	"context"
	"image"

	"github.com/kbinani/screenshot"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
)

// ScreenshotCapturer captures in-process through the OS display APIs.
type ScreenshotCapturer struct {
	monitor int
}

// NewScreenshotCapturer validates the monitor index up front; a bad index is an InvalidArgument error.
func NewScreenshotCapturer(monitor int) (*ScreenshotCapturer, error) {
	if n := screenshot.NumActiveDisplays(); monitor < 0 || monitor >= n {
		return nil, apperrors.Newf(apperrors.InvalidArgument, "monitor %d out of range (%d active)", monitor, n)
	}
	return &ScreenshotCapturer{monitor: monitor}, nil
}

// Capture grabs region, or the whole monitor when region is empty. Region is in screen coordinates.
func (c *ScreenshotCapturer) Capture(ctx context.Context, region image.Rectangle) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.monitor >= screenshot.NumActiveDisplays() {
		return nil, apperrors.Newf(apperrors.InvalidArgument, "monitor %d disappeared", c.monitor)
	}
	bounds := screenshot.GetDisplayBounds(c.monitor)
	if !region.Empty() {
		bounds = region.Intersect(bounds)
		if bounds.Empty() {
			return nil, apperrors.Newf(apperrors.InvalidArgument, "region %v outside monitor %d", region, c.monitor)
		}
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "capture rect").
			WithMetadata("bounds", bounds.String())
	}
	return &Frame{Image: rebase(img), Origin: bounds.Min}, nil
}

// Close is a no-op; the display APIs hold no handles between captures.
func (c *ScreenshotCapturer) Close() error { return nil }

// rebase shifts an RGBA so its bounds start at (0,0) without copying pixels.
func rebase(img *image.RGBA) *image.RGBA {
	if img.Rect.Min == (image.Point{}) {
		return img
	}
	return &image.RGBA{Pix: img.Pix, Stride: img.Stride, Rect: image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy())}
}
