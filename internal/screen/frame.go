// Package screen captures screen frames and prepares masked working copies for text detection.
package screen

import (
	"image"
	"image/draw"

	"github.com/fntranslate/livetranslate/internal/geom"
)

// Frame is a captured bitmap. Image bounds start at (0,0); Origin is the
// screen position of the top-left pixel. Frames are never mutated after capture.
type Frame struct {
	Image  *image.RGBA
	Origin image.Point
}

// NewFrame copies img into an RGBA frame anchored at origin.
func NewFrame(img image.Image, origin image.Point) *Frame {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Frame{Image: rgba, Origin: origin}
}

// Width in pixels.
func (f *Frame) Width() int { return f.Image.Bounds().Dx() }

// Height in pixels.
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

// ScreenBounds is the frame's rectangle in screen coordinates.
func (f *Frame) ScreenBounds() geom.Rect {
	return geom.R(float64(f.Origin.X), float64(f.Origin.Y), float64(f.Width()), float64(f.Height()))
}

// ToLocal converts a screen rectangle into frame pixel space, clipped to the frame.
func (f *Frame) ToLocal(r geom.Rect) image.Rectangle {
	local := r.Translate(-float64(f.Origin.X), -float64(f.Origin.Y)).Image()
	return local.Intersect(f.Image.Bounds())
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Image.Pix))
	copy(pix, f.Image.Pix)
	return &Frame{
		Image:  &image.RGBA{Pix: pix, Stride: f.Image.Stride, Rect: f.Image.Rect},
		Origin: f.Origin,
	}
}

// Mask returns a copy of f with every screen rectangle, inflated by pad, painted black.
// f itself is left untouched. With no rectangles f is returned as is.
func Mask(f *Frame, rects []geom.Rect, pad int) *Frame {
	if f == nil || len(rects) == 0 {
		return f
	}
	out := f.Clone()
	for _, r := range rects {
		local := out.ToLocal(r.Inflate(float64(pad)))
		if local.Empty() {
			continue
		}
		draw.Draw(out.Image, local, image.Black, image.Point{}, draw.Src)
	}
	return out
}
