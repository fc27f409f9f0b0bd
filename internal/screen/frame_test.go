package screen

import (
	"image"
	"image/color"
	"testing"

	"github.com/fntranslate/livetranslate/internal/geom"
)

func whiteFrame(w, h int, origin image.Point) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return &Frame{Image: img, Origin: origin}
}

func isBlack(c color.RGBA) bool { return c.R == 0 && c.G == 0 && c.B == 0 }

func TestMaskPaintsCopy(t *testing.T) {
	f := whiteFrame(100, 50, image.Pt(200, 300))
	masked := Mask(f, []geom.Rect{geom.R(210, 310, 20, 10)}, 2)

	if masked == f {
		t.Fatal("Mask should return a copy")
	}
	// screen (210,310) is local (10,10); pad 2 reaches local (8,8).
	if !isBlack(masked.Image.RGBAAt(8, 8)) {
		t.Error("padded corner should be black")
	}
	if !isBlack(masked.Image.RGBAAt(20, 15)) {
		t.Error("interior should be black")
	}
	if isBlack(masked.Image.RGBAAt(7, 7)) {
		t.Error("pixel outside the pad should be untouched")
	}
	if isBlack(f.Image.RGBAAt(20, 15)) {
		t.Error("source frame must not be modified")
	}
}

func TestMaskNoRects(t *testing.T) {
	f := whiteFrame(10, 10, image.Point{})
	if Mask(f, nil, 4) != f {
		t.Error("Mask with no rects should return the frame unchanged")
	}
}

func TestMaskClipsOutside(t *testing.T) {
	f := whiteFrame(10, 10, image.Point{})
	masked := Mask(f, []geom.Rect{geom.R(-50, -50, 5, 5), geom.R(8, 8, 20, 20)}, 0)
	if !isBlack(masked.Image.RGBAAt(9, 9)) {
		t.Error("partially visible rect should be painted")
	}
	if isBlack(masked.Image.RGBAAt(0, 0)) {
		t.Error("off-frame rect should paint nothing")
	}
}

func TestNewFrameRebases(t *testing.T) {
	src := image.NewGray(image.Rect(5, 5, 25, 15))
	f := NewFrame(src, image.Pt(5, 5))
	if f.Image.Bounds() != image.Rect(0, 0, 20, 10) {
		t.Errorf("bounds = %v, want 0,0-20,10", f.Image.Bounds())
	}
	if got := f.ScreenBounds(); got != geom.R(5, 5, 20, 10) {
		t.Errorf("ScreenBounds = %+v", got)
	}
}

func TestCropRegion(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	f, err := crop(src, image.Rect(10, 20, 60, 50))
	if err != nil {
		t.Fatal(err)
	}
	if f.Origin != image.Pt(10, 20) || f.Width() != 50 || f.Height() != 30 {
		t.Errorf("crop = origin %v size %dx%d", f.Origin, f.Width(), f.Height())
	}
	if _, err := crop(src, image.Rect(200, 200, 300, 300)); err == nil {
		t.Error("crop outside screen should fail")
	}
}

func TestCloneIndependent(t *testing.T) {
	f := whiteFrame(4, 4, image.Point{})
	c := f.Clone()
	c.Image.Pix[0] = 0
	if f.Image.Pix[0] != 0xff {
		t.Error("Clone shares pixel memory")
	}
}
