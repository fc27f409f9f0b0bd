// Package layout finds text-bearing rectangles in a frame without running OCR.
// Words are smeared into lines and lines into paragraph blobs by dilating an
// adaptive-threshold mask; each blob's bounding box becomes one OCR region.
package layout

import (
	"image"
	"image/draw"
	"sort"

	"gocv.io/x/gocv"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
	"github.com/fntranslate/livetranslate/internal/screen"
)

// Defaults.
const (
	DefaultKernelW    = 15 // roughly the inter-word gap
	DefaultKernelH    = 12 // roughly the inter-line gap
	DefaultIterations = 2
	DefaultMinArea    = 200
	DefaultPad        = 10

	thresholdBlock = 11
	thresholdC     = 2
)

// Options tunes the extractor.
type Options struct {
	KernelW, KernelH int
	Iterations       int
	MinArea          int // blobs with a smaller bounding box area are noise
	Pad              int // margin added around each blob for OCR context
}

func (o Options) withDefaults() Options {
	if o.KernelW <= 0 {
		o.KernelW = DefaultKernelW
	}
	if o.KernelH <= 0 {
		o.KernelH = DefaultKernelH
	}
	if o.Iterations <= 0 {
		o.Iterations = DefaultIterations
	}
	if o.MinArea <= 0 {
		o.MinArea = DefaultMinArea
	}
	if o.Pad < 0 {
		o.Pad = 0
	}
	return o
}

// Region is one candidate text area, in frame pixel coordinates.
type Region struct {
	Tight  image.Rectangle // bounding box of the blob
	Padded image.Rectangle // Tight grown by Pad and clipped to the frame
	Crop   image.Image     // frame pixels inside Padded; shares memory with the frame
}

// Extractor runs the layout analysis. It holds no state between calls.
type Extractor struct {
	opts Options
}

// New creates an extractor.
func New(opts Options) *Extractor {
	return &Extractor{opts: opts.withDefaults()}
}

// Extract returns regions sorted top-to-bottom, left-to-right.
func (e *Extractor) Extract(f *screen.Frame) ([]Region, error) {
	bounds := f.Image.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, nil
	}

	rgba := f.Image
	if rgba.Stride != 4*w {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), f.Image, bounds.Min, draw.Src)
	}

	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "frame to mat")
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBAToGray)

	// Inverted so text becomes foreground on both light and dark themes' typical polarity.
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.AdaptiveThreshold(gray, &binary, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinaryInv, thresholdBlock, thresholdC)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(e.opts.KernelW, e.opts.KernelH))
	defer kernel.Close()
	for i := 0; i < e.opts.Iterations; i++ {
		gocv.Dilate(binary, &binary, kernel)
	}

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	frame := image.Rect(0, 0, w, h)
	regions := make([]Region, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		tight := gocv.BoundingRect(contours.At(i)).Intersect(frame)
		if tight.Dx()*tight.Dy() < e.opts.MinArea {
			continue
		}
		padded := tight.Inset(-e.opts.Pad).Intersect(frame)
		regions = append(regions, Region{
			Tight:  tight,
			Padded: padded,
			Crop:   rgba.SubImage(padded),
		})
	}
	sortRegions(regions)
	return regions, nil
}

func sortRegions(rs []Region) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Tight.Min.Y != rs[j].Tight.Min.Y {
			return rs[i].Tight.Min.Y < rs[j].Tight.Min.Y
		}
		return rs[i].Tight.Min.X < rs[j].Tight.Min.X
	})
}
