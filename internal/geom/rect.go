// Package geom holds the rectangle math shared by grouping, stabilization, tracking and masking.
package geom

import (
	"image"
	"math"
)

// Rect is an axis-aligned rectangle in absolute screen coordinates.
// Float coordinates let the tracker smooth positions without rounding drift.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// R is shorthand for Rect{x, y, w, h}.
func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, W: w, H: h} }

// FromImage converts an image.Rectangle.
func FromImage(r image.Rectangle) Rect {
	return Rect{X: float64(r.Min.X), Y: float64(r.Min.Y), W: float64(r.Dx()), H: float64(r.Dy())}
}

// Image converts to an image.Rectangle, rounding outward so the result covers r.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.Right())), int(math.Ceil(r.Bottom())),
	)
}

func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Valid reports whether r has finite coordinates and positive area.
func (r Rect) Valid() bool {
	for _, v := range [...]float64{r.X, r.Y, r.W, r.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.W > 0 && r.H > 0
}

// Area returns w*h, zero for degenerate rectangles.
func (r Rect) Area() float64 {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Center returns the midpoint.
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Intersect returns the overlap of r and o; W or H is zero when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.Right(), o.Right())
	y1 := math.Min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{X: x0, Y: y0}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// IntersectionArea is Intersect(o).Area().
func (r Rect) IntersectionArea(o Rect) float64 {
	return r.Intersect(o).Area()
}

// Union returns the smallest rectangle covering both. A zero-area operand is ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Area() == 0 {
		return o
	}
	if o.Area() == 0 {
		return r
	}
	x0 := math.Min(r.X, o.X)
	y0 := math.Min(r.Y, o.Y)
	x1 := math.Max(r.Right(), o.Right())
	y1 := math.Max(r.Bottom(), o.Bottom())
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// IoU is intersection over union, in [0,1].
func (r Rect) IoU(o Rect) float64 {
	inter := r.IntersectionArea(o)
	if inter == 0 {
		return 0
	}
	return inter / (r.Area() + o.Area() - inter)
}

// ContainedIn returns the fraction of r's area lying inside o.
func (r Rect) ContainedIn(o Rect) float64 {
	a := r.Area()
	if a == 0 {
		return 0
	}
	return r.IntersectionArea(o) / a
}

// OverlapOfSmaller returns intersection area divided by the smaller of the two areas.
func (r Rect) OverlapOfSmaller(o Rect) float64 {
	m := math.Min(r.Area(), o.Area())
	if m == 0 {
		return 0
	}
	return r.IntersectionArea(o) / m
}

// CenterDistance is the Euclidean distance between centers.
func (r Rect) CenterDistance(o Rect) float64 {
	ax, ay := r.Center()
	bx, by := o.Center()
	return math.Hypot(ax-bx, ay-by)
}

// MaxEdgeShift is the largest absolute difference between corresponding coordinates.
func (r Rect) MaxEdgeShift(o Rect) float64 {
	return math.Max(
		math.Max(math.Abs(r.X-o.X), math.Abs(r.Y-o.Y)),
		math.Max(math.Abs(r.Right()-o.Right()), math.Abs(r.Bottom()-o.Bottom())),
	)
}

// Inflate grows r by pad on every side.
func (r Rect) Inflate(pad float64) Rect {
	return Rect{X: r.X - pad, Y: r.Y - pad, W: r.W + 2*pad, H: r.H + 2*pad}
}

// Translate shifts r by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

// Clip restricts r to bounds.
func (r Rect) Clip(bounds Rect) Rect {
	return r.Intersect(bounds)
}

// Lerp moves r toward target by alpha: r*(1-alpha) + target*alpha.
func (r Rect) Lerp(target Rect, alpha float64) Rect {
	mix := func(a, b float64) float64 { return a*(1-alpha) + b*alpha }
	return Rect{X: mix(r.X, target.X), Y: mix(r.Y, target.Y), W: mix(r.W, target.W), H: mix(r.H, target.H)}
}

// HorizontalOverlap returns the length of the overlap of the x-extents.
func (r Rect) HorizontalOverlap(o Rect) float64 {
	return math.Max(0, math.Min(r.Right(), o.Right())-math.Max(r.X, o.X))
}
