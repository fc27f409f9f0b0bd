package geom

import (
	"image"
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestIntersectAndIoU(t *testing.T) {
	a := R(0, 0, 10, 10)
	b := R(5, 5, 10, 10)

	if got := a.IntersectionArea(b); got != 25 {
		t.Errorf("IntersectionArea = %v, want 25", got)
	}
	if got := a.IoU(b); !almost(got, 25.0/175.0) {
		t.Errorf("IoU = %v, want %v", got, 25.0/175.0)
	}
	if got := a.IoU(R(20, 20, 5, 5)); got != 0 {
		t.Errorf("disjoint IoU = %v, want 0", got)
	}
	if got := a.IoU(a); got != 1 {
		t.Errorf("self IoU = %v, want 1", got)
	}
}

func TestContainment(t *testing.T) {
	outer := R(0, 0, 100, 20)
	inner := R(10, 2, 30, 10)

	if got := inner.ContainedIn(outer); got != 1 {
		t.Errorf("ContainedIn = %v, want 1", got)
	}
	if got := outer.ContainedIn(inner); !almost(got, 300.0/2000.0) {
		t.Errorf("reverse ContainedIn = %v", got)
	}
	if got := outer.OverlapOfSmaller(inner); got != 1 {
		t.Errorf("OverlapOfSmaller = %v, want 1", got)
	}
	if got := (Rect{}).ContainedIn(outer); got != 0 {
		t.Errorf("zero rect ContainedIn = %v, want 0", got)
	}
}

func TestUnion(t *testing.T) {
	u := R(10, 10, 20, 10).Union(R(40, 12, 10, 10))
	if u != R(10, 10, 40, 12) {
		t.Errorf("Union = %+v", u)
	}
	if got := (Rect{}).Union(R(1, 1, 2, 2)); got != R(1, 1, 2, 2) {
		t.Errorf("Union with empty = %+v", got)
	}
}

func TestLerp(t *testing.T) {
	got := R(0, 0, 100, 20).Lerp(R(10, 10, 100, 20), 0.4)
	if !almost(got.X, 4) || !almost(got.Y, 4) || got.W != 100 || got.H != 20 {
		t.Errorf("Lerp = %+v, want (4,4,100,20)", got)
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		r    Rect
		want bool
	}{
		{R(0, 0, 1, 1), true},
		{R(0, 0, 0, 5), false},
		{R(0, 0, -3, 5), false},
		{R(math.NaN(), 0, 1, 1), false},
		{R(0, math.Inf(1), 1, 1), false},
	}
	for _, tt := range tests {
		if got := tt.r.Valid(); got != tt.want {
			t.Errorf("%+v.Valid() = %v, want %v", tt.r, got, tt.want)
		}
	}
}

func TestImageRoundTrip(t *testing.T) {
	ir := image.Rect(3, 4, 13, 24)
	if got := FromImage(ir).Image(); got != ir {
		t.Errorf("round trip = %v, want %v", got, ir)
	}
	if got := R(1.2, 1.7, 2, 2).Image(); got != image.Rect(1, 1, 4, 4) {
		t.Errorf("outward rounding = %v", got)
	}
}

func TestInflateClip(t *testing.T) {
	bounds := R(0, 0, 50, 50)
	got := R(2, 2, 10, 10).Inflate(5).Clip(bounds)
	if got != R(0, 0, 17, 17) {
		t.Errorf("Inflate+Clip = %+v", got)
	}
}

func TestDistances(t *testing.T) {
	a := R(0, 0, 10, 10)
	b := R(3, 4, 10, 10)
	if got := a.CenterDistance(b); got != 5 {
		t.Errorf("CenterDistance = %v, want 5", got)
	}
	if got := a.MaxEdgeShift(b); got != 4 {
		t.Errorf("MaxEdgeShift = %v, want 4", got)
	}
	if got := a.HorizontalOverlap(R(8, 50, 10, 10)); got != 2 {
		t.Errorf("HorizontalOverlap = %v, want 2", got)
	}
}
