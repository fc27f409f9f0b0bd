package screen

import (
	"context"
	"image"
)

// Capturer grabs one frame of a screen region.
// A zero region means the whole configured monitor.
type Capturer interface {
	Capture(ctx context.Context, region image.Rectangle) (*Frame, error)
	Close() error
}
