package change

import "time"

// Change detection defaults.
const (
	// ThumbSize is the side of the square grayscale thumbnail frames are compared at.
	ThumbSize = 64

	// MaxDiff is returned when there is nothing to compare against.
	MaxDiff = 255.0 * 255.0

	DefaultLow           = 5.0
	DefaultHigh          = 15.0
	DefaultSettle        = time.Second
	DefaultDriftDistance = 10
)
