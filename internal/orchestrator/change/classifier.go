package change

import "time"

// State of the screen as seen by the classifier.
type State int

const (
	Static State = iota
	Moving
)

func (s State) String() string {
	if s == Moving {
		return "moving"
	}
	return "static"
}

// Classifier applies hysteresis to diff values: below Low is static, above High is moving,
// anything in between keeps the previous state. After moving it also tracks how long the
// screen has been static so callers can wait for it to settle.
type Classifier struct {
	Low, High float64
	Settle    time.Duration

	state       State
	staticSince time.Time
}

// NewClassifier creates a classifier that starts static and already settled.
func NewClassifier(low, high float64, settle time.Duration) *Classifier {
	return &Classifier{Low: low, High: high, Settle: settle}
}

// Observe folds one diff value in. entered reports a transition into Moving.
func (c *Classifier) Observe(diff float64, now time.Time) (state State, entered bool) {
	switch {
	case diff > c.High:
		entered = c.state != Moving
		c.state = Moving
	case diff < c.Low:
		if c.state == Moving {
			c.staticSince = now
		}
		c.state = Static
	}
	return c.state, entered
}

// ForceMoving puts the classifier into Moving, as if a large diff had been seen.
func (c *Classifier) ForceMoving() {
	c.state = Moving
}

// State returns the current state.
func (c *Classifier) State() State { return c.state }

// Settled reports whether the screen is static and has been for at least Settle.
func (c *Classifier) Settled(now time.Time) bool {
	if c.state != Static {
		return false
	}
	return c.staticSince.IsZero() || now.Sub(c.staticSince) >= c.Settle
}
