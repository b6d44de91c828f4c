// Package threshold provides the dual-threshold helpers shared by the
// temperature, disk and battery producers.
package threshold

import "gitlab.com/tinyland/lab/bar-pulse/pkg/bar"

// Latch is a hysteresis switch. It turns on when a reading reaches On and
// stays on until the reading drops below Off. With Falling set the direction
// is inverted: it turns on below On and releases once the reading reaches Off.
//
// Off must not be above On (or below it, when Falling); New clamps it.
type Latch struct {
	On      float64
	Off     float64
	Falling bool

	active bool
}

// New returns a rising latch. An off value above on is clamped to on.
func New(on, off float64) *Latch {
	if off > on {
		off = on
	}
	return &Latch{On: on, Off: off}
}

// NewFalling returns a latch that activates on low readings. An off value
// below on is clamped to on.
func NewFalling(on, off float64) *Latch {
	if off < on {
		off = on
	}
	return &Latch{On: on, Off: off, Falling: true}
}

// Observe feeds a reading and returns whether the latch is active.
func (l *Latch) Observe(v float64) bool {
	if l.Falling {
		switch {
		case v < l.On:
			l.active = true
		case v >= l.Off:
			l.active = false
		}
		return l.active
	}

	switch {
	case v >= l.On:
		l.active = true
	case v < l.Off:
		l.active = false
	}
	return l.active
}

// Active reports the current latch state without feeding a reading.
func (l *Latch) Active() bool { return l.active }

// Reset clears the latch.
func (l *Latch) Reset() { l.active = false }

// Bands classifies readings against warning and critical thresholds.
type Bands struct {
	Warning  float64
	Critical float64
}

// Level returns the band v falls into.
func (b Bands) Level(v float64) bar.Level {
	switch {
	case v >= b.Critical:
		return bar.LevelCritical
	case v >= b.Warning:
		return bar.LevelWarning
	default:
		return bar.LevelNormal
	}
}
