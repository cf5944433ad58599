// Package trigger locates the sample where a waveform crosses a level in a
// chosen direction, stabilizing repetitive signals in a time display.
package trigger

import "math"

// Slope selects which edge of the waveform arms the trigger.
type Slope string

// Trigger slopes
const (
	SlopePositive Slope = "positive"
	SlopeNegative Slope = "negative"
)

// Listener is notified whenever a trigger setting changes.
type Listener func()

// Controller holds the trigger settings and finds the trigger index in a
// sample window. It is not safe for concurrent use; the owning block
// serializes access.
type Controller struct {
	level    float64
	slope    Slope
	channel  int
	listener Listener
}

// NewController creates a controller triggering at level 0.5 on the
// positive slope of channel 0.
func NewController(listener Listener) *Controller {
	return &Controller{
		level:    0.5,
		slope:    SlopePositive,
		channel:  0,
		listener: listener,
	}
}

// Level returns the trigger level.
func (c *Controller) Level() float64 { return c.level }

// SetLevel updates the trigger level. Setting the current value is a no-op.
func (c *Controller) SetLevel(level float64) {
	if c.level == level {
		return
	}
	c.level = level
	c.changed()
}

// Slope returns the trigger slope.
func (c *Controller) Slope() Slope { return c.slope }

// SetSlope updates the trigger slope. Setting the current value is a no-op.
func (c *Controller) SetSlope(slope Slope) {
	if c.slope == slope {
		return
	}
	c.slope = slope
	c.changed()
}

// Channel returns the index of the channel the trigger watches.
func (c *Controller) Channel() int { return c.channel }

// SetChannel updates the watched channel. Setting the current value is a
// no-op.
func (c *Controller) SetChannel(channel int) {
	if c.channel == channel {
		return
	}
	c.channel = channel
	c.changed()
}

// FindIndex returns the sample index where the watched channel crosses the
// trigger level on the configured slope. Data is indexed
// data[channel][sample]. It returns 0 when the window is empty, the channel
// is out of range, or the level is never reached.
func (c *Controller) FindIndex(data [][]float64) int {
	if c.channel < 0 || c.channel >= len(data) {
		return 0
	}
	samples := data[c.channel]
	if len(samples) == 0 {
		return 0
	}

	peak := 0.0
	for _, v := range samples {
		peak = math.Max(peak, math.Abs(v))
	}
	if c.level > peak {
		return 0
	}

	// Nearest level crossing whose local slope matches; samples on the
	// wrong slope are pushed far from the level so they never win.
	const wrongSlopePenalty = 10.0

	best := 0
	bestDist := math.Inf(1)
	prev := samples[0]
	for i, v := range samples {
		diff := v - prev
		prev = v

		wrongSlope := false
		switch c.slope {
		case SlopePositive:
			wrongSlope = diff < 0
		case SlopeNegative:
			wrongSlope = diff > 0
		}

		dist := math.Abs(v - c.level)
		if wrongSlope {
			dist += wrongSlopePenalty
		}
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}

func (c *Controller) changed() {
	if c.listener != nil {
		c.listener()
	}
}
