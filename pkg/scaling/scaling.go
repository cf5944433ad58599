// Package scaling manages the display range of a value axis with manual,
// automatic, and stepped auto-range modes.
package scaling

import (
	"math"
	"time"

	"github.com/Steve19802/workbench/pkg/ringbuf"
)

// Mode selects how the controller derives the axis range.
type Mode string

// Scaling modes
const (
	// ModeManual holds the caller-supplied min and max
	ModeManual Mode = "manual"
	// ModeAutomatic follows the data extremes with a deviation threshold
	ModeAutomatic Mode = "automatic"
	// ModeAutoRange snaps to the nearest of a fixed set of symmetric ranges
	ModeAutoRange Mode = "auto-range"
)

// Range is an axis interval.
type Range struct {
	Min float64
	Max float64
}

// RangeListener is notified whenever the controller decides the axis range
// should change.
type RangeListener func(Range)

// defaultAutoRanges are the symmetric ranges auto-range mode snaps between.
var defaultAutoRanges = []float64{0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0}

// deviationThreshold is the fractional overshoot that makes automatic mode
// re-announce the range.
const deviationThreshold = 0.2

// rangeHoldTime is the minimum time between auto-range switches, damping
// oscillation on signals near a range boundary.
const rangeHoldTime = time.Second

// Controller derives an axis range from incoming sample windows. It is not
// safe for concurrent use; the owning block serializes access.
type Controller struct {
	mode      Mode
	manualMin float64
	manualMax float64
	listener  RangeListener

	autoRanges []float64
	rangeIdx   int
	idxBuffer  *ringbuf.Ring[int]
	lastSwitch time.Time

	autoMin    float64
	autoMax    float64
	autoPrimed bool

	now func() time.Time
}

// NewController creates a controller in automatic mode with a [-1, 1]
// manual fallback range.
func NewController(listener RangeListener) *Controller {
	idxBuffer, _ := ringbuf.New[int](5)
	return &Controller{
		mode:       ModeAutomatic,
		manualMin:  -1.0,
		manualMax:  1.0,
		listener:   listener,
		autoRanges: defaultAutoRanges,
		rangeIdx:   -1,
		idxBuffer:  idxBuffer,
		now:        time.Now,
	}
}

// Mode returns the current scaling mode.
func (c *Controller) Mode() Mode { return c.mode }

// SetMode switches modes. Entering manual mode re-announces the manual
// range; switching between automatic modes resets their tracking state.
func (c *Controller) SetMode(mode Mode) {
	if c.mode == mode {
		return
	}
	c.mode = mode
	c.resetAutoState()
	if mode == ModeManual {
		c.announce(Range{Min: c.manualMin, Max: c.manualMax})
	}
}

// ManualRange returns the manual min and max.
func (c *Controller) ManualRange() Range {
	return Range{Min: c.manualMin, Max: c.manualMax}
}

// SetManualRange stores a manual range and switches to manual mode.
func (c *Controller) SetManualRange(min, max float64) {
	c.manualMin = min
	c.manualMax = max
	c.mode = ModeManual
	c.resetAutoState()
	c.announce(Range{Min: min, Max: max})
}

// Update feeds one window of samples through the active mode. Manual mode
// ignores data entirely.
func (c *Controller) Update(data []float64) {
	if len(data) == 0 {
		return
	}
	switch c.mode {
	case ModeAutomatic:
		c.updateAutomatic(data)
	case ModeAutoRange:
		c.updateAutoRange(data)
	}
}

func (c *Controller) resetAutoState() {
	c.autoPrimed = false
	c.rangeIdx = -1
	c.idxBuffer.Clear()
}

func (c *Controller) updateAutomatic(data []float64) {
	minVal, maxVal := data[0], data[0]
	for _, v := range data[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}

	if !c.autoPrimed {
		c.autoPrimed = true
		c.autoMin = minVal
		c.autoMax = maxVal
		c.announce(Range{Min: minVal, Max: maxVal})
		return
	}

	maxDev := (maxVal - c.autoMax) / nonZero(c.autoMax)
	minDev := (minVal - c.autoMin) / nonZero(c.autoMin)
	if maxDev > deviationThreshold || minDev < -deviationThreshold {
		c.autoMin = minVal
		c.autoMax = maxVal
		c.announce(Range{Min: minVal, Max: maxVal})
	}
}

func (c *Controller) updateAutoRange(data []float64) {
	peak := 0.0
	for _, v := range data {
		peak = math.Max(peak, math.Abs(v))
	}

	// nearest fixed range, smoothed over the recent windows
	best := 0
	for i, r := range c.autoRanges {
		if math.Abs(r-peak) < math.Abs(c.autoRanges[best]-peak) {
			best = i
		}
	}
	c.idxBuffer.Push(best)

	sum := 0
	history := c.idxBuffer.Snapshot()
	for _, idx := range history {
		sum += idx
	}
	smoothed := int(math.Round(float64(sum) / float64(len(history))))

	if smoothed != c.rangeIdx && c.now().Sub(c.lastSwitch) > rangeHoldTime {
		r := c.autoRanges[smoothed]
		c.rangeIdx = smoothed
		c.lastSwitch = c.now()
		c.announce(Range{Min: -r, Max: r})
	}
}

func (c *Controller) announce(r Range) {
	if c.listener != nil {
		c.listener(r)
	}
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
