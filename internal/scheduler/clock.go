package scheduler

import (
	"fmt"
	"math"
	"math/rand/v2"
)

type ClockKind int

const (
	// Poisson draws exponentially distributed intervals around a mean.
	Poisson ClockKind = iota
	// Pattern cycles through a fixed interval sequence.
	Pattern
)

func (k ClockKind) String() string {
	if k == Pattern {
		return "pattern"
	}
	return "poisson"
}

func ParseClock(s string) (ClockKind, bool) {
	switch s {
	case "", "poisson", "random":
		return Poisson, true
	case "pattern", "periodic", "regular":
		return Pattern, true
	}
	return Poisson, false
}

// Clock decides when an event recurs. Interval is the mean (Poisson) or
// fixed (Pattern) spacing in seconds; Intervals, when set, overrides it
// for Pattern clocks. Jitter perturbs each interval by up to +-Jitter of
// itself.
type Clock struct {
	Kind      ClockKind
	Interval  float64
	Jitter    float64
	Intervals []float64
}

func (c Clock) Validate() error {
	if c.Kind == Pattern && len(c.Intervals) > 0 {
		for i, v := range c.Intervals {
			if !(v > 0) || math.IsInf(v, 0) {
				return fmt.Errorf("intervals[%d] must be > 0", i)
			}
		}
	} else if !(c.Interval > 0) || math.IsInf(c.Interval, 0) {
		return fmt.Errorf("interval must be > 0 (got %g)", c.Interval)
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1) (got %g)", c.Jitter)
	}
	return nil
}

// MeanInterval is the long-run average spacing in seconds.
func (c Clock) MeanInterval() float64 {
	if c.Kind == Pattern && len(c.Intervals) > 0 {
		var sum float64
		for _, v := range c.Intervals {
			sum += v
		}
		return sum / float64(len(c.Intervals))
	}
	return c.Interval
}

// Rate is the long-run number of occurrences per second.
func (c Clock) Rate() float64 {
	m := c.MeanInterval()
	if m <= 0 {
		return 0
	}
	return 1 / m
}

// PoissonInterval returns -ln(1-U)*mean for U uniform in [0, 1).
func PoissonInterval(rng *rand.Rand, mean float64) float64 {
	return -math.Log(1-rng.Float64()) * mean
}

// next draws the interval following occurrence number pos.
func (c Clock) next(rng *rand.Rand, pos int) float64 {
	var v float64
	switch {
	case c.Kind == Pattern && len(c.Intervals) > 0:
		v = c.Intervals[pos%len(c.Intervals)]
	case c.Kind == Pattern:
		v = c.Interval
	default:
		v = PoissonInterval(rng, c.Interval)
	}
	if c.Jitter > 0 {
		v *= 1 + c.Jitter*(2*rng.Float64()-1)
	}
	return math.Max(v, 0)
}
