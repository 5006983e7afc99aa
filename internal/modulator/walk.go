package modulator

import (
	"math"
	"math/rand/v2"
)

// RandomWalk draws a fresh goal uniformly from [min, max] rate times per
// second and glides toward it with a one-pole response of the given
// smoothing time. It models slow drift such as gusts or swell.
type RandomWalk struct {
	id        string
	rateHz    float64
	min, max  float64
	smoothing float64
	rng       *rand.Rand
	phase     float64
	goal      float64
	value     float64
}

func NewRandomWalk(id string, rateHz, min, max, smoothing float64, rng *rand.Rand) *RandomWalk {
	if max < min {
		min, max = max, min
	}
	w := &RandomWalk{id: id, rateHz: math.Max(rateHz, 0), min: min, max: max, smoothing: smoothing, rng: rng}
	w.start()
	return w
}

func (w *RandomWalk) ID() string { return w.id }

// Trigger forces an immediate redraw; scale is ignored.
func (w *RandomWalk) Trigger(float64) { w.goal = w.draw() }
func (w *RandomWalk) Release()        {}
func (w *RandomWalk) Active() bool    { return true }

func (w *RandomWalk) Step(dt float64) float64 {
	w.phase += w.rateHz * dt
	if w.phase >= 1 {
		w.phase -= math.Floor(w.phase)
		w.goal = w.draw()
	}
	if w.smoothing <= 0 {
		w.value = w.goal
	} else {
		w.value += (w.goal - w.value) * (1 - math.Exp(-dt/w.smoothing))
	}
	return w.value
}

func (w *RandomWalk) draw() float64 {
	if w.rng == nil {
		return (w.min + w.max) / 2
	}
	return w.min + w.rng.Float64()*(w.max-w.min)
}

// start places the walk at a fresh point inside the range.
func (w *RandomWalk) start() {
	w.phase = 0
	w.goal = w.draw()
	w.value = w.goal
}
