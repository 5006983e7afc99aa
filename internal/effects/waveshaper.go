package effects

import "math"

// Waveshaper is a tanh soft clipper with output normalized so drive changes
// mostly alter timbre rather than level.
type Waveshaper struct {
	drive float64
	norm  float64
	mix   float64
}

func NewWaveshaper(drive, mix float64) *Waveshaper {
	w := &Waveshaper{}
	w.SetDrive(drive)
	w.SetMix(mix)
	return w
}

func (w *Waveshaper) SetDrive(drive float64) {
	w.drive = clamp(drive, 0.01, 100)
	w.norm = 1 / math.Tanh(w.drive)
}

func (w *Waveshaper) SetMix(mix float64) {
	w.mix = clamp(mix, 0, 1)
}

func (w *Waveshaper) Process(l, r float64) (float64, float64) {
	sl := math.Tanh(l*w.drive) * w.norm
	sr := math.Tanh(r*w.drive) * w.norm
	return l*(1-w.mix) + sl*w.mix, r*(1-w.mix) + sr*w.mix
}

func (w *Waveshaper) Reset() {}
