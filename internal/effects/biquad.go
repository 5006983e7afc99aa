package effects

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

const defaultQ = 1 / math.Sqrt2

// FilterMode selects the biquad response.
type FilterMode int

const (
	Lowpass FilterMode = iota
	Highpass
	Bandpass
	Notch
)

// Design returns RBJ cookbook coefficients. Out-of-range frequencies are
// clamped just inside (0, Nyquist) so the result is always stable. The
// bandpass is scaled to a 0 dB peak.
func Design(mode FilterMode, freq, q, sampleRate float64) biquad.Coefficients {
	if sampleRate <= 0 {
		return biquad.Coefficients{B0: 1}
	}
	freq = clamp(freq, 1, sampleRate*0.49)
	if q <= 0 || math.IsNaN(q) {
		q = defaultQ
	}
	switch mode {
	case Highpass:
		return design.Highpass(freq, q, sampleRate)
	case Bandpass:
		c := design.Bandpass(freq, q, sampleRate)
		c.B0 /= q
		c.B1 /= q
		c.B2 /= q
		return c
	case Notch:
		return design.Notch(freq, q, sampleRate)
	}
	return design.Lowpass(freq, q, sampleRate)
}

// Biquad runs one section per channel with shared coefficients.
type Biquad struct {
	l, r *biquad.Section
}

func NewBiquad(c biquad.Coefficients) *Biquad {
	return &Biquad{l: biquad.NewSection(c), r: biquad.NewSection(c)}
}

// SetCoefficients swaps coefficients and keeps the filter state, so cutoff
// sweeps between blocks do not click.
func (b *Biquad) SetCoefficients(c biquad.Coefficients) {
	b.l.Coefficients = c
	b.r.Coefficients = c
}

func (b *Biquad) Process(l, r float64) (float64, float64) {
	return b.l.ProcessSample(l), b.r.ProcessSample(r)
}

// ProcessBlock filters inL/inR into outL/outR. All slices share a length.
func (b *Biquad) ProcessBlock(outL, outR, inL, inR []float64) {
	if len(inL) == 0 {
		return
	}
	b.l.ProcessBlockTo(outL, inL)
	b.r.ProcessBlockTo(outR, inR)
}

func (b *Biquad) Reset() {
	b.l.Reset()
	b.r.Reset()
}
