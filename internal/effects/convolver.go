package effects

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/cwbudde/algo-dsp/dsp/conv"
)

var ErrEmptyImpulse = errors.New("effects: empty impulse response")

// maxPartitionOrder caps the largest FFT partition at 8192 samples.
const maxPartitionOrder = 13

// Convolver convolves the mono sum of its input with one impulse response
// per output channel, using non-uniformly partitioned convolution. The wet
// signal lags the input by the smallest partition.
type Convolver struct {
	l, r *conv.PartitionedConvolution
	mono []float64
	wetL []float64
	wetR []float64
	mix  float64
}

// NewConvolver prepares irL/irR with a smallest partition of partSize
// samples (rounded up to a power of two). Blocks of up to maxFrames are
// processed without allocating.
func NewConvolver(irL, irR []float64, partSize, maxFrames int, mix float64) (*Convolver, error) {
	if len(irL) == 0 || len(irR) == 0 {
		return nil, ErrEmptyImpulse
	}
	order := bits.Len(uint(maxInt(partSize, 16) - 1))
	top := maxInt(order, maxPartitionOrder)
	l, err := conv.NewPartitionedConvolution(irL, order, top)
	if err != nil {
		return nil, fmt.Errorf("effects: convolver: %w", err)
	}
	r, err := conv.NewPartitionedConvolution(irR, order, top)
	if err != nil {
		return nil, fmt.Errorf("effects: convolver: %w", err)
	}
	maxFrames = maxInt(maxFrames, 1)
	c := &Convolver{
		l:    l,
		r:    r,
		mono: make([]float64, maxFrames),
		wetL: make([]float64, maxFrames),
		wetR: make([]float64, maxFrames),
	}
	c.SetMix(mix)
	return c, nil
}

func (c *Convolver) SetMix(mix float64) {
	c.mix = clamp(mix, 0, 1)
}

// ProcessBlock mixes the wet signal into l and r in place.
func (c *Convolver) ProcessBlock(l, r []float64) {
	for len(l) > 0 {
		n := min(len(l), len(c.mono))
		mono := c.mono[:n]
		for i := range mono {
			mono[i] = (l[i] + r[i]) * 0.5
		}
		wetL, wetR := c.wetL[:n], c.wetR[:n]
		if c.l.ProcessBlock(mono, wetL) != nil || c.r.ProcessBlock(mono, wetR) != nil {
			clear(wetL)
			clear(wetR)
		}
		for i := 0; i < n; i++ {
			l[i] = l[i]*(1-c.mix) + wetL[i]*c.mix
			r[i] = r[i]*(1-c.mix) + wetR[i]*c.mix
		}
		l, r = l[n:], r[n:]
	}
}

func (c *Convolver) Reset() {
	c.l.Reset()
	c.r.Reset()
}

// SyntheticImpulse builds a decorrelated stereo pair of exponentially
// decaying noise bursts, normalized to unit energy per channel. decay is
// the envelope rate in 1/s; 6.9/decay is roughly the RT60.
func SyntheticImpulse(sampleRate int, seconds, decay float64, rng *rand.Rand) ([]float64, []float64) {
	n := maxInt(int(seconds*float64(sampleRate)), 1)
	l := make([]float64, n)
	r := make([]float64, n)
	sr := float64(sampleRate)
	var el, er float64
	for i := 0; i < n; i++ {
		env := math.Exp(-decay * float64(i) / sr)
		l[i] = (rng.Float64()*2 - 1) * env
		r[i] = (rng.Float64()*2 - 1) * env
		el += l[i] * l[i]
		er += r[i] * r[i]
	}
	normalize(l, el)
	normalize(r, er)
	return l, r
}

func normalize(buf []float64, energy float64) {
	if energy <= 0 {
		return
	}
	g := 1 / math.Sqrt(energy)
	for i := range buf {
		buf[i] *= g
	}
}
