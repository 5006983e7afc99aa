package effects

// Reverb is a Schroeder reverb (four parallel combs into two allpasses).
// It is the lightweight alternative to Convolver for dense, cheap tails.
type Reverb struct {
	combs   [4]combFilter
	allpass [2]allpassFilter
	mix     float64
}

type combFilter struct {
	buf []float64
	pos int
	fb  float64
}

type allpassFilter struct {
	buf []float64
	pos int
	fb  float64
}

// NewReverb creates a reverb.
// roomSize: 0..1 scales the delay lengths
// feedback: 0..1 sets the decay time
// mix: wet/dry 0..1
func NewReverb(sampleRate int, roomSize, feedback, mix float64) *Reverb {
	base := int(float64(sampleRate) * roomSize * 0.05)
	if base < 10 {
		base = 10
	}
	fb := clamp(feedback, 0, 0.95)
	r := &Reverb{}
	r.SetMix(mix)
	// mutually prime-ish ratios keep the comb resonances from lining up
	combLens := [4]int{base, base * 1117 / 1000, base * 1271 / 1000, base * 1437 / 1000}
	for i := range r.combs {
		r.combs[i] = combFilter{
			buf: make([]float64, combLens[i]),
			fb:  fb,
		}
	}
	apLens := [2]int{base * 347 / 1000, base * 213 / 1000}
	for i := range r.allpass {
		r.allpass[i] = allpassFilter{
			buf: make([]float64, maxInt(apLens[i], 1)),
			fb:  0.5,
		}
	}
	return r
}

func (r *Reverb) SetMix(mix float64) {
	r.mix = clamp(mix, 0, 1)
}

func (r *Reverb) Process(l, r2 float64) (float64, float64) {
	mono := (l + r2) * 0.5
	var out float64
	for i := range r.combs {
		out += r.combs[i].process(mono)
	}
	out *= 0.25
	for i := range r.allpass {
		out = r.allpass[i].process(out)
	}
	return l*(1-r.mix) + out*r.mix, r2*(1-r.mix) + out*r.mix
}

// ProcessBlock runs Process over a stereo block in place.
func (r *Reverb) ProcessBlock(l, r2 []float64) {
	for i := range l {
		l[i], r2[i] = r.Process(l[i], r2[i])
	}
}

func (r *Reverb) Reset() {
	for i := range r.combs {
		clear(r.combs[i].buf)
		r.combs[i].pos = 0
	}
	for i := range r.allpass {
		clear(r.allpass[i].buf)
		r.allpass[i].pos = 0
	}
}

func (c *combFilter) process(in float64) float64 {
	out := c.buf[c.pos]
	c.buf[c.pos] = in + out*c.fb
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (a *allpassFilter) process(in float64) float64 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + bufOut*a.fb
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}
