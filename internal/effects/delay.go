package effects

// Delay is a stereo feedback delay whose time can be swept at runtime
// (fractional read, linear interpolation) up to the length it was built with.
type Delay struct {
	bufL, bufR []float64
	pos        int
	sampleRate float64
	delay      float64 // samples
	feedback   float64
	mix        float64
}

// NewDelay allocates a delay line that can reach maxSeconds.
func NewDelay(sampleRate int, maxSeconds, seconds, feedback, mix float64) *Delay {
	size := maxInt(int(maxSeconds*float64(sampleRate))+2, 4)
	d := &Delay{
		bufL:       make([]float64, size),
		bufR:       make([]float64, size),
		sampleRate: float64(sampleRate),
	}
	d.SetTime(seconds)
	d.SetFeedback(feedback)
	d.SetMix(mix)
	return d
}

func (d *Delay) SetTime(seconds float64) {
	d.delay = clamp(seconds*d.sampleRate, 1, float64(len(d.bufL)-2))
}

func (d *Delay) SetFeedback(feedback float64) {
	d.feedback = clamp(feedback, 0, 0.95)
}

func (d *Delay) SetMix(mix float64) {
	d.mix = clamp(mix, 0, 1)
}

func (d *Delay) Process(l, r float64) (float64, float64) {
	size := len(d.bufL)
	readPos := float64(d.pos) - d.delay
	for readPos < 0 {
		readPos += float64(size)
	}
	idx := int(readPos)
	frac := readPos - float64(idx)
	idx2 := idx + 1
	if idx2 >= size {
		idx2 = 0
	}
	delL := d.bufL[idx]*(1-frac) + d.bufL[idx2]*frac
	delR := d.bufR[idx]*(1-frac) + d.bufR[idx2]*frac

	d.bufL[d.pos] = l + delL*d.feedback
	d.bufR[d.pos] = r + delR*d.feedback
	d.pos++
	if d.pos >= size {
		d.pos = 0
	}
	return l*(1-d.mix) + delL*d.mix, r*(1-d.mix) + delR*d.mix
}

func (d *Delay) Reset() {
	clear(d.bufL)
	clear(d.bufR)
	d.pos = 0
}
