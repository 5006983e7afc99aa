package graph

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cbegin/soundscape-go/internal/effects"
	"github.com/cbegin/soundscape-go/internal/param"
)

// convolverPartition is the FFT partition size of convolution reverbs.
const convolverPartition = 256

func newProcessor(ns NodeSpec, env *nodeEnv) (processor, error) {
	p := env.params
	switch ns.Kind {
	case Noise:
		return &noiseNode{color: int(p["color"].Value()), gain: p["gain"], rng: env.rng}, nil
	case Oscillator:
		return &oscNode{waveform: int(p["waveform"].Value()), freq: p["frequency"], gain: p["gain"], sr: float64(env.sampleRate)}, nil
	case Filter:
		n := &filterNode{
			mode: effects.FilterMode(int(p["mode"].Value())),
			freq: p["frequency"],
			q:    p["q"],
			sr:   float64(env.sampleRate),
		}
		n.biquad = effects.NewBiquad(effects.Design(n.mode, n.freq.Value(), n.q.Value(), n.sr))
		return n, nil
	case Gain, Mixer:
		return &gainNode{gain: p["gain"]}, nil
	case Waveshaper:
		return &shaperNode{drive: p["drive"], mix: p["mix"], ws: effects.NewWaveshaper(p["drive"].Value(), p["mix"].Value())}, nil
	case RingMod:
		return &ringNode{freq: p["frequency"], mix: p["mix"], sr: float64(env.sampleRate)}, nil
	case Panner:
		return &panNode{pan: p["pan"]}, nil
	case Delay:
		maxTime := p["maxTime"].Value()
		return &delayNode{
			time:     p["time"],
			feedback: p["feedback"],
			mix:      p["mix"],
			d:        effects.NewDelay(env.sampleRate, maxTime, p["time"].Value(), p["feedback"].Value(), p["mix"].Value()),
		}, nil
	case Reverb:
		return newReverbNode(ns, env)
	case Compressor:
		n := &compNode{
			threshold: p["threshold"],
			ratio:     p["ratio"],
			attack:    p["attack"],
			release:   p["release"],
			makeup:    p["makeup"],
		}
		n.c = effects.NewCompressor(env.sampleRate, n.threshold.Value(), n.ratio.Value(), n.attack.Value(), n.release.Value(), n.makeup.Value())
		return n, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, ns.Kind)
}

// monoToStereo copies the left output into the right one.
func monoToStereo(n *node, frames int) {
	copy(n.outR[:frames], n.outL[:frames])
}

type noiseNode struct {
	color int
	gain  *param.Param
	rng   *rand.Rand
	pink  [7]float64
	brown float64
}

func (s *noiseNode) render(n *node, frames int) {
	out := n.outL[:frames]
	for i := range out {
		w := s.rng.Float64()*2 - 1
		switch s.color {
		case 1:
			// Paul Kellet's economy pink filter.
			b := &s.pink
			b[0] = 0.99886*b[0] + w*0.0555179
			b[1] = 0.99332*b[1] + w*0.0750759
			b[2] = 0.96900*b[2] + w*0.1538520
			b[3] = 0.86650*b[3] + w*0.3104856
			b[4] = 0.55000*b[4] + w*0.5329522
			b[5] = -0.7616*b[5] - w*0.0168980
			out[i] = (b[0] + b[1] + b[2] + b[3] + b[4] + b[5] + b[6] + w*0.5362) * 0.11
			b[6] = w * 0.115926
		case 2:
			s.brown = (s.brown + 0.02*w) / 1.02
			out[i] = s.brown * 3.5
		default:
			out[i] = w
		}
	}
	g := n.scratch[:frames]
	s.gain.Fill(g)
	vecmath.MulBlockInPlace(out, g)
	monoToStereo(n, frames)
}

func (s *noiseNode) reset() {
	s.pink = [7]float64{}
	s.brown = 0
}

type oscNode struct {
	waveform int
	freq     *param.Param
	gain     *param.Param
	sr       float64
	phase    float64
}

func (o *oscNode) render(n *node, frames int) {
	out := n.outL[:frames]
	o.freq.Poll()
	for i := range out {
		o.phase += o.freq.Next() / o.sr
		o.phase -= math.Floor(o.phase)
		out[i] = wave(o.waveform, o.phase)
	}
	g := n.scratch[:frames]
	o.gain.Fill(g)
	vecmath.MulBlockInPlace(out, g)
	monoToStereo(n, frames)
}

func wave(waveform int, phase float64) float64 {
	switch waveform {
	case 1:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	case 2:
		return 2*phase - 1
	case 3:
		if phase < 0.5 {
			return 1
		}
		return -1
	}
	return math.Sin(2 * math.Pi * phase)
}

func (o *oscNode) reset() { o.phase = 0 }

type filterNode struct {
	mode    effects.FilterMode
	freq, q *param.Param
	sr      float64
	lastF   float64
	lastQ   float64
	biquad  *effects.Biquad
}

func (f *filterNode) render(n *node, frames int) {
	fc := f.freq.Advance(frames)
	q := f.q.Advance(frames)
	if fc != f.lastF || q != f.lastQ {
		f.lastF, f.lastQ = fc, q
		f.biquad.SetCoefficients(effects.Design(f.mode, fc, q, f.sr))
	}
	f.biquad.ProcessBlock(n.outL[:frames], n.outR[:frames], n.inL[:frames], n.inR[:frames])
}

func (f *filterNode) reset() {
	f.biquad.Reset()
	f.lastF, f.lastQ = 0, 0
}

type gainNode struct {
	gain *param.Param
}

func (g *gainNode) render(n *node, frames int) {
	buf := n.scratch[:frames]
	g.gain.Fill(buf)
	vecmath.MulBlock(n.outL[:frames], n.inL[:frames], buf)
	vecmath.MulBlock(n.outR[:frames], n.inR[:frames], buf)
}

func (g *gainNode) reset() {}

type shaperNode struct {
	drive, mix *param.Param
	ws         *effects.Waveshaper
}

func (s *shaperNode) render(n *node, frames int) {
	s.ws.SetDrive(s.drive.Advance(frames))
	s.ws.SetMix(s.mix.Advance(frames))
	for i := 0; i < frames; i++ {
		n.outL[i], n.outR[i] = s.ws.Process(n.inL[i], n.inR[i])
	}
}

func (s *shaperNode) reset() { s.ws.Reset() }

type ringNode struct {
	freq, mix *param.Param
	sr        float64
	phase     float64
}

func (r *ringNode) render(n *node, frames int) {
	r.freq.Poll()
	mix := n.scratch[:frames]
	r.mix.Fill(mix)
	for i := 0; i < frames; i++ {
		r.phase += r.freq.Next() / r.sr
		r.phase -= math.Floor(r.phase)
		m := 1 - mix[i] + mix[i]*math.Sin(2*math.Pi*r.phase)
		n.outL[i] = n.inL[i] * m
		n.outR[i] = n.inR[i] * m
	}
}

func (r *ringNode) reset() { r.phase = 0 }

// panNode follows the stereo panner law: the far channel folds into the
// near one with equal-power gains, so centre is unity.
type panNode struct {
	pan *param.Param
}

func (p *panNode) render(n *node, frames int) {
	pan := n.scratch[:frames]
	p.pan.Fill(pan)
	for i := 0; i < frames; i++ {
		l, r := n.inL[i], n.inR[i]
		x := math.Max(-1, math.Min(1, pan[i]))
		if x <= 0 {
			a := (x + 1) * math.Pi / 2
			n.outL[i] = l + r*math.Cos(a)
			n.outR[i] = r * math.Sin(a)
		} else {
			a := x * math.Pi / 2
			n.outL[i] = l * math.Cos(a)
			n.outR[i] = r + l*math.Sin(a)
		}
	}
}

func (p *panNode) reset() {}

type delayNode struct {
	time, feedback, mix *param.Param
	d                   *effects.Delay
}

func (d *delayNode) render(n *node, frames int) {
	times := n.scratch[:frames]
	d.time.Fill(times)
	d.d.SetFeedback(d.feedback.Advance(frames))
	d.d.SetMix(d.mix.Advance(frames))
	for i := 0; i < frames; i++ {
		d.d.SetTime(times[i])
		n.outL[i], n.outR[i] = d.d.Process(n.inL[i], n.inR[i])
	}
}

func (d *delayNode) reset() { d.d.Reset() }

type compNode struct {
	threshold, ratio, attack, release, makeup *param.Param
	c                                         *effects.Compressor
}

func (c *compNode) render(n *node, frames int) {
	c.c.Set(c.threshold.Advance(frames), c.ratio.Advance(frames), c.attack.Advance(frames),
		c.release.Advance(frames), c.makeup.Advance(frames))
	for i := 0; i < frames; i++ {
		n.outL[i], n.outR[i] = c.c.Process(n.inL[i], n.inR[i])
	}
}

func (c *compNode) reset() { c.c.Reset() }

type wetEffect interface {
	effects.Effector
	SetMix(mix float64)
}

type reverbNode struct {
	mix *param.Param
	fx  wetEffect
}

// newReverbNode builds a convolution reverb over a synthetic tail. If the
// convolver cannot be set up the node degrades to the algorithmic reverb
// and reports the failure alongside a working processor.
func newReverbNode(ns NodeSpec, env *nodeEnv) (processor, error) {
	p := env.params
	seconds := p["seconds"].Value()
	decay := p["decay"].Value()
	mix := p["mix"].Value()
	n := &reverbNode{mix: p["mix"]}
	if int(p["algorithm"].Value()) == 0 {
		irL, irR := effects.SyntheticImpulse(env.sampleRate, seconds, decay, env.rng)
		conv, err := effects.NewConvolver(irL, irR, convolverPartition, env.maxFrames, mix)
		if err == nil {
			n.fx = conv
			return n, nil
		}
		n.fx = schroeder(env.sampleRate, seconds, decay, mix)
		return n, fmt.Errorf("convolution unavailable, using algorithmic reverb: %w", err)
	}
	n.fx = schroeder(env.sampleRate, seconds, decay, mix)
	return n, nil
}

func schroeder(sampleRate int, seconds, decay, mix float64) *effects.Reverb {
	room := math.Max(0.1, math.Min(1, seconds/4))
	fb := math.Exp(-decay * room * 0.05)
	return effects.NewReverb(sampleRate, room, fb, mix)
}

func (r *reverbNode) render(n *node, frames int) {
	r.fx.SetMix(r.mix.Advance(frames))
	copy(n.outL[:frames], n.inL[:frames])
	copy(n.outR[:frames], n.inR[:frames])
	r.fx.ProcessBlock(n.outL[:frames], n.outR[:frames])
}

func (r *reverbNode) reset() { r.fx.Reset() }
