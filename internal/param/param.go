package param

import (
	"errors"
	"math"
	"sync/atomic"
)

// Kind selects how a parameter moves toward a newly requested value.
type Kind int

const (
	// Exponential approaches the target with a one-pole response.
	Exponential Kind = iota
	// Linear ramps to the target over a fixed duration.
	Linear
	// Static values are structural configuration and may jump, but only
	// before the owning graph starts rendering.
	Static
)

// Scale selects the domain in which smoothing happens.
type Scale int

const (
	ScaleLinear Scale = iota
	// ScaleLog smooths in the log domain, for frequency-like values.
	ScaleLog
)

// Epsilon is the floor applied to values smoothed in the log domain.
const Epsilon = 1e-4

const minTimeConstant = 0.001

var ErrStaticParam = errors.New("param: static parameter cannot change while rendering")

// Policy is the declared smoothing contract of a parameter.
type Policy struct {
	Kind         Kind
	TimeConstant float64 // seconds; exponential time constant or default linear ramp length
	Scale        Scale
	MaxStep      float64 // largest per-sample change in the smoothing domain; 0 = unbounded
}

// DefaultPolicy is used for gains, mix levels and other linear controls.
func DefaultPolicy() Policy {
	return Policy{Kind: Exponential, TimeConstant: 0.02}
}

// LogPolicy is used for frequencies.
func LogPolicy() Policy {
	return Policy{Kind: Exponential, TimeConstant: 0.03, Scale: ScaleLog}
}

func StaticPolicy() Policy {
	return Policy{Kind: Static}
}

type command struct {
	value float64
	ramp  float64
}

// Param is a single smoothed control value. Any number of control-path
// goroutines may call Set; exactly one render goroutine calls Fill/Next.
// The handoff is a single atomic pointer swap, so the render side never
// blocks.
type Param struct {
	name       string
	policy     Policy
	sampleRate float64

	pending atomic.Pointer[command]
	target  atomic.Uint64 // float64 bits of the latest requested value

	// render-side state
	seen      *command
	current   float64 // smoothing domain
	goal      float64 // smoothing domain
	step      float64
	remaining int
	coef      float64
}

// New returns a parameter resting at initial.
func New(name string, initial float64, policy Policy, sampleRate int) *Param {
	if policy.Kind != Static && policy.TimeConstant < minTimeConstant {
		policy.TimeConstant = minTimeConstant
	}
	sr := float64(sampleRate)
	if sr <= 0 {
		sr = 48000
	}
	p := &Param{
		name:       name,
		policy:     policy,
		sampleRate: sr,
	}
	if policy.Kind == Exponential {
		p.coef = 1 - math.Exp(-1/(policy.TimeConstant*sr))
	}
	p.current = p.toDomain(initial)
	p.goal = p.current
	p.target.Store(math.Float64bits(initial))
	return p
}

func (p *Param) Name() string { return p.name }

func (p *Param) Policy() Policy { return p.policy }

// Set requests a move to value. rampSeconds > 0 forces a linear ramp of that
// length, at least one millisecond; 0 uses the policy's own smoothing. Safe for concurrent callers.
func (p *Param) Set(value, rampSeconds float64) error {
	if p.policy.Kind == Static {
		return ErrStaticParam
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.New("param: value is not finite")
	}
	if rampSeconds < 0 {
		rampSeconds = 0
	}
	p.target.Store(math.Float64bits(value))
	p.pending.Store(&command{value: value, ramp: rampSeconds})
	return nil
}

// Target returns the most recently requested value. Safe from any goroutine.
func (p *Param) Target() float64 {
	return math.Float64frombits(p.target.Load())
}

// Value returns the current smoothed value. Render side only.
func (p *Param) Value() float64 {
	return p.fromDomain(p.current)
}

// Poll picks up a pending control-path request. Render side only; called
// once per block or sub-block.
func (p *Param) Poll() {
	c := p.pending.Load()
	if c == nil || c == p.seen {
		return
	}
	p.seen = c
	p.begin(c.value, c.ramp)
}

// RampTo starts a linear ramp from the render side, e.g. from a modulator
// or a scheduled action landing mid-block.
func (p *Param) RampTo(value float64, samples int) {
	if p.policy.Kind == Static {
		return
	}
	if samples < 1 {
		samples = 1
	}
	p.goal = p.toDomain(value)
	p.remaining = samples
	p.step = (p.goal - p.current) / float64(samples)
}

// Apply starts a move from the render side with the same semantics as Set.
func (p *Param) Apply(value, rampSeconds float64) {
	p.begin(value, rampSeconds)
}

func (p *Param) begin(value, rampSeconds float64) {
	switch {
	case p.policy.Kind == Static:
		return
	case rampSeconds > 0:
		// explicit ramps never run shorter than the minimum time constant
		p.RampTo(value, int(math.Round(math.Max(rampSeconds, minTimeConstant)*p.sampleRate)))
	case p.policy.Kind == Linear:
		p.RampTo(value, int(p.policy.TimeConstant*p.sampleRate))
	default:
		p.goal = p.toDomain(value)
		p.remaining = 0
	}
}

// Next advances one sample and returns the smoothed value.
func (p *Param) Next() float64 {
	var delta float64
	switch {
	case p.remaining > 0:
		p.remaining--
		if p.remaining == 0 {
			delta = p.goal - p.current
		} else {
			delta = p.step
		}
	case p.policy.Kind == Exponential:
		delta = (p.goal - p.current) * p.coef
	default:
		delta = p.goal - p.current
	}
	if p.policy.MaxStep > 0 {
		if delta > p.policy.MaxStep {
			delta = p.policy.MaxStep
		} else if delta < -p.policy.MaxStep {
			delta = -p.policy.MaxStep
		}
	}
	p.current += delta
	return p.fromDomain(p.current)
}

// Fill polls once and writes len(buf) consecutive smoothed values.
func (p *Param) Fill(buf []float64) {
	p.Poll()
	if p.remaining == 0 && p.current == p.goal {
		v := p.fromDomain(p.current)
		for i := range buf {
			buf[i] = v
		}
		return
	}
	for i := range buf {
		buf[i] = p.Next()
	}
}

// Advance moves the smoother n samples and returns the final value.
func (p *Param) Advance(n int) float64 {
	p.Poll()
	v := p.fromDomain(p.current)
	for i := 0; i < n; i++ {
		v = p.Next()
	}
	return v
}

func (p *Param) toDomain(v float64) float64 {
	if p.policy.Scale == ScaleLog {
		if v < Epsilon {
			v = Epsilon
		}
		return math.Log(v)
	}
	return v
}

func (p *Param) fromDomain(v float64) float64 {
	if p.policy.Scale == ScaleLog {
		return math.Exp(v)
	}
	return v
}
