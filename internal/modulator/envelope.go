package modulator

// Stage of an envelope's state machine.
type Stage int

const (
	StageIdle Stage = iota
	StageAttack
	StageDecay
	StageSustain
	StageRelease
)

func (s Stage) String() string {
	switch s {
	case StageAttack:
		return "attack"
	case StageDecay:
		return "decay"
	case StageSustain:
		return "sustain"
	case StageRelease:
		return "release"
	}
	return "idle"
}

// segment is a linear move from `from` to `to` over `length` seconds.
type segment struct {
	from, to float64
	length   float64
	elapsed  float64
}

func (s *segment) start(from, to, length float64) {
	s.from, s.to, s.length, s.elapsed = from, to, length, 0
}

// advance returns the value after dt and any time left over past the end.
func (s *segment) advance(dt float64) (float64, float64) {
	s.elapsed += dt
	if s.length <= 0 || s.elapsed >= s.length {
		return s.to, s.elapsed - s.length
	}
	return s.from + (s.to-s.from)*s.elapsed/s.length, 0
}

// Envelope is a one-shot attack/decay shape: idle -> attack -> decay -> idle.
// A trigger while active restarts the attack from the current level, so
// retriggers never jump.
type Envelope struct {
	id     string
	attack float64
	decay  float64
	peak   float64
	base   float64
	stage  Stage
	seg    segment
	value  float64
}

func NewEnvelope(id string, attack, decay, peak, base float64) *Envelope {
	return &Envelope{id: id, attack: attack, decay: decay, peak: peak, base: base, value: base}
}

func (e *Envelope) ID() string   { return e.id }
func (e *Envelope) Stage() Stage { return e.stage }
func (e *Envelope) Active() bool { return e.stage != StageIdle }
func (e *Envelope) Release()     {}

// Trigger starts the attack toward peak*scale.
func (e *Envelope) Trigger(scale float64) {
	if scale <= 0 {
		scale = 1
	}
	e.stage = StageAttack
	e.seg.start(e.value, e.base+(e.peak-e.base)*scale, e.attack)
}

func (e *Envelope) Step(dt float64) float64 {
	for dt > 0 && e.stage != StageIdle {
		v, rest := e.seg.advance(dt)
		e.value = v
		if rest <= 0 && e.seg.elapsed < e.seg.length {
			break
		}
		dt = rest
		switch e.stage {
		case StageAttack:
			e.stage = StageDecay
			e.seg.start(e.value, e.base, e.decay)
		default:
			e.stage = StageIdle
			e.value = e.base
		}
	}
	return e.value
}


// ADSR is a sustained envelope:
// idle -> attack -> decay -> sustain -> release -> idle.
// Release may be requested from any active stage and always ramps to base.
type ADSR struct {
	id      string
	attack  float64
	decay   float64
	sustain float64 // fraction of peak
	release float64
	peak    float64
	base    float64
	hold    float64 // auto-release after this long in sustain; 0 waits for Release
	scale   float64
	held    float64
	stage   Stage
	seg     segment
	value   float64
}

func NewADSR(id string, attack, decay, sustain, release, peak, base, hold float64) *ADSR {
	return &ADSR{
		id:      id,
		attack:  attack,
		decay:   decay,
		sustain: sustain,
		release: release,
		peak:    peak,
		base:    base,
		hold:    hold,
		scale:   1,
		value:   base,
	}
}

func (a *ADSR) ID() string   { return a.id }
func (a *ADSR) Stage() Stage { return a.stage }
func (a *ADSR) Active() bool { return a.stage != StageIdle }

func (a *ADSR) Trigger(scale float64) {
	if scale <= 0 {
		scale = 1
	}
	a.scale = scale
	a.stage = StageAttack
	a.held = 0
	a.seg.start(a.value, a.level(1), a.attack)
}

func (a *ADSR) Release() {
	if a.stage == StageIdle || a.stage == StageRelease {
		return
	}
	a.stage = StageRelease
	a.seg.start(a.value, a.base, a.release)
}

func (a *ADSR) level(frac float64) float64 {
	return a.base + (a.peak-a.base)*a.scale*frac
}

func (a *ADSR) Step(dt float64) float64 {
	for dt > 0 {
		switch a.stage {
		case StageIdle:
			return a.value
		case StageSustain:
			if a.hold <= 0 {
				return a.value
			}
			a.held += dt
			if a.held < a.hold {
				return a.value
			}
			dt = a.held - a.hold
			a.Release()
			continue
		}
		v, rest := a.seg.advance(dt)
		a.value = v
		if a.seg.elapsed < a.seg.length {
			return a.value
		}
		dt = rest
		switch a.stage {
		case StageAttack:
			a.stage = StageDecay
			a.seg.start(a.value, a.level(a.sustain), a.decay)
		case StageDecay:
			a.stage = StageSustain
			a.held = 0
		case StageRelease:
			a.stage = StageIdle
			a.value = a.base
			return a.value
		}
		if dt <= 0 && a.stage != StageSustain {
			return a.value
		}
	}
	return a.value
}

