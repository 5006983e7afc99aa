package modulator

import (
	"math"
	"math/rand/v2"
)

// Waveform selects the LFO shape.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveTriangle
	// WaveRandom holds a fresh uniform value for each cycle (sample and hold).
	WaveRandom
)

// ParseWaveform maps the patch spelling to a Waveform.
func ParseWaveform(s string) (Waveform, bool) {
	switch s {
	case "", "sine":
		return WaveSine, true
	case "triangle":
		return WaveTriangle, true
	case "random", "sample-and-hold", "s&h":
		return WaveRandom, true
	}
	return WaveSine, false
}

// LFO is a free-running low-frequency oscillator. Output is
// offset + depth*wave with wave in [-1, 1]. It never terminates.
type LFO struct {
	id       string
	depth    float64
	offset   float64
	rateHz   float64
	waveform Waveform
	phase    float64 // [0, 1)
	randVal  float64
	rng      *rand.Rand
}

func NewLFO(id string, waveform Waveform, rateHz, depth, offset float64, rng *rand.Rand) *LFO {
	l := &LFO{id: id, rng: rng}
	l.Set(depth, rateHz, waveform)
	l.offset = offset
	l.randVal = l.draw()
	return l
}

// Set configures the LFO parameters.
func (l *LFO) Set(depth, rateHz float64, waveform Waveform) {
	l.depth = depth
	l.rateHz = math.Max(rateHz, 0)
	if waveform < WaveSine || waveform > WaveRandom {
		waveform = WaveTriangle
	}
	l.waveform = waveform
}

func (l *LFO) ID() string { return l.id }

// Step advances by dt seconds and returns the output at the new phase.
func (l *LFO) Step(dt float64) float64 {
	old := l.phase
	l.phase += l.rateHz * dt
	wrapped := l.phase >= 1
	l.phase -= math.Floor(l.phase)
	if l.waveform == WaveRandom && (wrapped || l.phase < old) {
		l.randVal = l.draw()
	}
	return l.offset + l.wave()*l.depth
}

func (l *LFO) wave() float64 {
	switch l.waveform {
	case WaveRandom:
		return l.randVal
	case WaveTriangle:
		if l.phase < 0.5 {
			return 4.0*l.phase - 1.0
		}
		return 3.0 - 4.0*l.phase
	default:
		return math.Sin(2 * math.Pi * l.phase)
	}
}

func (l *LFO) draw() float64 {
	if l.rng == nil {
		return 0
	}
	return l.rng.Float64()*2 - 1
}

func (l *LFO) Trigger(float64) {}
func (l *LFO) Release()        {}
func (l *LFO) Active() bool    { return l.depth != 0 && l.rateHz != 0 }

