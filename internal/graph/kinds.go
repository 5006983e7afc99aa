package graph

import (
	"strings"

	"github.com/cbegin/soundscape-go/internal/param"
)

// Kind is the closed set of node types a patch may declare.
type Kind int

const (
	Noise Kind = iota
	Oscillator
	Filter
	Gain
	Waveshaper
	RingMod
	Panner
	Delay
	Reverb
	Compressor
	Mixer
)

var kindNames = [...]string{
	Noise:      "noise",
	Oscillator: "oscillator",
	Filter:     "filter",
	Gain:       "gain",
	Waveshaper: "waveshaper",
	RingMod:    "ringmod",
	Panner:     "panner",
	Delay:      "delay",
	Reverb:     "reverb",
	Compressor: "compressor",
	Mixer:      "mixer",
}

var kindAliases = map[string]Kind{
	"osc":            Oscillator,
	"biquad":         Filter,
	"shaper":         Waveshaper,
	"ringmodulator":  RingMod,
	"ring-modulator": RingMod,
	"pan":            Panner,
	"stereopanner":   Panner,
	"convolver":      Reverb,
	"convolution":    Reverb,
	"dynamics":       Compressor,
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, bool) {
	key := strings.ToLower(s)
	for i, n := range kindNames {
		if n == key {
			return Kind(i), true
		}
	}
	k, ok := kindAliases[key]
	return k, ok
}

// IsSource reports whether the kind generates signal and ignores inputs.
func (k Kind) IsSource() bool {
	return k == Noise || k == Oscillator
}

// ParamSpec declares one parameter of a node kind.
type ParamSpec struct {
	Name     string
	Default  float64
	Min, Max float64
	Policy   param.Policy
	// Choices lists the spellings of an enumerated static parameter; the
	// numeric value is the index.
	Choices []string
}

func (s ParamSpec) Static() bool { return s.Policy.Kind == param.Static }

// Choice returns the index of name among the choices.
func (s ParamSpec) Choice(name string) (int, bool) {
	for i, c := range s.Choices {
		if strings.EqualFold(c, name) {
			return i, true
		}
	}
	return 0, false
}

func smooth(name string, def, lo, hi float64) ParamSpec {
	return ParamSpec{Name: name, Default: def, Min: lo, Max: hi, Policy: param.DefaultPolicy()}
}

func logSmooth(name string, def, lo, hi float64) ParamSpec {
	return ParamSpec{Name: name, Default: def, Min: lo, Max: hi, Policy: param.LogPolicy()}
}

func static(name string, def, lo, hi float64) ParamSpec {
	return ParamSpec{Name: name, Default: def, Min: lo, Max: hi, Policy: param.StaticPolicy()}
}

func choice(name string, choices ...string) ParamSpec {
	return ParamSpec{Name: name, Max: float64(len(choices) - 1), Policy: param.StaticPolicy(), Choices: choices}
}

var kindParams = [...][]ParamSpec{
	Noise: {
		choice("color", "white", "pink", "brown"),
		smooth("gain", 1, 0, 4),
	},
	Oscillator: {
		choice("waveform", "sine", "triangle", "saw", "square"),
		logSmooth("frequency", 220, 0.01, 20000),
		smooth("gain", 1, 0, 4),
	},
	Filter: {
		choice("mode", "lowpass", "highpass", "bandpass", "notch"),
		logSmooth("frequency", 1000, 10, 22000),
		smooth("q", 0.707, 0.05, 40),
	},
	Gain: {
		smooth("gain", 1, 0, 8),
	},
	Waveshaper: {
		smooth("drive", 1, 0.1, 50),
		smooth("mix", 1, 0, 1),
	},
	RingMod: {
		logSmooth("frequency", 30, 0.01, 5000),
		smooth("mix", 1, 0, 1),
	},
	Panner: {
		smooth("pan", 0, -1, 1),
	},
	Delay: {
		{Name: "time", Default: 0.25, Min: 0.001, Max: 10, Policy: param.Policy{Kind: param.Exponential, TimeConstant: 0.08}},
		static("maxTime", 2, 0.01, 10),
		smooth("feedback", 0.3, 0, 0.98),
		smooth("mix", 0.3, 0, 1),
	},
	Reverb: {
		choice("algorithm", "convolution", "schroeder"),
		static("seconds", 2, 0.1, 10),
		static("decay", 3, 0.1, 60),
		smooth("mix", 0.3, 0, 1),
	},
	Compressor: {
		smooth("threshold", -18, -60, 0),
		smooth("ratio", 4, 1, 20),
		smooth("attack", 0.005, 0.0001, 1),
		smooth("release", 0.1, 0.001, 5),
		smooth("makeup", 0, -24, 24),
	},
	Mixer: {
		smooth("gain", 1, 0, 8),
	},
}

// Params lists the declared parameters of k.
func (k Kind) Params() []ParamSpec {
	if k < 0 || int(k) >= len(kindParams) {
		return nil
	}
	return kindParams[k]
}

func (k Kind) Param(name string) (ParamSpec, bool) {
	for _, p := range k.Params() {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}
