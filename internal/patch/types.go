// Package patch defines the patch document, its decoding, validation,
// subpatch flattening, diffs and human-readable summaries.
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/soundscape-go/internal/graph"
)

// Output is the sentinel connection endpoint for the final output bus.
const Output = graph.Output

type Patch struct {
	Meta          Meta               `json:"meta" yaml:"meta"`
	Macros        map[string]float64 `json:"macros,omitempty" yaml:"macros,omitempty"`
	Nodes         []Node             `json:"nodes" yaml:"nodes"`
	Connections   []Connection       `json:"connections" yaml:"connections"`
	Events        []Event            `json:"events,omitempty" yaml:"events,omitempty"`
	Modulators    []Modulator        `json:"modulators,omitempty" yaml:"modulators,omitempty"`
	MacroMappings []MacroMapping     `json:"macroMappings,omitempty" yaml:"macroMappings,omitempty"`
	Subpatches    []Subpatch         `json:"subpatches,omitempty" yaml:"subpatches,omitempty"`
	Mixer         *Mixer             `json:"mixer,omitempty" yaml:"mixer,omitempty"`
}

type Meta struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

type Node struct {
	ID     string `json:"id" yaml:"id"`
	Type   string `json:"type" yaml:"type"`
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

type Connection = graph.Connection

type Clock struct {
	Type      string    `json:"type" yaml:"type"`
	Rate      float64   `json:"rate,omitempty" yaml:"rate,omitempty"`
	Interval  float64   `json:"interval,omitempty" yaml:"interval,omitempty"`
	Jitter    float64   `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	Intervals []float64 `json:"intervals,omitempty" yaml:"intervals,omitempty"`
}

type Event struct {
	ID          string   `json:"id" yaml:"id"`
	Clock       Clock    `json:"clock" yaml:"clock"`
	Probability *float64 `json:"probability,omitempty" yaml:"probability,omitempty"`
	Actions     []Action `json:"actions" yaml:"actions"`
}

// ProbabilityOrDefault returns the dispatch probability, 1 when unset.
func (e Event) ProbabilityOrDefault() float64 {
	if e.Probability == nil {
		return 1
	}
	return *e.Probability
}

// Action is either {type: trigger, modulator, peakScale?} or
// {type: set, target, min, max, ramp?}.
type Action struct {
	Type      string    `json:"type" yaml:"type"`
	Modulator string    `json:"modulator,omitempty" yaml:"modulator,omitempty"`
	PeakScale []float64 `json:"peakScale,omitempty" yaml:"peakScale,omitempty"`
	Target    string    `json:"target,omitempty" yaml:"target,omitempty"`
	Min       float64   `json:"min,omitempty" yaml:"min,omitempty"`
	Max       float64   `json:"max,omitempty" yaml:"max,omitempty"`
	Ramp      float64   `json:"ramp,omitempty" yaml:"ramp,omitempty"`
}

// Modulator carries the fields of every modulator type; each type reads
// its own subset.
type Modulator struct {
	ID     string `json:"id" yaml:"id"`
	Type   string `json:"type" yaml:"type"`
	Target string `json:"target" yaml:"target"`

	Attack     float64   `json:"attack,omitempty" yaml:"attack,omitempty"`
	Decay      float64   `json:"decay,omitempty" yaml:"decay,omitempty"`
	Sustain    float64   `json:"sustain,omitempty" yaml:"sustain,omitempty"`
	Release    float64   `json:"release,omitempty" yaml:"release,omitempty"`
	Hold       float64   `json:"hold,omitempty" yaml:"hold,omitempty"`
	Peak       *float64  `json:"peak,omitempty" yaml:"peak,omitempty"`
	PeakJitter []float64 `json:"peakJitter,omitempty" yaml:"peakJitter,omitempty"`
	Base       float64   `json:"base,omitempty" yaml:"base,omitempty"`

	Waveform string  `json:"waveform,omitempty" yaml:"waveform,omitempty"`
	Rate     float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	Depth    float64 `json:"depth,omitempty" yaml:"depth,omitempty"`
	Offset   float64 `json:"offset,omitempty" yaml:"offset,omitempty"`

	Min       float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Smoothing float64 `json:"smoothing,omitempty" yaml:"smoothing,omitempty"`
}

// PeakOrDefault returns the envelope peak, 1 when unset.
func (m Modulator) PeakOrDefault() float64 {
	if m.Peak == nil {
		return 1
	}
	return *m.Peak
}

type MacroMapping struct {
	Macro   string          `json:"macro" yaml:"macro"`
	Targets []MappingTarget `json:"targets" yaml:"targets"`
}

// MappingTarget addresses a node parameter ("node.param" in ID) or an
// event field ("event.field" in Event). Min/Max make it absolute,
// Multiply relative to the target's baseline.
type MappingTarget struct {
	ID       string   `json:"id,omitempty" yaml:"id,omitempty"`
	Event    string   `json:"event,omitempty" yaml:"event,omitempty"`
	Map      string   `json:"map,omitempty" yaml:"map,omitempty"`
	Min      *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Multiply *float64 `json:"multiply,omitempty" yaml:"multiply,omitempty"`
	Exp      float64  `json:"exp,omitempty" yaml:"exp,omitempty"`
}

type Subpatch struct {
	ID    string      `json:"id" yaml:"id"`
	Patch SubpatchRef `json:"patch" yaml:"patch"`
	Mix   *float64    `json:"mix,omitempty" yaml:"mix,omitempty"`
}

// MixOrDefault returns the subpatch mix level, 1 when unset.
func (s Subpatch) MixOrDefault() float64 {
	if s.Mix == nil {
		return 1
	}
	return *s.Mix
}

// SubpatchRef is either an inline patch or the name of one known to the
// engine's resolver.
type SubpatchRef struct {
	Name   string
	Inline *Patch
}

func (r SubpatchRef) MarshalJSON() ([]byte, error) {
	if r.Inline != nil {
		return json.Marshal(r.Inline)
	}
	return json.Marshal(r.Name)
}

func (r *SubpatchRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		r.Inline = nil
		return json.Unmarshal(data, &r.Name)
	}
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	r.Name, r.Inline = "", &p
	return nil
}

func (r SubpatchRef) MarshalYAML() (interface{}, error) {
	if r.Inline != nil {
		return r.Inline, nil
	}
	return r.Name, nil
}

func (r *SubpatchRef) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		r.Inline = nil
		return value.Decode(&r.Name)
	case yaml.MappingNode:
		var p Patch
		if err := value.Decode(&p); err != nil {
			return err
		}
		r.Name, r.Inline = "", &p
		return nil
	}
	return fmt.Errorf("patch: subpatch must be a name or an inline patch (line %d)", value.Line)
}

// Mixer describes the node that sums subpatch outputs.
type Mixer struct {
	ID     string   `json:"id,omitempty" yaml:"id,omitempty"`
	Type   string   `json:"type,omitempty" yaml:"type,omitempty"`
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Output string   `json:"output,omitempty" yaml:"output,omitempty"`
}

// DefaultMixerID names the generated subpatch mixer.
const DefaultMixerID = "submix"

func (m *Mixer) id() string {
	if m == nil || m.ID == "" {
		return DefaultMixerID
	}
	return m.ID
}

func (m *Mixer) output() string {
	if m == nil || m.Output == "" {
		return Output
	}
	return m.Output
}
