package patch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Limits are the resource ceilings enforced at load time.
type Limits struct {
	MaxNodes      int     `json:"maxNodes"`
	MaxEventRate  float64 `json:"maxEventRate"`
	MaxPatchBytes int     `json:"maxPatchBytes"`
}

func DefaultLimits() Limits {
	return Limits{MaxNodes: 128, MaxEventRate: 400, MaxPatchBytes: 256 << 10}
}

// Decode parses a JSON or YAML patch document. JSON is detected by a
// leading '{'.
func Decode(data []byte) (*Patch, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("patch: empty document")
	}
	var p Patch
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("patch: decode json: %w", err)
		}
		return &p, nil
	}
	if err := yaml.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("patch: decode yaml: %w", err)
	}
	return &p, nil
}

// Encode renders the document as indented JSON.
func Encode(p *Patch) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// EncodeYAML renders the document as YAML.
func EncodeYAML(p *Patch) ([]byte, error) {
	return yaml.Marshal(p)
}

// Clone deep-copies a document. Nil slices and maps stay nil.
func (p *Patch) Clone() *Patch {
	if p == nil {
		return nil
	}
	out := *p
	if p.Macros != nil {
		out.Macros = make(map[string]float64, len(p.Macros))
		for k, v := range p.Macros {
			out.Macros[k] = v
		}
	}
	out.Nodes = cloneSlice(p.Nodes, func(n Node) Node {
		n.Params = n.Params.clone()
		return n
	})
	out.Connections = cloneSlice(p.Connections, func(c Connection) Connection { return c })
	out.Events = cloneSlice(p.Events, func(e Event) Event {
		e.Probability = clonePtr(e.Probability)
		e.Clock.Intervals = cloneSlice(e.Clock.Intervals, func(v float64) float64 { return v })
		e.Actions = cloneSlice(e.Actions, func(a Action) Action {
			a.PeakScale = cloneSlice(a.PeakScale, func(v float64) float64 { return v })
			return a
		})
		return e
	})
	out.Modulators = cloneSlice(p.Modulators, func(m Modulator) Modulator {
		m.Peak = clonePtr(m.Peak)
		m.PeakJitter = cloneSlice(m.PeakJitter, func(v float64) float64 { return v })
		return m
	})
	out.MacroMappings = cloneSlice(p.MacroMappings, MacroMapping.clone)
	out.Subpatches = cloneSlice(p.Subpatches, func(s Subpatch) Subpatch {
		s.Mix = clonePtr(s.Mix)
		s.Patch.Inline = s.Patch.Inline.Clone()
		return s
	})
	if p.Mixer != nil {
		m := *p.Mixer
		m.Inputs = cloneSlice(m.Inputs, func(s string) string { return s })
		out.Mixer = &m
	}
	return &out
}

func cloneSlice[T any](in []T, f func(T) T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

func (mm MacroMapping) clone() MacroMapping {
	mm.Targets = cloneSlice(mm.Targets, func(t MappingTarget) MappingTarget {
		t.Min, t.Max, t.Multiply = clonePtr(t.Min), clonePtr(t.Max), clonePtr(t.Multiply)
		return t
	})
	return mm
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
