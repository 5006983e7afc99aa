package patch

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cbegin/soundscape-go/internal/graph"
	"github.com/cbegin/soundscape-go/internal/macro"
	"github.com/cbegin/soundscape-go/internal/modulator"
	"github.com/cbegin/soundscape-go/internal/param"
	"github.com/cbegin/soundscape-go/internal/scheduler"
)

// EventFields are the event fields mappings and diffs may address.
var EventFields = []string{"rate", "interval", "jitter", "probability"}

// ModulatorTypes is the closed set of modulator types.
var ModulatorTypes = []string{"envelope", "adsr", "lfo", "randomwalk"}

// validator collects every error of one document pass.
type validator struct {
	p      *Patch
	limits Limits
	errs   ValidationErrors
	kinds  map[string]graph.Kind
	events map[string]*Event
	mods   map[string]bool
}

// Validate checks a flattened patch against every structural rule and the
// node and event-rate ceilings. Size is checked by Load, which sees the
// serialized bytes.
func Validate(p *Patch, limits Limits) ValidationErrors {
	v := &validator{
		p:      p,
		limits: limits,
		kinds:  map[string]graph.Kind{},
		events: map[string]*Event{},
		mods:   map[string]bool{},
	}
	v.macros()
	v.nodes()
	v.connections()
	v.eventDefs()
	v.modulators()
	v.actions()
	v.mappings()
	v.ceilings()
	return v.errs
}

func (v *validator) macros() {
	for name, val := range v.p.Macros {
		path := "macros." + name
		if _, ok := macro.Parse(name); !ok {
			v.errs.add(CodeUnknownMacro, path, "unknown macro %q", name)
			continue
		}
		if math.IsNaN(val) || val < 0 || val > 1 {
			v.errs.add(CodeMacroOutOfRange, path, "macro value %g is outside [0, 1]", val)
		}
	}
}

func (v *validator) nodes() {
	for i, n := range v.p.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		switch {
		case n.ID == "":
			v.errs.add(CodeInvalidValue, path+".id", "node id is empty")
			continue
		case n.ID == Output:
			v.errs.add(CodeDuplicateID, path+".id", "%q is the reserved output sentinel", Output)
			continue
		}
		if _, dup := v.kinds[n.ID]; dup {
			v.errs.add(CodeDuplicateID, path+".id", "duplicate node id %q", n.ID)
			continue
		}
		kind, ok := graph.ParseKind(n.Type)
		if !ok {
			v.errs.add(CodeUnknownNodeType, path+".type", "unknown node type %q for %q", n.Type, n.ID)
			v.kinds[n.ID] = -1
			continue
		}
		v.kinds[n.ID] = kind
		for _, name := range n.Params.Keys() {
			v.nodeParam(path+".params."+name, n.ID, kind, name, n.Params[name])
		}
	}
}

func (v *validator) nodeParam(path, id string, kind graph.Kind, name string, raw any) {
	spec, ok := kind.Param(name)
	if !ok {
		v.errs.add(CodeInvalidValue, path, "%s node %q has no parameter %q", kind, id, name)
		return
	}
	if spec.Choices != nil {
		s, isStr := raw.(string)
		if !isStr {
			v.errs.add(CodeInvalidValue, path, "%s must be one of %s", name, strings.Join(spec.Choices, ", "))
			return
		}
		if _, ok := spec.Choice(s); !ok {
			v.errs.add(CodeInvalidValue, path, "%s %q is not one of %s", name, s, strings.Join(spec.Choices, ", "))
		}
		return
	}
	f, isNum := toFloat(raw)
	switch {
	case !isNum:
		v.errs.add(CodeInvalidValue, path, "%s must be a number, got %s", name, describe(raw))
	case math.IsNaN(f) || math.IsInf(f, 0):
		v.errs.add(CodeInvalidValue, path, "%s must be finite", name)
	case f < spec.Min || f > spec.Max:
		v.errs.add(CodeInvalidValue, path, "%s %g is outside [%g, %g]", name, f, spec.Min, spec.Max)
	}
}

func (v *validator) connections() {
	resolved := true
	for i, c := range v.p.Connections {
		path := fmt.Sprintf("connections[%d]", i)
		if c.From == Output {
			v.errs.add(CodeUnresolvedEndpoint, path+".from", "the output sentinel cannot feed a node")
			resolved = false
		} else if _, ok := v.kinds[c.From]; !ok {
			v.errs.add(CodeUnresolvedEndpoint, path+".from", "unknown node %q", c.From)
			resolved = false
		}
		if c.To == Output {
			continue
		}
		if _, ok := v.kinds[c.To]; !ok {
			v.errs.add(CodeUnresolvedEndpoint, path+".to", "unknown node %q", c.To)
			resolved = false
		}
	}
	if !resolved {
		return
	}
	ids := make([]string, 0, len(v.p.Nodes))
	seen := map[string]bool{}
	for _, n := range v.p.Nodes {
		if n.ID != "" && n.ID != Output && !seen[n.ID] {
			seen[n.ID] = true
			ids = append(ids, n.ID)
		}
	}
	_, err := graph.Order(ids, v.p.Connections)
	var cyc *graph.CyclicConnectionError
	if errors.As(err, &cyc) {
		v.errs.add(CodeCyclicConnection, "connections", "connections form a cycle through %s", strings.Join(cyc.NodeIDs, " -> "))
	}
}

// paramTarget resolves "node.param" to a declared, writable parameter.
func (v *validator) paramTarget(path, target string) bool {
	t, err := param.ParseTarget(target)
	if err != nil {
		v.errs.add(CodeUnresolvedTarget, path, "%v", err)
		return false
	}
	kind, ok := v.kinds[t.Node]
	if !ok {
		v.errs.add(CodeUnresolvedTarget, path, "unknown node %q in %q", t.Node, target)
		return false
	}
	if kind < 0 {
		return false
	}
	spec, ok := kind.Param(t.Name)
	if !ok {
		v.errs.add(CodeUnresolvedTarget, path, "%s node %q has no parameter %q", kind, t.Node, t.Name)
		return false
	}
	if spec.Static() {
		v.errs.add(CodeInvalidValue, path, "%q is static and cannot be modulated", target)
		return false
	}
	return true
}

func (v *validator) eventDefs() {
	for i := range v.p.Events {
		e := &v.p.Events[i]
		path := fmt.Sprintf("events[%d]", i)
		if e.ID == "" {
			v.errs.add(CodeInvalidValue, path+".id", "event id is empty")
			continue
		}
		if _, dup := v.events[e.ID]; dup {
			v.errs.add(CodeDuplicateID, path+".id", "duplicate event id %q", e.ID)
			continue
		}
		v.events[e.ID] = e
		if _, ok := scheduler.ParseClock(e.Clock.Type); !ok {
			v.errs.add(CodeUnknownClock, path+".clock.type", "unknown clock %q", e.Clock.Type)
		} else if _, err := ClockOf(e.Clock); err != nil {
			v.errs.add(CodeInvalidValue, path+".clock", "%v", err)
		}
		if p := e.ProbabilityOrDefault(); math.IsNaN(p) || p < 0 || p > 1 {
			v.errs.add(CodeInvalidValue, path+".probability", "probability %g is outside [0, 1]", p)
		}
	}
}

// ClockOf converts a document clock to a scheduler clock.
func ClockOf(c Clock) (scheduler.Clock, error) {
	kind, ok := scheduler.ParseClock(c.Type)
	if !ok {
		return scheduler.Clock{}, fmt.Errorf("unknown clock %q", c.Type)
	}
	out := scheduler.Clock{Kind: kind, Jitter: c.Jitter, Intervals: c.Intervals}
	switch {
	case c.Rate != 0 && c.Interval != 0:
		return out, fmt.Errorf("set either rate or interval, not both")
	case c.Rate < 0 || math.IsNaN(c.Rate):
		return out, fmt.Errorf("rate must be > 0")
	case c.Rate > 0:
		out.Interval = 1 / c.Rate
	default:
		out.Interval = c.Interval
	}
	return out, out.Validate()
}

func (v *validator) modulators() {
	for i, m := range v.p.Modulators {
		path := fmt.Sprintf("modulators[%d]", i)
		if m.ID == "" {
			v.errs.add(CodeInvalidValue, path+".id", "modulator id is empty")
			continue
		}
		if v.mods[m.ID] {
			v.errs.add(CodeDuplicateID, path+".id", "duplicate modulator id %q", m.ID)
			continue
		}
		v.mods[m.ID] = true
		v.paramTarget(path+".target", m.Target)

		nonNeg := func(field string, x float64) {
			if math.IsNaN(x) || x < 0 {
				v.errs.add(CodeInvalidValue, path+"."+field, "%s must be >= 0", field)
			}
		}
		switch m.Type {
		case "envelope":
			nonNeg("attack", m.Attack)
			nonNeg("decay", m.Decay)
			v.scaleRange(path+".peakJitter", m.PeakJitter)
		case "adsr":
			nonNeg("attack", m.Attack)
			nonNeg("decay", m.Decay)
			nonNeg("release", m.Release)
			nonNeg("hold", m.Hold)
			if m.Sustain < 0 || m.Sustain > 1 {
				v.errs.add(CodeInvalidValue, path+".sustain", "sustain must be in [0, 1]")
			}
		case "lfo":
			nonNeg("rate", m.Rate)
			if _, ok := modulator.ParseWaveform(m.Waveform); !ok {
				v.errs.add(CodeInvalidValue, path+".waveform", "unknown waveform %q", m.Waveform)
			}
		case "randomwalk":
			nonNeg("rate", m.Rate)
			nonNeg("smoothing", m.Smoothing)
			if m.Min > m.Max {
				v.errs.add(CodeInvalidValue, path, "min %g exceeds max %g", m.Min, m.Max)
			}
		default:
			v.errs.add(CodeUnknownModulatorType, path+".type", "unknown modulator type %q (want one of %s)",
				m.Type, strings.Join(ModulatorTypes, ", "))
		}
	}
}

func (v *validator) scaleRange(path string, r []float64) {
	if r == nil {
		return
	}
	if len(r) != 2 || r[0] < 0 || r[0] > r[1] {
		v.errs.add(CodeInvalidValue, path, "want [lo, hi] with 0 <= lo <= hi")
	}
}

func (v *validator) actions() {
	for i, e := range v.p.Events {
		for j, a := range e.Actions {
			path := fmt.Sprintf("events[%d].actions[%d]", i, j)
			switch a.Type {
			case "trigger":
				if !v.mods[a.Modulator] {
					v.errs.add(CodeUnresolvedTarget, path+".modulator", "unknown modulator %q", a.Modulator)
				}
				v.scaleRange(path+".peakScale", a.PeakScale)
			case "release":
				if !v.mods[a.Modulator] {
					v.errs.add(CodeUnresolvedTarget, path+".modulator", "unknown modulator %q", a.Modulator)
				}
			case "set":
				v.paramTarget(path+".target", a.Target)
				if a.Min > a.Max {
					v.errs.add(CodeInvalidValue, path, "min %g exceeds max %g", a.Min, a.Max)
				}
				if a.Ramp < 0 {
					v.errs.add(CodeInvalidValue, path+".ramp", "ramp must be >= 0")
				}
			default:
				v.errs.add(CodeInvalidValue, path+".type", "unknown action type %q (want trigger, release or set)", a.Type)
			}
		}
	}
}

func (v *validator) mappings() {
	for i, mm := range v.p.MacroMappings {
		path := fmt.Sprintf("macroMappings[%d]", i)
		name, ok := macro.Parse(mm.Macro)
		if !ok {
			v.errs.add(CodeUnknownMacro, path+".macro", "unknown macro %q", mm.Macro)
			continue
		}
		for j, t := range mm.Targets {
			tpath := fmt.Sprintf("%s.targets[%d]", path, j)
			switch {
			case t.ID != "" && t.Event != "":
				v.errs.add(CodeInvalidValue, tpath, "set either id or event, not both")
				continue
			case t.ID != "":
				if !v.paramTarget(tpath+".id", t.ID) {
					continue
				}
			case t.Event != "":
				if !v.eventTarget(tpath+".event", t.Event) {
					continue
				}
			default:
				v.errs.add(CodeUnresolvedTarget, tpath, "mapping target needs id or event")
				continue
			}
			e, err := EntryOf(name, t)
			if err != nil {
				v.errs.add(CodeInvalidValue, tpath, "%v", err)
				continue
			}
			if t.Event != "" {
				_, field, _ := SplitEventTarget(t.Event)
				if err := checkEventRange(field, e); err != nil {
					v.errs.add(CodeInvalidValue, tpath, "%v", err)
				}
			}
		}
	}
}

// checkEventRange rejects entries that can drive a clock field to zero or
// below at some macro value. Jitter and probability are clamped when set.
func checkEventRange(field string, e macro.Entry) error {
	if field != "rate" && field != "interval" {
		return nil
	}
	if e.Relative {
		if 1+e.Multiply <= 0 {
			return fmt.Errorf("multiply %g can scale %s to %g of its baseline; want > -1", e.Multiply, field, 1+e.Multiply)
		}
		return nil
	}
	if e.Min <= 0 || e.Max <= 0 {
		return fmt.Errorf("%s must stay > 0 (mapping spans %g to %g)", field, e.Min, e.Max)
	}
	return nil
}

func (v *validator) eventTarget(path, target string) bool {
	id, field, err := SplitEventTarget(target)
	if err != nil {
		v.errs.add(CodeUnresolvedTarget, path, "%v", err)
		return false
	}
	if _, ok := v.events[id]; !ok {
		v.errs.add(CodeUnresolvedTarget, path, "unknown event %q in %q", id, target)
		return false
	}
	for _, f := range EventFields {
		if f == field {
			return true
		}
	}
	v.errs.add(CodeUnresolvedTarget, path, "event field %q is not one of %s", field, strings.Join(EventFields, ", "))
	return false
}

// SplitEventTarget splits "event.field".
func SplitEventTarget(s string) (string, string, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("malformed event target %q (want event.field)", s)
	}
	return s[:i], s[i+1:], nil
}

// EntryOf converts a mapping target to a macro entry.
func EntryOf(name macro.Name, t MappingTarget) (macro.Entry, error) {
	curve, ok := macro.ParseCurve(t.Map)
	if !ok {
		return macro.Entry{}, fmt.Errorf("unknown curve %q (want linear, exp or pow)", t.Map)
	}
	e := macro.Entry{Macro: name, Curve: curve, Exponent: t.Exp}
	switch {
	case t.Multiply != nil && (t.Min != nil || t.Max != nil):
		return e, fmt.Errorf("set either min/max or multiply, not both")
	case t.Multiply != nil:
		e.Relative = true
		e.Multiply = *t.Multiply
	case t.Min != nil && t.Max != nil:
		e.Min, e.Max = *t.Min, *t.Max
	default:
		return e, fmt.Errorf("mapping needs min and max, or multiply")
	}
	return e, e.Validate()
}

func (v *validator) ceilings() {
	if v.limits.MaxNodes > 0 && len(v.p.Nodes) > v.limits.MaxNodes {
		v.errs.add(CodeTooManyNodes, "nodes", "%d nodes exceed the limit of %d", len(v.p.Nodes), v.limits.MaxNodes)
	}
	if v.limits.MaxEventRate <= 0 {
		return
	}
	if total := PeakEventRate(v.p); total > v.limits.MaxEventRate {
		v.errs.add(CodeEventRateExceeded, "events", "aggregate event rate %.1f/s exceeds the limit of %.1f/s",
			total, v.limits.MaxEventRate)
	}
}

// PeakEventRate sums the highest rate each event can reach, counting
// the extremes of any macro mapping that drives its rate or interval.
func PeakEventRate(p *Patch) float64 {
	peak := map[string]float64{}
	for _, e := range p.Events {
		if c, err := ClockOf(e.Clock); err == nil {
			peak[e.ID] = c.Rate()
		}
	}
	for _, mm := range p.MacroMappings {
		for _, t := range mm.Targets {
			if t.Event == "" {
				continue
			}
			id, field, err := SplitEventTarget(t.Event)
			if err != nil {
				continue
			}
			cur, ok := peak[id]
			if !ok {
				continue
			}
			var r float64
			switch {
			case t.Multiply != nil:
				if field == "rate" && *t.Multiply > 0 {
					r = cur * (1 + *t.Multiply)
				}
			case t.Min == nil || t.Max == nil:
			case field == "rate":
				r = math.Max(*t.Min, *t.Max)
			case field == "interval":
				if lo := math.Min(*t.Min, *t.Max); lo > 0 {
					r = 1 / lo
				}
			}
			peak[id] = math.Max(cur, r)
		}
	}
	var total float64
	for _, r := range peak {
		total += r
	}
	return total
}
