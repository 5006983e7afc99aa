package patch

import (
	"fmt"
	"math"

	"github.com/cbegin/soundscape-go/internal/graph"
	"github.com/cbegin/soundscape-go/internal/macro"
	"github.com/cbegin/soundscape-go/internal/param"
	"github.com/cbegin/soundscape-go/internal/scheduler"
)

// OpKind names a diff operation.
type OpKind string

const (
	OpAddNode    OpKind = "add_node"
	OpRemoveNode OpKind = "remove_node"
	OpSetParam   OpKind = "set_param"
	OpSetMapping OpKind = "set_mapping"
	OpSetEvent   OpKind = "set_event"
)

// Diff is an ordered list of edits applied as one unit.
type Diff struct {
	Ops []Op `json:"ops" yaml:"ops"`
}

// Op is one edit. Fields are read according to Op.
type Op struct {
	Op OpKind `json:"op" yaml:"op"`

	// add_node
	Node        *Node        `json:"node,omitempty" yaml:"node,omitempty"`
	Connections []Connection `json:"connections,omitempty" yaml:"connections,omitempty"`

	// remove_node, set_event
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// set_param
	Target string   `json:"target,omitempty" yaml:"target,omitempty"`
	Value  *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Ramp   float64  `json:"ramp,omitempty" yaml:"ramp,omitempty"`

	// set_mapping
	Mapping *MacroMapping `json:"mapping,omitempty" yaml:"mapping,omitempty"`

	// set_event
	Rate        *float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	Interval    *float64 `json:"interval,omitempty" yaml:"interval,omitempty"`
	Probability *float64 `json:"probability,omitempty" yaml:"probability,omitempty"`
	Jitter      *float64 `json:"jitter,omitempty" yaml:"jitter,omitempty"`
}

// ParamChange is a live parameter write produced by a diff.
type ParamChange struct {
	Target param.Target
	Value  float64
	Ramp   float64
}

// EventChange is a live event-field write produced by a diff.
type EventChange struct {
	Event string
	Field string
	Value float64
}

// Changes classifies what applying a diff requires of a running engine.
type Changes struct {
	// Structural edits change the node or connection set and need a
	// recompile between render calls.
	Structural bool
	Params     []ParamChange
	Events     []EventChange
	Mappings   bool
}

// ApplyDiff applies d to a copy of doc. doc itself is never modified; on
// error nothing has changed. The result still has to be validated.
func ApplyDiff(doc *Patch, d Diff) (*Patch, Changes, error) {
	var ch Changes
	if doc == nil {
		return nil, ch, fmt.Errorf("patch: no document to diff")
	}
	out := doc.Clone()
	for i, op := range d.Ops {
		var err error
		switch op.Op {
		case OpAddNode:
			err = addNode(out, op)
			ch.Structural = true
		case OpRemoveNode:
			err = removeNode(out, op.ID)
			ch.Structural = true
		case OpSetParam:
			var pc ParamChange
			pc, err = setParam(out, op)
			ch.Params = append(ch.Params, pc)
		case OpSetMapping:
			err = setMapping(out, op.Mapping)
			ch.Mappings = true
		case OpSetEvent:
			var ec []EventChange
			ec, err = setEvent(out, op)
			ch.Events = append(ch.Events, ec...)
		default:
			err = fmt.Errorf("unknown op %q", op.Op)
		}
		if err != nil {
			return nil, Changes{}, fmt.Errorf("patch: diff op %d (%s): %w", i, op.Op, err)
		}
	}
	return out, ch, nil
}

func addNode(p *Patch, op Op) error {
	if op.Node == nil {
		return fmt.Errorf("missing node")
	}
	n := *op.Node
	n.Params = n.Params.clone()
	p.Nodes = append(p.Nodes, n)
	p.Connections = append(p.Connections, op.Connections...)
	return nil
}

// removeNode drops the node, its connections and every modulator, action
// and mapping target addressing it.
func removeNode(p *Patch, id string) error {
	idx := -1
	for i, n := range p.Nodes {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("unknown node %q", id)
	}
	p.Nodes = append(p.Nodes[:idx:idx], p.Nodes[idx+1:]...)

	refers := func(target string) bool {
		t, err := param.ParseTarget(target)
		return err == nil && t.Node == id
	}
	conns := p.Connections[:0:0]
	for _, c := range p.Connections {
		if c.From != id && c.To != id {
			conns = append(conns, c)
		}
	}
	p.Connections = conns

	removedMods := map[string]bool{}
	mods := p.Modulators[:0:0]
	for _, m := range p.Modulators {
		if refers(m.Target) {
			removedMods[m.ID] = true
			continue
		}
		mods = append(mods, m)
	}
	p.Modulators = mods

	for i := range p.Events {
		acts := p.Events[i].Actions[:0:0]
		for _, a := range p.Events[i].Actions {
			if (a.Type == "set" && refers(a.Target)) || (a.Type != "set" && removedMods[a.Modulator]) {
				continue
			}
			acts = append(acts, a)
		}
		p.Events[i].Actions = acts
	}

	for i := range p.MacroMappings {
		ts := p.MacroMappings[i].Targets[:0:0]
		for _, t := range p.MacroMappings[i].Targets {
			if t.ID != "" && refers(t.ID) {
				continue
			}
			ts = append(ts, t)
		}
		p.MacroMappings[i].Targets = ts
	}
	return nil
}

func setParam(p *Patch, op Op) (ParamChange, error) {
	if op.Value == nil {
		return ParamChange{}, fmt.Errorf("missing value")
	}
	t, err := param.ParseTarget(op.Target)
	if err != nil {
		return ParamChange{}, err
	}
	if op.Ramp < 0 || math.IsNaN(op.Ramp) {
		return ParamChange{}, fmt.Errorf("ramp must be >= 0")
	}
	for i := range p.Nodes {
		n := &p.Nodes[i]
		if n.ID != t.Node {
			continue
		}
		kind, ok := graph.ParseKind(n.Type)
		if !ok {
			return ParamChange{}, fmt.Errorf("node %q has unknown type %q", n.ID, n.Type)
		}
		spec, ok := kind.Param(t.Name)
		if !ok {
			return ParamChange{}, fmt.Errorf("%w: %s", param.ErrUnresolvedTarget, op.Target)
		}
		if spec.Static() {
			return ParamChange{}, fmt.Errorf("%s: %w", op.Target, param.ErrStaticParam)
		}
		if n.Params == nil {
			n.Params = Params{}
		}
		n.Params[t.Name] = *op.Value
		return ParamChange{Target: t, Value: *op.Value, Ramp: op.Ramp}, nil
	}
	return ParamChange{}, fmt.Errorf("%w: %s", param.ErrUnresolvedTarget, op.Target)
}

// setMapping replaces every mapping of the same macro, or appends.
func setMapping(p *Patch, mm *MacroMapping) error {
	if mm == nil {
		return fmt.Errorf("missing mapping")
	}
	name, ok := macro.Parse(mm.Macro)
	if !ok {
		return fmt.Errorf("unknown macro %q", mm.Macro)
	}
	kept := p.MacroMappings[:0:0]
	inserted := false
	for _, existing := range p.MacroMappings {
		if n, ok := macro.Parse(existing.Macro); ok && n == name {
			if !inserted {
				kept = append(kept, mm.clone())
				inserted = true
			}
			continue
		}
		kept = append(kept, existing)
	}
	if !inserted {
		kept = append(kept, mm.clone())
	}
	p.MacroMappings = kept
	return nil
}

func setEvent(p *Patch, op Op) ([]EventChange, error) {
	for i := range p.Events {
		e := &p.Events[i]
		if e.ID != op.ID {
			continue
		}
		var out []EventChange
		if op.Rate != nil && op.Interval != nil {
			return nil, fmt.Errorf("set either rate or interval, not both")
		}
		if op.Rate != nil {
			if *op.Rate <= 0 {
				return nil, fmt.Errorf("rate must be > 0")
			}
			retime(&e.Clock, 1 / *op.Rate)
			out = append(out, EventChange{Event: e.ID, Field: "rate", Value: *op.Rate})
		}
		if op.Interval != nil {
			if *op.Interval <= 0 {
				return nil, fmt.Errorf("interval must be > 0")
			}
			retime(&e.Clock, *op.Interval)
			out = append(out, EventChange{Event: e.ID, Field: "interval", Value: *op.Interval})
		}
		if op.Jitter != nil {
			e.Clock.Jitter = *op.Jitter
			out = append(out, EventChange{Event: e.ID, Field: "jitter", Value: *op.Jitter})
		}
		if op.Probability != nil {
			v := *op.Probability
			e.Probability = &v
			out = append(out, EventChange{Event: e.ID, Field: "probability", Value: v})
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("event %q: nothing to change", op.ID)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown event %q", op.ID)
}

// retime sets the mean interval, stretching an interval sequence to keep
// its shape.
func retime(c *Clock, mean float64) {
	if kind, _ := scheduler.ParseClock(c.Type); kind == scheduler.Pattern && len(c.Intervals) > 0 {
		var sum float64
		for _, v := range c.Intervals {
			sum += v
		}
		k := mean * float64(len(c.Intervals)) / sum
		for i := range c.Intervals {
			c.Intervals[i] *= k
		}
		return
	}
	if c.Rate > 0 {
		c.Rate = 1 / mean
		return
	}
	c.Interval = mean
}
