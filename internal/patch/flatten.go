package patch

import (
	"fmt"
	"math"
	"strings"
)

// MaxSubpatchDepth bounds subpatch nesting.
const MaxSubpatchDepth = 4

// Resolver supplies named subpatches.
type Resolver interface {
	Subpatch(name string) (*Patch, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (*Patch, error)

func (f ResolverFunc) Subpatch(name string) (*Patch, error) { return f(name) }

// MapResolver serves subpatches from a fixed set.
type MapResolver map[string]*Patch

func (m MapResolver) Subpatch(name string) (*Patch, error) {
	p, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("unknown subpatch %q", name)
	}
	return p, nil
}

// Flatten expands every subpatch into the parent. A subpatch's ids are
// prefixed with "<subpatch id>/"; its connections to the output sentinel
// feed a generated gain node "<subpatch id>/mix" set to the subpatch's
// mix level, which feeds the mixer node. The result has no subpatches.
func Flatten(p *Patch, resolve Resolver) (*Patch, ValidationErrors) {
	var errs ValidationErrors
	out := flatten(p, resolve, 0, "", &errs)
	return out, errs
}

func flatten(p *Patch, resolve Resolver, depth int, path string, errs *ValidationErrors) *Patch {
	out := p.Clone()
	out.Subpatches = nil
	out.Mixer = nil
	if len(p.Subpatches) == 0 {
		return out
	}
	if depth >= MaxSubpatchDepth {
		errs.add(CodeSubpatch, path+"subpatches", "subpatches nest deeper than %d levels", MaxSubpatchDepth)
		return out
	}

	mixerID := p.Mixer.id()
	mixIDs := map[string]string{}
	for i, sp := range p.Subpatches {
		spath := fmt.Sprintf("%ssubpatches[%d]", path, i)
		switch {
		case sp.ID == "":
			errs.add(CodeInvalidValue, spath+".id", "subpatch id is empty")
			continue
		case strings.Contains(sp.ID, "/"):
			errs.add(CodeInvalidValue, spath+".id", "subpatch id %q may not contain '/'", sp.ID)
			continue
		}
		if _, dup := mixIDs[sp.ID]; dup {
			errs.add(CodeDuplicateID, spath+".id", "duplicate subpatch id %q", sp.ID)
			continue
		}
		if mix := sp.MixOrDefault(); math.IsNaN(mix) || mix < 0 {
			errs.add(CodeInvalidValue, spath+".mix", "mix must be >= 0")
		}

		child := sp.Patch.Inline
		if child == nil {
			var err error
			switch {
			case sp.Patch.Name == "":
				err = fmt.Errorf("subpatch %q has neither an inline patch nor a name", sp.ID)
			case resolve == nil:
				err = fmt.Errorf("no resolver for named subpatch %q", sp.Patch.Name)
			default:
				child, err = resolve.Subpatch(sp.Patch.Name)
			}
			if err != nil {
				errs.add(CodeSubpatch, spath+".patch", "%v", err)
				continue
			}
		}

		flat := flatten(child, resolve, depth+1, spath+".patch.", errs)
		prefix := sp.ID + "/"
		mixID := prefix + "mix"
		mixIDs[sp.ID] = mixID
		namespace(flat, prefix, mixID)

		out.Nodes = append(out.Nodes, flat.Nodes...)
		out.Nodes = append(out.Nodes, Node{ID: mixID, Type: "gain", Params: Params{"gain": sp.MixOrDefault()}})
		out.Connections = append(out.Connections, flat.Connections...)
		out.Events = append(out.Events, flat.Events...)
		out.Modulators = append(out.Modulators, flat.Modulators...)
		out.MacroMappings = append(out.MacroMappings, flat.MacroMappings...)
	}

	if p.Mixer != nil {
		switch p.Mixer.Type {
		case "", "mixer", "gain":
		default:
			errs.add(CodeUnknownNodeType, path+"mixer.type", "unknown mixer type %q", p.Mixer.Type)
		}
	}
	inputs := make([]string, 0, len(p.Subpatches))
	if p.Mixer != nil && len(p.Mixer.Inputs) > 0 {
		for i, in := range p.Mixer.Inputs {
			if _, ok := mixIDs[in]; !ok {
				errs.add(CodeUnresolvedEndpoint, fmt.Sprintf("%smixer.inputs[%d]", path, i), "unknown subpatch %q", in)
				continue
			}
			inputs = append(inputs, in)
		}
	} else {
		for _, sp := range p.Subpatches {
			if _, ok := mixIDs[sp.ID]; ok {
				inputs = append(inputs, sp.ID)
			}
		}
	}

	out.Nodes = append(out.Nodes, Node{ID: mixerID, Type: "mixer"})
	for _, in := range inputs {
		out.Connections = append(out.Connections, Connection{From: mixIDs[in], To: mixerID})
	}
	out.Connections = append(out.Connections, Connection{From: mixerID, To: p.Mixer.output()})
	return out
}

// namespace prefixes every id and reference of p in place; connections
// to the output sentinel are redirected to outputID.
func namespace(p *Patch, prefix, outputID string) {
	for i := range p.Nodes {
		p.Nodes[i].ID = prefix + p.Nodes[i].ID
	}
	for i, c := range p.Connections {
		if c.From != Output {
			c.From = prefix + c.From
		}
		if c.To == Output {
			c.To = outputID
		} else {
			c.To = prefix + c.To
		}
		p.Connections[i] = c
	}
	for i := range p.Events {
		e := &p.Events[i]
		e.ID = prefix + e.ID
		for j := range e.Actions {
			a := &e.Actions[j]
			if a.Modulator != "" {
				a.Modulator = prefix + a.Modulator
			}
			if a.Target != "" {
				a.Target = prefix + a.Target
			}
		}
	}
	for i := range p.Modulators {
		p.Modulators[i].ID = prefix + p.Modulators[i].ID
		p.Modulators[i].Target = prefix + p.Modulators[i].Target
	}
	for i := range p.MacroMappings {
		for j := range p.MacroMappings[i].Targets {
			t := &p.MacroMappings[i].Targets[j]
			if t.ID != "" {
				t.ID = prefix + t.ID
			}
			if t.Event != "" {
				t.Event = prefix + t.Event
			}
		}
	}
}
