package patch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cbegin/soundscape-go/internal/graph"
	"github.com/cbegin/soundscape-go/internal/macro"
)

// Summary renders a short human-readable description of a patch: macros,
// node counts, signal chains, events, modulators and mappings.
func Summary(p *Patch) string {
	if p == nil {
		return "no patch loaded\n"
	}
	var b strings.Builder
	name := p.Meta.Name
	if name == "" {
		name = "untitled"
	}
	if p.Meta.Version != "" {
		fmt.Fprintf(&b, "%s (v%s)\n", name, p.Meta.Version)
	} else {
		fmt.Fprintf(&b, "%s\n", name)
	}

	if len(p.Macros) > 0 {
		parts := make([]string, 0, len(p.Macros))
		for _, n := range macro.Names() {
			for k, v := range p.Macros {
				if m, ok := macro.Parse(k); ok && m == n {
					parts = append(parts, fmt.Sprintf("%s=%.2f", n, v))
				}
			}
		}
		fmt.Fprintf(&b, "macros: %s\n", strings.Join(parts, " "))
	}

	counts := map[string]int{}
	for _, n := range p.Nodes {
		counts[n.Type]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%d %s", counts[k], k)
	}
	fmt.Fprintf(&b, "nodes: %d (%s)\n", len(p.Nodes), strings.Join(parts, ", "))

	if chains := signalChains(p); len(chains) > 0 {
		b.WriteString("chains:\n")
		for _, c := range chains {
			fmt.Fprintf(&b, "  %s\n", strings.Join(c, " -> "))
		}
	}

	if len(p.Events) > 0 {
		b.WriteString("events:\n")
		for _, e := range p.Events {
			rate := "?"
			if c, err := ClockOf(e.Clock); err == nil {
				rate = fmt.Sprintf("%.2f/s", c.Rate())
			}
			clock := e.Clock.Type
			if clock == "" {
				clock = "poisson"
			}
			line := fmt.Sprintf("  %s: %s %s", e.ID, clock, rate)
			if prob := e.ProbabilityOrDefault(); prob < 1 {
				line += fmt.Sprintf(" p=%.2f", prob)
			}
			acts := make([]string, 0, len(e.Actions))
			for _, a := range e.Actions {
				switch a.Type {
				case "trigger":
					acts = append(acts, "trigger "+a.Modulator)
				case "release":
					acts = append(acts, "release "+a.Modulator)
				case "set":
					acts = append(acts, fmt.Sprintf("set %s [%g, %g]", a.Target, a.Min, a.Max))
				}
			}
			if len(acts) > 0 {
				line += " -> " + strings.Join(acts, ", ")
			}
			b.WriteString(line + "\n")
		}
	}

	if len(p.Modulators) > 0 {
		b.WriteString("modulators:\n")
		for _, m := range p.Modulators {
			fmt.Fprintf(&b, "  %s: %s on %s\n", m.ID, m.Type, m.Target)
		}
	}

	if len(p.MacroMappings) > 0 {
		b.WriteString("mappings:\n")
		for _, mm := range p.MacroMappings {
			ts := make([]string, 0, len(mm.Targets))
			for _, t := range mm.Targets {
				target := t.ID
				if target == "" {
					target = t.Event
				}
				curve := t.Map
				if curve == "" {
					curve = "linear"
				}
				switch {
				case t.Multiply != nil:
					ts = append(ts, fmt.Sprintf("%s x(1%+g*v)", target, *t.Multiply))
				case t.Min != nil && t.Max != nil:
					ts = append(ts, fmt.Sprintf("%s %s[%g, %g]", target, curve, *t.Min, *t.Max))
				default:
					ts = append(ts, target)
				}
			}
			fmt.Fprintf(&b, "  %s: %s\n", mm.Macro, strings.Join(ts, "; "))
		}
	}

	if len(p.Subpatches) > 0 {
		b.WriteString("subpatches:\n")
		for _, sp := range p.Subpatches {
			src := sp.Patch.Name
			if sp.Patch.Inline != nil {
				src = "inline " + sp.Patch.Inline.Meta.Name
			}
			fmt.Fprintf(&b, "  %s: %s mix=%.2f\n", sp.ID, strings.TrimSpace(src), sp.MixOrDefault())
		}
	}
	return b.String()
}

// signalChains lists every path from a node without inputs to the output
// sentinel. Cycles and unknown ids are tolerated.
func signalChains(p *Patch) [][]string {
	out := map[string][]string{}
	hasInput := map[string]bool{}
	for _, c := range p.Connections {
		out[c.From] = append(out[c.From], c.To)
		hasInput[c.To] = true
	}
	var chains [][]string
	var walk func(id string, path []string, seen map[string]bool)
	walk = func(id string, path []string, seen map[string]bool) {
		if len(chains) >= 32 {
			return
		}
		path = append(path, id)
		if id == graph.Output {
			chains = append(chains, append([]string(nil), path...))
			return
		}
		if seen[id] {
			return
		}
		seen[id] = true
		for _, next := range out[id] {
			walk(next, path, seen)
		}
		delete(seen, id)
	}
	for _, n := range p.Nodes {
		if !hasInput[n.ID] {
			walk(n.ID, nil, map[string]bool{})
		}
	}
	return chains
}
