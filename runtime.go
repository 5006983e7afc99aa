package soundscape

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/cbegin/soundscape-go/internal/graph"
	"github.com/cbegin/soundscape-go/internal/macro"
	"github.com/cbegin/soundscape-go/internal/modulator"
	"github.com/cbegin/soundscape-go/internal/param"
	"github.com/cbegin/soundscape-go/internal/patch"
	"github.com/cbegin/soundscape-go/internal/scheduler"
)

// mapKey identifies a macro mapping target. Parameter and event keys carry
// different prefixes so ids can never collide.
type mapKey struct {
	param param.Target
	event string
	field string
}

// String is the target as written in a patch.
func (k mapKey) String() string {
	if k.event != "" {
		return k.event + "." + k.field
	}
	return k.param.String()
}

func paramKey(t param.Target) string    { return "param:" + t.String() }
func eventKey(id, field string) string { return "event:" + id + "." + field }

// runtime is everything compiled from one flattened patch: the graph and
// its bus, the modulator set, the scheduler and the macro mapper. The
// render goroutine owns the graph and modulators; the control path owns
// the mapper. A runtime is built once and torn down once.
type runtime struct {
	loadID  string
	graph   *graph.Graph
	mods    *modulator.Set
	sched   *scheduler.Scheduler
	mapper  *macro.Mapper
	targets map[string]mapKey
}

// Modulator resolves a trigger action target.
func (rt *runtime) Modulator(id string) (int, bool) {
	return rt.mods.Index(id)
}

// Param resolves a set action target.
func (rt *runtime) Param(target string) (*param.Param, bool) {
	t, err := param.ParseTarget(target)
	if err != nil {
		return nil, false
	}
	return rt.graph.Bus().Lookup(t)
}

func (e *Engine) buildRuntime(flat *patch.Patch, loadID string, macros [macro.Count]float64) (*runtime, error) {
	mapper, targets, err := buildMapper(flat)
	if err != nil {
		return nil, err
	}
	mapper.Init(macros)
	initial := mapper.All()

	// Mapped parameters start at their mapped value instead of ramping to
	// it from the configured one.
	mapped := make(map[string]float64, len(initial))
	for _, u := range initial {
		mapped[u.Key] = u.Value
	}
	spec := graph.Spec{Connections: flat.Connections}
	for _, n := range flat.Nodes {
		kind, ok := graph.ParseKind(n.Type)
		if !ok {
			return nil, fmt.Errorf("%w: node %q type %q", graph.ErrUnknownKind, n.ID, n.Type)
		}
		num, str := n.Params.Split()
		for _, ps := range kind.Params() {
			if v, ok := mapped[paramKey(param.Target{Node: n.ID, Name: ps.Name})]; ok {
				num[ps.Name] = v
			}
		}
		spec.Nodes = append(spec.Nodes, graph.NodeSpec{ID: n.ID, Kind: kind, Num: num, Str: str})
	}
	g, err := graph.Compile(spec, graph.Options{
		SampleRate: e.sampleRate,
		MaxFrames:  e.cfg.blockSize,
		Seed:       e.cfg.seed,
	})
	if err != nil {
		return nil, err
	}

	rt := &runtime{loadID: loadID, graph: g, mapper: mapper, targets: targets}
	rt.mods, err = e.buildModulators(flat, g.Bus())
	if err != nil {
		return nil, err
	}

	events := make([]scheduler.Event, 0, len(flat.Events))
	for _, ev := range flat.Events {
		se, err := schedulerEvent(flat, ev)
		if err != nil {
			return nil, err
		}
		events = append(events, se)
	}
	rt.sched, err = scheduler.New(events, rt, scheduler.Options{
		SampleRate: e.sampleRate,
		Lookahead:  e.cfg.lookahead.Seconds(),
		RingSize:   e.cfg.ringSize,
		Rand:       rand.New(rand.NewPCG(e.cfg.seed, hashID("scheduler"))),
		OnUnresolved: func(event string, action int, err error) {
			e.emit(SeverityResolution, fmt.Sprintf("%s.actions[%d]", event, action), loadID, err.Error())
		},
		OnDropped: func(event string) {
			e.emit(SeverityWarning, event, loadID, "action queue full, occurrence dropped")
		},
	})
	if err != nil {
		return nil, err
	}
	for _, u := range initial {
		if k := targets[u.Key]; k.event != "" {
			if err := rt.sched.SetField(k.event, k.field, u.Value); err != nil {
				return nil, err
			}
		}
	}
	return rt, nil
}

// buildMapper adds every mapping entry in declaration order with the
// target's configured value as baseline.
func buildMapper(flat *patch.Patch) (*macro.Mapper, map[string]mapKey, error) {
	nodes := make(map[string]patch.Node, len(flat.Nodes))
	for _, n := range flat.Nodes {
		nodes[n.ID] = n
	}
	events := make(map[string]patch.Event, len(flat.Events))
	for _, ev := range flat.Events {
		events[ev.ID] = ev
	}

	m := macro.NewMapper()
	targets := map[string]mapKey{}
	for _, mm := range flat.MacroMappings {
		name, ok := macro.Parse(mm.Macro)
		if !ok {
			return nil, nil, fmt.Errorf("unknown macro %q", mm.Macro)
		}
		for _, t := range mm.Targets {
			entry, err := patch.EntryOf(name, t)
			if err != nil {
				return nil, nil, err
			}
			var (
				key      string
				baseline float64
			)
			if t.Event != "" {
				id, field, err := patch.SplitEventTarget(t.Event)
				if err != nil {
					return nil, nil, err
				}
				ev, ok := events[id]
				if !ok {
					return nil, nil, fmt.Errorf("%w: event %q", param.ErrUnresolvedTarget, id)
				}
				baseline, err = eventBaseline(ev, field)
				if err != nil {
					return nil, nil, err
				}
				key = eventKey(id, field)
				targets[key] = mapKey{event: id, field: field}
			} else {
				pt, err := param.ParseTarget(t.ID)
				if err != nil {
					return nil, nil, err
				}
				baseline, err = paramBaseline(nodes, pt)
				if err != nil {
					return nil, nil, err
				}
				key = paramKey(pt)
				targets[key] = mapKey{param: pt}
			}
			m.Add(key, baseline, entry)
		}
	}
	m.Seal()
	return m, targets, nil
}

func paramBaseline(nodes map[string]patch.Node, t param.Target) (float64, error) {
	n, ok := nodes[t.Node]
	if !ok {
		return 0, fmt.Errorf("%w: %s", param.ErrUnresolvedTarget, t)
	}
	kind, ok := graph.ParseKind(n.Type)
	if !ok {
		return 0, fmt.Errorf("%w: node %q", graph.ErrUnknownKind, n.ID)
	}
	ps, ok := kind.Param(t.Name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", param.ErrUnresolvedTarget, t)
	}
	if v, ok := n.Params.Float(t.Name); ok {
		return v, nil
	}
	return ps.Default, nil
}

func eventBaseline(ev patch.Event, field string) (float64, error) {
	c, err := patch.ClockOf(ev.Clock)
	if err != nil {
		return 0, err
	}
	switch field {
	case "rate":
		return c.Rate(), nil
	case "interval":
		return c.MeanInterval(), nil
	case "jitter":
		return c.Jitter, nil
	case "probability":
		return ev.ProbabilityOrDefault(), nil
	}
	return 0, fmt.Errorf("%w: event %q has no field %q", param.ErrUnresolvedTarget, ev.ID, field)
}

func (e *Engine) buildModulators(flat *patch.Patch, bus *param.Bus) (*modulator.Set, error) {
	set := modulator.NewSet(e.sampleRate)
	for _, m := range flat.Modulators {
		rng := rand.New(rand.NewPCG(e.cfg.seed, hashID("modulator/"+m.ID)))
		var mod modulator.Modulator
		switch m.Type {
		case "envelope":
			mod = modulator.NewEnvelope(m.ID, m.Attack, m.Decay, m.PeakOrDefault(), m.Base)
		case "adsr":
			mod = modulator.NewADSR(m.ID, m.Attack, m.Decay, m.Sustain, m.Release, m.PeakOrDefault(), m.Base, m.Hold)
		case "lfo":
			wf, ok := modulator.ParseWaveform(m.Waveform)
			if !ok {
				return nil, fmt.Errorf("modulator %q: unknown waveform %q", m.ID, m.Waveform)
			}
			mod = modulator.NewLFO(m.ID, wf, m.Rate, m.Depth, m.Offset, rng)
		case "randomwalk":
			mod = modulator.NewRandomWalk(m.ID, m.Rate, m.Min, m.Max, m.Smoothing, rng)
		default:
			return nil, fmt.Errorf("modulator %q: unknown type %q", m.ID, m.Type)
		}
		t, err := param.ParseTarget(m.Target)
		if err != nil {
			return nil, err
		}
		p, _ := bus.Lookup(t)
		if _, err := set.Add(mod, p); err != nil {
			return nil, fmt.Errorf("%w (%s)", err, m.Target)
		}
	}
	return set, nil
}

func schedulerEvent(flat *patch.Patch, ev patch.Event) (scheduler.Event, error) {
	clock, err := patch.ClockOf(ev.Clock)
	if err != nil {
		return scheduler.Event{}, fmt.Errorf("event %q: %w", ev.ID, err)
	}
	out := scheduler.Event{ID: ev.ID, Clock: clock, Probability: ev.ProbabilityOrDefault()}
	for _, a := range ev.Actions {
		switch a.Type {
		case "trigger":
			lo, hi := peakScale(flat, a)
			out.Actions = append(out.Actions, scheduler.Action{
				Kind: scheduler.ActionTrigger, Modulator: a.Modulator, ScaleMin: lo, ScaleMax: hi,
			})
		case "release":
			out.Actions = append(out.Actions, scheduler.Action{Kind: scheduler.ActionRelease, Modulator: a.Modulator})
		case "set":
			out.Actions = append(out.Actions, scheduler.Action{
				Kind: scheduler.ActionSet, Target: a.Target, Min: a.Min, Max: a.Max, Ramp: a.Ramp,
			})
		default:
			return scheduler.Event{}, fmt.Errorf("event %q: unknown action type %q", ev.ID, a.Type)
		}
	}
	return out, nil
}

// peakScale picks the action's own range, then the modulator's peakJitter,
// then a fixed scale of 1.
func peakScale(flat *patch.Patch, a patch.Action) (float64, float64) {
	if len(a.PeakScale) == 2 {
		return a.PeakScale[0], a.PeakScale[1]
	}
	for _, m := range flat.Modulators {
		if m.ID == a.Modulator && len(m.PeakJitter) == 2 {
			return m.PeakJitter[0], m.PeakJitter[1]
		}
	}
	return 1, 1
}

// apply routes mapper output to the bus or the scheduler. Parameter writes
// use the parameter's own smoothing policy.
func (rt *runtime) apply(updates []macro.Update) []error {
	var errs []error
	for _, u := range updates {
		k, ok := rt.targets[u.Key]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", param.ErrUnresolvedTarget, u.Key))
			continue
		}
		var err error
		if k.event != "" {
			err = rt.sched.SetField(k.event, k.field, u.Value)
		} else {
			err = rt.graph.SetParameter(k.param, u.Value, 0)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// applyRecord lands one scheduled action. Render path only.
func (rt *runtime) applyRecord(rec scheduler.Record) {
	switch rec.Kind {
	case scheduler.ActionTrigger:
		rt.mods.Trigger(rec.Modulator, rec.Scale)
	case scheduler.ActionRelease:
		rt.mods.Release(rec.Modulator)
	case scheduler.ActionSet:
		if rec.Param != nil {
			rec.Param.Apply(rec.Value, rec.Ramp)
		}
	}
}

func (rt *runtime) teardown() {
	rt.graph.Teardown()
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}
