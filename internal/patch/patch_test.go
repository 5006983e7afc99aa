package patch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/soundscape-go/internal/param"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func ptr(v float64) *float64 { return &v }

func tone() *Patch {
	return &Patch{
		Meta: Meta{Name: "tone"},
		Nodes: []Node{
			{ID: "osc", Type: "oscillator", Params: Params{"frequency": 440.0}},
			{ID: "amp", Type: "gain", Params: Params{"gain": 0.5}},
		},
		Connections: []Connection{{From: "osc", To: "amp"}, {From: "amp", To: Output}},
	}
}

func validationErrors(t *testing.T, err error) ValidationErrors {
	t.Helper()
	var errs ValidationErrors
	require.True(t, errors.As(err, &errs), "want ValidationErrors, got %v", err)
	return errs
}

func TestLoadFixtures(t *testing.T) {
	rain, err := Load(readFixture(t, "rain.json"), LoadOptions{Limits: DefaultLimits()})
	require.NoError(t, err)
	assert.Equal(t, "Light Rain", rain.Doc.Meta.Name)
	assert.Len(t, rain.Flat.Nodes, 5)
	require.Len(t, rain.Flat.Events, 1)
	assert.Equal(t, 1.0, rain.Flat.Events[0].ProbabilityOrDefault())
	assert.Equal(t, []float64{0.6, 1}, rain.Flat.Events[0].Actions[0].PeakScale)
	require.NotNil(t, rain.Flat.MacroMappings[2].Targets[0].Multiply)
	assert.Equal(t, -0.6, *rain.Flat.MacroMappings[2].Targets[0].Multiply)

	wind, err := Load(readFixture(t, "wind.yaml"), LoadOptions{Limits: DefaultLimits()})
	require.NoError(t, err)
	assert.Equal(t, "2", wind.Doc.Meta.Version)
	assert.Equal(t, 0.4, wind.Doc.Macros["Intensity"])
	assert.Equal(t, "pink", wind.Flat.Nodes[0].Params["color"])
	g, ok := wind.Flat.Nodes[0].Params.Float("gain")
	assert.True(t, ok)
	assert.Equal(t, 0.8, g)
	assert.Len(t, wind.Flat.Modulators, 2)
}

func TestEncodeRoundTripKeepsDocument(t *testing.T) {
	rain, err := Load(readFixture(t, "rain.json"), LoadOptions{})
	require.NoError(t, err)

	js, err := Encode(rain.Doc)
	require.NoError(t, err)
	again, err := Decode(js)
	require.NoError(t, err)
	assert.Equal(t, Summary(rain.Doc), Summary(again))

	ym, err := EncodeYAML(rain.Doc)
	require.NoError(t, err)
	fromYAML, err := Decode(ym)
	require.NoError(t, err)
	assert.Equal(t, Summary(rain.Doc), Summary(fromYAML))
}

func TestDecodeSubpatchRef(t *testing.T) {
	js := `{"meta":{"name":"scene"},"nodes":[],"connections":[],
	  "subpatches":[{"id":"a","patch":"rain"},{"id":"b","patch":{"meta":{"name":"inner"},"nodes":[],"connections":[]},"mix":0.5}]}`
	p, err := Decode([]byte(js))
	require.NoError(t, err)
	require.Len(t, p.Subpatches, 2)
	assert.Equal(t, "rain", p.Subpatches[0].Patch.Name)
	assert.Nil(t, p.Subpatches[0].Patch.Inline)
	require.NotNil(t, p.Subpatches[1].Patch.Inline)
	assert.Equal(t, "inner", p.Subpatches[1].Patch.Inline.Meta.Name)
	assert.Equal(t, 0.5, p.Subpatches[1].MixOrDefault())
	assert.Equal(t, 1.0, p.Subpatches[0].MixOrDefault())

	ym := `
meta: {name: scene}
nodes: []
connections: []
subpatches:
  - id: a
    patch: rain
  - id: b
    patch:
      meta: {name: inner}
      nodes: []
      connections: []
`
	p, err = Decode([]byte(ym))
	require.NoError(t, err)
	assert.Equal(t, "rain", p.Subpatches[0].Patch.Name)
	require.NotNil(t, p.Subpatches[1].Patch.Inline)
	assert.Equal(t, "inner", p.Subpatches[1].Patch.Inline.Meta.Name)

	_, err = Decode([]byte("   "))
	assert.Error(t, err)
	_, err = Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *Patch)
		code   Code
		path   string
	}{
		{"duplicate id", func(p *Patch) {
			p.Nodes = append(p.Nodes, Node{ID: "amp", Type: "gain"})
		}, CodeDuplicateID, "nodes[2].id"},
		{"output id reserved", func(p *Patch) {
			p.Nodes = append(p.Nodes, Node{ID: Output, Type: "gain"})
		}, CodeDuplicateID, "nodes[2].id"},
		{"unresolved endpoint", func(p *Patch) {
			p.Connections = append(p.Connections, Connection{From: "ghost", To: "amp"})
		}, CodeUnresolvedEndpoint, "connections[2].from"},
		{"output as source", func(p *Patch) {
			p.Connections = append(p.Connections, Connection{From: Output, To: "amp"})
		}, CodeUnresolvedEndpoint, "connections[2].from"},
		{"cycle", func(p *Patch) {
			p.Nodes = append(p.Nodes, Node{ID: "fx", Type: "delay"})
			p.Connections = append(p.Connections, Connection{From: "amp", To: "fx"}, Connection{From: "fx", To: "amp"})
		}, CodeCyclicConnection, "connections"},
		{"unknown type", func(p *Patch) {
			p.Nodes[0].Type = "theremin"
		}, CodeUnknownNodeType, "nodes[0].type"},
		{"param out of range", func(p *Patch) {
			p.Nodes[1].Params["gain"] = 99.0
		}, CodeInvalidValue, "nodes[1].params.gain"},
		{"unknown param", func(p *Patch) {
			p.Nodes[1].Params["wobble"] = 1.0
		}, CodeInvalidValue, "nodes[1].params.wobble"},
		{"bad choice", func(p *Patch) {
			p.Nodes[0].Params["waveform"] = "kazoo"
		}, CodeInvalidValue, "nodes[0].params.waveform"},
		{"macro out of range", func(p *Patch) {
			p.Macros = map[string]float64{"intensity": 1.5}
		}, CodeMacroOutOfRange, "macros.intensity"},
		{"unknown macro", func(p *Patch) {
			p.Macros = map[string]float64{"warmth": 0.5}
		}, CodeUnknownMacro, "macros.warmth"},
		{"unresolved mapping node", func(p *Patch) {
			p.MacroMappings = []MacroMapping{{Macro: "intensity", Targets: []MappingTarget{
				{ID: "ghost.gain", Min: ptr(0), Max: ptr(1)},
			}}}
		}, CodeUnresolvedTarget, "macroMappings[0].targets[0].id"},
		{"mapping to static param", func(p *Patch) {
			p.MacroMappings = []MacroMapping{{Macro: "brightness", Targets: []MappingTarget{
				{ID: "osc.waveform", Min: ptr(0), Max: ptr(1)},
			}}}
		}, CodeInvalidValue, "macroMappings[0].targets[0].id"},
		{"unresolved modulator target", func(p *Patch) {
			p.Modulators = []Modulator{{ID: "env", Type: "envelope", Target: "amp.volume"}}
		}, CodeUnresolvedTarget, "modulators[0].target"},
		{"unknown modulator type", func(p *Patch) {
			p.Modulators = []Modulator{{ID: "env", Type: "spline", Target: "amp.gain"}}
		}, CodeUnknownModulatorType, "modulators[0].type"},
		{"trigger of unknown modulator", func(p *Patch) {
			p.Events = []Event{{ID: "e", Clock: Clock{Type: "poisson", Rate: 1},
				Actions: []Action{{Type: "trigger", Modulator: "nope"}}}}
		}, CodeUnresolvedTarget, "events[0].actions[0].modulator"},
		{"release of unknown modulator", func(p *Patch) {
			p.Events = []Event{{ID: "e", Clock: Clock{Type: "poisson", Rate: 1},
				Actions: []Action{{Type: "release", Modulator: "nope"}}}}
		}, CodeUnresolvedTarget, "events[0].actions[0].modulator"},
		{"unknown clock", func(p *Patch) {
			p.Events = []Event{{ID: "e", Clock: Clock{Type: "metronome", Rate: 1}}}
		}, CodeUnknownClock, "events[0].clock.type"},
		{"probability out of range", func(p *Patch) {
			p.Events = []Event{{ID: "e", Clock: Clock{Rate: 1}, Probability: ptr(2)}}
		}, CodeInvalidValue, "events[0].probability"},
		{"unknown event field", func(p *Patch) {
			p.Events = []Event{{ID: "e", Clock: Clock{Rate: 1}}}
			p.MacroMappings = []MacroMapping{{Macro: "density", Targets: []MappingTarget{
				{Event: "e.tempo", Min: ptr(1), Max: ptr(2)},
			}}}
		}, CodeUnresolvedTarget, "macroMappings[0].targets[0].event"},
		{"rate mapping reaches zero", func(p *Patch) {
			p.Events = []Event{{ID: "e", Clock: Clock{Rate: 1}}}
			p.MacroMappings = []MacroMapping{{Macro: "density", Targets: []MappingTarget{
				{Event: "e.rate", Min: ptr(0), Max: ptr(20)},
			}}}
		}, CodeInvalidValue, "macroMappings[0].targets[0]"},
		{"relative interval mapping flips sign", func(p *Patch) {
			p.Events = []Event{{ID: "e", Clock: Clock{Type: "pattern", Interval: 0.5}}}
			p.MacroMappings = []MacroMapping{{Macro: "density", Targets: []MappingTarget{
				{Event: "e.interval", Multiply: ptr(-1)},
			}}}
		}, CodeInvalidValue, "macroMappings[0].targets[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tone()
			tc.mutate(p)
			_, err := Prepare(p, LoadOptions{Limits: DefaultLimits()})
			errs := validationErrors(t, err)
			require.True(t, errs.Has(tc.code), "want %s in %v", tc.code, errs)
			var paths []string
			for _, e := range errs {
				if e.Code == tc.code {
					paths = append(paths, e.Path)
				}
			}
			assert.Contains(t, paths, tc.path)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	p := tone()
	p.Nodes = append(p.Nodes, Node{ID: "amp", Type: "gain"})
	p.Connections = append(p.Connections, Connection{From: "ghost", To: "amp"})
	p.Macros = map[string]float64{"density": -1}
	errs := Validate(p, Limits{})
	assert.True(t, errs.Has(CodeDuplicateID))
	assert.True(t, errs.Has(CodeUnresolvedEndpoint))
	assert.True(t, errs.Has(CodeMacroOutOfRange))
	assert.Contains(t, errs.Error(), "duplicate node id")
}

func TestCycleErrorNamesNodes(t *testing.T) {
	p := tone()
	p.Nodes = append(p.Nodes, Node{ID: "fx", Type: "delay"})
	p.Connections = append(p.Connections, Connection{From: "amp", To: "fx"}, Connection{From: "fx", To: "amp"})
	errs := Validate(p, Limits{})
	require.True(t, errs.Has(CodeCyclicConnection))
	msg := errs.Error()
	assert.Contains(t, msg, "amp")
	assert.Contains(t, msg, "fx")
	assert.NotContains(t, msg, "osc ->")
}

func TestLimits(t *testing.T) {
	t.Run("too many nodes", func(t *testing.T) {
		errs := Validate(tone(), Limits{MaxNodes: 1})
		assert.True(t, errs.Has(CodeTooManyNodes))
	})
	t.Run("event rate", func(t *testing.T) {
		rain, err := Load(readFixture(t, "rain.json"), LoadOptions{})
		require.NoError(t, err)
		// density can push drops to 24/s.
		assert.InDelta(t, 24, PeakEventRate(rain.Flat), 1e-9)
		errs := Validate(rain.Flat, Limits{MaxEventRate: 20})
		assert.True(t, errs.Has(CodeEventRateExceeded))
		assert.Empty(t, Validate(rain.Flat, Limits{MaxEventRate: 24}))
	})
	t.Run("patch size", func(t *testing.T) {
		_, err := Load(readFixture(t, "rain.json"), LoadOptions{Limits: Limits{MaxPatchBytes: 64}})
		errs := validationErrors(t, err)
		assert.True(t, errs.Has(CodePatchTooLarge))

		_, err = Prepare(tone(), LoadOptions{Limits: Limits{MaxPatchBytes: 64}})
		errs = validationErrors(t, err)
		assert.True(t, errs.Has(CodePatchTooLarge))
	})
	t.Run("decode failure", func(t *testing.T) {
		_, err := Load([]byte("{"), LoadOptions{})
		errs := validationErrors(t, err)
		assert.True(t, errs.Has(CodeDecode))
	})
}

func TestPrepareCopiesDocument(t *testing.T) {
	p := tone()
	loaded, err := Prepare(p, LoadOptions{})
	require.NoError(t, err)
	p.Nodes[1].Params["gain"] = 3.0
	p.Nodes[0].ID = "changed"
	assert.Equal(t, 0.5, loaded.Doc.Nodes[1].Params["gain"])
	assert.Equal(t, "osc", loaded.Flat.Nodes[0].ID)
}

func TestFlattenNamespacesSubpatches(t *testing.T) {
	drone := tone()
	drone.Modulators = []Modulator{{ID: "wobble", Type: "lfo", Target: "osc.frequency", Rate: 0.2, Depth: 5}}
	drone.Events = []Event{{ID: "pulse", Clock: Clock{Type: "pattern", Interval: 1},
		Actions: []Action{{Type: "set", Target: "amp.gain", Min: 0.2, Max: 0.4}}}}
	drone.MacroMappings = []MacroMapping{{Macro: "intensity", Targets: []MappingTarget{
		{ID: "amp.gain", Min: ptr(0), Max: ptr(1)},
		{Event: "pulse.rate", Min: ptr(0.5), Max: ptr(2)},
	}}}

	scene := &Patch{
		Meta: Meta{Name: "scene"},
		Subpatches: []Subpatch{
			{ID: "left", Patch: SubpatchRef{Name: "drone"}, Mix: ptr(0.25)},
			{ID: "right", Patch: SubpatchRef{Inline: tone()}},
		},
	}
	loaded, err := Prepare(scene, LoadOptions{Resolver: MapResolver{"drone": drone}, Limits: DefaultLimits()})
	require.NoError(t, err)
	flat := loaded.Flat
	assert.Empty(t, flat.Subpatches)

	ids := map[string]Node{}
	for _, n := range flat.Nodes {
		ids[n.ID] = n
	}
	for _, id := range []string{"left/osc", "left/amp", "left/mix", "right/osc", "right/amp", "right/mix", DefaultMixerID} {
		assert.Contains(t, ids, id)
	}
	assert.Equal(t, 0.25, ids["left/mix"].Params["gain"])
	assert.Equal(t, 1.0, ids["right/mix"].Params["gain"])
	assert.Equal(t, "mixer", ids[DefaultMixerID].Type)

	assert.Contains(t, flat.Connections, Connection{From: "left/amp", To: "left/mix"})
	assert.Contains(t, flat.Connections, Connection{From: "left/mix", To: DefaultMixerID})
	assert.Contains(t, flat.Connections, Connection{From: "right/mix", To: DefaultMixerID})
	assert.Contains(t, flat.Connections, Connection{From: DefaultMixerID, To: Output})

	require.Len(t, flat.Modulators, 1)
	assert.Equal(t, "left/wobble", flat.Modulators[0].ID)
	assert.Equal(t, "left/osc.frequency", flat.Modulators[0].Target)
	assert.Equal(t, "left/pulse", flat.Events[0].ID)
	assert.Equal(t, "left/amp.gain", flat.Events[0].Actions[0].Target)
	assert.Equal(t, "left/amp.gain", flat.MacroMappings[0].Targets[0].ID)
	assert.Equal(t, "left/pulse.rate", flat.MacroMappings[0].Targets[1].Event)

	// The document keeps its subpatch references.
	assert.Len(t, loaded.Doc.Subpatches, 2)
	assert.Equal(t, "osc", drone.Nodes[0].ID)
}

func TestFlattenMixerOptions(t *testing.T) {
	scene := &Patch{
		Nodes:       []Node{{ID: "master", Type: "compressor"}},
		Connections: []Connection{{From: "master", To: Output}},
		Subpatches: []Subpatch{
			{ID: "a", Patch: SubpatchRef{Inline: tone()}},
			{ID: "b", Patch: SubpatchRef{Inline: tone()}},
		},
		Mixer: &Mixer{ID: "bus", Inputs: []string{"b"}, Output: "master"},
	}
	flat, errs := Flatten(scene, nil)
	require.Empty(t, errs)
	assert.Contains(t, flat.Connections, Connection{From: "b/mix", To: "bus"})
	assert.NotContains(t, flat.Connections, Connection{From: "a/mix", To: "bus"})
	assert.Contains(t, flat.Connections, Connection{From: "bus", To: "master"})
	assert.Empty(t, Validate(flat, DefaultLimits()))

	scene.Mixer.Inputs = []string{"c"}
	_, errs = Flatten(scene, nil)
	assert.True(t, errs.Has(CodeUnresolvedEndpoint))
}

func TestFlattenErrors(t *testing.T) {
	_, errs := Flatten(&Patch{Subpatches: []Subpatch{{ID: "x", Patch: SubpatchRef{Name: "missing"}}}}, nil)
	assert.True(t, errs.Has(CodeSubpatch))

	_, errs = Flatten(&Patch{Subpatches: []Subpatch{{ID: "x", Patch: SubpatchRef{Name: "missing"}}}}, MapResolver{})
	assert.True(t, errs.Has(CodeSubpatch))

	_, errs = Flatten(&Patch{Subpatches: []Subpatch{{ID: "a/b", Patch: SubpatchRef{Inline: tone()}}}}, nil)
	assert.True(t, errs.Has(CodeInvalidValue))

	// A self-referencing subpatch stops at the depth limit.
	loop := ResolverFunc(func(string) (*Patch, error) {
		return &Patch{Subpatches: []Subpatch{{ID: "again", Patch: SubpatchRef{Name: "loop"}}}}, nil
	})
	_, errs = Flatten(&Patch{Subpatches: []Subpatch{{ID: "top", Patch: SubpatchRef{Name: "loop"}}}}, loop)
	require.True(t, errs.Has(CodeSubpatch))
	assert.Contains(t, errs.Error(), "deeper than")
}

func withEnvelope(p *Patch) *Patch {
	p.Modulators = []Modulator{{ID: "env", Type: "envelope", Target: "amp.gain", Attack: 0.01, Decay: 0.1}}
	p.Events = []Event{{ID: "hit", Clock: Clock{Type: "poisson", Rate: 2}, Actions: []Action{
		{Type: "trigger", Modulator: "env"},
		{Type: "set", Target: "osc.frequency", Min: 200, Max: 400},
		{Type: "release", Modulator: "env"},
	}}}
	p.MacroMappings = []MacroMapping{{Macro: "intensity", Targets: []MappingTarget{
		{ID: "amp.gain", Min: ptr(0), Max: ptr(1)},
		{ID: "osc.gain", Multiply: ptr(0.5)},
	}}}
	return p
}

func TestApplyDiffRemoveNodeCascades(t *testing.T) {
	doc := withEnvelope(tone())
	out, ch, err := ApplyDiff(doc, Diff{Ops: []Op{{Op: OpRemoveNode, ID: "amp"}}})
	require.NoError(t, err)
	assert.True(t, ch.Structural)

	assert.Len(t, out.Nodes, 1)
	assert.Empty(t, out.Connections)
	assert.Empty(t, out.Modulators)
	require.Len(t, out.Events[0].Actions, 1)
	assert.Equal(t, "set", out.Events[0].Actions[0].Type)
	require.Len(t, out.MacroMappings[0].Targets, 1)
	assert.Equal(t, "osc.gain", out.MacroMappings[0].Targets[0].ID)

	// The input document is untouched.
	assert.Len(t, doc.Nodes, 2)
	assert.Len(t, doc.Connections, 2)
	assert.Len(t, doc.Modulators, 1)
	assert.Len(t, doc.Events[0].Actions, 3)
	assert.Len(t, doc.MacroMappings[0].Targets, 2)
}

func TestApplyDiffAddNode(t *testing.T) {
	doc := tone()
	doc.Connections = doc.Connections[:1]
	out, ch, err := ApplyDiff(doc, Diff{Ops: []Op{{
		Op:          OpAddNode,
		Node:        &Node{ID: "echo", Type: "delay", Params: Params{"time": 0.3}},
		Connections: []Connection{{From: "amp", To: "echo"}, {From: "echo", To: Output}},
	}}})
	require.NoError(t, err)
	assert.True(t, ch.Structural)
	assert.Len(t, out.Nodes, 3)
	assert.Empty(t, Validate(out, DefaultLimits()))

	_, _, err = ApplyDiff(doc, Diff{Ops: []Op{{Op: OpAddNode}}})
	assert.Error(t, err)
}

func TestApplyDiffSetParam(t *testing.T) {
	doc := tone()
	out, ch, err := ApplyDiff(doc, Diff{Ops: []Op{{Op: OpSetParam, Target: "amp.gain", Value: ptr(0.8), Ramp: 0.5}}})
	require.NoError(t, err)
	assert.False(t, ch.Structural)
	require.Len(t, ch.Params, 1)
	assert.Equal(t, param.Target{Node: "amp", Name: "gain"}, ch.Params[0].Target)
	assert.Equal(t, 0.8, ch.Params[0].Value)
	assert.Equal(t, 0.5, ch.Params[0].Ramp)
	assert.Equal(t, 0.8, out.Nodes[1].Params["gain"])
	assert.Equal(t, 0.5, doc.Nodes[1].Params["gain"])

	_, _, err = ApplyDiff(doc, Diff{Ops: []Op{{Op: OpSetParam, Target: "osc.waveform", Value: ptr(1)}}})
	assert.ErrorIs(t, err, param.ErrStaticParam)
	_, _, err = ApplyDiff(doc, Diff{Ops: []Op{{Op: OpSetParam, Target: "ghost.gain", Value: ptr(1)}}})
	assert.ErrorIs(t, err, param.ErrUnresolvedTarget)
	_, _, err = ApplyDiff(doc, Diff{Ops: []Op{{Op: OpSetParam, Target: "amp.gain"}}})
	assert.Error(t, err)
}

func TestApplyDiffSetMappingReplaces(t *testing.T) {
	doc := withEnvelope(tone())
	mm := &MacroMapping{Macro: "Intensity", Targets: []MappingTarget{{ID: "osc.frequency", Map: "exp", Min: ptr(100), Max: ptr(800)}}}
	out, ch, err := ApplyDiff(doc, Diff{Ops: []Op{{Op: OpSetMapping, Mapping: mm}}})
	require.NoError(t, err)
	assert.True(t, ch.Mappings)
	require.Len(t, out.MacroMappings, 1)
	assert.Equal(t, "osc.frequency", out.MacroMappings[0].Targets[0].ID)

	mm.Targets[0].ID = "amp.gain"
	assert.Equal(t, "osc.frequency", out.MacroMappings[0].Targets[0].ID)

	_, _, err = ApplyDiff(doc, Diff{Ops: []Op{{Op: OpSetMapping, Mapping: &MacroMapping{Macro: "warmth"}}}})
	assert.Error(t, err)
}

func TestApplyDiffSetEvent(t *testing.T) {
	doc := withEnvelope(tone())
	doc.Events = append(doc.Events, Event{ID: "steps", Clock: Clock{Type: "pattern", Intervals: []float64{0.5, 1.5}}})

	out, ch, err := ApplyDiff(doc, Diff{Ops: []Op{
		{Op: OpSetEvent, ID: "hit", Rate: ptr(8), Probability: ptr(0.5)},
		{Op: OpSetEvent, ID: "steps", Interval: ptr(2)},
	}})
	require.NoError(t, err)
	assert.Equal(t, 8.0, out.Events[0].Clock.Rate)
	assert.Equal(t, 0.5, out.Events[0].ProbabilityOrDefault())
	assert.Equal(t, []float64{1, 3}, out.Events[1].Clock.Intervals)
	assert.Equal(t, []float64{0.5, 1.5}, doc.Events[1].Clock.Intervals)
	assert.Equal(t, []EventChange{
		{Event: "hit", Field: "rate", Value: 8},
		{Event: "hit", Field: "probability", Value: 0.5},
		{Event: "steps", Field: "interval", Value: 2},
	}, ch.Events)

	_, _, err = ApplyDiff(doc, Diff{Ops: []Op{{Op: OpSetEvent, ID: "hit"}}})
	assert.Error(t, err)
	_, _, err = ApplyDiff(doc, Diff{Ops: []Op{{Op: OpSetEvent, ID: "nope", Rate: ptr(1)}}})
	assert.Error(t, err)
	_, _, err = ApplyDiff(doc, Diff{Ops: []Op{{Op: "explode"}}})
	assert.Error(t, err)
}

func TestApplyDiffIsAtomic(t *testing.T) {
	doc := tone()
	out, _, err := ApplyDiff(doc, Diff{Ops: []Op{
		{Op: OpSetParam, Target: "amp.gain", Value: ptr(0.9)},
		{Op: OpRemoveNode, ID: "ghost"},
	}})
	assert.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 0.5, doc.Nodes[1].Params["gain"])
}

func TestSummary(t *testing.T) {
	rain, err := Load(readFixture(t, "rain.json"), LoadOptions{})
	require.NoError(t, err)
	s := Summary(rain.Doc)
	lines := strings.Split(strings.TrimSpace(s), "\n")
	assert.Equal(t, "Light Rain (v1)", lines[0])
	assert.Contains(t, s, "macros: intensity=0.00 density=0.50 distance=0.00")
	assert.Contains(t, s, "nodes: 5 (2 filter, 2 gain, 1 noise)")
	assert.Contains(t, s, "src -> lp -> baseGain -> output")
	assert.Contains(t, s, "src -> bp -> dropGain -> output")
	assert.Contains(t, s, "drops: poisson 14.00/s -> trigger dropEnv, set bp.frequency [2000, 5000]")
	assert.Contains(t, s, "dropEnv: envelope on dropGain.gain")
	assert.Contains(t, s, "density: drops.rate linear[4, 24]")
	assert.Contains(t, s, "distance: baseGain.gain x(1-0.6*v)")

	doc := withEnvelope(tone())
	assert.Contains(t, Summary(doc), "hit: poisson 2.00/s -> trigger env, set osc.frequency [200, 400], release env")

	assert.Equal(t, "no patch loaded\n", Summary(nil))
}
