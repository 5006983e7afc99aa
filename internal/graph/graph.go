// Package graph compiles a node/connection description into a renderable
// signal graph. Compilation allocates everything the render path needs;
// Render itself never allocates.
package graph

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cbegin/soundscape-go/internal/param"
)

// DefaultMaxFrames is the largest block Render accepts unless configured.
const DefaultMaxFrames = 256

// NodeSpec describes one node. Num holds numeric parameter values, Str
// the spelling of enumerated ones.
type NodeSpec struct {
	ID   string
	Kind Kind
	Num  map[string]float64
	Str  map[string]string
}

type Spec struct {
	Nodes       []NodeSpec
	Connections []Connection
}

type Options struct {
	SampleRate int
	MaxFrames  int
	Seed       uint64

	// build replaces node construction in tests.
	build func(NodeSpec, *nodeEnv) (processor, error)
}

// Fault is a node that could not be instantiated as declared. Sources that
// failed are silent and failed effects pass their input through unchanged.
type Fault struct {
	Node string
	Kind Kind
	Err  error
}

func (f Fault) Error() string {
	return fmt.Sprintf("node %q (%s): %v", f.Node, f.Kind, f.Err)
}

// Topology is the structural identity of a compiled graph.
type Topology struct {
	Nodes       []NodeSpec
	Connections []Connection
	Order       []string
}

type processor interface {
	render(n *node, frames int)
	reset()
}

type node struct {
	id      string
	kind    Kind
	proc    processor
	failed  bool
	inputs  []*node
	inL     []float64
	inR     []float64
	outL    []float64
	outR    []float64
	scratch []float64
}

// gather sums every upstream output into the input buffers.
func (n *node) gather(frames int) {
	l, r := n.inL[:frames], n.inR[:frames]
	clear(l)
	clear(r)
	for _, in := range n.inputs {
		vecmath.AddBlockInPlace(l, in.outL[:frames])
		vecmath.AddBlockInPlace(r, in.outR[:frames])
	}
}

// Graph is a compiled, renderable signal graph. Render belongs to the
// render goroutine; parameter writes go through Bus.
type Graph struct {
	sampleRate int
	maxFrames  int
	nodes      []*node
	byID       map[string]*node
	outputs    []*node
	bus        *param.Bus
	faults     []Fault
	topo       Topology
	recovered  atomic.Uint64
	outL       []float64
	outR       []float64
}

// nodeEnv is what a node constructor may use.
type nodeEnv struct {
	sampleRate int
	maxFrames  int
	rng        *rand.Rand
	params     map[string]*param.Param
}

// Compile validates the structure and builds every node. It either returns
// a complete graph or an error and nothing else; resource failures of
// individual nodes are recorded as Faults instead.
func Compile(spec Spec, opts Options) (*Graph, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = DefaultMaxFrames
	}
	build := opts.build
	if build == nil {
		build = newProcessor
	}

	ids := make([]string, len(spec.Nodes))
	for i, ns := range spec.Nodes {
		if ns.Kind.Params() == nil {
			return nil, fmt.Errorf("%w: node %q", ErrUnknownKind, ns.ID)
		}
		ids[i] = ns.ID
	}
	conns := dedupe(spec.Connections)
	order, err := Order(ids, conns)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		sampleRate: opts.SampleRate,
		maxFrames:  opts.MaxFrames,
		byID:       make(map[string]*node, len(spec.Nodes)),
		bus:        param.NewBus(),
		outL:       make([]float64, opts.MaxFrames),
		outR:       make([]float64, opts.MaxFrames),
	}
	specs := make(map[string]NodeSpec, len(spec.Nodes))
	for _, ns := range spec.Nodes {
		specs[ns.ID] = ns
	}

	for _, id := range order {
		ns := specs[id]
		env := &nodeEnv{
			sampleRate: opts.SampleRate,
			maxFrames:  opts.MaxFrames,
			rng:        rand.New(rand.NewPCG(opts.Seed, hashID(id))),
			params:     make(map[string]*param.Param),
		}
		for _, ps := range ns.Kind.Params() {
			v, err := initialValue(ns, ps)
			if err != nil {
				return nil, err
			}
			p := param.New(ps.Name, v, ps.Policy, opts.SampleRate)
			env.params[ps.Name] = p
			if err := g.bus.Register(param.Target{Node: id, Name: ps.Name}, p); err != nil {
				return nil, err
			}
		}
		n := &node{
			id:      id,
			kind:    ns.Kind,
			inL:     make([]float64, opts.MaxFrames),
			inR:     make([]float64, opts.MaxFrames),
			outL:    make([]float64, opts.MaxFrames),
			outR:    make([]float64, opts.MaxFrames),
			scratch: make([]float64, opts.MaxFrames),
		}
		proc, err := build(ns, env)
		if err != nil {
			// A processor returned with an error is a degraded fallback.
			n.failed = proc == nil
			g.faults = append(g.faults, Fault{Node: id, Kind: ns.Kind, Err: err})
		}
		n.proc = proc
		g.nodes = append(g.nodes, n)
		g.byID[id] = n
	}

	for _, c := range conns {
		from := g.byID[c.From]
		if c.To == Output {
			g.outputs = append(g.outputs, from)
			continue
		}
		to := g.byID[c.To]
		to.inputs = append(to.inputs, from)
	}

	g.topo = Topology{
		Nodes:       append([]NodeSpec(nil), spec.Nodes...),
		Connections: conns,
		Order:       order,
	}
	return g, nil
}

func initialValue(ns NodeSpec, ps ParamSpec) (float64, error) {
	if ps.Choices != nil {
		s, ok := ns.Str[ps.Name]
		if !ok {
			return ns.Num[ps.Name], nil
		}
		i, ok := ps.Choice(s)
		if !ok {
			return 0, fmt.Errorf("graph: node %q: %s %q is not one of %v", ns.ID, ps.Name, s, ps.Choices)
		}
		return float64(i), nil
	}
	if v, ok := ns.Num[ps.Name]; ok {
		return v, nil
	}
	return ps.Default, nil
}

func dedupe(conns []Connection) []Connection {
	seen := make(map[Connection]bool, len(conns))
	out := make([]Connection, 0, len(conns))
	for _, c := range conns {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}

func (g *Graph) SampleRate() int { return g.sampleRate }
func (g *Graph) MaxFrames() int  { return g.maxFrames }
func (g *Graph) Bus() *param.Bus { return g.bus }
func (g *Graph) Faults() []Fault { return g.faults }

// Order returns the render order.
func (g *Graph) Order() []string { return g.topo.Order }

func (g *Graph) Topology() Topology { return g.topo }

// SetParameter requests a smoothed change of one node parameter.
func (g *Graph) SetParameter(t param.Target, value, rampSeconds float64) error {
	return g.bus.Set(t, value, rampSeconds)
}

// Render processes frames samples through every node in topological order
// and returns the summed output bus. The slices are valid until the next
// call. frames is capped at MaxFrames.
func (g *Graph) Render(frames int) ([]float64, []float64) {
	if frames > g.maxFrames {
		frames = g.maxFrames
	}
	if frames <= 0 {
		return g.outL[:0], g.outR[:0]
	}
	for _, n := range g.nodes {
		switch {
		case n.failed && n.kind.IsSource():
			clear(n.outL[:frames])
			clear(n.outR[:frames])
		case n.failed:
			n.gather(frames)
			copy(n.outL[:frames], n.inL[:frames])
			copy(n.outR[:frames], n.inR[:frames])
		default:
			if !n.kind.IsSource() {
				n.gather(frames)
			}
			n.proc.render(n, frames)
			if !finite(n.outL[:frames]) || !finite(n.outR[:frames]) {
				n.proc.reset()
				clear(n.outL[:frames])
				clear(n.outR[:frames])
				g.recovered.Add(1)
			}
		}
	}
	l, r := g.outL[:frames], g.outR[:frames]
	clear(l)
	clear(r)
	for _, n := range g.outputs {
		vecmath.AddBlockInPlace(l, n.outL[:frames])
		vecmath.AddBlockInPlace(r, n.outR[:frames])
	}
	return l, r
}

// Recovered counts node blocks that went non-finite and were restarted
// from clean state. Safe from any goroutine.
func (g *Graph) Recovered() uint64 { return g.recovered.Load() }

func finite(buf []float64) bool {
	for _, v := range buf {
		if v-v != 0 {
			return false
		}
	}
	return true
}

// Teardown releases every node. Render afterwards yields silence.
func (g *Graph) Teardown() {
	g.nodes = nil
	g.outputs = nil
	g.byID = nil
}
