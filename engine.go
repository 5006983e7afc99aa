// Package soundscape renders procedural soundscapes from declarative
// patches: a signal graph driven by modulators, a look-ahead event
// scheduler and a handful of macro controls.
package soundscape

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	intaudio "github.com/cbegin/soundscape-go/internal/audio"
	"github.com/cbegin/soundscape-go/internal/graph"
	"github.com/cbegin/soundscape-go/internal/logger"
	"github.com/cbegin/soundscape-go/internal/macro"
	"github.com/cbegin/soundscape-go/internal/patch"
	"github.com/cbegin/soundscape-go/internal/scheduler"
)

var (
	ErrNotLoaded    = errors.New("soundscape: no patch loaded")
	ErrUnknownMacro = errors.New("soundscape: unknown macro")
	ErrRunning      = errors.New("soundscape: engine already running")
)

// DefaultBlockSize is the control block in frames: modulators step and
// scheduled actions are checked at this granularity.
const DefaultBlockSize = 64

type EngineOption func(*engineConfig)

type engineConfig struct {
	seed         uint64
	lookahead    time.Duration
	tickInterval time.Duration
	limits       patch.Limits
	audioOutput  bool
	resolver     patch.Resolver
	blockSize    int
	ringSize     int
	sampleTap    func([]float32)
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		seed:         rand.Uint64(),
		lookahead:    time.Duration(scheduler.DefaultLookahead * float64(time.Second)),
		tickInterval: 25 * time.Millisecond,
		limits:       patch.DefaultLimits(),
		audioOutput:  true,
		blockSize:    DefaultBlockSize,
		ringSize:     scheduler.DefaultRingSize,
	}
}

// WithSeed fixes the seed of every random generator the engine creates.
func WithSeed(seed uint64) EngineOption {
	return func(cfg *engineConfig) {
		cfg.seed = seed
	}
}

// WithLookahead sets how far ahead of the render position events are
// computed. It must exceed the tick interval.
func WithLookahead(d time.Duration) EngineOption {
	return func(cfg *engineConfig) {
		cfg.lookahead = d
	}
}

// WithTickInterval sets the scheduler tick cadence. Zero disables the tick
// goroutine; the host then calls Tick itself.
func WithTickInterval(d time.Duration) EngineOption {
	return func(cfg *engineConfig) {
		cfg.tickInterval = d
	}
}

func WithLimits(limits patch.Limits) EngineOption {
	return func(cfg *engineConfig) {
		cfg.limits = limits
	}
}

// WithAudioOutput controls whether Start opens the audio device. Without
// it the host pulls samples through Process.
func WithAudioOutput(enabled bool) EngineOption {
	return func(cfg *engineConfig) {
		cfg.audioOutput = enabled
	}
}

// WithSubpatchResolver supplies patches referenced by name.
func WithSubpatchResolver(r patch.Resolver) EngineOption {
	return func(cfg *engineConfig) {
		cfg.resolver = r
	}
}

// WithSampleTap installs a callback invoked with each rendered stereo
// buffer. It runs on the render goroutine; keep it brief.
func WithSampleTap(tap func([]float32)) EngineOption {
	return func(cfg *engineConfig) {
		cfg.sampleTap = tap
	}
}

func WithBlockSize(frames int) EngineOption {
	return func(cfg *engineConfig) {
		cfg.blockSize = frames
	}
}

// Engine owns one loaded patch and everything compiled from it. Control
// methods are safe for concurrent use; Process is called by exactly one
// render goroutine.
type Engine struct {
	cfg        engineConfig
	sampleRate int

	mu     sync.Mutex
	doc    *patch.Patch
	flat   *patch.Patch
	loadID string
	macros [macro.Count]float64
	topo   graph.Topology
	audio  *intaudio.Player
	stop   chan struct{}
	done   chan struct{}

	renderMu sync.Mutex
	rt       atomic.Pointer[runtime]
	running  atomic.Bool
	timeline atomic.Int64

	watchMu sync.Mutex
	watch   chan Diagnostic
}

func New(sampleRate int, opts ...EngineOption) (*Engine, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.blockSize <= 0:
		return nil, errors.New("block size must be positive")
	case cfg.lookahead <= 0:
		return nil, errors.New("lookahead must be positive")
	case cfg.tickInterval > 0 && cfg.lookahead <= cfg.tickInterval:
		return nil, fmt.Errorf("lookahead %v must exceed the tick interval %v", cfg.lookahead, cfg.tickInterval)
	}
	return &Engine{cfg: cfg, sampleRate: sampleRate}, nil
}

func (e *Engine) SampleRate() int { return e.sampleRate }

func (e *Engine) loadOptions() patch.LoadOptions {
	return patch.LoadOptions{Limits: e.cfg.limits, Resolver: e.cfg.resolver}
}

// LoadPatch validates and compiles a JSON or YAML patch and makes it the
// active one. On failure the error is a patch.ValidationErrors and the
// previous patch stays active.
func (e *Engine) LoadPatch(data []byte) error {
	loaded, err := patch.Load(data, e.loadOptions())
	if err != nil {
		logger.Warn("patch rejected", logger.Fields{"error": err.Error()})
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.install(loaded)
}

// LoadPatchDocument is LoadPatch for an already decoded document.
func (e *Engine) LoadPatchDocument(doc *patch.Patch) error {
	loaded, err := patch.Prepare(doc, e.loadOptions())
	if err != nil {
		logger.Warn("patch rejected", logger.Fields{"error": err.Error()})
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.install(loaded)
}

// ValidatePatch reports every problem with a patch without loading it.
func (e *Engine) ValidatePatch(data []byte) []patch.ValidationError {
	_, err := patch.Load(data, e.loadOptions())
	if err == nil {
		return nil
	}
	var errs patch.ValidationErrors
	if errors.As(err, &errs) {
		return errs
	}
	return []patch.ValidationError{{Code: patch.CodeDecode, Message: err.Error()}}
}

// install compiles loaded and swaps it in. Caller holds e.mu.
func (e *Engine) install(loaded *patch.Loaded) error {
	loadID := uuid.NewString()
	macros := macroValues(loaded.Flat.Macros)
	rt, err := e.buildRuntime(loaded.Flat, loadID, macros)
	if err != nil {
		return fmt.Errorf("soundscape: compile patch: %w", err)
	}
	if e.running.Load() {
		rt.sched.Tick(e.timeline.Load())
	}
	e.swap(rt)

	e.doc, e.flat, e.loadID, e.macros = loaded.Doc, loaded.Flat, loadID, macros
	e.topo = rt.graph.Topology()
	for _, f := range rt.graph.Faults() {
		e.emit(SeverityResource, f.Node, loadID, f.Error())
	}
	e.emit(SeverityInfo, loaded.Doc.Meta.Name, loadID,
		fmt.Sprintf("patch loaded: %d nodes, %d events, %d modulators",
			len(loaded.Flat.Nodes), len(loaded.Flat.Events), len(loaded.Flat.Modulators)))
	return nil
}

// swap replaces the runtime between render calls and tears down the old
// one.
func (e *Engine) swap(rt *runtime) {
	e.renderMu.Lock()
	old := e.rt.Swap(rt)
	e.renderMu.Unlock()
	if old != nil {
		old.teardown()
	}
}

func macroValues(m map[string]float64) [macro.Count]float64 {
	var out [macro.Count]float64
	for k, v := range m {
		if n, ok := macro.Parse(k); ok {
			out[n] = macro.Clamp(v)
		}
	}
	return out
}

// Patch returns a copy of the active document, or nil.
func (e *Engine) Patch() *patch.Patch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone()
}

// LoadID identifies the current load; it changes whenever the runtime is
// rebuilt.
func (e *Engine) LoadID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadID
}

// Topology returns the node and connection sets of the compiled graph.
func (e *Engine) Topology() graph.Topology {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.topo
}

// ApplyPatchDiff edits the active patch. The edited document is validated
// in full first; structural edits recompile between render calls, other
// edits apply live.
func (e *Engine) ApplyPatchDiff(d patch.Diff) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return ErrNotLoaded
	}
	next, changes, err := patch.ApplyDiff(e.doc, d)
	if err != nil {
		return err
	}
	loaded, err := patch.Prepare(next, e.loadOptions())
	if err != nil {
		return err
	}
	rt := e.rt.Load()
	if changes.Structural || rt == nil {
		return e.install(loaded)
	}

	for _, pc := range changes.Params {
		if err := rt.graph.SetParameter(pc.Target, pc.Value, pc.Ramp); err != nil {
			e.emit(SeverityResolution, pc.Target.String(), rt.loadID, err.Error())
		}
	}
	for _, ec := range changes.Events {
		if err := rt.sched.SetField(ec.Event, ec.Field, ec.Value); err != nil {
			e.emit(SeverityResolution, ec.Event, rt.loadID, err.Error())
		}
	}
	// Baselines may have moved; mapped targets are recomputed from the new
	// document.
	mapper, targets, err := buildMapper(loaded.Flat)
	if err != nil {
		return fmt.Errorf("soundscape: rebuild mappings: %w", err)
	}
	mapper.Init(e.macros)
	rt.mapper, rt.targets = mapper, targets
	for _, err := range rt.apply(mapper.All()) {
		e.emit(SeverityResolution, "macro", rt.loadID, err.Error())
	}
	e.doc, e.flat = loaded.Doc, loaded.Flat
	logger.Debug("patch diff applied live", logger.Fields{
		"load_id": rt.loadID,
		"params":  len(changes.Params),
		"events":  len(changes.Events),
	})
	return nil
}

// SetMacro sets a macro (clamped to [0, 1]) and pushes every target it
// drives through the parameter smoothing.
func (e *Engine) SetMacro(name string, value float64) error {
	n, ok := macro.Parse(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMacro, name)
	}
	value = macro.Clamp(value)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return ErrNotLoaded
	}
	e.macros[n] = value
	if e.doc.Macros == nil {
		e.doc.Macros = map[string]float64{}
	}
	for k := range e.doc.Macros {
		if m, ok := macro.Parse(k); ok && m == n && k != n.String() {
			delete(e.doc.Macros, k)
		}
	}
	e.doc.Macros[n.String()] = value
	e.flat.Macros = e.doc.Macros

	if rt := e.rt.Load(); rt != nil {
		for _, err := range rt.apply(rt.mapper.Set(n, value)) {
			e.emit(SeverityResolution, n.String(), rt.loadID, err.Error())
		}
	}
	return nil
}

// MacroTargets lists the mapped parameter and event keys a macro drives in
// the active patch.
func (e *Engine) MacroTargets(name string) ([]string, error) {
	n, ok := macro.Parse(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMacro, name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rt := e.rt.Load()
	if rt == nil || rt.mapper == nil {
		return nil, ErrNotLoaded
	}
	keys := rt.mapper.Touches(n)
	for i, k := range keys {
		if mk, ok := rt.targets[k]; ok {
			keys[i] = mk.String()
		}
	}
	return keys, nil
}

// Macro returns the current value of a macro.
func (e *Engine) Macro(name string) (float64, error) {
	n, ok := macro.Parse(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMacro, name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.macros[n], nil
}

// Start begins playback of the loaded patch: it primes the scheduler,
// starts the tick goroutine and opens the audio device when enabled.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running.Load() {
		return ErrRunning
	}
	if e.flat == nil {
		return ErrNotLoaded
	}
	rt := e.rt.Load()
	if rt == nil {
		var err error
		rt, err = e.buildRuntime(e.flat, e.loadID, e.macros)
		if err != nil {
			return fmt.Errorf("soundscape: compile patch: %w", err)
		}
		e.swap(rt)
		e.topo = rt.graph.Topology()
	}
	rt.sched.Reset()
	e.timeline.Store(0)
	rt.sched.Tick(0)
	e.running.Store(true)

	var backend *intaudio.Player
	if e.cfg.audioOutput {
		var err error
		backend, err = intaudio.NewPlayer(e.sampleRate, e)
		if err != nil {
			e.running.Store(false)
			e.emit(SeverityFatal, "audio", e.loadID, err.Error())
			return err
		}
		backend.Play()
		e.audio = backend
	}
	if e.cfg.tickInterval > 0 {
		e.stop, e.done = make(chan struct{}), make(chan struct{})
		go e.tickLoop(e.stop, e.done, backend)
	}
	logger.Info("engine started", logger.Fields{"load_id": e.loadID, "sample_rate": e.sampleRate})
	return nil
}

// Stop halts the tick loop, closes the audio device and releases every
// node. A later Start recompiles the same patch.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.Load() {
		return nil
	}
	e.running.Store(false)
	if e.stop != nil {
		close(e.stop)
		<-e.done
		e.stop, e.done = nil, nil
	}
	var err error
	if e.audio != nil {
		err = e.audio.Stop()
		e.audio = nil
	}
	e.renderMu.Lock()
	old := e.rt.Swap(nil)
	e.renderMu.Unlock()
	if old != nil {
		old.teardown()
	}
	logger.Info("engine stopped", logger.Fields{"load_id": e.loadID})
	return err
}

func (e *Engine) Running() bool { return e.running.Load() }

// Finished ends the device stream once the engine is stopped.
func (e *Engine) Finished() bool { return !e.running.Load() }

// Tick runs one scheduler pass at the current render position. The tick
// goroutine calls it; hosts without one call it themselves.
func (e *Engine) Tick() {
	if !e.running.Load() {
		return
	}
	if rt := e.rt.Load(); rt != nil {
		rt.sched.Tick(e.timeline.Load())
	}
}

func (e *Engine) tickLoop(stop, done chan struct{}, backend *intaudio.Player) {
	defer close(done)
	t := time.NewTicker(e.cfg.tickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			e.Tick()
			if backend != nil && !backend.IsPlaying() {
				// Stop waits for this goroutine.
				go e.fail(errors.New("audio output stopped unexpectedly"))
				return
			}
		}
	}
}

// fail stops the engine and reports why. The host decides whether to
// start again.
func (e *Engine) fail(err error) {
	e.emit(SeverityFatal, "audio", e.LoadID(), err.Error())
	if stopErr := e.Stop(); stopErr != nil {
		logger.Error("stop after audio failure", stopErr, nil)
	}
}

// Timeline is the render position in frames since Start.
func (e *Engine) Timeline() int64 { return e.timeline.Load() }

// Stats describes scheduling activity since Start.
type Stats struct {
	Dispatched uint64
	Skipped    uint64
	Unresolved uint64
	Dropped    uint64
	Late       uint64
	Faults     int
	Recoveries uint64
	Events     []EventStats
}

// EventStats is the live timing of one event after macro mapping.
type EventStats struct {
	ID          string  `json:"id"`
	Rate        float64 `json:"rate"`
	Probability float64 `json:"probability"`
	Fired       uint64  `json:"fired"`
}

func (e *Engine) Stats() Stats {
	rt := e.rt.Load()
	if rt == nil {
		return Stats{}
	}
	s := rt.sched.Stats()
	out := Stats{
		Dispatched: s.Dispatched,
		Skipped:    s.Skipped,
		Unresolved: s.Unresolved,
		Dropped:    s.Dropped,
		Late:       s.Late,
		Faults:     len(rt.graph.Faults()),
		Recoveries: rt.graph.Recovered(),
	}
	for _, ev := range rt.sched.Events() {
		rate, err := rt.sched.Field(ev.ID, "rate")
		if err != nil {
			continue
		}
		out.Events = append(out.Events, EventStats{
			ID:          ev.ID,
			Rate:        rate,
			Probability: ev.Probability,
			Fired:       rt.sched.Fired(ev.ID),
		})
	}
	return out
}

// Fired counts dispatched occurrences of one event since Start.
func (e *Engine) Fired(eventID string) uint64 {
	if rt := e.rt.Load(); rt != nil {
		return rt.sched.Fired(eventID)
	}
	return 0
}

// Summary describes the active patch in a few lines of text.
func (e *Engine) Summary() string {
	e.mu.Lock()
	s := patch.Summary(e.doc)
	e.mu.Unlock()
	if rt := e.rt.Load(); rt != nil && len(rt.graph.Faults()) > 0 {
		var b strings.Builder
		b.WriteString(s)
		b.WriteString("faults:\n")
		for _, f := range rt.graph.Faults() {
			fmt.Fprintf(&b, "  %s\n", f.Error())
		}
		s = b.String()
	}
	return s
}
