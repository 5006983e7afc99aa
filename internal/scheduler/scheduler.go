// Package scheduler computes stochastic and patterned event times on the
// audio timeline ahead of the render position and hands fully resolved,
// timestamped actions to the render goroutine.
package scheduler

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/cbegin/soundscape-go/internal/param"
)

// DefaultLookahead is the scheduling horizon in seconds.
const DefaultLookahead = 0.2

// DefaultRingSize bounds the number of undelivered action records.
const DefaultRingSize = 4096

var ErrUnknownEvent = errors.New("scheduler: unknown event")

type ActionKind int

const (
	ActionTrigger ActionKind = iota
	ActionSet
	ActionRelease
)

// Action is one step of an event. Trigger actions fire a modulator with a
// peak scale drawn from [ScaleMin, ScaleMax]; release actions end a
// sustained modulator; set actions write a value drawn from [Min, Max]
// into Target over Ramp seconds.
type Action struct {
	Kind      ActionKind
	Modulator string
	ScaleMin  float64
	ScaleMax  float64
	Target    string
	Min, Max  float64
	Ramp      float64
}

type Event struct {
	ID          string
	Clock       Clock
	Probability float64
	Actions     []Action
}

// Record is an action with every random choice already made, stamped with
// the timeline frame at which it must take effect.
type Record struct {
	Frame     int64
	Kind      ActionKind
	Modulator int
	Scale     float64
	Param     *param.Param
	Value     float64
	Ramp      float64
}

// Resolver locates action targets at dispatch time.
type Resolver interface {
	Modulator(id string) (int, bool)
	Param(target string) (*param.Param, bool)
}

type Options struct {
	SampleRate int
	Lookahead  float64 // seconds
	RingSize   int
	Rand       *rand.Rand

	// OnUnresolved is told about every action skipped because its target
	// could not be found. It runs on the ticking goroutine.
	OnUnresolved func(event string, action int, err error)
	// OnDropped is told when the ring is full and a record is lost.
	OnDropped func(event string)
}

type Stats struct {
	Dispatched uint64 // occurrences that passed the probability gate
	Skipped    uint64 // occurrences gated out by probability
	Unresolved uint64
	Dropped    uint64
	Late       uint64 // occurrences abandoned because the timeline passed them
}

type entry struct {
	ev      Event
	next    float64 // timeline frame of the next occurrence
	pos     int
	started bool
	fired   uint64
	index   int
}

// Scheduler is driven by Tick on the control path. All methods are safe
// for concurrent use; the render goroutine only touches the Ring.
type Scheduler struct {
	mu         sync.Mutex
	sampleRate float64
	lookahead  float64 // frames
	rng        *rand.Rand
	resolve    Resolver
	entries    []*entry
	byID       map[string]*entry
	queue      fireQueue
	ring       *Ring
	lastFrame  int64
	stats      Stats
	opts       Options
}

func New(events []Event, resolve Resolver, opts Options) (*Scheduler, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.RingSize <= 0 {
		opts.RingSize = DefaultRingSize
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s := &Scheduler{
		sampleRate: float64(opts.SampleRate),
		lookahead:  opts.Lookahead * float64(opts.SampleRate),
		rng:        opts.Rand,
		resolve:    resolve,
		byID:       make(map[string]*entry, len(events)),
		ring:       NewRing(opts.RingSize),
		opts:       opts,
	}
	for _, ev := range events {
		if _, dup := s.byID[ev.ID]; dup {
			return nil, fmt.Errorf("scheduler: duplicate event %q", ev.ID)
		}
		if err := ev.Clock.Validate(); err != nil {
			return nil, fmt.Errorf("scheduler: event %q: %w", ev.ID, err)
		}
		e := &entry{ev: ev, index: -1}
		s.entries = append(s.entries, e)
		s.byID[ev.ID] = e
	}
	return s, nil
}

// Ring is the render side of the handoff.
func (s *Scheduler) Ring() *Ring { return s.ring }

// Tick schedules and dispatches every occurrence due before now plus the
// lookahead horizon. now is the render position in frames. Tick may run
// late or irregularly; records always carry their computed frame.
func (s *Scheduler) Tick(now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if !e.started {
			e.started = true
			e.next = float64(now) + s.interval(e)
			heap.Push(&s.queue, e)
		}
	}

	horizon := float64(now) + s.lookahead
	stale := float64(now) - s.lookahead
	for s.queue.Len() > 0 && s.queue[0].next <= horizon {
		e := s.queue[0]
		if e.next < stale {
			s.stats.Late++
			e.next = float64(now) + s.interval(e)
		} else {
			s.dispatch(e, int64(e.next))
			e.next += s.interval(e)
		}
		heap.Fix(&s.queue, 0)
	}
}

// interval advances the entry's clock and returns at least one frame.
func (s *Scheduler) interval(e *entry) float64 {
	v := e.ev.Clock.next(s.rng, e.pos) * s.sampleRate
	e.pos++
	return math.Max(v, 1)
}

func (s *Scheduler) dispatch(e *entry, frame int64) {
	p := e.ev.Probability
	if p < 1 && s.rng.Float64() >= p {
		s.stats.Skipped++
		return
	}
	s.stats.Dispatched++
	e.fired++
	if frame < s.lastFrame {
		frame = s.lastFrame
	}
	s.lastFrame = frame

	for i, a := range e.ev.Actions {
		rec := Record{Frame: frame, Kind: a.Kind, Modulator: -1}
		switch a.Kind {
		case ActionTrigger:
			idx, ok := s.resolve.Modulator(a.Modulator)
			if !ok {
				s.unresolved(e.ev.ID, i, fmt.Errorf("%w: modulator %q", param.ErrUnresolvedTarget, a.Modulator))
				continue
			}
			rec.Modulator = idx
			rec.Scale = uniform(s.rng, a.ScaleMin, a.ScaleMax)
		case ActionRelease:
			idx, ok := s.resolve.Modulator(a.Modulator)
			if !ok {
				s.unresolved(e.ev.ID, i, fmt.Errorf("%w: modulator %q", param.ErrUnresolvedTarget, a.Modulator))
				continue
			}
			rec.Modulator = idx
		case ActionSet:
			p, ok := s.resolve.Param(a.Target)
			if !ok {
				s.unresolved(e.ev.ID, i, fmt.Errorf("%w: %s", param.ErrUnresolvedTarget, a.Target))
				continue
			}
			rec.Param = p
			rec.Value = uniform(s.rng, a.Min, a.Max)
			rec.Ramp = a.Ramp
		}
		if !s.ring.Push(rec) {
			s.stats.Dropped++
			if s.opts.OnDropped != nil {
				s.opts.OnDropped(e.ev.ID)
			}
		}
	}
}

func (s *Scheduler) unresolved(event string, action int, err error) {
	s.stats.Unresolved++
	if s.opts.OnUnresolved != nil {
		s.opts.OnUnresolved(event, action, err)
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

// Reset forgets every computed occurrence; the next Tick starts afresh.
// The ring must not be in use by the render goroutine.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = s.queue[:0]
	for _, e := range s.entries {
		e.started = false
		e.pos = 0
		e.index = -1
	}
	s.lastFrame = 0
	s.ring.Drain()
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Fired returns how many occurrences of id passed the probability gate.
func (s *Scheduler) Fired(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		return e.fired
	}
	return 0
}

// Events returns the current event definitions.
func (s *Scheduler) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.ev
	}
	return out
}

// Field returns an addressable event field: rate, interval, jitter or
// probability.
func (s *Scheduler) Field(id, field string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, id)
	}
	switch field {
	case "rate":
		return e.ev.Clock.Rate(), nil
	case "interval":
		return e.ev.Clock.MeanInterval(), nil
	case "jitter":
		return e.ev.Clock.Jitter, nil
	case "probability":
		return e.ev.Probability, nil
	}
	return 0, fmt.Errorf("scheduler: event %q has no field %q", id, field)
}

// SetField changes an event field. The new value governs occurrences
// computed after the call; an occurrence already queued keeps its time.
func (s *Scheduler) SetField(id, field string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, id)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("scheduler: event %q: %s must be finite", id, field)
	}
	c := e.ev.Clock
	switch field {
	case "rate":
		if v <= 0 {
			return fmt.Errorf("scheduler: event %q: rate must be > 0", id)
		}
		c.scale(1 / v)
	case "interval":
		if v <= 0 {
			return fmt.Errorf("scheduler: event %q: interval must be > 0", id)
		}
		c.scale(v)
	case "jitter":
		c.Jitter = math.Max(0, math.Min(v, 0.99))
	case "probability":
		e.ev.Probability = math.Max(0, math.Min(v, 1))
		return nil
	default:
		return fmt.Errorf("scheduler: event %q has no field %q", id, field)
	}
	e.ev.Clock = c
	return nil
}

// scale sets the mean interval, stretching a pattern to keep its shape.
func (c *Clock) scale(mean float64) {
	if c.Kind == Pattern && len(c.Intervals) > 0 {
		k := mean / c.MeanInterval()
		iv := make([]float64, len(c.Intervals))
		for i, v := range c.Intervals {
			iv[i] = v * k
		}
		c.Intervals = iv
		return
	}
	c.Interval = mean
}

// fireQueue orders entries by their next occurrence.
type fireQueue []*entry

func (q fireQueue) Len() int { return len(q) }
func (q fireQueue) Less(i, j int) bool {
	if q[i].next != q[j].next {
		return q[i].next < q[j].next
	}
	return q[i].ev.ID < q[j].ev.ID
}
func (q fireQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *fireQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *fireQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
