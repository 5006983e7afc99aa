// Package modulator implements the time-varying generators that drive
// parameters: one-shot and ADSR envelopes, LFOs and smoothed random walks.
package modulator

import (
	"fmt"

	"github.com/cbegin/soundscape-go/internal/param"
)

// Modulator is a control-rate generator. Step advances by dt seconds and
// returns the value to write into the bound parameter.
type Modulator interface {
	ID() string
	Trigger(scale float64)
	Release()
	Step(dt float64) float64
	Active() bool
}

type binding struct {
	mod       Modulator
	target    *param.Param
	wasActive bool
}

// Set owns every modulator of a loaded patch and their parameter bindings.
// It is built on the control path and stepped only by the render goroutine.
type Set struct {
	sampleRate float64
	bindings   []binding
	index      map[string]int
}

func NewSet(sampleRate int) *Set {
	return &Set{sampleRate: float64(sampleRate), index: make(map[string]int)}
}

// Add binds m to target and returns its index for allocation-free triggering.
func (s *Set) Add(m Modulator, target *param.Param) (int, error) {
	if _, ok := s.index[m.ID()]; ok {
		return 0, fmt.Errorf("modulator: duplicate id %q", m.ID())
	}
	if target == nil {
		return 0, fmt.Errorf("modulator %q: %w", m.ID(), param.ErrUnresolvedTarget)
	}
	if target.Policy().Kind == param.Static {
		return 0, fmt.Errorf("modulator %q: %w", m.ID(), param.ErrStaticParam)
	}
	s.index[m.ID()] = len(s.bindings)
	s.bindings = append(s.bindings, binding{mod: m, target: target})
	return len(s.bindings) - 1, nil
}

func (s *Set) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

func (s *Set) Len() int { return len(s.bindings) }

func (s *Set) Modulator(i int) Modulator { return s.bindings[i].mod }

// Trigger fires modulator i. Out-of-range indices are ignored.
func (s *Set) Trigger(i int, scale float64) {
	if i < 0 || i >= len(s.bindings) {
		return
	}
	s.bindings[i].mod.Trigger(scale)
}

func (s *Set) Release(i int) {
	if i < 0 || i >= len(s.bindings) {
		return
	}
	s.bindings[i].mod.Release()
}

// Step advances every modulator by one control block of n samples and
// ramps each bound parameter to the new value across that block. Idle
// modulators write once when they settle and then leave the parameter to
// other writers.
func (s *Set) Step(n int) {
	if n <= 0 {
		return
	}
	dt := float64(n) / s.sampleRate
	for i := range s.bindings {
		b := &s.bindings[i]
		active := b.mod.Active()
		if !active && !b.wasActive {
			continue
		}
		v := b.mod.Step(dt)
		b.target.RampTo(v, n)
		b.wasActive = b.mod.Active()
	}
}

