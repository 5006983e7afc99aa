package param

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnresolvedTarget = errors.New("param: unresolved target")

// Target addresses one node parameter, e.g. {"rainGain", "gain"}.
type Target struct {
	Node string
	Name string
}

func (t Target) String() string {
	return t.Node + "." + t.Name
}

// ParseTarget splits "node.param". Node ids may contain '/' (subpatch
// namespaces) but parameter names never contain '.'.
func ParseTarget(s string) (Target, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return Target{}, fmt.Errorf("param: malformed target %q (want node.param)", s)
	}
	return Target{Node: s[:i], Name: s[i+1:]}, nil
}

// Bus is the registry of every externally settable parameter of a compiled
// graph. It is populated during compilation and read-only afterwards, so
// lookups need no locking.
type Bus struct {
	params map[Target]*Param
}

func NewBus() *Bus {
	return &Bus{params: make(map[Target]*Param)}
}

func (b *Bus) Register(t Target, p *Param) error {
	if _, ok := b.params[t]; ok {
		return fmt.Errorf("param: %s registered twice", t)
	}
	b.params[t] = p
	return nil
}

func (b *Bus) Lookup(t Target) (*Param, bool) {
	p, ok := b.params[t]
	return p, ok
}

// Set forwards a smoothed write to the addressed parameter.
func (b *Bus) Set(t Target, value, rampSeconds float64) error {
	p, ok := b.params[t]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnresolvedTarget, t)
	}
	if err := p.Set(value, rampSeconds); err != nil {
		return fmt.Errorf("%s: %w", t, err)
	}
	return nil
}

func (b *Bus) Len() int { return len(b.params) }
