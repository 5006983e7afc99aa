package macro

import "sort"

// Rule is the complete mapping for one target: its baseline and every
// entry that writes it, in fold order.
type Rule struct {
	Key      string
	Baseline float64
	Entries  []Entry
}

// Eval folds the baseline through each entry.
func (r Rule) Eval(values *[Count]float64) float64 {
	v := r.Baseline
	for _, e := range r.Entries {
		v = e.Apply(v, values[e.Macro])
	}
	return v
}

// Update is a computed value for a target key.
type Update struct {
	Key   string
	Value float64
}

// Mapper holds macro values and the rules derived from a patch. It is a
// pure function of its inputs and is used from the control path only.
type Mapper struct {
	values  [Count]float64
	rules   []Rule
	byKey   map[string]int
	byMacro [Count][]int
}

func NewMapper() *Mapper {
	return &Mapper{byKey: make(map[string]int)}
}

// Add appends an entry for key. Calls must follow declaration order;
// Seal orders the entries by macro while keeping that order within a macro.
func (m *Mapper) Add(key string, baseline float64, e Entry) {
	i, ok := m.byKey[key]
	if !ok {
		i = len(m.rules)
		m.byKey[key] = i
		m.rules = append(m.rules, Rule{Key: key, Baseline: baseline})
	}
	m.rules[i].Entries = append(m.rules[i].Entries, e)
}

// Seal finalises the fold order and the per-macro index.
func (m *Mapper) Seal() {
	for n := range m.byMacro {
		m.byMacro[n] = m.byMacro[n][:0]
	}
	for i := range m.rules {
		entries := m.rules[i].Entries
		sort.SliceStable(entries, func(a, b int) bool { return entries[a].Macro < entries[b].Macro })
		var seen [Count]bool
		for _, e := range entries {
			if !seen[e.Macro] {
				seen[e.Macro] = true
				m.byMacro[e.Macro] = append(m.byMacro[e.Macro], i)
			}
		}
	}
}

func (m *Mapper) Value(n Name) float64 { return m.values[n] }

// Init stores all macro values without evaluating.
func (m *Mapper) Init(values [Count]float64) {
	for i, v := range values {
		m.values[i] = Clamp(v)
	}
}

// Set clamps and stores a macro value, then recomputes every target the
// macro touches.
func (m *Mapper) Set(n Name, v float64) []Update {
	m.values[n] = Clamp(v)
	idx := m.byMacro[n]
	out := make([]Update, 0, len(idx))
	for _, i := range idx {
		r := m.rules[i]
		out = append(out, Update{Key: r.Key, Value: r.Eval(&m.values)})
	}
	return out
}

// All evaluates every rule.
func (m *Mapper) All() []Update {
	out := make([]Update, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, Update{Key: r.Key, Value: r.Eval(&m.values)})
	}
	return out
}

// Touches reports the target keys written by n.
func (m *Mapper) Touches(n Name) []string {
	out := make([]string, 0, len(m.byMacro[n]))
	for _, i := range m.byMacro[n] {
		out = append(out, m.rules[i].Key)
	}
	return out
}
