package patch

import (
	"fmt"
	"sort"
)

// Params holds node parameter values as decoded: numbers (any numeric
// type), booleans, or strings for enumerated parameters.
type Params map[string]any

// Split separates numeric and string values. Booleans become 0 or 1.
func (p Params) Split() (map[string]float64, map[string]string) {
	num := map[string]float64{}
	str := map[string]string{}
	for k, v := range p {
		if f, ok := toFloat(v); ok {
			num[k] = f
			continue
		}
		if s, ok := v.(string); ok {
			str[k] = s
		}
	}
	return num, str
}

// Float returns a numeric parameter.
func (p Params) Float(name string) (float64, bool) {
	v, ok := p[name]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Keys returns parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Params) clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func describe(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(v)
}
