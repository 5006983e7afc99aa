// Package macro maps the six high-level 0..1 controls onto low-level
// parameter and event-field values through a closed set of curves.
package macro

import (
	"math"
	"strings"
)

// Name identifies one of the fixed macros. The numeric order is the fold
// order used when several mappings write the same target.
type Name int

const (
	Intensity Name = iota
	Density
	Brightness
	Variation
	Distance
	StereoWidth

	Count = int(StereoWidth) + 1
)

var names = [Count]string{"intensity", "density", "brightness", "variation", "distance", "stereoWidth"}

func (n Name) String() string {
	if n < 0 || int(n) >= Count {
		return "unknown"
	}
	return names[n]
}

// Names lists every macro in fold order.
func Names() []Name {
	out := make([]Name, Count)
	for i := range out {
		out[i] = Name(i)
	}
	return out
}

// Parse accepts any capitalisation, e.g. "Intensity" or "stereo_width".
func Parse(s string) (Name, bool) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	for i, n := range names {
		if strings.ToLower(n) == key {
			return Name(i), true
		}
	}
	return 0, false
}

// Clamp restricts a macro value to [0, 1]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
