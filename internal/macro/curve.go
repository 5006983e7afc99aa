package macro

import (
	"fmt"
	"math"
)

type Curve int

const (
	Linear Curve = iota
	Exp
	Pow
)

func (c Curve) String() string {
	switch c {
	case Exp:
		return "exp"
	case Pow:
		return "pow"
	}
	return "linear"
}

func ParseCurve(s string) (Curve, bool) {
	switch s {
	case "", "linear", "lin":
		return Linear, true
	case "exp", "exponential":
		return Exp, true
	case "pow", "power":
		return Pow, true
	}
	return Linear, false
}

// Entry is one macro's contribution to a target. Absolute entries produce
// a value in [Min, Max]; relative entries scale the running value by
// 1 + Multiply*shape(v).
type Entry struct {
	Macro    Name
	Curve    Curve
	Min, Max float64
	Relative bool
	Multiply float64
	Exponent float64
}

// Validate reports curve configurations that cannot be evaluated.
func (e Entry) Validate() error {
	if e.Relative {
		if math.IsNaN(e.Multiply) || math.IsInf(e.Multiply, 0) {
			return fmt.Errorf("multiply must be finite")
		}
		return nil
	}
	if e.Curve == Exp && (e.Min <= 0 || e.Max <= 0) {
		return fmt.Errorf("exp curve needs min and max > 0 (got %g, %g)", e.Min, e.Max)
	}
	if e.Curve == Pow && e.Exponent <= 0 {
		return fmt.Errorf("pow curve needs exp > 0 (got %g)", e.Exponent)
	}
	return nil
}

// Absolute evaluates the curve over [Min, Max]. v=0 and v=1 land on Min
// and Max exactly.
func (e Entry) Absolute(v float64) float64 {
	v = Clamp(v)
	switch {
	case v == 0:
		return e.Min
	case v == 1:
		return e.Max
	}
	switch e.Curve {
	case Exp:
		return e.Min * math.Pow(e.Max/e.Min, v)
	case Pow:
		return e.Min + (e.Max-e.Min)*math.Pow(v, e.exponent())
	default:
		return v*(e.Max-e.Min) + e.Min
	}
}

// Apply folds this entry into the running value.
func (e Entry) Apply(running, v float64) float64 {
	if !e.Relative {
		return e.Absolute(v)
	}
	return running + running*e.Multiply*e.shape(Clamp(v))
}

func (e Entry) shape(v float64) float64 {
	switch e.Curve {
	case Pow:
		return math.Pow(v, e.exponent())
	case Exp:
		// 0 at v=0, 1 at v=1.
		return math.Exp2(v) - 1
	}
	return v
}

func (e Entry) exponent() float64 {
	if e.Exponent <= 0 {
		return 1
	}
	return e.Exponent
}
