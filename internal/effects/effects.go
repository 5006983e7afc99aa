// Package effects holds the stereo DSP kernels that graph nodes
// are built from. Kernels allocate in their constructors only.
package effects

// Effector processes a stereo block in place.
type Effector interface {
	ProcessBlock(l, r []float64)
	Reset()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
