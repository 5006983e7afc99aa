package effects

import "math"

// Compressor is a stereo-linked feed-forward dynamics processor.
type Compressor struct {
	sampleRate float64
	threshold  float64 // linear
	ratio      float64
	attack     float64 // one-pole coefficient
	release    float64 // one-pole coefficient
	makeup     float64 // linear
	env        float64
}

// NewCompressor creates a compressor.
// thresholdDB: threshold in dB (e.g., -20)
// ratio: compression ratio (e.g., 4 for 4:1)
// attack, release: seconds
// makeupDB: makeup gain in dB
func NewCompressor(sampleRate int, thresholdDB, ratio, attack, release, makeupDB float64) *Compressor {
	c := &Compressor{sampleRate: float64(sampleRate)}
	c.Set(thresholdDB, ratio, attack, release, makeupDB)
	return c
}

// Set recomputes the detector coefficients. Called at control rate.
func (c *Compressor) Set(thresholdDB, ratio, attack, release, makeupDB float64) {
	c.threshold = math.Pow(10, thresholdDB/20)
	c.ratio = math.Max(ratio, 1)
	c.attack = 1 - math.Exp(-1/(math.Max(attack, 1e-4)*c.sampleRate))
	c.release = 1 - math.Exp(-1/(math.Max(release, 1e-4)*c.sampleRate))
	c.makeup = math.Pow(10, makeupDB/20)
}

func (c *Compressor) Process(l, r float64) (float64, float64) {
	level := math.Max(math.Abs(l), math.Abs(r))
	if level > c.env {
		c.env += c.attack * (level - c.env)
	} else {
		c.env += c.release * (level - c.env)
	}
	g := c.gain(c.env) * c.makeup
	return l * g, r * g
}

func (c *Compressor) gain(env float64) float64 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	over := env / c.threshold
	return math.Pow(over, 1/c.ratio-1)
}

func (c *Compressor) Reset() {
	c.env = 0
}
