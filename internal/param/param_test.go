package param

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialApproachIsMonotonicAndBounded(t *testing.T) {
	p := New("gain", 0.05, DefaultPolicy(), 48000)
	require.NoError(t, p.Set(0.30, 0))

	coef := 1 - math.Exp(-1/(0.02*48000))
	maxStep := (0.30 - 0.05) * coef

	prev := p.Value()
	buf := make([]float64, 48000)
	p.Fill(buf)
	for i, v := range buf {
		require.GreaterOrEqualf(t, v, prev, "sample %d decreased", i)
		require.LessOrEqualf(t, v-prev, maxStep+1e-12, "sample %d jumped by %g", i, v-prev)
		prev = v
	}
	assert.InDelta(t, 0.30, buf[len(buf)-1], 1e-6)
}

func TestLinearRampHitsTargetExactly(t *testing.T) {
	p := New("gain", 0, DefaultPolicy(), 1000)
	require.NoError(t, p.Set(1, 0.1))
	buf := make([]float64, 100)
	p.Fill(buf)
	assert.InDelta(t, 0.01, buf[0], 1e-9)
	assert.InDelta(t, 0.5, buf[49], 1e-9)
	assert.Equal(t, 1.0, buf[99])
	assert.Equal(t, 1.0, p.Next())
}

func TestLogScaleStartsFromEpsilon(t *testing.T) {
	p := New("frequency", 0, LogPolicy(), 48000)
	assert.InDelta(t, Epsilon, p.Value(), 1e-12)
	require.NoError(t, p.Set(1000, 0.01))
	v := p.Advance(480)
	assert.InDelta(t, 1000, v, 1e-6)
	assert.False(t, math.IsNaN(v))
}

func TestMaxStepLimitsSlew(t *testing.T) {
	pol := DefaultPolicy()
	pol.MaxStep = 0.001
	p := New("pan", -1, pol, 48000)
	require.NoError(t, p.Set(1, 0.0001))
	p.Poll()
	prev := p.Value()
	for i := 0; i < 100; i++ {
		v := p.Next()
		assert.LessOrEqual(t, math.Abs(v-prev), 0.001+1e-12)
		prev = v
	}
}

func TestTinyRampIsStretched(t *testing.T) {
	p := New("gain", 0, DefaultPolicy(), 48000)
	p.Apply(1, 0.00001)
	first := p.Next()
	assert.Greater(t, first, 0.0)
	assert.LessOrEqual(t, first, 1.0/48+1e-12)

	prev := first
	for i := 1; i < 48; i++ {
		v := p.Next()
		require.LessOrEqualf(t, v-prev, 1.0/48+1e-12, "sample %d jumped by %g", i, v-prev)
		prev = v
	}
	assert.Equal(t, 1.0, prev)
}

func TestStaticRejectsWrites(t *testing.T) {
	p := New("color", 1, StaticPolicy(), 48000)
	assert.ErrorIs(t, p.Set(2, 0), ErrStaticParam)
	assert.Equal(t, 1.0, p.Target())
}

func TestSetRejectsNonFinite(t *testing.T) {
	p := New("gain", 1, DefaultPolicy(), 48000)
	assert.Error(t, p.Set(math.NaN(), 0))
	assert.Error(t, p.Set(math.Inf(1), 0))
}

func TestConcurrentWritersSingleReader(t *testing.T) {
	p := New("gain", 0, DefaultPolicy(), 48000)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_ = p.Set(float64(w)/4, 0)
			}
		}(w)
	}
	buf := make([]float64, 64)
	for i := 0; i < 200; i++ {
		p.Fill(buf)
	}
	wg.Wait()
	p.Fill(buf)
	for _, v := range buf {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 0.75)
	}
}

func TestBusResolution(t *testing.T) {
	b := NewBus()
	g := New("gain", 0.15, DefaultPolicy(), 48000)
	require.NoError(t, b.Register(Target{"baseGain", "gain"}, g))
	assert.Error(t, b.Register(Target{"baseGain", "gain"}, g))

	require.NoError(t, b.Set(Target{"baseGain", "gain"}, 0.2, 0))
	assert.Equal(t, 0.2, g.Target())

	err := b.Set(Target{"missing", "gain"}, 1, 0)
	assert.ErrorIs(t, err, ErrUnresolvedTarget)
}

func TestParseTarget(t *testing.T) {
	cases := []struct {
		in   string
		want Target
		ok   bool
	}{
		{"baseGain.gain", Target{"baseGain", "gain"}, true},
		{"rain/drops.frequency", Target{"rain/drops", "frequency"}, true},
		{"nodot", Target{}, false},
		{".gain", Target{}, false},
		{"node.", Target{}, false},
	}
	for _, tc := range cases {
		got, err := ParseTarget(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}
