package macro

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Name
		ok   bool
	}{
		{"intensity", Intensity, true},
		{"Intensity", Intensity, true},
		{"stereoWidth", StereoWidth, true},
		{"stereo_width", StereoWidth, true},
		{"Distance", Distance, true},
		{"volume", 0, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.5))
	assert.Equal(t, 1.0, Clamp(3))
	assert.Equal(t, 0.0, Clamp(math.NaN()))
	assert.Equal(t, 0.25, Clamp(0.25))
}

func TestCurveBoundaries(t *testing.T) {
	entries := []Entry{
		{Curve: Linear, Min: 0.05, Max: 0.30},
		{Curve: Linear, Min: 7, Max: -3},
		{Curve: Exp, Min: 200, Max: 8500},
		{Curve: Exp, Min: 0.013, Max: 0.7},
		{Curve: Pow, Min: 2, Max: 40, Exponent: 2.5},
	}
	for _, e := range entries {
		assert.Equal(t, e.Min, e.Absolute(0), e.Curve.String())
		assert.Equal(t, e.Max, e.Absolute(1), e.Curve.String())
	}
}

func TestCurveInterior(t *testing.T) {
	for v := 0.0; v <= 1.0; v += 0.05 {
		lin := Entry{Curve: Linear, Min: 0.05, Max: 0.30}
		assert.InDelta(t, 0.05+v*0.25, lin.Absolute(v), 1e-12)

		exp := Entry{Curve: Exp, Min: 200, Max: 8500}
		assert.InDelta(t, 200*math.Pow(8500.0/200, v), exp.Absolute(v), 1e-9)

		pow := Entry{Curve: Pow, Min: 2, Max: 40, Exponent: 2}
		assert.InDelta(t, 2+38*v*v, pow.Absolute(v), 1e-9)
	}
}

func TestEntryValidate(t *testing.T) {
	assert.Error(t, Entry{Curve: Exp, Min: 0, Max: 10}.Validate())
	assert.Error(t, Entry{Curve: Pow, Min: 0, Max: 1}.Validate())
	assert.NoError(t, Entry{Curve: Pow, Min: 0, Max: 1, Exponent: 2}.Validate())
	assert.NoError(t, Entry{Relative: true, Multiply: -0.5}.Validate())
}

func TestRelativeUsesBaseline(t *testing.T) {
	m := NewMapper()
	m.Add("rain.gain", 0.4, Entry{Macro: Distance, Relative: true, Multiply: -0.5})
	m.Seal()

	up := m.Set(Distance, 1)
	require.Len(t, up, 1)
	assert.InDelta(t, 0.2, up[0].Value, 1e-12)

	up = m.Set(Distance, 0)
	assert.InDelta(t, 0.4, up[0].Value, 1e-12)
}

func TestFoldOrderIsMacroThenDeclaration(t *testing.T) {
	m := NewMapper()
	// Declared distance first, but intensity folds first.
	m.Add("g.gain", 1, Entry{Macro: Distance, Relative: true, Multiply: -0.5})
	m.Add("g.gain", 1, Entry{Macro: Intensity, Curve: Linear, Min: 0.1, Max: 0.5})
	m.Seal()
	m.Init([Count]float64{Intensity: 1, Distance: 1})

	up := m.All()
	require.Len(t, up, 1)
	// intensity sets 0.5, distance halves it.
	assert.InDelta(t, 0.25, up[0].Value, 1e-12)
}

func TestSetOnlyUpdatesTouchedTargets(t *testing.T) {
	m := NewMapper()
	m.Add("a.gain", 1, Entry{Macro: Intensity, Min: 0, Max: 1})
	m.Add("b.frequency", 500, Entry{Macro: Brightness, Curve: Exp, Min: 500, Max: 8000})
	m.Add("rain.rate", 14, Entry{Macro: Density, Curve: Pow, Min: 2, Max: 40, Exponent: 1.5})
	m.Seal()

	up := m.Set(Brightness, 1)
	require.Len(t, up, 1)
	assert.Equal(t, "b.frequency", up[0].Key)
	assert.Equal(t, 8000.0, up[0].Value)

	assert.Equal(t, []string{"rain.rate"}, m.Touches(Density))
	assert.Empty(t, m.Touches(StereoWidth))
}

func TestSetClampsValue(t *testing.T) {
	m := NewMapper()
	m.Add("a.gain", 0, Entry{Macro: Intensity, Min: 0.05, Max: 0.30})
	m.Seal()
	up := m.Set(Intensity, 7)
	assert.Equal(t, 0.30, up[0].Value)
	assert.Equal(t, 1.0, m.Value(Intensity))
}
