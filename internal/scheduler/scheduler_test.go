package scheduler

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/soundscape-go/internal/param"
)

const sr = 48000

type fakeResolver struct {
	mods   map[string]int
	params map[string]*param.Param
}

func (f fakeResolver) Modulator(id string) (int, bool) {
	i, ok := f.mods[id]
	return i, ok
}

func (f fakeResolver) Param(target string) (*param.Param, bool) {
	p, ok := f.params[target]
	return p, ok
}

func newResolver() fakeResolver {
	return fakeResolver{
		mods:   map[string]int{"dropEnv": 0},
		params: map[string]*param.Param{"bp.frequency": param.New("frequency", 3000, param.LogPolicy(), sr)},
	}
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// drain pops every record due before frame end.
func drain(r *Ring, end int64) []Record {
	var out []Record
	for {
		rec, ok := r.Peek()
		if !ok || rec.Frame >= end {
			return out
		}
		out = append(out, rec)
		r.Pop()
	}
}

func TestPoissonIntervalMean(t *testing.T) {
	rng := seeded(1)
	const mean = 0.5
	const n = 100000
	var sum float64
	for i := 0; i < n; i++ {
		v := PoissonInterval(rng, mean)
		require.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, mean, sum/n, 0.01)
}

func TestClockWithJitterKeepsMean(t *testing.T) {
	rng := seeded(2)
	c := Clock{Kind: Poisson, Interval: 0.2, Jitter: 0.5}
	var sum float64
	const n = 50000
	for i := 0; i < n; i++ {
		v := c.next(rng, i)
		require.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 0.2, sum/n, 0.005)
}

func TestRainDropsScenario(t *testing.T) {
	ev := Event{
		ID:          "drops",
		Clock:       Clock{Kind: Poisson, Interval: 1.0 / 14, Jitter: 0.1},
		Probability: 1,
		Actions: []Action{{
			Kind: ActionTrigger, Modulator: "dropEnv", ScaleMin: 0.6, ScaleMax: 1,
		}},
	}
	s, err := New([]Event{ev}, newResolver(), Options{SampleRate: sr, Rand: seeded(3)})
	require.NoError(t, err)

	const tick = sr / 40
	var got []Record
	var now int64
	for now = 0; now < 10*sr; now += tick {
		s.Tick(now)
		got = append(got, drain(s.Ring(), now+tick)...)
	}
	assert.InDelta(t, 140, len(got), 35)

	prev := int64(-1)
	for _, rec := range got {
		assert.GreaterOrEqual(t, rec.Frame, prev)
		assert.Equal(t, 0, rec.Modulator)
		assert.GreaterOrEqual(t, rec.Scale, 0.6)
		assert.LessOrEqual(t, rec.Scale, 1.0)
		prev = rec.Frame
	}
}

func TestLookaheadBoundsScheduling(t *testing.T) {
	ev := Event{ID: "tick", Clock: Clock{Kind: Pattern, Interval: 0.05}, Probability: 1,
		Actions: []Action{{Kind: ActionTrigger, Modulator: "dropEnv"}}}
	s, err := New([]Event{ev}, newResolver(), Options{SampleRate: sr, Lookahead: 0.22})
	require.NoError(t, err)

	s.Tick(0)
	// occurrences at 0.05, 0.10, 0.15, 0.20 s
	require.Equal(t, 4, s.Ring().Len())
	s.Tick(0)
	assert.Equal(t, 4, s.Ring().Len(), "a repeated tick must not reschedule")

	rec, ok := s.Ring().Peek()
	require.True(t, ok)
	assert.Equal(t, int64(sr/20), rec.Frame)
}

func TestTickJitterDoesNotMoveTimes(t *testing.T) {
	ev := Event{ID: "tick", Clock: Clock{Kind: Pattern, Interval: 0.1}, Probability: 1,
		Actions: []Action{{Kind: ActionTrigger, Modulator: "dropEnv"}}}
	collect := func(step func(i int) int64) []int64 {
		s, err := New([]Event{ev}, newResolver(), Options{SampleRate: sr})
		require.NoError(t, err)
		var frames []int64
		var now int64
		for i := 0; now < 2*sr; i++ {
			s.Tick(now)
			for _, rec := range drain(s.Ring(), 3*sr) {
				frames = append(frames, rec.Frame)
			}
			now += step(i)
		}
		return frames
	}
	regular := collect(func(int) int64 { return 1200 })
	irregular := collect(func(i int) int64 { return int64(300 + (i*7919)%2100) })
	n := min(len(regular), len(irregular))
	require.Greater(t, n, 15)
	assert.Equal(t, regular[:n], irregular[:n])
}

func TestPatternCyclesIntervals(t *testing.T) {
	ev := Event{ID: "chirps", Clock: Clock{Kind: Pattern, Intervals: []float64{0.1, 0.1, 0.5}}, Probability: 1,
		Actions: []Action{{Kind: ActionTrigger, Modulator: "dropEnv"}}}
	s, err := New([]Event{ev}, newResolver(), Options{SampleRate: sr, Lookahead: 1.45})
	require.NoError(t, err)
	s.Tick(0)
	var frames []int64
	for _, rec := range drain(s.Ring(), 2*sr) {
		frames = append(frames, rec.Frame)
	}
	assert.Equal(t, []int64{4800, 9600, 33600, 38400, 43200, 67200}, frames)
}

func TestProbabilityGates(t *testing.T) {
	ev := Event{ID: "rare", Clock: Clock{Kind: Pattern, Interval: 0.01}, Probability: 0.25,
		Actions: []Action{{Kind: ActionTrigger, Modulator: "dropEnv"}}}
	s, err := New([]Event{ev}, newResolver(), Options{SampleRate: sr, Rand: seeded(4)})
	require.NoError(t, err)
	for now := int64(0); now < 40*sr; now += sr / 10 {
		s.Tick(now)
		s.Ring().Drain()
	}
	st := s.Stats()
	total := float64(st.Dispatched + st.Skipped)
	assert.InDelta(t, 0.25, float64(st.Dispatched)/total, 0.03)
}

func TestReleaseActionResolvesModulator(t *testing.T) {
	var unresolved int
	ev := Event{ID: "lift", Clock: Clock{Kind: Pattern, Interval: 0.1}, Probability: 1,
		Actions: []Action{
			{Kind: ActionRelease, Modulator: "dropEnv"},
			{Kind: ActionRelease, Modulator: "missing"},
		}}
	s, err := New([]Event{ev}, newResolver(), Options{
		SampleRate:   sr,
		Lookahead:    0.25,
		Rand:         seeded(6),
		OnUnresolved: func(string, int, error) { unresolved++ },
	})
	require.NoError(t, err)
	s.Tick(0)

	recs := drain(s.Ring(), sr)
	require.NotEmpty(t, recs)
	for _, rec := range recs {
		assert.Equal(t, ActionRelease, rec.Kind)
		assert.Equal(t, 0, rec.Modulator)
	}
	assert.Equal(t, len(recs), unresolved)
}

func TestUnresolvedActionIsSkipped(t *testing.T) {
	var reported []string
	ev := Event{ID: "gust", Clock: Clock{Kind: Pattern, Interval: 0.1}, Probability: 1,
		Actions: []Action{
			{Kind: ActionSet, Target: "ghost.gain", Min: 0, Max: 1},
			{Kind: ActionSet, Target: "bp.frequency", Min: 2000, Max: 4000, Ramp: 0.05},
			{Kind: ActionTrigger, Modulator: "missing"},
		}}
	s, err := New([]Event{ev}, newResolver(), Options{
		SampleRate: sr,
		Lookahead:  0.25,
		Rand:       seeded(5),
		OnUnresolved: func(event string, action int, err error) {
			assert.ErrorIs(t, err, param.ErrUnresolvedTarget)
			reported = append(reported, event)
		},
	})
	require.NoError(t, err)
	s.Tick(0)

	recs := drain(s.Ring(), sr)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, ActionSet, rec.Kind)
		assert.GreaterOrEqual(t, rec.Value, 2000.0)
		assert.Less(t, rec.Value, 4000.0)
		assert.Equal(t, 0.05, rec.Ramp)
	}
	assert.Len(t, reported, 4)
	assert.Equal(t, uint64(4), s.Stats().Unresolved)
}

func TestLateOccurrencesAreAbandoned(t *testing.T) {
	ev := Event{ID: "tick", Clock: Clock{Kind: Pattern, Interval: 0.1}, Probability: 1,
		Actions: []Action{{Kind: ActionTrigger, Modulator: "dropEnv"}}}
	s, err := New([]Event{ev}, newResolver(), Options{SampleRate: sr})
	require.NoError(t, err)
	s.Tick(0)
	s.Ring().Drain()

	// the control path stalls for ten seconds
	s.Tick(10 * sr)
	assert.Greater(t, s.Stats().Late, uint64(0))
	assert.LessOrEqual(t, s.Ring().Len(), 3)
	rec, ok := s.Ring().Peek()
	require.True(t, ok)
	assert.GreaterOrEqual(t, rec.Frame, int64(10*sr))
}

func TestRingFullDrops(t *testing.T) {
	ev := Event{ID: "burst", Clock: Clock{Kind: Pattern, Interval: 0.001}, Probability: 1,
		Actions: []Action{{Kind: ActionTrigger, Modulator: "dropEnv"}}}
	dropped := 0
	s, err := New([]Event{ev}, newResolver(), Options{
		SampleRate: sr,
		Lookahead:  0.1001,
		RingSize:   16,
		OnDropped:  func(string) { dropped++ },
	})
	require.NoError(t, err)
	s.Tick(0)
	assert.Equal(t, 16, s.Ring().Len())
	assert.Equal(t, 100-16, dropped)
	assert.Equal(t, uint64(84), s.Stats().Dropped)
}

func TestSetFieldAndField(t *testing.T) {
	ev := Event{ID: "drops", Clock: Clock{Kind: Poisson, Interval: 0.1}, Probability: 1}
	s, err := New([]Event{ev}, newResolver(), Options{SampleRate: sr})
	require.NoError(t, err)

	rate, err := s.Field("drops", "rate")
	require.NoError(t, err)
	assert.InDelta(t, 10, rate, 1e-9)

	require.NoError(t, s.SetField("drops", "rate", 40))
	iv, _ := s.Field("drops", "interval")
	assert.InDelta(t, 0.025, iv, 1e-12)

	require.NoError(t, s.SetField("drops", "probability", 3))
	p, _ := s.Field("drops", "probability")
	assert.Equal(t, 1.0, p)

	assert.ErrorIs(t, s.SetField("nope", "rate", 1), ErrUnknownEvent)
	assert.Error(t, s.SetField("drops", "rate", 0))
	assert.Error(t, s.SetField("drops", "colour", 1))
}

func TestPatternScaleKeepsShape(t *testing.T) {
	c := Clock{Kind: Pattern, Intervals: []float64{0.1, 0.3}}
	c.scale(0.4)
	assert.InDeltaSlice(t, []float64{0.2, 0.6}, c.Intervals, 1e-12)
}

func TestNewRejectsBadEvents(t *testing.T) {
	_, err := New([]Event{{ID: "a", Clock: Clock{Interval: 0}}}, newResolver(), Options{})
	assert.Error(t, err)
	ok := Event{ID: "a", Clock: Clock{Interval: 1}}
	_, err = New([]Event{ok, ok}, newResolver(), Options{})
	assert.Error(t, err)
}

func TestResetStartsAfresh(t *testing.T) {
	ev := Event{ID: "tick", Clock: Clock{Kind: Pattern, Interval: 0.05}, Probability: 1,
		Actions: []Action{{Kind: ActionTrigger, Modulator: "dropEnv"}}}
	s, err := New([]Event{ev}, newResolver(), Options{SampleRate: sr})
	require.NoError(t, err)
	s.Tick(5 * sr)
	s.Reset()
	assert.Equal(t, 0, s.Ring().Len())
	s.Tick(0)
	rec, ok := s.Ring().Peek()
	require.True(t, ok)
	assert.Equal(t, int64(sr/20), rec.Frame)
}
