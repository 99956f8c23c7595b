package simulate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rliebert/reading-fluency-app/internal/passage"
)

func builtinFirst(t *testing.T) passage.Passage {
	t.Helper()
	p, ok := passage.Builtin().At(0)
	require.True(t, ok)
	return p
}

func TestPerfectProfile(t *testing.T) {
	p := builtinFirst(t)
	e := NewSeeded(1)
	res, err := e.Simulate(Profile{WordsPerMinute: 60, Kind: Perfect}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, min(60, p.Len()), res.Score)
	assert.Empty(t, res.Errors)

	short := passage.MustNew("s", "K", []string{"one two three"})
	res, err = e.Simulate(Profile{WordsPerMinute: 60, ErrorRatePercent: 40, Kind: Perfect}, short, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.Empty(t, res.Errors)
}

func TestErrorsDrawnFromWordsRead(t *testing.T) {
	p := builtinFirst(t)
	e := NewSeeded(42)
	for _, kind := range []Kind{Normal, Struggling, Improving} {
		for _, rate := range []int{0, 5, 17, 33, 50} {
			prof := Profile{WordsPerMinute: 45, ErrorRatePercent: rate, ImprovementDelta: 3, Kind: kind}
			res, err := e.Simulate(prof, p, []int{20})
			require.NoError(t, err)
			wordsRead := min(45, p.Len())
			want := int(math.Round(float64(wordsRead) * float64(rate) / 100))
			assert.Len(t, res.Errors, want)
			allowed := map[string]int{}
			for _, w := range p.Words()[:wordsRead] {
				allowed[w]++
			}
			for _, w := range res.Errors {
				assert.Positive(t, allowed[w], "unexpected error word %q", w)
				allowed[w]--
			}
			assert.GreaterOrEqual(t, res.Score, 0)
		}
	}
}

func TestErrorsInPassageOrder(t *testing.T) {
	p := passage.MustNew("n", "K", []string{"w0 w1 w2 w3 w4 w5 w6 w7 w8 w9"})
	res, err := NewSeeded(7).Simulate(Profile{WordsPerMinute: 10, ErrorRatePercent: 50}, p, nil)
	require.NoError(t, err)
	require.Len(t, res.Errors, 5)
	words := p.Words()
	last := -1
	for _, e := range res.Errors {
		idx := -1
		for i, w := range words {
			if w == e {
				idx = i
			}
		}
		assert.Greater(t, idx, last)
		last = idx
	}
	assert.Equal(t, 5, res.Score)
}

func TestKindAdjustments(t *testing.T) {
	p := builtinFirst(t)
	e := NewSeeded(3)

	res, err := e.Simulate(Profile{WordsPerMinute: 20, ErrorRatePercent: 30, Kind: Struggling}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Score)

	res, err = e.Simulate(Profile{WordsPerMinute: 60, ErrorRatePercent: 10, Kind: Struggling}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, 60-6-5, res.Score)

	res, err = e.Simulate(Profile{WordsPerMinute: 40, ErrorRatePercent: 10, ImprovementDelta: 5, Kind: Improving}, p, []int{12, 30})
	require.NoError(t, err)
	assert.Equal(t, 35, res.Score)

	res, err = e.Simulate(Profile{WordsPerMinute: 40, ErrorRatePercent: 10, ImprovementDelta: 5, Kind: Improving}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, 36, res.Score)

	res, err = e.Simulate(Profile{WordsPerMinute: 40, ImprovementDelta: -80, Kind: Improving}, p, []int{10})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
}

func TestSeededIsReproducible(t *testing.T) {
	p := builtinFirst(t)
	prof := Profile{WordsPerMinute: 50, ErrorRatePercent: 20}
	a, err := NewSeeded(99).Simulate(prof, p, nil)
	require.NoError(t, err)
	b, err := NewSeeded(99).Simulate(prof, p, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestValidate(t *testing.T) {
	p := builtinFirst(t)
	e := NewSeeded(1)
	for _, prof := range []Profile{
		{WordsPerMinute: -1},
		{WordsPerMinute: 10, ErrorRatePercent: 51},
		{WordsPerMinute: 10, ErrorRatePercent: -1},
		{WordsPerMinute: 10, Kind: "sleepy"},
	} {
		_, err := e.Simulate(prof, p, nil)
		assert.ErrorIs(t, err, ErrInvalidProfile)
	}
}

func TestZeroWords(t *testing.T) {
	res, err := NewSeeded(1).Simulate(Profile{WordsPerMinute: 0, ErrorRatePercent: 50}, builtinFirst(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	assert.Empty(t, res.Errors)
}

func TestPresets(t *testing.T) {
	assert.Equal(t, Profile{WordsPerMinute: 60, Kind: Perfect}, Preset(Perfect, 2))
	assert.Equal(t, Profile{WordsPerMinute: 20, ErrorRatePercent: 30, Kind: Struggling}, Preset(Struggling, 1))
	assert.Equal(t, Profile{WordsPerMinute: 35, ErrorRatePercent: 15, ImprovementDelta: 5, Kind: Improving}, Preset(Improving, 1))
	assert.Equal(t, Profile{WordsPerMinute: 45, ErrorRatePercent: 5, ImprovementDelta: 5, Kind: Improving}, Preset(Improving, 3))
	assert.Equal(t, Normal, Preset("", 1).Kind)

	assert.Equal(t, Struggling, QuickTestKind(1))
	assert.Equal(t, Improving, QuickTestKind(2))
	assert.Equal(t, Perfect, QuickTestKind(3))
	assert.Equal(t, Perfect, QuickTest(3).Kind)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Improving ")
	require.NoError(t, err)
	assert.Equal(t, Improving, k)
	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Normal, k)
	_, err = ParseKind("fast")
	assert.ErrorIs(t, err, ErrInvalidProfile)
}
