package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, alpha := range []float64{0, 1, -0.1, 1.5, math.NaN()} {
		_, err := New(alpha, nil)
		assert.Error(t, err, "alpha %v", alpha)
	}

	e, err := New(0.9, []float64{0.5, -1, 2, math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0, 1, 0}, e.Scores())
	assert.Equal(t, 0.9, e.Alpha())
}

func TestEngine_UpdateAndDecay(t *testing.T) {
	e, err := New(0.9, []float64{0.5, 0.5, 0.5})
	require.NoError(t, err)

	require.NoError(t, e.Decay(0))
	require.NoError(t, e.Update(1, 1.0))
	require.NoError(t, e.Update(2, 7))

	s := e.Scores()
	assert.InDelta(t, 0.45, s[0], 1e-12)
	assert.InDelta(t, 0.55, s[1], 1e-12)
	assert.InDelta(t, 0.55, s[2], 1e-12, "quality is clamped to 1")

	assert.Error(t, e.Update(3, 1))
	assert.Error(t, e.Decay(-1))
	_, err = e.Score(9)
	assert.Error(t, err)
}

func TestEngine_DecayConverges(t *testing.T) {
	e, err := New(0.9, []float64{0.8})
	require.NoError(t, err)

	for k := 1; k <= 50; k++ {
		require.NoError(t, e.Decay(0))
		got, _ := e.Score(0)
		assert.InDelta(t, 0.8*math.Pow(0.9, float64(k)), got, 1e-12)
		assert.Greater(t, got, 0.0)
	}
}

func TestEngine_Grow(t *testing.T) {
	e, err := New(0.9, []float64{0.1, 0.2, 0.3, 0.4, 0.5})
	require.NoError(t, err)

	assert.Equal(t, 2, e.Grow(7))
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0, 0}, e.Scores())

	assert.Equal(t, 0, e.Grow(3))
	assert.Equal(t, 7, e.Len())
}

func TestEngine_Reset(t *testing.T) {
	e, err := New(0.9, []float64{0.7, 0.3})
	require.NoError(t, err)

	require.NoError(t, e.Reset(0))
	assert.Equal(t, []float64{0, 0.3}, e.Scores())
	assert.Error(t, e.Reset(2))
}

func TestEngine_ScoresIsACopy(t *testing.T) {
	e, err := New(0.9, []float64{0.7})
	require.NoError(t, err)
	s := e.Scores()
	s[0] = 0
	got, _ := e.Score(0)
	assert.Equal(t, 0.7, got)
}

func TestNormalize(t *testing.T) {
	w, ok := Normalize([]float64{0.2, 0.6, 0.2})
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0.2, 0.6, 0.2}, w, 1e-12)

	w, ok = Normalize([]float64{1, 3})
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, w, 1e-12)

	w, ok = Normalize([]float64{0, 0})
	assert.False(t, ok)
	assert.Equal(t, []float64{0, 0}, w)

	_, ok = Normalize(nil)
	assert.False(t, ok)
}
