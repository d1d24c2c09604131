package normalize

import (
	"math"
	"math/rand"
	"testing"

	"CryptoSignal/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestZScoreDegenerateHistory(t *testing.T) {
	history := make([]float64, 10)
	for i := range history {
		history[i] = 100
	}

	nf, err := Normalize(100, history, Params{Mode: models.ModeZScore, Scale: 1.5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, nf.Score)
	assert.Equal(t, models.MethodZScore, nf.Method)
	assert.Equal(t, true, nf.Diagnostics["degenerate"])
	assert.Equal(t, true, nf.Diagnostics["degenerate_distribution"])
}

func TestZScoreNearZeroVarianceNeverFails(t *testing.T) {
	history := make([]float64, 50)
	for i := range history {
		history[i] = 42 + float64(i%2)*1e-9
	}
	for _, v := range []float64{-1e9, 0, 42, 1e9} {
		nf, err := ZScore(v, history, 0.5)
		require.NoError(t, err)
		assert.Equal(t, 0.0, nf.Score)
	}
}

func TestZScoreInsufficientHistory(t *testing.T) {
	_, err := Normalize(1, ramp(9), Params{Mode: models.ModeZScore, Scale: 1})
	require.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = Normalize(1, ramp(9), Params{Mode: models.ModePercentile})
	require.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestZScoreSignAndSaturation(t *testing.T) {
	history := ramp(30)

	hi, err := ZScore(1000, history, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100, hi.Score, 1e-9)

	lo, err := ZScore(-1000, history, 1)
	require.NoError(t, err)
	assert.InDelta(t, -100, lo.Score, 1e-9)

	mid, err := ZScore(14.5, history, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0, mid.Score, 1e-9)
}

func TestPercentileMidRank(t *testing.T) {
	history := ramp(10) // 0..9

	top, err := Percentile(100, history)
	require.NoError(t, err)
	assert.InDelta(t, 100, top.Score, 1e-9)

	bottom, err := Percentile(-5, history)
	require.NoError(t, err)
	assert.InDelta(t, -100, bottom.Score, 1e-9)

	// 5 values below, one tie: rank = 55, score = 10
	tie, err := Percentile(5, history)
	require.NoError(t, err)
	assert.InDelta(t, 10, tie.Score, 1e-9)
}

func TestLegacyThresholds(t *testing.T) {
	cases := []struct {
		name  string
		value float64
		want  float64
	}{
		{"zero is unbiased", 0, 0},
		{"half neutral", 5, 16.5},
		{"at neutral", 10, 33},
		{"between", 20, 33 + 67*0.5},
		{"at extreme", 30, 100},
		{"beyond extreme saturates", 1e6, 100},
		{"negative mirrors", -20, -(33 + 67*0.5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nf := Legacy(tc.value, 10, 30)
			assert.InDelta(t, tc.want, nf.Score, 1e-9)
			assert.Equal(t, models.MethodLegacy, nf.Method)
		})
	}
}

func TestHybridRecordsBranch(t *testing.T) {
	p := Params{Mode: models.ModeHybrid, Scale: 1.5, Neutral: 1, Extreme: 3, WindowSize: 20}

	cold, err := Normalize(2, ramp(5), p)
	require.NoError(t, err)
	assert.Equal(t, models.MethodLegacy, cold.Method)
	assert.Equal(t, "legacy", cold.Diagnostics["branch"])
	assert.Equal(t, "insufficient_history", cold.Diagnostics["fallback_reason"])

	warm, err := Normalize(2, ramp(40), p)
	require.NoError(t, err)
	assert.Equal(t, models.MethodZScore, warm.Method)
	assert.Equal(t, "zscore", warm.Diagnostics["branch"])
	assert.Equal(t, 20, warm.Diagnostics["samples"])
}

func TestNonFiniteInputIsNeutral(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		nf, err := Normalize(v, ramp(20), Params{Mode: models.ModeZScore, Scale: 1})
		require.NoError(t, err)
		assert.Equal(t, 0.0, nf.Score)
		assert.Equal(t, true, nf.Diagnostics["invalid_input"])
	}
}

func TestScoresAlwaysBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	modes := []Params{
		{Mode: models.ModeZScore, Scale: 0.01},
		{Mode: models.ModePercentile},
		{Mode: models.ModeLegacy, Neutral: 0.001, Extreme: 0.002},
		{Mode: models.ModeHybrid, Scale: 0.05, Neutral: 0.01, Extreme: 1, WindowSize: 10},
	}
	for i := 0; i < 2000; i++ {
		n := 10 + rng.Intn(40)
		history := make([]float64, n)
		for j := range history {
			history[j] = rng.NormFloat64() * math.Pow(10, float64(rng.Intn(8)-4))
		}
		value := rng.NormFloat64() * math.Pow(10, float64(rng.Intn(12)-4))
		for _, p := range modes {
			nf, err := Normalize(value, history, p)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, nf.Score, -100.0)
			assert.LessOrEqual(t, nf.Score, 100.0)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, Params{Mode: models.ModeZScore, Scale: 1, WindowSize: 10}.Validate())
	assert.Error(t, Params{Mode: models.ModeZScore, Scale: 0}.Validate())
	assert.Error(t, Params{Mode: models.ModeLegacy, Neutral: 5, Extreme: 5}.Validate())
	assert.Error(t, Params{Mode: models.ModeHybrid, Scale: 1, Neutral: 1, Extreme: 2, WindowSize: 5}.Validate())
	assert.Error(t, Params{Mode: "MAGIC"}.Validate())
	assert.Error(t, Params{Mode: models.ModeLegacy, Neutral: 0, Extreme: 2}.Validate())
	assert.Error(t, Params{Mode: models.ModeHybrid, Scale: 1, Neutral: 0, Extreme: 2, WindowSize: 10}.Validate())
}

func TestLegacyZeroIsNeutral(t *testing.T) {
	bands := [][2]float64{{0.001, 0.002}, {0.3, 1.5}, {10, 50}, {0, 2}, {0, 0}}
	for _, b := range bands {
		nf := Legacy(0, b[0], b[1])
		assert.Zero(t, nf.Score, "neutral=%v extreme=%v", b[0], b[1])
	}

	nf, err := Normalize(0, nil, Params{Mode: models.ModeLegacy, Neutral: 0.3, Extreme: 1.5})
	require.NoError(t, err)
	assert.Zero(t, nf.Score)
}
