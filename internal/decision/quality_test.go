package decision

import (
	"testing"

	"CryptoSignal/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priced(side models.Side, rr float64) Priced {
	return Priced{
		Timed: Timed{Directed: directed(side, 40)},
		Plan:  models.RiskPlan{RewardRiskRatio: rr},
	}
}

func passingInput() GateInput {
	return GateInput{
		ConfidentFactors: 5,
		FundingScore:     10,
		Probability:      0.6,
		VolatilityScore:  0,
		Reference:        models.ReferenceSignal{Side: models.SideShort, Correlation: 0.2},
	}
}

func strictQuality() QualityConfig {
	cfg := DefaultConfig().Quality
	cfg.SoftPass.Enabled = false
	return cfg
}

func passed(v Verdict) []bool {
	out := make([]bool, len(v.Gates))
	for i, g := range v.Gates {
		out[i] = g.Passed
	}
	return out
}

func TestRunGatesAllPass(t *testing.T) {
	v := RunGates(priced(models.SideLong, 2), passingInput(), strictQuality())

	require.Len(t, v.Gates, 5)
	for i, g := range v.Gates {
		assert.Equal(t, i+1, g.GateID)
		assert.Equal(t, GateNames[i], g.Name)
		assert.True(t, g.Passed, g.Name)
	}
	assert.True(t, v.Publish)
	assert.False(t, v.SoftPass)
	assert.Empty(t, v.RejectReasons)
	assert.InDelta(t, 0.8, v.Gates[2].MeasuredValue, 1e-12)
}

func TestGatesAreIndependent(t *testing.T) {
	cases := []struct {
		gate   string
		rr     float64
		mutate func(*GateInput)
	}{
		{GateDataSufficiency, 2, func(in *GateInput) { in.ConfidentFactors = 2 }},
		{GateFundSupport, 2, func(in *GateInput) { in.FundingScore = -21 }},
		{GateExpectedValue, 0.5, func(in *GateInput) {}},
		{GateProbabilityFloor, 2, func(in *GateInput) { in.Probability = 0.5 }},
		{GateIndependence, 2, func(in *GateInput) { in.Reference.Correlation = 0.71 }},
	}
	for _, tc := range cases {
		t.Run(tc.gate, func(t *testing.T) {
			in := passingInput()
			tc.mutate(&in)
			v := RunGates(priced(models.SideLong, tc.rr), in, strictQuality())

			for _, g := range v.Gates {
				assert.Equal(t, g.Name != tc.gate, g.Passed, g.Name)
			}
			assert.False(t, v.Publish)
			assert.Equal(t, []string{tc.gate}, v.RejectReasons)
		})
	}
}

func TestRunGatesReportsEveryFailure(t *testing.T) {
	in := GateInput{ConfidentFactors: 0, FundingScore: -100, Probability: 0.1, Reference: models.ReferenceSignal{Side: models.SideShort, Correlation: -0.95}}
	v := RunGates(priced(models.SideLong, 1), in, DefaultConfig().Quality)

	assert.Equal(t, []bool{false, false, false, false, false}, passed(v))
	assert.Equal(t, GateNames, v.RejectReasons)
	assert.False(t, v.Publish)
	assert.False(t, v.SoftPass)
}

func TestFundSupportIsSideAware(t *testing.T) {
	in := passingInput()
	in.FundingScore = 30
	in.Reference.Side = models.SideLong

	v := RunGates(priced(models.SideShort, 2), in, strictQuality())
	assert.False(t, v.Gates[1].Passed)
	assert.InDelta(t, -30, v.Gates[1].MeasuredValue, 1e-12)

	in.FundingScore = -30
	v = RunGates(priced(models.SideShort, 2), in, strictQuality())
	assert.True(t, v.Gates[1].Passed)
}

func TestVolatilityRaisesProbabilityFloor(t *testing.T) {
	in := passingInput()
	in.Probability = 0.58

	in.VolatilityScore = 100
	v := RunGates(priced(models.SideLong, 2), in, strictQuality())
	assert.InDelta(t, 0.60, v.Gates[3].Threshold, 1e-12)
	assert.False(t, v.Gates[3].Passed)

	in.VolatilityScore = -80
	v = RunGates(priced(models.SideLong, 2), in, strictQuality())
	assert.InDelta(t, 0.55, v.Gates[3].Threshold, 1e-12)
	assert.True(t, v.Gates[3].Passed)
}

func TestIndependencePassesWhenMovingWithReference(t *testing.T) {
	in := passingInput()
	in.Reference = models.ReferenceSignal{Side: models.SideLong, Correlation: 0.95}
	v := RunGates(priced(models.SideLong, 2), in, strictQuality())
	assert.True(t, v.Gates[4].Passed)
	assert.True(t, v.Publish)
}

func TestSoftPass(t *testing.T) {
	cfg := DefaultConfig().Quality

	in := passingInput()
	in.Probability = 0.54
	v := RunGates(priced(models.SideLong, 2), in, cfg)
	assert.False(t, v.Gates[3].Passed)
	assert.True(t, v.Publish)
	assert.True(t, v.SoftPass)
	assert.Equal(t, []string{"soft_pass:probability_floor"}, v.Annotations)
	assert.Empty(t, v.RejectReasons)

	in.Probability = 0.50
	v = RunGates(priced(models.SideLong, 2), in, cfg)
	assert.False(t, v.Publish, "outside the margin")
	assert.False(t, v.SoftPass)

	in.Probability = 0.54
	in.ConfidentFactors = 1
	v = RunGates(priced(models.SideLong, 2), in, cfg)
	assert.False(t, v.Publish, "two failures are never soft passed")
	assert.Equal(t, []string{GateDataSufficiency, GateProbabilityFloor}, v.RejectReasons)

	in = passingInput()
	in.ConfidentFactors = 2
	cfg.SoftPass.RelativeMargin = 0.5
	v = RunGates(priced(models.SideLong, 2), in, cfg)
	assert.False(t, v.Publish, "data sufficiency is not eligible by default")
}

func TestQualityConfigValidate(t *testing.T) {
	cfg := DefaultConfig().Quality
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.SoftPass.Gates = []string{GateFundSupport, GateFundSupport}
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.ProbabilityFloor = 0.99
	assert.Error(t, bad.Validate())
}
