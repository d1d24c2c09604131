package decision

import (
	"fmt"
	"math"

	"CryptoSignal/internal/domain/models"
)

const (
	GateDataSufficiency  = "data_sufficiency"
	GateFundSupport      = "fund_support"
	GateExpectedValue    = "expected_value"
	GateProbabilityFloor = "probability_floor"
	GateIndependence     = "independence"
)

// GateNames lists the gates in id order; the id of a gate is its index + 1.
var GateNames = []string{GateDataSufficiency, GateFundSupport, GateExpectedValue, GateProbabilityFloor, GateIndependence}

type QualityConfig struct {
	MinConfidentFactors int     `yaml:"min_confident_factors" default:"3" validate:"gte=1"`
	FundSupportFloor    float64 `yaml:"fund_support_floor" default:"-20" validate:"gte=-100,lte=100"`
	ProbabilityFloor    float64 `yaml:"probability_floor" default:"0.55" validate:"gte=0,lte=1"`
	// VolatilityPMinShift raises the probability floor by shift × max(0, volatility)/100.
	VolatilityPMinShift float64        `yaml:"volatility_pmin_shift" default:"0.05" validate:"gte=0,lte=0.5"`
	MaxCorrelation      float64        `yaml:"max_correlation" default:"0.7" validate:"gte=0,lte=1"`
	SoftPass            SoftPassConfig `yaml:"soft_pass"`
}

// SoftPassConfig allows publishing when exactly one eligible gate misses its
// threshold by at most RelativeMargin of the threshold (absolute margin when
// the threshold is zero).
type SoftPassConfig struct {
	Enabled        bool     `yaml:"enabled" default:"true"`
	RelativeMargin float64  `yaml:"relative_margin" default:"0.05" validate:"gte=0,lte=0.5"`
	Gates          []string `yaml:"gates" default:"[\"fund_support\",\"probability_floor\",\"independence\"]" validate:"dive,oneof=data_sufficiency fund_support expected_value probability_floor independence"`
}

func (c QualityConfig) Validate() error {
	if c.ProbabilityFloor+c.VolatilityPMinShift > 1 {
		return fmt.Errorf("quality: probability_floor + volatility_pmin_shift exceeds 1")
	}
	seen := make(map[string]bool, len(c.SoftPass.Gates))
	for _, g := range c.SoftPass.Gates {
		if seen[g] {
			return fmt.Errorf("quality: soft_pass gate %q listed twice", g)
		}
		seen[g] = true
	}
	return nil
}

// GateInput carries everything Stage 4 reads besides the priced state.
type GateInput struct {
	ConfidentFactors int
	FundingScore     float64
	Probability      float64
	VolatilityScore  float64
	Reference        models.ReferenceSignal
}

type gateSpec struct {
	measured  float64
	threshold float64
	passed    bool
	// shortfall is how far a failed gate missed its threshold
	shortfall float64
}

// RunGates runs Stage 4. All gates are evaluated; none reads another's result.
func RunGates(p Priced, in GateInput, cfg QualityConfig) Verdict {
	side := p.Side()
	specs := []gateSpec{
		dataSufficiency(in, cfg),
		fundSupport(side, in, cfg),
		expectedValue(p.Plan, in),
		probabilityFloor(in, cfg),
		independence(side, in, cfg),
	}

	v := Verdict{Gates: make([]models.GateResult, 0, len(specs)), RejectReasons: []string{}}
	var failed []int
	for i, s := range specs {
		v.Gates = append(v.Gates, models.GateResult{
			GateID:        i + 1,
			Name:          GateNames[i],
			Passed:        s.passed,
			MeasuredValue: s.measured,
			Threshold:     s.threshold,
		})
		if !s.passed {
			failed = append(failed, i)
			v.RejectReasons = append(v.RejectReasons, GateNames[i])
		}
	}

	switch {
	case len(failed) == 0:
		v.Publish = true
	case len(failed) == 1 && softPassable(specs[failed[0]], GateNames[failed[0]], cfg.SoftPass):
		v.Publish = true
		v.SoftPass = true
		v.Annotations = []string{"soft_pass:" + GateNames[failed[0]]}
		v.RejectReasons = []string{}
	}
	return v
}

func softPassable(s gateSpec, name string, cfg SoftPassConfig) bool {
	if !cfg.Enabled {
		return false
	}
	eligible := false
	for _, g := range cfg.Gates {
		if g == name {
			eligible = true
			break
		}
	}
	if !eligible || math.IsNaN(s.shortfall) {
		return false
	}
	margin := cfg.RelativeMargin * math.Abs(s.threshold)
	if s.threshold == 0 {
		margin = cfg.RelativeMargin
	}
	return s.shortfall <= margin
}

func atLeast(measured, threshold float64) gateSpec {
	passed := measured >= threshold
	s := gateSpec{measured: measured, threshold: threshold, passed: passed}
	if !passed {
		s.shortfall = threshold - measured
	}
	return s
}

func dataSufficiency(in GateInput, cfg QualityConfig) gateSpec {
	return atLeast(float64(in.ConfidentFactors), float64(cfg.MinConfidentFactors))
}

func fundSupport(side models.Side, in GateInput, cfg QualityConfig) gateSpec {
	return atLeast(side.Sign()*in.FundingScore, cfg.FundSupportFloor)
}

// expectedValue measures EV per unit of risk: P·RR − (1−P).
func expectedValue(plan models.RiskPlan, in GateInput) gateSpec {
	p := in.Probability
	ev := p*plan.RewardRiskRatio - (1 - p)
	passed := ev > 0
	s := gateSpec{measured: ev, threshold: 0, passed: passed}
	if !passed {
		s.shortfall = -ev
	}
	return s
}

func probabilityFloor(in GateInput, cfg QualityConfig) gateSpec {
	vol := in.VolatilityScore
	if math.IsNaN(vol) {
		vol = 0
	}
	floor := cfg.ProbabilityFloor + cfg.VolatilityPMinShift*math.Max(0, vol)/100
	return atLeast(in.Probability, floor)
}

// independence passes when the asset is decorrelated from the reference or
// moves with it.
func independence(side models.Side, in GateInput, cfg QualityConfig) gateSpec {
	corr := math.Abs(in.Reference.Correlation)
	passed := corr <= cfg.MaxCorrelation || in.Reference.Side == side
	s := gateSpec{measured: corr, threshold: cfg.MaxCorrelation, passed: passed}
	if !passed {
		s.shortfall = corr - cfg.MaxCorrelation
	}
	return s
}
