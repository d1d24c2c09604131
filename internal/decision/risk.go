package decision

import (
	"errors"
	"fmt"
	"math"

	"CryptoSignal/internal/domain/models"
)

// ReasonRiskPlanUnavailable rejects an asset whose price structure cannot be
// priced.
const ReasonRiskPlanUnavailable = "risk_plan_unavailable"

var ErrInvalidRiskInput = errors.New("invalid risk input")

// RiskConfig expresses all distances in ATR multiples except the R-multiples
// of the targets.
type RiskConfig struct {
	BaseOffsetATR   float64 `yaml:"base_offset_atr" default:"0.1" validate:"gte=0"`
	ExtensionFactor float64 `yaml:"extension_factor" default:"0.1" validate:"gte=0"`
	MaxOffsetATR    float64 `yaml:"max_offset_atr" default:"1.0" validate:"gte=0"`
	BandATR         float64 `yaml:"band_atr" default:"0.25" validate:"gt=0"`
	StopATR         float64 `yaml:"stop_atr" default:"1.5" validate:"gt=0"`
	PivotBufferATR  float64 `yaml:"pivot_buffer_atr" default:"0.2" validate:"gte=0"`
	TP1R            float64 `yaml:"tp1_r" default:"1.5" validate:"gte=1"`
	TP2R            float64 `yaml:"tp2_r" default:"3.0" validate:"gte=1"`
}

func (c RiskConfig) Validate() error {
	if c.StopATR <= c.BandATR {
		return fmt.Errorf("risk: stop_atr %v must exceed band_atr %v", c.StopATR, c.BandATR)
	}
	if c.TP2R < c.TP1R {
		return fmt.Errorf("risk: tp2_r %v must not be below tp1_r %v", c.TP2R, c.TP1R)
	}
	return nil
}

// BuildRiskPlan prices entry, stop and targets for side from the market
// context. The stop is the further of the structural and volatility stops.
func BuildRiskPlan(side models.Side, mc models.MarketContext, cfg RiskConfig) (models.RiskPlan, error) {
	dir := side.Sign()
	if dir == 0 {
		return models.RiskPlan{}, fmt.Errorf("side %q: %w", side, ErrInvalidRiskInput)
	}
	atr, price, fast := mc.ATR, mc.Close, mc.FastMA
	if !positive(atr) || !positive(price) || !positive(fast) {
		return models.RiskPlan{}, fmt.Errorf("close %v fast_ma %v atr %v: %w", price, fast, atr, ErrInvalidRiskInput)
	}

	extension := math.Abs(price-fast) / atr
	offset := atr * (cfg.BaseOffsetATR + cfg.ExtensionFactor*extension)
	offset = math.Min(offset, cfg.MaxOffsetATR*atr)

	mid := price - dir*offset
	// never pull back past the fast average when price is extended beyond it
	if dir*(price-fast) > 0 {
		if dir > 0 {
			mid = math.Max(mid, fast)
		} else {
			mid = math.Min(mid, fast)
		}
	}
	half := cfg.BandATR * atr
	low, high := mid-half, mid+half

	stop := mid - dir*cfg.StopATR*atr
	if dir > 0 {
		if pivot, ok := nearestBelow(mc.SwingLows, low); ok {
			stop = math.Min(stop, pivot-cfg.PivotBufferATR*atr)
		}
	} else {
		if pivot, ok := nearestAbove(mc.SwingHighs, high); ok {
			stop = math.Max(stop, pivot+cfg.PivotBufferATR*atr)
		}
	}

	risk := math.Abs(mid - stop)
	tp1 := mid + dir*cfg.TP1R*risk
	tp2 := mid + dir*cfg.TP2R*risk
	if dir > 0 {
		if target, ok := nearestAbove(mc.SwingHighs, high); ok {
			tp2 = math.Min(tp2, target)
		}
		tp2 = math.Max(tp2, tp1)
	} else {
		if target, ok := nearestBelow(mc.SwingLows, low); ok {
			tp2 = math.Max(tp2, target)
		}
		tp2 = math.Min(tp2, tp1)
		if tp2 <= 0 {
			tp2 = tp1
		}
	}

	plan := models.RiskPlan{
		EntryLow:        low,
		EntryHigh:       high,
		StopLoss:        stop,
		TakeProfit1:     tp1,
		TakeProfit2:     tp2,
		RewardRiskRatio: math.Abs(tp1-mid) / risk,
	}
	if !positive(plan.StopLoss) || !positive(plan.EntryLow) || !positive(plan.TakeProfit2) || !positive(plan.RewardRiskRatio) {
		return models.RiskPlan{}, fmt.Errorf("plan prices fall outside the positive range: %w", ErrInvalidRiskInput)
	}
	return plan, nil
}

// PlanRisk runs Stage 3.
func PlanRisk(t Timed, mc models.MarketContext, cfg RiskConfig) State {
	plan, err := BuildRiskPlan(t.Side(), mc, cfg)
	if err != nil {
		return Rejected{Stage: 3, Direction: t.Direction, Reasons: []string{ReasonRiskPlanUnavailable}}
	}
	return Priced{Timed: t, Plan: plan}
}

func nearestBelow(levels []float64, x float64) (float64, bool) {
	best, ok := math.Inf(-1), false
	for _, l := range levels {
		if l < x && l > best && positive(l) {
			best, ok = l, true
		}
	}
	return best, ok
}

func nearestAbove(levels []float64, x float64) (float64, bool) {
	best, ok := math.Inf(1), false
	for _, l := range levels {
		if l > x && l < best && !math.IsInf(l, 0) {
			best, ok = l, true
		}
	}
	return best, ok
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
