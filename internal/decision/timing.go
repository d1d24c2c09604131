package decision

import (
	"fmt"
	"math"

	"CryptoSignal/internal/domain/models"
)

// TimingConfig bounds the trend stages in ATR units of side-signed
// displacement and sets the strength multiplier for each stage.
type TimingConfig struct {
	Lookback          int     `yaml:"lookback" default:"12" validate:"gte=1"`
	EarlyMax          float64 `yaml:"early_max" default:"1.5" validate:"gt=0"`
	MidMax            float64 `yaml:"mid_max" default:"3" validate:"gt=0"`
	LateMax           float64 `yaml:"late_max" default:"5" validate:"gt=0"`
	EarlyMultiplier   float64 `yaml:"early_multiplier" default:"1.10" validate:"gt=0"`
	MidMultiplier     float64 `yaml:"mid_multiplier" default:"1.15" validate:"gt=0"`
	LateMultiplier    float64 `yaml:"late_multiplier" default:"0.85" validate:"gt=0"`
	BlowoffMultiplier float64 `yaml:"blowoff_multiplier" default:"0.60" validate:"gt=0"`
}

func (c TimingConfig) Validate() error {
	if !(c.EarlyMax < c.MidMax && c.MidMax < c.LateMax) {
		return fmt.Errorf("timing: stage bounds must increase: early_max %v, mid_max %v, late_max %v", c.EarlyMax, c.MidMax, c.LateMax)
	}
	if c.BlowoffMultiplier > math.Min(c.EarlyMultiplier, c.MidMultiplier) {
		return fmt.Errorf("timing: blowoff_multiplier %v must not exceed early or mid multiplier", c.BlowoffMultiplier)
	}
	return nil
}

func (c TimingConfig) multiplier(stage models.TrendStage) float64 {
	switch stage {
	case models.StageEarly:
		return c.EarlyMultiplier
	case models.StageMid:
		return c.MidMultiplier
	case models.StageLate:
		return c.LateMultiplier
	default:
		return c.BlowoffMultiplier
	}
}

// Displacement is the close-to-close move over lookback bars in ATR units,
// signed so that a move in the trade's direction is positive.
func Displacement(side models.Side, closes []float64, atr float64, lookback int) float64 {
	n := len(closes)
	if n < 2 || !(atr > 0) || math.IsInf(atr, 0) {
		return 0
	}
	from := n - 1 - lookback
	if from < 0 {
		from = 0
	}
	d := side.Sign() * (closes[n-1] - closes[from]) / atr
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

// ClassifyStage maps a displacement onto a trend stage. A move against the
// side counts as EARLY.
func ClassifyStage(displacement float64, cfg TimingConfig) models.TrendStage {
	switch {
	case displacement < cfg.EarlyMax:
		return models.StageEarly
	case displacement < cfg.MidMax:
		return models.StageMid
	case displacement < cfg.LateMax:
		return models.StageLate
	default:
		return models.StageBlowoff
	}
}

// JudgeTiming runs Stage 2.
func JudgeTiming(d Directed, closes []float64, atr float64, cfg TimingConfig) Timed {
	disp := Displacement(d.Side(), closes, atr, cfg.Lookback)
	stage := ClassifyStage(disp, cfg)
	enhanced := math.Min(100, math.Abs(d.Direction.FinalStrength)*cfg.multiplier(stage))

	return Timed{
		Directed: d,
		Timing: models.TimingResult{
			TrendStage:       stage,
			Displacement:     disp,
			EnhancedStrength: enhanced,
		},
	}
}
