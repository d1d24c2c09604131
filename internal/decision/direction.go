package decision

import (
	"fmt"
	"math"

	"CryptoSignal/internal/domain/models"
)

const (
	VetoLiquidityFloor   = "liquidity_floor"
	VetoExtremeFunding   = "extreme_funding"
	VetoSettlementWindow = "settlement_window"
)

type DirectionConfig struct {
	TrendWeight     float64 `yaml:"trend_weight" default:"0.5" validate:"gte=0"`
	MomentumWeight  float64 `yaml:"momentum_weight" default:"0.3" validate:"gte=0"`
	AlignmentWeight float64 `yaml:"alignment_weight" default:"0.2" validate:"gte=0"`
	// AlignmentBonus is added toward the provisional side when the reference
	// asset trends the same way.
	AlignmentBonus  float64 `yaml:"alignment_bonus" default:"10" validate:"gte=0,lte=100"`
	MinQuoteVolume  float64 `yaml:"min_quote_volume" default:"1000000" validate:"gte=0"`
	MaxAbsFunding   float64 `yaml:"max_abs_funding" default:"0.003" validate:"gt=0"`
	BlockSettlement bool    `yaml:"block_settlement" default:"true"`
}

func (c DirectionConfig) Validate() error {
	if c.TrendWeight+c.MomentumWeight+c.AlignmentWeight <= 0 {
		return fmt.Errorf("direction: at least one of trend/momentum/alignment weight must be positive")
	}
	return nil
}

// DirectionInput holds the adjusted factor scores and veto inputs for Stage 1.
// PLong and PShort are optional and only break an exact tie.
type DirectionInput struct {
	Trend            float64
	Momentum         float64
	Alignment        float64
	Reference        models.ReferenceSignal
	QuoteVolume      float64
	FundingRate      float64
	SettlementWindow bool
	Vetoes           []string
	PLong            float64
	PShort           float64
}

// Vetoes returns every veto that applies to in, in a fixed order followed by
// the caller-supplied ones.
func Vetoes(in DirectionInput, cfg DirectionConfig) []string {
	var out []string
	if cfg.MinQuoteVolume > 0 && !(in.QuoteVolume >= cfg.MinQuoteVolume) {
		out = append(out, VetoLiquidityFloor)
	}
	if math.IsNaN(in.FundingRate) || math.Abs(in.FundingRate) > cfg.MaxAbsFunding {
		out = append(out, VetoExtremeFunding)
	}
	if cfg.BlockSettlement && in.SettlementWindow {
		out = append(out, VetoSettlementWindow)
	}
	for _, v := range in.Vetoes {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ConfirmDirection runs Stage 1. It returns Rejected when any veto applies,
// otherwise Directed.
func ConfirmDirection(in DirectionInput, cfg DirectionConfig) State {
	if reasons := Vetoes(in, cfg); len(reasons) > 0 {
		reason := reasons[0]
		return Rejected{
			Stage: 1,
			Direction: models.DirectionResult{
				Side:       models.SideNone,
				Vetoed:     true,
				VetoReason: &reason,
			},
			Reasons: reasons,
		}
	}

	strength := cfg.TrendWeight*in.Trend + cfg.MomentumWeight*in.Momentum + cfg.AlignmentWeight*in.Alignment
	if math.IsNaN(strength) {
		strength = 0
	}
	if strength != 0 {
		provisional := sideOf(strength)
		if in.Reference.Side == provisional {
			strength += provisional.Sign() * cfg.AlignmentBonus
		}
	}
	strength = clip(strength, 100)

	side := models.SideLong
	switch {
	case strength < 0:
		side = models.SideShort
	case strength == 0 && in.PShort > in.PLong:
		side = models.SideShort
	}

	return Directed{Direction: models.DirectionResult{Side: side, FinalStrength: strength}}
}

func sideOf(v float64) models.Side {
	if v < 0 {
		return models.SideShort
	}
	return models.SideLong
}

func clip(v, bound float64) float64 {
	return math.Max(-bound, math.Min(bound, v))
}
