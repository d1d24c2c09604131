// Package normalize maps raw indicator values onto the bounded [-100, 100]
// score scale shared by every factor.
package normalize

import (
	"errors"
	"fmt"
	"math"

	"CryptoSignal/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

const (
	// MinHistory is the shortest history a statistical method accepts.
	MinHistory = 10

	// MaxScore bounds every normalized score.
	MaxScore = 100.0

	degenerateStd = 1e-6

	legacyNeutralScore = 33.0
)

var (
	ErrInsufficientHistory    = errors.New("insufficient history")
	ErrDegenerateDistribution = errors.New("degenerate distribution")
)

// Params configures one factor's normalization.
type Params struct {
	Mode       models.NormalizationMode `yaml:"mode" json:"mode" default:"HYBRID" validate:"oneof=ZSCORE PERCENTILE LEGACY HYBRID"`
	Scale      float64                  `yaml:"scale" json:"scale" default:"1.5" validate:"gte=0"`
	Neutral    float64                  `yaml:"neutral" json:"neutral" validate:"gte=0"`
	Extreme    float64                  `yaml:"extreme" json:"extreme" validate:"gte=0"`
	WindowSize int                      `yaml:"window_size" json:"window_size" default:"30" validate:"gte=10"`
}

// Validate checks the mode-specific parameters.
func (p Params) Validate() error {
	switch p.Mode {
	case models.ModeZScore, models.ModePercentile, models.ModeLegacy, models.ModeHybrid:
	default:
		return fmt.Errorf("unknown mode %q", p.Mode)
	}
	if p.Mode == models.ModeZScore || p.Mode == models.ModeHybrid {
		if !(p.Scale > 0) {
			return fmt.Errorf("mode %s requires scale > 0", p.Mode)
		}
	}
	if p.Mode == models.ModeLegacy || p.Mode == models.ModeHybrid {
		if !(p.Neutral > 0) || !(p.Extreme > p.Neutral) {
			return fmt.Errorf("mode %s requires 0 < neutral < extreme", p.Mode)
		}
	}
	if p.Mode == models.ModeHybrid && p.WindowSize < MinHistory {
		return fmt.Errorf("window_size must be >= %d", MinHistory)
	}
	return nil
}

// Normalize maps value onto [-100, 100] using the configured mode.
// ZSCORE and PERCENTILE fail with ErrInsufficientHistory when fewer than
// MinHistory samples are available; HYBRID never fails.
func Normalize(value float64, history []float64, p Params) (models.NormalizedFactor, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return models.NormalizedFactor{
			Score:       0,
			Method:      methodFor(p.Mode),
			Diagnostics: map[string]any{"invalid_input": true},
		}, nil
	}

	switch p.Mode {
	case models.ModeZScore:
		return ZScore(value, history, p.Scale)
	case models.ModePercentile:
		return Percentile(value, history)
	case models.ModeLegacy:
		return Legacy(value, p.Neutral, p.Extreme), nil
	case models.ModeHybrid:
		return hybrid(value, history, p), nil
	default:
		return models.NormalizedFactor{}, fmt.Errorf("normalize: unknown mode %q", p.Mode)
	}
}

// ZScore computes 100*tanh(z/scale) against the history's mean and sample
// standard deviation. Near-zero variance yields a neutral score.
func ZScore(value float64, history []float64, scale float64) (models.NormalizedFactor, error) {
	if len(history) < MinHistory {
		return models.NormalizedFactor{}, fmt.Errorf("zscore needs %d samples, got %d: %w", MinHistory, len(history), ErrInsufficientHistory)
	}
	if !(scale > 0) {
		return models.NormalizedFactor{}, fmt.Errorf("zscore: scale must be positive, got %v", scale)
	}
	hist := finite(history)
	if len(hist) < MinHistory {
		return models.NormalizedFactor{}, fmt.Errorf("zscore needs %d finite samples, got %d: %w", MinHistory, len(hist), ErrInsufficientHistory)
	}

	mean, std := stat.MeanStdDev(hist, nil)
	if !(std >= degenerateStd) {
		return models.NormalizedFactor{
			Score:  0,
			Method: models.MethodZScore,
			Diagnostics: map[string]any{
				"degenerate":              true,
				"degenerate_distribution": true,
				"mean":                    mean,
				"samples":                 len(hist),
			},
		}, nil
	}

	z := (value - mean) / std
	return models.NormalizedFactor{
		Score:  clamp(MaxScore * math.Tanh(z/scale)),
		Method: models.MethodZScore,
		Diagnostics: map[string]any{
			"z":       z,
			"mean":    mean,
			"std":     std,
			"scale":   scale,
			"samples": len(hist),
		},
	}, nil
}

// Percentile scores by mid-rank: 2*(rank-50), where ties count half.
func Percentile(value float64, history []float64) (models.NormalizedFactor, error) {
	hist := finite(history)
	if len(hist) < MinHistory {
		return models.NormalizedFactor{}, fmt.Errorf("percentile needs %d samples, got %d: %w", MinHistory, len(hist), ErrInsufficientHistory)
	}
	var below, equal int
	for _, h := range hist {
		switch {
		case h < value:
			below++
		case h == value:
			equal++
		}
	}
	rank := (float64(below) + 0.5*float64(equal)) / float64(len(hist)) * 100
	return models.NormalizedFactor{
		Score:  clamp(2 * (rank - 50)),
		Method: models.MethodPercentile,
		Diagnostics: map[string]any{
			"percentile_rank": rank,
			"samples":         len(hist),
		},
	}, nil
}

// Legacy is the threshold mapping used on cold start: |value| below neutral
// maps linearly onto [0,33], between neutral and extreme onto [33,100],
// and saturates above extreme. The sign follows the input.
func Legacy(value, neutral, extreme float64) models.NormalizedFactor {
	abs := math.Abs(value)
	var mag float64
	switch {
	case abs == 0:
		mag = 0
	case abs >= extreme:
		mag = MaxScore
	case abs < neutral:
		mag = legacyNeutralScore * abs / neutral
	default:
		span := extreme - neutral
		if span <= 0 {
			mag = MaxScore
		} else {
			mag = legacyNeutralScore + (MaxScore-legacyNeutralScore)*(abs-neutral)/span
		}
	}
	if value < 0 {
		mag = -mag
	}
	return models.NormalizedFactor{
		Score:  clamp(mag),
		Method: models.MethodLegacy,
		Diagnostics: map[string]any{
			"neutral": neutral,
			"extreme": extreme,
		},
	}
}

func hybrid(value float64, history []float64, p Params) models.NormalizedFactor {
	window := p.WindowSize
	if window < MinHistory {
		window = MinHistory
	}
	if len(history) >= window {
		nf, err := ZScore(value, history[len(history)-window:], p.Scale)
		if err == nil {
			nf.Diagnostics["branch"] = "zscore"
			nf.Diagnostics["window_size"] = window
			return nf
		}
		out := Legacy(value, p.Neutral, p.Extreme)
		out.Diagnostics["branch"] = "legacy"
		out.Diagnostics["fallback_reason"] = "insufficient_finite_history"
		return out
	}
	out := Legacy(value, p.Neutral, p.Extreme)
	out.Diagnostics["branch"] = "legacy"
	out.Diagnostics["fallback_reason"] = "insufficient_history"
	out.Diagnostics["history_len"] = len(history)
	out.Diagnostics["window_size"] = window
	return out
}

func methodFor(mode models.NormalizationMode) models.NormalizationMethod {
	switch mode {
	case models.ModeZScore, models.ModeHybrid:
		return models.MethodZScore
	case models.ModePercentile:
		return models.MethodPercentile
	default:
		return models.MethodLegacy
	}
}

func finite(xs []float64) []float64 {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out := make([]float64, 0, len(xs))
			for _, y := range xs {
				if !math.IsNaN(y) && !math.IsInf(y, 0) {
					out = append(out, y)
				}
			}
			return out
		}
	}
	return xs
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-MaxScore, math.Min(MaxScore, v))
}
