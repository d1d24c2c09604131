package normalize

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultTargetScore is the score the median absolute z-score should map to.
const DefaultTargetScore = 65.0

// DeriveScale solves for the tanh scale that maps the median absolute
// z-score of samples onto targetScore:
//
//	100*tanh(median|z| / scale) = targetScore
//
// so that typical observations land mid-range instead of at the bounds.
func DeriveScale(samples []float64, targetScore float64) (float64, error) {
	if !(targetScore > 0 && targetScore < MaxScore) {
		return 0, fmt.Errorf("derive scale: target score must be in (0, %v), got %v", MaxScore, targetScore)
	}
	xs := finite(samples)
	if len(xs) < MinHistory {
		return 0, fmt.Errorf("derive scale: need %d samples, got %d: %w", MinHistory, len(xs), ErrInsufficientHistory)
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if !(std >= degenerateStd) {
		return 0, fmt.Errorf("derive scale: std %.3g: %w", std, ErrDegenerateDistribution)
	}

	absZ := make([]float64, len(xs))
	for i, x := range xs {
		absZ[i] = math.Abs((x - mean) / std)
	}
	sort.Float64s(absZ)
	median := stat.Quantile(0.5, stat.Empirical, absZ, nil)
	if !(median > 0) {
		return 0, fmt.Errorf("derive scale: median |z| is zero: %w", ErrDegenerateDistribution)
	}

	return median / math.Atanh(targetScore/MaxScore), nil
}

// MedianScore reports the score the median sample receives under scale.
// It is the check that a derived scale does what it claims.
func MedianScore(samples []float64, scale float64) (float64, error) {
	xs := finite(samples)
	if len(xs) < MinHistory {
		return 0, ErrInsufficientHistory
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if !(std >= degenerateStd) {
		return 0, ErrDegenerateDistribution
	}
	absZ := make([]float64, len(xs))
	for i, x := range xs {
		absZ[i] = math.Abs((x - mean) / std)
	}
	sort.Float64s(absZ)
	return MaxScore * math.Tanh(stat.Quantile(0.5, stat.Empirical, absZ, nil)/scale), nil
}
