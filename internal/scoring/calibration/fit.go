package calibration

import (
	"fmt"
	"math"
	"sort"

	"CryptoSignal/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// Sample is one realized outcome at a given score.
type Sample struct {
	Score float64
	Win   bool
}

// SamplesFromOutcomes converts stored outcomes to calibration samples. The
// score is signed in the direction of the trade so LONG and SHORT outcomes
// share one table.
func SamplesFromOutcomes(outcomes []models.OutcomeSample) []Sample {
	out := make([]Sample, 0, len(outcomes))
	for _, o := range outcomes {
		score := o.Score
		if o.Side == models.SideShort {
			score = -score
		}
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		out = append(out, Sample{Score: score, Win: o.Win})
	}
	return out
}

// Fit builds a score-domain table from realized outcomes using
// equal-frequency bins. Ties never straddle a bin boundary. It fails with
// ErrCalibrationUnavailable when there are fewer than bins*minPerBin samples.
func Fit(samples []Sample, bins, minPerBin int) (*Table, error) {
	if bins < 1 {
		return nil, fmt.Errorf("fit: bins must be >= 1, got %d", bins)
	}
	if minPerBin < 1 {
		minPerBin = 1
	}
	if len(samples) < bins*minPerBin {
		return nil, fmt.Errorf("fit: %d samples for %d bins of %d: %w", len(samples), bins, minPerBin, ErrCalibrationUnavailable)
	}

	ss := make([]Sample, len(samples))
	copy(ss, samples)
	sort.SliceStable(ss, func(i, j int) bool { return ss[i].Score < ss[j].Score })

	groups := make([][]Sample, 0, bins)
	size := len(ss) / bins
	start := 0
	for g := 0; g < bins && start < len(ss); g++ {
		end := start + size
		if g == bins-1 || end > len(ss) {
			end = len(ss)
		}
		for end < len(ss) && ss[end].Score == ss[end-1].Score {
			end++
		}
		groups = append(groups, ss[start:end])
		start = end
	}

	out := make([]models.CalibrationBin, 0, len(groups))
	for i, grp := range groups {
		scores := make([]float64, len(grp))
		wins := make([]float64, len(grp))
		for k, s := range grp {
			scores[k] = clampScore(s.Score)
			if s.Win {
				wins[k] = 1
			}
		}
		out = append(out, models.CalibrationBin{
			ID:      i,
			Lo:      scores[0],
			Hi:      scores[len(scores)-1],
			Center:  stat.Mean(scores, nil),
			WinRate: stat.Mean(wins, nil),
			Count:   len(grp),
		})
	}

	// close the gaps between adjacent bins at their midpoints
	for i := 1; i < len(out); i++ {
		mid := (out[i-1].Hi + out[i].Lo) / 2
		out[i-1].Hi = mid
		out[i].Lo = mid
	}

	// equal centers collapse onto one bin
	merged := out[:0]
	for _, b := range out {
		if n := len(merged); n > 0 && merged[n-1].Center == b.Center {
			last := &merged[n-1]
			total := last.Count + b.Count
			last.WinRate = (last.WinRate*float64(last.Count) + b.WinRate*float64(b.Count)) / float64(total)
			last.Count = total
			last.Hi = b.Hi
			continue
		}
		merged = append(merged, b)
	}
	for i := range merged {
		merged[i].ID = i
	}

	return NewTable(DomainScore, merged)
}

func clampScore(v float64) float64 {
	return math.Max(-100, math.Min(100, v))
}
