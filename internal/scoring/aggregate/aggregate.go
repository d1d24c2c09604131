// Package aggregate fuses scored factors into one composite score.
package aggregate

import (
	"math"
	"sort"

	"CryptoSignal/internal/domain/models"
)

// Aggregate computes the weight-normalized composite over active factors.
// Regulators never enter the sum. DISABLED factors are excluded from the
// denominator but still count (with zero confidence) in the confidence index.
func Aggregate(factors []models.ScoredFactor) models.Composite {
	out := models.Composite{
		Contributions: make(map[string]models.Contribution, len(factors)),
		Diagnostics:   map[string]any{},
	}

	var activeWeight, weighted float64
	var scoringWeight, confWeighted float64
	var regulators []string
	for _, f := range factors {
		if f.Kind == models.KindRegulator {
			regulators = append(regulators, f.Name)
			continue
		}
		w := math.Max(0, f.Weight)
		scoringWeight += w
		confWeighted += w * f.Confidence
		if f.Level == models.LevelDisabled {
			continue
		}
		activeWeight += w
		weighted += f.AdjustedScore * w
		out.ActiveFactors++
	}

	if scoringWeight > 0 {
		out.ConfidenceIndex = clamp(confWeighted/scoringWeight*100, 0, 100)
	}
	if len(regulators) > 0 {
		sort.Strings(regulators)
		out.Diagnostics["regulators_excluded"] = regulators
	}

	if out.ActiveFactors == 0 || activeWeight <= 0 {
		out.Diagnostics["no_confident_factors"] = true
		out.ActiveFactors = 0
		return out
	}

	out.TotalWeight = activeWeight
	out.WeightedScore = clamp(weighted/activeWeight, -100, 100)
	out.Edge = Edge(out.WeightedScore)

	for _, f := range factors {
		if !f.IsActive() {
			continue
		}
		w := math.Max(0, f.Weight)
		out.Contributions[f.Name] = models.Contribution{
			Score:        f.AdjustedScore,
			WeightPct:    w / activeWeight * 100,
			Contribution: f.AdjustedScore * w / activeWeight,
		}
	}
	return out
}

// Edge maps a score in [-100,100] onto [0,1] as x and returns 2x-1.
func Edge(score float64) float64 {
	x := (clamp(score, -100, 100) + 100) / 200
	return 2*x - 1
}

// Ranked is one entry of a contribution ranking.
type Ranked struct {
	Name string
	models.Contribution
}

// TopContributions returns the k largest contributions by magnitude. Ties
// are broken by name so the ranking is stable. k <= 0 returns all.
func TopContributions(c models.Composite, k int) []Ranked {
	out := make([]Ranked, 0, len(c.Contributions))
	for name, contrib := range c.Contributions {
		out = append(out, Ranked{Name: name, Contribution: contrib})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Contribution.Contribution), math.Abs(out[j].Contribution.Contribution)
		if ai != aj {
			return ai > aj
		}
		return out[i].Name < out[j].Name
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
