package models

import (
	"fmt"
	"strings"
)

// RawObservation is one indicator's unprocessed measurement for one asset.
// History is chronological with the most recent sample last.
type RawObservation struct {
	Value       float64   `json:"value"`
	History     []float64 `json:"history,omitempty"`
	SampleCount int       `json:"sample_count"`
}

// NormalizationMethod is the strategy that produced a normalized score.
type NormalizationMethod string

const (
	MethodZScore     NormalizationMethod = "ZSCORE"
	MethodPercentile NormalizationMethod = "PERCENTILE"
	MethodLegacy     NormalizationMethod = "LEGACY"
)

// NormalizationMode is what a factor asks for. HYBRID is a policy, not a method:
// it resolves to ZSCORE or LEGACY depending on how much history is available.
type NormalizationMode string

const (
	ModeZScore     NormalizationMode = "ZSCORE"
	ModePercentile NormalizationMode = "PERCENTILE"
	ModeLegacy     NormalizationMode = "LEGACY"
	ModeHybrid     NormalizationMode = "HYBRID"
)

type NormalizedFactor struct {
	Score       float64             `json:"score"`
	Method      NormalizationMethod `json:"method"`
	Diagnostics map[string]any      `json:"diagnostics,omitempty"`
}

// FactorKind separates factors that carry score weight from regulators,
// which only modulate thresholds of later stages.
type FactorKind string

const (
	KindScoring   FactorKind = "SCORING"
	KindRegulator FactorKind = "REGULATOR"
)

// ConfidenceLevel is ordered: a higher value means less trustworthy data.
type ConfidenceLevel int

const (
	LevelNormal ConfidenceLevel = iota
	LevelWarning
	LevelDegraded
	LevelDisabled
)

var levelNames = [...]string{"NORMAL", "WARNING", "DEGRADED", "DISABLED"}

func (l ConfidenceLevel) String() string {
	if l < LevelNormal || l > LevelDisabled {
		return fmt.Sprintf("ConfidenceLevel(%d)", int(l))
	}
	return levelNames[l]
}

func (l ConfidenceLevel) MarshalText() ([]byte, error) {
	if l < LevelNormal || l > LevelDisabled {
		return nil, fmt.Errorf("invalid confidence level %d", int(l))
	}
	return []byte(levelNames[l]), nil
}

func (l *ConfidenceLevel) UnmarshalText(b []byte) error {
	lvl, err := ParseConfidenceLevel(string(b))
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}

// ParseConfidenceLevel accepts level names case-insensitively.
func ParseConfidenceLevel(s string) (ConfidenceLevel, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == up {
			return ConfidenceLevel(i), nil
		}
	}
	return LevelNormal, fmt.Errorf("unknown confidence level %q", s)
}

// AllConfidenceLevels lists levels in order.
func AllConfidenceLevels() []ConfidenceLevel {
	return []ConfidenceLevel{LevelNormal, LevelWarning, LevelDegraded, LevelDisabled}
}

type ScoredFactor struct {
	Name          string           `json:"name"`
	Kind          FactorKind       `json:"kind"`
	Normalized    NormalizedFactor `json:"normalized"`
	Confidence    float64          `json:"confidence"`
	Level         ConfidenceLevel  `json:"level"`
	AdjustedScore float64          `json:"adjusted_score"`
	Weight        float64          `json:"weight"`
}

// IsActive reports whether the factor takes part in the weighted sum.
func (f ScoredFactor) IsActive() bool {
	return f.Kind != KindRegulator && f.Level != LevelDisabled
}
