package models

type Contribution struct {
	Score        float64 `json:"score"`
	WeightPct    float64 `json:"weight_pct"`
	Contribution float64 `json:"contribution"`
}

// Composite is the confidence-adjusted fusion of all scoring factors.
// TotalWeight is the denominator used for WeightedScore, i.e. the summed
// weight of active (non-regulator, non-disabled) factors.
type Composite struct {
	WeightedScore   float64                 `json:"weighted_score"`
	Edge            float64                 `json:"edge"`
	ConfidenceIndex float64                 `json:"confidence_index"`
	Contributions   map[string]Contribution `json:"contributions"`
	TotalWeight     float64                 `json:"total_weight"`
	ActiveFactors   int                     `json:"active_factors"`
	Diagnostics     map[string]any          `json:"diagnostics,omitempty"`
}

type CalibratedProbability struct {
	RawProbability        float64 `json:"raw_probability"`
	CalibratedProbability float64 `json:"calibrated_probability"`
	BinID                 int     `json:"bin_id"`
	Fallback              bool    `json:"fallback_uncalibrated,omitempty"`
}

// CalibrationBin maps a score (or probability) interval to a realized win rate.
type CalibrationBin struct {
	ID      int     `json:"id" yaml:"id"`
	Lo      float64 `json:"lo" yaml:"lo"`
	Hi      float64 `json:"hi" yaml:"hi"`
	Center  float64 `json:"center" yaml:"center"`
	WinRate float64 `json:"win_rate" yaml:"win_rate"`
	Count   int     `json:"count" yaml:"count"`
}

// CalibrationInfo describes the table currently used by the calibrator.
type CalibrationInfo struct {
	Domain     string           `json:"domain"`
	Bins       []CalibrationBin `json:"bins"`
	MinWinRate float64          `json:"min_win_rate"`
	MaxWinRate float64          `json:"max_win_rate"`
	Samples    int              `json:"samples"`
}
