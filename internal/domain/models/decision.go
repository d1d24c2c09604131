package models

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideNone  Side = "NONE"
)

// Sign returns +1 for LONG, -1 for SHORT and 0 otherwise.
func (s Side) Sign() float64 {
	switch s {
	case SideLong:
		return 1
	case SideShort:
		return -1
	default:
		return 0
	}
}

type DirectionResult struct {
	Side          Side    `json:"side"`
	FinalStrength float64 `json:"final_strength"`
	Vetoed        bool    `json:"vetoed"`
	VetoReason    *string `json:"veto_reason"`
}

type TrendStage string

const (
	StageEarly   TrendStage = "EARLY"
	StageMid     TrendStage = "MID"
	StageLate    TrendStage = "LATE"
	StageBlowoff TrendStage = "BLOWOFF"
)

type TimingResult struct {
	TrendStage       TrendStage `json:"trend_stage"`
	Displacement     float64    `json:"displacement"`
	EnhancedStrength float64    `json:"enhanced_strength"`
}

type RiskPlan struct {
	EntryLow        float64 `json:"entry_low"`
	EntryHigh       float64 `json:"entry_high"`
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit1     float64 `json:"take_profit_1"`
	TakeProfit2     float64 `json:"take_profit_2"`
	RewardRiskRatio float64 `json:"reward_risk_ratio"`
}

// EntryMid is the midpoint of the entry band.
func (p RiskPlan) EntryMid() float64 { return (p.EntryLow + p.EntryHigh) / 2 }

type GateResult struct {
	GateID        int     `json:"gate_id"`
	Name          string  `json:"name"`
	Passed        bool    `json:"passed"`
	MeasuredValue float64 `json:"measured_value"`
	Threshold     float64 `json:"threshold"`
}

// Decision is the sole output of the scoring core. It holds no wall-clock
// values or random identifiers so identical inputs encode identically.
type Decision struct {
	Symbol        string                `json:"symbol"`
	Side          Side                  `json:"side"`
	Direction     DirectionResult       `json:"direction"`
	Timing        *TimingResult         `json:"timing"`
	Composite     Composite             `json:"composite"`
	Factors       []ScoredFactor        `json:"factors"`
	Probability   CalibratedProbability `json:"probability"`
	RiskPlan      *RiskPlan             `json:"risk_plan"`
	Gates         []GateResult          `json:"gates"`
	Publish       bool                  `json:"publish"`
	SoftPass      bool                  `json:"soft_pass"`
	RejectReasons []string              `json:"reject_reasons"`
	Annotations   []string              `json:"annotations,omitempty"`
}

// DecisionEnvelope carries the non-deterministic identity of a decision
// produced during a scan.
type DecisionEnvelope struct {
	ID        string    `json:"id"`
	ScanID    string    `json:"scan_id"`
	ScannedAt time.Time `json:"scanned_at"`
	Decision  Decision  `json:"decision"`
}
