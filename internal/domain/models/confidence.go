package models

import "time"

// ConfidenceEvent is one entry in the evaluator's monitoring log.
type ConfidenceEvent struct {
	Timestamp  time.Time       `json:"timestamp"`
	Factor     string          `json:"factor"`
	Level      ConfidenceLevel `json:"level"`
	Confidence float64         `json:"confidence"`
}

// StatsQuery filters the event log. Zero values mean "no filter";
// MinLevel NORMAL therefore matches every event.
type StatsQuery struct {
	Factor   string
	Window   time.Duration
	MinLevel ConfidenceLevel
}

type FactorStats struct {
	Count         int            `json:"count"`
	AvgConfidence float64        `json:"avg_confidence"`
	ByLevel       map[string]int `json:"by_level"`
}

type ConfidenceStats struct {
	Total         int                    `json:"total"`
	AvgConfidence float64                `json:"avg_confidence"`
	ByLevel       map[string]int         `json:"by_level"`
	ByFactor      map[string]FactorStats `json:"by_factor"`
}

type AlertSummary struct {
	CriticalFactors []string `json:"critical_factors"`
	WarningFactors  []string `json:"warning_factors"`
}
