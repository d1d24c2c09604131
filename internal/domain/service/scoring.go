package service

import (
	"time"

	"CryptoSignal/internal/domain/models"
)

// DecisionEngine scores one asset snapshot end to end. It performs no I/O.
type DecisionEngine interface {
	EvaluateSnapshot(snap *models.AssetSnapshot) models.Decision
}

// ConfidenceMonitor exposes the diagnostic queries over the confidence log.
type ConfidenceMonitor interface {
	Stats(q models.StatsQuery) models.ConfidenceStats
	AlertSummary(window time.Duration) models.AlertSummary
}

// CalibrationView reports the calibration table currently in use.
type CalibrationView interface {
	Info() models.CalibrationInfo
}
