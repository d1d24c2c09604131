package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	drepo "CryptoSignal/internal/domain/repository"
	"CryptoSignal/internal/scoring/calibration"
	scanmetrics "CryptoSignal/internal/service/metrics"
	"CryptoSignal/pkg/logger"
)

// CalibrationRefresher refits the calibration table from recent realized
// outcomes and swaps it into the live calibrator.
type CalibrationRefresher struct {
	outcomes   drepo.OutcomeStore
	calibrator *calibration.Calibrator
	bins       int
	minPerBin  int
	lookback   time.Duration
	maxSamples int
	now        func() time.Time
	l          *logger.Logger
}

func NewCalibrationRefresher(outcomes drepo.OutcomeStore, cal *calibration.Calibrator, bins, minPerBin int, lookback time.Duration, maxSamples int) *CalibrationRefresher {
	return &CalibrationRefresher{
		outcomes:   outcomes,
		calibrator: cal,
		bins:       bins,
		minPerBin:  minPerBin,
		lookback:   lookback,
		maxSamples: maxSamples,
		now:        time.Now,
		l:          logger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (r *CalibrationRefresher) SetLogger(l *logger.Logger) {
	if l != nil {
		r.l = l
	}
}

// Refresh fits a new table. Too few outcomes keeps the current table and
// returns (false, nil); store or fit failures are returned.
func (r *CalibrationRefresher) Refresh(ctx context.Context) (bool, error) {
	since := r.now().Add(-r.lookback)
	outs, err := r.outcomes.RecentOutcomes(ctx, since, r.maxSamples)
	if err != nil {
		scanmetrics.ObserveRefit(false, 0)
		return false, fmt.Errorf("load outcomes: %w", err)
	}

	table, err := calibration.Fit(calibration.SamplesFromOutcomes(outs), r.bins, r.minPerBin)
	if err != nil {
		scanmetrics.ObserveRefit(false, 0)
		if errors.Is(err, calibration.ErrCalibrationUnavailable) {
			r.l.Info("calibration refit skipped", logger.Int("outcomes", len(outs)), logger.String("reason", err.Error()))
			return false, nil
		}
		return false, fmt.Errorf("fit calibration: %w", err)
	}

	r.calibrator.Swap(table)
	info := table.Info()
	scanmetrics.ObserveRefit(true, len(info.Bins))
	r.l.Info("calibration table refitted",
		logger.Int("outcomes", len(outs)),
		logger.Int("bins", len(info.Bins)),
		logger.Float("min_win_rate", info.MinWinRate),
		logger.Float("max_win_rate", info.MaxWinRate),
	)
	return true, nil
}
