package scoreconfig

import (
	"CryptoSignal/internal/decision"
	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/features"
	"CryptoSignal/internal/scoring/calibration"
	"CryptoSignal/internal/scoring/confidence"
	"CryptoSignal/internal/scoring/normalize"
)

func hybrid(scale, neutral, extreme float64, window int) normalize.Params {
	return normalize.Params{Mode: models.ModeHybrid, Scale: scale, Neutral: neutral, Extreme: extreme, WindowSize: window}
}

func legacy(neutral, extreme float64) normalize.Params {
	return normalize.Params{Mode: models.ModeLegacy, Scale: 1.5, Neutral: neutral, Extreme: extreme, WindowSize: 30}
}

// DefaultDocument is the built-in configuration used when no document is
// supplied. It has no calibration bins, so probabilities fall back to the
// raw mapping until the first refit.
func DefaultDocument() *Document {
	return &Document{
		Version:         "1",
		TotalWeight:     100,
		WeightTolerance: 0.5,
		TargetScore:     normalize.DefaultTargetScore,
		Factors: []Factor{
			{Name: features.FactorTrend, Kind: models.KindScoring, Weight: 25, MinSamples: 60, Normalization: hybrid(1.5, 0.5, 2, 50)},
			{Name: features.FactorMomentum, Kind: models.KindScoring, Weight: 20, MinSamples: 30, Normalization: hybrid(1.5, 1, 5, 30)},
			{Name: features.FactorAlignment, Kind: models.KindScoring, Weight: 15, MinSamples: 50, Normalization: legacy(0.3, 1.5)},
			{Name: features.FactorVolumeDelta, Kind: models.KindScoring, Weight: 15, MinSamples: 48, Normalization: hybrid(1.5, 5, 30, 30)},
			{Name: features.FactorOpenInterest, Kind: models.KindScoring, Weight: 10, MinSamples: 24, Normalization: hybrid(1.5, 1, 5, 20)},
			{Name: features.FactorFunding, Kind: models.KindScoring, Weight: 10, MinSamples: 8, Normalization: hybrid(1.5, 1, 5, 20)},
			{Name: features.FactorDepthImbalance, Kind: models.KindScoring, Weight: 3, MinSamples: 1, Normalization: legacy(10, 50)},
			{Name: features.FactorLiquidation, Kind: models.KindScoring, Weight: 2, MinSamples: 1, Normalization: legacy(20, 80)},
			{Name: features.FactorVolatility, Kind: models.KindRegulator, Weight: 0, MinSamples: 60, Normalization: hybrid(1.5, 0.5, 2, 50)},
		},
		Roles: Roles{
			Trend:      features.FactorTrend,
			Momentum:   features.FactorMomentum,
			Alignment:  features.FactorAlignment,
			Funding:    features.FactorFunding,
			Volatility: features.FactorVolatility,
		},
		Features:   features.DefaultConfig(),
		Confidence: confidence.DefaultConfig(),
		Calibration: Calibration{
			Domain:         calibration.DomainScore,
			RefitBins:      10,
			RefitMinPerBin: 30,
		},
		Decision: decision.DefaultConfig(),
	}
}
