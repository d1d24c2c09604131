// Package features turns an asset snapshot into raw factor observations and
// the price context the decision stages read.
package features

import (
	"math"

	"CryptoSignal/internal/domain/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	FactorTrend          = "trend"
	FactorMomentum       = "momentum"
	FactorAlignment      = "alignment"
	FactorVolumeDelta    = "volume_delta"
	FactorOpenInterest   = "open_interest"
	FactorFunding        = "funding"
	FactorDepthImbalance = "depth_imbalance"
	FactorLiquidation    = "liquidation"
	FactorVolatility     = "volatility"
)

// Names lists every factor Extract can produce.
var Names = []string{
	FactorTrend, FactorMomentum, FactorAlignment, FactorVolumeDelta, FactorOpenInterest,
	FactorFunding, FactorDepthImbalance, FactorLiquidation, FactorVolatility,
}

type Config struct {
	FastPeriod     int `yaml:"fast_period" default:"20" validate:"gte=2"`
	SlowPeriod     int `yaml:"slow_period" default:"50" validate:"gtfield=FastPeriod"`
	ATRPeriod      int `yaml:"atr_period" default:"14" validate:"gte=2"`
	MomentumPeriod int `yaml:"momentum_period" default:"10" validate:"gte=1"`
	CVDWindow      int `yaml:"cvd_window" default:"24" validate:"gte=1"`
	PivotLookback  int `yaml:"pivot_lookback" default:"3" validate:"gte=1"`
	VolumeWindow   int `yaml:"volume_window" default:"24" validate:"gte=1"`
	// HistoryWindow caps the history handed to the normalizer.
	HistoryWindow int `yaml:"history_window" default:"200" validate:"gte=10"`
}

func DefaultConfig() Config {
	return Config{
		FastPeriod:     20,
		SlowPeriod:     50,
		ATRPeriod:      14,
		MomentumPeriod: 10,
		CVDWindow:      24,
		PivotLookback:  3,
		VolumeWindow:   24,
		HistoryWindow:  200,
	}
}

// alignment weights per timeframe
var alignmentWeights = []struct {
	tf     func(*models.AssetSnapshot) []models.Bar
	weight float64
}{
	{func(s *models.AssetSnapshot) []models.Bar { return s.Bars4h }, 0.5},
	{func(s *models.AssetSnapshot) []models.Bar { return s.Bars1h }, 0.3},
	{func(s *models.AssetSnapshot) []models.Bar { return s.Bars15m }, 0.2},
}

// Extract computes every observation the snapshot supports. Factors whose
// inputs are absent are left out of the map.
func Extract(s *models.AssetSnapshot, cfg Config) (map[string]models.RawObservation, models.MarketContext) {
	obs := make(map[string]models.RawObservation, len(Names))
	bars := s.Bars1h
	n := len(bars)
	closes := Closes(bars)

	var atr, fast []float64
	if n > 0 {
		atr = ATR(bars, cfg.ATRPeriod)
		fast = EMA(closes, cfg.FastPeriod)

		obs[FactorTrend] = seriesObservation(TrendSpread(bars, cfg.FastPeriod, cfg.SlowPeriod, cfg.ATRPeriod), n, cfg.HistoryWindow)
		obs[FactorMomentum] = momentum(closes, cfg)
		obs[FactorVolumeDelta] = volumeDelta(bars, cfg)
		obs[FactorVolatility] = volatility(closes, atr, cfg.HistoryWindow)
	}
	if o, ok := alignment(s, cfg); ok {
		obs[FactorAlignment] = o
	}
	if o, ok := openInterest(s.OpenInterest, closes, cfg.HistoryWindow); ok {
		obs[FactorOpenInterest] = o
	}
	obs[FactorFunding] = funding(s.FundingRate, s.FundingHistory, cfg.HistoryWindow)
	if d := s.Depth; d != nil && d.BidNotional+d.AskNotional > 0 {
		obs[FactorDepthImbalance] = models.RawObservation{
			Value:       (d.BidNotional - d.AskNotional) / (d.BidNotional + d.AskNotional) * 100,
			SampleCount: 1,
		}
	}
	if l := s.Liquidations; l != nil && l.LongUSD+l.ShortUSD > 0 {
		// shorts being liquidated pushes price up
		obs[FactorLiquidation] = models.RawObservation{
			Value:       (l.ShortUSD - l.LongUSD) / (l.LongUSD + l.ShortUSD) * 100,
			SampleCount: 1,
		}
	}

	mc := models.MarketContext{
		Closes:           closes,
		FundingRate:      s.FundingRate,
		SettlementWindow: s.SettlementWindow,
		Vetoes:           append([]string(nil), s.Vetoes...),
	}
	if n > 0 {
		mc.Close = closes[n-1]
		mc.FastMA = fast[n-1]
		mc.ATR = atr[n-1]
		mc.SwingLows, mc.SwingHighs = SwingPivots(bars, cfg.PivotLookback)
		for _, b := range bars[n-min(n, cfg.VolumeWindow):] {
			mc.QuoteVolume += b.QuoteVolume
		}
	}
	if s.Reference != nil {
		mc.Reference = *s.Reference
	} else {
		mc.Reference = ReferenceFromBars(bars, s.ReferenceBars, cfg)
	}
	return obs, mc
}

// ReferenceFromBars derives the reference signal: the reference asset's
// trend side and the Pearson correlation of log returns over the common tail.
func ReferenceFromBars(asset, reference []models.Bar, cfg Config) models.ReferenceSignal {
	sig := models.ReferenceSignal{Side: models.SideNone}
	if len(reference) < 2 {
		return sig
	}
	spread := TrendSpread(reference, cfg.FastPeriod, cfg.SlowPeriod, cfg.ATRPeriod)
	switch last := spread[len(spread)-1]; {
	case last > 0:
		sig.Side = models.SideLong
	case last < 0:
		sig.Side = models.SideShort
	}

	a, r := LogReturns(Closes(asset)), LogReturns(Closes(reference))
	k := min(len(a), len(r))
	if k < 3 {
		return sig
	}
	if c := stat.Correlation(tail(a, k), tail(r, k), nil); !math.IsNaN(c) {
		sig.Correlation = c
	}
	return sig
}

// seriesObservation uses the last element as the value and up to window
// previous elements as history.
func seriesObservation(series []float64, samples, window int) models.RawObservation {
	last := len(series) - 1
	return models.RawObservation{
		Value:       series[last],
		History:     append([]float64(nil), tail(series[:last], window)...),
		SampleCount: samples,
	}
}

func momentum(closes []float64, cfg Config) models.RawObservation {
	n := len(closes)
	series := make([]float64, 0, n)
	for i := min(cfg.MomentumPeriod, n-1); i < n; i++ {
		series = append(series, ROC(closes, i, cfg.MomentumPeriod))
	}
	return seriesObservation(series, n, cfg.HistoryWindow)
}

// volumeDelta is net taker flow over the window as a percent of volume.
func volumeDelta(bars []models.Bar, cfg Config) models.RawObservation {
	n := len(bars)
	delta := make([]float64, n)
	vol := make([]float64, n)
	for i, b := range bars {
		delta[i] = 2*b.TakerBuyVolume - b.Volume
		vol[i] = b.Volume
	}
	w := min(cfg.CVDWindow, n)
	series := make([]float64, 0, n-w+1)
	for end := w; end <= n; end++ {
		v := floats.Sum(vol[end-w : end])
		if v <= 0 {
			series = append(series, 0)
			continue
		}
		series = append(series, floats.Sum(delta[end-w:end])/v*100)
	}
	return seriesObservation(series, n, cfg.HistoryWindow)
}

// volatility is ATR as a percent of price.
func volatility(closes, atr []float64, window int) models.RawObservation {
	series := make([]float64, len(closes))
	for i, c := range closes {
		if c > 0 {
			series[i] = atr[i] / c * 100
		}
	}
	return seriesObservation(series, len(closes), window)
}

// alignment needs the 4h timeframe; 1h and 15m only refine it.
func alignment(s *models.AssetSnapshot, cfg Config) (models.RawObservation, bool) {
	if len(s.Bars4h) < 2 {
		return models.RawObservation{}, false
	}
	var sum, weight float64
	for _, a := range alignmentWeights {
		bars := a.tf(s)
		if len(bars) < 2 {
			continue
		}
		spread := TrendSpread(bars, cfg.FastPeriod, cfg.SlowPeriod, cfg.ATRPeriod)
		sum += a.weight * spread[len(spread)-1]
		weight += a.weight
	}
	return models.RawObservation{Value: sum / weight, SampleCount: len(s.Bars4h)}, true
}

// openInterest is the percent OI change per sample, signed by the price move
// over the matching 1h bar: rising OI confirms the move.
func openInterest(samples []models.OISample, closes []float64, window int) (models.RawObservation, bool) {
	m := len(samples)
	if m < 2 {
		return models.RawObservation{}, false
	}
	series := make([]float64, 0, m-1)
	for j := 1; j < m; j++ {
		prev := samples[j-1].OpenInterest
		if prev <= 0 {
			series = append(series, 0)
			continue
		}
		change := (samples[j].OpenInterest/prev - 1) * 100
		sign := 1.0
		if idx := len(closes) - (m - j); idx >= 1 && closes[idx] < closes[idx-1] {
			sign = -1
		}
		series = append(series, sign*change)
	}
	return seriesObservation(series, m, window), true
}

// funding is the negated rate in basis points: crowded longs pay, which is
// unfavourable for LONG.
func funding(rate float64, history []float64, window int) models.RawObservation {
	h := tail(history, window)
	hist := make([]float64, len(h))
	for i, r := range h {
		hist[i] = -r * 10000
	}
	return models.RawObservation{
		Value:       -rate * 10000,
		History:     hist,
		SampleCount: len(history) + 1,
	}
}
