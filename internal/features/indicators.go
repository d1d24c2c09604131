package features

import (
	"math"

	"CryptoSignal/internal/domain/models"
)

// Closes returns the close prices of bars.
func Closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// EMA returns the exponential moving average of values, seeded with the first
// value. The result has the same length as values.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if period < 1 {
		period = 1
	}
	alpha := 2 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// ATR returns Wilder's average true range. The first element is the first
// bar's range.
func ATR(bars []models.Bar, period int) []float64 {
	if len(bars) == 0 {
		return nil
	}
	if period < 1 {
		period = 1
	}
	out := make([]float64, len(bars))
	out[0] = bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		tr := math.Max(bars[i].High-bars[i].Low, math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
		if i < period {
			// simple mean while warming up
			out[i] = (out[i-1]*float64(i) + tr) / float64(i+1)
			continue
		}
		out[i] = (out[i-1]*float64(period-1) + tr) / float64(period)
	}
	return out
}

// ROC is the percent rate of change between values[i-n] and values[i].
func ROC(values []float64, i, n int) float64 {
	if i <= 0 || i >= len(values) {
		return 0
	}
	from := i - n
	if from < 0 {
		from = 0
	}
	if values[from] == 0 {
		return 0
	}
	return (values[i]/values[from] - 1) * 100
}

// SwingPivots returns the lows and highs of bars that are strict extremes
// against lookback bars on both sides.
func SwingPivots(bars []models.Bar, lookback int) (lows, highs []float64) {
	if lookback < 1 {
		lookback = 1
	}
	for i := lookback; i < len(bars)-lookback; i++ {
		isLow, isHigh := true, true
		for k := i - lookback; k <= i+lookback; k++ {
			if k == i {
				continue
			}
			if bars[k].Low <= bars[i].Low {
				isLow = false
			}
			if bars[k].High >= bars[i].High {
				isHigh = false
			}
		}
		if isLow {
			lows = append(lows, bars[i].Low)
		}
		if isHigh {
			highs = append(highs, bars[i].High)
		}
	}
	return lows, highs
}

// LogReturns computes r_t = ln(C_t / C_{t-1}); non-positive prices yield 0.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// TrendSpread is (fast EMA - slow EMA) / ATR for each bar. Bars with no
// range yield 0.
func TrendSpread(bars []models.Bar, fast, slow, atrPeriod int) []float64 {
	closes := Closes(bars)
	f, s, atr := EMA(closes, fast), EMA(closes, slow), ATR(bars, atrPeriod)
	out := make([]float64, len(bars))
	for i := range bars {
		if atr[i] > 0 {
			out[i] = (f[i] - s[i]) / atr[i]
		}
	}
	return out
}

func tail(values []float64, n int) []float64 {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
