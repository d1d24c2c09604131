package models

import "time"

// Bar is one OHLCV candle including taker-buy and quote volume.
type Bar struct {
	OpenTime       time.Time `json:"open_time"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         float64   `json:"volume"`
	QuoteVolume    float64   `json:"quote_volume"`
	TakerBuyVolume float64   `json:"taker_buy_volume"`
}

type OISample struct {
	Time         time.Time `json:"time"`
	OpenInterest float64   `json:"open_interest"`
}

type DepthSnapshot struct {
	BidNotional float64 `json:"bid_notional"`
	AskNotional float64 `json:"ask_notional"`
}

type LiquidationSummary struct {
	LongUSD  float64 `json:"long_usd"`
	ShortUSD float64 `json:"short_usd"`
}

// ReferenceSignal is the market-leading asset's trend direction and the
// asset's correlation to it.
type ReferenceSignal struct {
	Side        Side    `json:"side"`
	Correlation float64 `json:"correlation"`
}

// AssetSnapshot is everything the data layer hands over for one asset and
// one scan cycle. Bars are chronological.
type AssetSnapshot struct {
	Symbol           string              `json:"symbol" validate:"required"`
	Bars1h           []Bar               `json:"bars_1h" validate:"required,min=2"`
	Bars4h           []Bar               `json:"bars_4h,omitempty"`
	Bars15m          []Bar               `json:"bars_15m,omitempty"`
	OpenInterest     []OISample          `json:"open_interest,omitempty"`
	FundingRate      float64             `json:"funding_rate"`
	FundingHistory   []float64           `json:"funding_history,omitempty"`
	Depth            *DepthSnapshot      `json:"depth,omitempty"`
	Liquidations     *LiquidationSummary `json:"liquidations,omitempty"`
	Reference        *ReferenceSignal    `json:"reference,omitempty"`
	ReferenceBars    []Bar               `json:"reference_bars,omitempty"`
	SettlementWindow bool                `json:"settlement_window"`
	Vetoes           []string            `json:"vetoes,omitempty"`
}

// MarketContext carries the price structure the decision stages need beyond
// factor scores.
type MarketContext struct {
	Close            float64         `json:"close"`
	FastMA           float64         `json:"fast_ma"`
	ATR              float64         `json:"atr"`
	Closes           []float64       `json:"-"`
	SwingLows        []float64       `json:"swing_lows,omitempty"`
	SwingHighs       []float64       `json:"swing_highs,omitempty"`
	QuoteVolume      float64         `json:"quote_volume"`
	FundingRate      float64         `json:"funding_rate"`
	Reference        ReferenceSignal `json:"reference"`
	SettlementWindow bool            `json:"settlement_window"`
	Vetoes           []string        `json:"vetoes,omitempty"`
}

// OutcomeSample is the realized result of a published decision.
type OutcomeSample struct {
	DecisionID string    `json:"decision_id"`
	Symbol     string    `json:"symbol" validate:"required"`
	Side       Side      `json:"side" validate:"oneof=LONG SHORT"`
	Score      float64   `json:"score" validate:"gte=-100,lte=100"`
	Win        bool      `json:"win"`
	ClosedAt   time.Time `json:"closed_at" validate:"required"`
}
