package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"CryptoSignal/internal/domain/models"
	domrepo "CryptoSignal/internal/domain/repository"
	pkgch "CryptoSignal/pkg/clickhouse"
	applogger "CryptoSignal/pkg/logger"
	"CryptoSignal/pkg/util"
)

// ErrNoSnapshot is returned when a symbol has too few 1h bars to score.
var ErrNoSnapshot = errors.New("no snapshot data")

// Lookback is how many rows of each series the source reads per asset.
type Lookback struct {
	Bars1h  int
	Bars4h  int
	Bars15m int
	Funding int
	OI      int
}

// CHSnapshotSource assembles AssetSnapshots from the snapshot tables.
type CHSnapshotSource struct {
	db         *sql.DB
	bars       string
	market     string
	lookback   Lookback
	reference  string
	settlement time.Duration
	now        func() time.Time
	l          *applogger.Logger
}

type SnapshotOption func(*CHSnapshotSource)

// WithReference sets the symbol whose 1h bars become every other
// snapshot's ReferenceBars.
func WithReference(symbol string) SnapshotOption {
	return func(s *CHSnapshotSource) { s.reference = util.NormalizeSymbol(symbol) }
}

func WithSettlementWindow(d time.Duration) SnapshotOption {
	return func(s *CHSnapshotSource) { s.settlement = d }
}

func WithSnapshotClock(now func() time.Time) SnapshotOption {
	return func(s *CHSnapshotSource) { s.now = now }
}

func NewCHSnapshotSource(ch *pkgch.Client, lb Lookback, opts ...SnapshotOption) *CHSnapshotSource {
	s := &CHSnapshotSource{
		db:         ch.DB(),
		bars:       ch.Table(TableBars),
		market:     ch.Table(TableMarket),
		lookback:   lb,
		settlement: 30 * time.Minute,
		now:        time.Now,
		l:          applogger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetLogger injects a structured logger.
func (s *CHSnapshotSource) SetLogger(l *applogger.Logger) { s.l = nopIfNil(l) }

// LatestSnapshot reads the newest bars and market rows for symbol.
func (s *CHSnapshotSource) LatestSnapshot(ctx context.Context, symbol string) (*models.AssetSnapshot, error) {
	start := time.Now()
	symbol = util.NormalizeSymbol(symbol)

	bars1h, err := s.latestBars(ctx, symbol, domrepo.TF1h, s.lookback.Bars1h)
	if err != nil {
		return nil, err
	}
	if len(bars1h) < 2 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoSnapshot)
	}
	bars4h, err := s.latestBars(ctx, symbol, domrepo.TF4h, s.lookback.Bars4h)
	if err != nil {
		return nil, err
	}
	bars15m, err := s.latestBars(ctx, symbol, domrepo.TF15m, s.lookback.Bars15m)
	if err != nil {
		return nil, err
	}

	snap := &models.AssetSnapshot{
		Symbol:           symbol,
		Bars1h:           bars1h,
		Bars4h:           bars4h,
		Bars15m:          bars15m,
		SettlementWindow: util.InSettlementWindow(s.now(), s.settlement),
	}
	if err := s.fillMarket(ctx, snap); err != nil {
		return nil, err
	}

	if s.reference != "" && s.reference != symbol {
		ref, err := s.latestBars(ctx, s.reference, domrepo.TF1h, s.lookback.Bars1h)
		if err != nil {
			return nil, err
		}
		snap.ReferenceBars = ref
	}

	s.l.Debug("clickhouse snapshot ok",
		applogger.String("symbol", symbol),
		applogger.Int("bars_1h", len(bars1h)),
		applogger.Int("bars_4h", len(bars4h)),
		applogger.Int("bars_15m", len(bars15m)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return snap, nil
}

// latestBars returns up to n closed bars in chronological order. The bar
// still forming at now is left out.
func (s *CHSnapshotSource) latestBars(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.Bar, error) {
	if n <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT open_time, open, high, low, close, volume, quote_volume, taker_buy_volume
FROM %s
WHERE symbol = ? AND timeframe = ? AND open_time <= ?
ORDER BY open_time DESC
LIMIT ?`, s.bars)
	closed := util.LastClosedBar(s.now(), string(tf))
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), closed, n)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("latest %s bars for %s: %w", tf, symbol, err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, n)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.OpenTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.QuoteVolume, &b.TakerBuyVolume); err != nil {
			return nil, fmt.Errorf("scan %s bar: %w", tf, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// fillMarket reads funding, open interest, depth and liquidations. The
// newest row supplies the point values, older rows the histories.
func (s *CHSnapshotSource) fillMarket(ctx context.Context, snap *models.AssetSnapshot) error {
	n := max(s.lookback.Funding, s.lookback.OI, 1)
	q := fmt.Sprintf(`SELECT ts, funding_rate, open_interest, bid_notional, ask_notional, liq_long_usd, liq_short_usd
FROM %s
WHERE symbol = ?
ORDER BY ts DESC
LIMIT ?`, s.market)
	rows, err := s.db.QueryContext(ctx, q, snap.Symbol, n)
	if err != nil {
		s.l.Error("clickhouse market query error", applogger.String("symbol", snap.Symbol), applogger.Error(err))
		return fmt.Errorf("market rows for %s: %w", snap.Symbol, err)
	}
	defer rows.Close()

	type marketRow struct {
		ts                time.Time
		funding, oi       float64
		bid, ask          float64
		liqLong, liqShort float64
	}
	var recs []marketRow
	for rows.Next() {
		var r marketRow
		if err := rows.Scan(&r.ts, &r.funding, &r.oi, &r.bid, &r.ask, &r.liqLong, &r.liqShort); err != nil {
			return fmt.Errorf("scan market row: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}

	latest := recs[0]
	snap.FundingRate = latest.funding
	if latest.bid > 0 || latest.ask > 0 {
		snap.Depth = &models.DepthSnapshot{BidNotional: latest.bid, AskNotional: latest.ask}
	}
	if latest.liqLong > 0 || latest.liqShort > 0 {
		snap.Liquidations = &models.LiquidationSummary{LongUSD: latest.liqLong, ShortUSD: latest.liqShort}
	}

	// rows are newest first; histories are chronological
	for i := min(len(recs), s.lookback.Funding) - 1; i >= 0; i-- {
		snap.FundingHistory = append(snap.FundingHistory, recs[i].funding)
	}
	for i := min(len(recs), s.lookback.OI) - 1; i >= 0; i-- {
		if recs[i].oi <= 0 {
			continue
		}
		snap.OpenInterest = append(snap.OpenInterest, models.OISample{Time: recs[i].ts, OpenInterest: recs[i].oi})
	}
	return nil
}

var _ domrepo.SnapshotSource = (*CHSnapshotSource)(nil)
