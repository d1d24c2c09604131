package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/breaker"
	pkgch "CryptoSignal/pkg/clickhouse"
	pkgkafka "CryptoSignal/pkg/kafka"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var barCols = []string{"open_time", "open", "high", "low", "close", "volume", "quote_volume", "taker_buy_volume"}

func newMockClient(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return pkgch.NewFromDB(db, "cryptosignal"), mock
}

func barRows(start time.Time, step time.Duration, closes ...float64) *sqlmock.Rows {
	rows := sqlmock.NewRows(barCols)
	// newest first, as the query orders them
	for i := len(closes) - 1; i >= 0; i-- {
		c := closes[i]
		rows.AddRow(start.Add(time.Duration(i)*step), c, c+1, c-1, c, 10.0, 10*c, 6.0)
	}
	return rows
}

func TestLatestSnapshot(t *testing.T) {
	ch, mock := newMockClient(t)
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	barsQ := regexp.QuoteMeta("FROM cryptosignal.snapshots_bars")
	closed1h := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	closed15m := time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC)

	mock.ExpectQuery(barsQ).WithArgs("ETHUSDT", "1h", closed1h, 3).WillReturnRows(barRows(t0, time.Hour, 100, 101, 102))
	mock.ExpectQuery(barsQ).WithArgs("ETHUSDT", "15m", closed15m, 2).WillReturnRows(barRows(t0, 15*time.Minute, 102))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cryptosignal.snapshots_market")).WithArgs("ETHUSDT", 3).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "funding_rate", "open_interest", "bid_notional", "ask_notional", "liq_long_usd", "liq_short_usd"}).
			AddRow(t0.Add(2*time.Hour), 0.0003, 1100.0, 500.0, 400.0, 0.0, 0.0).
			AddRow(t0.Add(time.Hour), 0.0002, 1050.0, 0.0, 0.0, 0.0, 0.0).
			AddRow(t0, 0.0001, 0.0, 0.0, 0.0, 0.0, 0.0))
	mock.ExpectQuery(barsQ).WithArgs("BTCUSDT", "1h", closed1h, 3).WillReturnRows(barRows(t0, time.Hour, 60000, 60100))

	src := NewCHSnapshotSource(ch, Lookback{Bars1h: 3, Bars15m: 2, Funding: 2, OI: 3},
		WithReference("btcusdt"),
		WithSettlementWindow(30*time.Minute),
		WithSnapshotClock(func() time.Time { return time.Date(2025, 3, 1, 7, 50, 0, 0, time.UTC) }),
	)

	snap, err := src.LatestSnapshot(context.Background(), " ethusdt ")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "ETHUSDT", snap.Symbol)
	require.Len(t, snap.Bars1h, 3)
	assert.Equal(t, 100.0, snap.Bars1h[0].Close)
	assert.Equal(t, 102.0, snap.Bars1h[2].Close)
	assert.True(t, snap.Bars1h[0].OpenTime.Before(snap.Bars1h[2].OpenTime))
	assert.Empty(t, snap.Bars4h)
	assert.Len(t, snap.Bars15m, 1)

	assert.Equal(t, 0.0003, snap.FundingRate)
	assert.Equal(t, []float64{0.0002, 0.0003}, snap.FundingHistory)
	require.Len(t, snap.OpenInterest, 2)
	assert.Equal(t, 1050.0, snap.OpenInterest[0].OpenInterest)
	require.NotNil(t, snap.Depth)
	assert.Equal(t, 500.0, snap.Depth.BidNotional)
	assert.Nil(t, snap.Liquidations)

	require.Len(t, snap.ReferenceBars, 2)
	assert.Equal(t, 60100.0, snap.ReferenceBars[1].Close)
	assert.True(t, snap.SettlementWindow)
}

func TestLatestSnapshotTooFewBars(t *testing.T) {
	ch, mock := newMockClient(t)
	mock.ExpectQuery("snapshots_bars").WithArgs("BTCUSDT", "1h", sqlmock.AnyArg(), 240).
		WillReturnRows(barRows(time.Now(), time.Hour, 1))

	src := NewCHSnapshotSource(ch, Lookback{Bars1h: 240}, WithReference("BTCUSDT"))
	_, err := src.LatestSnapshot(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSnapshotQueryError(t *testing.T) {
	ch, mock := newMockClient(t)
	mock.ExpectQuery("snapshots_bars").WillReturnError(errors.New("connection reset"))

	src := NewCHSnapshotSource(ch, Lookback{Bars1h: 10})
	_, err := src.LatestSnapshot(context.Background(), "SOLUSDT")
	assert.ErrorContains(t, err, "connection reset")
	assert.ErrorContains(t, err, "SOLUSDT")
}

func sampleEnvelope() *models.DecisionEnvelope {
	return &models.DecisionEnvelope{
		ID:        "0b6a7f0e-6d0c-4c1e-9a57-3f7d2b8c1d10",
		ScanID:    "scan-1",
		ScannedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Decision: models.Decision{
			Symbol:        "BTCUSDT",
			Side:          models.SideLong,
			Publish:       true,
			Timing:        &models.TimingResult{TrendStage: models.StageEarly},
			RiskPlan:      &models.RiskPlan{EntryLow: 99, EntryHigh: 101, StopLoss: 95, TakeProfit1: 108, TakeProfit2: 115, RewardRiskRatio: 1.6},
			RejectReasons: []string{},
		},
	}
}

func TestDecisionStoreBatch(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHDecisionStore(ch, nil)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO cryptosignal.decisions"))
	args := []driver.Value{"0b6a7f0e-6d0c-4c1e-9a57-3f7d2b8c1d10", "scan-1", sqlmock.AnyArg(), "BTCUSDT", "LONG", true, false}
	for i := 0; i < 3; i++ {
		args = append(args, sqlmock.AnyArg())
	}
	args = append(args, "EARLY", 99.0, 101.0, 95.0, 108.0, 115.0, 1.6, "", sqlmock.AnyArg())
	prep.ExpectExec().WithArgs(args...).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.StoreBatch(context.Background(), []*models.DecisionEnvelope{sampleEnvelope(), nil}))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, store.StoreBatch(context.Background(), nil))
}

func TestDecisionRowWithoutPlan(t *testing.T) {
	env := sampleEnvelope()
	env.Decision.Side = models.SideNone
	env.Decision.Timing = nil
	env.Decision.RiskPlan = nil
	env.Decision.RejectReasons = []string{"direction_vetoed", "funding_extreme"}

	row, err := decisionRow(env)
	require.NoError(t, err)
	require.Len(t, row, 19)
	assert.Equal(t, "", row[10])
	assert.Equal(t, 0.0, row[13])
	assert.Equal(t, "direction_vetoed,funding_extreme", row[17])
	assert.True(t, strings.HasPrefix(row[18].(string), `{"symbol":"BTCUSDT"`))
}

func TestDecisionStoreBreakerOpens(t *testing.T) {
	ch, mock := newMockClient(t)
	br := breaker.New("clickhouse", breaker.Settings{MaxFailures: 1, OpenTimeout: time.Minute})
	store := NewCHDecisionStore(ch, br)

	mock.ExpectBegin().WillReturnError(errors.New("dial tcp: refused"))
	err := store.Store(context.Background(), sampleEnvelope())
	assert.ErrorContains(t, err, "refused")

	err = store.Store(context.Background(), sampleEnvelope())
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutcomeStore(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHOutcomeStore(ch, nil)
	closed := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cryptosignal.outcomes")).
		WithArgs("d1", "BTCUSDT", "LONG", 42.0, true, closed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.StoreOutcome(context.Background(), &models.OutcomeSample{
		DecisionID: "d1", Symbol: "BTCUSDT", Side: models.SideLong, Score: 42, Win: true, ClosedAt: closed,
	}))

	since := closed.Add(-24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM cryptosignal.outcomes")).WithArgs(since, 10).
		WillReturnRows(sqlmock.NewRows([]string{"decision_id", "symbol", "side", "score", "win", "closed_at"}).
			AddRow("d1", "BTCUSDT", "LONG", 42.0, true, closed).
			AddRow("d0", "ETHUSDT", "SHORT", -30.0, false, closed.Add(-time.Hour)))

	got, err := store.RecentOutcomes(context.Background(), since, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.SideShort, got[1].Side)
	assert.False(t, got[1].Win)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, store.StoreOutcome(context.Background(), nil))
}

func TestSchemaStatements(t *testing.T) {
	stmts := SchemaStatements("cryptosignal")
	require.Len(t, stmts, 5)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS cryptosignal", stmts[0])
	for _, table := range []string{TableBars, TableMarket, TableDecisions, TableOutcomes} {
		found := false
		for _, s := range stmts[1:] {
			if strings.Contains(s, "cryptosignal."+table+" (") {
				found = true
			}
		}
		assert.True(t, found, table)
	}
}

type fakeProducer struct {
	topic  string
	msgs   []pkgkafka.Message
	err    error
	closed bool
}

func (p *fakeProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func TestKafkaDecisionPublisher(t *testing.T) {
	fp := &fakeProducer{}
	pub := NewKafkaDecisionPublisher(fp, "cryptosignal.decisions", nil)

	require.NoError(t, pub.Publish(context.Background(), sampleEnvelope()))
	require.Len(t, fp.msgs, 1)
	assert.Equal(t, "cryptosignal.decisions", fp.topic)
	assert.Equal(t, []byte("BTCUSDT"), fp.msgs[0].Key)
	assert.Equal(t, "scan-1", fp.msgs[0].Headers["scan_id"])
	assert.Equal(t, "true", fp.msgs[0].Headers["publish"])

	require.NoError(t, pub.PublishBatch(context.Background(), []*models.DecisionEnvelope{nil}))
	assert.Len(t, fp.msgs, 1)

	fp.err = errors.New("leader not available")
	assert.Error(t, pub.Publish(context.Background(), sampleEnvelope()))

	require.NoError(t, pub.Close())
	assert.True(t, fp.closed)
}
