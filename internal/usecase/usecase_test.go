package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/scoring/calibration"
	"CryptoSignal/pkg/kafka"

	segkafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	mu        sync.Mutex
	decisions map[string]int
	gates     map[string]int
	errors    map[string]int
	sent      map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{decisions: map[string]int{}, gates: map[string]int{}, errors: map[string]int{}, sent: map[string]int{}}
}

func (m *fakeMetrics) RecordDecision(side string, publish bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[fmt.Sprintf("%s/%t", side, publish)]++
}
func (m *fakeMetrics) RecordGateFailure(g string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gates[g]++
}
func (m *fakeMetrics) RecordConfidenceLevel(string, string) {}
func (m *fakeMetrics) RecordMessageSent(sink, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[sink]++
}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}
func (m *fakeMetrics) RecordLatency(string, float64) {}

type fakeSource struct{ snaps map[string]*models.AssetSnapshot }

func (s *fakeSource) LatestSnapshot(_ context.Context, symbol string) (*models.AssetSnapshot, error) {
	snap, ok := s.snaps[symbol]
	if !ok {
		return nil, errors.New("no rows")
	}
	return snap, nil
}

// fakeEngine publishes BTCUSDT, rejects everything else on the liquidity
// gate and panics on BADUSDT.
type fakeEngine struct{}

func (fakeEngine) EvaluateSnapshot(snap *models.AssetSnapshot) models.Decision {
	if snap.Symbol == "BADUSDT" {
		panic("index out of range")
	}
	d := models.Decision{Symbol: snap.Symbol, Side: models.SideLong, RejectReasons: []string{}}
	if snap.Symbol == "BTCUSDT" {
		d.Publish = true
		d.Gates = []models.GateResult{{GateID: 1, Name: "liquidity", Passed: true}}
		return d
	}
	d.Gates = []models.GateResult{{GateID: 1, Name: "liquidity", Passed: false}}
	d.RejectReasons = []string{"liquidity"}
	return d
}

type recordingDispatcher struct {
	envs []*models.DecisionEnvelope
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, envs []*models.DecisionEnvelope) error {
	d.envs = append(d.envs, envs...)
	return d.err
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]*models.DecisionEnvelope
}

func (c *mapCache) Put(_ context.Context, env *models.DecisionEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[env.Decision.Symbol] = env
	return nil
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestScanOnce(t *testing.T) {
	src := &fakeSource{snaps: map[string]*models.AssetSnapshot{
		"BTCUSDT": {Symbol: "BTCUSDT"},
		"ETHUSDT": {Symbol: "ETHUSDT"},
		"BADUSDT": {Symbol: "BADUSDT"},
	}}
	m := newFakeMetrics()
	disp := &recordingDispatcher{err: errors.New("kafka: leader not available")}
	cache := &mapCache{m: map[string]*models.DecisionEnvelope{}}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s := NewScanner(src, fakeEngine{}, m, []string{"BTCUSDT", "ETHUSDT", "BADUSDT", "MISSING"},
		WithWorkers(3),
		WithDispatcher(disp),
		WithCache(cache),
		WithScanTimeout(time.Minute),
		WithIDs(func() time.Time { return fixed }, sequentialIDs()),
	)

	res, err := s.ScanOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "id-1", res.ScanID)
	assert.Equal(t, fixed, res.StartedAt)
	require.Len(t, res.Envelopes, 3)
	assert.Equal(t, "BTCUSDT", res.Envelopes[0].Decision.Symbol)
	assert.Equal(t, "ETHUSDT", res.Envelopes[1].Decision.Symbol)
	assert.Equal(t, "BADUSDT", res.Envelopes[2].Decision.Symbol)
	for _, env := range res.Envelopes {
		assert.Equal(t, "id-1", env.ScanID)
		assert.NotEqual(t, "id-1", env.ID)
	}

	bad := res.Envelopes[2].Decision
	assert.False(t, bad.Publish)
	assert.Equal(t, models.SideNone, bad.Side)
	assert.Equal(t, []string{ReasonInternalError}, bad.RejectReasons)

	assert.Equal(t, 1, res.Published)
	assert.Equal(t, 2, res.Rejected)
	assert.Contains(t, res.Failed, "MISSING")

	assert.Len(t, disp.envs, 3)
	assert.Len(t, cache.m, 3)

	assert.Equal(t, 1, m.decisions["LONG/true"])
	assert.Equal(t, 1, m.decisions["LONG/false"])
	assert.Equal(t, 1, m.decisions["NONE/false"])
	assert.Equal(t, 1, m.gates["liquidity"])
	assert.Equal(t, 1, m.errors["snapshot"])
	assert.Equal(t, 1, m.errors["evaluate_panic"])
}

func TestEvaluateKeepsInputOrder(t *testing.T) {
	s := NewScanner(nil, fakeEngine{}, newFakeMetrics(), nil, WithWorkers(4))

	snaps := make([]*models.AssetSnapshot, 20)
	for i := range snaps {
		snaps[i] = &models.AssetSnapshot{Symbol: fmt.Sprintf("A%02dUSDT", i)}
	}
	got := s.Evaluate(context.Background(), snaps)
	require.Len(t, got, 20)
	for i, d := range got {
		assert.Equal(t, snaps[i].Symbol, d.Symbol)
	}
}

func TestScanOnceCancelled(t *testing.T) {
	src := &fakeSource{snaps: map[string]*models.AssetSnapshot{"BTCUSDT": {Symbol: "BTCUSDT"}}}
	s := NewScanner(src, fakeEngine{}, newFakeMetrics(), []string{"BTCUSDT", "ETHUSDT"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.ScanOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)

	assert.Contains(t, res.Failed, "ETHUSDT")
	assert.Equal(t, 2, len(res.Envelopes)+len(res.Failed), "every symbol is accounted for")
	if len(res.Envelopes) == 0 {
		assert.Equal(t, context.Canceled.Error(), res.Failed["BTCUSDT"])
	}
}

// slowSource blocks on SLOWUSDT until the scan deadline and honours a
// cancelled context for every symbol.
type slowSource struct{ fakeSource }

func (s *slowSource) LatestSnapshot(ctx context.Context, symbol string) (*models.AssetSnapshot, error) {
	if symbol == "SLOWUSDT" {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fakeSource.LatestSnapshot(ctx, symbol)
}

type ctxDispatcher struct {
	envs []*models.DecisionEnvelope
	err  error
}

func (d *ctxDispatcher) Dispatch(ctx context.Context, envs []*models.DecisionEnvelope) error {
	d.envs = append(d.envs, envs...)
	d.err = ctx.Err()
	return nil
}

type ctxCache struct{ errs []error }

func (c *ctxCache) Put(ctx context.Context, _ *models.DecisionEnvelope) error {
	c.errs = append(c.errs, ctx.Err())
	return nil
}

func TestScanOncePublishesAfterTimeout(t *testing.T) {
	src := &slowSource{fakeSource{snaps: map[string]*models.AssetSnapshot{
		"BTCUSDT": {Symbol: "BTCUSDT"},
		"ETHUSDT": {Symbol: "ETHUSDT"},
	}}}
	disp := &ctxDispatcher{}
	cache := &ctxCache{}
	s := NewScanner(src, fakeEngine{}, newFakeMetrics(), []string{"BTCUSDT", "SLOWUSDT", "ETHUSDT"},
		WithWorkers(1),
		WithDispatcher(disp),
		WithCache(cache),
		WithScanTimeout(50*time.Millisecond),
	)

	res, err := s.ScanOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)

	require.Len(t, res.Envelopes, 1)
	assert.Equal(t, "BTCUSDT", res.Envelopes[0].Decision.Symbol)
	assert.Equal(t, context.DeadlineExceeded.Error(), res.Failed["SLOWUSDT"])
	assert.Equal(t, context.DeadlineExceeded.Error(), res.Failed["ETHUSDT"])

	require.Len(t, disp.envs, 1)
	assert.NoError(t, disp.err, "dispatch runs on a live context")
	require.Len(t, cache.errs, 1)
	assert.NoError(t, cache.errs[0])
}

type fakeSink struct {
	name string
	err  error
	got  []*models.DecisionEnvelope
}

func (s *fakeSink) Name() string { return s.name }
func (s *fakeSink) Send(_ context.Context, envs []*models.DecisionEnvelope) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, envs...)
	return nil
}

type fakePublisher struct {
	got    []*models.DecisionEnvelope
	closed bool
}

func (p *fakePublisher) Publish(ctx context.Context, env *models.DecisionEnvelope) error {
	return p.PublishBatch(ctx, []*models.DecisionEnvelope{env})
}
func (p *fakePublisher) PublishBatch(_ context.Context, envs []*models.DecisionEnvelope) error {
	p.got = append(p.got, envs...)
	return nil
}
func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func scanEnvelopes() []*models.DecisionEnvelope {
	return []*models.DecisionEnvelope{
		{ID: "1", Decision: models.Decision{Symbol: "BTCUSDT", Publish: true}},
		{ID: "2", Decision: models.Decision{Symbol: "ETHUSDT"}},
	}
}

func TestDispatcherIsolatesSinkFailures(t *testing.T) {
	m := newFakeMetrics()
	good := &fakeSink{name: SinkKafka}
	bad := &fakeSink{name: SinkClickHouse, err: errors.New("too many parts")}
	d := NewDecisionDispatcher(m, bad, good)

	err := d.Dispatch(context.Background(), scanEnvelopes())
	assert.ErrorContains(t, err, "clickhouse: too many parts")
	assert.Len(t, good.got, 2)
	assert.Equal(t, 2, m.sent[SinkKafka])
	assert.Equal(t, 1, m.errors["dispatch_clickhouse"])
	assert.Equal(t, []string{SinkClickHouse, SinkKafka}, d.Sinks())

	assert.NoError(t, d.Dispatch(context.Background(), nil))
}

func TestPublisherSinkPublishableOnly(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDecisionDispatcher(newFakeMetrics(), PublisherSink(pub, true))

	require.NoError(t, d.Dispatch(context.Background(), scanEnvelopes()))
	require.Len(t, pub.got, 1)
	assert.Equal(t, "BTCUSDT", pub.got[0].Decision.Symbol)

	require.NoError(t, d.Close())
	assert.True(t, pub.closed)
}

type fakeOutcomes struct {
	stored []models.OutcomeSample
	recent []models.OutcomeSample
	err    error
}

func (f *fakeOutcomes) StoreOutcome(_ context.Context, o *models.OutcomeSample) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, *o)
	return nil
}

func (f *fakeOutcomes) RecentOutcomes(_ context.Context, _ time.Time, limit int) ([]models.OutcomeSample, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func outcomes(n int) []models.OutcomeSample {
	out := make([]models.OutcomeSample, n)
	for i := range out {
		score := float64(i*4 - 2*n)
		out[i] = models.OutcomeSample{Symbol: "BTCUSDT", Side: models.SideLong, Score: score, Win: score > 0, ClosedAt: time.Now()}
	}
	return out
}

func TestCalibrationRefresher(t *testing.T) {
	initial, err := calibration.NewTable(calibration.DomainScore, []models.CalibrationBin{
		{ID: 0, Lo: -100, Hi: 100, Center: 0, WinRate: 0.5, Count: 1},
	})
	require.NoError(t, err)
	cal := calibration.NewCalibrator(initial)

	store := &fakeOutcomes{recent: outcomes(10)}
	r := NewCalibrationRefresher(store, cal, 4, 5, 30*24*time.Hour, 1000)

	ok, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Same(t, initial, cal.Table())

	store.recent = outcomes(40)
	ok, err = r.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotSame(t, initial, cal.Table())
	assert.Equal(t, 40, cal.Info().Samples)

	store.err = errors.New("clickhouse down")
	_, err = r.Refresh(context.Background())
	assert.ErrorContains(t, err, "load outcomes")
}

func TestOutcomeHandler(t *testing.T) {
	store := &fakeOutcomes{}
	m := newFakeMetrics()
	h := NewOutcomeHandler("cryptosignal.outcomes", store, m)
	assert.Equal(t, "cryptosignal.outcomes", h.Topic())

	ok := []byte(`{"decision_id":"d1","symbol":"BTCUSDT","side":"LONG","score":41.5,"win":true,"closed_at":"2025-03-01T12:00:00Z"}`)
	require.NoError(t, h.Handle(context.Background(), ok))
	require.Len(t, store.stored, 1)
	assert.Equal(t, 41.5, store.stored[0].Score)

	err := h.Handle(context.Background(), []byte(`{not json`))
	assert.True(t, kafka.IsPermanent(err))

	err = h.Handle(context.Background(), []byte(`{"symbol":"BTCUSDT","side":"FLAT","closed_at":"2025-03-01T12:00:00Z"}`))
	assert.True(t, kafka.IsPermanent(err))

	store.err = errors.New("timeout")
	err = h.Handle(context.Background(), ok)
	require.Error(t, err)
	assert.False(t, kafka.IsPermanent(err))

	hook := h.ErrorHook()
	hook.OnError(context.Background(), h.Topic(), segkafka.Message{}, nil, kafka.Permanent(errors.New("x")))
	hook.OnError(context.Background(), h.Topic(), segkafka.Message{}, nil, errors.New("y"))
	assert.Equal(t, 1, m.errors["outcome_invalid"])
	assert.Equal(t, 1, m.errors["outcome_store"])
}
