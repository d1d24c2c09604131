package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/middleware"
	"CryptoSignal/internal/service/ratelimit"
	"CryptoSignal/internal/usecase"
	"CryptoSignal/pkg/config"
	"CryptoSignal/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signalSource struct {
	once   sync.Once
	called chan struct{}
}

func (s *signalSource) LatestSnapshot(context.Context, string) (*models.AssetSnapshot, error) {
	s.once.Do(func() { close(s.called) })
	return nil, errors.New("no data yet")
}

type nopEngine struct{}

func (nopEngine) EvaluateSnapshot(snap *models.AssetSnapshot) models.Decision {
	return models.Decision{Symbol: snap.Symbol}
}

type closingSink struct {
	mu     sync.Mutex
	closed bool
}

func (s *closingSink) Name() string { return usecase.SinkClickHouse }

func (s *closingSink) Send(context.Context, []*models.DecisionEnvelope) error { return nil }

func (s *closingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
scan:
  symbols: [BTCUSDT]
  interval: 1h
sink:
  type: clickhouse
kafka:
  consumer:
    enabled: false
server:
  shutdown_timeout: 2s
`))
	require.NoError(t, err)
	return cfg
}

func TestRunContextScansAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	rec := metrics.NewWithRegisterer(prometheus.NewRegistry())
	src := &signalSource{called: make(chan struct{})}
	sink := &closingSink{}
	pipe := middleware.NewPublishPipeline(sink, rec)
	disp := usecase.NewDecisionDispatcher(rec, pipe)

	app := New(cfg, Components{
		Scanner:    usecase.NewScanner(src, nopEngine{}, rec, cfg.Scan.Symbols, usecase.WithDispatcher(disp)),
		Dispatcher: disp,
		Pipelines:  []*middleware.PublishPipeline{pipe},
		Limiter:    ratelimit.New(1, 1, time.Minute),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	select {
	case <-src.called:
	case <-time.After(5 * time.Second):
		t.Fatal("scan loop never ran")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunContext did not return after cancel")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.True(t, sink.closed, "dispatcher close should reach the sink")
}

func TestRunClosersInOrder(t *testing.T) {
	cfg := testConfig(t)
	rec := metrics.NewWithRegisterer(prometheus.NewRegistry())
	src := &signalSource{called: make(chan struct{})}

	var order []string
	app := New(cfg, Components{
		Scanner: usecase.NewScanner(src, nopEngine{}, rec, cfg.Scan.Symbols),
		Closers: []func() error{
			func() error { order = append(order, "redis"); return nil },
			func() error { order = append(order, "producer"); return errors.New("already closed") },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.RunContext(ctx))
	assert.Equal(t, []string{"redis", "producer"}, order)
}
