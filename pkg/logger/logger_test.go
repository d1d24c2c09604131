package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) all() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]AggregatedLogEntry(nil), p.batches...)
}

func TestJSONFieldsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, &Config{Level: "debug", Format: "json"})
	require.NoError(t, err)

	l.With("scanner").Info("scan done",
		String("scan_id", "abc"),
		Int("assets", 3),
		Float("score", 42.5),
		Bool("publish", true),
		Strings("symbols", []string{"BTCUSDT", "ETHUSDT"}),
		Duration("took", 1500*time.Millisecond),
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scan done", line["message"])
	assert.Equal(t, "scanner", line["component"])
	assert.Equal(t, "abc", line["scan_id"])
	assert.Equal(t, 3.0, line["assets"])
	assert.Equal(t, 42.5, line["score"])
	assert.Equal(t, true, line["publish"])
	assert.Equal(t, "BTCUSDT, ETHUSDT", line["symbols"])
	assert.Equal(t, 1500.0, line["took"])
}

func TestInvalidLevel(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, &Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error("boom", Error(errors.New("x")))
	assert.False(t, l.DebugEnabled())
}

func TestCollectorDeduplicatesErrors(t *testing.T) {
	pub := &capturePublisher{}
	l, err := NewWithWriter(&bytes.Buffer{}, &Config{Level: "info", Format: "json"})
	require.NoError(t, err)
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		l.Error("sink down", String("sink", "kafka"))
	}
	l.Error("sink down", String("sink", "clickhouse"))
	l.Warn("not collected")
	assert.Equal(t, 2, l.collector.Pending())

	l.RemoveCollector()

	batches := pub.all()
	require.Len(t, batches, 1)
	assert.Equal(t, "logs", pub.topic)
	require.Len(t, batches[0], 2)
	assert.Equal(t, 5, batches[0][0].Count, "noisiest entry first")
	assert.Equal(t, "kafka", batches[0][0].Fields["sink"])
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	c.Close()

	batches := pub.all()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, 0, c.Pending())
}
