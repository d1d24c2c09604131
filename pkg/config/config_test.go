package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadShippedConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 5*time.Minute, c.Scan.Interval)
	assert.Contains(t, c.Scan.Symbols, "ETHUSDT")
	assert.Equal(t, "cryptosignal.decisions", c.Kafka.DecisionsTopic)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.True(t, c.UsesKafka())
	assert.True(t, c.UsesClickHouse())
	assert.False(t, c.Redis.Enabled)
}

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte(`
scan:
  symbols: [BTCUSDT]
sink:
  type: clickhouse
kafka:
  consumer:
    enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8, c.Scan.Workers)
	assert.Equal(t, 240, c.Scan.Lookback.Bars1h)
	assert.Equal(t, "config/scoring.yaml", c.Scoring.ConfigPath)
	assert.Equal(t, 15*time.Minute, c.Redis.DecisionTTL)
	assert.Equal(t, uint32(5), c.Breaker.MaxFailures)
	assert.True(t, c.Metrics.Enabled)
	assert.False(t, c.Kafka.Consumer.Enabled, "explicit false survives defaults")
	assert.False(t, c.UsesKafka())
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no symbols":         "sink: {type: clickhouse}\nkafka: {consumer: {enabled: false}}\n",
		"bad sink":           "scan: {symbols: [BTCUSDT]}\nsink: {type: redis}\n",
		"kafka sink no peer": "scan: {symbols: [BTCUSDT]}\nsink: {type: kafka}\n",
		"bad log level":      "scan: {symbols: [BTCUSDT]}\nkafka: {brokers: [k:9092]}\nlogging: {level: trace}\n",
		"zero workers":       "scan: {symbols: [BTCUSDT], workers: 0}\nkafka: {brokers: [k:9092]}\n",
		"malformed":          "scan: [\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte("scan: {symbols: [BTCUSDT]}\nkafka: {brokers: [k:9092]}\n"))
	require.NoError(t, err)

	env := map[string]string{
		"KAFKA_BROKERS":   "a:9092, b:9092,",
		"SYMBOLS":         "ETHUSDT,SOLUSDT",
		"CLICKHOUSE_HOST": "ch.internal",
		"REDIS_ADDR":      "redis:6379",
		"LOG_LEVEL":       "DEBUG",
	}
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, c.Scan.Symbols)
	assert.Equal(t, "ch.internal", c.ClickHouse.Host)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.NoError(t, c.Validate())
}
