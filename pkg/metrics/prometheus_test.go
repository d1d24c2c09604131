package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordDecision("LONG", true)
	r.RecordDecision("LONG", true)
	r.RecordDecision("NONE", false)
	r.RecordGateFailure("expected_value")
	r.RecordConfidenceLevel("trend", "WARNING")
	r.RecordMessageSent("kafka", "BTCUSDT")
	r.RecordError("publish")
	r.RecordLatency("scan", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("LONG", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("NONE", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.gateFailures.WithLabelValues("expected_value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.confidence.WithLabelValues("trend", "WARNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messagesSent.WithLabelValues("kafka", "BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("publish")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegisterer(prometheus.NewRegistry())
		NewWithRegisterer(prometheus.NewRegistry())
	})
}
