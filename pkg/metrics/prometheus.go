package metrics

import (
	"CryptoSignal/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions    *prometheus.CounterVec
	gateFailures *prometheus.CounterVec
	confidence   *prometheus.CounterVec
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder on reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_decisions_total",
				Help: "Decisions produced, by side and publish flag",
			},
			[]string{"side", "publish"},
		),
		gateFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_gate_failures_total",
				Help: "Quality gate failures by gate name",
			},
			[]string{"gate"},
		),
		confidence: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_factor_confidence_total",
				Help: "Factor confidence grades by factor and level",
			},
			[]string{"factor", "level"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_messages_sent_total",
				Help: "Decisions handed to a sink",
			},
			[]string{"sink", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptosignal_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordDecision(side string, publish bool) {
	p := "false"
	if publish {
		p = "true"
	}
	r.decisions.WithLabelValues(side, p).Inc()
}

func (r *Recorder) RecordGateFailure(gate string) {
	r.gateFailures.WithLabelValues(gate).Inc()
}

// RecordConfidenceLevel counts one graded factor. It also satisfies the
// confidence evaluator's LevelRecorder.
func (r *Recorder) RecordConfidenceLevel(factor, level string) {
	r.confidence.WithLabelValues(factor, level).Inc()
}

// RecordMessageSent records a decision handed to a sink.
func (r *Recorder) RecordMessageSent(sink, symbol string) {
	r.messagesSent.WithLabelValues(sink, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

var _ repository.Metrics = (*Recorder)(nil)
