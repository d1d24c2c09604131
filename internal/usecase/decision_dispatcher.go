package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CryptoSignal/internal/domain/models"
	drepo "CryptoSignal/internal/domain/repository"
)

// Sink names used for metrics labels and sink selection.
const (
	SinkKafka      = "kafka"
	SinkClickHouse = "clickhouse"
)

// Sink receives batches of decision envelopes.
type Sink interface {
	Name() string
	Send(ctx context.Context, envs []*models.DecisionEnvelope) error
}

type publisherSink struct {
	pub             drepo.DecisionPublisher
	publishableOnly bool
}

// PublisherSink adapts a DecisionPublisher. With publishableOnly set,
// rejected decisions are not handed to it.
func PublisherSink(pub drepo.DecisionPublisher, publishableOnly bool) Sink {
	return &publisherSink{pub: pub, publishableOnly: publishableOnly}
}

func (s *publisherSink) Name() string { return SinkKafka }

func (s *publisherSink) Send(ctx context.Context, envs []*models.DecisionEnvelope) error {
	if s.publishableOnly {
		kept := envs[:0:0]
		for _, env := range envs {
			if env.Decision.Publish {
				kept = append(kept, env)
			}
		}
		envs = kept
	}
	if len(envs) == 0 {
		return nil
	}
	return s.pub.PublishBatch(ctx, envs)
}

type storeSink struct{ store drepo.DecisionStore }

// StoreSink adapts a DecisionStore. Every decision is stored.
func StoreSink(store drepo.DecisionStore) Sink { return &storeSink{store: store} }

func (s *storeSink) Name() string { return SinkClickHouse }

func (s *storeSink) Send(ctx context.Context, envs []*models.DecisionEnvelope) error {
	return s.store.StoreBatch(ctx, envs)
}

// DecisionDispatcher hands each scan's envelopes to every configured sink.
// A failing sink does not stop the others.
type DecisionDispatcher struct {
	sinks   []Sink
	metrics drepo.Metrics
}

func NewDecisionDispatcher(metrics drepo.Metrics, sinks ...Sink) *DecisionDispatcher {
	return &DecisionDispatcher{sinks: sinks, metrics: metrics}
}

// Sinks lists the configured sink names.
func (d *DecisionDispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

func (d *DecisionDispatcher) Dispatch(ctx context.Context, envs []*models.DecisionEnvelope) error {
	if len(envs) == 0 {
		return nil
	}
	var errs []error
	for _, s := range d.sinks {
		start := time.Now()
		if err := s.Send(ctx, envs); err != nil {
			d.metrics.RecordError("dispatch_" + s.Name())
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		for _, env := range envs {
			d.metrics.RecordMessageSent(s.Name(), env.Decision.Symbol)
		}
		d.metrics.RecordLatency("dispatch_"+s.Name(), time.Since(start).Seconds())
	}
	return errors.Join(errs...)
}

// Close closes publishers and stores behind the adapters.
func (d *DecisionDispatcher) Close() error {
	var errs []error
	for _, s := range d.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func (s *publisherSink) Close() error { return s.pub.Close() }
func (s *storeSink) Close() error     { return s.store.Close() }
