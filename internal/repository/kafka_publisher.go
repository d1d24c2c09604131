package repository

import (
	"context"
	"strconv"

	"CryptoSignal/internal/domain/models"
	domrepo "CryptoSignal/internal/domain/repository"
	"CryptoSignal/pkg/breaker"
	pkgkafka "CryptoSignal/pkg/kafka"
)

// BatchProducer is the part of pkg/kafka.Producer the publisher needs.
type BatchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaDecisionPublisher publishes decision envelopes keyed by symbol so
// every decision for one asset lands on the same partition.
type KafkaDecisionPublisher struct {
	producer BatchProducer
	topic    string
	br       *breaker.Breaker
}

func NewKafkaDecisionPublisher(producer BatchProducer, topic string, br *breaker.Breaker) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic, br: br}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, env *models.DecisionEnvelope) error {
	return p.PublishBatch(ctx, []*models.DecisionEnvelope{env})
}

func (p *KafkaDecisionPublisher) PublishBatch(ctx context.Context, envs []*models.DecisionEnvelope) error {
	msgs := make([]pkgkafka.Message, 0, len(envs))
	for _, env := range envs {
		if env == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(env.Decision.Symbol),
			Value: env,
			Headers: map[string]string{
				"scan_id": env.ScanID,
				"side":    string(env.Decision.Side),
				"publish": strconv.FormatBool(env.Decision.Publish),
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	return guard(p.br, func() error { return p.producer.PublishBatch(ctx, p.topic, msgs) })
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.DecisionPublisher = (*KafkaDecisionPublisher)(nil)
