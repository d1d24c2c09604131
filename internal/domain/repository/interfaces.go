package repository

import (
	"context"
	"time"

	"CryptoSignal/internal/domain/models"
)

// SnapshotSource provides the market data for one asset and one scan cycle.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context, symbol string) (*models.AssetSnapshot, error)
}

// DecisionPublisher hands decisions to downstream renderers.
type DecisionPublisher interface {
	Publish(ctx context.Context, env *models.DecisionEnvelope) error
	PublishBatch(ctx context.Context, envs []*models.DecisionEnvelope) error
	Close() error
}

// DecisionStore persists decisions for audit and outcome tracking.
type DecisionStore interface {
	Store(ctx context.Context, env *models.DecisionEnvelope) error
	StoreBatch(ctx context.Context, envs []*models.DecisionEnvelope) error
	Health(ctx context.Context) error
	Close() error
}

// OutcomeStore keeps realized decision outcomes used to refit calibration.
type OutcomeStore interface {
	StoreOutcome(ctx context.Context, o *models.OutcomeSample) error
	RecentOutcomes(ctx context.Context, since time.Time, limit int) ([]models.OutcomeSample, error)
}

type Metrics interface {
	RecordDecision(side string, publish bool)
	RecordGateFailure(gate string)
	RecordConfidenceLevel(factor, level string)
	RecordMessageSent(sink, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
