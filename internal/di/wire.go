//go:build wireinject
// +build wireinject

package di

import (
	"CryptoSignal/internal/domain/repository"
	"CryptoSignal/pkg/config"
	"CryptoSignal/pkg/metrics"
	"CryptoSignal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
		ProvideClickHouseClient,
		ProvideSinkBreakers,
		ProvideBytesCache,

		// Scoring core
		ProvideScoringDocument,
		ProvideCalibrator,
		ProvideEvaluator,
		ProvideEngine,

		// Repositories
		ProvideSnapshotSource,
		ProvideOutcomeStore,
		ProvideDecisionCache,

		// Use cases
		ProvideSinks,
		ProvideScanner,
		ProvideRefresher,
		ProvideConsumer,
		ProvideOutcomeHandler,

		// HTTP
		ProvideLimiter,
		ProvideScoringHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
