package di

import (
	"context"
	"fmt"
	"time"

	"CryptoSignal/internal/domain/repository"
	"CryptoSignal/internal/engine"
	"CryptoSignal/internal/handler/api"
	mid "CryptoSignal/internal/middleware"
	internalrepo "CryptoSignal/internal/repository"
	"CryptoSignal/internal/scoreconfig"
	"CryptoSignal/internal/scoring/calibration"
	"CryptoSignal/internal/scoring/confidence"
	"CryptoSignal/internal/service/cache"
	scanmetrics "CryptoSignal/internal/service/metrics"
	"CryptoSignal/internal/service/ratelimit"
	"CryptoSignal/internal/usecase"
	"CryptoSignal/pkg/breaker"
	pkgch "CryptoSignal/pkg/clickhouse"
	"CryptoSignal/pkg/config"
	xhttp "CryptoSignal/pkg/http"
	pkgkafka "CryptoSignal/pkg/kafka"
	"CryptoSignal/pkg/logger"
	"CryptoSignal/pkg/metrics"
	"CryptoSignal/pkg/server"
)

// SinkBreakers holds one circuit breaker per external sink.
type SinkBreakers struct {
	Kafka      *breaker.Breaker
	ClickHouse *breaker.Breaker
}

// Sinks is the dispatcher together with the pipelines it fans out to.
type Sinks struct {
	Dispatcher *usecase.DecisionDispatcher
	Pipelines  []*mid.PublishPipeline
}

// ProvideKafkaProducer creates a Kafka producer, or nil when nothing in the
// configuration writes to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.UsesKafka() && cfg.Logging.CollectorTopic == "" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the process logger. With a collector topic set,
// error lines are aggregated and shipped through the producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.CollectorTopic != "" && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logging.FlushInterval,
			CountThreshold: cfg.Logging.FlushThreshold,
			Topic:          cfg.Logging.CollectorTopic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates the Prometheus recorder and registers the scan
// gauges alongside it.
func ProvideMetrics() *metrics.Recorder {
	scanmetrics.Register()
	return metrics.New()
}

// ProvideScoringDocument loads the factor and gate configuration.
func ProvideScoringDocument(cfg *config.Config) (*scoreconfig.Document, error) {
	doc, err := scoreconfig.Load(cfg.Scoring.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	return doc, nil
}

// ProvideCalibrator seeds the calibrator with the configured table. An
// empty table is valid and falls back to raw scores.
func ProvideCalibrator(doc *scoreconfig.Document) (*calibration.Calibrator, error) {
	tbl, err := doc.Calibration.Table()
	if err != nil {
		return nil, fmt.Errorf("calibration table: %w", err)
	}
	return calibration.NewCalibrator(tbl), nil
}

func ProvideEvaluator(doc *scoreconfig.Document, rec *metrics.Recorder) *confidence.Evaluator {
	return confidence.NewEvaluator(doc.Confidence, confidence.WithRecorder(rec))
}

func ProvideEngine(doc *scoreconfig.Document, ev *confidence.Evaluator, cal *calibration.Calibrator) *engine.Engine {
	return engine.New(doc, ev, cal)
}

// ProvideClickHouseClient connects and creates the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithBootstrap(true),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideSinkBreakers logs every state change of the sink breakers.
func ProvideSinkBreakers(cfg *config.Config, l *logger.Logger) SinkBreakers {
	settings := breaker.Settings{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
		Interval:    cfg.Breaker.Interval,
		OnChange: func(name, from, to string) {
			l.Warn("circuit breaker state change",
				logger.String("sink", name),
				logger.String("from", from),
				logger.String("to", to),
			)
		},
	}
	return SinkBreakers{
		Kafka:      breaker.New(usecase.SinkKafka, settings),
		ClickHouse: breaker.New(usecase.SinkClickHouse, settings),
	}
}

func ProvideSnapshotSource(cfg *config.Config, ch *pkgch.Client) repository.SnapshotSource {
	lb := internalrepo.Lookback{
		Bars1h:  cfg.Scan.Lookback.Bars1h,
		Bars4h:  cfg.Scan.Lookback.Bars4h,
		Bars15m: cfg.Scan.Lookback.Bars15m,
		Funding: cfg.Scan.Lookback.Funding,
		OI:      cfg.Scan.Lookback.OI,
	}
	return internalrepo.NewCHSnapshotSource(ch, lb,
		internalrepo.WithReference(cfg.Scan.Reference),
		internalrepo.WithSettlementWindow(cfg.Scan.SettlementWindow),
	)
}

func ProvideOutcomeStore(ch *pkgch.Client, br SinkBreakers) repository.OutcomeStore {
	return internalrepo.NewCHOutcomeStore(ch, br.ClickHouse)
}

// ProvideBytesCache returns Redis when enabled, else an in-process cache.
func ProvideBytesCache(cfg *config.Config) cache.BytesCache {
	if cfg.Redis.Enabled {
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return cache.NewTTLCache()
}

func ProvideDecisionCache(cfg *config.Config, store cache.BytesCache) *cache.DecisionCache {
	return cache.NewDecisionCache(store, cfg.Redis.DecisionTTL)
}

// ProvideSinks builds one publish pipeline per configured sink so a
// failing sink buffers only its own envelopes.
func ProvideSinks(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	br SinkBreakers,
	m repository.Metrics,
) (*Sinks, error) {
	opts := []mid.PipelineOption{
		mid.WithMaxRPS(cfg.Sink.MaxRPS),
		mid.WithBufferSize(cfg.Sink.BufferSize),
		mid.WithBatch(cfg.Sink.BatchSize, cfg.Sink.BatchTimeout),
	}

	var downstream []usecase.Sink
	if cfg.UsesKafka() {
		if producer == nil {
			return nil, fmt.Errorf("kafka sink configured without a producer")
		}
		pub := internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic, br.Kafka)
		downstream = append(downstream, usecase.PublisherSink(pub, !cfg.Sink.PublishAll))
	}
	if cfg.UsesClickHouse() {
		downstream = append(downstream, usecase.StoreSink(internalrepo.NewCHDecisionStore(ch, br.ClickHouse)))
	}

	out := &Sinks{}
	sinks := make([]usecase.Sink, 0, len(downstream))
	for _, d := range downstream {
		p := mid.NewPublishPipeline(d, m, opts...)
		out.Pipelines = append(out.Pipelines, p)
		sinks = append(sinks, p)
	}
	out.Dispatcher = usecase.NewDecisionDispatcher(m, sinks...)
	return out, nil
}

func ProvideScanner(
	cfg *config.Config,
	l *logger.Logger,
	source repository.SnapshotSource,
	eng *engine.Engine,
	m repository.Metrics,
	sinks *Sinks,
	dc *cache.DecisionCache,
) *usecase.Scanner {
	return usecase.NewScanner(source, eng, m, cfg.Scan.Symbols,
		usecase.WithDispatcher(sinks.Dispatcher),
		usecase.WithCache(dc),
		usecase.WithWorkers(cfg.Scan.Workers),
		usecase.WithScanTimeout(cfg.Scan.Timeout),
		usecase.WithScannerLogger(l.With("scanner")),
	)
}

// ProvideRefresher returns nil when calibration refits are disabled.
func ProvideRefresher(
	cfg *config.Config,
	l *logger.Logger,
	doc *scoreconfig.Document,
	outcomes repository.OutcomeStore,
	cal *calibration.Calibrator,
) *usecase.CalibrationRefresher {
	if !cfg.Calibration.Enabled {
		return nil
	}
	r := usecase.NewCalibrationRefresher(outcomes, cal,
		doc.Calibration.RefitBins, doc.Calibration.RefitMinPerBin,
		cfg.Calibration.Lookback, cfg.Calibration.MaxSamples,
	)
	r.SetLogger(l.With("calibration"))
	return r
}

// ProvideConsumer returns nil when the outcome consumer is disabled.
func ProvideConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	c, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerBufferSize(cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerFetch(cc.MinBytes, cc.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return c, nil
}

func ProvideOutcomeHandler(cfg *config.Config, store repository.OutcomeStore, m repository.Metrics) *usecase.OutcomeHandler {
	return usecase.NewOutcomeHandler(cfg.Kafka.OutcomesTopic, store, m)
}

// ProvideLimiter throttles the scoring endpoint per client address.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst, 10*time.Minute)
}

func ProvideScoringHandler(
	l *logger.Logger,
	eng *engine.Engine,
	dc *cache.DecisionCache,
	ev *confidence.Evaluator,
	cal *calibration.Calibrator,
	lim *ratelimit.Limiter,
	ch *pkgch.Client,
	store cache.BytesCache,
) *api.ScoringHandler {
	checks := map[string]api.HealthCheck{"clickhouse": ch.Health}
	if rc, ok := store.(*cache.RedisCache); ok {
		checks["redis"] = rc.Ping
	}
	return api.NewScoringHandler(l.With("api"), eng, dc, ev, cal, lim, checks)
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, h *api.ScoringHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l.With("http")),
	)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	scanner *usecase.Scanner,
	sinks *Sinks,
	refresher *usecase.CalibrationRefresher,
	consumer *pkgkafka.Consumer,
	outcomes *usecase.OutcomeHandler,
	httpServer *xhttp.Server,
	lim *ratelimit.Limiter,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	store cache.BytesCache,
) *server.App {
	var closers []func() error
	// the dispatcher closes the producer only when it feeds a sink
	if producer != nil {
		closers = append(closers, producer.Close)
	}
	if rc, ok := store.(*cache.RedisCache); ok {
		closers = append(closers, rc.Close)
	}
	return server.New(cfg, server.Components{
		Logger:     l,
		Scanner:    scanner,
		Dispatcher: sinks.Dispatcher,
		Pipelines:  sinks.Pipelines,
		Refresher:  refresher,
		Consumer:   consumer,
		Outcomes:   outcomes,
		HTTP:       httpServer,
		Limiter:    lim,
		ClickHouse: ch,
		Closers:    closers,
	})
}
