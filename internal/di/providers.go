package di

import (
	"context"
	"fmt"
	"time"

	"SignalGate/internal/domain/repository"
	"SignalGate/internal/handler/api"
	internalrepo "SignalGate/internal/repository"
	"SignalGate/internal/service/ratelimit"
	"SignalGate/internal/services/alerting"
	"SignalGate/internal/services/collaborators"
	"SignalGate/internal/services/fusion"
	"SignalGate/internal/services/scoring"
	"SignalGate/internal/usecase"
	"SignalGate/pkg/cache"
	pkgch "SignalGate/pkg/clickhouse"
	"SignalGate/pkg/config"
	xhttp "SignalGate/pkg/http"
	pkgkafka "SignalGate/pkg/kafka"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"
	"SignalGate/pkg/postgres"
	"SignalGate/pkg/retry"
	"SignalGate/pkg/server"
)

// ProvideLogger builds the root logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache creates the Redis or in-memory key/value backend.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Cache.Backend == "memory" {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(cfg.Cache.MemoryCleanup),
		), nil
	}
	c, err := newRedisCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return c, nil
}

func newRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	return cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
}

// ProvideCacheStore serves both the reading buffer and the evaluation cache.
func ProvideCacheStore(cfg *config.Config, c cache.Service) *internalrepo.CacheStore {
	return internalrepo.NewCacheStore(c, cfg.Cache.ReadingsTTL, cfg.Cache.EvaluationTTL)
}

// ProvidePostgresClient opens Postgres only when it backs the ledger.
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, error) {
	if cfg.Ledger.Backend != "postgres" {
		return nil, nil
	}
	client, err := postgres.NewClient(cfg.Postgres.DSN,
		postgres.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, nil
}

// ProvideLedger selects the dedup ledger backend. Redis reuses the cache
// connection when the cache is Redis too.
func ProvideLedger(cfg *config.Config, c cache.Service, pg *postgres.Client, l *applogger.Logger) (repository.AlertLedger, error) {
	switch cfg.Ledger.Backend {
	case "memory":
		l.Warn("in-memory dedup ledger: alerts are deduplicated per process only")
		return internalrepo.NewMemoryLedger(), nil
	case "postgres":
		ledger := internalrepo.NewPostgresLedger(pg, cfg.Ledger.Table, cfg.Ledger.LockTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pg.InitSchema(ctx, ledger.Schema()); err != nil {
			return nil, fmt.Errorf("ledger schema: %w", err)
		}
		return ledger, nil
	default:
		prefix := cache.Key(cfg.Redis.Prefix, cfg.Ledger.KeyPrefix)
		if rc, ok := c.(*cache.RedisCache); ok {
			return internalrepo.NewRedisLedger(rc.Client(), prefix), nil
		}
		rc, err := newRedisCache(cfg)
		if err != nil {
			return nil, fmt.Errorf("ledger redis: %w", err)
		}
		return internalrepo.NewRedisLedger(rc.Client(), prefix, internalrepo.WithOwnedClient(rc.Close)), nil
	}
}

// ProvideLedgerPolicy retries ledger contention with backoff and counts retries.
func ProvideLedgerPolicy(cfg *config.Config, ledger repository.AlertLedger, m repository.Metrics) *retry.Policy {
	backend := ledger.Backend()
	return retry.New(
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithIntervals(cfg.Retry.InitialInterval, cfg.Retry.MaxInterval),
		retry.WithMultiplier(cfg.Retry.Multiplier),
		retry.WithClassifier(alerting.IsContention),
		retry.WithNotify(func(int, error, time.Duration) { m.RecordLedgerRetry(backend) }),
	)
}

// ProvideClickHouseClient creates a ClickHouse client when snapshots are enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSnapshotStore prefers ClickHouse and falls back to a bounded in-memory history.
func ProvideSnapshotStore(ch *pkgch.Client, l *applogger.Logger) (repository.SnapshotStore, error) {
	if ch == nil {
		return internalrepo.NewMemorySnapshotStore(50), nil
	}
	store := internalrepo.NewCHSnapshotStore(ch, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher publishes to Kafka, or only counts when Kafka is off.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer, m repository.Metrics) repository.ResultPublisher {
	if producer == nil {
		return internalrepo.NewLogPublisher(m)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Evaluations, cfg.Kafka.Topics.Alerts, m)
}

// ProvideKafkaConsumer creates the readings consumer when Kafka is enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithHook(pkgkafka.TraceHook())
	return consumer, nil
}

// ProvideReadingsHandler buffers readings from the readings topic.
func ProvideReadingsHandler(cfg *config.Config, store *internalrepo.CacheStore, m repository.Metrics) *usecase.KafkaReadingsHandler {
	return usecase.NewKafkaReadingsHandler(cfg.Kafka.Topics.Readings, store, m)
}

// ProvideResolver asks the collaborator service for external sub-scores.
func ProvideResolver(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *collaborators.Resolver {
	return collaborators.NewHTTPResolver(collaborators.NewHTTPBase(cfg.Collaborators), l, m)
}

// ProvideAlertHub creates the websocket alert feed.
func ProvideAlertHub(l *applogger.Logger, m repository.Metrics) *api.AlertHub {
	return api.NewAlertHub(l, m)
}

// ProvideEvaluator assembles the per-ticker pipeline.
func ProvideEvaluator(
	cfg *config.Config,
	ledger repository.AlertLedger,
	policy *retry.Policy,
	resolver *collaborators.Resolver,
	snapshots repository.SnapshotStore,
	store *internalrepo.CacheStore,
	publisher repository.ResultPublisher,
	hub *api.AlertHub,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.Evaluator {
	return usecase.NewEvaluator(usecase.EvaluatorDeps{
		Fusion:      fusion.NewEngine(cfg.Fusion),
		Momentum:    scoring.NewMomentumScorer(cfg.Momentum),
		RiskReward:  scoring.NewRiskRewardCalculator(),
		Quality:     scoring.NewQualityScorer(cfg.Quality),
		Detector:    alerting.NewDetector(cfg.Alerts),
		Gate:        alerting.NewGate(cfg.Alerts, ledger, policy, l, m),
		SubScores:   resolver,
		Snapshots:   snapshots,
		Cache:       store,
		Publisher:   publisher,
		Feed:        hub,
		SinkTimeout: cfg.Cycle.SinkTimeout,
		Logger:      l,
		Metrics:     m,
	})
}

// ProvideCycleRunner creates the batch cycle runner over the reading buffer.
func ProvideCycleRunner(cfg *config.Config, ev *usecase.Evaluator, store *internalrepo.CacheStore, l *applogger.Logger, m repository.Metrics) *usecase.CycleRunner {
	return usecase.NewCycleRunner(ev, store, cfg.Cycle, l, m)
}

// ProvideQueries creates the read side.
func ProvideQueries(store *internalrepo.CacheStore, snapshots repository.SnapshotStore, ledger repository.AlertLedger) *usecase.Queries {
	return usecase.NewQueries(store, snapshots, ledger)
}

// ProvideHTTPServer registers the API, health and websocket routes.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.CycleRunner,
	queries *usecase.Queries,
	hub *api.AlertHub,
	c cache.Service,
	snapshots repository.SnapshotStore,
	pg *postgres.Client,
) *xhttp.Server {
	checks := []api.HealthCheck{
		{Name: "cache", Check: c.Ping},
		{Name: "snapshots", Check: snapshots.Health},
	}
	if pg != nil {
		checks = append(checks, api.HealthCheck{Name: "postgres", Check: pg.Health})
	}

	limiter := ratelimit.New(cfg.Server.TriggerRPS, cfg.Server.TriggerBurst)
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l,
		[]xhttp.Handler{
			api.NewEvaluationsHandler(runner, queries, limiter, l),
			api.NewHealthHandler(queries.LedgerBackend(), checks...),
			hub,
		},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.CycleRunner,
	httpServer *xhttp.Server,
	hub *api.AlertHub,
	consumer *pkgkafka.Consumer,
	readings *usecase.KafkaReadingsHandler,
	producer *pkgkafka.Producer,
	publisher repository.ResultPublisher,
	snapshots repository.SnapshotStore,
	ledger repository.AlertLedger,
	c cache.Service,
	ch *pkgch.Client,
	pg *postgres.Client,
) *server.App {
	if cfg.Log.CollectErrors && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectInterval,
			CountThreshold: cfg.Log.CollectMaxKeys,
			Topic:          cfg.Kafka.Topics.LogSummary,
			Publisher:      producer,
		})
	}

	app := server.New(cfg, l, runner, httpServer, hub)
	if consumer != nil {
		app.SetConsumer(consumer, readings)
	}
	// closed in order: outputs first so buffered messages flush, then stores
	app.AddCloser("publisher", publisher.Close)
	app.AddCloser("snapshots", snapshots.Close)
	if ch != nil {
		app.AddCloser("clickhouse", ch.Close)
	}
	app.AddCloser("ledger", ledger.Close)
	if pg != nil {
		app.AddCloser("postgres", pg.Close)
	}
	app.AddCloser("cache", c.Close)
	return app
}
