package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/cache"
	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/event"
	handler "github.com/natours/natours/internal/handler/http"
	"github.com/natours/natours/internal/ratings"
	"github.com/natours/natours/internal/repository"
	"github.com/natours/natours/internal/repository/memory"
	mongorepo "github.com/natours/natours/internal/repository/mongo"
	"github.com/natours/natours/internal/resource"
	"github.com/natours/natours/internal/search"
	"github.com/natours/natours/internal/search/elasticsearch"
	searchmemory "github.com/natours/natours/internal/search/memory"
	"github.com/natours/natours/internal/service"
	"github.com/natours/natours/pkg/breaker"
	"github.com/natours/natours/pkg/database"
	"github.com/natours/natours/pkg/health"
	pkgkafka "github.com/natours/natours/pkg/kafka"
	"github.com/natours/natours/pkg/middleware"
	"github.com/natours/natours/pkg/tracing"
)

const (
	serviceName    = "natours-api"
	serviceVersion = "1.0.0"

	processedEventTTL = 24 * time.Hour
	consumerRetries   = 3
)

// stores groups the repository ports of the selected backend.
type stores struct {
	tours   repository.TourRepository
	reviews repository.ReviewRepository
	users   repository.UserRepository
}

// App wires together all dependencies and runs the natours API.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	mongo          *mongo.Client
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumers      []*pkgkafka.Consumer
	indexer        *search.Indexer
	local          *event.LocalPublisher
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
	cancelRouter   context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeClients()
		}
	}()

	shutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = shutdown

	healthHandler := health.NewHandler()

	st, err := a.openStore(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	// Redis is optional; it backs the tour cache and consumer idempotency.
	var (
		tourCache   service.TourCache
		invalidator ratings.Invalidator
		processed   pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(processedEventTTL)
	)
	if cfg.RedisEnabled() {
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis",
			slog.String("host", cfg.RedisHost),
			slog.Int("port", cfg.RedisPort),
			slog.Int("db", cfg.RedisDB),
		)
		bcfg := breaker.DefaultConfig("redis-tour-cache")
		bcfg.Timeout = cfg.CacheBreakerTimeout
		tc := cache.NewTourCache(rdb, cfg.TourCacheTTL).WithBreaker(breaker.New(bcfg, logger))
		tourCache, invalidator = tc, tc
		processed = cache.NewIdempotencyStore(rdb, processedEventTTL)
		healthHandler.RegisterOptional("redis", database.PingRedis(rdb))
	}

	// Events go to Kafka when brokers are configured, otherwise they are
	// dispatched in process.
	var publisher pkgkafka.Publisher
	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		a.local = event.NewLocalPublisher(logger)
		publisher = a.local
		logger.Info("kafka disabled, dispatching events in process")
	}
	eventProducer := event.NewProducer(publisher, logger)

	// Tour search uses Elasticsearch when configured, otherwise an in-process
	// index rebuilt at startup.
	var searchEngine search.Engine
	if cfg.ElasticsearchEnabled() {
		es, err := elasticsearch.New(ctx, cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to elasticsearch: %w", err)
		}
		searchEngine = es
		healthHandler.RegisterOptional("elasticsearch", es.Ping)
		logger.Info("connected to Elasticsearch", slog.String("index", cfg.ElasticsearchIndex))
	} else {
		searchEngine = searchmemory.New()
		logger.Info("elasticsearch disabled, indexing tours in process")
	}
	a.indexer = search.NewIndexer(searchEngine, st.tours, logger)

	// Build the dependency graph.
	engine := ratings.NewEngine(st.reviews, st.tours, invalidator, eventProducer, ratings.Config{
		Attempts: cfg.RecomputeAttempts,
		Timeout:  cfg.RecomputeTimeout,
		Backoff:  ratings.DefaultConfig().Backoff,
	}, logger)

	recompute := pkgkafka.IdempotentHandler(processed, event.RecomputeHandler(engine.Sync, logger), logger)
	refresh := event.RatingsUpdatedHandler(a.indexer.Refresh, logger)
	if cfg.KafkaEnabled() {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.consumers = []*pkgkafka.Consumer{
			pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:      cfg.KafkaBrokers,
				GroupID:      cfg.KafkaConsumerGroup,
				Topic:        event.TopicRatingsRecomputeRequested,
				MaxRetries:   consumerRetries,
				RetryBackoff: time.Second,
			}, recompute, a.dlq, logger),
			pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:      cfg.KafkaBrokers,
				GroupID:      cfg.KafkaConsumerGroup + "-search",
				Topic:        event.TopicTourRatingsUpdated,
				MaxRetries:   consumerRetries,
				RetryBackoff: time.Second,
			}, refresh, a.dlq, logger),
		}
	} else {
		a.local.Subscribe(event.TopicRatingsRecomputeRequested, recompute)
		a.local.Subscribe(event.TopicTourRatingsUpdated, refresh)
	}

	jwt := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiresIn)
	hasher := auth.NewPasswordHasher(auth.DefaultCost)

	// The ratings hook runs before the event hook so review events are
	// published after the tour aggregate is current.
	reviewHooks := []resource.Hook[domain.Review]{engine.Hook(), eventProducer.ReviewHook()}

	tourService := service.NewTourService(st.tours, st.reviews, st.users, tourCache, logger, a.indexer.TourHook())
	reviewService := service.NewReviewService(st.reviews, st.tours, st.users, reviewHooks, logger)
	userService := service.NewUserService(st.users, jwt, hasher, logger)

	routerCtx, cancelRouter := context.WithCancel(context.Background())
	a.cancelRouter = cancelRouter
	router := handler.NewRouter(routerCtx, handler.RouterConfig{
		Tours:   tourService,
		Reviews: reviewService,
		Users:   userService,
		Search:  service.NewSearchService(searchEngine),
		Health:  healthHandler,
		Logger:  logger,
		CORS:    middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins...),
		RateLimit: middleware.RateLimitConfig{
			Requests: cfg.RateLimitRPS,
			Window:   time.Second,
			Burst:    cfg.RateLimitBurst,
			IdleTTL:  10 * time.Minute,
		},
		ErrorDetail:  cfg.IsDevelopment(),
		TokenTTL:     cfg.JWTExpiresIn,
		SecureCookie: !cfg.IsDevelopment(),
		PprofCIDRs:   cfg.PprofAllowedCIDRs,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ok = true
	return a, nil
}

// openStore connects the configured storage backend and registers its
// readiness check.
func (a *App) openStore(ctx context.Context, h *health.Handler) (stores, error) {
	if a.cfg.StoreDriver == config.StoreMemory {
		a.logger.Warn("using in-memory store, data is lost on restart")
		m := memory.NewStore()
		return stores{tours: m.Tours, reviews: m.Reviews, users: m.Users}, nil
	}

	client, err := database.NewMongoClient(ctx, database.MongoConfig{
		URI:                a.cfg.MongoURI,
		Database:           a.cfg.MongoDatabase,
		AppName:            serviceName,
		ConnectTimeout:     a.cfg.MongoConnectTimeout,
		MaxPoolSize:        a.cfg.MongoMaxPoolSize,
		MinPoolSize:        database.DefaultMongoConfig().MinPoolSize,
		SlowQueryThreshold: time.Duration(a.cfg.SlowQueryThresholdMs) * time.Millisecond,
	}, a.logger)
	if err != nil {
		return stores{}, fmt.Errorf("connect to mongo: %w", err)
	}
	a.mongo = client
	a.logger.Info("connected to MongoDB", slog.String("database", a.cfg.MongoDatabase))

	st := mongorepo.NewStore(client.Database(a.cfg.MongoDatabase))
	if err := st.EnsureIndexes(ctx); err != nil {
		return stores{}, fmt.Errorf("ensure indexes: %w", err)
	}
	h.Register("mongo", database.PingMongo(client))
	return stores{tours: st.Tours, reviews: st.Reviews, users: st.Users}, nil
}

// Run starts the HTTP server, the event consumers and the search index
// rebuild, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	for _, c := range a.consumers {
		go func(c *pkgkafka.Consumer) {
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("kafka consumer error", slog.String("error", err.Error()))
			}
		}(c)
	}

	go func() {
		if _, err := a.indexer.Reindex(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("search index rebuild failed", slog.String("error", err.Error()))
		}
	}()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}
	if a.cancelRouter != nil {
		a.cancelRouter()
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}
	// In-flight local deliveries still need the store, so wait before
	// closing clients.
	if a.local != nil {
		_ = a.local.Close()
	}

	a.closeClients()

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeClients() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Error("mongo disconnect error", slog.String("error", err.Error()))
		}
	}
}
