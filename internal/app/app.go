package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	rediscache "github.com/gmaxsoft/elasticsearch-project/internal/cache/redis"
	"github.com/gmaxsoft/elasticsearch-project/internal/catalog"
	"github.com/gmaxsoft/elasticsearch-project/internal/config"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
	bleveengine "github.com/gmaxsoft/elasticsearch-project/internal/engine/bleve"
	esengine "github.com/gmaxsoft/elasticsearch-project/internal/engine/elasticsearch"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine/memory"
	"github.com/gmaxsoft/elasticsearch-project/internal/event"
	handler "github.com/gmaxsoft/elasticsearch-project/internal/handler/http"
	"github.com/gmaxsoft/elasticsearch-project/internal/service"
	"github.com/gmaxsoft/elasticsearch-project/pkg/database"
	"github.com/gmaxsoft/elasticsearch-project/pkg/health"
	pkgkafka "github.com/gmaxsoft/elasticsearch-project/pkg/kafka"
	"github.com/gmaxsoft/elasticsearch-project/pkg/middleware"
	"github.com/gmaxsoft/elasticsearch-project/pkg/tracing"
)

const serviceName = "search"

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	engine         engine.Engine
	builder        *catalog.Builder
	watcher        *catalog.Watcher
	consumers      []*pkgkafka.Consumer
	httpServer     *http.Server
	closers        []io.Closer
	pool           *pgxpool.Pool
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// The catalog is not loaded here; Run starts the load in the background.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	eng, err := a.newEngine(healthHandler)
	if err != nil {
		return nil, err
	}
	a.engine = engine.Instrument(eng, cfg.SearchEngine)

	// Optional Redis suggestion cache.
	var cache *rediscache.SuggestionCache
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, client)
		cache = rediscache.NewSuggestionCache(client, cfg.SuggestCacheTTL)
		healthHandler.Register("redis", cache.Ping)
		logger.Info("suggestion cache enabled",
			slog.String("addr", cfg.Redis().Addr()),
			slog.Duration("ttl", cfg.SuggestCacheTTL),
		)
	}

	source, err := a.newSource(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	var builderOpts []catalog.Option
	var serviceOpts []service.Option
	if cache != nil {
		builderOpts = append(builderOpts, catalog.WithInvalidator(cache))
		serviceOpts = append(serviceOpts, service.WithSuggestionCache(cache))
	}
	a.builder = catalog.NewBuilder(a.engine, source, logger, builderOpts...)
	queryService := service.NewQueryService(a.engine, a.builder, logger, serviceOpts...)

	healthHandler.Register("catalog", func(context.Context) error {
		if !a.builder.Ready() {
			return errors.New("catalog not loaded")
		}
		return nil
	})

	if fs, isFile := source.(*catalog.FileSource); isFile && cfg.CatalogWatch {
		a.watcher = catalog.NewWatcher(fs.Path(), func(ctx context.Context) error {
			_, err := a.builder.Load(ctx)
			return err
		}, logger)
	}

	if cfg.KafkaEnabled {
		eventConsumer := event.NewConsumer(a.builder, logger)
		for _, topic := range eventConsumer.Topics() {
			c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:  cfg.KafkaBrokers,
				GroupID:  cfg.KafkaGroupID,
				Topic:    topic,
				MinBytes: 1,
				MaxBytes: 10e6, // 10 MB
			}, eventConsumer.Handle, logger)
			a.consumers = append(a.consumers, c)
		}
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
		logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Int("topic_count", len(a.consumers)),
		)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.Environment = cfg.Environment

	router := handler.NewRouter(queryService, a.builder, healthHandler, handler.RouterConfig{
		ServiceName:    serviceName,
		CORS:           cors,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit: middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ok = true
	return a, nil
}

func (a *App) newEngine(healthHandler *health.Handler) (engine.Engine, error) {
	cfg := a.cfg
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		esEng, err := esengine.New(esengine.Config{
			Addresses:          cfg.ElasticsearchURL,
			CloudID:            cfg.ElasticsearchCloudID,
			APIKey:             cfg.ElasticsearchAPIKey,
			Username:           cfg.ElasticsearchUsername,
			Password:           cfg.ElasticsearchPassword,
			Index:              cfg.ElasticsearchIndex,
			InsecureSkipVerify: cfg.ElasticsearchInsecureSkipVerify,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		healthHandler.Register("elasticsearch", esEng.Ping)
		a.logger.Info("elasticsearch search engine initialized",
			slog.Any("addresses", cfg.ElasticsearchURL),
			slog.String("index", esEng.IndexName()),
		)
		return esEng, nil
	case config.EngineBleve:
		bEng, err := bleveengine.New(cfg.BlevePath, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init bleve engine: %w", err)
		}
		a.closers = append(a.closers, bEng)
		healthHandler.Register("bleve", bEng.Ping)
		a.logger.Info("bleve search engine initialized", slog.String("path", cfg.BlevePath))
		return bEng, nil
	default:
		a.logger.Info("in-memory search engine initialized")
		return memory.New(), nil
	}
}

func (a *App) newSource(ctx context.Context, healthHandler *health.Handler) (catalog.Source, error) {
	cfg := a.cfg
	if cfg.CatalogSource != config.SourcePostgres {
		return catalog.NewFileSource(cfg.CatalogFile), nil
	}

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	database.SetSlowQueryLogging(200*time.Millisecond, a.logger)
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		a.logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}
	if cfg.PostgresMigrate {
		if err := catalog.Migrate(ctx, pool, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	healthHandler.Register("postgres", pool.Ping)
	return catalog.NewPostgresSource(pool), nil
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server, Kafka consumers, the catalog watcher and the
// startup catalog load, blocking until the context is canceled. The service
// answers with INDEX_UNAVAILABLE until the first load succeeds.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	bgCtx, stopBackground := context.WithCancel(ctx)
	var bg sync.WaitGroup
	defer func() {
		stopBackground()
		bg.Wait()
	}()

	bg.Add(1)
	go func() {
		defer bg.Done()
		if err := a.builder.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("startup catalog load failed, serving in degraded mode",
				slog.String("error", err.Error()),
			)
		}
	}()

	if a.watcher != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := a.watcher.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("catalog watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	for _, c := range a.consumers {
		c := c
		go func() {
			if err := c.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

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

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeResources()...)

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() []error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			a.logger.Error("resource close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errs
}
