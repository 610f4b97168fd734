package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/utafrali/catalogcore/internal/cache"
	"github.com/utafrali/catalogcore/internal/config"
	"github.com/utafrali/catalogcore/internal/event"
	handler "github.com/utafrali/catalogcore/internal/handler/http"
	"github.com/utafrali/catalogcore/internal/media"
	"github.com/utafrali/catalogcore/internal/repository"
	"github.com/utafrali/catalogcore/internal/repository/memory"
	mongorepo "github.com/utafrali/catalogcore/internal/repository/mongo"
	"github.com/utafrali/catalogcore/internal/repository/postgres"
	"github.com/utafrali/catalogcore/internal/service"
	"github.com/utafrali/catalogcore/internal/storage"
	"github.com/utafrali/catalogcore/internal/storage/gcs"
	memstore "github.com/utafrali/catalogcore/internal/storage/memory"
	"github.com/utafrali/catalogcore/internal/storage/natsobj"
	"github.com/utafrali/catalogcore/migrations"
	"github.com/utafrali/catalogcore/pkg/breaker"
	"github.com/utafrali/catalogcore/pkg/database"
	"github.com/utafrali/catalogcore/pkg/health"
	"github.com/utafrali/catalogcore/pkg/httpclient"
	pkgkafka "github.com/utafrali/catalogcore/pkg/kafka"
	"github.com/utafrali/catalogcore/pkg/retry"
	"github.com/utafrali/catalogcore/pkg/tracing"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type closer struct {
	name  string
	close func() error
}

// App wires together all dependencies of the catalog service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	catalog *service.CatalogService
	reviews *service.ReviewService
	health  *health.Handler

	httpServer *http.Server

	// closers run in reverse order on shutdown.
	closers []closer
}

// NewApp connects every configured backend and builds the service graph.
// On failure everything opened so far is closed again.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, health: health.NewHandler()}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.onClose("tracer", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return shutdownTracer(ctx)
	})
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)

	repo, err := a.openRepository(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.CacheEnabled {
		if repo, err = a.withCache(ctx, repo); err != nil {
			return nil, err
		}
	}

	store, err := a.openObjectStore(ctx)
	if err != nil {
		return nil, err
	}
	store = storage.NewBreaker(store, breaker.DefaultConfig("object-store"), logger)

	producer := event.NewProducer(a.openPublisher(), logger)

	fetcher := httpclient.New(httpclient.Config{
		Timeout:         cfg.MediaFetchTimeout,
		MaxAttempts:     cfg.MediaMaxAttempts,
		RetryWaitMin:    cfg.MediaRetryWait,
		RetryWaitMax:    10 * cfg.MediaRetryWait,
		MaxConnsPerHost: cfg.MediaUploadConcurrency,
		MaxBodyBytes:    cfg.MediaFetchMaxBytes,
	}, logger)

	mediaManager := media.NewManager(store, fetcher, producer, media.Config{
		CallTimeout: cfg.MediaCallTimeout,
		MaxAttempts: cfg.MediaMaxAttempts,
		RetryWait:   cfg.MediaRetryWait,
		Concurrency: cfg.MediaUploadConcurrency,
	}, logger)

	updateRetry := service.DefaultReviewRetry()
	updateRetry.MaxAttempts = cfg.UpdateMaxAttempts
	reviewRetry := service.DefaultReviewRetry()
	reviewRetry.MaxAttempts = cfg.ReviewMaxAttempts

	a.catalog = service.NewCatalogService(repo, mediaManager, producer, updateRetry, logger)
	a.reviews = service.NewReviewService(repo, producer, reviewRetry, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.NewRouter(a.health, cfg.PprofAllowedCIDRs, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("catalog service initialized",
		slog.String("store", cfg.Store),
		slog.String("object_store", cfg.ObjectStore),
		slog.Bool("cache", cfg.CacheEnabled),
		slog.Any("health_checks", a.health.Names()),
	)
	return a, nil
}

func (a *App) openRepository(ctx context.Context) (repository.ProductRepository, error) {
	switch a.cfg.Store {
	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, &a.cfg.Postgres, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose("postgres", func() error { pool.Close(); return nil })
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", a.cfg.Postgres.Host),
			slog.Int("port", a.cfg.Postgres.Port),
			slog.String("database", a.cfg.Postgres.DBName),
		)

		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, handler.ServiceName); err != nil {
			a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
		a.health.Register("postgres", pool.Ping)
		return postgres.NewProductRepository(pool), nil

	case config.StoreMongo:
		client, err := database.NewMongoClient(ctx, &a.cfg.Mongo, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose("mongo", func() error { return client.Disconnect(context.Background()) })
		a.logger.Info("connected to MongoDB", slog.String("database", a.cfg.Mongo.Database))

		repo := mongorepo.NewProductRepository(client.Database(a.cfg.Mongo.Database), a.cfg.Mongo.Snapshot)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		a.health.Register("mongo", func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		})
		return repo, nil

	case config.StoreMemory:
		a.logger.Warn("using in-memory product store; data is lost on restart")
		return memory.NewProductRepository(), nil
	}
	return nil, fmt.Errorf("unknown store %q", a.cfg.Store)
}

func (a *App) withCache(ctx context.Context, next repository.ProductRepository) (repository.ProductRepository, error) {
	client, err := database.NewRedisClient(ctx, a.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.onClose("redis", client.Close)
	a.logger.Info("product cache enabled",
		slog.String("addr", a.cfg.Redis.Addr()),
		slog.Duration("ttl", a.cfg.CacheTTL),
	)
	// The cache degrades to the store on Redis errors, so Redis is not a
	// readiness dependency.
	return cache.NewProductRepository(next, client, a.cfg.CacheTTL, a.logger), nil
}

func (a *App) openObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	switch a.cfg.ObjectStore {
	case config.ObjectStoreGCS:
		s, err := gcs.New(ctx, gcs.Config{
			Bucket:          a.cfg.GCSBucket,
			CredentialsFile: a.cfg.GCSCredentialsFile,
			BaseURL:         a.cfg.MediaBaseURL,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open gcs store: %w", err)
		}
		a.onClose("gcs", s.Close)
		a.health.Register("object_store", s.Ping)
		return s, nil

	case config.ObjectStoreNATS:
		s, err := natsobj.Connect(ctx, natsobj.Config{
			URL:     a.cfg.NATSURL,
			Bucket:  a.cfg.NATSBucket,
			BaseURL: a.cfg.PublicBaseURL(),
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open nats object store: %w", err)
		}
		a.onClose("nats", s.Close)
		a.health.Register("object_store", s.Ping)
		return s, nil

	case config.ObjectStoreMemory:
		a.logger.Warn("using in-memory object store; uploaded media is lost on restart")
		return memstore.New(a.cfg.PublicBaseURL()), nil
	}
	return nil, fmt.Errorf("unknown object store %q", a.cfg.ObjectStore)
}

func (a *App) openPublisher() event.Publisher {
	if len(a.cfg.KafkaBrokers) == 0 {
		a.logger.Warn("KAFKA_BROKERS not set; catalog events are discarded")
		return event.Discard{}
	}
	p := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers), a.logger)
	a.onClose("kafka", p.Close)
	a.health.Register("kafka", p.Ping)
	a.logger.Info("kafka producer initialized", slog.Any("brokers", a.cfg.KafkaBrokers))
	return p
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Catalog returns the product mutation orchestrator.
func (a *App) Catalog() *service.CatalogService { return a.catalog }

// Reviews returns the review command service.
func (a *App) Reviews() *service.ReviewService { return a.reviews }

// Handler returns the ops HTTP handler.
func (a *App) Handler() http.Handler { return a.httpServer.Handler }

// Run starts the ops HTTP server and blocks until ctx is canceled or the
// server fails. It always shuts the application down before returning.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting ops HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops the HTTP server and closes every backend
// connection, flushing pending spans last.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}
	a.closeAll()

	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Error("close error", slog.String("component", c.name), slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
