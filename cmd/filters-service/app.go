package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "logfilters/docs"
	"logfilters/internal/api"
	"logfilters/internal/config"
	"logfilters/internal/constants"
	"logfilters/internal/filters"
	"logfilters/internal/filterstore"
	"logfilters/internal/logger"
	"logfilters/internal/storage"
	"logfilters/pkg/bootstrap"
	"logfilters/pkg/health"
	"logfilters/pkg/logging"
	"logfilters/pkg/metrics"
	"logfilters/pkg/middleware"
	"logfilters/pkg/ratelimit"
	"logfilters/pkg/tracing"
	"logfilters/pkg/worker"
)

var registerMetrics sync.Once

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	instanceID  string

	db          *sql.DB
	mongoClient *mongo.Client
	redisClient *redis.Client

	repo          *storage.CircuitBreakerRepository
	store         *filterstore.Store
	redisNotifier *filterstore.RedisNotifier
	queues        map[filters.Partition]*worker.Queue
	presenters    map[filters.Partition]*filters.Presenter
	views         map[filters.Partition]*api.View

	router         *gin.Engine
	server         *http.Server
	tracerProvider *tracing.TracerProvider

	shutdownOnce sync.Once
	shutdownErr  error
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		instanceID:  uuid.NewString(),
		queues:      make(map[filters.Partition]*worker.Queue),
		presenters:  make(map[filters.Partition]*filters.Presenter),
		views:       make(map[filters.Partition]*api.View),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceName)

	registerMetrics.Do(func() {
		metrics.RegisterFilterMetrics()
		metrics.RegisterStorageMetrics()
		metrics.RegisterCircuitBreakerMetrics()
		metrics.RegisterBrokerMetrics()
		metrics.RegisterAPIMetrics()
	})

	tp, err := tracing.Init(ctx, a.Config.Tracing, constants.ServiceName, a.instanceID)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize filter store: %w", err)
	}

	if err := a.initPresenters(ctx); err != nil {
		return fmt.Errorf("failed to initialize presenters: %w", err)
	}

	a.initRouter(ctx)
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}

	a.Logger.InfowCtx(ctx, "Filters service initialized",
		"instance_id", a.instanceID,
		"database", a.Config.Database.Driver,
		"notifier", a.Config.Notifier.Type,
	)
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	var repo storage.Repository

	switch a.Config.Database.Driver {
	case constants.DatabaseMongoDB:
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		a.mongoClient = client
		mongoRepo := storage.NewMongoRepository(client, a.Config.Database.MongoDB.Database)
		if a.Config.Database.RunMigrations {
			if err := mongoRepo.EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("failed to ensure indexes: %w", err)
			}
		}
		repo = mongoRepo
	default:
		db, err := a.dbConnector.InitSQL(ctx)
		if err != nil {
			return err
		}
		a.db = db
		if a.Config.Database.RunMigrations {
			if err := storage.Migrate(db, a.Config.Database.Driver, storage.Up); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			a.Logger.InfowCtx(ctx, "Migrations applied", "driver", a.Config.Database.Driver)
		}
		sqlRepo, err := storage.NewSQLRepository(db, a.Config.Database.Driver)
		if err != nil {
			return err
		}
		repo = sqlRepo
	}

	a.repo = storage.NewCircuitBreakerRepository(repo, "filter-store", a.Config.CircuitBreaker)

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		if a.Config.Notifier.Type == constants.NotifierRedis {
			return err
		}
		a.Logger.WarnwCtx(ctx, "Redis connection failed, continuing without Redis", "error", err)
	}
	a.redisClient = redisClient

	return nil
}

func (a *App) initStore(ctx context.Context) error {
	var notifier filterstore.Notifier

	switch a.Config.Notifier.Type {
	case constants.NotifierKafka:
		if err := a.InitBroker(constants.ServiceName, a.instanceID); err != nil {
			return fmt.Errorf("failed to initialize broker: %w", err)
		}
		notifier = filterstore.NewKafkaNotifier(a.Producer, a.Config.Broker.Kafka.ChangeTopic)
	case constants.NotifierRedis:
		if a.redisClient == nil {
			return fmt.Errorf("redis notifier requires a redis connection")
		}
		a.redisNotifier = filterstore.NewRedisNotifier(a.redisClient, a.Config.Notifier.RedisChannel, a.Logger)
		notifier = a.redisNotifier
	default:
		notifier = filterstore.NopNotifier{}
	}

	a.store = filterstore.New(a.repo, notifier, a.instanceID, a.Config.Store, a.Logger)
	return nil
}

func (a *App) initPresenters(ctx context.Context) error {
	taskTimeout := time.Duration(a.Config.Presenter.MutationTimeoutSeconds) * time.Second

	for _, partition := range []filters.Partition{filters.Inclusion, filters.Exclusion} {
		queueCfg := worker.DefaultConfig(string(partition))
		queueCfg.Size = a.Config.Presenter.QueueSize
		if taskTimeout > 0 {
			queueCfg.TaskTimeout = taskTimeout
		}
		queue := worker.NewQueue(queueCfg, a.Logger)
		queue.Start()
		a.queues[partition] = queue

		view := api.NewView()
		a.views[partition] = view

		presenter := filters.NewPresenter(partition, a.store, view, queue, a.Logger)
		if err := presenter.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize %s presenter: %w", partition, err)
		}
		a.presenters[partition] = presenter
	}
	return nil
}

func (a *App) initRouter(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.API.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.API.RateLimit.RPS,
			Burst:           a.Config.API.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.API.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.API.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	bindings := make(map[filters.Partition]api.Binding, len(a.presenters))
	for partition, presenter := range a.presenters {
		bindings[partition] = api.Binding{Presenter: presenter, View: a.views[partition]}
	}
	api.NewHandler(bindings, a.Logger).RegisterRoutes(router)

	healthRegistry := a.healthRegistry()
	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
}

func (a *App) healthRegistry() *health.CheckerRegistry {
	registry := health.NewCheckerRegistry()

	if a.db != nil {
		registry.Register(health.NewSQLChecker(a.Config.Database.Driver, a.db))
	}
	if a.mongoClient != nil {
		registry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	if a.redisClient != nil {
		registry.RegisterOptional(health.NewRedisChecker(a.redisClient))
	}

	registry.RegisterOptional(health.NewFuncChecker("circuit_breaker", func(context.Context) error {
		if state := a.repo.State(); state == "open" {
			return fmt.Errorf("filter store circuit breaker is %s", state)
		}
		return nil
	}))

	return registry
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	runCtx := logging.WithServiceName(gCtx, constants.ServiceName)

	g.Go(func() error {
		a.Logger.InfowCtx(runCtx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.store.StartResync(runCtx)
	})

	switch {
	case a.Consumer != nil:
		handler := filterstore.NewChangeHandler(a.store, a.Logger)
		topic := a.Config.Broker.Kafka.ChangeTopic
		g.Go(func() error {
			a.Logger.InfowCtx(runCtx, "Starting filter change consumer", "topic", topic)
			return a.Consumer.Consume(runCtx, topic, handler.HandleEnvelope)
		})
	case a.redisNotifier != nil:
		g.Go(func() error {
			return a.redisNotifier.Listen(runCtx, a.store.HandleChangeEvent)
		})
	}

	return g.Wait()
}

// Shutdown stops the presenters before the queues they submit to, and the
// queues before the store and databases they write through.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
		a.Logger.InfowCtx(shutdownCtx, "Shutting down filters service")

		additionalShutdown := func(ctx context.Context) []error {
			var errs []error

			for _, presenter := range a.presenters {
				presenter.Dispose()
			}

			for partition, queue := range a.queues {
				if err := queue.Stop(ctx); err != nil {
					errs = append(errs, fmt.Errorf("%s queue stop error: %w", partition, err))
				}
			}

			if a.store != nil {
				a.store.Close()
			}

			if a.server != nil {
				serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
				defer cancel()
				if err := a.server.Shutdown(serverCtx); err != nil {
					errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
				}
			}

			if a.tracerProvider != nil {
				if err := a.tracerProvider.Shutdown(ctx); err != nil {
					errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
				}
			}

			errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)...)
			return errs
		}

		a.shutdownErr = a.Base.Shutdown(shutdownCtx, additionalShutdown)
	})
	return a.shutdownErr
}
