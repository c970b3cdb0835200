package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"logfilters/internal/config"
	"logfilters/internal/constants"
	"logfilters/internal/logger"
	"logfilters/pkg/retry"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
	Policy retry.Policy
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	policy := retry.DefaultPolicy()
	policy.MaxElapsedTime = constants.ConnectTimeout
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
		Policy: policy,
	}
}

// InitSQL opens the SQL store selected by database.driver. It returns nil
// for the mongodb driver.
func (dc *DatabaseConnector) InitSQL(ctx context.Context) (*sql.DB, error) {
	switch dc.Config.Database.Driver {
	case constants.DatabaseSQLite:
		return dc.InitSQLite(ctx)
	case constants.DatabasePostgres:
		return dc.InitPostgreSQL(ctx)
	case constants.DatabaseMongoDB:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dc.Config.Database.Driver)
	}
}

func SQLiteDSN(cfg config.SQLiteConfig) string {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(busy))
	params.Set("_foreign_keys", "on")
	if cfg.Path != ":memory:" {
		params.Set("_journal_mode", "WAL")
	}
	return fmt.Sprintf("file:%s?%s", cfg.Path, params.Encode())
}

func (dc *DatabaseConnector) InitSQLite(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(constants.DatabaseSQLite, SQLiteDSN(dc.Config.Database.SQLite))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := dc.ping(ctx, "sqlite", db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "SQLite connected successfully", "path", dc.Config.Database.SQLite.Path)
	return db, nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	pg := dc.Config.Database.Postgres
	if pg.Host == "" {
		return nil, fmt.Errorf("postgres host is not configured")
	}

	sslMode := pg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(pg.User),
		url.QueryEscape(pg.Password),
		pg.Host,
		pg.Port,
		pg.DBName,
		sslMode,
	)

	db, err := sql.Open(constants.DatabasePostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := dc.ping(ctx, "postgres", db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "PostgreSQL connected successfully", "host", pg.Host, "dbname", pg.DBName)
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.Config.Database.MongoDB.URI == "" {
		return nil, nil
	}

	mongoOpts := options.Client().ApplyURI(dc.Config.Database.MongoDB.URI)
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := dc.ping(ctx, "mongodb", func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "MongoDB connected successfully")
	return mongoClient, nil
}

// InitRedis returns nil when no Redis host is configured.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	if dc.Config.Database.Redis.Host == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	if err := dc.ping(ctx, "redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) ping(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return retry.RetryWithCallback(ctx, dc.Policy, func() error {
		return fn(ctx)
	}, func(attempt int, err error, nextDelay time.Duration) {
		dc.Logger.WarnwCtx(ctx, "Database not reachable, retrying",
			"database", name,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, redis *redis.Client, db *sql.DB, mongo *mongo.Client) []error {
	var errs []error

	if redis != nil {
		if err := redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if db != nil {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}

	if mongo != nil {
		if err := mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
