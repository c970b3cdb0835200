package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"logfilters/internal/config"
	"logfilters/internal/constants"
	"logfilters/internal/logger"
	"logfilters/internal/storage"
	"logfilters/pkg/bootstrap"
	"logfilters/pkg/logging"
)

var (
	configFile string
)

// @title           Filters Service API
// @version         1.0
// @description     REST API for managing inclusion and exclusion log filters

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   "filters-service",
		Short: "Log filter service",
		Long:  "Filters Service keeps inclusion and exclusion log filters and serves them over HTTP",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(earlyLog *logging.EarlyLog) (*config.Config, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the filters service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog(constants.ServiceName)

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Filters Service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				shutdownCtx, done := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
				defer done()
				_ = app.Shutdown(shutdownCtx)
				return err
			}

			log.InfowCtx(ctx, "Service running")
			runErr := app.Run(ctx)

			shutdownCtx, done := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer done()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.ErrorwCtx(shutdownCtx, "Shutdown finished with errors", "error", err)
			}

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
				return runErr
			}
			log.InfowCtx(shutdownCtx, "Service shutdown complete")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the filter_records schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(storage.Up), string(storage.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog(constants.ServiceName)

			direction := storage.Direction(args[0])
			if direction != storage.Up && direction != storage.Down {
				earlyLog.Error("Unknown migration direction %q (valid: up, down)", args[0])
				return fmt.Errorf("unknown migration direction %q", args[0])
			}

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), constants.ConnectTimeout)
			defer cancel()

			return runMigrations(ctx, cfg, log, direction)
		},
	}
}

func runMigrations(ctx context.Context, cfg *config.Config, log logger.Logger, direction storage.Direction) error {
	connector := bootstrap.NewDatabaseConnector(cfg, log)

	if cfg.Database.Driver == constants.DatabaseMongoDB {
		if direction == storage.Down {
			return fmt.Errorf("mongodb has no schema to roll back")
		}
		client, err := connector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		repo := storage.NewMongoRepository(client, cfg.Database.MongoDB.Database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return err
		}
		log.InfowCtx(ctx, "MongoDB indexes ensured", "database", cfg.Database.MongoDB.Database)
		return nil
	}

	db, err := connector.InitSQL(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(db, cfg.Database.Driver, direction); err != nil {
		return err
	}
	log.InfowCtx(ctx, "Migrations applied", "driver", cfg.Database.Driver, "direction", direction)
	return nil
}
