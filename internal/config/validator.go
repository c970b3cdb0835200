package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateNotifier(cfg.Notifier, cfg.Broker, cfg.Database.Redis); err != nil {
		errors = append(errors, err)
	}

	if err := validateStore(cfg.Store); err != nil {
		errors = append(errors, err)
	}

	if err := validatePresenter(cfg.Presenter); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	switch cfg.Driver {
	case "sqlite3":
		if cfg.SQLite.Path == "" {
			return &ValidationError{
				Field:   "database.sqlite.path",
				Message: "SQLite path is required",
			}
		}
	case "postgres":
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	case "mongodb":
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	default:
		return &ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unknown database driver: %s (supported: sqlite3, postgres, mongodb)", cfg.Driver),
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateNotifier(cfg NotifierConfig, broker BrokerConfig, redis RedisConfig) error {
	switch cfg.Type {
	case "", "none":
		return nil
	case "kafka":
		if broker.Type != "kafka" {
			return &ValidationError{
				Field:   "broker.type",
				Message: fmt.Sprintf("kafka notifier requires broker type kafka, got %q", broker.Type),
			}
		}
		return validateKafka(broker.Kafka)
	case "redis":
		if redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "redis notifier requires database.redis to be configured",
			}
		}
		if cfg.RedisChannel == "" {
			return &ValidationError{
				Field:   "notifier.redis_channel",
				Message: "redis channel is required",
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "notifier.type",
			Message: fmt.Sprintf("unknown notifier type: %s (supported: none, kafka, redis)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.ChangeTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.change_topic",
			Message: "change topic is required",
		}
	}

	switch cfg.StartOffset {
	case "", "latest", "earliest":
	default:
		return &ValidationError{
			Field:   "broker.kafka.start_offset",
			Message: fmt.Sprintf("unknown start offset %q (valid: latest, earliest)", cfg.StartOffset),
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateStore(cfg StoreConfig) error {
	if cfg.ResyncIntervalSeconds < 0 {
		return &ValidationError{
			Field:   "store.resync_interval_seconds",
			Message: "resync interval must be non-negative",
		}
	}

	if cfg.JitterMaxMilliseconds < 0 {
		return &ValidationError{
			Field:   "store.jitter_max_milliseconds",
			Message: "jitter must be non-negative",
		}
	}

	return nil
}

func validatePresenter(cfg PresenterConfig) error {
	if cfg.QueueSize < 1 {
		return &ValidationError{
			Field:   "presenter.queue_size",
			Message: fmt.Sprintf("queue size must be at least 1, got %d", cfg.QueueSize),
		}
	}

	if cfg.MutationTimeoutSeconds < 0 {
		return &ValidationError{
			Field:   "presenter.mutation_timeout_seconds",
			Message: "mutation timeout must be non-negative",
		}
	}

	return nil
}
