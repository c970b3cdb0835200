package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "filters.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "none", cfg.Notifier.Type)
	assert.Equal(t, 128, cfg.Presenter.QueueSize)
	assert.Equal(t, 60, cfg.Store.ResyncIntervalSeconds)
	assert.Equal(t, "filter_changes", cfg.Broker.Kafka.ChangeTopic)
	assert.Equal(t, "latest", cfg.Broker.Kafka.StartOffset)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8081
database:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    user: filters
    password: secret
    dbname: filters
    sslmode: disable
notifier:
  type: kafka
broker:
  type: kafka
  kafka:
    brokers: ["localhost:9092"]
    group_id: filters-service
circuit_breaker:
  enabled: true
  max_requests: 5
logging:
  level: debug
  format: console
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "filters", cfg.Database.Postgres.DBName)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Broker.Kafka.Brokers)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, uint32(5), cfg.CircuitBreaker.MaxRequests)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "notifier:\n  type: kafka\nbroker:\n  kafka:\n    group_id: g\n")
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("DATABASE_SQLITE_PATH", "/tmp/override.db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "/tmp/override.db", cfg.Database.SQLite.Path)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Server:    ServerConfig{Port: 8080, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
		Database:  DatabaseConfig{Driver: "sqlite3", SQLite: SQLiteConfig{Path: ":memory:"}},
		Notifier:  NotifierConfig{Type: "none"},
		Presenter: PresenterConfig{QueueSize: 8},
	}
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "database.driver",
		},
		{
			name:    "postgres without host",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: "database.postgres.host",
		},
		{
			name: "mongodb bad uri",
			mutate: func(c *Config) {
				c.Database.Driver = "mongodb"
				c.Database.MongoDB = MongoDBConfig{URI: "http://x", Database: "d"}
			},
			wantErr: "database.mongodb.uri",
		},
		{
			name:    "kafka notifier without brokers",
			mutate:  func(c *Config) { c.Notifier.Type = "kafka"; c.Broker.Type = "kafka" },
			wantErr: "broker.kafka.brokers",
		},
		{
			name:    "redis notifier without redis",
			mutate:  func(c *Config) { c.Notifier.Type = "redis" },
			wantErr: "database.redis.host",
		},
		{
			name:    "unknown notifier",
			mutate:  func(c *Config) { c.Notifier.Type = "sns" },
			wantErr: "notifier.type",
		},
		{
			name:    "zero queue",
			mutate:  func(c *Config) { c.Presenter.QueueSize = 0 },
			wantErr: "presenter.queue_size",
		},
		{
			name:    "negative resync",
			mutate:  func(c *Config) { c.Store.ResyncIntervalSeconds = -1 },
			wantErr: "store.resync_interval_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
