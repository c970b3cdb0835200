package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logfilters/internal/config"
	"logfilters/internal/logger"
)

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN(config.SQLiteConfig{Path: "/var/lib/filters.db", BusyTimeoutMS: 250})
	assert.Contains(t, dsn, "file:/var/lib/filters.db?")
	assert.Contains(t, dsn, "_busy_timeout=250")
	assert.Contains(t, dsn, "_journal_mode=WAL")

	mem := SQLiteDSN(config.SQLiteConfig{Path: ":memory:"})
	assert.Contains(t, mem, "_busy_timeout=5000")
	assert.NotContains(t, mem, "_journal_mode")
}

func TestInitSQLite(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{
		Driver: "sqlite3",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}}
	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	db, err := dc.InitSQL(context.Background())
	require.NoError(t, err)
	require.NotNil(t, db)

	assert.Empty(t, dc.ShutdownDatabases(context.Background(), nil, db, nil))
}

func TestInitSQLUnknownDriver(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: "oracle"}}
	_, err := NewDatabaseConnector(cfg, logger.NopLogger()).InitSQL(context.Background())
	assert.Error(t, err)
}

func TestInitOptionalStoresSkipped(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())

	rdb, err := dc.InitRedis(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, rdb)

	mc, err := dc.InitMongoDB(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, mc)
}
