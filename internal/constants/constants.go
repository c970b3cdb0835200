package constants

import "time"

const (
	ServiceName = "filters-service"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	HealthCheckTimeout = 5 * time.Second
)

const (
	DefaultMongoDBName     = "logfilters"
	FilterRecordsTable     = "filter_records"
	FilterRecordCollection = "filter_records"
)

const (
	DatabaseSQLite   = "sqlite3"
	DatabasePostgres = "postgres"
	DatabaseMongoDB  = "mongodb"
)

const (
	NotifierNone  = "none"
	NotifierKafka = "kafka"
	NotifierRedis = "redis"
)

const (
	ShutdownTimeout = 5 * time.Second
	ConnectTimeout  = 30 * time.Second
)
