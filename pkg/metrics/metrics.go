package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FilterSnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_snapshots_total",
			Help: "Total number of partition snapshots applied by presenters (count)",
		},
		[]string{"partition", "status"},
	)

	FilterMappingFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_mapping_failures_total",
			Help: "Total number of records skipped because they could not be mapped for display (count)",
		},
		[]string{"partition"},
	)

	FilterItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filter_items",
			Help: "Number of display items currently held by presenters (count)",
		},
		[]string{"partition"},
	)

	FilterMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_mutations_total",
			Help: "Total number of filter store mutations (count)",
		},
		[]string{"operation", "status"},
	)

	FilterMutationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filter_mutation_duration_ms",
			Help:    "Duration of filter store mutations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"operation"},
	)

	FilterSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filter_subscriptions",
			Help: "Number of active snapshot subscriptions (count)",
		},
		[]string{"partition"},
	)

	FilterChangeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_change_events_total",
			Help: "Total number of filter change events by transport and outcome (count)",
		},
		[]string{"transport", "direction", "status"},
	)

	FilterMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_matches_total",
			Help: "Total number of log entries evaluated against the active filters (count)",
		},
		[]string{"result"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	MessageQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "message_queue_size",
			Help: "Current size of the mutation queue (count)",
		},
		[]string{"service"},
	)

	MessageQueueWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_queue_wait_duration_ms",
			Help:    "Duration tasks wait in queue before processing in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service"},
	)
)

func RegisterFilterMetrics() {
	prometheus.MustRegister(FilterSnapshotsTotal)
	prometheus.MustRegister(FilterMappingFailuresTotal)
	prometheus.MustRegister(FilterItems)
	prometheus.MustRegister(FilterMutationsTotal)
	prometheus.MustRegister(FilterMutationDuration)
	prometheus.MustRegister(FilterSubscriptions)
	prometheus.MustRegister(FilterChangeEventsTotal)
	prometheus.MustRegister(FilterMatchesTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterStorageMetrics() {
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
	prometheus.MustRegister(MessageQueueSize)
	prometheus.MustRegister(MessageQueueWaitDuration)
}

func RegisterAPIMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func IncFilterSnapshot(partition, status string) {
	FilterSnapshotsTotal.WithLabelValues(partition, status).Inc()
}

func IncFilterMappingFailure(partition string) {
	FilterMappingFailuresTotal.WithLabelValues(partition).Inc()
}

func SetFilterItems(partition string, count int) {
	FilterItems.WithLabelValues(partition).Set(float64(count))
}

func ObserveFilterMutation(operation, status string, duration time.Duration) {
	FilterMutationsTotal.WithLabelValues(operation, status).Inc()
	FilterMutationDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func IncFilterChangeEvent(transport, direction, status string) {
	FilterChangeEventsTotal.WithLabelValues(transport, direction, status).Inc()
}

func IncFilterMatch(result string) {
	FilterMatchesTotal.WithLabelValues(result).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func SetMessageQueueSize(service string, size int) {
	MessageQueueSize.WithLabelValues(service).Set(float64(size))
}

func ObserveMessageQueueWaitDuration(service string, duration time.Duration) {
	MessageQueueWaitDuration.WithLabelValues(service).Observe(float64(duration.Milliseconds()))
}
