package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logfilters/internal/config"
	"logfilters/internal/logger"
)

func TestNewProducer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BrokerConfig
		wantErr bool
	}{
		{name: "kafka", cfg: config.BrokerConfig{Type: "kafka", Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}}}},
		{name: "unknown type", cfg: config.BrokerConfig{Type: "rabbitmq"}, wantErr: true},
		{name: "no brokers", cfg: config.BrokerConfig{Type: "kafka"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProducer(tt.cfg, logger.NopLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, p.Close())
		})
	}
}

func TestNewConsumerSetsServiceName(t *testing.T) {
	c, err := NewConsumer(config.BrokerConfig{Type: "kafka", Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"}}, logger.NopLogger())
	require.NoError(t, err)
	c.SetServiceName("filters-service")
	assert.Equal(t, "filters-service", c.(*KafkaConsumer).serviceName)
	assert.NoError(t, c.Close())
}
