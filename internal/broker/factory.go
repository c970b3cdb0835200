package broker

import (
	"fmt"

	"logfilters/internal/config"
	"logfilters/internal/logger"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	if err := checkKafka(cfg); err != nil {
		return nil, err
	}
	return NewKafkaProducer(cfg.Kafka, log), nil
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	if err := checkKafka(cfg); err != nil {
		return nil, err
	}
	return NewKafkaConsumer(cfg.Kafka, log), nil
}

func checkKafka(cfg config.BrokerConfig) error {
	if cfg.Type != "kafka" {
		return fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	return nil
}
