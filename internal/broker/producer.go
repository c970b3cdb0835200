package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"logfilters/internal/config"
	"logfilters/internal/constants"
	"logfilters/internal/logger"
	"logfilters/pkg/metrics"
	"logfilters/pkg/models"
	"logfilters/pkg/tracing"
)

// KafkaProducer writes envelopes synchronously, keyed by envelope ID.
type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           constants.KafkaBatchTimeout,
			WriteTimeout:           constants.KafkaWriteTimeout,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: log,
	}
}

func encode(ctx context.Context, topic string, msg models.MessageEnvelope) (kafka.Message, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal message %s: %w", msg.ID, err)
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.ID),
		Value:   body,
		Headers: tracing.InjectTraceContext(ctx, nil),
		Time:    time.Now(),
	}, nil
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, msg models.MessageEnvelope) (err error) {
	ctx, span := tracing.StartPublishSpan(ctx, topic)
	defer func() { tracing.EndSpan(span, err) }()

	m, err := encode(ctx, topic, msg)
	if err != nil {
		return err
	}

	start := time.Now()
	if err = p.writer.WriteMessages(ctx, m); err != nil {
		p.logger.WarnwCtx(ctx, "Kafka write failed", "topic", topic, "message_id", msg.ID, "error", err)
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(constants.ServiceName, topic)
	metrics.ObserveKafkaWriteDuration(constants.ServiceName, topic, time.Since(start))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
