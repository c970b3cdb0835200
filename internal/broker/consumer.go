package broker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"logfilters/internal/config"
	"logfilters/internal/logger"
	"logfilters/pkg/errors"
	"logfilters/pkg/logging"
	"logfilters/pkg/metrics"
	"logfilters/pkg/models"
	"logfilters/pkg/retry"
	"logfilters/pkg/tracing"
)

const fetchErrorDelay = time.Second

// KafkaConsumer reads one topic in a consumer group. Every fetched message
// is committed once handled, dead-lettered or found undecodable, so a
// poison message never stalls the partition.
type KafkaConsumer struct {
	cfg         config.KafkaConfig
	policy      retry.Policy
	logger      logger.Logger
	dlq         Producer
	serviceName string

	mu     sync.Mutex
	reader *kafka.Reader
	wg     sync.WaitGroup
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	c := &KafkaConsumer{
		cfg:         cfg,
		policy:      policyFromConfig(cfg.Retry),
		logger:      log,
		serviceName: "unknown",
	}
	if cfg.DLQTopic != "" {
		c.dlq = NewKafkaProducer(cfg, log)
	}
	return c
}

func policyFromConfig(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		MaxElapsedTime:  cfg.MaxElapsedTime,
	}
}

func startOffset(s string) int64 {
	if s == "earliest" {
		return kafka.FirstOffset
	}
	return kafka.LastOffset
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume starts reading topic and blocks until ctx ends. A consumer reads
// a single topic.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     c.cfg.GroupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: startOffset(c.cfg.StartOffset),
	})

	c.mu.Lock()
	if c.reader != nil {
		c.mu.Unlock()
		reader.Close()
		return fmt.Errorf("consumer is already reading %s", c.reader.Config().Topic)
	}
	c.reader = reader
	c.mu.Unlock()

	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming",
		"topic", topic,
		"group_id", c.cfg.GroupID,
		"start_offset", c.cfg.StartOffset,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(consumeCtx, reader, topic, handler)
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (c *KafkaConsumer) run(ctx context.Context, reader *kafka.Reader, topic string, handler HandlerFunc) {
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(ctx, "Stopped consuming", "topic", topic)
				return
			}
			c.logger.ErrorwCtx(ctx, "Error fetching kafka message", "topic", topic, "error", err)
			select {
			case <-time.After(fetchErrorDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		metrics.IncKafkaMessagesRead(c.serviceName, topic)
		c.handle(ctx, m, handler)

		if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.ErrorwCtx(ctx, "Failed to commit message",
				"topic", topic,
				"offset", m.Offset,
				"error", err,
			)
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, m kafka.Message, handler HandlerFunc) {
	var envelope models.MessageEnvelope
	if err := json.Unmarshal(m.Value, &envelope); err != nil {
		c.logger.ErrorwCtx(ctx, "Dropping undecodable message",
			"topic", m.Topic,
			"offset", m.Offset,
			"error", err,
		)
		return
	}
	if err := models.ValidateMessageEnvelope(&envelope); err != nil {
		c.logger.ErrorwCtx(ctx, "Dropping invalid message", "topic", m.Topic, "offset", m.Offset, "error", err)
		return
	}

	msgCtx, span := tracing.StartConsumeSpan(ctx, m)
	if envelope.Metadata.TraceID != "" {
		msgCtx = logging.WithTraceID(msgCtx, envelope.Metadata.TraceID)
	}
	msgCtx = logging.WithMessageID(msgCtx, envelope.ID)

	err := c.process(msgCtx, envelope, handler, m.Topic)
	tracing.EndSpan(span, err)
	if err == nil {
		return
	}

	c.logger.ErrorwCtx(msgCtx, "Failed to process message", "topic", m.Topic, "error", err)
	if c.dlq == nil {
		c.logger.WarnwCtx(msgCtx, "No DLQ configured, dropping message", "topic", m.Topic)
		return
	}
	if err := c.sendToDLQ(msgCtx, envelope, err, m.Topic); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to send message to DLQ", "topic", m.Topic, "error", err)
	}
}

// process runs handler under the retry policy. Fatal errors skip the
// remaining attempts.
func (c *KafkaConsumer) process(ctx context.Context, envelope models.MessageEnvelope, handler HandlerFunc, topic string) error {
	return retry.RetryWithCallback(ctx, c.policy, func() error {
		var handlerErr error
		if err := errors.Guard(func() { handlerErr = handler(ctx, envelope) }); err != nil {
			c.logger.ErrorwCtx(ctx, "Panic recovered during message processing", "topic", topic, "error", err)
			return err
		}
		return handlerErr
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"next_delay", nextDelay,
			"topic", topic,
			"error", err,
		)
	})
}

func dlqReason(err error) string {
	var fatal retry.FatalError
	if stderrors.As(err, &fatal) {
		return "fatal"
	}
	return "max_retries_exceeded"
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, envelope models.MessageEnvelope, cause error, sourceTopic string) error {
	envelope.Metadata.SetAttribute("dlq_reason", cause.Error())
	envelope.Metadata.SetAttribute("dlq_source_topic", sourceTopic)
	envelope.Metadata.SetAttribute("dlq_timestamp", time.Now().UTC())

	if err := c.dlq.Publish(ctx, c.cfg.DLQTopic, envelope); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	reason := dlqReason(cause)
	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, sourceTopic, reason).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", reason,
	)
	return nil
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	var err error
	if reader != nil {
		err = reader.Close()
	}
	if c.dlq != nil {
		if closeErr := c.dlq.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	c.wg.Wait()
	return err
}
