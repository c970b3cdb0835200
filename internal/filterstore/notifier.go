package filterstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"logfilters/internal/broker"
	"logfilters/internal/constants"
	"logfilters/internal/logger"
	"logfilters/pkg/logging"
	"logfilters/pkg/metrics"
	"logfilters/pkg/models"
)

// Notifier tells other instances that a partition changed.
type Notifier interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// NopNotifier is used for single-instance deployments.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, models.ChangeEvent) error {
	return nil
}

type KafkaNotifier struct {
	producer broker.Producer
	topic    string
}

func NewKafkaNotifier(producer broker.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Publish(ctx context.Context, event models.ChangeEvent) error {
	envelope, err := event.ToEnvelope(uuid.NewString(), constants.ServiceName)
	if err != nil {
		metrics.IncFilterChangeEvent(constants.NotifierKafka, "out", "error")
		return err
	}
	envelope.Metadata.TraceID = logging.GetTraceID(ctx)

	if err := n.producer.Publish(ctx, n.topic, *envelope); err != nil {
		metrics.IncFilterChangeEvent(constants.NotifierKafka, "out", "error")
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	metrics.IncFilterChangeEvent(constants.NotifierKafka, "out", "success")
	return nil
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisNotifier carries change events as JSON over a pub/sub channel.
// Delivery is at most once; resync covers events lost while disconnected.
type RedisNotifier struct {
	client  redisClient
	channel string
	logger  logger.Logger
}

func NewRedisNotifier(client redisClient, channel string, log logger.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, logger: log}
}

func (n *RedisNotifier) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.IncFilterChangeEvent(constants.NotifierRedis, "out", "error")
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		metrics.IncFilterChangeEvent(constants.NotifierRedis, "out", "error")
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	metrics.IncFilterChangeEvent(constants.NotifierRedis, "out", "success")
	return nil
}

// Listen subscribes to the channel and hands each decoded event to handler
// until ctx ends.
func (n *RedisNotifier) Listen(ctx context.Context, handler func(ctx context.Context, event models.ChangeEvent) error) error {
	pubsub := n.client.Subscribe(ctx, n.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	n.logger.InfowCtx(ctx, "Listening for filter change events", "channel", n.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			n.dispatch(ctx, msg.Payload, handler)
		}
	}
}

func (n *RedisNotifier) dispatch(ctx context.Context, payload string, handler func(ctx context.Context, event models.ChangeEvent) error) {
	var event models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		metrics.IncFilterChangeEvent(constants.NotifierRedis, "in", "invalid")
		n.logger.WarnwCtx(ctx, "Dropping malformed change event", "channel", n.channel, "error", err)
		return
	}

	if err := handler(ctx, event); err != nil {
		metrics.IncFilterChangeEvent(constants.NotifierRedis, "in", "error")
		n.logger.ErrorwCtx(ctx, "Failed to handle change event",
			"partition", event.Partition,
			"origin", event.Origin,
			"error", err,
		)
		return
	}
	metrics.IncFilterChangeEvent(constants.NotifierRedis, "in", "success")
}
