//go:build integration

package filterstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"logfilters/internal/broker"
	"logfilters/internal/config"
	"logfilters/internal/logger"
	"logfilters/pkg/models"
)

func init() {
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}
}

func TestRedisNotifierRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })

	n := NewRedisNotifier(client, "logfilters:changes", logger.NopLogger())

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	received := make(chan models.ChangeEvent, 1)
	go func() {
		_ = n.Listen(listenCtx, func(_ context.Context, e models.ChangeEvent) error {
			received <- e
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		subs, err := client.PubSubNumSub(ctx, "logfilters:changes").Result()
		return err == nil && subs["logfilters:changes"] > 0
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, n.Publish(ctx, sampleEvent()))

	select {
	case e := <-received:
		assert.Equal(t, sampleEvent(), e)
	case <-time.After(10 * time.Second):
		t.Fatal("change event not received")
	}
}

func TestKafkaNotifierRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("logfilters-test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	cfg := config.BrokerConfig{
		Type: "kafka",
		Kafka: config.KafkaConfig{
			Brokers:     brokers,
			GroupID:     "logfilters-test",
			ChangeTopic: "filter_changes",
			StartOffset: "earliest",
			Retry:       config.RetryConfig{MaxAttempts: 1, Multiplier: 2},
		},
	}

	producer, err := broker.NewProducer(cfg, logger.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { producer.Close() })

	consumer, err := broker.NewConsumer(cfg, logger.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	received := make(chan models.ChangeEvent, 1)
	handler := NewChangeHandler(applierFunc(func(_ context.Context, e models.ChangeEvent) error {
		received <- e
		return nil
	}), logger.NopLogger())

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = consumer.Consume(consumeCtx, "filter_changes", handler.HandleEnvelope)
	}()

	notifier := NewKafkaNotifier(producer, "filter_changes")
	require.Eventually(t, func() bool {
		return notifier.Publish(ctx, sampleEvent()) == nil
	}, 30*time.Second, time.Second)

	select {
	case e := <-received:
		assert.Equal(t, sampleEvent().RecordIDs, e.RecordIDs)
		assert.Equal(t, "instance-b", e.Origin)
	case <-time.After(60 * time.Second):
		t.Fatal("change event not consumed")
	}
}
