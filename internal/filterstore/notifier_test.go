package filterstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"logfilters/internal/logger"
	"logfilters/pkg/logging"
	"logfilters/pkg/models"
	"logfilters/pkg/retry"
)

type fakeRedis struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakeRedis) Subscribe(context.Context, ...string) *redis.PubSub {
	return nil
}

type fakeProducer struct {
	topic    string
	envelope models.MessageEnvelope
	err      error
}

func (p *fakeProducer) Publish(_ context.Context, topic string, msg models.MessageEnvelope) error {
	p.topic = topic
	p.envelope = msg
	return p.err
}

func (p *fakeProducer) Close() error { return nil }

func sampleEvent() models.ChangeEvent {
	return models.ChangeEvent{
		EventType: models.EventTypeFiltersChanged,
		Partition: "inclusions",
		Action:    models.ActionInsert,
		RecordIDs: []string{"r1", "r2"},
		Origin:    "instance-b",
		Timestamp: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestRedisNotifierPublish(t *testing.T) {
	client := &fakeRedis{}
	n := NewRedisNotifier(client, "logfilters:changes", logger.NopLogger())

	require.NoError(t, n.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "logfilters:changes", client.channel)

	var decoded models.ChangeEvent
	require.NoError(t, json.Unmarshal(client.payload, &decoded))
	assert.Equal(t, sampleEvent(), decoded)
}

func TestRedisNotifierPublishError(t *testing.T) {
	n := NewRedisNotifier(&fakeRedis{err: errors.New("connection refused")}, "c", logger.NopLogger())
	assert.ErrorContains(t, n.Publish(context.Background(), sampleEvent()), "connection refused")
}

func TestRedisNotifierDispatch(t *testing.T) {
	log, logs := logger.NewObserved(zapcore.WarnLevel)
	n := NewRedisNotifier(&fakeRedis{}, "c", log)

	payload, err := json.Marshal(sampleEvent())
	require.NoError(t, err)

	var got []models.ChangeEvent
	handler := func(_ context.Context, e models.ChangeEvent) error {
		got = append(got, e)
		return nil
	}

	n.dispatch(context.Background(), string(payload), handler)
	n.dispatch(context.Background(), "{not json", handler)

	require.Len(t, got, 1)
	assert.Equal(t, "instance-b", got[0].Origin)
	assert.Equal(t, 1, logs.FilterMessage("Dropping malformed change event").Len())
}

func TestKafkaNotifierPublish(t *testing.T) {
	producer := &fakeProducer{}
	n := NewKafkaNotifier(producer, "filter_changes")

	require.NoError(t, n.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "filter_changes", producer.topic)
	assert.Equal(t, "filters-service", producer.envelope.Source)
	assert.NotEmpty(t, producer.envelope.ID)

	decoded, err := models.ChangeEventFromEnvelope(producer.envelope)
	require.NoError(t, err)
	assert.Equal(t, sampleEvent(), decoded)
}

func TestKafkaNotifierPublishError(t *testing.T) {
	n := NewKafkaNotifier(&fakeProducer{err: errors.New("broker down")}, "filter_changes")
	assert.Error(t, n.Publish(context.Background(), sampleEvent()))
}

type applierFunc func(ctx context.Context, e models.ChangeEvent) error

func (f applierFunc) HandleChangeEvent(ctx context.Context, e models.ChangeEvent) error {
	return f(ctx, e)
}

func TestChangeHandler(t *testing.T) {
	valid, err := sampleEvent().ToEnvelope("m1", "filters-service")
	require.NoError(t, err)

	otherType := *valid
	otherType.Metadata = models.Metadata{}
	otherType.Metadata.SetAttribute(models.AttributeEventType, "config_updated")

	missingType := models.MessageEnvelope{ID: "m2", Source: "s", Payload: map[string]interface{}{}}

	badPayload := models.MessageEnvelope{ID: "m3", Source: "s", Payload: map[string]interface{}{
		"event_type": models.EventTypeFiltersChanged,
		"record_ids": "not-a-list",
	}}

	tests := []struct {
		name      string
		envelope  models.MessageEnvelope
		applyErr  error
		wantCalls int
		wantErr   bool
		wantFatal bool
	}{
		{name: "applied", envelope: *valid, wantCalls: 1},
		{name: "other event type", envelope: otherType},
		{name: "missing event type", envelope: missingType},
		{name: "undecodable payload", envelope: badPayload, wantErr: true, wantFatal: true},
		{name: "transient failure", envelope: *valid, applyErr: errors.New("db locked"), wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			h := NewChangeHandler(applierFunc(func(context.Context, models.ChangeEvent) error {
				calls++
				return tt.applyErr
			}), logger.NopLogger())

			err := h.HandleEnvelope(context.Background(), tt.envelope)
			assert.Equal(t, tt.wantCalls, calls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var fatal retry.FatalError
			assert.Equal(t, tt.wantFatal, errors.As(err, &fatal))
		})
	}
}

func TestChangeHandlerLogsMessageID(t *testing.T) {
	missingType := models.MessageEnvelope{ID: "m2", Source: "s", Payload: map[string]interface{}{}}

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{name: "taken from envelope", ctx: context.Background(), want: "m2"},
		{name: "kept from consumer", ctx: logging.WithMessageID(context.Background(), "kafka-7"), want: "kafka-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, logs := logger.NewObserved(zapcore.WarnLevel)
			h := NewChangeHandler(applierFunc(func(context.Context, models.ChangeEvent) error { return nil }), log)

			require.NoError(t, h.HandleEnvelope(tt.ctx, missingType))
			require.Equal(t, 1, logs.Len())
			assert.Equal(t, tt.want, logs.All()[0].ContextMap()[logging.MessageIDKey])
		})
	}
}
