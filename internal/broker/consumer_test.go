package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logfilters/internal/config"
	"logfilters/internal/logger"
	"logfilters/pkg/models"
	"logfilters/pkg/retry"
)

type capturingProducer struct {
	topics    []string
	envelopes []models.MessageEnvelope
}

func (p *capturingProducer) Publish(_ context.Context, topic string, msg models.MessageEnvelope) error {
	p.topics = append(p.topics, topic)
	p.envelopes = append(p.envelopes, msg)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func newTestConsumer(dlq Producer) *KafkaConsumer {
	c := NewKafkaConsumer(config.KafkaConfig{
		Brokers:  []string{"localhost:9092"},
		GroupID:  "g",
		DLQTopic: "filter_changes_dlq",
		Retry:    config.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1},
	}, logger.NopLogger())
	c.dlq = dlq
	return c
}

func message(t *testing.T, envelope models.MessageEnvelope) kafka.Message {
	t.Helper()
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return kafka.Message{Topic: "filter_changes", Value: body}
}

func validEnvelope() models.MessageEnvelope {
	return models.MessageEnvelope{ID: "m1", Source: "filters-service", Payload: map[string]interface{}{"partition": "inclusions"}}
}

func TestConsumerHandle(t *testing.T) {
	tests := []struct {
		name      string
		value     func(t *testing.T) kafka.Message
		handler   func(calls *int) HandlerFunc
		wantCalls int
		wantDLQ   string
	}{
		{
			name:  "success",
			value: func(t *testing.T) kafka.Message { return message(t, validEnvelope()) },
			handler: func(calls *int) HandlerFunc {
				return func(context.Context, models.MessageEnvelope) error { *calls++; return nil }
			},
			wantCalls: 1,
		},
		{
			name:  "transient failure exhausts retries",
			value: func(t *testing.T) kafka.Message { return message(t, validEnvelope()) },
			handler: func(calls *int) HandlerFunc {
				return func(context.Context, models.MessageEnvelope) error { *calls++; return errors.New("down") }
			},
			wantCalls: 3,
			wantDLQ:   "max_retries_exceeded",
		},
		{
			name:  "fatal failure is not retried",
			value: func(t *testing.T) kafka.Message { return message(t, validEnvelope()) },
			handler: func(calls *int) HandlerFunc {
				return func(context.Context, models.MessageEnvelope) error {
					*calls++
					return retry.NewFatalError(errors.New("bad event"))
				}
			},
			wantCalls: 1,
			wantDLQ:   "fatal",
		},
		{
			name:  "panic is recovered",
			value: func(t *testing.T) kafka.Message { return message(t, validEnvelope()) },
			handler: func(calls *int) HandlerFunc {
				return func(context.Context, models.MessageEnvelope) error { *calls++; panic("boom") }
			},
			wantCalls: 3,
			wantDLQ:   "max_retries_exceeded",
		},
		{
			name:  "undecodable message is dropped",
			value: func(*testing.T) kafka.Message { return kafka.Message{Topic: "filter_changes", Value: []byte("{")} },
			handler: func(calls *int) HandlerFunc {
				return func(context.Context, models.MessageEnvelope) error { *calls++; return nil }
			},
		},
		{
			name:  "invalid envelope is dropped",
			value: func(t *testing.T) kafka.Message { return message(t, models.MessageEnvelope{Source: "x"}) },
			handler: func(calls *int) HandlerFunc {
				return func(context.Context, models.MessageEnvelope) error { *calls++; return nil }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dlq := &capturingProducer{}
			c := newTestConsumer(dlq)

			calls := 0
			c.handle(context.Background(), tt.value(t), tt.handler(&calls))

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantDLQ == "" {
				assert.Empty(t, dlq.envelopes)
				return
			}
			require.Len(t, dlq.envelopes, 1)
			assert.Equal(t, []string{"filter_changes_dlq"}, dlq.topics)
			source, ok := dlq.envelopes[0].Metadata.StringAttribute("dlq_source_topic")
			require.True(t, ok)
			assert.Equal(t, "filter_changes", source)
		})
	}
}

func TestDLQReason(t *testing.T) {
	assert.Equal(t, "fatal", dlqReason(retry.NewFatalError(errors.New("x"))))
	assert.Equal(t, "max_retries_exceeded", dlqReason(errors.New("x")))
}

func TestStartOffset(t *testing.T) {
	assert.Equal(t, kafka.FirstOffset, startOffset("earliest"))
	assert.Equal(t, kafka.LastOffset, startOffset("latest"))
	assert.Equal(t, kafka.LastOffset, startOffset(""))
}

func TestEncodeKeysByEnvelopeID(t *testing.T) {
	m, err := encode(context.Background(), "filter_changes", validEnvelope())
	require.NoError(t, err)
	assert.Equal(t, "filter_changes", m.Topic)
	assert.Equal(t, []byte("m1"), m.Key)

	var decoded models.MessageEnvelope
	require.NoError(t, json.Unmarshal(m.Value, &decoded))
	assert.Equal(t, "m1", decoded.ID)
}
