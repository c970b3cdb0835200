package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeEventEnvelope(t *testing.T) {
	event := ChangeEvent{
		EventType: EventTypeFiltersChanged,
		Partition: "exclusions",
		Action:    ActionDelete,
		RecordIDs: []string{"r1"},
		Origin:    "instance-a",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	envelope, err := event.ToEnvelope("msg-1", "filters-service")
	require.NoError(t, err)
	require.NoError(t, ValidateMessageEnvelope(envelope))

	eventType, ok := envelope.Metadata.StringAttribute(AttributeEventType)
	require.True(t, ok)
	assert.Equal(t, EventTypeFiltersChanged, eventType)

	decoded, err := ChangeEventFromEnvelope(*envelope)
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
	assert.NoError(t, ValidateChangeEvent(decoded))
}

func TestValidateChangeEvent(t *testing.T) {
	tests := []struct {
		name  string
		event ChangeEvent
		field string
	}{
		{name: "wrong type", event: ChangeEvent{EventType: "other", Partition: "inclusions", Origin: "a"}, field: "event_type"},
		{name: "bad partition", event: ChangeEvent{EventType: EventTypeFiltersChanged, Partition: "all", Origin: "a"}, field: "partition"},
		{name: "missing origin", event: ChangeEvent{EventType: EventTypeFiltersChanged, Partition: "inclusions"}, field: "origin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChangeEvent(tt.event)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestValidateMessageEnvelope(t *testing.T) {
	assert.Error(t, ValidateMessageEnvelope(nil))
	assert.Error(t, ValidateMessageEnvelope(&MessageEnvelope{Source: "s", Payload: map[string]interface{}{}}))
	assert.NoError(t, ValidateMessageEnvelope(&MessageEnvelope{ID: "1", Source: "s", Payload: map[string]interface{}{}}))
}
