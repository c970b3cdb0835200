package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeEvent announces that a filter partition changed in the store.
// Instances use Origin to skip events they published themselves.
type ChangeEvent struct {
	EventType string    `json:"event_type"`
	Partition string    `json:"partition"`
	Action    string    `json:"action"`
	RecordIDs []string  `json:"record_ids,omitempty"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventTypeFiltersChanged = "filters_changed"
)

const (
	ActionInsert = "insert"
	ActionDelete = "delete"
)

const (
	AttributeEventType = "event_type"
	AttributePartition = "partition"
)

// ToEnvelope wraps the event for transport on the broker.
func (e ChangeEvent) ToEnvelope(id, source string) (*MessageEnvelope, error) {
	eventJSON, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change event: %w", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(eventJSON, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
	}

	envelope := &MessageEnvelope{
		ID:        id,
		Source:    source,
		Timestamp: e.Timestamp,
		Payload:   payload,
	}
	if envelope.Timestamp.IsZero() {
		envelope.Timestamp = time.Now().UTC()
	}
	envelope.Metadata.SetAttribute(AttributeEventType, e.EventType)
	envelope.Metadata.SetAttribute(AttributePartition, e.Partition)
	return envelope, nil
}

// ChangeEventFromEnvelope decodes an event previously wrapped by ToEnvelope.
func ChangeEventFromEnvelope(envelope MessageEnvelope) (ChangeEvent, error) {
	var event ChangeEvent
	eventJSON, err := json.Marshal(envelope.Payload)
	if err != nil {
		return event, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal change event: %w", err)
	}
	return event, nil
}
