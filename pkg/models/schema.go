package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateMessageEnvelope(msg *MessageEnvelope) error {
	if msg == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "message envelope cannot be nil",
		}
	}

	if msg.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "message ID is required",
		}
	}

	if msg.Source == "" {
		return &ValidationError{
			Field:   "source",
			Message: "message source is required",
		}
	}

	if msg.Payload == nil {
		return &ValidationError{
			Field:   "payload",
			Message: "message payload cannot be nil",
		}
	}

	return nil
}

func ValidateChangeEvent(e ChangeEvent) error {
	if e.EventType != EventTypeFiltersChanged {
		return &ValidationError{
			Field:   "event_type",
			Message: fmt.Sprintf("unexpected event type %q", e.EventType),
		}
	}

	if e.Partition != "inclusions" && e.Partition != "exclusions" {
		return &ValidationError{
			Field:   "partition",
			Message: fmt.Sprintf("unknown partition %q", e.Partition),
		}
	}

	if e.Origin == "" {
		return &ValidationError{
			Field:   "origin",
			Message: "origin is required",
		}
	}

	return nil
}
