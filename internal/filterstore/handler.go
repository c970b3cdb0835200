package filterstore

import (
	"context"

	"logfilters/internal/constants"
	"logfilters/internal/logger"
	"logfilters/pkg/errors"
	"logfilters/pkg/logging"
	"logfilters/pkg/metrics"
	"logfilters/pkg/models"
	"logfilters/pkg/retry"
)

type ChangeApplier interface {
	HandleChangeEvent(ctx context.Context, event models.ChangeEvent) error
}

// ChangeHandler consumes change events from the broker.
type ChangeHandler struct {
	applier ChangeApplier
	logger  logger.Logger
}

func NewChangeHandler(applier ChangeApplier, log logger.Logger) *ChangeHandler {
	return &ChangeHandler{applier: applier, logger: log}
}

// HandleEnvelope ignores envelopes of other event types. Undecodable events
// are returned as fatal so the consumer sends them to the DLQ without retrying.
func (h *ChangeHandler) HandleEnvelope(ctx context.Context, envelope models.MessageEnvelope) error {
	if logging.GetMessageID(ctx) == "" {
		ctx = logging.WithMessageID(ctx, envelope.ID)
	}

	eventType, ok := envelope.Metadata.StringAttribute(models.AttributeEventType)
	if !ok {
		eventType, ok = envelope.Payload["event_type"].(string)
	}
	if !ok {
		h.logger.WarnwCtx(ctx, "Change event missing event_type")
		return nil
	}
	if eventType != models.EventTypeFiltersChanged {
		return nil
	}

	event, err := models.ChangeEventFromEnvelope(envelope)
	if err != nil {
		metrics.IncFilterChangeEvent(constants.NotifierKafka, "in", "invalid")
		h.logger.ErrorwCtx(ctx, "Failed to decode change event", "error", err)
		return retry.NewFatalError(err)
	}

	if err := h.applier.HandleChangeEvent(ctx, event); err != nil {
		if errors.IsInvalidInput(err) {
			metrics.IncFilterChangeEvent(constants.NotifierKafka, "in", "invalid")
			h.logger.WarnwCtx(ctx, "Rejected change event", "error", err)
			return retry.NewFatalError(err)
		}
		metrics.IncFilterChangeEvent(constants.NotifierKafka, "in", "error")
		return err
	}

	metrics.IncFilterChangeEvent(constants.NotifierKafka, "in", "success")
	return nil
}
