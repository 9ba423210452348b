package ingest

import (
	"context"
	"encoding/json"
	"time"

	"pulsewatch/pkg/rabbitmq"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ResultHandler consumes worker results arriving over the broker instead of
// the HTTP callback. Both paths end in the same raw-response attach.
type ResultHandler struct {
	pending AttachStore
	logger  *zerolog.Logger
}

func NewResultHandler(pending AttachStore, logger *zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		pending: pending,
		logger:  logger,
	}
}

func (h *ResultHandler) Handle(ctx context.Context, msg amqp091.Delivery) error {
	var result rabbitmq.CheckResultMessage
	if err := json.Unmarshal(msg.Body, &result); err != nil {
		// undeliverable junk; nacking without requeue is all we can do
		return err
	}
	if result.RequestID == uuid.Nil {
		h.logger.Warn().Msg("result message without request id, dropping")
		return nil
	}

	attached, err := h.pending.AttachResponse(ctx, result.RequestID, result.Payload, time.Now())
	if err != nil {
		return err
	}
	if !attached {
		h.logger.Debug().
			Stringer("request_id", result.RequestID).
			Msg("result for unknown or already answered request, ignoring")
	}
	return nil
}
