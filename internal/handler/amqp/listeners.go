package amqp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
)

// MessageQueuedV1 is the inbound producer event. The caller identity is
// validated upstream of the bus; user_id arrives pre-authenticated.
type MessageQueuedV1 struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// OnMessageQueuedV1 feeds one producer message into the ingestion ordering
// layer.
func (h *MessageHandler) OnMessageQueuedV1(ctx context.Context, raw *MessageQueuedV1) error {
	userID, err := uuid.Parse(raw.UserID)
	if err != nil {
		return fmt.Errorf("%w: user_id %q: %v", model.ErrValidation, raw.UserID, err)
	}

	seq, err := h.ingest.Enqueue(ctx, userID, []byte(raw.Message))
	if err != nil {
		return err
	}

	h.logger.Debug("message ingested", "user_id", userID, "seq", seq)
	return nil
}
