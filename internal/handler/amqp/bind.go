package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, payload *T) error

// Bind connects Watermill to domain logic, handling panic recovery and
// decode/validation ack policy.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		// [PANIC_RECOVERY] Keep the consumer alive through runtime panics.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("panic recovered",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
			}
		}()

		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("decode failed", "err", err, "msg_id", msg.UUID)
			return nil // ACK: poison pill protection.
		}

		if err := fn(msg.Context(), payload); err != nil {
			if errors.Is(err, model.ErrValidation) {
				h.logger.Warn("message rejected", "err", err, "msg_id", msg.UUID)
				return nil // ACK: invalid input is a terminal state.
			}
			return err // NACK: triggers the retry policy.
		}
		return nil
	}
}
