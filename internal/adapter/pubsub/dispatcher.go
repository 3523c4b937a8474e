package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
)

const (
	// DeadLetterTopic receives attempts abandoned after exhausting durable
	// store retries, for manual inspection.
	DeadLetterTopic = "notify.delivery.dead-letter.v1"
)

// Dispatcher is the high-level contract for outgoing bus traffic. Handlers
// stay agnostic of the transport implementation behind it.
type Dispatcher interface {
	DeadLetter(ctx context.Context, att model.DeliveryAttempt) error
	Publisher() message.Publisher
}

// Interface guard
var _ Dispatcher = (*dispatcher)(nil)

type dispatcher struct {
	publisher message.Publisher
}

func NewDispatcher(pub message.Publisher) Dispatcher {
	return &dispatcher{publisher: pub}
}

// deadLetterEnvelope is the wire shape of an abandoned attempt.
type deadLetterEnvelope struct {
	UserID   string `json:"user_id"`
	Sequence uint64 `json:"sequence"`
	Payload  []byte `json:"payload"`
	Replay   bool   `json:"replay"`
}

func (d *dispatcher) DeadLetter(ctx context.Context, att model.DeliveryAttempt) error {
	body, err := json.Marshal(deadLetterEnvelope{
		UserID:   att.UserID.String(),
		Sequence: att.Sequence,
		Payload:  att.Payload,
		Replay:   att.Replay,
	})
	if err != nil {
		return fmt.Errorf("dispatcher: marshal dead letter: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	msg.Metadata.Set("user_id", att.UserID.String())

	if err := d.publisher.Publish(DeadLetterTopic, msg); err != nil {
		return fmt.Errorf("dispatcher: publish to %s: %w", DeadLetterTopic, err)
	}
	return nil
}

func (d *dispatcher) Publisher() message.Publisher {
	return d.publisher
}
