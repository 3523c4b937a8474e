package wsmarshaller

import (
	"encoding/json"

	"github.com/signalmesh/notify-relay-service/internal/domain/model"
)

// WSEvent is the wire wrapper for WebSocket frames, keeping a consistent
// envelope across event types.
type WSEvent struct {
	Event    string `json:"event"`
	Sequence uint64 `json:"sequence,omitempty"`
	SentAt   int64  `json:"sent_at"`
	Payload  any    `json:"payload"`
}

// MarshalFrame prepares one delivered message for WebSocket transmission.
func MarshalFrame(frame model.Frame) ([]byte, error) {
	return json.Marshal(&WSEvent{
		Event:    "message",
		Sequence: frame.Sequence,
		SentAt:   frame.QueuedAt,
		Payload:  string(frame.Payload),
	})
}

// ConnectedPayload is sent once after a successful handshake.
type ConnectedPayload struct {
	Ok           bool   `json:"ok"`
	ConnectionID string `json:"connection_id"`
}

// MarshalConnected prepares the handshake acknowledgement.
func MarshalConnected(connID string, at int64) ([]byte, error) {
	return json.Marshal(&WSEvent{
		Event:   "connected",
		SentAt:  at,
		Payload: &ConnectedPayload{Ok: true, ConnectionID: connID},
	})
}
