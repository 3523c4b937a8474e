package model

import "github.com/google/uuid"

// PendingMessage is a durably stored, undelivered message. Identity is the
// (UserID, Sequence) pair; records are never updated in place.
type PendingMessage struct {
	UserID   uuid.UUID
	Sequence uint64
	Payload  []byte
}

// DeliveryAttempt is the ephemeral unit processed by one orchestration run.
// Replay marks a re-injection that carries its original sequence and is
// already durable.
type DeliveryAttempt struct {
	UserID   uuid.UUID
	Sequence uint64
	Payload  []byte
	Replay   bool
}

// Frame is the unit pushed over a live transport session.
type Frame struct {
	Sequence uint64
	Payload  []byte
	QueuedAt int64 // unix millis at sequence assignment
}

// Cursor is an opaque resume position for paginated backlog scans.
// Zero means "from the beginning"; zero returned as next means "no more pages".
type Cursor uint64

// HubStats is a point-in-time snapshot of the connection registry.
type HubStats struct {
	Users    int `json:"users"`
	Sessions int `json:"sessions"`
}
