package model

import "errors"

// Delivery-path error taxonomy. Producers only ever observe ErrValidation;
// everything else is resolved asynchronously by storage + replay.
var (
	// ErrValidation marks input rejected before it enters the pipeline.
	ErrValidation = errors.New("validation failed")

	// ErrRecipientGone marks a push against a stale or closed connection.
	ErrRecipientGone = errors.New("recipient gone")

	// ErrTransport marks any other push failure (timeout, saturated session).
	ErrTransport = errors.New("transport failure")

	// ErrStoreUnavailable marks a pending-store read/write failure, including
	// an open circuit breaker.
	ErrStoreUnavailable = errors.New("pending store unavailable")

	// ErrReplayInterrupted marks a replay drain halted before the backlog was
	// exhausted. Remaining messages stay stored for the next trigger.
	ErrReplayInterrupted = errors.New("replay interrupted")
)

// IsRecipientGone reports whether err classifies as a dead-session push.
func IsRecipientGone(err error) bool {
	return errors.Is(err, ErrRecipientGone)
}

// IsStoreUnavailable reports whether err classifies as a durable-store outage.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
