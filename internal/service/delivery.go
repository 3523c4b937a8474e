package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	"github.com/signalmesh/notify-relay-service/internal/domain/registry"
)

// Deliverer is the primary interface for transport handlers (WebSocket).
type Deliverer interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (registry.Connector, error)
	Unsubscribe(userID, connID uuid.UUID)
	Stats() model.HubStats
}

// Interface guard
var _ Deliverer = (*DeliveryService)(nil)

type DeliveryService struct {
	hub           registry.Hubber
	sessionBuffer int
}

func NewDeliveryService(hub registry.Hubber, sessionBuffer int) *DeliveryService {
	if sessionBuffer <= 0 {
		sessionBuffer = 1024
	}
	return &DeliveryService{
		hub:           hub,
		sessionBuffer: sessionBuffer,
	}
}

// Subscribe creates a pooled session handle and registers it. Registration
// emits the change notification that fires the replay driver for this user.
func (s *DeliveryService) Subscribe(ctx context.Context, userID uuid.UUID) (registry.Connector, error) {
	conn := registry.NewConnector(ctx, userID, s.sessionBuffer)
	s.hub.Upsert(conn)
	return conn, nil
}

// Unsubscribe detaches the session; the hub closes it and recycles the
// pooled object.
func (s *DeliveryService) Unsubscribe(userID, connID uuid.UUID) {
	s.hub.Remove(userID, connID)
}

func (s *DeliveryService) Stats() model.HubStats {
	return s.hub.Stats()
}
