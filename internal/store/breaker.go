package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	"github.com/sony/gobreaker/v2"
)

// Interface guard
var _ PendingStore = (*BreakerStore)(nil)

// BreakerStore decorates a PendingStore with a circuit breaker. While the
// breaker is open every call fails fast as model.ErrStoreUnavailable instead
// of piling onto a struggling disk.
type BreakerStore struct {
	next PendingStore
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerStore(next PendingStore) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "pending-store",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) execute(op func() (any, error)) (any, error) {
	out, err := b.cb.Execute(op)
	if err != nil {
		return out, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (b *BreakerStore) Append(ctx context.Context, userID uuid.UUID, seq uint64, payload []byte) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Append(ctx, userID, seq, payload)
	})
	return err
}

func (b *BreakerStore) ListFrom(ctx context.Context, userID uuid.UUID, cursor model.Cursor, limit int) ([]model.PendingMessage, model.Cursor, error) {
	type result struct {
		page []model.PendingMessage
		next model.Cursor
	}
	out, err := b.execute(func() (any, error) {
		page, next, err := b.next.ListFrom(ctx, userID, cursor, limit)
		return result{page, next}, err
	})
	if err != nil {
		return nil, 0, err
	}
	res := out.(result)
	return res.page, res.next, nil
}

func (b *BreakerStore) Remove(ctx context.Context, userID uuid.UUID, seq uint64) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Remove(ctx, userID, seq)
	})
	return err
}

func (b *BreakerStore) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	out, err := b.execute(func() (any, error) {
		return b.next.HasPending(ctx, userID)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}
