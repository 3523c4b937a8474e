// Package store implements the durable pending-message log: a time-ordered
// record of undelivered messages per user, written by the delivery
// orchestrator and drained by the replay driver.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	pebblestore "github.com/signalmesh/notify-relay-service/internal/storage/pebble"
)

// PendingStore is the contract consumed by the orchestrator and replay driver.
type PendingStore interface {
	// Append durably records an undelivered message.
	Append(ctx context.Context, userID uuid.UUID, seq uint64, payload []byte) error
	// ListFrom returns up to limit records with sequence greater than cursor,
	// ascending, plus a cursor for the next page (zero when exhausted).
	ListFrom(ctx context.Context, userID uuid.UUID, cursor model.Cursor, limit int) ([]model.PendingMessage, model.Cursor, error)
	// Remove deletes one record. Removing an absent record is a no-op.
	Remove(ctx context.Context, userID uuid.UUID, seq uint64) error
	// HasPending reports whether any record exists for the user.
	HasPending(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Interface guard
var _ PendingStore = (*Pending)(nil)

// Pending is the Pebble-backed implementation.
type Pending struct {
	db *pebblestore.DB
}

func NewPending(db *pebblestore.DB) *Pending {
	return &Pending{db: db}
}

func (p *Pending) Append(ctx context.Context, userID uuid.UUID, seq uint64, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.db.Set(KeyPending(userID, seq), payload); err != nil {
		return fmt.Errorf("pending append user=%s seq=%d: %w", userID, seq, err)
	}
	return nil
}

func (p *Pending) ListFrom(ctx context.Context, userID uuid.UUID, cursor model.Cursor, limit int) ([]model.PendingMessage, model.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 10
	}

	lower, upper := KeyPendingRange(userID)
	if cursor > 0 {
		// Resume strictly after the cursor position. Nothing can sort after
		// the maximum sequence, so that cursor is already exhausted; the +1
		// below must not wrap back to the start of the range.
		if uint64(cursor) == math.MaxUint64 {
			return nil, 0, nil
		}
		lower = KeyPending(userID, uint64(cursor)+1)
	}

	iter, err := p.db.NewIter(lower, upper)
	if err != nil {
		return nil, 0, fmt.Errorf("pending scan user=%s: %w", userID, err)
	}
	defer iter.Close()

	page := make([]model.PendingMessage, 0, limit)
	var next model.Cursor

	for ok := iter.First(); ok; ok = iter.Next() {
		if len(page) == limit {
			// More records exist beyond this page; resume after the last
			// returned sequence.
			next = model.Cursor(page[len(page)-1].Sequence)
			break
		}
		payload := make([]byte, len(iter.Value()))
		copy(payload, iter.Value())
		page = append(page, model.PendingMessage{
			UserID:   userID,
			Sequence: seqFromKey(iter.Key()),
			Payload:  payload,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, 0, fmt.Errorf("pending scan user=%s: %w", userID, err)
	}
	return page, next, nil
}

func (p *Pending) Remove(ctx context.Context, userID uuid.UUID, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.db.Delete(KeyPending(userID, seq)); err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return fmt.Errorf("pending remove user=%s seq=%d: %w", userID, seq, err)
	}
	return nil
}

func (p *Pending) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	lower, upper := KeyPendingRange(userID)
	iter, err := p.db.NewIter(lower, upper)
	if err != nil {
		return false, fmt.Errorf("pending probe user=%s: %w", userID, err)
	}
	defer iter.Close()

	ok := iter.First()
	if err := iter.Error(); err != nil {
		return false, fmt.Errorf("pending probe user=%s: %w", userID, err)
	}
	return ok, nil
}
