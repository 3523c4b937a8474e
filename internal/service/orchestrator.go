package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	"github.com/signalmesh/notify-relay-service/internal/domain/registry"
	"github.com/signalmesh/notify-relay-service/internal/metrics"
	"github.com/signalmesh/notify-relay-service/internal/store"
	"golang.org/x/sync/errgroup"
)

// ConnectionSource is the orchestrator's view of the connection registry.
type ConnectionSource interface {
	Resolve(userID uuid.UUID) []registry.Connector
	IsConnected(userID uuid.UUID) bool
	Wake(userID uuid.UUID)
}

// runState enumerates the per-message delivery state machine.
type runState int

const (
	stateLookup runState = iota + 1
	stateAttemptPush
	stateStore
	stateDone
)

// Orchestrator executes one delivery state machine per message:
// Lookup -> AttemptPush | Store -> Done. Callers provide the
// single-flight-per-user discipline; the orchestrator itself is stateless.
type Orchestrator struct {
	conns       ConnectionSource
	store       store.PendingStore
	pushTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewOrchestrator(conns ConnectionSource, pending store.PendingStore, pushTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		conns:       conns,
		store:       pending,
		pushTimeout: pushTimeout,
		logger:      logger.With("component", "orchestrator"),
		metrics:     m,
	}
}

// Deliver runs the state machine for a fresh message. Push failures of any
// class degrade to durable storage; the only error surfaced is a store
// failure, which the caller retries and eventually dead-letters.
func (o *Orchestrator) Deliver(ctx context.Context, att model.DeliveryAttempt) error {
	started := time.Now()
	defer func() {
		o.metrics.RunDuration.Observe(time.Since(started).Seconds())
	}()

	var conns []registry.Connector

	for st := stateLookup; st != stateDone; {
		switch st {
		case stateLookup:
			// [ORDER_GUARD] A durable backlog must drain before anything
			// newer is pushed; append behind it and nudge the replay driver.
			backlog, err := o.store.HasPending(ctx, att.UserID)
			if err != nil {
				return fmt.Errorf("backlog probe: %w", err)
			}
			if backlog {
				if o.conns.IsConnected(att.UserID) {
					o.conns.Wake(att.UserID)
				}
				st = stateStore
				continue
			}

			conns = o.conns.Resolve(att.UserID)
			if len(conns) == 0 {
				st = stateStore
			} else {
				st = stateAttemptPush
			}

		case stateAttemptPush:
			if err := o.push(ctx, conns, att); err != nil {
				// Gone and transient failures alike fall back to storage;
				// never drop a message on an ambiguous failure.
				st = stateStore
				continue
			}
			o.metrics.Delivered.Inc()
			st = stateDone

		case stateStore:
			if err := o.store.Append(ctx, att.UserID, att.Sequence, att.Payload); err != nil {
				return fmt.Errorf("store seq=%d: %w", att.Sequence, err)
			}
			o.metrics.Stored.Inc()
			st = stateDone
		}
	}
	return nil
}

// Redeliver attempts a push for an already-durable message during replay.
// Returns nil when pushed (caller removes the record), model.ErrRecipientGone
// when no usable session exists, or the transport error otherwise. It never
// writes to the store: the record is already there.
func (o *Orchestrator) Redeliver(ctx context.Context, att model.DeliveryAttempt) error {
	conns := o.conns.Resolve(att.UserID)
	if len(conns) == 0 {
		return model.ErrRecipientGone
	}
	return o.push(ctx, conns, att)
}

// push fans a frame out to the resolved sessions. With the default
// most-recent-wins registry there is exactly one. Outcome classification:
// any session accepting counts as success; all-gone reports gone; otherwise
// the first transport error wins.
func (o *Orchestrator) push(ctx context.Context, conns []registry.Connector, att model.DeliveryAttempt) error {
	frame := model.Frame{
		Sequence: att.Sequence,
		Payload:  att.Payload,
		QueuedAt: time.Now().UnixMilli(),
	}

	if len(conns) == 1 {
		return o.pushOne(ctx, conns[0], frame)
	}

	results := make([]error, len(conns))
	g, gCtx := errgroup.WithContext(ctx)
	for i, conn := range conns {
		g.Go(func() error {
			results[i] = o.pushOne(gCtx, conn, frame)
			return nil
		})
	}
	_ = g.Wait()

	var firstTransport error
	for _, err := range results {
		if err == nil {
			return nil
		}
		if !model.IsRecipientGone(err) && firstTransport == nil {
			firstTransport = err
		}
	}
	if firstTransport != nil {
		return firstTransport
	}
	return model.ErrRecipientGone
}

func (o *Orchestrator) pushOne(ctx context.Context, conn registry.Connector, frame model.Frame) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrTransport, err)
	}
	if err := conn.Push(frame, o.pushTimeout); err != nil {
		o.logger.Debug("push failed",
			"user_id", conn.GetUserID(),
			"conn_id", conn.GetID(),
			"seq", frame.Sequence,
			"err", err,
		)
		return err
	}
	return nil
}
