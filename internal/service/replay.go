package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	"github.com/signalmesh/notify-relay-service/internal/metrics"
	"github.com/signalmesh/notify-relay-service/internal/pipeline"
	"github.com/signalmesh/notify-relay-service/internal/store"
)

// ReplayDriver drains a user's durable backlog after a reconnect. Triggers
// arrive on the registry change channel; each drain runs as a single task on
// the user's delivery lane, so fresh messages queue behind the whole replay
// and per-user order is preserved.
//
// Notification intake only marks the user dirty: the channel consumer never
// blocks on a saturated lane, so one wedged user cannot back the change
// channel up into dropped notifications for everyone else.
type ReplayDriver struct {
	changes  <-chan uuid.UUID
	store    store.PendingStore
	lanes    *pipeline.Lanes
	orch     *Orchestrator
	pageSize int
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// [COALESCING] One scheduled drain per user at a time; triggers landing
	// while a drain is queued or running set a rerun flag instead of stacking
	// duplicate tasks. dirty holds users awaiting a schedule attempt.
	mu        sync.Mutex
	scheduled map[uuid.UUID]*replayState
	dirty     map[uuid.UUID]struct{}

	kick          chan struct{}
	submitWait    time.Duration
	retryInterval time.Duration
}

type replayState struct {
	rerun bool
}

func NewReplayDriver(
	changes <-chan uuid.UUID,
	pending store.PendingStore,
	lanes *pipeline.Lanes,
	orch *Orchestrator,
	pageSize int,
	logger *slog.Logger,
	m *metrics.Metrics,
) *ReplayDriver {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &ReplayDriver{
		changes:       changes,
		store:         pending,
		lanes:         lanes,
		orch:          orch,
		pageSize:      pageSize,
		logger:        logger.With("component", "replay"),
		metrics:       m,
		scheduled:     make(map[uuid.UUID]*replayState),
		dirty:         make(map[uuid.UUID]struct{}),
		kick:          make(chan struct{}, 1),
		submitWait:    2 * time.Second,
		retryInterval: time.Second,
	}
}

// Run consumes reconnect notifications until ctx is done. Intended as a
// single background goroutine owned by the fx lifecycle.
func (d *ReplayDriver) Run(ctx context.Context) {
	go d.dispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case userID, ok := <-d.changes:
			if !ok {
				return
			}
			d.markDirty(userID)
		}
	}
}

func (d *ReplayDriver) markDirty(userID uuid.UUID) {
	d.mu.Lock()
	d.dirty[userID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// dispatch schedules drains for dirty users. The ticker picks up users whose
// lane was saturated at the previous attempt.
func (d *ReplayDriver) dispatch(ctx context.Context) {
	ticker := time.NewTicker(d.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.kick:
		case <-ticker.C:
		}

		for _, userID := range d.takeDirty() {
			d.Trigger(ctx, userID)
		}
	}
}

func (d *ReplayDriver) takeDirty() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dirty) == 0 {
		return nil
	}
	users := make([]uuid.UUID, 0, len(d.dirty))
	for userID := range d.dirty {
		users = append(users, userID)
	}
	d.dirty = make(map[uuid.UUID]struct{})
	return users
}

// Trigger schedules a backlog drain for the user, coalescing with any drain
// already in flight. A lane that stays saturated past the submit window puts
// the user back on the dirty set for the dispatcher's next pass.
func (d *ReplayDriver) Trigger(ctx context.Context, userID uuid.UUID) {
	d.mu.Lock()
	if st, ok := d.scheduled[userID]; ok {
		st.rerun = true
		d.mu.Unlock()
		return
	}
	d.scheduled[userID] = &replayState{}
	d.mu.Unlock()

	submitCtx, cancel := context.WithTimeout(ctx, d.submitWait)
	err := d.lanes.Submit(submitCtx, userID, func(laneCtx context.Context) {
		d.drainAndReschedule(laneCtx, userID)
	})
	cancel()
	if err != nil {
		d.mu.Lock()
		delete(d.scheduled, userID)
		d.dirty[userID] = struct{}{}
		d.mu.Unlock()
		d.logger.Warn("replay schedule deferred", "user_id", userID, "err", err)
	}
}

func (d *ReplayDriver) drainAndReschedule(ctx context.Context, userID uuid.UUID) {
	d.drain(ctx, userID)

	d.mu.Lock()
	st := d.scheduled[userID]
	rerun := st != nil && st.rerun
	delete(d.scheduled, userID)
	d.mu.Unlock()

	if rerun {
		d.Trigger(ctx, userID)
	}
}

// drain paginates the backlog in ascending sequence order. Per record: push,
// then remove on success. Any push failure halts the drain; a non-gone
// failure is reported as ReplayInterrupted while the remaining records stay
// stored for the next trigger. Running the algorithm twice with no
// interleaved state change leaves the store unchanged (the second pass sees
// an empty backlog).
func (d *ReplayDriver) drain(ctx context.Context, userID uuid.UUID) {
	var cursor model.Cursor

	for {
		page, next, err := d.store.ListFrom(ctx, userID, cursor, d.pageSize)
		if err != nil {
			d.logger.Warn("replay scan failed", "user_id", userID, "err", err)
			return
		}

		for _, pm := range page {
			att := model.DeliveryAttempt{
				UserID:   pm.UserID,
				Sequence: pm.Sequence,
				Payload:  pm.Payload,
				Replay:   true,
			}

			switch err := d.orch.Redeliver(ctx, att); {
			case err == nil:
				// Idempotent remove: a concurrent direct delivery of the
				// same record under unusual timing is harmless.
				if err := d.store.Remove(ctx, userID, pm.Sequence); err != nil {
					d.logger.Warn("replay remove failed",
						"user_id", userID, "seq", pm.Sequence, "err", err)
					return
				}
				d.metrics.Replayed.Inc()

			case model.IsRecipientGone(err):
				// Connection vanished mid-drain; the next connect re-drives
				// the same page.
				d.logger.Debug("replay halted, recipient gone",
					"user_id", userID, "seq", pm.Sequence)
				return

			default:
				d.logger.Warn("replay interrupted",
					"user_id", userID,
					"seq", pm.Sequence,
					"err", model.ErrReplayInterrupted,
					"cause", err,
				)
				return
			}
		}

		if next == 0 {
			return
		}
		cursor = next
	}
}
