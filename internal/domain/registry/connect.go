package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// Connector is the opaque handle the delivery pipeline pushes through.
// Implementations must be safe for concurrent use; Push distinguishes a dead
// session (model.ErrRecipientGone) from transient saturation (model.ErrTransport).
// Done is the session-termination signal for transport pumps; the receive
// channel itself is never closed.
type Connector interface {
	GetID() uuid.UUID
	GetUserID() uuid.UUID
	Push(frame model.Frame, timeout time.Duration) error
	Recv() <-chan model.Frame
	Done() <-chan struct{}
	Close()
}

// ConnectMetadata is exported for the transport and stats layers.
type ConnectMetadata struct {
	Platform  string
	RemoteIP  string
	UserAgent string
}

// [CONNECT] Concrete implementation, unexported to force interface usage.
//
// Invariant: sendCh is never closed. A concurrent Push may be selecting on it
// at any moment, including the moment the hub replaces or removes the
// session, so termination is signalled exclusively through ctx cancellation
// and the closed flag. Consumers drain via Recv and exit via Done.
type connect struct {
	// mu guards every mutable field below against the pool recycling this
	// object under a straggler Push.
	mu        sync.RWMutex
	id        uuid.UUID
	userID    uuid.UUID
	metadata  ConnectMetadata
	createdAt time.Time
	closed    bool

	ctx      context.Context
	cancelFn context.CancelFunc

	sendCh chan model.Frame

	// [ATOMIC_FIELDS] Safe to touch after mu is released.
	lastActivityAt atomic.Int64
	droppedCount   atomic.Uint64
}

// [POOL] Reuse connect objects across short-lived sessions to reduce GC pressure.
var connectPool = sync.Pool{
	New: func() any {
		return &connect{}
	},
}

// NewConnector returns a pooled session handle bound to ctx. The buffer sizes
// the per-session send channel; a saturated buffer surfaces as ErrTransport.
func NewConnector(ctx context.Context, userID uuid.UUID, bufferSize int) Connector {
	c := connectPool.Get().(*connect)
	c.reset(ctx, userID, bufferSize)
	return c
}

// reset re-arms a pooled object for a fresh session.
func (c *connect) reset(ctx context.Context, userID uuid.UUID, bufferSize int) {
	childCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.id = uuid.New()
	c.userID = userID
	c.metadata = ConnectMetadata{}
	c.createdAt = time.Now()
	c.closed = false
	c.ctx = childCtx
	c.cancelFn = cancel
	c.sendCh = make(chan model.Frame, bufferSize)
	c.mu.Unlock()

	c.lastActivityAt.Store(time.Now().UnixNano())
	c.droppedCount.Store(0)
}

func (c *connect) GetID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *connect) GetUserID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Push enqueues a frame into the session buffer, waiting up to timeout for
// space. A closed session reports model.ErrRecipientGone; a buffer that stays
// saturated for the whole window reports model.ErrTransport so the caller can
// fall back to durable storage.
func (c *connect) Push(frame model.Frame, timeout time.Duration) error {
	// [LIFECYCLE_GATE] Snapshot the channel and done signal under the read
	// lock; after release only those locals and the atomic counters are
	// touched, so a concurrent Close/recycle cannot be raced into a panic.
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return model.ErrRecipientGone
	}
	sendCh, done := c.sendCh, c.ctx.Done()
	c.mu.RUnlock()

	// Refuse dead sessions before arming a timer.
	select {
	case <-done:
		return model.ErrRecipientGone
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return model.ErrRecipientGone

	case sendCh <- frame:
		c.lastActivityAt.Store(time.Now().UnixNano())
		return nil

	case <-timer.C:
		// [BACKPRESSURE] Persistent slow consumer; the orchestrator stores
		// instead of blocking the user's delivery lane any longer.
		c.droppedCount.Add(1)
		return model.ErrTransport
	}
}

func (c *connect) Recv() <-chan model.Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sendCh
}

// Done is closed when the session terminates. Frames still buffered in Recv
// at that point may be drained before the pump exits.
func (c *connect) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx.Done()
}

// Close terminates the session, releases waiters and recycles the object.
// Idempotent. The send channel stays open for stragglers; see the type
// invariant.
func (c *connect) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelFn()
	c.metadata = ConnectMetadata{}
	c.mu.Unlock()

	connectPool.Put(c)
}
