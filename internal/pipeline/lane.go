/*
Package pipeline provides single-flight-per-key task lanes.

Every active user is represented by an isolated lane: a mailbox channel
drained by one goroutine, so at most one task runs per key at a time while
distinct keys proceed fully in parallel. Lanes are created lazily on first
submit and reclaimed by a janitor once idle.
*/
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is one unit of keyed work. It runs alone for its key; the next task
// for the same key starts only after it returns.
type Task func(ctx context.Context)

// lane serializes tasks for a single key.
type lane struct {
	// [MAILBOX] FIFO of queued tasks; buffering decouples submitters from
	// slow deliveries without violating the one-at-a-time rule.
	mailbox chan Task

	doneCh chan struct{}

	mu             sync.Mutex
	stopped        bool
	running        bool
	lastActivityAt time.Time
}

func newLane(bufferSize int) *lane {
	l := &lane{
		mailbox:        make(chan Task, bufferSize),
		doneCh:         make(chan struct{}),
		lastActivityAt: time.Now(),
	}
	return l
}

func (l *lane) loop(ctx context.Context) {
	for {
		select {
		case <-l.doneCh:
			return
		case <-ctx.Done():
			return
		case task := <-l.mailbox:
			l.setRunning(true)
			task(ctx)
			l.setRunning(false)
			l.touch()
		}
	}
}

func (l *lane) setRunning(v bool) {
	l.mu.Lock()
	l.running = v
	l.mu.Unlock()
}

func (l *lane) touch() {
	l.mu.Lock()
	l.lastActivityAt = time.Now()
	l.mu.Unlock()
}

// submit enqueues a task, blocking up to ctx for mailbox space. Returns false
// if the lane has been stopped by the janitor and the caller must retry on a
// fresh lane.
func (l *lane) submit(ctx context.Context, t Task) (bool, error) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false, nil
	}
	l.lastActivityAt = time.Now()
	l.mu.Unlock()

	select {
	case l.mailbox <- t:
		return true, nil
	case <-l.doneCh:
		return false, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// idle reports whether the lane has no queued or running work and has been
// quiet past the timeout.
func (l *lane) idle(timeout time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.running && len(l.mailbox) == 0 && time.Since(l.lastActivityAt) > timeout
}

// stop marks the lane dead and releases its goroutine. Tasks already queued
// are abandoned; the janitor only stops lanes that report idle.
func (l *lane) stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()
	close(l.doneCh)
}

// Lanes owns the per-key lane map and the janitor.
type Lanes struct {
	lanes sync.Map // Map[uuid.UUID]*lane

	config struct {
		mailboxSize      int
		idleTimeout      time.Duration
		evictionInterval time.Duration
	}

	runCtx  context.Context
	cancel  context.CancelFunc
	stopped sync.Once
}

func NewLanes(opts ...LanesOption) *Lanes {
	ls := &Lanes{}
	ls.config.mailboxSize = 2048
	ls.config.idleTimeout = 5 * time.Minute
	ls.config.evictionInterval = time.Minute

	for _, opt := range opts {
		opt(ls)
	}

	ls.runCtx, ls.cancel = context.WithCancel(context.Background())
	go ls.janitor()
	return ls
}

// Submit queues a task on the key's lane, creating the lane on first use.
// Blocks while the mailbox is full so backpressure propagates to the caller
// instead of dropping work.
func (ls *Lanes) Submit(ctx context.Context, key uuid.UUID, t Task) error {
	for {
		val, loaded := ls.lanes.LoadOrStore(key, newLane(ls.config.mailboxSize))
		l := val.(*lane)
		if !loaded {
			go l.loop(ls.runCtx)
		}

		ok, err := l.submit(ctx, t)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		// Lost the race against the janitor; drop the dead lane and retry.
		ls.lanes.CompareAndDelete(key, l)
	}
}

// QueueDepth reports queued tasks for a key. Used by stats and tests.
func (ls *Lanes) QueueDepth(key uuid.UUID) int {
	if val, ok := ls.lanes.Load(key); ok {
		return len(val.(*lane).mailbox)
	}
	return 0
}

func (ls *Lanes) janitor() {
	ticker := time.NewTicker(ls.config.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ls.runCtx.Done():
			return
		case <-ticker.C:
			ls.lanes.Range(func(key, val any) bool {
				l := val.(*lane)
				if l.idle(ls.config.idleTimeout) {
					l.stop()
					ls.lanes.CompareAndDelete(key, l)
				}
				return true
			})
		}
	}
}

// Shutdown stops the janitor and every lane goroutine.
func (ls *Lanes) Shutdown() {
	ls.stopped.Do(func() {
		ls.cancel()
		ls.lanes.Range(func(key, val any) bool {
			val.(*lane).stop()
			ls.lanes.Delete(key)
			return true
		})
	})
}
