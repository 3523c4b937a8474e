package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
)

// Hubber is the gateway for session registration and connection lookup.
// Upsert and Remove are called by the transport layer; Resolve is read on
// every delivery attempt. Changes carries reconnect notifications consumed by
// the replay driver.
type Hubber interface {
	Upsert(conn Connector)
	Remove(userID, connID uuid.UUID)
	Resolve(userID uuid.UUID) []Connector
	IsConnected(userID uuid.UUID) bool
	Wake(userID uuid.UUID)
	Changes() <-chan uuid.UUID
	Stats() model.HubStats
	Shutdown()
}

// Interface guard
var _ Hubber = (*Hub)(nil)

// Hub maps user identity to live session handles. Optimized for read-heavy
// delivery lookups: lock-free map access, fine-grained per-user locking.
type Hub struct {
	// entries stores Map[uuid.UUID]*entry.
	entries sync.Map

	changes chan uuid.UUID

	config struct {
		fanOut        bool
		changesBuffer int
	}

	closeOnce sync.Once
}

// entry holds all live sessions for one user. In most-recent-wins mode it
// contains at most one session.
type entry struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID]Connector
	lastUpdated time.Time
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{}
	h.config.changesBuffer = 1024

	for _, opt := range opts {
		opt(h)
	}

	h.changes = make(chan uuid.UUID, h.config.changesBuffer)
	return h
}

// Upsert registers a fresh session and emits a change notification. In the
// default most-recent-wins mode any prior session for the user is closed and
// replaced; with fan-out enabled sessions accumulate per user.
func (h *Hub) Upsert(conn Connector) {
	uID := conn.GetUserID()

	// [LAZY_INIT] Create the entry only when the first session arrives.
	val, _ := h.entries.LoadOrStore(uID, &entry{sessions: make(map[uuid.UUID]Connector)})
	e := val.(*entry)

	e.mu.Lock()
	if !h.config.fanOut {
		for id, prev := range e.sessions {
			prev.Close()
			delete(e.sessions, id)
		}
	}
	e.sessions[conn.GetID()] = conn
	e.lastUpdated = time.Now()
	e.mu.Unlock()

	h.notify(uID)
}

// Remove detaches one session; the entry is purged once the last session ends.
func (h *Hub) Remove(userID, connID uuid.UUID) {
	val, ok := h.entries.Load(userID)
	if !ok {
		return
	}
	e := val.(*entry)

	e.mu.Lock()
	if conn, ok := e.sessions[connID]; ok {
		conn.Close()
		delete(e.sessions, connID)
	}
	empty := len(e.sessions) == 0
	e.mu.Unlock()

	if empty {
		h.entries.Delete(userID)
	}
}

// Resolve returns the live session handles for a user; empty means absent.
func (h *Hub) Resolve(userID uuid.UUID) []Connector {
	val, ok := h.entries.Load(userID)
	if !ok {
		return nil
	}
	e := val.(*entry)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.sessions) == 0 {
		return nil
	}
	conns := make([]Connector, 0, len(e.sessions))
	for _, c := range e.sessions {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) IsConnected(userID uuid.UUID) bool {
	val, ok := h.entries.Load(userID)
	if !ok {
		return false
	}
	e := val.(*entry)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions) > 0
}

// Wake re-emits a change notification without touching sessions. Used by the
// orchestrator to nudge the replay driver when a backlog grows behind a live
// connection.
func (h *Hub) Wake(userID uuid.UUID) {
	h.notify(userID)
}

func (h *Hub) Changes() <-chan uuid.UUID { return h.changes }

func (h *Hub) Stats() model.HubStats {
	var stats model.HubStats
	h.entries.Range(func(_, val any) bool {
		e := val.(*entry)
		e.mu.RLock()
		n := len(e.sessions)
		e.mu.RUnlock()
		if n > 0 {
			stats.Users++
			stats.Sessions += n
		}
		return true
	})
	return stats
}

func (h *Hub) notify(userID uuid.UUID) {
	// Non-blocking: registry writers must never stall on a slow replay
	// consumer. A full buffer only delays redelivery until the next trigger.
	select {
	case h.changes <- userID:
	default:
	}
}

// Shutdown closes every live session. Safe to call once during fx teardown.
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() {
		h.entries.Range(func(key, val any) bool {
			e := val.(*entry)
			e.mu.Lock()
			for id, conn := range e.sessions {
				conn.Close()
				delete(e.sessions, id)
			}
			e.mu.Unlock()
			h.entries.Delete(key)
			return true
		})
		close(h.changes)
	})
}
