package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	"github.com/signalmesh/notify-relay-service/internal/domain/registry"
	"github.com/signalmesh/notify-relay-service/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.New()
}

// fakeConn records pushed frames and can be scripted to fail.
type fakeConn struct {
	id     uuid.UUID
	userID uuid.UUID

	mu      sync.Mutex
	frames  []model.Frame
	pushErr error
	// failFirst makes only the first push fail, then heal.
	failFirst bool
}

func newFakeConn(userID uuid.UUID) *fakeConn {
	return &fakeConn{id: uuid.New(), userID: userID}
}

func (c *fakeConn) GetID() uuid.UUID     { return c.id }
func (c *fakeConn) GetUserID() uuid.UUID { return c.userID }

func (c *fakeConn) Push(frame model.Frame, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushErr != nil {
		err := c.pushErr
		if c.failFirst {
			c.pushErr = nil
		}
		return err
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Recv() <-chan model.Frame { return nil }
func (c *fakeConn) Done() <-chan struct{}    { return nil }
func (c *fakeConn) Close()                   {}

func (c *fakeConn) sequences() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Sequence)
	}
	return out
}

func (c *fakeConn) payloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, string(f.Payload))
	}
	return out
}

// fakeHub is a scriptable ConnectionSource.
type fakeHub struct {
	mu    sync.Mutex
	conns map[uuid.UUID][]registry.Connector
	woken []uuid.UUID
}

func newFakeHub() *fakeHub {
	return &fakeHub{conns: make(map[uuid.UUID][]registry.Connector)}
}

func (h *fakeHub) attach(conn registry.Connector) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.GetUserID()] = append(h.conns[conn.GetUserID()], conn)
}

func (h *fakeHub) detach(userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, userID)
}

func (h *fakeHub) Resolve(userID uuid.UUID) []registry.Connector {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]registry.Connector(nil), h.conns[userID]...)
}

func (h *fakeHub) IsConnected(userID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID]) > 0
}

func (h *fakeHub) Wake(userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.woken = append(h.woken, userID)
}

func (h *fakeHub) wakeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.woken)
}

// memStore is an in-memory PendingStore with failure injection.
type memStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]map[uint64][]byte

	appendErr error
	listErr   error
	removeErr error

	appendCalls int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[uuid.UUID]map[uint64][]byte)}
}

func (s *memStore) Append(_ context.Context, userID uuid.UUID, seq uint64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCalls++
	if s.appendErr != nil {
		return s.appendErr
	}
	if s.records[userID] == nil {
		s.records[userID] = make(map[uint64][]byte)
	}
	s.records[userID][seq] = append([]byte(nil), payload...)
	return nil
}

func (s *memStore) ListFrom(_ context.Context, userID uuid.UUID, cursor model.Cursor, limit int) ([]model.PendingMessage, model.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	if limit <= 0 {
		limit = 10
	}

	seqs := make([]uint64, 0, len(s.records[userID]))
	for seq := range s.records[userID] {
		if seq > uint64(cursor) {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var next model.Cursor
	if len(seqs) > limit {
		seqs = seqs[:limit]
		next = model.Cursor(seqs[len(seqs)-1])
	}

	page := make([]model.PendingMessage, 0, len(seqs))
	for _, seq := range seqs {
		page = append(page, model.PendingMessage{
			UserID:   userID,
			Sequence: seq,
			Payload:  append([]byte(nil), s.records[userID][seq]...),
		})
	}
	return page, next, nil
}

func (s *memStore) Remove(_ context.Context, userID uuid.UUID, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.records[userID], seq)
	return nil
}

func (s *memStore) HasPending(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return false, s.listErr
	}
	return len(s.records[userID]) > 0, nil
}

func (s *memStore) count(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[userID])
}

func (s *memStore) storedSeqs(userID uuid.UUID) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.records[userID]))
	for seq := range s.records[userID] {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fakeDeadLetterer records abandoned attempts.
type fakeDeadLetterer struct {
	mu       sync.Mutex
	attempts []model.DeliveryAttempt
}

func (d *fakeDeadLetterer) DeadLetter(_ context.Context, att model.DeliveryAttempt) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, att)
	return nil
}

func (d *fakeDeadLetterer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}
