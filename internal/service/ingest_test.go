package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/config"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	"github.com/signalmesh/notify-relay-service/internal/pipeline"
	"github.com/signalmesh/notify-relay-service/internal/sequence"
)

func newTestIngest(t *testing.T, hub *fakeHub, pending *memStore, maxAttempts int) (*IngestService, *fakeDeadLetterer) {
	t.Helper()

	seq, err := sequence.New(1)
	if err != nil {
		t.Fatalf("sequencer: %v", err)
	}
	lanes := pipeline.NewLanes()
	t.Cleanup(lanes.Shutdown)

	cfg := &config.Config{}
	cfg.Ingest.MaxMessageSize = 1024
	cfg.Delivery.StoreMaxAttempts = maxAttempts

	dlq := &fakeDeadLetterer{}
	orch := newTestOrchestrator(hub, pending)
	svc := NewIngestService(seq, lanes, orch, config.NewLimits(cfg), dlq, cfg, testLogger(), testMetrics())
	return svc, dlq
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEnqueueValidation(t *testing.T) {
	svc, _ := newTestIngest(t, newFakeHub(), newMemStore(), 3)

	cases := []struct {
		name    string
		userID  uuid.UUID
		payload []byte
	}{
		{"nil user", uuid.Nil, []byte("x")},
		{"empty payload", uuid.New(), nil},
		{"oversized payload", uuid.New(), []byte(strings.Repeat("a", 2048))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Enqueue(context.Background(), tc.userID, tc.payload)
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestEnqueueAssignsIncreasingSequences(t *testing.T) {
	svc, _ := newTestIngest(t, newFakeHub(), newMemStore(), 3)

	userID := uuid.New()
	var prev uint64
	for i := 0; i < 10; i++ {
		seq, err := svc.Enqueue(context.Background(), userID, []byte("m"))
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if seq <= prev {
			t.Fatalf("sequence %d not greater than %d", seq, prev)
		}
		prev = seq
	}
}

func TestEnqueueDeliversThroughLane(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	svc, _ := newTestIngest(t, hub, pending, 3)

	userID := uuid.New()
	conn := newFakeConn(userID)
	hub.attach(conn)

	want := []string{"first", "second", "third"}
	for _, msg := range want {
		if _, err := svc.Enqueue(context.Background(), userID, []byte(msg)); err != nil {
			t.Fatalf("enqueue %q: %v", msg, err)
		}
	}

	waitUntil(t, func() bool { return len(conn.payloads()) == len(want) })
	got := conn.payloads()
	for i, msg := range want {
		if got[i] != msg {
			t.Fatalf("position %d: %q, want %q", i, got[i], msg)
		}
	}
	if pending.count(userID) != 0 {
		t.Fatal("delivered messages were also stored")
	}
}

func TestEnqueueStoresForOfflineUser(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	svc, _ := newTestIngest(t, hub, pending, 3)

	userID := uuid.New()
	if _, err := svc.Enqueue(context.Background(), userID, []byte("offline")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitUntil(t, func() bool { return pending.count(userID) == 1 })
}

func TestExhaustedStoreRetriesDeadLetter(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	pending.appendErr = model.ErrStoreUnavailable
	svc, dlq := newTestIngest(t, hub, pending, 2)

	userID := uuid.New()
	if _, err := svc.Enqueue(context.Background(), userID, []byte("doomed")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitUntil(t, func() bool { return dlq.count() == 1 })
	if pending.appendCalls != 2 {
		t.Fatalf("append attempted %d times, want 2", pending.appendCalls)
	}
}
