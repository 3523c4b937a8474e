package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
)

func newTestOrchestrator(hub *fakeHub, pending *memStore) *Orchestrator {
	return NewOrchestrator(hub, pending, 100*time.Millisecond, testLogger(), testMetrics())
}

func TestDeliverPushesToLiveConnection(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	orch := newTestOrchestrator(hub, pending)

	userID := uuid.New()
	conn := newFakeConn(userID)
	hub.attach(conn)

	att := model.DeliveryAttempt{UserID: userID, Sequence: 1, Payload: []byte("hi")}
	if err := orch.Deliver(context.Background(), att); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if got := conn.payloads(); len(got) != 1 || got[0] != "hi" {
		t.Fatalf("pushed %v", got)
	}
	// A message successfully pushed on first attempt is never persisted.
	if pending.count(userID) != 0 {
		t.Fatal("successful push was written to the store")
	}
}

func TestDeliverStoresWhenDisconnected(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	orch := newTestOrchestrator(hub, pending)

	userID := uuid.New()
	att := model.DeliveryAttempt{UserID: userID, Sequence: 5, Payload: []byte("x")}
	if err := orch.Deliver(context.Background(), att); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if got := pending.storedSeqs(userID); len(got) != 1 || got[0] != 5 {
		t.Fatalf("stored %v", got)
	}
}

func TestDeliverStoresOnPushFailure(t *testing.T) {
	cases := []struct {
		name    string
		pushErr error
	}{
		{"recipient gone", model.ErrRecipientGone},
		{"transport failure", model.ErrTransport},
		{"unclassified failure", errors.New("broken pipe")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hub := newFakeHub()
			pending := newMemStore()
			orch := newTestOrchestrator(hub, pending)

			userID := uuid.New()
			conn := newFakeConn(userID)
			conn.pushErr = tc.pushErr
			hub.attach(conn)

			att := model.DeliveryAttempt{UserID: userID, Sequence: 9, Payload: []byte("x")}
			if err := orch.Deliver(context.Background(), att); err != nil {
				t.Fatalf("deliver: %v", err)
			}
			if pending.count(userID) != 1 {
				t.Fatal("failed push was not routed to the store")
			}
		})
	}
}

func TestDeliverSurfacesStoreFailure(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	pending.appendErr = model.ErrStoreUnavailable
	orch := newTestOrchestrator(hub, pending)

	att := model.DeliveryAttempt{UserID: uuid.New(), Sequence: 1, Payload: []byte("x")}
	err := orch.Deliver(context.Background(), att)
	if !model.IsStoreUnavailable(err) {
		t.Fatalf("got %v, want store unavailable", err)
	}
}

func TestDeliverAppendsBehindExistingBacklog(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	orch := newTestOrchestrator(hub, pending)

	userID := uuid.New()
	conn := newFakeConn(userID)
	hub.attach(conn)

	// A backlog accumulated earlier must drain before newer pushes, so a
	// fresh message is stored behind it even though the user is connected.
	if err := pending.Append(context.Background(), userID, 1, []byte("old")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	att := model.DeliveryAttempt{UserID: userID, Sequence: 2, Payload: []byte("new")}
	if err := orch.Deliver(context.Background(), att); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(conn.payloads()) != 0 {
		t.Fatal("fresh message bypassed the backlog")
	}
	if got := pending.storedSeqs(userID); len(got) != 2 {
		t.Fatalf("stored %v, want backlog + fresh", got)
	}
	if hub.wakeCount() == 0 {
		t.Fatal("replay was not nudged for the connected user")
	}
}

func TestRedeliverReportsGoneWhenDisconnected(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	orch := newTestOrchestrator(hub, pending)

	att := model.DeliveryAttempt{UserID: uuid.New(), Sequence: 1, Payload: []byte("x"), Replay: true}
	if err := orch.Redeliver(context.Background(), att); !model.IsRecipientGone(err) {
		t.Fatalf("got %v, want ErrRecipientGone", err)
	}
}

func TestRedeliverNeverWritesStore(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	orch := newTestOrchestrator(hub, pending)

	userID := uuid.New()
	conn := newFakeConn(userID)
	conn.pushErr = model.ErrTransport
	hub.attach(conn)

	att := model.DeliveryAttempt{UserID: userID, Sequence: 3, Payload: []byte("x"), Replay: true}
	if err := orch.Redeliver(context.Background(), att); !errors.Is(err, model.ErrTransport) {
		t.Fatalf("got %v, want ErrTransport", err)
	}
	// The record is already durable; a replay failure must not double-store.
	if pending.appendCalls != 0 {
		t.Fatal("replay failure wrote to the store")
	}
}

func TestPushFanOutClassification(t *testing.T) {
	hub := newFakeHub()
	pending := newMemStore()
	orch := newTestOrchestrator(hub, pending)

	userID := uuid.New()
	gone := newFakeConn(userID)
	gone.pushErr = model.ErrRecipientGone
	live := newFakeConn(userID)
	hub.attach(gone)
	hub.attach(live)

	// One live session accepting counts as success.
	att := model.DeliveryAttempt{UserID: userID, Sequence: 1, Payload: []byte("x"), Replay: true}
	if err := orch.Redeliver(context.Background(), att); err != nil {
		t.Fatalf("redeliver: %v", err)
	}

	// All sessions gone classifies as gone.
	hub.detach(userID)
	both := newFakeConn(userID)
	both.pushErr = model.ErrRecipientGone
	hub.attach(both)
	if err := orch.Redeliver(context.Background(), att); !model.IsRecipientGone(err) {
		t.Fatalf("got %v, want ErrRecipientGone", err)
	}
}
