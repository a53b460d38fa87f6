package server

import (
	"testing"
	"time"

	"github.com/groblegark/madrasa/internal/model"
)

func TestPushHub_OwnerRouting(t *testing.T) {
	hub := newPushHub()

	alice := hub.subscribe("alice")
	defer hub.unsubscribe(alice)
	bob := hub.subscribe("bob")
	defer hub.unsubscribe(bob)

	hub.broadcast(&model.Event{Seq: 1, SubjectID: "it-1", Kind: "created", Owner: "alice"})

	select {
	case evt := <-alice.ch:
		if evt.SubjectID != "it-1" {
			t.Fatalf("got subject %q", evt.SubjectID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Bob's stream stays quiet.
	select {
	case evt := <-bob.ch:
		t.Fatalf("bob received alice's event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPushHub_MultipleConnectionsPerOwner(t *testing.T) {
	hub := newPushHub()

	// Two tabs of the same user.
	tab1 := hub.subscribe("alice")
	defer hub.unsubscribe(tab1)
	tab2 := hub.subscribe("alice")
	defer hub.unsubscribe(tab2)

	if n := hub.connected("alice"); n != 2 {
		t.Fatalf("connected = %d, want 2", n)
	}

	hub.broadcast(&model.Event{Seq: 1, Kind: "updated", Owner: "alice"})

	for i, c := range []*pushConn{tab1, tab2} {
		select {
		case <-c.ch:
		case <-time.After(time.Second):
			t.Fatalf("tab %d did not receive the event", i+1)
		}
	}
}

func TestPushHub_Unsubscribe(t *testing.T) {
	hub := newPushHub()

	c := hub.subscribe("alice")
	hub.unsubscribe(c)

	if n := hub.connected("alice"); n != 0 {
		t.Fatalf("connected = %d after unsubscribe", n)
	}

	hub.broadcast(&model.Event{Seq: 1, Kind: "created", Owner: "alice"})
	select {
	case <-c.ch:
		t.Fatal("should not receive events after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPushHub_SlowConnectionDropsEvents(t *testing.T) {
	hub := newPushHub()

	c := hub.subscribe("alice")
	defer hub.unsubscribe(c)

	// Fill the buffer and then some. Broadcast must never block the caller,
	// even when nobody is draining.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*cap(c.ch); i++ {
			hub.broadcast(&model.Event{Seq: int64(i), Kind: "updated", Owner: "alice"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow connection")
	}

	if len(c.ch) != cap(c.ch) {
		t.Fatalf("buffered %d events, want full buffer of %d", len(c.ch), cap(c.ch))
	}
}

func TestPushHub_NoOwnerNoDelivery(t *testing.T) {
	hub := newPushHub()

	c := hub.subscribe("alice")
	defer hub.unsubscribe(c)

	// An event without an owner has no route.
	hub.broadcast(&model.Event{Seq: 1, Kind: "created"})

	select {
	case <-c.ch:
		t.Fatal("ownerless event should not be delivered")
	case <-time.After(50 * time.Millisecond):
	}
}
