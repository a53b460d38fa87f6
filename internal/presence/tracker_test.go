package presence

import "testing"

func TestTracker_ConnectDisconnect(t *testing.T) {
	tr := New()

	tr.Connected("alice")
	tr.Connected("alice") // second tab
	tr.Connected("bob")

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("roster size = %d", len(snap))
	}
	// Snapshot is sorted by owner.
	if snap[0].Owner != "alice" || snap[0].Connections != 2 {
		t.Fatalf("alice entry = %+v", snap[0])
	}
	if snap[1].Owner != "bob" || snap[1].Connections != 1 {
		t.Fatalf("bob entry = %+v", snap[1])
	}

	tr.Disconnected("alice")
	snap = tr.Snapshot()
	if snap[0].Connections != 1 {
		t.Fatalf("alice connections = %d after one disconnect", snap[0].Connections)
	}

	// Last disconnect removes the owner entirely.
	tr.Disconnected("alice")
	tr.Disconnected("bob")
	if snap = tr.Snapshot(); len(snap) != 0 {
		t.Fatalf("roster not empty: %v", snap)
	}
}

func TestTracker_Delivered(t *testing.T) {
	tr := New()
	tr.Connected("alice")
	tr.Delivered("alice")
	tr.Delivered("alice")

	snap := tr.Snapshot()
	if len(snap) != 1 || snap[0].Delivered != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Delivered for an unknown owner is a no-op.
	tr.Delivered("ghost")
	if len(tr.Snapshot()) != 1 {
		t.Fatal("ghost owner appeared in roster")
	}
}

func TestTracker_DisconnectUnknownOwner(t *testing.T) {
	tr := New()
	tr.Disconnected("ghost") // must not panic or create an entry
	if len(tr.Snapshot()) != 0 {
		t.Fatal("unexpected roster entry")
	}
}
