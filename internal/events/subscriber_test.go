package events

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/groblegark/madrasa/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSSubscriber_ReceivesPublishedEvent(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicWildcard)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	evt := &model.Event{
		Seq:       7,
		SubjectID: "it-1",
		Kind:      "created",
		Owner:     "alice",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := pub.Publish(context.Background(), TopicItemCreated, evt); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.conn.Flush()

	select {
	case got := <-ch:
		if got.Seq != 7 || got.SubjectID != "it-1" || got.Owner != "alice" {
			t.Errorf("got %+v", got)
		}
		// The wire timestamp survives the mirror at millisecond precision.
		if !got.CreatedAt.Equal(evt.CreatedAt) {
			t.Errorf("created_at %v != %v", got.CreatedAt, evt.CreatedAt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSPublisher_RejectsForeignTopic(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	err = pub.Publish(context.Background(), "orders.created", &model.Event{Kind: "created"})
	if err == nil {
		t.Fatal("expected an error for a topic outside the madrasa namespace")
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicWildcard)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}

	// A second cancel must not panic.
	cancel()
}

func TestNATSSubscriber_WildcardCoversAllTopics(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicWildcard)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	topics := []string{TopicItemCreated, TopicItemStatusChanged, TopicProgressUpdated}
	for _, topic := range topics {
		if err := pub.Publish(context.Background(), topic, &model.Event{Kind: "x"}); err != nil {
			t.Fatalf("publishing to %s: %v", topic, err)
		}
	}
	pub.conn.Flush()

	for i := range topics {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSSubscriber_ImplementsSubscriber(t *testing.T) {
	var _ Subscriber = (*NATSSubscriber)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
	var _ Publisher = (*NoopPublisher)(nil)
}
