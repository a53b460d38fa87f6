package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/groblegark/madrasa/internal/model"
)

// NATSPublisher mirrors committed events to other instances. Each event is
// published as its wire-shape JSON under one of the Topic* subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url (MADRASA_NATS_URL).
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("madrasa-mirror-pub"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish mirrors one event. Topics outside the madrasa namespace are
// rejected so a typo cannot silently publish where no instance listens.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, evt *model.Event) error {
	if !strings.HasPrefix(topic, TopicPrefix) {
		return fmt.Errorf("events: topic %q outside the %q namespace", topic, TopicPrefix)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.conn.Publish(topic, data)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber receives mirrored events and decodes them back to the
// wire shape, so the consumer can hand them straight to its push hub.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects with unlimited reconnects, since a mirror gap
// only costs push freshness: pollers recover missed events from the log.
// Extra nats.Option values (e.g. disconnect handlers) can be appended.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name("madrasa-mirror-sub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe returns a channel of decoded events for the given topic,
// usually TopicWildcard. Payloads that do not decode as events are logged
// and dropped. Call the returned cancel function to unsubscribe and close
// the channel.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan *model.Event, func(), error) {
	ch := make(chan *model.Event, 64)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		var evt model.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			slog.Warn("dropping malformed mirrored event", "topic", msg.Subject, "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- &evt:
		default:
			// A full channel means a stalled consumer; dropping here keeps
			// the NATS client unblocked and pollers fill the gap.
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Flush so the subscription is registered server-side before we return;
	// otherwise events published on other connections can race past it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			mu.Unlock()
			// Drain buffered events so in-flight sends cannot block, then
			// close so range loops over the channel terminate.
			for {
				select {
				case <-ch:
				default:
					close(ch)
					return
				}
			}
		})
	}

	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
